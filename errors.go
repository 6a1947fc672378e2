package taskhive

import (
	"errors"
	"fmt"
)

// Validation errors. They are raised synchronously by setters and constructors and are never retried.
var (
	// ErrInvalidStatus is returned when a status outside the six canonical values is used.
	ErrInvalidStatus = errors.New("taskhive: invalid status")
	// ErrInvalidPriority is returned when a priority is not a positive integer.
	ErrInvalidPriority = errors.New("taskhive: priority must be a positive integer")
	// ErrInvalidProgress is returned when progress falls outside [0,1].
	ErrInvalidProgress = errors.New("taskhive: progress must be within [0,1]")
	// ErrInvalidProfile is returned for an empty profile name.
	ErrInvalidProfile = errors.New("taskhive: profile must not be empty")
	// ErrInvalidKey is returned when a bag key is empty.
	ErrInvalidKey = errors.New("taskhive: bag keys must be non-empty strings")
	// ErrInvalidValue is returned when a bag value is not a scalar.
	ErrInvalidValue = errors.New("taskhive: bag values must be scalars")
	// ErrMissingOption is returned when a job's required option is absent.
	ErrMissingOption = errors.New("taskhive: missing required option")
	// ErrMissingParam is returned when a job's required parameter is absent.
	ErrMissingParam = errors.New("taskhive: missing required parameter")
	// ErrNilJob is returned when a task is constructed without a job.
	ErrNilJob = errors.New("taskhive: job is nil")
	// ErrInvalidQuery is returned by ListTasks for an unknown sort field or order.
	ErrInvalidQuery = errors.New("taskhive: invalid list query")
)

// Lookup errors.
var (
	// ErrTaskNotFound is returned when a task id resolves to nothing.
	ErrTaskNotFound = errors.New("taskhive: task not found")
	// ErrNoTask is returned by GetNextTask when nothing is eligible.
	ErrNoTask = errors.New("taskhive: no eligible task")
	// ErrKeyNotFound is returned by a Store when a blob key does not exist.
	ErrKeyNotFound = errors.New("taskhive: key not found")
)

// Policy errors. They signal contract violations and are fatal to the operation.
var (
	// ErrNotReservable is returned when reserving a task that is neither waiting nor running.
	ErrNotReservable = errors.New("taskhive: task is not in a reservable state")
	// ErrTaskTaken is returned when another worker claimed the task first.
	ErrTaskTaken = errors.New("taskhive: task already claimed")
	// ErrUnknownAction is returned by Flag for an unrecognized action.
	ErrUnknownAction = errors.New("taskhive: unknown flag action")
	// ErrInvalidTransition is returned when Update is asked for a transition the engine does not perform.
	ErrInvalidTransition = errors.New("taskhive: invalid status transition")
	// ErrNotPersisted is returned when an operation needs a store id the task does not have yet.
	ErrNotPersisted = errors.New("taskhive: task has not been persisted")
	// ErrUnknownJob is recorded when a worker has no factory for a task's job type.
	ErrUnknownJob = errors.New("taskhive: unknown job type")
)

func wrapKey(err error, key string) error {
	return fmt.Errorf("%w: %s", err, key)
}
