package taskhive

// Status is a task lifecycle state.
// Use the exported constants instead of raw strings to avoid typos.
type Status string

const (
	// StatusPending is a task not yet submitted, or held in the scheduled set.
	StatusPending Status = "pending"
	// StatusWaiting is a task eligible for pickup.
	StatusWaiting Status = "waiting"
	// StatusRunning is a task reserved by a worker.
	StatusRunning Status = "running"
	// StatusSuccess is a task whose job returned normally; it may still have live children.
	StatusSuccess Status = "success"
	// StatusFailed is a task whose job returned an error.
	StatusFailed Status = "failed"
	// StatusFinished is a task whose whole subtree completed.
	StatusFinished Status = "finished"
)

// AllStatuses lists every valid status in lifecycle order.
var AllStatuses = []Status{StatusPending, StatusWaiting, StatusRunning, StatusSuccess, StatusFailed, StatusFinished}

// String returns the raw string value of the status.
func (s Status) String() string { return string(s) }

// Valid reports whether s is one of the canonical statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusWaiting, StatusRunning, StatusSuccess, StatusFailed, StatusFinished:
		return true
	}
	return false
}

// ParseStatus converts a string into a Status, returning ErrInvalidStatus for unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", ErrInvalidStatus
	}
	return st, nil
}
