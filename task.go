package taskhive

import (
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultProfile is used when a task is created without a profile.
	DefaultProfile = "default"
	// DefaultPriority is used when a task is created without a priority.
	DefaultPriority = 1
)

// Task represents a unit of work: a job reference plus its scheduling metadata.
// Parent and child links are plain id/tag references; a task never owns its parent.
type Task struct {
	// ID is assigned by the store on first enqueue; zero means not yet persisted.
	ID int64
	// ParentID references the enclosing task, zero when there is none.
	ParentID int64
	// Tag identifies the task inside its parent's children collection. It is independent of ID.
	Tag string
	// JobType is the registry identifier of the job.
	JobType string
	// Options configure the job.
	Options Bag
	// Params are the job's input values.
	Params Bag
	// CreatedAt is set at construction and never changes.
	CreatedAt time.Time
	// ScheduledAt holds the task out of the active queue while in the future.
	ScheduledAt time.Time
	// StartedAt is stamped when the task is reserved for execution.
	StartedAt time.Time

	status   Status
	priority int
	profile  string
	progress float64
	job      Job
	children []*Task

	// stored is the status last written to the store.
	stored Status
}

// TaskOption configures a task at construction time.
type TaskOption func(*Task) error

// WithProfile sets the routing profile.
func WithProfile(p string) TaskOption {
	return func(t *Task) error { return t.SetProfile(p) }
}

// WithPriority sets the priority; it must be a positive integer.
func WithPriority(p int) TaskOption {
	return func(t *Task) error { return t.SetPriority(p) }
}

// WithOptions sets job options.
func WithOptions(m map[string]any) TaskOption {
	return func(t *Task) error {
		for k, v := range m {
			if err := t.Options.Set(k, v); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithParams sets job parameters.
func WithParams(m map[string]any) TaskOption {
	return func(t *Task) error {
		for k, v := range m {
			if err := t.Params.Set(k, v); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithScheduledAt delays the task until at.
func WithScheduledAt(at time.Time) TaskOption {
	return func(t *Task) error {
		t.ScheduledAt = truncMillis(at)
		return nil
	}
}

// NewTask wraps a job into a pending task. Options and parameters are validated against
// the keys the job declares as required.
func NewTask(job Job, opts ...TaskOption) (*Task, error) {
	if job == nil {
		return nil, ErrNilJob
	}
	t := &Task{
		Tag:       uuid.NewString(),
		JobType:   job.Type(),
		Options:   Bag{},
		Params:    Bag{},
		CreatedAt: truncMillis(time.Now()),
		status:    StatusPending,
		priority:  DefaultPriority,
		profile:   DefaultProfile,
		job:       job,
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	if err := checkRequirements(job, t.Options, t.Params); err != nil {
		return nil, err
	}
	return t, nil
}

// Job returns the job instance, nil for a task decoded from the store.
func (t *Task) Job() Job { return t.job }

// SetJob attaches a job instance after validating the task against it.
func (t *Task) SetJob(j Job) error {
	if j == nil {
		return ErrNilJob
	}
	if err := checkRequirements(j, t.Options, t.Params); err != nil {
		return err
	}
	t.job = j
	t.JobType = j.Type()
	return nil
}

// SetOption validates and stores a job option.
func (t *Task) SetOption(k string, v any) error { return t.Options.Set(k, v) }

// SetParam validates and stores a job parameter.
func (t *Task) SetParam(k string, v any) error { return t.Params.Set(k, v) }

// Status returns the current status.
func (t *Task) Status() Status { return t.status }

// SetStatus changes the in-memory status. Persisting it is the queue's job.
func (t *Task) SetStatus(s Status) error {
	if !s.Valid() {
		return ErrInvalidStatus
	}
	t.status = s
	return nil
}

// Priority returns the priority.
func (t *Task) Priority() int { return t.priority }

// SetPriority sets the priority; higher values are fetched first.
func (t *Task) SetPriority(p int) error {
	if p < 1 {
		return ErrInvalidPriority
	}
	t.priority = p
	return nil
}

// Profile returns the routing profile.
func (t *Task) Profile() string { return t.profile }

// SetProfile sets the routing profile.
func (t *Task) SetProfile(p string) error {
	if p == "" {
		return ErrInvalidProfile
	}
	t.profile = p
	return nil
}

// OwnProgress is the task's progress excluding its children.
func (t *Task) OwnProgress() float64 { return t.progress }

// SetProgress sets the task's own progress.
func (t *Task) SetProgress(p float64) error {
	if p < 0 || p > 1 || math.IsNaN(p) {
		return ErrInvalidProgress
	}
	t.progress = p
	return nil
}

// Progress reports the mean of the task's own progress and its direct children's progress,
// rounded up to a whole percent.
func (t *Task) Progress() float64 {
	if len(t.children) == 0 {
		return t.progress
	}
	sum := t.progress
	for _, c := range t.children {
		sum += c.Progress()
	}
	mean := sum / float64(len(t.children)+1)
	return math.Min(1, math.Ceil(mean*100-1e-9)/100)
}

// AddChild attaches c keyed by its tag. A child with a known tag is replaced in place.
func (t *Task) AddChild(c *Task) {
	if c == nil {
		return
	}
	if c.Tag == "" {
		c.Tag = uuid.NewString()
	}
	c.ParentID = t.ID
	for i, ex := range t.children {
		if ex.Tag == c.Tag {
			t.children[i] = c
			return
		}
	}
	t.children = append(t.children, c)
}

// UpdateChild replaces the child carrying c's tag. It reports false if there is none.
func (t *Task) UpdateChild(c *Task) bool {
	if c == nil {
		return false
	}
	for i, ex := range t.children {
		if ex.Tag == c.Tag {
			t.children[i] = c
			return true
		}
	}
	return false
}

// RemoveChild detaches the child with the given tag.
func (t *Task) RemoveChild(tag string) bool {
	for i, ex := range t.children {
		if ex.Tag == tag {
			t.children = append(t.children[:i], t.children[i+1:]...)
			return true
		}
	}
	return false
}

// Child returns the child with the given tag.
func (t *Task) Child(tag string) (*Task, bool) {
	for _, c := range t.children {
		if c.Tag == tag {
			return c, true
		}
	}
	return nil, false
}

// Children returns the direct children in insertion order.
func (t *Task) Children() []*Task {
	out := make([]*Task, len(t.children))
	copy(out, t.children)
	return out
}

// CountChildren counts all descendants.
func (t *Task) CountChildren() int {
	n := 0
	for _, c := range t.children {
		n += 1 + c.CountChildren()
	}
	return n
}

// Clone returns a deep copy of the task and its children. The job instance is shared.
func (t *Task) Clone() *Task {
	cp := *t
	cp.Options = t.Options.Clone()
	cp.Params = t.Params.Clone()
	cp.children = nil
	for _, c := range t.children {
		cp.children = append(cp.children, c.Clone())
	}
	return &cp
}

func truncMillis(at time.Time) time.Time {
	if at.IsZero() {
		return time.Time{}
	}
	return time.UnixMilli(at.UnixMilli())
}
