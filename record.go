package taskhive

import "time"

// record is the persisted representation of a task, exchanged with the store.
type record struct {
	ID          int64     `json:"id,omitempty"`
	ParentID    int64     `json:"parent_id,omitempty"`
	Tag         string    `json:"tag"`
	Job         jobRecord `json:"job"`
	Status      Status    `json:"status"`
	Priority    int       `json:"priority"`
	Profile     string    `json:"profile"`
	Progress    float64   `json:"progress"`
	CreatedAt   int64     `json:"created_at,omitempty"`
	ScheduledAt int64     `json:"scheduled_at,omitempty"`
	StartedAt   int64     `json:"started_at,omitempty"`
	Children    []record  `json:"children,omitempty"`
}

type jobRecord struct {
	Type    string         `json:"type"`
	Options map[string]any `json:"options,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
}

func (t *Task) record() record {
	r := record{
		ID:          t.ID,
		ParentID:    t.ParentID,
		Tag:         t.Tag,
		Job:         jobRecord{Type: t.JobType, Options: t.Options, Params: t.Params},
		Status:      t.status,
		Priority:    t.priority,
		Profile:     t.profile,
		Progress:    t.progress,
		CreatedAt:   unixMillis(t.CreatedAt),
		ScheduledAt: unixMillis(t.ScheduledAt),
		StartedAt:   unixMillis(t.StartedAt),
	}
	for _, c := range t.children {
		r.Children = append(r.Children, c.record())
	}
	return r
}

func (r record) task() (*Task, error) {
	st, err := ParseStatus(string(r.Status))
	if err != nil {
		return nil, err
	}
	opts, err := NewBag(r.Job.Options)
	if err != nil {
		return nil, err
	}
	params, err := NewBag(r.Job.Params)
	if err != nil {
		return nil, err
	}
	t := &Task{
		ID:          r.ID,
		ParentID:    r.ParentID,
		Tag:         r.Tag,
		JobType:     r.Job.Type,
		Options:     opts,
		Params:      params,
		CreatedAt:   fromMillis(r.CreatedAt),
		ScheduledAt: fromMillis(r.ScheduledAt),
		StartedAt:   fromMillis(r.StartedAt),
		status:      st,
		priority:    r.Priority,
		profile:     r.Profile,
		progress:    r.Progress,
		stored:      st,
	}
	for _, cr := range r.Children {
		c, err := cr.task()
		if err != nil {
			return nil, err
		}
		t.children = append(t.children, c)
	}
	return t, nil
}

// MarshalJSON exports the task in its persisted representation.
func (t *Task) MarshalJSON() ([]byte, error) {
	return (&JSONEncoder{}).Encode(t.record())
}

// UnmarshalJSON imports a task from its persisted representation.
// The job instance is not restored; resolve it through a Registry.
func (t *Task) UnmarshalJSON(data []byte) error {
	var r record
	if err := (&JSONEncoder{}).Decode(data, &r); err != nil {
		return err
	}
	nt, err := r.task()
	if err != nil {
		return err
	}
	*t = *nt
	return nil
}

func encodeTask(enc Encoder, t *Task) ([]byte, error) {
	return enc.Encode(t.record())
}

func decodeTask(enc Encoder, data []byte) (*Task, error) {
	var r record
	if err := enc.Decode(data, &r); err != nil {
		return nil, err
	}
	return r.task()
}

func unixMillis(at time.Time) int64 {
	if at.IsZero() {
		return 0
	}
	return at.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
