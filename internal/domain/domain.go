package domain

import "time"

// Tab is a named, ordered collection of tasks.
type Tab struct {
	Ref        Ref       `json:"id"`
	Title      string    `json:"title"`
	OrderIndex int       `json:"order_index"`
	CreatedAt  time.Time `json:"created_at" format:"date-time"`
}

func (t Tab) Key() Ref   { return t.Ref }
func (t Tab) Order() int { return t.OrderIndex }

func (t Tab) WithOrder(k int) Tab {
	t.OrderIndex = k
	return t
}

func (t Tab) WithRef(r Ref) Tab {
	t.Ref = r
	return t
}

func (t Tab) Clone() Tab { return t }

// Task is an entry in a tab. DeletedAt marks a soft delete; CompletedAt is
// set exactly when IsCompleted is true.
type Task struct {
	Ref             Ref        `json:"id"`
	TabRef          *Ref       `json:"tab_id,omitempty"`
	Text            string     `json:"text"`
	OrderIndex      int        `json:"order_index"`
	IsCompleted     bool       `json:"is_completed"`
	CompletedAt     *time.Time `json:"completed_at,omitempty" format:"date-time"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty" format:"date-time"`
	LastParentTitle string     `json:"last_parent_title,omitempty"`
	CreatedAt       time.Time  `json:"created_at" format:"date-time"`
}

func (t Task) Key() Ref   { return t.Ref }
func (t Task) Order() int { return t.OrderIndex }

func (t Task) WithOrder(k int) Task {
	t.OrderIndex = k
	return t
}

func (t Task) WithRef(r Ref) Task {
	t.Ref = r
	return t
}

// Clone copies the pointer fields so snapshots never alias live state.
func (t Task) Clone() Task {
	if t.TabRef != nil {
		t.TabRef = RefPtr(*t.TabRef)
	}
	t.CompletedAt = cloneTime(t.CompletedAt)
	t.DeletedAt = cloneTime(t.DeletedAt)
	return t
}

// InTab reports whether the task belongs to tab r.
func (t Task) InTab(r Ref) bool {
	return t.TabRef != nil && *t.TabRef == r
}

func (t Task) Deleted() bool { return t.DeletedAt != nil }

// WithCompletion derives CompletedAt from done using the supplied clock reading.
func (t Task) WithCompletion(done bool, at time.Time) Task {
	t.IsCompleted = done
	if done {
		t.CompletedAt = &at
	} else {
		t.CompletedAt = nil
	}
	return t
}

// TabFields are the inputs of a remote tab create.
type TabFields struct {
	Title       string
	OrderIndex  int
	CreatedAt   time.Time
	ClientToken string
}

// TabPatch lists the tab fields an update touches; nil means unchanged.
type TabPatch struct {
	Title      *string
	OrderIndex *int
}

// TaskFields are the inputs of a remote task create.
type TaskFields struct {
	TabID       *int64
	Text        string
	OrderIndex  int
	CreatedAt   time.Time
	ClientToken string
}

// Completion carries a completion toggle with its client-side timestamp.
type Completion struct {
	IsCompleted bool
	CompletedAt *time.Time
}

// TaskPatch lists the task fields an update touches; nil means unchanged.
type TaskPatch struct {
	Text       *string
	OrderIndex *int
	Completion *Completion
}

// Event is an entry of the remote store's append-only change log.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	OwnerID    string `json:"owner_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}

// APIKey is a hashed credential that authenticates an owner.
type APIKey struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
