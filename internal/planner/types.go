// Package planner is the typed client for the remote planning service:
// plans containing buckets containing tasks, each stamped with an opaque
// concurrency token required on every mutate.
package planner

import "time"

// Plan is a remote plan object.
type Plan struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	OwnerID   string    `json:"ownerId"`
	ETag      string    `json:"etag"`
	CreatedAt time.Time `json:"createdAt"`
}

// Bucket is a remote bucket object grouping tasks within a plan.
type Bucket struct {
	ID     string `json:"id"`
	PlanID string `json:"planId"`
	Name   string `json:"name"`
	ETag   string `json:"etag"`
}

// Priority buckets mirror the remote service's 0-10 scale, where lower
// numbers are more urgent.
const (
	PriorityUrgent    = 1
	PriorityImportant = 3
	PriorityMedium    = 5
	PriorityLow       = 9
)

// Task is a remote task object.
type Task struct {
	ID              string     `json:"id"`
	PlanID          string     `json:"planId"`
	BucketID        string     `json:"bucketId,omitempty"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	AssigneeIDs     []string   `json:"assigneeIds,omitempty"`
	Priority        int        `json:"priority"`
	PercentComplete int        `json:"percentComplete"`
	DueAt           *time.Time `json:"dueAt,omitempty"`
	ETag            string     `json:"etag"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Completed reports whether the remote service considers the task done.
func (t Task) Completed() bool {
	return t.PercentComplete >= 100
}

// ObjectRef pairs a remote object id with the freshest concurrency token
// held for it. Every update and delete requires a ref whose token is no
// older than the last known server state.
type ObjectRef struct {
	ID           string
	ETag         string
	LastSyncedAt time.Time
}

// ChangeOp identifies what happened to a changed object.
type ChangeOp string

const (
	// ChangeCreated marks an object created since the last checkpoint.
	ChangeCreated ChangeOp = "created"
	// ChangeUpdated marks an object updated since the last checkpoint.
	ChangeUpdated ChangeOp = "updated"
	// ChangeDeleted marks an object deleted since the last checkpoint.
	ChangeDeleted ChangeOp = "deleted"
)

// Change is one entry in a delta page. Consumers must tolerate seeing the
// same change more than once; delivery is at-least-once across restarts.
type Change struct {
	Resource string   `json:"resource"`
	Op       ChangeOp `json:"op"`
	ID       string   `json:"id"`
	Task     *Task    `json:"task,omitempty"`
	Plan     *Plan    `json:"plan,omitempty"`
	Bucket   *Bucket  `json:"bucket,omitempty"`
}

// DeltaPage is one page of changes plus the continuation token for the
// next sync. FullSnapshot is set when the previous token had expired
// server-side and the page restarts from a complete snapshot.
type DeltaPage struct {
	Changes      []Change `json:"changes"`
	Token        string   `json:"token"`
	FullSnapshot bool     `json:"fullSnapshot"`
}

// CreatePlanInput holds the fields for a new plan.
type CreatePlanInput struct {
	Title string `json:"title"`
}

// CreateBucketInput holds the fields for a new bucket.
type CreateBucketInput struct {
	PlanID string `json:"planId"`
	Name   string `json:"name"`
}

// CreateTaskInput holds the fields for a new task.
type CreateTaskInput struct {
	PlanID      string     `json:"planId"`
	BucketID    string     `json:"bucketId,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	AssigneeIDs []string   `json:"assigneeIds,omitempty"`
	Priority    int        `json:"priority,omitempty"`
	DueAt       *time.Time `json:"dueAt,omitempty"`
}

// UpdateTaskInput holds a partial task update. Nil fields are left
// untouched by the remote service.
type UpdateTaskInput struct {
	Title           *string    `json:"title,omitempty"`
	Description     *string    `json:"description,omitempty"`
	BucketID        *string    `json:"bucketId,omitempty"`
	AssigneeIDs     []string   `json:"assigneeIds,omitempty"`
	Priority        *int       `json:"priority,omitempty"`
	PercentComplete *int       `json:"percentComplete,omitempty"`
	DueAt           *time.Time `json:"dueAt,omitempty"`
}
