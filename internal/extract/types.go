// Package extract turns raw user text into a typed intent plus the
// entities the text mentions. It never talks to the remote service;
// anaphora ("it", "that task") resolve against conversation hints only.
package extract

import "time"

// Intent is the closed set of things a message can ask for.
type Intent string

const (
	IntentCreate  Intent = "create"
	IntentRead    Intent = "read"
	IntentUpdate  Intent = "update"
	IntentDelete  Intent = "delete"
	IntentBatch   Intent = "batch"
	IntentClarify Intent = "clarify_needed"
)

// EntityType tags the closed set of entity variants.
type EntityType string

const (
	EntityTitle     EntityType = "title"
	EntityDate      EntityType = "date"
	EntityAssignee  EntityType = "assignee"
	EntityPriority  EntityType = "priority"
	EntityObjectRef EntityType = "object_reference"
)

// RefKind identifies what remote object a reference points at.
type RefKind string

const (
	RefTask RefKind = "task"
	RefPlan RefKind = "plan"
)

// Reference is an extracted pointer to a remote object. ID is set when
// conversation hints resolved the reference; otherwise Description holds
// the free-text description for the resolver to match against.
type Reference struct {
	Kind        RefKind
	ID          string
	Description string
}

// Entity is one tagged extraction. Exactly the field matching Type is
// meaningful; the rest are zero.
type Entity struct {
	Type       EntityType
	RawSpan    string
	Title      string
	Date       *time.Time
	AssigneeID string
	Priority   int
	Ref        *Reference
}

// Result is the outcome of one extraction pass.
type Result struct {
	Intent     Intent
	Confidence float64
	Entities   []Entity
	// Complete marks an update that drives the target to done.
	Complete bool
	// Clauses carries the ordered sub-texts of a batch message so the
	// resolver can expand each into its own command.
	Clauses []string
}

// ContextHints is the slice of conversation state extraction may read.
type ContextHints struct {
	LastPlanID string
	LastTaskID string
}

// First returns the first entity of the given type, if any.
func (r Result) First(t EntityType) (Entity, bool) {
	for _, e := range r.Entities {
		if e.Type == t {
			return e, true
		}
	}
	return Entity{}, false
}

// Refs returns all object references of the given kind.
func (r Result) Refs(kind RefKind) []Reference {
	var refs []Reference
	for _, e := range r.Entities {
		if e.Type == EntityObjectRef && e.Ref != nil && e.Ref.Kind == kind {
			refs = append(refs, *e.Ref)
		}
	}
	return refs
}
