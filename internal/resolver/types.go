// Package resolver maps an extracted intent and its entities onto
// concrete remote operations. It binds free-text object references to
// ids, asking for clarification instead of guessing whenever more than
// one candidate matches.
package resolver

import "time"

// Operation is the closed set of remote operations a command can carry.
type Operation string

const (
	OpCreateTask   Operation = "create_task"
	OpListPlans    Operation = "list_plans"
	OpListTasks    Operation = "list_tasks"
	OpUpdateTask   Operation = "update_task"
	OpCompleteTask Operation = "complete_task"
	OpDeleteTask   Operation = "delete_task"
)

// Params carries the resolved mutation payload. Nil pointer fields are
// left untouched by the remote service.
type Params struct {
	Title           string     `json:"title,omitempty"`
	DueAt           *time.Time `json:"due_at,omitempty"`
	AssigneeIDs     []string   `json:"assignee_ids,omitempty"`
	Priority        *int       `json:"priority,omitempty"`
	PercentComplete *int       `json:"percent_complete,omitempty"`
}

// Command is one fully-bound remote operation. TargetID is set for
// task-scoped operations; PlanID scopes creates and listings. The
// idempotency key makes re-execution after a confirmed success safe.
type Command struct {
	Operation      Operation `json:"operation"`
	PlanID         string    `json:"plan_id,omitempty"`
	TargetID       string    `json:"target_id,omitempty"`
	Params         Params    `json:"params"`
	IdempotencyKey string    `json:"idempotency_key"`
}

// Candidate is one possible binding for an ambiguous reference.
type Candidate struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Clarification asks the user to pick before any mutation is attempted.
// Base, when present, is the command the answer completes.
type Clarification struct {
	Question   string      `json:"question"`
	Candidates []Candidate `json:"candidates,omitempty"`
	Base       *Command    `json:"base,omitempty"`
}

// Resolution is either a list of commands to execute in order, or a
// clarification request, never both.
type Resolution struct {
	Commands      []Command
	Clarification *Clarification
}
