// Package assistant is the orchestrator: it receives a user message,
// runs extraction and resolution, executes the resulting commands
// against the planning service, and keeps the conversation context
// current. Each request moves through received, extracted, resolved,
// executing, and ends completed, clarifying, or failed.
package assistant

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/taskweave/internal/convo"
	"github.com/louisbranch/taskweave/internal/extract"
	"github.com/louisbranch/taskweave/internal/planner"
	apperrors "github.com/louisbranch/taskweave/internal/platform/errors"
	"github.com/louisbranch/taskweave/internal/resolver"
)

// State is the terminal state of one handled message.
type State string

const (
	StateCompleted  State = "completed"
	StateClarifying State = "clarifying"
	StateFailed     State = "failed"
)

// CommandOutcome reports one executed command in a structured reply.
type CommandOutcome struct {
	Operation resolver.Operation `json:"operation"`
	PlanID    string             `json:"plan_id,omitempty"`
	TaskID    string             `json:"task_id,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// Reply is the structured result of one handled message.
type Reply struct {
	Text          string                  `json:"text"`
	State         State                   `json:"state"`
	Commands      []CommandOutcome        `json:"commands,omitempty"`
	Clarification *resolver.Clarification `json:"clarification,omitempty"`
}

// Planner is the slice of the remote client the orchestrator executes
// against.
type Planner interface {
	ListPlans(ctx context.Context, userID string) ([]planner.Plan, error)
	ListTasks(ctx context.Context, userID, planID string) ([]planner.Task, error)
	GetTask(ctx context.Context, userID, taskID string) (planner.Task, error)
	CreateTask(ctx context.Context, userID string, input planner.CreateTaskInput, idempotencyKey string) (planner.Task, error)
	UpdateTask(ctx context.Context, userID, taskID, etag string, input planner.UpdateTaskInput) (planner.Task, error)
	DeleteTask(ctx context.Context, userID, taskID, etag, planID string) error
}

// Orchestrator wires the pipeline together.
type Orchestrator struct {
	planner   Planner
	extractor *extract.Extractor
	resolver  *resolver.Resolver
	contexts  *convo.Store
	logger    *log.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an Orchestrator.
func New(p Planner, extractor *extract.Extractor, r *resolver.Resolver, contexts *convo.Store, logger *log.Logger) (*Orchestrator, error) {
	if p == nil {
		return nil, fmt.Errorf("planner is required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if r == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if contexts == nil {
		return nil, fmt.Errorf("context store is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		planner:   p,
		extractor: extractor,
		resolver:  r,
		contexts:  contexts,
		logger:    logger,
		locks:     map[string]*sync.Mutex{},
	}, nil
}

// sessionLock serializes turns within one session. Different sessions
// proceed independently.
func (o *Orchestrator) sessionLock(sessionID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[sessionID] = lock
	}
	return lock
}

// HandleMessage processes one user message end to end and returns the
// reply. Errors are folded into the reply's state and text; the error
// return is reserved for infrastructure failures (storage unreachable).
func (o *Orchestrator) HandleMessage(ctx context.Context, sessionID, userID, text string) (Reply, error) {
	lock := o.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	conversation, err := o.contexts.Load(ctx, sessionID, userID)
	if err != nil {
		return Reply{}, err
	}

	// An unfinished batch from a crashed or cancelled turn resumes
	// before anything else.
	if conversation.Batch != nil && conversation.Batch.Next < len(conversation.Batch.Commands) {
		return o.resumeBatch(ctx, &conversation, text)
	}
	conversation.Batch = nil

	if conversation.Pending != nil {
		return o.handleAnswer(ctx, &conversation, text)
	}

	return o.handleFresh(ctx, &conversation, text)
}

// handleFresh runs the full pipeline on a new message.
func (o *Orchestrator) handleFresh(ctx context.Context, conversation *convo.Context, text string) (Reply, error) {
	hints := extract.ContextHints{
		LastPlanID: conversation.LastPlanID,
		LastTaskID: conversation.LastTaskID,
	}

	result, err := o.extractor.Extract(ctx, text, hints)
	if err != nil {
		return o.failed(ctx, conversation, "extract", err)
	}

	resolution, err := o.resolver.Resolve(ctx, conversation.UserID, result, hints)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeAmbiguousReference) {
			return o.clarify(ctx, conversation, resolver.Clarification{
				Question: "Which task are you referring to? Mention it by name.",
			})
		}
		return o.failed(ctx, conversation, "resolve", err)
	}
	if resolution.Clarification != nil {
		return o.clarify(ctx, conversation, *resolution.Clarification)
	}

	if len(resolution.Commands) > 1 {
		conversation.Batch = &convo.BatchState{Commands: resolution.Commands}
		if err := o.contexts.Save(ctx, *conversation); err != nil {
			return Reply{}, err
		}
		return o.runBatch(ctx, conversation)
	}
	return o.runCommands(ctx, conversation, resolution.Commands)
}

// handleAnswer treats the message as the answer to the open
// clarification.
func (o *Orchestrator) handleAnswer(ctx context.Context, conversation *convo.Context, text string) (Reply, error) {
	pending := *conversation.Pending

	if command, ok := resolver.Answer(pending.Clarification, text); ok {
		conversation.Pending = nil
		return o.runCommands(ctx, conversation, []resolver.Command{command})
	}

	if len(pending.Clarification.Candidates) > 0 {
		// The reply didn't pick a candidate; ask again, keeping the
		// clarification open.
		return Reply{
			Text:          pending.Clarification.Question + " Reply with a number or the exact name.",
			State:         StateClarifying,
			Clarification: &pending.Clarification,
		}, nil
	}

	// An open-ended question ("which plan?"): fold the answer into a
	// fresh pass with the clarification cleared.
	conversation.Pending = nil
	if err := o.contexts.Save(ctx, *conversation); err != nil {
		return Reply{}, err
	}
	return o.handleFresh(ctx, conversation, text)
}

// clarify persists the open question so the next message, possibly
// handled by another instance, is read as its answer.
func (o *Orchestrator) clarify(ctx context.Context, conversation *convo.Context, clarification resolver.Clarification) (Reply, error) {
	conversation.Pending = &convo.Pending{Clarification: clarification, AskedAt: time.Now()}
	if err := o.contexts.Save(ctx, *conversation); err != nil {
		return Reply{}, err
	}
	text := clarification.Question
	if len(clarification.Candidates) > 0 {
		var b strings.Builder
		b.WriteString(text)
		for i, candidate := range clarification.Candidates {
			fmt.Fprintf(&b, "\n%d. %s", i+1, candidate.Label)
		}
		text = b.String()
	}
	return Reply{Text: text, State: StateClarifying, Clarification: &clarification}, nil
}

// failed logs the typed error and maps it to a user-facing reply.
func (o *Orchestrator) failed(ctx context.Context, conversation *convo.Context, op string, err error) (Reply, error) {
	o.logger.Printf("session=%s op=%s code=%s: %v", conversation.SessionID, op, apperrors.GetCode(err), err)
	if saveErr := o.contexts.Save(ctx, *conversation); saveErr != nil {
		return Reply{}, saveErr
	}
	return Reply{Text: userMessage(err), State: StateFailed}, nil
}
