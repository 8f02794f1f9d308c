package resolver

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/louisbranch/taskweave/internal/extract"
	"github.com/louisbranch/taskweave/internal/planner"
	apperrors "github.com/louisbranch/taskweave/internal/platform/errors"
)

// Catalog is the read-only slice of the planner client the resolver
// needs to bind references to ids.
type Catalog interface {
	ListPlans(ctx context.Context, userID string) ([]planner.Plan, error)
	ListTasks(ctx context.Context, userID, planID string) ([]planner.Task, error)
}

// maxPlanScan bounds how many plans an unscoped task search walks.
const maxPlanScan = 10

// Resolver binds extractions to commands.
type Resolver struct {
	catalog   Catalog
	extractor *extract.Extractor
	newKey    func() string
}

// New creates a Resolver. The extractor re-runs on batch clauses.
func New(catalog Catalog, extractor *extract.Extractor) (*Resolver, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	return &Resolver{catalog: catalog, extractor: extractor, newKey: uuid.NewString}, nil
}

// Resolve maps one extraction to commands or a clarification. Zero
// candidate matches for a reference is a not-found error; more than one
// is a clarification, never a guess.
func (r *Resolver) Resolve(ctx context.Context, userID string, result extract.Result, hints extract.ContextHints) (Resolution, error) {
	switch result.Intent {
	case extract.IntentBatch:
		return r.resolveBatch(ctx, userID, result, hints)
	case extract.IntentClarify:
		return Resolution{Clarification: &Clarification{
			Question: "I didn't understand that. Try something like \"create a task called Review due Friday\".",
		}}, nil
	case extract.IntentCreate:
		return r.resolveCreate(ctx, userID, result, hints)
	case extract.IntentRead:
		return r.resolveRead(ctx, userID, result, hints)
	case extract.IntentUpdate, extract.IntentDelete:
		return r.resolveMutation(ctx, userID, result, hints)
	}
	return Resolution{}, apperrors.New(apperrors.CodeUnknown, fmt.Sprintf("unhandled intent %q", result.Intent))
}

// resolveBatch expands each clause into its own command, in clause
// order. A clause that needs clarification stops the expansion; nothing
// executes until every clause is unambiguous.
func (r *Resolver) resolveBatch(ctx context.Context, userID string, result extract.Result, hints extract.ContextHints) (Resolution, error) {
	var commands []Command
	for _, clause := range result.Clauses {
		clauseResult, err := r.extractor.Extract(ctx, clause, hints)
		if err != nil {
			return Resolution{}, err
		}
		if clauseResult.Intent == extract.IntentBatch {
			return Resolution{}, apperrors.New(apperrors.CodeValidation, "nested batch clause")
		}
		resolution, err := r.Resolve(ctx, userID, clauseResult, hints)
		if err != nil {
			return Resolution{}, err
		}
		if resolution.Clarification != nil {
			return resolution, nil
		}
		commands = append(commands, resolution.Commands...)
	}
	return Resolution{Commands: commands}, nil
}

func (r *Resolver) resolveCreate(ctx context.Context, userID string, result extract.Result, hints extract.ContextHints) (Resolution, error) {
	title, ok := result.First(extract.EntityTitle)
	if !ok {
		return Resolution{Clarification: &Clarification{
			Question: "What should the task be called?",
		}}, nil
	}

	planID, clarification, err := r.bindPlan(ctx, userID, result, hints)
	if err != nil {
		return Resolution{}, err
	}
	if clarification != nil {
		clarification.Base = &Command{
			Operation:      OpCreateTask,
			Params:         paramsFrom(result, title.Title),
			IdempotencyKey: r.newKey(),
		}
		return Resolution{Clarification: clarification}, nil
	}

	return Resolution{Commands: []Command{{
		Operation:      OpCreateTask,
		PlanID:         planID,
		Params:         paramsFrom(result, title.Title),
		IdempotencyKey: r.newKey(),
	}}}, nil
}

func (r *Resolver) resolveRead(ctx context.Context, userID string, result extract.Result, hints extract.ContextHints) (Resolution, error) {
	planID, clarification, err := r.bindPlan(ctx, userID, result, hints)
	if err != nil {
		return Resolution{}, err
	}
	if clarification != nil {
		// Listings without a plan scope fall back to listing plans.
		return Resolution{Commands: []Command{{Operation: OpListPlans, IdempotencyKey: r.newKey()}}}, nil
	}
	return Resolution{Commands: []Command{{
		Operation:      OpListTasks,
		PlanID:         planID,
		IdempotencyKey: r.newKey(),
	}}}, nil
}

func (r *Resolver) resolveMutation(ctx context.Context, userID string, result extract.Result, hints extract.ContextHints) (Resolution, error) {
	operation := OpUpdateTask
	if result.Intent == extract.IntentDelete {
		operation = OpDeleteTask
	} else if result.Complete {
		operation = OpCompleteTask
	}

	targetID, clarification, err := r.bindTask(ctx, userID, result, hints)
	if err != nil {
		return Resolution{}, err
	}
	if clarification != nil {
		clarification.Base = &Command{
			Operation:      operation,
			Params:         mutationParams(result),
			IdempotencyKey: r.newKey(),
		}
		return Resolution{Clarification: clarification}, nil
	}

	command := Command{
		Operation:      operation,
		TargetID:       targetID,
		Params:         mutationParams(result),
		IdempotencyKey: r.newKey(),
	}
	if operation == OpUpdateTask && emptyParams(command.Params) {
		// An update with nothing to change is a misread, not a no-op.
		return Resolution{Clarification: &Clarification{
			Question: "What would you like to change about it?",
		}}, nil
	}
	return Resolution{Commands: []Command{command}}, nil
}

// bindPlan resolves the plan scope of a command: an explicit plan
// reference wins, then the conversation's last plan. No scope at all is
// a clarification listing the user's plans.
func (r *Resolver) bindPlan(ctx context.Context, userID string, result extract.Result, hints extract.ContextHints) (string, *Clarification, error) {
	refs := result.Refs(extract.RefPlan)
	if len(refs) == 0 {
		if hints.LastPlanID != "" {
			return hints.LastPlanID, nil, nil
		}
		return "", &Clarification{Question: "Which plan is that for?"}, nil
	}

	ref := refs[0]
	if ref.ID != "" {
		return ref.ID, nil, nil
	}
	if ref.Description == "" {
		if hints.LastPlanID != "" {
			return hints.LastPlanID, nil, nil
		}
		return "", &Clarification{Question: "Which plan do you mean?"}, nil
	}

	plans, err := r.catalog.ListPlans(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	var matches []Candidate
	for _, plan := range plans {
		if containsFold(plan.Title, ref.Description) {
			matches = append(matches, Candidate{ID: plan.ID, Label: plan.Title})
		}
	}
	switch len(matches) {
	case 0:
		return "", nil, apperrors.New(apperrors.CodeNotFound,
			fmt.Sprintf("no plan matching %q", ref.Description))
	case 1:
		return matches[0].ID, nil, nil
	}
	return "", &Clarification{
		Question:   fmt.Sprintf("I found %d plans matching %q. Which one?", len(matches), ref.Description),
		Candidates: matches,
	}, nil
}

// bindTask resolves the task a mutation targets. An id from the
// conversation binds silently; a description is matched against task
// titles in scope; no reference at all escalates rather than guessing.
func (r *Resolver) bindTask(ctx context.Context, userID string, result extract.Result, hints extract.ContextHints) (string, *Clarification, error) {
	refs := result.Refs(extract.RefTask)
	if len(refs) == 0 {
		return "", nil, apperrors.New(apperrors.CodeAmbiguousReference, "no task reference in message")
	}

	ref := refs[0]
	if ref.ID != "" {
		return ref.ID, nil, nil
	}
	if ref.Description == "" {
		// A bare pronoun with no conversation history.
		return "", nil, apperrors.New(apperrors.CodeAmbiguousReference, "pronoun with no prior task reference")
	}

	candidates, err := r.taskCandidates(ctx, userID, ref.Description, result, hints)
	if err != nil {
		return "", nil, err
	}
	switch len(candidates) {
	case 0:
		return "", nil, apperrors.New(apperrors.CodeNotFound,
			fmt.Sprintf("no task matching %q", ref.Description))
	case 1:
		return candidates[0].ID, nil, nil
	}
	return "", &Clarification{
		Question:   fmt.Sprintf("I found %d tasks matching %q. Which one?", len(candidates), ref.Description),
		Candidates: candidates,
	}, nil
}

// taskCandidates matches a description against task titles, searching
// the referenced or last-used plan first and falling back to a bounded
// scan of the user's plans.
func (r *Resolver) taskCandidates(ctx context.Context, userID, description string, result extract.Result, hints extract.ContextHints) ([]Candidate, error) {
	var planIDs []string
	if planID, clarification, err := r.bindPlan(ctx, userID, result, hints); err == nil && clarification == nil {
		planIDs = []string{planID}
	} else {
		plans, listErr := r.catalog.ListPlans(ctx, userID)
		if listErr != nil {
			return nil, listErr
		}
		for i, plan := range plans {
			if i == maxPlanScan {
				break
			}
			planIDs = append(planIDs, plan.ID)
		}
	}

	var candidates []Candidate
	for _, planID := range planIDs {
		tasks, err := r.catalog.ListTasks(ctx, userID, planID)
		if err != nil {
			return nil, err
		}
		for _, task := range tasks {
			if containsFold(task.Title, description) {
				candidates = append(candidates, Candidate{ID: task.ID, Label: task.Title})
			}
		}
	}
	return candidates, nil
}

// Answer completes a clarification from the user's reply: a 1-based
// number or a unique label match picks a candidate. It reports false
// when the reply picks nothing or more than one.
func Answer(clarification Clarification, reply string) (Command, bool) {
	if clarification.Base == nil || len(clarification.Candidates) == 0 {
		return Command{}, false
	}
	reply = strings.TrimSpace(reply)

	if n, err := strconv.Atoi(strings.TrimSuffix(reply, ".")); err == nil {
		if n < 1 || n > len(clarification.Candidates) {
			return Command{}, false
		}
		return bindCandidate(*clarification.Base, clarification.Candidates[n-1]), true
	}

	var matched []Candidate
	for _, candidate := range clarification.Candidates {
		if containsFold(candidate.Label, reply) {
			matched = append(matched, candidate)
		}
	}
	if len(matched) != 1 {
		return Command{}, false
	}
	return bindCandidate(*clarification.Base, matched[0]), true
}

// bindCandidate fills the command slot the clarification left open.
func bindCandidate(base Command, candidate Candidate) Command {
	switch base.Operation {
	case OpCreateTask, OpListTasks:
		base.PlanID = candidate.ID
	default:
		base.TargetID = candidate.ID
	}
	return base
}

func paramsFrom(result extract.Result, title string) Params {
	params := Params{Title: title}
	if date, ok := result.First(extract.EntityDate); ok {
		params.DueAt = date.Date
	}
	if assignee, ok := result.First(extract.EntityAssignee); ok {
		params.AssigneeIDs = []string{assignee.AssigneeID}
	}
	if priority, ok := result.First(extract.EntityPriority); ok {
		p := priority.Priority
		params.Priority = &p
	}
	return params
}

func mutationParams(result extract.Result) Params {
	var params Params
	if title, ok := result.First(extract.EntityTitle); ok {
		params.Title = title.Title
	}
	if date, ok := result.First(extract.EntityDate); ok {
		params.DueAt = date.Date
	}
	if assignee, ok := result.First(extract.EntityAssignee); ok {
		params.AssigneeIDs = []string{assignee.AssigneeID}
	}
	if priority, ok := result.First(extract.EntityPriority); ok {
		p := priority.Priority
		params.Priority = &p
	}
	if result.Complete {
		done := 100
		params.PercentComplete = &done
	}
	return params
}

func emptyParams(p Params) bool {
	return p.Title == "" && p.DueAt == nil && len(p.AssigneeIDs) == 0 &&
		p.Priority == nil && p.PercentComplete == nil
}

// containsFold reports a case-insensitive substring match.
func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
