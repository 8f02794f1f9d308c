package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/taskweave/internal/convo"
	"github.com/louisbranch/taskweave/internal/planner"
	apperrors "github.com/louisbranch/taskweave/internal/platform/errors"
	"github.com/louisbranch/taskweave/internal/resolver"
)

// runCommands executes a single-command resolution and saves the
// updated conversation.
func (o *Orchestrator) runCommands(ctx context.Context, conversation *convo.Context, commands []resolver.Command) (Reply, error) {
	var (
		texts    []string
		outcomes []CommandOutcome
	)
	for _, command := range commands {
		text, outcome, err := o.executeOne(ctx, conversation, command)
		if err != nil {
			o.logger.Printf("session=%s op=%s code=%s: %v",
				conversation.SessionID, command.Operation, apperrors.GetCode(err), err)
			outcome.Error = string(apperrors.GetCode(err))
			outcomes = append(outcomes, outcome)
			if saveErr := o.contexts.Save(ctx, *conversation); saveErr != nil {
				return Reply{}, saveErr
			}
			return Reply{
				Text:     strings.Join(append(texts, userMessage(err)), "\n"),
				State:    StateFailed,
				Commands: outcomes,
			}, nil
		}
		texts = append(texts, text)
		outcomes = append(outcomes, outcome)
	}
	if err := o.contexts.Save(ctx, *conversation); err != nil {
		return Reply{}, err
	}
	return Reply{Text: strings.Join(texts, "\n"), State: StateCompleted, Commands: outcomes}, nil
}

// runBatch executes the conversation's batch from its checkpoint.
// Progress is saved after every sub-command, so a crash or cancellation
// resumes rather than restarting or skipping. A typed failure ends the
// batch; completed sub-commands stay completed.
func (o *Orchestrator) runBatch(ctx context.Context, conversation *convo.Context) (Reply, error) {
	batch := conversation.Batch
	var outcomes []CommandOutcome

	for batch.Next < len(batch.Commands) {
		// Cancellation is honored between sub-commands only; an issued
		// remote call always runs to completion. The checkpoint save must
		// outlive the cancelled request context or the batch is lost.
		if err := ctx.Err(); err != nil {
			if saveErr := o.contexts.Save(context.WithoutCancel(ctx), *conversation); saveErr != nil {
				return Reply{}, saveErr
			}
			return Reply{
				Text:     strings.Join(append(append([]string{}, batch.Replies...), "Stopped; I'll pick this up on your next message."), "\n"),
				State:    StateFailed,
				Commands: outcomes,
			}, err
		}

		command := batch.Commands[batch.Next]
		text, outcome, err := o.executeOne(ctx, conversation, command)
		if err != nil {
			o.logger.Printf("session=%s op=%s code=%s: %v",
				conversation.SessionID, command.Operation, apperrors.GetCode(err), err)
			outcome.Error = string(apperrors.GetCode(err))
			outcomes = append(outcomes, outcome)
			done := batch.Next
			total := len(batch.Commands)
			conversation.Batch = nil
			if saveErr := o.contexts.Save(ctx, *conversation); saveErr != nil {
				return Reply{}, saveErr
			}
			summary := fmt.Sprintf("Completed %d of %d steps before a problem: %s", done, total, userMessage(err))
			return Reply{
				Text:     strings.Join(append(append([]string{}, batch.Replies...), summary), "\n"),
				State:    StateFailed,
				Commands: outcomes,
			}, nil
		}

		outcomes = append(outcomes, outcome)
		batch.Replies = append(batch.Replies, text)
		batch.Next++
		if err := o.contexts.Save(ctx, *conversation); err != nil {
			return Reply{}, err
		}
	}

	replies := batch.Replies
	conversation.Batch = nil
	if err := o.contexts.Save(ctx, *conversation); err != nil {
		return Reply{}, err
	}
	return Reply{Text: strings.Join(replies, "\n"), State: StateCompleted, Commands: outcomes}, nil
}

// resumeBatch continues an interrupted batch. "cancel" abandons the
// remaining sub-commands; anything else resumes first, then handles the
// new message.
func (o *Orchestrator) resumeBatch(ctx context.Context, conversation *convo.Context, text string) (Reply, error) {
	if isCancel(text) {
		remaining := len(conversation.Batch.Commands) - conversation.Batch.Next
		conversation.Batch = nil
		if err := o.contexts.Save(ctx, *conversation); err != nil {
			return Reply{}, err
		}
		return Reply{
			Text:  fmt.Sprintf("Cancelled; %d remaining steps were not run.", remaining),
			State: StateCompleted,
		}, nil
	}

	batchReply, err := o.runBatch(ctx, conversation)
	if err != nil || batchReply.State != StateCompleted {
		return batchReply, err
	}
	if strings.TrimSpace(text) == "" {
		return batchReply, nil
	}

	followUp, err := o.handleFresh(ctx, conversation, text)
	if err != nil {
		return Reply{}, err
	}
	followUp.Text = batchReply.Text + "\n" + followUp.Text
	followUp.Commands = append(batchReply.Commands, followUp.Commands...)
	return followUp, nil
}

func isCancel(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "cancel", "stop", "never mind", "nevermind":
		return true
	}
	return false
}

// executeOne runs one command against the planning service and updates
// the conversation's last-referenced objects on success.
func (o *Orchestrator) executeOne(ctx context.Context, conversation *convo.Context, command resolver.Command) (string, CommandOutcome, error) {
	outcome := CommandOutcome{Operation: command.Operation, PlanID: command.PlanID, TaskID: command.TargetID}
	userID := conversation.UserID

	switch command.Operation {
	case resolver.OpListPlans:
		plans, err := o.planner.ListPlans(ctx, userID)
		if err != nil {
			return "", outcome, err
		}
		return formatPlans(plans), outcome, nil

	case resolver.OpListTasks:
		tasks, err := o.planner.ListTasks(ctx, userID, command.PlanID)
		if err != nil {
			return "", outcome, err
		}
		conversation.LastPlanID = command.PlanID
		return formatTasks(tasks), outcome, nil

	case resolver.OpCreateTask:
		input := planner.CreateTaskInput{
			PlanID:      command.PlanID,
			Title:       command.Params.Title,
			DueAt:       command.Params.DueAt,
			AssigneeIDs: command.Params.AssigneeIDs,
		}
		if command.Params.Priority != nil {
			input.Priority = *command.Params.Priority
		}
		task, err := o.planner.CreateTask(ctx, userID, input, command.IdempotencyKey)
		if err != nil {
			return "", outcome, err
		}
		conversation.LastPlanID = task.PlanID
		conversation.LastTaskID = task.ID
		outcome.TaskID = task.ID
		outcome.PlanID = task.PlanID
		return fmt.Sprintf("Created %q.", task.Title), outcome, nil

	case resolver.OpUpdateTask, resolver.OpCompleteTask:
		task, err := o.mutateTask(ctx, userID, command.TargetID, updateInput(command.Params))
		if err != nil {
			return "", outcome, err
		}
		conversation.LastPlanID = task.PlanID
		conversation.LastTaskID = task.ID
		outcome.TaskID = task.ID
		outcome.PlanID = task.PlanID
		if command.Operation == resolver.OpCompleteTask {
			return fmt.Sprintf("Marked %q as done.", task.Title), outcome, nil
		}
		return fmt.Sprintf("Updated %q.", task.Title), outcome, nil

	case resolver.OpDeleteTask:
		title, err := o.deleteTask(ctx, userID, command.TargetID)
		if err != nil {
			return "", outcome, err
		}
		if conversation.LastTaskID == command.TargetID {
			conversation.LastTaskID = ""
		}
		return fmt.Sprintf("Deleted %q.", title), outcome, nil
	}
	return "", outcome, apperrors.New(apperrors.CodeUnknown, fmt.Sprintf("unhandled operation %q", command.Operation))
}

// mutateTask reads the task for a fresh concurrency token, applies the
// update, and on a stale-token conflict re-fetches and retries exactly
// once.
func (o *Orchestrator) mutateTask(ctx context.Context, userID, taskID string, input planner.UpdateTaskInput) (planner.Task, error) {
	current, err := o.planner.GetTask(ctx, userID, taskID)
	if err != nil {
		return planner.Task{}, err
	}
	updated, err := o.planner.UpdateTask(ctx, userID, taskID, current.ETag, input)
	if apperrors.IsCode(err, apperrors.CodeConflict) {
		current, err = o.planner.GetTask(ctx, userID, taskID)
		if err != nil {
			return planner.Task{}, err
		}
		return o.planner.UpdateTask(ctx, userID, taskID, current.ETag, input)
	}
	return updated, err
}

// deleteTask mirrors mutateTask for deletes and returns the deleted
// task's title for the reply.
func (o *Orchestrator) deleteTask(ctx context.Context, userID, taskID string) (string, error) {
	current, err := o.planner.GetTask(ctx, userID, taskID)
	if err != nil {
		return "", err
	}
	err = o.planner.DeleteTask(ctx, userID, taskID, current.ETag, current.PlanID)
	if apperrors.IsCode(err, apperrors.CodeConflict) {
		current, err = o.planner.GetTask(ctx, userID, taskID)
		if err != nil {
			return "", err
		}
		err = o.planner.DeleteTask(ctx, userID, taskID, current.ETag, current.PlanID)
	}
	return current.Title, err
}

func updateInput(params resolver.Params) planner.UpdateTaskInput {
	var input planner.UpdateTaskInput
	if params.Title != "" {
		title := params.Title
		input.Title = &title
	}
	if params.DueAt != nil {
		input.DueAt = params.DueAt
	}
	if len(params.AssigneeIDs) > 0 {
		input.AssigneeIDs = params.AssigneeIDs
	}
	if params.Priority != nil {
		input.Priority = params.Priority
	}
	if params.PercentComplete != nil {
		input.PercentComplete = params.PercentComplete
	}
	return input
}

func formatPlans(plans []planner.Plan) string {
	if len(plans) == 0 {
		return "You have no plans yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You have %d plans:", len(plans))
	for _, plan := range plans {
		fmt.Fprintf(&b, "\n- %s", plan.Title)
	}
	return b.String()
}

func formatTasks(tasks []planner.Task) string {
	if len(tasks) == 0 {
		return "No tasks in that plan."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d tasks:", len(tasks))
	for _, task := range tasks {
		mark := " "
		if task.Completed() {
			mark = "x"
		}
		fmt.Fprintf(&b, "\n[%s] %s", mark, task.Title)
	}
	return b.String()
}
