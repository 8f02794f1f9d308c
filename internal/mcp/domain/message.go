package domain

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/taskweave/internal/assistant"
)

// Assistant is the conversational surface behind the natural-language
// tool. Sessions opened here share state with the chat gateway, so a
// clarification asked over one surface can be answered over the other.
type Assistant interface {
	HandleMessage(ctx context.Context, sessionID, userID, text string) (assistant.Reply, error)
}

// ProcessMessageInput is the MCP input for natural-language processing.
type ProcessMessageInput struct {
	SessionID string `json:"session_id" jsonschema:"conversation session identifier"`
	UserID    string `json:"user_id" jsonschema:"acting user identifier"`
	Text      string `json:"text" jsonschema:"natural-language request"`
}

// ProcessMessageResult is the MCP output for natural-language processing.
type ProcessMessageResult struct {
	Text     string   `json:"text" jsonschema:"assistant reply text"`
	State    string   `json:"state" jsonschema:"turn outcome: completed, clarifying, or failed"`
	Question string   `json:"question,omitempty" jsonschema:"pending clarification question, if any"`
	Options  []string `json:"options,omitempty" jsonschema:"candidate answers to the pending question"`
}

// ProcessMessageTool defines the MCP tool schema for natural-language
// processing.
func ProcessMessageTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "process_natural_language",
		Description: "Interprets a natural-language request and executes it against the planning service",
	}
}

// ProcessMessageHandler routes a natural-language request through the
// conversation orchestrator.
func ProcessMessageHandler(orchestrator Assistant) mcp.ToolHandlerFor[ProcessMessageInput, ProcessMessageResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ProcessMessageInput) (*mcp.CallToolResult, ProcessMessageResult, error) {
		runCtx, cancel := context.WithTimeout(ctx, toolTimeout)
		defer cancel()

		reply, err := orchestrator.HandleMessage(runCtx, input.SessionID, input.UserID, input.Text)
		if err != nil {
			return nil, ProcessMessageResult{}, toolError("process message", err)
		}

		result := ProcessMessageResult{Text: reply.Text, State: string(reply.State)}
		if reply.Clarification != nil {
			result.Question = reply.Clarification.Question
			for _, candidate := range reply.Clarification.Candidates {
				result.Options = append(result.Options, candidate.Label)
			}
		}
		return nil, result, nil
	}
}
