package domain

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/taskweave/internal/comments"
)

// Commenter stores and lists the local discussion threads attached to
// remote tasks.
type Commenter interface {
	Append(ctx context.Context, taskID, authorID, body string) (comments.Comment, error)
	List(ctx context.Context, taskID string, limit int) ([]comments.Comment, error)
}

// CommentPayload is the comment shape returned by comment tools.
type CommentPayload struct {
	ID        string `json:"id" jsonschema:"comment identifier"`
	TaskID    string `json:"task_id" jsonschema:"task the comment belongs to"`
	AuthorID  string `json:"author_id" jsonschema:"comment author"`
	Body      string `json:"body" jsonschema:"comment text"`
	CreatedAt string `json:"created_at" jsonschema:"creation timestamp, RFC 3339"`
}

func commentPayload(comment comments.Comment) CommentPayload {
	return CommentPayload{
		ID:        comment.ID,
		TaskID:    comment.TaskID,
		AuthorID:  comment.AuthorID,
		Body:      comment.Body,
		CreatedAt: comment.CreatedAt.Format(time.RFC3339),
	}
}

// AddCommentInput is the MCP input for appending a comment.
type AddCommentInput struct {
	UserID string `json:"user_id" jsonschema:"comment author"`
	TaskID string `json:"task_id" jsonschema:"task to comment on"`
	Body   string `json:"body" jsonschema:"comment text"`
}

// AddCommentTool defines the MCP tool schema for appending comments.
func AddCommentTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "add_comment",
		Description: "Appends a comment to a task's discussion thread",
	}
}

// AddCommentHandler executes a comment append request.
func AddCommentHandler(service Commenter) mcp.ToolHandlerFor[AddCommentInput, CommentPayload] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input AddCommentInput) (*mcp.CallToolResult, CommentPayload, error) {
		runCtx, cancel := context.WithTimeout(ctx, toolTimeout)
		defer cancel()

		comment, err := service.Append(runCtx, input.TaskID, input.UserID, input.Body)
		if err != nil {
			return nil, CommentPayload{}, toolError("add comment", err)
		}
		return nil, commentPayload(comment), nil
	}
}

// ListCommentsInput is the MCP input for listing a task's comments.
type ListCommentsInput struct {
	TaskID string `json:"task_id" jsonschema:"task whose comments to list"`
}

// ListCommentsResult is the MCP output for listing comments.
type ListCommentsResult struct {
	Comments []CommentPayload `json:"comments" jsonschema:"comments in chronological order"`
}

// ListCommentsTool defines the MCP tool schema for listing comments.
func ListCommentsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "list_comments",
		Description: "Lists a task's comments in chronological order",
	}
}

// ListCommentsHandler executes a comment listing request.
func ListCommentsHandler(service Commenter) mcp.ToolHandlerFor[ListCommentsInput, ListCommentsResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ListCommentsInput) (*mcp.CallToolResult, ListCommentsResult, error) {
		runCtx, cancel := context.WithTimeout(ctx, toolTimeout)
		defer cancel()

		list, err := service.List(runCtx, input.TaskID, 0)
		if err != nil {
			return nil, ListCommentsResult{}, toolError("list comments", err)
		}
		result := ListCommentsResult{Comments: []CommentPayload{}}
		for _, comment := range list {
			result.Comments = append(result.Comments, commentPayload(comment))
		}
		return nil, result, nil
	}
}
