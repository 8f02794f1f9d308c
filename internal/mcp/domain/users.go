package domain

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Directory provisions and resolves assignee names.
type Directory interface {
	Register(ctx context.Context, id, displayName string) error
	LookupUser(ctx context.Context, name string) (string, error)
}

// RegisterUserInput is the MCP input for directory provisioning.
type RegisterUserInput struct {
	ID          string `json:"id" jsonschema:"remote user identifier"`
	DisplayName string `json:"display_name" jsonschema:"name the user goes by in requests"`
}

// RegisterUserResult is the MCP output for directory provisioning.
type RegisterUserResult struct {
	Registered bool `json:"registered" jsonschema:"whether the entry was stored"`
}

// RegisterUserTool defines the MCP tool schema for directory provisioning.
func RegisterUserTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "register_user",
		Description: "Adds or renames a directory entry so the user can be referenced by name",
	}
}

// RegisterUserHandler executes a directory provisioning request.
func RegisterUserHandler(dir Directory) mcp.ToolHandlerFor[RegisterUserInput, RegisterUserResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input RegisterUserInput) (*mcp.CallToolResult, RegisterUserResult, error) {
		runCtx, cancel := context.WithTimeout(ctx, toolTimeout)
		defer cancel()

		if err := dir.Register(runCtx, input.ID, input.DisplayName); err != nil {
			return nil, RegisterUserResult{}, toolError("register user", err)
		}
		return nil, RegisterUserResult{Registered: true}, nil
	}
}

// LookupUserInput is the MCP input for resolving a name.
type LookupUserInput struct {
	Name string `json:"name" jsonschema:"display name or unique prefix"`
}

// LookupUserResult is the MCP output for resolving a name.
type LookupUserResult struct {
	ID string `json:"id" jsonschema:"resolved user identifier"`
}

// LookupUserTool defines the MCP tool schema for resolving a name.
func LookupUserTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "lookup_user",
		Description: "Resolves a display name to a remote user identifier",
	}
}

// LookupUserHandler executes a name resolution request.
func LookupUserHandler(dir Directory) mcp.ToolHandlerFor[LookupUserInput, LookupUserResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input LookupUserInput) (*mcp.CallToolResult, LookupUserResult, error) {
		runCtx, cancel := context.WithTimeout(ctx, toolTimeout)
		defer cancel()

		id, err := dir.LookupUser(runCtx, input.Name)
		if err != nil {
			return nil, LookupUserResult{}, toolError("lookup user", err)
		}
		return nil, LookupUserResult{ID: id}, nil
	}
}
