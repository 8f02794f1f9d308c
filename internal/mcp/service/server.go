// Package service hosts the MCP server exposing the assistant's
// planning operations as typed tools.
package service

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/taskweave/internal/mcp/domain"
)

const (
	// serverName identifies this MCP server to clients.
	serverName = "Taskweave MCP"
	// serverVersion identifies the MCP server version.
	serverVersion = "0.1.0"
)

// TransportKind identifies the MCP transport implementation.
type TransportKind string

const (
	// TransportStdio uses standard input/output for MCP.
	TransportStdio TransportKind = "stdio"
	// TransportHTTP serves MCP over streamable HTTP.
	TransportHTTP TransportKind = "http"
)

// Deps are the collaborators the MCP tools execute against.
type Deps struct {
	Planner   domain.PlanAdmin
	Comments  domain.Commenter
	Assistant domain.Assistant
	Directory domain.Directory
}

// Server hosts the MCP server.
type Server struct {
	mcpServer *mcp.Server
}

// New creates a configured MCP server with every tool registered.
func New(deps Deps) (*Server, error) {
	if deps.Planner == nil {
		return nil, fmt.Errorf("planner client is required")
	}
	if deps.Comments == nil {
		return nil, fmt.Errorf("comments service is required")
	}
	if deps.Assistant == nil {
		return nil, fmt.Errorf("assistant orchestrator is required")
	}
	if deps.Directory == nil {
		return nil, fmt.Errorf("user directory is required")
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)

	registerPlanTools(mcpServer, deps.Planner)
	registerTaskTools(mcpServer, deps.Planner)
	registerCommentTools(mcpServer, deps.Comments)
	registerAssistantTools(mcpServer, deps.Assistant)
	registerDirectoryTools(mcpServer, deps.Directory)

	return &Server{mcpServer: mcpServer}, nil
}

// RunConfig selects the transport the MCP server binds to.
type RunConfig struct {
	Transport TransportKind
	// HTTPAddr is the listen address for the HTTP transport. Defaults to
	// localhost:8081.
	HTTPAddr string
}

// Run serves the MCP server until the context ends.
func Run(ctx context.Context, deps Deps, cfg RunConfig) error {
	transport := cfg.Transport
	if transport == "" {
		transport = TransportStdio
	}

	server, err := New(deps)
	if err != nil {
		return err
	}

	switch transport {
	case TransportStdio:
		return server.mcpServer.Run(ctx, &mcp.StdioTransport{})
	case TransportHTTP:
		return runHTTP(ctx, server, cfg.HTTPAddr)
	default:
		return fmt.Errorf("transport %q is not supported", transport)
	}
}
