package service

import (
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/taskweave/internal/mcp/domain"
)

func registerPlanTools(mcpServer *mcp.Server, client domain.PlanAdmin) {
	mcp.AddTool(mcpServer, domain.ListPlansTool(), domain.ListPlansHandler(client))
	mcp.AddTool(mcpServer, domain.CreatePlanTool(), domain.CreatePlanHandler(client, uuid.NewString))
	mcp.AddTool(mcpServer, domain.ListBucketsTool(), domain.ListBucketsHandler(client))
	mcp.AddTool(mcpServer, domain.CreateBucketTool(), domain.CreateBucketHandler(client, uuid.NewString))
	mcp.AddTool(mcpServer, domain.SyncPlanTool(), domain.SyncPlanHandler(client))
}

func registerTaskTools(mcpServer *mcp.Server, client domain.Planner) {
	mcp.AddTool(mcpServer, domain.CreateTaskTool(), domain.CreateTaskHandler(client, uuid.NewString))
	mcp.AddTool(mcpServer, domain.ListTasksTool(), domain.ListTasksHandler(client))
	mcp.AddTool(mcpServer, domain.UpdateTaskTool(), domain.UpdateTaskHandler(client))
	mcp.AddTool(mcpServer, domain.CompleteTaskTool(), domain.CompleteTaskHandler(client))
	mcp.AddTool(mcpServer, domain.DeleteTaskTool(), domain.DeleteTaskHandler(client))
}

func registerCommentTools(mcpServer *mcp.Server, service domain.Commenter) {
	mcp.AddTool(mcpServer, domain.AddCommentTool(), domain.AddCommentHandler(service))
	mcp.AddTool(mcpServer, domain.ListCommentsTool(), domain.ListCommentsHandler(service))
}

func registerAssistantTools(mcpServer *mcp.Server, orchestrator domain.Assistant) {
	mcp.AddTool(mcpServer, domain.ProcessMessageTool(), domain.ProcessMessageHandler(orchestrator))
}

func registerDirectoryTools(mcpServer *mcp.Server, dir domain.Directory) {
	mcp.AddTool(mcpServer, domain.RegisterUserTool(), domain.RegisterUserHandler(dir))
	mcp.AddTool(mcpServer, domain.LookupUserTool(), domain.LookupUserHandler(dir))
}
