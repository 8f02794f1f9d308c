// Package mcp parses MCP command flags and runs the MCP server.
package mcp

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/louisbranch/taskweave/internal/cmd/app"
	"github.com/louisbranch/taskweave/internal/mcp/service"
	"github.com/louisbranch/taskweave/internal/platform/config"
	"github.com/louisbranch/taskweave/internal/platform/otel"
)

// Config holds MCP command configuration.
type Config struct {
	app.Config

	Transport string `env:"TASKWEAVE_MCP_TRANSPORT" envDefault:"stdio"`
	HTTPAddr  string `env:"TASKWEAVE_MCP_HTTP_ADDR" envDefault:"localhost:8081"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "transport type: stdio or http")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address (for http transport)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.PlannerBaseURL, "planner-url", cfg.PlannerBaseURL, "planning service base URL")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the MCP server on the configured transport.
func Run(ctx context.Context, cfg Config) error {
	shutdown, err := otel.Setup(ctx, "mcp")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	stack, err := app.Build(cfg.Config, log.Default())
	if err != nil {
		return err
	}
	defer stack.Close()

	deps := service.Deps{
		Planner:   stack.Planner,
		Comments:  stack.Comments,
		Assistant: stack.Orchestrator,
		Directory: stack.Directory,
	}
	return service.Run(ctx, deps, service.RunConfig{
		Transport: service.TransportKind(cfg.Transport),
		HTTPAddr:  cfg.HTTPAddr,
	})
}
