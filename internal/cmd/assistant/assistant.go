// Package assistant parses assistant gateway flags and runs the HTTP
// service.
package assistant

import (
	"context"
	"flag"
	"log"
	"time"

	assistantapi "github.com/louisbranch/taskweave/internal/assistant/api"
	"github.com/louisbranch/taskweave/internal/cmd/app"
	"github.com/louisbranch/taskweave/internal/platform/config"
	"github.com/louisbranch/taskweave/internal/platform/otel"
)

// Config holds assistant gateway configuration.
type Config struct {
	app.Config

	HTTPAddr  string `env:"TASKWEAVE_HTTP_ADDR"          envDefault:":8080"`
	JWTKey    string `env:"TASKWEAVE_GATEWAY_JWT_KEY"`
	JWTIssuer string `env:"TASKWEAVE_GATEWAY_JWT_ISSUER" envDefault:"taskweave-gateway"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.PlannerBaseURL, "planner-url", cfg.PlannerBaseURL, "planning service base URL")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the assistant HTTP gateway.
func Run(ctx context.Context, cfg Config) error {
	shutdown, err := otel.Setup(ctx, "assistant")
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

	logger := log.Default()
	stack, err := app.Build(cfg.Config, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	verifier, err := assistantapi.NewVerifier([]byte(cfg.JWTKey), cfg.JWTIssuer)
	if err != nil {
		return err
	}
	server, err := assistantapi.NewServer(cfg.HTTPAddr, stack.Orchestrator, verifier, logger)
	if err != nil {
		return err
	}
	return server.ListenAndServe(ctx)
}
