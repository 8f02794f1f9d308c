// Package app wires the assistant's component stack from configuration.
// Both the HTTP gateway and the MCP server build on the same stack so
// conversation state is shared no matter which surface a request enters
// through.
package app

import (
	"fmt"
	"log"
	"time"

	"golang.org/x/oauth2"

	"github.com/louisbranch/taskweave/internal/assistant"
	"github.com/louisbranch/taskweave/internal/cache"
	"github.com/louisbranch/taskweave/internal/comments"
	"github.com/louisbranch/taskweave/internal/convo"
	"github.com/louisbranch/taskweave/internal/credential"
	"github.com/louisbranch/taskweave/internal/directory"
	"github.com/louisbranch/taskweave/internal/extract"
	"github.com/louisbranch/taskweave/internal/planner"
	"github.com/louisbranch/taskweave/internal/resilience"
	"github.com/louisbranch/taskweave/internal/resolver"
	"github.com/louisbranch/taskweave/internal/secret"
	"github.com/louisbranch/taskweave/internal/storage/sqlite"
)

// Config holds the settings shared by every command.
type Config struct {
	DBPath         string `env:"TASKWEAVE_DB_PATH"          envDefault:"taskweave.db"`
	PlannerBaseURL string `env:"TASKWEAVE_PLANNER_BASE_URL" envDefault:"http://localhost:7070"`
	CacheCapacity  int    `env:"TASKWEAVE_CACHE_CAPACITY"   envDefault:"512"`

	BreakerFailureThreshold int           `env:"TASKWEAVE_BREAKER_FAILURES" envDefault:"5"`
	BreakerCooldown         time.Duration `env:"TASKWEAVE_BREAKER_COOLDOWN" envDefault:"30s"`

	OAuthClientID     string   `env:"TASKWEAVE_OAUTH_CLIENT_ID"`
	OAuthClientSecret string   `env:"TASKWEAVE_OAUTH_CLIENT_SECRET"`
	OAuthAuthURL      string   `env:"TASKWEAVE_OAUTH_AUTH_URL"`
	OAuthTokenURL     string   `env:"TASKWEAVE_OAUTH_TOKEN_URL"`
	OAuthScopes       []string `env:"TASKWEAVE_OAUTH_SCOPES" envSeparator:","`

	SealerPassphrase string `env:"TASKWEAVE_SEALER_PASSPHRASE"`
	SealerSalt       string `env:"TASKWEAVE_SEALER_SALT"`
}

// Stack is the assembled component graph.
type Stack struct {
	Store        *sqlite.Store
	Credentials  *credential.Store
	Planner      *planner.Client
	Comments     *comments.Service
	Directory    *directory.Service
	Orchestrator *assistant.Orchestrator
}

// Close releases the stack's resources.
func (s *Stack) Close() error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.Close()
}

// Build assembles the component graph from configuration.
func Build(cfg Config, logger *log.Logger) (*Stack, error) {
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	stack, err := buildOnStore(cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return stack, nil
}

func buildOnStore(cfg Config, store *sqlite.Store, logger *log.Logger) (*Stack, error) {
	sealer, err := secret.NewSealerFromPassphrase(cfg.SealerPassphrase, cfg.SealerSalt)
	if err != nil {
		return nil, fmt.Errorf("build sealer: %w", err)
	}

	oauth := &oauth2.Config{
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		Scopes:       cfg.OAuthScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.OAuthAuthURL,
			TokenURL: cfg.OAuthTokenURL,
		},
	}
	credentials, err := credential.NewStore(store, sealer, oauth)
	if err != nil {
		return nil, fmt.Errorf("build credential store: %w", err)
	}

	objects, err := cache.NewTwoTier("objects", cfg.CacheCapacity, store)
	if err != nil {
		return nil, fmt.Errorf("build object cache: %w", err)
	}
	perms, err := cache.NewPermissionCache(cfg.CacheCapacity, store)
	if err != nil {
		return nil, fmt.Errorf("build permission cache: %w", err)
	}

	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		FailureThreshold: cfg.BreakerFailureThreshold,
		Cooldown:         cfg.BreakerCooldown,
	})
	exec := resilience.NewExecutor(resilience.DefaultPolicy(), breaker)

	client, err := planner.NewClient(planner.Config{BaseURL: cfg.PlannerBaseURL},
		credentials, exec, objects, perms, store)
	if err != nil {
		return nil, fmt.Errorf("build planner client: %w", err)
	}

	dir, err := directory.New(store)
	if err != nil {
		return nil, fmt.Errorf("build directory: %w", err)
	}
	extractor, err := extract.New(dir)
	if err != nil {
		return nil, fmt.Errorf("build extractor: %w", err)
	}
	commandResolver, err := resolver.New(client, extractor)
	if err != nil {
		return nil, fmt.Errorf("build resolver: %w", err)
	}
	contexts, err := convo.NewStore(store)
	if err != nil {
		return nil, fmt.Errorf("build conversation store: %w", err)
	}
	commentService, err := comments.NewService(store)
	if err != nil {
		return nil, fmt.Errorf("build comment service: %w", err)
	}

	orchestrator, err := assistant.New(client, extractor, commandResolver, contexts, logger)
	if err != nil {
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	return &Stack{
		Store:        store,
		Credentials:  credentials,
		Planner:      client,
		Comments:     commentService,
		Directory:    dir,
		Orchestrator: orchestrator,
	}, nil
}
