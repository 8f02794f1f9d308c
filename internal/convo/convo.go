// Package convo is the durable per-session conversation state: the last
// objects a user referred to, a pending clarification awaiting an
// answer, and progress through an in-flight batch. State survives
// process restarts and is shared by every instance.
package convo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/taskweave/internal/resolver"
	"github.com/louisbranch/taskweave/internal/storage"
)

// Pending is an open clarification. The next message in the session is
// read as its answer, not as a fresh command.
type Pending struct {
	Clarification resolver.Clarification `json:"clarification"`
	AskedAt       time.Time              `json:"asked_at"`
}

// BatchState tracks an in-flight batch so a crash resumes after the
// last completed sub-command instead of restarting or skipping.
type BatchState struct {
	Commands []resolver.Command `json:"commands"`
	// Next indexes the first sub-command not yet confirmed complete.
	Next    int      `json:"next"`
	Replies []string `json:"replies,omitempty"`
}

// Context is one session's conversation state.
type Context struct {
	SessionID  string
	UserID     string
	LastPlanID string
	LastTaskID string
	Pending    *Pending
	Batch      *BatchState
	UpdatedAt  time.Time
}

// Storage is the slice of the durable store the context store needs.
type Storage interface {
	PutContext(ctx context.Context, record storage.ContextRecord) error
	GetContext(ctx context.Context, sessionID string) (storage.ContextRecord, error)
}

// Store loads and saves conversation contexts. Save is last-writer-wins
// per session.
type Store struct {
	storage Storage
	now     func() time.Time
}

// NewStore creates a context store over durable storage.
func NewStore(s Storage) (*Store, error) {
	if s == nil {
		return nil, fmt.Errorf("storage is required")
	}
	return &Store{storage: s, now: time.Now}, nil
}

// Load returns the session's context, or a fresh one on first contact.
func (s *Store) Load(ctx context.Context, sessionID, userID string) (Context, error) {
	record, err := s.storage.GetContext(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return Context{SessionID: sessionID, UserID: userID}, nil
	}
	if err != nil {
		return Context{}, fmt.Errorf("load conversation context: %w", err)
	}
	return decode(record)
}

// Save persists the context. Pending clarifications and batch progress
// are durable; they must be recoverable by another instance.
func (s *Store) Save(ctx context.Context, c Context) error {
	if c.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	record := storage.ContextRecord{
		SessionID:  c.SessionID,
		UserID:     c.UserID,
		LastPlanID: c.LastPlanID,
		LastTaskID: c.LastTaskID,
		UpdatedAt:  s.now(),
	}
	if c.Pending != nil {
		raw, err := json.Marshal(c.Pending)
		if err != nil {
			return fmt.Errorf("encode pending clarification: %w", err)
		}
		record.Pending = raw
	}
	if c.Batch != nil {
		raw, err := json.Marshal(c.Batch)
		if err != nil {
			return fmt.Errorf("encode batch state: %w", err)
		}
		record.Batch = raw
	}
	if err := s.storage.PutContext(ctx, record); err != nil {
		return fmt.Errorf("save conversation context: %w", err)
	}
	return nil
}

func decode(record storage.ContextRecord) (Context, error) {
	c := Context{
		SessionID:  record.SessionID,
		UserID:     record.UserID,
		LastPlanID: record.LastPlanID,
		LastTaskID: record.LastTaskID,
		UpdatedAt:  record.UpdatedAt,
	}
	if len(record.Pending) > 0 {
		var pending Pending
		if err := json.Unmarshal(record.Pending, &pending); err != nil {
			return Context{}, fmt.Errorf("decode pending clarification: %w", err)
		}
		c.Pending = &pending
	}
	if len(record.Batch) > 0 {
		var batch BatchState
		if err := json.Unmarshal(record.Batch, &batch); err != nil {
			return Context{}, fmt.Errorf("decode batch state: %w", err)
		}
		c.Batch = &batch
	}
	return c, nil
}
