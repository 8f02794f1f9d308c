// Package directory resolves human names mentioned in requests to remote
// user identities. Entries are provisioned explicitly; lookup never
// guesses on ambiguity.
package directory

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/taskweave/internal/platform/errors"
	"github.com/louisbranch/taskweave/internal/storage"
)

// Storage is the slice of the durable store the directory needs.
type Storage interface {
	PutUser(ctx context.Context, record storage.UserRecord) error
	FindUsersByName(ctx context.Context, name string) ([]storage.UserRecord, error)
}

// Service resolves names against provisioned directory entries.
type Service struct {
	storage Storage
	now     func() time.Time
}

// New creates a directory service.
func New(store Storage) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	return &Service{storage: store, now: time.Now}, nil
}

// Register upserts a directory entry.
func (s *Service) Register(ctx context.Context, id, displayName string) error {
	id = strings.TrimSpace(id)
	displayName = strings.TrimSpace(displayName)
	if id == "" {
		return apperrors.New(apperrors.CodeValidation, "user id is required")
	}
	if displayName == "" {
		return apperrors.New(apperrors.CodeValidation, "display name is required")
	}
	return s.storage.PutUser(ctx, storage.UserRecord{
		ID:          id,
		DisplayName: displayName,
		UpdatedAt:   s.now(),
	})
}

// LookupUser resolves a name to a user id. An exact display-name match
// wins; otherwise a unique prefix match is accepted. Unknown names and
// ambiguous matches return a validation error naming the problem.
func (s *Service) LookupUser(ctx context.Context, name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", apperrors.New(apperrors.CodeValidation, "name is required")
	}

	records, err := s.storage.FindUsersByName(ctx, trimmed)
	if err != nil {
		return "", fmt.Errorf("lookup %q: %w", trimmed, err)
	}
	if len(records) == 0 {
		return "", apperrors.New(apperrors.CodeValidation,
			fmt.Sprintf("I don't know anyone called %q.", trimmed))
	}

	var exact []storage.UserRecord
	for _, record := range records {
		if strings.EqualFold(record.DisplayName, trimmed) {
			exact = append(exact, record)
		}
	}
	switch {
	case len(exact) == 1:
		return exact[0].ID, nil
	case len(exact) > 1:
		return "", apperrors.New(apperrors.CodeValidation,
			fmt.Sprintf("More than one person is called %q.", trimmed))
	case len(records) == 1:
		return records[0].ID, nil
	default:
		return "", apperrors.New(apperrors.CodeValidation,
			fmt.Sprintf("%q matches more than one person.", trimmed))
	}
}
