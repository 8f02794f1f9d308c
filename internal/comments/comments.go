// Package comments is the local append-only comment log keyed by task
// id. The remote service has no first-class comment feature; keeping
// comments out of the task description avoids losing them to concurrent
// description edits.
package comments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/taskweave/internal/platform/id"
	"github.com/louisbranch/taskweave/internal/storage"
)

// Comment is one entry in a task's log.
type Comment struct {
	ID        string
	TaskID    string
	AuthorID  string
	Body      string
	CreatedAt time.Time
}

// Storage is the slice of the durable store the service needs.
type Storage interface {
	AppendComment(ctx context.Context, record storage.CommentRecord) error
	ListComments(ctx context.Context, taskID string, limit int) ([]storage.CommentRecord, error)
}

// Service appends and lists task comments.
type Service struct {
	storage Storage
	newID   func() (string, error)
	now     func() time.Time
}

// NewService creates a comment service over durable storage.
func NewService(s Storage) (*Service, error) {
	if s == nil {
		return nil, fmt.Errorf("storage is required")
	}
	return &Service{storage: s, newID: id.NewID, now: time.Now}, nil
}

// Append records one comment and returns it with its assigned id.
func (s *Service) Append(ctx context.Context, taskID, authorID, body string) (Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Comment{}, fmt.Errorf("comment body is required")
	}
	commentID, err := s.newID()
	if err != nil {
		return Comment{}, fmt.Errorf("new comment id: %w", err)
	}
	comment := Comment{
		ID:        commentID,
		TaskID:    taskID,
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: s.now(),
	}
	record := storage.CommentRecord{
		ID:        comment.ID,
		TaskID:    comment.TaskID,
		AuthorID:  comment.AuthorID,
		Body:      comment.Body,
		CreatedAt: comment.CreatedAt,
	}
	if err := s.storage.AppendComment(ctx, record); err != nil {
		return Comment{}, fmt.Errorf("append comment: %w", err)
	}
	return comment, nil
}

// List returns a task's comments oldest first.
func (s *Service) List(ctx context.Context, taskID string, limit int) ([]Comment, error) {
	records, err := s.storage.ListComments(ctx, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	comments := make([]Comment, 0, len(records))
	for _, record := range records {
		comments = append(comments, Comment{
			ID:        record.ID,
			TaskID:    record.TaskID,
			AuthorID:  record.AuthorID,
			Body:      record.Body,
			CreatedAt: record.CreatedAt,
		})
	}
	return comments, nil
}
