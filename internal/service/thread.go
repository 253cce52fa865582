// Package service provides business logic for the support chat platform.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/reddiedev/tenext-app/internal/model"
	"github.com/reddiedev/tenext-app/internal/store"
	"github.com/reddiedev/tenext-app/pkg/logger"
)

var (
	// ErrThreadNotFound is returned for missing threads and for threads the
	// caller may not see.
	ErrThreadNotFound = errors.New("thread not found")
	// ErrForbidden is returned when a customer tries a staff-only change.
	ErrForbidden = errors.New("operation requires a staff role")
)

// ThreadStore is the persistence used by ThreadService.
type ThreadStore interface {
	EnsureUser(ctx context.Context, u model.User) error
	CreateThread(ctx context.Context, t *model.Thread) error
	GetThread(ctx context.Context, id string) (*model.Thread, error)
	ListThreads(ctx context.Context, ownerID string, limit, offset int) ([]model.Thread, int64, error)
	UpdateThread(ctx context.Context, id string, req model.UpdateThreadRequest) (*model.Thread, error)
	DeleteThread(ctx context.Context, id string) error
}

// ThreadService handles thread operations. Customers only see their own
// threads; staff see all of them.
type ThreadService struct {
	store  ThreadStore
	logger *logger.Logger
}

// NewThreadService creates a new thread service.
func NewThreadService(s ThreadStore, log *logger.Logger) *ThreadService {
	return &ThreadService{store: s, logger: log}
}

// Create opens a new thread owned by user.
func (s *ThreadService) Create(ctx context.Context, user model.User, req *model.CreateThreadRequest) (*model.Thread, error) {
	if err := s.store.EnsureUser(ctx, user); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "New conversation"
	}

	thread := &model.Thread{OwnerID: user.ID, Title: title}
	if err := s.store.CreateThread(ctx, thread); err != nil {
		return nil, err
	}

	s.logger.Info("thread created",
		zap.String("thread_id", thread.ID),
		zap.String("owner_id", user.ID),
	)
	return thread, nil
}

// Get retrieves a thread the user may see.
func (s *ThreadService) Get(ctx context.Context, user model.User, threadID string) (*model.Thread, error) {
	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		if errors.Is(err, store.ErrThreadNotFound) {
			return nil, ErrThreadNotFound
		}
		return nil, err
	}
	if !user.IsStaff() && thread.OwnerID != user.ID {
		return nil, ErrThreadNotFound
	}
	return thread, nil
}

// List retrieves the threads visible to user.
func (s *ThreadService) List(ctx context.Context, user model.User, limit, offset int) (*model.ListThreadsResponse, error) {
	owner := user.ID
	if user.IsStaff() {
		owner = ""
	}

	threads, total, err := s.store.ListThreads(ctx, owner, limit, offset)
	if err != nil {
		return nil, err
	}
	if threads == nil {
		threads = []model.Thread{}
	}

	return &model.ListThreadsResponse{
		Threads: threads,
		Total:   total,
		HasMore: int64(offset+len(threads)) < total,
	}, nil
}

// Update renames a thread or switches it between automatic and manual
// intervention. Only staff may switch intervention.
func (s *ThreadService) Update(ctx context.Context, user model.User, threadID string, req *model.UpdateThreadRequest) (*model.Thread, error) {
	if _, err := s.Get(ctx, user, threadID); err != nil {
		return nil, err
	}
	if req.ManualIntervention != nil && !user.IsStaff() {
		return nil, ErrForbidden
	}

	thread, err := s.store.UpdateThread(ctx, threadID, *req)
	if err != nil {
		if errors.Is(err, store.ErrThreadNotFound) {
			return nil, ErrThreadNotFound
		}
		return nil, fmt.Errorf("update thread: %w", err)
	}

	if req.ManualIntervention != nil {
		s.logger.Info("thread intervention changed",
			zap.String("thread_id", threadID),
			zap.Bool("manual", thread.ManualIntervention),
			zap.String("by", user.ID),
		)
	}
	return thread, nil
}

// Delete soft deletes a thread.
func (s *ThreadService) Delete(ctx context.Context, user model.User, threadID string) error {
	if _, err := s.Get(ctx, user, threadID); err != nil {
		return err
	}
	if err := s.store.DeleteThread(ctx, threadID); err != nil {
		if errors.Is(err, store.ErrThreadNotFound) {
			return ErrThreadNotFound
		}
		return err
	}
	return nil
}
