package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-board-api/pkg/jobs"
)

type attachmentIndex interface {
	ReferencedAttachments(ctx context.Context) (map[string]struct{}, error)
}

type sweepableStore interface {
	CleanupOlderThan(minAge time.Duration, keep map[string]struct{}) ([]string, error)
}

// CleanupService periodically reclaims attachment files no notice references
// anymore. Deleting a notice never touches its file; this sweep is the only
// code path that removes stored objects.
type CleanupService struct {
	repo     attachmentIndex
	store    sweepableStore
	logger   *zap.Logger
	queue    *jobs.Queue
	interval time.Duration
	minAge   time.Duration
}

// NewCleanupService builds the sweep worker. It does nothing until Start.
func NewCleanupService(repo attachmentIndex, store sweepableStore, logger *zap.Logger, interval, minAge time.Duration) *CleanupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	if minAge <= 0 {
		minAge = 24 * time.Hour
	}
	s := &CleanupService{
		repo:     repo,
		store:    store,
		logger:   logger,
		interval: interval,
		minAge:   minAge,
	}
	s.queue = jobs.NewQueue("uploads-sweep", s.handle, jobs.QueueConfig{
		Workers: 1,
		Logger:  logger,
	})
	return s
}

// Start launches the queue workers and the scheduling loop. It returns
// immediately; the loop stops when ctx is cancelled.
func (s *CleanupService) Start(ctx context.Context) {
	s.queue.Start(ctx)
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: "sweep"}); err != nil {
					s.logger.Warn("failed to enqueue uploads sweep", zap.Error(err))
				}
			}
		}
	}()
}

// Stop drains the queue workers.
func (s *CleanupService) Stop() {
	s.queue.Stop()
}

// SweepNow runs one sweep synchronously; exposed for operator tooling.
func (s *CleanupService) SweepNow(ctx context.Context) (int, error) {
	keep, err := s.repo.ReferencedAttachments(ctx)
	if err != nil {
		return 0, err
	}
	removed, err := s.store.CleanupOlderThan(s.minAge, keep)
	if err != nil {
		return len(removed), err
	}
	if len(removed) > 0 {
		s.logger.Info("reclaimed orphaned attachments", zap.Int("count", len(removed)))
	}
	return len(removed), nil
}

func (s *CleanupService) handle(ctx context.Context, _ jobs.Job) error {
	_, err := s.SweepNow(ctx)
	return err
}
