package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/crosspost/crosspost/internal/models"
	"github.com/crosspost/crosspost/internal/publisher"
	"github.com/crosspost/crosspost/pkg/config"
	"github.com/crosspost/crosspost/pkg/logging"
)

// Loader reads the aggregates a job needs
type Loader interface {
	FindPostByID(ctx context.Context, id string) (*models.Post, error)
	FindUserByID(ctx context.Context, id string) (*models.User, error)
}

// Publisher runs one publish pass
type Publisher interface {
	Publish(ctx context.Context, post *models.Post, user *models.User) (*publisher.Outcome, error)
}

// Worker polls the queue and publishes due posts
type Worker struct {
	queue     Queue
	loader    Loader
	publisher Publisher
	interval  time.Duration
	batch     int
	now       func() time.Time
	logger    *zap.Logger
}

// NewWorker creates a worker
func NewWorker(cfg *config.SchedulerConfig, queue Queue, loader Loader, pub Publisher) *Worker {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 20
	}
	return &Worker{
		queue:     queue,
		loader:    loader,
		publisher: pub,
		interval:  interval,
		batch:     batch,
		now:       time.Now,
		logger:    logging.WithComponent("scheduler"),
	}
}

// Run polls until ctx is cancelled
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Starting scheduler", zap.Duration("interval", w.interval), zap.Int("batch", w.batch))

	for {
		n, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("Failed to poll scheduled posts", zap.Error(err))
		} else if n > 0 {
			w.logger.Info("Processed scheduled posts", zap.Int("count", n))
		}

		// a full batch means more may be due
		if err == nil && n == w.batch {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		if !w.wait(ctx) {
			return ctx.Err()
		}
	}
}

// RunOnce claims and processes one batch of due jobs, returning how many
// were claimed. Failures of individual jobs are logged.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	ids, err := w.queue.Claim(ctx, w.now(), w.batch)
	for _, id := range ids {
		if perr := w.process(ctx, id); perr != nil {
			w.logger.Error("Scheduled publish failed", zap.String("post_id", id), zap.Error(perr))
		}
	}
	return len(ids), err
}

func (w *Worker) process(ctx context.Context, postID string) error {
	post, err := w.loader.FindPostByID(ctx, postID)
	if err != nil {
		return fmt.Errorf("failed to load post: %w", err)
	}
	if post == nil {
		return fmt.Errorf("post not found")
	}

	user, err := w.loader.FindUserByID(ctx, post.UserID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return fmt.Errorf("user %s not found", post.UserID)
	}

	out, err := w.publisher.Publish(ctx, post, user)
	if err != nil {
		return err
	}

	for _, r := range out.Results {
		if !r.Success {
			w.logger.Warn("Scheduled entry failed",
				zap.String("post_id", postID),
				zap.String("platform", r.Platform.String()),
				zap.String("error", r.Error),
			)
		}
	}
	return nil
}

// wait sleeps for one interval and reports false if ctx ended first
func (w *Worker) wait(ctx context.Context) bool {
	t := time.NewTimer(w.interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
