// Package publisher drives one publish pass over a post's approved
// variants and folds the per-platform outcomes into the post status.
package publisher

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/crosspost/crosspost/internal/credentials"
	"github.com/crosspost/crosspost/internal/models"
	"github.com/crosspost/crosspost/internal/platform"
	"github.com/crosspost/crosspost/pkg/logging"
	"github.com/crosspost/crosspost/pkg/telemetry"
)

// AccountNotConnected is recorded for entries without an active account
const AccountNotConnected = "Social account not connected"

// Store persists the outcome of a publish pass
type Store interface {
	credentials.AccountStore
	SavePost(ctx context.Context, post *models.Post) error
}

// Refresher renews expired credentials before use
type Refresher interface {
	EnsureFresh(ctx context.Context, user *models.User, acc *models.SocialAccount) error
}

// Result is the outcome for one platform
type Result struct {
	Platform models.Platform `json:"platform"`
	Success  bool            `json:"success"`
	Error    string          `json:"error,omitempty"`
	PostID   string          `json:"postId,omitempty"`
	Skipped  bool            `json:"skipped,omitempty"`
}

// Outcome is returned by Publish
type Outcome struct {
	Results []Result     `json:"results"`
	Post    *models.Post `json:"post"`
}

// Orchestrator publishes approved entries sequentially in adapted-content order
type Orchestrator struct {
	store    Store
	creds    Refresher
	clients  platform.Resolver
	now      func() time.Time
	logger   *zap.Logger
	attempts *telemetry.Counter
}

// New creates an orchestrator
func New(store Store, creds Refresher, clients platform.Resolver) *Orchestrator {
	return &Orchestrator{
		store:    store,
		creds:    creds,
		clients:  clients,
		now:      time.Now,
		logger:   logging.WithComponent("publisher"),
		attempts: telemetry.NewCounter("crosspost.publish.attempts", "Publish attempts per platform"),
	}
}

// WithClock replaces the time source
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Publish runs one pass over post's approved entries. Entry failures are
// recorded on the entry and never abort the pass; only a failure to save
// the post is returned as an error. A pass runs to completion even when the
// caller's context is cancelled.
func (o *Orchestrator) Publish(ctx context.Context, post *models.Post, user *models.User) (*Outcome, error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := telemetry.StartSpan(ctx, "publisher.publish")
	defer span.End()
	span.SetAttributes(attribute.String("post_id", post.ID))

	results := make([]Result, 0, len(post.AdaptedContent))
	for i := range post.AdaptedContent {
		entry := &post.AdaptedContent[i]
		if !entry.IsApproved {
			continue
		}
		results = append(results, o.publishEntry(ctx, post, user, entry))
	}

	post.RecomputeStatus(o.now())
	post.UpdatedAt = o.now()

	if err := o.store.SavePost(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to save post %s after publishing: %w", post.ID, err)
	}

	o.logger.Info("Publish pass complete",
		zap.String("post_id", post.ID),
		zap.String("status", string(post.Status)),
		zap.Int("entries", len(results)),
	)
	return &Outcome{Results: results, Post: post}, nil
}

func (o *Orchestrator) publishEntry(ctx context.Context, post *models.Post, user *models.User, entry *models.AdaptedContent) Result {
	logger := o.logger.With(logging.PostFields(post.ID, entry.Platform.String())...)
	res := Result{Platform: entry.Platform}

	if entry.PublishStatus == models.PublishPublished {
		logger.Debug("Entry already published, skipping")
		res.Success = true
		res.Skipped = true
		res.PostID = entry.RemoteID
		return res
	}

	fail := func(msg string, err error) Result {
		entry.PublishStatus = models.PublishFailed
		entry.ErrorMessage = msg
		o.attempts.Add(ctx, 1, attribute.String("platform", entry.Platform.String()), attribute.String("outcome", "failed"))
		logger.Warn("Publish failed", zap.String("reason", msg), zap.Error(err))
		res.Error = msg
		return res
	}

	acc := user.ActiveAccount(entry.Platform)
	if acc == nil {
		return fail(AccountNotConnected, nil)
	}
	logger = logger.With(zap.String("account_id", acc.ID))

	if err := o.creds.EnsureFresh(ctx, user, acc); err != nil {
		return fail(platform.Message(err), err)
	}

	client, err := o.clients.ForAccount(acc)
	if err != nil {
		return fail(platform.Message(err), err)
	}

	opts := platform.PublishOptions{
		Title:     entry.Title,
		Images:    post.Images,
		ChatID:    acc.ExternalID,
		Subreddit: acc.SubredditName,
	}
	if entry.Platform != models.PlatformTelegram {
		opts.Videos = post.Videos
	}

	remote, err := client.Publish(ctx, entry.Content, opts)
	if err != nil {
		if platform.IsUnauthorized(err) {
			o.deactivate(ctx, user, acc, logger)
		}
		return fail(platform.Message(err), err)
	}

	now := o.now()
	entry.PublishStatus = models.PublishPublished
	entry.PublishedAt = &now
	entry.ErrorMessage = ""
	entry.RemoteID = remote.ID

	o.attempts.Add(ctx, 1, attribute.String("platform", entry.Platform.String()), attribute.String("outcome", "published"))
	logger.Info("Published", zap.String("remote_id", remote.ID))

	res.Success = true
	res.PostID = remote.ID
	return res
}

// deactivate flags an account whose token the platform no longer accepts
func (o *Orchestrator) deactivate(ctx context.Context, user *models.User, acc *models.SocialAccount, logger *zap.Logger) {
	inactive := false
	acc.IsActive = false
	if err := o.store.PatchSocialAccount(ctx, user.ID, acc.ID, models.AccountPatch{IsActive: &inactive}); err != nil {
		logger.Error("Failed to deactivate unauthorized account", zap.Error(err))
		return
	}
	logger.Warn("Account deactivated after unauthorized response")
}
