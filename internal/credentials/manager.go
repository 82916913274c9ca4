// Package credentials keeps expiring OAuth tokens usable. An account is
// valid while its expiry lies ahead, expired once it has passed, and
// deactivated when a refresh attempt fails.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/crosspost/crosspost/internal/errs"
	"github.com/crosspost/crosspost/internal/models"
	"github.com/crosspost/crosspost/internal/platform"
	"github.com/crosspost/crosspost/pkg/logging"
	"github.com/crosspost/crosspost/pkg/telemetry"
)

// TokenLifetime is the validity recorded after a successful refresh
const TokenLifetime = 3600 * time.Second

// AccountStore persists changes to one embedded social account
type AccountStore interface {
	PatchSocialAccount(ctx context.Context, userID, accountID string, patch models.AccountPatch) error
}

// Manager refreshes account credentials
type Manager struct {
	store     AccountStore
	clients   platform.Resolver
	group     singleflight.Group
	now       func() time.Time
	logger    *zap.Logger
	refreshes *telemetry.Counter
}

// NewManager creates a credential manager
func NewManager(store AccountStore, clients platform.Resolver) *Manager {
	return &Manager{
		store:     store,
		clients:   clients,
		now:       time.Now,
		logger:    logging.WithComponent("credentials"),
		refreshes: telemetry.NewCounter("crosspost.credentials.refreshes", "Credential refresh attempts"),
	}
}

// WithClock replaces the time source
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// NeedsRefresh reports whether acc holds an expiring token that has expired
func (m *Manager) NeedsRefresh(acc *models.SocialAccount) bool {
	return acc != nil && acc.Platform.ExpiringTokens() && acc.Expired(m.now())
}

// EnsureFresh refreshes acc when its token has expired and is a no-op
// otherwise
func (m *Manager) EnsureFresh(ctx context.Context, user *models.User, acc *models.SocialAccount) error {
	if !m.NeedsRefresh(acc) {
		return nil
	}
	return m.Refresh(ctx, user, acc)
}

// Refresh exchanges acc's refresh token for a new access token and writes
// only that account's token fields. On failure the account is deactivated
// and its stale token kept. acc is updated in place either way.
func (m *Manager) Refresh(ctx context.Context, user *models.User, acc *models.SocialAccount) error {
	ctx, span := telemetry.StartSpan(ctx, "credentials.refresh")
	defer span.End()
	span.SetAttributes(
		attribute.String("platform", acc.Platform.String()),
		attribute.String("account_id", acc.ID),
	)

	logger := m.logger.With(
		zap.String("user_id", user.ID),
		zap.String("account_id", acc.ID),
		zap.String("platform", acc.Platform.String()),
	)

	// Concurrent refreshes of one account share a single round trip, which
	// outlives any one caller's cancellation.
	shared := context.WithoutCancel(ctx)
	v, err, _ := m.group.Do(acc.ID, func() (interface{}, error) {
		return m.refresh(shared, user.ID, acc)
	})
	if err != nil {
		m.refreshes.Add(ctx, 1, attribute.String("platform", acc.Platform.String()), attribute.String("outcome", "failed"))
		if errors.Is(err, errs.ErrCredentialRefreshFailed) {
			logger.Warn("Credential refresh failed, account deactivated", zap.Error(err))
			acc.IsActive = false
		} else {
			logger.Error("Credential refresh could not be saved", zap.Error(err))
		}
		return fmt.Errorf("refresh %s account %s: %w", acc.Platform, acc.ID, err)
	}

	v.(models.AccountPatch).Apply(acc)
	m.refreshes.Add(ctx, 1, attribute.String("platform", acc.Platform.String()), attribute.String("outcome", "refreshed"))
	logger.Info("Credential refreshed", zap.Timep("token_expiry", acc.TokenExpiry))
	return nil
}

func (m *Manager) refresh(ctx context.Context, userID string, acc *models.SocialAccount) (models.AccountPatch, error) {
	client, err := m.clients.ForAccount(acc)
	if err != nil {
		return models.AccountPatch{}, m.deactivate(ctx, userID, acc.ID, err)
	}

	tok, err := client.RefreshCredentials(ctx)
	if err != nil {
		return models.AccountPatch{}, m.deactivate(ctx, userID, acc.ID, err)
	}

	expiry := m.now().Add(TokenLifetime)
	patch := models.AccountPatch{
		AccessToken: &tok.AccessToken,
		TokenExpiry: &expiry,
	}
	if tok.RefreshToken != "" && tok.RefreshToken != acc.RefreshToken {
		patch.RefreshToken = &tok.RefreshToken
	}

	if err := m.store.PatchSocialAccount(ctx, userID, acc.ID, patch); err != nil {
		return models.AccountPatch{}, fmt.Errorf("failed to save refreshed token: %w", err)
	}
	return patch, nil
}

// deactivate marks the account inactive and wraps cause as a refresh failure
func (m *Manager) deactivate(ctx context.Context, userID, accountID string, cause error) error {
	inactive := false
	if err := m.store.PatchSocialAccount(ctx, userID, accountID, models.AccountPatch{IsActive: &inactive}); err != nil {
		m.logger.Error("Failed to deactivate account",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
	}
	return fmt.Errorf("%w: %w", errs.ErrCredentialRefreshFailed, cause)
}

// Result is the outcome of refreshing one account in a batch
type Result struct {
	AccountID string          `json:"accountId"`
	Platform  models.Platform `json:"platform"`
	Error     string          `json:"error,omitempty"`
}

// RefreshExpired refreshes every expired account of user independently.
// A failing account is deactivated and the rest are still processed.
func (m *Manager) RefreshExpired(ctx context.Context, user *models.User) []Result {
	var results []Result
	for i := range user.SocialAccounts {
		acc := &user.SocialAccounts[i]
		if !acc.IsActive || !m.NeedsRefresh(acc) {
			continue
		}
		r := Result{AccountID: acc.ID, Platform: acc.Platform}
		if err := m.Refresh(ctx, user, acc); err != nil {
			r.Error = platform.Message(err)
		}
		results = append(results, r)
	}
	return results
}
