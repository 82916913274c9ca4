package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crosspost/crosspost/internal/cache"
	"github.com/crosspost/crosspost/internal/credentials"
	"github.com/crosspost/crosspost/internal/errs"
	"github.com/crosspost/crosspost/internal/models"
	"github.com/crosspost/crosspost/internal/platform"
	"github.com/crosspost/crosspost/internal/platform/factory"
	"github.com/crosspost/crosspost/internal/platform/reddit"
	"github.com/crosspost/crosspost/internal/platform/telegram"
	"github.com/crosspost/crosspost/internal/platform/twitter"
	"github.com/crosspost/crosspost/internal/store"
	"github.com/crosspost/crosspost/pkg/logging"
)

const (
	// ReachCacheTTL bounds how long a reach report is served from redis
	ReachCacheTTL = 10 * time.Minute
	// StateTTL bounds the Reddit authorization round trip
	StateTTL = 10 * time.Minute
)

var subredditPattern = regexp.MustCompile(`^[A-Za-z0-9_]{2,21}$`)

// Credentials keeps account tokens usable
type Credentials interface {
	EnsureFresh(ctx context.Context, user *models.User, acc *models.SocialAccount) error
	RefreshExpired(ctx context.Context, user *models.User) []credentials.Result
}

// TwitterInput is the token pair captured by the Twitter connect flow
type TwitterInput struct {
	AccessToken  string `json:"accessToken" validate:"required"`
	AccessSecret string `json:"accessSecret" validate:"required"`
}

// TelegramInput identifies the bot and the channel it posts to
type TelegramInput struct {
	BotToken  string `json:"botToken" validate:"required"`
	ChannelID string `json:"channelId" validate:"required"`
}

// ReachDetail is the audience of one connected account
type ReachDetail struct {
	Platform     models.Platform      `json:"platform"`
	Username     string               `json:"username"`
	AudienceSize int64                `json:"audienceSize"`
	Engagement   *platform.Engagement `json:"engagement,omitempty"`
	Cached       bool                 `json:"cached"`
}

// ReachReport sums the audience of every active account
type ReachReport struct {
	TotalAudienceSize int64         `json:"totalAudienceSize"`
	Details           []ReachDetail `json:"details"`
}

// AccountService manages connected social accounts
type AccountService struct {
	store   store.Store
	creds   Credentials
	clients platform.Resolver
	connect *factory.Factory
	cache   *cache.Cache
	secret  []byte
	now     func() time.Time
	logger  *zap.Logger
}

// NewAccountService creates an account service. clients resolves clients
// for stored accounts; connect supplies the platform configuration used
// while an account is being connected. c may be nil.
func NewAccountService(st store.Store, creds Credentials, clients platform.Resolver, connect *factory.Factory, c *cache.Cache, jwtSecret string) *AccountService {
	return &AccountService{
		store:   st,
		creds:   creds,
		clients: clients,
		connect: connect,
		cache:   c,
		secret:  []byte(jwtSecret),
		now:     time.Now,
		logger:  logging.WithComponent("account-service"),
	}
}

func (s *AccountService) loadUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", userID, errs.ErrNotFound)
	}
	return user, nil
}

func (s *AccountService) account(ctx context.Context, userID, name string) (*models.User, *models.SocialAccount, error) {
	p, err := models.ParsePlatform(name)
	if err != nil {
		return nil, nil, invalid("%v", err)
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	acc := user.Account(p)
	if acc == nil {
		return nil, nil, fmt.Errorf("%s account: %w", p, errs.ErrNotFound)
	}
	return user, acc, nil
}

// ListAccounts returns the user's connected accounts
func (s *AccountService) ListAccounts(ctx context.Context, userID string) ([]models.SocialAccount, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.SocialAccounts == nil {
		return []models.SocialAccount{}, nil
	}
	return user.SocialAccounts, nil
}

// ConnectAccount stores acc as the user's account for its platform.
// Reconnecting replaces the credentials in place and reactivates it.
func (s *AccountService) ConnectAccount(ctx context.Context, userID string, acc models.SocialAccount) (*models.SocialAccount, error) {
	if !acc.Platform.Valid() {
		return nil, invalid("unsupported platform: %q", acc.Platform)
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if existing := user.Account(acc.Platform); existing != nil && acc.SubredditName == "" {
		acc.SubredditName = existing.SubredditName
	}
	acc.ID = uuid.NewString()
	acc.IsActive = true
	acc.ConnectedAt = s.now().UTC()
	stored := *user.UpsertAccount(acc)

	if err := s.store.UpsertSocialAccount(ctx, userID, stored); err != nil {
		return nil, fmt.Errorf("failed to save account: %w", err)
	}
	s.invalidateReach(ctx, userID)
	s.logger.Info("Social account connected",
		zap.String("user_id", userID),
		zap.String("platform", acc.Platform.String()),
		zap.String("username", acc.Username))
	return &stored, nil
}

// ConnectTwitter verifies the token pair and stores the account. The
// access secret is kept in the refresh token field.
func (s *AccountService) ConnectTwitter(ctx context.Context, userID string, in TwitterInput) (*models.SocialAccount, error) {
	if err := validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	profile, err := twitter.New(s.connect.Twitter, in.AccessToken, in.AccessSecret).VerifyCredentials(ctx)
	if err != nil {
		return nil, err
	}
	return s.ConnectAccount(ctx, userID, models.SocialAccount{
		Platform:       models.PlatformTwitter,
		ExternalID:     profile.ID,
		Username:       profile.Username,
		AccessToken:    in.AccessToken,
		RefreshToken:   in.AccessSecret,
		FollowersCount: profile.Audience,
	})
}

// ConnectTelegram verifies the bot token and stores the channel as the
// account's external id
func (s *AccountService) ConnectTelegram(ctx context.Context, userID string, in TelegramInput) (*models.SocialAccount, error) {
	if err := validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	bot, err := telegram.New(s.connect.TelegramURL, in.BotToken).GetMe(ctx)
	if err != nil {
		return nil, err
	}
	return s.ConnectAccount(ctx, userID, models.SocialAccount{
		Platform:    models.PlatformTelegram,
		ExternalID:  in.ChannelID,
		Username:    bot.Username,
		AccessToken: in.BotToken,
	})
}

// RedditAuthURL returns the authorize URL. The state is a short-lived
// token signed with the server secret naming the user.
func (s *AccountService) RedditAuthURL(userID string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"uid": userID,
		"iat": now.Unix(),
		"exp": now.Add(StateTTL).Unix(),
	}
	state, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign oauth state: %w", err)
	}
	return reddit.AuthCodeURL(s.connect.Reddit, state), nil
}

func (s *AccountService) stateUser(state string) (string, error) {
	token, err := jwt.Parse(state, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid oauth state: %w", errs.ErrForbidden)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid oauth state: %w", errs.ErrForbidden)
	}
	uid, _ := claims["uid"].(string)
	if uid == "" {
		return "", fmt.Errorf("oauth state has no user: %w", errs.ErrForbidden)
	}
	return uid, nil
}

// CompleteReddit exchanges the authorization code and stores the account
// owned by the user named in state
func (s *AccountService) CompleteReddit(ctx context.Context, state, code string) (*models.SocialAccount, error) {
	userID, err := s.stateUser(state)
	if err != nil {
		return nil, err
	}
	if code == "" {
		return nil, invalid("authorization code is required")
	}

	tok, err := reddit.Exchange(ctx, s.connect.Reddit, code)
	if err != nil {
		return nil, err
	}
	me, err := reddit.New(s.connect.Reddit, tok.AccessToken, tok.RefreshToken).Me(ctx)
	if err != nil {
		return nil, err
	}

	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = s.now().Add(credentials.TokenLifetime)
	}
	expiry = expiry.UTC()
	return s.ConnectAccount(ctx, userID, models.SocialAccount{
		Platform:     models.PlatformReddit,
		ExternalID:   me.ID,
		Username:     me.Username,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenExpiry:  &expiry,
	})
}

// ToggleAccount flips the account's active flag
func (s *AccountService) ToggleAccount(ctx context.Context, userID, platformName string) (*models.SocialAccount, error) {
	_, acc, err := s.account(ctx, userID, platformName)
	if err != nil {
		return nil, err
	}
	active := !acc.IsActive
	patch := models.AccountPatch{IsActive: &active}
	if err := s.store.PatchSocialAccount(ctx, userID, acc.ID, patch); err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}
	patch.Apply(acc)
	s.invalidateReach(ctx, userID)
	return acc, nil
}

// SetSubreddit sets the subreddit Reddit posts are submitted to. A leading
// "r/" is accepted.
func (s *AccountService) SetSubreddit(ctx context.Context, userID, subreddit string) (*models.SocialAccount, error) {
	name := strings.TrimSpace(subreddit)
	if n, ok := reddit.SubredditName(name); ok {
		name = n
	}
	if !subredditPattern.MatchString(name) {
		return nil, invalid("invalid subreddit name %q", subreddit)
	}

	_, acc, err := s.account(ctx, userID, models.PlatformReddit.String())
	if err != nil {
		return nil, err
	}
	patch := models.AccountPatch{SubredditName: &name}
	if err := s.store.PatchSocialAccount(ctx, userID, acc.ID, patch); err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}
	patch.Apply(acc)
	s.invalidateReach(ctx, userID)
	return acc, nil
}

// DisconnectAccount removes the user's account for the platform
func (s *AccountService) DisconnectAccount(ctx context.Context, userID, platformName string) error {
	user, acc, err := s.account(ctx, userID, platformName)
	if err != nil {
		return err
	}
	if err := s.store.RemoveSocialAccount(ctx, userID, acc.ID); err != nil {
		return fmt.Errorf("failed to remove account: %w", err)
	}
	user.RemoveAccount(acc.Platform)
	s.invalidateReach(ctx, userID)
	return nil
}

// RefreshOnLogin refreshes every expired account of the user
func (s *AccountService) RefreshOnLogin(ctx context.Context, userID string) ([]credentials.Result, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	results := s.creds.RefreshExpired(ctx, user)
	if results == nil {
		results = []credentials.Result{}
	}
	return results, nil
}

// Reach reports the audience of each active account. Live numbers are
// written back as the cached audience; when the live fetch fails the
// cached numbers are reported instead.
func (s *AccountService) Reach(ctx context.Context, userID string) (*ReachReport, error) {
	key := reachKey(userID)
	var cached ReachReport
	if found, err := s.cache.GetJSON(ctx, key, &cached); err == nil && found {
		return &cached, nil
	}

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	report := &ReachReport{Details: []ReachDetail{}}
	for i := range user.SocialAccounts {
		acc := &user.SocialAccounts[i]
		if !acc.IsActive {
			continue
		}
		detail := s.reach(ctx, user, acc)
		report.TotalAudienceSize += detail.AudienceSize
		report.Details = append(report.Details, detail)
	}

	if err := s.cache.SetJSON(ctx, key, report, ReachCacheTTL); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
		s.logger.Warn("Failed to cache reach report", zap.String("user_id", userID), zap.Error(err))
	}
	return report, nil
}

func (s *AccountService) reach(ctx context.Context, user *models.User, acc *models.SocialAccount) ReachDetail {
	detail := ReachDetail{Platform: acc.Platform, Username: acc.Username}

	profile, engagement, err := s.liveReach(ctx, user, acc)
	if err != nil {
		s.logger.Warn("Live reach unavailable, using cached audience",
			zap.String("platform", acc.Platform.String()),
			zap.String("account_id", acc.ID),
			zap.Error(err))
		detail.AudienceSize = acc.CachedAudience()
		detail.Cached = true
		return detail
	}

	detail.AudienceSize = profile.Audience
	detail.Engagement = engagement
	if patch, changed := audiencePatch(acc, profile.Audience); changed {
		if err := s.store.PatchSocialAccount(ctx, user.ID, acc.ID, patch); err != nil {
			s.logger.Warn("Failed to store audience size", zap.String("account_id", acc.ID), zap.Error(err))
		} else {
			patch.Apply(acc)
		}
	}
	return detail
}

func (s *AccountService) liveReach(ctx context.Context, user *models.User, acc *models.SocialAccount) (*platform.Profile, *platform.Engagement, error) {
	if err := s.creds.EnsureFresh(ctx, user, acc); err != nil {
		return nil, nil, err
	}
	client, err := s.clients.ForAccount(acc)
	if err != nil {
		return nil, nil, err
	}

	identifier := acc.ExternalID
	if acc.Platform == models.PlatformReddit {
		identifier = acc.Username
		if acc.SubredditName != "" {
			identifier = "r/" + acc.SubredditName
		}
	}

	profile, err := client.FetchProfile(ctx, identifier)
	if err != nil {
		return nil, nil, err
	}
	if acc.Platform != models.PlatformTwitter {
		return profile, nil, nil
	}

	engagement, err := client.FetchEngagement(ctx, identifier)
	if err != nil {
		s.logger.Debug("Engagement unavailable", zap.String("account_id", acc.ID), zap.Error(err))
		return profile, nil, nil
	}
	return profile, engagement, nil
}

func audiencePatch(acc *models.SocialAccount, audience int64) (models.AccountPatch, bool) {
	if acc.CachedAudience() == audience {
		return models.AccountPatch{}, false
	}
	var patch models.AccountPatch
	switch acc.Platform {
	case models.PlatformTwitter:
		patch.FollowersCount = &audience
	case models.PlatformTelegram:
		patch.MemberCount = &audience
	case models.PlatformReddit:
		patch.Subscribers = &audience
	}
	return patch, !patch.Empty()
}

// reachKey is relative to the cache namespace
func reachKey(userID string) string {
	return "reach:" + userID
}

func (s *AccountService) invalidateReach(ctx context.Context, userID string) {
	if err := s.cache.Delete(ctx, reachKey(userID)); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
		s.logger.Warn("Failed to drop cached reach report", zap.String("user_id", userID), zap.Error(err))
	}
}
