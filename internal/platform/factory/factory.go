// Package factory builds platform clients from stored account credentials.
package factory

import (
	"fmt"

	"github.com/crosspost/crosspost/internal/errs"
	"github.com/crosspost/crosspost/internal/models"
	"github.com/crosspost/crosspost/internal/platform"
	"github.com/crosspost/crosspost/internal/platform/reddit"
	"github.com/crosspost/crosspost/internal/platform/telegram"
	"github.com/crosspost/crosspost/internal/platform/twitter"
	"github.com/crosspost/crosspost/pkg/config"
)

// Factory resolves a platform.Client for a SocialAccount
type Factory struct {
	Twitter     twitter.Config
	TelegramURL string
	Reddit      reddit.Config
}

// New creates a factory from application configuration
func New(cfg *config.Config) *Factory {
	return &Factory{
		Twitter: twitter.Config{
			ConsumerKey:    cfg.Twitter.ConsumerKey,
			ConsumerSecret: cfg.Twitter.ConsumerSecret,
			APIBaseURL:     cfg.Twitter.APIBaseURL,
			UploadBaseURL:  cfg.Twitter.UploadBaseURL,
			PollProcessing: cfg.Twitter.PollProcessing,
		},
		TelegramURL: cfg.Telegram.APIBaseURL,
		Reddit:      RedditConfig(cfg),
	}
}

// RedditConfig maps application configuration onto the Reddit client
func RedditConfig(cfg *config.Config) reddit.Config {
	return reddit.Config{
		ClientID:     cfg.Reddit.ClientID,
		ClientSecret: cfg.Reddit.ClientSecret,
		UserAgent:    cfg.Reddit.UserAgent,
		RedirectURL:  cfg.Reddit.RedirectURL,
		APIBaseURL:   cfg.Reddit.APIBaseURL,
		AuthBaseURL:  cfg.Reddit.AuthBaseURL,
		AssetDelay:   cfg.Reddit.AssetDelay,
	}
}

// ForAccount implements platform.Resolver. Each client is built from the
// account's own credentials; Twitter keeps its access secret in the
// refresh token field.
func (f *Factory) ForAccount(acc *models.SocialAccount) (platform.Client, error) {
	if acc == nil {
		return nil, errs.ErrAccountUnavailable
	}
	if acc.AccessToken == "" {
		return nil, fmt.Errorf("%s account %s has no access token: %w", acc.Platform, acc.ID, errs.ErrAccountUnavailable)
	}

	switch acc.Platform {
	case models.PlatformTwitter:
		if acc.RefreshToken == "" {
			return nil, fmt.Errorf("twitter account %s has no access secret: %w", acc.ID, errs.ErrAccountUnavailable)
		}
		return twitter.New(f.Twitter, acc.AccessToken, acc.RefreshToken), nil
	case models.PlatformTelegram:
		return telegram.New(f.TelegramURL, acc.AccessToken), nil
	case models.PlatformReddit:
		return reddit.New(f.Reddit, acc.AccessToken, acc.RefreshToken), nil
	default:
		return nil, fmt.Errorf("unknown platform %q: %w", acc.Platform, errs.ErrUnsupported)
	}
}
