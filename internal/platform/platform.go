// Package platform defines the capability surface shared by the Twitter,
// Telegram and Reddit clients.
package platform

import (
	"context"
	"encoding/json"
	"time"

	"github.com/crosspost/crosspost/internal/models"
)

// PublishOptions carries everything a client needs besides the text
type PublishOptions struct {
	Title     string
	Images    []string
	Videos    []string
	ChatID    string
	Subreddit string
}

// Media returns images followed by videos
func (o PublishOptions) Media() []string {
	media := make([]string, 0, len(o.Images)+len(o.Videos))
	media = append(media, o.Images...)
	return append(media, o.Videos...)
}

// PostResult identifies a remote post created by Publish
type PostResult struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

// Profile is the remote identity behind an account, with its audience size
type Profile struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
	Audience    int64  `json:"audience"`
}

// Engagement aggregates interaction counters
type Engagement struct {
	Likes   int64 `json:"likes"`
	Shares  int64 `json:"shares"`
	Replies int64 `json:"replies"`
	Karma   int64 `json:"karma,omitempty"`
}

// Token is a freshly issued credential
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Client is implemented once per platform. Operations a platform cannot
// perform return an *Error of KindUnsupported.
type Client interface {
	Platform() models.Platform
	Publish(ctx context.Context, text string, opts PublishOptions) (*PostResult, error)
	FetchProfile(ctx context.Context, identifier string) (*Profile, error)
	FetchEngagement(ctx context.Context, identifier string) (*Engagement, error)
	RefreshCredentials(ctx context.Context) (*Token, error)
	GetPost(ctx context.Context, id string) (json.RawMessage, error)
	DeletePost(ctx context.Context, id string) error
}

// Resolver builds the client for a connected account
type Resolver interface {
	ForAccount(acc *models.SocialAccount) (Client, error)
}

// ResolverFunc adapts a function to Resolver
type ResolverFunc func(acc *models.SocialAccount) (Client, error)

// ForAccount calls f(acc)
func (f ResolverFunc) ForAccount(acc *models.SocialAccount) (Client, error) {
	return f(acc)
}
