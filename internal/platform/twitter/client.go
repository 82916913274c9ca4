package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/crosspost/crosspost/internal/models"
	"github.com/crosspost/crosspost/internal/platform"
	"github.com/crosspost/crosspost/pkg/logging"
	"github.com/crosspost/crosspost/pkg/telemetry"
)

const (
	// MaxMedia is the number of attachments a tweet accepts
	MaxMedia = 4
	// ChunkSize is the APPEND segment size for chunked uploads
	ChunkSize = 5 << 20

	requestTimeout = 2 * time.Minute
)

// Config holds the application credentials and endpoints
type Config struct {
	ConsumerKey    string
	ConsumerSecret string
	APIBaseURL     string
	UploadBaseURL  string
	// PollProcessing waits for video processing to finish after FINALIZE
	PollProcessing bool
}

// Client talks to the Twitter API on behalf of one user. Every request is
// signed with OAuth 1.0a using the user's access token and secret.
type Client struct {
	cfg    Config
	http   *http.Client
	media  *http.Client
	logger *zap.Logger
}

// New creates a client for the given user token pair
func New(cfg Config, accessToken, accessSecret string) *Client {
	oauthCfg := oauth1.NewConfig(cfg.ConsumerKey, cfg.ConsumerSecret)
	hc := oauthCfg.Client(oauth1.NoContext, oauth1.NewToken(accessToken, accessSecret))
	hc.Timeout = requestTimeout

	return &Client{
		cfg:    cfg,
		http:   hc,
		media:  platform.NewHTTPClient(requestTimeout),
		logger: logging.WithComponent("twitter-client"),
	}
}

// Platform implements platform.Client
func (c *Client) Platform() models.Platform {
	return models.PlatformTwitter
}

type tweetRequest struct {
	Text  string      `json:"text"`
	Media *tweetMedia `json:"media,omitempty"`
}

type tweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// Publish creates a tweet, attaching up to four uploaded media items.
// Media that fails to upload is skipped.
func (c *Client) Publish(ctx context.Context, text string, opts platform.PublishOptions) (*platform.PostResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "twitter.publish")
	defer span.End()

	body := tweetRequest{Text: text}
	if media := opts.Media(); len(media) > 0 {
		if ids := c.UploadMedia(ctx, media); len(ids) > 0 {
			body.Media = &tweetMedia{MediaIDs: ids}
		}
	}
	span.SetAttributes(attribute.Bool("has_media", body.Media != nil))

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tweet: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBaseURL+"/2/tweets", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build tweet request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp tweetResponse
	if err := platform.Do(c.http, models.PlatformTwitter, req, &resp, errorMessage); err != nil {
		return nil, err
	}

	return &platform.PostResult{
		ID:  resp.Data.ID,
		URL: "https://twitter.com/i/web/status/" + resp.Data.ID,
	}, nil
}

type userResponse struct {
	IDStr          string `json:"id_str"`
	ScreenName     string `json:"screen_name"`
	Name           string `json:"name"`
	FollowersCount int64  `json:"followers_count"`
}

func (u userResponse) profile() *platform.Profile {
	return &platform.Profile{
		ID:          u.IDStr,
		Username:    u.ScreenName,
		DisplayName: u.Name,
		Audience:    u.FollowersCount,
	}
}

// FetchProfile looks up a user by numeric id; Audience is the follower count
func (c *Client) FetchProfile(ctx context.Context, userID string) (*platform.Profile, error) {
	ctx, span := telemetry.StartSpan(ctx, "twitter.fetch_profile")
	defer span.End()

	var resp userResponse
	if err := c.get(ctx, "/1.1/users/show.json", url.Values{"user_id": {userID}}, &resp); err != nil {
		return nil, err
	}
	return resp.profile(), nil
}

// VerifyCredentials returns the profile owning the client's token
func (c *Client) VerifyCredentials(ctx context.Context) (*platform.Profile, error) {
	ctx, span := telemetry.StartSpan(ctx, "twitter.verify_credentials")
	defer span.End()

	var resp userResponse
	if err := c.get(ctx, "/1.1/account/verify_credentials.json", url.Values{"skip_status": {"true"}}, &resp); err != nil {
		return nil, err
	}
	return resp.profile(), nil
}

// FetchEngagement sums likes, retweets and replies over the user's last
// five tweets
func (c *Client) FetchEngagement(ctx context.Context, userID string) (*platform.Engagement, error) {
	ctx, span := telemetry.StartSpan(ctx, "twitter.fetch_engagement")
	defer span.End()

	var tweets []struct {
		FavoriteCount int64 `json:"favorite_count"`
		RetweetCount  int64 `json:"retweet_count"`
		ReplyCount    int64 `json:"reply_count"`
	}
	params := url.Values{"user_id": {userID}, "count": {"5"}}
	if err := c.get(ctx, "/1.1/statuses/user_timeline.json", params, &tweets); err != nil {
		return nil, err
	}

	var e platform.Engagement
	for _, t := range tweets {
		e.Likes += t.FavoriteCount
		e.Shares += t.RetweetCount
		e.Replies += t.ReplyCount
	}
	return &e, nil
}

// RefreshCredentials is unsupported: OAuth 1.0a user tokens do not expire
func (c *Client) RefreshCredentials(ctx context.Context) (*platform.Token, error) {
	return nil, platform.Unsupported(models.PlatformTwitter, "credential refresh")
}

// GetPost returns the raw status object
func (c *Client) GetPost(ctx context.Context, id string) (json.RawMessage, error) {
	ctx, span := telemetry.StartSpan(ctx, "twitter.get_post")
	defer span.End()

	var raw json.RawMessage
	if err := c.get(ctx, "/1.1/statuses/show.json", url.Values{"id": {id}}, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// DeletePost destroys a status
func (c *Client) DeletePost(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "twitter.delete_post")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/1.1/statuses/destroy/%s.json", c.cfg.APIBaseURL, url.PathEscape(id)), nil)
	if err != nil {
		return fmt.Errorf("failed to build delete request: %w", err)
	}
	return platform.Do(c.http, models.PlatformTwitter, req, nil, errorMessage)
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	u := c.cfg.APIBaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return platform.Do(c.http, models.PlatformTwitter, req, out, errorMessage)
}

// errorMessage reads both the v1.1 errors array and the v2 problem shape
func errorMessage(body []byte) string {
	var resp struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
		Detail string `json:"detail"`
		Title  string `json:"title"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return strings.TrimSpace(string(body))
	}
	switch {
	case len(resp.Errors) > 0 && resp.Errors[0].Message != "":
		return resp.Errors[0].Message
	case resp.Detail != "":
		return resp.Detail
	}
	return resp.Title
}
