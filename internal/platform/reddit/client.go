package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/crosspost/crosspost/internal/models"
	"github.com/crosspost/crosspost/internal/platform"
	"github.com/crosspost/crosspost/pkg/logging"
	"github.com/crosspost/crosspost/pkg/telemetry"
)

const (
	// TokenLifetime is the documented access token lifetime
	TokenLifetime = time.Hour

	maxTitleLength = 300
	requestTimeout = time.Minute
)

// Scopes requested during authorization
var Scopes = []string{"identity", "submit", "read", "history"}

// Config holds the application credentials and endpoints
type Config struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
	RedirectURL  string
	APIBaseURL   string
	AuthBaseURL  string
	// AssetDelay is waited between a media upload and the submit that
	// references it
	AssetDelay time.Duration
}

// OAuthConfig returns the oauth2 configuration for the Reddit app
func OAuthConfig(cfg Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthBaseURL + "/api/v1/authorize",
			TokenURL:  cfg.AuthBaseURL + "/api/v1/access_token",
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// AuthCodeURL returns the authorization page URL for a permanent grant
func AuthCodeURL(cfg Config, state string) string {
	return OAuthConfig(cfg).AuthCodeURL(state, oauth2.SetAuthURLParam("duration", "permanent"))
}

// Exchange trades an authorization code for a token pair
func Exchange(ctx context.Context, cfg Config, code string) (*platform.Token, error) {
	ctx, span := telemetry.StartSpan(ctx, "reddit.exchange_code")
	defer span.End()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, baseHTTPClient(cfg.UserAgent))
	tok, err := OAuthConfig(cfg).Exchange(ctx, code)
	if err != nil {
		return nil, tokenError(err)
	}
	return &platform.Token{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken, Expiry: tok.Expiry}, nil
}

// Client acts for one Reddit user
type Client struct {
	cfg          Config
	accessToken  string
	refreshToken string
	base         *http.Client
	http         *http.Client
	logger       *zap.Logger
}

// New creates a client with the user's current token pair
func New(cfg Config, accessToken, refreshToken string) *Client {
	c := &Client{
		cfg:          cfg,
		refreshToken: refreshToken,
		base:         baseHTTPClient(cfg.UserAgent),
		logger:       logging.WithComponent("reddit-client"),
	}
	c.setAccessToken(accessToken)
	return c
}

func (c *Client) setAccessToken(token string) {
	c.accessToken = token
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.base)
	c.http = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "bearer"}))
	c.http.Timeout = requestTimeout
}

// Platform implements platform.Client
func (c *Client) Platform() models.Platform {
	return models.PlatformReddit
}

// RefreshCredentials exchanges the refresh token for a new access token
// using HTTP Basic client authentication. The client switches to the new
// token on success.
func (c *Client) RefreshCredentials(ctx context.Context) (*platform.Token, error) {
	ctx, span := telemetry.StartSpan(ctx, "reddit.refresh")
	defer span.End()

	if c.refreshToken == "" {
		return nil, platform.Rejected(models.PlatformReddit, 0, "no refresh token stored")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.base)
	src := OAuthConfig(c.cfg).TokenSource(ctx, &oauth2.Token{RefreshToken: c.refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, tokenError(err)
	}

	c.setAccessToken(tok.AccessToken)
	if tok.RefreshToken != "" {
		c.refreshToken = tok.RefreshToken
	}
	return &platform.Token{AccessToken: tok.AccessToken, RefreshToken: c.refreshToken, Expiry: tok.Expiry}, nil
}

type submitResponse struct {
	JSON struct {
		Errors [][]interface{} `json:"errors"`
		Data   struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			URL  string `json:"url"`
		} `json:"data"`
	} `json:"json"`
}

// Publish submits to opts.Subreddit. With media the first item is uploaded
// and submitted as an image post; otherwise a self post carries the text.
// A media failure fails the whole submission.
func (c *Client) Publish(ctx context.Context, text string, opts platform.PublishOptions) (*platform.PostResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "reddit.publish")
	defer span.End()

	if opts.Subreddit == "" {
		return nil, platform.Rejected(models.PlatformReddit, 0, "Reddit subreddit is not configured")
	}
	span.SetAttributes(attribute.String("subreddit", opts.Subreddit))

	form := url.Values{
		"api_type": {"json"},
		"sr":       {opts.Subreddit},
		"title":    {Title(opts.Title, text)},
	}

	if media := opts.Media(); len(media) > 0 {
		if len(media) > 1 {
			c.logger.Info("Reddit image posts take one asset, extra media ignored", zap.Int("count", len(media)))
		}
		asset, err := c.UploadMedia(ctx, media[0])
		if err != nil {
			return nil, err
		}
		if err := platform.Wait(ctx, c.cfg.AssetDelay); err != nil {
			return nil, err
		}
		form.Set("kind", "image")
		form.Set("url", asset.URL)
		form.Set("resubmit", "true")
		form.Set("sendreplies", "true")
	} else {
		form.Set("kind", "self")
		form.Set("text", text)
	}

	var resp submitResponse
	if err := c.postForm(ctx, c.cfg.APIBaseURL+"/api/submit", form, &resp); err != nil {
		return nil, err
	}
	if msg := firstError(resp.JSON.Errors); msg != "" {
		return nil, platform.Rejected(models.PlatformReddit, 0, msg)
	}

	return &platform.PostResult{ID: resp.JSON.Data.ID, URL: resp.JSON.Data.URL}, nil
}

type about struct {
	Data struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		DisplayName  string `json:"display_name"`
		Title        string `json:"title"`
		Subscribers  int64  `json:"subscribers"`
		TotalKarma   int64  `json:"total_karma"`
		LinkKarma    int64  `json:"link_karma"`
		CommentKarma int64  `json:"comment_karma"`
	} `json:"data"`
}

// FetchProfile resolves "r/<name>" to a subreddit, with subscribers as the
// audience, and anything else to a user, with total karma as the audience.
func (c *Client) FetchProfile(ctx context.Context, identifier string) (*platform.Profile, error) {
	ctx, span := telemetry.StartSpan(ctx, "reddit.fetch_profile")
	defer span.End()

	if name, ok := SubredditName(identifier); ok {
		var a about
		if err := c.get(ctx, "/r/"+url.PathEscape(name)+"/about.json", &a); err != nil {
			return nil, err
		}
		return &platform.Profile{
			ID:          a.Data.ID,
			Username:    a.Data.DisplayName,
			DisplayName: a.Data.Title,
			Audience:    a.Data.Subscribers,
		}, nil
	}

	var a about
	if err := c.get(ctx, "/user/"+url.PathEscape(strings.TrimPrefix(identifier, "u/"))+"/about.json", &a); err != nil {
		return nil, err
	}
	return &platform.Profile{
		ID:       a.Data.ID,
		Username: a.Data.Name,
		Audience: karma(a),
	}, nil
}

// FetchEngagement reports the user's karma
func (c *Client) FetchEngagement(ctx context.Context, username string) (*platform.Engagement, error) {
	ctx, span := telemetry.StartSpan(ctx, "reddit.fetch_engagement")
	defer span.End()

	var a about
	if err := c.get(ctx, "/user/"+url.PathEscape(strings.TrimPrefix(username, "u/"))+"/about.json", &a); err != nil {
		return nil, err
	}
	return &platform.Engagement{Karma: karma(a)}, nil
}

// Me returns the identity owning the access token
func (c *Client) Me(ctx context.Context) (*platform.Profile, error) {
	ctx, span := telemetry.StartSpan(ctx, "reddit.me")
	defer span.End()

	var me struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		TotalKarma int64  `json:"total_karma"`
	}
	if err := c.get(ctx, "/api/v1/me", &me); err != nil {
		return nil, err
	}
	return &platform.Profile{ID: me.ID, Username: me.Name, Audience: me.TotalKarma}, nil
}

// GetPost returns the raw listing for a submission id
func (c *Client) GetPost(ctx context.Context, id string) (json.RawMessage, error) {
	ctx, span := telemetry.StartSpan(ctx, "reddit.get_post")
	defer span.End()

	var raw json.RawMessage
	if err := c.get(ctx, "/comments/"+url.PathEscape(id)+".json", &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// DeletePost deletes one of the user's submissions
func (c *Client) DeletePost(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "reddit.delete_post")
	defer span.End()

	var resp submitResponse
	if err := c.postForm(ctx, c.cfg.APIBaseURL+"/api/del", url.Values{"id": {"t3_" + id}}, &resp); err != nil {
		return err
	}
	if msg := firstError(resp.JSON.Errors); msg != "" {
		return platform.Rejected(models.PlatformReddit, 0, msg)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIBaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return platform.Do(c.http, models.PlatformReddit, req, out, errorMessage)
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return platform.Do(c.http, models.PlatformReddit, req, out, errorMessage)
}

// Title picks the submission title: the explicit title, else the first
// line of the text, capped at Reddit's limit
func Title(title, text string) string {
	if strings.TrimSpace(title) == "" {
		title = strings.TrimSpace(strings.SplitN(text, "\n", 2)[0])
	}
	if r := []rune(title); len(r) > maxTitleLength {
		title = string(r[:maxTitleLength])
	}
	return title
}

// SubredditName extracts the name from "r/<name>" or "/r/<name>"
func SubredditName(identifier string) (string, bool) {
	s := strings.TrimPrefix(identifier, "/")
	if !strings.HasPrefix(s, "r/") {
		return "", false
	}
	return strings.TrimPrefix(s, "r/"), true
}

func karma(a about) int64 {
	if a.Data.TotalKarma != 0 {
		return a.Data.TotalKarma
	}
	return a.Data.LinkKarma + a.Data.CommentKarma
}

// firstError returns the message of the first entry of a json.errors array,
// shaped [code, message, field]
func firstError(errs [][]interface{}) string {
	if len(errs) == 0 {
		return ""
	}
	first := errs[0]
	if len(first) > 1 {
		if msg, ok := first[1].(string); ok && msg != "" {
			return msg
		}
	}
	if len(first) > 0 {
		if code, ok := first[0].(string); ok {
			return code
		}
	}
	return "Reddit rejected the request"
}

func errorMessage(body []byte) string {
	var resp struct {
		Message string      `json:"message"`
		Error   interface{} `json:"error"`
		JSON    struct {
			Errors [][]interface{} `json:"errors"`
		} `json:"json"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	if msg := firstError(resp.JSON.Errors); msg != "" {
		return msg
	}
	if resp.Message != "" {
		return resp.Message
	}
	if s, ok := resp.Error.(string); ok {
		return s
	}
	return ""
}

// tokenError converts an oauth2 failure into a platform error
func tokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		msg := re.ErrorCode
		if re.ErrorDescription != "" {
			msg = re.ErrorDescription
		}
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		pe := platform.Rejected(models.PlatformReddit, status, msg)
		pe.Err = err
		return pe
	}
	return platform.Transport(models.PlatformReddit, err)
}

// userAgentTransport stamps the app's User-Agent on every request
type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(r)
}

func baseHTTPClient(agent string) *http.Client {
	return &http.Client{
		Timeout:   requestTimeout,
		Transport: &userAgentTransport{agent: agent, base: http.DefaultTransport},
	}
}
