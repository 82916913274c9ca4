package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/crosspost/crosspost/internal/models"
	"github.com/crosspost/crosspost/internal/platform"
	"github.com/crosspost/crosspost/pkg/logging"
	"github.com/crosspost/crosspost/pkg/telemetry"
)

const requestTimeout = 30 * time.Second

// Client calls the Bot API with the bot token embedded in each path
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

// New creates a client for a bot token
func New(baseURL, botToken string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   botToken,
		http:    platform.NewHTTPClient(requestTimeout),
		logger:  logging.WithComponent("telegram-client"),
	}
}

// Platform implements platform.Client
func (c *Client) Platform() models.Platform {
	return models.PlatformTelegram
}

// envelope is the Bot API response wrapper
type envelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

type message struct {
	MessageID int64 `json:"message_id"`
}

// BotInfo is the result of getMe
type BotInfo struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// Publish sends a text message, or one photo per image with the caption on
// the first photo only. Images keep their order.
func (c *Client) Publish(ctx context.Context, text string, opts platform.PublishOptions) (*platform.PostResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "telegram.publish")
	defer span.End()
	span.SetAttributes(attribute.Int("images", len(opts.Images)))

	if opts.ChatID == "" {
		return nil, platform.Rejected(models.PlatformTelegram, 0, "Telegram chat id is not configured")
	}

	if len(opts.Images) == 0 {
		var msg message
		err := c.call(ctx, "sendMessage", map[string]interface{}{
			"chat_id":    opts.ChatID,
			"text":       text,
			"parse_mode": "HTML",
		}, &msg)
		if err != nil {
			return nil, err
		}
		return &platform.PostResult{ID: strconv.FormatInt(msg.MessageID, 10)}, nil
	}

	var first string
	for i, image := range opts.Images {
		caption := ""
		if i == 0 {
			caption = text
		}
		var msg message
		err := c.call(ctx, "sendPhoto", map[string]interface{}{
			"chat_id":    opts.ChatID,
			"photo":      image,
			"caption":    caption,
			"parse_mode": "HTML",
		}, &msg)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			first = strconv.FormatInt(msg.MessageID, 10)
		}
	}
	return &platform.PostResult{ID: first}, nil
}

// GetMe returns the bot's own identity; it doubles as token verification
func (c *Client) GetMe(ctx context.Context) (*BotInfo, error) {
	ctx, span := telemetry.StartSpan(ctx, "telegram.get_me")
	defer span.End()

	var bot BotInfo
	if err := c.call(ctx, "getMe", nil, &bot); err != nil {
		return nil, err
	}
	return &bot, nil
}

// ChatMembersCount returns the member count of a chat or channel
func (c *Client) ChatMembersCount(ctx context.Context, chatID string) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "telegram.get_chat_members_count")
	defer span.End()

	var count int64
	if err := c.call(ctx, "getChatMembersCount", map[string]interface{}{"chat_id": chatID}, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// FetchProfile returns the bot identity and, for a non-empty chat id, the
// chat's member count as the audience
func (c *Client) FetchProfile(ctx context.Context, chatID string) (*platform.Profile, error) {
	bot, err := c.GetMe(ctx)
	if err != nil {
		return nil, err
	}

	p := &platform.Profile{
		ID:          strconv.FormatInt(bot.ID, 10),
		Username:    bot.Username,
		DisplayName: bot.FirstName,
	}
	if chatID != "" {
		count, err := c.ChatMembersCount(ctx, chatID)
		if err != nil {
			return nil, err
		}
		p.Audience = count
	}
	return p, nil
}

// FetchEngagement is unsupported by the Bot API
func (c *Client) FetchEngagement(ctx context.Context, identifier string) (*platform.Engagement, error) {
	return nil, platform.Unsupported(models.PlatformTelegram, "engagement stats")
}

// RefreshCredentials is unsupported: bot tokens do not expire
func (c *Client) RefreshCredentials(ctx context.Context) (*platform.Token, error) {
	return nil, platform.Unsupported(models.PlatformTelegram, "credential refresh")
}

// GetPost is unsupported
func (c *Client) GetPost(ctx context.Context, id string) (json.RawMessage, error) {
	return nil, platform.Unsupported(models.PlatformTelegram, "getPost")
}

// DeletePost is unsupported
func (c *Client) DeletePost(ctx context.Context, id string) error {
	return platform.Unsupported(models.PlatformTelegram, "deletePost")
}

// call invokes a Bot API method. A JSON body is sent when params is set.
func (c *Client) call(ctx context.Context, method string, params map[string]interface{}, out interface{}) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, url.PathEscape(c.token), method)

	var req *http.Request
	var err error
	if params == nil {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	} else {
		var body []byte
		body, err = json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to encode %s params: %w", method, err)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}

	var env envelope
	if err := platform.Do(c.http, models.PlatformTelegram, req, &env, description); err != nil {
		return err
	}
	if !env.OK {
		msg := env.Description
		if msg == "" {
			msg = fmt.Sprintf("%s failed", method)
		}
		return platform.Rejected(models.PlatformTelegram, 0, msg)
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return &platform.Error{
				Platform: models.PlatformTelegram,
				Kind:     platform.KindTransport,
				Message:  fmt.Sprintf("invalid %s result", method),
				Err:      err,
			}
		}
	}
	return nil
}

func description(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	return env.Description
}
