// Package api exposes the posting and account services over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/crosspost/crosspost/internal/ai"
	"github.com/crosspost/crosspost/internal/credentials"
	"github.com/crosspost/crosspost/internal/models"
	"github.com/crosspost/crosspost/internal/publisher"
	"github.com/crosspost/crosspost/internal/service"
	"github.com/crosspost/crosspost/pkg/logging"
	"github.com/crosspost/crosspost/pkg/telemetry"
)

// PostService is the post surface used by the handlers
type PostService interface {
	CreatePost(ctx context.Context, userID string, in service.CreatePostInput) (*models.Post, error)
	ListPosts(ctx context.Context, userID string) ([]*models.Post, error)
	ApprovePost(ctx context.Context, userID, postID, platform string, content *string) (*models.Post, error)
	PublishPost(ctx context.Context, userID, postID string) (*publisher.Outcome, error)
	DeletePost(ctx context.Context, userID, postID string) error
	SchedulePost(ctx context.Context, userID, postID string, at time.Time) (*models.Post, error)
	CancelSchedule(ctx context.Context, userID, postID string) (*models.Post, error)
	UploadMedia(ctx context.Context, files []service.MediaFile) (*service.UploadedMedia, error)
}

// AccountService is the account surface used by the handlers
type AccountService interface {
	ListAccounts(ctx context.Context, userID string) ([]models.SocialAccount, error)
	ToggleAccount(ctx context.Context, userID, platform string) (*models.SocialAccount, error)
	SetSubreddit(ctx context.Context, userID, subreddit string) (*models.SocialAccount, error)
	DisconnectAccount(ctx context.Context, userID, platform string) error
	RefreshOnLogin(ctx context.Context, userID string) ([]credentials.Result, error)
	Reach(ctx context.Context, userID string) (*service.ReachReport, error)
	ConnectTwitter(ctx context.Context, userID string, in service.TwitterInput) (*models.SocialAccount, error)
	ConnectTelegram(ctx context.Context, userID string, in service.TelegramInput) (*models.SocialAccount, error)
	RedditAuthURL(userID string) (string, error)
	CompleteReddit(ctx context.Context, state, code string) (*models.SocialAccount, error)
}

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Options configures the router
type Options struct {
	JWTSecret   string
	FrontendURL string
}

// Router sets up API routes
type Router struct {
	posts     PostService
	accounts  AccountService
	generator ai.Generator
	store     HealthChecker
	secret    string
	frontend  string
	validate  *validator.Validate
	requests  *telemetry.Counter
	logger    *zap.Logger
}

// NewRouter creates a new API router
func NewRouter(posts PostService, accounts AccountService, generator ai.Generator, store HealthChecker, opts Options) *Router {
	return &Router{
		posts:     posts,
		accounts:  accounts,
		generator: generator,
		store:     store,
		secret:    opts.JWTSecret,
		frontend:  opts.FrontendURL,
		validate:  validator.New(),
		requests:  telemetry.NewCounter("crosspost.http.requests", "HTTP requests by route and status"),
		logger:    logging.WithComponent("api-router"),
	}
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	engine.Use(r.instrument)

	engine.GET("/health", r.healthHandler)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Reddit redirects the browser here without our bearer token; the
	// signed state identifies the user.
	engine.GET("/api/oauth/reddit/callback", r.redditCallback)

	api := engine.Group("/api", r.authenticate)

	posts := api.Group("/posts")
	posts.POST("", r.createPost)
	posts.POST("/media", r.uploadMedia)
	posts.GET("", r.listPosts)
	posts.PATCH("/:id/approve", r.approvePost)
	posts.POST("/:id/publish", r.publishPost)
	posts.POST("/:id/schedule", r.schedulePost)
	posts.DELETE("/:id/schedule", r.cancelSchedule)
	posts.DELETE("/:id", r.deletePost)

	social := api.Group("/social")
	social.GET("/accounts", r.listAccounts)
	social.PATCH("/accounts/reddit/subreddit", r.setSubreddit)
	social.PATCH("/accounts/:platform/toggle", r.toggleAccount)
	social.DELETE("/accounts/:platform", r.disconnectAccount)
	social.GET("/reach", r.reach)
	social.POST("/refresh", r.refreshAccounts)

	oauth := api.Group("/oauth")
	oauth.GET("/reddit", r.redditAuthURL)
	oauth.POST("/telegram", r.connectTelegram)
	oauth.POST("/twitter", r.connectTwitter)

	api.POST("/ai/generate", r.generatePost)
}

func (r *Router) instrument(c *gin.Context) {
	c.Next()
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	r.requests.Add(c.Request.Context(), 1,
		attribute.String("route", route),
		attribute.String("method", c.Request.Method),
		attribute.Int("status", c.Writer.Status()))
}

// healthHandler handles health check requests
func (r *Router) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if r.store != nil {
		if err := r.store.Health(ctx); err != nil {
			r.logger.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "UNAVAILABLE",
				"service": "crosspost-api",
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "OK",
		"service": "crosspost-api",
	})
}
