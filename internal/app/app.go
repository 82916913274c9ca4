// Package app wires the services shared by the API server and the
// scheduler from configuration.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/crosspost/crosspost/internal/cache"
	"github.com/crosspost/crosspost/internal/credentials"
	"github.com/crosspost/crosspost/internal/platform/factory"
	"github.com/crosspost/crosspost/internal/publisher"
	"github.com/crosspost/crosspost/internal/scheduler"
	"github.com/crosspost/crosspost/internal/store"
	"github.com/crosspost/crosspost/pkg/config"
	"github.com/crosspost/crosspost/pkg/logging"
)

// App holds the long-lived collaborators. Queue is nil when Redis is
// disabled.
type App struct {
	Config      *config.Config
	Store       store.Store
	Cache       *cache.Cache
	Clients     *factory.Factory
	Credentials *credentials.Manager
	Publisher   *publisher.Orchestrator
	Queue       scheduler.Queue
}

// New connects the store and cache and builds the publishing pipeline
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	st, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	redisCache, err := cache.New(&cfg.Redis)
	if err != nil {
		st.Close(ctx)
		return nil, err
	}

	clients := factory.New(cfg)
	creds := credentials.NewManager(st, clients)

	a := &App{
		Config:      cfg,
		Store:       st,
		Cache:       redisCache,
		Clients:     clients,
		Credentials: creds,
		Publisher:   publisher.New(st, creds, clients),
	}
	if client := redisCache.Client(); client != nil {
		a.Queue = scheduler.NewRedisQueue(client)
	}
	return a, nil
}

// Close releases the store and cache connections
func (a *App) Close(ctx context.Context) {
	logger := logging.GetLogger()
	if err := a.Cache.Close(); err != nil {
		logger.Error("Failed to close redis", zap.Error(err))
	}
	if err := a.Store.Close(ctx); err != nil {
		logger.Error("Failed to close store", zap.Error(err))
	}
}
