// Package store selects the persistence backend for posts and users.
package store

import (
	"context"
	"fmt"

	"github.com/crosspost/crosspost/internal/db"
	"github.com/crosspost/crosspost/internal/docstore"
	"github.com/crosspost/crosspost/internal/models"
	"github.com/crosspost/crosspost/pkg/config"
)

// Store is the persistence surface used by services. Finders return
// (nil, nil) when nothing matches.
type Store interface {
	FindPostByID(ctx context.Context, id string) (*models.Post, error)
	ListPostsByUser(ctx context.Context, userID string) ([]*models.Post, error)
	SavePost(ctx context.Context, post *models.Post) error
	DeletePost(ctx context.Context, id string) error

	FindUserByID(ctx context.Context, id string) (*models.User, error)
	FindUserBySocialAccountID(ctx context.Context, accountID string) (*models.User, error)
	SaveUser(ctx context.Context, user *models.User) error
	UpsertSocialAccount(ctx context.Context, userID string, acc models.SocialAccount) error
	RemoveSocialAccount(ctx context.Context, userID, accountID string) error
	PatchSocialAccount(ctx context.Context, userID, accountID string, patch models.AccountPatch) error

	Health(ctx context.Context) error
	Close(ctx context.Context) error
}

var (
	_ Store = (*db.Repository)(nil)
	_ Store = (*docstore.Store)(nil)
)

// Open connects the backend named by cfg.Database.Driver
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Database.Driver {
	case "mongo":
		return docstore.Connect(ctx, cfg.Database.URL, cfg.Database.MongoDatabase)
	case "postgres", "":
		conn, err := db.New(&cfg.Database, cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		if err := conn.Migrate(); err != nil {
			conn.Close()
			return nil, err
		}
		return db.NewRepository(conn), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}
