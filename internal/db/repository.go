package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/crosspost/crosspost/internal/errs"
	"github.com/crosspost/crosspost/internal/models"
)

// Repository stores posts and users in Postgres. Adapted content and
// social accounts live in child tables keyed by their stable ids.
type Repository struct {
	conn *DB
	db   *gorm.DB
}

// NewRepository creates a new repository
func NewRepository(conn *DB) *Repository {
	return &Repository{conn: conn, db: conn.DB}
}

// Health pings the database
func (r *Repository) Health(ctx context.Context) error {
	return r.conn.Health(ctx)
}

// Close closes the connection
func (r *Repository) Close(ctx context.Context) error {
	return r.conn.Close()
}

func orderedEntries(tx *gorm.DB) *gorm.DB {
	return tx.Order("position ASC")
}

// FindPostByID returns the post with its adapted content, or nil if absent
func (r *Repository) FindPostByID(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	err := r.db.WithContext(ctx).
		Preload("AdaptedContent", orderedEntries).
		First(&post, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &post, nil
}

// ListPostsByUser returns a user's posts, newest first
func (r *Repository) ListPostsByUser(ctx context.Context, userID string) ([]*models.Post, error) {
	var posts []*models.Post
	err := r.db.WithContext(ctx).
		Preload("AdaptedContent", orderedEntries).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}

// SavePost upserts the post and each adapted entry in array order
func (r *Repository) SavePost(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(post).Error; err != nil {
			return fmt.Errorf("failed to save post: %w", err)
		}

		ids := make([]string, 0, len(post.AdaptedContent))
		for i := range post.AdaptedContent {
			entry := &post.AdaptedContent[i]
			entry.PostID = post.ID
			entry.Position = i
			if err := tx.Save(entry).Error; err != nil {
				return fmt.Errorf("failed to save %s entry: %w", entry.Platform, err)
			}
			ids = append(ids, entry.ID)
		}

		stale := tx.Where("post_id = ?", post.ID)
		if len(ids) > 0 {
			stale = stale.Where("id NOT IN ?", ids)
		}
		return stale.Delete(&models.AdaptedContent{}).Error
	})
}

// DeletePost removes a post and its adapted content
func (r *Repository) DeletePost(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.AdaptedContent{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Post{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errs.ErrNotFound
		}
		return nil
	})
}

// FindUserByID returns the user with its social accounts, or nil if absent
func (r *Repository) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Preload("SocialAccounts").First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// FindUserBySocialAccountID returns the owner of an account, or nil
func (r *Repository) FindUserBySocialAccountID(ctx context.Context, accountID string) (*models.User, error) {
	var acc models.SocialAccount
	if err := r.db.WithContext(ctx).Select("user_id").First(&acc, "id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.FindUserByID(ctx, acc.UserID)
}

// SaveUser upserts the user and its accounts; accounts no longer present
// are deleted
func (r *Repository) SaveUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(user).Error; err != nil {
			return fmt.Errorf("failed to save user: %w", err)
		}

		ids := make([]string, 0, len(user.SocialAccounts))
		for i := range user.SocialAccounts {
			acc := &user.SocialAccounts[i]
			acc.UserID = user.ID
			if err := tx.Save(acc).Error; err != nil {
				return fmt.Errorf("failed to save %s account: %w", acc.Platform, err)
			}
			ids = append(ids, acc.ID)
		}

		stale := tx.Where("user_id = ?", user.ID)
		if len(ids) > 0 {
			stale = stale.Where("id NOT IN ?", ids)
		}
		return stale.Delete(&models.SocialAccount{}).Error
	})
}

// UpsertSocialAccount writes one account row; sibling rows are untouched
func (r *Repository) UpsertSocialAccount(ctx context.Context, userID string, acc models.SocialAccount) error {
	acc.UserID = userID
	if err := r.db.WithContext(ctx).Save(&acc).Error; err != nil {
		return fmt.Errorf("failed to save %s account: %w", acc.Platform, err)
	}
	return nil
}

// RemoveSocialAccount deletes one account row
func (r *Repository) RemoveSocialAccount(ctx context.Context, userID, accountID string) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", accountID, userID).
		Delete(&models.SocialAccount{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("social account %s: %w", accountID, errs.ErrNotFound)
	}
	return nil
}

// PatchSocialAccount updates only the patched columns of one account row
func (r *Repository) PatchSocialAccount(ctx context.Context, userID, accountID string, patch models.AccountPatch) error {
	if patch.Empty() {
		return nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.SocialAccount{}).
		Where("id = ? AND user_id = ?", accountID, userID).
		Updates(patch.Fields())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("social account %s: %w", accountID, errs.ErrNotFound)
	}
	return nil
}
