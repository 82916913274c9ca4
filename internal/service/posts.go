package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crosspost/crosspost/internal/adapter"
	"github.com/crosspost/crosspost/internal/errs"
	"github.com/crosspost/crosspost/internal/models"
	"github.com/crosspost/crosspost/internal/publisher"
	"github.com/crosspost/crosspost/internal/scheduler"
	"github.com/crosspost/crosspost/internal/storage"
	"github.com/crosspost/crosspost/internal/store"
	"github.com/crosspost/crosspost/pkg/logging"
)

// MaxMediaFiles bounds one media upload request
const MaxMediaFiles = 4

// Publisher runs a publish pass
type Publisher interface {
	Publish(ctx context.Context, post *models.Post, user *models.User) (*publisher.Outcome, error)
}

// CreatePostInput is the payload for CreatePost
type CreatePostInput struct {
	Content   string   `json:"content" validate:"required,max=2000"`
	Platforms []string `json:"platforms" validate:"required,min=1,dive,oneof=twitter telegram reddit"`
	Images    []string `json:"images" validate:"max=4,dive,url"`
	Videos    []string `json:"videos" validate:"max=4,dive,url"`
}

// MediaFile is one uploaded file
type MediaFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// UploadedMedia lists stored media URLs split by kind
type UploadedMedia struct {
	Images []string `json:"images"`
	Videos []string `json:"videos"`
}

// PostService manages posts
type PostService struct {
	store     store.Store
	publisher Publisher
	queue     scheduler.Queue
	media     storage.Store
	now       func() time.Time
	logger    *zap.Logger
}

// NewPostService creates a post service. queue and media may be nil, in
// which case scheduling and uploads report ErrUnsupported.
func NewPostService(st store.Store, pub Publisher, queue scheduler.Queue, media storage.Store) *PostService {
	return &PostService{
		store:     st,
		publisher: pub,
		queue:     queue,
		media:     media,
		now:       time.Now,
		logger:    logging.WithComponent("post-service"),
	}
}

// CreatePost validates the input and stores a draft with one adapted entry
// per target platform, in the order the platforms were given
func (s *PostService) CreatePost(ctx context.Context, userID string, in CreatePostInput) (*models.Post, error) {
	in.Content = strings.TrimSpace(in.Content)
	if err := validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	now := s.now().UTC()
	post := &models.Post{
		ID:              uuid.NewString(),
		UserID:          userID,
		OriginalContent: in.Content,
		Images:          nonNil(in.Images),
		Videos:          nonNil(in.Videos),
		Status:          models.PostStatusDraft,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, name := range in.Platforms {
		p, err := models.ParsePlatform(name)
		if err != nil {
			return nil, invalid("%v", err)
		}
		if post.Targets(p) {
			return nil, invalid("platform %s listed twice", p)
		}
		post.TargetPlatforms = append(post.TargetPlatforms, p)
	}

	media := adapter.Media{Images: post.Images, Videos: post.Videos}
	for _, p := range post.TargetPlatforms {
		entry, err := adapter.Adapt(p, post.OriginalContent, media)
		if err != nil {
			s.logger.Warn("Adaptation failed, storing unadapted content",
				append(logging.PostFields(post.ID, p.String()), zap.Error(err))...)
			entry = adapter.Unadapted(p, post.OriginalContent, media)
		}
		if err := post.AddAdaptedContent(entry); err != nil {
			return nil, err
		}
	}

	if err := s.store.SavePost(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to save post: %w", err)
	}
	s.logger.Info("Post created", zap.String("post_id", post.ID), zap.Int("platforms", len(post.TargetPlatforms)))
	return post, nil
}

// ListPosts returns the user's posts, newest first
func (s *PostService) ListPosts(ctx context.Context, userID string) ([]*models.Post, error) {
	posts, err := s.store.ListPostsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return posts, nil
}

// GetPost returns a post owned by userID
func (s *PostService) GetPost(ctx context.Context, userID, postID string) (*models.Post, error) {
	post, err := s.store.FindPostByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to load post: %w", err)
	}
	if post == nil || post.UserID != userID {
		return nil, fmt.Errorf("post %s: %w", postID, errs.ErrNotFound)
	}
	return post, nil
}

// ApprovePost approves the platform's entry, replacing its content when
// content is non-empty
func (s *PostService) ApprovePost(ctx context.Context, userID, postID, platform string, content *string) (*models.Post, error) {
	p, err := models.ParsePlatform(platform)
	if err != nil {
		return nil, invalid("%v", err)
	}
	if content != nil && strings.TrimSpace(*content) == "" {
		return nil, invalid("content must not be empty")
	}

	post, err := s.GetPost(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	entry := post.Entry(p)
	if entry == nil {
		return nil, fmt.Errorf("adapted content for %s: %w", p, errs.ErrNotFound)
	}

	entry.IsApproved = true
	if content != nil {
		entry.Content = strings.TrimSpace(*content)
	}
	post.UpdatedAt = s.now().UTC()

	if err := s.store.SavePost(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to save post: %w", err)
	}
	return post, nil
}

// PublishPost publishes the approved entries of a post now
func (s *PostService) PublishPost(ctx context.Context, userID, postID string) (*publisher.Outcome, error) {
	post, err := s.GetPost(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", userID, errs.ErrNotFound)
	}

	// A post whose job is dropped stays a draft unless this pass publishes it.
	if post.Status == models.PostStatusScheduled && s.queue != nil {
		if err := s.queue.Cancel(ctx, post.ID); err != nil {
			s.logger.Warn("Failed to drop scheduled job before publishing", zap.String("post_id", post.ID), zap.Error(err))
		} else {
			post.Status = models.PostStatusDraft
			post.ScheduledAt = nil
		}
	}

	return s.publisher.Publish(ctx, post, user)
}

// DeletePost removes a post and any scheduled job for it
func (s *PostService) DeletePost(ctx context.Context, userID, postID string) error {
	post, err := s.GetPost(ctx, userID, postID)
	if err != nil {
		return err
	}
	if post.Status == models.PostStatusScheduled && s.queue != nil {
		if err := s.queue.Cancel(ctx, post.ID); err != nil {
			return fmt.Errorf("failed to cancel scheduled job: %w", err)
		}
	}
	if err := s.store.DeletePost(ctx, post.ID); err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return nil
}

// SchedulePost queues the post for publishing at a future time
func (s *PostService) SchedulePost(ctx context.Context, userID, postID string, at time.Time) (*models.Post, error) {
	if s.queue == nil {
		return nil, fmt.Errorf("scheduling requires redis: %w", errs.ErrUnsupported)
	}
	if !at.After(s.now()) {
		return nil, invalid("scheduled time must be in the future")
	}

	post, err := s.GetPost(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	if post.Status == models.PostStatusPublished {
		return nil, invalid("post is already published")
	}

	if err := s.queue.Schedule(ctx, post.ID, at); err != nil {
		return nil, err
	}

	at = at.UTC()
	post.ScheduledAt = &at
	post.Status = models.PostStatusScheduled
	post.UpdatedAt = s.now().UTC()
	if err := s.store.SavePost(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to save post: %w", err)
	}
	s.logger.Info("Post scheduled", zap.String("post_id", post.ID), zap.String("job_id", scheduler.JobID(post.ID)), zap.Time("at", at))
	return post, nil
}

// CancelSchedule drops the scheduled job and returns the post to draft
func (s *PostService) CancelSchedule(ctx context.Context, userID, postID string) (*models.Post, error) {
	if s.queue == nil {
		return nil, fmt.Errorf("scheduling requires redis: %w", errs.ErrUnsupported)
	}
	post, err := s.GetPost(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	if post.Status != models.PostStatusScheduled {
		return nil, invalid("post is not scheduled")
	}

	if err := s.queue.Cancel(ctx, post.ID); err != nil {
		return nil, err
	}
	post.ScheduledAt = nil
	post.Status = models.PostStatusDraft
	post.UpdatedAt = s.now().UTC()
	if err := s.store.SavePost(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to save post: %w", err)
	}
	return post, nil
}

// UploadMedia stores up to MaxMediaFiles images or videos. Any failure
// aborts the whole upload.
func (s *PostService) UploadMedia(ctx context.Context, files []MediaFile) (*UploadedMedia, error) {
	if s.media == nil {
		return nil, fmt.Errorf("media storage is not configured: %w", errs.ErrUnsupported)
	}
	if len(files) == 0 {
		return nil, invalid("no media files provided")
	}
	if len(files) > MaxMediaFiles {
		return nil, invalid("at most %d media files are allowed", MaxMediaFiles)
	}
	for _, f := range files {
		if !storage.IsImage(f.ContentType) && !storage.IsVideo(f.ContentType) {
			return nil, invalid("%s is neither an image nor a video", f.Name)
		}
	}

	out := &UploadedMedia{Images: []string{}, Videos: []string{}}
	for _, f := range files {
		url, err := s.media.Upload(ctx, f.Name, f.ContentType, f.Data)
		if err != nil {
			return nil, err
		}
		if storage.IsVideo(f.ContentType) {
			out.Videos = append(out.Videos, url)
		} else {
			out.Images = append(out.Images, url)
		}
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
