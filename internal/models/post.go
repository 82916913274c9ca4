package models

import (
	"fmt"
	"time"
)

// PostStatus is the post-level status derived from its adapted entries
type PostStatus string

const (
	PostStatusDraft     PostStatus = "draft"
	PostStatusScheduled PostStatus = "scheduled"
	PostStatusPublished PostStatus = "published"
	PostStatusFailed    PostStatus = "failed"
)

// PublishStatus tracks a single platform variant
type PublishStatus string

const (
	PublishPending   PublishStatus = "pending"
	PublishPublished PublishStatus = "published"
	PublishFailed    PublishStatus = "failed"
)

// MaxContentLength bounds Post.OriginalContent, counted in characters
const MaxContentLength = 2000

// Post is one piece of authored content and its per-platform variants
type Post struct {
	ID              string           `gorm:"primaryKey;type:varchar(36);column:id" bson:"_id" json:"id"`
	UserID          string           `gorm:"type:varchar(36);not null;index:posts_user_created;column:user_id" bson:"user_id" json:"userId"`
	OriginalContent string           `gorm:"type:text;not null;column:original_content" bson:"original_content" json:"originalContent"`
	Images          []string         `gorm:"serializer:json;type:text;column:images" bson:"images" json:"images"`
	Videos          []string         `gorm:"serializer:json;type:text;column:videos" bson:"videos" json:"videos"`
	TargetPlatforms []Platform       `gorm:"serializer:json;type:text;column:target_platforms" bson:"target_platforms" json:"targetPlatforms"`
	AdaptedContent  []AdaptedContent `gorm:"foreignKey:PostID;references:ID;constraint:OnDelete:CASCADE" bson:"adapted_content" json:"adaptedContent"`
	Status          PostStatus       `gorm:"type:varchar(16);not null;default:draft;column:status" bson:"status" json:"status"`
	ScheduledAt     *time.Time       `gorm:"column:scheduled_at" bson:"scheduled_at,omitempty" json:"scheduledAt,omitempty"`
	PublishedAt     *time.Time       `gorm:"column:published_at" bson:"published_at,omitempty" json:"publishedAt,omitempty"`
	CreatedAt       time.Time        `gorm:"not null;index:posts_user_created;column:created_at" bson:"created_at" json:"createdAt"`
	UpdatedAt       time.Time        `gorm:"not null;column:updated_at" bson:"updated_at" json:"updatedAt"`
}

// TableName specifies the table name for Post
func (Post) TableName() string {
	return "posts"
}

// AdaptedContent is the platform-shaped variant of a post. It has no
// lifecycle outside its Post.
type AdaptedContent struct {
	ID               string        `gorm:"primaryKey;type:varchar(36);column:id" bson:"_id" json:"id"`
	PostID           string        `gorm:"type:varchar(36);not null;uniqueIndex:adapted_post_platform;column:post_id" bson:"-" json:"-"`
	Position         int           `gorm:"not null;default:0;column:position" bson:"position" json:"-"`
	Platform         Platform      `gorm:"type:varchar(16);not null;uniqueIndex:adapted_post_platform;column:platform" bson:"platform" json:"platform"`
	Content          string        `gorm:"type:text;not null;column:content" bson:"content" json:"content"`
	Title            string        `gorm:"type:varchar(300);column:title" bson:"title,omitempty" json:"title,omitempty"`
	Hashtags         []string      `gorm:"serializer:json;type:text;column:hashtags" bson:"hashtags" json:"hashtags"`
	Link             string        `gorm:"type:varchar(2048);column:link" bson:"link,omitempty" json:"link,omitempty"`
	Image            string        `gorm:"type:varchar(2048);column:image" bson:"image,omitempty" json:"image,omitempty"`
	Video            string        `gorm:"type:varchar(2048);column:video" bson:"video,omitempty" json:"video,omitempty"`
	FormattedContent string        `gorm:"type:text;column:formatted_content" bson:"formatted_content,omitempty" json:"formattedContent,omitempty"`
	Explanation      string        `gorm:"type:varchar(255);column:explanation" bson:"explanation,omitempty" json:"explanation,omitempty"`
	Adapted          bool          `gorm:"not null;column:adapted" bson:"adapted" json:"adapted"`
	IsApproved       bool          `gorm:"not null;column:is_approved" bson:"is_approved" json:"isApproved"`
	PublishStatus    PublishStatus `gorm:"type:varchar(16);not null;default:pending;column:publish_status" bson:"publish_status" json:"publishStatus"`
	PublishedAt      *time.Time    `gorm:"column:published_at" bson:"published_at,omitempty" json:"publishedAt,omitempty"`
	ErrorMessage     string        `gorm:"type:text;column:error_message" bson:"error_message,omitempty" json:"errorMessage,omitempty"`
	RemoteID         string        `gorm:"type:varchar(64);column:remote_id" bson:"remote_id,omitempty" json:"remoteId,omitempty"`
}

// TableName specifies the table name for AdaptedContent
func (AdaptedContent) TableName() string {
	return "adapted_contents"
}

// Targets reports whether platform is one of the post's target platforms
func (p *Post) Targets(platform Platform) bool {
	for _, t := range p.TargetPlatforms {
		if t == platform {
			return true
		}
	}
	return false
}

// Entry returns the adapted entry for platform, or nil
func (p *Post) Entry(platform Platform) *AdaptedContent {
	for i := range p.AdaptedContent {
		if p.AdaptedContent[i].Platform == platform {
			return &p.AdaptedContent[i]
		}
	}
	return nil
}

// AddAdaptedContent appends an entry, keeping adapted platforms a subset of
// the targets with at most one entry per platform.
func (p *Post) AddAdaptedContent(ac AdaptedContent) error {
	if !p.Targets(ac.Platform) {
		return fmt.Errorf("platform %s is not a target of post %s", ac.Platform, p.ID)
	}
	if p.Entry(ac.Platform) != nil {
		return fmt.Errorf("post %s already has adapted content for %s", p.ID, ac.Platform)
	}
	ac.PostID = p.ID
	ac.Position = len(p.AdaptedContent)
	if ac.PublishStatus == "" {
		ac.PublishStatus = PublishPending
	}
	p.AdaptedContent = append(p.AdaptedContent, ac)
	return nil
}

// Media returns image URLs followed by video URLs
func (p *Post) Media() []string {
	media := make([]string, 0, len(p.Images)+len(p.Videos))
	media = append(media, p.Images...)
	return append(media, p.Videos...)
}

// RecomputeStatus derives the post status from its approved entries:
// any failure marks the post failed, all published marks it published,
// and with nothing approved the status is left as it was.
func (p *Post) RecomputeStatus(now time.Time) {
	approved, published, failed := 0, 0, 0
	for _, ac := range p.AdaptedContent {
		if !ac.IsApproved {
			continue
		}
		approved++
		switch ac.PublishStatus {
		case PublishPublished:
			published++
		case PublishFailed:
			failed++
		}
	}

	switch {
	case approved == 0:
		return
	case failed > 0:
		p.Status = PostStatusFailed
	case published == approved:
		p.Status = PostStatusPublished
		p.PublishedAt = &now
	}
}
