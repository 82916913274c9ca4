package models

import (
	"time"
)

// User owns posts and connected social accounts
type User struct {
	ID             string          `gorm:"primaryKey;type:varchar(36);column:id" bson:"_id" json:"id"`
	Email          string          `gorm:"type:varchar(255);not null;uniqueIndex;column:email" bson:"email" json:"email"`
	Name           string          `gorm:"type:varchar(255);not null;column:name" bson:"name" json:"name"`
	SocialAccounts []SocialAccount `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE" bson:"social_accounts,omitempty" json:"socialAccounts"`
	CreatedAt      time.Time       `gorm:"not null;column:created_at" bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time       `gorm:"not null;column:updated_at" bson:"updated_at" json:"updatedAt"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}

// SocialAccount is a connected platform account embedded in a User. ID is
// the stable sub-document key used for targeted updates.
type SocialAccount struct {
	ID             string     `gorm:"primaryKey;type:varchar(36);column:id" bson:"_id" json:"id"`
	UserID         string     `gorm:"type:varchar(36);not null;uniqueIndex:social_accounts_user_platform;column:user_id" bson:"-" json:"-"`
	Platform       Platform   `gorm:"type:varchar(16);not null;uniqueIndex:social_accounts_user_platform;column:platform" bson:"platform" json:"platform"`
	ExternalID     string     `gorm:"type:varchar(128);not null;column:external_id" bson:"external_id" json:"externalId"`
	Username       string     `gorm:"type:varchar(255);not null;column:username" bson:"username" json:"username"`
	AccessToken    string     `gorm:"type:text;not null;column:access_token" bson:"access_token" json:"-"`
	RefreshToken   string     `gorm:"type:text;column:refresh_token" bson:"refresh_token,omitempty" json:"-"`
	TokenExpiry    *time.Time `gorm:"column:token_expiry" bson:"token_expiry,omitempty" json:"tokenExpiry,omitempty"`
	IsActive       bool       `gorm:"not null;column:is_active" bson:"is_active" json:"isActive"`
	ConnectedAt    time.Time  `gorm:"not null;column:connected_at" bson:"connected_at" json:"connectedAt"`
	SubredditName  string     `gorm:"type:varchar(64);column:subreddit_name" bson:"subreddit_name,omitempty" json:"subredditName,omitempty"`
	FollowersCount int64      `gorm:"not null;default:0;column:followers_count" bson:"followers_count" json:"followersCount"`
	MemberCount    int64      `gorm:"not null;default:0;column:member_count" bson:"member_count" json:"memberCount"`
	Subscribers    int64      `gorm:"not null;default:0;column:subscribers" bson:"subscribers" json:"subscribers"`
}

// TableName specifies the table name for SocialAccount
func (SocialAccount) TableName() string {
	return "social_accounts"
}

// Expired reports whether the stored access token has passed its expiry.
// Accounts without an expiry never expire.
func (a *SocialAccount) Expired(now time.Time) bool {
	return a.TokenExpiry != nil && now.After(*a.TokenExpiry)
}

// CachedAudience returns the audience size last recorded for the account
func (a *SocialAccount) CachedAudience() int64 {
	switch a.Platform {
	case PlatformTwitter:
		return a.FollowersCount
	case PlatformTelegram:
		return a.MemberCount
	case PlatformReddit:
		return a.Subscribers
	}
	return 0
}

// AccountPatch lists the fields of one SocialAccount to overwrite. Nil
// fields are left untouched, so sibling accounts and unrelated fields are
// never rewritten.
type AccountPatch struct {
	AccessToken    *string
	RefreshToken   *string
	TokenExpiry    *time.Time
	IsActive       *bool
	SubredditName  *string
	FollowersCount *int64
	MemberCount    *int64
	Subscribers    *int64
}

// Empty reports whether the patch changes nothing
func (p AccountPatch) Empty() bool {
	return p.AccessToken == nil && p.RefreshToken == nil && p.TokenExpiry == nil &&
		p.IsActive == nil && p.SubredditName == nil && p.FollowersCount == nil &&
		p.MemberCount == nil && p.Subscribers == nil
}

// Apply copies the set fields onto a
func (p AccountPatch) Apply(a *SocialAccount) {
	if p.AccessToken != nil {
		a.AccessToken = *p.AccessToken
	}
	if p.RefreshToken != nil {
		a.RefreshToken = *p.RefreshToken
	}
	if p.TokenExpiry != nil {
		expiry := *p.TokenExpiry
		a.TokenExpiry = &expiry
	}
	if p.IsActive != nil {
		a.IsActive = *p.IsActive
	}
	if p.SubredditName != nil {
		a.SubredditName = *p.SubredditName
	}
	if p.FollowersCount != nil {
		a.FollowersCount = *p.FollowersCount
	}
	if p.MemberCount != nil {
		a.MemberCount = *p.MemberCount
	}
	if p.Subscribers != nil {
		a.Subscribers = *p.Subscribers
	}
}

// Account returns the account connected for platform, or nil
func (u *User) Account(platform Platform) *SocialAccount {
	for i := range u.SocialAccounts {
		if u.SocialAccounts[i].Platform == platform {
			return &u.SocialAccounts[i]
		}
	}
	return nil
}

// ActiveAccount returns the account for platform only if it is active
func (u *User) ActiveAccount(platform Platform) *SocialAccount {
	if acc := u.Account(platform); acc != nil && acc.IsActive {
		return acc
	}
	return nil
}

// AccountByID returns the account with the given sub-document key, or nil
func (u *User) AccountByID(id string) *SocialAccount {
	for i := range u.SocialAccounts {
		if u.SocialAccounts[i].ID == id {
			return &u.SocialAccounts[i]
		}
	}
	return nil
}

// UpsertAccount stores acc as the user's account for its platform.
// Reconnecting overwrites the existing entry in place and keeps its key.
func (u *User) UpsertAccount(acc SocialAccount) *SocialAccount {
	acc.UserID = u.ID
	if existing := u.Account(acc.Platform); existing != nil {
		acc.ID = existing.ID
		*existing = acc
		return existing
	}
	u.SocialAccounts = append(u.SocialAccounts, acc)
	return &u.SocialAccounts[len(u.SocialAccounts)-1]
}

// RemoveAccount drops the account for platform and reports whether one
// was present
func (u *User) RemoveAccount(platform Platform) bool {
	for i := range u.SocialAccounts {
		if u.SocialAccounts[i].Platform == platform {
			u.SocialAccounts = append(u.SocialAccounts[:i], u.SocialAccounts[i+1:]...)
			return true
		}
	}
	return false
}

// Fields returns the set fields keyed by their column and document name
func (p AccountPatch) Fields() map[string]interface{} {
	fields := map[string]interface{}{}
	if p.AccessToken != nil {
		fields["access_token"] = *p.AccessToken
	}
	if p.RefreshToken != nil {
		fields["refresh_token"] = *p.RefreshToken
	}
	if p.TokenExpiry != nil {
		fields["token_expiry"] = *p.TokenExpiry
	}
	if p.IsActive != nil {
		fields["is_active"] = *p.IsActive
	}
	if p.SubredditName != nil {
		fields["subreddit_name"] = *p.SubredditName
	}
	if p.FollowersCount != nil {
		fields["followers_count"] = *p.FollowersCount
	}
	if p.MemberCount != nil {
		fields["member_count"] = *p.MemberCount
	}
	if p.Subscribers != nil {
		fields["subscribers"] = *p.Subscribers
	}
	return fields
}
