package docstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/crosspost/crosspost/internal/models"
)

func TestPositionalSet(t *testing.T) {
	token := "fresh"
	expiry := time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)
	patch := models.AccountPatch{AccessToken: &token, TokenExpiry: &expiry}

	assert.Equal(t, bson.M{
		"social_accounts.$.access_token": "fresh",
		"social_accounts.$.token_expiry": expiry,
	}, PositionalSet("social_accounts", patch.Fields()))
}

func TestPostDocumentShape(t *testing.T) {
	post := models.Post{
		ID:              "p1",
		UserID:          "u1",
		TargetPlatforms: []models.Platform{models.PlatformReddit},
		AdaptedContent: []models.AdaptedContent{
			{ID: "e1", PostID: "p1", Platform: models.PlatformReddit, Content: "body", PublishStatus: models.PublishPending},
		},
	}

	raw, err := bson.Marshal(post)
	assert.NoError(t, err)

	var doc struct {
		ID      string   `bson:"_id"`
		Entries []bson.M `bson:"adapted_content"`
	}
	assert.NoError(t, bson.Unmarshal(raw, &doc))
	assert.Equal(t, "p1", doc.ID)

	if !assert.Len(t, doc.Entries, 1) {
		return
	}
	entry := doc.Entries[0]
	assert.Equal(t, "e1", entry["_id"])
	assert.Equal(t, "reddit", entry["platform"])
	_, hasPostID := entry["post_id"]
	assert.False(t, hasPostID)

	var back models.Post
	assert.NoError(t, bson.Unmarshal(raw, &back))
	linkEntries(&back)
	assert.Equal(t, "p1", back.AdaptedContent[0].PostID)
}

func TestAccountUpdatesTargetOneElement(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	acc := models.SocialAccount{ID: "rd", Platform: models.PlatformReddit, Username: "gopher", IsActive: true}

	filter, update := replaceAccount("u1", acc, now)
	assert.Equal(t, bson.M{"_id": "u1", "social_accounts._id": "rd"}, filter)
	assert.Equal(t, bson.M{"$set": bson.M{"social_accounts.$": acc, "updated_at": now}}, update)

	filter, update = pushAccount("u1", acc, now)
	assert.Equal(t, bson.M{"_id": "u1", "social_accounts.platform": bson.M{"$ne": models.PlatformReddit}}, filter)
	assert.Equal(t, bson.M{"$push": bson.M{"social_accounts": acc}, "$set": bson.M{"updated_at": now}}, update)

	filter, update = pullAccount("u1", "tg", now)
	assert.Equal(t, bson.M{"_id": "u1", "social_accounts._id": "tg"}, filter)
	assert.Equal(t, bson.M{"$pull": bson.M{"social_accounts": bson.M{"_id": "tg"}}, "$set": bson.M{"updated_at": now}}, update)
}

func TestUserWithoutAccountsOmitsArray(t *testing.T) {
	raw, err := bson.Marshal(models.User{ID: "u1", Email: "a@b.c"})
	assert.NoError(t, err)

	var doc bson.M
	assert.NoError(t, bson.Unmarshal(raw, &doc))
	_, has := doc["social_accounts"]
	assert.False(t, has)
}
