// Package docstore keeps posts and users as documents with their adapted
// content and social accounts embedded. Account updates address a single
// array element by its sub-document id.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/crosspost/crosspost/internal/errs"
	"github.com/crosspost/crosspost/internal/models"
	"github.com/crosspost/crosspost/pkg/logging"
)

const (
	postsCollection = "posts"
	usersCollection = "users"
)

// Store is a MongoDB backed post and user store
type Store struct {
	client *mongo.Client
	posts  *mongo.Collection
	users  *mongo.Collection
	logger *zap.Logger
}

// Connect dials uri and selects database
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo connection URI is empty")
	}

	opts := options.Client().ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetConnectTimeout(5 * time.Second).
		SetSocketTimeout(10 * time.Second)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
	defer cancelPing()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s := New(client, database)
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	s.logger.Info("MongoDB connection established", zap.String("database", database))
	return s, nil
}

// New wraps an already connected client
func New(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		client: client,
		posts:  db.Collection(postsCollection),
		users:  db.Collection(usersCollection),
		logger: logging.WithComponent("docstore"),
	}
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.posts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create posts index: %w", err)
	}
	_, err = s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "social_accounts._id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create users indexes: %w", err)
	}
	return nil
}

// Health pings the server
func (s *Store) Health(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// FindPostByID returns the post, or nil if absent
func (s *Store) FindPostByID(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	if err := s.posts.FindOne(ctx, bson.M{"_id": id}).Decode(&post); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	linkEntries(&post)
	return &post, nil
}

// ListPostsByUser returns a user's posts, newest first
func (s *Store) ListPostsByUser(ctx context.Context, userID string) ([]*models.Post, error) {
	cur, err := s.posts.Find(ctx, bson.M{"user_id": userID}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var posts []*models.Post
	if err := cur.All(ctx, &posts); err != nil {
		return nil, err
	}
	for _, p := range posts {
		linkEntries(p)
	}
	return posts, nil
}

// SavePost replaces the whole post document, embedded entries included
func (s *Store) SavePost(ctx context.Context, post *models.Post) error {
	for i := range post.AdaptedContent {
		post.AdaptedContent[i].Position = i
	}
	_, err := s.posts.ReplaceOne(ctx, bson.M{"_id": post.ID}, post, options.Replace().SetUpsert(true))
	return err
}

// DeletePost removes a post
func (s *Store) DeletePost(ctx context.Context, id string) error {
	res, err := s.posts.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// FindUserByID returns the user, or nil if absent
func (s *Store) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

// FindUserBySocialAccountID returns the user embedding the account, or nil
func (s *Store) FindUserBySocialAccountID(ctx context.Context, accountID string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"social_accounts._id": accountID})
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	if err := s.users.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	for i := range user.SocialAccounts {
		user.SocialAccounts[i].UserID = user.ID
	}
	return &user, nil
}

// SaveUser replaces the whole user document
func (s *Store) SaveUser(ctx context.Context, user *models.User) error {
	_, err := s.users.ReplaceOne(ctx, bson.M{"_id": user.ID}, user, options.Replace().SetUpsert(true))
	return err
}

// UpsertSocialAccount replaces the array element with acc's id in place or,
// when the user has no account on that platform yet, appends acc. Sibling
// accounts are not rewritten.
func (s *Store) UpsertSocialAccount(ctx context.Context, userID string, acc models.SocialAccount) error {
	now := time.Now().UTC()
	filter, update := replaceAccount(userID, acc, now)
	res, err := s.users.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}

	filter, update = pushAccount(userID, acc, now)
	res, err = s.users.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("user %s without a %s account: %w", userID, acc.Platform, errs.ErrNotFound)
	}
	return nil
}

// RemoveSocialAccount pulls one account out of the user's array
func (s *Store) RemoveSocialAccount(ctx context.Context, userID, accountID string) error {
	filter, update := pullAccount(userID, accountID, time.Now().UTC())
	res, err := s.users.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("social account %s: %w", accountID, errs.ErrNotFound)
	}
	return nil
}

func replaceAccount(userID string, acc models.SocialAccount, now time.Time) (bson.M, bson.M) {
	return bson.M{"_id": userID, "social_accounts._id": acc.ID},
		bson.M{"$set": bson.M{"social_accounts.$": acc, "updated_at": now}}
}

func pushAccount(userID string, acc models.SocialAccount, now time.Time) (bson.M, bson.M) {
	return bson.M{"_id": userID, "social_accounts.platform": bson.M{"$ne": acc.Platform}},
		bson.M{"$push": bson.M{"social_accounts": acc}, "$set": bson.M{"updated_at": now}}
}

func pullAccount(userID, accountID string, now time.Time) (bson.M, bson.M) {
	return bson.M{"_id": userID, "social_accounts._id": accountID},
		bson.M{"$pull": bson.M{"social_accounts": bson.M{"_id": accountID}}, "$set": bson.M{"updated_at": now}}
}

// PatchSocialAccount sets the patched fields on the matching array element
// through the positional operator; sibling accounts are not rewritten.
func (s *Store) PatchSocialAccount(ctx context.Context, userID, accountID string, patch models.AccountPatch) error {
	if patch.Empty() {
		return nil
	}
	set := PositionalSet("social_accounts", patch.Fields())
	set["updated_at"] = time.Now().UTC()

	res, err := s.users.UpdateOne(ctx,
		bson.M{"_id": userID, "social_accounts._id": accountID},
		bson.M{"$set": set},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("social account %s: %w", accountID, errs.ErrNotFound)
	}
	return nil
}

// PositionalSet prefixes each field with "<array>.$."
func PositionalSet(array string, fields map[string]interface{}) bson.M {
	set := bson.M{}
	for k, v := range fields {
		set[array+".$."+k] = v
	}
	return set
}

func linkEntries(p *models.Post) {
	for i := range p.AdaptedContent {
		p.AdaptedContent[i].PostID = p.ID
	}
}
