package service

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/crosspost/crosspost/internal/credentials"
	"github.com/crosspost/crosspost/internal/models"
	"github.com/crosspost/crosspost/internal/publisher"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) FindPostByID(ctx context.Context, id string) (*models.Post, error) {
	args := m.Called(ctx, id)
	post, _ := args.Get(0).(*models.Post)
	return post, args.Error(1)
}

func (m *mockStore) ListPostsByUser(ctx context.Context, userID string) ([]*models.Post, error) {
	args := m.Called(ctx, userID)
	posts, _ := args.Get(0).([]*models.Post)
	return posts, args.Error(1)
}

func (m *mockStore) SavePost(ctx context.Context, post *models.Post) error {
	return m.Called(ctx, post).Error(0)
}

func (m *mockStore) DeletePost(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStore) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *mockStore) FindUserBySocialAccountID(ctx context.Context, accountID string) (*models.User, error) {
	args := m.Called(ctx, accountID)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *mockStore) SaveUser(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockStore) UpsertSocialAccount(ctx context.Context, userID string, acc models.SocialAccount) error {
	return m.Called(ctx, userID, acc).Error(0)
}

func (m *mockStore) RemoveSocialAccount(ctx context.Context, userID, accountID string) error {
	return m.Called(ctx, userID, accountID).Error(0)
}

func (m *mockStore) PatchSocialAccount(ctx context.Context, userID, accountID string, patch models.AccountPatch) error {
	return m.Called(ctx, userID, accountID, patch).Error(0)
}

func (m *mockStore) Health(ctx context.Context) error { return nil }
func (m *mockStore) Close(ctx context.Context) error  { return nil }

type memQueue struct {
	mu   sync.Mutex
	jobs map[string]time.Time
	err  error
}

func newMemQueue() *memQueue {
	return &memQueue{jobs: map[string]time.Time{}}
}

func (q *memQueue) Schedule(ctx context.Context, postID string, at time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs[postID] = at
	return nil
}

func (q *memQueue) Cancel(ctx context.Context, postID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.jobs, postID)
	return nil
}

func (q *memQueue) Claim(ctx context.Context, at time.Time, limit int) ([]string, error) {
	return nil, nil
}

type stubPublisher struct {
	calls int
	err   error
}

func (p *stubPublisher) Publish(ctx context.Context, post *models.Post, user *models.User) (*publisher.Outcome, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &publisher.Outcome{Results: []publisher.Result{}, Post: post}, nil
}

type stubCredentials struct {
	freshErr map[models.Platform]error
	results  []credentials.Result
	ensured  []models.Platform
}

func (c *stubCredentials) EnsureFresh(ctx context.Context, user *models.User, acc *models.SocialAccount) error {
	c.ensured = append(c.ensured, acc.Platform)
	return c.freshErr[acc.Platform]
}

func (c *stubCredentials) RefreshExpired(ctx context.Context, user *models.User) []credentials.Result {
	return c.results
}
