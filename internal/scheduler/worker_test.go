package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosspost/crosspost/internal/models"
	"github.com/crosspost/crosspost/internal/publisher"
	"github.com/crosspost/crosspost/pkg/config"
)

type memQueue struct {
	mu   sync.Mutex
	jobs map[string]time.Time
}

func newMemQueue() *memQueue {
	return &memQueue{jobs: map[string]time.Time{}}
}

func (q *memQueue) Schedule(ctx context.Context, postID string, at time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[JobID(postID)] = at
	return nil
}

func (q *memQueue) Cancel(ctx context.Context, postID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.jobs, JobID(postID))
	return nil
}

func (q *memQueue) Claim(ctx context.Context, now time.Time, limit int) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var due []string
	for job, at := range q.jobs {
		if !at.After(now) {
			due = append(due, job)
		}
	}
	sort.Strings(due)
	if len(due) > limit {
		due = due[:limit]
	}
	var ids []string
	for _, job := range due {
		delete(q.jobs, job)
		id, _ := PostID(job)
		ids = append(ids, id)
	}
	return ids, nil
}

type memLoader struct {
	posts map[string]*models.Post
	users map[string]*models.User
}

func (l *memLoader) FindPostByID(ctx context.Context, id string) (*models.Post, error) {
	return l.posts[id], nil
}

func (l *memLoader) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	return l.users[id], nil
}

type recordingPublisher struct {
	published []string
	err       error
}

func (p *recordingPublisher) Publish(ctx context.Context, post *models.Post, user *models.User) (*publisher.Outcome, error) {
	p.published = append(p.published, post.ID)
	if p.err != nil {
		return nil, p.err
	}
	return &publisher.Outcome{Post: post}, nil
}

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestJobID(t *testing.T) {
	assert.Equal(t, "post-abc", JobID("abc"))

	id, ok := PostID("post-abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", id)

	_, ok = PostID("post-")
	assert.False(t, ok)
	_, ok = PostID("other-abc")
	assert.False(t, ok)
}

func TestRunOncePublishesDuePosts(t *testing.T) {
	q := newMemQueue()
	ctx := context.Background()
	require.NoError(t, q.Schedule(ctx, "p1", now.Add(-time.Minute)))
	require.NoError(t, q.Schedule(ctx, "p2", now.Add(time.Hour)))
	require.NoError(t, q.Schedule(ctx, "missing", now.Add(-time.Second)))

	loader := &memLoader{
		posts: map[string]*models.Post{"p1": {ID: "p1", UserID: "u1"}, "p2": {ID: "p2", UserID: "u1"}},
		users: map[string]*models.User{"u1": {ID: "u1"}},
	}
	pub := &recordingPublisher{}

	w := NewWorker(&config.SchedulerConfig{PollInterval: time.Second, BatchSize: 10}, q, loader, pub)
	w.now = func() time.Time { return now }

	n, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"p1"}, pub.published)

	// the future job is still queued, claimed ones are gone
	assert.Len(t, q.jobs, 1)
	_, pending := q.jobs["post-p2"]
	assert.True(t, pending)
}

func TestRunOnceCancelled(t *testing.T) {
	q := newMemQueue()
	ctx := context.Background()
	require.NoError(t, q.Schedule(ctx, "p1", now.Add(-time.Minute)))
	require.NoError(t, q.Cancel(ctx, "p1"))

	pub := &recordingPublisher{}
	w := NewWorker(&config.SchedulerConfig{}, q, &memLoader{}, pub)
	w.now = func() time.Time { return now }

	n, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, pub.published)
}

func TestRunOnceContinuesAfterFailure(t *testing.T) {
	q := newMemQueue()
	ctx := context.Background()
	require.NoError(t, q.Schedule(ctx, "a", now.Add(-time.Minute)))
	require.NoError(t, q.Schedule(ctx, "b", now.Add(-time.Minute)))

	loader := &memLoader{
		posts: map[string]*models.Post{"a": {ID: "a", UserID: "u1"}, "b": {ID: "b", UserID: "u1"}},
		users: map[string]*models.User{"u1": {ID: "u1"}},
	}
	pub := &recordingPublisher{err: errors.New("db down")}

	w := NewWorker(&config.SchedulerConfig{BatchSize: 5}, q, loader, pub)
	w.now = func() time.Time { return now }

	n, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b"}, pub.published)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(&config.SchedulerConfig{PollInterval: time.Hour, BatchSize: 1}, newMemQueue(), &memLoader{}, &recordingPublisher{})

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
