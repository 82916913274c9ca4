// Package scheduler holds delayed publish jobs in a Redis sorted set and
// runs due jobs through the publisher.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/crosspost/crosspost/internal/cache"
)

const jobPrefix = "post-"

// JobID names the job that publishes postID
func JobID(postID string) string {
	return jobPrefix + postID
}

// PostID recovers the post id from a job id
func PostID(jobID string) (string, bool) {
	if !strings.HasPrefix(jobID, jobPrefix) || len(jobID) == len(jobPrefix) {
		return "", false
	}
	return strings.TrimPrefix(jobID, jobPrefix), true
}

// Queue stores one pending job per post
type Queue interface {
	Schedule(ctx context.Context, postID string, at time.Time) error
	Cancel(ctx context.Context, postID string) error
	// Claim removes and returns up to limit jobs due at now
	Claim(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// RedisQueue keeps jobs in a sorted set scored by due time. Scheduling a
// post again replaces its job.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue creates a queue on client
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client, key: cache.Key("schedule", "jobs")}
}

// Schedule adds or moves the job for postID
func (q *RedisQueue) Schedule(ctx context.Context, postID string, at time.Time) error {
	err := q.client.ZAdd(ctx, q.key, &redis.Z{Score: float64(at.UnixMilli()), Member: JobID(postID)}).Err()
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", JobID(postID), err)
	}
	return nil
}

// Cancel drops the job for postID if there is one
func (q *RedisQueue) Cancel(ctx context.Context, postID string) error {
	if err := q.client.ZRem(ctx, q.key, JobID(postID)).Err(); err != nil {
		return fmt.Errorf("failed to cancel %s: %w", JobID(postID), err)
	}
	return nil
}

// Claim returns the due post ids this caller removed from the set. A job
// removed by a concurrent worker is not returned.
func (q *RedisQueue) Claim(ctx context.Context, now time.Time, limit int) ([]string, error) {
	jobs, err := q.client.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read due jobs: %w", err)
	}

	var ids []string
	for _, job := range jobs {
		removed, err := q.client.ZRem(ctx, q.key, job).Result()
		if err != nil {
			return ids, fmt.Errorf("failed to claim %s: %w", job, err)
		}
		if removed == 0 {
			continue
		}
		if id, ok := PostID(job); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
