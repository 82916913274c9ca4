// Package platformtest provides an in-memory platform.Client for tests.
package platformtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/crosspost/crosspost/internal/errs"
	"github.com/crosspost/crosspost/internal/models"
	"github.com/crosspost/crosspost/internal/platform"
)

// Published records one Publish call
type Published struct {
	Text string
	Opts platform.PublishOptions
}

// Client is a scripted platform.Client. Calls lists the operations in the
// order they were made.
type Client struct {
	mu sync.Mutex

	Name models.Platform

	PublishID  string
	PublishErr error
	Token      *platform.Token
	RefreshErr error
	Profile    *platform.Profile
	ProfileErr error
	Engagement *platform.Engagement

	// OnPublish runs after a publish is accepted
	OnPublish func()

	Calls     []string
	Published []Published
}

// New creates a fake client for p
func New(p models.Platform) *Client {
	return &Client{Name: p, PublishID: "remote-" + p.String()}
}

func (c *Client) record(op string) {
	c.mu.Lock()
	c.Calls = append(c.Calls, op)
	c.mu.Unlock()
}

// Count returns how many times op was called
func (c *Client) Count(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.Calls {
		if call == op {
			n++
		}
	}
	return n
}

func (c *Client) Platform() models.Platform { return c.Name }

func (c *Client) Publish(ctx context.Context, text string, opts platform.PublishOptions) (*platform.PostResult, error) {
	c.record("publish")
	if err := ctx.Err(); err != nil {
		return nil, platform.Transport(c.Name, err)
	}
	c.mu.Lock()
	c.Published = append(c.Published, Published{Text: text, Opts: opts})
	c.mu.Unlock()
	if c.PublishErr != nil {
		return nil, c.PublishErr
	}
	if c.OnPublish != nil {
		c.OnPublish()
	}
	return &platform.PostResult{ID: c.PublishID}, nil
}

func (c *Client) FetchProfile(ctx context.Context, identifier string) (*platform.Profile, error) {
	c.record("profile")
	if c.ProfileErr != nil {
		return nil, c.ProfileErr
	}
	if c.Profile == nil {
		return &platform.Profile{ID: identifier}, nil
	}
	return c.Profile, nil
}

func (c *Client) FetchEngagement(ctx context.Context, identifier string) (*platform.Engagement, error) {
	c.record("engagement")
	if c.Engagement == nil {
		return nil, platform.Unsupported(c.Name, "engagement stats")
	}
	return c.Engagement, nil
}

func (c *Client) RefreshCredentials(ctx context.Context) (*platform.Token, error) {
	c.record("refresh")
	if err := ctx.Err(); err != nil {
		return nil, platform.Transport(c.Name, err)
	}
	if c.RefreshErr != nil {
		return nil, c.RefreshErr
	}
	if c.Token == nil {
		return nil, platform.Unsupported(c.Name, "credential refresh")
	}
	return c.Token, nil
}

func (c *Client) GetPost(ctx context.Context, id string) (json.RawMessage, error) {
	c.record("get")
	return json.RawMessage(fmt.Sprintf(`{"id":%q}`, id)), nil
}

func (c *Client) DeletePost(ctx context.Context, id string) error {
	c.record("delete")
	return nil
}

// Resolver hands out the registered fake for each platform and records the
// accounts it was asked to resolve
type Resolver struct {
	mu       sync.Mutex
	clients  map[models.Platform]*Client
	Accounts []models.SocialAccount
}

// NewResolver registers clients by their platform
func NewResolver(clients ...*Client) *Resolver {
	r := &Resolver{clients: map[models.Platform]*Client{}}
	for _, c := range clients {
		r.clients[c.Name] = c
	}
	return r
}

// ForAccount implements platform.Resolver
func (r *Resolver) ForAccount(acc *models.SocialAccount) (platform.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Accounts = append(r.Accounts, *acc)
	c, ok := r.clients[acc.Platform]
	if !ok {
		return nil, fmt.Errorf("no client for %s: %w", acc.Platform, errs.ErrUnsupported)
	}
	return c, nil
}
