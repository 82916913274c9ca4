package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosspost/crosspost/internal/errs"
	"github.com/crosspost/crosspost/internal/platform"
)

type fakeTwitter struct {
	mu       sync.Mutex
	commands []string
	segments []string
	tweets   []tweetRequest
	auth     []string

	tweetStatus int
	tweetBody   string
}

func (f *fakeTwitter) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/1.1/media/upload.json", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.auth = append(f.auth, r.Header.Get("Authorization"))

		if cmd := r.URL.Query().Get("command"); cmd != "" {
			f.commands = append(f.commands, cmd)
			switch cmd {
			case "INIT":
				assert.Equal(t, "tweet_video", r.URL.Query().Get("media_category"))
				assert.Equal(t, "video/mp4", r.URL.Query().Get("media_type"))
				io.WriteString(w, `{"media_id_string":"vid-1"}`)
			case "FINALIZE":
				assert.Equal(t, "vid-1", r.URL.Query().Get("media_id"))
				io.WriteString(w, `{"media_id_string":"vid-1"}`)
			}
			return
		}

		if !assert.NoError(t, r.ParseMultipartForm(16<<20)) {
			return
		}
		if r.FormValue("command") == "APPEND" {
			f.commands = append(f.commands, "APPEND")
			f.segments = append(f.segments, r.FormValue("segment_index"))
			w.WriteHeader(http.StatusNoContent)
			return
		}
		assert.Equal(t, "tweet_image", r.FormValue("media_category"))
		f.commands = append(f.commands, "SIMPLE")
		io.WriteString(w, `{"media_id_string":"img-1"}`)
	})

	mux.HandleFunc("/2/tweets", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.auth = append(f.auth, r.Header.Get("Authorization"))

		var req tweetRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		f.tweets = append(f.tweets, req)

		if f.tweetStatus != 0 {
			w.WriteHeader(f.tweetStatus)
			io.WriteString(w, f.tweetBody)
			return
		}
		io.WriteString(w, `{"data":{"id":"1234","text":"ok"}}`)
	})

	mux.HandleFunc("/1.1/statuses/user_timeline.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "42", r.URL.Query().Get("user_id"))
		assert.Equal(t, "5", r.URL.Query().Get("count"))
		io.WriteString(w, `[{"favorite_count":3,"retweet_count":1,"reply_count":2},{"favorite_count":4}]`)
	})

	mux.HandleFunc("/1.1/users/show.json", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id_str":"42","screen_name":"gopher","name":"Go Pher","followers_count":900}`)
	})

	mux.HandleFunc("/media/photo.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	})
	mux.HandleFunc("/media/clip.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write(make([]byte, ChunkSize+10))
	})
	mux.HandleFunc("/media/missing.png", http.NotFound)

	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeTwitter, *httptest.Server) {
	fake := &fakeTwitter{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	c := New(Config{
		ConsumerKey:    "ck",
		ConsumerSecret: "cs",
		APIBaseURL:     srv.URL,
		UploadBaseURL:  srv.URL,
	}, "at", "as")
	return c, fake, srv
}

func TestPublishWithMedia(t *testing.T) {
	c, fake, srv := newTestClient(t)

	res, err := c.Publish(context.Background(), "hello", platform.PublishOptions{
		Images: []string{srv.URL + "/media/photo.png", srv.URL + "/media/missing.png"},
		Videos: []string{srv.URL + "/media/clip.mp4"},
	})
	require.NoError(t, err)
	assert.Equal(t, "1234", res.ID)

	require.Len(t, fake.tweets, 1)
	assert.Equal(t, "hello", fake.tweets[0].Text)
	require.NotNil(t, fake.tweets[0].Media)
	assert.Equal(t, []string{"img-1", "vid-1"}, fake.tweets[0].Media.MediaIDs)

	assert.Equal(t, []string{"SIMPLE", "INIT", "APPEND", "APPEND", "FINALIZE"}, fake.commands)
	assert.Equal(t, []string{"0", "1"}, fake.segments)

	for _, a := range fake.auth {
		assert.True(t, strings.HasPrefix(a, "OAuth "), a)
		assert.Contains(t, a, `oauth_consumer_key="ck"`)
		assert.Contains(t, a, `oauth_token="at"`)
	}
}

func TestPublishWithoutMedia(t *testing.T) {
	c, fake, _ := newTestClient(t)

	_, err := c.Publish(context.Background(), "text only", platform.PublishOptions{})
	require.NoError(t, err)
	require.Len(t, fake.tweets, 1)
	assert.Nil(t, fake.tweets[0].Media)
	assert.Empty(t, fake.commands)
}

func TestPublishErrors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		message      string
		unauthorized bool
	}{
		{"v1 errors array", http.StatusForbidden, `{"errors":[{"message":"Status is a duplicate."}]}`, "Status is a duplicate.", false},
		{"v2 problem", http.StatusBadRequest, `{"title":"Invalid Request","detail":"text too long"}`, "text too long", false},
		{"unauthorized", http.StatusUnauthorized, `{"title":"Unauthorized"}`, "Unauthorized", true},
		{"no body", http.StatusBadGateway, ``, "twitter request failed", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fake, _ := newTestClient(t)
			fake.tweetStatus = tt.status
			fake.tweetBody = tt.body

			_, err := c.Publish(context.Background(), "hello", platform.PublishOptions{})
			require.Error(t, err)

			var pe *platform.Error
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, tt.message, platform.Message(err))
			assert.Equal(t, tt.unauthorized, platform.IsUnauthorized(err))
			if !tt.unauthorized {
				assert.True(t, errors.Is(err, errs.ErrPlatformRejected))
			}
		})
	}
}

func TestFetchEngagementAndProfile(t *testing.T) {
	c, _, _ := newTestClient(t)

	e, err := c.FetchEngagement(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, platform.Engagement{Likes: 7, Shares: 1, Replies: 2}, *e)

	p, err := c.FetchProfile(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "gopher", p.Username)
	assert.Equal(t, int64(900), p.Audience)
}

func TestRefreshUnsupported(t *testing.T) {
	c, _, _ := newTestClient(t)
	_, err := c.RefreshCredentials(context.Background())
	assert.True(t, errors.Is(err, errs.ErrUnsupported))
}

func TestIsVideo(t *testing.T) {
	assert.True(t, IsVideo("https://cdn.example.com/a/b.MP4"))
	assert.True(t, IsVideo("https://cdn.example.com/clip.webm?sig=abc"))
	assert.False(t, IsVideo("https://cdn.example.com/photo.png"))
	assert.False(t, IsVideo("https://cdn.example.com/mp4"))
}
