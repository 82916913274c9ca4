package reddit

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosspost/crosspost/internal/errs"
	"github.com/crosspost/crosspost/internal/platform"
)

type fakeReddit struct {
	mu        sync.Mutex
	refreshes int
	submits   []url.Values
	bearer    []string
	uploaded  map[string]string
	file      []byte

	submitBody string
	leaseFail  bool
}

func (f *fakeReddit) handler(t *testing.T, srvURL func() string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.refreshes++
		f.mu.Unlock()

		id, secret, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "app-id", id)
		assert.Equal(t, "app-secret", secret)
		assert.Equal(t, "TestAgent/1.0", r.UserAgent())
		assert.NoError(t, r.ParseForm())

		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("grant_type") {
		case "refresh_token":
			if r.PostForm.Get("refresh_token") != "rt" {
				w.WriteHeader(http.StatusBadRequest)
				io.WriteString(w, `{"error":"invalid_grant"}`)
				return
			}
			io.WriteString(w, `{"access_token":"fresh","token_type":"bearer","expires_in":3600,"scope":"submit"}`)
		case "authorization_code":
			assert.Equal(t, "the-code", r.PostForm.Get("code"))
			io.WriteString(w, `{"access_token":"at","refresh_token":"rt","token_type":"bearer","expires_in":3600}`)
		}
	})

	mux.HandleFunc("/api/submit", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		f.mu.Lock()
		f.submits = append(f.submits, r.PostForm)
		f.bearer = append(f.bearer, r.Header.Get("Authorization"))
		f.mu.Unlock()

		if f.submitBody != "" {
			io.WriteString(w, f.submitBody)
			return
		}
		io.WriteString(w, `{"json":{"errors":[],"data":{"id":"abc12","name":"t3_abc12","url":"https://reddit.com/r/golang/comments/abc12"}}}`)
	})

	mux.HandleFunc("/api/media/asset.json", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "image/png", r.PostForm.Get("mimetype"))
		assert.True(t, strings.HasSuffix(r.PostForm.Get("filepath"), ".png"))
		if f.leaseFail {
			w.WriteHeader(http.StatusForbidden)
			io.WriteString(w, `{"message":"Forbidden","error":403}`)
			return
		}
		io.WriteString(w, `{"args":{"action":"`+srvURL()+`/storage","fields":[{"name":"key","value":"media/abc.png"},{"name":"policy","value":"p0"}]},"asset":{"asset_id":"asset-1"}}`)
	})

	mux.HandleFunc("/storage", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		file, _, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		data, _ := io.ReadAll(file)

		f.mu.Lock()
		f.uploaded = map[string]string{"key": r.FormValue("key"), "policy": r.FormValue("policy")}
		f.file = data
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})

	mux.HandleFunc("/r/golang/about.json", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"kind":"t5","data":{"id":"2qh","display_name":"golang","title":"The Go Programming Language","subscribers":250000}}`)
	})
	mux.HandleFunc("/user/gopher/about.json", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"kind":"t2","data":{"id":"u1","name":"gopher","link_karma":10,"comment_karma":5}}`)
	})
	mux.HandleFunc("/img/photo.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("PNGDATA"))
	})

	return mux
}

func newTestClient(t *testing.T, access, refresh string) (*Client, *fakeReddit, *httptest.Server) {
	fake := &fakeReddit{}
	var srv *httptest.Server
	srv = httptest.NewServer(fake.handler(t, func() string { return srv.URL }))
	t.Cleanup(srv.Close)

	c := New(testConfig(srv.URL), access, refresh)
	return c, fake, srv
}

func testConfig(base string) Config {
	return Config{
		ClientID:     "app-id",
		ClientSecret: "app-secret",
		UserAgent:    "TestAgent/1.0",
		RedirectURL:  "http://localhost/callback",
		APIBaseURL:   base,
		AuthBaseURL:  base,
	}
}

func TestRefreshCredentials(t *testing.T) {
	c, fake, _ := newTestClient(t, "stale", "rt")

	tok, err := c.RefreshCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)
	assert.Equal(t, "rt", tok.RefreshToken)
	assert.Equal(t, 1, fake.refreshes)

	_, err = c.Publish(context.Background(), "hello", platform.PublishOptions{Subreddit: "golang"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer fresh", fake.bearer[0])
}

func TestRefreshRejected(t *testing.T) {
	c, _, _ := newTestClient(t, "stale", "wrong")

	_, err := c.RefreshCredentials(context.Background())
	require.Error(t, err)
	assert.Equal(t, "invalid_grant", platform.Message(err))
	assert.True(t, errors.Is(err, errs.ErrPlatformRejected))
}

func TestPublishSelfPost(t *testing.T) {
	c, fake, _ := newTestClient(t, "at", "rt")

	res, err := c.Publish(context.Background(), "First line\n\nBody text", platform.PublishOptions{Subreddit: "golang"})
	require.NoError(t, err)
	assert.Equal(t, "abc12", res.ID)

	require.Len(t, fake.submits, 1)
	form := fake.submits[0]
	assert.Equal(t, "self", form.Get("kind"))
	assert.Equal(t, "golang", form.Get("sr"))
	assert.Equal(t, "First line", form.Get("title"))
	assert.Equal(t, "First line\n\nBody text", form.Get("text"))
	assert.Equal(t, "json", form.Get("api_type"))
	assert.Empty(t, form.Get("url"))
	assert.Equal(t, "Bearer at", fake.bearer[0])
}

func TestPublishImagePost(t *testing.T) {
	c, fake, srv := newTestClient(t, "at", "rt")

	_, err := c.Publish(context.Background(), "Look at this", platform.PublishOptions{
		Title:     "Chart",
		Subreddit: "golang",
		Images:    []string{srv.URL + "/img/photo.png", srv.URL + "/img/ignored.png"},
	})
	require.NoError(t, err)

	assert.Equal(t, "media/abc.png", fake.uploaded["key"])
	assert.Equal(t, "p0", fake.uploaded["policy"])
	assert.Equal(t, []byte("PNGDATA"), fake.file)

	require.Len(t, fake.submits, 1)
	form := fake.submits[0]
	assert.Equal(t, "image", form.Get("kind"))
	assert.Equal(t, "Chart", form.Get("title"))
	assert.Equal(t, srv.URL+"/storage/media/abc.png", form.Get("url"))
	assert.Empty(t, form.Get("text"))
}

func TestPublishMediaFailureAbortsSubmit(t *testing.T) {
	c, fake, srv := newTestClient(t, "at", "rt")
	fake.leaseFail = true

	_, err := c.Publish(context.Background(), "x", platform.PublishOptions{
		Subreddit: "golang",
		Images:    []string{srv.URL + "/img/photo.png"},
	})
	require.Error(t, err)
	assert.Equal(t, "Forbidden", platform.Message(err))
	assert.Empty(t, fake.submits)
}

func TestPublishErrorArray(t *testing.T) {
	c, fake, _ := newTestClient(t, "at", "rt")
	fake.submitBody = `{"json":{"errors":[["SUBREDDIT_NOEXIST","that subreddit doesn't exist","sr"]]}}`

	_, err := c.Publish(context.Background(), "x", platform.PublishOptions{Subreddit: "nope"})
	require.Error(t, err)
	assert.Equal(t, "that subreddit doesn't exist", platform.Message(err))
	assert.True(t, errors.Is(err, errs.ErrPlatformRejected))
}

func TestPublishRequiresSubreddit(t *testing.T) {
	c, fake, _ := newTestClient(t, "at", "rt")
	_, err := c.Publish(context.Background(), "x", platform.PublishOptions{})
	require.Error(t, err)
	assert.Empty(t, fake.submits)
}

func TestFetchProfile(t *testing.T) {
	c, _, _ := newTestClient(t, "at", "rt")

	sub, err := c.FetchProfile(context.Background(), "r/golang")
	require.NoError(t, err)
	assert.Equal(t, int64(250000), sub.Audience)
	assert.Equal(t, "golang", sub.Username)

	user, err := c.FetchProfile(context.Background(), "gopher")
	require.NoError(t, err)
	assert.Equal(t, int64(15), user.Audience)
}

func TestExchange(t *testing.T) {
	_, _, srv := newTestClient(t, "", "")

	tok, err := Exchange(context.Background(), testConfig(srv.URL), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "at", tok.AccessToken)
	assert.Equal(t, "rt", tok.RefreshToken)
	assert.False(t, tok.Expiry.IsZero())
}

func TestAuthCodeURL(t *testing.T) {
	u, err := url.Parse(AuthCodeURL(testConfig("https://www.reddit.com"), "state-1"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "/api/v1/authorize", u.Path)
	assert.Equal(t, "permanent", q.Get("duration"))
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "identity submit read history", q.Get("scope"))
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Explicit", Title("Explicit", "text"))
	assert.Equal(t, "Line one", Title("", "Line one\nLine two"))
	assert.Len(t, []rune(Title("", strings.Repeat("é", 400))), maxTitleLength)
}
