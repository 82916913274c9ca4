package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosspost/crosspost/internal/errs"
	"github.com/crosspost/crosspost/internal/platform"
)

type call struct {
	Method string
	Params map[string]interface{}
}

func newTestServer(t *testing.T, handler func(method string, params map[string]interface{}) (int, string)) (*Client, *[]call) {
	var mu sync.Mutex
	calls := []call{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "/botTOKEN/"
		if !assert.Equal(t, prefix, r.URL.Path[:len(prefix)]) {
			return
		}
		method := r.URL.Path[len(prefix):]

		params := map[string]interface{}{}
		if r.Body != nil && r.Method == http.MethodPost {
			_ = json.NewDecoder(r.Body).Decode(&params)
		}

		mu.Lock()
		calls = append(calls, call{Method: method, Params: params})
		mu.Unlock()

		status, body := handler(method, params)
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	return New(srv.URL, "TOKEN"), &calls
}

func TestPublishText(t *testing.T) {
	c, calls := newTestServer(t, func(method string, _ map[string]interface{}) (int, string) {
		return http.StatusOK, `{"ok":true,"result":{"message_id":11}}`
	})

	res, err := c.Publish(context.Background(), "hello <b>world</b>", platform.PublishOptions{ChatID: "@channel"})
	require.NoError(t, err)
	assert.Equal(t, "11", res.ID)

	require.Len(t, *calls, 1)
	got := (*calls)[0]
	assert.Equal(t, "sendMessage", got.Method)
	assert.Equal(t, "@channel", got.Params["chat_id"])
	assert.Equal(t, "hello <b>world</b>", got.Params["text"])
	assert.Equal(t, "HTML", got.Params["parse_mode"])
}

func TestPublishPhotosCaptionOnFirst(t *testing.T) {
	next := 20
	c, calls := newTestServer(t, func(method string, _ map[string]interface{}) (int, string) {
		next++
		return http.StatusOK, `{"ok":true,"result":{"message_id":` + itoa(next) + `}}`
	})

	images := []string{"https://cdn.example.com/1.png", "https://cdn.example.com/2.png", "https://cdn.example.com/3.png"}
	res, err := c.Publish(context.Background(), "caption", platform.PublishOptions{ChatID: "-100", Images: images})
	require.NoError(t, err)
	assert.Equal(t, "21", res.ID)

	require.Len(t, *calls, 3)
	for i, got := range *calls {
		assert.Equal(t, "sendPhoto", got.Method)
		assert.Equal(t, images[i], got.Params["photo"])
		if i == 0 {
			assert.Equal(t, "caption", got.Params["caption"])
		} else {
			assert.Equal(t, "", got.Params["caption"])
		}
	}
}

func TestPublishReportsDescription(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http error", http.StatusBadRequest, `{"ok":false,"description":"Bad Request: chat not found"}`},
		{"ok false", http.StatusOK, `{"ok":false,"description":"Bad Request: chat not found"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestServer(t, func(string, map[string]interface{}) (int, string) {
				return tt.status, tt.body
			})
			_, err := c.Publish(context.Background(), "x", platform.PublishOptions{ChatID: "1"})
			require.Error(t, err)
			assert.Equal(t, "Bad Request: chat not found", platform.Message(err))
			assert.True(t, errors.Is(err, errs.ErrPlatformRejected))
		})
	}
}

func TestFetchProfile(t *testing.T) {
	c, calls := newTestServer(t, func(method string, _ map[string]interface{}) (int, string) {
		switch method {
		case "getMe":
			return http.StatusOK, `{"ok":true,"result":{"id":99,"username":"crossbot","first_name":"Cross"}}`
		case "getChatMembersCount":
			return http.StatusOK, `{"ok":true,"result":1500}`
		}
		return http.StatusNotFound, `{"ok":false,"description":"Not Found"}`
	})

	p, err := c.FetchProfile(context.Background(), "@channel")
	require.NoError(t, err)
	assert.Equal(t, "crossbot", p.Username)
	assert.Equal(t, int64(1500), p.Audience)
	assert.Equal(t, "@channel", (*calls)[1].Params["chat_id"])
}

func TestUnsupportedOperations(t *testing.T) {
	c := New("http://unused", "TOKEN")
	ctx := context.Background()

	_, err := c.GetPost(ctx, "1")
	assert.True(t, errors.Is(err, errs.ErrUnsupported))
	assert.True(t, errors.Is(c.DeletePost(ctx, "1"), errs.ErrUnsupported))
	_, err = c.FetchEngagement(ctx, "1")
	assert.True(t, errors.Is(err, errs.ErrUnsupported))
	_, err = c.RefreshCredentials(ctx)
	assert.True(t, errors.Is(err, errs.ErrUnsupported))
}

func itoa(i int) string {
	b, _ := json.Marshal(i)
	return string(b)
}
