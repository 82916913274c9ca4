package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosspost/crosspost/pkg/config"
)

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		assert.Equal(t, "gpt-test", req.Model)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, "write something", req.Messages[1].Content)
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  Fresh post #launch  "},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	g := NewOpenAI(&config.AIConfig{OpenAIKey: "sk-test", Model: "gpt-test"}, srv.URL+"/v1")
	out, err := g.Generate(context.Background(), "write something")
	require.NoError(t, err)
	assert.Equal(t, "Fresh post #launch", out)
}

func TestGenerateEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"c1","object":"chat.completion","choices":[]}`)
	}))
	defer srv.Close()

	g := NewOpenAI(&config.AIConfig{OpenAIKey: "sk-test"}, srv.URL+"/v1")
	_, err := g.Generate(context.Background(), "x")
	assert.Error(t, err)
}

func TestDisabled(t *testing.T) {
	g := NewOpenAI(&config.AIConfig{}, "")
	assert.Nil(t, g)

	_, err := g.Generate(context.Background(), "x")
	assert.True(t, errors.Is(err, ErrDisabled))
}

func TestPostPrompt(t *testing.T) {
	p := PostPrompt(PostRequest{
		Purpose:        "launch a product",
		TargetAudience: "developers",
		Tone:           "playful",
		Platforms:      []string{"twitter", "reddit"},
		Colors:         []string{"#000", "#fff"},
	})

	assert.Contains(t, p, "for twitter, reddit for a brand called 'this brand' with theme colors #000, #fff.")
	assert.Contains(t, p, "The post purpose is: 'launch a product'. Use a playful tone aimed at developers.")
	assert.Contains(t, p, "- Target the developers audience specifically")
}
