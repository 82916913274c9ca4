// Package ai seeds post text from a text-generation model.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/crosspost/crosspost/pkg/config"
	"github.com/crosspost/crosspost/pkg/logging"
	"github.com/crosspost/crosspost/pkg/telemetry"
)

// ErrDisabled is returned when no API key is configured
var ErrDisabled = errors.New("text generation is not configured")

const (
	systemPrompt = "You are a social media expert who writes concise, engaging posts."
	maxTokens    = 500
)

// Generator turns a prompt into text
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// OpenAI generates text with the chat completions API
type OpenAI struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAI creates a generator. baseURL overrides the API endpoint when set.
func NewOpenAI(cfg *config.AIConfig, baseURL string) *OpenAI {
	if cfg.OpenAIKey == "" {
		return nil
	}
	clientCfg := openai.DefaultConfig(cfg.OpenAIKey)
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		logger: logging.WithComponent("ai"),
	}
}

// Generate returns the model's reply to prompt
func (g *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	if g == nil {
		return "", ErrDisabled
	}
	ctx, span := telemetry.StartSpan(ctx, "ai.generate")
	defer span.End()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.7,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		g.logger.Warn("Text generation failed", zap.Error(err))
		return "", fmt.Errorf("text generation failed: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("text generation returned no content")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// PostRequest describes the post to generate
type PostRequest struct {
	BrandName      string   `json:"brandName"`
	Purpose        string   `json:"purpose" validate:"required"`
	TargetAudience string   `json:"targetAudience" validate:"required"`
	Tone           string   `json:"tone" validate:"required"`
	Platforms      []string `json:"platforms" validate:"required,min=1"`
	Colors         []string `json:"colors"`
}

// PostPrompt renders the prompt for req
func PostPrompt(req PostRequest) string {
	brand := req.BrandName
	if brand == "" {
		brand = "this brand"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Generate a short and engaging social media post for %s for a brand called '%s'",
		strings.Join(req.Platforms, ", "), brand)
	if len(req.Colors) > 0 {
		fmt.Fprintf(&b, " with theme colors %s", strings.Join(req.Colors, ", "))
	}
	b.WriteString(".\n")
	fmt.Fprintf(&b, "The post purpose is: '%s'. Use a %s tone aimed at %s.\n", req.Purpose, req.Tone, req.TargetAudience)
	b.WriteString("Make the post catchy and aligned with modern brand marketing language.\n\n")
	b.WriteString("Requirements:\n")
	b.WriteString("- Keep it concise and platform-appropriate\n")
	b.WriteString("- Include relevant hashtags\n")
	b.WriteString("- Make it engaging and actionable\n")
	fmt.Fprintf(&b, "- Reflect the %s tone throughout\n", req.Tone)
	fmt.Fprintf(&b, "- Target the %s audience specifically\n\n", req.TargetAudience)
	b.WriteString("Return only the post content without any additional formatting or explanations.")
	return b.String()
}
