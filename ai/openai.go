package ai

import (
	"context"
	"errors"
	"net/http"
	"time"

	"discussion-facilitator/backend/pkg/logger"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the chat completion facilitator
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	HTTPClient  *http.Client
}

// OpenAIFacilitator asks an OpenAI-compatible chat completion endpoint for
// the facilitator turn
type OpenAIFacilitator struct {
	client *openai.Client
	cfg    OpenAIConfig
	log    *logger.Logger
}

// ErrMissingAPIKey is returned when no API key is configured
var ErrMissingAPIKey = errors.New("OpenAI API key is required")

func NewOpenAIFacilitator(cfg OpenAIConfig, log *logger.Logger) (*OpenAIFacilitator, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		config.HTTPClient = cfg.HTTPClient
	}

	return &OpenAIFacilitator{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		log:    log.Named("openai"),
	}, nil
}

func (f *OpenAIFacilitator) Invoke(ctx context.Context, req Request) (Reply, error) {
	prompt, err := BuildPrompt(req)
	if err != nil {
		return Reply{}, err
	}

	start := time.Now()
	resp, err := f.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: f.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   f.cfg.MaxTokens,
		Temperature: f.cfg.Temperature,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			f.log.Warn("Completion API error",
				"status", apiErr.HTTPStatusCode,
				"code", apiErr.Code,
				"message", apiErr.Message,
			)
		}
		return Reply{}, NewRemoteError("chat_completion", err)
	}

	if len(resp.Choices) == 0 {
		return Reply{}, NewRemoteError("chat_completion", ErrNoChoices)
	}

	f.log.Debug("Completion received",
		"model", resp.Model,
		"history", len(req.History),
		"total_tokens", resp.Usage.TotalTokens,
		"latency", time.Since(start).String(),
	)

	return ParseReply(resp.Choices[0].Message.Content), nil
}
