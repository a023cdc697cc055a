// Package anthropic adapts the Anthropic Messages API to the
// llm.CompletionProvider contract.
package anthropic

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dpmorgan-gotribe/agentflow/pkg/config"
	"github.com/dpmorgan-gotribe/agentflow/pkg/llm"
)

const (
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 8192
	defaultAPIKeyEnv = "ANTHROPIC_API_KEY"
)

// Client is a CompletionProvider backed by the Anthropic Messages API.
type Client struct {
	client      sdk.Client
	model       string
	maxTokens   int
	temperature *float64
	logger      *slog.Logger
}

// New builds a client from provider configuration. The API key is read from
// the environment variable named by cfg.APIKeyEnv.
func New(cfg config.LLMProviderConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = defaultAPIKeyEnv
	}
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: environment variable %s is empty", llm.ErrNotConfigured, keyEnv)
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	var temperature *float64
	if cfg.Temperature > 0 {
		t := cfg.Temperature
		temperature = &t
	}

	logger.Info("anthropic provider configured", "model", model, "max_tokens", maxTokens)

	return &Client{
		client:      sdk.NewClient(option.WithAPIKey(apiKey)),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      logger,
	}, nil
}

// Complete sends one Messages API request and returns the concatenated text
// content.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic completion: %w", err)
	}

	content := extractText(msg)
	if content == "" {
		return nil, llm.ErrEmptyResponse
	}

	return &llm.CompletionResponse{
		Content:    content,
		StopReason: string(msg.StopReason),
		Model:      string(msg.Model),
		Usage: llm.TokenUsage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

// buildParams converts a CompletionRequest into Messages API parameters,
// applying client defaults where the request leaves fields zero.
func (c *Client) buildParams(req llm.CompletionRequest) (sdk.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return sdk.MessageNewParams{}, fmt.Errorf("completion request has no messages")
	}

	model := c.model
	if req.Model != "" {
		model = req.Model
	}
	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}

	temperature := c.temperature
	if req.Temperature != nil {
		temperature = req.Temperature
	}
	if temperature != nil {
		params.Temperature = sdk.Float(*temperature)
	}

	messages := make([]sdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleAssistant:
			messages = append(messages, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		case llm.RoleSystem:
			// The Messages API takes system content out of band; fold any
			// stray system message into the system blocks.
			params.System = append(params.System, sdk.TextBlockParam{Text: m.Content})
		default:
			messages = append(messages, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	if len(messages) == 0 {
		return sdk.MessageNewParams{}, fmt.Errorf("completion request has no user or assistant messages")
	}
	params.Messages = messages
	return params, nil
}

// extractText concatenates the text blocks of a response.
func extractText(msg *sdk.Message) string {
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}
