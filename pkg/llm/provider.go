// Package llm defines the completion-provider contract the orchestration
// kernel and agents speak, plus retry and circuit-breaker middleware.
// Concrete backends live in subpackages.
package llm

import (
	"context"
	"errors"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest asks a provider for one completion. Zero-value Model,
// MaxTokens, and Temperature fall back to the provider's configured defaults.
type CompletionRequest struct {
	System      string
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature *float64
}

// TokenUsage reports tokens consumed by one completion.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// CompletionResponse is the provider's answer.
type CompletionResponse struct {
	Content    string
	StopReason string
	Model      string
	Usage      TokenUsage
}

// CompletionProvider is the single contract every LLM backend implements.
// Implementations must honour ctx cancellation.
type CompletionProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

var (
	// ErrEmptyResponse is returned when a provider answers with no usable
	// text content.
	ErrEmptyResponse = errors.New("llm: empty response")

	// ErrProviderUnavailable is returned when the circuit breaker is open
	// and calls are being short-circuited.
	ErrProviderUnavailable = errors.New("llm: provider unavailable")

	// ErrNotConfigured is returned when a backend is selected but required
	// settings (API key, model) are missing.
	ErrNotConfigured = errors.New("llm: provider not configured")
)
