// Package llm is a small provider-neutral chat client used for vision OCR.
package llm

import (
	"context"
	"time"
)

// Provider represents the LLM provider type
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// Client defines the interface for LLM providers
type Client interface {
	// Chat sends a chat completion request and returns the response
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// GetProvider returns the provider type
	GetProvider() Provider

	// Close releases resources held by the client
	Close() error
}

// ChatRequest represents a chat completion request
type ChatRequest struct {
	Messages []Message `json:"messages"`

	// Model overrides the configured default model
	Model string `json:"model,omitempty"`

	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`

	// SystemPrompt is the system message (for providers that support it)
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// Message represents a single message in a conversation
type Message struct {
	Role    Role    `json:"role"`
	Content string  `json:"content"`
	Images  []Image `json:"images,omitempty"`
}

// Image is an inline image attachment
type Image struct {
	// MediaType is the MIME type, e.g. image/png
	MediaType string `json:"media_type"`
	Data      []byte `json:"-"`
}

// Role represents the role of a message sender
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatResponse represents a chat completion response
type ChatResponse struct {
	ID           string      `json:"id"`
	Content      string      `json:"content"`
	Model        string      `json:"model"`
	Provider     Provider    `json:"provider"`
	Usage        *TokenUsage `json:"usage"`
	FinishReason string      `json:"finish_reason"`
	CreatedAt    time.Time   `json:"created_at"`
}

// TokenUsage represents token usage statistics
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Config represents LLM client configuration
type Config struct {
	Provider     Provider      `json:"provider"`
	APIKey       string        `json:"api_key"`
	BaseURL      string        `json:"base_url,omitempty"`
	DefaultModel string        `json:"default_model,omitempty"`
	Timeout      time.Duration `json:"timeout"`
	MaxRetries   int           `json:"max_retries"`
	RetryDelay   time.Duration `json:"retry_delay"`
}
