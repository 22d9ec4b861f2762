package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
)

// Provider constants for LLM provider selection.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds LLM client configuration.
type Config struct {
	Provider    string  // "openai" or "anthropic"
	APIKey      string  // Required: API key for the provider
	BaseURL     string  // Optional: custom API endpoint
	Model       string  // Model name (e.g., "gpt-4o", "claude-sonnet-4-5-20250514")
	MaxTokens   int     // Default completion budget when a request sets none
	Temperature float64 // Default sampling temperature
	MaxRetries  *int    // Optional: SDK retry count, nil keeps the SDK default
}

// Client runs single-turn completions.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Model() string
}

type Request struct {
	SystemPrompt string
	UserPrompt   string
	SchemaName   string   // with Schema, asks the model for JSON matching it
	Schema       any      // JSON schema, typically from GenerateSchema
	MaxTokens    int      // 0 = client default
	Temperature  *float64 // nil = client default, explicit 0 = deterministic
}

type Response struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// NewClient selects the provider named by cfg.Provider.
// Defaults to Anthropic if no provider is specified.
func NewClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	provider := cfg.Provider
	if provider == "" {
		provider = ProviderAnthropic
	}

	switch provider {
	case ProviderAnthropic:
		return newAnthropicClient(cfg), nil
	case ProviderOpenAI:
		return newOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

// GenerateSchema reflects a strict JSON schema for T.
func GenerateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

func Temp(t float64) *float64 {
	return &t
}

// Decode unmarshals a structured completion, tolerating a fenced code block.
func Decode[T any](resp *Response) (T, error) {
	var out T
	if resp == nil {
		return out, fmt.Errorf("nil response")
	}
	if err := json.Unmarshal([]byte(StripCodeFence(resp.Content)), &out); err != nil {
		return out, fmt.Errorf("unmarshal response: %w", err)
	}
	return out, nil
}

// StripCodeFence removes a surrounding ``` or ```json fence.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func schemaInstruction(req Request) (string, error) {
	if req.Schema == nil {
		return "", nil
	}
	schema, err := json.Marshal(req.Schema)
	if err != nil {
		return "", fmt.Errorf("encoding schema: %w", err)
	}
	return "Respond with a single JSON object and nothing else. It must validate against this JSON schema:\n" + string(schema), nil
}
