// Package providers implements the wire adapters between the canonical
// completion event model and the provider APIs the runtime speaks to:
// OpenAI-compatible endpoints (OpenAI, OpenRouter, Ollama, custom base
// URLs), Anthropic's native API, and AWS Bedrock's Converse API.
//
// Each adapter is a pair of pure conversions — encode a models.Context into
// a provider request, decode the provider's stream into canonical
// models.ChatCompletionMessage events — composed with the provider SDK's
// streaming client. Adapters classify errors as retriable or fatal but do
// not retry; the orchestrator owns the retry loop.
package providers

import (
	"context"

	"github.com/haasonsaas/nexus-coreagent/pkg/models"
)

// Provider is the interface every wire adapter implements.
//
// Implementations must be safe for concurrent use; each Chat call creates an
// independent stream and goroutine. The returned channel is closed after the
// terminal event (or after an error event). Cancelling ctx drops the
// underlying HTTP connection and closes the channel.
type Provider interface {
	// Chat opens a streaming completion request for the given context and
	// returns the canonical event stream.
	Chat(ctx context.Context, reqCtx *models.Context) (<-chan Event, error)

	// Models lists the models this provider serves.
	Models(ctx context.Context) ([]Model, error)

	// Name returns the provider identifier.
	Name() string
}

// Event is one element of a decoded provider stream: either a canonical
// completion event or a terminal error. After an Event with Err != nil no
// further events are delivered.
type Event struct {
	Message *models.ChatCompletionMessage
	Err     error
}

// Model describes an available model and its capabilities.
type Model struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ContextSize    int    `json:"context_size,omitempty"`
	SupportsVision bool   `json:"supports_vision,omitempty"`
	// SupportsReasoning reports whether the model emits extended-thinking
	// blocks that must be round-tripped.
	SupportsReasoning bool `json:"supports_reasoning,omitempty"`
}

// Credential is what the external ProviderCredentialStore resolves a
// provider id to. Custom providers carry a base URL, a target model id, and
// the compatibility mode that selects which adapter speaks for them.
type Credential struct {
	APIKey string `json:"api_key,omitempty" yaml:"api_key"`

	// BaseURL overrides the adapter's default endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url"`

	// ModelID forces every request through this model id, regardless of the
	// context's model. Used by custom providers.
	ModelID string `json:"model_id,omitempty" yaml:"model_id"`

	// CompatibilityMode selects the adapter for Custom providers:
	// "openai" or "anthropic".
	CompatibilityMode string `json:"compatibility_mode,omitempty" yaml:"compatibility_mode"`

	// AWS settings for the Bedrock adapter.
	AWSRegion          string `json:"aws_region,omitempty" yaml:"aws_region"`
	AWSAccessKeyID     string `json:"aws_access_key_id,omitempty" yaml:"aws_access_key_id"`
	AWSSecretAccessKey string `json:"aws_secret_access_key,omitempty" yaml:"aws_secret_access_key"`
	AWSSessionToken    string `json:"aws_session_token,omitempty" yaml:"aws_session_token"`
}

// CredentialStore resolves a provider id to its credential. The on-disk
// implementation lives outside the core; tests use an in-memory map.
type CredentialStore interface {
	Get(ctx context.Context, providerID string) (*Credential, error)
}
