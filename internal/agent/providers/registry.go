package providers

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Well-known provider ids. A Custom provider is addressed as
// "custom:<name>" and resolved through its credential's compatibility mode.
const (
	IDOpenAI     = "openai"
	IDOpenRouter = "openrouter"
	IDOllama     = "ollama"
	IDAnthropic  = "anthropic"
	IDBedrock    = "bedrock"

	customPrefix = "custom:"
)

// CompatibilityOpenAI and CompatibilityAnthropic are the two wire dialects
// a custom provider can declare.
const (
	CompatibilityOpenAI    = "openai"
	CompatibilityAnthropic = "anthropic"
)

// Registry resolves provider ids to adapters, constructing each once from
// the credential store and caching it.
type Registry struct {
	creds CredentialStore

	mu    sync.Mutex
	cache map[string]Provider
}

// NewRegistry builds a registry over the given credential store.
func NewRegistry(creds CredentialStore) *Registry {
	return &Registry{creds: creds, cache: make(map[string]Provider)}
}

// Resolve returns the adapter for a provider id, building it on first use.
func (r *Registry) Resolve(ctx context.Context, providerID string) (Provider, error) {
	r.mu.Lock()
	if p, ok := r.cache[providerID]; ok {
		r.mu.Unlock()
		return p, nil
	}
	r.mu.Unlock()

	cred, err := r.creds.Get(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("resolve credential for %q: %w", providerID, err)
	}

	p, err := build(ctx, providerID, cred)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[providerID] = p
	r.mu.Unlock()
	return p, nil
}

func build(ctx context.Context, providerID string, cred *Credential) (Provider, error) {
	switch {
	case providerID == IDOpenAI:
		return NewOpenAIProvider(OpenAIConfig{APIKey: cred.APIKey, BaseURL: cred.BaseURL})
	case providerID == IDOpenRouter:
		return NewOpenRouterProvider(cred.APIKey)
	case providerID == IDOllama:
		return NewOllamaProvider(cred.BaseURL)
	case providerID == IDAnthropic:
		return NewAnthropicProvider(AnthropicConfig{APIKey: cred.APIKey, BaseURL: cred.BaseURL})
	case providerID == IDBedrock:
		return NewBedrockProvider(ctx, BedrockConfig{
			Region:          cred.AWSRegion,
			AccessKeyID:     cred.AWSAccessKeyID,
			SecretAccessKey: cred.AWSSecretAccessKey,
			SessionToken:    cred.AWSSessionToken,
		})
	case strings.HasPrefix(providerID, customPrefix):
		return buildCustom(strings.TrimPrefix(providerID, customPrefix), cred)
	default:
		return nil, fmt.Errorf("unknown provider %q", providerID)
	}
}

// buildCustom reuses the adapter matching the credential's compatibility
// mode, pointed at the custom base URL with the configured model override.
func buildCustom(name string, cred *Credential) (Provider, error) {
	if cred.BaseURL == "" {
		return nil, fmt.Errorf("custom provider %q: base_url not configured", name)
	}
	switch cred.CompatibilityMode {
	case CompatibilityAnthropic:
		return NewAnthropicProvider(AnthropicConfig{
			Name:          name,
			APIKey:        cred.APIKey,
			BaseURL:       cred.BaseURL,
			ModelOverride: cred.ModelID,
		})
	case CompatibilityOpenAI, "":
		return NewOpenAIProvider(OpenAIConfig{
			Name:          name,
			APIKey:        cred.APIKey,
			BaseURL:       cred.BaseURL,
			ModelOverride: cred.ModelID,
		})
	default:
		return nil, fmt.Errorf("custom provider %q: unknown compatibility mode %q", name, cred.CompatibilityMode)
	}
}

// StaticCredentials is an in-memory CredentialStore for tests and embedding.
type StaticCredentials map[string]*Credential

// Get implements CredentialStore.
func (s StaticCredentials) Get(_ context.Context, providerID string) (*Credential, error) {
	cred, ok := s[providerID]
	if !ok {
		return nil, fmt.Errorf("no credential for provider %q", providerID)
	}
	return cred, nil
}
