package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/agentd-ai/agentd/internal/logging"
	"github.com/agentd-ai/agentd/pkg/types"
)

// Registry manages all available providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	config    *types.Config
}

// NewRegistry creates a new provider registry.
func NewRegistry(config *types.Config) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		config:    config,
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.ID()] = provider
}

// Get retrieves a provider by ID.
func (r *Registry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", providerID)
	}
	return provider, nil
}

// List returns all registered providers.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	return providers
}

// Default returns the provider selected by the configured "provider/model"
// string, falling back to anthropic, then to any registered provider.
func (r *Registry) Default() (Provider, error) {
	if r.config != nil && r.config.Model != "" {
		providerID, _ := ParseModelString(r.config.Model)
		if providerID != "" {
			return r.Get(providerID)
		}
	}

	if p, err := r.Get("anthropic"); err == nil {
		return p, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		return p, nil
	}
	return nil, fmt.Errorf("no providers available")
}

// ParseModelString parses "provider/model" format.
func ParseModelString(s string) (providerID, modelID string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", s
}

// InitializeProviders creates and registers all providers from config.
func InitializeProviders(ctx context.Context, config *types.Config) (*Registry, error) {
	registry := NewRegistry(config)

	_, modelID := ParseModelString(config.Model)

	if cfg, ok := config.Provider["anthropic"]; ok && cfg.APIKey != "" && !cfg.Disable {
		provider, err := NewAnthropicProvider(ctx, &AnthropicConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     pickModel(cfg.Model, "anthropic", config.Model, modelID),
			MaxTokens: cfg.MaxTokens,
		})
		if err != nil {
			logging.Warn().Err(err).Msg("anthropic provider unavailable")
		} else {
			registry.Register(provider)
		}
	}

	if cfg, ok := config.Provider["openai"]; ok && cfg.APIKey != "" && !cfg.Disable {
		provider, err := NewOpenAIProvider(ctx, &OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     pickModel(cfg.Model, "openai", config.Model, modelID),
			MaxTokens: cfg.MaxTokens,
		})
		if err != nil {
			logging.Warn().Err(err).Msg("openai provider unavailable")
		} else {
			registry.Register(provider)
		}
	}

	if cfg, ok := config.Provider["ark"]; ok && cfg.APIKey != "" && !cfg.Disable {
		provider, err := NewArkProvider(ctx, &ArkConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
		if err != nil {
			logging.Warn().Err(err).Msg("ark provider unavailable")
		} else {
			registry.Register(provider)
		}
	}

	return registry, nil
}

// pickModel prefers the per-provider model, then the global "provider/model"
// selection when it names this provider.
func pickModel(providerModel, providerID, globalModel, globalModelID string) string {
	if providerModel != "" {
		return providerModel
	}
	if gp, _ := ParseModelString(globalModel); gp == providerID {
		return globalModelID
	}
	return ""
}
