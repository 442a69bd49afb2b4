package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"FeedbackFlow/internal/config"
	"FeedbackFlow/internal/ports"
)

// ErrMisconfigured is returned when a provider lacks credentials or a model.
var ErrMisconfigured = errors.New("llm client misconfigured")

// Factory builds a completer from configuration.
type Factory func(ctx context.Context, cfg config.AIConfig) (ports.Completer, error)

// Registry keeps a mapping from provider names to their constructors.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry builds a registry with the built-in providers.
func NewRegistry() *Registry {
	r := &Registry{factories: map[string]Factory{}}
	r.Register("openai", func(ctx context.Context, cfg config.AIConfig) (ports.Completer, error) {
		if cfg.APIKey == "" {
			return nil, ErrMisconfigured
		}
		return NewChatGPTClient(cfg), nil
	})
	r.Register("anthropic", func(ctx context.Context, cfg config.AIConfig) (ports.Completer, error) {
		client, err := NewAnthropicClient(cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	})
	r.Register("bedrock", func(ctx context.Context, cfg config.AIConfig) (ports.Completer, error) {
		client, err := NewBedrockClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	})
	return r
}

// Register adds or replaces a provider implementation.
func (r *Registry) Register(name string, factory Factory) {
	if r.factories == nil {
		r.factories = map[string]Factory{}
	}
	r.factories[strings.ToLower(name)] = factory
}

// Resolve builds the completer for the configured provider or returns an
// error if it is absent.
func (r *Registry) Resolve(ctx context.Context, cfg config.AIConfig) (ports.Completer, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("ai provider %q is not registered (known: %s)", cfg.Provider, strings.Join(r.names(), ", "))
	}
	return factory(ctx, cfg)
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
