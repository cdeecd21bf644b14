// ABOUTME: Thread-safe registry mapping tool names to their owning providers.
// ABOUTME: Detects tool name collisions across providers at registration time.

package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrProviderAlreadyRegistered indicates a provider with the same name is registered.
var ErrProviderAlreadyRegistered = errors.New("provider already registered")

// ErrProviderNotFound indicates the referenced provider was not found.
var ErrProviderNotFound = errors.New("provider not found")

// ErrToolCollision indicates a tool name already exists from another provider.
var ErrToolCollision = errors.New("tool name collision")

// Registry maintains the set of registered providers and the tools they own.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	tools     map[string]Provider // tool name -> owning provider
	logger    *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		tools:     make(map[string]Provider),
		logger:    slog.Default().With("component", "tools"),
	}
}

// Register enumerates the provider's tools and stores them. Returns
// ErrProviderAlreadyRegistered if the provider name is taken, and
// ErrToolCollision if any tool name belongs to another provider.
func (r *Registry) Register(ctx context.Context, p Provider) error {
	infos, err := p.Tools(ctx)
	if err != nil {
		return fmt.Errorf("enumerating tools of %q: %w", p.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[p.Name()]; exists {
		return fmt.Errorf("%w: %q", ErrProviderAlreadyRegistered, p.Name())
	}
	for _, info := range infos {
		if owner, exists := r.tools[info.Name]; exists {
			return fmt.Errorf("%w: tool %q already registered by provider %q",
				ErrToolCollision, info.Name, owner.Name())
		}
	}

	r.providers[p.Name()] = p
	for _, info := range infos {
		r.tools[info.Name] = p
	}

	r.logger.Info("provider registered", "provider", p.Name(), "tools", len(infos))
	return nil
}

// Unregister removes a provider and all of its tools.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.providers[name]
	if !exists {
		return fmt.Errorf("%w: %q", ErrProviderNotFound, name)
	}
	delete(r.providers, name)
	for tool, owner := range r.tools {
		if owner == p {
			delete(r.tools, tool)
		}
	}

	r.logger.Info("provider unregistered", "provider", name)
	return nil
}

// Lookup returns the provider owning the named tool.
func (r *Registry) Lookup(tool string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.tools[tool]
	return p, ok
}

// Provider returns the provider registered under the given name.
func (r *Registry) Provider(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// ToolNames returns all registered tool names, sorted.
func (r *Registry) ToolNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
