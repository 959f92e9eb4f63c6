package provider

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
)

// Registry maps (provider, auth method) pairs to factories. Provider
// packages register themselves from init(), so importing a provider
// package is what makes it available.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registryEntry
}

type registryEntry struct {
	meta    ProviderMeta
	factory ProviderFactory
}

var globalRegistry = &Registry{entries: make(map[string]registryEntry)}

// Register adds a provider to the global registry.
func Register(meta ProviderMeta, factory ProviderFactory) {
	globalRegistry.Register(meta, factory)
}

func (r *Registry) Register(meta ProviderMeta, factory ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[meta.Key()] = registryEntry{meta: meta, factory: factory}
}

// GetProvider instantiates a registered provider.
func GetProvider(ctx context.Context, provider Provider, authMethod AuthMethod) (LLMProvider, error) {
	return globalRegistry.GetProvider(ctx, provider, authMethod)
}

func (r *Registry) GetProvider(ctx context.Context, provider Provider, authMethod AuthMethod) (LLMProvider, error) {
	r.mu.RLock()
	entry, ok := r.entries[string(provider)+":"+string(authMethod)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider not registered: %s:%s", provider, authMethod)
	}
	return entry.factory(ctx)
}

// GetMeta looks up a registered provider's metadata.
func GetMeta(provider Provider, authMethod AuthMethod) (ProviderMeta, bool) {
	return globalRegistry.GetMeta(provider, authMethod)
}

func (r *Registry) GetMeta(provider Provider, authMethod AuthMethod) (ProviderMeta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[string(provider)+":"+string(authMethod)]
	if !ok {
		return ProviderMeta{}, false
	}
	return entry.meta, true
}

// IsReady reports whether every credential environment variable a provider
// needs is set.
func IsReady(meta ProviderMeta) bool {
	for _, envVar := range meta.EnvVars {
		if os.Getenv(envVar) == "" {
			return false
		}
	}
	return true
}

// GetAllMetas returns metadata for every registered provider, sorted by
// key for stable display order.
func GetAllMetas() []ProviderMeta {
	return globalRegistry.GetAllMetas()
}

func (r *Registry) GetAllMetas() []ProviderMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	metas := make([]ProviderMeta, 0, len(r.entries))
	for _, entry := range r.entries {
		metas = append(metas, entry.meta)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Key() < metas[j].Key() })
	return metas
}

// GetReadyProviders returns providers whose credentials are configured.
func GetReadyProviders() []ProviderMeta {
	ready := make([]ProviderMeta, 0)
	for _, meta := range GetAllMetas() {
		if IsReady(meta) {
			ready = append(ready, meta)
		}
	}
	return ready
}

// ProviderStatus is a provider's connection state as shown in the
// provider selector.
type ProviderStatus string

const (
	StatusConnected     ProviderStatus = "connected"
	StatusAvailable     ProviderStatus = "available"
	StatusNotConfigured ProviderStatus = "not_configured"
)

// ProviderInfo pairs provider metadata with its current status.
type ProviderInfo struct {
	Meta   ProviderMeta
	Status ProviderStatus
}

// GetProvidersWithStatus groups every registered provider by name, with
// the status derived from the credential store and the environment.
func GetProvidersWithStatus(store *Store) map[Provider][]ProviderInfo {
	result := make(map[Provider][]ProviderInfo)
	for _, meta := range GetAllMetas() {
		status := StatusNotConfigured
		switch {
		case store.IsConnected(meta.Provider, meta.AuthMethod):
			status = StatusConnected
		case IsReady(meta):
			status = StatusAvailable
		}
		result[meta.Provider] = append(result[meta.Provider], ProviderInfo{Meta: meta, Status: status})
	}
	return result
}
