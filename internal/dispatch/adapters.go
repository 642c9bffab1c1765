package dispatch

import (
	"github.com/tinywideclouds/go-tenant-push-service/pkg/push"
)

// Adapters selects the provider adapter of a platform.
type Adapters struct {
	byPlatform map[push.Platform]push.ProviderAdapter
}

// NewAdapters indexes adapters by their platform. A later adapter for the same
// platform replaces an earlier one.
func NewAdapters(adapters ...push.ProviderAdapter) *Adapters {
	a := &Adapters{byPlatform: make(map[push.Platform]push.ProviderAdapter, len(adapters))}
	for _, adapter := range adapters {
		a.byPlatform[adapter.Platform()] = adapter
	}
	return a
}

// For returns the adapter of p or an UnsupportedPlatformError.
func (a *Adapters) For(p push.Platform) (push.ProviderAdapter, error) {
	adapter, ok := a.byPlatform[p]
	if !ok {
		return nil, &push.UnsupportedPlatformError{Platform: string(p)}
	}
	return adapter, nil
}
