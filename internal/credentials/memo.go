package credentials

import (
	"context"
	"sync"

	"github.com/tinywideclouds/go-tenant-push-service/pkg/push"
)

// Source is anything that can resolve credentials. *Resolver satisfies it.
type Source interface {
	Resolve(ctx context.Context, tenantID string, platform push.Platform, bundleID string) (*push.CredentialBundle, error)
}

type memoKey struct {
	tenantID string
	platform push.Platform
	bundleID string
}

type memoEntry struct {
	done   chan struct{}
	bundle *push.CredentialBundle
	err    error
}

// Memo caches resolutions for the lifetime of one dispatch. It is safe for concurrent
// use and resolves each key at most once. Create a new Memo per dispatch.
type Memo struct {
	source  Source
	mu      sync.Mutex
	entries map[memoKey]*memoEntry
}

func NewMemo(source Source) *Memo {
	return &Memo{
		source:  source,
		entries: make(map[memoKey]*memoEntry),
	}
}

// Resolve returns a copy of the memoized bundle, resolving on first use. Errors are
// memoized too. A caller whose ctx ends while the lookup is in flight returns ctx.Err()
// without waiting for it.
func (m *Memo) Resolve(ctx context.Context, tenantID string, platform push.Platform, bundleID string) (*push.CredentialBundle, error) {
	key := memoKey{tenantID: tenantID, platform: platform, bundleID: bundleID}

	for {
		m.mu.Lock()
		entry, ok := m.entries[key]
		if !ok {
			entry = &memoEntry{done: make(chan struct{})}
			m.entries[key] = entry
			go m.fill(ctx, key, entry)
		}
		m.mu.Unlock()

		select {
		case <-entry.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if entry.err != nil {
			if m.dropped(key, entry) && ctx.Err() == nil {
				// Another caller gave up on this lookup; start a fresh one.
				continue
			}
			return nil, entry.err
		}
		bundle := *entry.bundle
		return &bundle, nil
	}
}

func (m *Memo) dropped(key memoKey, entry *memoEntry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[key] != entry
}

// fill runs the lookup for key. A lookup cut short by its caller's context is dropped
// so the next caller for the key starts a fresh one.
func (m *Memo) fill(ctx context.Context, key memoKey, entry *memoEntry) {
	entry.bundle, entry.err = m.source.Resolve(ctx, key.tenantID, key.platform, key.bundleID)
	if entry.err != nil && ctx.Err() != nil {
		m.mu.Lock()
		if m.entries[key] == entry {
			delete(m.entries, key)
		}
		m.mu.Unlock()
	}
	close(entry.done)
}
