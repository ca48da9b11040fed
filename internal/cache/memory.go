package cache

import (
	"context"
	"sync"

	"github.com/RegistryAccord/registryaccord-resolver-go/internal/model"
)

// memory keeps entries in a process-local map. A single mutex guards the map
// because reads may delete expired entries.
type memory struct {
	opts options

	mu      sync.Mutex
	entries map[string]entry
	closed  bool
}

// NewMemory returns a concurrency-safe in-memory cache.
func NewMemory(opts ...Option) Cache {
	return &memory{opts: buildOptions(opts), entries: make(map[string]entry)}
}

func (m *memory) Get(_ context.Context, key string) (model.ResolutionResult, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return model.ResolutionResult{}, false, ErrClosed
	}
	e, ok := m.entries[key]
	if !ok {
		return model.ResolutionResult{}, false, nil
	}
	if e.expired(m.opts.clock()) {
		delete(m.entries, key)
		return model.ResolutionResult{}, false, nil
	}
	return e.Value, true, nil
}

func (m *memory) Set(_ context.Context, key string, value model.ResolutionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.entries[key] = entry{Value: value, ExpiresAt: m.opts.clock().Add(m.opts.ttl)}
	return nil
}

func (m *memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	delete(m.entries, key)
	return nil
}

func (m *memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	clear(m.entries)
	return nil
}

func (m *memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.entries = nil
	return nil
}
