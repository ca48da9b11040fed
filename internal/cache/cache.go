// Package cache stores DID resolution results for a fixed TTL. Three
// interchangeable backends are provided: a no-op cache, a process-local
// in-memory table and a bbolt file with exclusive access to its location.
//
// Expired entries are never swept in the background; they are dropped lazily
// the next time their key is read.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RegistryAccord/registryaccord-resolver-go/internal/model"
)

// DefaultTTL is the lifetime of an entry when no TTL is configured.
const DefaultTTL = 15 * time.Minute

// Backend names accepted by New.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendBolt   = "bolt"
)

// ErrClosed is returned by every operation on a closed cache.
var ErrClosed = errors.New("cache is closed")

// Cache is a TTL key/value store of resolution results, keyed by canonical
// DID. Implementations are safe for concurrent use but provide no atomicity
// across a Get miss followed by a Set.
type Cache interface {
	// Get returns the cached result; ok is false when the key was never set
	// or has expired.
	Get(ctx context.Context, key string) (value model.ResolutionResult, ok bool, err error)
	// Set stores value with an expiry of now + TTL.
	Set(ctx context.Context, key string, value model.ResolutionResult) error
	// Delete removes key; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Clear removes every entry.
	Clear(ctx context.Context) error
	// Close releases the backing resources. Later calls fail with ErrClosed.
	Close() error
}

// Option configures a cache.
type Option func(*options)

type options struct {
	ttl   time.Duration
	clock func() time.Time
}

func defaultOptions() options {
	return options{ttl: DefaultTTL, clock: time.Now}
}

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithClock overrides the time source used to compute and check expiry.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// entry is a cached value with its expiry instant.
type entry struct {
	Value     model.ResolutionResult `json:"value"`
	ExpiresAt time.Time              `json:"expiresAt"`
}

func (e entry) expired(now time.Time) bool { return !now.Before(e.ExpiresAt) }

// New opens the named backend. path is only used by the bolt backend.
func New(backend, path string, opts ...Option) (Cache, error) {
	switch backend {
	case BackendNone:
		return NewNoop(), nil
	case BackendMemory, "":
		return NewMemory(opts...), nil
	case BackendBolt:
		return OpenBolt(path, opts...)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}
