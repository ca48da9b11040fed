// Package resolver dispatches DID resolution to per-method resolvers and
// caches their results.
//
// Method resolvers are registered once, at construction, in a table keyed by
// method name. A resolution parses the DID, picks the method resolver, serves
// the canonical DID from cache when possible and otherwise invokes the method
// resolver and caches what it returns, including failures unless failure
// caching is disabled.
//
// Concurrent resolutions of the same DID are not de-duplicated: each miss may
// invoke the method resolver and the last write wins in the cache. Resolution
// is idempotent per identifier so this only costs redundant work.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/RegistryAccord/registryaccord-resolver-go/internal/cache"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/did"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/model"
)

// Options are per-call resolution options.
type Options struct {
	// Accept is the requested representation; empty means the default
	// application/did+ld+json.
	Accept string
}

// MethodResolver resolves DIDs of one method. Implementations report
// failures through the result's error code rather than a Go error, and own
// any network I/O, retries and timeouts.
type MethodResolver interface {
	Method() string
	Resolve(ctx context.Context, id did.URL, opts Options) model.ResolutionResult
}

// Resolver is the DID resolution entry point. It is safe for concurrent use.
type Resolver struct {
	methods       map[string]MethodResolver
	cache         cache.Cache
	cacheFailures bool
	logger        *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCache sets the result cache. The default is a no-op cache.
func WithCache(c cache.Cache) Option {
	return func(r *Resolver) {
		if c != nil {
			r.cache = c
		}
	}
}

// WithFailureCaching controls whether results carrying an error code are
// cached. Enabled by default.
func WithFailureCaching(enabled bool) Option {
	return func(r *Resolver) { r.cacheFailures = enabled }
}

// WithLogger sets the logger; nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New builds a Resolver from a fixed set of method resolvers. Method names
// must be unique and non-empty.
func New(methods []MethodResolver, opts ...Option) (*Resolver, error) {
	r := &Resolver{
		methods:       make(map[string]MethodResolver, len(methods)),
		cache:         cache.NewNoop(),
		cacheFailures: true,
		logger:        slog.Default(),
	}
	for _, m := range methods {
		name := m.Method()
		if name == "" {
			return nil, fmt.Errorf("method resolver %T has no method name", m)
		}
		if _, dup := r.methods[name]; dup {
			return nil, fmt.Errorf("duplicate method resolver for %q", name)
		}
		r.methods[name] = m
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Methods returns the registered method names in sorted order.
func (r *Resolver) Methods() []string {
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve resolves didURI with default options.
func (r *Resolver) Resolve(ctx context.Context, didURI string) (model.ResolutionResult, error) {
	return r.ResolveWith(ctx, didURI, Options{})
}

// ResolveWith resolves didURI. Resolution failures are reported in the
// result's metadata; the returned error is reserved for cache I/O failures.
// Path, query and fragment components of didURI are ignored.
func (r *Resolver) ResolveWith(ctx context.Context, didURI string, opts Options) (model.ResolutionResult, error) {
	parsed, ok := did.Parse(didURI)
	if !ok {
		resolutionsTotal.WithLabelValues("", model.ErrorInvalidDID).Inc()
		return model.ResolutionError(model.ErrorInvalidDID, fmt.Sprintf("cannot parse %q", didURI)), nil
	}
	return r.resolveParsed(ctx, parsed, opts)
}

func (r *Resolver) resolveParsed(ctx context.Context, parsed did.URL, opts Options) (model.ResolutionResult, error) {
	method, ok := r.methods[parsed.Method]
	if !ok {
		resolutionsTotal.WithLabelValues(parsed.Method, model.ErrorMethodNotSupported).Inc()
		return model.ResolutionError(model.ErrorMethodNotSupported, fmt.Sprintf("no resolver registered for method %q", parsed.Method)), nil
	}
	if !Acceptable(opts.Accept) {
		resolutionsTotal.WithLabelValues(parsed.Method, model.ErrorRepresentationNotSupported).Inc()
		return model.ResolutionError(model.ErrorRepresentationNotSupported, fmt.Sprintf("cannot produce %q", opts.Accept)), nil
	}

	key := parsed.URI
	cached, hit, err := r.cache.Get(ctx, key)
	if err != nil {
		return model.ResolutionResult{}, fmt.Errorf("cache get %s: %w", key, err)
	}
	if hit {
		cacheLookupsTotal.WithLabelValues("hit").Inc()
		r.logger.Debug("resolution cache hit", "did", key)
		return cached, nil
	}
	cacheLookupsTotal.WithLabelValues("miss").Inc()
	r.logger.Debug("resolution cache miss", "did", key, "method", parsed.Method)

	result := method.Resolve(ctx, parsed, opts)
	normalize(&result)
	resolutionsTotal.WithLabelValues(parsed.Method, outcome(result)).Inc()
	if result.ResolutionMetadata.Error == model.ErrorInternal {
		r.logger.Warn("method resolver failed", "did", key, "error", result.ResolutionMetadata.ErrorMessage)
	}

	if result.Failed() && !r.cacheFailures {
		return result, nil
	}
	if err := r.cache.Set(ctx, key, result); err != nil {
		return model.ResolutionResult{}, fmt.Errorf("cache set %s: %w", key, err)
	}
	return result, nil
}

// Invalidate drops any cached result for the DID in didURI so the next
// resolution reaches the method resolver.
func (r *Resolver) Invalidate(ctx context.Context, didURI string) error {
	parsed, ok := did.Parse(didURI)
	if !ok {
		return fmt.Errorf("cannot parse %q", didURI)
	}
	return r.cache.Delete(ctx, parsed.URI)
}

// Close releases the cache.
func (r *Resolver) Close() error {
	return r.cache.Close()
}

// normalize enforces "error implies no document" and fills the default
// content type on success.
func normalize(result *model.ResolutionResult) {
	if result.Failed() {
		result.Document = nil
		return
	}
	if result.Document == nil {
		result.ResolutionMetadata.Error = model.ErrorNotFound
		return
	}
	if result.ResolutionMetadata.ContentType == "" {
		result.ResolutionMetadata.ContentType = model.ContentTypeDIDLDJSON
	}
}

// Acceptable reports whether a resolution can be produced in the accept
// representation. Empty means the default.
func Acceptable(accept string) bool {
	switch accept {
	case "", model.ContentTypeDIDLDJSON, model.ContentTypeDIDJSON, "application/json", "*/*":
		return true
	default:
		return false
	}
}

func outcome(result model.ResolutionResult) string {
	if result.Failed() {
		return result.ResolutionMetadata.Error
	}
	return "success"
}
