// Package server exposes DID resolution, dereferencing, token verification and
// the document registry over HTTP.
package server

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/RegistryAccord/registryaccord-resolver-go/internal/config"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/dereference"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/resolver"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/signature"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/storage"
)

// contextKey keeps request context values private to this package.
type contextKey string

const (
	contextKeyCorrelationID contextKey = "correlationId"

	headerContentType   = "Content-Type"
	headerCorrelationID = "X-Correlation-Id"
	headerCacheControl  = "Cache-Control"
	headerETag          = "ETag"

	contentTypeJSON     = "application/json"
	cacheControlResolve = "public, max-age=60"

	maxBodyBytes = 1 << 20 // request bodies are capped at 1 MiB
)

// Error codes used in the JSON error envelope.
const (
	codeValidation = "RESOLVER_VALIDATION"
	codeNotFound   = "RESOLVER_NOT_FOUND"
	codeAuthz      = "RESOLVER_AUTHZ"
	codeInternal   = "RESOLVER_INTERNAL"
)

// Services are the components the HTTP surface is wired to. Store may be nil
// when no document registry is configured.
type Services struct {
	Resolver     *resolver.Resolver
	Dereferencer *dereference.Dereferencer
	Tokens       *signature.Protocol
	Store        storage.Store
}

// Handler wires HTTP endpoints using net/http.
type Handler struct {
	cfg      config.Config
	resolver *resolver.Resolver        // DID resolution, cached
	deref    *dereference.Dereferencer // DID URL dereferencing on top of resolver
	tokens   *signature.Protocol       // compact token verification
	store    storage.Store             // document registry; nil disables /v1/identity
	logger   *slog.Logger
	clock    func() time.Time // overridable in tests
	router   *http.ServeMux
}

// New creates a Handler using the supplied dependencies.
func New(cfg config.Config, svc Services, logger *slog.Logger) (*Handler, error) {
	if svc.Resolver == nil || svc.Dereferencer == nil || svc.Tokens == nil {
		return nil, errors.New("resolver, dereferencer and token protocol are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		cfg:      cfg,
		resolver: svc.Resolver,
		deref:    svc.Dereferencer,
		tokens:   svc.Tokens,
		store:    svc.Store,
		logger:   logger,
		clock:    func() time.Time { return time.Now().UTC() },
		router:   http.NewServeMux(),
	}
	h.registerRoutes()
	return h, nil
}

// Router returns an *http.ServeMux with all routes registered.
func (h *Handler) Router() *http.ServeMux {
	return h.router
}

// registerRoutes mounts every endpoint. Each is wrapped outermost-first in
// logging, then timeout, then wrap() for the JSON envelope.
func (h *Handler) registerRoutes() {
	// Operational endpoints
	h.router.Handle("/health", h.loggingMiddleware(h.timeoutMiddleware(http.HandlerFunc(h.health))))
	h.router.Handle("/ready", h.loggingMiddleware(h.timeoutMiddleware(http.HandlerFunc(h.readyHandler))))
	h.router.Handle("/metrics", h.loggingMiddleware(h.timeoutMiddleware(http.HandlerFunc(h.metricsHandler))))

	// Universal resolver compatible read API, open to browsers.
	h.router.Handle(identifiersPrefix, h.loggingMiddleware(h.corsMiddleware(h.timeoutMiddleware(h.wrap(h.handleIdentifiers)))))
	h.router.Handle("/1.0/methods", h.loggingMiddleware(h.corsMiddleware(h.timeoutMiddleware(h.wrap(h.handleMethods)))))

	// Token verification API
	h.router.Handle("/v1/tokens/verify", h.loggingMiddleware(h.timeoutMiddleware(h.wrap(h.handleTokenVerify))))
	h.router.Handle("/v1/tokens/parse", h.loggingMiddleware(h.timeoutMiddleware(h.wrap(h.handleTokenParse))))

	// Registry API, only when a document store is wired
	if h.store != nil {
		h.router.Handle("/v1/identity", h.loggingMiddleware(h.timeoutMiddleware(h.wrap(h.handleIdentityCreate))))
		h.router.Handle("/v1/identity/", h.loggingMiddleware(h.timeoutMiddleware(h.wrap(h.handleIdentity))))
	}
}

type responseEnvelope struct {
	Data  any            `json:"data,omitempty"`
	Meta  any            `json:"meta,omitempty"`
	Error *errorEnvelope `json:"error,omitempty"`
}

type errorEnvelope struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	Details       any    `json:"details,omitempty"`
	CorrelationID string `json:"correlationId"`
}

// health is a liveness check; it does not touch dependencies.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// wrap attaches a correlation id, sets the JSON content type and turns a
// handler panic into a 500 envelope.
func (h *Handler) wrap(next func(http.ResponseWriter, *http.Request)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Correlation id travels in the context for logs and error envelopes
		correlationID := h.ensureCorrelationID(w, r)
		ctx := context.WithValue(r.Context(), contextKeyCorrelationID, correlationID)
		r = r.WithContext(ctx)
		w.Header().Set(headerContentType, contentTypeJSON)

		// A panicking handler must not take the server down
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic recovered", "panic", rec, "correlationId", correlationID)
				h.writeError(w, http.StatusInternalServerError, codeInternal, "internal server error", correlationID, nil)
			}
		}()

		next(w, r)
	})
}

// ensureCorrelationID reuses the caller's X-Correlation-Id or mints one, and
// echoes it on the response.
func (h *Handler) ensureCorrelationID(w http.ResponseWriter, r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(headerCorrelationID))
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(headerCorrelationID, id)
	return id
}

// decodeBody reads a JSON request body of at most maxBodyBytes into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields() // typos in field names are client errors
	return dec.Decode(v)
}

// writeSuccess sends data (and optional meta) in the response envelope and
// returns the bytes written.
func (h *Handler) writeSuccess(w http.ResponseWriter, status int, data any, meta any, r *http.Request) []byte {
	env := responseEnvelope{Data: data, Meta: meta}
	return h.writeJSON(w, r, status, env)
}

// writeJSON writes v without the envelope, as resolution results are.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) []byte {
	payload := mustJSON(v)
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		h.logger.Warn("write response failed", "error", err, "correlationId", correlationIDFrom(r.Context()))
	}
	return payload
}

// writeErrorWithRequest is writeError with the correlation id taken from r.
func (h *Handler) writeErrorWithRequest(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	h.writeError(w, status, code, message, correlationIDFrom(r.Context()), details)
}

// writeError sends an error envelope. Failed writes are only logged since the
// status line is already out.
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message, correlationID string, details any) {
	env := responseEnvelope{Error: &errorEnvelope{Code: code, Message: message, Details: details, CorrelationID: correlationID}}
	payload := mustJSON(env)
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		h.logger.Warn("write error failed", "error", err, "correlationId", correlationID)
	}
}

func (h *Handler) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeErrorWithRequest(w, r, http.StatusMethodNotAllowed, codeValidation, "method not allowed", nil)
}

// mustJSON marshals response values, which are always encodable; a failure
// is a programming error and surfaces through wrap()'s recover.
func mustJSON(v any) []byte {
	payload, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return payload
}

// generateETag derives a weak validator from the first 8 bytes of the body's
// SHA-256.
func generateETag(body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf("W/\"%x\"", sum[:8])
}

func correlationIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeyCorrelationID).(string); ok {
		return v
	}
	return ""
}
