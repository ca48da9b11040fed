// Package web resolves DIDs through a universal resolver's HTTP interface
// (GET {base}/1.0/identifiers/{did}). One Resolver is registered per method
// routed to the remote service, typically did:web.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/RegistryAccord/registryaccord-resolver-go/internal/did"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/model"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/resolver"
)

// maxBodyBytes caps the size of a resolution response.
const maxBodyBytes = 1 << 20

// Option configures the resolver client.
type Option func(*options)

type options struct {
	httpClient *http.Client
	userAgent  string
}

func defaultOptions() options {
	return options{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		userAgent:  "registryaccord-resolver-go",
	}
}

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithUserAgent sets a custom User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *options) {
		if ua != "" {
			o.userAgent = ua
		}
	}
}

// Resolver implements resolver.MethodResolver against a universal resolver.
type Resolver struct {
	method  string
	baseURL string
	opts    options
}

// New returns a Resolver for method that queries baseURL.
func New(method, baseURL string, opts ...Option) *Resolver {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Resolver{method: method, baseURL: strings.TrimRight(baseURL, "/"), opts: o}
}

func (r *Resolver) Method() string { return r.method }

// Resolve performs a single GET. The response may be a bare DID document or a
// full resolution result. Transport failures and unexpected statuses yield
// internalError.
func (r *Resolver) Resolve(ctx context.Context, id did.URL, opts resolver.Options) model.ResolutionResult {
	// The DID is appended verbatim so percent-encoded ids are not escaped twice.
	target := r.baseURL + "/1.0/identifiers/" + id.URI
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return model.ResolutionError(model.ErrorInternal, fmt.Sprintf("build request: %v", err))
	}
	accept := opts.Accept
	if accept == "" {
		accept = model.ContentTypeDIDLDJSON
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", r.opts.userAgent)

	resp, err := r.opts.httpClient.Do(req)
	if err != nil {
		return model.ResolutionError(model.ErrorInternal, fmt.Sprintf("upstream: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return model.ResolutionError(model.ErrorInternal, fmt.Sprintf("read body: %v", err))
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return decodeResult(body, resp.Header.Get("Content-Type"))
	case http.StatusNotFound:
		return model.ResolutionError(model.ErrorNotFound, upstreamMessage(body))
	case http.StatusBadRequest:
		return model.ResolutionError(model.ErrorInvalidDID, upstreamMessage(body))
	case http.StatusNotAcceptable:
		return model.ResolutionError(model.ErrorRepresentationNotSupported, upstreamMessage(body))
	case http.StatusGone:
		return deactivated(body)
	default:
		return model.ResolutionError(model.ErrorInternal, fmt.Sprintf("status=%d body=%s", resp.StatusCode, upstreamMessage(body)))
	}
}

// envelope is the universal resolver's resolution result shape.
type envelope struct {
	Document           *model.Document          `json:"didDocument"`
	DocumentMetadata   model.DocumentMetadata   `json:"didDocumentMetadata"`
	ResolutionMetadata model.ResolutionMetadata `json:"didResolutionMetadata"`
}

func decodeResult(body []byte, contentType string) model.ResolutionResult {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return model.ResolutionError(model.ErrorInternal, fmt.Sprintf("decode response: %v", err))
	}
	if env.ResolutionMetadata.Error != "" {
		return model.ResolutionError(env.ResolutionMetadata.Error, env.ResolutionMetadata.ErrorMessage)
	}

	var result model.ResolutionResult
	if env.Document != nil {
		result = model.Resolved(*env.Document, env.DocumentMetadata)
	} else {
		var doc model.Document
		if err := json.Unmarshal(body, &doc); err != nil {
			return model.ResolutionError(model.ErrorInternal, fmt.Sprintf("decode document: %v", err))
		}
		if doc.ID == "" {
			return model.ResolutionError(model.ErrorInternal, "response carries no DID document")
		}
		result = model.Resolved(doc, model.DocumentMetadata{})
	}

	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case model.ContentTypeDIDJSON, model.ContentTypeDIDLDJSON:
			result.ResolutionMetadata.ContentType = mediaType
		}
	}
	return result
}

// deactivated maps 410 Gone: the document, when present, is returned with
// deactivated metadata.
func deactivated(body []byte) model.ResolutionResult {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Document == nil {
		return model.ResolutionError(model.ErrorNotFound, "DID is deactivated")
	}
	env.DocumentMetadata.Deactivated = true
	return model.Resolved(*env.Document, env.DocumentMetadata)
}

// maxUpstreamMessage bounds how much of an unstructured error body is kept.
const maxUpstreamMessage = 200

func upstreamMessage(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.ResolutionMetadata.ErrorMessage != "" {
		return env.ResolutionMetadata.ErrorMessage
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxUpstreamMessage {
		cut := maxUpstreamMessage
		// back up to a rune boundary
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	return msg
}
