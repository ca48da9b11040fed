package server

import (
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/RegistryAccord/registryaccord-resolver-go/internal/did"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/model"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/resolver"
)

const identifiersPrefix = "/1.0/identifiers/"

// handleIdentifiers resolves a DID or dereferences a DID URL. The body is the
// resolution or dereferencing result itself, not the response envelope, so
// the endpoint can back the web method resolver of another instance.
func (h *Handler) handleIdentifiers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w, r)
		return
	}
	raw := identifierFromRequest(r)
	if raw == "" {
		h.writeErrorWithRequest(w, r, http.StatusBadRequest, codeValidation, "did is required", nil)
		return
	}
	opts := resolver.Options{Accept: negotiate(r.Header.Get("Accept"))}

	if isBareDID(raw) {
		res, err := h.resolver.ResolveWith(r.Context(), raw, opts)
		if err != nil {
			h.logger.Error("resolution failed", "did", raw, "error", err, "correlationId", correlationIDFrom(r.Context()))
			h.writeErrorWithRequest(w, r, http.StatusInternalServerError, codeInternal, "resolution failed", nil)
			return
		}
		status := statusForCode(res.ResolutionMetadata.Error)
		if status == http.StatusOK && res.DocumentMetadata.Deactivated {
			status = http.StatusGone
		}
		h.writeResult(w, r, status, res)
		return
	}

	res, err := h.deref.DereferenceWith(r.Context(), raw, opts)
	if err != nil {
		h.logger.Error("dereferencing failed", "didUrl", raw, "error", err, "correlationId", correlationIDFrom(r.Context()))
		h.writeErrorWithRequest(w, r, http.StatusInternalServerError, codeInternal, "dereferencing failed", nil)
		return
	}
	status := statusForCode(res.DereferencingMetadata.Error)
	if status == http.StatusOK && res.ContentMetadata.Deactivated {
		status = http.StatusGone
	}
	h.writeResult(w, r, status, res)
}

// writeResult sends a resolution or dereferencing result. Only successful
// results are cacheable.
func (h *Handler) writeResult(w http.ResponseWriter, r *http.Request, status int, result any) {
	if status == http.StatusOK {
		w.Header().Set(headerCacheControl, cacheControlResolve)
		w.Header().Set(headerETag, generateETag(mustJSON(result)))
	}
	h.writeJSON(w, r, status, result)
}

// handleMethods lists the DID methods this instance resolves.
func (h *Handler) handleMethods(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w, r)
		return
	}
	h.writeJSON(w, r, http.StatusOK, h.resolver.Methods())
}

var fragmentEscapes = strings.NewReplacer("%23", "#", "%3F", "?", "%3f", "?")

// identifierFromRequest recovers the DID URL from the request path. '#' and
// '?' must arrive percent-encoded; other escapes are kept so DIDs whose ids
// carry them (did:web:example.com%3A8443) survive. Fully encoded input
// ("did%3Aexample%3A...") is decoded once. A query the client left unencoded
// is reattached.
func identifierFromRequest(r *http.Request) string {
	raw := strings.TrimPrefix(r.URL.EscapedPath(), identifiersPrefix)
	if !strings.HasPrefix(raw, "did:") {
		if decoded, err := url.PathUnescape(raw); err == nil {
			raw = decoded
		}
	} else {
		raw = fragmentEscapes.Replace(raw)
	}
	if r.URL.RawQuery != "" && !strings.Contains(raw, "?") {
		raw += "?" + r.URL.RawQuery
	}
	return raw
}

// isBareDID decides between resolution and dereferencing. Unparseable input
// without URL delimiters is treated as a DID so it fails as invalidDid.
func isBareDID(raw string) bool {
	if parsed, ok := did.Parse(raw); ok {
		return parsed.IsBareDID()
	}
	return !strings.ContainsAny(raw, "/?#")
}

// negotiate picks the first media range in an Accept header the resolver can
// produce. When none match, the first range is returned so resolution
// reports representationNotSupported.
func negotiate(accept string) string {
	if strings.TrimSpace(accept) == "" {
		return ""
	}
	first := ""
	for _, part := range strings.Split(accept, ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if first == "" {
			first = mediaType
		}
		if resolver.Acceptable(mediaType) {
			return mediaType
		}
	}
	return first
}

// statusForCode maps a resolution or dereferencing error code to an HTTP
// status.
func statusForCode(code string) int {
	switch code {
	case "":
		return http.StatusOK
	case model.ErrorInvalidDID, model.ErrorInvalidDIDURL:
		return http.StatusBadRequest
	case model.ErrorNotFound:
		return http.StatusNotFound
	case model.ErrorMethodNotSupported:
		return http.StatusNotImplemented
	case model.ErrorRepresentationNotSupported:
		return http.StatusNotAcceptable
	default:
		return http.StatusInternalServerError
	}
}
