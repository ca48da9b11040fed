package server

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/RegistryAccord/registryaccord-resolver-go/internal/methods/registry"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/storage"
)

const identityPrefix = "/v1/identity/"

// registryWritable reports whether identities may be created or deactivated.
// Creation hands out private keys, so it is limited to non-production
// environments registering under the did:plc method.
func (h *Handler) registryWritable() bool {
	return h.cfg.Env != "prod" && h.cfg.RegistryMethod == registry.DefaultMethod
}

// handleIdentityCreate registers a new did:plc identity with an Ed25519 key.
// The private key is returned once and is not stored.
func (h *Handler) handleIdentityCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.methodNotAllowed(w, r)
		return
	}
	if !h.registryWritable() {
		h.writeErrorWithRequest(w, r, http.StatusForbidden, codeAuthz, "identity registration disabled", nil)
		return
	}

	var input struct {
		KeySpec string `json:"keySpec"`
	}
	if err := decodeBody(w, r, &input); err != nil && !errors.Is(err, io.EOF) {
		h.writeErrorWithRequest(w, r, http.StatusBadRequest, codeValidation, "invalid JSON body", nil)
		return
	}
	keySpec := strings.TrimSpace(input.KeySpec)
	if keySpec == "" {
		keySpec = "ed25519"
	}
	if keySpec != "ed25519" {
		h.writeErrorWithRequest(w, r, http.StatusUnprocessableEntity, codeValidation, "unsupported keySpec", map[string]any{"supported": []string{"ed25519"}})
		return
	}

	id, err := registry.Register(r.Context(), h.store, h.clock())
	incrementRegistryOperation("create", err)
	if err != nil {
		h.logger.Error("identity registration failed", "error", err, "correlationId", correlationIDFrom(r.Context()))
		h.writeErrorWithRequest(w, r, http.StatusInternalServerError, codeInternal, "failed to register identity", nil)
		return
	}

	data := map[string]any{
		"did":        id.DID,
		"keyId":      id.KeyID,
		"privateKey": base64.RawURLEncoding.EncodeToString(id.PrivateKey.Seed()),
		"document":   id.Document,
		"metadata":   id.Metadata,
	}
	h.writeSuccess(w, http.StatusCreated, data, nil, r)
	h.logger.Info("identity created", "did", id.DID, "correlationId", correlationIDFrom(r.Context()))
}

// handleIdentity serves the stored registry record (GET) and deactivation
// (DELETE) of one DID.
func (h *Handler) handleIdentity(w http.ResponseWriter, r *http.Request) {
	didID := strings.TrimPrefix(r.URL.Path, identityPrefix)
	if didID == "" {
		h.writeErrorWithRequest(w, r, http.StatusBadRequest, codeValidation, "did is required", nil)
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.identityGet(w, r, didID)
	case http.MethodDelete:
		h.identityDeactivate(w, r, didID)
	default:
		h.methodNotAllowed(w, r)
	}
}

func (h *Handler) identityGet(w http.ResponseWriter, r *http.Request, didID string) {
	rec, err := h.store.GetDocument(r.Context(), didID)
	if err != nil {
		h.writeStoreError(w, r, err, "lookup failed")
		return
	}
	body := h.writeSuccess(w, http.StatusOK, map[string]any{"document": rec.Document, "metadata": rec.Metadata}, nil, r)
	h.logger.Debug("identity read", "did", rec.DID, "bytes", len(body), "correlationId", correlationIDFrom(r.Context()))
}

func (h *Handler) identityDeactivate(w http.ResponseWriter, r *http.Request, didID string) {
	if !h.registryWritable() {
		h.writeErrorWithRequest(w, r, http.StatusForbidden, codeAuthz, "identity deactivation disabled", nil)
		return
	}
	meta, err := registry.Deactivate(r.Context(), h.store, didID, h.clock())
	incrementRegistryOperation("deactivate", err)
	if err != nil {
		h.writeStoreError(w, r, err, "deactivation failed")
		return
	}
	if err := h.resolver.Invalidate(r.Context(), didID); err != nil {
		// The stale entry expires with the cache TTL.
		h.logger.Warn("cache invalidation failed", "did", didID, "error", err, "correlationId", correlationIDFrom(r.Context()))
	}
	h.writeSuccess(w, http.StatusOK, map[string]any{"did": didID, "metadata": meta}, nil, r)
	h.logger.Info("identity deactivated", "did", didID, "correlationId", correlationIDFrom(r.Context()))
}

func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error, message string) {
	if errors.Is(err, storage.ErrNotFound) {
		h.writeErrorWithRequest(w, r, http.StatusNotFound, codeNotFound, "identity not found", nil)
		return
	}
	h.logger.Error(message, "error", err, "correlationId", correlationIDFrom(r.Context()))
	h.writeErrorWithRequest(w, r, http.StatusInternalServerError, codeInternal, message, nil)
}
