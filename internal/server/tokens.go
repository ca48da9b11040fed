package server

import (
	"net/http"
	"strings"

	"github.com/RegistryAccord/registryaccord-resolver-go/internal/failure"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/jws"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/model"
)

type tokenRequest struct {
	Token string `json:"token"`
}

type verifiedToken struct {
	Header             jws.Header               `json:"header"`
	Payload            map[string]any           `json:"payload"`
	Issuer             string                   `json:"issuer"`
	Subject            string                   `json:"subject,omitempty"`
	VerificationMethod model.VerificationMethod `json:"verificationMethod"`
}

type parsedToken struct {
	Header  jws.Header     `json:"header"`
	Payload map[string]any `json:"payload"`
}

// handleTokenVerify authenticates a compact token and returns its reconciled
// claims.
func (h *Handler) handleTokenVerify(w http.ResponseWriter, r *http.Request) {
	token, ok := h.readToken(w, r)
	if !ok {
		return
	}
	v, err := h.tokens.Verify(r.Context(), token)
	if err != nil {
		h.writeTokenError(w, r, err)
		return
	}
	h.writeSuccess(w, http.StatusOK, verifiedToken{
		Header:             v.Header,
		Payload:            v.Payload,
		Issuer:             v.Issuer,
		Subject:            v.Subject,
		VerificationMethod: v.VerificationMethod,
	}, nil, r)
}

// handleTokenParse decodes a compact token without verifying it.
func (h *Handler) handleTokenParse(w http.ResponseWriter, r *http.Request) {
	token, ok := h.readToken(w, r)
	if !ok {
		return
	}
	tok, err := h.tokens.Parse(token)
	if err != nil {
		h.writeTokenError(w, r, err)
		return
	}
	h.writeSuccess(w, http.StatusOK, parsedToken{Header: tok.Header, Payload: tok.Claims}, map[string]any{"verified": false}, r)
}

func (h *Handler) readToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		h.methodNotAllowed(w, r)
		return "", false
	}
	var in tokenRequest
	if err := decodeBody(w, r, &in); err != nil {
		h.writeErrorWithRequest(w, r, http.StatusBadRequest, codeValidation, "invalid JSON body", nil)
		return "", false
	}
	token := strings.TrimSpace(in.Token)
	if token == "" {
		h.writeErrorWithRequest(w, r, http.StatusBadRequest, codeValidation, "token is required", nil)
		return "", false
	}
	return token, true
}

// writeTokenError reports a failure kind as TOKEN_<KIND>, e.g.
// TOKEN_INVALID_SIGNATURE, with the kind repeated in the details.
func (h *Handler) writeTokenError(w http.ResponseWriter, r *http.Request, err error) {
	kind := failure.KindOf(err)
	status := http.StatusUnprocessableEntity
	switch kind {
	case failure.MalformedToken:
		status = http.StatusBadRequest
	case failure.Internal:
		h.logger.Error("token processing failed", "error", err, "correlationId", correlationIDFrom(r.Context()))
		h.writeErrorWithRequest(w, r, http.StatusInternalServerError, codeInternal, "token processing failed", nil)
		return
	}
	code := "TOKEN_" + strings.ToUpper(string(kind))
	h.writeErrorWithRequest(w, r, status, code, err.Error(), map[string]any{"kind": kind})
}
