package server

import (
	"context"
	"database/sql"
	"net/http"
	"time"
)

// readyHandler answers 503 until the registry database (when Postgres backs
// it) responds to a ping and at least one DID method is registered.
func (h *Handler) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	w.Header().Set(headerContentType, contentTypeJSON)
	if db, ok := h.store.(interface{ DB() *sql.DB }); ok {
		if err := db.DB().PingContext(ctx); err != nil {
			h.logger.Warn("readiness check failed", "check", "database", "error", err)
			h.writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "database not ready", correlationIDFrom(r.Context()), nil)
			return
		}
	}
	if len(h.resolver.Methods()) == 0 {
		h.writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "no did methods configured", correlationIDFrom(r.Context()), nil)
		return
	}

	w.Header().Set(headerContentType, "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
