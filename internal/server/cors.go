package server

import (
	"net/http"
)

// corsMiddleware lets browsers call the resolution endpoints from any origin.
// Only read methods are advertised; registry writes are not wrapped.
func (h *Handler) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, X-Correlation-Id")
		w.Header().Set("Access-Control-Expose-Headers", "X-Correlation-Id, ETag")
		w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
