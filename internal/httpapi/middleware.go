package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/aro-via/routing-maps/internal/logger"
)

// requestID tags ctx with a request-scoped logger carrying a correlation ID,
// mirroring the CORS-style wrap-every-request middleware shape used
// elsewhere in the stack.
func (h *Handler) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		reqLog := h.log.WithRequestID(id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logger.ToContext(r.Context(), reqLog)))
	})
}
