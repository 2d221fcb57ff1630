package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/reqflow/internal/platform/httpx"
	"github.com/odyssey-erp/reqflow/internal/requisition"
)

// HeaderUserID carries the id of the authenticated caller, set by the
// fronting identity proxy.
const HeaderUserID = "X-User-ID"

// Middleware resolves the caller named by HeaderUserID and stores it on the
// request context. Requests without the header pass through unauthenticated.
func Middleware(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(HeaderUserID))
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}
			user, err := service.Resolve(r.Context(), id)
			if err != nil {
				if logger != nil {
					logger.Warn("identity rejected", slog.String("user_id", id), slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "unknown or inactive user")
				return
			}
			next.ServeHTTP(w, r.WithContext(requisition.ContextWithActor(r.Context(), user)))
		})
	}
}
