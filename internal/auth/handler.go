package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/reqflow/internal/platform/httpx"
	"github.com/odyssey-erp/reqflow/internal/requisition"
)

// Handler exposes the caller's identity.
type Handler struct{}

// NewHandler builds a Handler.
func NewHandler() *Handler { return &Handler{} }

// MountRoutes registers identity endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/me", h.me)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	actor, ok := requisition.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing "+HeaderUserID)
		return
	}
	httpx.JSON(w, http.StatusOK, actor)
}
