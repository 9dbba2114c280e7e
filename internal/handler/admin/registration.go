package admin

import (
	"net/http"

	"github.com/kenvote/registry/internal/auth"
	"github.com/kenvote/registry/internal/handler"
	"github.com/kenvote/registry/internal/registration"
)

// RegistrationAdminHandler controls the registration window.
type RegistrationAdminHandler struct {
	registry *registration.Service
}

// NewRegistrationAdminHandler creates a new RegistrationAdminHandler.
func NewRegistrationAdminHandler(registry *registration.Service) *RegistrationAdminHandler {
	return &RegistrationAdminHandler{registry: registry}
}

// Toggle handles POST /admin/toggle-registration.
func (h *RegistrationAdminHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Password string `json:"password"`
	}
	if err := handler.DecodeJSON(r, &input); err != nil {
		handler.RespondBadBody(w)
		return
	}

	open, err := h.registry.Toggle(r.Context(), auth.AccountFromContext(r.Context()), input.Password)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, map[string]bool{"ok": true, "open": open})
}
