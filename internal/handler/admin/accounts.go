package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kenvote/registry/internal/accounts"
	"github.com/kenvote/registry/internal/auth"
	"github.com/kenvote/registry/internal/handler"
)

// AccountHandler handles staff sessions and account management.
type AccountHandler struct {
	accounts *accounts.Service
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(svc *accounts.Service) *AccountHandler {
	return &AccountHandler{accounts: svc}
}

// Login handles POST /admin/login.
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := handler.DecodeJSON(r, &input); err != nil {
		handler.RespondBadBody(w)
		return
	}

	result, err := h.accounts.Login(r.Context(), input.Username, input.Password, handler.ClientIP(r))
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, result)
}

// Logout handles POST /admin/logout.
func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Logout(r.Context(), auth.AccountFromContext(r.Context())); err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// MyProfile handles GET /admin/my-profile.
func (h *AccountHandler) MyProfile(w http.ResponseWriter, r *http.Request) {
	view, err := h.accounts.Profile(r.Context(), auth.AccountFromContext(r.Context()))
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, view)
}

// UpdateProfile handles POST /admin/update-profile.
func (h *AccountHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var input accounts.ProfileInput
	if err := handler.DecodeJSON(r, &input); err != nil {
		handler.RespondBadBody(w)
		return
	}

	view, err := h.accounts.UpdateProfile(r.Context(), auth.AccountFromContext(r.Context()), input)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, map[string]any{"ok": true, "user": view})
}

// AddUser handles POST /admin/add-user.
func (h *AccountHandler) AddUser(w http.ResponseWriter, r *http.Request) {
	var input accounts.CreateInput
	if err := handler.DecodeJSON(r, &input); err != nil {
		handler.RespondBadBody(w)
		return
	}

	view, err := h.accounts.Create(r.Context(), auth.AccountFromContext(r.Context()), input)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusCreated, map[string]any{"ok": true, "user": view})
}

// DeleteUser handles DELETE /admin/delete-user/{id}.
func (h *AccountHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	err := h.accounts.Delete(r.Context(), auth.AccountFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// PromoteUser handles POST /admin/promote-user/{id}.
func (h *AccountHandler) PromoteUser(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Role string `json:"role"`
	}
	if err := handler.DecodeJSON(r, &input); err != nil {
		handler.RespondBadBody(w)
		return
	}

	view, err := h.accounts.ChangeRole(r.Context(), auth.AccountFromContext(r.Context()), chi.URLParam(r, "id"), input.Role)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, map[string]any{"ok": true, "user": view})
}

// ResetPassword handles POST /admin/reset-password/{id}.
func (h *AccountHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var input struct {
		NewPassword string `json:"new_password"`
		Password    string `json:"password"`
	}
	if err := handler.DecodeJSON(r, &input); err != nil {
		handler.RespondBadBody(w)
		return
	}
	pw := input.NewPassword
	if pw == "" {
		pw = input.Password
	}

	err := h.accounts.ResetPassword(r.Context(), auth.AccountFromContext(r.Context()), chi.URLParam(r, "id"), pw)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ListUsers handles GET /admin/list-users.
func (h *AccountHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.accounts.List(r.Context(), auth.AccountFromContext(r.Context()))
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, map[string]any{"users": users})
}

// Stats handles GET /admin/stats.
func (h *AccountHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.accounts.Stats(r.Context(), auth.AccountFromContext(r.Context()))
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, st)
}
