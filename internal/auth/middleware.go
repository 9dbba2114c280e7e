package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kenvote/registry/internal/domain"
)

type contextKey string

const (
	accountKey contextKey = "auth_account"
	tokenKey   contextKey = "auth_token"
)

// Header names accepted for the session token, in priority order.
const (
	HeaderAdminToken = "X-Admin-Token"
	HeaderUserToken  = "X-User-Token"
)

// AccountFromContext returns the authenticated account, or nil.
func AccountFromContext(ctx context.Context) *domain.StaffAccount {
	a, _ := ctx.Value(accountKey).(*domain.StaffAccount)
	return a
}

// TokenFromContext returns the session token the request authenticated with.
func TokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}

// WithAccount stores an authenticated account in ctx.
func WithAccount(ctx context.Context, a *domain.StaffAccount, token string) context.Context {
	ctx = context.WithValue(ctx, accountKey, a)
	return context.WithValue(ctx, tokenKey, token)
}

// Authenticate returns middleware that resolves the session token through gate.
func Authenticate(gate *Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)
			account, err := gate.Authenticate(r.Context(), token)
			if err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), account, token)))
		})
	}
}

// RequireRank returns middleware that rejects accounts ranked below min.
// It must run after Authenticate.
func RequireRank(min domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := Authorize(AccountFromContext(r.Context()), min); err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ExtractToken reads the session token from X-Admin-Token, X-User-Token or a
// Bearer Authorization header.
func ExtractToken(r *http.Request) string {
	if t := strings.TrimSpace(r.Header.Get(HeaderAdminToken)); t != "" {
		return t
	}
	if t := strings.TrimSpace(r.Header.Get(HeaderUserToken)); t != "" {
		return t
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func writeError(w http.ResponseWriter, err error) {
	appErr, ok := domain.AsAppError(err)
	if !ok {
		appErr = domain.ErrInternal("internal server error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Status)
	json.NewEncoder(w).Encode(map[string]string{
		"code":    appErr.Code,
		"message": appErr.Message,
	})
}
