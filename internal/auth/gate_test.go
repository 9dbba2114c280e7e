package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenvote/registry/internal/domain"
	"github.com/kenvote/registry/internal/store"
)

// seedSession stores an account holding a freshly issued token.
func seedSession(t *testing.T, s store.Store, mgr *TokenManager, id string, role domain.Role) string {
	t.Helper()
	token, err := mgr.GenerateToken(id, id)
	require.NoError(t, err)
	require.NoError(t, s.Update(context.Background(), func(doc *store.Document) error {
		doc.Accounts = append(doc.Accounts, domain.StaffAccount{ID: id, Username: id, Role: role, SessionToken: token})
		return nil
	}))
	return token
}

func TestGate_Authenticate(t *testing.T) {
	s := store.NewMemoryStore()
	mgr := NewTokenManager("secret")
	gate := NewGate(s, mgr)
	ctx := context.Background()

	token := seedSession(t, s, mgr, "acc-1", domain.RoleAdmin)

	account, err := gate.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", account.ID)
	assert.Equal(t, domain.RoleAdmin, account.Role)

	t.Run("missing token", func(t *testing.T) {
		_, err := gate.Authenticate(ctx, "")
		assert.True(t, domain.IsCode(err, domain.CodeUnauthorized))
	})

	t.Run("forged token", func(t *testing.T) {
		forged, err := NewTokenManager("other").GenerateToken("acc-1", "acc-1")
		require.NoError(t, err)
		_, err = gate.Authenticate(ctx, forged)
		assert.True(t, domain.IsCode(err, domain.CodeUnauthorized))
	})

	t.Run("validly signed but not the stored token", func(t *testing.T) {
		stale, err := mgr.GenerateToken("acc-1", "acc-1")
		require.NoError(t, err)
		_, err = gate.Authenticate(ctx, stale)
		assert.True(t, domain.IsCode(err, domain.CodeUnauthorized))
	})

	t.Run("revoked by clearing the stored token", func(t *testing.T) {
		require.NoError(t, s.Update(ctx, func(doc *store.Document) error {
			a, _ := doc.FindAccount("acc-1")
			a.SessionToken = ""
			return nil
		}))
		_, err := gate.Authenticate(ctx, token)
		assert.True(t, domain.IsCode(err, domain.CodeUnauthorized))
	})
}

func TestMiddleware_RequireRank(t *testing.T) {
	s := store.NewMemoryStore()
	mgr := NewTokenManager("secret")
	gate := NewGate(s, mgr)

	userTok := seedSession(t, s, mgr, "u", domain.RoleUser)
	adminTok := seedSession(t, s, mgr, "a", domain.RoleAdmin)

	var seen *domain.StaffAccount
	protected := Authenticate(gate)(RequireRank(domain.RoleSuperuser)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = AccountFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	tests := []struct {
		name   string
		header string
		value  string
		status int
	}{
		{"no token", "", "", http.StatusUnauthorized},
		{"garbage token", HeaderAdminToken, "garbage", http.StatusUnauthorized},
		{"rank too low", HeaderUserToken, userTok, http.StatusForbidden},
		{"admin header", HeaderAdminToken, adminTok, http.StatusNoContent},
		{"bearer header", "Authorization", "Bearer " + adminTok, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rr := httptest.NewRecorder()
			protected.ServeHTTP(rr, req)

			assert.Equal(t, tt.status, rr.Code)
			if tt.status == http.StatusNoContent {
				require.NotNil(t, seen)
				assert.Equal(t, "a", seen.ID)
			} else {
				assert.Nil(t, seen)
				assert.Contains(t, rr.Body.String(), `"code"`)
			}
		})
	}
}

func TestExtractToken_Priority(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer c")
	req.Header.Set(HeaderUserToken, "b")
	req.Header.Set(HeaderAdminToken, "a")
	assert.Equal(t, "a", ExtractToken(req))

	req.Header.Del(HeaderAdminToken)
	assert.Equal(t, "b", ExtractToken(req))

	req.Header.Del(HeaderUserToken)
	assert.Equal(t, "c", ExtractToken(req))
}
