package auth

import (
	"context"
	"crypto/subtle"

	"github.com/kenvote/registry/internal/domain"
	"github.com/kenvote/registry/internal/store"
)

// Gate resolves session tokens to staff accounts.
type Gate struct {
	store  store.Store
	tokens *TokenManager
}

// NewGate creates a gate backed by the account collection in s.
func NewGate(s store.Store, tokens *TokenManager) *Gate {
	return &Gate{store: s, tokens: tokens}
}

// Tokens returns the manager used to issue session tokens.
func (g *Gate) Tokens() *TokenManager { return g.tokens }

// Authenticate returns the account holding token. The token must carry a
// valid signature and be the one currently stored on the account, so logout
// and password reset revoke it immediately.
func (g *Gate) Authenticate(ctx context.Context, token string) (*domain.StaffAccount, error) {
	if token == "" {
		return nil, domain.ErrUnauthorized("missing session token")
	}
	claims, err := g.tokens.ValidateToken(token)
	if err != nil {
		return nil, domain.ErrUnauthorized("invalid session token")
	}

	var account *domain.StaffAccount
	err = g.store.View(ctx, func(doc *store.Document) error {
		a, _ := doc.FindAccount(claims.Subject)
		if a == nil || subtle.ConstantTimeCompare([]byte(a.SessionToken), []byte(token)) != 1 {
			return domain.ErrUnauthorized("session is no longer valid")
		}
		found := *a
		account = &found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}
