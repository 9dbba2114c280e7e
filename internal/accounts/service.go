// Package accounts administers staff accounts and their sessions.
package accounts

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kenvote/registry/internal/auth"
	"github.com/kenvote/registry/internal/domain"
	"github.com/kenvote/registry/internal/guard"
	"github.com/kenvote/registry/internal/metrics"
	"github.com/kenvote/registry/internal/store"
)

// Service manages staff accounts. Every operation on another account is
// gated by rank through the auth package.
type Service struct {
	store      store.Store
	tokens     *auth.TokenManager
	limiter    guard.Limiter
	events     domain.EventPublisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	bcryptCost int
	now        func() time.Time
}

// NewService creates an account service. limiter and events may be nil.
func NewService(
	s store.Store,
	tokens *auth.TokenManager,
	limiter guard.Limiter,
	events domain.EventPublisher,
	m *metrics.Metrics,
	logger *slog.Logger,
	bcryptCost int,
) *Service {
	if events == nil {
		events = domain.NopPublisher{}
	}
	return &Service{
		store:      s,
		tokens:     tokens,
		limiter:    limiter,
		events:     events,
		metrics:    m,
		logger:     logger,
		bcryptCost: bcryptCost,
		now:        time.Now,
	}
}

// LoginResult is returned on successful login.
type LoginResult struct {
	Token          string      `json:"token"`
	Username       string      `json:"username"`
	Role           domain.Role `json:"role"`
	ProfilePicture string      `json:"profile_picture"`
}

// Login verifies credentials and issues a new session token, replacing any
// previous session of the account.
func (s *Service) Login(ctx context.Context, username, password, clientIP string) (*LoginResult, error) {
	if s.limiter != nil {
		if res := s.limiter.Check(ctx, username+"|"+clientIP); !res.Allowed {
			s.metrics.Login("limited")
			s.logger.Warn("login rate limited", "username", username, "ip", clientIP)
			return nil, domain.ErrRateLimited("too many login attempts, try again later")
		}
	}

	var account domain.StaffAccount
	err := s.store.View(ctx, func(doc *store.Document) error {
		a := doc.FindAccountByUsername(username)
		if a == nil {
			return domain.ErrUnauthorized("invalid credentials")
		}
		account = *a
		return nil
	})
	if err != nil {
		s.metrics.Login("invalid")
		return nil, err
	}
	if !auth.CheckPassword(account.PasswordHash, password) {
		s.metrics.Login("invalid")
		return nil, domain.ErrUnauthorized("invalid credentials")
	}

	token, err := s.tokens.GenerateToken(account.ID, account.Username)
	if err != nil {
		return nil, domain.ErrInternal("generate token", err)
	}

	err = s.store.Update(ctx, func(doc *store.Document) error {
		a, _ := doc.FindAccount(account.ID)
		// the password may have been reset since it was checked
		if a == nil || a.PasswordHash != account.PasswordHash {
			return domain.ErrUnauthorized("invalid credentials")
		}
		a.SessionToken = token
		return nil
	})
	if err != nil {
		s.metrics.Login("invalid")
		return nil, err
	}

	s.metrics.Login("ok")
	s.logger.Info("staff login", "username", account.Username, "role", account.Role)
	return &LoginResult{
		Token:          token,
		Username:       account.Username,
		Role:           account.Role,
		ProfilePicture: account.ProfilePicture,
	}, nil
}

// Logout clears the actor's session token.
func (s *Service) Logout(ctx context.Context, actor *domain.StaffAccount) error {
	return s.store.Update(ctx, func(doc *store.Document) error {
		if a, _ := doc.FindAccount(actor.ID); a != nil {
			a.SessionToken = ""
		}
		return nil
	})
}

// Profile returns the actor's own account.
func (s *Service) Profile(ctx context.Context, actor *domain.StaffAccount) (*domain.AccountView, error) {
	var view domain.AccountView
	err := s.store.View(ctx, func(doc *store.Document) error {
		a, _ := doc.FindAccount(actor.ID)
		if a == nil {
			return domain.ErrNotFound("account", actor.ID)
		}
		view = a.View()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// ProfileInput holds the self-service profile fields. Blank fields are left
// unchanged.
type ProfileInput struct {
	Username       string `json:"username"`
	Password       string `json:"password"`
	ProfilePicture string `json:"profile_picture"`
}

// UpdateProfile edits the actor's own account. No rank check applies.
func (s *Service) UpdateProfile(ctx context.Context, actor *domain.StaffAccount, in ProfileInput) (*domain.AccountView, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username != "" {
		if err := domain.ValidateUsername(in.Username); err != nil {
			return nil, domain.ErrValidation(err.Error())
		}
	}
	var hash string
	if in.Password != "" {
		if err := domain.ValidatePassword(in.Password); err != nil {
			return nil, domain.ErrValidation(err.Error())
		}
		h, err := auth.HashPassword(in.Password, s.bcryptCost)
		if err != nil {
			return nil, domain.ErrInternal("hash password", err)
		}
		hash = h
	}

	var view domain.AccountView
	err := s.store.Update(ctx, func(doc *store.Document) error {
		a, _ := doc.FindAccount(actor.ID)
		if a == nil {
			return domain.ErrNotFound("account", actor.ID)
		}
		if in.Username != "" && in.Username != a.Username {
			if doc.FindAccountByUsername(in.Username) != nil {
				return domain.ErrConflict("username already exists")
			}
			a.Username = in.Username
		}
		if hash != "" {
			a.PasswordHash = hash
		}
		if in.ProfilePicture != "" {
			a.ProfilePicture = in.ProfilePicture
		}
		view = a.View()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// CreateInput holds the fields for a new staff account.
type CreateInput struct {
	Username       string `json:"username"`
	Password       string `json:"password"`
	Role           string `json:"role"`
	County         string `json:"county"`
	ProfilePicture string `json:"profile_picture"`
}

// Create adds a staff account ranked below the actor.
func (s *Service) Create(ctx context.Context, actor *domain.StaffAccount, in CreateInput) (*domain.AccountView, error) {
	if err := auth.Authorize(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	in.Username = strings.TrimSpace(in.Username)
	if err := domain.ValidateUsername(in.Username); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if err := domain.ValidatePassword(in.Password); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	role, err := domain.ParseRole(in.Role)
	if err != nil {
		return nil, err
	}
	if err := auth.CanCreate(actor, role); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, domain.ErrInternal("hash password", err)
	}

	account := domain.StaffAccount{
		ID:             uuid.NewString(),
		Username:       in.Username,
		PasswordHash:   hash,
		Role:           role,
		County:         strings.TrimSpace(in.County),
		ProfilePicture: in.ProfilePicture,
	}
	err = s.store.Update(ctx, func(doc *store.Document) error {
		if doc.FindAccountByUsername(account.Username) != nil {
			return domain.ErrConflict("username already exists")
		}
		doc.Accounts = append(doc.Accounts, account)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("account created", "username", account.Username, "role", account.Role, "actor", actor.Username)
	s.events.Publish(ctx, domain.NewAccountEvent(domain.EventAccountCreated, &account, actor.Username, s.now().UTC()))
	view := account.View()
	return &view, nil
}

// Delete removes an account ranked strictly below the actor.
func (s *Service) Delete(ctx context.Context, actor *domain.StaffAccount, id string) error {
	if err := auth.Authorize(actor, domain.RoleAdmin); err != nil {
		return err
	}
	var removed domain.StaffAccount
	err := s.store.Update(ctx, func(doc *store.Document) error {
		a, i := doc.FindAccount(id)
		if a == nil {
			return domain.ErrNotFound("account", id)
		}
		if err := auth.CanActOn(actor, a); err != nil {
			return err
		}
		removed = *a
		doc.Accounts = append(doc.Accounts[:i], doc.Accounts[i+1:]...)
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("account deleted", "username", removed.Username, "actor", actor.Username)
	s.events.Publish(ctx, domain.NewAccountEvent(domain.EventAccountDeleted, &removed, actor.Username, s.now().UTC()))
	return nil
}

// ChangeRole promotes or demotes an account. Superadmin only.
func (s *Service) ChangeRole(ctx context.Context, actor *domain.StaffAccount, id, newRole string) (*domain.AccountView, error) {
	if err := auth.Authorize(actor, domain.RoleSuperadmin); err != nil {
		return nil, err
	}
	role, err := domain.ParseRole(newRole)
	if err != nil {
		return nil, err
	}

	var updated domain.StaffAccount
	err = s.store.Update(ctx, func(doc *store.Document) error {
		a, _ := doc.FindAccount(id)
		if a == nil {
			return domain.ErrNotFound("account", id)
		}
		if err := auth.CanAssign(actor, a, role); err != nil {
			return err
		}
		a.Role = role
		updated = *a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("account role changed", "username", updated.Username, "role", role, "actor", actor.Username)
	s.events.Publish(ctx, domain.NewAccountEvent(domain.EventAccountRoleChanged, &updated, actor.Username, s.now().UTC()))
	view := updated.View()
	return &view, nil
}

// ResetPassword sets a new password on a lower-ranked account and ends its
// session.
func (s *Service) ResetPassword(ctx context.Context, actor *domain.StaffAccount, id, newPassword string) error {
	if err := auth.Authorize(actor, domain.RoleAdmin); err != nil {
		return err
	}
	if err := domain.ValidatePassword(newPassword); err != nil {
		return domain.ErrValidation(err.Error())
	}
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return domain.ErrInternal("hash password", err)
	}

	var target domain.StaffAccount
	err = s.store.Update(ctx, func(doc *store.Document) error {
		a, _ := doc.FindAccount(id)
		if a == nil {
			return domain.ErrNotFound("account", id)
		}
		if err := auth.CanActOn(actor, a); err != nil {
			return err
		}
		a.PasswordHash = hash
		a.SessionToken = ""
		target = *a
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("password reset", "username", target.Username, "actor", actor.Username)
	s.events.Publish(ctx, domain.NewAccountEvent(domain.EventAccountPasswordReset, &target, actor.Username, s.now().UTC()))
	return nil
}

// List returns the accounts ranked strictly below the actor.
func (s *Service) List(ctx context.Context, actor *domain.StaffAccount) ([]domain.AccountView, error) {
	if err := auth.Authorize(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	var out []domain.AccountView
	err := s.store.View(ctx, func(doc *store.Document) error {
		visible := auth.Visible(actor, doc.Accounts)
		out = make([]domain.AccountView, 0, len(visible))
		for i := range visible {
			out = append(out, visible[i].View())
		}
		return nil
	})
	return out, err
}

// Stats counts voters, live sessions and accounts per role.
func (s *Service) Stats(ctx context.Context, actor *domain.StaffAccount) (*domain.AccountStats, error) {
	if err := auth.Authorize(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	var st domain.AccountStats
	err := s.store.View(ctx, func(doc *store.Document) error {
		st.Voters = len(doc.Voters)
		for i := range doc.Voters {
			if doc.Voters[i].Confirmed {
				st.Confirmed++
			}
		}
		for i := range doc.Accounts {
			a := &doc.Accounts[i]
			if a.LoggedIn() {
				st.Online++
			}
			switch a.Role {
			case domain.RoleSuperadmin:
				st.Superadmin++
			case domain.RoleAdmin:
				st.Admin++
			case domain.RoleSuperuser:
				st.Superuser++
			case domain.RoleUser:
				st.User++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Bootstrap creates the first superadmin if no superadmin exists yet.
// It reports whether an account was created.
func (s *Service) Bootstrap(ctx context.Context, username, password string) (bool, error) {
	if err := domain.ValidateUsername(username); err != nil {
		return false, domain.ErrValidation(err.Error())
	}
	if err := domain.ValidatePassword(password); err != nil {
		return false, domain.ErrValidation(err.Error())
	}
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return false, domain.ErrInternal("hash password", err)
	}

	created := false
	err = s.store.Update(ctx, func(doc *store.Document) error {
		for i := range doc.Accounts {
			if doc.Accounts[i].Role == domain.RoleSuperadmin {
				return nil
			}
		}
		if doc.FindAccountByUsername(username) != nil {
			return domain.ErrConflict("username already exists")
		}
		doc.Accounts = append(doc.Accounts, domain.StaffAccount{
			ID:           uuid.NewString(),
			Username:     username,
			PasswordHash: hash,
			Role:         domain.RoleSuperadmin,
		})
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if created {
		s.logger.Info("bootstrap superadmin created", "username", username)
	}
	return created, nil
}
