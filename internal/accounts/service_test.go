package accounts

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kenvote/registry/internal/auth"
	"github.com/kenvote/registry/internal/domain"
	"github.com/kenvote/registry/internal/guard"
	"github.com/kenvote/registry/internal/metrics"
	"github.com/kenvote/registry/internal/store"
)

type fixture struct {
	svc     *Service
	store   *store.MemoryStore
	gate    *auth.Gate
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, limiter guard.Limiter) *fixture {
	t.Helper()
	s := store.NewMemoryStore()
	tokens := auth.NewTokenManager("test-secret")
	m := metrics.New(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		svc:     NewService(s, tokens, limiter, nil, m, logger, bcrypt.MinCost),
		store:   s,
		gate:    auth.NewGate(s, tokens),
		metrics: m,
	}
}

// seed stores an account whose password equals its username.
func (f *fixture) seed(t *testing.T, username string, role domain.Role) *domain.StaffAccount {
	t.Helper()
	hash, err := auth.HashPassword(username, bcrypt.MinCost)
	require.NoError(t, err)
	a := domain.StaffAccount{ID: "id-" + username, Username: username, PasswordHash: hash, Role: role}
	require.NoError(t, f.store.Update(context.Background(), func(doc *store.Document) error {
		doc.Accounts = append(doc.Accounts, a)
		return nil
	}))
	return &a
}

func (f *fixture) account(t *testing.T, id string) *domain.StaffAccount {
	t.Helper()
	var out *domain.StaffAccount
	require.NoError(t, f.store.View(context.Background(), func(doc *store.Document) error {
		a, _ := doc.FindAccount(id)
		out = a
		return nil
	}))
	return out
}

func TestLogin(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	alice := f.seed(t, "alice", domain.RoleAdmin)

	_, err := f.svc.Login(ctx, "alice", "wrong", "10.0.0.1")
	assert.True(t, domain.IsCode(err, domain.CodeUnauthorized))
	_, err = f.svc.Login(ctx, "nobody", "nobody", "10.0.0.1")
	assert.True(t, domain.IsCode(err, domain.CodeUnauthorized))

	res, err := f.svc.Login(ctx, "alice", "alice", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, res.Role)
	assert.NotEmpty(t, res.Token)

	got, err := f.gate.Authenticate(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	// a second login replaces the first session
	res2, err := f.svc.Login(ctx, "alice", "alice", "10.0.0.1")
	require.NoError(t, err)
	_, err = f.gate.Authenticate(ctx, res.Token)
	assert.True(t, domain.IsCode(err, domain.CodeUnauthorized))

	require.NoError(t, f.svc.Logout(ctx, got))
	_, err = f.gate.Authenticate(ctx, res2.Token)
	assert.True(t, domain.IsCode(err, domain.CodeUnauthorized))

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Logins.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Logins.WithLabelValues("invalid")))
}

func TestLogin_RateLimited(t *testing.T) {
	f := newFixture(t, guard.NewRateLimiter(2, time.Minute))
	ctx := context.Background()
	f.seed(t, "alice", domain.RoleUser)

	_, _ = f.svc.Login(ctx, "alice", "x", "10.0.0.1")
	_, _ = f.svc.Login(ctx, "alice", "y", "10.0.0.1")
	_, err := f.svc.Login(ctx, "alice", "alice", "10.0.0.1")
	assert.True(t, domain.IsCode(err, domain.CodeRateLimited))

	_, err = f.svc.Login(ctx, "alice", "alice", "10.0.0.2")
	assert.NoError(t, err, "limit is per username and address")
}

func TestCreate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	root := f.seed(t, "root", domain.RoleSuperadmin)
	admin := f.seed(t, "adm", domain.RoleAdmin)
	su := f.seed(t, "su", domain.RoleSuperuser)

	view, err := f.svc.Create(ctx, root, CreateInput{Username: "clerk", Password: "pw", Role: "user", County: "Kisumu"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, view.Role)
	assert.Equal(t, "Kisumu", view.County)

	stored := f.account(t, view.ID)
	require.NotNil(t, stored)
	assert.NotEqual(t, "pw", stored.PasswordHash)
	assert.True(t, auth.CheckPassword(stored.PasswordHash, "pw"))

	tests := []struct {
		name  string
		actor *domain.StaffAccount
		in    CreateInput
		code  string
	}{
		{"duplicate username", root, CreateInput{Username: "clerk", Password: "pw", Role: "user"}, domain.CodeConflict},
		{"unknown role", root, CreateInput{Username: "x", Password: "pw", Role: "clerk"}, domain.CodeValidation},
		{"missing password", root, CreateInput{Username: "x", Role: "user"}, domain.CodeValidation},
		{"blank username", root, CreateInput{Username: "  ", Password: "pw", Role: "user"}, domain.CodeValidation},
		{"admin cannot create superuser", admin, CreateInput{Username: "x", Password: "pw", Role: "superuser"}, domain.CodeForbidden},
		{"admin cannot create admin", admin, CreateInput{Username: "x", Password: "pw", Role: "admin"}, domain.CodeForbidden},
		{"superuser is below the gate", su, CreateInput{Username: "x", Password: "pw", Role: "user"}, domain.CodeForbidden},
		{"superadmin cannot mint superadmin", root, CreateInput{Username: "x", Password: "pw", Role: "superadmin"}, domain.CodeForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.actor, tt.in)
			assert.True(t, domain.IsCode(err, tt.code), "got %v", err)
		})
	}

	_, err = f.svc.Create(ctx, admin, CreateInput{Username: "clerk2", Password: "pw", Role: "user"})
	assert.NoError(t, err)
}

func TestDelete_RankMatrix(t *testing.T) {
	roles := domain.AllRoles()
	for _, actorRole := range roles {
		for _, targetRole := range roles {
			t.Run(string(actorRole)+"->"+string(targetRole), func(t *testing.T) {
				f := newFixture(t, nil)
				actor := f.seed(t, "actor", actorRole)
				target := f.seed(t, "target", targetRole)

				err := f.svc.Delete(context.Background(), actor, target.ID)
				switch {
				case !actorRole.AtLeast(domain.RoleAdmin):
					assert.True(t, domain.IsCode(err, domain.CodeForbidden))
					assert.NotNil(t, f.account(t, target.ID))
				case actorRole.Outranks(targetRole):
					assert.NoError(t, err)
					assert.Nil(t, f.account(t, target.ID))
				default:
					assert.True(t, domain.IsCode(err, domain.CodeForbidden))
					assert.NotNil(t, f.account(t, target.ID))
				}
			})
		}
	}
}

func TestDelete_NotFound(t *testing.T) {
	f := newFixture(t, nil)
	root := f.seed(t, "root", domain.RoleSuperadmin)
	err := f.svc.Delete(context.Background(), root, "missing")
	assert.True(t, domain.IsCode(err, domain.CodeNotFound))
}

func TestResetPassword_ClearsSession(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	admin := f.seed(t, "adm", domain.RoleAdmin)
	peer := f.seed(t, "peer", domain.RoleAdmin)
	clerk := f.seed(t, "clerk", domain.RoleUser)

	login, err := f.svc.Login(ctx, "clerk", "clerk", "1.1.1.1")
	require.NoError(t, err)

	err = f.svc.ResetPassword(ctx, admin, peer.ID, "newpw")
	assert.True(t, domain.IsCode(err, domain.CodeForbidden), "equal rank is out of reach")

	err = f.svc.ResetPassword(ctx, admin, clerk.ID, "")
	assert.True(t, domain.IsCode(err, domain.CodeValidation))

	require.NoError(t, f.svc.ResetPassword(ctx, admin, clerk.ID, "newpw"))

	_, err = f.gate.Authenticate(ctx, login.Token)
	assert.True(t, domain.IsCode(err, domain.CodeUnauthorized), "reset forces logout")

	_, err = f.svc.Login(ctx, "clerk", "clerk", "1.1.1.1")
	assert.True(t, domain.IsCode(err, domain.CodeUnauthorized))
	_, err = f.svc.Login(ctx, "clerk", "newpw", "1.1.1.1")
	assert.NoError(t, err)
}

func TestChangeRole(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	root := f.seed(t, "root", domain.RoleSuperadmin)
	root2 := f.seed(t, "root2", domain.RoleSuperadmin)
	admin := f.seed(t, "adm", domain.RoleAdmin)
	clerk := f.seed(t, "clerk", domain.RoleUser)

	view, err := f.svc.ChangeRole(ctx, root, clerk.ID, "superuser")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSuperuser, view.Role)

	_, err = f.svc.ChangeRole(ctx, admin, clerk.ID, "user")
	assert.True(t, domain.IsCode(err, domain.CodeForbidden))

	_, err = f.svc.ChangeRole(ctx, root, root2.ID, "user")
	assert.True(t, domain.IsCode(err, domain.CodeForbidden))

	_, err = f.svc.ChangeRole(ctx, root, clerk.ID, "clerk")
	assert.True(t, domain.IsCode(err, domain.CodeValidation))

	_, err = f.svc.ChangeRole(ctx, root, "missing", "user")
	assert.True(t, domain.IsCode(err, domain.CodeNotFound))
}

func TestList_Visibility(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	root := f.seed(t, "root", domain.RoleSuperadmin)
	admin := f.seed(t, "adm", domain.RoleAdmin)
	f.seed(t, "adm2", domain.RoleAdmin)
	su := f.seed(t, "su", domain.RoleSuperuser)
	f.seed(t, "clerk", domain.RoleUser)

	names := func(views []domain.AccountView) []string {
		out := make([]string, len(views))
		for i, v := range views {
			out[i] = v.Username
		}
		return out
	}

	all, err := f.svc.List(ctx, root)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"adm", "adm2", "su", "clerk"}, names(all))

	views, err := f.svc.List(ctx, admin)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"su", "clerk"}, names(views))

	_, err = f.svc.List(ctx, su)
	assert.True(t, domain.IsCode(err, domain.CodeForbidden))
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	clerk := f.seed(t, "clerk", domain.RoleUser)
	f.seed(t, "taken", domain.RoleUser)

	_, err := f.svc.UpdateProfile(ctx, clerk, ProfileInput{Username: "taken"})
	assert.True(t, domain.IsCode(err, domain.CodeConflict))

	view, err := f.svc.UpdateProfile(ctx, clerk, ProfileInput{Username: "clerk-renamed", Password: "fresh", ProfilePicture: "data:image/png;base64,AA=="})
	require.NoError(t, err)
	assert.Equal(t, "clerk-renamed", view.Username)
	assert.Equal(t, "data:image/png;base64,AA==", view.ProfilePicture)

	_, err = f.svc.Login(ctx, "clerk-renamed", "fresh", "1.1.1.1")
	assert.NoError(t, err)

	profile, err := f.svc.Profile(ctx, clerk)
	require.NoError(t, err)
	assert.Equal(t, "clerk-renamed", profile.Username)
	assert.True(t, profile.Online)
}

func TestStats(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	root := f.seed(t, "root", domain.RoleSuperadmin)
	f.seed(t, "adm", domain.RoleAdmin)
	f.seed(t, "clerk", domain.RoleUser)
	f.seed(t, "clerk2", domain.RoleUser)
	require.NoError(t, f.store.Update(ctx, func(doc *store.Document) error {
		doc.Voters = append(doc.Voters, domain.VoterRecord{Confirmed: true}, domain.VoterRecord{})
		return nil
	}))
	_, err := f.svc.Login(ctx, "clerk", "clerk", "1.1.1.1")
	require.NoError(t, err)

	st, err := f.svc.Stats(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountStats{
		Voters: 2, Confirmed: 1, Online: 1,
		Superadmin: 1, Admin: 1, Superuser: 0, User: 2,
	}, *st)

	_, err = f.svc.Stats(ctx, &domain.StaffAccount{Role: domain.RoleSuperuser})
	assert.True(t, domain.IsCode(err, domain.CodeForbidden))
}

func TestBootstrap(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	created, err := f.svc.Bootstrap(ctx, "root", "changeme")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.svc.Bootstrap(ctx, "root2", "changeme")
	require.NoError(t, err)
	assert.False(t, created, "only runs while no superadmin exists")

	res, err := f.svc.Login(ctx, "root", "changeme", "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSuperadmin, res.Role)
}

// interleavedStore runs beforeUpdate once, ahead of the next Update.
type interleavedStore struct {
	store.Store
	beforeUpdate func()
}

func (s *interleavedStore) Update(ctx context.Context, fn func(doc *store.Document) error) error {
	if hook := s.beforeUpdate; hook != nil {
		s.beforeUpdate = nil
		hook()
	}
	return s.Store.Update(ctx, fn)
}

func TestLogin_PasswordResetDuringLogin(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	admin := f.seed(t, "adm", domain.RoleAdmin)
	f.seed(t, "clerk", domain.RoleUser)

	s := &interleavedStore{Store: f.store}
	tokens := auth.NewTokenManager("test-secret")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(s, tokens, nil, nil, f.metrics, logger, bcrypt.MinCost)

	// the reset lands after the old password was verified
	s.beforeUpdate = func() {
		require.NoError(t, f.svc.ResetPassword(ctx, admin, "id-clerk", "fresh"))
	}

	_, err := svc.Login(ctx, "clerk", "clerk", "10.0.0.1")
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeUnauthorized))
	assert.False(t, f.account(t, "id-clerk").LoggedIn())

	res, err := svc.Login(ctx, "clerk", "fresh", "10.0.0.1")
	require.NoError(t, err)
	_, err = auth.NewGate(f.store, tokens).Authenticate(ctx, res.Token)
	assert.NoError(t, err)
}
