package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/reqflow/internal/requisition"
	"github.com/odyssey-erp/reqflow/internal/requisition/sqlitestore"
)

type memoryRepo struct {
	users map[string]User
}

func newMemoryRepo() *memoryRepo { return &memoryRepo{users: map[string]User{}} }

func (m *memoryRepo) FindByID(_ context.Context, id string) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *memoryRepo) FindByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memoryRepo) ListByRole(ctx context.Context, role requisition.Role) ([]User, error) {
	all, _ := m.List(ctx)
	var out []User
	for _, u := range all {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memoryRepo) List(context.Context) ([]User, error) {
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryRepo) Create(_ context.Context, user User) error {
	if _, ok := m.users[user.ID]; ok {
		return ErrDuplicate
	}
	m.users[user.ID] = user
	return nil
}

func newTestService(t *testing.T, repo Repository) *Service {
	t.Helper()
	svc := NewService(repo).WithHashCost(bcrypt.MinCost)
	ctx := context.Background()
	for _, in := range []NewUserInput{
		{ID: "aud-1", Email: "Audit.One@clinic.test", Name: "Ayo Auditor", Role: "auditor", Password: "s3cret-pass"},
		{ID: "aud-2", Email: "audit.two@clinic.test", Name: "Bisi Auditor", Role: requisition.RoleAuditor, Password: "s3cret-pass"},
		{ID: "fin-1", Email: "finance@clinic.test", Name: "Femi Finance", Role: requisition.RoleFinance, Password: "s3cret-pass"},
	} {
		_, err := svc.Register(ctx, in)
		require.NoError(t, err)
	}
	return svc
}

func TestRegisterValidatesAndNormalises(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()

	stored := repo.users["aud-1"]
	require.Equal(t, "audit.one@clinic.test", stored.Email)
	require.Equal(t, requisition.RoleAuditor, stored.Role)
	require.NotEqual(t, "s3cret-pass", stored.PasswordHash)

	_, err := svc.Register(ctx, NewUserInput{ID: "x", Email: "x@clinic.test", Name: "X", Role: "JANITOR", Password: "long-enough"})
	require.ErrorContains(t, err, "unknown role")
	_, err = svc.Register(ctx, NewUserInput{ID: "x", Email: "not-an-email", Name: "X", Role: requisition.RoleStore, Password: "long-enough"})
	require.Error(t, err)
	_, err = svc.Register(ctx, NewUserInput{ID: "aud-1", Email: "dup@clinic.test", Name: "Dup", Role: requisition.RoleStore, Password: "long-enough"})
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestReverify(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()

	user, err := svc.Reverify(ctx, "aud-1", "s3cret-pass")
	require.NoError(t, err)
	require.Equal(t, requisition.User{ID: "aud-1", Name: "Ayo Auditor", Email: "audit.one@clinic.test", Role: requisition.RoleAuditor}, user)

	_, err = svc.Reverify(ctx, "aud-1", "wrong")
	require.ErrorIs(t, err, requisition.ErrForbidden)
	_, err = svc.Reverify(ctx, "ghost", "s3cret-pass")
	require.ErrorIs(t, err, requisition.ErrNotFound)

	inactive := repo.users["fin-1"]
	inactive.IsActive = false
	repo.users["fin-1"] = inactive
	_, err = svc.Reverify(ctx, "fin-1", "s3cret-pass")
	require.ErrorIs(t, err, requisition.ErrForbidden)
}

func TestUsersByRoleSkipsInactive(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()

	auditors, err := svc.UsersByRole(ctx, requisition.RoleAuditor)
	require.NoError(t, err)
	require.Len(t, auditors, 2)

	off := repo.users["aud-2"]
	off.IsActive = false
	repo.users["aud-2"] = off
	auditors, err = svc.UsersByRole(ctx, requisition.RoleAuditor)
	require.NoError(t, err)
	require.Len(t, auditors, 1)
	require.Equal(t, "aud-1", auditors[0].ID)
}

func TestAuthenticate(t *testing.T) {
	svc := newTestService(t, newMemoryRepo())
	ctx := context.Background()

	user, err := svc.Authenticate(ctx, " FINANCE@clinic.test ", "s3cret-pass")
	require.NoError(t, err)
	require.Equal(t, "fin-1", user.ID)

	_, err = svc.Authenticate(ctx, "finance@clinic.test", "nope")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "nobody@clinic.test", "s3cret-pass")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestMiddlewareResolvesActor(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(t, repo)
	r := chi.NewRouter()
	r.Use(Middleware(svc, nil))
	NewHandler().MountRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderUserID, "aud-2")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var got requisition.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "Bisi Auditor", got.Name)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderUserID, "ghost")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSQLiteRepository(t *testing.T) {
	ctx := context.Background()
	store, err := sqlitestore.Open(ctx, filepath.Join(t.TempDir(), "auth.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	repo := NewSQLiteRepository(store.DB())
	svc := newTestService(t, repo)

	user, err := repo.FindByEmail(ctx, "audit.two@clinic.test")
	require.NoError(t, err)
	require.Equal(t, "aud-2", user.ID)
	require.True(t, user.IsActive)
	require.False(t, user.CreatedAt.IsZero())

	_, err = repo.FindByID(ctx, "ghost")
	require.ErrorIs(t, err, ErrNotFound)

	finance, err := svc.UsersByRole(ctx, requisition.RoleFinance)
	require.NoError(t, err)
	require.Len(t, finance, 1)

	_, err = svc.Register(ctx, NewUserInput{ID: "other", Email: "finance@clinic.test", Name: "Dup", Role: requisition.RoleFinance, Password: "long-enough"})
	require.ErrorIs(t, err, ErrDuplicate)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
}
