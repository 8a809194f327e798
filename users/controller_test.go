package users_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/goliatone/go-scoped-auth"
	"github.com/goliatone/go-scoped-auth/middleware/guard"
	"github.com/goliatone/go-scoped-auth/repository"
	"github.com/goliatone/go-scoped-auth/users"
)

const (
	aliceID = "0b6f1f5e-2f0e-4f63-9d7e-8d8c1a3f2b10"
	bobID   = "7c1d2e3f-4a5b-4c6d-8e9f-0a1b2c3d4e5f"
	rootID  = "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c6d"
)

type memoryStore struct {
	mu    sync.Mutex
	users map[string]*auth.User
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: map[string]*auth.User{
		aliceID: {ID: aliceID, Name: "Alice", Email: "alice@example.com", Role: auth.RoleUser},
		bobID:   {ID: bobID, Name: "Bob", Email: "bob@example.com", Role: auth.RoleUser},
		rootID:  {ID: rootID, Name: "Root", Email: "root@example.com", Role: auth.RoleAdmin, EmailVerified: true},
	}}
}

func (s *memoryStore) Create(_ context.Context, user *auth.User) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(strings.TrimSpace(user.Email))
	for _, u := range s.users {
		if u.Email == email {
			return nil, auth.ErrUserExists
		}
	}
	created := *user
	created.ID = uuid.NewString()
	created.Email = email
	if created.Role == "" {
		created.Role = auth.RoleUser
	}
	s.users[created.ID] = &created
	return &created, nil
}

func (s *memoryStore) Exists(_ context.Context, emailOrID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[emailOrID]; ok {
		return true, nil
	}
	for _, u := range s.users {
		if u.Email == strings.ToLower(emailOrID) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryStore) List(context.Context) ([]*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*auth.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *memoryStore) FindByID(_ context.Context, id string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return u, nil
}

func (s *memoryStore) Update(_ context.Context, id string, update repository.UserUpdate) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.Picture != nil {
		u.Picture = *update.Picture
	}
	if update.PasswordHash != nil {
		u.PasswordHash = *update.PasswordHash
	}
	if update.Role != nil {
		u.Role = *update.Role
	}
	return u, nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return auth.ErrUserNotFound
	}
	delete(s.users, id)
	return nil
}

type storeResolver struct {
	codec *auth.TokenCodec
	store *memoryStore
}

func (r storeResolver) CurrentIdentity(ctx context.Context, token string) (auth.Identity, error) {
	claims, err := r.codec.Verify(token, auth.ScopeLogin)
	if err != nil {
		return auth.Identity{}, err
	}
	all, _ := r.store.List(ctx)
	for _, u := range all {
		if u.Email == claims.Subject() {
			return auth.IdentityFromUser(u), nil
		}
	}
	return auth.Identity{}, auth.ErrInvalidToken
}

type quietLogger struct{}

func (quietLogger) Debug(string, ...any) {}
func (quietLogger) Info(string, ...any)  {}
func (quietLogger) Warn(string, ...any)  {}
func (quietLogger) Error(string, ...any) {}

type fixture struct {
	store *memoryStore
	codec *auth.TokenCodec
	app   *fiber.App
}

func newFixture() *fixture {
	store := newMemoryStore()
	codec := auth.NewTokenCodec([]byte("users-test-signing-key-0123456789"))
	gate := guard.New(guard.Config{Resolver: storeResolver{codec: codec, store: store}})

	server := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		return fiber.New(fiber.Config{
			ErrorHandler:          auth.NewHTTPErrorHandler(quietLogger{}),
			DisableStartupMessage: true,
		})
	})
	controller := users.NewController(store, auth.NewBcryptVerifier(bcrypt.MinCost)).
		WithLogger(quietLogger{})
	users.RegisterRoutes(server.Router().Group("/users"), controller, gate)

	return &fixture{store: store, codec: codec, app: server.WrappedRouter()}
}

func (f *fixture) do(t *testing.T, method, path, as string, payload any) (int, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if as != "" {
		tok, err := f.codec.Issue(as, auth.ScopeLogin, auth.DefaultLoginTTL)
		require.NoError(t, err)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+tok.Token)
	}

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func TestListRequiresAdmin(t *testing.T) {
	f := newFixture()

	status, _ := f.do(t, http.MethodGet, "/users", "alice@example.com", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = f.do(t, http.MethodGet, "/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, raw := f.do(t, http.MethodGet, "/users", "root@example.com", nil)
	require.Equal(t, http.StatusOK, status)

	var views []users.View
	require.NoError(t, json.Unmarshal(raw, &views))
	require.Len(t, views, 3)
	assert.Equal(t, "alice@example.com", views[0].Email)
	assert.NotContains(t, string(raw), "PasswordHash")
}

func TestGetUser(t *testing.T) {
	f := newFixture()

	tests := []struct {
		name   string
		as     string
		path   string
		status int
	}{
		{name: "own record", as: "alice@example.com", path: "/users/" + aliceID, status: http.StatusOK},
		{name: "someone else", as: "alice@example.com", path: "/users/" + bobID, status: http.StatusForbidden},
		{name: "admin reads anyone", as: "root@example.com", path: "/users/" + bobID, status: http.StatusOK},
		{name: "malformed id", as: "alice@example.com", path: "/users/alice", status: http.StatusBadRequest},
		{name: "admin unknown id", as: "root@example.com", path: "/users/00000000-0000-4000-8000-000000000000", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := f.do(t, http.MethodGet, tt.path, tt.as, nil)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestPatchUser(t *testing.T) {
	t.Run("owner renames and changes password", func(t *testing.T) {
		f := newFixture()
		status, raw := f.do(t, http.MethodPatch, "/users/"+aliceID, "alice@example.com", map[string]any{
			"name":     "Alice L.",
			"password": "N3w$ecretPass",
		})
		require.Equal(t, http.StatusOK, status, string(raw))

		var view users.View
		require.NoError(t, json.Unmarshal(raw, &view))
		assert.Equal(t, "Alice L.", view.Name)

		stored, _ := f.store.FindByID(context.Background(), aliceID)
		assert.True(t, auth.NewBcryptVerifier(bcrypt.MinCost).Compare("N3w$ecretPass", stored.PasswordHash))
	})

	t.Run("owner cannot promote itself", func(t *testing.T) {
		f := newFixture()
		status, _ := f.do(t, http.MethodPatch, "/users/"+aliceID, "alice@example.com", map[string]any{"role": "admin"})
		assert.Equal(t, http.StatusForbidden, status)

		stored, _ := f.store.FindByID(context.Background(), aliceID)
		assert.Equal(t, auth.RoleUser, stored.Role)
	})

	t.Run("admin promotes", func(t *testing.T) {
		f := newFixture()
		status, _ := f.do(t, http.MethodPatch, "/users/"+bobID, "root@example.com", map[string]any{"role": "admin"})
		assert.Equal(t, http.StatusOK, status)

		stored, _ := f.store.FindByID(context.Background(), bobID)
		assert.Equal(t, auth.RoleAdmin, stored.Role)
	})

	t.Run("invalid payload", func(t *testing.T) {
		f := newFixture()
		status, raw := f.do(t, http.MethodPatch, "/users/"+aliceID, "alice@example.com", map[string]any{
			"password": "weak",
			"role":     "root",
		})
		assert.Equal(t, http.StatusBadRequest, status)

		var body auth.ErrorResponse
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Contains(t, body.Fields, "password")
		assert.Contains(t, body.Fields, "role")
	})
}

func TestDeleteUser(t *testing.T) {
	f := newFixture()

	status, _ := f.do(t, http.MethodDelete, "/users/"+aliceID, "alice@example.com", nil)
	assert.Equal(t, http.StatusForbidden, status, "owners cannot delete accounts")

	status, _ = f.do(t, http.MethodDelete, "/users/"+aliceID, "root@example.com", nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = f.do(t, http.MethodDelete, "/users/"+aliceID, "root@example.com", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUpdateRequestValidate(t *testing.T) {
	empty := ""
	name := "Ada"
	assert.NoError(t, users.UpdateRequest{}.Validate())
	assert.NoError(t, users.UpdateRequest{Name: &name}.Validate())
	assert.Error(t, users.UpdateRequest{Name: &empty}.Validate())
}

func TestCreateUser(t *testing.T) {
	valid := map[string]any{
		"name":     "Carol",
		"email":    "Carol@Example.com",
		"password": "Sup3r$ecret",
	}

	tests := []struct {
		name    string
		as      string
		payload map[string]any
		status  int
	}{
		{name: "admin creates", as: "root@example.com", payload: valid, status: http.StatusCreated},
		{name: "user is forbidden", as: "alice@example.com", payload: valid, status: http.StatusForbidden},
		{name: "anonymous", payload: valid, status: http.StatusUnauthorized},
		{
			name:    "taken email",
			as:      "root@example.com",
			payload: map[string]any{"name": "Alice", "email": "alice@example.com", "password": "Sup3r$ecret"},
			status:  http.StatusBadRequest,
		},
		{
			name:    "weak password",
			as:      "root@example.com",
			payload: map[string]any{"name": "Carol", "email": "carol@example.com", "password": "weak"},
			status:  http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			status, raw := f.do(t, http.MethodPost, "/users", tt.as, tt.payload)
			require.Equal(t, tt.status, status, string(raw))
			if status != http.StatusCreated {
				return
			}

			var view users.View
			require.NoError(t, json.Unmarshal(raw, &view))
			assert.Equal(t, "carol@example.com", view.Email)
			assert.Equal(t, auth.RoleUser, view.Role)
			assert.False(t, view.EmailVerified)
			assert.NotContains(t, string(raw), "Sup3r$ecret")

			stored, err := f.store.FindByID(context.Background(), view.ID)
			require.NoError(t, err)
			assert.True(t, auth.NewBcryptVerifier(bcrypt.MinCost).Compare("Sup3r$ecret", stored.PasswordHash))
		})
	}
}

func TestReplaceUser(t *testing.T) {
	full := map[string]any{
		"name":     "Alice Liddell",
		"password": "N3w$ecretPass",
		"picture":  "",
	}

	tests := []struct {
		name    string
		as      string
		path    string
		payload map[string]any
		status  int
	}{
		{name: "owner replaces", as: "alice@example.com", path: "/users/" + aliceID, payload: full, status: http.StatusOK},
		{name: "admin replaces anyone", as: "root@example.com", path: "/users/" + aliceID, payload: full, status: http.StatusOK},
		{name: "someone else", as: "bob@example.com", path: "/users/" + aliceID, payload: full, status: http.StatusForbidden},
		{
			name:    "missing password",
			as:      "alice@example.com",
			path:    "/users/" + aliceID,
			payload: map[string]any{"name": "Alice"},
			status:  http.StatusBadRequest,
		},
		{
			name:    "owner cannot set role",
			as:      "alice@example.com",
			path:    "/users/" + aliceID,
			payload: map[string]any{"name": "Alice", "password": "N3w$ecretPass", "role": "admin"},
			status:  http.StatusForbidden,
		},
		{
			name:    "admin unknown id",
			as:      "root@example.com",
			path:    "/users/00000000-0000-4000-8000-000000000000",
			payload: full,
			status:  http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.store.users[aliceID].Picture = "https://cdn.example.com/alice.png"

			status, raw := f.do(t, http.MethodPut, tt.path, tt.as, tt.payload)
			require.Equal(t, tt.status, status, string(raw))

			stored, _ := f.store.FindByID(context.Background(), aliceID)
			if status != http.StatusOK {
				assert.Equal(t, "Alice", stored.Name)
				assert.Equal(t, auth.RoleUser, stored.Role)
				return
			}

			assert.Equal(t, "Alice Liddell", stored.Name)
			assert.Empty(t, stored.Picture, "an empty picture clears it")
			assert.Equal(t, "alice@example.com", stored.Email)
			assert.True(t, auth.NewBcryptVerifier(bcrypt.MinCost).Compare("N3w$ecretPass", stored.PasswordHash))
		})
	}
}

func TestReplaceRequestValidate(t *testing.T) {
	role := "root"
	tests := []struct {
		name   string
		req    users.ReplaceRequest
		fields []string
	}{
		{name: "ok", req: users.ReplaceRequest{Name: "Ada", Password: "Sup3r$ecret"}},
		{name: "missing", req: users.ReplaceRequest{}, fields: []string{"name", "password"}},
		{name: "bad picture and role", req: users.ReplaceRequest{Name: "Ada", Password: "Sup3r$ecret", Picture: "nope", Role: &role}, fields: []string{"picture", "role"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if len(tt.fields) == 0 {
				assert.NoError(t, err)
				return
			}
			fields := auth.ValidationErrorsToMap(err)
			assert.Len(t, fields, len(tt.fields))
			for _, f := range tt.fields {
				assert.Contains(t, fields, f)
			}
		})
	}
}
