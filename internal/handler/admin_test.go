package handler

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ctf-arena/internal/repository"
)

func TestAdminRoutesRequireAdminAudience(t *testing.T) {
	a := newApp(t)
	user := a.tokenFor(t, a.seedAccount(t, "alice", false, "s3cret-pass"))

	for _, path := range []string{"/api/admin/challenges", "/api/admin/seed-challenges"} {
		assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodPost, path, "", `{}`).Code, path)
		assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, path, user, `{}`).Code, path)
	}
	assert.Empty(t, a.store.challenges)
}

func TestCreateChallenge(t *testing.T) {
	a := newApp(t)
	admin := a.seedAccount(t, "root", true, "r00t-pass")
	tok := a.tokenFor(t, admin)
	body := `{"title":"Heap","category":"Pwn","description":"overflow it","points":400,"flag":"h34p"}`

	rec := a.do(http.MethodPost, "/api/admin/challenges", tok, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "h34p")
	assert.Contains(t, rec.Body.String(), admin.ID.String())
	assert.Equal(t, []string{RouteChallenges}, a.cache.routes)

	rec = a.do(http.MethodPost, "/api/admin/challenges", tok, body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(http.MethodPost, "/api/admin/challenges", tok, `{"title":"Zero","category":"Pwn","points":0,"flag":"z"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"points"`)
}

func TestSeedChallengesIsIdempotent(t *testing.T) {
	a := newApp(t)
	tok := a.tokenFor(t, a.seedAccount(t, "root", true, "r00t-pass"))

	type seedResp struct {
		Added   []string `json:"added"`
		Skipped []string `json:"skipped"`
	}

	rec := a.do(http.MethodPost, "/api/admin/seed-challenges", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode[seedResp](t, rec)
	assert.Len(t, first.Added, len(stockChallenges))
	assert.Empty(t, first.Skipped)

	rec = a.do(http.MethodPost, "/api/admin/seed-challenges", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[seedResp](t, rec)
	assert.Empty(t, second.Added)
	assert.Len(t, second.Skipped, len(stockChallenges))
	assert.Len(t, a.store.challenges, len(stockChallenges))
}

func TestUpdateUser(t *testing.T) {
	a := newApp(t)
	admin := a.seedAccount(t, "root", true, "r00t-pass")
	tok := a.tokenFor(t, admin)
	target := a.seedAccount(t, "alice", false, "s3cret-pass")
	path := "/api/admin/users/" + target.ID.String()

	rec := a.do(http.MethodPatch, path, tok, `{"is_admin":true,"password":"fresh-password"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[accountView](t, rec).IsAdmin)

	stored, err := a.store.FindByID(context.Background(), target.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsAdmin)
	assert.True(t, stored.IsActive)
	assert.True(t, a.hash.Verify("fresh-password", stored.PasswordHash))
	assert.Contains(t, a.cache.routes, RouteScoreboard)

	rec = a.do(http.MethodPatch, path, tok, `{"is_active":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	// A deactivated account no longer resolves from its old token.
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/api/auth_user", a.tokenFor(t, target), "").Code)
}

func TestUpdateUserRejections(t *testing.T) {
	a := newApp(t)
	admin := a.seedAccount(t, "root", true, "r00t-pass")
	tok := a.tokenFor(t, admin)
	self := "/api/admin/users/" + admin.ID.String()

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"malformed id", "/api/admin/users/42", `{}`, http.StatusBadRequest},
		{"unknown id", "/api/admin/users/" + uuid.NewString(), `{"is_active":true}`, http.StatusNotFound},
		{"self demotion", self, `{"is_admin":false}`, http.StatusBadRequest},
		{"self deactivation", self, `{"is_active":false}`, http.StatusBadRequest},
		{"short password", self, `{"password":"short"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.do(http.MethodPatch, tt.path, tok, tt.body).Code)
		})
	}
	stored, err := a.store.FindByID(context.Background(), admin.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsAdmin)
	assert.True(t, stored.IsActive)
}

func TestAdminStoreFailureIsNotForbidden(t *testing.T) {
	a := newApp(t)
	tok := a.tokenFor(t, a.seedAccount(t, "root", true, "r00t-pass"))
	a.store.failWith = errStore

	rec := a.do(http.MethodPost, "/api/admin/seed-challenges", tok, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), errStore.Error())
}

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	tests := []struct {
		name string
		db   Pinger
		want int
	}{
		{"no database", nil, http.StatusOK},
		{"database up", stubPinger{}, http.StatusOK},
		{"database down", stubPinger{err: sql.ErrConnDone}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/healthz", nil), rec)
			require.NoError(t, Health(tt.db)(c))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestChallengeFlagsAreUnique(t *testing.T) {
	a := newApp(t)
	tok := a.tokenFor(t, a.seedAccount(t, "root", true, "r00t-pass"))
	player := a.seedAccount(t, "alice", false, "s3cret-pass")
	ptok := a.tokenFor(t, player)

	rec := a.do(http.MethodPost, "/api/admin/challenges", tok, `{"title":"A","category":"Web","points":100,"flag":"same"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Same flag under another title would make B unsolvable.
	rec = a.do(http.MethodPost, "/api/admin/challenges", tok, `{"title":"B","category":"Web","points":200,"flag":"same"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "flag")

	rec = a.do(http.MethodPost, "/api/admin/challenges", tok, `{"title":"B","category":"Web","points":200,"flag":"other"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, "/api/challenge", ptok, `{"flag":"same"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusSolved, decode[solveResp](t, rec).Status)

	rec = a.do(http.MethodPost, "/api/challenge", ptok, `{"flag":"other"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[solveResp](t, rec)
	assert.Equal(t, StatusSolved, second.Status)
	assert.Equal(t, "B", second.Challenge.Title)
	assert.EqualValues(t, 300, second.Score)
}

func TestCreateUser(t *testing.T) {
	a := newApp(t)
	tok := a.tokenFor(t, a.seedAccount(t, "root", true, "r00t-pass"))

	rec := a.do(http.MethodPost, "/api/admin/users", tok,
		`{"email":" Bob@Example.com ","username":"bob","password":"b0b-password","is_admin":true}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	view := decode[accountView](t, rec)
	assert.Equal(t, "bob@example.com", view.Email)
	assert.True(t, view.IsAdmin)
	assert.True(t, view.IsActive)
	assert.NotContains(t, rec.Body.String(), "password")
	// no session for the new account
	assert.Empty(t, rec.Result().Cookies())
	assert.Contains(t, a.cache.routes, RouteScoreboard)

	login := a.do(http.MethodPost, "/api/login", "", `{"identifier":"bob","password":"b0b-password"}`)
	require.Equal(t, http.StatusOK, login.Code, login.Body.String())
	assert.True(t, decode[tokenResp](t, login).User.IsAdmin)

	rec = a.do(http.MethodPost, "/api/admin/users", tok, `{"email":"other@example.com","username":"bob","password":"b0b-password"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(http.MethodPost, "/api/admin/users", tok, `{"email":"carol@example.com","username":"carol","password":"c4rol-password","is_active":false}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.False(t, decode[accountView](t, rec).IsActive)
	login = a.do(http.MethodPost, "/api/login", "", `{"identifier":"carol","password":"c4rol-password"}`)
	assert.Equal(t, http.StatusUnauthorized, login.Code)

	rec = a.do(http.MethodPost, "/api/admin/users", tok, `{"email":"not-an-email","username":"dave","password":"short"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email"`)
	assert.Contains(t, rec.Body.String(), `"password"`)
}

func TestDeleteUserEndsSessions(t *testing.T) {
	a := newApp(t)
	tok := a.tokenFor(t, a.seedAccount(t, "root", true, "r00t-pass"))
	target := a.seedAccount(t, "alice", false, "s3cret-pass")
	old := a.tokenFor(t, target)

	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/auth_user", old, "").Code)

	rec := a.do(http.MethodDelete, "/api/admin/users/"+target.ID.String(), tok, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, a.cache.routes, RouteScoreboard)

	_, err := a.store.FindByID(context.Background(), target.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	// The token is still signed and unexpired, but names nobody.
	rec = a.do(http.MethodGet, "/api/current_user", old, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "null", rec.Body.String())
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/api/auth_user", old, "").Code)

	rec = a.do(http.MethodDelete, "/api/admin/users/"+target.ID.String(), tok, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteUserRejections(t *testing.T) {
	a := newApp(t)
	admin := a.seedAccount(t, "root", true, "r00t-pass")
	tok := a.tokenFor(t, admin)
	player := a.seedAccount(t, "alice", false, "s3cret-pass")

	tests := []struct {
		name  string
		token string
		path  string
		want  int
	}{
		{"anonymous", "", "/api/admin/users/" + player.ID.String(), http.StatusUnauthorized},
		{"player token", a.tokenFor(t, player), "/api/admin/users/" + admin.ID.String(), http.StatusForbidden},
		{"malformed id", tok, "/api/admin/users/42", http.StatusBadRequest},
		{"unknown id", tok, "/api/admin/users/" + uuid.NewString(), http.StatusNotFound},
		{"self", tok, "/api/admin/users/" + admin.ID.String(), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.do(http.MethodDelete, tt.path, tt.token, "").Code)
		})
	}
	assert.Len(t, a.store.accounts, 2)
}
