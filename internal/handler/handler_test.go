package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iliyamo/ctf-arena/internal/auth"
	"github.com/iliyamo/ctf-arena/internal/middleware"
	"github.com/iliyamo/ctf-arena/internal/model"
	"github.com/iliyamo/ctf-arena/internal/queue"
	"github.com/iliyamo/ctf-arena/internal/repository"
)

// memStore is an in-memory stand-in for the three repositories.
type memStore struct {
	mu         sync.Mutex
	accounts   map[uuid.UUID]*model.Account
	challenges []*model.Challenge
	solves     map[string]bool
	failWith   error
}

func newMemStore() *memStore {
	return &memStore{accounts: map[uuid.UUID]*model.Account{}, solves: map[string]bool{}}
}

func (s *memStore) FindByID(_ context.Context, id uuid.UUID) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	a, ok := s.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) FindByUsernameOrEmail(_ context.Context, ident string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Username == ident || a.Email == strings.ToLower(ident) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memStore) Taken(_ context.Context, username, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Username == username || a.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) Create(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.accounts {
		if existing.Username == a.Username || existing.Email == a.Email {
			return repository.ErrDuplicate
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now().UTC()
	cp := *a
	s.accounts[a.ID] = &cp
	return nil
}

func (s *memStore) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[id].LastLogin = &at
	return nil
}

func (s *memStore) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[id].PasswordHash = hash
	return nil
}

func (s *memStore) UpdateAccess(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.accounts[a.ID]
	cur.IsAdmin, cur.IsActive, cur.PasswordHash = a.IsAdmin, a.IsActive, a.PasswordHash
	return nil
}

func (s *memStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	if _, ok := s.accounts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.accounts, id)
	return nil
}

func (s *memStore) Scoreboard(_ context.Context, limit uint64) ([]model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Account
	for _, a := range s.accounts {
		if a.IsActive {
			out = append(out, *a)
		}
	}
	if uint64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

// challengeStore and solveStore share memStore's state.
type challengeStore struct{ *memStore }

func (s challengeStore) List(context.Context) ([]model.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Challenge, 0, len(s.challenges))
	for _, c := range s.challenges {
		out = append(out, *c)
	}
	return out, nil
}

func (s challengeStore) FindByFlag(_ context.Context, flag string) (*model.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.challenges {
		if c.Flag == flag {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s challengeStore) Create(_ context.Context, c *model.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.challenges {
		if existing.Title == c.Title || existing.Flag == c.Flag {
			return repository.ErrDuplicate
		}
	}
	c.ID = uint64(len(s.challenges) + 1)
	cp := *c
	s.challenges = append(s.challenges, &cp)
	return nil
}

type solveStore struct{ *memStore }

func (s solveStore) RecordSolve(_ context.Context, accountID uuid.UUID, ch model.Challenge) (model.ChallengeSolve, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := accountID.String() + "/" + ch.Title
	if s.solves[key] {
		return model.ChallengeSolve{}, 0, repository.ErrAlreadySolved
	}
	s.solves[key] = true
	a := s.accounts[accountID]
	a.Score += ch.Points
	return model.ChallengeSolve{AccountID: accountID, ChallengeID: ch.ID, SolvedAt: time.Now().UTC()}, a.Score, nil
}

type recordingPublisher struct {
	events []queue.ChallengeSolvedEvent
	err    error
}

func (p *recordingPublisher) PublishChallengeSolved(_ context.Context, ev queue.ChallengeSolvedEvent) error {
	p.events = append(p.events, ev)
	return p.err
}

type recordingCache struct{ routes []string }

func (c *recordingCache) Invalidate(_ context.Context, routes ...string) error {
	c.routes = append(c.routes, routes...)
	return nil
}

// app wires the handlers behind the real gate the way the router does.
type app struct {
	e     *echo.Echo
	store *memStore
	pub   *recordingPublisher
	cache *recordingCache
	codec *auth.TokenCodec
	hash  *auth.Hasher
}

func newApp(t *testing.T) *app {
	t.Helper()
	log := zaptest.NewLogger(t)
	codec, err := auth.NewTokenCodec(auth.TokenConfig{Secret: []byte("0123456789abcdef0123456789abcdef"), TTL: time.Hour})
	require.NoError(t, err)
	hasher := auth.NewHasher(4)
	store := newMemStore()
	pub, cache := &recordingPublisher{}, &recordingCache{}
	gate := auth.NewGate(auth.NewIdentityResolver(codec, store), log)

	ah, err := NewAuthHandler(store, hasher, codec, false, log)
	require.NoError(t, err)
	ch := NewChallengeHandler(challengeStore{store}, solveStore{store}, pub, cache, log)
	adm := NewAdminHandler(store, challengeStore{store}, hasher, cache, log)

	e := echo.New()
	anon := middleware.Authenticate(gate, auth.PolicyAnonymous, nil)
	opt := middleware.Authenticate(gate, auth.PolicyOptional, nil)
	req := middleware.Authenticate(gate, auth.PolicyRequired, nil)
	admin := middleware.Authenticate(gate, auth.PolicyAdmin, nil)

	e.POST("/api/signup", ah.Signup, anon)
	e.POST("/api/login", ah.Login, anon)
	e.POST("/api/logout", ah.Logout, anon)
	e.GET("/api/current_user", ah.CurrentUser, opt)
	e.GET("/api/auth_user", ah.AuthUser, req)
	e.PATCH("/api/users/me/password", ah.ChangePassword, req)
	e.GET("/api/users", ah.Users, anon)
	e.GET("/api/challenges", ch.List, anon)
	e.POST("/api/challenge", ch.SubmitFlag, req)
	e.POST("/api/admin/challenges", adm.CreateChallenge, admin)
	e.POST("/api/admin/seed-challenges", adm.SeedChallenges, admin)
	e.POST("/api/admin/users", adm.CreateUser, admin)
	e.PATCH("/api/admin/users/:id", adm.UpdateUser, admin)
	e.DELETE("/api/admin/users/:id", adm.DeleteUser, admin)

	return &app{e: e, store: store, pub: pub, cache: cache, codec: codec, hash: hasher}
}

func (a *app) do(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

// seedAccount stores an active account with the given password.
func (a *app) seedAccount(t *testing.T, username string, admin bool, password string) model.Account {
	t.Helper()
	hash, err := a.hash.Hash(password)
	require.NoError(t, err)
	acct := model.Account{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		IsActive:     true,
		IsAdmin:      admin,
	}
	require.NoError(t, a.store.Create(context.Background(), &acct))
	return acct
}

func (a *app) tokenFor(t *testing.T, acct model.Account) string {
	t.Helper()
	tok, err := a.codec.Issue(acct.ID.String(), acct.Audience())
	require.NoError(t, err)
	return tok.Token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

var errStore = errors.New("store unavailable")
