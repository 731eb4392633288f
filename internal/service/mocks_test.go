package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/macleann/fountainheadapi/internal/apperror"
	"github.com/macleann/fountainheadapi/internal/auth"
	"github.com/macleann/fountainheadapi/internal/completion"
	"github.com/macleann/fountainheadapi/internal/model"
	"github.com/macleann/fountainheadapi/internal/repository"
)

// =========================================================================
// MOCK STORE
// =========================================================================
//
// mockStore implements both repository interfaces in memory and enforces
// the same UNIQUE rules as the real schema (username, email, one document
// per user), so the service's conflict handling is exercised for real.

type mockStore struct {
	mu     sync.Mutex
	users  map[string]*model.User
	states map[string]*model.GameState
	nextID int

	// beforeCreate runs inside CreateWithState before the uniqueness checks.
	// Tests use it to slip a competing row in, simulating a lost race.
	beforeCreate func(s *mockStore)

	// failWith makes every method return this error.
	failWith error

	getOrCreateCalls int
	saveCalls        int
}

var (
	_ repository.UserRepository      = (*mockStore)(nil)
	_ repository.GameStateRepository = (*mockStore)(nil)
)

func newMockStore() *mockStore {
	return &mockStore{
		users:  make(map[string]*model.User),
		states: make(map[string]*model.GameState),
	}
}

// insertUserLocked adds a user without a document. Caller holds mu.
func (m *mockStore) insertUserLocked(u *model.User) {
	m.nextID++
	u.ID = fmt.Sprintf("user-%d", m.nextID)
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	stored := *u
	m.users[u.ID] = &stored
}

// addUser inserts a user (no document) for test setup.
func (m *mockStore) addUser(u *model.User) *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertUserLocked(u)
	return u
}

func (m *mockStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	u, ok := m.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (m *mockStore) find(match func(*model.User) bool, what string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("user", what)
}

func (m *mockStore) GetByUsername(_ context.Context, username string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.Username == username }, username)
}

func (m *mockStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.Email == email }, email)
}

func (m *mockStore) CreateWithState(_ context.Context, user *model.User, state json.RawMessage) (*model.GameState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	if m.beforeCreate != nil {
		hook := m.beforeCreate
		m.beforeCreate = nil
		hook(m)
	}
	for _, u := range m.users {
		if u.Username == user.Username {
			return nil, apperror.Conflict("username", "username already taken")
		}
		if u.Email == user.Email {
			return nil, apperror.Conflict("email", "email already taken")
		}
	}
	m.insertUserLocked(user)
	gs := &model.GameState{ID: "gs-" + user.ID, UserID: user.ID, State: state, LastUpdated: time.Now()}
	m.states[user.ID] = gs
	cp := *gs
	return &cp, nil
}

func (m *mockStore) GetOrCreate(_ context.Context, userID string, defaultState json.RawMessage) (*model.GameState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getOrCreateCalls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	if _, ok := m.users[userID]; !ok {
		return nil, apperror.NotFound("user", userID)
	}
	gs, ok := m.states[userID]
	if !ok {
		gs = &model.GameState{ID: "gs-" + userID, UserID: userID, State: defaultState, LastUpdated: time.Now()}
		m.states[userID] = gs
	}
	cp := *gs
	return &cp, nil
}

func (m *mockStore) Save(_ context.Context, userID string, state json.RawMessage) (*model.GameState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	if _, ok := m.users[userID]; !ok {
		return nil, apperror.NotFound("user", userID)
	}
	gs := &model.GameState{ID: "gs-" + userID, UserID: userID, State: state, LastUpdated: time.Now()}
	m.states[userID] = gs
	cp := *gs
	return &cp, nil
}

// storedState returns the raw stored document, or nil.
func (m *mockStore) storedState(userID string) json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gs, ok := m.states[userID]; ok {
		return gs.State
	}
	return nil
}

// =========================================================================
// MOCK COLLABORATORS
// =========================================================================

type fakeVerifier struct {
	identity *auth.Identity
	err      error
	got      string
}

func (f *fakeVerifier) Verify(_ context.Context, credential string) (*auth.Identity, error) {
	f.got = credential
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.identity
	return &cp, nil
}

type fakeCompletion struct {
	reply string
	err   error
	calls int
	last  completion.Request
}

func (f *fakeCompletion) Complete(_ context.Context, req completion.Request) (*completion.Response, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &completion.Response{Reply: f.reply}, nil
}

var errDatabaseDown = errors.New("database is down")

// =========================================================================
// HELPERS
// =========================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type identityFixture struct {
	svc    *IdentityService
	store  *mockStore
	tokens *auth.TokenService
	google *fakeVerifier
	github *fakeVerifier
}

func newIdentityFixture(t *testing.T) *identityFixture {
	t.Helper()
	store := newMockStore()
	tokens, err := auth.NewTokenService("service-test-secret-0123456789", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	google := &fakeVerifier{identity: &auth.Identity{Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace"}}
	github := &fakeVerifier{identity: &auth.Identity{Email: "mona@example.com", FirstName: "Mona"}}

	logger := discardLogger()
	svc := NewIdentityService(
		store,
		NewStateService(store, logger),
		tokens,
		auth.NewPasswordServiceForTest(bcrypt.MinCost),
		IdentityProviders{Google: google, GitHub: github},
		logger,
	)
	return &identityFixture{svc: svc, store: store, tokens: tokens, google: google, github: github}
}
