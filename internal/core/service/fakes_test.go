package service

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskboard/uaa/internal/core/domain"
	"github.com/taskboard/uaa/internal/infrastructure/jwtcodec"
)

const testSecret = "test-secret-that-is-long-enough-for-hs256"

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

type memUsers struct {
	mu        sync.Mutex
	byID      map[string]*domain.User
	seq       int
	deleteErr error
}

func newMemUsers() *memUsers {
	return &memUsers{byID: make(map[string]*domain.User)}
}

func (r *memUsers) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Username == username {
			clone := *u
			return &clone, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *memUsers) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (r *memUsers) Create(_ context.Context, nu domain.NewUser) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Username == nu.Username {
			return nil, domain.ErrUserExists
		}
	}
	r.seq++
	now := time.Now().UTC()
	u := &domain.User{
		ID:           fmt.Sprintf("u-%d", r.seq),
		Username:     nu.Username,
		PasswordHash: nu.PasswordHash,
		Role:         nu.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.byID[u.ID] = u
	clone := *u
	return &clone, nil
}

func (r *memUsers) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	if _, ok := r.byID[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *memUsers) LockByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *memUsers) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// add stores a user directly, bypassing password hashing.
func (r *memUsers) add(username string, role domain.Role) *domain.User {
	u, _ := r.Create(context.Background(), domain.NewUser{Username: username, Role: role})
	return u
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

type memSessions struct {
	mu      sync.Mutex
	rows    map[string]domain.StoredAuthentication
	seq     int
	saveErr error
	findErr error
	listErr error
}

func newMemSessions() *memSessions {
	return &memSessions{rows: make(map[string]domain.StoredAuthentication)}
}

func (s *memSessions) find(match func(domain.StoredAuthentication) bool) (domain.StoredAuthentication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return domain.StoredAuthentication{}, s.findErr
	}
	for _, a := range s.rows {
		if match(a) {
			return a, nil
		}
	}
	return domain.StoredAuthentication{}, domain.ErrSessionNotFound
}

func (s *memSessions) FindByAccessToken(_ context.Context, raw string) (domain.StoredAuthentication, error) {
	return s.find(func(a domain.StoredAuthentication) bool { return a.Tokens.Access.Raw == raw })
}

func (s *memSessions) FindByRefreshToken(_ context.Context, raw string) (domain.StoredAuthentication, error) {
	return s.find(func(a domain.StoredAuthentication) bool { return a.Tokens.Refresh.Raw == raw })
}

func (s *memSessions) FindAllByUserID(_ context.Context, userID string) ([]domain.StoredAuthentication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []domain.StoredAuthentication
	for _, a := range s.rows {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memSessions) Save(_ context.Context, auth domain.Authentication) (domain.StoredAuthentication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return domain.StoredAuthentication{}, s.saveErr
	}
	var stored domain.StoredAuthentication
	switch a := auth.(type) {
	case domain.PendingAuthentication:
		s.seq++
		stored = domain.StoredAuthentication{
			ID:        fmt.Sprintf("s-%d", s.seq),
			UserID:    a.UserID,
			Tokens:    a.Tokens,
			CreatedAt: time.Now().UTC(),
		}
	case domain.StoredAuthentication:
		stored = a
	}
	s.rows[stored.ID] = stored
	return stored, nil
}

func (s *memSessions) DeleteByID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	return nil
}

func (s *memSessions) DeleteAllByUserID(_ context.Context, userID string) ([]domain.StoredAuthentication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted []domain.StoredAuthentication
	for id, a := range s.rows {
		if a.UserID == userID {
			deleted = append(deleted, a)
			delete(s.rows, id)
		}
	}
	return deleted, nil
}

func (s *memSessions) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// ---------------------------------------------------------------------------
// Transactions: snapshot and restore both stores on error.
// ---------------------------------------------------------------------------

type memTx struct {
	users    *memUsers
	sessions *memSessions
}

func (m *memTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.sessions.mu.Lock()
	rows := maps.Clone(m.sessions.rows)
	m.sessions.mu.Unlock()
	m.users.mu.Lock()
	users := maps.Clone(m.users.byID)
	m.users.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.sessions.mu.Lock()
		m.sessions.rows = rows
		m.sessions.mu.Unlock()
		m.users.mu.Lock()
		m.users.byID = users
		m.users.mu.Unlock()
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Token index
// ---------------------------------------------------------------------------

type memIndex struct {
	mu          sync.Mutex
	keys        map[string]domain.TokenKind
	existsErr   error
	saveErr     error
	deleteErr   error
	deleteAfter int // deletes allowed before deleteErr kicks in
	deletes     int
}

func newMemIndex() *memIndex {
	return &memIndex{keys: make(map[string]domain.TokenKind)}
}

func indexKey(userID, raw string) string { return userID + "|" + raw }

func (m *memIndex) Exists(_ context.Context, userID, raw string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsErr != nil {
		return false, m.existsErr
	}
	_, ok := m.keys[indexKey(userID, raw)]
	return ok, nil
}

func (m *memIndex) Save(_ context.Context, pair domain.TokenPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	for _, t := range pair.Tokens() {
		m.keys[indexKey(t.UserID, t.Raw)] = t.Kind
	}
	return nil
}

func (m *memIndex) Delete(_ context.Context, pair domain.TokenPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil && m.deletes >= m.deleteAfter {
		return m.deleteErr
	}
	m.deletes++
	for _, t := range pair.Tokens() {
		delete(m.keys, indexKey(t.UserID, t.Raw))
	}
	return nil
}

func (m *memIndex) has(t domain.Token) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[indexKey(t.UserID, t.Raw)]
	return ok
}

func (m *memIndex) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}

// ---------------------------------------------------------------------------
// Mirror queue and incidents
// ---------------------------------------------------------------------------

type recordingMirror struct {
	pairs []domain.TokenPair
}

func (r *recordingMirror) Enqueue(pair domain.TokenPair) { r.pairs = append(r.pairs, pair) }

type recordingIncidents struct {
	incidents []domain.Incident
	err       error
}

func (r *recordingIncidents) Record(_ context.Context, inc domain.Incident) error {
	r.incidents = append(r.incidents, inc)
	return r.err
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type fixture struct {
	clock     time.Time
	users     *memUsers
	sessions  *memSessions
	index     *memIndex
	mirror    *recordingMirror
	incidents *recordingIncidents
	codec     *jwtcodec.Codec
	issuer    *TokenIssuer
	verifier  *TokenVerifier
	revoker   *TokenRevoker
	deletion  *UserDeletion
	auth      *AuthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		clock:     time.Now().Truncate(time.Second),
		users:     newMemUsers(),
		sessions:  newMemSessions(),
		index:     newMemIndex(),
		mirror:    &recordingMirror{},
		incidents: &recordingIncidents{},
	}

	codec, err := jwtcodec.New(testSecret, jwtcodec.WithClock(func() time.Time { return f.clock }))
	if err != nil {
		t.Fatalf("jwtcodec.New: %v", err)
	}
	f.codec = codec

	log := zerolog.Nop()
	tx := &memTx{users: f.users, sessions: f.sessions}
	f.issuer = NewTokenIssuer(f.users, f.sessions, tx, f.index, codec, f.mirror, TokenTTLs{}, log)
	f.verifier = NewTokenVerifier(codec, f.index, f.sessions, log)
	f.revoker = NewTokenRevoker(f.sessions, f.index, log)
	f.deletion = NewUserDeletion(f.users, f.sessions, f.index, tx, f.incidents, time.Second, log)
	f.auth = NewAuthService(f.users, f.issuer, f.verifier, f.revoker, log)
	return f
}

// login issues a fresh session for a user that is created on first use.
func (f *fixture) login(t *testing.T, username string) domain.StoredAuthentication {
	t.Helper()
	if _, err := f.users.FindByUsername(context.Background(), username); err != nil {
		f.users.add(username, domain.RoleUser)
	}
	auth, err := f.issuer.IssueAuthentication(context.Background(), username)
	if err != nil {
		t.Fatalf("IssueAuthentication(%q): %v", username, err)
	}
	return auth
}

func persistenceErr(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrPersistence, msg)
}

func tokenStoreErr(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrTokenStore, msg)
}
