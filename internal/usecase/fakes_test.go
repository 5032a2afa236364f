package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/arklim/auth-service/internal/core/domain"
	"github.com/arklim/auth-service/internal/infra/security"
	"github.com/arklim/auth-service/internal/repository"
)

var errStoreDown = errors.New("connection refused")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memoryUserRepository enforces email uniqueness under a lock, like a unique index.
type memoryUserRepository struct {
	mu      sync.Mutex
	byID    map[string]domain.User
	byEmail map[string]string

	getByEmailErr error
	getByIDErr    error
	createErr     error
	createCalls   int
}

func newMemoryUserRepository() *memoryUserRepository {
	return &memoryUserRepository{byID: map[string]domain.User{}, byEmail: map[string]string{}}
}

func (m *memoryUserRepository) Create(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.byEmail[user.Email]; exists {
		return repository.ErrDuplicate
	}
	m.byID[user.ID] = user
	m.byEmail[user.Email] = user.ID
	return nil
}

func (m *memoryUserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getByEmailErr != nil {
		return nil, m.getByEmailErr
	}
	id, ok := m.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	user := m.byID[id]
	return &user, nil
}

func (m *memoryUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getByIDErr != nil {
		return nil, m.getByIDErr
	}
	user, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (m *memoryUserRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	delete(m.byID, id)
	delete(m.byEmail, user.Email)
	return nil
}

type revocationEntry struct {
	expiresAt time.Time
}

// memoryRevocationStore expires entries against the shared test clock.
type memoryRevocationStore struct {
	mu      sync.Mutex
	clock   *testClock
	entries map[string]revocationEntry
	ttls    map[string]time.Duration

	setErr    error
	existsErr error
	setCalls  int
}

func newMemoryRevocationStore(clock *testClock) *memoryRevocationStore {
	return &memoryRevocationStore{clock: clock, entries: map[string]revocationEntry{}, ttls: map[string]time.Duration{}}
}

func (m *memoryRevocationStore) SetWithTTL(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	if m.setErr != nil {
		return m.setErr
	}
	m.entries[key] = revocationEntry{expiresAt: m.clock.Now().Add(ttl)}
	m.ttls[key] = ttl
	return nil
}

func (m *memoryRevocationStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsErr != nil {
		return false, m.existsErr
	}
	entry, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	return m.clock.Now().Before(entry.expiresAt), nil
}

type recordingPublisher struct {
	mu         sync.Mutex
	registered []domain.UserRegisteredEvent
	loggedOut  []domain.SessionLoggedOutEvent
	deleted    []domain.UserDeletedEvent
	err        error
}

func (p *recordingPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered = append(p.registered, event)
	return p.err
}

func (p *recordingPublisher) PublishSessionLoggedOut(_ context.Context, event domain.SessionLoggedOutEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loggedOut = append(p.loggedOut, event)
	return p.err
}

func (p *recordingPublisher) PublishUserDeleted(_ context.Context, event domain.UserDeletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, event)
	return p.err
}

type countingMetrics struct {
	mu        sync.Mutex
	revoked   int
	skipped   int
	rejected  int
	storeErrs map[string]int
}

func (m *countingMetrics) TokenRevoked() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked++
}

func (m *countingMetrics) RevocationSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipped++
}

func (m *countingMetrics) RevokedTokenRejected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected++
}

func (m *countingMetrics) StoreError(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErrs == nil {
		m.storeErrs = map[string]int{}
	}
	m.storeErrs[op]++
}

type authFixture struct {
	clock    *testClock
	users    *memoryUserRepository
	store    *memoryRevocationStore
	events   *recordingPublisher
	codec    *security.TokenCodec
	denylist *DenylistService
	service  *AuthService
}

func newAuthFixture(t *testing.T, opts ...AuthOption) *authFixture {
	t.Helper()

	clock := newTestClock()
	users := newMemoryUserRepository()
	store := newMemoryRevocationStore(clock)
	events := &recordingPublisher{}

	codec, err := security.NewTokenCodec(security.CodecConfig{Secret: []byte("unit-test-secret"), Algorithm: "HS256"}, security.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewTokenCodec returned error: %v", err)
	}
	hasher, err := security.NewArgon2Hasher(security.Argon2Config{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2Hasher returned error: %v", err)
	}

	denylist := NewDenylistService(store, nil, WithDenylistClock(clock.Now))

	allOpts := append([]AuthOption{WithEventPublisher(events), WithAuthClock(clock.Now)}, opts...)
	service, err := NewAuthService(users, hasher, codec, denylist, allOpts...)
	if err != nil {
		t.Fatalf("NewAuthService returned error: %v", err)
	}

	return &authFixture{
		clock:    clock,
		users:    users,
		store:    store,
		events:   events,
		codec:    codec,
		denylist: denylist,
		service:  service,
	}
}

func (f *authFixture) register(t *testing.T, email, password string) string {
	t.Helper()
	id, err := f.service.Register(context.Background(), RegisterInput{Email: email, Password: password, PasswordConfirmation: password})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	return id
}
