package authkit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/opennotebook/authkit/credential"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

// testConfig uses the cheapest hashing parameters the validator accepts so
// the suite does not spend its time in argon2.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.AccessSecret = []byte("test-access-secret-0123456789abc")
	cfg.Token.RefreshSecret = []byte("test-refresh-secret-0123456789ab")
	cfg.Token.AccessTTL = 5 * time.Minute
	cfg.Token.RefreshTTL = time.Hour
	cfg.Token.Issuer = "authkit-test"
	cfg.Password.Hasher = credential.HasherConfig{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
	cfg.Audit.Enabled = false
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, store UserStore, sender NotificationSender) (*Engine, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)

	builder := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(store)
	if sender != nil {
		builder = builder.WithNotificationSender(sender)
	}

	engine, err := builder.Build(context.Background())
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return engine, mr, func() {
		engine.Close()
		mr.Close()
	}
}

type mockUserStore struct {
	mu      sync.Mutex
	users   map[string]*User
	byEmail map[string]string

	createErr error
	getErr    error
	updateErr error
	mergeErr  error

	createCalls int
	mergeCalls  int
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:   map[string]*User{},
		byEmail: map[string]string{},
	}
}

func (m *mockUserStore) Create(_ context.Context, input CreateUserInput) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++

	if m.createErr != nil {
		return nil, m.createErr
	}
	if _, exists := m.byEmail[input.Email]; exists {
		return nil, ErrEmailTaken
	}

	now := time.Now()
	user := &User{
		ID:              uuid.NewString(),
		Email:           input.Email,
		PasswordHash:    input.PasswordHash,
		Provider:        input.Provider,
		EmailVerified:   input.EmailVerified,
		EmailVerifiedAt: input.EmailVerifiedAt,
		Profile:         map[string]string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for k, v := range input.Profile {
		user.Profile[k] = v
	}

	m.users[user.ID] = user
	m.byEmail[user.Email] = user.ID
	return copyUser(user), nil
}

func (m *mockUserStore) GetByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	id, ok := m.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyUser(m.users[id]), nil
}

func (m *mockUserStore) GetByID(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	user, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyUser(user), nil
}

func (m *mockUserStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return m.updateErr
	}
	user, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordHash = hash
	user.UpdatedAt = time.Now()
	return nil
}

func (m *mockUserStore) Merge(_ context.Context, id string, merge UserMerge) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mergeCalls++

	if m.mergeErr != nil {
		return nil, m.mergeErr
	}
	user, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}

	if merge.Provider != nil {
		user.Provider = *merge.Provider
	}
	if merge.PasswordHash != nil {
		user.PasswordHash = *merge.PasswordHash
	}
	if merge.EmailVerified != nil {
		user.EmailVerified = *merge.EmailVerified
	}
	if merge.EmailVerifiedAt != nil {
		user.EmailVerifiedAt = merge.EmailVerifiedAt
	}
	for k, v := range merge.Profile {
		user.Profile[k] = v
	}
	user.UpdatedAt = time.Now()
	return copyUser(user), nil
}

// user returns the stored record directly, for assertions.
func (m *mockUserStore) user(id string) *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id]
}

func copyUser(u *User) *User {
	out := *u
	out.Profile = make(map[string]string, len(u.Profile))
	for k, v := range u.Profile {
		out.Profile[k] = v
	}
	return &out
}

type sentToken struct {
	Email string
	Raw   string
}

// mockSender records delivered tokens so tests can redeem them.
type mockSender struct {
	mu            sync.Mutex
	verifications []sentToken
	resets        []sentToken
	sendErr       error
}

func (m *mockSender) SendVerification(_ context.Context, email, rawToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.verifications = append(m.verifications, sentToken{Email: email, Raw: rawToken})
	return nil
}

func (m *mockSender) SendReset(_ context.Context, email, rawToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.resets = append(m.resets, sentToken{Email: email, Raw: rawToken})
	return nil
}

func (m *mockSender) lastVerification(t *testing.T) sentToken {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.verifications) == 0 {
		t.Fatal("no verification token was sent")
	}
	return m.verifications[len(m.verifications)-1]
}

func (m *mockSender) lastReset(t *testing.T) sentToken {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.resets) == 0 {
		t.Fatal("no reset token was sent")
	}
	return m.resets[len(m.resets)-1]
}

func (m *mockSender) verificationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.verifications)
}

func (m *mockSender) resetCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.resets)
}

// registerUser registers and returns the new user's id.
func registerUser(t *testing.T, engine *Engine, email, password string) string {
	t.Helper()

	user, err := engine.Register(context.Background(), RegisterRequest{
		Email:    email,
		Password: password,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return user.ID
}
