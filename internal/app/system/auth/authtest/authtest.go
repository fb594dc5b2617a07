// Package authtest provides in-memory stores and a wired auth.Service for
// tests that do not need MongoDB.
package authtest

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/stratagate/internal/app/store/sessions"
	userstore "github.com/dalemusser/stratagate/internal/app/store/users"
	"github.com/dalemusser/stratagate/internal/app/system/auditlog"
	"github.com/dalemusser/stratagate/internal/app/system/auth"
	"github.com/dalemusser/stratagate/internal/app/system/bruteforce"
	"github.com/dalemusser/stratagate/internal/app/system/metrics"
	"github.com/dalemusser/stratagate/internal/app/system/telegram"
	"github.com/dalemusser/stratagate/internal/app/system/tokens"
	"github.com/dalemusser/stratagate/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	// BotToken signs assertions built by Harness.Assertion.
	BotToken = "123456:test-bot-token"
	// AccessSecret and RefreshSecret are 32+ character test secrets.
	AccessSecret  = "access-secret-for-tests-0123456789"
	RefreshSecret = "refresh-secret-for-tests-0123456789"
)

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock fixed at t.
func NewClock(t time.Time) *Clock { return &Clock{now: t} }

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

/*─────────────────────────────────────────────────────────────────────────────*
| Sessions                                                                    |
*─────────────────────────────────────────────────────────────────────────────*/

// MemorySessions implements auth.SessionStore with the same read and eviction
// rules as the MongoDB store.
type MemorySessions struct {
	mu    sync.Mutex
	byID  map[primitive.ObjectID]sessions.Session
	max   int
	clock func() time.Time
}

// NewMemorySessions creates an empty store capped at max sessions per principal.
func NewMemorySessions(max int, clock func() time.Time) *MemorySessions {
	if max <= 0 {
		max = sessions.DefaultMaxPerPrincipal
	}
	return &MemorySessions{byID: make(map[primitive.ObjectID]sessions.Session), max: max, clock: clock}
}

func (m *MemorySessions) liveLocked(s sessions.Session) bool {
	return s.ExpiresAt.After(m.clock())
}

func (m *MemorySessions) Create(_ context.Context, sess sessions.Session) (*sessions.Session, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess.ID.IsZero() {
		sess.ID = primitive.NewObjectID()
	}
	now := m.clock()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	if sess.LastActivity.IsZero() {
		sess.LastActivity = now
	}
	m.byID[sess.ID] = sess

	victims := sessions.SelectEvictions(m.activeLocked(sess.PrincipalID), m.max)
	for _, id := range victims {
		delete(m.byID, id)
	}
	out := sess
	return &out, len(victims), nil
}

func (m *MemorySessions) activeLocked(principalID string) []sessions.Session {
	var out []sessions.Session
	for _, s := range m.byID {
		if s.PrincipalID == principalID && m.liveLocked(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].LastActivity.After(out[j].LastActivity)
		}
		return out[i].ID.Hex() > out[j].ID.Hex()
	})
	return out
}

func (m *MemorySessions) find(match func(sessions.Session) bool) *sessions.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byID {
		if match(s) && m.liveLocked(s) {
			out := s
			return &out
		}
	}
	return nil
}

func (m *MemorySessions) FindByAccessDigest(_ context.Context, digest string) (*sessions.Session, error) {
	if digest == "" {
		return nil, nil
	}
	return m.find(func(s sessions.Session) bool { return s.AccessDigest == digest }), nil
}

func (m *MemorySessions) FindByRefreshDigest(_ context.Context, digest string) (*sessions.Session, error) {
	if digest == "" {
		return nil, nil
	}
	return m.find(func(s sessions.Session) bool { return s.RefreshDigest == digest }), nil
}

func (m *MemorySessions) GetByID(_ context.Context, id primitive.ObjectID) (*sessions.Session, error) {
	return m.find(func(s sessions.Session) bool { return s.ID == id }), nil
}

func (m *MemorySessions) ListActive(_ context.Context, principalID string) ([]sessions.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLocked(principalID), nil
}

func (m *MemorySessions) Touch(_ context.Context, id primitive.ObjectID, accessDigest string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok || !m.liveLocked(s) {
		return false, nil
	}
	now := m.clock()
	s.LastActivity = now
	s.UpdatedAt = now
	if accessDigest != "" {
		s.AccessDigest = accessDigest
	}
	m.byID[id] = s
	return true, nil
}

func (m *MemorySessions) Revoke(_ context.Context, id primitive.ObjectID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byID[id]
	delete(m.byID, id)
	return ok, nil
}

func (m *MemorySessions) RevokeAll(_ context.Context, principalID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.byID {
		if s.PrincipalID == principalID {
			delete(m.byID, id)
			n++
		}
	}
	return n, nil
}

// Count returns the number of live sessions held for principalID.
func (m *MemorySessions) Count(principalID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.activeLocked(principalID))
}

/*─────────────────────────────────────────────────────────────────────────────*
| Users                                                                       |
*─────────────────────────────────────────────────────────────────────────────*/

// MemoryUsers implements auth.UserStore.
type MemoryUsers struct {
	mu   sync.Mutex
	byID map[primitive.ObjectID]models.User
}

// NewMemoryUsers creates an empty user store.
func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{byID: make(map[primitive.ObjectID]models.User)}
}

// Put stores u, assigning an ID when it has none, and returns the stored copy.
func (m *MemoryUsers) Put(u models.User) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	m.byID[u.ID] = u
	out := u
	return &out
}

// Delete removes the user with id.
func (m *MemoryUsers) Delete(id primitive.ObjectID) {
	m.mu.Lock()
	delete(m.byID, id)
	m.mu.Unlock()
}

func (m *MemoryUsers) GetByTelegramID(_ context.Context, telegramID int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.TelegramID == telegramID {
			out := u
			return &out, nil
		}
	}
	return nil, nil
}

func (m *MemoryUsers) GetByPrincipalID(_ context.Context, principalID string) (*models.User, error) {
	id, err := primitive.ObjectIDFromHex(principalID)
	if err != nil {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *MemoryUsers) SyncProfile(_ context.Context, id primitive.ObjectID, p userstore.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil
	}
	if p.FirstName != "" {
		u.FirstName = p.FirstName
	}
	u.LastName = p.LastName
	u.Username = p.Username
	u.PhotoURL = p.PhotoURL
	now := time.Now().UTC()
	u.LastLoginAt = &now
	m.byID[id] = u
	return nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Harness                                                                     |
*─────────────────────────────────────────────────────────────────────────────*/

// Harness is an auth.Service over in-memory stores sharing one fake clock.
type Harness struct {
	Clock    *Clock
	Service  *auth.Service
	Tokens   *tokens.Issuer
	Sessions *MemorySessions
	Users    *MemoryUsers
	Attempts *bruteforce.MemoryStore
	Guard    *bruteforce.Guard
}

// Option adjusts the auth.Config before the Service is built.
type Option func(*auth.Config)

// WithAudit routes audit events to a.
func WithAudit(a *auditlog.Logger) Option {
	return func(c *auth.Config) { c.Audit = a }
}

// WithMetrics records into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *auth.Config) { c.Metrics = m }
}

// WithAllowedRoles overrides the login role gate.
func WithAllowedRoles(roles ...string) Option {
	return func(c *auth.Config) { c.AllowedRoles = roles }
}

// New builds a Harness. The clock starts at a fixed instant.
func New(t testing.TB, opts ...Option) *Harness {
	t.Helper()

	clock := NewClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	issuer, err := tokens.New(tokens.Config{AccessSecret: AccessSecret, RefreshSecret: RefreshSecret})
	if err != nil {
		t.Fatalf("tokens.New: %v", err)
	}
	issuer.SetClock(clock.Now)

	attempts := bruteforce.NewMemoryStore()
	guard := bruteforce.New(attempts)
	guard.SetClock(clock.Now)

	h := &Harness{
		Clock:    clock,
		Tokens:   issuer,
		Sessions: NewMemorySessions(sessions.DefaultMaxPerPrincipal, clock.Now),
		Users:    NewMemoryUsers(),
		Attempts: attempts,
		Guard:    guard,
	}

	cfg := auth.Config{
		Verifier: telegram.NewVerifier(BotToken, telegram.DefaultMaxAge),
		Tokens:   issuer,
		Sessions: h.Sessions,
		Users:    h.Users,
		Guard:    guard,
		Logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	svc, err := auth.New(cfg)
	if err != nil {
		t.Fatalf("auth.New: %v", err)
	}
	svc.SetClock(clock.Now)
	h.Service = svc
	return h
}

// AddUser stores an active user with role and returns it.
func (h *Harness) AddUser(telegramID int64, role string) *models.User {
	now := h.Clock.Now()
	return h.Users.Put(models.User{
		TelegramID: telegramID,
		FirstName:  "Test",
		Role:       role,
		Status:     models.StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

// Assertion returns a freshly signed login assertion for telegramID.
func (h *Harness) Assertion(telegramID int64) telegram.Assertion {
	return telegram.SignAssertion(telegram.Assertion{
		ID:        telegramID,
		FirstName: "Test",
		Username:  "tester",
		AuthDate:  h.Clock.Now().Unix(),
	}, BotToken)
}

// Forged returns an assertion for telegramID with a signature that does not verify.
func (h *Harness) Forged(telegramID int64) telegram.Assertion {
	a := h.Assertion(telegramID)
	a.Hash = telegram.SignAssertion(a, "some-other-bot-token").Hash
	return a
}
