// Package auth composes assertion verification, lockout accounting, token
// issuance and session storage into the login, refresh and logout flows.
package auth

// Terminology: Identifiers
//   - PrincipalID: hex of the user's MongoDB ObjectID, carried in every token
//   - TelegramID: the numeric account ID from the login assertion; it is the
//     user-typed brute-force identifier because it is known before resolution

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/stratagate/internal/app/store/audit"
	"github.com/dalemusser/stratagate/internal/app/store/sessions"
	userstore "github.com/dalemusser/stratagate/internal/app/store/users"
	"github.com/dalemusser/stratagate/internal/app/system/auditlog"
	"github.com/dalemusser/stratagate/internal/app/system/bruteforce"
	"github.com/dalemusser/stratagate/internal/app/system/metrics"
	"github.com/dalemusser/stratagate/internal/app/system/telegram"
	"github.com/dalemusser/stratagate/internal/app/system/tokens"
	"github.com/dalemusser/stratagate/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// maxClientAgent bounds the stored User-Agent.
const maxClientAgent = 512

// unknownAddress keys the IP counter when no source address is available.
const unknownAddress = "unknown"

// SessionStore is the subset of *sessions.Store used by Service.
type SessionStore interface {
	Create(ctx context.Context, sess sessions.Session) (*sessions.Session, int, error)
	FindByAccessDigest(ctx context.Context, accessDigest string) (*sessions.Session, error)
	FindByRefreshDigest(ctx context.Context, refreshDigest string) (*sessions.Session, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*sessions.Session, error)
	ListActive(ctx context.Context, principalID string) ([]sessions.Session, error)
	Touch(ctx context.Context, id primitive.ObjectID, accessDigest string) (bool, error)
	Revoke(ctx context.Context, id primitive.ObjectID) (bool, error)
	RevokeAll(ctx context.Context, principalID string) (int64, error)
}

// UserStore is the subset of *userstore.Store used by Service.
type UserStore interface {
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	GetByPrincipalID(ctx context.Context, principalID string) (*models.User, error)
	SyncProfile(ctx context.Context, id primitive.ObjectID, p userstore.Profile) error
}

// Guard is the subset of *bruteforce.Guard used by Service.
type Guard interface {
	Check(ctx context.Context, identifier string, typ bruteforce.Type) (bruteforce.Status, error)
	RecordFailure(ctx context.Context, identifier string, typ bruteforce.Type) (bruteforce.Status, error)
	Reset(ctx context.Context, identifier string, typ bruteforce.Type) error
}

// Config wires a Service. Verifier, Tokens, Sessions, Users and Guard are required.
type Config struct {
	Verifier *telegram.Verifier
	Tokens   *tokens.Issuer
	Sessions SessionStore
	Users    UserStore
	Guard    Guard

	// AllowedRoles may log in. Empty selects models.ElevatedRoles().
	AllowedRoles []string

	Audit   *auditlog.Logger
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Service runs the authentication flows.
type Service struct {
	verifier *telegram.Verifier
	tokens   *tokens.Issuer
	sessions SessionStore
	users    UserStore
	guard    Guard
	allowed  map[string]struct{}

	audit   *auditlog.Logger
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

// New creates a Service.
func New(cfg Config) (*Service, error) {
	switch {
	case cfg.Verifier == nil:
		return nil, &Error{Kind: KindConfiguration, Message: "auth: verifier is required"}
	case cfg.Tokens == nil:
		return nil, &Error{Kind: KindConfiguration, Message: "auth: token issuer is required"}
	case cfg.Sessions == nil:
		return nil, &Error{Kind: KindConfiguration, Message: "auth: session store is required"}
	case cfg.Users == nil:
		return nil, &Error{Kind: KindConfiguration, Message: "auth: user store is required"}
	case cfg.Guard == nil:
		return nil, &Error{Kind: KindConfiguration, Message: "auth: brute-force guard is required"}
	}

	roles := cfg.AllowedRoles
	if len(roles) == 0 {
		roles = models.ElevatedRoles()
	}
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Service{
		verifier: cfg.Verifier,
		tokens:   cfg.Tokens,
		sessions: cfg.Sessions,
		users:    cfg.Users,
		guard:    cfg.Guard,
		allowed:  allowed,
		audit:    cfg.Audit,
		metrics:  cfg.Metrics,
		log:      log,
		now:      time.Now,
	}, nil
}

// SetClock replaces the time source used for assertion freshness. Intended for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// AccessTTL returns the lifetime of issued access tokens.
func (s *Service) AccessTTL() time.Duration {
	return s.tokens.AccessTTL()
}

// Meta describes the client a request came from.
type Meta struct {
	SourceAddress string
	ClientAgent   string
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	SessionID        string
	User             *models.User
}

// RefreshResult is returned by a successful Refresh.
type RefreshResult struct {
	AccessToken     string
	AccessExpiresAt time.Time
}

// Principal is the caller behind a verified access token.
type Principal struct {
	ID          string
	Role        string
	Permissions []string
	SessionID   string
}

func (s *Service) roleAllowed(u *models.User) bool {
	if u.IsDisabled() {
		return false
	}
	_, ok := s.allowed[u.Role]
	return ok
}

// Login authenticates a login assertion. Every failure that counts toward a
// lockout is recorded before Login returns.
func (s *Service) Login(ctx context.Context, a telegram.Assertion, meta Meta) (*LoginResult, error) {
	ip := meta.SourceAddress
	if ip == "" {
		ip = unknownAddress
	}
	src := auditlog.Source{IP: ip, UserAgent: clip(meta.ClientAgent, maxClientAgent)}

	// 1. Source address lockout.
	ipStatus, err := s.guard.Check(ctx, ip, bruteforce.TypeIP)
	if err != nil {
		return nil, s.fail(err, "check ip lockout")
	}
	if ipStatus.Blocked {
		s.audit.LockedOut(ctx, src, string(bruteforce.TypeIP), ip, ipStatus.MinutesLeft)
		s.metrics.Login(metrics.OutcomeLocked)
		return nil, rateLimited(bruteforce.TypeIP, ipStatus)
	}

	// 2. Required fields. Never counted.
	if missing := a.MissingFields(); len(missing) > 0 {
		s.audit.LoginFailed(ctx, src, audit.EventLoginFailedMalformed, "", a.ID, "missing "+strings.Join(missing, ","))
		s.metrics.Login(metrics.OutcomeMalformed)
		return nil, newError(KindMalformedRequest, MsgMalformedRequest)
	}

	// 3. Signature and freshness.
	if res := s.verifier.Verify(a, s.now()); !res.Valid {
		if err := s.recordFailure(ctx, ip, bruteforce.TypeIP); err != nil {
			return nil, err
		}
		if res.Reason == telegram.ReasonStale {
			s.audit.LoginFailed(ctx, src, audit.EventLoginFailedStale, "", a.ID, string(res.Reason))
			s.metrics.Login(metrics.OutcomeStale)
			return nil, newError(KindStaleAssertion, MsgStaleAssertion)
		}
		s.audit.LoginFailed(ctx, src, audit.EventLoginFailedSignature, "", a.ID, string(res.Reason))
		s.metrics.Login(metrics.OutcomeBadSignature)
		return nil, newError(KindInvalidSignature, MsgInvalidSignature)
	}

	// 4. Principal resolution.
	userKey := strconv.FormatInt(a.ID, 10)
	u, err := s.users.GetByTelegramID(ctx, a.ID)
	if err != nil {
		return nil, s.fail(err, "resolve principal")
	}
	if u == nil {
		if err := s.recordFailure(ctx, ip, bruteforce.TypeIP); err != nil {
			return nil, err
		}
		if err := s.recordFailure(ctx, userKey, bruteforce.TypeUser); err != nil {
			return nil, err
		}
		s.audit.LoginFailed(ctx, src, audit.EventLoginFailedNotRegistered, "", a.ID, "no such user")
		s.metrics.Login(metrics.OutcomeNotRegistered)
		return nil, newError(KindPrincipalNotRegistered, MsgPrincipalNotRegistered)
	}
	principalID := u.ID.Hex()

	// 5. Account lockout.
	userStatus, err := s.guard.Check(ctx, userKey, bruteforce.TypeUser)
	if err != nil {
		return nil, s.fail(err, "check user lockout")
	}
	if userStatus.Blocked {
		s.audit.LockedOut(ctx, src, string(bruteforce.TypeUser), userKey, userStatus.MinutesLeft)
		s.metrics.Login(metrics.OutcomeLocked)
		return nil, rateLimited(bruteforce.TypeUser, userStatus)
	}

	// 6. Role gate. Identity was proven, so this is not counted.
	if !s.roleAllowed(u) {
		s.audit.LoginFailed(ctx, src, audit.EventLoginFailedPermission, principalID, a.ID, "role "+u.Role)
		s.metrics.Login(metrics.OutcomeForbidden)
		return nil, newError(KindInsufficientPermission, MsgInsufficientPermission)
	}

	// 7. Success.
	if err := s.guard.Reset(ctx, ip, bruteforce.TypeIP); err != nil {
		return nil, s.fail(err, "reset ip attempts")
	}
	if err := s.guard.Reset(ctx, userKey, bruteforce.TypeUser); err != nil {
		return nil, s.fail(err, "reset user attempts")
	}

	profile := userstore.Profile{
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Username:  a.Username,
		PhotoURL:  a.PhotoURL,
	}
	if err := s.users.SyncProfile(ctx, u.ID, profile); err != nil {
		// Display fields only; the login stands.
		s.log.Warn("failed to sync profile on login", zap.Error(err), zap.String("principal_id", principalID))
	} else if fresh, err := s.users.GetByPrincipalID(ctx, principalID); err == nil && fresh != nil {
		u = fresh
	}

	sub := tokens.Subject{PrincipalID: principalID, Role: u.Role, Permissions: u.Permissions}
	access, accessExp, err := s.tokens.IssueAccess(sub)
	if err != nil {
		return nil, s.fail(err, "issue access token")
	}
	refresh, refreshExp, err := s.tokens.IssueRefresh(sub)
	if err != nil {
		return nil, s.fail(err, "issue refresh token")
	}

	sess, evicted, err := s.sessions.Create(ctx, sessions.Session{
		PrincipalID:   principalID,
		AccessDigest:  tokens.Digest(access),
		RefreshDigest: tokens.Digest(refresh),
		SourceAddress: meta.SourceAddress,
		ClientAgent:   src.UserAgent,
		ExpiresAt:     refreshExp,
	})
	if err != nil {
		return nil, s.fail(err, "create session")
	}
	if evicted > 0 {
		s.audit.SessionsEvicted(ctx, principalID, evicted)
		s.metrics.SessionsEvicted(evicted)
	}

	s.audit.LoginSuccess(ctx, src, principalID, a.ID, u.Role)
	s.metrics.Login(metrics.OutcomeSuccess)

	return &LoginResult{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
		SessionID:        sess.ID.Hex(),
		User:             u,
	}, nil
}

// Refresh mints a new access token for the session holding refreshToken.
// The refresh token itself stays valid until its session ends.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		s.metrics.Refresh(metrics.OutcomeInvalid)
		return nil, invalidToken()
	}

	sess, err := s.sessions.FindByRefreshDigest(ctx, tokens.Digest(refreshToken))
	if err != nil {
		s.metrics.Refresh(metrics.OutcomeError)
		return nil, s.fail(err, "find session by refresh digest")
	}
	if sess == nil || sess.PrincipalID != claims.PrincipalID {
		s.audit.TokenRefreshFailed(ctx, claims.PrincipalID, "session not found")
		s.metrics.Refresh(metrics.OutcomeInvalid)
		return nil, invalidToken()
	}

	u, err := s.users.GetByPrincipalID(ctx, claims.PrincipalID)
	if err != nil {
		s.metrics.Refresh(metrics.OutcomeError)
		return nil, s.fail(err, "resolve principal on refresh")
	}
	if u == nil {
		s.audit.TokenRefreshFailed(ctx, claims.PrincipalID, "principal no longer exists")
		s.metrics.Refresh(metrics.OutcomeInvalid)
		return nil, invalidToken()
	}
	if !s.roleAllowed(u) {
		if _, err := s.sessions.Revoke(ctx, sess.ID); err != nil {
			s.metrics.Refresh(metrics.OutcomeError)
			return nil, s.fail(err, "revoke session on refresh")
		}
		s.audit.RefreshPermissionRevoked(ctx, claims.PrincipalID, sess.ID.Hex(), u.Role)
		s.metrics.Refresh(metrics.OutcomeForbidden)
		return nil, invalidToken()
	}

	access, accessExp, err := s.tokens.IssueAccess(tokens.Subject{
		PrincipalID: claims.PrincipalID,
		Role:        u.Role,
		Permissions: u.Permissions,
	})
	if err != nil {
		s.metrics.Refresh(metrics.OutcomeError)
		return nil, s.fail(err, "issue access token")
	}

	ok, err := s.sessions.Touch(ctx, sess.ID, tokens.Digest(access))
	if err != nil {
		s.metrics.Refresh(metrics.OutcomeError)
		return nil, s.fail(err, "touch session")
	}
	if !ok {
		// Revoked or expired between lookup and update.
		s.metrics.Refresh(metrics.OutcomeInvalid)
		return nil, invalidToken()
	}

	s.audit.TokenRefreshed(ctx, claims.PrincipalID, sess.ID.Hex())
	s.metrics.Refresh(metrics.OutcomeSuccess)
	return &RefreshResult{AccessToken: access, AccessExpiresAt: accessExp}, nil
}

// Introspect verifies an access token without consulting the session store.
// A token stays valid here until it expires, even after logout.
func (s *Service) Introspect(accessToken string) (*tokens.Claims, error) {
	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, invalidToken()
	}
	return claims, nil
}

// Authenticate verifies an access token and requires the session it was
// issued for to still be live. Logout takes effect here immediately.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	claims, sess, err := s.sessionFor(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return &Principal{
		ID:          claims.PrincipalID,
		Role:        claims.Role,
		Permissions: claims.Permissions,
		SessionID:   sess.ID.Hex(),
	}, nil
}

func (s *Service) sessionFor(ctx context.Context, accessToken string) (*tokens.Claims, *sessions.Session, error) {
	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, nil, invalidToken()
	}
	sess, err := s.sessions.FindByAccessDigest(ctx, tokens.Digest(accessToken))
	if err != nil {
		return nil, nil, s.fail(err, "find session by access digest")
	}
	if sess == nil || sess.PrincipalID != claims.PrincipalID {
		return nil, nil, invalidToken()
	}
	return claims, sess, nil
}

// Logout ends the session the access token belongs to.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	claims, sess, err := s.sessionFor(ctx, accessToken)
	if err != nil {
		return err
	}
	if _, err := s.sessions.Revoke(ctx, sess.ID); err != nil {
		return s.fail(err, "revoke session")
	}
	s.audit.Logout(ctx, claims.PrincipalID, sess.ID.Hex())
	s.metrics.Logout("single")
	return nil
}

// LogoutAll ends every session of the principal and returns how many were removed.
func (s *Service) LogoutAll(ctx context.Context, principalID string) (int64, error) {
	n, err := s.sessions.RevokeAll(ctx, principalID)
	if err != nil {
		return 0, s.fail(err, "revoke all sessions")
	}
	s.audit.LogoutAll(ctx, principalID, n)
	s.metrics.Logout("all")
	return n, nil
}

// Profile returns the principal's current record.
func (s *Service) Profile(ctx context.Context, principalID string) (*models.User, error) {
	u, err := s.users.GetByPrincipalID(ctx, principalID)
	if err != nil {
		return nil, s.fail(err, "load profile")
	}
	if u == nil {
		return nil, invalidToken()
	}
	return u, nil
}

// ListSessions returns the principal's live sessions, most recently active first.
func (s *Service) ListSessions(ctx context.Context, principalID string) ([]sessions.Session, error) {
	list, err := s.sessions.ListActive(ctx, principalID)
	if err != nil {
		return nil, s.fail(err, "list sessions")
	}
	return list, nil
}

// RevokeSession ends one of the principal's own sessions. Sessions of other
// principals are reported as not found.
func (s *Service) RevokeSession(ctx context.Context, principalID, sessionID string) error {
	id, err := primitive.ObjectIDFromHex(sessionID)
	if err != nil {
		return newError(KindSessionNotFound, MsgSessionNotFound)
	}
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return s.fail(err, "get session")
	}
	if sess == nil || sess.PrincipalID != principalID {
		return newError(KindSessionNotFound, MsgSessionNotFound)
	}
	if _, err := s.sessions.Revoke(ctx, id); err != nil {
		return s.fail(err, "revoke session")
	}
	s.audit.SessionRevoked(ctx, principalID, sessionID)
	s.metrics.Logout("session")
	return nil
}

func (s *Service) recordFailure(ctx context.Context, identifier string, typ bruteforce.Type) error {
	st, err := s.guard.RecordFailure(ctx, identifier, typ)
	if err != nil {
		return s.fail(err, "record failure")
	}
	if st.Blocked {
		s.metrics.Lockout(string(typ))
		s.log.Info("identifier locked out",
			zap.String("type", string(typ)),
			zap.String("identifier", identifier),
			zap.Int("attempts", st.Attempts),
			zap.Int("minutes", st.MinutesLeft))
	}
	return nil
}

// fail logs a storage or signing error and returns the generic internal error.
func (s *Service) fail(err error, op string) *Error {
	s.log.Error("auth operation failed", zap.String("op", op), zap.Error(err))
	return internalError(err)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}
