// Package tokens mints and verifies the dashboard's bearer tokens.
//
// Access tokens are short-lived and verified statelessly. Refresh tokens are
// long-lived and only honoured while a session holds their digest.
package tokens

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the shortest signing secret accepted at startup.
const MinSecretLength = 32

// Default token lifetimes.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

const issuer = "stratagate"

var (
	// ErrInvalidToken is returned for every verification failure. Callers are
	// not told whether the signature, algorithm, expiry or encoding was wrong.
	ErrInvalidToken = errors.New("invalid token")
)

// ConfigError is returned by New when the issuer cannot be built safely.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// Claims is the payload carried by both token kinds.
type Claims struct {
	PrincipalID string   `json:"principalId"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// Config holds issuer settings.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration // defaults to DefaultAccessTTL
	RefreshTTL    time.Duration // defaults to DefaultRefreshTTL
}

// Issuer signs and verifies tokens with HS256.
type Issuer struct {
	accessKey  []byte
	refreshKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration

	now func() time.Time
}

// New validates cfg and returns an Issuer.
func New(cfg Config) (*Issuer, error) {
	if len(cfg.AccessSecret) < MinSecretLength {
		return nil, &ConfigError{Message: fmt.Sprintf("access token secret must be at least %d characters", MinSecretLength)}
	}
	if len(cfg.RefreshSecret) < MinSecretLength {
		return nil, &ConfigError{Message: fmt.Sprintf("refresh token secret must be at least %d characters", MinSecretLength)}
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	return &Issuer{
		accessKey:  []byte(cfg.AccessSecret),
		refreshKey: []byte(cfg.RefreshSecret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}, nil
}

// SetClock replaces the time source. Intended for tests.
func (i *Issuer) SetClock(now func() time.Time) {
	i.now = now
}

// AccessTTL returns the configured access token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// Subject is what a token is issued for.
type Subject struct {
	PrincipalID string
	Role        string
	Permissions []string
}

// IssueAccess mints an access token and returns it with its expiry.
func (i *Issuer) IssueAccess(sub Subject) (string, time.Time, error) {
	return i.issue(sub, i.accessKey, i.accessTTL)
}

// IssueRefresh mints a refresh token and returns it with its expiry.
func (i *Issuer) IssueRefresh(sub Subject) (string, time.Time, error) {
	return i.issue(sub, i.refreshKey, i.refreshTTL)
}

func (i *Issuer) issue(sub Subject, key []byte, ttl time.Duration) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		PrincipalID: sub.PrincipalID,
		Role:        sub.Role,
		Permissions: sub.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   sub.PrincipalID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// VerifyAccess parses an access token.
func (i *Issuer) VerifyAccess(token string) (*Claims, error) {
	return i.verify(token, i.accessKey)
}

// VerifyRefresh parses a refresh token.
func (i *Issuer) VerifyRefresh(token string) (*Claims, error) {
	return i.verify(token, i.refreshKey)
}

func (i *Issuer) verify(tokenStr string, key []byte) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.PrincipalID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Digest returns the hex SHA-256 of a token. Only digests are persisted.
func Digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
