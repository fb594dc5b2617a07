package tokens

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testAccessSecret  = "access-secret-for-tests-0123456789abcdef"
	testRefreshSecret = "refresh-secret-for-tests-0123456789abcdef"
)

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	iss, err := New(Config{AccessSecret: testAccessSecret, RefreshSecret: testRefreshSecret})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return iss
}

func TestNew_RejectsShortSecrets(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"short access", Config{AccessSecret: "short", RefreshSecret: testRefreshSecret}},
		{"short refresh", Config{AccessSecret: testAccessSecret, RefreshSecret: strings.Repeat("x", 31)}},
		{"both empty", Config{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("New() error = %v, want *ConfigError", err)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	iss := newTestIssuer(t)
	if iss.AccessTTL() != 15*time.Minute {
		t.Errorf("AccessTTL() = %v, want 15m", iss.AccessTTL())
	}
	if iss.RefreshTTL() != 7*24*time.Hour {
		t.Errorf("RefreshTTL() = %v, want 168h", iss.RefreshTTL())
	}
}

func TestIssueAndVerify_RoundTrip(t *testing.T) {
	iss := newTestIssuer(t)
	sub := Subject{PrincipalID: "p1", Role: "admin", Permissions: []string{"logs.read"}}

	access, accessExp, err := iss.IssueAccess(sub)
	if err != nil {
		t.Fatalf("IssueAccess() error = %v", err)
	}
	refresh, refreshExp, err := iss.IssueRefresh(sub)
	if err != nil {
		t.Fatalf("IssueRefresh() error = %v", err)
	}
	if access == refresh {
		t.Fatal("access and refresh tokens must differ")
	}
	if !refreshExp.After(accessExp) {
		t.Error("refresh token should outlive access token")
	}

	claims, err := iss.VerifyAccess(access)
	if err != nil {
		t.Fatalf("VerifyAccess() error = %v", err)
	}
	if claims.PrincipalID != "p1" || claims.Role != "admin" {
		t.Errorf("claims = %+v", claims)
	}
	if len(claims.Permissions) != 1 || claims.Permissions[0] != "logs.read" {
		t.Errorf("Permissions = %v", claims.Permissions)
	}

	if _, err := iss.VerifyRefresh(refresh); err != nil {
		t.Fatalf("VerifyRefresh() error = %v", err)
	}
}

func TestIssue_UniquePerCall(t *testing.T) {
	iss := newTestIssuer(t)
	fixed := time.Now()
	iss.SetClock(func() time.Time { return fixed })

	a, _, _ := iss.IssueAccess(Subject{PrincipalID: "p1", Role: "admin"})
	b, _, _ := iss.IssueAccess(Subject{PrincipalID: "p1", Role: "admin"})
	if a == b {
		t.Error("two access tokens issued in the same instant should differ")
	}
}

func TestVerify_KindsAreNotInterchangeable(t *testing.T) {
	iss := newTestIssuer(t)
	sub := Subject{PrincipalID: "p1", Role: "admin"}
	access, _, _ := iss.IssueAccess(sub)
	refresh, _, _ := iss.IssueRefresh(sub)

	if _, err := iss.VerifyRefresh(access); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("VerifyRefresh(access) error = %v, want ErrInvalidToken", err)
	}
	if _, err := iss.VerifyAccess(refresh); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("VerifyAccess(refresh) error = %v, want ErrInvalidToken", err)
	}
}

func TestVerify_Expired(t *testing.T) {
	iss := newTestIssuer(t)
	now := time.Now()
	iss.SetClock(func() time.Time { return now })
	access, _, _ := iss.IssueAccess(Subject{PrincipalID: "p1", Role: "admin"})

	iss.SetClock(func() time.Time { return now.Add(16 * time.Minute) })
	if _, err := iss.VerifyAccess(access); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("VerifyAccess(expired) error = %v, want ErrInvalidToken", err)
	}
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	iss := newTestIssuer(t)
	claims := Claims{
		PrincipalID: "p1",
		Role:        "owner",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := iss.VerifyAccess(none); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("alg=none accepted: %v", err)
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testAccessSecret))
	if err != nil {
		t.Fatalf("sign HS512: %v", err)
	}
	if _, err := iss.VerifyAccess(hs512); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("HS512 accepted: %v", err)
	}
}

func TestVerify_Malformed(t *testing.T) {
	iss := newTestIssuer(t)
	for _, in := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := iss.VerifyAccess(in); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("VerifyAccess(%q) error = %v, want ErrInvalidToken", in, err)
		}
	}
}

func TestDigest_MatchesIndependentSHA256(t *testing.T) {
	token := "header.payload.signature"
	sum := sha256.Sum256([]byte(token))
	want := hex.EncodeToString(sum[:])

	if got := Digest(token); got != want {
		t.Errorf("Digest() = %q, want %q", got, want)
	}
	if Digest(token) != Digest(token) {
		t.Error("Digest() should be deterministic")
	}
	if Digest(token) == Digest(token+"x") {
		t.Error("different tokens should have different digests")
	}
}
