// Package telegram verifies login assertions produced by the Telegram login widget.
//
// The widget hands the browser a set of account fields plus a hash. The hash is
// an HMAC-SHA256 over the other fields, keyed with SHA256(bot token), so only a
// party holding the bot token could have produced it.
package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxAge is how old an assertion may be before it is rejected.
const DefaultMaxAge = 24 * time.Hour

// Assertion is the payload posted by the login widget.
type Assertion struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
	AuthDate  int64  `json:"auth_date"`
	Hash      string `json:"hash"`
}

// MissingFields returns the names of required fields that are absent.
func (a Assertion) MissingFields() []string {
	var missing []string
	if a.ID == 0 {
		missing = append(missing, "id")
	}
	if a.AuthDate == 0 {
		missing = append(missing, "auth_date")
	}
	if strings.TrimSpace(a.Hash) == "" {
		missing = append(missing, "hash")
	}
	return missing
}

// Reason explains a verification outcome.
type Reason string

const (
	ReasonOK           Reason = "ok"
	ReasonBadSignature Reason = "bad_signature"
	ReasonStale        Reason = "stale"
)

// Result is the outcome of Verify.
type Result struct {
	Valid  bool
	Reason Reason
}

// Verifier checks assertions against a bot token.
type Verifier struct {
	secretKey []byte
	maxAge    time.Duration
}

// NewVerifier derives the widget secret key from botToken. A non-positive
// maxAge selects DefaultMaxAge.
func NewVerifier(botToken string, maxAge time.Duration) *Verifier {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	sum := sha256.Sum256([]byte(botToken))
	return &Verifier{secretKey: sum[:], maxAge: maxAge}
}

// Verify checks the signature and then the freshness of a.
// A stale assertion is rejected even when its signature is valid.
func (v *Verifier) Verify(a Assertion, now time.Time) Result {
	expected := Sign(v.secretKey, CheckString(a))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(a.Hash))) {
		return Result{Valid: false, Reason: ReasonBadSignature}
	}
	// auth_date has whole-second resolution; compare in seconds.
	if now.Unix()-a.AuthDate > int64(v.maxAge/time.Second) {
		return Result{Valid: false, Reason: ReasonStale}
	}
	return Result{Valid: true, Reason: ReasonOK}
}

// CheckString builds the data-check-string: every present field except hash,
// as key=value, sorted by key and joined with newlines.
func CheckString(a Assertion) string {
	fields := map[string]string{
		"id":        strconv.FormatInt(a.ID, 10),
		"auth_date": strconv.FormatInt(a.AuthDate, 10),
	}
	if a.FirstName != "" {
		fields["first_name"] = a.FirstName
	}
	if a.LastName != "" {
		fields["last_name"] = a.LastName
	}
	if a.Username != "" {
		fields["username"] = a.Username
	}
	if a.PhotoURL != "" {
		fields["photo_url"] = a.PhotoURL
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + "=" + fields[k]
	}
	return strings.Join(lines, "\n")
}

// Sign returns the lowercase hex HMAC-SHA256 of checkString under secretKey.
func Sign(secretKey []byte, checkString string) string {
	mac := hmac.New(sha256.New, secretKey)
	mac.Write([]byte(checkString))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignAssertion fills in a.Hash as the widget would for botToken.
// Used by tests and the local development login helper.
func SignAssertion(a Assertion, botToken string) Assertion {
	sum := sha256.Sum256([]byte(botToken))
	a.Hash = Sign(sum[:], CheckString(a))
	return a
}
