// Package bruteforce throttles repeated login failures with escalating lockouts.
//
// Counters are kept per identifier and per identifier type, so a blocked source
// address and a blocked account are tracked and reported independently.
package bruteforce

import (
	"time"
)

// Type is the kind of identifier a counter belongs to.
type Type string

const (
	TypeIP   Type = "ip"
	TypeUser Type = "user"
)

// Record is the persisted failure counter for one (identifier, type) pair.
type Record struct {
	Identifier   string
	Type         Type
	Attempts     int
	LastAttempt  time.Time
	BlockedUntil *time.Time
}

// Step maps a failure count to the lockout it triggers.
type Step struct {
	Attempts int
	Lockout  time.Duration
}

// Most restrictive first.
var thresholds = []Step{
	{10, 60 * time.Minute},
	{7, 15 * time.Minute},
	{5, 5 * time.Minute},
	{3, 1 * time.Minute},
}

// LockoutFor returns how long an identifier is locked after the given number of
// consecutive failures. Zero means no lockout.
func LockoutFor(attempts int) time.Duration {
	for _, t := range thresholds {
		if attempts >= t.Attempts {
			return t.Lockout
		}
	}
	return 0
}

// AttemptsLeft returns how many more failures are allowed before the next
// lockout step. Past the last step every failure locks again, so it is 1.
func AttemptsLeft(attempts int) int {
	next := 0
	for _, t := range thresholds {
		if attempts < t.Attempts {
			next = t.Attempts
		}
	}
	if next == 0 {
		return 1
	}
	return next - attempts
}

// Steps returns the lockout table, most restrictive first. Stores that compute
// BlockedUntil server side build their expression from it.
func Steps() []Step {
	return append([]Step(nil), thresholds...)
}

// BlockedUntil returns the end of the lockout earned by attempts failures at
// now, or nil when the count is below the first threshold.
func BlockedUntil(attempts int, now time.Time) *time.Time {
	d := LockoutFor(attempts)
	if d == 0 {
		return nil
	}
	until := now.Add(d)
	return &until
}

// StateKind tags the current throttling state of an identifier.
type StateKind int

const (
	Clear StateKind = iota
	Warned
	Locked
)

func (k StateKind) String() string {
	switch k {
	case Warned:
		return "warned"
	case Locked:
		return "locked"
	default:
		return "clear"
	}
}

// State is the evaluated throttling state.
// Attempts is set for Warned and Locked, Until only for Locked.
type State struct {
	Kind     StateKind
	Attempts int
	Until    time.Time
}

// Evaluate derives the state of rec at now. A nil record is Clear.
func Evaluate(rec *Record, now time.Time) State {
	if rec == nil {
		return State{Kind: Clear}
	}
	if rec.BlockedUntil != nil && rec.BlockedUntil.After(now) {
		return State{Kind: Locked, Attempts: rec.Attempts, Until: *rec.BlockedUntil}
	}
	if rec.Attempts > 0 {
		return State{Kind: Warned, Attempts: rec.Attempts}
	}
	return State{Kind: Clear}
}

// Escalate applies one failure at now and returns the new record. Any earlier
// lockout is replaced by the one the new count dictates.
func Escalate(rec Record, now time.Time) Record {
	rec.Attempts++
	rec.LastAttempt = now
	rec.BlockedUntil = BlockedUntil(rec.Attempts, now)
	return rec
}
