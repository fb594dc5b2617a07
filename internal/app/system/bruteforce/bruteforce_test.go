package bruteforce

import (
	"context"
	"testing"
	"time"
)

func TestLockoutFor(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 0},
		{1, 0},
		{2, 0},
		{3, time.Minute},
		{4, time.Minute},
		{5, 5 * time.Minute},
		{6, 5 * time.Minute},
		{7, 15 * time.Minute},
		{9, 15 * time.Minute},
		{10, 60 * time.Minute},
		{25, 60 * time.Minute},
	}
	for _, tt := range tests {
		if got := LockoutFor(tt.attempts); got != tt.want {
			t.Errorf("LockoutFor(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestSteps(t *testing.T) {
	steps := Steps()
	if len(steps) != 4 {
		t.Fatalf("len(Steps()) = %d, want 4", len(steps))
	}
	for i, st := range steps {
		if got := LockoutFor(st.Attempts); got != st.Lockout {
			t.Errorf("LockoutFor(%d) = %v, step says %v", st.Attempts, got, st.Lockout)
		}
		if i > 0 && st.Attempts >= steps[i-1].Attempts {
			t.Errorf("steps not most restrictive first at %d", i)
		}
	}

	steps[0].Lockout = 0
	if LockoutFor(10) != time.Hour {
		t.Error("Steps() must return a copy")
	}
}

func TestAttemptsLeft(t *testing.T) {
	tests := []struct {
		attempts int
		want     int
	}{
		{0, 3},
		{1, 2},
		{2, 1},
		{3, 2},
		{4, 1},
		{5, 2},
		{7, 3},
		{9, 1},
		{10, 1},
		{15, 1},
	}
	for _, tt := range tests {
		if got := AttemptsLeft(tt.attempts); got != tt.want {
			t.Errorf("AttemptsLeft(%d) = %d, want %d", tt.attempts, got, tt.want)
		}
	}
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(time.Minute)
	past := now.Add(-time.Second)

	tests := []struct {
		name string
		rec  *Record
		want StateKind
	}{
		{"nil record", nil, Clear},
		{"zero attempts", &Record{}, Clear},
		{"some failures", &Record{Attempts: 2}, Warned},
		{"lockout active", &Record{Attempts: 3, BlockedUntil: &future}, Locked},
		{"lockout elapsed", &Record{Attempts: 3, BlockedUntil: &past}, Warned},
		{"lockout ends now", &Record{Attempts: 3, BlockedUntil: &now}, Warned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.rec, now).Kind; got != tt.want {
				t.Errorf("Evaluate().Kind = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEscalate_ReplacesEarlierLockout(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	far := now.Add(2 * time.Hour)
	rec := Record{Attempts: 4, BlockedUntil: &far}

	got := Escalate(rec, now)
	if got.Attempts != 5 {
		t.Fatalf("Attempts = %d, want 5", got.Attempts)
	}
	if got.BlockedUntil == nil || !got.BlockedUntil.Equal(now.Add(5*time.Minute)) {
		t.Errorf("BlockedUntil = %v, want now+5m", got.BlockedUntil)
	}
	if !got.LastAttempt.Equal(now) {
		t.Errorf("LastAttempt = %v, want %v", got.LastAttempt, now)
	}
	if rec.Attempts != 4 {
		t.Error("Escalate must not modify its input")
	}
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestGuard() (*Guard, *MemoryStore, *clock) {
	c := &clock{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	g := New(store)
	g.SetClock(c.now)
	return g, store, c
}

func TestGuard_CheckWithoutRecord(t *testing.T) {
	g, _, _ := newTestGuard()
	st, err := g.Check(context.Background(), "10.0.0.1", TypeIP)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if st.Blocked || st.AttemptsLeft != 3 {
		t.Errorf("Check() = %+v, want not blocked with 3 attempts left", st)
	}
}

func TestGuard_LocksAfterThreeFailures(t *testing.T) {
	ctx := context.Background()
	g, _, c := newTestGuard()

	for i := 1; i <= 2; i++ {
		st, err := g.RecordFailure(ctx, "10.0.0.1", TypeIP)
		if err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
		if st.Blocked {
			t.Fatalf("failure %d should not lock", i)
		}
	}

	st, _ := g.RecordFailure(ctx, "10.0.0.1", TypeIP)
	if !st.Blocked {
		t.Fatal("third failure should lock")
	}
	if st.MinutesLeft != 1 {
		t.Errorf("MinutesLeft = %d, want 1", st.MinutesLeft)
	}

	st, _ = g.Check(ctx, "10.0.0.1", TypeIP)
	if !st.Blocked || st.Attempts != 3 {
		t.Errorf("Check() = %+v, want blocked with 3 attempts", st)
	}

	c.advance(61 * time.Second)
	st, _ = g.Check(ctx, "10.0.0.1", TypeIP)
	if st.Blocked {
		t.Error("lockout should have elapsed")
	}
	if st.AttemptsLeft != 2 {
		t.Errorf("AttemptsLeft = %d, want 2", st.AttemptsLeft)
	}
}

func TestGuard_EscalatesThroughTable(t *testing.T) {
	ctx := context.Background()
	g, _, c := newTestGuard()

	want := map[int]int{3: 1, 5: 5, 7: 15, 10: 60, 11: 60}
	for i := 1; i <= 11; i++ {
		st, err := g.RecordFailure(ctx, "42", TypeUser)
		if err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
		if minutes, ok := want[i]; ok {
			if !st.Blocked || st.MinutesLeft != minutes {
				t.Errorf("after %d failures: %+v, want blocked %d minutes", i, st, minutes)
			}
		}
		c.advance(time.Second)
	}
}

func TestGuard_MinutesLeftRoundsUp(t *testing.T) {
	ctx := context.Background()
	g, _, c := newTestGuard()
	for i := 0; i < 5; i++ {
		_, _ = g.RecordFailure(ctx, "1.1.1.1", TypeIP)
	}
	c.advance(4*time.Minute + 30*time.Second)
	st, _ := g.Check(ctx, "1.1.1.1", TypeIP)
	if st.MinutesLeft != 1 {
		t.Errorf("MinutesLeft = %d, want 1", st.MinutesLeft)
	}
}

func TestGuard_TypesAreIndependent(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newTestGuard()
	for i := 0; i < 3; i++ {
		_, _ = g.RecordFailure(ctx, "abc", TypeIP)
	}
	ip, _ := g.Check(ctx, "abc", TypeIP)
	user, _ := g.Check(ctx, "abc", TypeUser)
	if !ip.Blocked {
		t.Error("ip counter should be blocked")
	}
	if user.Blocked || user.AttemptsLeft != 3 {
		t.Errorf("user counter = %+v, want untouched", user)
	}
}

func TestGuard_ResetDeletesRecord(t *testing.T) {
	ctx := context.Background()
	g, store, _ := newTestGuard()
	_, _ = g.RecordFailure(ctx, "10.0.0.2", TypeIP)
	_, _ = g.RecordFailure(ctx, "10.0.0.2", TypeIP)

	if err := g.Reset(ctx, "10.0.0.2", TypeIP); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	rec, _ := store.Get(ctx, "10.0.0.2", TypeIP)
	if rec != nil {
		t.Errorf("record = %+v, want nil after reset", rec)
	}
}

func TestMemoryStore_DeleteStale(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()
	_, _ = store.Increment(ctx, "old", TypeIP, now.Add(-25*time.Hour))
	_, _ = store.Increment(ctx, "new", TypeIP, now)

	n, err := store.DeleteStale(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteStale() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteStale() = %d, want 1", n)
	}
	if rec, _ := store.Get(ctx, "new", TypeIP); rec == nil {
		t.Error("fresh record should survive")
	}
}
