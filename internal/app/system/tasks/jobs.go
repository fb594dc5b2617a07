// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"github.com/dalemusser/stratagate/internal/app/system/indexes"
	"github.com/dalemusser/stratagate/internal/app/system/metrics"
	"go.uber.org/zap"
)

// Job names.
const (
	SessionSweep      = "session-sweep"
	LoginAttemptSweep = "login-attempt-sweep"
)

// ExpiredSessionDeleter is implemented by *sessions.Store.
type ExpiredSessionDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// StaleAttemptDeleter is implemented by *loginattempts.Store and
// *bruteforce.MemoryStore.
type StaleAttemptDeleter interface {
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionSweepJob removes sessions whose expiry has passed. Reads already
// ignore them; the sweep only reclaims storage between TTL monitor passes.
func SessionSweepJob(store ExpiredSessionDeleter, interval time.Duration, logger *zap.Logger, m *metrics.Metrics) Job {
	return Job{
		Name:     SessionSweep,
		Interval: interval,
		Run: func(ctx context.Context) error {
			deleted, err := store.DeleteExpired(ctx)
			if err != nil {
				return err
			}
			m.SweepDeleted(indexes.SessionsCollection, deleted)
			if deleted > 0 {
				logger.Info("swept expired sessions",
					zap.Int64("deleted", deleted))
			}
			return nil
		},
	}
}

// LoginAttemptSweepJob removes failure counters untouched for longer than
// retention, whatever their block state.
func LoginAttemptSweepJob(store StaleAttemptDeleter, interval, retention time.Duration, now func() time.Time, logger *zap.Logger, m *metrics.Metrics) Job {
	if retention <= 0 {
		retention = indexes.LoginAttemptTTL
	}
	if now == nil {
		now = time.Now
	}
	return Job{
		Name:     LoginAttemptSweep,
		Interval: interval,
		Run: func(ctx context.Context) error {
			cutoff := now().Add(-retention)
			deleted, err := store.DeleteStale(ctx, cutoff)
			if err != nil {
				return err
			}
			m.SweepDeleted(indexes.LoginAttemptsCollection, deleted)
			if deleted > 0 {
				logger.Info("swept stale login attempts",
					zap.Int64("deleted", deleted),
					zap.Time("cutoff", cutoff))
			}
			return nil
		},
	}
}
