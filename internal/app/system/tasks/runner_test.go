package tasks_test

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dalemusser/stratagate/internal/app/system/tasks"
	"go.uber.org/zap"
)

func countingJob(name string, interval time.Duration, n *atomic.Int32) tasks.Job {
	return tasks.Job{
		Name:     name,
		Interval: interval,
		Run: func(context.Context) error {
			n.Add(1)
			return nil
		},
	}
}

func TestRunner_Register(t *testing.T) {
	runner := tasks.New(zap.NewNop(), nil)
	var n atomic.Int32

	runner.Register(countingJob(tasks.SessionSweep, time.Hour, &n))
	runner.Register(countingJob("disabled", 0, &n))
	runner.Register(countingJob(tasks.LoginAttemptSweep, time.Hour, &n))

	want := []string{tasks.SessionSweep, tasks.LoginAttemptSweep}
	if got := runner.Jobs(); !reflect.DeepEqual(got, want) {
		t.Errorf("Jobs() = %v, want %v", got, want)
	}
}

func TestRunner_StartAndStop(t *testing.T) {
	runner := tasks.New(zap.NewNop(), nil)

	var sessions, attempts atomic.Int32
	runner.Register(countingJob(tasks.SessionSweep, 50*time.Millisecond, &sessions))
	runner.Register(countingJob(tasks.LoginAttemptSweep, 50*time.Millisecond, &attempts))

	runner.Start()
	time.Sleep(150 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := runner.Stop(ctx); err != nil {
		t.Errorf("Stop() returned error: %v", err)
	}

	// Jobs run immediately on start, then on every tick.
	if sessions.Load() < 1 || attempts.Load() < 1 {
		t.Errorf("runs = %d/%d, want both at least 1", sessions.Load(), attempts.Load())
	}
}

func TestRunner_StopWithTimeout(t *testing.T) {
	runner := tasks.New(zap.NewNop(), nil)

	inSleep := make(chan struct{})
	runner.Register(tasks.Job{
		Name:     "stuck-sweep",
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			close(inSleep)
			// Ignores ctx so that Stop has to give up.
			time.Sleep(5 * time.Second)
			return nil
		},
	})

	runner.Start()
	<-inSleep
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := runner.Stop(ctx); err != context.DeadlineExceeded {
		t.Errorf("expected DeadlineExceeded error, got: %v", err)
	}
}

func TestRunner_JobContextCancellation(t *testing.T) {
	runner := tasks.New(zap.NewNop(), nil)

	cancelled := make(chan struct{})
	runner.Register(tasks.Job{
		Name:     "waiting-sweep",
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			close(cancelled)
			return ctx.Err()
		},
	})

	runner.Start()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := runner.Stop(ctx); err != nil {
		t.Errorf("Stop() returned error: %v", err)
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Error("job context was not cancelled")
	}
}

func TestRunner_RunOnce(t *testing.T) {
	runner := tasks.New(zap.NewNop(), nil)

	var n atomic.Int32
	runner.Register(countingJob(tasks.SessionSweep, time.Hour, &n))

	// The runner is not started; RunOnce runs the job directly.
	if err := runner.RunOnce(context.Background(), tasks.SessionSweep); err != nil {
		t.Errorf("RunOnce() returned error: %v", err)
	}
	if n.Load() != 1 {
		t.Errorf("expected job to run once, ran %d times", n.Load())
	}

	if err := runner.RunOnce(context.Background(), "nonexistent-job"); !errors.Is(err, tasks.ErrJobNotFound) {
		t.Errorf("RunOnce() for nonexistent job = %v, want ErrJobNotFound", err)
	}
}
