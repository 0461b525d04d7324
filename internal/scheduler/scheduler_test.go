package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"clientdesk/pkg/logx"
)

func newTestService() *Service {
	return New(Config{Enabled: true, Workers: 1}, logx.Nop())
}

func noopJob(context.Context) error { return nil }

func TestNormalizeSpec(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"five field cron", "*/5 * * * *", "*/5 * * * *", false},
		{"six field cron", "30 */10 * * * *", "30 */10 * * * *", false},
		{"descriptor", "@hourly", "@hourly", false},
		{"every descriptor", "@every 55m", "@every 55m", false},
		{"bare duration", "55m", "@every 55m0s", false},
		{"compound duration", "2h30m", "@every 2h30m0s", false},
		{"whitespace", "  @daily  ", "@daily", false},
		{"empty", "", "", true},
		{"garbage", "soonish", "", true},
		{"negative duration", "-5m", "", true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeSpec(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("NormalizeSpec(%q) = %q, want error", tc.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeSpec(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("NormalizeSpec(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	t.Parallel()

	s := newTestService()
	if err := s.Register(Job{Name: "sweep", Spec: "@daily", Run: noopJob}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := s.Register(Job{Name: "sweep", Spec: "@hourly", Run: noopJob})
	if !errors.Is(err, ErrDuplicateJob) {
		t.Fatalf("got %v, want ErrDuplicateJob", err)
	}
	// The original registration survives.
	st := s.Status()
	if len(st.Jobs) != 1 || st.Jobs[0].Spec != "@daily" {
		t.Fatalf("registry corrupted after duplicate: %+v", st.Jobs)
	}
}

func TestRegisterRejectsInvalid(t *testing.T) {
	t.Parallel()

	s := newTestService()
	if err := s.Register(Job{Name: "", Spec: "@daily", Run: noopJob}); err == nil {
		t.Fatal("empty name accepted")
	}
	if err := s.Register(Job{Name: "x", Spec: "@daily", Run: nil}); err == nil {
		t.Fatal("nil run func accepted")
	}
	if err := s.Register(Job{Name: "x", Spec: "not a cron", Run: noopJob}); err == nil {
		t.Fatal("bad spec accepted")
	}
}

func TestTriggerNow(t *testing.T) {
	t.Parallel()

	s := newTestService()
	ran := 0
	err := s.Register(Job{Name: "manual", Spec: "@daily", Enabled: true, Run: func(context.Context) error {
		ran++
		return nil
	}})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	// Manual fire works without the service started.
	if err := s.TriggerNow(context.Background(), "manual"); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if ran != 1 {
		t.Fatalf("job ran %d times, want 1", ran)
	}

	// Manual runs don't count as scheduled runs.
	st := s.Status()
	if !st.Jobs[0].LastRunAt.IsZero() {
		t.Fatalf("manual trigger stamped LastRunAt: %v", st.Jobs[0].LastRunAt)
	}

	if err := s.TriggerNow(context.Background(), "ghost"); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("got %v, want ErrUnknownJob", err)
	}
}

func TestTriggerNowOverlapGuard(t *testing.T) {
	t.Parallel()

	s := newTestService()
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	err := s.Register(Job{Name: "slow", Spec: "@daily", Run: func(context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.TriggerNow(context.Background(), "slow") }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}

	if err := s.TriggerNow(context.Background(), "slow"); !errors.Is(err, ErrJobRunning) {
		t.Fatalf("got %v, want ErrJobRunning", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first trigger: %v", err)
	}

	// Once the run finished the guard releases.
	if err := s.TriggerNow(context.Background(), "slow"); err != nil {
		t.Fatalf("second trigger after release: %v", err)
	}
}

func TestTriggerNowContainsPanic(t *testing.T) {
	t.Parallel()

	s := newTestService()
	err := s.Register(Job{Name: "boom", Spec: "@daily", Run: func(context.Context) error {
		panic("kaboom")
	}})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := s.TriggerNow(context.Background(), "boom"); err == nil {
		t.Fatal("panic swallowed; want error")
	}
}

func TestStatusListsDisabledJobs(t *testing.T) {
	t.Parallel()

	s := newTestService()
	if err := s.Register(Job{Name: "off", Spec: "@daily", Enabled: false, Run: noopJob}); err != nil {
		t.Fatalf("register: %v", err)
	}
	st := s.Status()
	if len(st.Jobs) != 1 {
		t.Fatalf("got %d jobs, want 1", len(st.Jobs))
	}
	j := st.Jobs[0]
	if j.Enabled || j.Armed || j.Running {
		t.Fatalf("disabled job should be inert: %+v", j)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Workers: 2}, logx.Nop())
	if err := s.Register(Job{Name: "tick", Spec: "@every 1h", Enabled: true, Run: noopJob}); err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx := context.Background()
	s.Start(ctx)
	// Second Start is a no-op while running.
	s.Start(ctx)

	st := s.Status()
	if !st.Running {
		t.Fatal("service not running after Start")
	}
	if !st.Jobs[0].Armed {
		t.Fatal("enabled job not armed after Start")
	}
	if st.Jobs[0].Next.IsZero() {
		t.Fatal("armed job has no next fire time")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	s.Stop(stopCtx)
	// Second Stop is a no-op.
	s.Stop(stopCtx)

	if s.Status().Running {
		t.Fatal("service still running after Stop")
	}
}

func TestStopLetsInFlightRunFinish(t *testing.T) {
	t.Parallel()

	s := newTestService()
	started := make(chan struct{})
	release := make(chan struct{})
	var cancelled atomic.Bool
	var finished atomic.Bool
	err := s.Register(Job{Name: "slow", Spec: "@every 1h", Enabled: true, Run: func(ctx context.Context) error {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
			cancelled.Store(true)
		}
		finished.Store(true)
		return nil
	}})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	s.Start(context.Background())

	// Hand the job to the pool directly instead of waiting out a cron tick.
	s.mu.Lock()
	d := s.defs[0]
	s.mu.Unlock()
	s.enqueue(task{name: d.name, run: d.run, state: d.state})
	<-started

	stopDone := make(chan struct{})
	go func() {
		s.Stop(context.Background())
		close(stopDone)
	}()

	// Stop must block on the in-flight run, not cancel it.
	select {
	case <-stopDone:
		t.Fatal("Stop returned while a run was still in flight")
	case <-time.After(100 * time.Millisecond):
	}
	if cancelled.Load() {
		t.Fatal("Stop cancelled the in-flight run's context")
	}

	close(release)
	select {
	case <-stopDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the run finished")
	}
	if !finished.Load() {
		t.Fatal("run did not finish")
	}
	if cancelled.Load() {
		t.Fatal("run context was cancelled during shutdown")
	}
}
