package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"clientdesk/pkg/logx"
)

func (s *Service) enqueue(t task) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		s.log.Debug("scheduler not running; dropping task", logx.String("job", t.name))
		return
	}
	select {
	case q <- t:
		// ok
	default:
		s.log.Warn("scheduler queue full; dropping task", logx.String("job", t.name), logx.Int("queue_len", len(q)), logx.Int("queue_cap", cap(q)))
	}
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan task) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			s.execOne(ctx, t)
		}
	}
}

func (s *Service) execOne(ctx context.Context, t task) {
	start := time.Now()

	// Mark running for overlap control (state is shared with cron callbacks
	// and manual triggers).
	if !t.state.tryAcquire() {
		// Lost the race against a manual trigger between the cron callback's
		// check and this worker picking the task up.
		s.log.Debug("task dropped (job already running)", logx.String("job", t.name))
		return
	}
	defer t.state.release()

	// Copy scheduler config to avoid data races with Apply().
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	runCtx := ctx
	var cancel context.CancelFunc
	if t.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, t.timeout)
	}
	err := runGuarded(runCtx, t.run)
	if cancel != nil {
		cancel()
	}

	// A scheduled run counts even when it fails; a later successful run is
	// what distinguishes them in the history, not the timestamp.
	t.state.markRan(start)

	dur := time.Since(start)
	item := HistoryItem{
		Name:     t.name,
		Started:  start,
		Duration: dur,
	}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("task failed", logx.String("job", t.name), logx.Err(err), logx.Duration("dur", dur))
	} else {
		// Avoid noisy logs for very frequent tasks: only elevate to INFO when
		// the run took noticeable time.
		if dur >= 750*time.Millisecond {
			s.log.Info("task completed", logx.String("job", t.name), logx.Duration("dur", dur))
		} else {
			s.log.Debug("task completed", logx.String("job", t.name), logx.Duration("dur", dur))
		}
	}

	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, item)
	historySize := cfg.HistorySize
	if historySize <= 0 {
		historySize = 200
	}
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
}

// runGuarded converts a panicking job into an error so one bad job cannot
// take a worker down.
func runGuarded(ctx context.Context, run func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return run(ctx)
}
