package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"clientdesk/pkg/logx"
)

// Job describes one registration. Run must respect ctx cancellation.
type Job struct {
	Name    string
	Spec    string
	Enabled bool
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Register adds a job to the registry. Names are unique; registering the
// same name twice returns ErrDuplicateJob. Disabled jobs are kept in the
// registry (so Status() still lists them) but never armed with cron.
//
// Registration is allowed both before and after Start(); jobs added to a
// running service are armed immediately.
func (s *Service) Register(j Job) error {
	name := strings.TrimSpace(j.Name)
	if name == "" {
		return errors.New("job name required")
	}
	if j.Run == nil {
		return fmt.Errorf("job %q: run func required", name)
	}
	spec, err := NormalizeSpec(j.Spec)
	if err != nil {
		return fmt.Errorf("job %q: %w", name, err)
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("job %q: invalid schedule %q: %w", name, j.Spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.defs {
		if d.name == name {
			return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
		}
	}
	d := &jobDef{
		name:    name,
		spec:    spec,
		enabled: j.Enabled,
		timeout: s.resolveTimeout(j.Timeout),
		run:     j.Run,
		state:   &runState{},
	}
	s.defs = append(s.defs, d)
	if s.c != nil {
		if err := s.addCronLocked(d); err != nil {
			s.log.Error("job register failed", logx.String("job", name), logx.String("spec", spec), logx.Err(err))
			return err
		}
	}
	next := s.previewNextRunsLocked(spec, 3)
	fields := []logx.Field{logx.String("job", name), logx.String("spec", spec), logx.Bool("enabled", d.enabled), logx.Duration("timeout", d.timeout)}
	if next != "" {
		fields = append(fields, logx.String("next", next))
	}
	s.log.Debug("job registered", fields...)
	return nil
}

// addCronLocked arms an enabled definition with the running cron instance.
// Call with s.mu held and s.c non-nil.
func (s *Service) addCronLocked(d *jobDef) error {
	if !d.enabled {
		return nil
	}
	eid, err := s.c.AddFunc(d.spec, func() {
		// Overlap guard: a tick that lands while the previous run is still
		// going is skipped outright, never queued for later.
		d.state.mu.Lock()
		running := d.state.running
		d.state.mu.Unlock()
		if running {
			s.log.Debug("job tick skipped (previous run still running)", logx.String("job", d.name))
			return
		}
		s.enqueue(task{name: d.name, timeout: d.timeout, run: d.run, state: d.state})
	})
	if err == nil {
		d.entryID = eid
	}
	return err
}

// TriggerNow runs the named job synchronously on the caller's goroutine,
// bypassing its cron schedule. The overlap guard still applies: if the job
// is mid-run, ErrJobRunning is returned and nothing executes. A manual
// trigger does not count as a scheduled run and leaves LastRunAt alone.
func (s *Service) TriggerNow(ctx context.Context, name string) error {
	s.mu.Lock()
	var d *jobDef
	for _, cand := range s.defs {
		if cand.name == name {
			d = cand
			break
		}
	}
	timeout := time.Duration(0)
	if d != nil {
		timeout = d.timeout
	}
	s.mu.Unlock()
	if d == nil {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	if !d.state.tryAcquire() {
		return fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	defer d.state.release()

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	s.log.Info("manual trigger", logx.String("job", name))
	err := runGuarded(runCtx, d.run)
	if err != nil {
		s.log.Warn("manual run failed", logx.String("job", name), logx.Err(err), logx.Duration("dur", time.Since(start)))
		return err
	}
	s.log.Info("manual run completed", logx.String("job", name), logx.Duration("dur", time.Since(start)))
	return nil
}

// NormalizeSpec accepts the schedule formats jobs may be configured with
// and rewrites them into a form the cron parser understands:
//
//   - Cron: "*/5 * * * *", "0 9 * * 1-5", "30 */10 * * * *" (with seconds)
//   - Descriptors: "@hourly", "@daily", "@every 55m"
//   - Bare durations: "55m", "2h30m" (rewritten to "@every ...")
func NormalizeSpec(spec string) (string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", errors.New("schedule required")
	}
	if strings.HasPrefix(spec, "@") || strings.ContainsAny(spec, " \t") {
		return spec, nil
	}
	d, err := time.ParseDuration(spec)
	if err != nil {
		return "", fmt.Errorf("schedule %q is neither a cron spec nor a duration", spec)
	}
	if d <= 0 {
		return "", fmt.Errorf("schedule interval must be positive, got %q", spec)
	}
	return "@every " + d.String(), nil
}

// previewNextRunsLocked returns a short, human-friendly list of upcoming run
// times for the given cron spec. Call with s.mu held.
func (s *Service) previewNextRunsLocked(spec string, n int) string {
	if !s.log.Enabled(logx.LevelDebug) {
		return ""
	}
	if n <= 0 {
		return ""
	}
	loc := s.loc
	if loc == nil {
		loc = s.loadLocationLocked()
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return ""
	}
	t := time.Now().In(loc)
	var b strings.Builder
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
