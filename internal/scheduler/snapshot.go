package scheduler

import (
	"time"
)

// Status returns a point-in-time view of the registry, the worker pool and
// recent run history.
func (s *Service) Status() Snapshot {
	s.mu.Lock()
	running := s.stopCh != nil && s.stopDone == nil
	tz := s.cfg.Timezone
	workers := s.cfg.Workers
	defs := make([]*jobDef, len(s.defs))
	copy(defs, s.defs)
	c := s.c
	loc := s.loc
	q := s.queue
	s.mu.Unlock()

	if workers <= 0 {
		workers = 2
	}
	if loc == nil {
		loc = time.Local
	}
	if tz == "" {
		tz = loc.String()
	}

	jobs := make([]JobStatus, 0, len(defs))
	for _, d := range defs {
		jobRunning, lastRun := d.state.snapshot()
		it := JobStatus{
			Name:      d.name,
			Spec:      d.spec,
			Enabled:   d.enabled,
			Armed:     c != nil && d.entryID != 0,
			Running:   jobRunning,
			LastRunAt: lastRun,
		}
		if it.Armed {
			e := c.Entry(d.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		jobs = append(jobs, it)
	}

	ql := 0
	if q != nil {
		ql = len(q)
	}

	s.hmu.Lock()
	hist := make([]HistoryItem, len(s.history))
	copy(hist, s.history)
	s.hmu.Unlock()

	return Snapshot{
		Running:  running,
		Timezone: tz,
		Workers:  workers,
		QueueLen: ql,
		Jobs:     jobs,
		History:  hist,
	}
}
