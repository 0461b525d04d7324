package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"clientdesk/pkg/logx"
)

var (
	// ErrDuplicateJob means a job name was registered twice. Fatal at
	// startup; job wiring is static.
	ErrDuplicateJob = errors.New("job already registered")
	// ErrUnknownJob means TriggerNow was asked for a name nobody registered.
	ErrUnknownJob = errors.New("unknown job")
	// ErrJobRunning means a manual trigger found the job mid-run.
	ErrJobRunning = errors.New("job is already running")
)

// Config controls the scheduler service.
type Config struct {
	Enabled        bool
	Workers        int
	DefaultTimeout time.Duration
	HistorySize    int
	Timezone       string // IANA TZ, e.g. "Europe/Berlin"
}

// runState is shared between cron fires, the worker pool and manual
// triggers of one job.
type runState struct {
	mu      sync.Mutex
	running bool
	lastRun time.Time
}

func (st *runState) tryAcquire() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.running {
		return false
	}
	st.running = true
	return true
}

func (st *runState) release() {
	st.mu.Lock()
	st.running = false
	st.mu.Unlock()
}

func (st *runState) markRan(at time.Time) {
	st.mu.Lock()
	st.lastRun = at
	st.mu.Unlock()
}

func (st *runState) snapshot() (running bool, lastRun time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.running, st.lastRun
}

type task struct {
	name    string
	timeout time.Duration
	run     func(ctx context.Context) error
	state   *runState
}

type jobDef struct {
	name    string
	spec    string
	enabled bool
	timeout time.Duration
	run     func(ctx context.Context) error
	entryID cron.EntryID
	state   *runState
}

// HistoryItem is one completed run, kept in a bounded ring for status.
type HistoryItem struct {
	Name     string
	Started  time.Time
	Duration time.Duration
	Error    string
}

// JobStatus is the per-job view returned by Status().
type JobStatus struct {
	Name      string
	Spec      string
	Enabled   bool
	Armed     bool // trigger currently registered with a running cron
	Running   bool
	LastRunAt time.Time
	Next      time.Time
	Prev      time.Time
}

// Snapshot is the service-level status view.
type Snapshot struct {
	Running  bool
	Timezone string
	Workers  int
	QueueLen int
	Jobs     []JobStatus
	History  []HistoryItem
}

// Service owns every trigger and the shared worker pool.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	defs   []*jobDef

	queue  chan task
	stopCh chan struct{}
	// stopDone is non-nil while a Stop() is in progress; closed when the
	// workers fully exit.
	stopDone chan struct{}

	hmu     sync.Mutex
	history []HistoryItem

	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup
}
