// Package orchestrator composes the background jobs of the scheduling core
// and owns the scheduler service they run on. Each named job wraps one
// domain pass; job errors are logged and surfaced through the run history,
// never across job boundaries.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"clientdesk/internal/config"
	"clientdesk/internal/escalate"
	"clientdesk/internal/mailer"
	"clientdesk/internal/reminder"
	"clientdesk/internal/scheduler"
	"clientdesk/internal/store"
	"clientdesk/internal/sweep"
	"clientdesk/pkg/logx"
)

// Job names as they appear in the config jobs section and in Status().
const (
	JobInvoiceReminders  = "invoice-reminders"
	JobOverdueInvoices   = "overdue-invoices"
	JobContractReminders = "contract-reminders"
	JobWelcomeSequence   = "welcome-sequence"
	JobApprovalReminders = "approval-reminders"
	JobTaskEscalation    = "task-escalation"
	JobRetentionSweep    = "retention-sweep"
)

// defaultSchedules apply when the config jobs section omits an entry. Jobs
// without a config entry stay disabled but are still registered so Status()
// lists them.
var defaultSchedules = map[string]string{
	JobInvoiceReminders:  "@every 10m",
	JobOverdueInvoices:   "@hourly",
	JobContractReminders: "@every 30m",
	JobWelcomeSequence:   "@every 30m",
	JobApprovalReminders: "@hourly",
	JobTaskEscalation:    "@hourly",
	JobRetentionSweep:    "@daily",
}

// jobOrder keeps registration (and Status listing) deterministic.
var jobOrder = []string{
	JobInvoiceReminders,
	JobOverdueInvoices,
	JobContractReminders,
	JobWelcomeSequence,
	JobApprovalReminders,
	JobTaskEscalation,
	JobRetentionSweep,
}

// Orchestrator wires the domain passes onto the scheduler service.
type Orchestrator struct {
	log   logx.Logger
	st    *store.Store
	sched *scheduler.Service

	engine    *reminder.Engine
	approvals *reminder.ApprovalProcessor
	sweeper   *sweep.Sweeper
	tiers     []escalate.Tier

	invoices  *reminder.InvoiceSource
	contracts *reminder.ContractSource
	welcome   *reminder.WelcomeSource
}

func New(cfg *config.Config, st *store.Store, sender mailer.Sender, log logx.Logger) (*Orchestrator, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	schedCfg, err := schedulerConfig(cfg)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		log:   log.With(logx.String("comp", "orchestrator")),
		st:    st,
		sched: scheduler.New(schedCfg, log.With(logx.String("comp", "scheduler"))),

		engine: reminder.NewEngine(st, sender, log),
		approvals: reminder.NewApprovalProcessor(st, sender, reminder.ApprovalConfig{
			IntervalDays:    cfg.Reminders.ApprovalIntervalDays,
			StallDays:       cfg.Reminders.ApprovalStallDays,
			EscalationEmail: cfg.Reminders.EscalationEmail,
		}, log),
		sweeper: sweep.New(st, sweep.Config{
			EventHorizonDays:    cfg.Retention.EventHorizonDays,
			SoftDeleteGraceDays: cfg.Retention.SoftDeleteGraceDays,
		}, log),
		tiers: taskTiers(cfg.Reminders.TaskPriorityTiers),

		invoices:  &reminder.InvoiceSource{St: st},
		contracts: &reminder.ContractSource{St: st},
		welcome:   &reminder.WelcomeSource{St: st},
	}

	if err := o.registerJobs(cfg); err != nil {
		return nil, err
	}
	return o, nil
}

func schedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	defTimeout, err := config.ParseDurationOrDefault("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout, 5*time.Minute)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Enabled:        cfg.Scheduler.Enabled,
		Workers:        cfg.Scheduler.Workers,
		DefaultTimeout: defTimeout,
		HistorySize:    cfg.Scheduler.HistorySize,
		Timezone:       cfg.Scheduler.Timezone,
	}, nil
}

func taskTiers(tc []config.TierConfig) []escalate.Tier {
	out := make([]escalate.Tier, 0, len(tc))
	for _, t := range tc {
		out = append(out, escalate.Tier{MinDays: t.MinDays, Label: t.Label})
	}
	return out
}

func (o *Orchestrator) registerJobs(cfg *config.Config) error {
	runs := map[string]func(ctx context.Context) error{
		JobInvoiceReminders:  o.runInvoiceReminders,
		JobOverdueInvoices:   o.runOverdueInvoices,
		JobContractReminders: o.runContractReminders,
		JobWelcomeSequence:   o.runWelcomeSequence,
		JobApprovalReminders: o.runApprovalReminders,
		JobTaskEscalation:    o.runTaskEscalation,
		JobRetentionSweep:    o.runRetentionSweep,
	}

	for _, name := range jobOrder {
		spec := defaultSchedules[name]
		enabled := false
		var timeout time.Duration
		if jc, ok := cfg.Jobs[name]; ok {
			enabled = jc.Enabled
			if jc.Schedule != "" {
				spec = jc.Schedule
			}
			t, err := config.ParseDurationField("jobs."+name+".timeout", jc.Timeout)
			if err != nil {
				return err
			}
			timeout = t
		}
		err := o.sched.Register(scheduler.Job{
			Name:    name,
			Spec:    spec,
			Enabled: enabled,
			Timeout: timeout,
			Run:     runs[name],
		})
		if err != nil {
			return fmt.Errorf("register job %s: %w", name, err)
		}
	}

	// Config entries pointing at job names nobody implements are almost
	// always typos; call them out instead of quietly sitting idle.
	for name := range cfg.Jobs {
		if _, ok := runs[name]; !ok {
			o.log.Warn("config names an unknown job", logx.String("job", name))
		}
	}
	return nil
}

// Start arms the scheduler. A disabled scheduler section means the jobs stay
// registered but dormant, which is how maintenance hosts run.
func (o *Orchestrator) Start(ctx context.Context) {
	if !o.sched.Enabled() {
		o.log.Warn("scheduler disabled; jobs will not fire")
		return
	}
	o.sched.Start(ctx)
}

func (o *Orchestrator) Stop(ctx context.Context) {
	o.sched.Stop(ctx)
}

// Apply pushes reloaded scheduler settings down to the running service.
func (o *Orchestrator) Apply(cfg *config.Config) {
	schedCfg, err := schedulerConfig(cfg)
	if err != nil {
		o.log.Warn("reload rejected", logx.Err(err))
		return
	}
	o.sched.Apply(schedCfg)
}

// Status exposes the scheduler snapshot: per-job armed/running/lastRunAt
// plus next/prev fire times and the recent run history.
func (o *Orchestrator) Status() scheduler.Snapshot {
	return o.sched.Status()
}

// TriggerNow fires one job immediately on the calling goroutine. The
// scheduler's overlap guard still applies.
func (o *Orchestrator) TriggerNow(ctx context.Context, name string) error {
	return o.sched.TriggerNow(ctx, name)
}
