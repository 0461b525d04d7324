package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clientdesk/internal/escalate"
	"clientdesk/internal/mailer"
	"clientdesk/internal/store"
	"clientdesk/pkg/logx"
)

// ApprovalConfig drives the approval reminder/escalation pass.
type ApprovalConfig struct {
	// IntervalDays[n] is the elapsed-days threshold for the (n+1)-th
	// reminder. Must be ascending.
	IntervalDays []int
	// StallDays escalates to EscalationEmail once elapsed. 0 disables.
	StallDays       int
	EscalationEmail string
}

// ApprovalResult summarizes one approval pass.
type ApprovalResult struct {
	Pending   int
	Reminded  int
	Escalated int
	Failed    int
}

// ApprovalProcessor walks pending approval requests and sends interval
// reminders plus stall escalations. Unlike reminder records, approvals carry
// a counter instead of per-tier rows: the conditional bump on
// (id, reminder_count) makes the send-then-commit step race-safe.
type ApprovalProcessor struct {
	st     *store.Store
	sender mailer.Sender
	cfg    ApprovalConfig
	log    logx.Logger
}

func NewApprovalProcessor(st *store.Store, sender mailer.Sender, cfg ApprovalConfig, log logx.Logger) *ApprovalProcessor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &ApprovalProcessor{st: st, sender: sender, cfg: cfg, log: log.With(logx.String("pass", "approval-reminders"))}
}

// Run executes one pass. At most one reminder goes out per request per pass,
// and never more than one per day, regardless of how many intervals have
// elapsed.
func (p *ApprovalProcessor) Run(ctx context.Context, now time.Time) (ApprovalResult, error) {
	var res ApprovalResult

	pending, err := p.st.PendingApprovals(ctx)
	if err != nil {
		return res, fmt.Errorf("list pending approvals: %w", err)
	}
	res.Pending = len(pending)

	for _, a := range pending {
		p.processOne(ctx, a, now, &res)
	}

	if res.Reminded > 0 || res.Escalated > 0 || res.Failed > 0 {
		p.log.Info("pass completed",
			logx.Int("pending", res.Pending), logx.Int("reminded", res.Reminded),
			logx.Int("escalated", res.Escalated), logx.Int("failed", res.Failed))
	}
	return res, nil
}

func (p *ApprovalProcessor) processOne(ctx context.Context, a store.ApprovalRequest, now time.Time, res *ApprovalResult) {
	elapsed := escalate.ElapsedDays(a.CreatedAt, now)

	// Daily throttle applies to reminders and stall notices alike.
	if a.LastReminderAt != nil && now.Sub(*a.LastReminderAt) < 24*time.Hour {
		return
	}

	if escalate.NextApprovalInterval(elapsed, a.ReminderCount, p.cfg.IntervalDays) {
		subject := fmt.Sprintf("Approval still needed: %s", a.Subject)
		text := fmt.Sprintf(
			"Hello,\n\nThe request %q has been waiting for your approval for %d day(s). Please approve or reject it.\n",
			a.Subject, elapsed)
		if err := p.sender.Send(ctx, a.ApproverEmail, subject, text, ""); err != nil {
			p.log.Warn("reminder send failed", logx.String("approval", a.ID), logx.Err(err))
			res.Failed++
			return
		}
		if err := p.st.BumpApprovalReminder(ctx, a.ID, a.ReminderCount, now); err != nil {
			if errors.Is(err, store.ErrInvalidTransition) {
				p.log.Debug("bump lost race; ignoring", logx.String("approval", a.ID))
				return
			}
			p.log.Warn("bump failed", logx.String("approval", a.ID), logx.Err(err))
			return
		}
		res.Reminded++
		p.appendEvent(ctx, a, "reminded", fmt.Sprintf("reminder %d after %d days", a.ReminderCount+1, elapsed))
		return
	}

	if escalate.Stalled(elapsed, p.cfg.StallDays) && p.cfg.EscalationEmail != "" {
		subject := fmt.Sprintf("Approval stalled: %s", a.Subject)
		text := fmt.Sprintf(
			"The request %q has been waiting on %s for %d day(s) with no decision.\n",
			a.Subject, a.ApproverEmail, elapsed)
		if err := p.sender.Send(ctx, p.cfg.EscalationEmail, subject, text, ""); err != nil {
			p.log.Warn("escalation send failed", logx.String("approval", a.ID), logx.Err(err))
			res.Failed++
			return
		}
		if err := p.st.TouchApprovalReminder(ctx, a.ID, now); err != nil && !errors.Is(err, store.ErrInvalidTransition) {
			p.log.Warn("touch failed", logx.String("approval", a.ID), logx.Err(err))
		}
		res.Escalated++
		p.appendEvent(ctx, a, "escalated", fmt.Sprintf("stalled %d days", elapsed))
	}
}

func (p *ApprovalProcessor) appendEvent(ctx context.Context, a store.ApprovalRequest, action, detail string) {
	err := p.st.AppendEvent(ctx, store.Event{
		Category:    "approval",
		SubjectType: store.SubjectApproval,
		SubjectID:   a.ID,
		Action:      action,
		Detail:      detail,
	})
	if err != nil {
		p.log.Debug("event append failed", logx.Err(err))
	}
}
