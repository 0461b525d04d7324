package orchestrator

import (
	"context"
	"time"

	"clientdesk/internal/escalate"
	"clientdesk/internal/store"
	"clientdesk/pkg/logx"
)

func (o *Orchestrator) runInvoiceReminders(ctx context.Context) error {
	_, err := o.engine.Run(ctx, o.invoices, time.Now().UTC())
	return err
}

func (o *Orchestrator) runContractReminders(ctx context.Context) error {
	_, err := o.engine.Run(ctx, o.contracts, time.Now().UTC())
	return err
}

func (o *Orchestrator) runWelcomeSequence(ctx context.Context) error {
	_, err := o.engine.Run(ctx, o.welcome, time.Now().UTC())
	return err
}

func (o *Orchestrator) runApprovalReminders(ctx context.Context) error {
	_, err := o.approvals.Run(ctx, time.Now().UTC())
	return err
}

func (o *Orchestrator) runOverdueInvoices(ctx context.Context) error {
	now := time.Now().UTC()
	n, err := o.st.MarkOverdueInvoices(ctx, now)
	if err != nil {
		return err
	}
	if n > 0 {
		o.log.Info("invoices flipped to overdue", logx.Int64("count", n))
	}
	return nil
}

// runTaskEscalation recomputes each open task's priority label from how far
// it sits relative to its due date. Urgency is days past due, so tiers can
// start below zero to escalate before the deadline.
func (o *Orchestrator) runTaskEscalation(ctx context.Context) error {
	if len(o.tiers) == 0 {
		return nil
	}
	now := time.Now().UTC()
	tasks, err := o.st.OpenTasksWithDueDate(ctx)
	if err != nil {
		return err
	}

	changed := 0
	for _, t := range tasks {
		if t.DueDate == nil {
			continue
		}
		urgency := -escalate.DaysUntil(*t.DueDate, now)
		label := escalate.TierFor(urgency, o.tiers)
		if label == escalate.TierNone || label == t.Priority {
			continue
		}
		ok, err := o.st.SetTaskPriority(ctx, t.ID, label)
		if err != nil {
			o.log.Warn("task priority update failed", logx.String("task", t.ID), logx.Err(err))
			continue
		}
		if !ok {
			continue
		}
		changed++
		o.appendEvent(ctx, store.SubjectTask, t.ID, "priority", t.Priority+" -> "+label)
	}
	if changed > 0 {
		o.log.Info("task priorities escalated", logx.Int("changed", changed), logx.Int("open", len(tasks)))
	}
	return nil
}

func (o *Orchestrator) runRetentionSweep(ctx context.Context) error {
	sum, err := o.sweeper.Run(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	o.log.Info("retention sweep completed",
		logx.Int64("events_purged", sum.EventsPurged),
		logx.Int("clients_purged", sum.ClientsPurged),
		logx.Int("invoices_purged", sum.InvoicesPurged),
		logx.Int("row_errors", len(sum.Errors)))
	return nil
}

func (o *Orchestrator) appendEvent(ctx context.Context, subjectType, subjectID, action, detail string) {
	err := o.st.AppendEvent(ctx, store.Event{
		Category:    "orchestrator",
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Action:      action,
		Detail:      detail,
	})
	if err != nil {
		o.log.Debug("event append failed", logx.Err(err))
	}
}

// ScheduleInvoiceSeries and friends are the write-side hooks callers use
// when domain entities change outside a pass (invoice issued, contract sent,
// client activated, client deactivated).

func (o *Orchestrator) ScheduleInvoiceSeries(ctx context.Context, invoiceID string, dueDate time.Time, steps []store.SeriesStep) error {
	return o.engine.ScheduleSeries(ctx, store.SubjectInvoice, invoiceID, dueDate, steps)
}

func (o *Orchestrator) ScheduleContractSeries(ctx context.Context, contractID string, sentAt time.Time, steps []store.SeriesStep) error {
	return o.engine.ScheduleSeries(ctx, store.SubjectContract, contractID, sentAt, steps)
}

func (o *Orchestrator) ScheduleWelcomeSeries(ctx context.Context, clientID string, activatedAt time.Time, steps []store.SeriesStep) error {
	return o.engine.ScheduleSeries(ctx, store.SubjectClient, clientID, activatedAt, steps)
}

func (o *Orchestrator) CancelSeries(ctx context.Context, subjectType, subjectID, reason string) (int64, error) {
	return o.engine.CancelSeries(ctx, subjectType, subjectID, reason)
}
