package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clientdesk/internal/mailer"
	"clientdesk/internal/store"
	"clientdesk/pkg/logx"
)

// ErrNoRecipient means the subject has no contactable address. The record
// is skipped, not failed: there is nothing to retry.
var ErrNoRecipient = errors.New("no contactable address")

// Message is a resolved notification payload.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Source is implemented once per entity kind. FindDue must already exclude
// subjects in a terminal state (paid, signed, deactivated).
type Source interface {
	Name() string
	FindDue(ctx context.Context, now time.Time) ([]store.Reminder, error)
	Resolve(ctx context.Context, r store.Reminder) (Message, error)
}

// PassResult summarizes one pass over a source's due records.
type PassResult struct {
	Due     int
	Sent    int
	Skipped int
	Failed  int
}

func (p PassResult) String() string {
	return fmt.Sprintf("due=%d sent=%d skipped=%d failed=%d", p.Due, p.Sent, p.Skipped, p.Failed)
}

// Engine drives reminder passes against the record store.
type Engine struct {
	st     *store.Store
	sender mailer.Sender
	log    logx.Logger
}

func NewEngine(st *store.Store, sender mailer.Sender, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{st: st, sender: sender, log: log}
}

// Run executes one pass for the given source. Per-record failures never
// abort the pass; the error return is reserved for the due query itself.
func (e *Engine) Run(ctx context.Context, src Source, now time.Time) (PassResult, error) {
	var res PassResult

	due, err := src.FindDue(ctx, now)
	if err != nil {
		return res, fmt.Errorf("%s: find due reminders: %w", src.Name(), err)
	}
	res.Due = len(due)

	log := e.log.With(logx.String("pass", src.Name()))
	for _, rec := range due {
		e.processOne(ctx, log, src, rec, now, &res)
	}

	if res.Due > 0 {
		log.Info("pass completed",
			logx.Int("due", res.Due), logx.Int("sent", res.Sent),
			logx.Int("skipped", res.Skipped), logx.Int("failed", res.Failed))
	}
	return res, nil
}

func (e *Engine) processOne(ctx context.Context, log logx.Logger, src Source, rec store.Reminder, now time.Time, res *PassResult) {
	msg, err := src.Resolve(ctx, rec)
	if errors.Is(err, ErrNoRecipient) {
		if terr := e.st.MarkReminderSkipped(ctx, rec.ID, "no recipient"); terr != nil {
			e.logTransitionErr(log, rec, "skip", terr)
			return
		}
		res.Skipped++
		e.appendEvent(ctx, rec, "skipped", "no recipient")
		return
	}
	if err != nil {
		log.Warn("payload resolve failed", logx.String("reminder", rec.ID), logx.Err(err))
		if terr := e.st.MarkReminderFailed(ctx, rec.ID); terr != nil {
			e.logTransitionErr(log, rec, "fail", terr)
			return
		}
		res.Failed++
		e.appendEvent(ctx, rec, "failed", err.Error())
		return
	}

	// Once the send is dispatched, the outcome is always committed before
	// the pass moves on. The commit runs on a detached context: a pass
	// context that dies between dispatch and commit (shutdown, job timeout)
	// must not leave the record pending, or the next pass re-sends it.
	commitCtx := context.WithoutCancel(ctx)
	if err := e.sender.Send(ctx, msg.To, msg.Subject, msg.Text, msg.HTML); err != nil {
		log.Warn("send failed", logx.String("reminder", rec.ID), logx.String("kind", rec.Kind), logx.Err(err))
		if terr := e.st.MarkReminderFailed(commitCtx, rec.ID); terr != nil {
			e.logTransitionErr(log, rec, "fail", terr)
			return
		}
		res.Failed++
		e.appendEvent(commitCtx, rec, "failed", err.Error())
		return
	}

	if terr := e.st.MarkReminderSent(commitCtx, rec.ID, now); terr != nil {
		// The send went out but another writer already moved the record.
		// Benign with at-most-once triggers racing a manual fire.
		e.logTransitionErr(log, rec, "sent", terr)
		return
	}
	res.Sent++
	e.appendEvent(commitCtx, rec, "sent", msg.To)
}

func (e *Engine) logTransitionErr(log logx.Logger, rec store.Reminder, op string, err error) {
	if errors.Is(err, store.ErrInvalidTransition) {
		log.Debug("transition lost race; ignoring",
			logx.String("reminder", rec.ID), logx.String("op", op))
		return
	}
	log.Warn("transition failed",
		logx.String("reminder", rec.ID), logx.String("op", op), logx.Err(err))
}

func (e *Engine) appendEvent(ctx context.Context, rec store.Reminder, action, detail string) {
	err := e.st.AppendEvent(ctx, store.Event{
		Category:    "reminder",
		SubjectType: rec.SubjectType,
		SubjectID:   rec.SubjectID,
		Action:      action,
		Detail:      rec.Kind + ": " + detail,
	})
	if err != nil {
		e.log.Debug("event append failed", logx.Err(err))
	}
}

// ScheduleSeries replaces a subject's pending reminders with a fresh series
// anchored at the given date.
func (e *Engine) ScheduleSeries(ctx context.Context, subjectType, subjectID string, anchor time.Time, steps []store.SeriesStep) error {
	if err := e.st.ReplaceReminderSeries(ctx, subjectType, subjectID, anchor, steps); err != nil {
		return fmt.Errorf("schedule series for %s %s: %w", subjectType, subjectID, err)
	}
	e.log.Debug("series scheduled",
		logx.String("subject_type", subjectType), logx.String("subject", subjectID),
		logx.Int("steps", len(steps)))
	return nil
}

// CancelSeries skips every pending reminder of a subject, e.g. after the
// contract is signed or the invoice paid.
func (e *Engine) CancelSeries(ctx context.Context, subjectType, subjectID, reason string) (int64, error) {
	n, err := e.st.CancelReminderSeries(ctx, subjectType, subjectID, reason)
	if err != nil {
		return 0, fmt.Errorf("cancel series for %s %s: %w", subjectType, subjectID, err)
	}
	if n > 0 {
		e.log.Debug("series cancelled",
			logx.String("subject_type", subjectType), logx.String("subject", subjectID),
			logx.Int64("count", n), logx.String("reason", reason))
	}
	return n, nil
}
