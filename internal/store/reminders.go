package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const reminderCols = `id, subject_type, subject_id, kind, scheduled_at, sent_at, status, reason, created_at`

// DueReminders returns pending reminders whose scheduled time is at or before
// now and whose subject entity has not reached a terminal state. The subject
// join is mandatory: a paid invoice or signed contract suppresses its pending
// reminders without transitioning them.
func (s *Store) DueReminders(ctx context.Context, subjectType string, now time.Time) ([]Reminder, error) {
	var query string
	switch subjectType {
	case SubjectInvoice:
		query = `SELECT ` + reminderCols2("r") + `
			FROM reminders r
			JOIN invoices i ON i.id = r.subject_id
			WHERE r.subject_type = 'invoice'
			  AND r.status = 'pending'
			  AND r.scheduled_at <= ?
			  AND i.paid_at IS NULL
			  AND i.status != 'paid'
			  AND i.deleted_at IS NULL
			ORDER BY r.scheduled_at`
	case SubjectContract:
		query = `SELECT ` + reminderCols2("r") + `
			FROM reminders r
			JOIN contracts c ON c.id = r.subject_id
			WHERE r.subject_type = 'contract'
			  AND r.status = 'pending'
			  AND r.scheduled_at <= ?
			  AND c.signed_at IS NULL
			ORDER BY r.scheduled_at`
	case SubjectClient:
		query = `SELECT ` + reminderCols2("r") + `
			FROM reminders r
			JOIN clients cl ON cl.id = r.subject_id
			WHERE r.subject_type = 'client'
			  AND r.status = 'pending'
			  AND r.scheduled_at <= ?
			  AND cl.active = 1
			  AND cl.deleted_at IS NULL
			ORDER BY r.scheduled_at`
	default:
		return nil, fmt.Errorf("unknown reminder subject type %q", subjectType)
	}

	rows, err := s.db.QueryContext(ctx, query, fmtTime(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReminders(rows)
}

// GetReminder fetches one reminder by id.
func (s *Store) GetReminder(ctx context.Context, id string) (*Reminder, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reminderCols+` FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// MarkReminderSent transitions pending -> sent and stamps sent_at.
func (s *Store) MarkReminderSent(ctx context.Context, id string, now time.Time) error {
	return s.transitionReminder(ctx, id,
		`UPDATE reminders SET status='sent', sent_at=? WHERE id=? AND status='pending'`,
		fmtTime(now), id)
}

// MarkReminderSkipped transitions pending -> skipped with a reason.
func (s *Store) MarkReminderSkipped(ctx context.Context, id, reason string) error {
	return s.transitionReminder(ctx, id,
		`UPDATE reminders SET status='skipped', reason=? WHERE id=? AND status='pending'`,
		reason, id)
}

// MarkReminderFailed transitions pending -> failed. Failed reminders are
// terminal: a later pass will not pick them up again.
func (s *Store) MarkReminderFailed(ctx context.Context, id string) error {
	return s.transitionReminder(ctx, id,
		`UPDATE reminders SET status='failed' WHERE id=? AND status='pending'`,
		id)
}

// transitionReminder runs a conditional update. Zero affected rows means the
// record either doesn't exist (ErrNotFound) or already left pending
// (ErrInvalidTransition).
func (s *Store) transitionReminder(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM reminders WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrInvalidTransition
}

// ReplaceReminderSeries clears any pending reminders for the subject and
// inserts one pending record per step, scheduled at anchor + offset days.
// Clearing marks records skipped rather than deleting them, so the audit
// trail survives a resend action.
func (s *Store) ReplaceReminderSeries(ctx context.Context, subjectType, subjectID string, anchor time.Time, steps []SeriesStep) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`UPDATE reminders SET status='skipped', reason='rescheduled'
		 WHERE subject_type=? AND subject_id=? AND status='pending'`,
		subjectType, subjectID)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, st := range steps {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO reminders(id, subject_type, subject_id, kind, scheduled_at, status, created_at)
			 VALUES(?,?,?,?,?,'pending',?)`,
			uuid.NewString(), subjectType, subjectID, st.Kind,
			fmtTime(anchor.AddDate(0, 0, st.OffsetDays)), fmtTime(now))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CancelReminderSeries marks every pending reminder of a subject skipped.
// Used when the tracked action completes before all reminders fire.
func (s *Store) CancelReminderSeries(ctx context.Context, subjectType, subjectID, reason string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET status='skipped', reason=?
		 WHERE subject_type=? AND subject_id=? AND status='pending'`,
		reason, subjectType, subjectID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PendingReminders lists a subject's pending records (mostly for tests and
// the admin surface).
func (s *Store) PendingReminders(ctx context.Context, subjectType, subjectID string) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderCols+` FROM reminders
		 WHERE subject_type=? AND subject_id=? AND status='pending'
		 ORDER BY scheduled_at`, subjectType, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReminders(rows)
}

func reminderCols2(alias string) string {
	return alias + `.id, ` + alias + `.subject_type, ` + alias + `.subject_id, ` + alias + `.kind, ` +
		alias + `.scheduled_at, ` + alias + `.sent_at, ` + alias + `.status, ` + alias + `.reason, ` + alias + `.created_at`
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (*Reminder, error) {
	var (
		r           Reminder
		scheduledAt string
		sentAt      sql.NullString
		createdAt   string
	)
	err := row.Scan(&r.ID, &r.SubjectType, &r.SubjectID, &r.Kind, &scheduledAt, &sentAt, &r.Status, &r.Reason, &createdAt)
	if err != nil {
		return nil, err
	}
	r.ScheduledAt = parseTime(scheduledAt)
	r.SentAt = parseNullTime(sentAt)
	r.CreatedAt = parseTime(createdAt)
	return &r, nil
}

func scanReminders(rows *sql.Rows) ([]Reminder, error) {
	var out []Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}
