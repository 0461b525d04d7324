package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

const approvalCols = `id, subject, approver_email, reminder_count, last_reminder_at, status, created_at`

// CreateApprovalRequest inserts a pending approval request.
func (s *Store) CreateApprovalRequest(ctx context.Context, a *ApprovalRequest) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if a.Status == "" {
		a.Status = StatusPending
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO approval_requests(id, subject, approver_email, reminder_count, last_reminder_at, status, created_at)
		 VALUES(?,?,?,?,?,?,?)`,
		a.ID, a.Subject, a.ApproverEmail, a.ReminderCount, fmtNullTime(a.LastReminderAt), a.Status, fmtTime(a.CreatedAt))
	return err
}

// PendingApprovals returns every approval request still awaiting a decision.
func (s *Store) PendingApprovals(ctx context.Context) ([]ApprovalRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+approvalCols+` FROM approval_requests WHERE status='pending' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ApprovalRequest
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// GetApprovalRequest fetches one approval request by id.
func (s *Store) GetApprovalRequest(ctx context.Context, id string) (*ApprovalRequest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+approvalCols+` FROM approval_requests WHERE id = ?`, id)
	a, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// BumpApprovalReminder increments reminder_count and stamps last_reminder_at,
// conditioned on the request still being pending AND the count being the one
// the caller observed. A concurrent pass loses the race cleanly: zero rows,
// ErrInvalidTransition, no double-send.
func (s *Store) BumpApprovalReminder(ctx context.Context, id string, observedCount int, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE approval_requests
		 SET reminder_count = reminder_count + 1, last_reminder_at = ?
		 WHERE id = ? AND status = 'pending' AND reminder_count = ?`,
		fmtTime(now), id, observedCount)
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
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM approval_requests WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrInvalidTransition
}

// TouchApprovalReminder stamps last_reminder_at without incrementing the
// count. Used for stall escalation notices, which share the once-per-day
// guard with regular reminders.
func (s *Store) TouchApprovalReminder(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE approval_requests SET last_reminder_at=? WHERE id=? AND status='pending'`,
		fmtTime(now), id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// ResolveApproval records the decision. Reminders stop because the request
// leaves pending.
func (s *Store) ResolveApproval(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE approval_requests SET status=? WHERE id=? AND status='pending'`, status, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func scanApproval(row rowScanner) (*ApprovalRequest, error) {
	var (
		a              ApprovalRequest
		lastReminderAt sql.NullString
		createdAt      string
	)
	err := row.Scan(&a.ID, &a.Subject, &a.ApproverEmail, &a.ReminderCount, &lastReminderAt, &a.Status, &createdAt)
	if err != nil {
		return nil, err
	}
	a.LastReminderAt = parseNullTime(lastReminderAt)
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}
