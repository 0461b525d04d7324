package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

const invoiceCols = `id, client_id, invoice_number, amount_total_cents, amount_paid_cents, due_date, paid_at, status, created_at`

// CreateInvoice inserts an invoice and returns its generated id.
func (s *Store) CreateInvoice(ctx context.Context, inv *Invoice) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now()
	}
	if inv.Status == "" {
		inv.Status = "issued"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invoices(id, client_id, invoice_number, amount_total_cents, amount_paid_cents, due_date, paid_at, status, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		inv.ID, inv.ClientID, inv.InvoiceNumber, inv.AmountTotalCents, inv.AmountPaidCents,
		fmtTime(inv.DueDate), fmtNullTime(inv.PaidAt), inv.Status, fmtTime(inv.CreatedAt))
	return err
}

// GetInvoice fetches one invoice by id.
func (s *Store) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+invoiceCols+` FROM invoices WHERE id = ?`, id)
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// MarkInvoicePaid settles an invoice (test/admin helper).
func (s *Store) MarkInvoicePaid(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE invoices SET status='paid', paid_at=?, amount_paid_cents=amount_total_cents
		 WHERE id=? AND status != 'paid'`, fmtTime(at), id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// MarkOverdueInvoices flips issued invoices past their due date to overdue
// and returns how many rows changed. Safe to run repeatedly.
func (s *Store) MarkOverdueInvoices(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE invoices SET status='overdue'
		 WHERE status='issued' AND paid_at IS NULL AND deleted_at IS NULL AND due_date < ?`,
		fmtTime(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanInvoice(row rowScanner) (*Invoice, error) {
	var (
		inv       Invoice
		dueDate   string
		paidAt    sql.NullString
		createdAt string
	)
	err := row.Scan(&inv.ID, &inv.ClientID, &inv.InvoiceNumber, &inv.AmountTotalCents,
		&inv.AmountPaidCents, &dueDate, &paidAt, &inv.Status, &createdAt)
	if err != nil {
		return nil, err
	}
	inv.DueDate = parseTime(dueDate)
	inv.PaidAt = parseNullTime(paidAt)
	inv.CreatedAt = parseTime(createdAt)
	return &inv, nil
}
