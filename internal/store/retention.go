package store

import (
	"context"
	"fmt"
	"time"
)

// purgeableTables is the allowlist of append-only tables PurgeOlderThan may
// touch, mapped to the column holding their creation timestamp.
var purgeableTables = map[string]string{
	"events": "at",
}

// PurgeOlderThan deletes rows created strictly before the cutoff and returns
// the deleted count. Idempotent: a second call with the same cutoff deletes 0.
func (s *Store) PurgeOlderThan(ctx context.Context, table string, cutoff time.Time) (int64, error) {
	col, ok := purgeableTables[table]
	if !ok {
		return 0, fmt.Errorf("table %q is not purgeable", table)
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s < ?`, table, col), fmtTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SoftDeletedClientsBefore returns ids of clients soft-deleted before the cutoff.
func (s *Store) SoftDeletedClientsBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM clients WHERE deleted_at IS NOT NULL AND deleted_at < ?`, fmtTime(cutoff))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PurgeClientCascade permanently deletes a soft-deleted client and every
// dependent row, in one transaction. Returns ErrInvalidTransition when the
// client is not soft-deleted (guards against purging live data).
func (s *Store) PurgeClientCascade(ctx context.Context, clientID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM clients WHERE id=? AND deleted_at IS NOT NULL`, clientID).Scan(&one)
	if err != nil {
		return ErrInvalidTransition
	}

	// Reminder rows of every subject owned by this client.
	stmts := []struct {
		q    string
		args []any
	}{
		{`DELETE FROM reminders WHERE subject_type='invoice' AND subject_id IN (SELECT id FROM invoices WHERE client_id=?)`, []any{clientID}},
		{`DELETE FROM reminders WHERE subject_type='contract' AND subject_id IN (SELECT id FROM contracts WHERE client_id=?)`, []any{clientID}},
		{`DELETE FROM reminders WHERE subject_type='client' AND subject_id=?`, []any{clientID}},
		{`DELETE FROM contracts WHERE client_id=?`, []any{clientID}},
		{`DELETE FROM tasks WHERE project_id IN (SELECT id FROM projects WHERE client_id=?)`, []any{clientID}},
		{`DELETE FROM invoices WHERE client_id=?`, []any{clientID}},
		{`DELETE FROM projects WHERE client_id=?`, []any{clientID}},
		{`DELETE FROM clients WHERE id=?`, []any{clientID}},
	}
	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.q, st.args...); err != nil {
			return fmt.Errorf("cascade delete client %s: %w", clientID, err)
		}
	}
	return tx.Commit()
}

// SoftDeletedInvoicesBefore returns ids of invoices soft-deleted before the
// cutoff whose owning client is still live (client cascades handle the rest).
func (s *Store) SoftDeletedInvoicesBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT i.id FROM invoices i
		 JOIN clients c ON c.id = i.client_id
		 WHERE i.deleted_at IS NOT NULL AND i.deleted_at < ? AND c.deleted_at IS NULL`,
		fmtTime(cutoff))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PurgeInvoice permanently deletes one soft-deleted invoice and its reminders.
func (s *Store) PurgeInvoice(ctx context.Context, invoiceID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM invoices WHERE id=? AND deleted_at IS NOT NULL`, invoiceID).Scan(&one)
	if err != nil {
		return ErrInvalidTransition
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM reminders WHERE subject_type='invoice' AND subject_id=?`, invoiceID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM invoices WHERE id=?`, invoiceID); err != nil {
		return err
	}
	return tx.Commit()
}

// SoftDeleteInvoice stamps deleted_at (admin/test helper).
func (s *Store) SoftDeleteInvoice(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE invoices SET deleted_at=? WHERE id=? AND deleted_at IS NULL`, fmtTime(at), id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
