package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedClient(t *testing.T, st *Store, email string) *Client {
	t.Helper()
	c := &Client{Name: "Acme Corp", Email: email, Active: true}
	require.NoError(t, st.CreateClient(context.Background(), c))
	return c
}

func seedInvoice(t *testing.T, st *Store, clientID string, due time.Time) *Invoice {
	t.Helper()
	inv := &Invoice{
		ClientID:         clientID,
		InvoiceNumber:    "INV-001",
		AmountTotalCents: 125_00,
		DueDate:          due,
	}
	require.NoError(t, st.CreateInvoice(context.Background(), inv))
	return inv
}

func TestReplaceReminderSeries(t *testing.T) {
	st := SetupTestDB(t)
	ctx := context.Background()

	c := seedClient(t, st, "billing@acme.test")
	due := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	inv := seedInvoice(t, st, c.ID, due)

	steps := []SeriesStep{
		{Kind: "upcoming", OffsetDays: -3},
		{Kind: "due", OffsetDays: 0},
		{Kind: "overdue_7", OffsetDays: 7},
	}
	require.NoError(t, st.ReplaceReminderSeries(ctx, SubjectInvoice, inv.ID, due, steps))

	pending, err := st.PendingReminders(ctx, SubjectInvoice, inv.ID)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "upcoming", pending[0].Kind)
	assert.Equal(t, due.AddDate(0, 0, -3), pending[0].ScheduledAt)
	assert.Equal(t, due.AddDate(0, 0, 7), pending[2].ScheduledAt)
}

func TestReplaceReminderSeries_Reschedule(t *testing.T) {
	st := SetupTestDB(t)
	ctx := context.Background()

	c := seedClient(t, st, "billing@acme.test")
	due := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	inv := seedInvoice(t, st, c.ID, due)

	steps := []SeriesStep{{Kind: "due", OffsetDays: 0}}
	require.NoError(t, st.ReplaceReminderSeries(ctx, SubjectInvoice, inv.ID, due, steps))

	// Reschedule to a new anchor: old pending rows become skipped, not deleted.
	newDue := due.AddDate(0, 0, 14)
	require.NoError(t, st.ReplaceReminderSeries(ctx, SubjectInvoice, inv.ID, newDue, steps))

	pending, err := st.PendingReminders(ctx, SubjectInvoice, inv.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1, "at most one pending per (subject, kind)")
	assert.Equal(t, newDue, pending[0].ScheduledAt)

	var skipped int
	err = st.db.QueryRow(
		`SELECT COUNT(*) FROM reminders WHERE subject_id=? AND status='skipped' AND reason='rescheduled'`,
		inv.ID).Scan(&skipped)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped, "old pending row must survive as skipped")
}

func TestReminderTransitions_Terminal(t *testing.T) {
	st := SetupTestDB(t)
	ctx := context.Background()

	c := seedClient(t, st, "billing@acme.test")
	due := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	inv := seedInvoice(t, st, c.ID, due)
	require.NoError(t, st.ReplaceReminderSeries(ctx, SubjectInvoice, inv.ID, due, []SeriesStep{{Kind: "due"}}))

	pending, err := st.PendingReminders(ctx, SubjectInvoice, inv.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	id := pending[0].ID

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, st.MarkReminderSent(ctx, id, now))

	got, err := st.GetReminder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, got.Status)
	require.NotNil(t, got.SentAt)
	assert.Equal(t, now, *got.SentAt)

	// Terminal states never transition again.
	assert.ErrorIs(t, st.MarkReminderSkipped(ctx, id, "late"), ErrInvalidTransition)
	assert.ErrorIs(t, st.MarkReminderFailed(ctx, id), ErrInvalidTransition)
	assert.ErrorIs(t, st.MarkReminderSent(ctx, id, now), ErrInvalidTransition)

	// Unknown ids are distinguishable from lost races.
	assert.ErrorIs(t, st.MarkReminderSent(ctx, "nope", now), ErrNotFound)
}

func TestDueReminders_PaidInvoiceSuppressed(t *testing.T) {
	st := SetupTestDB(t)
	ctx := context.Background()

	c := seedClient(t, st, "billing@acme.test")
	due := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	inv := seedInvoice(t, st, c.ID, due)
	require.NoError(t, st.ReplaceReminderSeries(ctx, SubjectInvoice, inv.ID, due, []SeriesStep{{Kind: "due"}}))

	now := due.Add(time.Hour)
	dueRecs, err := st.DueReminders(ctx, SubjectInvoice, now)
	require.NoError(t, err)
	require.Len(t, dueRecs, 1)

	// Paying the invoice suppresses the reminder without transitioning it.
	require.NoError(t, st.MarkInvoicePaid(ctx, inv.ID, now))

	dueRecs, err = st.DueReminders(ctx, SubjectInvoice, now)
	require.NoError(t, err)
	assert.Empty(t, dueRecs)

	// The reminder row itself is still pending.
	pending, err := st.PendingReminders(ctx, SubjectInvoice, inv.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestDueReminders_SignedContractSuppressed(t *testing.T) {
	st := SetupTestDB(t)
	ctx := context.Background()

	c := seedClient(t, st, "legal@acme.test")
	projID, err := st.CreateProject(ctx, "", c.ID, "Website")
	require.NoError(t, err)
	sent := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	ct := &Contract{ProjectID: projID, ClientID: c.ID, SentAt: &sent}
	require.NoError(t, st.CreateContract(ctx, ct))
	require.NoError(t, st.ReplaceReminderSeries(ctx, SubjectContract, ct.ID, sent, []SeriesStep{{Kind: "followup_3", OffsetDays: 3}}))

	now := sent.AddDate(0, 0, 4)
	dueRecs, err := st.DueReminders(ctx, SubjectContract, now)
	require.NoError(t, err)
	require.Len(t, dueRecs, 1)

	require.NoError(t, st.SignContract(ctx, ct.ID, now))

	dueRecs, err = st.DueReminders(ctx, SubjectContract, now)
	require.NoError(t, err)
	assert.Empty(t, dueRecs)
}

func TestCancelReminderSeries(t *testing.T) {
	st := SetupTestDB(t)
	ctx := context.Background()

	c := seedClient(t, st, "hello@acme.test")
	activated := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	steps := []SeriesStep{
		{Kind: "welcome", OffsetDays: 0},
		{Kind: "checkin_7", OffsetDays: 7},
	}
	require.NoError(t, st.ReplaceReminderSeries(ctx, SubjectClient, c.ID, activated, steps))

	n, err := st.CancelReminderSeries(ctx, SubjectClient, c.ID, "deactivated")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	pending, err := st.PendingReminders(ctx, SubjectClient, c.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Cancelling again is a clean no-op.
	n, err = st.CancelReminderSeries(ctx, SubjectClient, c.ID, "deactivated")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMarkOverdueInvoices(t *testing.T) {
	st := SetupTestDB(t)
	ctx := context.Background()

	c := seedClient(t, st, "billing@acme.test")
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	inv := seedInvoice(t, st, c.ID, due)

	// Before the due date nothing flips.
	n, err := st.MarkOverdueInvoices(ctx, due.Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = st.MarkOverdueInvoices(ctx, due.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := st.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "overdue", got.Status)

	// Re-running changes nothing.
	n, err = st.MarkOverdueInvoices(ctx, due.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Zero(t, n)
}
