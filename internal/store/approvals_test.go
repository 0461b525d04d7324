package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBumpApprovalReminder(t *testing.T) {
	st := SetupTestDB(t)
	ctx := context.Background()

	a := &ApprovalRequest{
		Subject:       "Q1 budget",
		ApproverEmail: "cfo@acme.test",
		CreatedAt:     time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.CreateApprovalRequest(ctx, a))

	now := a.CreatedAt.AddDate(0, 0, 2)
	require.NoError(t, st.BumpApprovalReminder(ctx, a.ID, 0, now))

	got, err := st.GetApprovalRequest(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ReminderCount)
	require.NotNil(t, got.LastReminderAt)
	assert.Equal(t, now, *got.LastReminderAt)

	// A second writer that observed the old count loses the race.
	assert.ErrorIs(t, st.BumpApprovalReminder(ctx, a.ID, 0, now), ErrInvalidTransition)
	assert.ErrorIs(t, st.BumpApprovalReminder(ctx, "nope", 0, now), ErrNotFound)
}

func TestResolveApprovalStopsReminders(t *testing.T) {
	st := SetupTestDB(t)
	ctx := context.Background()

	a := &ApprovalRequest{Subject: "New hire", ApproverEmail: "ceo@acme.test"}
	require.NoError(t, st.CreateApprovalRequest(ctx, a))

	pending, err := st.PendingApprovals(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, st.ResolveApproval(ctx, a.ID, "approved"))

	pending, err = st.PendingApprovals(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	now := time.Now().UTC()
	assert.ErrorIs(t, st.BumpApprovalReminder(ctx, a.ID, 0, now), ErrInvalidTransition)
	assert.ErrorIs(t, st.TouchApprovalReminder(ctx, a.ID, now), ErrInvalidTransition)
	assert.ErrorIs(t, st.ResolveApproval(ctx, a.ID, "rejected"), ErrInvalidTransition)
}
