package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"clientdesk/internal/store"
	"clientdesk/pkg/logx"
)

// fakeSender records sends and fails for addresses listed in failTo.
type fakeSender struct {
	sent   []string // recipient addresses in send order
	failTo map[string]bool
}

func (f *fakeSender) Send(_ context.Context, to, _, _, _ string) error {
	if f.failTo[to] {
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, to)
	return nil
}

func seedInvoiceWithReminder(t *testing.T, st *store.Store, email string, due time.Time) *store.Invoice {
	t.Helper()
	ctx := context.Background()
	c := &store.Client{Name: "Client " + email, Email: email, Active: true}
	if err := st.CreateClient(ctx, c); err != nil {
		t.Fatalf("create client: %v", err)
	}
	inv := &store.Invoice{ClientID: c.ID, InvoiceNumber: "INV-" + c.ID[:8], AmountTotalCents: 500_00, DueDate: due}
	if err := st.CreateInvoice(ctx, inv); err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if err := st.ReplaceReminderSeries(ctx, store.SubjectInvoice, inv.ID, due, []store.SeriesStep{{Kind: "due"}}); err != nil {
		t.Fatalf("schedule series: %v", err)
	}
	return inv
}

func TestEngineRunMixedResults(t *testing.T) {
	st := store.SetupTestDB(t)
	ctx := context.Background()
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	invA := seedInvoiceWithReminder(t, st, "a@bad.test", due)
	invB := seedInvoiceWithReminder(t, st, "b@good.test", due)

	sender := &fakeSender{failTo: map[string]bool{"a@bad.test": true}}
	eng := NewEngine(st, sender, logx.Nop())

	now := due.Add(time.Hour)
	res, err := eng.Run(ctx, &InvoiceSource{St: st}, now)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// A's failure must not stop B's send.
	if res.Due != 2 || res.Sent != 1 || res.Failed != 1 || res.Skipped != 0 {
		t.Fatalf("unexpected counts: %+v", res)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "b@good.test" {
		t.Fatalf("unexpected sends: %v", sender.sent)
	}

	recA, _ := st.PendingReminders(ctx, store.SubjectInvoice, invA.ID)
	if len(recA) != 0 {
		t.Fatal("failed record still pending")
	}
	recB, _ := st.PendingReminders(ctx, store.SubjectInvoice, invB.ID)
	if len(recB) != 0 {
		t.Fatal("sent record still pending")
	}

	// Failed reminders are terminal: the next pass sees nothing due.
	res, err = eng.Run(ctx, &InvoiceSource{St: st}, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Due != 0 {
		t.Fatalf("failed record resurfaced: %+v", res)
	}
}

func TestEngineSkipsNoRecipient(t *testing.T) {
	st := store.SetupTestDB(t)
	ctx := context.Background()
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	inv := seedInvoiceWithReminder(t, st, "", due)

	sender := &fakeSender{}
	eng := NewEngine(st, sender, logx.Nop())

	res, err := eng.Run(ctx, &InvoiceSource{St: st}, due.Add(time.Hour))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Skipped != 1 || res.Sent != 0 || res.Failed != 0 {
		t.Fatalf("unexpected counts: %+v", res)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("send happened for empty recipient: %v", sender.sent)
	}

	pending, _ := st.PendingReminders(ctx, store.SubjectInvoice, inv.ID)
	if len(pending) != 0 {
		t.Fatal("skipped record still pending")
	}
}

func TestEngineRespectsScheduledAt(t *testing.T) {
	st := store.SetupTestDB(t)
	ctx := context.Background()
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	seedInvoiceWithReminder(t, st, "x@acme.test", due)

	sender := &fakeSender{}
	eng := NewEngine(st, sender, logx.Nop())

	// A pass before the scheduled time sees nothing.
	res, err := eng.Run(ctx, &InvoiceSource{St: st}, due.Add(-time.Hour))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Due != 0 {
		t.Fatalf("early record picked up: %+v", res)
	}
}

// cancellingSender delivers, then kills the pass context before returning,
// like a shutdown or job timeout landing between dispatch and commit.
type cancellingSender struct {
	cancel context.CancelFunc
	sent   int
}

func (s *cancellingSender) Send(context.Context, string, string, string, string) error {
	s.sent++
	s.cancel()
	return nil
}

func TestEngineCommitsAfterDispatchDespiteCancel(t *testing.T) {
	st := store.SetupTestDB(t)
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	inv := seedInvoiceWithReminder(t, st, "x@acme.test", due)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sender := &cancellingSender{cancel: cancel}
	eng := NewEngine(st, sender, logx.Nop())

	now := due.Add(time.Hour)
	res, err := eng.Run(ctx, &InvoiceSource{St: st}, now)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sender.sent != 1 {
		t.Fatalf("sends = %d, want 1", sender.sent)
	}
	// The mail went out, so the record must be committed sent even though
	// the pass context died. A pending leftover would re-send next pass.
	if res.Sent != 1 {
		t.Fatalf("counts: %+v, want sent=1", res)
	}
	pending, _ := st.PendingReminders(context.Background(), store.SubjectInvoice, inv.ID)
	if len(pending) != 0 {
		t.Fatal("dispatched record still pending after cancelled pass")
	}

	res, err = eng.Run(context.Background(), &InvoiceSource{St: st}, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Due != 0 {
		t.Fatalf("record re-sent after commit: %+v", res)
	}
}

func TestWelcomeSeriesCancelledOnDeactivation(t *testing.T) {
	st := store.SetupTestDB(t)
	ctx := context.Background()

	c := &store.Client{Name: "New Co", Email: "new@co.test", Active: true}
	if err := st.CreateClient(ctx, c); err != nil {
		t.Fatalf("create client: %v", err)
	}
	activated := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	eng := NewEngine(st, &fakeSender{}, logx.Nop())
	steps := []store.SeriesStep{{Kind: "welcome"}, {Kind: "checkin_7", OffsetDays: 7}}
	if err := eng.ScheduleSeries(ctx, store.SubjectClient, c.ID, activated, steps); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	n, err := eng.CancelSeries(ctx, store.SubjectClient, c.ID, "deactivated")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if n != 2 {
		t.Fatalf("cancelled %d, want 2", n)
	}

	res, err := eng.Run(ctx, &WelcomeSource{St: st}, activated.AddDate(0, 0, 10))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Due != 0 {
		t.Fatalf("cancelled series still due: %+v", res)
	}
}
