package reminder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"clientdesk/internal/store"
)

// InvoiceSource feeds payment reminders. Due records whose invoice is paid
// or deleted are already filtered out by the store join.
type InvoiceSource struct {
	St *store.Store
}

func (s *InvoiceSource) Name() string { return "invoice-reminders" }

func (s *InvoiceSource) FindDue(ctx context.Context, now time.Time) ([]store.Reminder, error) {
	return s.St.DueReminders(ctx, store.SubjectInvoice, now)
}

func (s *InvoiceSource) Resolve(ctx context.Context, r store.Reminder) (Message, error) {
	inv, err := s.St.GetInvoice(ctx, r.SubjectID)
	if err != nil {
		return Message{}, fmt.Errorf("invoice %s: %w", r.SubjectID, err)
	}
	cl, err := s.St.GetClient(ctx, inv.ClientID)
	if err != nil {
		return Message{}, fmt.Errorf("client %s: %w", inv.ClientID, err)
	}
	if strings.TrimSpace(cl.Email) == "" {
		return Message{}, ErrNoRecipient
	}

	outstanding := inv.AmountTotalCents - inv.AmountPaidCents
	subject := fmt.Sprintf("Invoice %s — payment reminder", inv.InvoiceNumber)
	if strings.HasPrefix(r.Kind, "overdue") {
		subject = fmt.Sprintf("Invoice %s is overdue", inv.InvoiceNumber)
	}
	text := fmt.Sprintf(
		"Hi %s,\n\nThis is a reminder about invoice %s.\nAmount outstanding: %s\nDue date: %s\n\nThank you.",
		cl.Name, inv.InvoiceNumber, formatCents(outstanding), inv.DueDate.Format("2006-01-02"))
	return Message{To: cl.Email, Subject: subject, Text: text}, nil
}

// ContractSource feeds signature reminders for unsigned contracts.
type ContractSource struct {
	St *store.Store
}

func (s *ContractSource) Name() string { return "contract-reminders" }

func (s *ContractSource) FindDue(ctx context.Context, now time.Time) ([]store.Reminder, error) {
	return s.St.DueReminders(ctx, store.SubjectContract, now)
}

func (s *ContractSource) Resolve(ctx context.Context, r store.Reminder) (Message, error) {
	c, err := s.St.GetContract(ctx, r.SubjectID)
	if err != nil {
		return Message{}, fmt.Errorf("contract %s: %w", r.SubjectID, err)
	}
	cl, err := s.St.GetClient(ctx, c.ClientID)
	if err != nil {
		return Message{}, fmt.Errorf("contract %s client: %w", r.SubjectID, err)
	}
	if strings.TrimSpace(cl.Email) == "" {
		return Message{}, ErrNoRecipient
	}
	text := fmt.Sprintf(
		"Hi %s,\n\nYour contract is still waiting for a signature. Please review and sign at your earliest convenience.\n\nThank you.",
		cl.Name)
	return Message{To: cl.Email, Subject: "Your contract is awaiting signature", Text: text}, nil
}

// WelcomeSource feeds the onboarding drip series for newly activated clients.
type WelcomeSource struct {
	St *store.Store
}

func (s *WelcomeSource) Name() string { return "welcome-sequence" }

func (s *WelcomeSource) FindDue(ctx context.Context, now time.Time) ([]store.Reminder, error) {
	return s.St.DueReminders(ctx, store.SubjectClient, now)
}

func (s *WelcomeSource) Resolve(ctx context.Context, r store.Reminder) (Message, error) {
	cl, err := s.St.GetClient(ctx, r.SubjectID)
	if err != nil {
		return Message{}, fmt.Errorf("client %s: %w", r.SubjectID, err)
	}
	if strings.TrimSpace(cl.Email) == "" {
		return Message{}, ErrNoRecipient
	}

	subject := "Welcome aboard!"
	text := fmt.Sprintf("Hi %s,\n\nWelcome! We're glad to have you with us.\n", cl.Name)
	if r.Kind != "welcome" {
		subject = "Checking in"
		text = fmt.Sprintf("Hi %s,\n\nJust checking in — let us know if you have any questions about getting started.\n", cl.Name)
	}
	return Message{To: cl.Email, Subject: subject, Text: text}, nil
}

func formatCents(cents int64) string {
	neg := ""
	if cents < 0 {
		neg = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", neg, cents/100, cents%100)
}
