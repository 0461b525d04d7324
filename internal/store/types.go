package store

import (
	"errors"
	"time"
)

var (
	// ErrNotFound means the row does not exist at all.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidTransition means the row exists but is no longer in the
	// state the operation requires. Callers treat it as a benign race.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

// Reminder statuses. pending is the only non-terminal state.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Subject types that reminder records can point at.
const (
	SubjectInvoice  = "invoice"
	SubjectContract = "contract"
	SubjectClient   = "client"
	SubjectApproval = "approval"
	SubjectTask     = "task"
)

// Reminder is one scheduled notification for a subject entity.
type Reminder struct {
	ID          string
	SubjectType string
	SubjectID   string
	Kind        string // tier label, e.g. "upcoming", "overdue_7", "followup_3"
	ScheduledAt time.Time
	SentAt      *time.Time
	Status      string
	Reason      string // populated for skipped records
	CreatedAt   time.Time
}

// SeriesStep describes one reminder in a series relative to its anchor date.
type SeriesStep struct {
	Kind       string
	OffsetDays int
}

// ApprovalRequest is a pending sign-off waiting on an approver.
type ApprovalRequest struct {
	ID             string
	Subject        string
	ApproverEmail  string
	ReminderCount  int
	LastReminderAt *time.Time
	Status         string // pending | approved | rejected
	CreatedAt      time.Time
}

// Invoice carries the fields the reminder and ledger jobs need.
type Invoice struct {
	ID               string
	ClientID         string
	InvoiceNumber    string
	AmountTotalCents int64
	AmountPaidCents  int64
	DueDate          time.Time
	PaidAt           *time.Time
	Status           string // draft | issued | overdue | paid
	CreatedAt        time.Time
}

// Client is a customer of the business.
type Client struct {
	ID          string
	Name        string
	Email       string
	Active      bool
	ActivatedAt *time.Time
	DeletedAt   *time.Time
	CreatedAt   time.Time
}

// Contract tracks a signature request on a project.
type Contract struct {
	ID        string
	ProjectID string
	ClientID  string
	SentAt    *time.Time
	SignedAt  *time.Time
	CreatedAt time.Time
}

// Task is a unit of project work with a deadline and a priority label.
type Task struct {
	ID        string
	ProjectID string
	Title     string
	DueDate   *time.Time
	Priority  string
	DoneAt    *time.Time
	CreatedAt time.Time
}

// Event is one append-only audit row.
type Event struct {
	At          time.Time
	Category    string
	SubjectType string
	SubjectID   string
	Action      string
	Detail      string
}
