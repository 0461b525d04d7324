// Package sweep implements retention-based data cleanup: pruning append-only
// event tables past their horizon and permanently deleting soft-deleted
// entities past their grace period.
package sweep

import (
	"context"
	"fmt"
	"time"

	"clientdesk/internal/store"
	"clientdesk/pkg/logx"
)

// Config controls the retention sweep.
type Config struct {
	// EventHorizonDays prunes event rows older than this. 0 disables.
	EventHorizonDays int
	// SoftDeleteGraceDays is how long soft-deleted entities linger before
	// the permanent cascade. 0 disables soft-delete purging.
	SoftDeleteGraceDays int
}

// RowError records one failed cascade without aborting the sweep.
type RowError struct {
	Kind string
	ID   string
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("purge %s %s: %v", e.Kind, e.ID, e.Err)
}

// Summary reports what one sweep did. Errors are collected, never thrown:
// one bad cascade must not block the rest.
type Summary struct {
	EventsPurged   int64
	ClientsPurged  int
	InvoicesPurged int
	Errors         []RowError
}

// Sweeper owns the cleanup pass.
type Sweeper struct {
	st  *store.Store
	cfg Config
	log logx.Logger
}

func New(st *store.Store, cfg Config, log logx.Logger) *Sweeper {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sweeper{st: st, cfg: cfg, log: log.With(logx.String("pass", "retention-sweep"))}
}

// Run executes one sweep. Idempotent: re-running against a clean store
// purges nothing.
func (s *Sweeper) Run(ctx context.Context, now time.Time) (Summary, error) {
	var sum Summary

	if s.cfg.EventHorizonDays > 0 {
		cutoff := now.AddDate(0, 0, -s.cfg.EventHorizonDays)
		n, err := s.st.PurgeOlderThan(ctx, "events", cutoff)
		if err != nil {
			return sum, fmt.Errorf("purge events: %w", err)
		}
		sum.EventsPurged = n
	}

	if s.cfg.SoftDeleteGraceDays > 0 {
		cutoff := now.AddDate(0, 0, -s.cfg.SoftDeleteGraceDays)
		s.purgeClients(ctx, cutoff, &sum)
		s.purgeInvoices(ctx, cutoff, &sum)
	}

	if sum.EventsPurged > 0 || sum.ClientsPurged > 0 || sum.InvoicesPurged > 0 || len(sum.Errors) > 0 {
		s.log.Info("sweep completed",
			logx.Int64("events", sum.EventsPurged),
			logx.Int("clients", sum.ClientsPurged),
			logx.Int("invoices", sum.InvoicesPurged),
			logx.Int("errors", len(sum.Errors)))
	}
	return sum, nil
}

func (s *Sweeper) purgeClients(ctx context.Context, cutoff time.Time, sum *Summary) {
	ids, err := s.st.SoftDeletedClientsBefore(ctx, cutoff)
	if err != nil {
		sum.Errors = append(sum.Errors, RowError{Kind: "client", ID: "*", Err: err})
		return
	}
	for _, id := range ids {
		if err := s.st.PurgeClientCascade(ctx, id); err != nil {
			s.log.Warn("client cascade failed", logx.String("client", id), logx.Err(err))
			sum.Errors = append(sum.Errors, RowError{Kind: "client", ID: id, Err: err})
			continue
		}
		sum.ClientsPurged++
	}
}

func (s *Sweeper) purgeInvoices(ctx context.Context, cutoff time.Time, sum *Summary) {
	ids, err := s.st.SoftDeletedInvoicesBefore(ctx, cutoff)
	if err != nil {
		sum.Errors = append(sum.Errors, RowError{Kind: "invoice", ID: "*", Err: err})
		return
	}
	for _, id := range ids {
		if err := s.st.PurgeInvoice(ctx, id); err != nil {
			s.log.Warn("invoice purge failed", logx.String("invoice", id), logx.Err(err))
			sum.Errors = append(sum.Errors, RowError{Kind: "invoice", ID: id, Err: err})
			continue
		}
		sum.InvoicesPurged++
	}
}
