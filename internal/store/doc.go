// Package store is the sqlite-backed record store for clientdesk's
// scheduling core: reminder records, approval requests, and the subject
// entities (clients, projects, contracts, invoices, tasks) the reminder
// engine joins against.
//
// All state transitions are single conditional UPDATEs keyed by id with a
// status precondition, so a racing writer (e.g. a manual trigger racing
// the scheduled fire) affects zero rows and is reported as a benign
// invalid-transition instead of double-sending.
//
// Timestamps are stored as RFC3339Nano strings in UTC; lexical comparison
// in SQL then matches chronological order.
package store
