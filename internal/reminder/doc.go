// Package reminder implements the generic reminder state machine shared by
// the invoice, contract and welcome jobs, plus the approval escalation
// processor.
//
// A reminder record moves pending -> {sent, skipped, failed} and never
// leaves a terminal state. Each job pass queries its due records, resolves
// the notification payload from the subject entity, attempts the send, and
// commits exactly one transition per record. Failures are isolated per
// record: a broken send marks that record failed and the pass continues.
// Failed records are not retried automatically; resending requires
// rescheduling the series.
package reminder
