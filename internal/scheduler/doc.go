// Package scheduler provides the in-process trigger service that fires
// clientdesk's named background jobs.
//
// # Overview
//
// Jobs are registered under a stable name with a cron-style schedule and a
// run function. Registering the same name twice is an error: job wiring is
// static and a duplicate indicates a programming mistake, not a reload.
//
// # Schedule formats
//
// The service accepts 5-field cron expressions (min hour dom mon dow),
// optional 6-field with seconds, descriptors ("@hourly", "@every 55m"),
// and bare Go durations ("55m", "2h30m").
//
// # Concurrency and overlap
//
// Jobs run on a shared bounded worker pool, so independent jobs may run
// concurrently. A single job never overlaps itself: if its previous run is
// still executing when the trigger fires, the new fire is skipped and
// logged, never queued. Triggers are at-most-once and best-effort; ticks
// missed while the process was paused are not replayed.
//
// # Lifecycle
//
// Start and Stop are idempotent. Stop disarms future fires and lets
// in-flight runs finish. Registering jobs while stopped is supported:
// definitions are armed on the next Start.
package scheduler
