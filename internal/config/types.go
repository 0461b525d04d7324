package config

import (
	"bytes"
	"encoding/json"
)

type Config struct {
	Logging   LoggingConfig        `json:"logging"`
	Scheduler SchedulerConfig      `json:"scheduler"`
	Storage   StorageConfig        `json:"storage"`
	Mailer    MailerConfig         `json:"mailer"`
	Jobs      map[string]JobConfig `json:"jobs"`
	Reminders RemindersConfig      `json:"reminders"`
	Retention RetentionConfig      `json:"retention"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the trigger service.
//
// All durations are Go duration strings (e.g. "10s", "1m").
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
	Workers int  `json:"workers,omitempty"`

	// DefaultTimeout applies to jobs registered without an explicit timeout.
	// Use "0s" to disable.
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`

	// Trigger timezone (IANA name). Empty means the process-local zone.
	Timezone string `json:"timezone,omitempty"`
}

// StorageConfig points at the sqlite database file.
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// MailerConfig configures outbound mail.
type MailerConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	From       string `json:"from"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// JobConfig is one named background job. The schedule accepts the same
// formats as the scheduler service (cron spec, "@every 5m", duration).
type JobConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule"`
	Timeout  string `json:"timeout,omitempty"`
}

// RemindersConfig drives the reminder series and approval escalation.
type RemindersConfig struct {
	// InvoiceOffsets are (kind, offsetDays) pairs relative to the invoice
	// due date. Negative offsets fire before the due date.
	Invoice  []SeriesStep `json:"invoice,omitempty"`
	Contract []SeriesStep `json:"contract,omitempty"`
	Welcome  []SeriesStep `json:"welcome,omitempty"`

	// ApprovalIntervalDays: a reminder is due once elapsed days since the
	// request reach intervals[reminderCount]. Must be ascending.
	ApprovalIntervalDays []int `json:"approval_interval_days,omitempty"`
	// ApprovalStallDays escalates to the fallback address once elapsed.
	ApprovalStallDays int    `json:"approval_stall_days,omitempty"`
	EscalationEmail   string `json:"escalation_email,omitempty"`

	// TaskPriorityTiers map days-until-due to a priority label.
	TaskPriorityTiers []TierConfig `json:"task_priority_tiers,omitempty"`
}

type SeriesStep struct {
	Kind       string `json:"kind"`
	OffsetDays int    `json:"offset_days"`
}

type TierConfig struct {
	MinDays int    `json:"min_days"`
	Label   string `json:"label"`
}

// RetentionConfig controls the data cleanup job.
type RetentionConfig struct {
	// EventHorizonDays prunes append-only event rows older than this.
	EventHorizonDays int `json:"event_horizon_days,omitempty"`
	// SoftDeleteGraceDays is how long soft-deleted entities are kept
	// before the permanent cascade runs.
	SoftDeleteGraceDays int `json:"soft_delete_grace_days,omitempty"`
}

// UnmarshalJSON disallows unknown fields so stale keys are caught early
// during reload instead of being silently ignored.
func (j *JobConfig) UnmarshalJSON(b []byte) error {
	type tmp struct {
		Enabled  bool   `json:"enabled"`
		Schedule string `json:"schedule"`
		Timeout  string `json:"timeout,omitempty"`
	}
	var t tmp
	if err := strictUnmarshal(b, &t); err != nil {
		return err
	}
	*j = JobConfig{Enabled: t.Enabled, Schedule: t.Schedule, Timeout: t.Timeout}
	return nil
}

func strictUnmarshal(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
