package config

import (
	"fmt"
	"strings"
)

// Validate checks cross-field constraints that the strict decoder cannot.
// Schedule expressions are validated later by the scheduler when jobs are
// registered, since the accepted formats live there.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout); err != nil {
		return err
	}
	for name, j := range cfg.Jobs {
		if j.Enabled && strings.TrimSpace(j.Schedule) == "" {
			return fmt.Errorf("jobs.%s: schedule is required when enabled", name)
		}
		if _, err := ParseDurationField("jobs."+name+".timeout", j.Timeout); err != nil {
			return err
		}
	}

	prev := -1
	for i, d := range cfg.Reminders.ApprovalIntervalDays {
		if d <= prev {
			return fmt.Errorf("reminders.approval_interval_days[%d]: intervals must be ascending", i)
		}
		prev = d
	}
	prevTier := -1 << 30
	for i, t := range cfg.Reminders.TaskPriorityTiers {
		if t.MinDays <= prevTier {
			return fmt.Errorf("reminders.task_priority_tiers[%d]: min_days must be ascending", i)
		}
		if strings.TrimSpace(t.Label) == "" {
			return fmt.Errorf("reminders.task_priority_tiers[%d]: label is required", i)
		}
		prevTier = t.MinDays
	}

	if cfg.Retention.EventHorizonDays < 0 {
		return fmt.Errorf("retention.event_horizon_days must be >= 0")
	}
	if cfg.Retention.SoftDeleteGraceDays < 0 {
		return fmt.Errorf("retention.soft_delete_grace_days must be >= 0")
	}
	return nil
}
