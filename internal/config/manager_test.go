package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return NewManager(path)
}

const sampleYAML = `
logging:
  level: DEBUG
  console: true
scheduler:
  enabled: true
  workers: 3
  timezone: Europe/Berlin
  default_timeout: 2m
storage:
  path: ./data/clientdesk.db
  busy_timeout: 5s
mailer:
  host: smtp.test
  port: 2525
  from: noreply@test
jobs:
  invoice-reminders:
    enabled: true
    schedule: "@every 10m"
  retention-sweep:
    enabled: true
    schedule: "@daily"
    timeout: 10m
reminders:
  invoice:
    - kind: upcoming
      offset_days: -3
    - kind: due
      offset_days: 0
  approval_interval_days: [1, 3, 7]
  approval_stall_days: 14
  escalation_email: ops@test
  task_priority_tiers:
    - min_days: -7
      label: medium
    - min_days: 0
      label: urgent
retention:
  event_horizon_days: 90
  soft_delete_grace_days: 30
`

func TestManagerLoadYAML(t *testing.T) {
	t.Parallel()

	m := writeConfig(t, sampleYAML)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" || !cfg.Logging.Console {
		t.Fatalf("logging mismatch: %+v", cfg.Logging)
	}
	if !cfg.Scheduler.Enabled || cfg.Scheduler.Workers != 3 || cfg.Scheduler.Timezone != "Europe/Berlin" {
		t.Fatalf("scheduler mismatch: %+v", cfg.Scheduler)
	}
	if cfg.Storage.Path != "./data/clientdesk.db" {
		t.Fatalf("storage mismatch: %+v", cfg.Storage)
	}

	job, ok := cfg.Jobs["invoice-reminders"]
	if !ok || !job.Enabled || job.Schedule != "@every 10m" {
		t.Fatalf("jobs mismatch: %+v", cfg.Jobs)
	}
	if cfg.Jobs["retention-sweep"].Timeout != "10m" {
		t.Fatalf("job timeout mismatch: %+v", cfg.Jobs["retention-sweep"])
	}

	if len(cfg.Reminders.Invoice) != 2 || cfg.Reminders.Invoice[0].OffsetDays != -3 {
		t.Fatalf("invoice steps mismatch: %+v", cfg.Reminders.Invoice)
	}
	if len(cfg.Reminders.ApprovalIntervalDays) != 3 || cfg.Reminders.ApprovalIntervalDays[2] != 7 {
		t.Fatalf("approval intervals mismatch: %+v", cfg.Reminders.ApprovalIntervalDays)
	}
	if cfg.Retention.EventHorizonDays != 90 {
		t.Fatalf("retention mismatch: %+v", cfg.Retention)
	}

	// Get returns the committed pointer.
	if m.Get() != cfg {
		t.Fatal("Get did not return the loaded config")
	}
}

func TestManagerRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	m := writeConfig(t, `
storage:
  path: ./x.db
schedulerr:
  enabled: true
`)
	if _, err := m.Parse(); err == nil {
		t.Fatal("unknown top-level key accepted")
	}

	m = writeConfig(t, `
storage:
  path: ./x.db
jobs:
  sweep:
    enabled: true
    schedule: "@daily"
    retries: 3
`)
	if _, err := m.Parse(); err == nil {
		t.Fatal("unknown job key accepted")
	}
}

func TestManagerRejectsMalformedYAML(t *testing.T) {
	t.Parallel()

	m := writeConfig(t, "storage: [unbalanced")
	if _, err := m.Parse(); err == nil {
		t.Fatal("malformed yaml accepted")
	}
}

func TestPublishShedsOldestForSlowSubscriber(t *testing.T) {
	t.Parallel()

	m := NewManager("config.yaml")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	older, newer := &Config{}, &Config{}
	m.publish(older)
	m.publish(newer)

	if got := <-ch; got != newer {
		t.Fatal("slow subscriber did not receive the newest config")
	}

	m.Unsubscribe(ch)
	if _, open := <-ch; open {
		t.Fatal("channel still open after Unsubscribe")
	}
	// Second Unsubscribe (and the deferred one) must be a no-op.
	m.Unsubscribe(ch)
}

func TestReloadDedupesUnchangedContent(t *testing.T) {
	t.Parallel()

	m := writeConfig(t, "storage:\n  path: ./a.db\n")
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	// Same decoded content, e.g. an editor touch: no publish.
	m.reload(context.Background())
	select {
	case <-ch:
		t.Fatal("unchanged reload was published")
	default:
	}

	if err := os.WriteFile(m.path, []byte("storage:\n  path: ./b.db\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	m.reload(context.Background())
	select {
	case cfg := <-ch:
		if cfg.Storage.Path != "./b.db" {
			t.Fatalf("published config has path %q", cfg.Storage.Path)
		}
		if m.Get() != cfg {
			t.Fatal("published config is not the committed one")
		}
	default:
		t.Fatal("changed reload was not published")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		return &Config{
			Storage: StorageConfig{Path: "./x.db"},
			Jobs: map[string]JobConfig{
				"sweep": {Enabled: true, Schedule: "@daily"},
			},
			Reminders: RemindersConfig{
				ApprovalIntervalDays: []int{1, 3, 7},
				TaskPriorityTiers: []TierConfig{
					{MinDays: -7, Label: "medium"},
					{MinDays: 0, Label: "urgent"},
				},
			},
		}
	}

	if err := Validate(valid()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"missing storage path", func(c *Config) { c.Storage.Path = " " }, "storage.path"},
		{"bad busy timeout", func(c *Config) { c.Storage.BusyTimeout = "fast" }, "busy_timeout"},
		{"enabled job without schedule", func(c *Config) {
			c.Jobs["sweep"] = JobConfig{Enabled: true}
		}, "schedule is required"},
		{"bad job timeout", func(c *Config) {
			c.Jobs["sweep"] = JobConfig{Enabled: true, Schedule: "@daily", Timeout: "soon"}
		}, "timeout"},
		{"non-ascending intervals", func(c *Config) {
			c.Reminders.ApprovalIntervalDays = []int{3, 1}
		}, "ascending"},
		{"non-ascending tiers", func(c *Config) {
			c.Reminders.TaskPriorityTiers = []TierConfig{{MinDays: 5, Label: "a"}, {MinDays: 2, Label: "b"}}
		}, "ascending"},
		{"tier without label", func(c *Config) {
			c.Reminders.TaskPriorityTiers = []TierConfig{{MinDays: 1}}
		}, "label"},
		{"negative retention", func(c *Config) { c.Retention.EventHorizonDays = -1 }, "event_horizon_days"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tc.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("want error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}
