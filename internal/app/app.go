// Package app is the composition root: it loads config, builds the logging
// service, the record store, the mailer and the orchestrator, and owns their
// lifecycle plus config hot-reload fan-out.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"clientdesk/internal/config"
	"clientdesk/internal/mailer"
	"clientdesk/internal/orchestrator"
	"clientdesk/internal/store"
	"clientdesk/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service

	st   *store.Store
	orch *orchestrator.Orchestrator

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
	})
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	st, err := store.Open(store.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		logSvc.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	sender, err := buildSender(cfg, log)
	if err != nil {
		_ = st.Close()
		logSvc.Close()
		return nil, err
	}

	orch, err := orchestrator.New(cfg, st, sender, log)
	if err != nil {
		_ = st.Close()
		logSvc.Close()
		return nil, err
	}

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		st:      st,
		orch:    orch,
	}, nil
}

func buildSender(cfg *config.Config, log logx.Logger) (mailer.Sender, error) {
	if strings.TrimSpace(cfg.Mailer.Host) == "" {
		// No outbound mail configured: every send fails, records go to
		// failed, and the logs say why. Useful on dev machines.
		log.Warn("mailer.host not configured; sends will fail")
		return mailer.Disabled{}, nil
	}
	return mailer.NewSMTP(mailer.Config{
		Host:       cfg.Mailer.Host,
		Port:       cfg.Mailer.Port,
		Username:   cfg.Mailer.Username,
		Password:   cfg.Mailer.Password,
		From:       cfg.Mailer.From,
		RatePerSec: cfg.Mailer.RatePerSec,
	}, log)
}

// Orchestrator exposes the job boundary (status, manual triggers, series
// scheduling) to the process surface.
func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orch }

func (a *App) Store() *store.Store { return a.st }

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.orch.Start(runCtx)

	// hot reload fan-out
	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-runCtx.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyReload(runCtx, newCfg)
			}
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil && runCtx.Err() == nil {
			a.log.Warn("config watch exited", logx.Err(err))
		}
	}()

	a.log.Info("app started")
	return nil
}

// applyReload pushes a validated config into the live services. Logging and
// scheduler settings apply immediately; storage and mailer changes need a
// restart and are called out as such.
func (a *App) applyReload(ctx context.Context, cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	prevEnabled := a.orch.Status().Running
	a.orch.Apply(cfg)
	if prevEnabled && !cfg.Scheduler.Enabled {
		a.log.Info("scheduler disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.orch.Stop(stopCtx)
		cancel()
	} else if !prevEnabled && cfg.Scheduler.Enabled {
		a.log.Info("scheduler enabled via config")
		a.orch.Start(ctx)
	}

	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")
	if a.cancel != nil {
		a.cancel()
	}

	a.orch.Stop(ctx)

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("stop deadline reached; background loops still unwinding")
	}

	if err := a.st.Close(); err != nil {
		a.log.Warn("store close failed", logx.Err(err))
	}
	a.log.Info("stopped")
	a.logs.Close()
	return nil
}
