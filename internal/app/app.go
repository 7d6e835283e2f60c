// Package app wires configuration, logging, the capture engine and the
// history store into one process lifecycle.
package app

import (
	"context"
	"time"

	"framelapse/internal/config"
	"framelapse/internal/eventbus"
	"framelapse/internal/runtime/supervisor"
	"framelapse/internal/services/capture"
	"framelapse/internal/services/history"
	"framelapse/internal/services/scheduler"
	"framelapse/internal/services/status"
	logx "framelapse/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	bus    eventbus.Bus
	store  history.Store
	engine *scheduler.Service
	status *status.Service
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logxConfig(cfg.Logging))
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	store, err := history.Open(historyConfig(cfg.Storage), log.With(logx.String("comp", "history")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	exec := capture.NewExecutor(
		capture.NewFFmpegFunc(func() config.CaptureConfig { return cfgm.Get().Capture },
			log.With(logx.String("comp", "capture"))),
		log.With(logx.String("comp", "capture")))

	engCfg, err := engineConfig(cfg.Engine)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	engine := scheduler.New(engCfg, exec, bus, log.With(logx.String("comp", "engine")))

	statusSvc := status.New(statusConfig(cfg.Status), engine, store,
		log.With(logx.String("comp", "status")))

	return &App{
		cfgm:   cfgm,
		log:    log,
		logs:   logSvc,
		bus:    bus,
		store:  store,
		engine: engine,
		status: statusSvc,
	}, nil
}

// Engine exposes the scheduling engine (snapshots, pause/resume).
func (a *App) Engine() *scheduler.Service { return a.engine }

// Done is closed when the app context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// ReloadConfig forces a reload cycle (SIGHUP path). Validation failures keep
// the running config.
func (a *App) ReloadConfig(ctx context.Context) error {
	return a.cfgm.Reload(ctx)
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
	})

	cfg := a.cfgm.Get()
	if d, err := config.ParseDurationOrDefault("engine.reload_debounce", cfg.Engine.ReloadDebounce, time.Second); err == nil {
		a.cfgm.SetDebounce(d)
	}

	a.engine.Load(cfg.Cameras)
	if a.engine.Enabled() {
		a.engine.Start(a.sup.Context())
	}
	if a.status.Enabled() {
		a.status.Start(a.sup.Context())
	}

	if a.store != nil {
		rec := history.NewRecorder(a.store, a.bus, a.log.With(logx.String("comp", "history")))
		a.sup.Go0("history.record", rec.Run)
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
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
				a.applyConfig(c, last, newCfg)
				last = newCfg
			}
		}
	})

	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started")
	return nil
}

// applyConfig brings the running process in line with a freshly validated
// config: logging sinks, engine settings, on/off toggle, and the camera set.
func (a *App) applyConfig(ctx context.Context, old, cur *config.Config) {
	a.logs.Apply(logxConfig(cur.Logging))

	engCfg, err := engineConfig(cur.Engine)
	if err != nil {
		// Validate() accepted the config, so this is unreachable in practice.
		a.log.Warn("engine config rejected on reload", logx.Err(err))
		return
	}

	wasEnabled := a.engine.Enabled()
	a.engine.Apply(engCfg)

	switch {
	case wasEnabled && !engCfg.Enabled:
		a.log.Info("engine disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, engCfg.DrainTimeout+5*time.Second)
		a.engine.Stop(stopCtx)
		cancel()
	case !wasEnabled && engCfg.Enabled:
		a.log.Info("engine enabled via config")
		a.engine.Start(a.sup.Context())
	}

	var oldCams map[string]config.Camera
	if old != nil {
		oldCams = old.Cameras
	}
	a.engine.Reconcile(oldCams, cur.Cameras)

	a.status.Reconfigure(ctx, statusConfig(cur.Status))

	if !storageEqual(oldStorage(old), cur.Storage) {
		a.log.Info("storage config changed; restart required to take effect")
	}
	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.sup.Cancel()

	a.engine.Stop(ctx)
	a.status.Stop(ctx)
	if err := a.sup.Wait(ctx); err != nil && err != context.Canceled {
		a.log.Warn("background loops did not stop cleanly", logx.Err(err))
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("history close failed", logx.Err(err))
		}
	}
	a.log.Info("stopped")
	return a.logs.Close()
}

// ---- config mapping ----

func logxConfig(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File: logx.FileConfig{
			Enabled:    c.File.Enabled,
			Path:       c.File.Path,
			MaxSizeMB:  c.File.MaxSizeMB,
			MaxBackups: c.File.MaxBackups,
			MaxAgeDays: c.File.MaxAgeDays,
		},
	}
}

func engineConfig(c config.EngineConfig) (scheduler.Config, error) {
	drain, err := config.ParseDurationOrDefault("engine.drain_timeout", c.DrainTimeout, 30*time.Second)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Enabled:      c.Enabled,
		Workers:      c.Workers,
		QueueSize:    c.QueueSize,
		Timezone:     c.Timezone,
		DrainTimeout: drain,
	}, nil
}

func historyConfig(c *config.StorageConfig) history.Config {
	if c == nil {
		return history.Config{}
	}
	busy, _ := config.ParseDurationOrDefault("storage.busy_timeout", c.BusyTimeout, 0)
	return history.Config{Driver: c.Driver, Path: c.Path, BusyTimeout: busy}
}

func statusConfig(c config.StatusConfig) status.Config {
	return status.Config{
		Enabled:       c.Enabled,
		Addr:          c.Addr,
		Token:         c.Token,
		AllowInsecure: c.AllowInsecure,
		Pprof:         c.Pprof,
	}
}

func oldStorage(c *config.Config) *config.StorageConfig {
	if c == nil {
		return nil
	}
	return c.Storage
}

func storageEqual(a, b *config.StorageConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
