package scheduler

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"framelapse/internal/eventbus"
	logx "framelapse/pkg/logx"
)

func New(cfg Config, runner CaptureRunner, bus eventbus.Bus, log logx.Logger) *Service {
	return &Service{
		cfg:     cfg,
		runner:  runner,
		bus:     bus,
		log:     log,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		cameras: map[string]*cameraEntry{},
	}
}

// Enabled reports the current config flag. (Thread-safe; Apply() may run concurrently.)
func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Apply swaps the engine config at runtime. A timezone change restarts the
// cron instance and re-registers every handle in the new location.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg

	if s.stopCh == nil {
		return
	}
	if oldTZ != newTZ {
		s.restartLocked()
	}
	// Worker pool resizing requires a stop/start cycle.
}

// Start builds the cron instance, registers all persisted jobs and spawns
// the capture worker pool. Safe to call after Stop().
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	cur := s.cfg
	s.mu.Unlock()
	s.log.Debug("start requested",
		logx.Bool("enabled", cur.Enabled),
		logx.Int("workers", cur.Workers),
		logx.String("tz", strings.TrimSpace(cur.Timezone)))

	// If a Stop() is in progress, wait for it to complete (prevents double worker pools).
	for {
		s.mu.Lock()
		if s.stopCh == nil {
			break
		}
		done := s.stopDone
		// already running (no stop in progress)
		if done == nil {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		select {
		case <-done:
			// loop and try again
		case <-ctx.Done():
			return
		}
	}
	defer s.mu.Unlock()
	s.stopCh = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	queueSize := s.cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	// Fresh queue per run to avoid executing stale tasks after a stop/start toggle.
	s.queue = make(chan captureTask, queueSize)

	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	// Re-register every handle of every camera into the new cron instance.
	for name, entry := range s.cameras {
		for i := range entry.handles {
			if err := s.registerLocked(&entry.handles[i], name); err != nil {
				s.log.Error("job re-registration failed",
					logx.String("job", entry.handles[i].id), logx.Err(err))
			}
		}
	}

	// Local captures prevent races if fields are swapped/nilled during Stop().
	runCtx := s.runCtx
	stopCh := s.stopCh
	queue := s.queue

	s.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in capture worker",
						logx.Int("worker", idx),
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())))
				}
			}()
			s.worker(runCtx, stopCh, queue, idx)
		}()
	}
	s.c.Start()
	s.log.Info("engine started",
		logx.Int("workers", workers),
		logx.String("tz", loc.String()),
		logx.Int("cameras", len(s.cameras)),
		logx.Int("jobs", s.jobCountLocked()))
}

// Stop halts firing (no new triggers), then drains: in-flight captures get
// until the DrainTimeout (or ctx deadline, whichever is sooner) to finish
// before their contexts are cancelled. Individual captures are still bounded
// by their own attempt timeouts after cancellation.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.log.Info("stop requested")

	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	stopCh := s.stopCh
	cancel := s.runCancel
	c := s.c
	drain := s.cfg.DrainTimeout
	// prevent new cron enqueues quickly
	s.c = nil
	s.runCancel = nil
	s.mu.Unlock()

	// No new fires, no new queue pickups.
	close(stopCh)
	if c != nil {
		<-c.Stop().Done()
	}

	if drain <= 0 {
		drain = 30 * time.Second
	}
	drained := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drain):
		s.log.Warn("drain timeout; cancelling in-flight captures", logx.Duration("after", drain))
		if cancel != nil {
			cancel()
		}
		<-drained
	case <-ctx.Done():
		s.log.Warn("stop context done; cancelling in-flight captures")
		if cancel != nil {
			cancel()
		}
		<-drained
	}
	if cancel != nil {
		cancel()
	}

	s.mu.Lock()
	s.stopCh = nil
	s.runCtx = nil
	s.queue = nil
	s.stopDone = nil
	// Handles keep their definitions but their entries died with the cron
	// instance; zero the IDs so a later Start() re-registers cleanly.
	for _, entry := range s.cameras {
		for i := range entry.handles {
			entry.handles[i].entryID = 0
		}
	}
	s.mu.Unlock()
	close(done)
	s.log.Info("engine stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) restartLocked() {
	if s.c != nil {
		<-s.c.Stop().Done()
	}
	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	for name, entry := range s.cameras {
		for i := range entry.handles {
			entry.handles[i].entryID = 0
			if err := s.registerLocked(&entry.handles[i], name); err != nil {
				s.log.Error("job re-registration failed",
					logx.String("job", entry.handles[i].id), logx.Err(err))
			}
		}
	}
	s.c.Start()
	s.log.Info("engine restarted", logx.String("tz", loc.String()), logx.Int("jobs", s.jobCountLocked()))
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
