package scheduler

import (
	"context"
	"time"

	"framelapse/internal/eventbus"
	logx "framelapse/pkg/logx"
)

const (
	eventTypeOK      = eventbus.TypeCaptureOK
	eventTypeFailed  = eventbus.TypeCaptureFailed
	eventTypeSkipped = eventbus.TypeCaptureSkipped
)

func (s *Service) enqueue(t captureTask) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		s.log.Debug("engine not running; dropping fire", logx.String("job", t.jobID))
		return
	}
	select {
	case q <- t:
		// ok
	default:
		s.log.Warn("capture queue full; dropping fire",
			logx.String("job", t.jobID),
			logx.Int("queue_len", len(q)),
			logx.Int("queue_cap", cap(q)))
	}
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan captureTask, idx int) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			s.execOne(ctx, t)
		}
	}
}

// execOne runs one capture through the executor. Whatever the outcome, the
// firing loop is never poisoned: failures are logged, published and dropped.
func (s *Service) execOne(ctx context.Context, t captureTask) {
	start := time.Now()

	path, attempts, err := s.runner.Capture(ctx, t.camera)
	dur := time.Since(start)

	ev := CaptureEvent{
		Camera:   t.camera.Name,
		JobID:    t.jobID,
		Path:     path,
		Started:  start,
		Duration: dur,
		Attempts: attempts,
	}

	switch {
	case err != nil:
		// Recovered failure: the retry budget is spent, the fire is lost,
		// future fires are unaffected.
		ev.Error = err.Error()
		s.log.Warn("capture failed",
			logx.String("camera", t.camera.Name),
			logx.String("job", t.jobID),
			logx.Int("attempts", attempts),
			logx.Duration("dur", dur),
			logx.Err(err))
		s.publishCapture(eventTypeFailed, ev)
	case attempts == 0:
		ev.Reason = "disabled"
		s.log.Debug("capture skipped (camera disabled)",
			logx.String("camera", t.camera.Name),
			logx.String("job", t.jobID))
		s.publishCapture(eventTypeSkipped, ev)
	default:
		s.log.Info("capture ok",
			logx.String("camera", t.camera.Name),
			logx.String("job", t.jobID),
			logx.String("path", path),
			logx.Int("attempts", attempts),
			logx.Duration("dur", dur))
		s.publishCapture(eventTypeOK, ev)
	}
}

func (s *Service) publishCapture(typ string, ev CaptureEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
}
