package history

import (
	"context"
	"time"

	"framelapse/internal/eventbus"
	"framelapse/internal/services/scheduler"
	logx "framelapse/pkg/logx"
)

// Recorder consumes capture events off the bus and appends them to a Store.
// It is the only writer of capture records; the engine never talks to the
// store directly.
type Recorder struct {
	store Store
	bus   eventbus.Bus
	log   logx.Logger
}

func NewRecorder(store Store, bus eventbus.Bus, log logx.Logger) *Recorder {
	return &Recorder{store: store, bus: bus, log: log}
}

// Run blocks until ctx is cancelled. A nil store or bus makes Run a no-op.
func (r *Recorder) Run(ctx context.Context) {
	if r.store == nil || r.bus == nil {
		<-ctx.Done()
		return
	}
	ch, unsub := r.bus.Subscribe(64)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			r.handle(ctx, ev)
		}
	}
}

func (r *Recorder) handle(ctx context.Context, ev eventbus.Event) {
	var status string
	switch ev.Type {
	case eventbus.TypeCaptureOK:
		status = StatusOK
	case eventbus.TypeCaptureFailed:
		status = StatusFailed
	case eventbus.TypeCaptureSkipped:
		status = StatusSkipped
	default:
		return
	}
	ce, ok := ev.Data.(scheduler.CaptureEvent)
	if !ok {
		r.log.Debug("capture event with unexpected payload", logx.String("type", ev.Type))
		return
	}

	rec := CaptureRecord{
		At:       ce.Started,
		Camera:   ce.Camera,
		JobID:    ce.JobID,
		Status:   status,
		Path:     ce.Path,
		Reason:   ce.Reason,
		Attempts: ce.Attempts,
		TookMS:   ce.Duration.Milliseconds(),
		Error:    ce.Error,
	}
	if rec.At.IsZero() {
		rec.At = ev.Time
	}

	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := r.store.AppendCapture(wctx, rec); err != nil {
		r.log.Warn("capture record write failed",
			logx.String("camera", rec.Camera),
			logx.Err(err))
	}
}
