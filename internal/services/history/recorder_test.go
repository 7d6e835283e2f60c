package history

import (
	"context"
	"sync"
	"testing"
	"time"

	"framelapse/internal/eventbus"
	"framelapse/internal/services/scheduler"
	logx "framelapse/pkg/logx"
)

type memStore struct {
	mu   sync.Mutex
	recs []CaptureRecord
}

func (m *memStore) AppendCapture(_ context.Context, r CaptureRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, r)
	return nil
}

func (m *memStore) Recent(context.Context, string, int) ([]CaptureRecord, error) { return nil, nil }
func (m *memStore) Stats(context.Context) ([]CameraStats, error)                 { return nil, nil }
func (m *memStore) Close() error                                                 { return nil }

func (m *memStore) snapshot() []CaptureRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CaptureRecord(nil), m.recs...)
}

func TestRecorderPersistsCaptureEvents(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	store := &memStore{}
	rec := NewRecorder(store, bus, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rec.Run(ctx)
		close(done)
	}()

	// Give the subscriber a moment to attach before publishing.
	time.Sleep(20 * time.Millisecond)

	started := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	bus.Publish(eventbus.Event{
		Type: eventbus.TypeCaptureOK,
		Data: scheduler.CaptureEvent{
			Camera:   "garden",
			JobID:    "garden_day_hourly",
			Path:     "captures/garden/2026-08/garden_2026-08-23_12-00-00.jpg",
			Started:  started,
			Duration: 800 * time.Millisecond,
			Attempts: 1,
		},
	})
	bus.Publish(eventbus.Event{Type: "engine.reconciled", Data: scheduler.ReconcileEvent{Added: 1}})
	bus.Publish(eventbus.Event{
		Type: eventbus.TypeCaptureFailed,
		Data: scheduler.CaptureEvent{Camera: "gate", JobID: "gate_day_hourly", Attempts: 3, Error: "boom"},
	})

	deadline := time.After(2 * time.Second)
	for {
		if len(store.snapshot()) >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("recorder persisted %d records, want 2", len(store.snapshot()))
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done

	recs := store.snapshot()
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2 (reconcile events are not capture records)", len(recs))
	}
	if recs[0].Camera != "garden" || recs[0].Status != StatusOK || recs[0].TookMS != 800 {
		t.Fatalf("first record = %+v", recs[0])
	}
	if !recs[0].At.Equal(started) {
		t.Fatalf("record At = %v, want event start %v", recs[0].At, started)
	}
	if recs[1].Status != StatusFailed || recs[1].Error != "boom" {
		t.Fatalf("second record = %+v", recs[1])
	}
}
