package scheduler

import (
	"context"
	"testing"
	"time"

	"framelapse/internal/config"
	"framelapse/internal/eventbus"
	logx "framelapse/pkg/logx"
)

type nopRunner struct{}

func (nopRunner) Capture(_ context.Context, cam config.Camera) (string, int, error) {
	if !cam.Enabled {
		return "", 0, nil
	}
	return "/dev/null", 1, nil
}

func newTestService(bus eventbus.Bus) *Service {
	return New(Config{Enabled: true}, nopRunner{}, bus, logx.Nop())
}

func testCamera(name string, schedules ...config.Schedule) config.Camera {
	return config.Camera{
		Name:      name,
		URL:       "rtsp://example/" + name,
		Enabled:   true,
		Schedules: schedules,
		Capture:   config.DefaultCapturePolicy(),
	}
}

// timeNowMinuteOffset returns the local wall-clock time of day shifted by
// the given number of minutes.
func timeNowMinuteOffset(min int) config.TimeOfDay {
	now := time.Now().Add(time.Duration(min) * time.Minute)
	return config.TimeOfDay{Hour: now.Hour(), Minute: now.Minute()}
}

func hourly(name string) config.Schedule {
	return config.Schedule{Name: name, Frequency: config.FrequencyHourly, Enabled: true}
}

func TestAddRegistersOneHandlePerTrigger(t *testing.T) {
	t.Parallel()
	s := newTestService(nil)

	cam := testCamera("gate", hourly("hh"), config.Schedule{
		Name: "noon", Frequency: config.FrequencyXPerDay, Enabled: true, Value: 3,
	})
	if err := s.AddOrUpdate(cam); err != nil {
		t.Fatalf("AddOrUpdate error: %v", err)
	}

	entry := s.cameras["gate"]
	if entry == nil {
		t.Fatal("camera not registered")
	}
	if got := len(entry.handles); got != 4 {
		t.Fatalf("got %d handles, want 4 (1 hourly + 3 daily)", got)
	}
	if entry.handles[0].id != "gate_hh_hourly" {
		t.Fatalf("handle id = %q", entry.handles[0].id)
	}
}

func TestAddDisabledCameraRecordsEmptySet(t *testing.T) {
	t.Parallel()
	s := newTestService(nil)

	cam := testCamera("dark", hourly("hh"))
	cam.Enabled = false
	if err := s.AddOrUpdate(cam); err != nil {
		t.Fatalf("AddOrUpdate error: %v", err)
	}

	entry := s.cameras["dark"]
	if entry == nil {
		t.Fatal("disabled camera must still be present in the registry")
	}
	if len(entry.handles) != 0 {
		t.Fatalf("disabled camera got %d handles, want 0", len(entry.handles))
	}
}

func TestAddSkipsMalformedScheduleOnly(t *testing.T) {
	t.Parallel()
	s := newTestService(nil)

	cam := testCamera("mixed",
		config.Schedule{Name: "bad", Frequency: config.FrequencyInterval, Enabled: true, Value: 0},
		hourly("good"),
	)
	if err := s.AddOrUpdate(cam); err != nil {
		t.Fatalf("AddOrUpdate error: %v", err)
	}

	entry := s.cameras["mixed"]
	if entry == nil {
		t.Fatal("camera not registered")
	}
	if got := len(entry.handles); got != 1 {
		t.Fatalf("got %d handles, want 1 (malformed sibling skipped)", got)
	}
	if entry.handles[0].schedule != "good" {
		t.Fatalf("surviving handle = %q, want the well-formed schedule", entry.handles[0].schedule)
	}
}

func TestUpdateNeverDuplicatesHandles(t *testing.T) {
	t.Parallel()
	s := newTestService(nil)

	cam := testCamera("dup", hourly("hh"))
	for i := 0; i < 3; i++ {
		if err := s.AddOrUpdate(cam); err != nil {
			t.Fatalf("AddOrUpdate #%d error: %v", i, err)
		}
	}
	if got := len(s.cameras["dup"].handles); got != 1 {
		t.Fatalf("got %d handles after repeated updates, want 1", got)
	}
}

func TestRemoveUnknownCamera(t *testing.T) {
	t.Parallel()
	s := newTestService(nil)
	if s.Remove("ghost") {
		t.Fatal("removing an unknown camera must report false")
	}
}

func TestPauseResume(t *testing.T) {
	t.Parallel()
	s := newTestService(nil)
	if err := s.AddOrUpdate(testCamera("p", hourly("hh"))); err != nil {
		t.Fatalf("AddOrUpdate error: %v", err)
	}

	if !s.Pause("p") {
		t.Fatal("Pause returned false for a registered camera")
	}
	if !s.cameras["p"].paused {
		t.Fatal("camera not marked paused")
	}
	if !s.Resume("p") {
		t.Fatal("Resume returned false for a registered camera")
	}
	if s.cameras["p"].paused {
		t.Fatal("camera still paused after Resume")
	}
	if s.Pause("ghost") {
		t.Fatal("Pause must report false for unknown cameras")
	}
}

func TestFirePublishesSkipOutsideWindow(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	s := newTestService(bus)

	// A zero-length window on a minute we are never "in" during the test:
	// one minute in the past keeps the fire outside the gate.
	nowMin := timeNowMinuteOffset(-1)
	cam := testCamera("gated", config.Schedule{
		Name: "iv", Frequency: config.FrequencyInterval, Enabled: true, Value: 1,
		Window: &config.TimeWindow{Start: nowMin, End: nowMin},
	})
	if err := s.AddOrUpdate(cam); err != nil {
		t.Fatalf("AddOrUpdate error: %v", err)
	}

	s.fire("gated", "gated_iv_interval")

	select {
	case ev := <-events:
		if ev.Type != eventbus.TypeCaptureSkipped {
			t.Fatalf("event type = %q, want %q", ev.Type, eventbus.TypeCaptureSkipped)
		}
		ce, ok := ev.Data.(CaptureEvent)
		if !ok {
			t.Fatalf("unexpected payload %T", ev.Data)
		}
		if ce.Reason != "outside_window" {
			t.Fatalf("skip reason = %q", ce.Reason)
		}
	default:
		t.Fatal("expected a capture.skipped event")
	}
}

func TestFireDroppedWhenPaused(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	s := newTestService(bus)
	if err := s.AddOrUpdate(testCamera("p", hourly("hh"))); err != nil {
		t.Fatalf("AddOrUpdate error: %v", err)
	}
	s.Pause("p")

	s.fire("p", "p_hh_hourly")

	select {
	case ev := <-events:
		t.Fatalf("unexpected event %q while paused", ev.Type)
	default:
	}
}

func TestStopWithoutStart(t *testing.T) {
	t.Parallel()
	s := newTestService(nil)
	s.Stop(context.Background()) // must be a no-op, not a hang or panic
}
