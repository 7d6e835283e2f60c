package scheduler

import (
	"fmt"
	"strings"
	"time"

	"framelapse/internal/config"
	logx "framelapse/pkg/logx"
)

// Load populates the registry from a configuration snapshot. Compile errors
// in individual schedules are logged and skipped; other cameras proceed.
func (s *Service) Load(cams map[string]config.Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cam := range cams {
		if err := s.addLocked(cam); err != nil {
			s.log.Error("camera registration failed", logx.String("camera", cam.Name), logx.Err(err))
		}
	}
	s.log.Info("cameras loaded", logx.Int("cameras", len(cams)), logx.Int("jobs", s.jobCountLocked()))
}

// AddOrUpdate registers a camera, tearing down any prior registration under
// the same name first so re-registering never duplicates handles.
func (s *Service) AddOrUpdate(cam config.Camera) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(cam)
}

// Remove unregisters every job of the named camera and drops it from the
// registry. Returns false if the camera was not registered.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := s.removeLocked(name)
	if removed {
		s.log.Info("camera removed", logx.String("camera", name))
	}
	return removed
}

// Pause suspends firing of every job of the named camera without removing
// registration. Fires occurring while paused are dropped on the firing path.
func (s *Service) Pause(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cameras[name]
	if !ok {
		return false
	}
	entry.paused = true
	s.log.Info("camera paused", logx.String("camera", name), logx.Int("jobs", len(entry.handles)))
	return true
}

// Resume lifts a Pause.
func (s *Service) Resume(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cameras[name]
	if !ok {
		return false
	}
	entry.paused = false
	s.log.Info("camera resumed", logx.String("camera", name))
	return true
}

// addLocked compiles and registers all enabled schedules of cam under a
// fresh handle set. A disabled camera is recorded with an empty set. On a
// hard registration failure the camera's partial registration is rolled
// back and the camera is left unregistered. Call with s.mu held.
func (s *Service) addLocked(cam config.Camera) error {
	if strings.TrimSpace(cam.Name) == "" {
		return fmt.Errorf("camera name required")
	}

	entry := &cameraEntry{camera: cam}
	s.cameras[cam.Name] = entry

	if !cam.Enabled {
		s.log.Debug("camera disabled; no jobs registered", logx.String("camera", cam.Name))
		return nil
	}

	for _, sch := range cam.Schedules {
		if !sch.Enabled {
			continue
		}
		trigs, err := compileSchedule(sch)
		if err != nil {
			// One malformed schedule never blocks its siblings.
			s.log.Error("schedule compile failed; skipping",
				logx.String("camera", cam.Name),
				logx.String("schedule", sch.Name),
				logx.Err(err))
			continue
		}
		for _, tr := range trigs {
			h := jobHandle{
				id:       fmt.Sprintf("%s_%s_%s", cam.Name, sch.Name, tr.suffix),
				schedule: sch.Name,
				spec:     tr.spec,
				gate:     tr.gate,
			}
			if s.c != nil {
				if err := s.registerLocked(&h, cam.Name); err != nil {
					s.unregisterHandlesLocked(entry.handles)
					delete(s.cameras, cam.Name)
					return fmt.Errorf("register job %s: %w", h.id, err)
				}
			}
			entry.handles = append(entry.handles, h)
			s.log.Debug("job registered",
				logx.String("job", h.id),
				logx.String("spec", h.spec),
				logx.Bool("gated", h.gate != nil))
		}
	}
	return nil
}

// registerLocked adds the handle's trigger to the running cron instance.
// Call with s.mu held and s.c non-nil.
func (s *Service) registerLocked(h *jobHandle, camName string) error {
	id := h.id
	eid, err := s.c.AddFunc(h.spec, func() { s.fire(camName, id) })
	if err != nil {
		return err
	}
	h.entryID = eid
	return nil
}

// removeLocked tears down every handle recorded for name and drops the name
// from the registry. Removing an unknown name is tolerated. Call with s.mu held.
func (s *Service) removeLocked(name string) bool {
	entry, ok := s.cameras[name]
	if !ok {
		return false
	}
	s.unregisterHandlesLocked(entry.handles)
	delete(s.cameras, name)
	return true
}

func (s *Service) unregisterHandlesLocked(handles []jobHandle) {
	for _, h := range handles {
		if h.entryID == 0 {
			continue
		}
		if s.c == nil {
			// Engine stopped between registration and teardown; the entry
			// died with the cron instance. Not an error.
			s.log.Debug("job already unregistered", logx.String("job", h.id))
			continue
		}
		s.c.Remove(h.entryID)
		s.log.Debug("job unregistered", logx.String("job", h.id))
	}
}

// updateLocked is a full teardown and recompile: there is no partial diff of
// individual schedules within a camera. If re-registration fails the prior
// registration is restored so a bad update never leaves the camera dark.
// Call with s.mu held.
func (s *Service) updateLocked(cam config.Camera) error {
	prev := s.cameras[cam.Name]
	s.removeLocked(cam.Name)
	if err := s.addLocked(cam); err != nil {
		if prev != nil {
			if rerr := s.addLocked(prev.camera); rerr != nil {
				s.log.Error("restore of prior registration failed",
					logx.String("camera", cam.Name), logx.Err(rerr))
			}
		}
		return err
	}
	return nil
}

func (s *Service) jobCountLocked() int {
	n := 0
	for _, e := range s.cameras {
		n += len(e.handles)
	}
	return n
}

// fire is the cron callback for every registered job. It re-checks the
// registry under the lock (the job may have been torn down or paused since
// registration), applies the window gate for interval triggers, and hands
// the capture to the worker pool.
func (s *Service) fire(camName, jobID string) {
	s.mu.Lock()
	entry, ok := s.cameras[camName]
	var (
		cam    config.Camera
		gate   *config.TimeWindow
		paused bool
		found  bool
	)
	if ok {
		cam = entry.camera
		paused = entry.paused
		for i := range entry.handles {
			if entry.handles[i].id == jobID {
				gate = entry.handles[i].gate
				found = true
				break
			}
		}
	}
	loc := s.loc
	s.mu.Unlock()

	if !ok || !found {
		s.log.Debug("fire for unregistered job; dropping", logx.String("job", jobID))
		return
	}
	if paused {
		s.log.Debug("camera paused; dropping fire", logx.String("job", jobID))
		return
	}
	if gate != nil {
		if loc == nil {
			loc = time.Local
		}
		now := time.Now().In(loc)
		if !withinWindow(*gate, now) {
			// Silent skip: outside-window fires are expected and consume
			// no retry budget.
			s.log.Debug("outside capture window; skipping fire",
				logx.String("job", jobID),
				logx.String("window", gate.Start.String()+"-"+gate.End.String()))
			s.publishCapture(eventTypeSkipped, CaptureEvent{
				Camera: camName, JobID: jobID, Started: now, Reason: "outside_window",
			})
			return
		}
	}

	s.enqueue(captureTask{camera: cam, jobID: jobID, enqueued: time.Now()})
}
