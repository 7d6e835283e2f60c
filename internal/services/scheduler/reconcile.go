package scheduler

import (
	"reflect"
	"time"

	"framelapse/internal/config"
	"framelapse/internal/eventbus"
	logx "framelapse/pkg/logx"
)

// Reconcile converges the job registry from the old camera snapshot to the
// new one:
//
//   - names only in old are removed
//   - names only in new are added
//   - names in both are torn down and recompiled when structurally changed,
//     untouched otherwise
//
// Apply failures are per-camera: the failing camera keeps its prior jobs and
// the loop continues. Running Reconcile again with old == new is a no-op.
func (s *Service) Reconcile(oldCams, newCams map[string]config.Camera) {
	s.mu.Lock()

	var ev ReconcileEvent
	for name := range oldCams {
		if _, ok := newCams[name]; ok {
			continue
		}
		if s.removeLocked(name) {
			ev.Removed++
			s.log.Info("reconcile: camera removed", logx.String("camera", name))
		}
	}

	for name, cam := range newCams {
		oldCam, existed := oldCams[name]
		switch {
		case !existed:
			if err := s.addLocked(cam); err != nil {
				s.log.Error("reconcile: add failed", logx.String("camera", name), logx.Err(err))
				continue
			}
			ev.Added++
			s.log.Info("reconcile: camera added", logx.String("camera", name))
		case !camerasEqual(oldCam, cam):
			if err := s.updateLocked(cam); err != nil {
				s.log.Error("reconcile: update failed; prior schedules remain",
					logx.String("camera", name), logx.Err(err))
				continue
			}
			ev.Updated++
			s.log.Info("reconcile: camera updated", logx.String("camera", name))
		}
	}
	jobs := s.jobCountLocked()
	s.mu.Unlock()

	if ev.Added+ev.Removed+ev.Updated > 0 {
		s.log.Info("reconcile applied",
			logx.Int("added", ev.Added),
			logx.Int("removed", ev.Removed),
			logx.Int("updated", ev.Updated),
			logx.Int("jobs", jobs))
	} else {
		s.log.Debug("reconcile: no changes")
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeReconciled, Time: time.Now(), Data: ev})
	}
}

// camerasEqual is structural equality over the full camera value, nested
// schedules and capture policy included.
func camerasEqual(a, b config.Camera) bool {
	return reflect.DeepEqual(a, b)
}
