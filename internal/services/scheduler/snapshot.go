package scheduler

import "sort"

// NextRunTimes reports, per camera, the next fire time of every registered
// job. Jobs have no next time while the engine is stopped.
func (s *Service) NextRunTimes() map[string][]JobRun {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]JobRun, len(s.cameras))
	for name, entry := range s.cameras {
		runs := make([]JobRun, 0, len(entry.handles))
		for _, h := range entry.handles {
			r := JobRun{JobID: h.id}
			if s.c != nil && h.entryID != 0 {
				r.Next = s.c.Entry(h.entryID).Next
			}
			runs = append(runs, r)
		}
		out[name] = runs
	}
	return out
}

// Snapshot returns a point-in-time view of the registry for ops/logging.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	tz := s.cfg.Timezone
	if tz == "" && s.loc != nil {
		tz = s.loc.String()
	}

	cams := make([]CameraJobs, 0, len(s.cameras))
	for name, entry := range s.cameras {
		cj := CameraJobs{Name: name, Paused: entry.paused}
		for _, h := range entry.handles {
			ji := JobInfo{
				ID:       h.id,
				Schedule: h.schedule,
				Spec:     h.spec,
				Gated:    h.gate != nil,
			}
			if s.c != nil && h.entryID != 0 {
				e := s.c.Entry(h.entryID)
				ji.Next = e.Next
				ji.Prev = e.Prev
			}
			cj.Jobs = append(cj.Jobs, ji)
		}
		cams = append(cams, cj)
	}
	sort.Slice(cams, func(i, j int) bool { return cams[i].Name < cams[j].Name })

	snap := Snapshot{
		Enabled:  s.cfg.Enabled,
		Timezone: tz,
		Workers:  s.cfg.Workers,
	}
	if s.queue != nil {
		snap.QueueLen = len(s.queue)
		snap.QueueCap = cap(s.queue)
	}
	snap.Cameras = cams
	return snap
}
