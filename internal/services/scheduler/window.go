package scheduler

import (
	"time"

	"framelapse/internal/config"
)

// withinWindow reports whether now's time of day falls inside the window.
// A window whose end precedes its start wraps midnight: 22:00-04:00 contains
// 23:00 and 02:00 but not 05:00. Boundaries are inclusive.
func withinWindow(w config.TimeWindow, now time.Time) bool {
	cur := now.Hour()*60 + now.Minute()
	start := w.Start.Minutes()
	end := w.End.Minutes()

	if start <= end {
		return start <= cur && cur <= end
	}
	return cur >= start || cur <= end
}
