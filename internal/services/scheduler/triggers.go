package scheduler

import (
	"fmt"
	"time"

	"framelapse/internal/config"
)

const minutesPerDay = 24 * 60

// compileSchedule turns a declarative schedule into concrete triggers.
// It is pure: no registry or clock access. A nil error with zero triggers
// is valid (x_per_day with value <= 0).
func compileSchedule(sch config.Schedule) ([]trigger, error) {
	switch sch.Frequency {
	case config.FrequencyHourly:
		return []trigger{{suffix: "hourly", spec: hourlySpec(sch.Window)}}, nil

	case config.FrequencyInterval:
		if sch.Value <= 0 {
			return nil, fmt.Errorf("schedule %q: interval hours must be > 0, got %d", sch.Name, sch.Value)
		}
		every := time.Duration(sch.Value) * time.Hour
		return []trigger{{
			suffix: "interval",
			spec:   fmt.Sprintf("@every %s", every.String()),
			gate:   sch.Window,
		}}, nil

	case config.FrequencyXPerDay:
		if sch.Value <= 0 {
			return nil, nil
		}
		if sch.Window != nil && sch.Value > 1 && sch.Window.Start == sch.Window.End {
			return nil, fmt.Errorf("schedule %q: zero-span window %s-%s cannot hold %d daily fires",
				sch.Name, sch.Window.Start, sch.Window.End, sch.Value)
		}
		times := distributeTimes(sch.Value, sch.Window)
		out := make([]trigger, 0, len(times))
		for i, at := range times {
			out = append(out, trigger{
				suffix: fmt.Sprintf("daily_%d", i),
				spec:   fmt.Sprintf("%d %d * * *", at.Minute, at.Hour),
			})
		}
		return out, nil

	default:
		return nil, fmt.Errorf("schedule %q: unknown frequency %q", sch.Name, sch.Frequency)
	}
}

// hourlySpec builds the cron spec for an hourly schedule, restricting the
// hour field to the window's hours when one is set. A window that wraps
// midnight becomes two hour ranges (e.g. 22:00-04:00 => "22-23,0-4").
func hourlySpec(w *config.TimeWindow) string {
	if w == nil {
		return "0 * * * *"
	}
	if w.End.Hour < w.Start.Hour {
		return fmt.Sprintf("0 %d-23,0-%d * * *", w.Start.Hour, w.End.Hour)
	}
	return fmt.Sprintf("0 %d-%d * * *", w.Start.Hour, w.End.Hour)
}

// distributeTimes spreads count fire times evenly across the window
// (full day if nil). Endpoints are inclusive for count > 1; a single fire
// lands on the window midpoint. Times are floored to whole minutes and
// reduced mod 24h, so a wrapping window yields times on both sides of
// midnight.
func distributeTimes(count int, w *config.TimeWindow) []config.TimeOfDay {
	start := 0
	end := minutesPerDay - 1
	if w != nil {
		start = w.Start.Minutes()
		end = w.End.Minutes()
	}
	if end <= start {
		end += minutesPerDay
	}

	if count <= 1 {
		mid := (start + end) / 2
		return []config.TimeOfDay{minutesToTime(mid)}
	}

	span := end - start
	step := float64(span) / float64(count-1)

	out := make([]config.TimeOfDay, 0, count)
	for i := 0; i < count; i++ {
		m := start + int(float64(i)*step)
		out = append(out, minutesToTime(m))
	}
	return out
}

func minutesToTime(m int) config.TimeOfDay {
	return config.TimeOfDay{Hour: (m / 60) % 24, Minute: m % 60}
}
