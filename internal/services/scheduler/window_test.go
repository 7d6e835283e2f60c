package scheduler

import (
	"testing"
	"time"

	"framelapse/internal/config"
)

func at(hour, min int) time.Time {
	return time.Date(2026, 3, 14, hour, min, 0, 0, time.UTC)
}

func TestWithinWindow(t *testing.T) {
	t.Parallel()
	day := config.TimeWindow{
		Start: config.TimeOfDay{Hour: 8},
		End:   config.TimeOfDay{Hour: 20},
	}
	night := config.TimeWindow{
		Start: config.TimeOfDay{Hour: 22},
		End:   config.TimeOfDay{Hour: 4},
	}

	tests := []struct {
		name string
		win  config.TimeWindow
		now  time.Time
		want bool
	}{
		{name: "inside day window", win: day, now: at(12, 30), want: true},
		{name: "start boundary inclusive", win: day, now: at(8, 0), want: true},
		{name: "end boundary inclusive", win: day, now: at(20, 0), want: true},
		{name: "before day window", win: day, now: at(7, 59), want: false},
		{name: "after day window", win: day, now: at(20, 1), want: false},
		{name: "wrap late evening", win: night, now: at(23, 0), want: true},
		{name: "wrap after midnight", win: night, now: at(2, 0), want: true},
		{name: "wrap outside", win: night, now: at(5, 0), want: false},
		{name: "wrap start boundary", win: night, now: at(22, 0), want: true},
		{name: "wrap end boundary", win: night, now: at(4, 0), want: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := withinWindow(tt.win, tt.now); got != tt.want {
				t.Fatalf("withinWindow(%s-%s, %s) = %v, want %v",
					tt.win.Start, tt.win.End, tt.now.Format("15:04"), got, tt.want)
			}
		})
	}
}
