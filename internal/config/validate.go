package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate rejects configs that would misbehave at runtime. Schedule-level
// problems (unknown frequency, degenerate windows) are deliberately NOT
// rejected here: the engine skips the offending schedule at compile time so
// one bad schedule never blocks an otherwise-valid reload.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if tz := strings.TrimSpace(cfg.Engine.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("engine.timezone: %w", err)
		}
	}
	if _, err := ParseDurationField("engine.drain_timeout", cfg.Engine.DrainTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("engine.reload_debounce", cfg.Engine.ReloadDebounce); err != nil {
		return err
	}
	if cfg.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			return err
		}
	}

	for name, cam := range cfg.Cameras {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("cameras: empty camera name")
		}
		if cam.Enabled && strings.TrimSpace(cam.URL) == "" {
			return fmt.Errorf("cameras.%s.url: required for enabled camera", name)
		}
		if q := cam.Capture.JPEGQuality; q < 1 || q > 100 {
			return fmt.Errorf("cameras.%s.capture.jpeg_quality: must be 1..100, got %d", name, q)
		}
		if s := cam.Capture.ResolutionScale; s != nil && (*s <= 0 || *s > 1) {
			return fmt.Errorf("cameras.%s.capture.resolution_scale: must be in (0,1], got %v", name, *s)
		}
		for i, sch := range cam.Schedules {
			if strings.TrimSpace(sch.Name) == "" {
				return fmt.Errorf("cameras.%s.schedules[%d].name: required", name, i)
			}
		}
	}
	return nil
}
