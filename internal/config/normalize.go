package config

import "strings"

// Normalize applies post-validation normalization.
// It must be called only after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Run.StepHz == 0 {
		cfg.Run.StepHz = Default().Run.StepHz
	}
	// Stepping slower than the tick rate only batches ticks; stepping
	// faster publishes nothing new.
	if cfg.Run.StepHz > cfg.Kernel.TickHz {
		cfg.Run.StepHz = cfg.Kernel.TickHz
	}

	s := &cfg.Storage
	s.ImagePath = strings.TrimSpace(s.ImagePath)
	s.LogPath = strings.TrimSpace(s.LogPath)
	if s.LogPath != "" && !strings.HasPrefix(s.LogPath, "/") {
		s.LogPath = "/" + s.LogPath
	}
}
