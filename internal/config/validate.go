package config

import (
	"fmt"
	"strings"

	"sparkrt/osal"
)

const (
	// MaxTickHz bounds the tick rate; above it a millisecond timeout no
	// longer fits the tick arithmetic comfortably.
	MaxTickHz = 10000
	// MaxPriorities is the largest priority count the scheduler supports.
	MaxPriorities = 32
	// SamplePacketBytes is the size of one queued sample.
	SamplePacketBytes = 8
	// MaxPin is the highest general-purpose pin index; 0 is the LED.
	MaxPin = 7
	// MinImageBlocks is the smallest card FAT can be formatted on.
	MinImageBlocks = 128
)

// Validate checks configuration correctness.
// It does not mutate cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}

	k := cfg.Kernel
	if k.TickHz < 1 || k.TickHz > MaxTickHz {
		return fmt.Errorf("kernel.tick_hz %d: must be in [1, %d]", k.TickHz, MaxTickHz)
	}
	if k.Priorities < 1 || k.Priorities > MaxPriorities {
		return fmt.Errorf("kernel.priorities %d: must be in [1, %d]", k.Priorities, MaxPriorities)
	}
	if int(osal.PriorityCritical) >= k.Priorities {
		return fmt.Errorf("kernel.priorities %d: need at least %d for the OSAL priorities",
			k.Priorities, int(osal.PriorityCritical)+1)
	}

	if cfg.Run.StepHz < 0 {
		return fmt.Errorf("run.step_hz %d: must not be negative", cfg.Run.StepHz)
	}

	d := cfg.Demo
	if d.SamplePeriodMs == 0 || d.SamplePeriodMs == osal.WaitForever {
		return fmt.Errorf("demo.sample_period_ms %d: must be a finite nonzero period", d.SamplePeriodMs)
	}
	if maxDepth := uint32(osal.QueueStorageBytes / SamplePacketBytes); d.QueueDepth == 0 || d.QueueDepth > maxDepth {
		return fmt.Errorf("demo.queue_depth %d: must be in [1, %d]", d.QueueDepth, maxDepth)
	}
	if d.ButtonPin < 1 || d.ButtonPin > MaxPin {
		return fmt.Errorf("demo.button_pin %d: must be in [1, %d]", d.ButtonPin, MaxPin)
	}
	if d.SensorCSPin < 0 || d.SensorCSPin > MaxPin {
		return fmt.Errorf("demo.sensor_cs_pin %d: must be in [0, %d]", d.SensorCSPin, MaxPin)
	}
	if d.SensorCSPin != 0 && d.SensorCSPin == d.ButtonPin {
		return fmt.Errorf("demo.sensor_cs_pin %d: already used as demo.button_pin", d.SensorCSPin)
	}

	s := cfg.Storage
	if !s.Enabled {
		return nil
	}
	if s.ImageBlocks < MinImageBlocks {
		return fmt.Errorf("storage.image_blocks %d: must be at least %d", s.ImageBlocks, MinImageBlocks)
	}
	if s.MaxFiles < 0 {
		return fmt.Errorf("storage.max_files %d: must not be negative", s.MaxFiles)
	}
	if strings.TrimSpace(s.LogPath) == "" {
		return fmt.Errorf("storage.log_path: required when storage is enabled")
	}
	return nil
}
