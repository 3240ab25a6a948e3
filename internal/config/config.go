// Package config holds the runtime settings of the host runner.
//
// Object capacities (tasks, event groups, queues, stacks) are compile-time
// constants of package osal and are not configurable here.
package config

// Config is the root of the YAML document.
type Config struct {
	Kernel  KernelConfig  `yaml:"kernel"`
	Run     RunConfig     `yaml:"run"`
	Demo    DemoConfig    `yaml:"demo"`
	Storage StorageConfig `yaml:"storage"`
}

// ---- KERNEL ----

type KernelConfig struct {
	TickHz     int `yaml:"tick_hz"`
	Priorities int `yaml:"priorities"`
}

// ---- RUN ----

type RunConfig struct {
	// Ticks stops the runner after this many kernel ticks. 0 runs until
	// interrupted.
	Ticks uint64 `yaml:"ticks"`
	// StepHz is how often the host converts wall time into ticks.
	StepHz int `yaml:"step_hz"`
}

// ---- DEMO WORKLOAD ----

type DemoConfig struct {
	SamplePeriodMs uint32 `yaml:"sample_period_ms"`
	QueueDepth     uint32 `yaml:"queue_depth"`
	ButtonPin      int    `yaml:"button_pin"`
	SensorCSPin    int    `yaml:"sensor_cs_pin"`
	// PulseEveryMs toggles the button pin from the host. 0 disables it.
	PulseEveryMs uint32 `yaml:"pulse_every_ms"`
}

// ---- STORAGE ----

type StorageConfig struct {
	Enabled             bool   `yaml:"enabled"`
	ImagePath           string `yaml:"image_path"` // empty keeps the card in memory
	ImageBlocks         int64  `yaml:"image_blocks"`
	FormatIfMountFailed bool   `yaml:"format_if_mount_failed"`
	MaxFiles            int    `yaml:"max_files"`
	LogPath             string `yaml:"log_path"`
}

// Default returns the settings used when no file is given.
func Default() *Config {
	return &Config{
		Kernel: KernelConfig{
			TickHz:     1000,
			Priorities: 8,
		},
		Run: RunConfig{
			StepHz: 200,
		},
		Demo: DemoConfig{
			SamplePeriodMs: 100,
			QueueDepth:     8,
			ButtonPin:      1,
			SensorCSPin:    5,
			PulseEveryMs:   1000,
		},
		Storage: StorageConfig{
			Enabled:             true,
			ImageBlocks:         4096,
			FormatIfMountFailed: true,
			MaxFiles:            4,
			LogPath:             "/samples.log",
		},
	}
}
