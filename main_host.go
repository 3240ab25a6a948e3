//go:build !tinygo

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/golang/glog"

	"sparkrt/app"
	"sparkrt/hal"
	"sparkrt/internal/buildinfo"
	"sparkrt/internal/config"
)

func main() {
	var (
		path  string
		ticks uint64
		hz    int
		sd    string
	)
	flag.StringVar(&path, "config", "", "YAML settings file. Empty uses the defaults.")
	flag.Uint64Var(&ticks, "ticks", 0, "Stop after N kernel ticks (0 = run.ticks from the config).")
	flag.IntVar(&hz, "hz", 0, "Kernel tick rate (0 = kernel.tick_hz from the config).")
	flag.StringVar(&sd, "sd", "", "SD card image file (overrides storage.image_path).")
	_ = flag.Set("logtostderr", "true")
	flag.Parse()
	defer glog.Flush()

	cfg, err := loadConfig(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if ticks > 0 {
		cfg.Run.Ticks = ticks
	}
	if hz > 0 {
		cfg.Kernel.TickHz = hz
	}
	if sd != "" {
		cfg.Storage.ImagePath = sd
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	config.Normalize(cfg)

	glog.Infof("sparkrt %s: %d Hz tick, stepping at %d Hz", buildinfo.Short(), cfg.Kernel.TickHz, cfg.Run.StepHz)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err = hal.RunHeadless(ctx, func(ctx context.Context, h hal.HAL) error {
		sys, err := app.New(h, cfg)
		if err != nil {
			return err
		}
		defer func() {
			sys.Close(context.Background())
			st := sys.Stats()
			glog.Infof("sampled=%d dropped=%d logged=%d presses=%d store_errors=%d",
				st.Sampled, st.Dropped, st.Logged, st.Presses, st.StoreErr)
		}()
		return sys.Run(ctx)
	}, hal.HeadlessConfig{
		Hz: cfg.Run.StepHz,
		Host: hal.HostConfig{
			TickDuration:  time.Second / time.Duration(cfg.Kernel.TickHz),
			SDImagePath:   cfg.Storage.ImagePath,
			SDImageBlocks: cfg.Storage.ImageBlocks,
		},
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		glog.Errorf("%v", err)
		glog.Flush()
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
