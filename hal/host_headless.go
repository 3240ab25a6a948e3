//go:build !tinygo

package hal

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"
)

// HeadlessConfig controls the host runner.
type HeadlessConfig struct {
	// Hz is how often elapsed wall time is converted into ticks.
	Hz   int
	Host HostConfig
}

// RunHeadless builds a host HAL and calls run with it while a stepper
// publishes ticks. It returns when run returns or ctx is done.
func RunHeadless(ctx context.Context, run func(context.Context, HAL) error, cfg HeadlessConfig) error {
	if cfg.Hz <= 0 {
		cfg.Hz = 200
	}
	d := time.Second / time.Duration(cfg.Hz)
	if d <= 0 {
		return fmt.Errorf("invalid headless hz: %d", cfg.Hz)
	}

	h, err := newHostHAL(cfg.Host)
	if err != nil {
		return err
	}
	defer func() {
		if err := h.Close(); err != nil {
			glog.Warningf("hal: close storage: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		t := time.NewTicker(d)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				h.t.step(1)
			}
		}
	})
	g.Go(func() error {
		defer cancel()
		return run(ctx, h)
	})
	return g.Wait()
}
