//go:build tinygo

package main

import (
	"context"

	"sparkrt/app"
	"sparkrt/hal"
	"sparkrt/internal/config"
)

func main() {
	h := hal.New()
	cfg := config.Default()
	// The board has a real button.
	cfg.Demo.PulseEveryMs = 0
	sys, err := app.New(h, cfg)
	if err != nil {
		h.Logger().WriteLineString("boot: " + err.Error())
		select {}
	}
	_ = sys.Run(context.Background())
}
