//go:build !(tinygo && bootdebug)

package app

import (
	"github.com/golang/glog"

	"sparkrt/hal"
)

func bootStep(_ hal.HAL, msg string) {
	glog.V(1).Infof("boot: %s", msg)
}
