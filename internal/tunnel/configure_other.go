//go:build !linux

package tunnel

import (
	"github.com/1ureka/wvn/internal/config"
	"github.com/1ureka/wvn/internal/util"
)

// configure only reports what has to be set up by hand on this platform.
func configure(name string, cfg config.Interface) error {
	util.LogWarning("Assign %s (mtu %d) to %s manually and bring it up", cfg.Address, cfg.MTU, name)
	return nil
}
