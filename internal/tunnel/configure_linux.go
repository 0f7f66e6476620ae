//go:build linux

package tunnel

import (
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/vishvananda/netlink"

	"github.com/1ureka/wvn/internal/config"
)

// configure assigns the address, MTU and up state with netlink.
func configure(name string, cfg config.Interface) (err error) {
	defer err2.Handle(&err)

	link := try.To1(netlink.LinkByName(name))
	addr := try.To1(netlink.ParseAddr(cfg.Address))

	try.To(netlink.AddrReplace(link, addr))
	try.To(netlink.LinkSetMTU(link, cfg.MTU))
	if cfg.Up {
		try.To(netlink.LinkSetUp(link))
	}

	return nil
}
