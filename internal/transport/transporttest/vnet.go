// Package transporttest provides an in-process virtual network for tests
// that connect two peers.
package transporttest

import (
	"testing"

	"github.com/pion/logging"
	"github.com/pion/transport/v4/vnet"
	"github.com/pion/webrtc/v4"
)

const (
	cidr = "10.0.0.0/24"
	ipA  = "10.0.0.1"
	ipB  = "10.0.0.2"
)

// Pair returns two SettingEngine hooks attaching each peer to its own host
// on a shared virtual router. The router is stopped when the test ends.
func Pair(t testing.TB) (tuneA, tuneB func(*webrtc.SettingEngine)) {
	t.Helper()

	router, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          cidr,
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	t.Cleanup(func() {
		_ = router.Stop()
	})

	netA, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{ipA}})
	if err != nil {
		t.Fatalf("new net A: %v", err)
	}
	netB, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{ipB}})
	if err != nil {
		t.Fatalf("new net B: %v", err)
	}

	if err := router.AddNet(netA); err != nil {
		t.Fatalf("add net A: %v", err)
	}
	if err := router.AddNet(netB); err != nil {
		t.Fatalf("add net B: %v", err)
	}

	if err := router.Start(); err != nil {
		t.Fatalf("start router: %v", err)
	}

	return func(se *webrtc.SettingEngine) { se.SetNet(netA) },
		func(se *webrtc.SettingEngine) { se.SetNet(netB) }
}
