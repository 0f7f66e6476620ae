// Package config holds the CLI configuration types.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"runtime"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/wvn/internal/protocol"
)

// Role represents which side of the session this process plays.
type Role string

const (
	RoleOfferer  Role = "offerer"
	RoleAnswerer Role = "answerer"
)

// ParseRole accepts the role names plus the "server"/"client" aliases.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "offerer", "offer", "server":
		return RoleOfferer, nil
	case "answerer", "answer", "client":
		return RoleAnswerer, nil
	default:
		return "", fmt.Errorf("unknown role %q (want offerer or answerer)", s)
	}
}

const (
	DefaultInterfaceName = "wvns"
	DefaultMTU           = 1200
	DefaultOffererAddr   = "10.25.0.1/24"
	DefaultAnswererAddr  = "10.25.0.2/24"

	minMTU = 576
	maxMTU = 65535
)

// Interface describes the TUN device to create.
type Interface struct {
	Name       string
	Address    string // CIDR, e.g. 10.25.0.1/24
	MTU        int
	PacketInfo bool // frames on the wire carry a 4-byte packet information header
	Up         bool
}

// Prefix returns the parsed interface address.
func (i Interface) Prefix() (netip.Prefix, error) {
	return netip.ParsePrefix(i.Address)
}

// Config stores all parameters gathered from flags, env and prompts.
type Config struct {
	Role      Role
	Interface Interface

	FrameSize int  // largest packet relayed as one message
	Unordered bool // unordered, no-retransmit DataChannel

	ICEServers []webrtc.ICEServer
	ICEPort    int // fixed ICE UDP port, 0 = ephemeral

	GatherTimeout time.Duration // 0 = wait forever
	TokenTimeout  time.Duration // 0 = wait forever

	WSListen string // Offerer: serve the token exchange on this address
	WSURL    string // Answerer: fetch tokens from this WebSocket URL

	Debug bool
}

// Default returns the configuration used when no flags are given.
func Default(role Role) Config {
	addr := DefaultOffererAddr
	if role == RoleAnswerer {
		addr = DefaultAnswererAddr
	}

	return Config{
		Role: role,
		Interface: Interface{
			Name:       DefaultInterfaceName,
			Address:    addr,
			MTU:        DefaultMTU,
			PacketInfo: runtime.GOOS == "linux",
			Up:         true,
		},
		FrameSize:  protocol.DefaultFrameSize,
		ICEServers: DefaultICEServers(),
	}
}

// UsesWebSocket reports whether tokens travel over the WebSocket exchange
// instead of the console.
func (c Config) UsesWebSocket() bool {
	return c.WSListen != "" || c.WSURL != ""
}

// Validate checks the configuration for values that cannot work.
func (c Config) Validate() error {
	var errs []error

	switch c.Role {
	case RoleOfferer, RoleAnswerer:
	default:
		errs = append(errs, fmt.Errorf("role: unknown role %q", c.Role))
	}

	if strings.TrimSpace(c.Interface.Name) == "" {
		errs = append(errs, errors.New("interface name must not be empty"))
	}
	if p, err := c.Interface.Prefix(); err != nil {
		errs = append(errs, fmt.Errorf("interface address: %w", err))
	} else if p.Bits() == p.Addr().BitLen() {
		errs = append(errs, fmt.Errorf("interface address %s: netmask leaves no room for a peer", p))
	}
	if c.Interface.MTU < minMTU || c.Interface.MTU > maxMTU {
		errs = append(errs, fmt.Errorf("mtu %d out of range [%d, %d]", c.Interface.MTU, minMTU, maxMTU))
	}

	if c.FrameSize <= 0 || c.FrameSize > maxMTU {
		errs = append(errs, fmt.Errorf("frame size %d out of range (0, %d]", c.FrameSize, maxMTU))
	}

	if c.ICEPort < 0 || c.ICEPort > 65535 {
		errs = append(errs, fmt.Errorf("ice port %d out of range", c.ICEPort))
	}
	for i, s := range c.ICEServers {
		if err := validateICEServer(s); err != nil {
			errs = append(errs, fmt.Errorf("iceServers[%d]: %w", i, err))
		}
	}

	if c.GatherTimeout < 0 {
		errs = append(errs, errors.New("gather timeout must not be negative"))
	}
	if c.TokenTimeout < 0 {
		errs = append(errs, errors.New("token timeout must not be negative"))
	}

	if c.WSListen != "" && c.Role != RoleOfferer {
		errs = append(errs, errors.New("-ws-listen is only valid for the offerer"))
	}
	if c.WSURL != "" {
		if c.Role != RoleAnswerer {
			errs = append(errs, errors.New("-ws-url is only valid for the answerer"))
		}
		if !strings.HasPrefix(c.WSURL, "ws://") && !strings.HasPrefix(c.WSURL, "wss://") {
			errs = append(errs, fmt.Errorf("ws url %q must start with ws:// or wss://", c.WSURL))
		}
	}

	return errors.Join(errs...)
}
