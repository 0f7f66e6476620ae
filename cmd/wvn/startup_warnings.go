package main

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/1ureka/wvn/internal/config"
	"github.com/1ureka/wvn/internal/protocol"
)

type startupWarning struct {
	code string
	msg  string
}

// startupWarnings lists configuration choices that work but are likely to
// surprise: dropped packets, lossy channels, exposed token servers.
func startupWarnings(cfg config.Config) []startupWarning {
	var out []startupWarning

	largest := cfg.Interface.MTU
	if cfg.Interface.PacketInfo {
		largest += protocol.PacketInfoLen
	}
	if cfg.FrameSize < largest {
		out = append(out, startupWarning{
			code: "frame_smaller_than_mtu",
			msg: fmt.Sprintf("startup warning: -frame %d is below what -mtu %d can produce; larger packets will be dropped (use -frame %d or lower -mtu)",
				cfg.FrameSize, cfg.Interface.MTU, largest),
		})
	}

	if cfg.Unordered {
		out = append(out, startupWarning{
			code: "unordered_channel",
			msg:  "startup warning: -unordered delivers packets out of order and without retransmits",
		})
	}

	if len(cfg.ICEServers) == 0 {
		out = append(out, startupWarning{
			code: "no_ice_servers",
			msg:  "startup warning: no STUN/TURN servers configured; only host candidates will be offered",
		})
	}

	if cfg.WSListen != "" && listensOnAllInterfaces(cfg.WSListen) {
		out = append(out, startupWarning{
			code: "ws_listen_all_interfaces",
			msg:  fmt.Sprintf("startup warning: -ws-listen %s accepts token exchange connections on every interface (only the PIN guards it)", cfg.WSListen),
		})
	}

	if u, err := url.Parse(cfg.WSURL); err == nil && u.Scheme == "ws" && !isLoopbackHost(u.Hostname()) {
		out = append(out, startupWarning{
			code: "ws_url_plaintext",
			msg:  fmt.Sprintf("startup warning: -ws-url uses plain ws:// to %s; the PIN and tokens travel unencrypted", u.Host),
		})
	}

	return out
}

func listensOnAllInterfaces(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	return host == "" || host == "0.0.0.0" || host == "::"
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
