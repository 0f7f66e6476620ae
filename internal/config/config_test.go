package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	for _, role := range []Role{RoleOfferer, RoleAnswerer} {
		cfg := Default(role)
		if err := cfg.Validate(); err != nil {
			t.Errorf("Default(%s).Validate() = %v", role, err)
		}
	}
}

func TestDefaultAddresses(t *testing.T) {
	if got := Default(RoleOfferer).Interface.Address; got != "10.25.0.1/24" {
		t.Errorf("offerer address = %q", got)
	}
	if got := Default(RoleAnswerer).Interface.Address; got != "10.25.0.2/24" {
		t.Errorf("answerer address = %q", got)
	}
	if got := Default(RoleOfferer).Interface.MTU; got != 1200 {
		t.Errorf("mtu = %d", got)
	}
}

func TestParseRole(t *testing.T) {
	testCases := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"offerer", RoleOfferer, true},
		{"SERVER", RoleOfferer, true},
		{" answerer ", RoleAnswerer, true},
		{"client", RoleAnswerer, true},
		{"host", "", false},
		{"", "", false},
	}

	for _, tc := range testCases {
		got, err := ParseRole(tc.in)
		if (err == nil) != tc.ok || got != tc.want {
			t.Errorf("ParseRole(%q) = %q, %v", tc.in, got, err)
		}
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad role", func(c *Config) { c.Role = "host" }, "role"},
		{"empty name", func(c *Config) { c.Interface.Name = " " }, "interface name"},
		{"bad cidr", func(c *Config) { c.Interface.Address = "10.25.0.1" }, "interface address"},
		{"host prefix", func(c *Config) { c.Interface.Address = "10.25.0.1/32" }, "netmask"},
		{"small mtu", func(c *Config) { c.Interface.MTU = 100 }, "mtu"},
		{"zero frame", func(c *Config) { c.FrameSize = 0 }, "frame size"},
		{"bad ice port", func(c *Config) { c.ICEPort = 70000 }, "ice port"},
		{"negative gather", func(c *Config) { c.GatherTimeout = -time.Second }, "gather timeout"},
		{"ws-url on offerer", func(c *Config) { c.WSURL = "ws://x" }, "-ws-url"},
		{"ws-url scheme", func(c *Config) { c.Role = RoleAnswerer; c.WSURL = "http://x" }, "ws://"},
		{"ws-listen on answerer", func(c *Config) { c.Role = RoleAnswerer; c.WSListen = ":8080" }, "-ws-listen"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default(RoleOfferer)
			tc.mutate(&cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}
