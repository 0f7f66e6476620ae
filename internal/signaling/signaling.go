// Package signaling orchestrates the complete signaling phase, from token
// exchange to an open DataChannel. Callers receive a ready-to-use Transport.
package signaling

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/pion/webrtc/v4"
	"github.com/pterm/pterm"

	"github.com/1ureka/wvn/internal/config"
	"github.com/1ureka/wvn/internal/transport"
	"github.com/1ureka/wvn/internal/util"
)

// Option adjusts the transport built by EstablishAsOfferer and
// EstablishAsAnswerer.
type Option func(*transport.Config)

// WithSettingEngine registers a hook that edits the pion SettingEngine, e.g.
// to attach a virtual network.
func WithSettingEngine(fn func(*webrtc.SettingEngine)) Option {
	return func(c *transport.Config) { c.Tune = fn }
}

// NewExchanger returns the token exchange selected by cfg: a WS server for
// an offerer with WSListen, a WS client for an answerer with WSURL, and the
// console otherwise. The returned Closer releases it.
func NewExchanger(ctx context.Context, cfg config.Config) (Exchanger, io.Closer, error) {
	switch {
	case cfg.Role == config.RoleOfferer && cfg.WSListen != "":
		srv, err := ListenWS(cfg.WSListen)
		if err != nil {
			return nil, nil, err
		}
		printServerBanner(srv, cfg.WSListen)
		return srv, srv, nil

	case cfg.Role == config.RoleAnswerer && cfg.WSURL != "":
		util.LogInfo("Connecting to offerer at %s", cfg.WSURL)
		c, err := DialWS(ctx, cfg.WSURL)
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil

	default:
		return NewConsole(os.Stdin, os.Stdout), io.NopCloser(nil), nil
	}
}

func printServerBanner(srv *WSServer, listen string) {
	host, _, err := net.SplitHostPort(listen)
	if err != nil || host == "" || host == "0.0.0.0" || host == "::" {
		host = "<host>"
	}

	pterm.DefaultBox.
		WithTitle("WebSocket Signaling Server").
		WithWriter(os.Stderr).
		Println(fmt.Sprintf("Port : %d\nPIN  : %s\nURL  : ws://%s/ws?pin=%s",
			srv.Port(), srv.PIN(), net.JoinHostPort(host, fmt.Sprint(srv.Port())), srv.PIN()))
	util.LogInfo("Waiting for the answerer to connect...")
}

// EstablishAsOfferer executes the full offerer-side flow:
//  1. Create a Transport owning the "data" channel
//  2. Send the offer token and apply the answer token
//  3. Wait for the DataChannel to open
//  4. Return the ready Transport
func EstablishAsOfferer(ctx context.Context, cfg config.Config, ex Exchanger, opts ...Option) (*transport.Transport, error) {
	return establish(ctx, cfg, ex, transport.NewOfferer, opts)
}

// EstablishAsAnswerer executes the full answerer-side flow:
//  1. Create a Transport waiting for the remote channel
//  2. Apply the offer token and send the answer token
//  3. Wait for the DataChannel to open
//  4. Return the ready Transport
func EstablishAsAnswerer(ctx context.Context, cfg config.Config, ex Exchanger, opts ...Option) (*transport.Transport, error) {
	return establish(ctx, cfg, ex, transport.NewAnswerer, opts)
}

type newTransportFunc func(context.Context, transport.Config) (*transport.Transport, error)

func establish(ctx context.Context, cfg config.Config, ex Exchanger, newTransport newTransportFunc, opts []Option) (*transport.Transport, error) {
	tcfg := transport.Config{
		ICEServers: cfg.ICEServers,
		ICEPort:    cfg.ICEPort,
		Unordered:  cfg.Unordered,
	}
	for _, opt := range opts {
		opt(&tcfg)
	}

	tr, err := newTransport(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Transport: %w", err)
	}

	err = Negotiate(ctx, cfg.Role, tr, ex, Options{
		GatherTimeout: cfg.GatherTimeout,
		TokenTimeout:  cfg.TokenTimeout,
	})
	if err != nil {
		tr.Close()
		return nil, fmt.Errorf("signaling failed: %w", err)
	}
	util.LogInfo("Descriptions exchanged, waiting for the DataChannel to open...")

	select {
	case <-tr.Ready():
		util.LogDebug("WebRTC DataChannel established")
		return tr, nil

	case <-tr.Done():
		tr.Close()
		err := tr.Monitor().Err()
		if err == nil {
			err = ctx.Err()
		}
		if err == nil {
			err = transport.ErrTransport
		}
		return nil, fmt.Errorf("session ended before the channel opened: %w", err)

	case <-ctx.Done():
		tr.Close()
		return nil, ctx.Err()
	}
}
