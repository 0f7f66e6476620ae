// Package app contains the top-level orchestration of one VPN session for
// either role.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/1ureka/wvn/internal/config"
	"github.com/1ureka/wvn/internal/signaling"
	"github.com/1ureka/wvn/internal/transport"
	"github.com/1ureka/wvn/internal/tunnel"
	"github.com/1ureka/wvn/internal/util"
)

// Run orchestrates the full session lifecycle:
//  1. Bring up the virtual interface
//  2. Exchange signal tokens and open the DataChannel
//  3. Relay packets until the session fails, closes or ctx is cancelled
//
// A session that ends after the channel opened is a normal shutdown and
// yields nil. Errors before that point are returned.
func Run(ctx context.Context, cfg config.Config) error {
	dev, err := tunnel.Open(cfg.Interface)
	if err != nil {
		return fmt.Errorf("failed to open interface: %w", err)
	}
	defer dev.Close()

	ex, closer, err := signaling.NewExchanger(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to start token exchange: %w", err)
	}

	return runSession(ctx, cfg, dev, ex, closer)
}

func runSession(ctx context.Context, cfg config.Config, dev tunnel.Interface, ex signaling.Exchanger, exCloser io.Closer, opts ...signaling.Option) error {
	establish := signaling.EstablishAsOfferer
	if cfg.Role == config.RoleAnswerer {
		establish = signaling.EstablishAsAnswerer
	}

	tr, err := establish(ctx, cfg, ex, opts...)
	if cerr := exCloser.Close(); cerr != nil {
		util.LogDebug("Closing token exchange: %v", cerr)
	}
	if err != nil {
		return err
	}

	if err := tr.Monitor().OnStateChange(func(s transport.State) {
		util.LogInfo("Session state: %s", s)
	}); err != nil {
		util.LogDebug("State logging: %v", err)
	}

	util.LogSuccess("Tunnel established on %s (%s), relaying packets", cfg.Interface.Name, cfg.Interface.Address)

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-tr.Done():
			cancel()
		case <-sessCtx.Done():
		}
	}()

	util.StartStatsReporter(sessCtx)

	relayErr := tunnel.Run(sessCtx, dev, tr, tunnel.RelayOptions{
		FrameSize:  cfg.FrameSize,
		PacketInfo: cfg.Interface.PacketInfo,
	})

	ended := sessionEnded(tr)
	cancel()
	if err := tr.Close(); err != nil {
		util.LogDebug("Closing transport: %v", err)
	}

	switch {
	case ctx.Err() != nil:
		util.LogInfo("Interrupted, tunnel closed")
	case ended:
		if err := tr.Monitor().Err(); err != nil {
			util.LogWarning("Session ended: %v", err)
		} else {
			util.LogWarning("Session ended: channel closed by peer")
		}
	case relayErr != nil:
		return fmt.Errorf("relay stopped: %w", relayErr)
	}
	if relayErr != nil {
		util.LogDebug("Relay: %v", relayErr)
	}
	return nil
}

func sessionEnded(tr *transport.Transport) bool {
	select {
	case <-tr.Done():
		return true
	default:
		return false
	}
}
