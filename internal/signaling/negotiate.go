package signaling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/wvn/internal/config"
	"github.com/1ureka/wvn/internal/protocol"
	"github.com/1ureka/wvn/internal/transport"
	"github.com/1ureka/wvn/internal/util"
)

var (
	// ErrInvalidRemoteDescription is returned when the remote description
	// has the wrong type, does not parse, or is rejected by the peer.
	ErrInvalidRemoteDescription = errors.New("invalid remote description")

	// ErrTimeout is returned when an optional negotiation bound fires.
	ErrTimeout = errors.New("negotiation timed out")
)

// Peer is the part of the peer session used during negotiation.
// *transport.Transport implements it.
type Peer interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	GatheringComplete() <-chan struct{}
}

// Exchanger carries signal tokens to and from the remote side.
type Exchanger interface {
	// Send hands a token to the remote side.
	Send(ctx context.Context, token string) error
	// Receive blocks until the remote side's token arrives.
	Receive(ctx context.Context) (string, error)
}

// Options tunes Negotiate. The zero value waits forever.
type Options struct {
	GatherTimeout time.Duration
	TokenTimeout  time.Duration

	// Observer, when set, is called synchronously for every state entered.
	Observer func(State)
}

// Negotiate drives one side of the offer/answer exchange to StateReady.
// Candidates are not trickled: the local description is sent once gathering
// has completed.
func Negotiate(ctx context.Context, role config.Role, peer Peer, ex Exchanger, opts Options) error {
	n := &negotiator{peer: peer, ex: ex, opts: opts}

	switch role {
	case config.RoleOfferer:
		return n.offer(ctx)
	case config.RoleAnswerer:
		return n.answer(ctx)
	default:
		return fmt.Errorf("negotiate: unknown role %q", role)
	}
}

type negotiator struct {
	peer Peer
	ex   Exchanger
	opts Options
}

func (n *negotiator) enter(s State) {
	util.LogDebug("Negotiation: %s", s)
	if n.opts.Observer != nil {
		n.opts.Observer(s)
	}
}

// offer runs Idle → OfferCreated → GatheringComplete → LocalSet →
// WaitingForAnswer → RemoteSet → Ready.
func (n *negotiator) offer(ctx context.Context) error {
	n.enter(StateIdle)

	offer, err := n.peer.CreateOffer()
	if err != nil {
		return fmt.Errorf("%w: create offer: %w", transport.ErrTransport, err)
	}
	n.enter(StateOfferCreated)

	if err := n.gather(ctx, offer); err != nil {
		return err
	}
	n.enter(StateGatheringComplete)

	if err := n.sendLocal(ctx); err != nil {
		return err
	}
	n.enter(StateLocalSet)

	n.enter(StateWaitingForAnswer)
	if err := n.applyRemote(ctx, webrtc.SDPTypeAnswer); err != nil {
		return err
	}
	n.enter(StateRemoteSet)

	n.enter(StateReady)
	return nil
}

// answer runs WaitingForOffer → RemoteSet → AnswerCreated →
// GatheringComplete → LocalSet → Ready.
func (n *negotiator) answer(ctx context.Context) error {
	n.enter(StateWaitingForOffer)

	if err := n.applyRemote(ctx, webrtc.SDPTypeOffer); err != nil {
		return err
	}
	n.enter(StateRemoteSet)

	answer, err := n.peer.CreateAnswer()
	if err != nil {
		return fmt.Errorf("%w: create answer: %w", transport.ErrTransport, err)
	}
	n.enter(StateAnswerCreated)

	if err := n.gather(ctx, answer); err != nil {
		return err
	}
	n.enter(StateGatheringComplete)

	if err := n.sendLocal(ctx); err != nil {
		return err
	}
	n.enter(StateLocalSet)

	n.enter(StateReady)
	return nil
}

// gather applies the local description and blocks until ICE gathering is
// complete.
func (n *negotiator) gather(ctx context.Context, local webrtc.SessionDescription) error {
	done := n.peer.GatheringComplete()
	if err := n.peer.SetLocalDescription(local); err != nil {
		return fmt.Errorf("%w: set local %s: %w", transport.ErrTransport, local.Type, err)
	}

	ctx, cancel := withBound(ctx, n.opts.GatherTimeout, "ICE gathering")
	defer cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

func (n *negotiator) sendLocal(ctx context.Context) error {
	local := n.peer.LocalDescription()
	if local == nil {
		return fmt.Errorf("%w: no local description after gathering", transport.ErrTransport)
	}

	token, err := protocol.EncodeDescription(*local)
	if err != nil {
		return err
	}
	util.LogDebug("Local %s: %d bytes SDP, %d chars token", local.Type, len(local.SDP), len(token))

	if err := n.ex.Send(ctx, token); err != nil {
		return fmt.Errorf("send %s token: %w", local.Type, err)
	}
	return nil
}

func (n *negotiator) applyRemote(ctx context.Context, want webrtc.SDPType) error {
	rctx, cancel := withBound(ctx, n.opts.TokenTimeout, want.String()+" token")
	defer cancel()

	token, err := n.ex.Receive(rctx)
	if err != nil {
		if cause := context.Cause(rctx); errors.Is(cause, ErrTimeout) {
			return cause
		}
		return fmt.Errorf("receive %s token: %w", want, err)
	}

	remote, err := protocol.DecodeDescription(token)
	if err != nil {
		return err
	}

	candidates, err := ValidateRemote(remote, want)
	if err != nil {
		return err
	}
	util.LogDebug("Remote %s: %d bytes SDP, %d candidates", remote.Type, len(remote.SDP), candidates)
	if candidates == 0 {
		util.LogWarning("Remote %s carries no ICE candidates; the connection will likely fail", remote.Type)
	}

	if err := n.peer.SetRemoteDescription(remote); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRemoteDescription, err)
	}
	return nil
}

// ValidateRemote checks that desc has the wanted type and parses as SDP. It
// returns the number of ICE candidates it carries.
func ValidateRemote(desc webrtc.SessionDescription, want webrtc.SDPType) (int, error) {
	if desc.Type != want {
		return 0, fmt.Errorf("%w: got %s, want %s", ErrInvalidRemoteDescription, desc.Type, want)
	}

	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(desc.SDP)); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidRemoteDescription, err)
	}
	if len(parsed.MediaDescriptions) == 0 {
		return 0, fmt.Errorf("%w: no media sections", ErrInvalidRemoteDescription)
	}

	candidates := 0
	for _, md := range parsed.MediaDescriptions {
		for _, attr := range md.Attributes {
			if attr.Key == sdp.AttrKeyCandidate {
				candidates++
			}
		}
	}
	return candidates, nil
}

// withBound derives a context that expires after d with an ErrTimeout cause.
// A zero d only inherits ctx.
func withBound(ctx context.Context, d time.Duration, what string) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeoutCause(ctx, d, fmt.Errorf("%w: %s after %s", ErrTimeout, what, d))
}
