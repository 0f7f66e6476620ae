package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/wvn/internal/util"
)

// ErrTransport wraps every failure surfaced by the peer session library.
var ErrTransport = errors.New("transport error")

func wrapErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

const recvBufferSize = 256 // inbound message channel capacity

// Transport wraps a single PeerConnection + DataChannel pair, providing a
// high-level API for signaling exchange, ordered frame sending with
// backpressure, and frame receiving.
//
// The offerer creates the "data" channel; the answerer adopts it when it is
// announced by the remote side. Either way Ready is closed once it opens.
type Transport struct {
	pc  *webrtc.PeerConnection
	mux io.Closer

	mu sync.Mutex
	dc *webrtc.DataChannel

	sender     *sender
	recv       chan []byte
	openSignal chan struct{}
	openOnce   sync.Once
	monitor    *Monitor

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// NewOfferer creates a Transport that owns the DataChannel. The channel is
// announced in the offer.
func NewOfferer(ctx context.Context, cfg Config) (*Transport, error) {
	t, err := newTransport(ctx, cfg)
	if err != nil {
		return nil, err
	}

	dc, err := newDataChannel(t.pc, cfg)
	if err != nil {
		t.Close()
		return nil, wrapErr("create data channel", err)
	}
	t.attach(dc)

	return t, nil
}

// NewAnswerer creates a Transport that waits for the remote side to
// announce the DataChannel.
func NewAnswerer(ctx context.Context, cfg Config) (*Transport, error) {
	t, err := newTransport(ctx, cfg)
	if err != nil {
		return nil, err
	}

	t.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != ChannelLabel {
			util.LogWarning("Ignoring unexpected DataChannel %q", dc.Label())
			return
		}
		t.attach(dc)
	})

	return t, nil
}

func newTransport(ctx context.Context, cfg Config) (*Transport, error) {
	api, mux, err := newAPI(cfg)
	if err != nil {
		return nil, wrapErr("configure", err)
	}

	pc, err := newPeerConnection(api, cfg)
	if err != nil {
		if mux != nil {
			mux.Close()
		}
		return nil, wrapErr("create peer connection", err)
	}

	tCtx, tCancel := context.WithCancel(ctx)

	t := &Transport{
		pc:         pc,
		recv:       make(chan []byte, recvBufferSize),
		openSignal: make(chan struct{}),
		monitor:    newMonitor(),
		ctx:        tCtx,
		cancel:     tCancel,
	}
	if mux != nil {
		t.mux = mux
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
		t.monitor.observe(state)
	})

	// Terminal session state → cancel transport context.
	go func() {
		select {
		case <-t.monitor.Done():
			tCancel()
		case <-tCtx.Done():
		}
	}()

	t.sender = newSender(util.Stats.AddSent, func(err error) {
		util.LogError("Failed to send frame: %v", err)
		tCancel()
	})
	go t.sender.loop(tCtx, t.openSignal)

	return t, nil
}

// attach binds the DataChannel. Only the first channel is used.
func (t *Transport) attach(dc *webrtc.DataChannel) {
	t.mu.Lock()
	if t.dc != nil {
		t.mu.Unlock()
		util.LogWarning("Ignoring duplicate DataChannel %q", dc.Label())
		return
	}
	t.dc = dc
	t.mu.Unlock()

	t.sender.bind(dc)

	// DC open gate.
	dc.OnOpen(func() {
		t.openOnce.Do(func() {
			util.LogDebug("DataChannel %q open (ordered=%v)", dc.Label(), dc.Ordered())
			close(t.openSignal)
		})
	})

	// DC close → cancel transport context.
	dc.OnClose(func() {
		util.LogDebug("DataChannel closed")
		t.cancel()
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case t.recv <- msg.Data:
		case <-t.ctx.Done():
		}
	})
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Ready returns a channel that is closed when the DataChannel is open and
// the Transport is ready to send and receive.
func (t *Transport) Ready() <-chan struct{} {
	return t.openSignal
}

// Done returns a channel that is closed when the Transport is shut down
// (DataChannel closed, session failed or closed, parent context cancelled).
func (t *Transport) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Monitor returns the session state monitor.
func (t *Transport) Monitor() *Monitor {
	return t.monitor
}

// Close shuts down the DataChannel and PeerConnection. Only the first call
// does anything; later calls return the same result.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.cancel()

		t.mu.Lock()
		dc := t.dc
		t.mu.Unlock()

		var errs []error
		if dc != nil {
			errs = append(errs, dc.Close())
		}
		errs = append(errs, t.pc.Close())
		if t.mux != nil {
			errs = append(errs, t.mux.Close())
		}

		t.monitor.observe(webrtc.PeerConnectionStateClosed)
		t.monitor.shutdown()
		t.closeErr = errors.Join(errs...)
	})
	return t.closeErr
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer.
func (t *Transport) CreateOffer() (webrtc.SessionDescription, error) {
	return t.pc.CreateOffer(nil)
}

// CreateAnswer generates an SDP answer.
func (t *Transport) CreateAnswer() (webrtc.SessionDescription, error) {
	return t.pc.CreateAnswer(nil)
}

// SetLocalDescription applies the local SDP.
func (t *Transport) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetLocalDescription(sdp)
}

// SetRemoteDescription applies the remote SDP.
func (t *Transport) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(sdp)
}

// LocalDescription returns the local SDP including gathered candidates.
func (t *Transport) LocalDescription() *webrtc.SessionDescription {
	return t.pc.LocalDescription()
}

// GatheringComplete returns a channel closed when ICE gathering finishes. It
// must be obtained before SetLocalDescription starts gathering.
func (t *Transport) GatheringComplete() <-chan struct{} {
	return webrtc.GatheringCompletePromise(t.pc)
}

// ---------------------------------------------------------------------------
// Data
// ---------------------------------------------------------------------------

// Send enqueues one frame. Frames are sent in call order. Send blocks while
// the outgoing buffer is full and fails once the Transport is done.
func (t *Transport) Send(ctx context.Context, frame []byte) error {
	if t.ctx.Err() != nil {
		return wrapErr("send", io.ErrClosedPipe)
	}

	if err := t.sender.send(ctx, t.ctx.Done(), frame); err != nil {
		if errors.Is(err, io.ErrClosedPipe) {
			return wrapErr("send", err)
		}
		return err
	}
	return nil
}

// Receive blocks for the next inbound message.
func (t *Transport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-t.recv:
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.ctx.Done():
		return nil, wrapErr("receive", io.ErrClosedPipe)
	}
}
