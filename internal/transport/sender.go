package transport

import (
	"context"
	"io"

	"github.com/pion/webrtc/v4"
)

const (
	highWaterMark  = 256 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark   = 64 * 1024  // resume sending when bufferedAmount drops below this
	sendBufferSize = 256        // outgoing frame channel capacity
)

// sender is a goroutine-based frame writer that serializes all writes to a
// single DataChannel, adding open-gate and backpressure control. Frames leave
// in the order they were enqueued.
type sender struct {
	inbox       chan []byte
	drainSignal chan struct{}

	dc     *webrtc.DataChannel // set by bind before the open signal fires
	onSent func(n int)
	onFail func(error)
}

func newSender(onSent func(int), onFail func(error)) *sender {
	return &sender{
		inbox:       make(chan []byte, sendBufferSize),
		drainSignal: make(chan struct{}, 1),
		onSent:      onSent,
		onFail:      onFail,
	}
}

// bind wires the backpressure callbacks on dc. It must be called before dc
// opens.
func (s *sender) bind(dc *webrtc.DataChannel) {
	s.dc = dc
	dc.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	dc.OnBufferedAmountLow(func() {
		select {
		case s.drainSignal <- struct{}{}:
		default:
		}
	})
}

// loop is the single-writer goroutine. It waits for the DataChannel to open,
// then drains the inbox with backpressure awareness.
func (s *sender) loop(ctx context.Context, openSignal <-chan struct{}) {
	// Phase 1: wait for DC to be open.
	select {
	case <-openSignal:
	case <-ctx.Done():
		return
	}

	// Phase 2: send frames with backpressure.
	for {
		select {
		case frame := <-s.inbox:
			if ctx.Err() != nil {
				return
			}
			if s.dc.BufferedAmount() > uint64(highWaterMark) {
				select {
				case <-s.drainSignal:
				case <-ctx.Done():
					return
				}
			}

			if err := s.dc.Send(frame); err != nil {
				s.onFail(err)
				return
			}
			s.onSent(len(frame))

		case <-ctx.Done():
			return
		}
	}
}

// send enqueues a frame for transmission. It blocks while the buffer is
// full. It fails with ctx's error, or io.ErrClosedPipe once closed is done.
func (s *sender) send(ctx context.Context, closed <-chan struct{}, frame []byte) error {
	select {
	case <-closed:
		return io.ErrClosedPipe
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case s.inbox <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-closed:
		return io.ErrClosedPipe
	}
}
