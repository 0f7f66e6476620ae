package tunnel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/1ureka/wvn/internal/protocol"
	"github.com/1ureka/wvn/internal/util"
)

// Interface is the local end of the relay. Read returns one IP packet per
// call, or *FrameSizeError for a packet that did not fit p.
type Interface interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// Channel is the remote end of the relay; one message per packet.
type Channel interface {
	Send(ctx context.Context, frame []byte) error
	Receive(ctx context.Context) ([]byte, error)
}

// RelayOptions tunes Run.
type RelayOptions struct {
	// FrameSize bounds every message on the wire. Zero means
	// protocol.DefaultFrameSize.
	FrameSize int
	// PacketInfo prepends and strips the 4-byte TUN packet information header.
	PacketInfo bool
}

func (o RelayOptions) frameSize() int {
	if o.FrameSize <= 0 {
		return protocol.DefaultFrameSize
	}
	return o.FrameSize
}

// maxPacket is the largest IP packet that fits one frame.
func (o RelayOptions) maxPacket() int {
	if o.PacketInfo {
		return o.frameSize() - protocol.PacketInfoLen
	}
	return o.frameSize()
}

// Run relays packets between dev and ch in both directions until ctx is done
// or both directions have stopped. It returns the joined direction errors.
//
// Run does not close dev; a direction blocked in Read returns once the
// caller closes the device. Nothing is dispatched after ctx is done.
func Run(ctx context.Context, dev Interface, ch Channel, opts RelayOptions) error {
	if opts.maxPacket() <= 0 {
		return fmt.Errorf("frame size %d leaves no room for a packet", opts.frameSize())
	}

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	record := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		record(outbound(ctx, dev, ch, opts))
	}()
	go func() {
		defer wg.Done()
		record(inbound(ctx, dev, ch, opts))
	}()

	stopped := make(chan struct{})
	go func() {
		wg.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	return errors.Join(errs...)
}

// outbound reads packets from the interface and sends each as one message.
func outbound(ctx context.Context, dev Interface, ch Channel, opts RelayOptions) error {
	buf := make([]byte, opts.maxPacket())

	for {
		n, err := dev.Read(buf)
		if ctx.Err() != nil {
			return nil
		}

		var tooBig *FrameSizeError
		switch {
		case errors.As(err, &tooBig):
			util.LogWarning("Dropped outbound packet: %v", tooBig)
			util.Stats.AddDropped()
			continue
		case err != nil:
			util.LogError("Interface read stopped: %v", err)
			return fmt.Errorf("interface to channel: %w", err)
		case n == 0:
			continue
		}

		pkt := buf[:n]
		if util.DebugEnabled() {
			util.LogDebug("tun -> dc %s", protocol.Describe(pkt))
		}

		var frame []byte
		if opts.PacketInfo {
			frame = protocol.WithPacketInfo(pkt)
		} else {
			frame = append([]byte(nil), pkt...)
		}

		if err := ch.Send(ctx, frame); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			util.LogError("Channel send stopped: %v", err)
			return fmt.Errorf("interface to channel: %w", err)
		}
	}
}

// inbound writes every received message to the interface.
func inbound(ctx context.Context, dev Interface, ch Channel, opts RelayOptions) error {
	for {
		frame, err := ch.Receive(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			util.LogError("Channel receive stopped: %v", err)
			return fmt.Errorf("channel to interface: %w", err)
		}

		pkt := frame
		if opts.PacketInfo {
			if pkt, err = protocol.StripPacketInfo(frame); err != nil {
				util.LogWarning("Dropped inbound frame of %d bytes: %v", len(frame), err)
				util.Stats.AddDropped()
				continue
			}
		}
		if !isIP(pkt) {
			util.LogWarning("Dropped inbound frame: %s", protocol.Describe(pkt))
			util.Stats.AddDropped()
			continue
		}

		if util.DebugEnabled() {
			util.LogDebug("dc -> tun %s", protocol.Describe(pkt))
		}

		if _, err := dev.Write(pkt); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			util.LogError("Interface write stopped: %v", err)
			return fmt.Errorf("channel to interface: %w", err)
		}
		util.Stats.AddRecv(len(pkt))
	}
}

// isIP reports whether pkt starts with an IPv4 or IPv6 version nibble.
func isIP(pkt []byte) bool {
	if len(pkt) == 0 {
		return false
	}
	v := pkt[0] >> 4
	return v == 4 || v == 6
}
