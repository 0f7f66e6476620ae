package tunnel_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/1ureka/wvn/internal/protocol"
	"github.com/1ureka/wvn/internal/tunnel"
	"github.com/1ureka/wvn/internal/util"
)

var errIfaceClosed = errors.New("fake interface closed")

// fakeIface hands out queued packets one per Read and records writes.
type fakeIface struct {
	in  chan []byte
	out chan []byte
}

func newFakeIface() *fakeIface {
	return &fakeIface{in: make(chan []byte, 2048), out: make(chan []byte, 2048)}
}

func (f *fakeIface) Read(p []byte) (int, error) {
	pkt, ok := <-f.in
	if !ok {
		return 0, errIfaceClosed
	}
	if len(pkt) > len(p) {
		return 0, &tunnel.FrameSizeError{Size: len(pkt), Max: len(p)}
	}
	return copy(p, pkt), nil
}

func (f *fakeIface) Write(p []byte) (int, error) {
	f.out <- append([]byte(nil), p...)
	return len(p), nil
}

// pipeEnd is one side of an in-memory message channel.
type pipeEnd struct {
	tx chan<- []byte
	rx <-chan []byte
}

func pipe() (pipeEnd, pipeEnd) {
	ab := make(chan []byte, 2048)
	ba := make(chan []byte, 2048)
	return pipeEnd{tx: ab, rx: ba}, pipeEnd{tx: ba, rx: ab}
}

func (e pipeEnd) Send(ctx context.Context, frame []byte) error {
	select {
	case e.tx <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e pipeEnd) Receive(ctx context.Context) ([]byte, error) {
	select {
	case f, ok := <-e.rx:
		if !ok {
			return nil, io.EOF
		}
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ipv4Packet returns a packet of n bytes that starts with an IPv4 version
// nibble and carries seq in its tail.
func ipv4Packet(n int, seq byte) []byte {
	pkt := bytes.Repeat([]byte{seq}, n)
	pkt[0] = 0x45
	return pkt
}

func startRelay(t *testing.T, ctx context.Context, dev tunnel.Interface, ch tunnel.Channel, opts tunnel.RelayOptions) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- tunnel.Run(ctx, dev, ch, opts) }()
	return done
}

func recvPacket(t *testing.T, out <-chan []byte) []byte {
	t.Helper()
	select {
	case pkt := <-out:
		return pkt
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for packet")
		return nil
	}
}

func TestRelayDeliversPacketsInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, b := newFakeIface(), newFakeIface()
	endA, endB := pipe()
	startRelay(t, ctx, a, endA, tunnel.RelayOptions{})
	startRelay(t, ctx, b, endB, tunnel.RelayOptions{})

	const count = 1000
	for i := 0; i < count; i++ {
		a.in <- ipv4Packet(1+i%protocol.DefaultFrameSize, byte(i))
	}

	for i := 0; i < count; i++ {
		got := recvPacket(t, b.out)
		require.Equal(t, ipv4Packet(1+i%protocol.DefaultFrameSize, byte(i)), got, "packet %d", i)
	}
}

// TestRelayOutboundFrameIntegrity checks that every read becomes exactly one
// message with the same bytes, whatever those bytes are.
func TestRelayOutboundFrameIntegrity(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dev := newFakeIface()
	local, remote := pipe()
	startRelay(t, ctx, dev, local, tunnel.RelayOptions{})

	rng := rand.New(rand.NewPCG(1, 2))
	var sent [][]byte
	for _, n := range []int{1, 2, 19, 20, 64, 499, 500} {
		b := make([]byte, n)
		for i := range b {
			b[i] = byte(rng.UintN(256))
		}
		sent = append(sent, b)
		dev.in <- b
	}

	for i, want := range sent {
		got, err := remote.Receive(ctx)
		require.NoError(t, err)
		require.Equal(t, want, got, "read %d", i)
	}
}

func TestRelayIsBidirectional(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, b := newFakeIface(), newFakeIface()
	endA, endB := pipe()
	startRelay(t, ctx, a, endA, tunnel.RelayOptions{})
	startRelay(t, ctx, b, endB, tunnel.RelayOptions{})

	a.in <- ipv4Packet(64, 1)
	b.in <- ipv4Packet(64, 2)

	require.Equal(t, ipv4Packet(64, 1), recvPacket(t, b.out))
	require.Equal(t, ipv4Packet(64, 2), recvPacket(t, a.out))
}

func TestRelayDropsOversizePackets(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dev := newFakeIface()
	local, remote := pipe()
	startRelay(t, ctx, dev, local, tunnel.RelayOptions{})

	before := util.Stats.FramesDropped.Load()

	dev.in <- ipv4Packet(protocol.DefaultFrameSize+1, 1)
	dev.in <- []byte{}
	dev.in <- ipv4Packet(protocol.DefaultFrameSize, 2)

	frame, err := remote.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, ipv4Packet(protocol.DefaultFrameSize, 2), frame)
	require.GreaterOrEqual(t, util.Stats.FramesDropped.Load()-before, int64(1))
}

func TestRelayPacketInfo(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dev := newFakeIface()
	local, remote := pipe()
	startRelay(t, ctx, dev, local, tunnel.RelayOptions{PacketInfo: true})

	v4 := ipv4Packet(40, 7)
	v6 := bytes.Repeat([]byte{0x60}, 60)
	dev.in <- v4
	dev.in <- v6

	frame, err := remote.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0x08, 0x00}, frame[:protocol.PacketInfoLen])
	require.Equal(t, v4, frame[protocol.PacketInfoLen:])

	frame, err = remote.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0x86, 0xdd}, frame[:protocol.PacketInfoLen])

	// Inbound frames lose their header before reaching the interface.
	require.NoError(t, remote.Send(ctx, protocol.WithPacketInfo(v4)))
	require.Equal(t, v4, recvPacket(t, dev.out))
}

func TestRelayPacketInfoShrinksPacketLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dev := newFakeIface()
	local, remote := pipe()
	startRelay(t, ctx, dev, local, tunnel.RelayOptions{FrameSize: 100, PacketInfo: true})

	dev.in <- ipv4Packet(97, 1)
	dev.in <- ipv4Packet(96, 2)

	frame, err := remote.Receive(ctx)
	require.NoError(t, err)
	require.Len(t, frame, 100)
	require.Equal(t, byte(2), frame[len(frame)-1])
}

func TestRelayDropsMalformedInbound(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dev := newFakeIface()
	local, remote := pipe()
	startRelay(t, ctx, dev, local, tunnel.RelayOptions{PacketInfo: true})

	require.NoError(t, remote.Send(ctx, []byte{0, 0}))
	require.NoError(t, remote.Send(ctx, protocol.WithPacketInfo([]byte{0x10, 0x00})))
	require.NoError(t, remote.Send(ctx, protocol.WithPacketInfo(ipv4Packet(20, 3))))

	require.Equal(t, ipv4Packet(20, 3), recvPacket(t, dev.out))
	select {
	case extra := <-dev.out:
		t.Fatalf("unexpected write %x", extra)
	default:
	}
}

func TestRelayStopsDispatchAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	dev := newFakeIface()
	local, remote := pipe()
	done := startRelay(t, ctx, dev, local, tunnel.RelayOptions{})

	dev.in <- ipv4Packet(30, 1)
	frame, err := remote.Receive(context.Background())
	require.NoError(t, err)
	require.Equal(t, ipv4Packet(30, 1), frame)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	dev.in <- ipv4Packet(30, 2)
	probe, stop := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer stop()
	_, err = remote.Receive(probe)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRelayReturnsJoinedErrors(t *testing.T) {
	dev := newFakeIface()
	close(dev.in)
	rx := make(chan []byte)
	close(rx)
	local := pipeEnd{tx: make(chan []byte, 1), rx: rx}

	err := tunnel.Run(context.Background(), dev, local, tunnel.RelayOptions{})
	require.ErrorIs(t, err, errIfaceClosed)
	require.ErrorIs(t, err, io.EOF)
}

func TestRelayRejectsTinyFrameSize(t *testing.T) {
	dev := newFakeIface()
	local, _ := pipe()

	err := tunnel.Run(context.Background(), dev, local, tunnel.RelayOptions{FrameSize: protocol.PacketInfoLen, PacketInfo: true})
	require.Error(t, err)
}
