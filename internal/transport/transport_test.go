package transport_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/1ureka/wvn/internal/transport"
	"github.com/1ureka/wvn/internal/transport/transporttest"
)

// connect negotiates an offerer/answerer pair over a virtual network by
// handing descriptions across directly, without trickle ICE.
func connect(t *testing.T, unordered bool) (offerer, answerer *transport.Transport) {
	t.Helper()

	tuneA, tuneB := transporttest.Pair(t)
	ctx := context.Background()

	offerer, err := transport.NewOfferer(ctx, transport.Config{Tune: tuneA, Unordered: unordered})
	require.NoError(t, err)
	t.Cleanup(func() { _ = offerer.Close() })

	answerer, err = transport.NewAnswerer(ctx, transport.Config{Tune: tuneB, Unordered: unordered})
	require.NoError(t, err)
	t.Cleanup(func() { _ = answerer.Close() })

	offer, err := offerer.CreateOffer()
	require.NoError(t, err)
	gathered := offerer.GatheringComplete()
	require.NoError(t, offerer.SetLocalDescription(offer))
	<-gathered

	require.NoError(t, answerer.SetRemoteDescription(*offerer.LocalDescription()))
	answer, err := answerer.CreateAnswer()
	require.NoError(t, err)
	gathered = answerer.GatheringComplete()
	require.NoError(t, answerer.SetLocalDescription(answer))
	<-gathered

	require.NoError(t, offerer.SetRemoteDescription(*answerer.LocalDescription()))

	for _, tr := range []*transport.Transport{offerer, answerer} {
		select {
		case <-tr.Ready():
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for DataChannel to open")
		}
	}
	return offerer, answerer
}

// TestTransportOrderedDelivery verifies that frames sent in sequence arrive
// in the same order and unchanged, in both directions.
func TestTransportOrderedDelivery(t *testing.T) {
	offerer, answerer := connect(t, false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	const n = 200
	for _, dir := range []struct {
		name     string
		from, to *transport.Transport
	}{
		{"offerer to answerer", offerer, answerer},
		{"answerer to offerer", answerer, offerer},
	} {
		t.Run(dir.name, func(t *testing.T) {
			go func() {
				for i := 0; i < n; i++ {
					frame := []byte(fmt.Sprintf("frame-%03d", i))
					if err := dir.from.Send(ctx, frame); err != nil {
						return
					}
				}
			}()

			for i := 0; i < n; i++ {
				got, err := dir.to.Receive(ctx)
				require.NoError(t, err)
				require.Equal(t, fmt.Sprintf("frame-%03d", i), string(got))
			}
		})
	}
}

func TestTransportBinaryFrame(t *testing.T) {
	offerer, answerer := connect(t, true)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	frame := bytes.Repeat([]byte{0x00, 0xff, 0x45}, 166)
	require.NoError(t, offerer.Send(ctx, frame))

	got, err := answerer.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, frame, got)
}

// TestTransportClose verifies that closing one side surfaces a terminal
// state and that the closed Transport refuses further sends.
func TestTransportClose(t *testing.T) {
	offerer, answerer := connect(t, false)

	require.NoError(t, offerer.Close())
	require.NoError(t, offerer.Close(), "second Close returns the first result")

	select {
	case <-offerer.Monitor().Done():
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not report terminal state")
	}
	require.ErrorIs(t, offerer.Monitor().Err(), transport.ErrSessionClosed)

	err := offerer.Send(context.Background(), []byte("late"))
	require.ErrorIs(t, err, transport.ErrTransport)

	select {
	case <-answerer.Done():
	case <-time.After(30 * time.Second):
		t.Fatal("answerer did not observe remote close")
	}

	_, err = answerer.Receive(context.Background())
	require.True(t, errors.Is(err, transport.ErrTransport))
}

// TestSendAfterCloseFails checks that a closed Transport rejects every send
// instead of queueing it.
func TestSendAfterCloseFails(t *testing.T) {
	tr, err := transport.NewOfferer(context.Background(), transport.Config{})
	require.NoError(t, err)
	require.NoError(t, tr.Close())

	for i := 0; i < 100; i++ {
		err := tr.Send(context.Background(), []byte{0x45})
		require.ErrorIs(t, err, transport.ErrTransport, "send %d", i)
		require.ErrorIs(t, err, io.ErrClosedPipe, "send %d", i)
	}
}
