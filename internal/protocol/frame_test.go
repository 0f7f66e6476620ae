package protocol_test

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/1ureka/wvn/internal/protocol"
)

// ipv4Packet builds a minimal IPv4/UDP header from 10.25.0.1 to 10.25.0.2.
func ipv4Packet(payload int) []byte {
	pkt := make([]byte, 20+payload)
	pkt[0] = 0x45
	binary.BigEndian.PutUint16(pkt[2:4], uint16(len(pkt)))
	pkt[8] = 64
	pkt[9] = 17
	copy(pkt[12:16], []byte{10, 25, 0, 1})
	copy(pkt[16:20], []byte{10, 25, 0, 2})
	return pkt
}

func TestPacketInfoRoundTrip(t *testing.T) {
	pkt := ipv4Packet(8)

	frame := protocol.WithPacketInfo(pkt)
	require.Len(t, frame, len(pkt)+protocol.PacketInfoLen)
	require.Equal(t, uint16(0), binary.BigEndian.Uint16(frame[0:2]))
	require.Equal(t, uint16(0x0800), binary.BigEndian.Uint16(frame[2:4]))

	back, err := protocol.StripPacketInfo(frame)
	require.NoError(t, err)
	require.Equal(t, pkt, back)
}

func TestPacketInfoIPv6(t *testing.T) {
	pkt := make([]byte, 40)
	pkt[0] = 0x60

	frame := protocol.WithPacketInfo(pkt)
	require.Equal(t, uint16(0x86dd), binary.BigEndian.Uint16(frame[2:4]))
}

func TestStripPacketInfoShortFrame(t *testing.T) {
	_, err := protocol.StripPacketInfo([]byte{0, 0, 8})
	require.ErrorIs(t, err, protocol.ErrShortFrame)
}

func TestDescribe(t *testing.T) {
	got := protocol.Describe(ipv4Packet(4))
	require.True(t, strings.HasPrefix(got, "ipv4 10.25.0.1 -> 10.25.0.2 proto=17"), got)

	require.Equal(t, "empty", protocol.Describe(nil))
	require.Contains(t, protocol.Describe([]byte{0x10, 0, 0}), "non-ip")
}
