package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// DefaultFrameSize is the largest packet relayed as a single DataChannel
// message unless configured otherwise.
const DefaultFrameSize = 500

// PacketInfoLen is the size of the Linux TUN packet information header
// (2 bytes flags, 2 bytes EtherType) carried by peers running with PI.
const PacketInfoLen = 4

const (
	etherTypeIPv4 = 0x0800
	etherTypeIPv6 = 0x86dd
)

// ErrShortFrame is returned when a frame is too short to hold the packet
// information header.
var ErrShortFrame = errors.New("frame shorter than packet information header")

// WithPacketInfo returns pkt prefixed with a packet information header whose
// protocol field is derived from the IP version nibble.
func WithPacketInfo(pkt []byte) []byte {
	frame := make([]byte, PacketInfoLen+len(pkt))
	binary.BigEndian.PutUint16(frame[2:4], etherType(pkt))
	copy(frame[PacketInfoLen:], pkt)
	return frame
}

// StripPacketInfo returns the IP packet carried by a frame with a packet
// information header. The result aliases frame.
func StripPacketInfo(frame []byte) ([]byte, error) {
	if len(frame) < PacketInfoLen {
		return nil, ErrShortFrame
	}
	return frame[PacketInfoLen:], nil
}

func etherType(pkt []byte) uint16 {
	if len(pkt) > 0 && pkt[0]>>4 == ipv6.Version {
		return etherTypeIPv6
	}
	return etherTypeIPv4
}

// Describe returns a one-line summary of an IP packet for debug logs.
func Describe(pkt []byte) string {
	if len(pkt) == 0 {
		return "empty"
	}

	switch pkt[0] >> 4 {
	case ipv4.Version:
		h, err := ipv4.ParseHeader(pkt)
		if err != nil {
			return fmt.Sprintf("ipv4 len=%d (%v)", len(pkt), err)
		}
		return fmt.Sprintf("ipv4 %s -> %s proto=%d len=%d", h.Src, h.Dst, h.Protocol, len(pkt))

	case ipv6.Version:
		h, err := ipv6.ParseHeader(pkt)
		if err != nil {
			return fmt.Sprintf("ipv6 len=%d (%v)", len(pkt), err)
		}
		return fmt.Sprintf("ipv6 %s -> %s next=%d len=%d", h.Src, h.Dst, h.NextHeader, len(pkt))

	default:
		return fmt.Sprintf("non-ip version=%d len=%d", pkt[0]>>4, len(pkt))
	}
}
