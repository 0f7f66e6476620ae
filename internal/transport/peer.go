package transport

import (
	"fmt"

	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/wvn/internal/util"
)

// ChannelLabel is the label of the single DataChannel carrying packets.
const ChannelLabel = "data"

// Config configures the PeerConnection and its DataChannel.
type Config struct {
	ICEServers []webrtc.ICEServer
	ICEPort    int  // fixed local UDP port for ICE, 0 = ephemeral
	Unordered  bool // unordered channel with no retransmits

	// Tune adjusts the SettingEngine before the API is built.
	Tune func(*webrtc.SettingEngine)
}

// newAPI builds a webrtc.API whose internal logs go through pterm. When a
// fixed ICE port is requested the returned mux must be closed with the
// PeerConnection.
func newAPI(cfg Config) (*webrtc.API, ice.UDPMux, error) {
	se := webrtc.SettingEngine{}
	se.LoggerFactory = util.PionLoggerFactory{}

	var mux ice.UDPMux
	if cfg.ICEPort > 0 {
		m, err := ice.NewMultiUDPMuxFromPort(cfg.ICEPort)
		if err != nil {
			return nil, nil, fmt.Errorf("listen ice port %d: %w", cfg.ICEPort, err)
		}
		se.SetICEUDPMux(m)
		mux = m
	}

	if cfg.Tune != nil {
		cfg.Tune(&se)
	}

	return webrtc.NewAPI(webrtc.WithSettingEngine(se)), mux, nil
}

// newPeerConnection creates a PeerConnection configured with cfg's ICE servers.
func newPeerConnection(api *webrtc.API, cfg Config) (*webrtc.PeerConnection, error) {
	return api.NewPeerConnection(webrtc.Configuration{
		ICEServers: cfg.ICEServers,
	})
}

// newDataChannel creates the in-band "data" channel announced in the offer.
// It is ordered and reliable unless cfg.Unordered is set, in which case
// packets are neither reordered nor retransmitted, like raw IP.
func newDataChannel(pc *webrtc.PeerConnection, cfg Config) (*webrtc.DataChannel, error) {
	opts := &webrtc.DataChannelInit{}
	if cfg.Unordered {
		ordered := false
		retransmits := uint16(0)
		opts.Ordered = &ordered
		opts.MaxRetransmits = &retransmits
	}

	return pc.CreateDataChannel(ChannelLabel, opts)
}
