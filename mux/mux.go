// Package mux shares one UDP port between the ICE agents of every
// connection an engine builds, so a peer behind a firewall needs a single
// inbound rule.
package mux

import (
	"errors"

	"github.com/pion/ice/v2"
	"github.com/pion/webrtc/v3"
)

// ErrUnsupported is returned on platforms without UDP sockets.
var ErrUnsupported = errors.New("mux: udp mux is not available on this platform")

// Listen binds port on every interface and routes the engine's ICE
// traffic through it. Only UDP candidates are gathered afterwards. The
// caller closes the returned mux once no connection uses it.
func Listen(engine *webrtc.SettingEngine, port uint16) (ice.UDPMux, error) {
	if port == 0 {
		return nil, errors.New("mux: port must not be zero")
	}
	m, err := listen(port)
	if err != nil {
		return nil, err
	}
	engine.SetICEUDPMux(m)
	engine.SetNetworkTypes([]webrtc.NetworkType{
		webrtc.NetworkTypeUDP4,
		webrtc.NetworkTypeUDP6,
	})
	return m, nil
}
