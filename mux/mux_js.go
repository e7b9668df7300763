//go:build js || wasip1

package mux

import "github.com/pion/ice/v2"

func listen(uint16) (ice.UDPMux, error) {
	return nil, ErrUnsupported
}
