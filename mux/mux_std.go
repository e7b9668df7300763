//go:build !(js || wasip1)

package mux

import "github.com/pion/ice/v2"

func listen(port uint16) (ice.UDPMux, error) {
	return ice.NewMultiUDPMuxFromPort(int(port))
}
