package sensormux

import (
	"go.bug.st/serial"
)

// NewRealPacketMux creates a PacketMux instance backed by a real serial
// port at the given path.
func NewRealPacketMux(path string, opts PortOptions) (*PacketMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	return NewPacketMux[serial.Port](port), nil
}
