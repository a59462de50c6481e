package sensormux

import (
	"io"
)

// SensorPorter defines the minimal interface needed for a sensor port
type SensorPorter interface {
	io.ReadWriter
	io.Closer
}
