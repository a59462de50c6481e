package sensormux

import (
	"encoding/binary"
	"io"
	"time"
)

// MockSensorPort implements SensorPorter for testing
type MockSensorPort struct {
	ReadData      []byte
	WrittenData   []byte
	ReadError     error
	WriteError    error
	CloseError    error
	Closed        bool
	ReadDelay     time.Duration
	ReadCallCount int
}

func (m *MockSensorPort) Read(p []byte) (n int, err error) {
	if m.ReadError != nil {
		return 0, m.ReadError
	}

	if m.ReadDelay > 0 {
		time.Sleep(m.ReadDelay)
	}

	m.ReadCallCount++

	if len(m.ReadData) == 0 {
		return 0, io.EOF
	}

	n = copy(p, m.ReadData)
	m.ReadData = m.ReadData[n:]
	return n, nil
}

func (m *MockSensorPort) Write(p []byte) (n int, err error) {
	if m.WriteError != nil {
		return 0, m.WriteError
	}
	m.WrittenData = append(m.WrittenData, p...)
	return len(p), nil
}

func (m *MockSensorPort) Close() error {
	m.Closed = true
	return m.CloseError
}

// NewMockPacketMux creates a PacketMux instance backed by a mock port
// preloaded with raw bytes.
func NewMockPacketMux(mockData []byte) *PacketMux[*MockSensorPort] {
	mockPort := &MockSensorPort{
		ReadData: mockData,
	}
	return NewPacketMux[*MockSensorPort](mockPort)
}

// Frame wraps a payload in the device's wire framing so tests and replay
// tooling can synthesize port byte streams.
func Frame(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+4)
	out = append(out, frameMagic1, frameMagic2)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(payload)))
	return append(out, payload...)
}
