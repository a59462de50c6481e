// Package wire implements the byte-level packet contract spoken by the
// left/right sensor pods. Each notification carries exactly one packet,
// identified by its first byte. All multi-byte fields are little-endian.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Packet tags. The first byte of every packet identifies its type.
const (
	TagEMG       = 0x45 // 'E': batched muscle-amplitude samples
	TagTelemetry = 0x49 // 'I': inertial tempo/phase snapshot
)

// EMG packet layout: tag(u8) seq(u8) ts(u32) fs(u16) n(u16) samples(n x i16).
const emgHeaderSize = 10

// Telemetry packet layout: tag(u8) ts_ms(u32) pitch_deg(f32) pitch_vel_dps(f32)
// state(i8) rep_id(u16) desc_ms(u16) rise_ms(u16) tempo_cv(f32).
const telemetryPacketSize = 1 + 4 + 4 + 4 + 1 + 2 + 2 + 2 + 4

var (
	ErrShortPacket = fmt.Errorf("wire: packet too short")
	ErrBadTag      = fmt.Errorf("wire: unexpected packet tag")
)

// Phase is the discrete motion phase reported by the inertial channel.
type Phase int8

const (
	PhaseDescend Phase = -1
	PhaseHold    Phase = 0
	PhaseRise    Phase = 1
)

// String returns the symbolic phase name used in the telemetry log.
// Unknown codes map to HOLD so a firmware hiccup never produces an
// unparseable log row.
func (p Phase) String() string {
	switch p {
	case PhaseDescend:
		return "DESC"
	case PhaseRise:
		return "RISE"
	default:
		return "HOLD"
	}
}

// EMGBatch is one decoded amplitude-sample packet.
type EMGBatch struct {
	Seq        uint8
	DeviceTS   uint32 // device clock, ms
	SampleRate uint16 // Hz
	Samples    []int16
}

// Telemetry is one decoded inertial snapshot. The per-side engine keeps only
// the most recent value; rows in the telemetry log are written at arrival
// rate before the snapshot is overwritten.
type Telemetry struct {
	DeviceTS    uint32 // device clock, ms
	PitchDeg    float32
	PitchVelDPS float32
	Phase       Phase
	RepID       uint16
	DescentMS   uint16
	RiseMS      uint16
	TempoCV     float32
}

// Tag returns the packet tag, or 0 for an empty buffer.
func Tag(buf []byte) byte {
	if len(buf) == 0 {
		return 0
	}
	return buf[0]
}

// DecodeEMG parses an EMG sample packet. The declared sample count is clamped
// to the bytes actually present so a truncated notification yields the
// samples that survived rather than an out-of-bounds read.
func DecodeEMG(buf []byte) (EMGBatch, error) {
	if len(buf) < emgHeaderSize {
		return EMGBatch{}, ErrShortPacket
	}
	if buf[0] != TagEMG {
		return EMGBatch{}, ErrBadTag
	}

	b := EMGBatch{
		Seq:        buf[1],
		DeviceTS:   binary.LittleEndian.Uint32(buf[2:6]),
		SampleRate: binary.LittleEndian.Uint16(buf[6:8]),
	}

	n := int(binary.LittleEndian.Uint16(buf[8:10]))
	if avail := (len(buf) - emgHeaderSize) / 2; n > avail {
		n = avail
	}
	if n <= 0 {
		return EMGBatch{}, ErrShortPacket
	}

	b.Samples = make([]int16, n)
	for i := 0; i < n; i++ {
		b.Samples[i] = int16(binary.LittleEndian.Uint16(buf[emgHeaderSize+2*i:]))
	}
	return b, nil
}

// DecodeTelemetry parses an inertial telemetry packet. Non-finite float
// fields are zeroed so a corrupt frame cannot inject NaN into the pipeline.
func DecodeTelemetry(buf []byte) (Telemetry, error) {
	if len(buf) < telemetryPacketSize {
		return Telemetry{}, ErrShortPacket
	}
	if buf[0] != TagTelemetry {
		return Telemetry{}, ErrBadTag
	}

	t := Telemetry{
		DeviceTS:    binary.LittleEndian.Uint32(buf[1:5]),
		PitchDeg:    finite32(math.Float32frombits(binary.LittleEndian.Uint32(buf[5:9]))),
		PitchVelDPS: finite32(math.Float32frombits(binary.LittleEndian.Uint32(buf[9:13]))),
		Phase:       Phase(int8(buf[13])),
		RepID:       binary.LittleEndian.Uint16(buf[14:16]),
		DescentMS:   binary.LittleEndian.Uint16(buf[16:18]),
		RiseMS:      binary.LittleEndian.Uint16(buf[18:20]),
		TempoCV:     finite32(math.Float32frombits(binary.LittleEndian.Uint32(buf[20:24]))),
	}
	return t, nil
}

func finite32(v float32) float32 {
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		return 0
	}
	return v
}

// AppendEMG encodes an EMG packet. Used by fixtures, tests, and the replay
// tooling; the daemon itself only decodes.
func AppendEMG(dst []byte, b EMGBatch) []byte {
	dst = append(dst, TagEMG, b.Seq)
	dst = binary.LittleEndian.AppendUint32(dst, b.DeviceTS)
	dst = binary.LittleEndian.AppendUint16(dst, b.SampleRate)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(b.Samples)))
	for _, s := range b.Samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}

// AppendTelemetry encodes a telemetry packet.
func AppendTelemetry(dst []byte, t Telemetry) []byte {
	dst = append(dst, TagTelemetry)
	dst = binary.LittleEndian.AppendUint32(dst, t.DeviceTS)
	dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(t.PitchDeg))
	dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(t.PitchVelDPS))
	dst = append(dst, byte(t.Phase))
	dst = binary.LittleEndian.AppendUint16(dst, t.RepID)
	dst = binary.LittleEndian.AppendUint16(dst, t.DescentMS)
	dst = binary.LittleEndian.AppendUint16(dst, t.RiseMS)
	dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(t.TempoCV))
	return dst
}
