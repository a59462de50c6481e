// Package sensormux provides an abstraction over a sensor serial port with
// the ability for multiple clients to subscribe to framed packets arriving
// from the port. The devices stream length-prefixed binary frames; the mux
// reframes the byte stream and fans whole payloads out to subscribers.
package sensormux

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"io"
	"sync"
)

// Frame delimiters and limits for the device's wire framing: two magic
// bytes, a little-endian u16 payload length, then the payload.
const (
	frameMagic1 = 0xA5
	frameMagic2 = 0x5A

	// maxFrameLen bounds a declared payload length. Anything larger is a
	// desync artifact, not a real frame.
	maxFrameLen = 4096

	// subscriberBuffer absorbs short bursts when a subscriber is mid-cycle.
	subscriberBuffer = 64
)

// PacketMux is a generic sensor port multiplexer that allows multiple
// clients to subscribe to packets from a single port.
type PacketMux[T SensorPorter] struct {
	port         T
	subscribers  map[string]chan []byte
	subscriberMu sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// PacketMuxInterface defines the interface for the PacketMux type.
type PacketMuxInterface interface {
	// Subscribe creates a new channel for receiving packet payloads from
	// the port. The channel ID identifies the channel when unsubscribing.
	Subscribe() (string, chan []byte)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// Monitor reframes the port's byte stream and sends payloads to the
	// subscribed channels.
	Monitor(context.Context) error
	// Close closes all subscribed channels and closes the port.
	Close() error
}

// NewPacketMux creates a PacketMux instance backed by the given port.
func NewPacketMux[T SensorPorter](port T) *PacketMux[T] {
	return &PacketMux[T]{
		port:        port,
		subscribers: make(map[string]chan []byte),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *PacketMux[T]) Subscribe() (string, chan []byte) {
	id := randomID()
	ch := make(chan []byte, subscriberBuffer)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the packet mux.
func (s *PacketMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// readFrame scans to the next magic pair, reads the declared length, and
// returns the payload. A byte stream joined mid-frame resynchronizes on the
// next magic pair; the partial frame is discarded.
func readFrame(r *bufio.Reader) ([]byte, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != frameMagic1 {
			continue
		}
		b, err = r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != frameMagic2 {
			// A lone magic byte inside payload data; keep scanning. The
			// second byte may itself start a real delimiter.
			if b == frameMagic1 {
				r.UnreadByte()
			}
			continue
		}

		var lenBuf [2]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, err
		}
		n := int(binary.LittleEndian.Uint16(lenBuf[:]))
		if n == 0 || n > maxFrameLen {
			continue // desync, rescan
		}

		payload := make([]byte, n)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
		return payload, nil
	}
}

// Monitor monitors the port for frames and sends payloads to subscribers
func (s *PacketMux[T]) Monitor(ctx context.Context) error {
	br := bufio.NewReader(s.port)

	frameChan := make(chan []byte)
	readErrChan := make(chan error, 1)

	// start a goroutine to read frames from the port and send payloads to
	// frameChan, and any read error to readErrChan.
	//
	// the blocking Read will not interfere with our outer loop awaiting
	// frames & context cancellation.
	go func() {
		defer close(frameChan)
		for {
			payload, err := readFrame(br)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					select {
					case readErrChan <- err:
					case <-ctx.Done():
					}
				}
				return
			}
			select {
			case frameChan <- payload:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErrChan:
			return err

		case payload, ok := <-frameChan:
			// if the channel is closed, we're done reading from the port;
			// a read error is parked in readErrChan before the close.
			if !ok {
				select {
				case err := <-readErrChan:
					return err
				default:
					return nil
				}
			}

			s.closingMu.Lock()
			if s.closing {
				s.closingMu.Unlock()
				return nil
			}
			s.closingMu.Unlock()

			s.subscriberMu.Lock()
			for _, ch := range s.subscribers {
				select {
				case ch <- payload:
				default:
					// if the channel is full skip so as not to block the
					// outer loop
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

func (s *PacketMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}
