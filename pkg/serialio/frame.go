package serialio

import (
	"errors"
	"io"

	"github.com/robotalks/rxlink.go/pkg/channels"
	"github.com/robotalks/rxlink.go/pkg/link"
)

// SyncByte starts every frame, it's the flight controller address.
const SyncByte byte = 0xC8

// Frame types.
const (
	TypeLinkStats   byte = 0x14
	TypeRCChannels  byte = 0x16
	TypeFrameStatus byte = 0x7A
)

// Frame size limits.
const (
	MaxFrameSize = 64
	// MaxPayloadSize excludes sync, length, type and crc.
	MaxPayloadSize = MaxFrameSize - 4
	rcPayloadSize  = channels.Count * 11 / 8
)

// Frame status flags.
const (
	StatusMissed   byte = 0x01
	StatusFailsafe byte = 0x02
)

var (
	// ErrFrameTooLarge indicates the payload doesn't fit in a frame.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrBadPayload indicates a payload of the wrong size for its type.
	ErrBadPayload = errors.New("bad payload")
)

// Frame is a decoded frame.
type Frame struct {
	Type    byte
	Payload []byte
}

// Size returns the encoded size.
func (f *Frame) Size() int {
	return len(f.Payload) + 4
}

// Bytes returns encoded bytes for sending.
func (f *Frame) Bytes() []byte {
	b := make([]byte, f.Size())
	b[0], b[1], b[2] = SyncByte, byte(len(f.Payload)+2), f.Type
	copy(b[3:], f.Payload)
	b[len(b)-1] = CRC8(b[2 : len(b)-1])
	return b
}

// WriteTo writes encoded bytes.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	if len(f.Payload) > MaxPayloadSize {
		return 0, ErrFrameTooLarge
	}
	n, err := w.Write(f.Bytes())
	return int64(n), err
}

// CRC8 computes the DVB-S2 crc over b.
func CRC8(b []byte) byte {
	var crc byte
	for _, a := range b {
		crc ^= a
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = (crc << 1) ^ 0xd5
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// RCFrame encodes channel values, 11 bits each, little endian packed.
func RCFrame(values *channels.Values) *Frame {
	payload := make([]byte, rcPayloadSize)
	var acc uint32
	var bits uint
	pos := 0
	for _, v := range values {
		acc |= uint32(v&0x7ff) << bits
		bits += 11
		for bits >= 8 {
			payload[pos] = byte(acc)
			pos++
			acc >>= 8
			bits -= 8
		}
	}
	return &Frame{Type: TypeRCChannels, Payload: payload}
}

// DecodeRCChannels decodes the payload of an RC channels frame.
func DecodeRCChannels(payload []byte) (values channels.Values, err error) {
	if len(payload) != rcPayloadSize {
		return values, ErrBadPayload
	}
	var acc uint32
	var bits uint
	ch := 0
	for _, b := range payload {
		acc |= uint32(b) << bits
		bits += 8
		for bits >= 11 && ch < channels.Count {
			values[ch] = uint16(acc & 0x7ff)
			ch++
			acc >>= 11
			bits -= 11
		}
	}
	return values, nil
}

// LinkStats is the payload of a link statistics frame.
type LinkStats struct {
	LinkQuality uint8
	State       link.ConnectionState
	ModelMatch  bool
}

// Frame encodes the stats.
func (s LinkStats) Frame() *Frame {
	var match byte
	if s.ModelMatch {
		match = 1
	}
	return &Frame{Type: TypeLinkStats, Payload: []byte{s.LinkQuality, byte(s.State), match}}
}

// DecodeLinkStats decodes the payload of a link statistics frame.
func DecodeLinkStats(payload []byte) (s LinkStats, err error) {
	if len(payload) != 3 {
		return s, ErrBadPayload
	}
	s.LinkQuality = payload[0]
	s.State = link.ConnectionState(payload[1])
	s.ModelMatch = payload[2] != 0
	return s, nil
}

// FrameStatus encodes a frame status frame.
func FrameStatus(flags byte) *Frame {
	return &Frame{Type: TypeFrameStatus, Payload: []byte{flags}}
}
