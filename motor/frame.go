// Package motor implements the CAN-over-Ethernet motor control protocol:
// the 13-byte gateway frame, the standard 11-bit MIT command dialect and the
// extended 29-bit private dialect with its parameter table.
package motor

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// FrameSize is the fixed size of a gateway frame on the wire.
const FrameSize = 13

// DataLen is the payload length of every frame this protocol sends.
const DataLen = 8

// Info byte flags
const (
	InfoExtended = 0x80
	InfoRemote   = 0x40
	infoLenMask  = 0x3F
	infoTypeMask = InfoExtended | InfoRemote
)

// Identifier limits
const (
	MaxStandardID = 0x7FF
	MaxExtendedID = 0x1FFFFFFF
)

var (
	ErrInvalidID     = errors.New("motor: invalid identifier")
	ErrInvalidLength = errors.New("motor: invalid length")
)

// Frame is a parsed gateway frame. ID is always the raw 32-bit big-endian
// field; interpret it according to IsStandard/IsExtended.
type Frame struct {
	Info byte
	ID   uint32
	Data [DataLen]byte
}

// IsStandard reports whether f is a standard (11-bit) data frame.
func (f Frame) IsStandard() bool { return f.Info&infoTypeMask == 0 }

// IsExtended reports whether f is an extended (29-bit) data frame.
func (f Frame) IsExtended() bool { return f.Info&infoTypeMask == InfoExtended }

// Len returns the data length code from the info byte.
func (f Frame) Len() int { return int(f.Info & infoLenMask) }

func (f Frame) String() string {
	if f.IsExtended() {
		return fmt.Sprintf("%08X#% X", f.ID&MaxExtendedID, f.Data)
	}
	return fmt.Sprintf("%03X#% X", f.ID&MaxStandardID, f.Data)
}

// BuildStandard encodes an 11-bit identifier and 8 data bytes.
func BuildStandard(id uint16, data []byte) ([FrameSize]byte, error) {
	if id > MaxStandardID {
		return [FrameSize]byte{}, fmt.Errorf("%w: standard id 0x%X", ErrInvalidID, id)
	}
	return build(DataLen, uint32(id), data)
}

// BuildExtended encodes a 29-bit identifier and 8 data bytes.
func BuildExtended(id uint32, data []byte) ([FrameSize]byte, error) {
	if id > MaxExtendedID {
		return [FrameSize]byte{}, fmt.Errorf("%w: extended id 0x%X", ErrInvalidID, id)
	}
	return build(InfoExtended|DataLen, id, data)
}

func build(info byte, id uint32, data []byte) ([FrameSize]byte, error) {
	var raw [FrameSize]byte
	if len(data) != DataLen {
		return raw, fmt.Errorf("%w: need %d data bytes, got %d", ErrInvalidLength, DataLen, len(data))
	}
	raw[0] = info
	binary.BigEndian.PutUint32(raw[1:5], id)
	copy(raw[5:], data)
	return raw, nil
}

// ParseFrame extracts the info byte, identifier and data from a 13-byte frame.
func ParseFrame(raw []byte) (Frame, error) {
	if len(raw) != FrameSize {
		return Frame{}, fmt.Errorf("%w: frame size %d", ErrInvalidLength, len(raw))
	}
	f := Frame{
		Info: raw[0],
		ID:   binary.BigEndian.Uint32(raw[1:5]),
	}
	copy(f.Data[:], raw[5:])
	return f, nil
}

// SplitDatagram parses every complete frame in a datagram. Trailing bytes
// that do not form a whole frame are returned as rest.
func SplitDatagram(datagram []byte) (frames []Frame, rest int) {
	n := len(datagram) / FrameSize
	frames = make([]Frame, 0, n)
	for i := 0; i < n; i++ {
		f, _ := ParseFrame(datagram[i*FrameSize : (i+1)*FrameSize])
		frames = append(frames, f)
	}
	return frames, len(datagram) % FrameSize
}
