package protocol

import (
	"encoding/binary"
	"log/slog"
)

type decoderState uint8

const (
	stateWaitSync1 decoderState = iota
	stateWaitSync2
	stateReadHeader
	stateReadPayload
)

func (s decoderState) String() string {
	switch s {
	case stateWaitSync1:
		return "wait-sync1"
	case stateWaitSync2:
		return "wait-sync2"
	case stateReadHeader:
		return "read-header"
	case stateReadPayload:
		return "read-payload"
	default:
		return "unknown"
	}
}

// Stats counts the outcome of every frame the decoder has seen.
type Stats struct {
	Frames       uint64 // frames that produced a record
	CRCErrors    uint64
	LengthErrors uint64 // declared length zero or too large
	Unrecognized uint64 // valid frame without a usable HI91 payload
}

// Decoder is a byte-at-a-time HiPNUC frame parser.
//
// A Decoder holds private parse state and must be fed from a single stream in
// arrival order. It is not safe for concurrent use.
type Decoder struct {
	state      decoderState
	buf        [MaxFrameSize]byte
	nbyte      int
	payloadLen int

	stats  Stats
	logger *slog.Logger
}

// NewDecoder creates a decoder in the initial state. CRC mismatches are
// reported to logger; nil selects slog.Default().
func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{logger: logger}
}

// Input feeds one byte. It returns the decoded packet and true when the byte
// completes a valid HI91 frame.
func (d *Decoder) Input(b byte) (HI91, bool) {
	switch d.state {
	case stateWaitSync1:
		if b == Sync1 {
			d.buf[0] = b
			d.nbyte = 1
			d.state = stateWaitSync2
		}

	case stateWaitSync2:
		// A byte that fails as sync2 is not retried as sync1.
		if b != Sync2 {
			d.Reset()
			break
		}
		d.buf[1] = b
		d.nbyte = 2
		d.state = stateReadHeader

	case stateReadHeader:
		d.buf[d.nbyte] = b
		d.nbyte++
		if d.nbyte < HeaderSize {
			break
		}
		d.payloadLen = int(binary.LittleEndian.Uint16(d.buf[headerPositionLen:]))
		if d.payloadLen == 0 || HeaderSize+d.payloadLen > MaxFrameSize {
			d.stats.LengthErrors++
			d.Reset()
			break
		}
		d.state = stateReadPayload

	case stateReadPayload:
		d.buf[d.nbyte] = b
		d.nbyte++
		if d.nbyte < HeaderSize+d.payloadLen {
			break
		}
		pkt, ok := d.validateAndParse()
		d.Reset()
		return pkt, ok
	}

	return HI91{}, false
}

// InputBytes feeds data and returns every packet completed along the way, in
// order.
func (d *Decoder) InputBytes(data []byte) []HI91 {
	var packets []HI91
	for _, b := range data {
		if pkt, ok := d.Input(b); ok {
			packets = append(packets, pkt)
		}
	}
	return packets
}

// Reset drops any partial frame and returns to waiting for sync1.
func (d *Decoder) Reset() {
	d.state = stateWaitSync1
	d.nbyte = 0
	d.payloadLen = 0
}

// Stats returns the frame counters accumulated so far.
func (d *Decoder) Stats() Stats {
	return d.stats
}

func (d *Decoder) validateAndParse() (HI91, bool) {
	total := HeaderSize + d.payloadLen
	payload := d.buf[HeaderSize:total]

	calculated := CRC16(CRC16(0, d.buf[:headerPositionCRC]), payload)
	received := binary.LittleEndian.Uint16(d.buf[headerPositionCRC:])
	if calculated != received {
		d.stats.CRCErrors++
		d.logger.Warn("hipnuc crc mismatch",
			"calculated", calculated,
			"received", received,
			"len", d.payloadLen,
		)
		return HI91{}, false
	}

	// Only the first sub-packet is interpreted.
	pkt, ok := ParseHI91(payload)
	if !ok {
		d.stats.Unrecognized++
		return HI91{}, false
	}
	d.stats.Frames++
	return pkt, true
}
