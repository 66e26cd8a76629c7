// Package protocol implements the HiPNUC binary telemetry protocol spoken by
// the IMU over its serial link.
//
// Frame layout:
//
//	[0x5A] [0xA5] [len_lo] [len_hi] [crc_lo] [crc_hi] [payload...]
//
// The CRC covers the first four header bytes followed by the payload.
package protocol

// Frame constants
const (
	Sync1 = 0x5A
	Sync2 = 0xA5

	HeaderSize   = 6   // sync1, sync2, length (LE), crc (LE)
	MaxFrameSize = 512 // header + payload

	headerPositionLen = 2
	headerPositionCRC = 4
)

// Payload tags
const (
	TagHI91 = 0x91

	HI91Size = 76 // including the tag byte
)

// Gravity converts the accelerometer's G readings to m/s^2.
const Gravity = 9.80665
