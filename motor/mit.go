package motor

import (
	"encoding/binary"
	"math"
)

// Run modes selected through the standard identifier's mode field.
const (
	ModeMIT      = 0
	ModePosition = 1
	ModeSpeed    = 2
)

// Protocol codes accepted by the change-protocol commands.
const (
	ProtocolPrivate = 0
	ProtocolCANopen = 1
	ProtocolMIT     = 2
)

// FaultClear is the fault command code that clears faults; any other code
// requests a fault read.
const FaultClear = 0xFF

// Command trailer bytes
const (
	tailEnable   = 0xFC
	tailStop     = 0xFD
	tailSetZero  = 0xFE
	tailFault    = 0xFB
	tailChangeID = 0xFA
)

// Feedback is a decoded standard-dialect status reply.
type Feedback struct {
	MotorID     uint8
	Angle       float32 // rad
	Velocity    float32 // rad/s
	Torque      float32 // N.m
	Temperature float32 // degrees Celsius
}

func sentinel(b6, b7 byte) [DataLen]byte {
	return [DataLen]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, b6, b7}
}

// CmdEnable enables the motor.
func CmdEnable() [DataLen]byte { return sentinel(0xFF, tailEnable) }

// CmdStop stops the motor.
func CmdStop() [DataLen]byte { return sentinel(0xFF, tailStop) }

// CmdSetZero makes the current position the mechanical zero.
func CmdSetZero() [DataLen]byte { return sentinel(0xFF, tailSetZero) }

// CmdClearOrReadFault clears faults when code is FaultClear and reads them
// otherwise.
func CmdClearOrReadFault(code uint8) [DataLen]byte { return sentinel(code, tailFault) }

// CmdSetMode selects the run mode. It shares its last byte with CmdEnable;
// byte 6 tells them apart.
func CmdSetMode(mode uint8) [DataLen]byte { return sentinel(mode, tailEnable) }

// CmdChangeMotorID assigns a new motor address.
func CmdChangeMotorID(id uint8) [DataLen]byte { return sentinel(id, tailChangeID) }

// CmdChangeProtocol switches the motor's protocol after a power cycle. It
// shares its last byte with CmdStop.
func CmdChangeProtocol(protocol uint8) [DataLen]byte { return sentinel(protocol, tailStop) }

// CmdChangeMasterID assigns a new master address.
func CmdChangeMasterID(id uint8) [DataLen]byte { return sentinel(tailStop, id) }

// CmdPosition commands a target position (rad) with a speed limit (rad/s).
// Use with ModePosition.
func CmdPosition(target, maxSpeed float32) [DataLen]byte {
	return twoFloats(target, maxSpeed)
}

// CmdSpeed commands a target speed (rad/s) with a current limit (A).
// Use with ModeSpeed.
func CmdSpeed(target, currentLimit float32) [DataLen]byte {
	return twoFloats(target, currentLimit)
}

func twoFloats(a, b float32) [DataLen]byte {
	var data [DataLen]byte
	binary.LittleEndian.PutUint32(data[0:4], math.Float32bits(a))
	binary.LittleEndian.PutUint32(data[4:8], math.Float32bits(b))
	return data
}

// CmdMITControl packs the five MIT control terms:
// position(16) velocity(12) kp(12) kd(12) torque(12), high bits first.
func CmdMITControl(position, velocity, kp, kd, torque float32) [DataLen]byte {
	p := PositionRange.Encode(position, 16)
	v := VelocityRange.Encode(velocity, 12)
	kpU := KpRange.Encode(kp, 12)
	kdU := KdRange.Encode(kd, 12)
	t := TorqueRange.Encode(torque, 12)

	return [DataLen]byte{
		byte(p >> 8),
		byte(p),
		byte(v >> 4),
		byte(v&0x0F)<<4 | byte(kpU>>8)&0x0F,
		byte(kpU),
		byte(kdU >> 4),
		byte(kdU&0x0F)<<4 | byte(t>>8)&0x0F,
		byte(t),
	}
}

// DecodeFeedback decodes a standard-dialect status reply.
func DecodeFeedback(data [DataLen]byte) Feedback {
	angle := uint32(data[1])<<8 | uint32(data[2])
	vel := uint32(data[3])<<4 | uint32(data[4])>>4
	torque := uint32(data[4]&0x0F)<<8 | uint32(data[5])

	return Feedback{
		MotorID:     data[0],
		Angle:       PositionRange.Decode(angle, 16),
		Velocity:    VelocityRange.Decode(vel, 12),
		Torque:      TorqueRange.Decode(torque, 12),
		Temperature: decodeTemperature(data[6], data[7]),
	}
}

// decodeTemperature reads signed tenths of a degree, high byte first.
func decodeTemperature(hi, lo byte) float32 {
	return float32(int16(uint16(hi)<<8|uint16(lo))) / 10
}
