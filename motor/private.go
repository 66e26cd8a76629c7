package motor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Private (extended identifier) command types.
const (
	TypeGetDeviceID    = 0x00
	TypeFeedback       = 0x02
	TypeEnable         = 0x03
	TypeStop           = 0x04
	TypeSetZero        = 0x06
	TypeSetID          = 0x07
	TypeParamRead      = 0x11
	TypeParamWrite     = 0x12
	TypeFaultFeedback  = 0x15
	TypeSaveParams     = 0x16
	TypeChangeBaud     = 0x17
	TypeActiveReport   = 0x18
	TypeChangeProtocol = 0x19

	// TypeReadVersion shares its command type with TypeStop; the payload
	// sentinel tells them apart.
	TypeReadVersion = TypeStop
)

// Version reply sentinel carried in the first data bytes.
var (
	versionRequest = [3]byte{0x00, 0xC4, 0x00}
	versionReply   = [3]byte{0x00, 0xC4, 0x56}
)

var (
	ErrUnknownParamType = errors.New("motor: unknown parameter type")
	ErrInvalidValue     = errors.New("motor: invalid parameter value")
)

// ExtCommand is an extended-identifier command ready for BuildExtended.
type ExtCommand struct {
	ID   uint32
	Data [DataLen]byte
}

// Frame encodes the command as a gateway frame.
func (c ExtCommand) Frame() [FrameSize]byte {
	raw, _ := BuildExtended(c.ID, c.Data[:])
	return raw
}

func privCommand(typ uint8, master, target uint8, data [DataLen]byte) ExtCommand {
	return ExtCommand{ID: MakeExtendedID(typ, requesterAux(master), target), Data: data}
}

// PrivGetDeviceID asks the target for its 64-bit device identifier.
func PrivGetDeviceID(master, target uint8) ExtCommand {
	return privCommand(TypeGetDeviceID, master, target, [DataLen]byte{})
}

// PrivEnable enables the target.
func PrivEnable(master, target uint8) ExtCommand {
	return privCommand(TypeEnable, master, target, [DataLen]byte{})
}

// PrivStop stops the target, optionally clearing faults.
func PrivStop(master, target uint8, clearFault bool) ExtCommand {
	var data [DataLen]byte
	if clearFault {
		data[0] = 1
	}
	return privCommand(TypeStop, master, target, data)
}

// PrivSetZero makes the target's current position its mechanical zero.
func PrivSetZero(master, target uint8) ExtCommand {
	return privCommand(TypeSetZero, master, target, [DataLen]byte{1})
}

// PrivSetID assigns newID to the target. Unlike every other command the new
// address goes in the auxiliary high byte and the requester in the low byte.
func PrivSetID(master, target, newID uint8) ExtCommand {
	aux := uint16(newID)<<8 | uint16(master)
	return ExtCommand{ID: MakeExtendedID(TypeSetID, aux, target)}
}

// PrivParamRead requests the value of the parameter at index.
func PrivParamRead(master, target uint8, index uint16) ExtCommand {
	var data [DataLen]byte
	binary.LittleEndian.PutUint16(data[0:2], index)
	return privCommand(TypeParamRead, master, target, data)
}

func paramWrite(master, target uint8, index uint16, put func(value []byte)) ExtCommand {
	var data [DataLen]byte
	binary.LittleEndian.PutUint16(data[0:2], index)
	put(data[4:])
	return privCommand(TypeParamWrite, master, target, data)
}

// PrivParamWriteU8 writes an 8-bit parameter.
func PrivParamWriteU8(master, target uint8, index uint16, value uint8) ExtCommand {
	return paramWrite(master, target, index, func(b []byte) { b[0] = value })
}

// PrivParamWriteU16 writes a 16-bit parameter.
func PrivParamWriteU16(master, target uint8, index uint16, value uint16) ExtCommand {
	return paramWrite(master, target, index, func(b []byte) { binary.LittleEndian.PutUint16(b, value) })
}

// PrivParamWriteU32 writes a 32-bit integer parameter.
func PrivParamWriteU32(master, target uint8, index uint16, value uint32) ExtCommand {
	return paramWrite(master, target, index, func(b []byte) { binary.LittleEndian.PutUint32(b, value) })
}

// PrivParamWriteF32 writes a float parameter.
func PrivParamWriteF32(master, target uint8, index uint16, value float32) ExtCommand {
	return paramWrite(master, target, index, func(b []byte) {
		binary.LittleEndian.PutUint32(b, math.Float32bits(value))
	})
}

// PrivParamWrite writes value using the encoding of typ. Integer types
// require an integral value within the type's range; I16 is sent as its
// two's complement bits.
func PrivParamWrite(master, target uint8, index uint16, typ ParamType, value float64) (ExtCommand, error) {
	switch typ {
	case ParamU8:
		if err := checkInteger(index, typ, value, 0, math.MaxUint8); err != nil {
			return ExtCommand{}, err
		}
		return PrivParamWriteU8(master, target, index, uint8(value)), nil
	case ParamU16:
		if err := checkInteger(index, typ, value, 0, math.MaxUint16); err != nil {
			return ExtCommand{}, err
		}
		return PrivParamWriteU16(master, target, index, uint16(value)), nil
	case ParamI16:
		if err := checkInteger(index, typ, value, math.MinInt16, math.MaxInt16); err != nil {
			return ExtCommand{}, err
		}
		return PrivParamWriteU16(master, target, index, uint16(int16(value))), nil
	case ParamU32:
		if err := checkInteger(index, typ, value, 0, math.MaxUint32); err != nil {
			return ExtCommand{}, err
		}
		return PrivParamWriteU32(master, target, index, uint32(value)), nil
	case ParamF32:
		if math.IsNaN(value) || math.Abs(value) > math.MaxFloat32 {
			return ExtCommand{}, fmt.Errorf("%w: %v does not fit %s at 0x%04X", ErrInvalidValue, value, typ, index)
		}
		return PrivParamWriteF32(master, target, index, float32(value)), nil
	default:
		return ExtCommand{}, fmt.Errorf("%w: %s for 0x%04X", ErrUnknownParamType, typ, index)
	}
}

// checkInteger rejects non-integral values and values outside [lo, hi].
// NaN fails every comparison and is rejected by the range test.
func checkInteger(index uint16, typ ParamType, value, lo, hi float64) error {
	if !(value >= lo && value <= hi) {
		return fmt.Errorf("%w: %v out of %s range at 0x%04X", ErrInvalidValue, value, typ, index)
	}
	if value != math.Trunc(value) {
		return fmt.Errorf("%w: %v is not an integer (%s at 0x%04X)", ErrInvalidValue, value, typ, index)
	}
	return nil
}

// PrivFaultFeedback requests the target's fault word.
func PrivFaultFeedback(master, target uint8) ExtCommand {
	return privCommand(TypeFaultFeedback, master, target, [DataLen]byte{})
}

// PrivSaveParams persists the target's parameters to flash.
func PrivSaveParams(master, target uint8) ExtCommand {
	return privCommand(TypeSaveParams, master, target, [DataLen]byte{1, 2, 3, 4, 5, 6, 7, 8})
}

func magicPayload(code uint8) [DataLen]byte {
	return [DataLen]byte{1, 2, 3, 4, 5, 6, code, 0}
}

// PrivChangeBaud changes the target's CAN bit rate.
func PrivChangeBaud(master, target, code uint8) ExtCommand {
	return privCommand(TypeChangeBaud, master, target, magicPayload(code))
}

// PrivActiveReport turns the target's periodic feedback on or off.
func PrivActiveReport(master, target uint8, enable bool) ExtCommand {
	var flag uint8
	if enable {
		flag = 1
	}
	return privCommand(TypeActiveReport, master, target, magicPayload(flag))
}

// PrivChangeProtocol switches the target's protocol after a power cycle.
func PrivChangeProtocol(master, target, protocol uint8) ExtCommand {
	return privCommand(TypeChangeProtocol, master, target, magicPayload(protocol))
}

// PrivReadVersion requests the firmware version.
func PrivReadVersion(master, target uint8) ExtCommand {
	var data [DataLen]byte
	copy(data[:], versionRequest[:])
	return privCommand(TypeReadVersion, master, target, data)
}

// ModeStatus is the run state reported in private feedback.
type ModeStatus uint8

const (
	StatusReset ModeStatus = iota
	StatusCalibrating
	StatusRunning
)

func (m ModeStatus) String() string {
	switch m {
	case StatusReset:
		return "Reset"
	case StatusCalibrating:
		return "Calibrating"
	case StatusRunning:
		return "Running"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(m))
	}
}

// PrivateFeedback is a decoded type 2 (or 0x18) status frame.
type PrivateFeedback struct {
	MotorID     uint8
	Mode        ModeStatus
	FaultBits   uint8
	Angle       float32
	Velocity    float32
	Torque      float32
	Temperature float32
}

// DecodePrivateFeedback decodes a status frame. The responding motor is in
// the auxiliary low byte, the fault summary in bits 8-13 and the mode in
// bits 14-15.
func DecodePrivateFeedback(aux uint16, data [DataLen]byte) PrivateFeedback {
	angle := uint32(binary.BigEndian.Uint16(data[0:2]))
	vel := uint32(binary.BigEndian.Uint16(data[2:4]))
	torque := uint32(binary.BigEndian.Uint16(data[4:6]))

	return PrivateFeedback{
		MotorID:     uint8(aux),
		FaultBits:   uint8(aux>>8) & 0x3F,
		Mode:        ModeStatus(aux>>14) & 0x03,
		Angle:       PositionRange.Decode(angle, 16),
		Velocity:    VelocityRange.Decode(vel, 16),
		Torque:      TorqueRange.Decode(torque, 16),
		Temperature: float32(binary.BigEndian.Uint16(data[6:8])) / 10,
	}
}

// IsVersionReply reports whether a type 2 payload is a firmware version
// reply rather than feedback.
func IsVersionReply(data [DataLen]byte) bool {
	return data[0] == versionReply[0] && data[1] == versionReply[1] && data[2] == versionReply[2]
}

// DecodeVersion renders the firmware version of a version reply, e.g.
// "1.2.3.4".
func DecodeVersion(data [DataLen]byte) string {
	return fmt.Sprintf("%d.%d.%d.%d", data[3], data[4], data[5], data[6])
}

// DecodeDeviceID returns the responding motor and its hex device identifier
// from a type 0 reply.
func DecodeDeviceID(aux uint16, data [DataLen]byte) (motorID uint8, deviceID string) {
	var sb strings.Builder
	for _, b := range data {
		fmt.Fprintf(&sb, "%02X", b)
	}
	return uint8(aux), sb.String()
}

// ParamReadResponse is a decoded type 0x11 reply. Pick F32 or U32 according
// to the parameter's type.
type ParamReadResponse struct {
	MotorID uint8
	Index   uint16
	Success bool
	Raw     [4]byte
	F32     float32
	U32     uint32
}

// DecodeParamRead decodes a parameter read reply. A non-zero auxiliary high
// byte means the read failed.
func DecodeParamRead(aux uint16, data [DataLen]byte) ParamReadResponse {
	r := ParamReadResponse{
		MotorID: uint8(aux),
		Index:   binary.LittleEndian.Uint16(data[0:2]),
		Success: aux>>8 == 0,
	}
	copy(r.Raw[:], data[4:8])
	r.U32 = binary.LittleEndian.Uint32(r.Raw[:])
	r.F32 = math.Float32frombits(r.U32)
	return r
}

// Value interprets the raw bytes according to typ.
func (r ParamReadResponse) Value(typ ParamType) (float64, error) {
	switch typ {
	case ParamU8:
		return float64(r.Raw[0]), nil
	case ParamU16:
		return float64(binary.LittleEndian.Uint16(r.Raw[:2])), nil
	case ParamI16:
		return float64(int16(binary.LittleEndian.Uint16(r.Raw[:2]))), nil
	case ParamU32:
		return float64(r.U32), nil
	case ParamF32:
		return float64(r.F32), nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownParamType, typ)
	}
}

// DecodeFaultReport decodes a type 0x15 reply.
func DecodeFaultReport(data [DataLen]byte) FaultStatus {
	return DecodeFaults(binary.LittleEndian.Uint32(data[0:4]))
}
