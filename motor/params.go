package motor

import (
	"fmt"
	"strconv"
)

// ParamType is the wire type of a parameter value.
type ParamType uint8

const (
	ParamU8 ParamType = iota
	ParamU16
	ParamU32
	ParamI16
	ParamF32
	ParamString
)

func (t ParamType) String() string {
	switch t {
	case ParamU8:
		return "uint8"
	case ParamU16:
		return "uint16"
	case ParamU32:
		return "uint32"
	case ParamI16:
		return "int16"
	case ParamF32:
		return "float"
	case ParamString:
		return "string"
	default:
		return fmt.Sprintf("ParamType(%d)", uint8(t))
	}
}

// MarshalText encodes the type by name in the JSON catalog.
func (t ParamType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Size returns the number of value bytes on the wire, 0 for String.
func (t ParamType) Size() int {
	switch t {
	case ParamU8:
		return 1
	case ParamU16, ParamI16:
		return 2
	case ParamU32, ParamF32:
		return 4
	default:
		return 0
	}
}

// ParamAccess describes whether a parameter can be read and written.
type ParamAccess uint8

const (
	AccessReadOnly ParamAccess = iota
	AccessWriteOnly
	AccessReadWrite
)

func (a ParamAccess) String() string {
	switch a {
	case AccessReadOnly:
		return "R"
	case AccessWriteOnly:
		return "W"
	case AccessReadWrite:
		return "RW"
	default:
		return "?"
	}
}

// MarshalText encodes the access mode as R, W or RW.
func (a ParamAccess) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// ParamDef describes one entry of the motor parameter table.
type ParamDef struct {
	Index       uint16      `json:"index"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Type        ParamType   `json:"type"`
	Access      ParamAccess `json:"access"`
	Default     string      `json:"default"`
}

// Writable reports whether the parameter accepts writes.
func (p ParamDef) Writable() bool { return p.Access != AccessReadOnly }

// Readable reports whether the parameter can be read back.
func (p ParamDef) Readable() bool { return p.Access != AccessWriteOnly }

// FormatValue renders a read response the way the catalog displays values.
func (p ParamDef) FormatValue(r ParamReadResponse) string {
	v, err := r.Value(p.Type)
	if err != nil {
		return fmt.Sprintf("% X", r.Raw)
	}
	if p.Type == ParamF32 {
		return strconv.FormatFloat(v, 'f', 4, 32)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// writableParams is the run-time writable table at 0x7000.
var writableParams = []ParamDef{
	{0x7005, "run_mode", "Run mode (0=MIT,1=PP,2=Speed,3=Current,5=CSP)", ParamU8, AccessReadWrite, "0"},
	{0x7006, "iq_ref", "Current mode Iq command (A)", ParamF32, AccessReadWrite, "0"},
	{0x700A, "spd_ref", "Speed command (rad/s)", ParamF32, AccessReadWrite, "0"},
	{0x700B, "limit_torque", "Torque limit (N.m)", ParamF32, AccessReadWrite, "14"},
	{0x7010, "cur_kp", "Current loop Kp", ParamF32, AccessReadWrite, "0.125"},
	{0x7011, "cur_ki", "Current loop Ki", ParamF32, AccessReadWrite, "0.0158"},
	{0x7014, "cur_filt_gain", "Current filter coefficient (0~1)", ParamF32, AccessReadWrite, "0.1"},
	{0x7016, "loc_ref", "Position command (rad)", ParamF32, AccessReadWrite, "0"},
	{0x7017, "limit_spd", "CSP speed limit (rad/s)", ParamF32, AccessReadWrite, "33"},
	{0x7018, "limit_cur", "Current limit (A)", ParamF32, AccessReadWrite, "16"},
	{0x701E, "loc_kp", "Position loop Kp", ParamF32, AccessReadWrite, "30"},
	{0x701F, "spd_kp", "Speed loop Kp", ParamF32, AccessReadWrite, "5"},
	{0x7020, "spd_ki", "Speed loop Ki", ParamF32, AccessReadWrite, "0.02"},
	{0x7021, "spd_filt_gain", "Speed filter coefficient (0~1)", ParamF32, AccessReadWrite, "0.05"},
	{0x7022, "acc_rad", "Speed mode acceleration (rad/s^2)", ParamF32, AccessReadWrite, "100"},
	{0x7024, "vel_max", "PP mode velocity (rad/s)", ParamF32, AccessReadWrite, "10"},
	{0x7025, "acc_set", "PP mode acceleration (rad/s^2)", ParamF32, AccessReadWrite, "10"},
	{0x7026, "EPScan_time", "Report interval (1=10ms, +1 adds 5ms)", ParamU16, AccessReadWrite, "1"},
	{0x7028, "canTimeout", "CAN timeout (20000=1s, 0=disabled)", ParamU32, AccessReadWrite, "0"},
	{0x7029, "zero_sta", "Zero mode (0=0~2pi, 1=-pi~pi)", ParamU8, AccessReadWrite, "0"},
	{0x702A, "damper", "Damper switch (0=on, 1=off)", ParamU8, AccessReadWrite, "0"},
	{0x702B, "add_offset", "Zero offset (rad)", ParamF32, AccessReadWrite, "0"},
}

// readOnlyParams is the observation table at 0x3000.
var readOnlyParams = []ParamDef{
	{0x3005, "mcuTemp", "MCU temperature (*10)", ParamI16, AccessReadOnly, ""},
	{0x3006, "motorTemp", "Motor NTC temperature (*10)", ParamI16, AccessReadOnly, ""},
	{0x3007, "vBus_mv", "Bus voltage (mV)", ParamU16, AccessReadOnly, ""},
	{0x300C, "VBUS", "Bus voltage (V)", ParamF32, AccessReadOnly, ""},
	{0x300E, "cmdIq", "Iq command (A)", ParamF32, AccessReadOnly, ""},
	{0x3015, "modPos", "Single-turn angle (rad)", ParamF32, AccessReadOnly, ""},
	{0x3016, "mechPos", "Multi-turn position (rad)", ParamF32, AccessReadOnly, ""},
	{0x3017, "mechVel", "Load-side velocity (rad/s)", ParamF32, AccessReadOnly, ""},
	{0x301E, "iqf", "Filtered Iq (A)", ParamF32, AccessReadOnly, ""},
	{0x3022, "faultSta", "Fault status word", ParamU32, AccessReadOnly, ""},
	{0x302C, "torque_fdb", "Torque feedback (N.m)", ParamF32, AccessReadOnly, ""},
}

// Catalog returns every parameter, writable entries first. The returned
// slice is a copy.
func Catalog() []ParamDef {
	all := make([]ParamDef, 0, len(writableParams)+len(readOnlyParams))
	all = append(all, writableParams...)
	return append(all, readOnlyParams...)
}

// LookupParam finds a parameter by index.
func LookupParam(index uint16) (ParamDef, bool) {
	for _, tbl := range [][]ParamDef{writableParams, readOnlyParams} {
		for _, p := range tbl {
			if p.Index == index {
				return p, true
			}
		}
	}
	return ParamDef{}, false
}

// LookupParamByName finds a parameter by its table name.
func LookupParamByName(name string) (ParamDef, bool) {
	for _, tbl := range [][]ParamDef{writableParams, readOnlyParams} {
		for _, p := range tbl {
			if p.Name == name {
				return p, true
			}
		}
	}
	return ParamDef{}, false
}
