package motor

import (
	"math"
	"testing"
)

func TestStandardCommandBytes(t *testing.T) {
	testCases := []struct {
		name string
		got  [DataLen]byte
		want [DataLen]byte
	}{
		{"enable", CmdEnable(), [DataLen]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFC}},
		{"stop", CmdStop(), [DataLen]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFD}},
		{"set zero", CmdSetZero(), [DataLen]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFE}},
		{"clear fault", CmdClearOrReadFault(FaultClear), [DataLen]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFB}},
		{"read fault", CmdClearOrReadFault(0), [DataLen]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00, 0xFB}},
		{"set mode", CmdSetMode(ModeSpeed), [DataLen]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x02, 0xFC}},
		{"change id", CmdChangeMotorID(5), [DataLen]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x05, 0xFA}},
		{"change protocol", CmdChangeProtocol(ProtocolMIT), [DataLen]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x02, 0xFD}},
		{"change master", CmdChangeMasterID(0x10), [DataLen]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFD, 0x10}},
		{"speed", CmdSpeed(-1, 2), [DataLen]byte{0x00, 0x00, 0x80, 0xBF, 0x00, 0x00, 0x00, 0x40}},
	}

	for _, tc := range testCases {
		if tc.got != tc.want {
			t.Errorf("%s: got % X, want % X", tc.name, tc.got, tc.want)
		}
	}
}

func TestSentinelOverlap(t *testing.T) {
	enable, setMode := CmdEnable(), CmdSetMode(ModeMIT)
	if enable[7] != setMode[7] || enable[6] == setMode[6] {
		t.Errorf("enable % X vs set mode % X", enable, setMode)
	}

	stop, proto := CmdStop(), CmdChangeProtocol(ProtocolPrivate)
	if stop[7] != proto[7] || stop[6] == proto[6] {
		t.Errorf("stop % X vs change protocol % X", stop, proto)
	}
}

func TestMITControlPacking(t *testing.T) {
	testCases := []struct {
		name                string
		pos, vel, kp, kd, t float32
		want                [DataLen]byte
	}{
		{"all max", 12.57, 33, 500, 5, 14, [DataLen]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}},
		{"all min", -12.57, -33, 0, 0, -14, [DataLen]byte{}},
		{"alternating", 12.57, -33, 500, 0, 14, [DataLen]byte{0xFF, 0xFF, 0x00, 0x0F, 0xFF, 0x00, 0x0F, 0xFF}},
		{"clamped", 100, 100, -1, 99, -99, [DataLen]byte{0xFF, 0xFF, 0xFF, 0xF0, 0x00, 0xFF, 0xF0, 0x00}},
	}

	for _, tc := range testCases {
		got := CmdMITControl(tc.pos, tc.vel, tc.kp, tc.kd, tc.t)
		if got != tc.want {
			t.Errorf("%s: got % X, want % X", tc.name, got, tc.want)
		}
	}
}

func TestDecodeFeedback(t *testing.T) {
	fb := DecodeFeedback([DataLen]byte{0x7F, 0xFF, 0xFF, 0x00, 0x0F, 0xFF, 0x01, 0x5E})

	if fb.MotorID != 0x7F {
		t.Errorf("motor id = %d", fb.MotorID)
	}
	checks := []struct {
		name      string
		got, want float32
	}{
		{"angle", fb.Angle, 12.57},
		{"velocity", fb.Velocity, -33},
		{"torque", fb.Torque, 14},
		{"temperature", fb.Temperature, 35},
	}
	for _, c := range checks {
		if math.Abs(float64(c.got-c.want)) > 1e-3 {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	cold := DecodeFeedback([DataLen]byte{6: 0xFF, 7: 0x9C})
	if math.Abs(float64(cold.Temperature+10)) > 1e-6 {
		t.Errorf("negative temperature = %v, want -10", cold.Temperature)
	}
}

func TestFeedbackMatchesCommandQuantization(t *testing.T) {
	cmd := CmdMITControl(1.5, -4, 0, 0, 2.5)
	// Feedback shares the position, velocity and torque layout of the
	// command's first bytes, minus the gains.
	data := [DataLen]byte{0x01, cmd[0], cmd[1], cmd[2], cmd[3]&0xF0 | cmd[6]&0x0F, cmd[7]}
	fb := DecodeFeedback(data)

	if math.Abs(float64(fb.Angle-1.5)) > 0.001 {
		t.Errorf("angle = %v, want 1.5", fb.Angle)
	}
	if math.Abs(float64(fb.Velocity+4)) > 0.02 {
		t.Errorf("velocity = %v, want -4", fb.Velocity)
	}
	if math.Abs(float64(fb.Torque-2.5)) > 0.01 {
		t.Errorf("torque = %v, want 2.5", fb.Torque)
	}
}
