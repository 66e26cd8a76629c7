package protocol

import (
	"encoding/binary"
	"math"
)

// HI91 is the IMU data packet carried by tag 0x91.
type HI91 struct {
	MainStatus  uint16
	Temperature int8    // degrees Celsius
	AirPressure float64 // Pa
	SystemTime  uint32  // ms

	Acc [3]float64 // m/s^2 (converted from G)
	Gyr [3]float64 // deg/s
	Mag [3]float64 // uT

	Roll  float64 // deg
	Pitch float64 // deg
	Yaw   float64 // deg

	Quat [4]float64 // w, x, y, z
}

// ParseHI91 decodes a HI91 packet from the start of payload.
// It reports false if the tag does not match or the payload is too short.
func ParseHI91(payload []byte) (HI91, bool) {
	if len(payload) < HI91Size || payload[0] != TagHI91 {
		return HI91{}, false
	}

	var p HI91
	p.MainStatus = binary.LittleEndian.Uint16(payload[1:3])
	p.Temperature = int8(payload[3])
	p.AirPressure = float64(readFloat32(payload, 4))
	p.SystemTime = binary.LittleEndian.Uint32(payload[8:12])

	for i := 0; i < 3; i++ {
		p.Acc[i] = float64(readFloat32(payload, 12+4*i)) * Gravity
		p.Gyr[i] = float64(readFloat32(payload, 24+4*i))
		p.Mag[i] = float64(readFloat32(payload, 36+4*i))
	}

	p.Roll = float64(readFloat32(payload, 48))
	p.Pitch = float64(readFloat32(payload, 52))
	p.Yaw = float64(readFloat32(payload, 56))

	for i := 0; i < 4; i++ {
		p.Quat[i] = float64(readFloat32(payload, 60+4*i))
	}

	return p, true
}

func readFloat32(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off : off+4]))
}
