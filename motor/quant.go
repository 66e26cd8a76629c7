package motor

// Range is a bounded physical domain mapped onto an unsigned integer.
type Range struct {
	Min, Max float32
}

// Physical domains of the motor.
var (
	PositionRange = Range{-12.57, 12.57} // rad
	VelocityRange = Range{-33, 33}       // rad/s
	KpRange       = Range{0, 500}
	KdRange       = Range{0, 5}
	TorqueRange   = Range{-14, 14} // N.m
)

// Encode quantizes x to bits width. See FloatToUint.
func (r Range) Encode(x float32, bits uint) uint32 {
	return FloatToUint(x, r.Min, r.Max, bits)
}

// Decode maps a quantized value back into the range.
func (r Range) Decode(u uint32, bits uint) float32 {
	return UintToFloat(u, r.Min, r.Max, bits)
}

// FloatToUint clamps x to [lo, hi] and maps it linearly onto
// [0, 2^bits-1]. The conversion truncates; the firmware expects the lower
// quantum, so do not round. The range ends map exactly to 0 and 2^bits-1.
func FloatToUint(x, lo, hi float32, bits uint) uint32 {
	top := uint32(1)<<bits - 1
	if !(x > lo) { // also catches NaN
		return 0
	}
	if x >= hi {
		return top
	}
	span := hi - lo
	steps := float32(top)
	return uint32(float32((x-lo)*steps) / span)
}

// UintToFloat is the inverse linear mapping of FloatToUint.
func UintToFloat(u uint32, lo, hi float32, bits uint) float32 {
	span := hi - lo
	steps := float32(uint32(1)<<bits - 1)
	return float32(float32(u)*span)/steps + lo
}
