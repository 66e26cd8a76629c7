package motor

// FaultStatus is a decoded 32-bit fault word.
type FaultStatus struct {
	Raw    uint32
	Faults []string
}

// HasFault reports whether any named fault bit is set.
func (s FaultStatus) HasFault() bool { return len(s.Faults) > 0 }

// faultTable is ordered for display; DecodeFaults reports in this order.
var faultTable = []struct {
	bit  uint
	name string
}{
	{0, "Over-temperature (>145°C)"},
	{1, "Driver chip fault"},
	{2, "Under-voltage (<12V)"},
	{3, "Over-voltage (>60V)"},
	{4, "Phase B overcurrent"},
	{5, "Phase C overcurrent"},
	{7, "Encoder not calibrated"},
	{8, "Hardware identification fault"},
	{9, "Position init fault"},
	{14, "Stall overload protection"},
	{16, "Phase A overcurrent"},
}

// DecodeFaults lists the named faults set in word. Bits without a name are
// ignored.
func DecodeFaults(word uint32) FaultStatus {
	s := FaultStatus{Raw: word}
	for _, f := range faultTable {
		if word&(1<<f.bit) != 0 {
			s.Faults = append(s.Faults, f.name)
		}
	}
	return s
}
