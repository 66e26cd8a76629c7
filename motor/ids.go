package motor

// Standard identifier layout: mode(3) | address(8).
//
// Extended identifier layout:
//
//	bit[28:24] command type
//	bit[23:8]  auxiliary field, meaning depends on the command
//	bit[7:0]   target address

// MakeStandardID builds the 11-bit identifier for a standard-dialect command.
func MakeStandardID(mode, address uint8) uint16 {
	return uint16(mode&0x07)<<8 | uint16(address)
}

// ParseStandardID splits an 11-bit identifier into mode and address.
func ParseStandardID(id uint32) (mode, address uint8) {
	return uint8(id>>8) & 0x07, uint8(id)
}

// MakeExtendedID builds the 29-bit identifier for a private-dialect command.
func MakeExtendedID(commandType uint8, aux uint16, target uint8) uint32 {
	return uint32(commandType&0x1F)<<24 | uint32(aux)<<8 | uint32(target)
}

// ParseExtendedID is the inverse of MakeExtendedID.
func ParseExtendedID(id uint32) (commandType uint8, aux uint16, target uint8) {
	return uint8(id>>24) & 0x1F, uint16(id >> 8), uint8(id)
}

// requesterAux is the default auxiliary field of outbound private commands:
// the requester's address in the high byte.
func requesterAux(master uint8) uint16 {
	return uint16(master) << 8
}
