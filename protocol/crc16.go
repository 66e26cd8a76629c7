package protocol

import "github.com/sigurn/crc16"

// XMODEM parameters: polynomial 0x1021, no reflection, no final XOR.
var crcTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// CRC16 continues a CRC16-CCITT computation from seed over data.
// HiPNUC frames use a zero seed; this matches the device firmware bit for bit.
func CRC16(seed uint16, data []byte) uint16 {
	return crc16.Update(seed, data, crcTable)
}
