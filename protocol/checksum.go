package protocol

// ChecksumMask is the 16-bit mask used in checksum calculations.
const ChecksumMask = 0xFFFF

// calculatePacketChecksum computes the 16-bit checksum for a packet frame.
// Sums all bytes, then takes the 2's complement.
//
// The checksum is calculated over all bytes from OPCODE/STATUS through DATA,
// excluding SOP, CHECKSUM, and EOP fields.
func calculatePacketChecksum(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	// Return 2's complement: invert and add 1
	return 1 + (ChecksumMask ^ sum)
}
