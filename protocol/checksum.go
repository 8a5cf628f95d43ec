// Package protocol implements the host-side reliable message protocol
// carried over a hub's BLE stdio byte stream: frame encoding, checksums,
// the line/frame demultiplexer, the inbound ack/nak handler, and the
// outbound retransmitting queue.
package protocol

// XORChecksum computes the frame integrity digest: initialised to 0xFF,
// XORed with every byte of the sequence in order.
func XORChecksum(data []byte) uint8 {
	checksum := uint8(0xFF)
	for _, b := range data {
		checksum ^= b
	}
	return checksum
}

// ModChecksum computes the identity digest used for RPC function name
// checksums: initialised to 0x00, summed with wrapping 8-bit arithmetic.
func ModChecksum(data []byte) uint8 {
	checksum := uint8(0x00)
	for _, b := range data {
		checksum += b
	}
	return checksum
}
