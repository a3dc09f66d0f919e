// Package protocol implements the Hubble advertisement wire format.
//
// A frame is a fixed 10-byte header followed by up to 13 bytes of
// ciphertext:
//
//	6 bits   protocol version (0)
//	10 bits  sequence number
//	32 bits  device ID
//	32 bits  authentication tag
//	N bytes  ciphertext, 0 <= N <= 13
//
// Fields are packed most-significant bit first. The ciphertext carries no
// length prefix; its size is implied by the frame size. Frames travel as
// BLE service data under the 16-bit UUID 0xFCA6.
//
// The header is not covered by the tag. A receiver learns the sequence
// number from the header and re-derives keys from it, so a modified
// sequence number only causes authentication to fail.
package protocol
