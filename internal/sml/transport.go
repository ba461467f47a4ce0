package sml

import (
	"encoding/binary"
	"errors"
)

// escapeSeq is the 4-byte escape sequence marking frame boundaries (§4.3).
var escapeSeq = [4]byte{0x1B, 0x1B, 0x1B, 0x1B}

// versionMarker follows the opening escape sequence.
var versionMarker = [4]byte{0x01, 0x01, 0x01, 0x01}

// ErrBadEnvelope is returned for a transport frame that does not start
// and end with the expected escape sequences.
var ErrBadEnvelope = errors.New("sml: malformed transport envelope")

// ErrCRCMismatch is returned when the trailing CRC-16 does not match
// the computed checksum of the frame body (§7 "INVALID_CRC").
var ErrCRCMismatch = errors.New("sml: CRC-16 mismatch")

// WrapEnvelope frames one or more already-serialized SML messages into
// a single transport envelope: escape, version marker, body padded to
// a 4-byte boundary, closing escape, pad count, and a CRC-16 over
// everything preceding the checksum.
func WrapEnvelope(body []byte) []byte {
	pad := (4 - len(body)%4) % 4
	frame := make([]byte, 0, 8+len(body)+pad+8)
	frame = append(frame, escapeSeq[:]...)
	frame = append(frame, versionMarker[:]...)
	frame = append(frame, body...)
	for i := 0; i < pad; i++ {
		frame = append(frame, 0x00)
	}
	frame = append(frame, escapeSeq[:]...)
	frame = append(frame, 0x1A, byte(pad))
	crc := CRC16(frame)
	var crcBuf [2]byte
	binary.BigEndian.PutUint16(crcBuf[:], crc)
	frame = append(frame, crcBuf[:]...)
	return frame
}

// UnwrapEnvelope validates and strips the transport framing, returning
// the message bytes between the version marker and the closing escape
// sequence with the padding already removed.
func UnwrapEnvelope(frame []byte) (body []byte, err error) {
	if len(frame) < 8+8 {
		return nil, ErrBadEnvelope
	}
	if !matches(frame[0:4], escapeSeq) || !matches(frame[4:8], versionMarker) {
		return nil, ErrBadEnvelope
	}
	// Locate the closing escape+0x1A from the end: last 2 bytes are the
	// CRC, the byte before that is the pad count, and the 5 bytes
	// before that are the closing escape sequence + 0x1A.
	n := len(frame)
	crcGiven := binary.BigEndian.Uint16(frame[n-2:])
	pad := int(frame[n-3])
	tailStart := n - 3 - 5
	if tailStart < 8 || !matches(frame[tailStart:tailStart+4], escapeSeq) || frame[tailStart+4] != 0x1A {
		return nil, ErrBadEnvelope
	}
	crcComputed := CRC16(frame[:n-2])
	if crcComputed != crcGiven {
		return nil, ErrCRCMismatch
	}
	bodyWithPad := frame[8:tailStart]
	if pad > len(bodyWithPad) {
		return nil, ErrBadEnvelope
	}
	return bodyWithPad[:len(bodyWithPad)-pad], nil
}

func matches(b []byte, seq [4]byte) bool {
	return b[0] == seq[0] && b[1] == seq[1] && b[2] == seq[2] && b[3] == seq[3]
}
