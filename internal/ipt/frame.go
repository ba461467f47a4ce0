// Package ipt implements the IP-T transport protocol: framing
// (optionally scrambled), sequence numbering, and the closed command
// set of §4.2.
package ipt

import (
	"encoding/binary"
	"errors"
)

// headerLen is the size of the (length, seq, cmd) frame header.
const headerLen = 4 + 1 + 2

// ErrFrameTooShort is returned by Decode when buf does not yet contain
// a full header or the full payload the header declares.
var ErrFrameTooShort = errors.New("ipt: frame too short")

// ErrBadLength is returned when the declared length does not match
// the actual frame size (§7 "Protocol" errors).
var ErrBadLength = errors.New("ipt: bad length field")

// Frame is one IP-T wire record: (length:u32-le, seq:u8, cmd:u16-le, payload).
type Frame struct {
	Seq     uint8
	Cmd     Cmd
	Payload []byte
}

// Encode serializes f, appending to out. Length covers the whole
// record including the 7-byte header, little-endian per §4.2.
func Encode(out []byte, f Frame) []byte {
	total := headerLen + len(f.Payload)
	hdr := make([]byte, headerLen)
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(total))
	hdr[4] = f.Seq
	binary.LittleEndian.PutUint16(hdr[5:7], uint16(f.Cmd))
	out = append(out, hdr...)
	out = append(out, f.Payload...)
	return out
}

// Decode reads one frame from buf. It returns ErrFrameTooShort (not a
// hard error) if buf does not yet hold a complete frame, so callers
// can keep buffering from the socket.
func Decode(buf []byte) (Frame, int, error) {
	if len(buf) < headerLen {
		return Frame{}, 0, ErrFrameTooShort
	}
	total := int(binary.LittleEndian.Uint32(buf[0:4]))
	if total < headerLen {
		return Frame{}, 0, ErrBadLength
	}
	if len(buf) < total {
		return Frame{}, 0, ErrFrameTooShort
	}
	f := Frame{
		Seq:     buf[4],
		Cmd:     Cmd(binary.LittleEndian.Uint16(buf[5:7])),
		Payload: append([]byte(nil), buf[headerLen:total]...),
	}
	return f, total, nil
}
