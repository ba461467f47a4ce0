package sml

import (
	"errors"
	"fmt"
)

// tlvType is the 4-bit type nibble of an SML TLV field (§4.3).
type tlvType byte

const (
	tlvEndOfMessage tlvType = 0x0
	tlvOctetString  tlvType = 0x0 // octet string shares nibble 0 with EOM; EOM is the single-byte 0x00 form
	tlvBool         tlvType = 0x4
	tlvSignedInt    tlvType = 0x5
	tlvUnsignedInt  tlvType = 0x6
	tlvList         tlvType = 0x7
)

// ErrTruncated is returned when a TLV field's declared length runs
// past the end of the buffer.
var ErrTruncated = errors.New("sml: truncated TLV field")

// ErrUnknownType is returned for a type nibble this decoder does not
// recognize.
var ErrUnknownType = errors.New("sml: unknown TLV type")

// encodeTLHeader writes the type+length header for a field whose
// value occupies valLen bytes, chaining length extension via the high
// bit as described in §4.3.
func encodeTLHeader(out []byte, typ tlvType, valLen int) []byte {
	// The declared length counts every header byte, and each header
	// byte carries 4 bits of it, so grow the header until the total fits.
	hdrLen := 1
	for (valLen+hdrLen)>>(4*hdrLen) != 0 {
		hdrLen++
	}
	total := valLen + hdrLen
	var extra [8]int
	n := 0
	t := total
	for t > 0x0F {
		extra[n] = t & 0x0F
		t >>= 4
		n++
	}
	firstLen := t

	// continuation bytes are emitted most-significant first, each with
	// bit 0x80 set except the header's own continuation is flagged by
	// the presence of additional bytes.
	if n == 0 {
		out = append(out, byte(typ)<<4|byte(firstLen&0x0F))
		return out
	}
	out = append(out, 0x80|byte(typ)<<4|byte(firstLen&0x0F))
	for i := n - 1; i >= 0; i-- {
		flag := byte(0)
		if i > 0 {
			flag = 0x80
		}
		out = append(out, flag|byte(extra[i]&0x0F))
	}
	return out
}

// decodeTLHeader reads a type+length header at buf[0:], returning the
// field type, the total declared length (value bytes only, header
// excluded) and the number of header bytes consumed.
func decodeTLHeader(buf []byte) (typ tlvType, valLen int, hdrLen int, err error) {
	if len(buf) == 0 {
		return 0, 0, 0, ErrTruncated
	}
	b0 := buf[0]
	typ = tlvType((b0 >> 4) & 0x07)
	total := int(b0 & 0x0F)
	hdrLen = 1
	for b0&0x80 != 0 {
		if hdrLen >= len(buf) {
			return 0, 0, 0, ErrTruncated
		}
		b0 = buf[hdrLen]
		total = (total << 4) | int(b0&0x0F)
		hdrLen++
	}
	if total < hdrLen {
		return 0, 0, 0, fmt.Errorf("sml: TLV length %d shorter than header %d", total, hdrLen)
	}
	return typ, total - hdrLen, hdrLen, nil
}

// EncodeValue serializes v as one TLV field, appending to out.
func EncodeValue(out []byte, v Value) []byte {
	switch v.Kind {
	case KindNone:
		return append(out, 0x00)
	case KindBool:
		b := byte(0)
		if v.Bool {
			b = 0xFF
		}
		out = encodeTLHeader(out, tlvBool, 1)
		return append(out, b)
	case KindInt8, KindInt16, KindInt32, KindInt64:
		raw := encodeSignedWidth(v.Int, signedWidth(v.Kind))
		out = encodeTLHeader(out, tlvSignedInt, len(raw))
		return append(out, raw...)
	case KindUint8, KindUint16, KindUint32, KindUint64:
		raw := encodeUnsignedWidth(v.Uint, unsignedWidth(v.Kind))
		out = encodeTLHeader(out, tlvUnsignedInt, len(raw))
		return append(out, raw...)
	case KindOctetString:
		out = encodeTLHeader(out, tlvOctetString, len(v.Octets))
		return append(out, v.Octets...)
	case KindTimeTimestamp:
		// Encoded as a 2-element list: (choice=1, unix-seconds u32).
		inner := List(Uint(8, 1), Uint(32, uint64(v.Time.Unix())))
		return EncodeValue(out, inner)
	case KindTimeSecIndex:
		inner := List(Uint(8, 2), Uint(32, uint64(v.SecIndex)))
		return EncodeValue(out, inner)
	case KindList:
		out = encodeTLHeader(out, tlvList, len(v.List))
		for _, e := range v.List {
			out = EncodeValue(out, e)
		}
		return out
	default:
		panic("sml: encode of unknown kind")
	}
}

// DecodeValue reads one TLV field from buf, returning the value and the
// number of bytes consumed.
func DecodeValue(buf []byte) (Value, int, error) {
	if len(buf) == 0 {
		return Value{}, 0, ErrTruncated
	}
	if buf[0] == 0x00 {
		return Value{Kind: KindNone}, 1, nil
	}
	typ, valLen, hdrLen, err := decodeTLHeader(buf)
	if err != nil {
		return Value{}, 0, err
	}
	if typ == tlvList {
		total := hdrLen
		items := make([]Value, 0, valLen)
		rest := buf[hdrLen:]
		for i := 0; i < valLen; i++ {
			v, n, err := DecodeValue(rest)
			if err != nil {
				return Value{}, 0, err
			}
			items = append(items, v)
			rest = rest[n:]
			total += n
		}
		list := Value{Kind: KindList, List: items}
		if t, ok := decodeTimeList(list); ok {
			return t, total, nil
		}
		return list, total, nil
	}

	if hdrLen+valLen > len(buf) {
		return Value{}, 0, ErrTruncated
	}
	raw := buf[hdrLen : hdrLen+valLen]
	consumed := hdrLen + valLen
	switch typ {
	case tlvBool:
		if len(raw) < 1 {
			return Value{}, 0, ErrTruncated
		}
		return Value{Kind: KindBool, Bool: raw[0] != 0}, consumed, nil
	case tlvSignedInt:
		return Value{Kind: kindForSignedWidth(widthFor(len(raw))), Int: decodeSigned(raw)}, consumed, nil
	case tlvOctetString:
		return Octet(raw), consumed, nil
	case tlvUnsignedInt:
		return Value{Kind: kindForUnsignedWidth(widthFor(len(raw))), Uint: decodeUnsigned(raw)}, consumed, nil
	default:
		return Value{}, 0, ErrUnknownType
	}
}

// decodeTimeList recognizes the 2-element (choice, value) encoding
// EncodeValue uses for KindTimeTimestamp/KindTimeSecIndex (an 8-bit
// choice of 1 or 2 followed by a 32-bit value) and folds it back into
// the scalar time Value, so DecodeValue(EncodeValue(x)) == x for time
// values. Any other two-element list stays a list; a plain list of
// exactly that shape decodes as a time value.
func decodeTimeList(list Value) (Value, bool) {
	if len(list.List) != 2 {
		return Value{}, false
	}
	choice := list.List[0]
	val := list.List[1]
	if choice.Kind != KindUint8 || val.Kind != KindUint32 {
		return Value{}, false
	}
	switch choice.Uint {
	case 1:
		return timestampFromUnix(val.Uint), true
	case 2:
		return SecIndex(uint32(val.Uint)), true
	default:
		return Value{}, false
	}
}

func widthFor(n int) int {
	switch {
	case n <= 1:
		return 8
	case n <= 2:
		return 16
	case n <= 4:
		return 32
	default:
		return 64
	}
}

func signedWidth(k Kind) int {
	switch k {
	case KindInt8:
		return 1
	case KindInt16:
		return 2
	case KindInt32:
		return 4
	default:
		return 8
	}
}

func unsignedWidth(k Kind) int {
	switch k {
	case KindUint8:
		return 1
	case KindUint16:
		return 2
	case KindUint32:
		return 4
	default:
		return 8
	}
}

func encodeUnsignedWidth(v uint64, width int) []byte {
	raw := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		raw[i] = byte(v)
		v >>= 8
	}
	return raw
}

func encodeSignedWidth(v int64, width int) []byte {
	return encodeUnsignedWidth(uint64(v), width)
}

func decodeUnsigned(raw []byte) uint64 {
	var v uint64
	for _, b := range raw {
		v = v<<8 | uint64(b)
	}
	return v
}

func decodeSigned(raw []byte) int64 {
	if len(raw) == 0 {
		return 0
	}
	v := int64(int8(raw[0]))
	for _, b := range raw[1:] {
		v = v<<8 | int64(b)
	}
	return v
}
