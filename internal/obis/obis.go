// Package obis implements the six-octet OBIS code (IEC 62056-61) used
// throughout SML to name measurements, configuration objects and tree
// path segments.
package obis

import (
	"encoding/hex"
	"errors"
	"strings"
)

// Code is a six-octet OBIS identifier (A, B, C, D, E, F).
type Code [6]byte

// Wildcard is the F-group value used for prefix matching in parameter
// tree navigation (Design Note §9(c)).
const Wildcard byte = 0xFF

// ErrMalformed is returned by Parse for strings that are not exactly
// 12 hex digits once any '-', ':', '.', '*' or ' ' separators are removed.
var ErrMalformed = errors.New("obis: malformed code")

// New builds a Code from its six octets.
func New(a, b, c, d, e, f byte) Code {
	return Code{a, b, c, d, e, f}
}

// Equal compares two codes bytewise. Wildcards are NOT special-cased
// here: equality is always exact (Design Note §9(c)).
func (c Code) Equal(o Code) bool {
	return c == o
}

// Matches reports whether c, used as a path pattern, matches o. F ==
// Wildcard makes F a don't-care for prefix navigation; all other
// octets must match exactly.
func (c Code) Matches(o Code) bool {
	if c[5] != Wildcard && c[5] != o[5] {
		return false
	}
	return c[0] == o[0] && c[1] == o[1] && c[2] == o[2] && c[3] == o[3] && c[4] == o[4]
}

// String renders the code as "A-B:C.D.E*F", the conventional OBIS
// notation, with F rendered as "255" when it is the wildcard.
func (c Code) String() string {
	var sb strings.Builder
	writeDec(&sb, c[0])
	sb.WriteByte('-')
	writeDec(&sb, c[1])
	sb.WriteByte(':')
	writeDec(&sb, c[2])
	sb.WriteByte('.')
	writeDec(&sb, c[3])
	sb.WriteByte('.')
	writeDec(&sb, c[4])
	sb.WriteByte('*')
	writeDec(&sb, c[5])
	return sb.String()
}

func writeDec(sb *strings.Builder, v byte) {
	if v >= 100 {
		sb.WriteByte('0' + v/100)
	}
	if v >= 10 {
		sb.WriteByte('0' + (v/10)%10)
	}
	sb.WriteByte('0' + v%10)
}

// Bytes returns the six raw octets.
func (c Code) Bytes() []byte {
	return c[:]
}

// FromBytes builds a Code from a 6-byte slice. It panics if b is
// shorter than 6 bytes; callers that parse untrusted wire data should
// check length themselves first.
func FromBytes(b []byte) Code {
	var c Code
	copy(c[:], b[:6])
	return c
}

// Hex renders the code as 12 lowercase hex digits with no separators,
// the canonical form used in configuration files and logs.
func (c Code) Hex() string {
	return hex.EncodeToString(c[:])
}

// Parse reconstructs a Code from its Hex() form, ignoring any '-', ':',
// '.', '*' or ' ' separators a caller may have left in.
// Parse(c.Hex()) == c for all c (§8); String() is a display-only
// decimal rendering and is not required to round-trip through Parse.
func Parse(s string) (Code, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '-', ':', '.', '*', ' ':
			return -1
		}
		return r
	}, s)
	raw, err := hex.DecodeString(clean)
	if err != nil || len(raw) != 6 {
		return Code{}, ErrMalformed
	}
	return FromBytes(raw), nil
}
