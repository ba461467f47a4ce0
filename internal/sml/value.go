// Package sml implements the Smart Message Language TLV codec, message
// envelope, OBIS parameter tree and the transaction-id generator used
// by the proxy session state machine (§4.3).
package sml

import (
	"fmt"
	"time"
)

// Kind is the closed set of SML value tags.
type Kind int

const (
	KindNone Kind = iota
	KindBool
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindOctetString
	KindTimeTimestamp
	KindTimeSecIndex
	KindList
)

// Unit is the DLMS unit code table (§3), an unsigned 8-bit value. Only
// the units exercised by the gateway pipeline's example flows are
// named; any other code is valid and simply renders numerically.
type Unit uint8

const (
	UnitUnknown Unit = 0
	UnitWh      Unit = 30
	UnitW       Unit = 27
	UnitVolt    Unit = 35
	UnitAmpere  Unit = 33
	UnitM3      Unit = 14
)

func (u Unit) String() string {
	switch u {
	case UnitWh:
		return "Wh"
	case UnitW:
		return "W"
	case UnitVolt:
		return "V"
	case UnitAmpere:
		return "A"
	case UnitM3:
		return "m3"
	default:
		return fmt.Sprintf("unit(%d)", uint8(u))
	}
}

// Value is the SML tagged-union value: one of the scalar kinds, an
// octet string, a timestamp, or a list of Values, plus the optional
// scaler/unit pair used by scaled numeric registers.
type Value struct {
	Kind Kind

	Bool bool
	Int  int64  // holds Int8..Int64
	Uint uint64 // holds Uint8..Uint64

	Octets []byte

	// Time is valid for KindTimeTimestamp/KindTimeSecIndex.
	Time time.Time
	// SecIndex holds the raw seconds-since-boot value for KindTimeSecIndex;
	// Time is left zero in that case since there is no wall-clock epoch.
	SecIndex uint32

	List []Value

	// Scaler/Unit apply only to numeric leaf values; zero value means
	// "not scaled" (scaler 0, unit UnitUnknown) which is a legal,
	// distinct value from an explicit scaler=0/unit=0 register.
	HasScaler bool
	Scaler    int8
	Unit      Unit
}

// Bool constructs a boolean value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Int constructs a signed integer value of the given width (8/16/32/64).
func Int(width int, v int64) Value {
	k := kindForSignedWidth(width)
	return Value{Kind: k, Int: v}
}

// Uint constructs an unsigned integer value of the given width.
func Uint(width int, v uint64) Value {
	k := kindForUnsignedWidth(width)
	return Value{Kind: k, Uint: v}
}

// Octet constructs an octet-string value.
func Octet(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{Kind: KindOctetString, Octets: cp}
}

// Timestamp constructs a wall-clock timestamp value.
func Timestamp(t time.Time) Value {
	return Value{Kind: KindTimeTimestamp, Time: t.UTC()}
}

// SecIndex constructs a seconds-since-boot index value, used by meters
// without a battery-backed clock.
func SecIndex(secs uint32) Value {
	return Value{Kind: KindTimeSecIndex, SecIndex: secs}
}

// List constructs a list-of-value.
func List(vs ...Value) Value {
	return Value{Kind: KindList, List: vs}
}

// Scaled attaches a scaler/unit pair to a numeric leaf value, returning
// a copy (Value is used by value, never mutated in place).
func (v Value) Scaled(scaler int8, unit Unit) Value {
	v.HasScaler = true
	v.Scaler = scaler
	v.Unit = unit
	return v
}

// Decimal returns the scaled decimal reading: value * 10^scaler, in
// Unit (§3 "Scaled decoding"). Only meaningful for numeric kinds.
func (v Value) Decimal() float64 {
	var base float64
	switch {
	case v.Kind == KindInt8 || v.Kind == KindInt16 || v.Kind == KindInt32 || v.Kind == KindInt64:
		base = float64(v.Int)
	case v.Kind == KindUint8 || v.Kind == KindUint16 || v.Kind == KindUint32 || v.Kind == KindUint64:
		base = float64(v.Uint)
	default:
		return 0
	}
	if !v.HasScaler || v.Scaler == 0 {
		return base
	}
	scale := 1.0
	for i := int8(0); i < v.Scaler; i++ {
		scale *= 10
	}
	for i := int8(0); i > v.Scaler; i-- {
		scale /= 10
	}
	return base * scale
}

func timestampFromUnix(secs uint64) Value {
	return Timestamp(time.Unix(int64(secs), 0))
}

func kindForSignedWidth(w int) Kind {
	switch w {
	case 8:
		return KindInt8
	case 16:
		return KindInt16
	case 32:
		return KindInt32
	case 64:
		return KindInt64
	default:
		panic("sml: invalid signed int width")
	}
}

func kindForUnsignedWidth(w int) Kind {
	switch w {
	case 8:
		return KindUint8
	case 16:
		return KindUint16
	case 32:
		return KindUint32
	case 64:
		return KindUint64
	default:
		panic("sml: invalid unsigned int width")
	}
}

// Equal performs a deep, order-sensitive comparison, used by the
// round-trip tests (§8).
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind || v.HasScaler != o.HasScaler || v.Scaler != o.Scaler || v.Unit != o.Unit {
		return false
	}
	switch v.Kind {
	case KindBool:
		return v.Bool == o.Bool
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return v.Int == o.Int
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return v.Uint == o.Uint
	case KindOctetString:
		return string(v.Octets) == string(o.Octets)
	case KindTimeTimestamp:
		return v.Time.Equal(o.Time)
	case KindTimeSecIndex:
		return v.SecIndex == o.SecIndex
	case KindList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(o.List[i]) {
				return false
			}
		}
		return true
	case KindNone:
		return true
	default:
		return false
	}
}
