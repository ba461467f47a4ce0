// Package serverid implements the meter/gateway Server ID: a 7-10 byte
// binary identifier whose low nibble of the first byte discriminates
// the addressing form (§3).
package serverid

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// Form identifies how a Server ID should be rendered and is derived
// from the low nibble of the first octet.
type Form int

const (
	// FormUnknown is any nibble value this package does not recognize.
	FormUnknown Form = iota
	// FormMBus identifies an M-Bus primary/secondary address encoding.
	FormMBus
	// FormSerial identifies a serial-interface (1107/IEC) device.
	FormSerial
	// FormGateway identifies an SMF gateway node itself.
	FormGateway
)

// ErrLength is returned for byte slices outside the valid 7-10 byte range.
var ErrLength = errors.New("serverid: length must be 7..10 bytes")

// ID is an immutable Server ID.
type ID struct {
	raw []byte
}

// New validates and wraps a raw Server ID.
func New(raw []byte) (ID, error) {
	if len(raw) < 7 || len(raw) > 10 {
		return ID{}, ErrLength
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return ID{raw: cp}, nil
}

// Bytes returns the raw octets.
func (id ID) Bytes() []byte {
	return id.raw
}

// Form classifies the ID by the low nibble of its first byte.
func (id ID) Form() Form {
	if len(id.raw) == 0 {
		return FormUnknown
	}
	switch id.raw[0] & 0x0F {
	case 0x01, 0x02:
		return FormMBus
	case 0x0C:
		return FormSerial
	case 0x0A:
		return FormGateway
	default:
		return FormUnknown
	}
}

// String renders the ID as lowercase hex prefixed per its Form: "mbus:"
// for M-Bus ids, "ser:" for serial ids, "gw:" for gateway ids and
// "raw:" for anything unrecognized.
func (id ID) String() string {
	h := hex.EncodeToString(id.raw)
	switch id.Form() {
	case FormMBus:
		return "mbus:" + h
	case FormSerial:
		return "ser:" + h
	case FormGateway:
		return "gw:" + h
	default:
		return "raw:" + h
	}
}

// Equal compares two server IDs bytewise.
func (id ID) Equal(o ID) bool {
	if len(id.raw) != len(o.raw) {
		return false
	}
	for i := range id.raw {
		if id.raw[i] != o.raw[i] {
			return false
		}
	}
	return true
}

// Parse reconstructs an ID from its hex-encoded wire form (no "mbus:"
// etc. prefix — that prefix is display-only, see String).
func Parse(h string) (ID, error) {
	raw, err := hex.DecodeString(h)
	if err != nil {
		return ID{}, fmt.Errorf("serverid: %w", err)
	}
	return New(raw)
}
