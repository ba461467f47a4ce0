package sml

import "github.com/solostec/smf/internal/obis"

// Attention codes surfaced to the error layer (§7), grounded on
// original_source/lib/sml/protocol/src/obis_db.cpp's attention table.
var (
	AttnOK            = obis.New(0x81, 0x81, 0xC7, 0x88, 0x00, 0xFF)
	AttnUnknownSMLID  = obis.New(0x81, 0x81, 0xC7, 0x88, 0x01, 0xFF)
	AttnUnknownObj    = obis.New(0x81, 0x81, 0xC7, 0x88, 0x02, 0xFF)
	AttnInvalidCRC    = obis.New(0x81, 0x81, 0xC7, 0x88, 0x03, 0xFF)
	AttnUnexpectedMsg = obis.New(0x81, 0x81, 0xC7, 0x88, 0x04, 0xFF)
	AttnParserError   = obis.New(0x81, 0x81, 0xC7, 0x88, 0x05, 0xFF)
	AttnJobIsRunning  = obis.New(0x81, 0x81, 0xC7, 0x88, 0x06, 0xFF)
)

// NewAttention builds an AttentionRes for serverID with the given
// attention code and optional free-text description.
func NewAttention(serverID []byte, code obis.Code, text string) AttentionRes {
	return AttentionRes{ServerID: serverID, Code: code, Text: text}
}
