package config

import (
	"bytes"
	"encoding/json"
)

// newDecoder returns a strict json.Decoder (DisallowUnknownFields) so
// a typo'd option name fails loudly instead of being silently ignored.
func newDecoder(data []byte) *json.Decoder {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec
}

func jsonDecode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
