package obis

// Well-known codes referenced by the parameter-tree readers in
// internal/sml. This is deliberately a small, non-exhaustive set: a
// full OBIS-to-unit table is data, not logic, and is out of scope (§1).
var (
	// CodeRootDeviceIdent is "root device ident" — 81 81 C7 82 01 FF.
	CodeRootDeviceIdent = New(0x81, 0x81, 0xC7, 0x82, 0x01, 0xFF)
	// CodeRootIPTState is "root IP-T state" — 81 49 0D 06 00 FF.
	CodeRootIPTState = New(0x81, 0x49, 0x0D, 0x06, 0x00, 0xFF)
	// CodeRootActiveDevices is "root active devices" — 81 81 11 06 01 FF.
	CodeRootActiveDevices = New(0x81, 0x81, 0x11, 0x06, 0x01, 0xFF)
	// CodeRootVisibleDevices is "root visible devices" — 81 81 10 06 01 FF.
	CodeRootVisibleDevices = New(0x81, 0x81, 0x10, 0x06, 0x01, 0xFF)
	// CodeRootFirmware is "root firmware" — 81 81 C7 82 03 FF.
	CodeRootFirmware = New(0x81, 0x81, 0xC7, 0x82, 0x03, 0xFF)
	// CodeServerID is "server id" — 81 81 C7 82 04 FF.
	CodeServerID = New(0x81, 0x81, 0xC7, 0x82, 0x04, 0xFF)
	// CodeMBUSStatus is "mbus status" — 00 00 61 61 00 FF.
	CodeMBUSStatus = New(0x00, 0x00, 0x61, 0x61, 0x00, 0xFF)

	// CodeActiveEnergyImport ("1.8.0" / A=1,B=0) is the standard active
	// energy (+A) total register, used in the §8 push dataflow scenario.
	CodeActiveEnergyImport = New(0x01, 0x00, 0x01, 0x08, 0x00, 0xFF)
)

// labels maps well-known codes to human-readable names, used only for
// logging; unrecognized codes render via Code.String().
var labels = map[Code]string{
	CodeRootDeviceIdent:    "root device ident",
	CodeRootIPTState:       "root IP-T state",
	CodeRootActiveDevices:  "root active devices",
	CodeRootVisibleDevices: "root visible devices",
	CodeRootFirmware:       "root firmware",
	CodeServerID:           "server id",
	CodeMBUSStatus:         "mbus status",
	CodeActiveEnergyImport: "active energy import total",
}

// Label returns the human-readable name for well-known codes, or the
// hex rendering for anything not in the dictionary.
func Label(c Code) string {
	if l, ok := labels[c]; ok {
		return l
	}
	return c.Hex()
}
