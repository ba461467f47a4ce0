// Package config defines the hierarchical configuration document
// (§6) and loads it the way the teacher loads tinode.conf: JSON with
// "//" comments via github.com/tinode/jsonco, validated against an
// embedded JSON Schema via github.com/santhosh-tekuri/jsonschema/v5
// before any field is trusted.
package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tinode/jsonco"
)

// ClusterPeer is one entry of the cluster[] redundancy list.
type ClusterPeer struct {
	Host       string `json:"host"`
	Service    string `json:"service"`
	Account    string `json:"account"`
	Pwd        string `json:"pwd"`
	Monitor    bool   `json:"monitor"`
	Group      string `json:"group"`
	AutoConfig bool   `json:"auto-config"`
}

// IPTPeer is one entry of the ipt[] upstream redundancy list.
type IPTPeer struct {
	Host      string `json:"host"`
	Service   string `json:"service"`
	Account   string `json:"account"`
	Pwd       string `json:"pwd"`
	DefSK     string `json:"def-sk"`
	Scrambled bool   `json:"scrambled"`
	Monitor   bool   `json:"monitor"`
}

// Server is the local listening configuration plus optional
// credentials for the configuration interface.
type Server struct {
	Address string `json:"address"`
	Service string `json:"service"`
	Account string `json:"account,omitempty"`
	Pwd     string `json:"pwd,omitempty"`
}

// Hardware seeds the server-id and identifies the physical unit.
type Hardware struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	Serial       string `json:"serial"`
	Class        string `json:"class"`
	MAC          string `json:"mac"`
}

// SerialPort describes wireless-LMN/wired-LMN geometry.
type SerialPort struct {
	Port         string `json:"port"`
	DataBits     int    `json:"databits"`
	Parity       string `json:"parity"`
	FlowControl  string `json:"flow-control"`
	StopBits     int    `json:"stopbits"`
	Speed        int    `json:"speed"`
	WMBusMode    string `json:"wmbus-mode,omitempty"`
	Reboot       bool   `json:"reboot,omitempty"`
	Power        string `json:"power,omitempty"`
	InstallMode  bool   `json:"install-mode,omitempty"`
}

// If1107 holds IEC 61107 interface parameters.
type If1107 struct {
	LoopTimeSeconds int    `json:"loop-time"`
	Retries         int    `json:"retries"`
	TimeoutSeconds  int    `json:"timeout"`
	ProtocolMode    string `json:"protocol-mode"`
	AutoActivation  bool   `json:"auto-activation"`
}

// MBus holds wireless M-Bus discovery/readout parameters.
type MBus struct {
	ReadoutIntervalSeconds int    `json:"readout-interval"`
	SearchIntervalSeconds  int    `json:"search-interval"`
	AutoActivate           bool   `json:"auto-activate"`
	BitrateBitmap          uint32 `json:"bitrate-bitmap"`
}

// VirtualMeter configures a synthetic meter for loopback testing.
type VirtualMeter struct {
	Enabled  bool   `json:"enabled"`
	ServerID string `json:"server-id"`
	Profile  string `json:"profile"`
}

// Document is the full configuration document (§6).
type Document struct {
	LogDir   string `json:"log-dir"`
	LogLevel string `json:"log-level"`
	Tag      string `json:"tag"`

	Cluster []ClusterPeer `json:"cluster"`
	IPT     []IPTPeer     `json:"ipt"`
	Server  Server        `json:"server"`

	Hardware Hardware `json:"hardware"`

	WirelessLMN SerialPort `json:"wireless-LMN"`
	WiredLMN    SerialPort `json:"wired-LMN"`

	If1107 If1107 `json:"if-1107"`
	MBus   MBus   `json:"mbus"`

	VirtualMeter VirtualMeter `json:"virtual-meter"`
}

// schemaJSON is the embedded JSON Schema every loaded Document is
// validated against before any field is trusted, matching the
// teacher's fail-fast config validation at startup.
const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["tag", "server", "hardware"],
  "properties": {
    "log-dir": {"type": "string"},
    "log-level": {"type": "string", "enum": ["debug", "info", "warn", "error"]},
    "tag": {"type": "string", "minLength": 1},
    "cluster": {"type": "array"},
    "ipt": {"type": "array"},
    "server": {
      "type": "object",
      "required": ["address", "service"]
    },
    "hardware": {
      "type": "object",
      "required": ["manufacturer", "model", "serial"]
    }
  }
}`

// Load reads, strips comments from, validates, and parses the
// configuration document at path.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	stripped, err := stripComments(raw)
	if err != nil {
		return nil, fmt.Errorf("config: strip comments: %w", err)
	}

	if err := validate(stripped); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	var doc Document
	dec := newDecoder(stripped)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &doc, nil
}

func stripComments(raw []byte) ([]byte, error) {
	r := jsonco.New(bytes.NewReader(raw))
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func validate(stripped []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("smf-config.json", bytes.NewReader([]byte(schemaJSON))); err != nil {
		return fmt.Errorf("load schema: %w", err)
	}
	schema, err := compiler.Compile("smf-config.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var v any
	if err := jsonDecode(stripped, &v); err != nil {
		return fmt.Errorf("decode for validation: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	return nil
}
