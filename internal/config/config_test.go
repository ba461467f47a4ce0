package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleDoc = `{
	// comments are allowed, tinode/jsonco strips them before parsing
	"tag": "11111111-1111-1111-1111-111111111111",
	"log-level": "info",
	"server": {"address": "0.0.0.0", "service": "8080"},
	"hardware": {"manufacturer": "acme", "model": "gw-1", "serial": "0001"},
	"mbus": {"readout-interval": 900, "search-interval": 3600, "auto-activate": true}
}`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "smf.conf")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadValidDocument(t *testing.T) {
	path := writeTemp(t, sampleDoc)
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.Tag == "" {
		t.Fatal("expected tag to be populated")
	}
	if doc.Server.Address != "0.0.0.0" || doc.Server.Service != "8080" {
		t.Fatalf("unexpected server block: %+v", doc.Server)
	}
	if !doc.MBus.AutoActivate || doc.MBus.ReadoutIntervalSeconds != 900 {
		t.Fatalf("unexpected mbus block: %+v", doc.MBus)
	}
}

func TestLoadRejectsMissingRequiredField(t *testing.T) {
	path := writeTemp(t, `{"log-level": "info"}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected schema validation error for a document missing tag/server/hardware")
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := writeTemp(t, `{
		"tag": "x",
		"server": {"address": "0.0.0.0", "service": "8080"},
		"hardware": {"manufacturer": "acme", "model": "gw-1", "serial": "0001"},
		"bogus-option": true
	}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected decode error for an unrecognized top-level option")
	}
}
