package obis

import "testing"

func TestParseFormatRoundTrip(t *testing.T) {
	cases := []Code{
		New(0, 0, 0, 0, 0, 0),
		New(1, 0, 1, 8, 0, 0xFF),
		New(0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF),
		CodeRootDeviceIdent,
		CodeServerID,
	}
	for _, c := range cases {
		got, err := Parse(c.Hex())
		if err != nil {
			t.Fatalf("parse(%s): %v", c.Hex(), err)
		}
		if got != c {
			t.Fatalf("round trip mismatch: got %v, want %v", got, c)
		}
	}
}

func TestWildcardMatches(t *testing.T) {
	pattern := New(1, 0, 1, 8, 0, Wildcard)
	exact := New(1, 0, 1, 8, 0, 0xFF)
	other := New(1, 0, 1, 8, 0, 0x01)
	if !pattern.Matches(exact) {
		t.Fatal("wildcard pattern should match any F")
	}
	if !pattern.Matches(other) {
		t.Fatal("wildcard pattern should match any F, including 0x01")
	}
	if pattern.Equal(other) {
		t.Fatal("Equal must be exact, not wildcard-aware (Design Note 9c)")
	}
}

func TestParseMalformed(t *testing.T) {
	if _, err := Parse("not-hex!!"); err == nil {
		t.Fatal("expected error for malformed input")
	}
	if _, err := Parse("0011"); err == nil {
		t.Fatal("expected error for short input")
	}
}
