package serverid

import "testing"

func TestNewRejectsOutOfRangeLength(t *testing.T) {
	if _, err := New(make([]byte, 6)); err != ErrLength {
		t.Fatalf("6 bytes: got %v, want ErrLength", err)
	}
	if _, err := New(make([]byte, 11)); err != ErrLength {
		t.Fatalf("11 bytes: got %v, want ErrLength", err)
	}
	if _, err := New(make([]byte, 7)); err != nil {
		t.Fatalf("7 bytes should be valid: %v", err)
	}
	if _, err := New(make([]byte, 10)); err != nil {
		t.Fatalf("10 bytes should be valid: %v", err)
	}
}

func TestFormDiscriminatesOnLowNibble(t *testing.T) {
	cases := []struct {
		first byte
		want  Form
	}{
		{0x01, FormMBus},
		{0x02, FormMBus},
		{0x0C, FormSerial},
		{0x0A, FormGateway},
		{0x0F, FormUnknown},
	}
	for _, c := range cases {
		raw := make([]byte, 7)
		raw[0] = c.first
		id, err := New(raw)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if got := id.Form(); got != c.want {
			t.Fatalf("first byte %#x: got form %v, want %v", c.first, got, c.want)
		}
	}
}

func TestStringPrefixesByForm(t *testing.T) {
	raw := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}
	id, err := New(raw)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := id.String()
	want := "mbus:01020304050607"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEqualComparesBytesNotForm(t *testing.T) {
	a, _ := New([]byte{0x01, 0, 0, 0, 0, 0, 0})
	b, _ := New([]byte{0x01, 0, 0, 0, 0, 0, 0})
	c, _ := New([]byte{0x02, 0, 0, 0, 0, 0, 0})
	if !a.Equal(b) {
		t.Fatal("identical raw bytes should be equal")
	}
	if a.Equal(c) {
		t.Fatal("differing raw bytes should not be equal")
	}
}

func TestParseRoundTripsWithBytes(t *testing.T) {
	raw := []byte{0x0A, 1, 2, 3, 4, 5, 6, 7}
	id, err := New(raw)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	parsed, err := Parse("0a01020304050607")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !id.Equal(parsed) {
		t.Fatalf("parsed id %v does not equal original %v", parsed, id)
	}
}

func TestParseRejectsInvalidHex(t *testing.T) {
	if _, err := Parse("not-hex"); err == nil {
		t.Fatal("expected an error for invalid hex input")
	}
}

func TestParseRejectsWrongLength(t *testing.T) {
	if _, err := Parse("0102"); err != ErrLength {
		t.Fatalf("got %v, want ErrLength", err)
	}
}
