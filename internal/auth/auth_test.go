package auth

import "testing"

func TestStaticAcceptsMatchingCredential(t *testing.T) {
	s := NewStatic(map[string]string{"root": "root"})
	if err := s.Check("root", "root"); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestStaticRejectsWrongPassword(t *testing.T) {
	s := NewStatic(map[string]string{"root": "root"})
	if err := s.Check("root", "wrong"); err != ErrDenied {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
}

func TestStaticRejectsUnknownAccount(t *testing.T) {
	s := NewStatic(map[string]string{"root": "root"})
	if err := s.Check("ghost", "root"); err != ErrDenied {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
}

func TestStaticSetAndRemove(t *testing.T) {
	s := NewStatic(nil)
	s.Set("gw1", "secret")
	if err := s.Check("gw1", "secret"); err != nil {
		t.Fatalf("expected success after Set, got %v", err)
	}
	s.Remove("gw1")
	if err := s.Check("gw1", "secret"); err != ErrDenied {
		t.Fatalf("expected ErrDenied after Remove, got %v", err)
	}
}
