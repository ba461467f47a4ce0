package proxy

import (
	"testing"
)

type nopSink struct{ sent [][]byte }

func (n *nopSink) SendData(data []byte) error {
	n.sent = append(n.sent, data)
	return nil
}

func TestLoginTransitionsIdleToAuthorized(t *testing.T) {
	s := New("tag-1", nil)
	if s.State() != StateIdle {
		t.Fatalf("expected new session to start IDLE, got %s", s.State())
	}
	if err := s.Fire(Event{Kind: EventLoginOK}); err != nil {
		t.Fatalf("login-ok: %v", err)
	}
	if s.State() != StateAuthorized {
		t.Fatalf("expected AUTHORIZED, got %s", s.State())
	}
	if s.LoginTime.IsZero() {
		t.Fatal("expected LoginTime to be stamped")
	}
}

func TestOpenConnSequenceReachesConnectedRemote(t *testing.T) {
	s := New("tag-1", nil)
	mustFire(t, s, Event{Kind: EventLoginOK})
	mustFire(t, s, Event{Kind: EventOpenConn, Number: "callee-1"})
	if s.State() != StateWaitOpenRes {
		t.Fatalf("expected WAIT-OPEN-RES, got %s", s.State())
	}
	mustFire(t, s, Event{Kind: EventOpenSuccessRemote, Number: "peer-node-7"})
	if s.State() != StateConnectedRemote {
		t.Fatalf("expected CONNECTED-REMOTE, got %s", s.State())
	}
	if s.Peer != PeerRemote || s.PeerTag != "peer-node-7" {
		t.Fatalf("expected peer binding to remote node, got %v/%s", s.Peer, s.PeerTag)
	}
}

func TestOpenTimeoutFallsBackToAuthorized(t *testing.T) {
	s := New("tag-1", nil)
	mustFire(t, s, Event{Kind: EventLoginOK})
	mustFire(t, s, Event{Kind: EventOpenConn})
	mustFire(t, s, Event{Kind: EventTimeout})
	if s.State() != StateAuthorized {
		t.Fatalf("expected AUTHORIZED after open timeout, got %s", s.State())
	}
}

func TestCloseFromConnectedClearsPeerAndReturnsToIdle(t *testing.T) {
	s := New("tag-1", nil)
	mustFire(t, s, Event{Kind: EventLoginOK})
	mustFire(t, s, Event{Kind: EventOpenConn})
	mustFire(t, s, Event{Kind: EventOpenSuccessLocal, Number: "local-peer"})
	s.Sink = &nopSink{}

	mustFire(t, s, Event{Kind: EventClose})
	if s.State() != StateIdle {
		t.Fatalf("expected IDLE after close, got %s", s.State())
	}
	if s.Peer != PeerNone || s.PeerTag != "" || s.Sink != nil {
		t.Fatal("expected peer binding and sink cleared on close")
	}
}

func TestCloseConnThenTimeoutReturnsToIdle(t *testing.T) {
	s := New("tag-1", nil)
	mustFire(t, s, Event{Kind: EventLoginOK})
	mustFire(t, s, Event{Kind: EventOpenConn})
	mustFire(t, s, Event{Kind: EventOpenSuccessTask, Number: "config-task"})
	mustFire(t, s, Event{Kind: EventCloseConn})
	if s.State() != StateWaitCloseRes {
		t.Fatalf("expected WAIT-CLOSE-RES, got %s", s.State())
	}
	mustFire(t, s, Event{Kind: EventTimeout})
	if s.State() != StateIdle {
		t.Fatalf("expected IDLE, got %s", s.State())
	}
}

// TestIllegalTransitionsAreNoOps covers the "illegal transitions log a
// warning and are no-ops" rule: state must be unchanged and an error
// returned.
func TestIllegalTransitionsAreNoOps(t *testing.T) {
	s := New("tag-1", nil)
	if err := s.Fire(Event{Kind: EventOpenConn}); err == nil {
		t.Fatal("expected an error opening a connection before login")
	}
	if s.State() != StateIdle {
		t.Fatalf("expected state unchanged after illegal transition, got %s", s.State())
	}

	mustFire(t, s, Event{Kind: EventLoginOK})
	if err := s.Fire(Event{Kind: EventCloseConn}); err == nil {
		t.Fatal("expected an error closing a connection that was never opened")
	}
	if s.State() != StateAuthorized {
		t.Fatalf("expected state unchanged after illegal transition, got %s", s.State())
	}
}

func TestSMLMsgInAuthorizedIsHandledInPlace(t *testing.T) {
	s := New("tag-1", nil)
	mustFire(t, s, Event{Kind: EventLoginOK})
	if err := s.Fire(Event{Kind: EventSMLMsg}); err != nil {
		t.Fatalf("sml-msg in AUTHORIZED should be legal: %v", err)
	}
	if s.State() != StateAuthorized {
		t.Fatalf("expected to remain AUTHORIZED, got %s", s.State())
	}
}

func TestSendDataRequiresConnectedState(t *testing.T) {
	s := New("tag-1", nil)
	if err := s.SendData([]byte("x")); err == nil {
		t.Fatal("expected error sending data while IDLE")
	}

	mustFire(t, s, Event{Kind: EventLoginOK})
	mustFire(t, s, Event{Kind: EventOpenConn})
	mustFire(t, s, Event{Kind: EventOpenSuccessLocal, Number: "peer"})

	sink := &nopSink{}
	s.Sink = sink
	if err := s.SendData([]byte("payload")); err != nil {
		t.Fatalf("SendData: %v", err)
	}
	if len(sink.sent) != 1 || string(sink.sent[0]) != "payload" {
		t.Fatalf("expected payload forwarded to sink, got %v", sink.sent)
	}
}

func TestSendDataWithNoSinkBoundIsAnError(t *testing.T) {
	s := New("tag-1", nil)
	mustFire(t, s, Event{Kind: EventLoginOK})
	mustFire(t, s, Event{Kind: EventOpenConn})
	mustFire(t, s, Event{Kind: EventOpenSuccessRemote, Number: "peer"})

	if err := s.SendData([]byte("x")); err == nil {
		t.Fatal("expected error with no sink bound")
	}
}

func mustFire(t *testing.T, s *Session, ev Event) {
	t.Helper()
	if err := s.Fire(ev); err != nil {
		t.Fatalf("Fire(%v): %v", ev.Kind, err)
	}
}
