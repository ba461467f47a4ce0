package ipt

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestFrameRoundTrip(t *testing.T) {
	f := Frame{Seq: 42, Cmd: CmdReqWatchdog, Payload: []byte("payload bytes")}
	buf := Encode(nil, f)
	got, n, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("consumed %d, want %d", n, len(buf))
	}
	if got.Seq != f.Seq || got.Cmd != f.Cmd || !bytes.Equal(got.Payload, f.Payload) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, f)
	}
}

func TestFrameDecodeTooShort(t *testing.T) {
	f := Frame{Seq: 1, Cmd: CmdReqWatchdog, Payload: []byte("x")}
	buf := Encode(nil, f)
	if _, _, err := Decode(buf[:headerLen-1]); err != ErrFrameTooShort {
		t.Fatalf("expected ErrFrameTooShort for partial header, got %v", err)
	}
	if _, _, err := Decode(buf[:len(buf)-1]); err != ErrFrameTooShort {
		t.Fatalf("expected ErrFrameTooShort for partial payload, got %v", err)
	}
}

func TestCipherRoundTrip(t *testing.T) {
	var sk [32]byte
	for i := range sk {
		sk[i] = byte(i * 7)
	}
	tx := NewCipher(sk)
	rx := NewCipher(sk)

	plain := []byte("the quick brown fox jumps over the lazy dog, twice over to cross 32 bytes")
	scrambled := make([]byte, len(plain))
	tx.XOR(scrambled, plain)
	if bytes.Equal(scrambled, plain) {
		t.Fatal("scrambled text should not equal plaintext")
	}
	descrambled := make([]byte, len(scrambled))
	rx.XOR(descrambled, scrambled)
	if !bytes.Equal(descrambled, plain) {
		t.Fatalf("descramble mismatch: got %q, want %q", descrambled, plain)
	}
}

func TestCipherStatefulCursorAdvancesAcrossCalls(t *testing.T) {
	var sk [32]byte
	sk[0] = 0xAA
	oneShot := NewCipher(sk)
	whole := make([]byte, 40)
	oneShot.XOR(whole, make([]byte, 40))

	split := NewCipher(sk)
	part1 := make([]byte, 10)
	part2 := make([]byte, 30)
	split.XOR(part1, make([]byte, 10))
	split.XOR(part2, make([]byte, 30))

	if !bytes.Equal(whole[:10], part1) || !bytes.Equal(whole[10:], part2) {
		t.Fatal("keystream must be continuous across separate XOR calls")
	}
}

func TestSessionRekeyAfterLoginResponse(t *testing.T) {
	var sk1, sk2 [32]byte
	for i := range sk1 {
		sk1[i] = byte(i)
		sk2[i] = byte(255 - i)
	}
	client := NewSession(sk1)
	server := NewSession(sk1)

	loginReq := []byte("req.login.scrambled payload")
	wire := make([]byte, len(loginReq))
	client.Scramble(wire, loginReq)
	plain := make([]byte, len(wire))
	server.Descramble(plain, wire)
	if !bytes.Equal(plain, loginReq) {
		t.Fatalf("login request mismatch under sk1: got %q", plain)
	}

	loginRes := []byte("res.login.scrambled payload carrying sk2")
	wire = make([]byte, len(loginRes))
	server.Scramble(wire, loginRes)
	plain = make([]byte, len(wire))
	client.Descramble(plain, wire)
	if !bytes.Equal(plain, loginRes) {
		t.Fatalf("login response mismatch under sk1: got %q", plain)
	}

	// Only after the final byte of the response is processed do both
	// sides adopt sk2 (Design Note §9b).
	client.RekeyAfterLoginResponse(sk2)
	server.RekeyAfterLoginResponse(sk2)

	next := []byte("first frame under the new scramble key")
	wire = make([]byte, len(next))
	client.Scramble(wire, next)
	plain = make([]byte, len(wire))
	server.Descramble(plain, wire)
	if !bytes.Equal(plain, next) {
		t.Fatalf("post-rekey frame mismatch: got %q", plain)
	}
}

func TestCorrelatorMatchesResponseToRequest(t *testing.T) {
	c := NewCorrelator()
	seq, ch, err := c.Allocate()
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if seq == watchdogSeq {
		t.Fatal("allocate must never hand out the reserved watchdog sequence")
	}
	resp := Frame{Seq: seq, Cmd: CmdResWatchdog, Payload: []byte("pong")}
	if !c.Resolve(resp) {
		t.Fatal("resolve should find the waiting allocation")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := c.Wait(ctx, seq, ch)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if string(got.Payload) != "pong" {
		t.Fatalf("got payload %q", got.Payload)
	}
}

func TestCorrelatorResolveUnknownSeqIsNotFatal(t *testing.T) {
	c := NewCorrelator()
	if c.Resolve(Frame{Seq: 99}) {
		t.Fatal("resolve on an unallocated seq should report no waiter, not panic or error")
	}
}

func TestCorrelatorWraparoundSkipsInFlight(t *testing.T) {
	c := NewCorrelator()
	seen := make(map[uint8]bool)
	for i := 0; i < 255; i++ {
		seq, _, err := c.Allocate()
		if err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
		if seen[seq] {
			t.Fatalf("sequence %d reused while still in flight", seq)
		}
		seen[seq] = true
	}
	if _, _, err := c.Allocate(); err != ErrSeqInFlight {
		t.Fatalf("expected ErrSeqInFlight once all 255 usable sequences are in flight, got %v", err)
	}
}

func TestPayloadRoundTrips(t *testing.T) {
	var sk [32]byte
	sk[1] = 9
	lsr := LoginScrambledReq{Account: "acct", Password: "pw", SK: sk}
	got, err := UnmarshalLoginScrambledReq(lsr.Marshal())
	if err != nil || got.Account != lsr.Account || got.Password != lsr.Password || got.SK != lsr.SK {
		t.Fatalf("LoginScrambledReq round trip: got %+v, err %v", got, err)
	}

	res := LoginRes{Code: LoginSuccess, WatchdogMinutes: 5, Redirect: "", SK: &sk}
	gotRes, err := UnmarshalLoginRes(res.Marshal())
	if err != nil || gotRes.Code != res.Code || gotRes.WatchdogMinutes != res.WatchdogMinutes || *gotRes.SK != sk {
		t.Fatalf("LoginRes round trip: got %+v, err %v", gotRes, err)
	}

	tpd := TransferPushdata{Channel: 7, Source: 3, Status: 0, Block: 1, Data: []byte("sml-frame-bytes")}
	gotTpd, err := UnmarshalTransferPushdata(tpd.Marshal())
	if err != nil || gotTpd.Channel != tpd.Channel || !bytes.Equal(gotTpd.Data, tpd.Data) {
		t.Fatalf("TransferPushdata round trip: got %+v, err %v", gotTpd, err)
	}

	ocr := OpenConnectionReq{Number: "meter-42"}
	gotOcr, err := UnmarshalOpenConnectionReq(ocr.Marshal())
	if err != nil || gotOcr.Number != ocr.Number {
		t.Fatalf("OpenConnectionReq round trip: got %+v, err %v", gotOcr, err)
	}
}
