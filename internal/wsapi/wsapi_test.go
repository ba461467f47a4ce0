package wsapi

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/solostec/smf/internal/store"
)

func startTestServer(t *testing.T, configure func(*Server)) (*httptest.Server, string) {
	t.Helper()
	dir := t.TempDir()
	s := New(dir, nil)
	if configure != nil {
		configure(s)
	}
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(hs.Close)
	wsURL := "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws"
	return hs, wsURL
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestSubscribeReplaysExistingRowsThenDeltas(t *testing.T) {
	tbl := store.New[string, string]("widget")
	tbl.Put("a", "first", "test")

	_, wsURL := startTestServer(t, func(s *Server) {
		RegisterChannel(s, "_Widget", tbl, func(k string) string { return k })
	})
	conn := dial(t, wsURL)

	if err := conn.WriteJSON(Frame{Cmd: CmdSubscribe, Channel: "_Widget"}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.Cmd != CmdInsert || f.Channel != "_Widget" {
		t.Fatalf("expected replayed insert, got %+v", f)
	}

	tbl.Put("b", "second", "test")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read delta: %v", err)
	}
	if f.Cmd != CmdInsert {
		t.Fatalf("expected insert delta for b, got %+v", f)
	}
	var rec channelRecord
	if err := json.Unmarshal(f.Rec, &rec); err != nil {
		t.Fatalf("unmarshal rec: %v", err)
	}
	if rec.Key != "b" {
		t.Fatalf("expected key b, got %q", rec.Key)
	}
}

func TestSubscribeUnknownChannelReturnsError(t *testing.T) {
	_, wsURL := startTestServer(t, nil)
	conn := dial(t, wsURL)

	if err := conn.WriteJSON(Frame{Cmd: CmdSubscribe, Channel: "_NoSuchChannel"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.Cmd != "error" {
		t.Fatalf("expected error frame, got %+v", f)
	}
}

type fakeControl struct {
	stopped  []string
	rebooted []string
}

func (f *fakeControl) Query(channel, cmd string) (json.RawMessage, error) {
	return json.RawMessage(`{"visible":true,"active":true}`), nil
}
func (f *fakeControl) Stop(channel string) error   { f.stopped = append(f.stopped, channel); return nil }
func (f *fakeControl) Reboot(channel string) error { f.rebooted = append(f.rebooted, channel); return nil }

func TestStopCommandReachesControl(t *testing.T) {
	ctrl := &fakeControl{}
	_, wsURL := startTestServer(t, func(s *Server) { s.SetControl(ctrl) })
	conn := dial(t, wsURL)

	if err := conn.WriteJSON(Frame{Cmd: CmdStop, Channel: "device-1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.Cmd != CmdStop {
		t.Fatalf("expected stop ack, got %+v", f)
	}

	time.Sleep(50 * time.Millisecond)
	if len(ctrl.stopped) != 1 || ctrl.stopped[0] != "device-1" {
		t.Fatalf("expected control.Stop called with device-1, got %v", ctrl.stopped)
	}
}

func TestQuerySrvCommandReturnsControlPayload(t *testing.T) {
	ctrl := &fakeControl{}
	_, wsURL := startTestServer(t, func(s *Server) { s.SetControl(ctrl) })
	conn := dial(t, wsURL)

	if err := conn.WriteJSON(Frame{Cmd: "query:srv:visible", Channel: "device-1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.Cmd != "query:srv:visible" {
		t.Fatalf("expected query ack, got %+v", f)
	}
}
