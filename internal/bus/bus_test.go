package bus

import (
	"net"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/solostec/smf/internal/auth"
	"github.com/solostec/smf/internal/store"
)

func mustUUID(t *testing.T) uuid.UUID {
	t.Helper()
	return uuid.New()
}

func startMaster(t *testing.T, st *store.Store, watchdog time.Duration) (addr string, stop func()) {
	t.Helper()
	checker := auth.NewStatic(map[string]string{"node1": "secret"})
	master := NewMaster(st, checker, watchdog, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go master.Serve(nc)
		}
	}()
	return ln.Addr().String(), func() { ln.Close() }
}

func TestLoginSucceedsWithValidCredentials(t *testing.T) {
	st := store.NewStore()
	addr, stop := startMaster(t, st, time.Hour)
	defer stop()

	client, err := Dial(addr, "node1", "secret", "nodeA", "gateway", "1.0", nil, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	deadline := time.Now().Add(time.Second)
	for st.Cluster.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if st.Cluster.Len() != 1 {
		t.Fatalf("expected one _Cluster row after login, got %d", st.Cluster.Len())
	}
}

func TestLoginFailsWithBadPassword(t *testing.T) {
	st := store.NewStore()
	addr, stop := startMaster(t, st, time.Hour)
	defer stop()

	if _, err := Dial(addr, "node1", "wrong", "nodeA", "gateway", "1.0", nil, nil); err == nil {
		t.Fatal("expected login to fail with a bad password")
	}
}

func TestWatchdogRoundTrip(t *testing.T) {
	st := store.NewStore()
	addr, stop := startMaster(t, st, 50*time.Millisecond)
	defer stop()

	client, err := Dial(addr, "node1", "secret", "nodeA", "gateway", "1.0", nil, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	time.Sleep(200 * time.Millisecond)

	var row store.ClusterNode
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		for _, r := range st.Cluster.Snapshot() {
			if r.Value.Ping > 0 {
				row = r.Value
			}
		}
		if row.Ping > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if row.Ping <= 0 {
		t.Fatal("expected a positive watchdog ping measurement to be recorded")
	}
}

// TestSubscribeReplaysExistingRowsThenLiveInserts exercises §4.1's
// "bus.res.subscribe" requirement: a node subscribing to a table with
// existing rows receives the snapshot before any live delta.
func TestSubscribeReplaysExistingRowsThenLiveInserts(t *testing.T) {
	st := store.NewStore()
	existing := mustUUID(t)
	st.Devices.Put(existing, store.Device{Name: "m0"}, "master")

	addr, stop := startMaster(t, st, time.Hour)
	defer stop()

	client, err := Dial(addr, "node1", "secret", "nodeA", "dash", "1.0", nil, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	mirror := store.New[uuid.UUID, store.Device]("device")
	MirrorTable(client, mirror)

	if err := client.Subscribe("device"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for mirror.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got, ok := mirror.Get(existing); !ok || got.Name != "m0" {
		t.Fatalf("expected replayed row m0, got %+v ok=%v", got, ok)
	}

	fresh := mustUUID(t)
	st.Devices.Put(fresh, store.Device{Name: "m1"}, "master")

	deadline = time.Now().Add(time.Second)
	for mirror.Len() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got, ok := mirror.Get(fresh); !ok || got.Name != "m1" {
		t.Fatalf("expected live insert m1, got %+v ok=%v", got, ok)
	}
}

// TestMirroredLocalWriteReplicatesAndSuppressesEcho exercises §8
// scenario 3 end to end: a subscriber's own write reaches the master
// and a second subscriber, but never echoes back to the writer as a
// duplicate insert/modify of its own change.
func TestMirroredLocalWriteReplicatesAndSuppressesEcho(t *testing.T) {
	st := store.NewStore()
	addr, stop := startMaster(t, st, time.Hour)
	defer stop()

	clientA, err := Dial(addr, "node1", "secret", "nodeA", "dash", "1.0", nil, nil)
	if err != nil {
		t.Fatalf("dial A: %v", err)
	}
	defer clientA.Close()
	mirrorA := store.New[uuid.UUID, store.Device]("device")
	MirrorTable(clientA, mirrorA)
	if err := clientA.Subscribe("device"); err != nil {
		t.Fatalf("subscribe A: %v", err)
	}

	clientB, err := Dial(addr, "node1", "secret", "nodeB", "dash", "1.0", nil, nil)
	if err != nil {
		t.Fatalf("dial B: %v", err)
	}
	defer clientB.Close()
	mirrorB := store.New[uuid.UUID, store.Device]("device")
	MirrorTable(clientB, mirrorB)
	if err := clientB.Subscribe("device"); err != nil {
		t.Fatalf("subscribe B: %v", err)
	}

	time.Sleep(50 * time.Millisecond) // let both subscriptions land

	key := mustUUID(t)
	mirrorA.Put(key, store.Device{Name: "m1"}, clientA.Tag())

	deadline := time.Now().Add(time.Second)
	for mirrorB.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got, ok := mirrorB.Get(key); !ok || got.Name != "m1" {
		t.Fatalf("expected B to observe A's insert, got %+v ok=%v", got, ok)
	}

	if gotMaster, ok := st.Devices.Get(key); !ok || gotMaster.Name != "m1" {
		t.Fatalf("expected master to hold the replicated row, got %+v ok=%v", gotMaster, ok)
	}

	time.Sleep(100 * time.Millisecond)
	if mirrorA.Len() != 1 {
		t.Fatalf("expected A's own mirror unaffected by any echo, got %d rows", mirrorA.Len())
	}
	if row, _ := mirrorA.GetRow(key); row.Gen != 1 {
		t.Fatalf("expected A's local row to remain at gen 1 (no echoed re-application), got gen %d", row.Gen)
	}
}

func TestDisconnectSweepsSessionAndTargetRows(t *testing.T) {
	st := store.NewStore()
	addr, stop := startMaster(t, st, time.Hour)
	defer stop()

	client, err := Dial(addr, "node1", "secret", "nodeA", "gateway", "1.0", nil, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for st.Cluster.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	st.Sessions.Put(mustUUID(t), store.Session{Name: "s1"}, "nodeA")
	st.Targets.Put(1, store.Target{Name: "t1"}, "nodeA")

	client.Close()

	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if st.Cluster.Len() == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if st.Cluster.Len() != 0 {
		t.Fatal("expected _Cluster row to be erased on disconnect")
	}
	if st.Sessions.Len() != 0 {
		t.Fatal("expected _Session rows tagged with the departed node to be swept")
	}
	if st.Targets.Len() != 0 {
		t.Fatal("expected _Target rows tagged with the departed node to be swept")
	}
	if st.SysMsgs.Len() == 0 {
		t.Fatal("expected a _SysMsg entry to be emitted on teardown")
	}
}
