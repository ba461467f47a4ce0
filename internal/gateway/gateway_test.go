package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/solostec/smf/internal/obis"
	"github.com/solostec/smf/internal/store"
)

// TestReadoutCycleProducesProfileBucket exercises §8 scenario 4
// literally: a gateway with an active 60-min _DataCollector turns a
// _Readout plus two _ReadoutData rows into one durable bucket row
// keyed by (server-id, hour(t)) holding both values.
func TestReadoutCycleProducesProfileBucket(t *testing.T) {
	st := store.NewStore()
	buckets := NewBuckets()
	serverID := "1-esy-1234567-1-a-1"

	st.Collectors.Put(store.DataCollectorKey{ServerID: serverID, CollectorID: "c1"}, store.DataCollector{
		Profile: string(ProfileSixtyMin),
		Active:  true,
	}, "test")

	readoutID := uuid.New()
	at := time.Unix(3600, 0).UTC()
	st.Readouts.Put(readoutID, store.Readout{ServerID: serverID, TS: at, Status: store.ReadoutOK}, "test")

	codeEnergy := obis.FromBytes([]byte{0x01, 0x00, 0x01, 0x08, 0x00, 0xFF})
	codePower := obis.FromBytes([]byte{0x01, 0x00, 0x10, 0x07, 0x00, 0xFF})

	var code1, code2 [6]byte
	copy(code1[:], codeEnergy.Bytes())
	copy(code2[:], codePower.Bytes())

	st.ReadoutData.Put(store.ReadoutDataKey{Readout: readoutID, Code: code1}, store.ReadoutData{
		Unit: 30, Scaler: 0, Value: 1234,
	}, "test")
	st.ReadoutData.Put(store.ReadoutDataKey{Readout: readoutID, Code: code2}, store.ReadoutData{
		Unit: 27, Scaler: 0, Value: 500,
	}, "test")

	n := RunReadoutCycle(st, buckets, serverID, at)
	if n != 1 {
		t.Fatalf("expected 1 readout consumed, got %d", n)
	}

	key := BucketKey(serverID, ProfileSixtyMin, at)
	bucket, ok := buckets.Get(key)
	if !ok {
		t.Fatalf("expected bucket at key %q", key)
	}
	if len(bucket.Values) != 2 {
		t.Fatalf("expected 2 values in bucket, got %d", len(bucket.Values))
	}
	wantEnergy := store.ReadoutData{Unit: 30, Scaler: 0, Value: 1234}
	if diff := cmp.Diff(wantEnergy, bucket.Values[codeEnergy]); diff != "" {
		t.Fatalf("energy reading mismatch (-want +got):\n%s", diff)
	}

	if _, stillThere := st.Readouts.Get(readoutID); stillThere {
		t.Fatal("expected consumed readout to be erased")
	}
	if _, stillThere := st.ReadoutData.Get(store.ReadoutDataKey{Readout: readoutID, Code: code1}); stillThere {
		t.Fatal("expected consumed readout data to be erased")
	}
}

func TestReadoutCycleSkipsServerWithNoActiveCollector(t *testing.T) {
	st := store.NewStore()
	buckets := NewBuckets()
	n := RunReadoutCycle(st, buckets, "no-such-server", time.Now())
	if n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}
}

// fakeTransport records every call a push task makes so tests can
// assert the open/transfer/close sequence without a live IP-T socket.
type fakeTransport struct {
	mu        sync.Mutex
	opens     int
	transfers [][]byte
	closes    int
	failOpen  bool
}

func (f *fakeTransport) OpenChannel(ctx context.Context, target, deviceID string) (uint32, uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.failOpen {
		return 0, 0, errTestOpenFailed
	}
	return 1, 2, nil
}

func (f *fakeTransport) TransferPushdata(ctx context.Context, channel, source uint32, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = append(f.transfers, data)
	return nil
}

func (f *fakeTransport) CloseChannel(ctx context.Context, channel uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

var errTestOpenFailed = &testError{"open failed"}

type testError struct{ s string }

func (e *testError) Error() string { return e.s }

func TestPushOnceSendsLatestBucket(t *testing.T) {
	st := store.NewStore()
	buckets := NewBuckets()
	serverID := "server-a"

	at := time.Unix(7200, 0).UTC()
	buckets.Put(BucketKey(serverID, ProfileSixtyMin, at), Bucket{
		ServerID: serverID,
		Profile:  ProfileSixtyMin,
		At:       at,
		Values: map[obis.Code]store.ReadoutData{
			obis.FromBytes([]byte{0x01, 0x00, 0x01, 0x08, 0x00, 0xFF}): {Value: 1234},
		},
	}, "test")

	transport := &fakeTransport{}
	op := store.PushOp{Profile: string(ProfileSixtyMin), Interval: time.Minute, Target: "push-target"}

	sent, err := pushOnce(context.Background(), st, buckets, transport, serverID, op)
	if err != nil {
		t.Fatalf("pushOnce: %v", err)
	}
	if !sent {
		t.Fatal("expected a bucket to be found and sent")
	}
	if transport.opens != 1 || transport.closes != 1 || len(transport.transfers) != 1 {
		t.Fatalf("unexpected transport call counts: %+v", transport)
	}
}

func TestPushOnceNoBucketIsNotAnError(t *testing.T) {
	st := store.NewStore()
	buckets := NewBuckets()
	transport := &fakeTransport{}
	op := store.PushOp{Profile: string(ProfileSixtyMin), Interval: time.Minute, Target: "push-target"}

	sent, err := pushOnce(context.Background(), st, buckets, transport, "server-a", op)
	if err != nil {
		t.Fatalf("pushOnce: %v", err)
	}
	if sent {
		t.Fatal("expected no bucket to exist yet")
	}
	if transport.opens != 0 {
		t.Fatal("expected no channel open when nothing to send")
	}
}

func TestPushOnceReportsOpenFailure(t *testing.T) {
	st := store.NewStore()
	buckets := NewBuckets()
	serverID := "server-a"
	at := time.Now()
	buckets.Put(BucketKey(serverID, ProfileSixtyMin, at), Bucket{
		ServerID: serverID,
		Profile:  ProfileSixtyMin,
		At:       at,
		Values:   map[obis.Code]store.ReadoutData{},
	}, "test")

	transport := &fakeTransport{failOpen: true}
	op := store.PushOp{Profile: string(ProfileSixtyMin), Interval: time.Minute, Target: "push-target"}

	sent, err := pushOnce(context.Background(), st, buckets, transport, serverID, op)
	if err == nil {
		t.Fatal("expected an error when the channel open fails")
	}
	if !sent {
		t.Fatal("expected sent=true: an attempt was made even though it failed")
	}
}
