package gateway

import (
	"time"

	"github.com/google/uuid"

	"github.com/solostec/smf/internal/obis"
	"github.com/solostec/smf/internal/store"
)

// Bucket is one persistent profile-table row: all OBIS values captured
// for one meter within one profile's aligned time window (§8 scenario
// 4: "the persistent 60-min table gains one row keyed by (server-id,
// hour(t)) with the two values").
type Bucket struct {
	ServerID string
	Profile  Profile
	At       time.Time
	Values   map[obis.Code]store.ReadoutData
}

// Buckets is the table of persistent profile rows a readout cycle
// writes into, one per (serverID, profile, aligned-time) key produced
// by BucketKey.
type Buckets = *store.Table[string, Bucket]

// NewBuckets creates an empty Buckets table.
func NewBuckets() Buckets {
	return store.New[string, Bucket]("profile_bucket")
}

// RunReadoutCycle snapshots every _Readout/_ReadoutData row for
// serverID, classifies them by every active _DataCollector bound to
// serverID, merges the values into the matching profile Bucket, and
// erases the consumed _Readout/_ReadoutData rows (§4.5 steps 1-2: "1.
// Snapshot _Readout and _ReadoutData." then classify and emit durable
// rows).
func RunReadoutCycle(st *store.Store, buckets Buckets, serverID string, now time.Time) int {
	collectors := activeCollectorsFor(st, serverID)
	if len(collectors) == 0 {
		return 0
	}

	readoutKeys, data := snapshotReadouts(st, serverID)
	if len(readoutKeys) == 0 {
		return 0
	}

	for _, profile := range collectors {
		key := BucketKey(serverID, profile, now)
		bucket, ok := buckets.Get(key)
		if !ok {
			bucket = Bucket{ServerID: serverID, Profile: profile, At: now, Values: make(map[obis.Code]store.ReadoutData)}
		}
		for code, rd := range data {
			bucket.Values[code] = rd
		}
		buckets.Put(key, bucket, "gateway")
	}

	for _, id := range readoutKeys {
		st.Readouts.Erase(id)
	}
	sweepReadoutData(st, readoutKeys)

	return len(readoutKeys)
}

func activeCollectorsFor(st *store.Store, serverID string) []Profile {
	var out []Profile
	for key, row := range st.Collectors.Snapshot() {
		if key.ServerID != serverID || !row.Value.Active {
			continue
		}
		out = append(out, Profile(row.Value.Profile))
	}
	return out
}

func snapshotReadouts(st *store.Store, serverID string) ([]uuid.UUID, map[obis.Code]store.ReadoutData) {
	var ids []uuid.UUID
	for id, row := range st.Readouts.Snapshot() {
		if row.Value.ServerID != serverID || row.Value.Status != store.ReadoutOK {
			continue
		}
		ids = append(ids, id)
	}

	data := make(map[obis.Code]store.ReadoutData)
	for key, row := range st.ReadoutData.Snapshot() {
		for _, id := range ids {
			if key.Readout == id {
				data[obis.FromBytes(key.Code[:])] = row.Value
			}
		}
	}
	return ids, data
}

func sweepReadoutData(st *store.Store, readoutIDs []uuid.UUID) {
	for key := range st.ReadoutData.Snapshot() {
		for _, id := range readoutIDs {
			if key.Readout == id {
				st.ReadoutData.Erase(key)
			}
		}
	}
}
