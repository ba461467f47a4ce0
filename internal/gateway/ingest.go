package gateway

import (
	"time"

	"github.com/google/uuid"

	"github.com/solostec/smf/internal/sml"
	"github.com/solostec/smf/internal/stats"
	"github.com/solostec/smf/internal/store"
)

// Ingest is a proxy.DataSink that decodes a field device's raw
// transmit.data payload as an SML transport envelope and records every
// OBIS-coded value it carries as one _Readout header plus one
// _ReadoutData row per value (§2 "Data flow (readout)": "Field device
// -> IP-T session -> SML parser -> OBIS-indexed values -> _Readout").
// ServerID is the fallback readout owner used when a decoded message
// body carries no server-id of its own (e.g. a virtual-meter loopback).
type Ingest struct {
	ServerID string
	Store    *store.Store
}

// SendData implements proxy.DataSink.
func (g *Ingest) SendData(data []byte) error {
	msgs, err := sml.DecodeEnvelope(data)
	if err != nil {
		g.Store.Readouts.Put(uuid.New(), store.Readout{ServerID: g.ServerID, TS: time.Now(), Status: store.ReadoutFailed}, "gateway")
		return err
	}

	serverID := g.ServerID
	values := make(map[[6]byte]store.ReadoutData)
	for _, msg := range msgs {
		if id, ok := serverIDFromBody(msg.Body); ok {
			serverID = id
		}
		for code, rd := range valuesFromBody(msg.Body) {
			values[code] = rd
		}
	}

	readout := uuid.New()
	g.Store.Readouts.Put(readout, store.Readout{ServerID: serverID, TS: time.Now(), Status: store.ReadoutOK}, "gateway")
	for code, rd := range values {
		g.Store.ReadoutData.Put(store.ReadoutDataKey{Readout: readout, Code: code}, rd, "gateway")
	}
	stats.Inc(stats.ReadoutsIngested, 1)
	return nil
}

// serverIDFromBody extracts the meter's own server-id from the message
// bodies that carry one, so a readout is attributed to the physical
// meter rather than to the gateway relaying it.
func serverIDFromBody(body sml.Body) (string, bool) {
	switch b := body.(type) {
	case sml.OpenReq:
		return string(b.ServerID), len(b.ServerID) > 0
	case sml.GetListRes:
		return string(b.ServerID), len(b.ServerID) > 0
	case sml.GetProfileListRes:
		return string(b.ServerID), len(b.ServerID) > 0
	case sml.AttentionRes:
		return string(b.ServerID), len(b.ServerID) > 0
	default:
		return "", false
	}
}

// valuesFromBody collects the OBIS-coded leaf values out of the
// message bodies a readout actually carries data in.
func valuesFromBody(body sml.Body) map[[6]byte]store.ReadoutData {
	switch b := body.(type) {
	case sml.GetListRes:
		out := make(map[[6]byte]store.ReadoutData, len(b.Entries))
		for _, e := range b.Entries {
			out[[6]byte(e.ObjName)] = readoutDataFromValue(e.Value)
		}
		return out
	case sml.GetProfileListRes:
		out := make(map[[6]byte]store.ReadoutData, len(b.Entries))
		for _, e := range b.Entries {
			out[[6]byte(e.ObjName)] = readoutDataFromValue(e.Value)
		}
		return out
	default:
		return nil
	}
}

func readoutDataFromValue(v sml.Value) store.ReadoutData {
	rd := store.ReadoutData{Unit: uint8(v.Unit), Raw: v.Octets}
	if v.HasScaler {
		rd.Scaler = v.Scaler
	}
	switch v.Kind {
	case sml.KindInt8, sml.KindInt16, sml.KindInt32, sml.KindInt64:
		rd.Value = v.Int
	case sml.KindUint8, sml.KindUint16, sml.KindUint32, sml.KindUint64:
		rd.Value = int64(v.Uint)
	}
	return rd
}
