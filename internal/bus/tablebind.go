package bus

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/solostec/smf/internal/store"
)

// tableBinding is the non-generic handle both Master and Client use to
// apply an incoming wire mutation to the concrete store.Table it names
// and to replay that table's current rows, without either ever naming
// a concrete row type in its dispatch loop (Design Note §9 "dynamic
// dispatch by opcode -> closed enum", extended here to table names).
type tableBinding interface {
	apply(op Opcode, arg TableRowArg) error
	replay() []TableRowArg
}

// tableBind adapts one *store.Table[K, V] to tableBinding.
type tableBind[K comparable, V any] struct {
	t *store.Table[K, V]
}

func (b *tableBind[K, V]) apply(op Opcode, arg TableRowArg) error {
	switch op {
	case OpTableClear:
		b.t.Clear()
		return nil
	case OpTableErase:
		var key K
		if err := gobDecode(arg.Key, &key); err != nil {
			return fmt.Errorf("decode key: %w", err)
		}
		b.t.Erase(key)
		return nil
	case OpTableInsert, OpTableModify:
		var key K
		var val V
		if err := gobDecode(arg.Key, &key); err != nil {
			return fmt.Errorf("decode key: %w", err)
		}
		if err := gobDecode(arg.Value, &val); err != nil {
			return fmt.Errorf("decode value: %w", err)
		}
		b.t.Put(key, val, arg.Origin)
		return nil
	default:
		return fmt.Errorf("unexpected table op %s", op)
	}
}

func (b *tableBind[K, V]) replay() []TableRowArg {
	snap := b.t.Snapshot()
	out := make([]TableRowArg, 0, len(snap))
	for k, row := range snap {
		keyBytes, err := gobEncode(k)
		if err != nil {
			continue
		}
		valBytes, err := gobEncode(row.Value)
		if err != nil {
			continue
		}
		out = append(out, TableRowArg{Table: b.t.Name(), Key: keyBytes, Value: valBytes, Gen: row.Gen, Origin: row.Origin})
	}
	return out
}

// encodeRow gob-encodes a table row mutation into wire form. Value is
// left nil for erase/clear, matching TableRowArg's documented shape.
func encodeRow[K comparable, V any](table string, ev store.Event, key K, row store.Row[V]) (TableRowArg, error) {
	keyBytes, err := gobEncode(key)
	if err != nil {
		return TableRowArg{}, fmt.Errorf("encode key: %w", err)
	}
	var valBytes []byte
	if ev != store.EventErase && ev != store.EventClear {
		valBytes, err = gobEncode(row.Value)
		if err != nil {
			return TableRowArg{}, fmt.Errorf("encode value: %w", err)
		}
	}
	return TableRowArg{Table: table, Key: keyBytes, Value: valBytes, Gen: row.Gen, Origin: row.Origin}, nil
}

// bindTable registers t under its own name in dst (either a Master's
// or a Client's table registry) and wires a listener that hands every
// local mutation to publish, gob-encoded and ready to put on the wire.
func bindTable[K comparable, V any](dst map[string]tableBinding, t *store.Table[K, V], publish func(op Opcode, arg TableRowArg)) {
	dst[t.Name()] = &tableBind[K, V]{t: t}
	t.Subscribe(func(ev store.Event, key K, row store.Row[V]) {
		arg, err := encodeRow(t.Name(), ev, key, row)
		if err != nil {
			return
		}
		publish(opFromEvent(ev), arg)
	})
}

func gobEncode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(b []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
