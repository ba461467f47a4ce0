// Package bus implements the cluster bus: the pub/sub fabric that
// replicates store tables between the master and every connected node
// (gateways, dashboards), and carries login/watchdog/subscribe
// control traffic (§4.1). Wire records are gob-encoded, grounded on
// the teacher's cluster.go which already gob.Registers its
// interface{} payload types for net/rpc; this package drives gob
// directly over a plain connection instead of net/rpc, since the
// control protocol here is a handful of fixed opcodes rather than
// open-ended named procedure calls.
package bus

// Opcode is the closed set of cluster-bus operations (§4.1), replacing
// string-keyed handler registration with a single enum switched over
// in one dispatcher (Design Note §9 "dynamic dispatch by opcode →
// closed enum").
type Opcode uint8

const (
	OpLoginReq Opcode = iota + 1
	OpLoginRes
	OpWatchdogReq
	OpWatchdogRes
	OpSubscribe
	OpUnsubscribe
	OpTableInsert
	OpTableModify
	OpTableErase
	OpTableClear
	OpSysMsg
)

func (o Opcode) String() string {
	switch o {
	case OpLoginReq:
		return "login.req"
	case OpLoginRes:
		return "login.res"
	case OpWatchdogReq:
		return "watchdog.req"
	case OpWatchdogRes:
		return "watchdog.res"
	case OpSubscribe:
		return "subscribe"
	case OpUnsubscribe:
		return "unsubscribe"
	case OpTableInsert:
		return "table.insert"
	case OpTableModify:
		return "table.modify"
	case OpTableErase:
		return "table.erase"
	case OpTableClear:
		return "table.clear"
	case OpSysMsg:
		return "sysmsg"
	default:
		return "unknown"
	}
}

// ArgKind discriminates the closed set of value shapes an Arg may
// carry on the wire (§4.1 "closed type-tag lattice").
type ArgKind uint8

const (
	ArgNone ArgKind = iota
	ArgString
	ArgInt
	ArgBytes
	ArgStringList
	ArgTableRow
)

// TableRowArg carries one replicated row mutation. Value is nil for
// OpTableErase. Key and Value are gob-encoded payloads of whatever
// concrete key/value type the named table holds; the receiving side
// knows the shape from Table alone, since the table set is fixed.
type TableRowArg struct {
	Table  string
	Key    []byte
	Value  []byte
	Gen    uint64
	Origin string
}

// Arg is a closed tagged union over a Record's arguments.
type Arg struct {
	Kind     ArgKind
	Str      string
	Int      int64
	Bytes    []byte
	Strings  []string
	TableRow *TableRowArg
}

func StringArg(s string) Arg    { return Arg{Kind: ArgString, Str: s} }
func IntArg(n int64) Arg        { return Arg{Kind: ArgInt, Int: n} }
func BytesArg(b []byte) Arg     { return Arg{Kind: ArgBytes, Bytes: b} }
func StringsArg(s []string) Arg { return Arg{Kind: ArgStringList, Strings: s} }
func TableRowArgOf(t TableRowArg) Arg {
	return Arg{Kind: ArgTableRow, TableRow: &t}
}

// Record is one frame exchanged over the cluster bus.
//
// OpTableInsert/Modify/Erase/Clear carry a single ArgTableRow argument
// when applying a row (a broadcast to subscribers, or the initial
// subscribe replay), and a single ArgInt argument (1 for success, 0
// followed by an ArgString reason for failure) when acknowledging the
// sender's own write — the same opcode serves both db.req.* and
// db.res.* of §4.1's table mutation protocol, discriminated by Arg
// Kind rather than a second opcode.
type Record struct {
	Op   Opcode
	Args []Arg
}
