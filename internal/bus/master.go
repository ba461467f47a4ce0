package bus

import (
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solostec/smf/internal/auth"
	"github.com/solostec/smf/internal/stats"
	"github.com/solostec/smf/internal/store"
)

// LoginInfo is the decoded payload of OpLoginReq. It has a field for
// each member of §4.1's login tuple, but decodeLoginInfo fills only
// Version, Account, Password, Tag and Class (positions 0-4) and the
// optional RemoteEP, Platform and PID (positions 5-7); TZOffset,
// Timestamp, Autologin and Group are never read from the wire and stay
// zero.
type LoginInfo struct {
	Version    string
	Account    string
	Password   string
	Tag        string
	Class      string
	TZOffset   int
	Timestamp  time.Time
	Autologin  bool
	Group      string
	RemoteEP   string
	Platform   string
	PID        int
}

// Master is the cluster-bus hub: it accepts node connections, runs
// their login/watchdog/subscribe/mutation protocol, and replicates
// store.Store row changes out to subscribers.
type Master struct {
	st       *store.Store
	checker  auth.Checker
	watchdog time.Duration
	logger   *log.Logger

	mu    sync.Mutex
	peers map[string]*Peer

	// tables is populated once in NewMaster and never mutated
	// afterward, so it is safe to read without m.mu.
	tables map[string]tableBinding

	ids         *store.IDGen
	fallbackSeq uint64
}

// NewMaster builds a Master bound to st, checking node logins against
// checker and pinging every peer every watchdog interval.
func NewMaster(st *store.Store, checker auth.Checker, watchdog time.Duration, logger *log.Logger) *Master {
	if logger == nil {
		logger = log.Default()
	}
	ids, err := store.NewIDGen(0)
	if err != nil {
		logger.Printf("bus: id generator unavailable, falling back to a fixed worker id: %v", err)
	}
	m := &Master{
		st:       st,
		checker:  checker,
		watchdog: watchdog,
		logger:   logger,
		peers:    make(map[string]*Peer),
		tables:   make(map[string]tableBinding),
		ids:      ids,
	}
	m.bindTables(st)
	return m
}

// bindTables wires every replicated table in st to broadcastRow, so
// any table mutation fans out to subscribers the same way _Cluster
// mutations always have — not just _Cluster (§4.1's replication
// mechanism applies to the whole table set, §3).
func (m *Master) bindTables(st *store.Store) {
	publish := func(op Opcode, arg TableRowArg) { m.broadcastRow(op, arg) }
	bindTable(m.tables, st.Devices, publish)
	bindTable(m.tables, st.Gateways, publish)
	bindTable(m.tables, st.Meters, publish)
	bindTable(m.tables, st.Sessions, publish)
	bindTable(m.tables, st.Targets, publish)
	bindTable(m.tables, st.Connections, publish)
	bindTable(m.tables, st.Cluster, publish)
	bindTable(m.tables, st.Config, publish)
	bindTable(m.tables, st.SysMsgs, publish)
	bindTable(m.tables, st.Readouts, publish)
	bindTable(m.tables, st.ReadoutData, publish)
	bindTable(m.tables, st.Collectors, publish)
	bindTable(m.tables, st.PushOps, publish)
	bindTable(m.tables, st.Mirrors, publish)
	bindTable(m.tables, st.DeviceMBUS, publish)
}

// Serve handles one freshly accepted node connection until it fails,
// running login then the read loop, and performing Failure teardown on
// exit (§4.1 "Failure").
func (m *Master) Serve(nc net.Conn) {
	conn := NewConn(nc)
	peer, err := m.handleLogin(conn)
	if err != nil {
		m.logger.Printf("bus: login failed from %s: %v", nc.RemoteAddr(), err)
		conn.Close()
		return
	}

	m.mu.Lock()
	m.peers[peer.Tag] = peer
	m.mu.Unlock()
	stats.Inc(stats.LiveClusterNodes, 1)
	stats.Inc(stats.TotalClusterNodes, 1)

	stopWatchdog := make(chan struct{})
	go m.runWatchdog(peer, stopWatchdog)

	for {
		rec, err := conn.Recv()
		if err != nil {
			break
		}
		if err := m.dispatch(peer, rec); err != nil {
			m.logger.Printf("bus: dispatch error from %s: %v", peer.Tag, err)
		}
	}

	close(stopWatchdog)
	m.teardown(peer)
}

func (m *Master) handleLogin(conn *Conn) (*Peer, error) {
	rec, err := conn.Recv()
	if err != nil {
		return nil, fmt.Errorf("read login: %w", err)
	}
	if rec.Op != OpLoginReq {
		return nil, fmt.Errorf("expected login, got %s", rec.Op)
	}
	info, err := decodeLoginInfo(rec.Args)
	if err != nil {
		return nil, err
	}
	if err := m.checker.Check(info.Account, info.Password); err != nil {
		conn.Send(Record{Op: OpLoginRes, Args: []Arg{IntArg(0)}})
		return nil, err
	}

	tag := info.Tag
	if tag == "" {
		tag = uuid.NewString()
	}
	peer := NewPeer(tag, conn, info.Class, info.Version)

	now := time.Now()
	nodeKey := clusterKey(tag)
	m.st.Cluster.Put(nodeKey, store.ClusterNode{
		Class:     info.Class,
		LoginTime: now,
		Version:   info.Version,
		EP:        info.RemoteEP,
		PID:       info.PID,
	}, tag)

	if err := conn.Send(Record{Op: OpLoginRes, Args: []Arg{
		IntArg(1),
		StringArg(tag),
		StringArg(info.Version),
		IntArg(now.UnixNano()),
	}}); err != nil {
		return nil, err
	}
	return peer, nil
}

// clusterKey maps a node tag to its _Cluster row key: the tag itself
// when it is a UUID, otherwise a name-based UUID derived from it, so
// login, ping updates and teardown all address the same row.
func clusterKey(tag string) uuid.UUID {
	if id, err := uuid.Parse(tag); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(tag))
}

func decodeLoginInfo(args []Arg) (LoginInfo, error) {
	var info LoginInfo
	if len(args) < 5 {
		return info, fmt.Errorf("login: expected at least 5 args, got %d", len(args))
	}
	info.Version = args[0].Str
	info.Account = args[1].Str
	info.Password = args[2].Str
	info.Tag = args[3].Str
	info.Class = args[4].Str
	if len(args) > 5 {
		info.RemoteEP = args[5].Str
	}
	if len(args) > 6 {
		info.Platform = args[6].Str
	}
	if len(args) > 7 {
		info.PID = int(args[7].Int)
	}
	return info, nil
}

// runWatchdog pings peer every m.watchdog and drops the connection
// after two consecutive missed replies (§4.1 "Watchdog").
func (m *Master) runWatchdog(peer *Peer, stop <-chan struct{}) {
	ticker := time.NewTicker(m.watchdog)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			sent := time.Now()
			if err := peer.Conn.Send(Record{Op: OpWatchdogReq, Args: []Arg{IntArg(sent.UnixNano())}}); err != nil {
				return
			}
			// The count includes the request just sent, so two missed
			// replies show up as three unanswered requests.
			if peer.MissWatchdog() > 2 {
				peer.Conn.Close()
				return
			}
		}
	}
}

// dispatch handles one Record from an already-logged-in peer.
func (m *Master) dispatch(peer *Peer, rec Record) error {
	switch rec.Op {
	case OpWatchdogRes:
		if len(rec.Args) < 1 {
			return fmt.Errorf("watchdog.res: missing timestamp")
		}
		sentNano := rec.Args[0].Int
		rtt := time.Since(time.Unix(0, sentNano))
		peer.RecordPing(rtt)
		m.updateClusterPing(peer.Tag, rtt)
		return nil
	case OpSubscribe:
		for _, a := range rec.Args {
			table := a.Str
			peer.Subscribe(table)
			m.replayTable(peer, table)
		}
		return nil
	case OpUnsubscribe:
		for _, a := range rec.Args {
			peer.Unsubscribe(a.Str)
		}
		return nil
	case OpTableInsert, OpTableModify, OpTableErase, OpTableClear:
		return m.applyTableMutation(peer, rec)
	default:
		return fmt.Errorf("unexpected opcode from peer: %s", rec.Op)
	}
}

// replayTable sends peer one OpTableInsert record per current row of
// table, matching §4.1's "bus.res.subscribe" requirement that a
// freshly-subscribing node receives the existing snapshot before any
// live delta. It reuses OpTableInsert rather than a dedicated reply
// opcode since applying the row (inserting it into the subscriber's
// mirror) is exactly what the receiver does with it either way.
func (m *Master) replayTable(peer *Peer, table string) {
	binding, ok := m.tables[table]
	if !ok {
		return
	}
	for _, row := range binding.replay() {
		_ = peer.Conn.Send(Record{Op: OpTableInsert, Args: []Arg{TableRowArgOf(row)}})
	}
}

// applyTableMutation handles a db.req.insert/modify/remove or db.clear
// record from a peer (§4.1 "Table mutation protocol"): it applies the
// mutation to the named table — which fans it out to every other
// subscriber via the Subscribe listener bindTables installed, itself
// filtered so the originator is skipped — then sends the originator a
// direct acknowledgement. The originator never receives a second copy
// of its own write back as a broadcast ("the originator receives the
// response form but not the request form").
func (m *Master) applyTableMutation(peer *Peer, rec Record) error {
	if len(rec.Args) != 1 || rec.Args[0].Kind != ArgTableRow || rec.Args[0].TableRow == nil {
		return fmt.Errorf("%s: expected one table-row argument", rec.Op)
	}
	arg := *rec.Args[0].TableRow
	arg.Origin = peer.Tag

	binding, ok := m.tables[arg.Table]
	if !ok {
		err := fmt.Errorf("%s: unknown table %q", rec.Op, arg.Table)
		_ = peer.Conn.Send(Record{Op: rec.Op, Args: []Arg{IntArg(0), StringArg(err.Error())}})
		return err
	}

	if err := binding.apply(rec.Op, arg); err != nil {
		_ = peer.Conn.Send(Record{Op: rec.Op, Args: []Arg{IntArg(0), StringArg(err.Error())}})
		return fmt.Errorf("%s: %w", rec.Op, err)
	}
	return peer.Conn.Send(Record{Op: rec.Op, Args: []Arg{IntArg(1)}})
}

func (m *Master) updateClusterPing(tag string, rtt time.Duration) {
	id := clusterKey(tag)
	row, ok := m.st.Cluster.Get(id)
	if !ok {
		return
	}
	row.Ping = rtt
	m.st.Cluster.Put(id, row, tag)
}

// broadcastRow forwards one already-encoded row mutation to every peer
// subscribed to arg.Table, except the peer that originated it (§4.1:
// "A node must not echo its own writes").
func (m *Master) broadcastRow(op Opcode, arg TableRowArg) {
	m.mu.Lock()
	peers := make([]*Peer, 0, len(m.peers))
	for _, p := range m.peers {
		if arg.Origin != "" && p.Tag == arg.Origin {
			continue
		}
		if p.SubscribedTo(arg.Table) {
			peers = append(peers, p)
		}
	}
	m.mu.Unlock()

	rec := Record{Op: op, Args: []Arg{TableRowArgOf(arg)}}
	for _, p := range peers {
		_ = p.Conn.Send(rec)
	}
}

// nextSysMsgID allocates a _SysMsg id via the shared snowflake
// generator, falling back to a process-local counter if the generator
// failed to initialize (e.g. clock skew at boot).
func (m *Master) nextSysMsgID() uint64 {
	if m.ids != nil {
		if id, err := m.ids.Next(); err == nil {
			return id
		}
	}
	m.mu.Lock()
	m.fallbackSeq++
	seq := m.fallbackSeq
	m.mu.Unlock()
	return seq
}

func opFromEvent(ev store.Event) Opcode {
	switch ev {
	case store.EventInsert:
		return OpTableInsert
	case store.EventModify:
		return OpTableModify
	case store.EventErase:
		return OpTableErase
	default:
		return OpTableClear
	}
}

// teardown implements the Failure sequence of §4.1: close
// subscriptions, remove the peer's _Target/_Session rows, erase the
// _Cluster row, emit a _SysMsg entry. No close-connection notice is
// sent to the remote party of an open connection, and _Connection rows
// are left in place.
func (m *Master) teardown(peer *Peer) {
	peer.MarkDisconnected()
	peer.CloseSubscriptions()

	m.mu.Lock()
	delete(m.peers, peer.Tag)
	m.mu.Unlock()
	stats.Inc(stats.LiveClusterNodes, -1)

	m.st.Targets.EraseOrigin(peer.Tag)
	m.st.Sessions.EraseOrigin(peer.Tag)

	m.st.Cluster.Erase(clusterKey(peer.Tag))

	seq := m.nextSysMsgID()
	m.st.SysMsgs.Put(seq, store.SysMsg{
		TS:       time.Now(),
		Severity: 2,
		Msg:      fmt.Sprintf("cluster node %q disconnected", peer.Tag),
	}, "master")
}
