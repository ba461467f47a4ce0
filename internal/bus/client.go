package bus

import (
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/solostec/smf/internal/store"
)

// Client is a node's (gateway or dashboard) connection to the master,
// grounded on the teacher's ClusterNode.reconnect() loop
// (server/cluster.go) but driving the bus.Record protocol instead of
// net/rpc.
type Client struct {
	addr    string
	tag     string
	logger  *log.Logger
	conn    *Conn
	handler func(Record)

	mu     sync.Mutex
	tables map[string]tableBinding
}

// Dial connects to the master at addr and performs the login handshake
// described in §4.1, identifying as tag/class under account/password.
func Dial(addr, account, password, tag, class, version string, handler func(Record), logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.Default()
	}
	nc, err := net.DialTimeout("tcp", addr, defaultDialTimeout)
	if err != nil {
		return nil, fmt.Errorf("bus: dial %s: %w", addr, err)
	}
	conn := NewConn(nc)

	login := Record{Op: OpLoginReq, Args: []Arg{
		StringArg(version),
		StringArg(account),
		StringArg(password),
		StringArg(tag),
		StringArg(class),
	}}
	if err := conn.Send(login); err != nil {
		nc.Close()
		return nil, err
	}

	res, err := conn.Recv()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("bus: read login response: %w", err)
	}
	if res.Op != OpLoginRes || len(res.Args) < 1 || res.Args[0].Int != 1 {
		nc.Close()
		return nil, fmt.Errorf("bus: login rejected")
	}
	resolvedTag := tag
	if len(res.Args) > 1 && res.Args[1].Str != "" {
		resolvedTag = res.Args[1].Str
	}

	c := &Client{addr: addr, tag: resolvedTag, logger: logger, conn: conn, handler: handler, tables: make(map[string]tableBinding)}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	for {
		rec, err := c.conn.Recv()
		if err != nil {
			c.logger.Printf("bus: client: connection to %s lost: %v", c.addr, err)
			return
		}
		if rec.Op == OpWatchdogReq {
			_ = c.conn.Send(Record{Op: OpWatchdogRes, Args: rec.Args})
			continue
		}
		switch rec.Op {
		case OpTableInsert, OpTableModify, OpTableErase, OpTableClear:
			c.applyTableRecord(rec)
		}
		if c.handler != nil {
			c.handler(rec)
		}
	}
}

// applyTableRecord mirrors an incoming table-row record into the
// matching local table, if MirrorTable has bound one. Ack/nack replies
// to this client's own earlier writes carry IntArg args instead of a
// TableRowArg and fall through here untouched — the caller's handler,
// not the mirror, is where those are observed.
func (c *Client) applyTableRecord(rec Record) {
	if len(rec.Args) != 1 || rec.Args[0].Kind != ArgTableRow || rec.Args[0].TableRow == nil {
		return
	}
	arg := *rec.Args[0].TableRow
	c.mu.Lock()
	binding, ok := c.tables[arg.Table]
	c.mu.Unlock()
	if !ok {
		return
	}
	if err := binding.apply(rec.Op, arg); err != nil {
		c.logger.Printf("bus: apply %s for %s: %v", rec.Op, arg.Table, err)
	}
}

// MirrorTable binds t to the replicated table of the same name: rows
// the master (or another node) publishes are applied into t, and
// local writes to t whose origin is this client's own tag are
// forwarded to the master as db.req.insert/modify/remove/db.clear
// (§4.1 "Table mutation protocol"). A row that arrived over the wire
// is never re-sent: the master's own broadcastRow already filters the
// echo at the source, so such a row's origin is never this client's
// tag.
func MirrorTable[K comparable, V any](c *Client, t *store.Table[K, V]) {
	c.mu.Lock()
	c.tables[t.Name()] = &tableBind[K, V]{t: t}
	c.mu.Unlock()

	t.Subscribe(func(ev store.Event, key K, row store.Row[V]) {
		if row.Origin != c.tag {
			return
		}
		arg, err := encodeRow(t.Name(), ev, key, row)
		if err != nil {
			c.logger.Printf("bus: encode %s row for publish: %v", t.Name(), err)
			return
		}
		_ = c.conn.Send(Record{Op: opFromEvent(ev), Args: []Arg{TableRowArgOf(arg)}})
	})
}

// Tag reports the tag this client logged in under, resolved by the
// master if the caller passed an empty tag to Dial.
func (c *Client) Tag() string { return c.tag }

// Subscribe asks the master to stream mutations of the named tables.
func (c *Client) Subscribe(tables ...string) error {
	args := make([]Arg, len(tables))
	for i, t := range tables {
		args[i] = StringArg(t)
	}
	return c.conn.Send(Record{Op: OpSubscribe, Args: args})
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// defaultDialTimeout bounds the initial TCP handshake, matching the
// teacher's reconnect loop which never blocks indefinitely on Dial.
const defaultDialTimeout = 10 * time.Second
