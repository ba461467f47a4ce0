package bus

import (
	"sync"
	"time"
)

// Peer tracks one connected cluster-bus node from the master's side:
// its wire connection, login identity, and watchdog round-trip state
// (§4.1 "Watchdog"), grounded on the teacher's ClusterNode
// (server/cluster.go) minus the net/rpc endpoint, since this bus
// drives gob Records directly over Conn.
type Peer struct {
	Tag  string // node tag; also the _Cluster row key and table Origin
	Conn *Conn

	mu              sync.Mutex
	class           string
	version         string
	loginTime       time.Time
	connected       bool
	missedWatchdogs int
	lastPing        time.Duration

	subscriptions map[string]bool // table name -> subscribed
}

// NewPeer wraps conn as a logged-in peer identified by tag.
func NewPeer(tag string, conn *Conn, class, version string) *Peer {
	return &Peer{
		Tag:           tag,
		Conn:          conn,
		class:         class,
		version:       version,
		loginTime:     time.Now(),
		connected:     true,
		subscriptions: make(map[string]bool),
	}
}

// Connected reports whether the peer's socket is still believed open.
func (p *Peer) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// MarkDisconnected flags the peer as gone; callers still perform
// teardown (sweeping rows, closing subscriptions) separately.
func (p *Peer) MarkDisconnected() {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
}

// RecordPing stores a fresh watchdog round-trip measurement and resets
// the missed-reply counter.
func (p *Peer) RecordPing(d time.Duration) {
	p.mu.Lock()
	p.lastPing = d
	p.missedWatchdogs = 0
	p.mu.Unlock()
}

// Ping returns the last measured watchdog round-trip time.
func (p *Peer) Ping() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPing
}

// MissWatchdog records a missed watchdog reply and reports the new
// consecutive-miss count. §4.1: "Missing two consecutive replies
// closes the session."
func (p *Peer) MissWatchdog() int {
	p.mu.Lock()
	p.missedWatchdogs++
	n := p.missedWatchdogs
	p.mu.Unlock()
	return n
}

// Subscribe marks table as one this peer wants row mutations for.
func (p *Peer) Subscribe(table string) {
	p.mu.Lock()
	p.subscriptions[table] = true
	p.mu.Unlock()
}

// Unsubscribe removes a table subscription.
func (p *Peer) Unsubscribe(table string) {
	p.mu.Lock()
	delete(p.subscriptions, table)
	p.mu.Unlock()
}

// SubscribedTo reports whether the peer currently subscribes to table.
func (p *Peer) SubscribedTo(table string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subscriptions[table]
}

// CloseSubscriptions clears every subscription, part of the Failure
// teardown sequence (§4.1 "closes all subscriptions").
func (p *Peer) CloseSubscriptions() {
	p.mu.Lock()
	p.subscriptions = make(map[string]bool)
	p.mu.Unlock()
}
