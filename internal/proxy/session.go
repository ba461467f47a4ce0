// Package proxy implements the IP-T proxy session state machine
// (§4.3): an incoming device connection's progress through login,
// transparent-connection setup, data shuttling, and teardown. The
// teacher drives its own session/topic lifecycle as an implicit
// coroutine of callbacks (server/session.go, server/topic.go); here
// the same lifecycle is made explicit as a State enum and a
// transition table, per Design Note "coroutine-of-callbacks → explicit
// state machines" — a session accrues enough distinct legal/illegal
// transitions that a table is easier to audit than scattered if
// statements.
package proxy

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/solostec/smf/internal/ipt"
)

// State is one node in the proxy session state machine.
type State int

const (
	StateIdle State = iota
	StateAuthorized
	StateWaitOpenRes
	StateWaitCloseRes
	StateConnectedLocal
	StateConnectedRemote
	StateConnectedTask
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAuthorized:
		return "AUTHORIZED"
	case StateWaitOpenRes:
		return "WAIT-OPEN-RES"
	case StateWaitCloseRes:
		return "WAIT-CLOSE-RES"
	case StateConnectedLocal:
		return "CONNECTED-LOCAL"
	case StateConnectedRemote:
		return "CONNECTED-REMOTE"
	case StateConnectedTask:
		return "CONNECTED-TASK"
	default:
		return "UNKNOWN"
	}
}

// EventKind names the typed events that drive transitions.
type EventKind int

const (
	EventLoginOK EventKind = iota
	EventOpenConn
	EventOpenSuccessLocal
	EventOpenSuccessRemote
	EventOpenSuccessTask
	EventSMLMsg
	EventCloseConn
	EventClose
	EventTimeout
)

func (e EventKind) String() string {
	switch e {
	case EventLoginOK:
		return "login-ok"
	case EventOpenConn:
		return "open-conn"
	case EventOpenSuccessLocal:
		return "open-success-local"
	case EventOpenSuccessRemote:
		return "open-success-remote"
	case EventOpenSuccessTask:
		return "open-success-task"
	case EventSMLMsg:
		return "sml-msg"
	case EventCloseConn:
		return "close-conn"
	case EventClose:
		return "close"
	case EventTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Event is one typed trigger delivered to a Session.
type Event struct {
	Kind    EventKind
	Number  string     // callee number, for EventOpenConn
	Frame   ipt.Frame  // raw frame, for EventSMLMsg / forwarded data
}

// transitions is the explicit state table: transitions[state][event] =
// next state. A (state, event) pair absent from the table is illegal
// and left as a no-op.
var transitions = map[State]map[EventKind]State{
	StateIdle: {
		EventLoginOK: StateAuthorized,
	},
	StateAuthorized: {
		EventOpenConn: StateWaitOpenRes,
		EventSMLMsg:   StateAuthorized, // handled in place, no transition
		EventClose:    StateIdle,
	},
	StateWaitOpenRes: {
		EventOpenSuccessLocal:  StateConnectedLocal,
		EventOpenSuccessRemote: StateConnectedRemote,
		EventOpenSuccessTask:   StateConnectedTask,
		EventTimeout:           StateAuthorized,
		EventClose:             StateIdle,
	},
	StateConnectedLocal: {
		EventCloseConn: StateWaitCloseRes,
		EventClose:     StateIdle,
	},
	StateConnectedRemote: {
		EventCloseConn: StateWaitCloseRes,
		EventClose:     StateIdle,
	},
	StateConnectedTask: {
		EventCloseConn: StateWaitCloseRes,
		EventClose:     StateIdle,
	},
	StateWaitCloseRes: {
		EventTimeout: StateIdle,
		EventClose:   StateIdle,
	},
}

// PeerKind distinguishes what a CONNECTED-* session is shuttling data
// to: another local session, a remote node (via the cluster bus), or
// an internal task such as the SML configuration proxy.
type PeerKind int

const (
	PeerNone PeerKind = iota
	PeerLocal
	PeerRemote
	PeerTask
)

// DataSink receives transmit.data payloads once a session is connected.
type DataSink interface {
	SendData(data []byte) error
}

// Session is one IP-T proxy session's state machine plus the fields
// the transitions need: peer identity and the sink data gets shuttled
// to once connected.
type Session struct {
	mu    sync.Mutex
	state State

	Tag      string
	DeviceTag string
	Peer     PeerKind
	PeerTag  string
	Sink     DataSink

	LoginTime time.Time
	logger    *log.Logger
}

// New creates a session in StateIdle.
func New(tag string, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Default()
	}
	return &Session{Tag: tag, state: StateIdle, logger: logger}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Fire applies ev to the session. Illegal (state, event) pairs log a
// warning and are no-ops, per §4.3 "Every transition is driven by a
// typed event; illegal transitions log a warning and are no-ops."
func (s *Session) Fire(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := transitions[s.state]
	if !ok {
		return s.illegal(ev)
	}
	next, ok := row[ev.Kind]
	if !ok {
		return s.illegal(ev)
	}

	switch ev.Kind {
	case EventLoginOK:
		s.LoginTime = time.Now()
	case EventOpenSuccessLocal:
		s.Peer, s.PeerTag = PeerLocal, ev.Number
	case EventOpenSuccessRemote:
		s.Peer, s.PeerTag = PeerRemote, ev.Number
	case EventOpenSuccessTask:
		s.Peer, s.PeerTag = PeerTask, ev.Number
	case EventClose, EventTimeout:
		if next == StateIdle {
			s.Peer, s.PeerTag, s.Sink = PeerNone, "", nil
		}
	}

	s.state = next
	return nil
}

func (s *Session) illegal(ev Event) error {
	err := fmt.Errorf("proxy: illegal transition %s on %s", ev.Kind, s.state)
	s.logger.Printf("%v", err)
	return err
}

// SendData shuttles a transmit.data payload to the bound Sink. It
// returns an error outside the CONNECTED-* states; in each of them it
// writes to Sink alike, so a CONNECTED-REMOTE payload is not forwarded
// over the cluster bus and a CONNECTED-TASK payload is not posted to an
// internal task.
func (s *Session) SendData(data []byte) error {
	s.mu.Lock()
	sink := s.Sink
	state := s.state
	s.mu.Unlock()

	if state != StateConnectedLocal && state != StateConnectedRemote && state != StateConnectedTask {
		return fmt.Errorf("proxy: transmit.data while not connected (state %s)", state)
	}
	if sink == nil {
		return fmt.Errorf("proxy: no sink bound for connected session")
	}
	return sink.SendData(data)
}
