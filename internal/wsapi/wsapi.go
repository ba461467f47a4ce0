// Package wsapi serves the external HTTP/WebSocket interface (§6): a
// static document root plus a delta-streaming WebSocket endpoint that
// delivers table changes as JSON `{cmd, channel, rec}` frames. Routing
// uses github.com/gorilla/mux (grounded on the cc-backend example's
// cmd/cc-backend/server.go), the socket itself uses
// github.com/gorilla/websocket and access logging uses
// github.com/gorilla/handlers — the same two libraries the teacher
// uses for its own session websocket and request logging.
package wsapi

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/solostec/smf/internal/store"
)

// Frame is one WebSocket delta/command frame (§6: "JSON {cmd, channel,
// rec} frames").
type Frame struct {
	Cmd     string          `json:"cmd"`
	Channel string          `json:"channel"`
	Rec     json.RawMessage `json:"rec,omitempty"`
}

// Known command names (§6).
const (
	CmdSubscribe = "subscribe"
	CmdInsert    = "insert"
	CmdModify    = "modify"
	CmdDelete    = "delete"
	CmdClear     = "clear"
	CmdUpdate    = "update"
	CmdStop      = "stop"
	CmdReboot    = "reboot"
)

// MonitorChannel is the fixed channel name streaming every _SysMsg row
// (§6 "User-visible behavior": "The WebSocket channel monitor.msg
// streams every _SysMsg row").
const MonitorChannel = "monitor.msg"

// channelBinder subscribes one live connection to one named table and
// returns the unsubscribe func. Table[K,V] is generic so each bound
// channel closes over its own concrete K/V at registration time; see
// bindTable.
type channelBinder func(conn *wsConn) func()

// Server serves the static document root and the delta WebSocket
// endpoint.
type Server struct {
	router   *mux.Router
	docRoot  string
	upgrader websocket.Upgrader
	logger   *log.Logger

	mu       sync.RWMutex
	channels map[string]channelBinder
	control  Control
}

// SetControl binds the handler for stop/reboot/query commands; update
// commands are acknowledged without reaching it.
func (s *Server) SetControl(c Control) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.control = c
}

// New creates a Server serving static files from docRoot. Channels are
// registered with RegisterChannel; a typical caller registers one per
// replicated table plus MonitorChannel.
func New(docRoot string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		docRoot:  docRoot,
		logger:   logger,
		channels: make(map[string]channelBinder),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.router = mux.NewRouter()
	s.router.HandleFunc("/ws", s.serveWS)
	s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(docRoot)))
	return s
}

// Handler wraps the router with access logging (teacher pattern: gorilla/handlers
// around the top-level mux).
func (s *Server) Handler() http.Handler {
	return handlers.CombinedLoggingHandler(s.logger.Writer(), s.router)
}

// RegisterChannel binds name to a replicated table so future
// "subscribe" commands against it can stream inserts/modifies/deletes.
// keyString renders a table key to its JSON-frame string form.
func RegisterChannel[K comparable, V any](s *Server, name string, t *store.Table[K, V], keyString func(K) string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[name] = bindTable(name, t, keyString)
}

type channelRecord struct {
	Key   string `json:"key"`
	Value any    `json:"value,omitempty"`
	Gen   uint64 `json:"gen,omitempty"`
	Origin string `json:"origin,omitempty"`
}

// bindTable returns a channelBinder that, given a live connection,
// replays the table's current rows as "insert" frames and then
// forwards every subsequent event until the connection unsubscribes.
func bindTable[K comparable, V any](name string, t *store.Table[K, V], keyString func(K) string) channelBinder {
	return func(conn *wsConn) func() {
		for k, row := range t.Snapshot() {
			conn.sendRecord(CmdInsert, name, channelRecord{Key: keyString(k), Value: row.Value, Gen: row.Gen, Origin: row.Origin})
		}
		unsub := t.Subscribe(func(ev store.Event, k K, row store.Row[V]) {
			var cmd string
			switch ev {
			case store.EventInsert:
				cmd = CmdInsert
			case store.EventModify:
				cmd = CmdModify
			case store.EventErase:
				cmd = CmdDelete
			case store.EventClear:
				cmd = CmdClear
			default:
				return
			}
			conn.sendRecord(cmd, name, channelRecord{Key: keyString(k), Value: row.Value, Gen: row.Gen, Origin: row.Origin})
		})
		return unsub
	}
}
