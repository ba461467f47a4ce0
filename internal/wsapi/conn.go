package wsapi

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Control hands query/stop/reboot commands off to whatever owns
// device state; wsapi itself only frames the wire protocol.
type Control interface {
	// Query answers a "query:srv:{visible,active}" or
	// "query:firmware" command for the addressed channel, returning
	// the JSON payload to carry back as rec.
	Query(channel string, cmd string) (json.RawMessage, error)
	// Stop and Reboot act on the addressed channel (a device tag).
	Stop(channel string) error
	Reboot(channel string) error
}

// wsConn is one live WebSocket client: a writer goroutine fed by a
// channel so subscription callbacks (invoked synchronously by whichever
// goroutine mutates the table) never block on socket I/O.
type wsConn struct {
	ws   *websocket.Conn
	out  chan Frame
	done chan struct{}
	once sync.Once

	mu   sync.Mutex
	subs map[string]func() // channel name -> unsubscribe
}

func newConn(ws *websocket.Conn) *wsConn {
	c := &wsConn{
		ws:   ws,
		out:  make(chan Frame, 64),
		done: make(chan struct{}),
		subs: make(map[string]func()),
	}
	go c.writeLoop()
	return c
}

func (c *wsConn) writeLoop() {
	for {
		select {
		case f := <-c.out:
			if err := c.ws.WriteJSON(f); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// sendRecord enqueues a delta frame, dropping it if the connection's
// outbound buffer is full or the socket already torn down (a slow
// or dead client must never stall a table's notify loop).
func (c *wsConn) sendRecord(cmd, channel string, rec any) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return
	}
	select {
	case c.out <- Frame{Cmd: cmd, Channel: channel, Rec: payload}:
	case <-c.done:
	default:
	}
}

func (c *wsConn) sendError(channel, msg string) {
	c.sendRecord("error", channel, map[string]string{"error": msg})
}

func (c *wsConn) subscribe(channel string, binder channelBinder) {
	c.mu.Lock()
	if _, already := c.subs[channel]; already {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	unsub := binder(c)

	c.mu.Lock()
	c.subs[channel] = unsub
	c.mu.Unlock()
}

func (c *wsConn) unsubscribe(channel string) {
	c.mu.Lock()
	unsub, ok := c.subs[channel]
	delete(c.subs, channel)
	c.mu.Unlock()
	if ok {
		unsub()
	}
}

func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.done)
		c.mu.Lock()
		for _, unsub := range c.subs {
			unsub()
		}
		c.subs = nil
		c.mu.Unlock()
		c.ws.Close()
	})
}

// serveWS upgrades the request and runs the read loop until the
// client disconnects, dispatching each command frame per §6: subscribe
// attaches a channel, unsubscribe detaches it, stop/reboot/query are
// handed to Control, update is acknowledged without calling Control,
// and anything else is an unrecognized-command error frame.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("wsapi: upgrade failed: %v", err)
		return
	}
	conn := newConn(ws)
	defer conn.close()

	for {
		var in Frame
		if err := ws.ReadJSON(&in); err != nil {
			return
		}
		s.dispatch(conn, in)
	}
}

func (s *Server) dispatch(conn *wsConn, in Frame) {
	switch in.Cmd {
	case CmdSubscribe:
		s.mu.RLock()
		binder, ok := s.channels[in.Channel]
		s.mu.RUnlock()
		if !ok {
			conn.sendError(in.Channel, "unknown channel")
			return
		}
		conn.subscribe(in.Channel, binder)
	case "unsubscribe":
		conn.unsubscribe(in.Channel)
	case CmdUpdate, CmdStop, CmdReboot:
		s.dispatchControl(conn, in)
	default:
		if len(in.Cmd) >= 6 && in.Cmd[:6] == "query:" {
			s.dispatchControl(conn, in)
			return
		}
		conn.sendError(in.Channel, "unrecognized command "+in.Cmd)
	}
}

func (s *Server) dispatchControl(conn *wsConn, in Frame) {
	s.mu.RLock()
	ctrl := s.control
	s.mu.RUnlock()
	if ctrl == nil {
		conn.sendError(in.Channel, "control not available")
		return
	}
	var err error
	var rec json.RawMessage
	switch {
	case in.Cmd == CmdStop:
		err = ctrl.Stop(in.Channel)
	case in.Cmd == CmdReboot:
		err = ctrl.Reboot(in.Channel)
	case len(in.Cmd) >= 6 && in.Cmd[:6] == "query:":
		rec, err = ctrl.Query(in.Channel, in.Cmd)
	}
	if err != nil {
		conn.sendError(in.Channel, err.Error())
		return
	}
	conn.sendRecord(in.Cmd, in.Channel, rec)
}
