package bus

import (
	"encoding/gob"
	"fmt"
	"net"
	"sync"
)

// Conn is one gob-framed duplex connection carrying Records. Sends are
// serialized; encoding/gob's Decoder is not safe for concurrent Decode
// calls either, so Recv is meant to be driven by a single reader
// goroutine per Conn, matching the teacher's one-reader-per-session
// convention (server/session.go's read loop).
type Conn struct {
	nc  net.Conn
	enc *gob.Encoder
	dec *gob.Decoder

	sendMu sync.Mutex
}

// NewConn wraps an established connection for Record exchange.
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc, enc: gob.NewEncoder(nc), dec: gob.NewDecoder(nc)}
}

// Send encodes and writes one Record.
func (c *Conn) Send(r Record) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.enc.Encode(&r); err != nil {
		return fmt.Errorf("bus: send: %w", err)
	}
	return nil
}

// Recv blocks for the next Record.
func (c *Conn) Recv() (Record, error) {
	var r Record
	if err := c.dec.Decode(&r); err != nil {
		return Record{}, err
	}
	return r, nil
}

// RemoteAddr reports the peer address for logging.
func (c *Conn) RemoteAddr() string {
	if c.nc == nil {
		return ""
	}
	return c.nc.RemoteAddr().String()
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.nc.Close() }
