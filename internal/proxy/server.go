package proxy

import (
	"fmt"
	"log"
	"net"
	"time"

	"github.com/solostec/smf/internal/auth"
	"github.com/solostec/smf/internal/ipt"
)

// Server accepts inbound IP-T device connections and drives one
// Session per connection through login, open-connection and
// transmit.data (§4.2), the role the teacher's Session.readLoop plays
// for an inbound chat socket (server/session.go) narrowed to the
// frame set a field device or concentrator client actually sends a
// gateway. Push-channel frames (register/open/transfer/close) are the
// outbound direction internal/ipt.PushClient already drives and are
// not accepted here.
type Server struct {
	// Checker validates the account/password carried by
	// req.login.public/scrambled.
	Checker auth.Checker
	// Watchdog is advertised to the client in the login response;
	// a zero value advertises no watchdog requirement.
	Watchdog time.Duration
	Logger   *log.Logger
	// Sink receives every transmit.data payload once a session's
	// open.connection has succeeded. A nil Sink means open.connection
	// always fails, since there is nowhere to route the data.
	Sink DataSink
}

func (s *Server) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}

// Serve reads frames from nc and drives one Session until the
// connection closes or framing fails irrecoverably. It blocks and is
// meant to be run in its own goroutine per accepted connection.
func (s *Server) Serve(nc net.Conn) {
	defer nc.Close()
	sess := New(nc.RemoteAddr().String(), s.logger())

	var buf []byte
	tmp := make([]byte, 4096)
	for {
		n, err := nc.Read(tmp)
		if err != nil {
			_ = sess.Fire(Event{Kind: EventClose})
			return
		}
		buf = append(buf, tmp[:n]...)
		for {
			f, consumed, err := ipt.Decode(buf)
			if err == ipt.ErrFrameTooShort {
				break
			}
			if err != nil {
				s.logger().Printf("proxy: %s: frame decode: %v", sess.Tag, err)
				_ = sess.Fire(Event{Kind: EventClose})
				return
			}
			buf = buf[consumed:]
			if err := s.dispatch(nc, sess, f); err != nil {
				s.logger().Printf("proxy: %s: %v", sess.Tag, err)
			}
		}
	}
}

func (s *Server) dispatch(nc net.Conn, sess *Session, f ipt.Frame) error {
	switch f.Cmd {
	case ipt.CmdReqLoginPublic:
		req, err := ipt.UnmarshalLoginPublicReq(f.Payload)
		if err != nil {
			return err
		}
		return s.handleLogin(nc, sess, f.Seq, req.Account, req.Password, nil)
	case ipt.CmdReqLoginScrambled:
		req, err := ipt.UnmarshalLoginScrambledReq(f.Payload)
		if err != nil {
			return err
		}
		sk := req.SK
		return s.handleLogin(nc, sess, f.Seq, req.Account, req.Password, &sk)
	case ipt.CmdReqOpenConnection:
		req, err := ipt.UnmarshalOpenConnectionReq(f.Payload)
		if err != nil {
			return err
		}
		return s.handleOpenConnection(nc, sess, f.Seq, req.Number)
	case ipt.CmdTransmitData:
		data, err := ipt.UnmarshalTransmitData(f.Payload)
		if err != nil {
			return err
		}
		return sess.SendData(data.Data)
	case ipt.CmdReqCloseConnection:
		if err := sess.Fire(Event{Kind: EventCloseConn}); err != nil {
			return err
		}
		return sess.Fire(Event{Kind: EventClose})
	case ipt.CmdReqWatchdog:
		req, err := ipt.UnmarshalWatchdogReq(f.Payload)
		if err != nil {
			return err
		}
		res := ipt.WatchdogRes{ClientUnixNano: req.ClientUnixNano}
		_, err = nc.Write(ipt.Encode(nil, ipt.Frame{Seq: f.Seq, Cmd: ipt.CmdResWatchdog, Payload: res.Marshal()}))
		return err
	default:
		return fmt.Errorf("unhandled frame %s", f.Cmd)
	}
}

func (s *Server) handleLogin(nc net.Conn, sess *Session, seq uint8, account, password string, sk *[32]byte) error {
	code := ipt.LoginSuccess
	if s.Checker == nil {
		code = ipt.LoginMalfunction
	} else if err := s.Checker.Check(account, password); err != nil {
		code = ipt.LoginUnknownAccount
	}

	res := ipt.LoginRes{Code: code, WatchdogMinutes: uint16(s.Watchdog / time.Minute)}
	cmd := ipt.CmdResLoginPublic
	if sk != nil {
		cmd = ipt.CmdResLoginScrambled
		if code == ipt.LoginSuccess {
			res.SK = sk
		}
	}
	if _, err := nc.Write(ipt.Encode(nil, ipt.Frame{Seq: seq, Cmd: cmd, Payload: res.Marshal()})); err != nil {
		return err
	}
	if code != ipt.LoginSuccess {
		return fmt.Errorf("login refused for account %q", account)
	}

	sess.DeviceTag = account
	return sess.Fire(Event{Kind: EventLoginOK})
}

// handleOpenConnection answers req.open.connection and, on success,
// binds s.Sink as the session's peer so subsequent transmit.data
// frames are routed to it (§4.2 "transparent connection"). Routing to
// a remote node or an internal task is the cluster bus's concern, not
// a single gateway's inbound listener, so every successful open here
// resolves to a local peer.
func (s *Server) handleOpenConnection(nc net.Conn, sess *Session, seq uint8, number string) error {
	if err := sess.Fire(Event{Kind: EventOpenConn, Number: number}); err != nil {
		return err
	}

	success := s.Sink != nil
	res := ipt.OpenConnectionRes{Success: success}
	if _, err := nc.Write(ipt.Encode(nil, ipt.Frame{Seq: seq, Cmd: ipt.CmdResOpenConnection, Payload: res.Marshal()})); err != nil {
		return err
	}
	if !success {
		_ = sess.Fire(Event{Kind: EventTimeout})
		return fmt.Errorf("open.connection to %q refused: no sink bound", number)
	}

	if err := sess.Fire(Event{Kind: EventOpenSuccessLocal, Number: number}); err != nil {
		return err
	}
	sess.Sink = s.Sink
	return nil
}
