package ipt

import (
	"context"
	"fmt"
	"net"
	"time"
)

// PushClient is a minimal synchronous IP-T client used to drive an
// outbound push-channel dialogue to a concentrator (§4.2 "Push
// channels"). It is deliberately narrow: open/transfer/close, the
// three operations internal/gateway's push scheduler needs, rather
// than a general-purpose IP-T stack.
type PushClient struct {
	nc      net.Conn
	corr    *Correlator
	readErr chan error
}

// DialPushClient opens a plain (unscrambled) TCP connection to addr
// and starts its background read loop. PushClient has no scrambled
// mode: every frame it sends and reads is plaintext.
func DialPushClient(ctx context.Context, addr string) (*PushClient, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ipt: dial %s: %w", addr, err)
	}
	c := &PushClient{nc: nc, corr: NewCorrelator(), readErr: make(chan error, 1)}
	go c.readLoop()
	return c, nil
}

func (c *PushClient) readLoop() {
	var buf []byte
	tmp := make([]byte, 4096)
	for {
		n, err := c.nc.Read(tmp)
		if err != nil {
			c.readErr <- err
			c.corr.Close()
			return
		}
		buf = append(buf, tmp[:n]...)
		for {
			f, consumed, err := Decode(buf)
			if err == ErrFrameTooShort {
				break
			}
			if err != nil {
				buf = nil
				break
			}
			buf = buf[consumed:]
			c.corr.Resolve(f)
		}
	}
}

func (c *PushClient) roundTrip(ctx context.Context, cmd Cmd, payload []byte) (Frame, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultRoundTripTimeout)
		defer cancel()
	}
	seq, ch, err := c.corr.Allocate()
	if err != nil {
		return Frame{}, err
	}
	defer c.corr.Release(seq)

	out := Encode(nil, Frame{Seq: seq, Cmd: cmd, Payload: payload})
	if _, err := c.nc.Write(out); err != nil {
		return Frame{}, err
	}
	return c.corr.Wait(ctx, seq, ch)
}

// OpenChannel implements gateway.Transport: it sends
// req.open.push.channel naming target/deviceID and returns the
// (channel, source) pair from the response.
func (c *PushClient) OpenChannel(ctx context.Context, target, deviceID string) (channel, source uint32, err error) {
	req := OpenPushChannelReq{TargetName: target, DeviceID: deviceID}
	f, err := c.roundTrip(ctx, CmdReqOpenPushChannel, req.Marshal())
	if err != nil {
		return 0, 0, err
	}
	res, err := UnmarshalOpenPushChannelRes(f.Payload)
	if err != nil {
		return 0, 0, err
	}
	if !res.Success {
		return 0, 0, fmt.Errorf("ipt: open push channel to %s refused", target)
	}
	return res.Channel, res.Source, nil
}

// TransferPushdata implements gateway.Transport: it sends
// req.transfer.pushdata for channel/source and waits for the
// acknowledgement (§4.2 "the responder acknowledges with the same
// (channel, source) plus an ACK status").
func (c *PushClient) TransferPushdata(ctx context.Context, channel, source uint32, data []byte) error {
	req := TransferPushdata{Channel: channel, Source: source, Block: 0, Data: data}
	f, err := c.roundTrip(ctx, CmdReqTransferPushdata, req.Marshal())
	if err != nil {
		return err
	}
	ack, err := UnmarshalTransferPushdataAck(f.Payload)
	if err != nil {
		return err
	}
	if ack.Status != PushAckOK {
		return fmt.Errorf("ipt: transfer pushdata nacked: status %d", ack.Status)
	}
	return nil
}

// CloseChannel implements gateway.Transport: it sends
// req.close.push.channel and waits for the response frame, whose
// payload it ignores.
func (c *PushClient) CloseChannel(ctx context.Context, channel uint32) error {
	req := ClosePushChannelReq{Channel: channel}
	_, err := c.roundTrip(ctx, CmdReqClosePushChannel, req.Marshal())
	return err
}

// Close releases the underlying connection.
func (c *PushClient) Close() error {
	c.corr.Close()
	return c.nc.Close()
}

// defaultRoundTripTimeout bounds a push round trip absent a caller
// deadline.
const defaultRoundTripTimeout = 10 * time.Second
