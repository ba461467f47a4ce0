package ipt

import (
	"encoding/binary"
	"errors"
)

// ErrShortPayload is returned when a payload buffer ends before a
// length-prefixed field can be fully read.
var ErrShortPayload = errors.New("ipt: short payload")

func putString(out []byte, s string) []byte {
	out = binary.LittleEndian.AppendUint16(out, uint16(len(s)))
	return append(out, s...)
}

func getString(buf []byte) (string, []byte, error) {
	if len(buf) < 2 {
		return "", nil, ErrShortPayload
	}
	n := int(binary.LittleEndian.Uint16(buf))
	buf = buf[2:]
	if len(buf) < n {
		return "", nil, ErrShortPayload
	}
	return string(buf[:n]), buf[n:], nil
}

func putBytes(out []byte, b []byte) []byte {
	out = binary.LittleEndian.AppendUint32(out, uint32(len(b)))
	return append(out, b...)
}

func getBytes(buf []byte) ([]byte, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, ErrShortPayload
	}
	n := int(binary.LittleEndian.Uint32(buf))
	buf = buf[4:]
	if len(buf) < n {
		return nil, nil, ErrShortPayload
	}
	return append([]byte(nil), buf[:n]...), buf[n:], nil
}

// LoginPublicReq is the payload of req.login.public.
type LoginPublicReq struct {
	Account  string
	Password string
}

func (p LoginPublicReq) Marshal() []byte {
	var out []byte
	out = putString(out, p.Account)
	out = putString(out, p.Password)
	return out
}

func UnmarshalLoginPublicReq(buf []byte) (LoginPublicReq, error) {
	var p LoginPublicReq
	var err error
	if p.Account, buf, err = getString(buf); err != nil {
		return p, err
	}
	if p.Password, _, err = getString(buf); err != nil {
		return p, err
	}
	return p, nil
}

// LoginScrambledReq is the payload of req.login.scrambled; it carries
// the same credentials plus the scramble key the server should adopt
// for this session from here on (§4.2 "A successful scrambled login
// rekeys with a fresh SK carried in the login frame").
type LoginScrambledReq struct {
	Account  string
	Password string
	SK       [32]byte
}

func (p LoginScrambledReq) Marshal() []byte {
	var out []byte
	out = putString(out, p.Account)
	out = putString(out, p.Password)
	out = append(out, p.SK[:]...)
	return out
}

func UnmarshalLoginScrambledReq(buf []byte) (LoginScrambledReq, error) {
	var p LoginScrambledReq
	var err error
	if p.Account, buf, err = getString(buf); err != nil {
		return p, err
	}
	if p.Password, buf, err = getString(buf); err != nil {
		return p, err
	}
	if len(buf) < 32 {
		return p, ErrShortPayload
	}
	copy(p.SK[:], buf[:32])
	return p, nil
}

// LoginRes is the payload shared by res.login.public/scrambled. SK is
// only meaningful (and only sent) for the scrambled variant.
type LoginRes struct {
	Code            LoginResponseCode
	WatchdogMinutes uint16
	Redirect        string
	SK              *[32]byte
}

func (p LoginRes) Marshal() []byte {
	var out []byte
	out = append(out, byte(p.Code))
	out = binary.LittleEndian.AppendUint16(out, p.WatchdogMinutes)
	out = putString(out, p.Redirect)
	if p.SK != nil {
		out = append(out, 1)
		out = append(out, p.SK[:]...)
	} else {
		out = append(out, 0)
	}
	return out
}

func UnmarshalLoginRes(buf []byte) (LoginRes, error) {
	var p LoginRes
	if len(buf) < 1+2 {
		return p, ErrShortPayload
	}
	p.Code = LoginResponseCode(buf[0])
	p.WatchdogMinutes = binary.LittleEndian.Uint16(buf[1:3])
	buf = buf[3:]
	var err error
	if p.Redirect, buf, err = getString(buf); err != nil {
		return p, err
	}
	if len(buf) < 1 {
		return p, ErrShortPayload
	}
	hasSK := buf[0] == 1
	buf = buf[1:]
	if hasSK {
		if len(buf) < 32 {
			return p, ErrShortPayload
		}
		var sk [32]byte
		copy(sk[:], buf[:32])
		p.SK = &sk
	}
	return p, nil
}

// RegisterPushTargetReq registers a named push target.
type RegisterPushTargetReq struct {
	Name  string
	PSize uint16
	WSize uint8
}

func (p RegisterPushTargetReq) Marshal() []byte {
	var out []byte
	out = putString(out, p.Name)
	out = binary.LittleEndian.AppendUint16(out, p.PSize)
	out = append(out, p.WSize)
	return out
}

func UnmarshalRegisterPushTargetReq(buf []byte) (RegisterPushTargetReq, error) {
	var p RegisterPushTargetReq
	var err error
	if p.Name, buf, err = getString(buf); err != nil {
		return p, err
	}
	if len(buf) < 3 {
		return p, ErrShortPayload
	}
	p.PSize = binary.LittleEndian.Uint16(buf[0:2])
	p.WSize = buf[2]
	return p, nil
}

// RegisterPushTargetRes answers with the allocated channel id or a
// failure status.
type RegisterPushTargetRes struct {
	Success bool
	Channel uint32
}

func (p RegisterPushTargetRes) Marshal() []byte {
	var out []byte
	b := byte(0)
	if p.Success {
		b = 1
	}
	out = append(out, b)
	out = binary.LittleEndian.AppendUint32(out, p.Channel)
	return out
}

func UnmarshalRegisterPushTargetRes(buf []byte) (RegisterPushTargetRes, error) {
	var p RegisterPushTargetRes
	if len(buf) < 5 {
		return p, ErrShortPayload
	}
	p.Success = buf[0] != 0
	p.Channel = binary.LittleEndian.Uint32(buf[1:5])
	return p, nil
}

// OpenPushChannelReq opens a channel to a previously registered target.
type OpenPushChannelReq struct {
	TargetName string
	DeviceID   string
}

func (p OpenPushChannelReq) Marshal() []byte {
	var out []byte
	out = putString(out, p.TargetName)
	out = putString(out, p.DeviceID)
	return out
}

func UnmarshalOpenPushChannelReq(buf []byte) (OpenPushChannelReq, error) {
	var p OpenPushChannelReq
	var err error
	if p.TargetName, buf, err = getString(buf); err != nil {
		return p, err
	}
	if p.DeviceID, _, err = getString(buf); err != nil {
		return p, err
	}
	return p, nil
}

// OpenPushChannelRes returns the allocated channel/source ids and
// negotiated transfer parameters (§4.2 "Push channels").
type OpenPushChannelRes struct {
	Success  bool
	Channel  uint32
	Source   uint32
	PSize    uint16
	WSize    uint8
}

func (p OpenPushChannelRes) Marshal() []byte {
	var out []byte
	b := byte(0)
	if p.Success {
		b = 1
	}
	out = append(out, b)
	out = binary.LittleEndian.AppendUint32(out, p.Channel)
	out = binary.LittleEndian.AppendUint32(out, p.Source)
	out = binary.LittleEndian.AppendUint16(out, p.PSize)
	out = append(out, p.WSize)
	return out
}

func UnmarshalOpenPushChannelRes(buf []byte) (OpenPushChannelRes, error) {
	var p OpenPushChannelRes
	if len(buf) < 1+4+4+2+1 {
		return p, ErrShortPayload
	}
	p.Success = buf[0] != 0
	p.Channel = binary.LittleEndian.Uint32(buf[1:5])
	p.Source = binary.LittleEndian.Uint32(buf[5:9])
	p.PSize = binary.LittleEndian.Uint16(buf[9:11])
	p.WSize = buf[11]
	return p, nil
}

// ClosePushChannelReq closes a previously opened channel.
type ClosePushChannelReq struct {
	Channel uint32
}

func (p ClosePushChannelReq) Marshal() []byte {
	return binary.LittleEndian.AppendUint32(nil, p.Channel)
}

func UnmarshalClosePushChannelReq(buf []byte) (ClosePushChannelReq, error) {
	if len(buf) < 4 {
		return ClosePushChannelReq{}, ErrShortPayload
	}
	return ClosePushChannelReq{Channel: binary.LittleEndian.Uint32(buf)}, nil
}

// TransferPushdata carries one SML-framed chunk on an open push channel.
type TransferPushdata struct {
	Channel uint32
	Source  uint32
	Status  uint8
	Block   uint32
	Data    []byte
}

func (p TransferPushdata) Marshal() []byte {
	var out []byte
	out = binary.LittleEndian.AppendUint32(out, p.Channel)
	out = binary.LittleEndian.AppendUint32(out, p.Source)
	out = append(out, p.Status)
	out = binary.LittleEndian.AppendUint32(out, p.Block)
	out = putBytes(out, p.Data)
	return out
}

func UnmarshalTransferPushdata(buf []byte) (TransferPushdata, error) {
	var p TransferPushdata
	if len(buf) < 4+4+1+4 {
		return p, ErrShortPayload
	}
	p.Channel = binary.LittleEndian.Uint32(buf[0:4])
	p.Source = binary.LittleEndian.Uint32(buf[4:8])
	p.Status = buf[8]
	p.Block = binary.LittleEndian.Uint32(buf[9:13])
	data, _, err := getBytes(buf[13:])
	if err != nil {
		return p, err
	}
	p.Data = data
	return p, nil
}

// TransferPushdataAck acknowledges a TransferPushdata frame.
type TransferPushdataAck struct {
	Channel uint32
	Source  uint32
	Status  PushAckStatus
}

func (p TransferPushdataAck) Marshal() []byte {
	var out []byte
	out = binary.LittleEndian.AppendUint32(out, p.Channel)
	out = binary.LittleEndian.AppendUint32(out, p.Source)
	out = append(out, byte(p.Status))
	return out
}

func UnmarshalTransferPushdataAck(buf []byte) (TransferPushdataAck, error) {
	var p TransferPushdataAck
	if len(buf) < 9 {
		return p, ErrShortPayload
	}
	p.Channel = binary.LittleEndian.Uint32(buf[0:4])
	p.Source = binary.LittleEndian.Uint32(buf[4:8])
	p.Status = PushAckStatus(buf[8])
	return p, nil
}

// OpenConnectionReq asks the server to route to a named callee
// ("transparent connection", §4.2).
type OpenConnectionReq struct {
	Number string
}

func (p OpenConnectionReq) Marshal() []byte {
	return putString(nil, p.Number)
}

func UnmarshalOpenConnectionReq(buf []byte) (OpenConnectionReq, error) {
	s, _, err := getString(buf)
	return OpenConnectionReq{Number: s}, err
}

// OpenConnectionRes reports whether the route succeeded.
type OpenConnectionRes struct {
	Success bool
}

func (p OpenConnectionRes) Marshal() []byte {
	b := byte(0)
	if p.Success {
		b = 1
	}
	return []byte{b}
}

func UnmarshalOpenConnectionRes(buf []byte) (OpenConnectionRes, error) {
	if len(buf) < 1 {
		return OpenConnectionRes{}, ErrShortPayload
	}
	return OpenConnectionRes{Success: buf[0] != 0}, nil
}

// TransmitData carries raw transparent-connection payload bytes
// unchanged in both directions.
type TransmitData struct {
	Data []byte
}

func (p TransmitData) Marshal() []byte {
	return append([]byte(nil), p.Data...)
}

func UnmarshalTransmitData(buf []byte) (TransmitData, error) {
	return TransmitData{Data: append([]byte(nil), buf...)}, nil
}

// WatchdogReq/Res carry a round-trip clock sample; seq 0 is reserved
// for this asynchronous exchange (§4.2 "Sequence numbers").
type WatchdogReq struct {
	ClientUnixNano int64
}

func (p WatchdogReq) Marshal() []byte {
	return binary.LittleEndian.AppendUint64(nil, uint64(p.ClientUnixNano))
}

func UnmarshalWatchdogReq(buf []byte) (WatchdogReq, error) {
	if len(buf) < 8 {
		return WatchdogReq{}, ErrShortPayload
	}
	return WatchdogReq{ClientUnixNano: int64(binary.LittleEndian.Uint64(buf))}, nil
}

type WatchdogRes struct {
	ClientUnixNano int64
}

func (p WatchdogRes) Marshal() []byte {
	return binary.LittleEndian.AppendUint64(nil, uint64(p.ClientUnixNano))
}

func UnmarshalWatchdogRes(buf []byte) (WatchdogRes, error) {
	if len(buf) < 8 {
		return WatchdogRes{}, ErrShortPayload
	}
	return WatchdogRes{ClientUnixNano: int64(binary.LittleEndian.Uint64(buf))}, nil
}
