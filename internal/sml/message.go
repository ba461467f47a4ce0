package sml

import (
	"crypto/rand"
	"fmt"
	"sync/atomic"
)

// Choice codes identify the recognized message bodies (§4.3).
type Choice uint16

const (
	ChoiceOpenReq            Choice = 0x0100
	ChoiceOpenRes            Choice = 0x0101
	ChoiceCloseReq           Choice = 0x0200
	ChoiceCloseRes           Choice = 0x0201
	ChoiceGetProfileListReq  Choice = 0x0300
	ChoiceGetProfileListRes  Choice = 0x0301
	ChoiceGetProcParamReq    Choice = 0x0500
	ChoiceGetProcParamRes    Choice = 0x0501
	ChoiceSetProcParamReq    Choice = 0x0600
	ChoiceGetListReq         Choice = 0x0700
	ChoiceGetListRes         Choice = 0x0701
	ChoiceAttentionRes       Choice = 0xFF01
)

// Body is implemented by every recognized SML message body.
type Body interface {
	Choice() Choice
	ToValue() Value
}

// Message is one SML envelope message: a transaction id, group
// number, abort-on-error flag, a typed body and its CRC-16 trailer.
type Message struct {
	TrxID        string
	GroupNo      uint8
	AbortOnError uint8
	Body         Body
}

var trxCounter uint64

// NewTrxID generates a transaction id: 7 random ASCII digits plus an
// ascending counter, matching the teacher-independent generator
// described in §4.3 ("7 random ASCII digits plus an ascending counter").
func NewTrxID() string {
	var buf [7]byte
	_, _ = rand.Read(buf[:])
	for i := range buf {
		buf[i] = '0' + buf[i]%10
	}
	n := atomic.AddUint64(&trxCounter, 1)
	return fmt.Sprintf("%s-%d", string(buf[:]), n)
}

// Encode serializes the message as a TLV list, appending its own
// CRC-16 (computed over the preceding bytes of this message only) as
// the trailing element, then appends to out.
func Encode(out []byte, msg Message) []byte {
	bodyList := List(Uint(16, uint64(msg.Body.Choice())), msg.Body.ToValue())
	msgList := List(
		Octet([]byte(msg.TrxID)),
		Uint(8, uint64(msg.GroupNo)),
		Uint(8, uint64(msg.AbortOnError)),
		bodyList,
	)
	start := len(out)
	out = EncodeValue(out, msgList)
	crc := CRC16(out[start:])
	out = EncodeValue(out, Uint(16, uint64(crc)))
	return out
}

// Decode reads one Message (its own 5-tuple, see Encode) from buf,
// returning bytes consumed, verifying the message-level CRC-16.
func Decode(buf []byte) (Message, int, error) {
	start := 0
	listVal, n, err := DecodeValue(buf)
	if err != nil {
		return Message{}, 0, err
	}
	bodyConsumed := n
	crcVal, n2, err := DecodeValue(buf[bodyConsumed:])
	if err != nil {
		return Message{}, 0, err
	}
	total := bodyConsumed + n2
	computed := CRC16(buf[start:bodyConsumed])
	if crcVal.Uint != uint64(computed) {
		return Message{}, 0, ErrCRCMismatch
	}
	if listVal.Kind != KindList || len(listVal.List) != 4 {
		return Message{}, 0, ErrMalformedMessage
	}
	trx := listVal.List[0]
	grp := listVal.List[1]
	abort := listVal.List[2]
	bodyList := listVal.List[3]
	if bodyList.Kind != KindList || len(bodyList.List) != 2 {
		return Message{}, 0, ErrMalformedMessage
	}
	choice := Choice(bodyList.List[0].Uint)
	body, err := decodeBody(choice, bodyList.List[1])
	if err != nil {
		return Message{}, 0, err
	}
	msg := Message{
		TrxID:        string(trx.Octets),
		GroupNo:      uint8(grp.Uint),
		AbortOnError: uint8(abort.Uint),
		Body:         body,
	}
	return msg, total, nil
}
