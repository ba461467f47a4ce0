package sml

// EncodeEnvelope serializes one or more messages and wraps them in a
// transport envelope (§4.3). This is the function gateway-facing code
// calls to produce bytes ready for the wire.
func EncodeEnvelope(msgs ...Message) []byte {
	var body []byte
	for _, m := range msgs {
		body = Encode(body, m)
	}
	return WrapEnvelope(body)
}

// DecodeEnvelope strips transport framing and decodes every message in
// the body, in order.
func DecodeEnvelope(frame []byte) ([]Message, error) {
	body, err := UnwrapEnvelope(frame)
	if err != nil {
		return nil, err
	}
	var msgs []Message
	for len(body) > 0 {
		m, n, err := Decode(body)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
		body = body[n:]
	}
	return msgs, nil
}
