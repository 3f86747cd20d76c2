package protocol

import (
	"bytes"
	"encoding/gob"
	"io"
)

func init() {
	gob.Register(&Error{})
	gob.Register(&Join{})
	gob.Register(&Welcome{})
	gob.Register(&PeerJoined{})
	gob.Register(&PeerLeft{})
	gob.Register(&Signal{})
	gob.Register(&Ping{})
	gob.Register(&Pong{})
}

type Codec struct{}

func NewCodec() *Codec {
	return &Codec{}
}

func (c *Codec) Encode(w io.Writer, msg Message) error {
	return gob.NewEncoder(w).Encode(&msg)
}

// Decode reads one message. When r is read repeatedly it should implement
// io.ByteReader (a *bufio.Reader will do) so no bytes past the message are
// consumed.
func (c *Codec) Decode(r io.Reader) (Message, error) {
	var msg Message
	if err := gob.NewDecoder(r).Decode(&msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (c *Codec) EncodeToBytes(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Encode(&buf, msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Codec) DecodeFromBytes(data []byte) (Message, error) {
	return c.Decode(bytes.NewReader(data))
}
