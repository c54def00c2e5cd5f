package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// WebSocket subprotocols a client may offer to pick a codec. Offering none
// selects JSON.
const (
	SubprotocolJSON    = "roomrelay.json"
	SubprotocolMsgpack = "roomrelay.msgpack"
)

// Codec converts Messages to and from WebSocket frames.
type Codec interface {
	Name() string

	// FrameType is the websocket message type frames are sent as.
	FrameType() int

	Encode(msg *Message) ([]byte, error)
	Decode(data []byte) (*Message, error)
}

// Subprotocols lists the subprotocols the server accepts, in preference
// order.
func Subprotocols() []string {
	return []string{SubprotocolMsgpack, SubprotocolJSON}
}

// CodecFor returns the codec for a negotiated subprotocol.
func CodecFor(subprotocol string) Codec {
	if subprotocol == SubprotocolMsgpack {
		return MsgpackCodec{}
	}
	return JSONCodec{}
}

// CodecByName resolves "json" or "msgpack".
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "msgpack":
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// SubprotocolOf is the subprotocol a client offers for c.
func SubprotocolOf(c Codec) string {
	if _, ok := c.(MsgpackCodec); ok {
		return SubprotocolMsgpack
	}
	return SubprotocolJSON
}

type JSONCodec struct{}

func (JSONCodec) Name() string   { return "json" }
func (JSONCodec) FrameType() int { return websocket.TextMessage }

func (JSONCodec) Encode(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

// Decode reads the payload as raw JSON so an explicit null is kept and
// forwarded like any other value. Only an absent payload stays nil.
func (JSONCodec) Decode(data []byte) (*Message, error) {
	var frame struct {
		Message
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, err
	}

	msg := frame.Message
	if frame.Payload != nil {
		msg.Payload = NewJSONPayload(frame.Payload)
	}
	return &msg, nil
}

type MsgpackCodec struct{}

func (MsgpackCodec) Name() string   { return "msgpack" }
func (MsgpackCodec) FrameType() int { return websocket.BinaryMessage }

func (MsgpackCodec) Encode(msg *Message) ([]byte, error) {
	return msgpack.Marshal(msg)
}

func (MsgpackCodec) Decode(data []byte) (*Message, error) {
	var msg Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
