package websocket

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// Frame is the envelope for every message in either direction.
type Frame struct {
	Event string `json:"event" msgpack:"event"`
	Data  any    `json:"data,omitempty" msgpack:"data,omitempty"`
}

// inboundFrame keeps data undecoded so each codec can produce a plain map.
type inboundFrame struct {
	Event string         `json:"event" msgpack:"event"`
	Data  map[string]any `json:"data" msgpack:"data"`
}

// Codec converts frames to and from websocket messages.
type Codec interface {
	Name() string
	MessageType() int
	Encode(f Frame) ([]byte, error)
	Decode(msg []byte) (string, map[string]any, error)
}

// JSONCodec sends text frames.
type JSONCodec struct{}

func (JSONCodec) Name() string     { return "json" }
func (JSONCodec) MessageType() int { return websocket.TextMessage }

func (JSONCodec) Encode(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

func (JSONCodec) Decode(msg []byte) (string, map[string]any, error) {
	var in inboundFrame
	if err := json.Unmarshal(msg, &in); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return in.Event, in.Data, nil
}

// MsgpackCodec sends binary frames.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string     { return "msgpack" }
func (MsgpackCodec) MessageType() int { return websocket.BinaryMessage }

func (MsgpackCodec) Encode(f Frame) ([]byte, error) {
	return msgpack.Marshal(&f)
}

func (MsgpackCodec) Decode(msg []byte) (string, map[string]any, error) {
	var in inboundFrame
	if err := msgpack.Unmarshal(msg, &in); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return in.Event, in.Data, nil
}

// CodecFor picks a codec from the ?encoding= query value. Unknown values
// fall back to JSON.
func CodecFor(encoding string) Codec {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "msgpack", "messagepack":
		return MsgpackCodec{}
	}
	return JSONCodec{}
}
