// Package protocol provides helpers for encoding/decoding the demo relay messages.
// The network layer itself treats payloads as opaque bytes; these messages
// are only understood by cmd/server and cmd/client.
package protocol

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Message types.
const (
	TypeWelcome = "welcome"
	TypeChat    = "chat"
)

// ErrUnknownType is returned when a message carries no recognised type.
var ErrUnknownType = errors.New("unknown message type")

// Welcome is sent reliably to each client right after it connects.
type Welcome struct {
	ClientID uint32
	TickRate uint32
	Instance string
}

// Chat is a line of text, stamped with the sender's id by the server.
type Chat struct {
	From uint32
	Text string
}

// Encode serializes a Struct to bytes.
func Encode(msg *structpb.Struct) ([]byte, error) {
	return proto.Marshal(msg)
}

// Decode deserializes bytes to a Struct.
func Decode(data []byte) (*structpb.Struct, error) {
	msg := &structpb.Struct{}
	if err := proto.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return msg, nil
}

// MessageType returns the type field of msg, or "" if absent.
func MessageType(msg *structpb.Struct) string {
	return msg.GetFields()["type"].GetStringValue()
}

// NewWelcome creates a welcome message.
func NewWelcome(w Welcome) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"type":      structpb.NewStringValue(TypeWelcome),
		"client_id": structpb.NewNumberValue(float64(w.ClientID)),
		"tick_rate": structpb.NewNumberValue(float64(w.TickRate)),
		"instance":  structpb.NewStringValue(w.Instance),
	}}
}

// NewChat creates a chat message.
func NewChat(c Chat) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"type": structpb.NewStringValue(TypeChat),
		"from": structpb.NewNumberValue(float64(c.From)),
		"text": structpb.NewStringValue(c.Text),
	}}
}

// AsWelcome extracts a Welcome from msg.
func AsWelcome(msg *structpb.Struct) (Welcome, error) {
	if t := MessageType(msg); t != TypeWelcome {
		return Welcome{}, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	f := msg.GetFields()
	return Welcome{
		ClientID: uint32(f["client_id"].GetNumberValue()),
		TickRate: uint32(f["tick_rate"].GetNumberValue()),
		Instance: f["instance"].GetStringValue(),
	}, nil
}

// AsChat extracts a Chat from msg.
func AsChat(msg *structpb.Struct) (Chat, error) {
	if t := MessageType(msg); t != TypeChat {
		return Chat{}, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	f := msg.GetFields()
	return Chat{
		From: uint32(f["from"].GetNumberValue()),
		Text: f["text"].GetStringValue(),
	}, nil
}
