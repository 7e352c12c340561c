// Package protocol implements the relay wire envelope.
//
// Every exchange in both directions is a JSON object of the form
//
//	{"type": string, "echo": string, "payload": any}
//
// The loosely typed payload is carried as a *structpb.Value so that callers
// can walk it by kind instead of probing map[string]any.
package protocol

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// MessageType identifies the kind of an envelope.
type MessageType string

// Outbound types.
const (
	TypeAuth      MessageType = "auth"
	TypeHeartbeat MessageType = "heartbeat"
	TypeMessage   MessageType = "message"
)

// Inbound types. TypeMessage is shared by both directions.
const (
	TypeConnected         MessageType = "connected"
	TypeAuthResponse      MessageType = "auth_response"
	TypeMessageReceipt    MessageType = "message_receipt"
	TypeAPIResponse       MessageType = "api_response"
	TypeHeartbeatResponse MessageType = "heartbeat_response"
	TypeError             MessageType = "error"
	TypeNotice            MessageType = "notice"
)

// String returns the wire name of the type.
func (mt MessageType) String() string {
	return string(mt)
}

// ErrDecode is returned when inbound text does not match the envelope schema.
var ErrDecode = errors.New("malformed envelope")

const (
	fieldType    = "type"
	fieldEcho    = "echo"
	fieldPayload = "payload"
	fieldMessage = "message"
)

// Envelope is a single wire message.
type Envelope struct {
	Type    MessageType
	Echo    string
	Payload *structpb.Value

	// Message is an optional top-level text some servers attach to error
	// envelopes instead of putting it in the payload.
	Message string
}

// NewEnvelope builds an outbound envelope with a fresh echo token.
func NewEnvelope(t MessageType, payload *structpb.Value) Envelope {
	return Envelope{
		Type:    t,
		Echo:    NewEcho(),
		Payload: payload,
	}
}

// Encode serializes the envelope into its wire text form.
func (e *Envelope) Encode() ([]byte, error) {
	data, err := protojson.Marshal(e.toProto())
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses wire text into the envelope. Any schema violation is
// reported as ErrDecode.
func (e *Envelope) Decode(data []byte) error {
	st := &structpb.Struct{}
	if err := protojson.Unmarshal(data, st); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return e.fromProto(st)
}

// toProto converts the envelope into the structpb form that protojson
// renders as the wire object.
func (e *Envelope) toProto() *structpb.Struct {
	payload := e.Payload
	if payload == nil {
		payload = structpb.NewNullValue()
	}
	fields := map[string]*structpb.Value{
		fieldType:    structpb.NewStringValue(string(e.Type)),
		fieldEcho:    structpb.NewStringValue(e.Echo),
		fieldPayload: payload,
	}
	if e.Message != "" {
		fields[fieldMessage] = structpb.NewStringValue(e.Message)
	}
	return &structpb.Struct{Fields: fields}
}

// fromProto populates the envelope from a decoded wire object. The type
// field is mandatory and must be a string; echo and message are optional
// and ignored when they are not strings.
func (e *Envelope) fromProto(st *structpb.Struct) error {
	tv, ok := st.GetFields()[fieldType]
	if !ok {
		return fmt.Errorf("%w: missing %q field", ErrDecode, fieldType)
	}
	t, ok := tv.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return fmt.Errorf("%w: %q field is not a string", ErrDecode, fieldType)
	}

	e.Type = MessageType(t.StringValue)
	e.Echo = st.GetFields()[fieldEcho].GetStringValue()
	e.Payload = st.GetFields()[fieldPayload]
	e.Message = st.GetFields()[fieldMessage].GetStringValue()
	return nil
}
