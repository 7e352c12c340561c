package protocol

import (
	"encoding/json"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"
)

// ChatTypePrivate is the only message_type the client sends.
const ChatTypePrivate = "private"

// AuthPayload builds the payload of an auth envelope.
func AuthPayload(token, userID, nickname string) *structpb.Value {
	return object(map[string]*structpb.Value{
		"token":    structpb.NewStringValue(token),
		"user_id":  structpb.NewStringValue(userID),
		"nickname": structpb.NewStringValue(nickname),
	})
}

// HeartbeatPayload builds the empty payload of a heartbeat envelope.
func HeartbeatPayload() *structpb.Value {
	return object(map[string]*structpb.Value{})
}

// ChatPayload builds the payload of an outbound chat message.
func ChatPayload(text string) *structpb.Value {
	return object(map[string]*structpb.Value{
		"message_type": structpb.NewStringValue(ChatTypePrivate),
		"message":      structpb.NewStringValue(text),
	})
}

// NewPayload converts plain Go values (maps, slices, strings, numbers,
// bools, nil) into a payload.
func NewPayload(v any) (*structpb.Value, error) {
	return structpb.NewValue(v)
}

func object(fields map[string]*structpb.Value) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}

// Field walks nested objects along path and returns the value found, or nil
// when any step is missing or not an object.
func Field(v *structpb.Value, path ...string) *structpb.Value {
	for _, name := range path {
		st := v.GetStructValue()
		if st == nil {
			return nil
		}
		v = st.GetFields()[name]
	}
	return v
}

// Scalar renders a string, number or bool value as text. Any other kind,
// including a missing value, yields "".
func Scalar(v *structpb.Value) string {
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(k.NumberValue, 'f', -1, 64)
	case *structpb.Value_BoolValue:
		return strconv.FormatBool(k.BoolValue)
	default:
		return ""
	}
}

// StringField is Scalar(Field(v, path...)).
func StringField(v *structpb.Value, path ...string) string {
	return Scalar(Field(v, path...))
}

// Format renders a payload as compact JSON for display. A missing payload
// renders as "null".
func Format(v *structpb.Value) string {
	if v == nil {
		return "null"
	}
	data, err := json.Marshal(v.AsInterface())
	if err != nil {
		return "null"
	}
	return string(data)
}
