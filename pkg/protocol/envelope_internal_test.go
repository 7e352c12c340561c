package protocol

import (
	"testing"

	"google.golang.org/protobuf/types/known/structpb"
)

func TestEnvelope_toProto(t *testing.T) {
	env := Envelope{Type: TypeHeartbeat, Echo: "e-1"}
	st := env.toProto()

	if got := st.Fields[fieldType].GetStringValue(); got != "heartbeat" {
		t.Errorf("toProto() type = %q, want %q", got, "heartbeat")
	}
	if got := st.Fields[fieldEcho].GetStringValue(); got != "e-1" {
		t.Errorf("toProto() echo = %q, want %q", got, "e-1")
	}
	if _, ok := st.Fields[fieldPayload].GetKind().(*structpb.Value_NullValue); !ok {
		t.Errorf("toProto() payload = %v, want null for a nil payload", st.Fields[fieldPayload])
	}
	if _, ok := st.Fields[fieldMessage]; ok {
		t.Error("toProto() should omit an empty top-level message")
	}
}

func TestEnvelope_fromProto(t *testing.T) {
	tests := []struct {
		name    string
		fields  map[string]*structpb.Value
		want    Envelope
		wantErr bool
	}{
		{
			name: "all fields",
			fields: map[string]*structpb.Value{
				fieldType:    structpb.NewStringValue("notice"),
				fieldEcho:    structpb.NewStringValue("e-2"),
				fieldPayload: structpb.NewStringValue("x"),
			},
			want: Envelope{Type: TypeNotice, Echo: "e-2"},
		},
		{
			name: "non string echo is ignored",
			fields: map[string]*structpb.Value{
				fieldType: structpb.NewStringValue("message"),
				fieldEcho: structpb.NewNumberValue(5),
			},
			want: Envelope{Type: TypeMessage},
		},
		{
			name:    "missing type",
			fields:  map[string]*structpb.Value{},
			wantErr: true,
		},
		{
			name: "null type",
			fields: map[string]*structpb.Value{
				fieldType: structpb.NewNullValue(),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Envelope
			err := got.fromProto(&structpb.Struct{Fields: tt.fields})
			if (err != nil) != tt.wantErr {
				t.Fatalf("fromProto() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Type != tt.want.Type {
				t.Errorf("fromProto() Type = %v, want %v", got.Type, tt.want.Type)
			}
			if got.Echo != tt.want.Echo {
				t.Errorf("fromProto() Echo = %v, want %v", got.Echo, tt.want.Echo)
			}
		})
	}
}
