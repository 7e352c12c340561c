package segment

import (
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/omochice/relaychat/pkg/protocol"
)

// Segment type tags as they appear on the wire.
const (
	tagText    = "text"
	tagImage   = "image"
	tagNode    = "node"
	tagForward = "forward"
)

// maxDepth bounds forward-bundle nesting. Anything deeper collapses into
// ComplexContent.
const maxDepth = 16

// UnknownSender labels a forward node that names no sender.
const UnknownSender = "Unknown"

// Normalize converts a raw message payload into an ordered sequence of
// segments. It never fails: unrecognized shapes become Unsupported or
// ComplexContent, and a bad segment degrades to a marker without affecting
// its neighbours.
//
// A string becomes a single Text. A list is mapped element by element. A
// lone object, number or bool is wrapped as text; null yields an empty
// sequence.
func Normalize(raw *structpb.Value) []Segment {
	return normalize(raw, 0)
}

func normalize(raw *structpb.Value, depth int) []Segment {
	switch k := raw.GetKind().(type) {
	case *structpb.Value_StringValue:
		return []Segment{Text{Content: k.StringValue}}
	case *structpb.Value_ListValue:
		values := k.ListValue.GetValues()
		out := make([]Segment, 0, len(values))
		for _, v := range values {
			out = append(out, normalizeOne(v, depth))
		}
		return out
	case *structpb.Value_StructValue:
		return []Segment{Text{Content: protocol.Format(raw)}}
	case *structpb.Value_NumberValue, *structpb.Value_BoolValue:
		return []Segment{Text{Content: protocol.Scalar(raw)}}
	default:
		return []Segment{}
	}
}

func normalizeOne(v *structpb.Value, depth int) Segment {
	if s, ok := v.GetKind().(*structpb.Value_StringValue); ok {
		return Text{Content: s.StringValue}
	}
	if v.GetStructValue() == nil {
		return Unsupported{OriginalType: kindName(v)}
	}

	tag := protocol.StringField(v, "type")
	switch tag {
	case tagText:
		return Text{Content: field(v, "text")}
	case tagImage:
		return normalizeImage(v)
	case tagNode, tagForward:
		if depth >= maxDepth {
			return ComplexContent{}
		}
		return normalizeForward(v, depth+1)
	default:
		return Unsupported{OriginalType: tag}
	}
}

// field reads a segment attribute either directly on the segment or under
// its "data" object.
func field(seg *structpb.Value, name string) string {
	if s := protocol.StringField(seg, name); s != "" {
		return s
	}
	return protocol.StringField(seg, "data", name)
}

func normalizeForward(seg *structpb.Value, depth int) ForwardBundle {
	bundle := ForwardBundle{Title: protocol.StringField(seg, "title")}

	list := protocol.Field(seg, "data").GetListValue()
	if list == nil {
		bundle.Unreadable = true
		return bundle
	}

	bundle.Nodes = make([]ForwardNode, 0, len(list.GetValues()))
	for _, node := range list.GetValues() {
		bundle.Nodes = append(bundle.Nodes, normalizeNode(node, depth))
	}
	return bundle
}

func normalizeNode(node *structpb.Value, depth int) ForwardNode {
	sender := protocol.StringField(node, "nickname")
	if sender == "" {
		sender = protocol.StringField(node, "user_id")
	}
	if sender == "" {
		sender = UnknownSender
	}

	msg := protocol.Field(node, "message")
	var content []Segment
	switch msg.GetKind().(type) {
	case *structpb.Value_StringValue, *structpb.Value_ListValue:
		content = normalize(msg, depth)
	default:
		content = []Segment{ComplexContent{}}
	}
	return ForwardNode{Sender: sender, Content: content}
}

func kindName(v *structpb.Value) string {
	switch v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return "number"
	case *structpb.Value_BoolValue:
		return "bool"
	case *structpb.Value_ListValue:
		return "list"
	case *structpb.Value_StructValue:
		return "object"
	default:
		return "null"
	}
}
