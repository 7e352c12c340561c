// Package segment turns loosely typed chat payloads into a canonical tree of
// renderable segments.
package segment

import (
	"strconv"
	"strings"
)

// Kind tags a Segment variant.
type Kind int

const (
	KindText Kind = iota
	KindImage
	KindImageUnavailable
	KindImageError
	KindForward
	KindComplex
	KindUnsupported
)

// String returns the variant name.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindImageUnavailable:
		return "image_unavailable"
	case KindImageError:
		return "image_error"
	case KindForward:
		return "forward"
	case KindComplex:
		return "complex"
	case KindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Segment is one normalized unit of a chat message. The concrete types in
// this package are the only implementations.
type Segment interface {
	Kind() Kind
}

// LineBreakMarker is the escaped line break servers embed in text content.
// It renders as a break, never as the two literal characters.
const LineBreakMarker = `\n`

// Text is plain text content.
type Text struct {
	Content string
}

func (Text) Kind() Kind { return KindText }

// Lines splits the content at line breaks, both real newlines and
// LineBreakMarker. A renderer puts exactly one break between consecutive
// lines.
func (t Text) Lines() []string {
	return strings.Split(strings.ReplaceAll(t.Content, LineBreakMarker, "\n"), "\n")
}

// Image is a renderable image. Source is either the URL the server sent or
// a base64 data URI synthesized from inline bytes.
type Image struct {
	Source string
	Inline bool
}

func (Image) Kind() Kind { return KindImage }

// ImageUnavailable marks an image segment that carried neither a URL nor
// inline bytes.
type ImageUnavailable struct{}

func (ImageUnavailable) Kind() Kind { return KindImageUnavailable }

// ImageError marks an image whose inline bytes could not be converted.
type ImageError struct {
	Err error
}

func (ImageError) Kind() Kind { return KindImageError }

// ForwardBundle is a set of quoted messages relayed as one.
type ForwardBundle struct {
	Title string
	Nodes []ForwardNode

	// Unreadable is set when the bundle's node list was not a sequence.
	Unreadable bool
}

func (ForwardBundle) Kind() Kind { return KindForward }

// Header returns the bundle caption: the title when present, otherwise the
// node count.
func (b ForwardBundle) Header() string {
	switch {
	case b.Title != "":
		return "Forwarded Messages: " + b.Title
	case b.Unreadable:
		return "Forwarded Messages"
	default:
		return "Forwarded Messages (" + strconv.Itoa(len(b.Nodes)) + " items)"
	}
}

// ForwardNode is one quoted message inside a bundle.
type ForwardNode struct {
	Sender  string
	Content []Segment
}

// ComplexContent stands in for node content of an unrecognized shape.
type ComplexContent struct{}

func (ComplexContent) Kind() Kind { return KindComplex }

// Unsupported is the fallback for any segment type not recognized.
type Unsupported struct {
	OriginalType string
}

func (Unsupported) Kind() Kind { return KindUnsupported }
