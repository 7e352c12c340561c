// Package console renders session events as plain text lines.
package console

import (
	"strings"
	"unicode"

	"github.com/omochice/relaychat/internal/segment"
)

const nodeIndent = "    "

// Render lays out a segment sequence as text lines. Consecutive text runs
// share a line; images, forwarded bundles and markers start their own.
// Control characters other than tab are dropped.
func Render(segs []segment.Segment) []string {
	r := &renderer{}
	for _, seg := range segs {
		r.segment(seg)
	}
	for i, line := range r.lines {
		r.lines[i] = sanitize(line)
	}
	return r.lines
}

// sanitize drops control characters, escape sequence introducers included,
// keeping tabs.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r != '\t' && unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

type renderer struct {
	lines []string
	open  bool
}

func (r *renderer) inline(s string) {
	if r.open {
		r.lines[len(r.lines)-1] += s
		return
	}
	r.lines = append(r.lines, s)
	r.open = true
}

func (r *renderer) block(s string) {
	r.lines = append(r.lines, s)
	r.open = false
}

func (r *renderer) segment(seg segment.Segment) {
	switch v := seg.(type) {
	case segment.Text:
		for i, line := range v.Lines() {
			if i > 0 {
				r.open = false
			}
			r.inline(line)
		}
	case segment.Image:
		r.block("[Image] " + imageSource(v))
	case segment.ImageUnavailable:
		r.block("[Image (no data)]")
	case segment.ImageError:
		r.block("[Image Data Error]")
	case segment.ForwardBundle:
		r.forward(v)
	case segment.ComplexContent:
		r.inline(" [Complex Content]")
	case segment.Unsupported:
		r.block("[Unsupported type: " + v.OriginalType + "]")
	default:
		r.block("[Unsupported type: " + seg.Kind().String() + "]")
	}
}

func (r *renderer) forward(b segment.ForwardBundle) {
	r.block("--- " + b.Header() + " ---")
	if b.Unreadable {
		r.block("[Could not display content]")
		return
	}
	for _, node := range b.Nodes {
		body := Render(node.Content)
		if len(body) == 0 {
			body = []string{""}
		}
		r.block(node.Sender + ": " + strings.TrimLeft(body[0], " "))
		for _, line := range body[1:] {
			r.block(nodeIndent + line)
		}
	}
}

// imageSource shortens inline data URIs to their media type.
func imageSource(img segment.Image) string {
	if !img.Inline {
		return img.Source
	}
	media, _, _ := strings.Cut(strings.TrimPrefix(img.Source, "data:"), ";")
	return "(inline " + media + ")"
}
