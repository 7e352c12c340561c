package segment

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/omochice/relaychat/pkg/protocol"
)

// ErrImageData reports inline image bytes that are not a byte sequence.
var ErrImageData = errors.New("invalid inline image data")

// chunkSize is how many raw bytes are encoded per step when building a data
// URI. It is a multiple of 3 so that chunk encodings concatenate without
// intermediate padding.
const chunkSize = 3 * 2048

const defaultImageType = "image/png"

func normalizeImage(seg *structpb.Value) Segment {
	if url := field(seg, "url"); url != "" {
		return Image{Source: url}
	}

	file := protocol.Field(seg, "file")
	if file == nil {
		file = protocol.Field(seg, "data", "file")
	}
	data, ok, err := inlineBytes(file)
	if err != nil {
		return ImageError{Err: err}
	}
	if !ok {
		return ImageUnavailable{}
	}
	return Image{Source: DataURI(data), Inline: true}
}

// inlineBytes extracts a serialized byte buffer of the form
// {"type": "Buffer", "data": [0-255, ...]}. ok is false when file is not
// such a buffer or the buffer is empty.
func inlineBytes(file *structpb.Value) (data []byte, ok bool, err error) {
	if protocol.StringField(file, "type") != "Buffer" {
		return nil, false, nil
	}
	values := protocol.Field(file, "data").GetListValue().GetValues()
	if len(values) == 0 {
		return nil, false, nil
	}

	data = make([]byte, len(values))
	for i, v := range values {
		n, isNum := v.GetKind().(*structpb.Value_NumberValue)
		if !isNum {
			return nil, false, fmt.Errorf("%w: element %d is %s", ErrImageData, i, kindName(v))
		}
		f := n.NumberValue
		if f != math.Trunc(f) || f < 0 || f > 255 {
			return nil, false, fmt.Errorf("%w: element %d is %v", ErrImageData, i, f)
		}
		data[i] = byte(f)
	}
	return data, true, nil
}

// DataURI encodes data as a base64 data URI. The media type is sniffed from
// the content and falls back to image/png.
func DataURI(data []byte) string {
	mediaType := http.DetectContentType(data)
	if !strings.HasPrefix(mediaType, "image/") {
		mediaType = defaultImageType
	}

	prefix := "data:" + mediaType + ";base64,"
	var b strings.Builder
	b.Grow(len(prefix) + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString(prefix)

	buf := make([]byte, base64.StdEncoding.EncodedLen(chunkSize))
	for off := 0; off < len(data); off += chunkSize {
		end := min(off+chunkSize, len(data))
		n := base64.StdEncoding.EncodedLen(end - off)
		base64.StdEncoding.Encode(buf[:n], data[off:end])
		b.Write(buf[:n])
	}
	return b.String()
}
