// Package ws implements the transport contract over WebSocket using
// gobwas/ws, for both the client session and the dev relay server.
package ws

import (
	"bytes"
	"io"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// readMessage returns the payload of the next text or binary message from
// src, answering ping and close control frames along the way. Control
// replies are rendered into a buffer and handed to writeControl as a single
// write, so they never interleave with a concurrent data frame.
//
// A close frame from the peer is reported as wsutil.ClosedError.
func readMessage(src io.Reader, state ws.State, writeControl func([]byte) error) ([]byte, error) {
	control := func(h ws.Header, r io.Reader) error {
		var reply bytes.Buffer
		err := wsutil.ControlFrameHandler(&reply, state)(h, r)
		if reply.Len() > 0 {
			if werr := writeControl(reply.Bytes()); werr != nil && err == nil {
				err = werr
			}
		}
		return err
	}

	rd := &wsutil.Reader{
		Source:         src,
		State:          state,
		CheckUTF8:      true,
		OnIntermediate: control,
	}
	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			return nil, err
		}
		if hdr.OpCode.IsControl() {
			if err := control(hdr, rd); err != nil {
				return nil, err
			}
			continue
		}
		if hdr.OpCode&(ws.OpText|ws.OpBinary) == 0 {
			if err := rd.Discard(); err != nil {
				return nil, err
			}
			continue
		}
		return io.ReadAll(rd)
	}
}
