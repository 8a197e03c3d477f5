package graphics

import (
	"bytes"

	"github.com/nerrad567/gray-logic-playout/internal/devicelink"
)

// crlf terminates every command and response line.
var crlf = []byte("\r\n")

// LineFramer implements devicelink.Framer for CRLF-terminated ASCII lines.
type LineFramer struct{}

var _ devicelink.Framer = LineFramer{}

// Encode appends CRLF unless cmd already ends with it.
func (LineFramer) Encode(cmd []byte) []byte {
	if bytes.HasSuffix(cmd, crlf) {
		return append([]byte{}, cmd...)
	}
	out := make([]byte, 0, len(cmd)+len(crlf))
	out = append(out, cmd...)
	return append(out, crlf...)
}

// Split returns every complete CRLF-terminated line in buf, without the
// terminator, and the unterminated remainder.
func (LineFramer) Split(buf []byte) (frames [][]byte, rest []byte) {
	for {
		i := bytes.Index(buf, crlf)
		if i < 0 {
			return frames, buf
		}
		frames = append(frames, append([]byte{}, buf[:i]...))
		buf = buf[i+len(crlf):]
	}
}
