package events

import "bytes"

// FrameSplitter accumulates raw byte chunks from the transport and splits
// them into complete wire frames on the blank-line boundary. Partial frames
// straddling chunk boundaries stay buffered until their delimiter arrives.
// Splitting happens at the byte level, so multi-byte UTF-8 sequences cut in
// half by the transport are reassembled before any frame becomes a string.
type FrameSplitter struct {
	buf bytes.Buffer
}

// Push appends a chunk to the buffer and returns every frame completed by it,
// in order. Frames that are empty after delimiter removal are skipped.
func (s *FrameSplitter) Push(chunk []byte) []string {
	s.buf.Write(chunk)

	var frames []string
	for {
		b := s.buf.Bytes()
		i, w := frameBoundary(b)
		if i < 0 {
			break
		}
		frame := string(b[:i])
		s.buf.Next(i + w)
		if frame != "" {
			frames = append(frames, frame)
		}
	}
	return frames
}

// Flush returns whatever is buffered as a final frame. Called on natural
// end-of-stream, where the producer may close right after the last frame
// without a trailing blank line.
func (s *FrameSplitter) Flush() (string, bool) {
	tail := s.buf.String()
	s.buf.Reset()
	tail = trimFrame(tail)
	if tail == "" {
		return "", false
	}
	return tail, true
}

// Reset discards buffered partial data without emitting it. Used on
// cancellation so a trailing partial frame is never surfaced.
func (s *FrameSplitter) Reset() {
	s.buf.Reset()
}

// frameBoundary finds the earliest frame delimiter in b, returning its index
// and width, or (-1, 0) when no complete frame is buffered. Both bare LF and
// CRLF conventions are honored.
func frameBoundary(b []byte) (int, int) {
	lf := bytes.Index(b, []byte("\n\n"))
	crlf := bytes.Index(b, []byte("\r\n\r\n"))
	switch {
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return crlf, 4
	case lf >= 0:
		return lf, 2
	default:
		return -1, 0
	}
}

func trimFrame(frame string) string {
	for len(frame) > 0 {
		c := frame[len(frame)-1]
		if c != '\n' && c != '\r' {
			break
		}
		frame = frame[:len(frame)-1]
	}
	return frame
}
