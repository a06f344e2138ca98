package sessions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/0xferal/walletchat/events"
)

// StreamRequest is the outbound contract: one request per turn. Cancellation
// is a local abort of the open request, never a separate wire message.
type StreamRequest struct {
	SessionID    string          `json:"sessionId"`
	Prompt       string          `json:"promptText"`
	ChainID      string          `json:"chainId"`
	ControlFlags map[string]bool `json:"controlFlags,omitempty"`
}

// FrameSource is a lazy, finite, non-restartable sequence of wire frames.
// Next returns io.EOF on remote close and the context's error on
// cancellation; buffered partial data is discarded in the latter case.
type FrameSource interface {
	Next(ctx context.Context) (string, error)
	Close() error
}

// DialFunc opens a stream for one turn. The default is OpenSSE.
type DialFunc func(ctx context.Context, endpoint string, req StreamRequest) (FrameSource, error)

// OpenSSE posts the turn request and returns a frame source over the
// streaming response body. A connection failure or non-success status before
// any byte streamed surfaces here, synchronously, so the turn never reaches
// thinking on transport failure.
func OpenSSE(ctx context.Context, endpoint string, req StreamRequest) (FrameSource, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("agent connection failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("agent returned status %d: %s", resp.StatusCode, string(b))
	}

	return &sseSource{
		body:     resp.Body,
		splitter: &events.FrameSplitter{},
		chunk:    make([]byte, 4096),
	}, nil
}

type sseSource struct {
	body     io.ReadCloser
	splitter *events.FrameSplitter
	chunk    []byte
	pending  []string
	eof      bool
}

var _ FrameSource = (*sseSource)(nil)

func (s *sseSource) Next(ctx context.Context) (string, error) {
	for {
		if len(s.pending) > 0 {
			frame := s.pending[0]
			s.pending = s.pending[1:]
			return frame, nil
		}
		if s.eof {
			return "", io.EOF
		}
		// Explicit cancellation check on every pull; a blocked Read is also
		// unblocked because the request context closes the body.
		if err := ctx.Err(); err != nil {
			s.splitter.Reset()
			return "", err
		}

		n, err := s.body.Read(s.chunk)
		if n > 0 {
			s.pending = append(s.pending, s.splitter.Push(s.chunk[:n])...)
		}
		if err != nil {
			if ctx.Err() != nil {
				s.splitter.Reset()
				return "", ctx.Err()
			}
			if err != io.EOF {
				return "", fmt.Errorf("error reading stream: %w", err)
			}
			// Producers may close right after the last frame without a
			// trailing blank line; treat the buffered tail as a frame.
			if tail, ok := s.splitter.Flush(); ok {
				s.pending = append(s.pending, tail)
			}
			s.eof = true
		}
	}
}

func (s *sseSource) Close() error {
	return s.body.Close()
}
