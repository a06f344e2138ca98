package sessions

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/0xferal/walletchat/events"
)

// OpenWebSocket dials a ws:// agent endpoint, sends the turn request as the
// first message, and returns a frame source over incoming messages. The wire
// format is identical to the SSE transport: frames may span or share socket
// messages, so the same splitter handles both.
func OpenWebSocket(ctx context.Context, endpoint string, req StreamRequest) (FrameSource, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("agent connection failed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send stream request: %w", err)
	}

	src := &wsSource{
		conn:     conn,
		splitter: &events.FrameSplitter{},
		closed:   make(chan struct{}),
	}
	// A blocked ReadMessage does not observe the context on its own; close
	// the connection on cancellation so the pull loop unwinds.
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-src.closed:
		}
	}()
	return src, nil
}

type wsSource struct {
	conn      *websocket.Conn
	splitter  *events.FrameSplitter
	pending   []string
	eof       bool
	closeOnce sync.Once
	closed    chan struct{}
}

var _ FrameSource = (*wsSource)(nil)

func (s *wsSource) Next(ctx context.Context) (string, error) {
	for {
		if len(s.pending) > 0 {
			frame := s.pending[0]
			s.pending = s.pending[1:]
			return frame, nil
		}
		if s.eof {
			return "", io.EOF
		}
		if err := ctx.Err(); err != nil {
			s.splitter.Reset()
			return "", err
		}

		_, data, err := s.conn.ReadMessage()
		if len(data) > 0 {
			s.pending = append(s.pending, s.splitter.Push(data)...)
		}
		if err != nil {
			if ctx.Err() != nil {
				s.splitter.Reset()
				return "", ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || err == io.EOF {
				if tail, ok := s.splitter.Flush(); ok {
					s.pending = append(s.pending, tail)
				}
				s.eof = true
				continue
			}
			return "", fmt.Errorf("error reading stream: %w", err)
		}
	}
}

func (s *wsSource) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return s.conn.Close()
}
