package sessions

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/0xferal/walletchat/events"
	"github.com/0xferal/walletchat/stores"
)

// ErrConcurrentStream is returned by StartTurn when a stream is already
// active for the session. At most one non-finalized stream per session is a
// hard invariant, not a UI convenience.
var ErrConcurrentStream = errors.New("a stream is already active for this session")

// RenderFunc receives coalesced render updates: the full answer text
// accumulated so far for the given turn.
type RenderFunc func(turnID, text string)

// Session owns the ordered sequence of turns for one conversation and the
// single optional active stream. All stream processing is a single
// cooperative pull loop; the only concurrent entities are the watchdog and
// coalescer timers, which guard at fire time.
type Session struct {
	ID            string
	WalletAddress string
	ChainID       string
	AgentURL      string
	ControlFlags  map[string]bool

	// Optional collaborators; safe to leave nil.
	Store    stores.TranscriptStore
	OnRender RenderFunc

	WatchdogTimeout  time.Duration
	CoalesceInterval time.Duration
	Dial             DialFunc
	Logger           Logger

	mu     sync.Mutex
	turns  []*Turn
	active *activeStream
}

type activeStream struct {
	turn   *Turn
	cancel context.CancelFunc
	done   chan struct{}
}

// StartTurn sends the prompt and begins consuming the event stream for a new
// turn. It fails fast with ErrConcurrentStream when a stream is active, and
// with a connection error when the transport cannot be opened; in the latter
// case no turn is recorded. After a successful return the turn is guaranteed
// to reach exactly one of finalized/aborted, bounded by the watchdog.
func (s *Session) StartTurn(ctx context.Context, prompt string) (*Turn, error) {
	s.mu.Lock()
	if s.active != nil {
		s.mu.Unlock()
		return nil, ErrConcurrentStream
	}
	s.mu.Unlock()

	turnID := uuid.New().String()
	var coal *Coalescer
	if s.OnRender != nil {
		render := s.OnRender
		coal = NewCoalescer(s.CoalesceInterval, func(text string) {
			render(turnID, text)
		})
	}
	turn := newTurn(turnID, prompt, coal)

	streamCtx, cancel := context.WithCancel(ctx)
	dial := s.Dial
	if dial == nil {
		dial = OpenSSE
	}
	src, err := dial(streamCtx, s.AgentURL, StreamRequest{
		SessionID:    s.ID,
		Prompt:       prompt,
		ChainID:      s.ChainID,
		ControlFlags: s.ControlFlags,
	})
	if err != nil {
		cancel()
		return nil, err
	}

	as := &activeStream{turn: turn, cancel: cancel, done: make(chan struct{})}
	s.mu.Lock()
	if s.active != nil {
		// Lost the race to another StartTurn between the check and the dial.
		s.mu.Unlock()
		cancel()
		src.Close()
		return nil, ErrConcurrentStream
	}
	s.active = as
	s.turns = append(s.turns, turn)
	s.mu.Unlock()

	wd := NewWatchdog(s.WatchdogTimeout, func() {
		turn.Abort(Notice{Kind: NoticeTimeout, Text: "agent stream timed out waiting for activity"})
		cancel()
	})
	wd.Arm()

	go s.readLoop(streamCtx, src, turn, wd, as)
	return turn, nil
}

// readLoop is the single-threaded cooperative pump: read a frame, decode it,
// apply it to completion, repeat. Every decoded event, heartbeats included,
// resets the watchdog.
func (s *Session) readLoop(ctx context.Context, src FrameSource, turn *Turn, wd *Watchdog, as *activeStream) {
	defer close(as.done)
	defer s.clearActive(as)
	defer wd.Stop()
	defer src.Close()

	for {
		frame, err := src.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				turn.EndOfStream()
			case ctx.Err() != nil:
				// Cancellation or watchdog expiry; the canceller already
				// aborted the turn with its own notice, this is a backstop.
				turn.Abort(Notice{Kind: NoticeCancelled, Text: "stream cancelled"})
			default:
				// Mid-stream connection loss: same fallback rule as a
				// natural close, with the failure logged.
				s.logf("stream read error: %v", err)
				turn.EndOfStream()
			}
			break
		}

		ev, ok := events.Decode(frame)
		if !ok {
			continue
		}
		wd.Reset()
		turn.HandleEvent(ev)
	}

	s.persistTurn(turn)
}

// CancelActiveTurn requests cooperative cancellation of the in-flight turn.
// Idempotent: no-op when no stream is active or the turn already reached a
// terminal state. The remote producer owns any in-flight tool execution;
// cancellation only stops pulling locally.
func (s *Session) CancelActiveTurn() {
	s.mu.Lock()
	as := s.active
	s.mu.Unlock()
	if as == nil {
		return
	}
	as.turn.Abort(Notice{Kind: NoticeCancelled, Text: "stopped by user"})
	as.cancel()
}

// Resume replaces the in-memory turn list with externally supplied
// historical turns and resets active-stream bookkeeping. Any in-flight
// stream is cancelled first.
func (s *Session) Resume(prior []*Turn) {
	s.CancelActiveTurn()
	s.mu.Lock()
	s.turns = append([]*Turn(nil), prior...)
	s.active = nil
	s.mu.Unlock()
}

// ActiveTurn returns the in-flight turn, or nil.
func (s *Session) ActiveTurn() *Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil
	}
	return s.active.turn
}

// Turns returns immutable snapshots of every turn, in order.
func (s *Session) Turns() []TurnSnapshot {
	s.mu.Lock()
	turns := append([]*Turn(nil), s.turns...)
	s.mu.Unlock()

	snaps := make([]TurnSnapshot, 0, len(turns))
	for _, t := range turns {
		snaps = append(snaps, t.Snapshot())
	}
	return snaps
}

func (s *Session) clearActive(as *activeStream) {
	s.mu.Lock()
	if s.active == as {
		s.active = nil
	}
	s.mu.Unlock()
}

func (s *Session) persistTurn(turn *Turn) {
	if s.Store == nil {
		return
	}
	snap := turn.Snapshot()
	var answerText string
	var artifacts interface{}
	if snap.Answer != nil {
		answerText = snap.Answer.Text
		artifacts = snap.Answer.Artifacts
	}
	err := s.Store.SaveTurn(s.ID, snap.Prompt, answerText, artifacts, snap.State == TurnAborted)
	if err != nil {
		s.logf("Error saving turn: %v", err)
	}
}

func (s *Session) logf(format string, args ...interface{}) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}

// Logger is the minimal logging surface the session needs; *log.Logger
// satisfies it.
type Logger interface {
	Printf(format string, v ...interface{})
}
