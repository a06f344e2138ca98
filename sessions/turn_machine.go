package sessions

import (
	"strings"
	"sync"
	"time"

	"github.com/0xferal/walletchat/events"
)

// Turn is one prompt/response exchange. Events are applied strictly in
// arrival order; each one is handled to completion before the next frame is
// read, so no reordering or batching happens inside the machine. The lock
// exists for the two independent timers (watchdog, coalescer) and for
// snapshot readers, not for event interleaving.
type Turn struct {
	ID        string
	Prompt    string
	CreatedAt time.Time

	mu               sync.Mutex
	state            TurnState
	thinking         ThinkingRecord
	pendingThought   strings.Builder
	answer           strings.Builder
	askStarted       bool
	toolSeq          int
	finalizedByEvent bool
	answerMsg        *AnswerMessage
	notices          []Notice
	lastRemoteError  string
	artifacts        *ArtifactAccumulator
	coal             *Coalescer
	done             chan struct{}
}

func newTurn(id, prompt string, coal *Coalescer) *Turn {
	return &Turn{
		ID:        id,
		Prompt:    prompt,
		CreatedAt: time.Now(),
		state:     TurnIdle,
		artifacts: NewArtifactAccumulator(),
		coal:      coal,
		done:      make(chan struct{}),
	}
}

// RestoredTurn builds an already-finalized turn from externally supplied
// history, for session resumption. No stream is involved.
func RestoredTurn(prompt, answerText string, createdAt time.Time) *Turn {
	t := newTurn("", prompt, nil)
	t.CreatedAt = createdAt
	t.state = TurnFinalized
	t.finalizedByEvent = true
	t.answerMsg = &AnswerMessage{Text: answerText}
	close(t.done)
	return t
}

// Done is closed once the turn reaches a terminal state.
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// State returns the current lifecycle state.
func (t *Turn) State() TurnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Answer returns the finalized answer, or nil before finalization.
func (t *Turn) Answer() *AnswerMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.answerMsg == nil {
		return nil
	}
	msg := *t.answerMsg
	return &msg
}

// HandleEvent applies one decoded event. Events arriving after a terminal
// state are dropped: a late ask for an already closed request must not
// resurrect the turn. Coalescer emissions triggered by the event run after
// the lock is released so render callbacks can read snapshots freely.
func (t *Turn) HandleEvent(ev events.Event) {
	t.mu.Lock()
	post := t.applyLocked(ev)
	t.mu.Unlock()
	if post != nil {
		post()
	}
}

func (t *Turn) applyLocked(ev events.Event) func() {
	if t.state == TurnFinalized || t.state == TurnAborted {
		return nil
	}

	// A remote error only matters terminally when nothing follows it.
	if _, isErr := ev.(events.ErrorEvent); !isErr {
		t.lastRemoteError = ""
	}

	switch e := ev.(type) {
	case events.Thinking:
		t.enterThinkingLocked()

	case events.ThinkingDelta:
		t.enterThinkingLocked()
		t.pendingThought.WriteString(e.Text)

	case events.ToolCall:
		t.enterThinkingLocked()
		t.toolSeq++
		rec := &ToolCallRecord{
			Tool:             e.Tool,
			Seq:              t.toolSeq,
			State:            ToolRunning,
			PrecedingThought: t.pendingThought.String(),
		}
		t.pendingThought.Reset()
		t.thinking.ToolCalls = append(t.thinking.ToolCalls, rec)

	case events.ToolProgress:
		if rec := t.runningToolLocked(e.Tool); rec != nil {
			rec.Progress = append(rec.Progress, e.Status)
		}

	case events.ToolResult:
		if rec := t.runningToolLocked(e.Tool); rec != nil {
			rec.State = ToolCompleted
			rec.Output = e.Output
		}
		t.artifacts.AddCitations(e.Citations...)
		t.artifacts.AddTransactionHash(e.TxHash)
		if e.ImageURL != "" {
			t.artifacts.SetGeneratedImage(GeneratedImageRef{URL: e.ImageURL})
		}

	case events.ToolError:
		if rec := t.runningToolLocked(e.Tool); rec != nil {
			rec.State = ToolErrored
		}

	case events.TxMessage:
		t.artifacts.AddTransactionHash(e.TxHash)

	case events.GeneratedImage:
		t.artifacts.SetGeneratedImage(GeneratedImageRef{
			URL:      e.ImageURL,
			Prompt:   e.Prompt,
			MIMEType: e.MIMEType,
		})

	case events.AskStart:
		if !t.askStarted {
			t.askStarted = true
			t.state = TurnStreamingAnswer
		}

	case events.AskRetract:
		t.answer.Reset()
		if t.coal != nil {
			t.coal.Retract()
		}
		t.askStarted = false
		t.state = TurnThinking
		t.thinking.Active = true

	case events.AskDelta:
		t.answer.WriteString(e.Text)
		if t.coal != nil {
			t.coal.Append(e.Text)
		}

	case events.Ask:
		return t.finalizeLocked(true, e.Message, e.RequiresConfirmation, e.ConfirmationQuestion)

	case events.Final:
		return t.finalizeLocked(true, e.Message, false, "")

	case events.Done:
		t.thinking.Active = false

	case events.Heartbeat:
		// Watchdog reset happens in the read loop for every decoded event.

	case events.ErrorEvent:
		t.lastRemoteError = e.Message
		t.notices = append(t.notices, Notice{Kind: NoticeAgentError, Text: e.Message})
	}
	return nil
}

func (t *Turn) enterThinkingLocked() {
	if t.state == TurnIdle {
		t.state = TurnThinking
	}
	t.thinking.Active = true
}

// runningToolLocked finds the most recently invoked still-running record for
// the given tool name. Most-recent-first, so two in-flight invocations of
// the same tool never cross-attribute.
func (t *Turn) runningToolLocked(tool string) *ToolCallRecord {
	for i := len(t.thinking.ToolCalls) - 1; i >= 0; i-- {
		rec := t.thinking.ToolCalls[i]
		if rec.Tool == tool && rec.State == ToolRunning {
			return rec
		}
	}
	return nil
}

// finalizeLocked performs the one-and-only finalization. The locally
// accumulated token buffer wins over the event's own message whenever it is
// non-empty, since tokens may have arrived via a different path than the
// finalize payload. Artifacts merge in atomically; leftover reasoning text
// surfaces as a standalone note.
func (t *Turn) finalizeLocked(byEvent bool, eventMessage string, requiresConfirmation bool, question string) func() {
	if t.state == TurnFinalized || t.state == TurnAborted {
		return nil
	}

	text := t.answer.String()
	if text == "" {
		text = eventMessage
	}
	if pt := t.pendingThought.String(); pt != "" {
		t.thinking.Notes = append(t.thinking.Notes, pt)
		t.pendingThought.Reset()
	}
	t.answerMsg = &AnswerMessage{
		Text:                 text,
		Artifacts:            t.artifacts.DrainAndReset(),
		RequiresConfirmation: requiresConfirmation,
		ConfirmationQuestion: question,
	}
	t.thinking.Active = false
	t.finalizedByEvent = byEvent
	t.state = TurnFinalized
	close(t.done)

	coal := t.coal
	return func() {
		if coal != nil {
			coal.FlushFinal(text)
		}
	}
}

// EndOfStream applies the fallback-completion rule for a naturally closed
// stream: finalize from the token buffer if there is one, do nothing if a
// finalize event already fired, abort otherwise. A remote error that was the
// last event before close becomes the abort notice.
func (t *Turn) EndOfStream() {
	t.mu.Lock()
	var post func()
	switch {
	case t.state == TurnFinalized || t.state == TurnAborted:
	case t.answer.Len() > 0:
		post = t.finalizeLocked(false, "", false, "")
	case t.lastRemoteError != "":
		post = t.abortLocked(Notice{Kind: NoticeAgentError, Text: t.lastRemoteError})
	default:
		post = t.abortLocked(Notice{Kind: NoticeStreamClosed, Text: "stream closed without a response"})
	}
	t.mu.Unlock()
	if post != nil {
		post()
	}
}

// Abort moves the turn to the aborted terminal state with the given notice.
// No-op once a terminal state is reached, so cancellation cannot race an
// in-flight finalize and a finalize cannot undo a timeout.
func (t *Turn) Abort(n Notice) {
	t.mu.Lock()
	post := t.abortLocked(n)
	t.mu.Unlock()
	if post != nil {
		post()
	}
}

func (t *Turn) abortLocked(n Notice) func() {
	if t.state == TurnFinalized || t.state == TurnAborted {
		return nil
	}
	t.notices = append(t.notices, n)
	t.thinking.Active = false
	t.state = TurnAborted
	close(t.done)

	coal := t.coal
	return func() {
		if coal != nil {
			coal.Stop()
		}
	}
}

// Snapshot returns a deep, immutable copy of the turn for callers.
func (t *Turn) Snapshot() TurnSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := TurnSnapshot{
		ID:               t.ID,
		Prompt:           t.Prompt,
		CreatedAt:        t.CreatedAt,
		State:            t.state,
		FinalizedByEvent: t.finalizedByEvent,
		Notices:          append([]Notice(nil), t.notices...),
		Thinking: ThinkingSnapshot{
			Active: t.thinking.Active,
			Notes:  append([]string(nil), t.thinking.Notes...),
		},
	}
	for _, rec := range t.thinking.ToolCalls {
		cp := *rec
		cp.Progress = append([]string(nil), rec.Progress...)
		snap.Thinking.ToolCalls = append(snap.Thinking.ToolCalls, cp)
	}
	if t.answerMsg != nil {
		msg := *t.answerMsg
		snap.Answer = &msg
	}
	return snap
}
