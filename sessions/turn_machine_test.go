package sessions

import (
	"reflect"
	"testing"
	"time"

	"github.com/0xferal/walletchat/events"
)

func apply(t *Turn, evs ...events.Event) {
	for _, ev := range evs {
		t.HandleEvent(ev)
	}
}

func TestTurnFullToolThenAnswer(t *testing.T) {
	turn := newTurn("t1", "What is the weather?", nil)

	apply(turn,
		events.Thinking{},
		events.ToolCall{Tool: "web_search"},
		events.ToolProgress{Tool: "web_search", Status: "querying"},
		events.ToolResult{Tool: "web_search", Citations: []string{"https://a", "https://b"}},
		events.AskStart{},
		events.AskDelta{Text: "Hel"},
		events.AskDelta{Text: "lo"},
		events.Ask{Message: ""},
	)

	snap := turn.Snapshot()
	if snap.State != TurnFinalized {
		t.Fatalf("state = %s, want finalized", snap.State)
	}
	if snap.Answer == nil || snap.Answer.Text != "Hello" {
		t.Fatalf("answer = %#v, want Hello", snap.Answer)
	}
	if !reflect.DeepEqual(snap.Answer.Artifacts.Citations, []string{"https://a", "https://b"}) {
		t.Errorf("citations = %v", snap.Answer.Artifacts.Citations)
	}
	if len(snap.Thinking.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(snap.Thinking.ToolCalls))
	}
	rec := snap.Thinking.ToolCalls[0]
	if rec.State != ToolCompleted {
		t.Errorf("tool state = %s, want completed", rec.State)
	}
	if !reflect.DeepEqual(rec.Progress, []string{"querying"}) {
		t.Errorf("progress = %v", rec.Progress)
	}
	if snap.Thinking.Active {
		t.Error("thinking still active after finalization")
	}
	if !snap.FinalizedByEvent {
		t.Error("finalization should be attributed to the ask event")
	}

	select {
	case <-turn.Done():
	default:
		t.Error("done channel not closed")
	}
}

func TestTurnStateProgression(t *testing.T) {
	turn := newTurn("t1", "p", nil)
	if turn.State() != TurnIdle {
		t.Fatalf("initial state = %s", turn.State())
	}
	turn.HandleEvent(events.ThinkingDelta{Text: "hm"})
	if turn.State() != TurnThinking {
		t.Errorf("after delta state = %s, want thinking", turn.State())
	}
	turn.HandleEvent(events.AskStart{})
	if turn.State() != TurnStreamingAnswer {
		t.Errorf("after ask_start state = %s, want streaming_answer", turn.State())
	}
}

// Natural close with buffered tokens but no finalize event completes the
// turn from the buffer; FinalizedByEvent stays false.
func TestTurnFallbackCompletion(t *testing.T) {
	turn := newTurn("t1", "p", nil)
	apply(turn,
		events.AskStart{},
		events.AskDelta{Text: "Partial"},
	)
	turn.EndOfStream()

	snap := turn.Snapshot()
	if snap.State != TurnFinalized {
		t.Fatalf("state = %s, want finalized", snap.State)
	}
	if snap.Answer.Text != "Partial" {
		t.Errorf("answer = %q", snap.Answer.Text)
	}
	if snap.FinalizedByEvent {
		t.Error("fallback completion must not claim event finalization")
	}
}

// Natural close with no tokens at all aborts with a stream-closed notice.
func TestTurnEmptyStreamAborts(t *testing.T) {
	turn := newTurn("t1", "p", nil)
	turn.HandleEvent(events.Thinking{})
	turn.EndOfStream()

	snap := turn.Snapshot()
	if snap.State != TurnAborted {
		t.Fatalf("state = %s, want aborted", snap.State)
	}
	if len(snap.Notices) != 1 || snap.Notices[0].Kind != NoticeStreamClosed {
		t.Errorf("notices = %#v", snap.Notices)
	}
}

// An error as the very last event before close becomes the abort notice.
func TestTurnErrorAsLastEvent(t *testing.T) {
	turn := newTurn("t1", "p", nil)
	apply(turn,
		events.Thinking{},
		events.ErrorEvent{Message: "model overloaded"},
	)
	turn.EndOfStream()

	snap := turn.Snapshot()
	if snap.State != TurnAborted {
		t.Fatalf("state = %s, want aborted", snap.State)
	}
	last := snap.Notices[len(snap.Notices)-1]
	if last.Kind != NoticeAgentError || last.Text != "model overloaded" {
		t.Errorf("abort notice = %#v", last)
	}
}

// An error followed by more events is recorded but does not abort.
func TestTurnErrorMidStreamRecovers(t *testing.T) {
	turn := newTurn("t1", "p", nil)
	apply(turn,
		events.ErrorEvent{Message: "transient"},
		events.AskStart{},
		events.AskDelta{Text: "ok"},
		events.Ask{},
	)

	snap := turn.Snapshot()
	if snap.State != TurnFinalized {
		t.Fatalf("state = %s, want finalized", snap.State)
	}
	if len(snap.Notices) != 1 || snap.Notices[0].Kind != NoticeAgentError {
		t.Errorf("notices = %#v", snap.Notices)
	}
	if snap.Answer.Text != "ok" {
		t.Errorf("answer = %q", snap.Answer.Text)
	}
}

// Events after cancellation are dropped; a late ask must not resurrect the
// turn or overwrite the abort.
func TestTurnLateEventsAfterAbortDropped(t *testing.T) {
	turn := newTurn("t1", "p", nil)
	apply(turn, events.AskStart{}, events.AskDelta{Text: "half"})
	turn.Abort(Notice{Kind: NoticeCancelled, Text: "stopped by user"})

	apply(turn,
		events.AskDelta{Text: " more"},
		events.Ask{Message: "full answer"},
	)

	snap := turn.Snapshot()
	if snap.State != TurnAborted {
		t.Fatalf("state = %s, want aborted", snap.State)
	}
	if snap.Answer != nil {
		t.Errorf("aborted turn grew an answer: %#v", snap.Answer)
	}
}

// First terminal transition wins both ways.
func TestTurnTerminalTransitionIsFinal(t *testing.T) {
	turn := newTurn("t1", "p", nil)
	apply(turn, events.AskStart{}, events.AskDelta{Text: "done"}, events.Ask{})

	turn.Abort(Notice{Kind: NoticeTimeout, Text: "timeout"})
	snap := turn.Snapshot()
	if snap.State != TurnFinalized {
		t.Errorf("abort after finalize changed state to %s", snap.State)
	}
	if len(snap.Notices) != 0 {
		t.Errorf("abort after finalize added notices: %#v", snap.Notices)
	}

	// And aborting twice records only the first notice.
	turn2 := newTurn("t2", "p", nil)
	turn2.Abort(Notice{Kind: NoticeCancelled, Text: "first"})
	turn2.Abort(Notice{Kind: NoticeTimeout, Text: "second"})
	snap2 := turn2.Snapshot()
	if len(snap2.Notices) != 1 || snap2.Notices[0].Text != "first" {
		t.Errorf("notices = %#v", snap2.Notices)
	}
}

// The locally accumulated buffer wins over the finalize event's message.
func TestTurnLocalBufferWinsOverAskMessage(t *testing.T) {
	turn := newTurn("t1", "p", nil)
	apply(turn,
		events.AskStart{},
		events.AskDelta{Text: "streamed text"},
		events.Ask{Message: "server copy"},
	)
	if got := turn.Answer().Text; got != "streamed text" {
		t.Errorf("answer = %q, want streamed text", got)
	}
}

// With no streamed tokens the event message is the answer.
func TestTurnAskMessageUsedWhenBufferEmpty(t *testing.T) {
	turn := newTurn("t1", "p", nil)
	apply(turn, events.Ask{Message: "direct answer", RequiresConfirmation: true, ConfirmationQuestion: "Sign it?"})

	ans := turn.Answer()
	if ans.Text != "direct answer" {
		t.Errorf("answer = %q", ans.Text)
	}
	if !ans.RequiresConfirmation || ans.ConfirmationQuestion != "Sign it?" {
		t.Errorf("confirmation not carried: %#v", ans)
	}
}

func TestTurnFinalEventFinalizes(t *testing.T) {
	turn := newTurn("t1", "p", nil)
	apply(turn, events.Final{Message: "wrapped up"})

	snap := turn.Snapshot()
	if snap.State != TurnFinalized || snap.Answer.Text != "wrapped up" {
		t.Errorf("snap = %#v", snap)
	}
}

// Retraction resets the partial answer and drops back to thinking; the
// eventual answer contains only post-retraction tokens.
func TestTurnAskRetract(t *testing.T) {
	turn := newTurn("t1", "p", nil)
	apply(turn,
		events.AskStart{},
		events.AskDelta{Text: "wrong start"},
		events.AskRetract{},
	)
	if turn.State() != TurnThinking {
		t.Fatalf("state after retract = %s, want thinking", turn.State())
	}
	apply(turn,
		events.ToolCall{Tool: "price_lookup"},
		events.ToolResult{Tool: "price_lookup"},
		events.AskStart{},
		events.AskDelta{Text: "correct answer"},
		events.Ask{},
	)
	if got := turn.Answer().Text; got != "correct answer" {
		t.Errorf("answer = %q", got)
	}
}

// A rendered partial answer that gets retracted before an empty finalize
// must end with an empty render, not the stale retracted text.
func TestTurnRetractedAnswerClearsRender(t *testing.T) {
	rec := &emitRecorder{}
	coal := NewCoalescer(10*time.Millisecond, rec.emit)
	turn := newTurn("t1", "p", coal)

	apply(turn,
		events.AskStart{},
		events.AskDelta{Text: "wrong direction"},
	)
	time.Sleep(40 * time.Millisecond)
	if got := rec.all(); len(got) == 0 {
		t.Fatal("partial answer was never rendered")
	}

	apply(turn,
		events.AskRetract{},
		events.Ask{},
	)

	got := rec.all()
	if got[len(got)-1] != "" {
		t.Errorf("last render = %q, want empty after retraction", got[len(got)-1])
	}
	if ans := turn.Answer(); ans.Text != "" {
		t.Errorf("answer = %q", ans.Text)
	}
}

// Two in-flight invocations of the same tool: results attribute to the most
// recently invoked still-running record.
func TestTurnSameToolTwiceDisambiguation(t *testing.T) {
	turn := newTurn("t1", "p", nil)
	apply(turn,
		events.ToolCall{Tool: "web_search"},
		events.ToolCall{Tool: "web_search"},
		events.ToolResult{Tool: "web_search", Output: "second result"},
		events.ToolResult{Tool: "web_search", Output: "first result"},
	)

	snap := turn.Snapshot()
	if len(snap.Thinking.ToolCalls) != 2 {
		t.Fatalf("tool calls = %d", len(snap.Thinking.ToolCalls))
	}
	if snap.Thinking.ToolCalls[1].Output != "second result" {
		t.Errorf("second record output = %q", snap.Thinking.ToolCalls[1].Output)
	}
	if snap.Thinking.ToolCalls[0].Output != "first result" {
		t.Errorf("first record output = %q", snap.Thinking.ToolCalls[0].Output)
	}
	if snap.Thinking.ToolCalls[0].Seq == snap.Thinking.ToolCalls[1].Seq {
		t.Error("tool call sequence numbers must be distinct")
	}
}

// Progress for a tool with no running record is dropped silently.
func TestTurnUnmatchedProgressDropped(t *testing.T) {
	turn := newTurn("t1", "p", nil)
	apply(turn,
		events.ToolCall{Tool: "a"},
		events.ToolResult{Tool: "a"},
		events.ToolProgress{Tool: "a", Status: "late"},
		events.ToolProgress{Tool: "never_called", Status: "ghost"},
	)

	snap := turn.Snapshot()
	if len(snap.Thinking.ToolCalls[0].Progress) != 0 {
		t.Errorf("late progress attached: %v", snap.Thinking.ToolCalls[0].Progress)
	}
}

// Reasoning text buffered before a tool call attaches to that call; leftover
// text at finalization becomes a standalone note.
func TestTurnThinkingHandoff(t *testing.T) {
	turn := newTurn("t1", "p", nil)
	apply(turn,
		events.ThinkingDelta{Text: "I should check "},
		events.ThinkingDelta{Text: "the price."},
		events.ToolCall{Tool: "price_lookup"},
		events.ToolResult{Tool: "price_lookup"},
		events.ThinkingDelta{Text: "trailing thought"},
		events.Ask{Message: "done"},
	)

	snap := turn.Snapshot()
	if got := snap.Thinking.ToolCalls[0].PrecedingThought; got != "I should check the price." {
		t.Errorf("preceding thought = %q", got)
	}
	if !reflect.DeepEqual(snap.Thinking.Notes, []string{"trailing thought"}) {
		t.Errorf("notes = %v", snap.Thinking.Notes)
	}
}

// done is bookkeeping only: it neither finalizes nor aborts.
func TestTurnDoneIsNotTerminal(t *testing.T) {
	turn := newTurn("t1", "p", nil)
	apply(turn,
		events.AskStart{},
		events.AskDelta{Text: "answer"},
		events.Done{},
	)
	if turn.State() != TurnStreamingAnswer {
		t.Fatalf("state after done = %s", turn.State())
	}
	turn.EndOfStream()
	if turn.State() != TurnFinalized {
		t.Errorf("state = %s, want finalized", turn.State())
	}
}

func TestTurnAskStartIdempotent(t *testing.T) {
	turn := newTurn("t1", "p", nil)
	apply(turn,
		events.AskStart{},
		events.AskDelta{Text: "a"},
		events.AskStart{},
		events.AskDelta{Text: "b"},
		events.Ask{},
	)
	if got := turn.Answer().Text; got != "ab" {
		t.Errorf("answer = %q, duplicate ask_start must not reset tokens", got)
	}
}

func TestTurnArtifactsMergeAcrossEvents(t *testing.T) {
	turn := newTurn("t1", "p", nil)
	hash := "0x3b444d7d0dfd2b4f8f6b8a1cbb9f6e2c1d0a5e4f3b2a190807060504030201ff"
	apply(turn,
		events.TxMessage{TxHash: hash},
		events.ToolResult{Tool: "swap", TxHash: hash}, // duplicate, case-insensitive
		events.ToolResult{Tool: "search", Citations: []string{"https://a", "https://a", "https://b"}},
		events.GeneratedImage{ImageURL: "https://img/1.png", Prompt: "chart"},
		events.GeneratedImage{ImageURL: "https://img/2.png"},
		events.Ask{Message: "done"},
	)

	arts := turn.Answer().Artifacts
	if len(arts.TxHashes) != 1 {
		t.Errorf("tx hashes = %v, want one after dedup", arts.TxHashes)
	}
	if !reflect.DeepEqual(arts.Citations, []string{"https://a", "https://b"}) {
		t.Errorf("citations = %v", arts.Citations)
	}
	if arts.Image == nil || arts.Image.URL != "https://img/1.png" {
		t.Errorf("image = %#v, first one wins", arts.Image)
	}
}

func TestRestoredTurn(t *testing.T) {
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	turn := RestoredTurn("old prompt", "old answer", created)

	snap := turn.Snapshot()
	if snap.State != TurnFinalized {
		t.Errorf("state = %s", snap.State)
	}
	if snap.Answer.Text != "old answer" || snap.Prompt != "old prompt" {
		t.Errorf("snap = %#v", snap)
	}
	if !snap.CreatedAt.Equal(created) {
		t.Errorf("createdAt = %v", snap.CreatedAt)
	}
	select {
	case <-turn.Done():
	default:
		t.Error("restored turn must be done")
	}
}

func TestTurnSnapshotIsDeepCopy(t *testing.T) {
	turn := newTurn("t1", "p", nil)
	apply(turn,
		events.ToolCall{Tool: "a"},
		events.ToolProgress{Tool: "a", Status: "s1"},
	)

	snap := turn.Snapshot()
	snap.Thinking.ToolCalls[0].Progress[0] = "mutated"
	snap.Thinking.ToolCalls[0].State = ToolErrored

	fresh := turn.Snapshot()
	if fresh.Thinking.ToolCalls[0].Progress[0] != "s1" {
		t.Error("snapshot shares progress slice with live turn")
	}
	if fresh.Thinking.ToolCalls[0].State != ToolRunning {
		t.Error("snapshot shares record with live turn")
	}
}
