package sessions

import (
	"fmt"
	"time"
)

// TurnState tracks where a turn is in its lifecycle. A turn moves
// idle -> thinking -> streaming_answer -> finalized, may bounce back to
// thinking on retraction, and can land in aborted from any non-terminal
// state. Finalized and aborted are terminal; the first terminal transition
// wins and later ones are dropped.
type TurnState int

const (
	TurnIdle TurnState = iota
	TurnThinking
	TurnStreamingAnswer
	TurnFinalized
	TurnAborted
)

func (s TurnState) String() string {
	switch s {
	case TurnIdle:
		return "idle"
	case TurnThinking:
		return "thinking"
	case TurnStreamingAnswer:
		return "streaming_answer"
	case TurnFinalized:
		return "finalized"
	case TurnAborted:
		return "aborted"
	default:
		return fmt.Sprintf("TurnState(%d)", int(s))
	}
}

// ToolCallState is the lifecycle state of one tool invocation.
type ToolCallState int

const (
	ToolRunning ToolCallState = iota
	ToolCompleted
	ToolErrored
)

func (s ToolCallState) String() string {
	switch s {
	case ToolRunning:
		return "running"
	case ToolCompleted:
		return "completed"
	case ToolErrored:
		return "error"
	default:
		return fmt.Sprintf("ToolCallState(%d)", int(s))
	}
}

// ToolCallRecord is one tool invocation inside a turn. Seq is a per-turn
// monotonic counter, so two invocations of the same tool stay distinct.
// State moves from running to exactly one of completed/error.
type ToolCallRecord struct {
	Tool             string
	Seq              int
	State            ToolCallState
	Progress         []string
	PrecedingThought string
	Output           string
}

// Key identifies the record uniquely within its turn.
func (r *ToolCallRecord) Key() string {
	return fmt.Sprintf("%s#%d", r.Tool, r.Seq)
}

// ThinkingRecord collects the reasoning side of a turn: tool invocations in
// order plus any reasoning text that was never attributed to a tool call.
// Mutated only by the turn state machine.
type ThinkingRecord struct {
	Active    bool
	Notes     []string
	ToolCalls []*ToolCallRecord
}

// GeneratedImageRef describes an image artifact produced during a turn.
type GeneratedImageRef struct {
	URL      string
	Prompt   string
	MIMEType string
}

// ArtifactBundle is the deduplicated set of side artifacts attached to a
// finalized answer.
type ArtifactBundle struct {
	TxHashes  []string
	Citations []string
	Image     *GeneratedImageRef
}

// AnswerMessage is the finalized answer of a turn. Immutable once created.
type AnswerMessage struct {
	Text                 string
	Artifacts            ArtifactBundle
	RequiresConfirmation bool
	ConfirmationQuestion string
}

// NoticeKind classifies synthetic system notices attached to a turn.
type NoticeKind int

const (
	NoticeCancelled NoticeKind = iota
	NoticeTimeout
	NoticeAgentError
	NoticeStreamClosed
)

// Notice is a synthetic in-turn message the subsystem itself produced:
// cancellation, timeout, remote errors, unexpected stream closure.
type Notice struct {
	Kind NoticeKind
	Text string
}

// TurnSnapshot is the caller-visible, immutable view of a turn. Callers
// never see the live mutable structures.
type TurnSnapshot struct {
	ID               string
	Prompt           string
	CreatedAt        time.Time
	State            TurnState
	Thinking         ThinkingSnapshot
	Answer           *AnswerMessage
	Notices          []Notice
	FinalizedByEvent bool
}

// ThinkingSnapshot is the immutable view of a ThinkingRecord.
type ThinkingSnapshot struct {
	Active    bool
	Notes     []string
	ToolCalls []ToolCallRecord
}
