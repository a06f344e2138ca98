package events

// Event is the decoded form of one wire frame. It is a closed union: every
// variant the agent backend can emit has a concrete type below, and anything
// the decoder does not recognize never surfaces as an Event at all.
type Event interface {
	isEvent()
}

// Thinking marks the start (or continuation) of a reasoning phase.
type Thinking struct{}

// ThinkingDelta carries a chunk of free-text reasoning.
type ThinkingDelta struct {
	Text string
}

// ToolCall announces that the agent invoked a tool.
type ToolCall struct {
	Tool string
}

// ToolProgress carries an intermediate status line for a running tool.
type ToolProgress struct {
	Tool   string
	Status string
}

// ToolResult reports a tool finishing successfully. Side payloads
// (citations, transaction hash, image URL) feed the artifact bundle of the
// turn; Output is the raw result text and never contributes to answer text.
type ToolResult struct {
	Tool      string
	Output    string
	Citations []string
	TxHash    string
	ImageURL  string
}

// ToolError reports a tool finishing with an error.
type ToolError struct {
	Tool string
}

// TxMessage announces an on-chain transaction hash outside of a tool result.
type TxMessage struct {
	TxHash string
}

// AskStart marks the transition from reasoning to streaming the answer.
type AskStart struct{}

// AskRetract discards any partial answer streamed so far; the agent decided
// it needs more tool calls before answering.
type AskRetract struct{}

// AskDelta carries one partial-answer token.
type AskDelta struct {
	Text string
}

// Ask finalizes the turn. Message may duplicate text already streamed via
// AskDelta events; locally accumulated text wins when non-empty.
type Ask struct {
	Message              string
	RequiresConfirmation bool
	ConfirmationQuestion string
}

// GeneratedImage describes an image produced during the turn.
type GeneratedImage struct {
	ImageURL string
	Prompt   string
	MIMEType string
}

// Heartbeat is a keep-alive; it only refreshes the inactivity watchdog.
type Heartbeat struct{}

// Done flips end-of-turn bookkeeping flags. It carries no content and is
// distinct from finalization.
type Done struct{}

// Final is an alternate finalize event with an optional message payload.
type Final struct {
	Message string
}

// ErrorEvent is a remote-reported error. It does not abort the turn unless
// it is the last event before the stream closes.
type ErrorEvent struct {
	Message string
}

func (Thinking) isEvent()       {}
func (ThinkingDelta) isEvent()  {}
func (ToolCall) isEvent()       {}
func (ToolProgress) isEvent()   {}
func (ToolResult) isEvent()     {}
func (ToolError) isEvent()      {}
func (TxMessage) isEvent()      {}
func (AskStart) isEvent()       {}
func (AskRetract) isEvent()     {}
func (AskDelta) isEvent()       {}
func (Ask) isEvent()            {}
func (GeneratedImage) isEvent() {}
func (Heartbeat) isEvent()      {}
func (Done) isEvent()           {}
func (Final) isEvent()          {}
func (ErrorEvent) isEvent()     {}
