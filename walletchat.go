package walletchat

import (
	"github.com/0xferal/walletchat/sessions"
)

// Re-export the session types callers interact with
type Session = sessions.Session
type Turn = sessions.Turn
type TurnSnapshot = sessions.TurnSnapshot
type TurnState = sessions.TurnState
type AnswerMessage = sessions.AnswerMessage
type ArtifactBundle = sessions.ArtifactBundle
type ToolCallRecord = sessions.ToolCallRecord
type Notice = sessions.Notice
type RenderFunc = sessions.RenderFunc
type StreamRequest = sessions.StreamRequest

// ErrConcurrentStream is returned when a second turn is started while a
// stream is still active for the session.
var ErrConcurrentStream = sessions.ErrConcurrentStream

const (
	TurnIdle            = sessions.TurnIdle
	TurnThinking        = sessions.TurnThinking
	TurnStreamingAnswer = sessions.TurnStreamingAnswer
	TurnFinalized       = sessions.TurnFinalized
	TurnAborted         = sessions.TurnAborted
)
