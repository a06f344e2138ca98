package events

import (
	"encoding/json"
	"strings"
)

const (
	// DataPrefix is the literal each payload-carrying frame line starts with.
	DataPrefix = "data:"
	// StreamSentinel is the payload meaning "nothing to decode, keep reading".
	StreamSentinel = "[DONE]"
)

// Decode parses one frame into a typed event. It returns (nil, false) for
// frames that carry nothing: empty frames, frames without the data prefix,
// the termination sentinel, malformed JSON, and payloads with a missing or
// unrecognized type. None of these terminate the stream; producers are free
// to ship event types this client does not know yet.
func Decode(frame string) (Event, bool) {
	payload, ok := dataPayload(frame)
	if !ok || payload == "" || payload == StreamSentinel {
		return nil, false
	}

	var raw struct {
		Type                 string          `json:"type"`
		Text                 string          `json:"text"`
		Tool                 string          `json:"tool"`
		Status               string          `json:"status"`
		Output               json.RawMessage `json:"output"`
		Citations            []string        `json:"citations"`
		TxHash               string          `json:"txHash"`
		ImageURL             string          `json:"imageUrl"`
		Prompt               string          `json:"prompt"`
		MIMEType             string          `json:"mimeType"`
		Message              string          `json:"message"`
		RequiresConfirmation bool            `json:"requiresConfirmation"`
		ConfirmationQuestion string          `json:"confirmationQuestion"`
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, false
	}

	switch raw.Type {
	case "thinking":
		return Thinking{}, true
	case "thinking_delta":
		return ThinkingDelta{Text: raw.Text}, true
	case "tool_call":
		return ToolCall{Tool: raw.Tool}, true
	case "tool_progress":
		return ToolProgress{Tool: raw.Tool, Status: raw.Status}, true
	case "tool_result":
		res := ToolResult{
			Tool:      raw.Tool,
			Output:    rawOutputText(raw.Output),
			Citations: raw.Citations,
			TxHash:    raw.TxHash,
			ImageURL:  raw.ImageURL,
		}
		mergeOutputArtifacts(&res, raw.Output)
		return res, true
	case "tool_error":
		return ToolError{Tool: raw.Tool}, true
	case "tx_message":
		return TxMessage{TxHash: raw.TxHash}, true
	case "ask_start":
		return AskStart{}, true
	case "ask_retract":
		return AskRetract{}, true
	case "ask_delta":
		return AskDelta{Text: raw.Text}, true
	case "ask":
		return Ask{
			Message:              raw.Message,
			RequiresConfirmation: raw.RequiresConfirmation,
			ConfirmationQuestion: raw.ConfirmationQuestion,
		}, true
	case "generated_image":
		return GeneratedImage{ImageURL: raw.ImageURL, Prompt: raw.Prompt, MIMEType: raw.MIMEType}, true
	case "heartbeat":
		return Heartbeat{}, true
	case "done":
		return Done{}, true
	case "final":
		return Final{Message: raw.Message}, true
	case "error":
		return ErrorEvent{Message: raw.Message}, true
	default:
		return nil, false
	}
}

// dataPayload joins the payloads of every data line in the frame. Frames may
// span multiple lines; only lines carrying the data prefix count.
func dataPayload(frame string) (string, bool) {
	var parts []string
	for _, line := range strings.Split(frame, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !strings.HasPrefix(line, DataPrefix) {
			continue
		}
		parts = append(parts, strings.TrimSpace(strings.TrimPrefix(line, DataPrefix)))
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\n"), true
}

// rawOutputText renders a tool_result output payload as text. String outputs
// come through unquoted; structured outputs keep their JSON form.
func rawOutputText(output json.RawMessage) string {
	if len(output) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(output, &s); err == nil {
		return s
	}
	return string(output)
}

// mergeOutputArtifacts lifts side payloads nested inside a structured tool
// output into the event, unless the same field was already set top-level.
func mergeOutputArtifacts(res *ToolResult, output json.RawMessage) {
	if len(output) == 0 {
		return
	}
	var nested struct {
		Citations []string `json:"citations"`
		TxHash    string   `json:"txHash"`
		ImageURL  string   `json:"imageUrl"`
	}
	if err := json.Unmarshal(output, &nested); err != nil {
		return
	}
	if len(res.Citations) == 0 {
		res.Citations = nested.Citations
	}
	if res.TxHash == "" {
		res.TxHash = nested.TxHash
	}
	if res.ImageURL == "" {
		res.ImageURL = nested.ImageURL
	}
}
