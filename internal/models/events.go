package models

import "encoding/json"

// ==================== Assistant Stream Events ====================

// Event names emitted on an assistant run stream. Only the events the
// session controller reacts to are named; everything else passes
// through untouched.
const (
	EventMessageDelta      = "thread.message.delta"
	EventRunStepDelta      = "thread.run.step.delta"
	EventMessageImageDone  = "thread.message.image.done"
	EventRunRequiresAction = "thread.run.requires_action"
	EventRunCompleted      = "thread.run.completed"
	EventRunFailed         = "thread.run.failed"
	EventDone              = "done"
)

// StreamEvent is one server-sent event from the run stream: an event
// name plus its raw JSON payload.
type StreamEvent struct {
	Event string
	Data  json.RawMessage
}

// UnmarshalData decodes the event payload into out.
func (e *StreamEvent) UnmarshalData(out interface{}) error {
	return json.Unmarshal(e.Data, out)
}

// MessageDelta is the payload of thread.message.delta.
type MessageDelta struct {
	ID    string `json:"id"`
	Delta struct {
		Content []MessageDeltaContent `json:"content"`
	} `json:"delta"`
}

// MessageDeltaContent is one content block within a message delta.
type MessageDeltaContent struct {
	Index int    `json:"index"`
	Type  string `json:"type"` // "text", "image_file"
	Text  *struct {
		Value string `json:"value"`
	} `json:"text,omitempty"`
	ImageFile *struct {
		FileID string `json:"file_id"`
	} `json:"image_file,omitempty"`
}

// RunStepDelta is the payload of thread.run.step.delta. Only
// code_interpreter input fragments are consumed locally.
type RunStepDelta struct {
	ID    string `json:"id"`
	Delta struct {
		StepDetails struct {
			Type      string             `json:"type"` // "tool_calls"
			ToolCalls []RunStepDeltaTool `json:"tool_calls,omitempty"`
		} `json:"step_details"`
	} `json:"delta"`
}

// RunStepDeltaTool is one tool-call fragment in a run step delta.
type RunStepDeltaTool struct {
	Index           int    `json:"index"`
	Type            string `json:"type"` // "code_interpreter", "function"
	CodeInterpreter *struct {
		Input string `json:"input"`
	} `json:"code_interpreter,omitempty"`
}
