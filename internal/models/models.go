package models

// ==================== Thread / Run Models ====================

// Thread represents a conversation context owned by the assistant service.
// It is only ever referenced by id locally, never mutated.
type Thread struct {
	ID        string `json:"id"`
	Object    string `json:"object,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"`
}

// RunStatus is the server-owned status of an assistant run. The local
// system only observes it; the closed set below gives exhaustive-match
// safety in the poller and dispatcher.
type RunStatus string

const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunRequiresAction RunStatus = "requires_action"
	RunCompleted      RunStatus = "completed"
	RunFailed         RunStatus = "failed"
	RunCancelled      RunStatus = "cancelled"
	RunExpired        RunStatus = "expired"
)

// Terminal reports whether the run has reached a state the remote
// service will never leave.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled, RunExpired:
		return true
	}
	return false
}

// NeedsAction reports whether the run is waiting on tool outputs.
func (s RunStatus) NeedsAction() bool {
	return s == RunRequiresAction
}

// Run represents one assistant turn tied to a thread.
type Run struct {
	ID             string          `json:"id"`
	Object         string          `json:"object,omitempty"`
	ThreadID       string          `json:"thread_id"`
	Status         RunStatus       `json:"status"`
	RequiredAction *RequiredAction `json:"required_action,omitempty"`
	LastError      *RunError       `json:"last_error,omitempty"`
	CreatedAt      int64           `json:"created_at,omitempty"`
}

// RunError is the failure detail the service attaches to a failed run.
type RunError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// RequiredAction carries the tool calls a run is blocked on.
type RequiredAction struct {
	Type              string             `json:"type"` // "submit_tool_outputs"
	SubmitToolOutputs *SubmitToolOutputs `json:"submit_tool_outputs,omitempty"`
}

// SubmitToolOutputs is the required-action payload listing pending calls.
type SubmitToolOutputs struct {
	ToolCalls []ToolCall `json:"tool_calls"`
}

// ToolCall is one pending function call within a required action.
// It is consumed exactly once, producing exactly one ToolOutput.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // "function"
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the function name and JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolOutput pairs a tool call id with its string output. The output is
// JSON-serialized when the handler produced a structured value.
type ToolOutput struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

// ==================== Request Bodies ====================

// MessageRequest adds a message to a thread.
type MessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RunRequest starts a run on a thread.
type RunRequest struct {
	AssistantID string `json:"assistant_id"`
	Stream      bool   `json:"stream,omitempty"`
}

// ToolOutputsRequest submits the full set of outputs for a run. Partial
// submission is not supported by the remote API and is not attempted.
type ToolOutputsRequest struct {
	ToolOutputs []ToolOutput `json:"tool_outputs"`
}

// ActionRequest is the body of POST /threads/{threadId}/actions. The
// original client sent the outputs under either key, so both are
// accepted.
type ActionRequest struct {
	RunID           string       `json:"runId"`
	ToolOutputs     []ToolOutput `json:"toolOutputs,omitempty"`
	ToolCallOutputs []ToolOutput `json:"toolCallOutputs,omitempty"`
}

// Outputs returns whichever output list the client supplied.
func (r *ActionRequest) Outputs() []ToolOutput {
	if len(r.ToolOutputs) > 0 {
		return r.ToolOutputs
	}
	return r.ToolCallOutputs
}

// ==================== Task Model ====================

// Task is the record created by the create-task tool.
type Task struct {
	ID          string `json:"id"`
	CreatedAt   int64  `json:"created_at"`
	Title       string `json:"task_name"`
	Description string `json:"task_description"`
}

// ==================== Error Envelope ====================

// ErrorResponse is the JSON error envelope returned by the HTTP surface.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one error.
type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
