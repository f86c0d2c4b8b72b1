package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifeyhq/lifey-core/internal/assistant"
	"github.com/lifeyhq/lifey-core/internal/models"
)

type fakeAPI struct {
	threadsCreated int
	messagesSent   []string
	streams        []string
	streamIdx      int
}

func (f *fakeAPI) CreateThread(ctx context.Context) (*models.Thread, error) {
	f.threadsCreated++
	return &models.Thread{ID: "thread_1"}, nil
}

func (f *fakeAPI) CreateMessage(ctx context.Context, threadID, content string) error {
	f.messagesSent = append(f.messagesSent, content)
	return nil
}

func (f *fakeAPI) StreamRun(ctx context.Context, threadID string) (*assistant.RunStream, error) {
	body := ""
	if f.streamIdx < len(f.streams) {
		body = f.streams[f.streamIdx]
		f.streamIdx++
	}
	return assistant.NewRunStream(io.NopCloser(strings.NewReader(body))), nil
}

type fakeSubmitter struct {
	failures int
	calls    int
	outputs  []models.ToolOutput
}

func (f *fakeSubmitter) Submit(ctx context.Context, threadID, runID string, outputs []models.ToolOutput) (*models.Run, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("transient submission failure")
	}
	f.outputs = outputs
	return &models.Run{ID: runID, ThreadID: threadID, Status: models.RunCompleted}, nil
}

type fakeDispatcher struct {
	calls [][]models.ToolCall
	err   error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, toolCalls []models.ToolCall) ([]models.ToolOutput, error) {
	f.calls = append(f.calls, toolCalls)
	if f.err != nil {
		return nil, f.err
	}
	outputs := make([]models.ToolOutput, len(toolCalls))
	for i, tc := range toolCalls {
		outputs[i] = models.ToolOutput{ToolCallID: tc.ID, Output: "{}"}
	}
	return outputs, nil
}

func sse(pairs ...[2]string) string {
	var b strings.Builder
	for _, p := range pairs {
		fmt.Fprintf(&b, "event: %s\ndata: %s\n\n", p[0], p[1])
	}
	b.WriteString("event: done\ndata: [DONE]\n\n")
	return b.String()
}

func completedStream() string {
	return sse([2]string{models.EventRunCompleted, `{"id":"run_1","status":"completed"}`})
}

func requiresActionStream(runID string, toolCalls []models.ToolCall) string {
	run := models.Run{
		ID:     runID,
		Status: models.RunRequiresAction,
		RequiredAction: &models.RequiredAction{
			Type:              "submit_tool_outputs",
			SubmitToolOutputs: &models.SubmitToolOutputs{ToolCalls: toolCalls},
		},
	}
	data, _ := json.Marshal(run)
	return sse([2]string{models.EventRunRequiresAction, string(data)})
}

func newTestSession(api *fakeAPI, actions *fakeSubmitter, d *fakeDispatcher) *Session {
	return New(api, actions, d, 3, time.Millisecond)
}

func TestStartOneShotGuards(t *testing.T) {
	api := &fakeAPI{streams: []string{completedStream(), completedStream()}}
	s := newTestSession(api, &fakeSubmitter{}, &fakeDispatcher{})

	require.NoError(t, s.Start(context.Background(), "Sam"))
	require.NoError(t, s.Start(context.Background(), "Sam"))

	assert.Equal(t, 1, api.threadsCreated, "thread must be created exactly once")
	require.Len(t, api.messagesSent, 1, "greeting must be sent exactly once")
	assert.Equal(t, "hey lifey! my name is Sam", api.messagesSent[0])
	assert.Equal(t, "thread_1", s.ThreadID())
	assert.False(t, s.InputLocked())
}

func TestStartGreetingWithoutName(t *testing.T) {
	api := &fakeAPI{streams: []string{completedStream()}}
	s := newTestSession(api, &fakeSubmitter{}, &fakeDispatcher{})

	require.NoError(t, s.Start(context.Background(), ""))
	require.Len(t, api.messagesSent, 1)
	assert.Equal(t, "hey lifey!", api.messagesSent[0])
}

func TestTextDeltasAccumulate(t *testing.T) {
	stream := sse(
		[2]string{models.EventMessageDelta, `{"delta":{"content":[{"index":0,"type":"text","text":{"value":"Hel"}}]}}`},
		[2]string{models.EventMessageDelta, `{"delta":{"content":[{"index":0,"type":"text","text":{"value":"lo!"}}]}}`},
		[2]string{models.EventRunCompleted, `{"id":"run_1","status":"completed"}`},
	)
	api := &fakeAPI{streams: []string{completedStream(), stream}}
	s := newTestSession(api, &fakeSubmitter{}, &fakeDispatcher{})

	require.NoError(t, s.Start(context.Background(), ""))
	require.NoError(t, s.SendMessage(context.Background(), "hi there"))

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "hi there", msgs[0].Text)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hello!", msgs[1].Text)
}

func TestCodeDeltasBecomeCodeMessage(t *testing.T) {
	stream := sse(
		[2]string{models.EventRunStepDelta, `{"delta":{"step_details":{"type":"tool_calls","tool_calls":[{"index":0,"type":"code_interpreter","code_interpreter":{"input":"print(1)"}}]}}}`},
		[2]string{models.EventRunCompleted, `{"id":"run_1","status":"completed"}`},
	)
	api := &fakeAPI{streams: []string{completedStream(), stream}}
	s := newTestSession(api, &fakeSubmitter{}, &fakeDispatcher{})

	require.NoError(t, s.Start(context.Background(), ""))
	require.NoError(t, s.SendMessage(context.Background(), "run some code"))

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleCode, msgs[1].Role)
	assert.Equal(t, "print(1)", msgs[1].Text)
}

func TestRequiresActionRoundTrip(t *testing.T) {
	toolCalls := []models.ToolCall{
		{ID: "call_1", Type: "function", Function: models.FunctionCall{Name: "create-task", Arguments: `{"title":"x","description":"y"}`}},
	}
	api := &fakeAPI{streams: []string{completedStream(), requiresActionStream("run_9", toolCalls)}}
	submitter := &fakeSubmitter{}
	dispatcher := &fakeDispatcher{}
	s := newTestSession(api, submitter, dispatcher)

	require.NoError(t, s.Start(context.Background(), ""))
	require.NoError(t, s.SendMessage(context.Background(), "make me a task"))

	require.Len(t, dispatcher.calls, 1)
	assert.Equal(t, "call_1", dispatcher.calls[0][0].ID)

	assert.Equal(t, 1, submitter.calls)
	require.Len(t, submitter.outputs, 1)
	assert.Equal(t, "call_1", submitter.outputs[0].ToolCallID)

	assert.Equal(t, "run_9", s.RunID())
	assert.False(t, s.InputLocked())
	assert.Empty(t, s.LastError())
}

func TestSubmissionRetriesThenSucceeds(t *testing.T) {
	toolCalls := []models.ToolCall{
		{ID: "call_1", Type: "function", Function: models.FunctionCall{Name: "create-task", Arguments: `{}`}},
	}
	api := &fakeAPI{streams: []string{completedStream(), requiresActionStream("run_9", toolCalls)}}
	submitter := &fakeSubmitter{failures: 2}
	s := newTestSession(api, submitter, &fakeDispatcher{})

	require.NoError(t, s.Start(context.Background(), ""))
	require.NoError(t, s.SendMessage(context.Background(), "make me a task"))

	// Fails twice, succeeds on the third attempt: no surfaced error.
	assert.Equal(t, 3, submitter.calls)
	assert.Empty(t, s.LastError())
	assert.False(t, s.InputLocked())
}

func TestSubmissionExhaustedSurfacesErrorAndUnlocks(t *testing.T) {
	toolCalls := []models.ToolCall{
		{ID: "call_1", Type: "function", Function: models.FunctionCall{Name: "create-task", Arguments: `{}`}},
	}
	api := &fakeAPI{streams: []string{completedStream(), requiresActionStream("run_9", toolCalls)}}
	submitter := &fakeSubmitter{failures: 10}
	s := newTestSession(api, submitter, &fakeDispatcher{})

	require.NoError(t, s.Start(context.Background(), ""))
	require.NoError(t, s.SendMessage(context.Background(), "make me a task"))

	assert.Equal(t, 3, submitter.calls)
	assert.Contains(t, s.LastError(), "failed to submit tool outputs")
	assert.False(t, s.InputLocked(), "input must never stay locked on failure")
}

func TestDispatchFailureUnlocksInput(t *testing.T) {
	toolCalls := []models.ToolCall{
		{ID: "call_1", Type: "function", Function: models.FunctionCall{Name: "unknown_tool", Arguments: `{}`}},
	}
	api := &fakeAPI{streams: []string{completedStream(), requiresActionStream("run_9", toolCalls)}}
	submitter := &fakeSubmitter{}
	s := newTestSession(api, submitter, &fakeDispatcher{err: errors.New("unknown tool")})

	require.NoError(t, s.Start(context.Background(), ""))
	require.NoError(t, s.SendMessage(context.Background(), "do something odd"))

	assert.Equal(t, 0, submitter.calls, "no submission after a failed dispatch")
	assert.Contains(t, s.LastError(), "unknown tool")
	assert.False(t, s.InputLocked())
}

func TestSendMessageWithoutThread(t *testing.T) {
	s := newTestSession(&fakeAPI{}, &fakeSubmitter{}, &fakeDispatcher{})

	err := s.SendMessage(context.Background(), "hello")
	assert.Error(t, err)
}
