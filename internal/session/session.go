// Package session drives one chat session end to end: thread creation,
// the one-time greeting, streamed assistant output, and the
// requires_action round trip through the tool-call dispatcher.
//
// A session is event-driven and single-threaded: it reacts to one
// stream event or one network response at a time, and never has more
// than one active run per thread.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/lifeyhq/lifey-core/internal/assistant"
	"github.com/lifeyhq/lifey-core/internal/models"
	"github.com/lifeyhq/lifey-core/pkg/logger"
)

// Role classifies a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleCode      Role = "code"
)

// Message is one transcript entry.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// ErrInputLocked is returned when a message is sent while a tool-call
// resolution is still in flight.
var ErrInputLocked = errors.New("input is locked while a run is in flight")

// Streamer is the slice of the assistant client the session needs.
type Streamer interface {
	CreateThread(ctx context.Context) (*models.Thread, error)
	CreateMessage(ctx context.Context, threadID, content string) error
	StreamRun(ctx context.Context, threadID string) (*assistant.RunStream, error)
}

// OutputSubmitter submits resolved tool outputs and waits for the run
// to settle.
type OutputSubmitter interface {
	Submit(ctx context.Context, threadID, runID string, outputs []models.ToolOutput) (*models.Run, error)
}

// ToolDispatcher resolves pending tool calls into outputs.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, toolCalls []models.ToolCall) ([]models.ToolOutput, error)
}

// Session holds the explicit per-session state. The one-shot guards are
// plain fields rather than closure state so the lifecycle is testable.
type Session struct {
	api        Streamer
	actions    OutputSubmitter
	dispatcher ToolDispatcher

	threadID      string
	runID         string
	threadCreated bool
	greetingSent  bool
	inputLocked   bool
	lastErr       string
	messages      []Message

	submitRetries int
	submitBackoff time.Duration

	log *zap.Logger
}

// New creates a session. submitRetries and submitBackoff control the
// bounded retry around tool-output submission (3 attempts with
// attempt×2s backoff in production).
func New(api Streamer, actions OutputSubmitter, dispatcher ToolDispatcher, submitRetries int, submitBackoff time.Duration) *Session {
	if submitRetries <= 0 {
		submitRetries = 3
	}
	if submitBackoff <= 0 {
		submitBackoff = 2 * time.Second
	}
	return &Session{
		api:           api,
		actions:       actions,
		dispatcher:    dispatcher,
		submitRetries: submitRetries,
		submitBackoff: submitBackoff,
		log:           logger.Named("session"),
	}
}

// Start creates the thread and sends the synthetic greeting. Both are
// one-shot: calling Start again is a no-op for whichever step already
// ran.
func (s *Session) Start(ctx context.Context, firstName string) error {
	if !s.threadCreated {
		thread, err := s.api.CreateThread(ctx)
		if err != nil {
			return fmt.Errorf("failed to create thread: %w", err)
		}
		s.threadCreated = true
		s.threadID = thread.ID
		s.log.Info("thread created", zap.String("thread_id", thread.ID))
	}

	if !s.greetingSent {
		s.greetingSent = true
		greeting := "hey lifey!"
		if firstName != "" {
			greeting += " my name is " + firstName
		}
		if err := s.sendAndStream(ctx, greeting); err != nil {
			return err
		}
	}

	return nil
}

// SendMessage sends a user message and consumes the resulting stream.
// It fails fast when a previous run is still resolving tool calls.
func (s *Session) SendMessage(ctx context.Context, text string) error {
	if s.threadID == "" {
		return errors.New("session has no thread")
	}
	if s.inputLocked {
		return ErrInputLocked
	}

	s.messages = append(s.messages, Message{Role: RoleUser, Text: text})
	return s.sendAndStream(ctx, text)
}

// sendAndStream posts the message, opens the run stream and drives it
// to the end. Input is re-enabled on every exit path.
func (s *Session) sendAndStream(ctx context.Context, text string) error {
	s.inputLocked = true

	if err := s.api.CreateMessage(ctx, s.threadID, text); err != nil {
		s.inputLocked = false
		return fmt.Errorf("failed to send message: %w", err)
	}

	stream, err := s.api.StreamRun(ctx, s.threadID)
	if err != nil {
		s.inputLocked = false
		return fmt.Errorf("failed to open run stream: %w", err)
	}
	defer stream.Close()

	return s.consume(ctx, stream)
}

// consume reacts to stream events one at a time until the stream ends.
func (s *Session) consume(ctx context.Context, stream *assistant.RunStream) error {
	for {
		ev, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Stream ended; nothing more is coming, so the input
				// lock must not outlive it.
				s.inputLocked = false
				return nil
			}
			s.inputLocked = false
			s.lastErr = err.Error()
			return fmt.Errorf("stream read failed: %w", err)
		}

		switch ev.Event {
		case models.EventMessageDelta:
			s.handleMessageDelta(ev)
		case models.EventRunStepDelta:
			s.handleRunStepDelta(ev)
		case models.EventRunRequiresAction:
			s.handleRequiresAction(ctx, ev)
		case models.EventRunCompleted:
			s.inputLocked = false
		case models.EventRunFailed:
			s.inputLocked = false
			var run models.Run
			if err := ev.UnmarshalData(&run); err == nil && run.LastError != nil {
				s.lastErr = run.LastError.Message
			} else {
				s.lastErr = "run failed"
			}
		case models.EventDone:
			s.inputLocked = false
			return nil
		}
	}
}

// handleMessageDelta appends text deltas to the current assistant
// message and expands image-file references into file links.
func (s *Session) handleMessageDelta(ev *models.StreamEvent) {
	var delta models.MessageDelta
	if err := ev.UnmarshalData(&delta); err != nil {
		s.log.Warn("failed to parse message delta", zap.Error(err))
		return
	}

	for _, content := range delta.Delta.Content {
		switch content.Type {
		case "text":
			if content.Text != nil && content.Text.Value != "" {
				s.appendDelta(RoleAssistant, content.Text.Value)
			}
		case "image_file":
			if content.ImageFile != nil {
				s.appendDelta(RoleAssistant, fmt.Sprintf("\n![%s](/api/files/%s)\n", content.ImageFile.FileID, content.ImageFile.FileID))
			}
		}
	}
}

// handleRunStepDelta appends code-interpreter input to a code message.
func (s *Session) handleRunStepDelta(ev *models.StreamEvent) {
	var delta models.RunStepDelta
	if err := ev.UnmarshalData(&delta); err != nil {
		s.log.Warn("failed to parse run step delta", zap.Error(err))
		return
	}

	for _, tc := range delta.Delta.StepDetails.ToolCalls {
		if tc.Type != "code_interpreter" || tc.CodeInterpreter == nil {
			continue
		}
		if tc.CodeInterpreter.Input != "" {
			s.appendDelta(RoleCode, tc.CodeInterpreter.Input)
		}
	}
}

// handleRequiresAction resolves the run's tool calls and submits the
// outputs with bounded retry. Input is unlocked on every path out.
func (s *Session) handleRequiresAction(ctx context.Context, ev *models.StreamEvent) {
	var run models.Run
	if err := ev.UnmarshalData(&run); err != nil {
		s.log.Error("failed to parse requires_action event", zap.Error(err))
		s.lastErr = "malformed requires_action event"
		s.inputLocked = false
		return
	}

	s.runID = run.ID
	s.inputLocked = true

	if run.RequiredAction == nil || run.RequiredAction.SubmitToolOutputs == nil {
		s.log.Error("requires_action run carries no tool calls", zap.String("run_id", run.ID))
		s.lastErr = "requires_action run carries no tool calls"
		s.inputLocked = false
		return
	}

	toolCalls := run.RequiredAction.SubmitToolOutputs.ToolCalls
	outputs, err := s.dispatcher.Dispatch(ctx, toolCalls)
	if err != nil {
		// Unknown tool: a contract mismatch, surfaced but never a
		// permanent input lock.
		s.log.Error("tool dispatch failed", zap.Error(err), zap.String("run_id", run.ID))
		s.lastErr = err.Error()
		s.inputLocked = false
		return
	}

	s.submitWithRetry(ctx, run.ID, outputs)
}

// submitWithRetry drives the submission retry loop: up to submitRetries
// attempts with linearly increasing backoff between them. Whatever the
// outcome, input is re-enabled.
func (s *Session) submitWithRetry(ctx context.Context, runID string, outputs []models.ToolOutput) {
	defer func() { s.inputLocked = false }()

	var lastErr error
	for attempt := 1; attempt <= s.submitRetries; attempt++ {
		run, err := s.actions.Submit(ctx, s.threadID, runID, outputs)
		if err == nil {
			s.log.Info("tool outputs submitted",
				zap.String("run_id", runID),
				zap.Int("attempt", attempt),
				zap.String("status", string(run.Status)),
			)
			s.lastErr = ""
			return
		}

		lastErr = err
		s.log.Warn("tool output submission failed",
			zap.Error(err),
			zap.String("run_id", runID),
			zap.Int("attempt", attempt),
		)

		if attempt == s.submitRetries {
			break
		}

		select {
		case <-ctx.Done():
			s.lastErr = ctx.Err().Error()
			return
		case <-time.After(time.Duration(attempt) * s.submitBackoff):
		}
	}

	s.lastErr = fmt.Sprintf("failed to submit tool outputs after %d attempts: %v", s.submitRetries, lastErr)
}

// ThreadID returns the session's thread id, empty before Start.
func (s *Session) ThreadID() string { return s.threadID }

// RunID returns the most recent requires_action run id.
func (s *Session) RunID() string { return s.runID }

// InputLocked reports whether the session is mid-resolution.
func (s *Session) InputLocked() bool { return s.inputLocked }

// LastError returns the most recent surfaced error, empty when clear.
func (s *Session) LastError() string { return s.lastErr }

// Messages returns the transcript so far.
func (s *Session) Messages() []Message { return s.messages }

// appendDelta appends text to the last message when it has the same
// role, otherwise starts a new message.
func (s *Session) appendDelta(role Role, text string) {
	if n := len(s.messages); n > 0 && s.messages[n-1].Role == role {
		s.messages[n-1].Text += text
		return
	}
	s.messages = append(s.messages, Message{Role: role, Text: text})
}
