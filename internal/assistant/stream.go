package assistant

import (
	"bufio"
	"io"
	"strings"

	"github.com/lifeyhq/lifey-core/internal/models"
)

// RunStream reads server-sent events off a streamed run response body.
// Events come as "event:" / "data:" line pairs terminated by a blank
// line; the stream ends with event "done" / data "[DONE]".
type RunStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	event   string
}

// NewRunStream wraps a response body in an event reader.
func NewRunStream(body io.ReadCloser) *RunStream {
	scanner := bufio.NewScanner(body)
	// Increase buffer size for large event payloads
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &RunStream{
		body:    body,
		scanner: scanner,
	}
}

// Next returns the next event from the stream, or io.EOF when the
// stream is exhausted.
func (s *RunStream) Next() (*models.StreamEvent, error) {
	for s.scanner.Scan() {
		line := s.scanner.Text()

		if strings.HasPrefix(line, "event:") {
			s.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}

		// Support both "data: " (standard) and "data:" prefixes
		var data string
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
		} else if strings.HasPrefix(line, "data:") {
			data = strings.TrimPrefix(line, "data:")
		} else {
			continue
		}

		event := s.event
		s.event = ""

		if data == "[DONE]" {
			return &models.StreamEvent{Event: models.EventDone}, nil
		}
		if event == "" {
			event = "message"
		}
		return &models.StreamEvent{Event: event, Data: []byte(data)}, nil
	}

	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Close releases the underlying response body.
func (s *RunStream) Close() error {
	return s.body.Close()
}
