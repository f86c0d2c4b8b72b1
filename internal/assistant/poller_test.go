package assistant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifeyhq/lifey-core/internal/models"
)

// scriptedRuns replays a fixed status sequence, repeating the last
// status once the script is exhausted.
type scriptedRuns struct {
	statuses []models.RunStatus
	calls    int
	err      error
}

func (s *scriptedRuns) RetrieveRun(ctx context.Context, threadID, runID string) (*models.Run, error) {
	if s.err != nil {
		return nil, s.err
	}
	idx := s.calls
	if idx >= len(s.statuses) {
		idx = len(s.statuses) - 1
	}
	s.calls++
	return &models.Run{ID: runID, ThreadID: threadID, Status: s.statuses[idx]}, nil
}

func TestAwaitRunRequiresAction(t *testing.T) {
	runs := &scriptedRuns{statuses: []models.RunStatus{
		models.RunInProgress,
		models.RunInProgress,
		models.RunRequiresAction,
	}}
	p := NewPoller(runs, 30, 10*time.Millisecond)

	run, err := p.AwaitRun(context.Background(), "thread_1", "run_1")
	require.NoError(t, err)

	assert.Equal(t, models.RunRequiresAction, run.Status)
	assert.Equal(t, 3, runs.calls)
}

func TestAwaitRunImmediateTerminal(t *testing.T) {
	for _, status := range []models.RunStatus{
		models.RunCompleted, models.RunFailed, models.RunCancelled, models.RunExpired,
	} {
		t.Run(string(status), func(t *testing.T) {
			runs := &scriptedRuns{statuses: []models.RunStatus{status}}
			p := NewPoller(runs, 30, time.Second)

			start := time.Now()
			run, err := p.AwaitRun(context.Background(), "thread_1", "run_1")
			require.NoError(t, err)

			assert.Equal(t, status, run.Status)
			assert.Equal(t, 1, runs.calls)
			// A terminal first observation must not sleep at all.
			assert.Less(t, time.Since(start), 500*time.Millisecond)
		})
	}
}

func TestAwaitRunTimeout(t *testing.T) {
	runs := &scriptedRuns{statuses: []models.RunStatus{models.RunInProgress}}
	p := NewPoller(runs, 5, time.Millisecond)

	run, err := p.AwaitRun(context.Background(), "thread_1", "run_1")
	require.ErrorIs(t, err, ErrPollTimeout)

	// The last observed status is still returned with the error.
	require.NotNil(t, run)
	assert.Equal(t, models.RunInProgress, run.Status)
	assert.Equal(t, 5, runs.calls)
}

func TestAwaitRunRetrieveError(t *testing.T) {
	retrieveErr := errors.New("boom")
	runs := &scriptedRuns{err: retrieveErr}
	p := NewPoller(runs, 5, time.Millisecond)

	_, err := p.AwaitRun(context.Background(), "thread_1", "run_1")
	assert.ErrorIs(t, err, retrieveErr)
}

func TestAwaitRunContextCancelled(t *testing.T) {
	runs := &scriptedRuns{statuses: []models.RunStatus{models.RunQueued}}
	p := NewPoller(runs, 30, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := p.AwaitRun(ctx, "thread_1", "run_1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPollerDefaults(t *testing.T) {
	p := NewPoller(&scriptedRuns{}, 0, 0)
	assert.Equal(t, 30, p.maxAttempts)
	assert.Equal(t, time.Second, p.interval)
}
