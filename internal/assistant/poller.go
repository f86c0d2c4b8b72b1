package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lifeyhq/lifey-core/internal/models"
	"github.com/lifeyhq/lifey-core/pkg/logger"
)

// ErrPollTimeout means the poller gave up before the remote run reached
// a terminal state. It is distinct from a run whose status is "failed":
// a timeout is the caller giving up, not the remote system reporting
// failure.
var ErrPollTimeout = errors.New("run did not reach a terminal state within the polling ceiling")

// RunRetriever is the slice of the client the poller depends on.
type RunRetriever interface {
	RetrieveRun(ctx context.Context, threadID, runID string) (*models.Run, error)
}

// Poller waits for a run to leave its active states. The attempt
// ceiling keeps an embedding HTTP handler from hanging past its own
// upstream timeout.
type Poller struct {
	runs        RunRetriever
	maxAttempts int
	interval    time.Duration
}

// NewPoller creates a poller with the given ceiling and interval.
// Zero values fall back to 30 attempts at 1s.
func NewPoller(runs RunRetriever, maxAttempts int, interval time.Duration) *Poller {
	if maxAttempts <= 0 {
		maxAttempts = 30
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{runs: runs, maxAttempts: maxAttempts, interval: interval}
}

// AwaitRun polls the run until it is terminal or requires action.
// queued and in_progress keep the loop going; requires_action is
// terminal for this call (the caller must resolve tool calls);
// completed, failed, cancelled and expired are terminal. When the
// ceiling is reached the last observed run is returned together with
// ErrPollTimeout.
func (p *Poller) AwaitRun(ctx context.Context, threadID, runID string) (*models.Run, error) {
	log := logger.WithTraceID(logger.TraceIDFromContext(ctx))

	var run *models.Run
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		var err error
		run, err = p.runs.RetrieveRun(ctx, threadID, runID)
		if err != nil {
			return nil, err
		}

		log.Debug("run polled",
			zap.String("run_id", runID),
			zap.Int("attempt", attempt),
			zap.String("status", string(run.Status)),
		)

		if run.Status.Terminal() || run.Status.NeedsAction() {
			return run, nil
		}

		if attempt == p.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-time.After(p.interval):
		}
	}

	log.Warn("run polling ceiling reached",
		zap.String("run_id", runID),
		zap.Int("max_attempts", p.maxAttempts),
	)
	return run, fmt.Errorf("%w: last status %q after %d attempts", ErrPollTimeout, run.Status, p.maxAttempts)
}
