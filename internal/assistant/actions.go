package assistant

import (
	"context"

	"go.uber.org/zap"

	"github.com/lifeyhq/lifey-core/internal/models"
	"github.com/lifeyhq/lifey-core/pkg/logger"
)

// Actions implements the tool-output submission flow shared by the
// HTTP actions route and the session controller: check the run state,
// submit the outputs, wait for the run to settle.
type Actions struct {
	client *Client
	poller *Poller
}

// NewActions wires the submission flow over a client and poller.
func NewActions(client *Client, poller *Poller) *Actions {
	return &Actions{client: client, poller: poller}
}

// Submit hands the tool outputs to the run and waits for completion.
// A run already observed in a terminal state is returned as-is, with
// no submission attempted.
func (a *Actions) Submit(ctx context.Context, threadID, runID string, outputs []models.ToolOutput) (*models.Run, error) {
	log := logger.WithTraceID(logger.TraceIDFromContext(ctx))

	run, err := a.client.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return nil, err
	}

	log.Info("run status before submission",
		zap.String("run_id", runID),
		zap.String("status", string(run.Status)),
	)

	if run.Status.Terminal() {
		log.Info("run already in final state, not submitting tool outputs",
			zap.String("run_id", runID),
			zap.String("status", string(run.Status)),
		)
		return run, nil
	}

	run, err = a.client.SubmitToolOutputs(ctx, threadID, runID, outputs)
	if err != nil {
		return nil, err
	}

	return a.poller.AwaitRun(ctx, threadID, run.ID)
}
