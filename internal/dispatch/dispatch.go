// Package dispatch routes the pending tool calls of a requires_action
// run to their handlers and collects one output per call.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lifeyhq/lifey-core/internal/models"
	"github.com/lifeyhq/lifey-core/internal/search"
	"github.com/lifeyhq/lifey-core/pkg/logger"
)

// Tool names the assistant is configured with.
const (
	ToolSearch     = "search_google_api"
	ToolCreateTask = "create-task"
)

// ErrUnknownTool means the assistant requested a tool this code does
// not implement: a contract mismatch between assistant configuration
// and this binary, not a transient condition. It aborts the whole
// dispatch.
var ErrUnknownTool = errors.New("unknown tool")

// Searcher is the slice of the search service the dispatcher needs.
type Searcher interface {
	SelectEngine(query string) (search.Selection, error)
	SelectionFor(engine, query string) search.Selection
	Execute(ctx context.Context, sel search.Selection) (json.RawMessage, error)
}

// TaskCreator persists tasks created through the create-task tool.
type TaskCreator interface {
	Create(title, description string) (*models.Task, error)
}

// Dispatcher resolves tool calls into tool outputs.
type Dispatcher struct {
	search Searcher
	tasks  TaskCreator
}

// NewDispatcher creates a dispatcher over the given collaborators.
func NewDispatcher(searcher Searcher, tasks TaskCreator) *Dispatcher {
	return &Dispatcher{search: searcher, tasks: tasks}
}

// Dispatch resolves every tool call to exactly one output, in input
// order. Handler failures are encoded into the output string rather
// than returned: the remote run can only be unblocked by some output
// arriving for every call. Only an unrecognized tool name fails the
// whole dispatch.
func (d *Dispatcher) Dispatch(ctx context.Context, toolCalls []models.ToolCall) ([]models.ToolOutput, error) {
	log := logger.WithTraceID(logger.TraceIDFromContext(ctx))

	outputs := make([]models.ToolOutput, 0, len(toolCalls))
	for _, tc := range toolCalls {
		log.Info("dispatching tool call",
			zap.String("tool_call_id", tc.ID),
			zap.String("function", tc.Function.Name),
		)

		var output string
		switch tc.Function.Name {
		case ToolSearch:
			output = d.handleSearch(ctx, tc.Function.Arguments, log)
		case ToolCreateTask:
			output = d.handleCreateTask(tc.Function.Arguments, log)
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownTool, tc.Function.Name)
		}

		outputs = append(outputs, models.ToolOutput{ToolCallID: tc.ID, Output: output})
	}

	return outputs, nil
}

// searchArgs are the arguments of the search tool.
type searchArgs struct {
	Query  string `json:"query"`
	Engine string `json:"engine,omitempty"`
}

// searchOutput is the tool output for a successful search.
type searchOutput struct {
	Engine string                 `json:"engine"`
	Query  string                 `json:"query"`
	Items  []models.SearchItem    `json:"items"`
	Meta   map[string]interface{} `json:"meta"`
}

// handleSearch runs the full chain: parse args, select engine, call the
// provider, normalize, serialize. Every failure becomes a structured
// error output so the run never stays stuck in requires_action.
func (d *Dispatcher) handleSearch(ctx context.Context, arguments string, log *zap.Logger) string {
	var args searchArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		log.Error("failed to parse search arguments", zap.Error(err))
		return errorOutput("invalid search arguments: "+err.Error(), "", "")
	}

	// Capture engine and query before the provider call so the error
	// output always has them, whichever step fails.
	engine := args.Engine
	query := args.Query

	var sel search.Selection
	if engine != "" {
		sel = d.search.SelectionFor(engine, query)
	} else {
		var err error
		sel, err = d.search.SelectEngine(query)
		if err != nil {
			log.Error("engine selection failed", zap.Error(err), zap.String("query", query))
			return errorOutput(err.Error(), engine, query)
		}
		engine = sel.Engine
	}

	raw, err := d.search.Execute(ctx, sel)
	if err != nil {
		log.Error("search request failed",
			zap.Error(err),
			zap.String("engine", engine),
			zap.String("query", query),
		)
		return errorOutput(err.Error(), engine, query)
	}

	normalized := search.Normalize(engine, raw)

	log.Info("search completed",
		zap.String("engine", engine),
		zap.String("query", query),
		zap.Int("result_count", len(normalized.Items)),
	)

	out, err := json.Marshal(searchOutput{
		Engine: engine,
		Query:  query,
		Items:  normalized.Items,
		Meta:   normalized.Meta,
	})
	if err != nil {
		return errorOutput("failed to serialize search results: "+err.Error(), engine, query)
	}
	return string(out)
}

// taskArgs are the arguments of the create-task tool.
type taskArgs struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// handleCreateTask parses the arguments and persists the task. Failures
// are reported in the output, never as dispatch errors.
func (d *Dispatcher) handleCreateTask(arguments string, log *zap.Logger) string {
	var args taskArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		log.Error("failed to parse task arguments", zap.Error(err))
		return taskFailureOutput("invalid task arguments: " + err.Error())
	}

	task, err := d.tasks.Create(args.Title, args.Description)
	if err != nil {
		log.Error("failed to create task", zap.Error(err), zap.String("title", args.Title))
		return taskFailureOutput(err.Error())
	}

	log.Info("task created",
		zap.String("task_id", task.ID),
		zap.String("title", task.Title),
	)

	out, _ := json.Marshal(map[string]interface{}{
		"success": true,
		"taskId":  task.ID,
	})
	return string(out)
}

func taskFailureOutput(msg string) string {
	out, _ := json.Marshal(map[string]interface{}{
		"success": false,
		"error":   msg,
	})
	return string(out)
}

// errorOutput encodes a search failure as conversation data the
// assistant can see.
func errorOutput(msg, engine, query string) string {
	out, _ := json.Marshal(map[string]interface{}{
		"status":    "error",
		"error":     msg,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"engine":    engine,
		"query":     query,
	})
	return string(out)
}
