// Package handler exposes the HTTP surface: thread lifecycle, streamed
// chat runs with the tool-call round trip, direct search, and tasks.
package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lifeyhq/lifey-core/internal/assistant"
	"github.com/lifeyhq/lifey-core/internal/dispatch"
	"github.com/lifeyhq/lifey-core/internal/models"
	"github.com/lifeyhq/lifey-core/internal/search"
	"github.com/lifeyhq/lifey-core/internal/storage"
	"github.com/lifeyhq/lifey-core/pkg/logger"
)

// Handler routes all HTTP requests.
type Handler struct {
	assistant  *assistant.Client
	actions    *assistant.Actions
	search     *search.Service
	dispatcher *dispatch.Dispatcher
	tasks      *storage.TaskStore
}

// New creates the handler over its collaborators.
func New(client *assistant.Client, actions *assistant.Actions, searchSvc *search.Service, dispatcher *dispatch.Dispatcher, tasks *storage.TaskStore) *Handler {
	return &Handler{
		assistant:  client,
		actions:    actions,
		search:     searchSvc,
		dispatcher: dispatcher,
		tasks:      tasks,
	}
}

// ServeHTTP handles all HTTP requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	// Extract or generate trace ID
	traceID := extractTraceID(r)
	if traceID == "" {
		traceID = generateTraceID()
	}
	r = r.WithContext(logger.ContextWithTraceID(r.Context(), traceID))

	log := logger.WithTraceID(traceID)
	log.Info("request received",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("remote_addr", r.RemoteAddr),
	)

	w.Header().Set("X-Trace-ID", traceID)

	path := r.URL.Path
	switch {
	case path == "/health":
		h.handleHealth(w, r)
	case path == "/threads" && r.Method == http.MethodPost:
		h.handleCreateThread(w, r, log)
	case strings.HasPrefix(path, "/threads/") && strings.HasSuffix(path, "/messages") && r.Method == http.MethodPost:
		h.handleSendMessage(w, r, pathSegment(path, 1), log)
	case strings.HasPrefix(path, "/threads/") && strings.HasSuffix(path, "/actions") && r.Method == http.MethodPost:
		h.handleSubmitActions(w, r, pathSegment(path, 1), log)
	case path == "/search" && r.Method == http.MethodGet:
		h.handleSearch(w, r, log)
	case path == "/tasks" && r.Method == http.MethodPost:
		h.handleCreateTask(w, r, log)
	case path == "/tasks" && r.Method == http.MethodGet:
		h.handleListTasks(w, r, log)
	case strings.HasPrefix(path, "/tasks/") && r.Method == http.MethodGet:
		h.handleGetTask(w, r, pathSegment(path, 1), log)
	case strings.HasPrefix(path, "/tasks/") && r.Method == http.MethodDelete:
		h.handleDeleteTask(w, r, pathSegment(path, 1), log)
	default:
		h.handleError(w, http.StatusNotFound, "not_found", "Endpoint not found", log)
	}

	log.Info("request completed",
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
}

// handleHealth handles health check requests
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

// handleCreateThread creates a new conversation thread.
func (h *Handler) handleCreateThread(w http.ResponseWriter, r *http.Request, log *zap.Logger) {
	thread, err := h.assistant.CreateThread(r.Context())
	if err != nil {
		h.handleError(w, http.StatusBadGateway, "upstream_error", "Failed to create thread: "+err.Error(), log)
		return
	}

	log.Info("thread created", zap.String("thread_id", thread.ID))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"threadId": thread.ID})
}

// handleSendMessage posts a message to the thread, starts a streamed run
// and relays its events to the client as SSE. A requires_action event is
// resolved inline: the tool calls are dispatched and the outputs
// submitted before the relay continues.
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request, threadID string, log *zap.Logger) {
	if threadID == "" {
		h.handleError(w, http.StatusBadRequest, "invalid_request", "Thread id is required", log)
		return
	}

	var req models.MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleError(w, http.StatusBadRequest, "parse_error", "Failed to parse request: "+err.Error(), log)
		return
	}
	if req.Content == "" {
		h.handleError(w, http.StatusBadRequest, "invalid_request", "Message content is required", log)
		return
	}

	if err := h.assistant.CreateMessage(r.Context(), threadID, req.Content); err != nil {
		h.handleError(w, http.StatusBadGateway, "upstream_error", "Failed to send message: "+err.Error(), log)
		return
	}

	stream, err := h.assistant.StreamRun(r.Context(), threadID)
	if err != nil {
		h.handleError(w, http.StatusBadGateway, "upstream_error", "Failed to start run: "+err.Error(), log)
		return
	}
	defer stream.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.handleError(w, http.StatusInternalServerError, "streaming_error", "Streaming not supported", log)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	h.relayStream(w, r, flusher, stream, threadID, log)
}

// relayStream forwards run events to the client until the stream ends.
func (h *Handler) relayStream(w http.ResponseWriter, r *http.Request, flusher http.Flusher, stream *assistant.RunStream, threadID string, log *zap.Logger) {
	for {
		ev, err := stream.Next()
		if err != nil || ev.Event == models.EventDone {
			// EOF included: the stream is over either way, close out
			// the SSE response.
			writeSSE(w, flusher, models.EventDone, []byte("[DONE]"))
			return
		}

		writeSSE(w, flusher, ev.Event, ev.Data)

		if ev.Event != models.EventRunRequiresAction {
			continue
		}

		var run models.Run
		if err := ev.UnmarshalData(&run); err != nil {
			log.Error("failed to parse requires_action event", zap.Error(err))
			writeSSEError(w, flusher, "malformed requires_action event")
			return
		}
		if run.RequiredAction == nil || run.RequiredAction.SubmitToolOutputs == nil {
			log.Error("requires_action run carries no tool calls", zap.String("run_id", run.ID))
			writeSSEError(w, flusher, "requires_action run carries no tool calls")
			return
		}

		outputs, err := h.dispatcher.Dispatch(r.Context(), run.RequiredAction.SubmitToolOutputs.ToolCalls)
		if err != nil {
			log.Error("tool dispatch failed", zap.Error(err), zap.String("run_id", run.ID))
			writeSSEError(w, flusher, err.Error())
			return
		}

		final, err := h.actions.Submit(r.Context(), threadID, run.ID, outputs)
		if err != nil {
			log.Error("tool output submission failed", zap.Error(err), zap.String("run_id", run.ID))
			writeSSEError(w, flusher, err.Error())
			return
		}

		data, _ := json.Marshal(final)
		writeSSE(w, flusher, "thread.run."+string(final.Status), data)
	}
}

// handleSubmitActions submits tool outputs the client resolved itself.
func (h *Handler) handleSubmitActions(w http.ResponseWriter, r *http.Request, threadID string, log *zap.Logger) {
	if threadID == "" {
		h.handleError(w, http.StatusBadRequest, "invalid_request", "Thread id is required", log)
		return
	}

	var req models.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleError(w, http.StatusBadRequest, "parse_error", "Failed to parse request: "+err.Error(), log)
		return
	}
	if req.RunID == "" {
		h.handleError(w, http.StatusBadRequest, "invalid_request", "runId is required", log)
		return
	}

	run, err := h.actions.Submit(r.Context(), threadID, req.RunID, req.Outputs())
	if err != nil {
		h.handleError(w, http.StatusBadGateway, "upstream_error", err.Error(), log)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}

// handleSearch runs the search chain directly, outside any run.
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request, log *zap.Logger) {
	if !h.search.Enabled() {
		h.handleError(w, http.StatusServiceUnavailable, "search_disabled", "Search is disabled", log)
		return
	}

	query := r.URL.Query().Get("query")
	if query == "" {
		h.handleError(w, http.StatusBadRequest, "invalid_request", "Query parameter is required", log)
		return
	}

	var sel search.Selection
	if engine := r.URL.Query().Get("engine"); engine != "" {
		sel = h.search.SelectionFor(engine, query)
	} else {
		var err error
		sel, err = h.search.SelectEngine(query)
		if err != nil {
			h.handleError(w, http.StatusBadRequest, "invalid_request", err.Error(), log)
			return
		}
	}

	raw, err := h.search.Execute(r.Context(), sel)
	if err != nil {
		h.handleError(w, http.StatusBadGateway, "upstream_error", err.Error(), log)
		return
	}

	result := search.Normalize(sel.Engine, raw)

	log.Info("search completed",
		zap.String("engine", sel.Engine),
		zap.String("query", query),
		zap.Int("result_count", len(result.Items)),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"engine": sel.Engine,
		"query":  query,
		"items":  result.Items,
		"meta":   result.Meta,
	})
}

// handleCreateTask persists a task posted directly over HTTP.
func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request, log *zap.Logger) {
	var req struct {
		Title       string `json:"task_name"`
		Description string `json:"task_description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleError(w, http.StatusBadRequest, "parse_error", "Failed to parse request: "+err.Error(), log)
		return
	}

	task, err := h.tasks.Create(req.Title, req.Description)
	if err != nil {
		h.handleError(w, http.StatusBadRequest, "invalid_task", err.Error(), log)
		return
	}

	log.Info("task created", zap.String("task_id", task.ID))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(task)
}

// handleListTasks returns all stored tasks.
func (h *Handler) handleListTasks(w http.ResponseWriter, r *http.Request, log *zap.Logger) {
	tasks, err := h.tasks.List()
	if err != nil {
		h.handleError(w, http.StatusInternalServerError, "storage_error", err.Error(), log)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"tasks": tasks,
		"count": len(tasks),
	})
}

// handleGetTask returns one task by id.
func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request, id string, log *zap.Logger) {
	task, ok := h.tasks.Get(id)
	if !ok {
		h.handleError(w, http.StatusNotFound, "not_found", "Task not found", log)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(task)
}

// handleDeleteTask removes one task by id.
func (h *Handler) handleDeleteTask(w http.ResponseWriter, r *http.Request, id string, log *zap.Logger) {
	if _, ok := h.tasks.Get(id); !ok {
		h.handleError(w, http.StatusNotFound, "not_found", "Task not found", log)
		return
	}

	if err := h.tasks.Delete(id); err != nil {
		h.handleError(w, http.StatusInternalServerError, "storage_error", err.Error(), log)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleError handles errors
func (h *Handler) handleError(w http.ResponseWriter, status int, errType, message string, log *zap.Logger) {
	log.Error("request error",
		zap.String("error_type", errType),
		zap.String("message", message),
		zap.Int("status", status),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Error: models.ErrorDetail{
			Type:    errType,
			Message: message,
		},
	})
}

// writeSSE writes one SSE event and flushes it.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, data []byte) {
	w.Write([]byte("event: " + event + "\n"))
	w.Write([]byte("data: "))
	w.Write(data)
	w.Write([]byte("\n\n"))
	flusher.Flush()
}

// writeSSEError reports a mid-stream failure to the client. The HTTP
// status is already committed, so the error travels as an event.
func writeSSEError(w http.ResponseWriter, flusher http.Flusher, message string) {
	data, _ := json.Marshal(map[string]string{"error": message})
	writeSSE(w, flusher, "error", data)
	writeSSE(w, flusher, models.EventDone, []byte("[DONE]"))
}

// pathSegment returns the nth slash-separated segment of the path.
func pathSegment(path string, n int) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if n < len(parts) {
		return parts[n]
	}
	return ""
}

// extractTraceID extracts trace ID from various possible headers
func extractTraceID(r *http.Request) string {
	headers := []string{
		"X-Trace-ID",
		"X-Request-ID",
		"X-Correlation-ID",
		"Trace-ID",
		"Request-ID",
	}

	for _, header := range headers {
		if id := r.Header.Get(header); id != "" {
			return id
		}
	}

	return ""
}

// generateTraceID generates a new trace ID
func generateTraceID() string {
	id := uuid.New()
	return id.String()[:16]
}
