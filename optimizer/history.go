package optimizer

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sicko7947/smartflow"
)

// History is the in-memory rolling window of executions per workflow,
// backed by a durable store
type History struct {
	store  smartflow.ExecutionStore
	logger zerolog.Logger
	limit  int

	mu         sync.RWMutex
	executions map[string][]*smartflow.WorkflowExecution
}

// NewHistory creates a history window holding at most limit executions per workflow
func NewHistory(store smartflow.ExecutionStore, logger zerolog.Logger, limit int) *History {
	if limit <= 0 {
		limit = smartflow.DefaultEngineConfig.HistoryLimit
	}
	return &History{
		store:      store,
		logger:     logger,
		limit:      limit,
		executions: make(map[string][]*smartflow.WorkflowExecution),
	}
}

// Remember appends a finished exec to its workflow's window, evicting the
// oldest entries beyond the limit. Unfinished executions are ignored.
func (h *History) Remember(exec *smartflow.WorkflowExecution) {
	if !exec.Status.IsTerminal() {
		h.logger.Debug().
			Str("execution_id", exec.ID).
			Str("status", exec.Status.String()).
			Msg("Ignoring unfinished execution")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appendLocked(exec)
}

func (h *History) appendLocked(exec *smartflow.WorkflowExecution) {
	window := append(h.executions[exec.WorkflowID], exec)
	if over := len(window) - h.limit; over > 0 {
		window = append([]*smartflow.WorkflowExecution(nil), window[over:]...)
	}
	h.executions[exec.WorkflowID] = window
}

// Persist inserts exec into the durable store. Failures are logged and
// swallowed.
func (h *History) Persist(ctx context.Context, exec *smartflow.WorkflowExecution) {
	if h.store == nil {
		return
	}
	if err := h.store.InsertExecution(ctx, exec); err != nil {
		smartflow.LogPersistenceError(h.logger, exec.ID, "insert_execution", err)
	}
}

// Load fills the window with the most recent executions from the store,
// grouped per workflow with the oldest first. Failures are logged and the
// window is left unchanged.
func (h *History) Load(ctx context.Context) {
	if h.store == nil {
		return
	}

	recent, err := h.store.ListRecentExecutions(ctx, h.limit)
	if err != nil {
		smartflow.LogPersistenceError(h.logger, "history", "list_recent_executions", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// store returns newest first
	for i := len(recent) - 1; i >= 0; i-- {
		h.appendLocked(recent[i])
	}

	h.logger.Info().
		Str("event", smartflow.EventHistoryLoaded).
		Int("executions", len(recent)).
		Int("workflows", len(h.executions)).
		Msg("Execution history loaded")
}

// Executions returns a copy of the window for a workflow, oldest first
func (h *History) Executions(workflowID string) []*smartflow.WorkflowExecution {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]*smartflow.WorkflowExecution(nil), h.executions[workflowID]...)
}
