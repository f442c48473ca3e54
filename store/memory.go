package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sicko7947/smartflow"
)

// MemoryStore implements smartflow.ExecutionStore using in-memory storage
type MemoryStore struct {
	executions map[string]*smartflow.WorkflowExecution
	workflows  map[string]*smartflow.Workflow
	mu         sync.RWMutex
}

// NewMemoryStore creates a new in-memory execution store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		executions: make(map[string]*smartflow.WorkflowExecution),
		workflows:  make(map[string]*smartflow.Workflow),
	}
}

// Execution operations

func (s *MemoryStore) InsertExecution(ctx context.Context, exec *smartflow.WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.executions[exec.ID]; exists {
		return fmt.Errorf("workflow execution %s already exists", exec.ID)
	}

	s.executions[exec.ID] = copyExecution(exec)
	return nil
}

func (s *MemoryStore) ListRecentExecutions(ctx context.Context, limit int) ([]*smartflow.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	executions := make([]*smartflow.WorkflowExecution, 0, len(s.executions))
	for _, exec := range s.executions {
		executions = append(executions, copyExecution(exec))
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartTime.After(executions[j].StartTime)
	})

	if limit >= 0 && len(executions) > limit {
		executions = executions[:limit]
	}
	return executions, nil
}

// Workflow operations

func (s *MemoryStore) UpsertWorkflow(ctx context.Context, wf *smartflow.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.workflows[wf.ID] = wf.Clone()
	return nil
}

func (s *MemoryStore) GetWorkflow(ctx context.Context, workflowID string) (*smartflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, exists := s.workflows[workflowID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", smartflow.ErrWorkflowNotFound, workflowID)
	}
	return wf.Clone(), nil
}

// copyExecution copies the execution and its slices; payload maps are
// shallow-copied
func copyExecution(exec *smartflow.WorkflowExecution) *smartflow.WorkflowExecution {
	c := *exec
	c.Results = smartflow.CloneMap(exec.Results)
	c.StepResults = append([]smartflow.StepResult(nil), exec.StepResults...)
	c.Optimizations = append([]smartflow.Optimization(nil), exec.Optimizations...)
	return &c
}
