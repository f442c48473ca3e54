package api

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sicko7947/smartflow"
	"github.com/sicko7947/smartflow/builder"
)

type executeRequest struct {
	Input  map[string]any `json:"input"`
	UserID string         `json:"userId"`
}

type executeResponse struct {
	Execution *smartflow.WorkflowExecution `json:"execution"`
	Error     string                       `json:"error,omitempty"`
}

type applyRequest struct {
	Types []smartflow.OptimizationType `json:"types"`
}

// handlePutWorkflow creates or replaces a workflow definition. Replacing
// bumps the version; the id always comes from the path.
func (s *Server) handlePutWorkflow(c fiber.Ctx) error {
	var next smartflow.Workflow
	if err := c.Bind().JSON(&next); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	next.ID = c.Params("id")
	if next.Version < 1 {
		next.Version = 1
	}
	if err := builder.Validate(&next); err != nil {
		return err
	}

	ctx := c.Context()
	existing, err := s.lookup(ctx, next.ID)
	if err != nil && !errors.Is(err, smartflow.ErrWorkflowNotFound) {
		return err
	}

	now := time.Now().UTC()
	if existing == nil {
		next.CreatedAt = now
		next.UpdatedAt = now
		live, err := s.Register(ctx, &next)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(s.engine.Snapshot(live))
	}

	err = s.engine.UpdateDefinition(existing, func(wf *smartflow.Workflow) error {
		next.Version = wf.Version + 1
		next.CreatedAt = wf.CreatedAt
		next.UpdatedAt = now
		if err := s.store.UpsertWorkflow(ctx, &next); err != nil {
			return fmt.Errorf("failed to store workflow %s: %w", next.ID, err)
		}
		*wf = next
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(s.engine.Snapshot(existing))
}

func (s *Server) handleGetWorkflow(c fiber.Ctx) error {
	wf, err := s.lookup(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(s.engine.Snapshot(wf))
}

func (s *Server) handleExecute(c fiber.Ctx) error {
	wf, err := s.lookup(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}

	var req executeRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
	}
	return s.execute(c, wf, req)
}

// handleTrigger runs the workflow on behalf of a trigger the workflow declares
func (s *Server) handleTrigger(c fiber.Ctx) error {
	wf, err := s.lookup(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}

	triggerType := smartflow.TriggerType(c.Params("type"))
	if !s.engine.Snapshot(wf).HasTrigger(triggerType) {
		return fiber.NewError(fiber.StatusConflict,
			fmt.Sprintf("workflow %s does not declare a %s trigger", wf.ID, triggerType))
	}

	var req executeRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
	}
	return s.execute(c, wf, req)
}

func (s *Server) execute(c fiber.Ctx, wf *smartflow.Workflow, req executeRequest) error {
	exec, err := s.engine.ExecuteWorkflow(c.Context(), wf, req.Input, req.UserID)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(executeResponse{
			Execution: exec,
			Error:     err.Error(),
		})
	}
	return c.JSON(executeResponse{Execution: exec})
}

// handleListExecutions returns the in-memory window, newest first
func (s *Server) handleListExecutions(c fiber.Ctx) error {
	if s.history == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "Execution history is not enabled")
	}

	executions := s.history.Executions(c.Params("id"))
	limit := len(executions)
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = min(n, limit)
	}

	out := make([]*smartflow.WorkflowExecution, 0, limit)
	for i := len(executions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, executions[i])
	}
	return c.JSON(fiber.Map{
		"workflowId": c.Params("id"),
		"executions": out,
	})
}

// handleGetOptimizations analyses history without applying anything
func (s *Server) handleGetOptimizations(c fiber.Ctx) error {
	wf, err := s.lookup(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}

	snapshot := s.engine.Snapshot(wf)
	proposals := s.engine.Learner().OptimizeWorkflow(snapshot)
	if proposals == nil {
		proposals = []smartflow.Optimization{}
	}
	return c.JSON(fiber.Map{
		"workflowId":    snapshot.ID,
		"version":       snapshot.Version,
		"optimizations": proposals,
	})
}

// handleApplyOptimizations applies explicitly approved proposal types
func (s *Server) handleApplyOptimizations(c fiber.Ctx) error {
	wf, err := s.lookup(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}

	var req applyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if len(req.Types) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "types must name at least one optimization")
	}

	proposals := make([]smartflow.Optimization, len(req.Types))
	for i, t := range req.Types {
		proposals[i] = smartflow.Optimization{Type: t, Applied: true}
	}
	if err := s.engine.ApplyOptimizations(c.Context(), wf, proposals); err != nil {
		return err
	}
	return c.JSON(s.engine.Snapshot(wf))
}
