package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/itchyny/gojq"
	"github.com/rs/zerolog"
	"github.com/sicko7947/smartflow"
)

// StepRequest is what a handler receives for one attempt of one step
type StepRequest struct {
	Workflow *smartflow.Workflow
	Step     *smartflow.WorkflowStep
	Input    map[string]any

	// Config is the step's static config merged with the learned config
	Config map[string]any
	UserID string
	Logger zerolog.Logger
}

// StepHandler executes one step type. The returned map becomes the step's
// output payload.
type StepHandler func(ctx context.Context, req *StepRequest) (map[string]any, error)

// Collaborators are the remote functions the default handlers call into
type Collaborators struct {
	Extraction    smartflow.Collaborator
	Summarization smartflow.Collaborator
	Custom        smartflow.Collaborator
}

// DefaultHandlers builds the handler registry for every known step type.
// extract, summarize and custom delegate to collaborators; classify,
// transform and validate run locally and can be replaced with WithHandler.
func DefaultHandlers(c Collaborators) map[smartflow.StepType]StepHandler {
	exprs := newRuleCache()
	jq := newJQCache()

	return map[smartflow.StepType]StepHandler{
		smartflow.StepTypeExtract:   CollaboratorHandler(smartflow.StepTypeExtract, c.Extraction),
		smartflow.StepTypeSummarize: CollaboratorHandler(smartflow.StepTypeSummarize, c.Summarization),
		smartflow.StepTypeCustom:    CollaboratorHandler(smartflow.StepTypeCustom, c.Custom),
		smartflow.StepTypeClassify:  classifyHandler,
		smartflow.StepTypeTransform: transformHandler(jq),
		smartflow.StepTypeValidate:  validateHandler(exprs),
	}
}

// CollaboratorHandler calls the collaborator with {...input, ...config, userId}
// and shallow-merges its response into the input.
func CollaboratorHandler(stepType smartflow.StepType, c smartflow.Collaborator) StepHandler {
	return func(ctx context.Context, req *StepRequest) (map[string]any, error) {
		if c == nil {
			return nil, smartflow.NewWorkflowErrorWithStep(
				smartflow.ErrCodeValidation,
				fmt.Sprintf("no collaborator configured for %s steps", stepType),
				req.Step.ID,
			)
		}

		payload := smartflow.MergeMaps(req.Input, req.Config, map[string]any{"userId": req.UserID})
		resp, err := c.Invoke(ctx, payload)
		if err != nil {
			return nil, fmt.Errorf("%s collaborator: %w", stepType, err)
		}

		return smartflow.MergeMaps(req.Input, resp), nil
	}
}

func classifyHandler(_ context.Context, req *StepRequest) (map[string]any, error) {
	label, _ := req.Config[smartflow.ConfigKeyLabel].(string)
	if label == "" {
		label = "unclassified"
	}
	return smartflow.MergeMaps(req.Input, map[string]any{"classification": label}), nil
}

// transformHandler merges the object produced by an optional config.jq
// expression into the payload.
func transformHandler(cache *jqCache) StepHandler {
	return func(ctx context.Context, req *StepRequest) (map[string]any, error) {
		out := smartflow.MergeMaps(req.Input, map[string]any{"transformed": true})

		query, _ := req.Config[smartflow.ConfigKeyJQ].(string)
		if query == "" {
			return out, nil
		}

		code, err := cache.get(query)
		if err != nil {
			return nil, err
		}

		input, err := toJQInput(req.Input)
		if err != nil {
			return nil, err
		}

		iter := code.RunWithContext(ctx, input)
		v, ok := iter.Next()
		if !ok {
			return out, nil
		}
		if err, isErr := v.(error); isErr {
			return nil, fmt.Errorf("jq evaluation failed for %q: %w", query, err)
		}

		obj, isObj := v.(map[string]any)
		if !isObj {
			return nil, smartflow.NewWorkflowErrorWithStep(
				smartflow.ErrCodeValidation,
				fmt.Sprintf("jq expression %q must produce an object, got %T", query, v),
				req.Step.ID,
			)
		}
		return smartflow.MergeMaps(out, obj), nil
	}
}

// validateHandler evaluates every config.rules expression against the
// payload; any rule that is not true fails the step.
func validateHandler(cache *ruleCache) StepHandler {
	return func(_ context.Context, req *StepRequest) (map[string]any, error) {
		for _, rule := range smartflow.ConfigStrings(req.Config, smartflow.ConfigKeyRules) {
			program, err := cache.get(rule)
			if err != nil {
				return nil, err
			}

			result, err := expr.Run(program, req.Input)
			if err != nil {
				return nil, smartflow.NewWorkflowErrorWithStep(
					smartflow.ErrCodeValidation,
					fmt.Sprintf("validation rule %q could not be evaluated: %v", rule, err),
					req.Step.ID,
				).WithCause(err)
			}

			if passed, ok := result.(bool); !ok || !passed {
				return nil, smartflow.NewWorkflowErrorWithStep(
					smartflow.ErrCodeValidation,
					fmt.Sprintf("validation rule %q failed", rule),
					req.Step.ID,
				)
			}
		}

		return smartflow.MergeMaps(req.Input, map[string]any{"validated": true}), nil
	}
}

type ruleCache struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

func newRuleCache() *ruleCache {
	return &ruleCache{programs: make(map[string]*vm.Program)}
}

func (c *ruleCache) get(rule string) (*vm.Program, error) {
	c.mu.RLock()
	program, ok := c.programs[rule]
	c.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(rule)
	if err != nil {
		return nil, smartflow.NewWorkflowError(
			smartflow.ErrCodeValidation,
			fmt.Sprintf("invalid validation rule %q: %v", rule, err),
		).WithCause(err)
	}

	c.mu.Lock()
	c.programs[rule] = program
	c.mu.Unlock()
	return program, nil
}

type jqCache struct {
	mu    sync.RWMutex
	codes map[string]*gojq.Code
}

func newJQCache() *jqCache {
	return &jqCache{codes: make(map[string]*gojq.Code)}
}

func (c *jqCache) get(query string) (*gojq.Code, error) {
	c.mu.RLock()
	code, ok := c.codes[query]
	c.mu.RUnlock()
	if ok {
		return code, nil
	}

	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, smartflow.NewWorkflowError(
			smartflow.ErrCodeValidation,
			fmt.Sprintf("jq parse error in %q: %v", query, err),
		).WithCause(err)
	}

	// empty environment blocks $ENV
	code, err = gojq.Compile(parsed, gojq.WithEnvironLoader(func() []string { return nil }))
	if err != nil {
		return nil, smartflow.NewWorkflowError(
			smartflow.ErrCodeValidation,
			fmt.Sprintf("jq compile error in %q: %v", query, err),
		).WithCause(err)
	}

	c.mu.Lock()
	c.codes[query] = code
	c.mu.Unlock()
	return code, nil
}

func toJQInput(input map[string]any) (any, error) {
	data, err := smartflow.CanonicalJSON(input)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize jq input: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to normalize jq input: %w", err)
	}
	return out, nil
}
