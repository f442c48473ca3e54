package smartflow

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogHelpers_ContextFieldsWrittenOnce(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf).Level(zerolog.DebugLevel)

	execLogger := ExecutionLogger(base, "exec-1", "wf-1", "user-1")
	stepLogger := StepLogger(execLogger, &WorkflowStep{ID: "extract", Type: StepTypeExtract})

	LogWorkflowStarted(execLogger, 2)
	LogStepStarted(stepLogger, 1)
	LogStepRetrying(stepLogger, 1, time.Second, errors.New("timeout"))
	LogStepCompleted(stepLogger, 12, 2)
	LogStepSkipped(stepLogger, "conditions not met")
	LogOptimizationProposed(execLogger, Optimization{Type: OptimizationEnableCaching, Applied: true})
	LogWorkflowCompleted(execLogger, time.Second)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 7)
	for _, line := range lines {
		assert.Equal(t, 1, strings.Count(line, `"execution_id"`), line)
		assert.Equal(t, 1, strings.Count(line, `"workflow_id"`), line)
		assert.LessOrEqual(t, strings.Count(line, `"step_id"`), 1, line)
	}
	for _, line := range lines[1:5] {
		assert.Contains(t, line, `"step_id":"extract"`)
	}
}
