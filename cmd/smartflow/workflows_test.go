package main

import (
	"path/filepath"
	"testing"

	"github.com/sicko7947/smartflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const invoiceWorkflowYAML = `
id: invoice-intake
name: Invoice intake
userId: user-1
triggers:
  - type: manual
  - type: upload
    config:
      bucket: invoices
optimization:
  enabled: true
  autoApply: false
steps:
  - id: label
    name: Label
    type: classify
    config:
      defaultLabel: invoice
  - id: total
    name: Total
    type: transform
    config:
      jq: '{total: (.lines | map(.amount) | add)}'
      maxTokens: 400
  - id: check
    name: Check
    type: validate
    retryPolicy:
      maxRetries: 2
    conditions:
      - field: lines
        operator: exists
    config:
      rules:
        - total > 0
        - classification == "invoice"
`

func TestLoadWorkflowFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "invoice.yaml", invoiceWorkflowYAML)

	wf, err := LoadWorkflowFile(path)
	require.NoError(t, err)

	assert.Equal(t, "invoice-intake", wf.ID)
	assert.Equal(t, 1, wf.Version)
	assert.True(t, wf.Optimization.Enabled)
	assert.True(t, wf.HasTrigger(smartflow.TriggerUpload))
	require.Len(t, wf.Steps, 3)

	total := wf.Steps[1]
	assert.Equal(t, smartflow.StepTypeTransform, total.Type)
	maxTokens, ok := smartflow.ConfigNumber(total.Config, smartflow.ConfigKeyMaxTokens)
	require.True(t, ok)
	assert.Equal(t, float64(400), maxTokens)

	check := wf.Steps[2]
	assert.Equal(t, 2, check.MaxRetries())
	require.Len(t, check.Conditions, 1)
	assert.Equal(t, smartflow.OperatorExists, check.Conditions[0].Operator)
	assert.Equal(t, []string{"total > 0", `classification == "invoice"`},
		smartflow.ConfigStrings(check.Config, smartflow.ConfigKeyRules))
}

func TestLoadWorkflowFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadWorkflowFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := writeFile(t, dir, "bad.yaml", "id: [unterminated")
	_, err = LoadWorkflowFile(bad)
	assert.ErrorContains(t, err, "failed to parse workflow file")

	invalid := writeFile(t, dir, "invalid.yaml", "id: wf\nsteps:\n  - id: a\n    type: translate\n")
	_, err = LoadWorkflowFile(invalid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown step type")
}

func TestLoadWorkflows(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", invoiceWorkflowYAML)
	writeFile(t, dir, "b.yaml", "id: plain\nsteps:\n  - id: c\n    type: classify\n")

	pattern := filepath.Join(dir, "*.yaml")
	workflows, err := LoadWorkflows([]string{pattern, filepath.Join(dir, "a.yaml")})
	require.NoError(t, err)
	require.Len(t, workflows, 2)
	assert.Equal(t, "invoice-intake", workflows[0].ID)
	assert.Equal(t, "plain", workflows[1].ID)

	none, err := LoadWorkflows(nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLoadWorkflows_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadWorkflows([]string{filepath.Join(dir, "*.yaml")})
	assert.ErrorContains(t, err, "no workflow files match")

	writeFile(t, dir, "one.yaml", invoiceWorkflowYAML)
	writeFile(t, dir, "two.yaml", invoiceWorkflowYAML)
	_, err = LoadWorkflows([]string{filepath.Join(dir, "*.yaml")})
	assert.ErrorContains(t, err, "workflow invoice-intake is defined in both")
}
