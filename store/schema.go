package store

import "fmt"

// DynamoDB schema constants for single-table design
const (
	// Table attributes
	AttrPK         = "PK"
	AttrSK         = "SK"
	AttrGSI1PK     = "GSI1PK"
	AttrGSI1SK     = "GSI1SK"
	AttrEntityType = "entity_type"

	// Entity types
	EntityTypeExecution = "WorkflowExecution"
	EntityTypeWorkflow  = "Workflow"

	// IndexRecentExecutions orders every execution by start time
	IndexRecentExecutions = "GSI1"
)

// Key builders for single-table design

// WorkflowExecution keys: PK=EXEC#{executionID}, SK=META
func executionPK(executionID string) string {
	return fmt.Sprintf("EXEC#%s", executionID)
}

// Workflow keys: PK=WF#{workflowID}, SK=META
func workflowPK(workflowID string) string {
	return fmt.Sprintf("WF#%s", workflowID)
}

func metaSK() string {
	return "META"
}

// Recent-executions index: GSI1PK=EXECUTIONS, GSI1SK={startTime}#{executionID}.
// All executions share one index partition.
func executionGSI1PK() string {
	return "EXECUTIONS"
}

func executionGSI1SK(startTime, executionID string) string {
	return fmt.Sprintf("%s#%s", startTime, executionID)
}
