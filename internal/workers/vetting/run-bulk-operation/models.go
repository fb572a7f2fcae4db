// internal/workers/vetting/run-bulk-operation/models.go
package runbulkoperation

type Input struct {
	OperationID    string                 `json:"operationId"`
	OperationType  string                 `json:"operationType"`
	ApplicationIDs []string               `json:"applicationIds"`
	Parameters     map[string]interface{} `json:"parameters"`
	PerformedBy    string                 `json:"performedBy"`
}

type Output struct {
	OperationID  string `json:"operationId"`
	Status       string `json:"status"`
	TotalItems   int    `json:"totalItems"`
	SuccessCount int    `json:"successCount"`
	FailureCount int    `json:"failureCount"`
	SkippedCount int    `json:"skippedCount"`
	ErrorSummary string `json:"errorSummary,omitempty"`
}
