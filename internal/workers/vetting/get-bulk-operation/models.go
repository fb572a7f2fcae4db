// internal/workers/vetting/get-bulk-operation/models.go
package getbulkoperation

type Input struct {
	OperationID string `json:"operationId"`
}

type ItemOutput struct {
	ApplicationID string `json:"applicationId"`
	Outcome       string `json:"outcome"`
	ErrorCode     string `json:"errorCode,omitempty"`
	AttemptCount  int    `json:"attemptCount"`
}

type Output struct {
	OperationID     string       `json:"operationId"`
	Type            string       `json:"type"`
	Status          string       `json:"status"`
	TotalItems      int          `json:"totalItems"`
	SuccessCount    int          `json:"successCount"`
	FailureCount    int          `json:"failureCount"`
	SkippedCount    int          `json:"skippedCount"`
	CancelRequested bool         `json:"cancelRequested"`
	ErrorSummary    string       `json:"errorSummary,omitempty"`
	StartedAt       string       `json:"startedAt"`
	CompletedAt     string       `json:"completedAt,omitempty"`
	Items           []ItemOutput `json:"items"`
	LogCount        int          `json:"logCount"`
}
