// internal/workers/vetting/cancel-bulk-operation/models.go
package cancelbulkoperation

type Input struct {
	OperationID string `json:"operationId"`
	Actor       string `json:"actor"`
}

type Output struct {
	OperationID     string `json:"operationId"`
	Status          string `json:"status"`
	CancelRequested bool   `json:"cancelRequested"`
}
