// internal/models/bulk.go
package models

import "time"

type BulkOperationType string

const (
	BulkApprove      BulkOperationType = "approve"
	BulkReject       BulkOperationType = "reject"
	BulkRequestInfo  BulkOperationType = "request_info"
	BulkExpire       BulkOperationType = "expire"
	BulkWithdraw     BulkOperationType = "withdraw"
	BulkSendReminder BulkOperationType = "send_reminder"
)

func (t BulkOperationType) IsValid() bool {
	switch t {
	case BulkApprove, BulkReject, BulkRequestInfo, BulkExpire, BulkWithdraw, BulkSendReminder:
		return true
	}
	return false
}

type BulkOperationStatus string

const (
	BulkRunning   BulkOperationStatus = "running"
	BulkCompleted BulkOperationStatus = "completed"
	BulkFailed    BulkOperationStatus = "failed"
)

type BulkOperation struct {
	ID              string                 `json:"id"`
	Type            BulkOperationType      `json:"type"`
	Status          BulkOperationStatus    `json:"status"`
	PerformedBy     string                 `json:"performedBy"`
	StartedAt       time.Time              `json:"startedAt"`
	CompletedAt     *time.Time             `json:"completedAt,omitempty"`
	Parameters      map[string]interface{} `json:"parameters,omitempty"`
	TotalItems      int                    `json:"totalItems"`
	SuccessCount    int                    `json:"successCount"`
	FailureCount    int                    `json:"failureCount"`
	SkippedCount    int                    `json:"skippedCount"`
	CancelRequested bool                   `json:"cancelRequested"`
	ErrorSummary    string                 `json:"errorSummary,omitempty"`
}

func (o *BulkOperation) Clone() *BulkOperation {
	c := *o
	c.CompletedAt = cloneTime(o.CompletedAt)
	if o.Parameters != nil {
		c.Parameters = make(map[string]interface{}, len(o.Parameters))
		for k, v := range o.Parameters {
			c.Parameters[k] = v
		}
	}
	return &c
}

// StringParam returns a string parameter or "".
func (o *BulkOperation) StringParam(key string) string {
	if v, ok := o.Parameters[key].(string); ok {
		return v
	}
	return ""
}

type ItemOutcome string

const (
	OutcomePending      ItemOutcome = "pending"
	OutcomeSucceeded    ItemOutcome = "succeeded"
	OutcomeFailed       ItemOutcome = "failed"
	OutcomeSkipped      ItemOutcome = "skipped"
	OutcomeRetryPending ItemOutcome = "retry_pending"
)

// IsOpen reports whether the item still needs an attempt.
func (o ItemOutcome) IsOpen() bool {
	return o == OutcomePending || o == OutcomeRetryPending
}

type BulkOperationItem struct {
	ID            string      `json:"id"`
	OperationID   string      `json:"operationId"`
	ApplicationID string      `json:"applicationId"`
	Outcome       ItemOutcome `json:"outcome"`
	ErrorCode     string      `json:"errorCode,omitempty"`
	ErrorMessage  string      `json:"errorMessage,omitempty"`
	AttemptCount  int         `json:"attemptCount"`
	RetryAt       *time.Time  `json:"retryAt,omitempty"`
	ProcessedAt   *time.Time  `json:"processedAt,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

func (i *BulkOperationItem) Clone() *BulkOperationItem {
	c := *i
	c.RetryAt = cloneTime(i.RetryAt)
	c.ProcessedAt = cloneTime(i.ProcessedAt)
	return &c
}

type LogLevel string

const (
	LogInfo     LogLevel = "info"
	LogWarning  LogLevel = "warning"
	LogError    LogLevel = "error"
	LogCritical LogLevel = "critical"
)

type BulkOperationLog struct {
	ID            string                 `json:"id"`
	OperationID   string                 `json:"operationId"`
	ItemID        string                 `json:"itemId,omitempty"`
	ApplicationID string                 `json:"applicationId,omitempty"`
	Level         LogLevel               `json:"level"`
	Step          string                 `json:"step"`
	Message       string                 `json:"message"`
	Context       map[string]interface{} `json:"context,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
}
