// Package errors provides the standardized error taxonomy of the vetting engine
// and its mapping onto BPMN errors for Zeebe job workers.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Workflow errors
const (
	ErrCodeValidationFailed     ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidTransition    ErrorCode = "INVALID_TRANSITION"
	ErrCodeReviewerUnavailable  ErrorCode = "REVIEWER_UNAVAILABLE"
	ErrCodeNoReviewerAvailable  ErrorCode = "NO_REVIEWER_AVAILABLE"
	ErrCodeAlreadyAssigned      ErrorCode = "ALREADY_ASSIGNED"
	ErrCodeAlreadyResponded     ErrorCode = "ALREADY_RESPONDED"
	ErrCodeDuplicateApplication ErrorCode = "DUPLICATE_APPLICATION"
	ErrCodeOperationExists      ErrorCode = "OPERATION_EXISTS"
	ErrCodeNotFound             ErrorCode = "NOT_FOUND"
)

// Infrastructure errors
const (
	ErrCodeDatabaseFailed         ErrorCode = "DATABASE_FAILED"
	ErrCodeConcurrentModification ErrorCode = "CONCURRENT_MODIFICATION"
	ErrCodeTimeout                ErrorCode = "TIMEOUT"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeTemplateNotFound       ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeExternalService        ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeInternal               ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Is reports whether target is a StandardError carrying the same code, so the
// package-level sentinels below work with errors.Is.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a metadata key and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation           = &StandardError{Code: ErrCodeValidationFailed}
	ErrInvalidTransition    = &StandardError{Code: ErrCodeInvalidTransition}
	ErrReviewerUnavailable  = &StandardError{Code: ErrCodeReviewerUnavailable}
	ErrNoReviewerAvailable  = &StandardError{Code: ErrCodeNoReviewerAvailable}
	ErrAlreadyAssigned      = &StandardError{Code: ErrCodeAlreadyAssigned}
	ErrAlreadyResponded     = &StandardError{Code: ErrCodeAlreadyResponded}
	ErrDuplicateApplication = &StandardError{Code: ErrCodeDuplicateApplication}
	ErrOperationExists      = &StandardError{Code: ErrCodeOperationExists}
	ErrNotFound             = &StandardError{Code: ErrCodeNotFound}
	ErrDatabase             = &StandardError{Code: ErrCodeDatabaseFailed}
	ErrConcurrent           = &StandardError{Code: ErrCodeConcurrentModification}
	ErrTimeout              = &StandardError{Code: ErrCodeTimeout}
	ErrNotificationSend     = &StandardError{Code: ErrCodeNotificationSendFailed}
)

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationError reports bad caller input.
func NewValidationError(details string) *StandardError {
	return newError(ErrCodeValidationFailed, "Validation failed", details, false)
}

// NewInvalidTransitionError reports state machine misuse.
func NewInvalidTransitionError(entity, id, from, to string) *StandardError {
	return newError(ErrCodeInvalidTransition,
		fmt.Sprintf("Invalid %s transition", entity),
		fmt.Sprintf("%sId: %s, from: %s, to: %s", entity, id, from, to),
		false,
	).WithMetadata("from", from).WithMetadata("to", to)
}

// NewReviewerUnavailableError reports an inactive, unavailable or full reviewer.
func NewReviewerUnavailableError(reviewerID, reason string) *StandardError {
	return newError(ErrCodeReviewerUnavailable, "Reviewer unavailable",
		fmt.Sprintf("reviewerId: %s, reason: %s", reviewerID, reason), true)
}

// NewNoReviewerAvailableError reports that the pool has no capacity.
func NewNoReviewerAvailableError(details string) *StandardError {
	return newError(ErrCodeNoReviewerAvailable, "No reviewer available", details, true)
}

// NewAlreadyAssignedError reports a lost race on reviewer assignment.
func NewAlreadyAssignedError(applicationID, reviewerID string) *StandardError {
	return newError(ErrCodeAlreadyAssigned, "Application already assigned",
		fmt.Sprintf("applicationId: %s, reviewerId: %s", applicationID, reviewerID), false)
}

// NewAlreadyRespondedError reports a second response to the same reference.
func NewAlreadyRespondedError(referenceID string) *StandardError {
	return newError(ErrCodeAlreadyResponded, "Reference already responded",
		fmt.Sprintf("referenceId: %s", referenceID), false)
}

// NewDuplicateApplicationError reports an existing open application for the applicant.
func NewDuplicateApplicationError(applicantID string) *StandardError {
	return newError(ErrCodeDuplicateApplication, "Applicant already has an active application",
		fmt.Sprintf("applicantId: %s", applicantID), false)
}

// NewOperationExistsError reports a re-run of an existing bulk operation id.
func NewOperationExistsError(operationID string) *StandardError {
	return newError(ErrCodeOperationExists, "Bulk operation already exists",
		fmt.Sprintf("operationId: %s", operationID), false)
}

// NewNotFoundError reports a missing entity.
func NewNotFoundError(entity, id string) *StandardError {
	return newError(ErrCodeNotFound, fmt.Sprintf("%s not found", entity),
		fmt.Sprintf("%sId: %s", entity, id), false)
}

// NewDatabaseError wraps a persistence failure as retryable.
func NewDatabaseError(operation string, err error) *StandardError {
	e := newError(ErrCodeDatabaseFailed, "Database operation failed",
		fmt.Sprintf("operation: %s, error: %v", operation, err), true)
	e.cause = err
	return e
}

// NewConcurrentModificationError reports a lost optimistic-concurrency race.
func NewConcurrentModificationError(entity, id string) *StandardError {
	return newError(ErrCodeConcurrentModification, "Concurrent modification",
		fmt.Sprintf("%sId: %s", entity, id), true)
}

// NewTimeoutError wraps a deadline expiry.
func NewTimeoutError(operation string, err error) *StandardError {
	e := newError(ErrCodeTimeout, "Operation timed out",
		fmt.Sprintf("operation: %s, error: %v", operation, err), true)
	e.cause = err
	return e
}

// NewNotificationSendFailedError wraps a mail transport failure.
func NewNotificationSendFailedError(templateType string, err error) *StandardError {
	e := newError(ErrCodeNotificationSendFailed, "Notification delivery failed",
		fmt.Sprintf("template: %s, error: %v", templateType, err), true)
	e.cause = err
	return e
}

// NewTemplateNotFoundError reports an unknown template type.
func NewTemplateNotFoundError(templateType string) *StandardError {
	return newError(ErrCodeTemplateNotFound, "Template not found",
		fmt.Sprintf("templateType: %s", templateType), false)
}

// NewExternalServiceError wraps a failure of an external dependency.
func NewExternalServiceError(service string, err error) *StandardError {
	e := newError(ErrCodeExternalService, fmt.Sprintf("%s service error", service), err.Error(), true)
	e.cause = err
	return e
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(err error) *StandardError {
	e := newError(ErrCodeInternal, "Unexpected error", err.Error(), false)
	e.cause = err
	return e
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// GetRetryCount returns the recommended job retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseFailed,
		ErrCodeExternalService,
		ErrCodeNotificationSendFailed,
		ErrCodeConcurrentModification:
		return 3

	case ErrCodeTimeout,
		ErrCodeReviewerUnavailable,
		ErrCodeNoReviewerAvailable:
		return 2

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// AsStandardError normalizes any error into a StandardError. Context deadline
// errors become TIMEOUT, everything unknown becomes INTERNAL_ERROR.
func AsStandardError(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError("context", err)
	}
	return NewInternalError(err)
}

// IsRetryable reports whether err is classified as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return AsStandardError(err).Retryable
}

// CodeOf returns the error code of err, or INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	return AsStandardError(err).Code
}

// IsRetryableErrorCode checks if an error code is retried by job workers.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "REVIEWER") || strings.Contains(codeStr, "ASSIGNED"):
		return "ASSIGNMENT"
	case strings.Contains(codeStr, "TRANSITION") || strings.Contains(codeStr, "RESPONDED"):
		return "WORKFLOW"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "CONCURRENT"):
		return "DATABASE"
	case strings.Contains(codeStr, "NOTIFICATION") || strings.Contains(codeStr, "TEMPLATE"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "DUPLICATE") ||
		strings.Contains(codeStr, "EXISTS"):
		return "VALIDATION"
	case strings.Contains(codeStr, "TIMEOUT") || strings.Contains(codeStr, "EXTERNAL"):
		return "INFRASTRUCTURE"
	default:
		return "OTHER"
	}
}
