// internal/models/audit.go
package models

import "time"

const (
	EntityApplication   = "application"
	EntityReviewer      = "reviewer"
	EntityReference     = "reference"
	EntityDecision      = "decision"
	EntityBulkOperation = "bulk_operation"
	EntityNotification  = "notification"
)

const (
	ActionApplicationSubmitted  = "application_submitted"
	ActionReviewStarted         = "review_started"
	ActionReviewResumed         = "review_resumed"
	ActionApplicationExpired    = "application_expired"
	ActionApplicationWithdrawn  = "application_withdrawn"
	ActionApplicationArchived   = "application_archived"
	ActionDecisionRecorded      = "decision_recorded"
	ActionReviewerRegistered    = "reviewer_registered"
	ActionReviewerUpdated       = "reviewer_updated"
	ActionReferenceContacted    = "reference_contacted"
	ActionReferenceReminded     = "reference_reminded"
	ActionReferenceExpired      = "reference_expired"
	ActionReferenceResponded    = "reference_responded"
	ActionManualContactLogged   = "manual_contact_attempted"
	ActionManualContactRequired = "manual_contact_required"
	ActionBulkStarted           = "bulk_operation_started"
	ActionBulkCancelled         = "bulk_operation_cancelled"
	ActionBulkCompleted         = "bulk_operation_completed"
	ActionNotificationFailed    = "notification_failed"
)

// SystemActor is recorded for scheduler-driven changes.
const SystemActor = "system"

type AuditEntry struct {
	ID         string                 `json:"id"`
	EntityType string                 `json:"entityType"`
	EntityID   string                 `json:"entityId"`
	Action     string                 `json:"action"`
	OldValues  map[string]interface{} `json:"oldValues,omitempty"`
	NewValues  map[string]interface{} `json:"newValues,omitempty"`
	ActorID    string                 `json:"actorId"`
	Timestamp  time.Time              `json:"timestamp"`
}
