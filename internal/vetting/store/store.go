// internal/vetting/store/store.go
package store

import (
	"context"
	"errors"
	"time"

	"vetting-engine/internal/models"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrDuplicate       = errors.New("duplicate record")
	// ErrNotEligible is returned when a reviewer cannot take another slot.
	ErrNotEligible = errors.New("reviewer not eligible")
	// ErrCounterOverflow is returned when a counter update would exceed TotalItems.
	ErrCounterOverflow = errors.New("bulk counters would exceed total items")
)

type ApplicationStore interface {
	// CreateApplication inserts the application and its references together.
	// ErrDuplicate when the applicant already has a non-deleted application
	// or the application number is taken.
	CreateApplication(ctx context.Context, app *models.Application, refs []*models.Reference) error
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	// UpdateApplication writes app if its stored version equals app.Version
	// and bumps app.Version. A non-nil release gives the reviewer slot back in
	// the same unit of work.
	UpdateApplication(ctx context.Context, app *models.Application, release *models.ReviewerRelease) error
	// AssignReviewer reserves a slot on reviewerID and writes app atomically.
	// ErrNotEligible when the reviewer is full or unavailable at now.
	AssignReviewer(ctx context.Context, app *models.Application, reviewerID string, now time.Time) error
	ApplicationNumberExists(ctx context.Context, number string) (bool, error)
	CountApplicationsSince(ctx context.Context, since time.Time) (int, error)
	HasActiveApplication(ctx context.Context, applicantID string) (bool, error)
	// ListExpirable returns non-terminal applications whose ExpiresAt is before now.
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]*models.Application, error)
}

type ReviewerStore interface {
	CreateReviewer(ctx context.Context, r *models.Reviewer) error
	GetReviewer(ctx context.Context, id string) (*models.Reviewer, error)
	// UpdateReviewerSettings writes the management fields (flags, tags,
	// capacity, availability window) without touching workload or stats.
	UpdateReviewerSettings(ctx context.Context, r *models.Reviewer) error
	ListReviewers(ctx context.Context) ([]*models.Reviewer, error)
	// ReleaseReviewer decrements workload (never below zero) and folds in
	// stats when release.Completed.
	ReleaseReviewer(ctx context.Context, release models.ReviewerRelease) error
}

type ReferenceStore interface {
	GetReference(ctx context.Context, id string) (*models.Reference, error)
	GetReferenceByTokenHash(ctx context.Context, tokenHash string) (*models.Reference, error)
	ListReferences(ctx context.Context, applicationID string) ([]*models.Reference, error)
	// ListContactableReferences returns pending references whose application
	// holds a reviewer, oldest first.
	ListContactableReferences(ctx context.Context, limit int) ([]*models.Reference, error)
	// ListDueReferences returns contacted references whose next reminder
	// stage or expiry under schedule is due at now, earliest due first.
	ListDueReferences(ctx context.Context, now time.Time, schedule models.ReminderSchedule, limit int) ([]*models.Reference, error)
	// UpdateReference is a compare-and-swap on Version.
	UpdateReference(ctx context.Context, ref *models.Reference) error
	// RecordResponse stores resp and writes ref atomically. ErrDuplicate if
	// a response already exists.
	RecordResponse(ctx context.Context, ref *models.Reference, resp *models.ReferenceResponse) error
	GetResponse(ctx context.Context, referenceID string) (*models.ReferenceResponse, error)
}

type DecisionStore interface {
	// RecordDecision appends d and writes app (compare-and-swap) atomically,
	// releasing the reviewer when release is non-nil.
	RecordDecision(ctx context.Context, app *models.Application, d *models.Decision, release *models.ReviewerRelease) error
	ListDecisions(ctx context.Context, applicationID string) ([]*models.Decision, error)
}

type BulkStore interface {
	// CreateBulkOperation inserts op with its items. ErrDuplicate on a reused id.
	CreateBulkOperation(ctx context.Context, op *models.BulkOperation, items []*models.BulkOperationItem) error
	GetBulkOperation(ctx context.Context, id string) (*models.BulkOperation, error)
	ListBulkItems(ctx context.Context, operationID string) ([]*models.BulkOperationItem, error)
	UpdateBulkItem(ctx context.Context, item *models.BulkOperationItem) error
	// IncrementBulkCounters adds to the counters atomically, refusing any
	// change that would push success+failure+skipped past TotalItems.
	IncrementBulkCounters(ctx context.Context, operationID string, success, failure, skipped int) error
	// FinalizeBulkOperation moves a running operation to status. It returns
	// ErrVersionConflict when the operation is no longer running.
	FinalizeBulkOperation(ctx context.Context, operationID string, status models.BulkOperationStatus, completedAt time.Time, summary string) error
	SetCancelRequested(ctx context.Context, operationID string) error
	AppendBulkLog(ctx context.Context, entry *models.BulkOperationLog) error
	ListBulkLogs(ctx context.Context, operationID string) ([]*models.BulkOperationLog, error)
	ListDueRetryItems(ctx context.Context, now time.Time, limit int) ([]*models.BulkOperationItem, error)
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	UpdateNotification(ctx context.Context, n *models.Notification) error
	// ListDueNotifications returns pending or failed notifications with
	// RetryCount < maxRetries whose NextRetryAt is unset or not after now,
	// oldest first.
	ListDueNotifications(ctx context.Context, now time.Time, maxRetries, limit int) ([]*models.Notification, error)
	GetActiveTemplate(ctx context.Context, templateType models.TemplateType) (*models.EmailTemplate, error)
	SaveTemplate(ctx context.Context, tmpl *models.EmailTemplate) error
}

type AuditStore interface {
	AppendAudit(ctx context.Context, entry *models.AuditEntry) error
	ListAudit(ctx context.Context, entityType, entityID string) ([]*models.AuditEntry, error)
}

// Store is the full persistence surface of the engine.
type Store interface {
	ApplicationStore
	ReviewerStore
	ReferenceStore
	DecisionStore
	BulkStore
	NotificationStore
	AuditStore
}
