// internal/vetting/store/memory.go
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"vetting-engine/internal/models"
)

// MemoryStore keeps everything in process memory behind one mutex. Values
// are copied on the way in and out so callers never share state with the
// store.
type MemoryStore struct {
	mu sync.Mutex

	applications  map[string]*models.Application
	reviewers     map[string]*models.Reviewer
	references    map[string]*models.Reference
	responses     map[string]*models.ReferenceResponse
	decisions     map[string][]*models.Decision
	operations    map[string]*models.BulkOperation
	items         map[string]*models.BulkOperationItem
	itemOrder     map[string][]string
	bulkLogs      map[string][]*models.BulkOperationLog
	notifications map[string]*models.Notification
	templates     map[models.TemplateType]*models.EmailTemplate
	audit         []*models.AuditEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		applications:  make(map[string]*models.Application),
		reviewers:     make(map[string]*models.Reviewer),
		references:    make(map[string]*models.Reference),
		responses:     make(map[string]*models.ReferenceResponse),
		decisions:     make(map[string][]*models.Decision),
		operations:    make(map[string]*models.BulkOperation),
		items:         make(map[string]*models.BulkOperationItem),
		itemOrder:     make(map[string][]string),
		bulkLogs:      make(map[string][]*models.BulkOperationLog),
		notifications: make(map[string]*models.Notification),
		templates:     make(map[models.TemplateType]*models.EmailTemplate),
	}
}

var _ Store = (*MemoryStore)(nil)

// ==========================
// Applications
// ==========================

func (m *MemoryStore) CreateApplication(_ context.Context, app *models.Application, refs []*models.Reference) error {
	if err := app.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.applications[app.ID]; ok {
		return fmt.Errorf("%w: application %s", ErrDuplicate, app.ID)
	}
	for _, existing := range m.applications {
		if existing.DeletedAt == nil && existing.ApplicantID == app.ApplicantID {
			return fmt.Errorf("%w: applicant %s", ErrDuplicate, app.ApplicantID)
		}
		if existing.ApplicationNumber == app.ApplicationNumber {
			return fmt.Errorf("%w: application number %s", ErrDuplicate, app.ApplicationNumber)
		}
	}

	app.Version = 1
	m.applications[app.ID] = app.Clone()
	for _, ref := range refs {
		ref.Version = 1
		m.references[ref.ID] = ref.Clone()
	}
	return nil
}

func (m *MemoryStore) GetApplication(_ context.Context, id string) (*models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.applications[id]
	if !ok {
		return nil, fmt.Errorf("%w: application %s", ErrNotFound, id)
	}
	return app.Clone(), nil
}

func (m *MemoryStore) UpdateApplication(_ context.Context, app *models.Application, release *models.ReviewerRelease) error {
	if err := app.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.casApplication(app); err != nil {
		return err
	}
	if release != nil {
		m.release(*release)
	}
	return nil
}

func (m *MemoryStore) casApplication(app *models.Application) error {
	stored, ok := m.applications[app.ID]
	if !ok {
		return fmt.Errorf("%w: application %s", ErrNotFound, app.ID)
	}
	if stored.Version != app.Version {
		return fmt.Errorf("%w: application %s at version %d, have %d", ErrVersionConflict, app.ID, stored.Version, app.Version)
	}
	app.Version++
	m.applications[app.ID] = app.Clone()
	return nil
}

func (m *MemoryStore) AssignReviewer(_ context.Context, app *models.Application, reviewerID string, now time.Time) error {
	if err := app.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reviewers[reviewerID]
	if !ok {
		return fmt.Errorf("%w: reviewer %s", ErrNotFound, reviewerID)
	}
	if !r.IsEligible(now) {
		return fmt.Errorf("%w: %s", ErrNotEligible, reviewerID)
	}
	if err := m.casApplication(app); err != nil {
		return err
	}
	r.CurrentWorkload++
	r.UpdatedAt = now
	return nil
}

func (m *MemoryStore) ApplicationNumberExists(_ context.Context, number string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, app := range m.applications {
		if app.ApplicationNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) CountApplicationsSince(_ context.Context, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, app := range m.applications {
		if !app.SubmittedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) HasActiveApplication(_ context.Context, applicantID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, app := range m.applications {
		if app.ApplicantID == applicantID && app.DeletedAt == nil {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) ListExpirable(_ context.Context, now time.Time, limit int) ([]*models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Application
	for _, app := range m.applications {
		if !app.Status.IsTerminal() && app.ExpiresAt.Before(now) {
			out = append(out, app.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ExpiresAt.Before(out[j].ExpiresAt)
	})
	return truncate(out, limit), nil
}

// ==========================
// Reviewers
// ==========================

func (m *MemoryStore) CreateReviewer(_ context.Context, r *models.Reviewer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reviewers[r.ID]; ok {
		return fmt.Errorf("%w: reviewer %s", ErrDuplicate, r.ID)
	}
	m.reviewers[r.ID] = r.Clone()
	return nil
}

func (m *MemoryStore) GetReviewer(_ context.Context, id string) (*models.Reviewer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reviewers[id]
	if !ok {
		return nil, fmt.Errorf("%w: reviewer %s", ErrNotFound, id)
	}
	return r.Clone(), nil
}

func (m *MemoryStore) UpdateReviewerSettings(_ context.Context, r *models.Reviewer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.reviewers[r.ID]
	if !ok {
		return fmt.Errorf("%w: reviewer %s", ErrNotFound, r.ID)
	}
	stored.DisplayName = r.DisplayName
	stored.IsActive = r.IsActive
	stored.IsAvailable = r.IsAvailable
	stored.Specializations = append([]string(nil), r.Specializations...)
	stored.MaxWorkload = r.MaxWorkload
	stored.UnavailableUntil = r.UnavailableUntil
	stored.UpdatedAt = r.UpdatedAt
	return nil
}

func (m *MemoryStore) ListReviewers(_ context.Context) ([]*models.Reviewer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Reviewer, 0, len(m.reviewers))
	for _, r := range m.reviewers {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) ReleaseReviewer(_ context.Context, release models.ReviewerRelease) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reviewers[release.ReviewerID]; !ok {
		return fmt.Errorf("%w: reviewer %s", ErrNotFound, release.ReviewerID)
	}
	m.release(release)
	return nil
}

func (m *MemoryStore) release(release models.ReviewerRelease) {
	r, ok := m.reviewers[release.ReviewerID]
	if !ok {
		return
	}
	if r.CurrentWorkload > 0 {
		r.CurrentWorkload--
	}
	if release.Completed {
		r.RecordCompletion(release.Approved, release.ReviewHours)
	}
}

// ==========================
// References
// ==========================

func (m *MemoryStore) GetReference(_ context.Context, id string) (*models.Reference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, ok := m.references[id]
	if !ok {
		return nil, fmt.Errorf("%w: reference %s", ErrNotFound, id)
	}
	return ref.Clone(), nil
}

func (m *MemoryStore) GetReferenceByTokenHash(_ context.Context, tokenHash string) (*models.Reference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tokenHash != "" {
		for _, ref := range m.references {
			if ref.TokenHash == tokenHash {
				return ref.Clone(), nil
			}
		}
	}
	return nil, fmt.Errorf("%w: reference token", ErrNotFound)
}

func (m *MemoryStore) ListReferences(_ context.Context, applicationID string) ([]*models.Reference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Reference
	for _, ref := range m.references {
		if ref.ApplicationID == applicationID {
			out = append(out, ref.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

func (m *MemoryStore) ListContactableReferences(_ context.Context, limit int) ([]*models.Reference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Reference
	for _, ref := range m.references {
		if ref.Status != models.ReferencePending {
			continue
		}
		if app, ok := m.applications[ref.ApplicationID]; ok && app.Status.HoldsReviewer() {
			out = append(out, ref.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return truncate(out, limit), nil
}

func (m *MemoryStore) ListDueReferences(_ context.Context, now time.Time, schedule models.ReminderSchedule, limit int) ([]*models.Reference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	type due struct {
		ref *models.Reference
		at  time.Time
	}
	var found []due
	for _, ref := range m.references {
		if at, ok := ref.NextDueAt(schedule); ok && !at.After(now) {
			found = append(found, due{ref: ref.Clone(), at: at})
		}
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].at.Equal(found[j].at) {
			return found[i].ref.ID < found[j].ref.ID
		}
		return found[i].at.Before(found[j].at)
	})
	out := make([]*models.Reference, 0, len(found))
	for _, d := range found {
		out = append(out, d.ref)
	}
	return truncate(out, limit), nil
}

func (m *MemoryStore) UpdateReference(_ context.Context, ref *models.Reference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.casReference(ref)
}

func (m *MemoryStore) casReference(ref *models.Reference) error {
	stored, ok := m.references[ref.ID]
	if !ok {
		return fmt.Errorf("%w: reference %s", ErrNotFound, ref.ID)
	}
	if stored.Version != ref.Version {
		return fmt.Errorf("%w: reference %s", ErrVersionConflict, ref.ID)
	}
	ref.Version++
	m.references[ref.ID] = ref.Clone()
	return nil
}

func (m *MemoryStore) RecordResponse(_ context.Context, ref *models.Reference, resp *models.ReferenceResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.responses[ref.ID]; ok {
		return fmt.Errorf("%w: response for reference %s", ErrDuplicate, ref.ID)
	}
	if err := m.casReference(ref); err != nil {
		return err
	}
	c := *resp
	c.Answers = append([]byte(nil), resp.Answers...)
	m.responses[ref.ID] = &c
	return nil
}

func (m *MemoryStore) GetResponse(_ context.Context, referenceID string) (*models.ReferenceResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	resp, ok := m.responses[referenceID]
	if !ok {
		return nil, fmt.Errorf("%w: response for reference %s", ErrNotFound, referenceID)
	}
	c := *resp
	return &c, nil
}

// ==========================
// Decisions
// ==========================

func (m *MemoryStore) RecordDecision(_ context.Context, app *models.Application, d *models.Decision, release *models.ReviewerRelease) error {
	if err := app.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.casApplication(app); err != nil {
		return err
	}
	c := *d
	m.decisions[d.ApplicationID] = append(m.decisions[d.ApplicationID], &c)
	if release != nil {
		m.release(*release)
	}
	return nil
}

func (m *MemoryStore) ListDecisions(_ context.Context, applicationID string) ([]*models.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Decision, 0, len(m.decisions[applicationID]))
	for _, d := range m.decisions[applicationID] {
		c := *d
		out = append(out, &c)
	}
	return out, nil
}

// ==========================
// Bulk operations
// ==========================

func (m *MemoryStore) CreateBulkOperation(_ context.Context, op *models.BulkOperation, items []*models.BulkOperationItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.operations[op.ID]; ok {
		return fmt.Errorf("%w: bulk operation %s", ErrDuplicate, op.ID)
	}
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if seen[it.ApplicationID] {
			return fmt.Errorf("%w: item for application %s", ErrDuplicate, it.ApplicationID)
		}
		seen[it.ApplicationID] = true
	}
	m.operations[op.ID] = op.Clone()
	for _, it := range items {
		m.items[it.ID] = it.Clone()
		m.itemOrder[op.ID] = append(m.itemOrder[op.ID], it.ID)
	}
	return nil
}

func (m *MemoryStore) GetBulkOperation(_ context.Context, id string) (*models.BulkOperation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.operations[id]
	if !ok {
		return nil, fmt.Errorf("%w: bulk operation %s", ErrNotFound, id)
	}
	return op.Clone(), nil
}

func (m *MemoryStore) ListBulkItems(_ context.Context, operationID string) ([]*models.BulkOperationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.itemOrder[operationID]
	out := make([]*models.BulkOperationItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.items[id].Clone())
	}
	return out, nil
}

func (m *MemoryStore) UpdateBulkItem(_ context.Context, item *models.BulkOperationItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[item.ID]; !ok {
		return fmt.Errorf("%w: bulk item %s", ErrNotFound, item.ID)
	}
	m.items[item.ID] = item.Clone()
	return nil
}

func (m *MemoryStore) IncrementBulkCounters(_ context.Context, operationID string, success, failure, skipped int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.operations[operationID]
	if !ok {
		return fmt.Errorf("%w: bulk operation %s", ErrNotFound, operationID)
	}
	if op.SuccessCount+success+op.FailureCount+failure+op.SkippedCount+skipped > op.TotalItems {
		return fmt.Errorf("%w: operation %s", ErrCounterOverflow, operationID)
	}
	op.SuccessCount += success
	op.FailureCount += failure
	op.SkippedCount += skipped
	return nil
}

func (m *MemoryStore) FinalizeBulkOperation(_ context.Context, operationID string, status models.BulkOperationStatus, completedAt time.Time, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.operations[operationID]
	if !ok {
		return fmt.Errorf("%w: bulk operation %s", ErrNotFound, operationID)
	}
	if op.Status != models.BulkRunning {
		return fmt.Errorf("%w: bulk operation %s is %s", ErrVersionConflict, operationID, op.Status)
	}
	op.Status = status
	op.CompletedAt = &completedAt
	op.ErrorSummary = summary
	return nil
}

func (m *MemoryStore) SetCancelRequested(_ context.Context, operationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.operations[operationID]
	if !ok {
		return fmt.Errorf("%w: bulk operation %s", ErrNotFound, operationID)
	}
	op.CancelRequested = true
	return nil
}

func (m *MemoryStore) AppendBulkLog(_ context.Context, entry *models.BulkOperationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *entry
	m.bulkLogs[entry.OperationID] = append(m.bulkLogs[entry.OperationID], &c)
	return nil
}

func (m *MemoryStore) ListBulkLogs(_ context.Context, operationID string) ([]*models.BulkOperationLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.BulkOperationLog, 0, len(m.bulkLogs[operationID]))
	for _, l := range m.bulkLogs[operationID] {
		c := *l
		out = append(out, &c)
	}
	return out, nil
}

func (m *MemoryStore) ListDueRetryItems(_ context.Context, now time.Time, limit int) ([]*models.BulkOperationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.BulkOperationItem
	for _, it := range m.items {
		if it.Outcome != models.OutcomeRetryPending || it.RetryAt == nil || it.RetryAt.After(now) {
			continue
		}
		if op, ok := m.operations[it.OperationID]; ok && op.Status == models.BulkRunning {
			out = append(out, it.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RetryAt.Equal(*out[j].RetryAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RetryAt.Before(*out[j].RetryAt)
	})
	return truncate(out, limit), nil
}

// ==========================
// Notifications
// ==========================

func (m *MemoryStore) CreateNotification(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notifications[n.ID]; ok {
		return fmt.Errorf("%w: notification %s", ErrDuplicate, n.ID)
	}
	m.notifications[n.ID] = n.Clone()
	return nil
}

func (m *MemoryStore) UpdateNotification(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notifications[n.ID]; !ok {
		return fmt.Errorf("%w: notification %s", ErrNotFound, n.ID)
	}
	m.notifications[n.ID] = n.Clone()
	return nil
}

func (m *MemoryStore) ListDueNotifications(_ context.Context, now time.Time, maxRetries, limit int) ([]*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Notification
	for _, n := range m.notifications {
		if n.Status != models.NotificationPending && n.Status != models.NotificationFailed {
			continue
		}
		if n.RetryCount >= maxRetries {
			continue
		}
		if n.NextRetryAt != nil && n.NextRetryAt.After(now) {
			continue
		}
		out = append(out, n.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return truncate(out, limit), nil
}

// ListNotifications returns every notification for a target. Used by tests
// and diagnostics.
func (m *MemoryStore) ListNotifications(targetID string) []*models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Notification
	for _, n := range m.notifications {
		if targetID == "" || n.TargetID == targetID {
			out = append(out, n.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *MemoryStore) GetActiveTemplate(_ context.Context, templateType models.TemplateType) (*models.EmailTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[templateType]
	if !ok || !t.IsActive {
		return nil, fmt.Errorf("%w: template %s", ErrNotFound, templateType)
	}
	c := *t
	return &c, nil
}

func (m *MemoryStore) SaveTemplate(_ context.Context, tmpl *models.EmailTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *tmpl
	m.templates[tmpl.TemplateType] = &c
	return nil
}

// ==========================
// Audit
// ==========================

func (m *MemoryStore) AppendAudit(_ context.Context, entry *models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *entry
	m.audit = append(m.audit, &c)
	return nil
}

func (m *MemoryStore) ListAudit(_ context.Context, entityType, entityID string) ([]*models.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AuditEntry
	for _, e := range m.audit {
		if (entityType == "" || e.EntityType == entityType) && (entityID == "" || e.EntityID == entityID) {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func truncate[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}
