// internal/vetting/store/memory_test.go
package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"vetting-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)

func newApp(id, applicant string) *models.Application {
	return &models.Application{
		ID:                id,
		ApplicationNumber: "VET-20260210-" + id,
		ApplicantID:       applicant,
		Status:            models.StatusSubmitted,
		Priority:          models.PriorityStandard,
		SubmittedAt:       now,
		ExpiresAt:         now.Add(90 * 24 * time.Hour),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// ==========================
// Applications
// ==========================

func TestMemoryStore_OneActiveApplicationPerApplicant(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateApplication(ctx, newApp("a1", "user-1"), nil))
	err := s.CreateApplication(ctx, newApp("a2", "user-1"), nil)
	assert.ErrorIs(t, err, ErrDuplicate)

	app, err := s.GetApplication(ctx, "a1")
	require.NoError(t, err)
	app.Status = models.StatusWithdrawn
	require.NoError(t, app.Archive(now))
	require.NoError(t, s.UpdateApplication(ctx, app, nil))

	assert.NoError(t, s.CreateApplication(ctx, newApp("a3", "user-1"), nil))
}

func TestMemoryStore_UpdateApplicationCAS(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateApplication(ctx, newApp("a1", "user-1"), nil))

	first, _ := s.GetApplication(ctx, "a1")
	second, _ := s.GetApplication(ctx, "a1")

	first.Priority = models.PriorityHigh
	require.NoError(t, s.UpdateApplication(ctx, first, nil))
	assert.Equal(t, 2, first.Version)

	second.Priority = models.PriorityUrgent
	assert.ErrorIs(t, s.UpdateApplication(ctx, second, nil), ErrVersionConflict)
}

func TestMemoryStore_RejectsDeletedNonTerminal(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateApplication(ctx, newApp("a1", "user-1"), nil))

	app, _ := s.GetApplication(ctx, "a1")
	app.DeletedAt = &now
	assert.Error(t, s.UpdateApplication(ctx, app, nil))
}

// ==========================
// Reviewer capacity
// ==========================

func TestMemoryStore_AssignReviewerNeverExceedsCapacity(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateReviewer(ctx, &models.Reviewer{
		ID: "r1", IsActive: true, IsAvailable: true, MaxWorkload: 3,
	}))

	const apps = 10
	for i := 0; i < apps; i++ {
		require.NoError(t, s.CreateApplication(ctx, newApp(fmt.Sprintf("a%d", i), fmt.Sprintf("u%d", i)), nil))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	assigned := 0
	for i := 0; i < apps; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			app, err := s.GetApplication(ctx, fmt.Sprintf("a%d", i))
			require.NoError(t, err)
			app.Status = models.StatusUnderReview
			app.AssignedReviewerID = "r1"
			if err := s.AssignReviewer(ctx, app, "r1", now); err == nil {
				mu.Lock()
				assigned++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrNotEligible)
			}
		}(i)
	}
	wg.Wait()

	r, err := s.GetReviewer(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 3, assigned)
	assert.Equal(t, 3, r.CurrentWorkload)
}

func TestMemoryStore_ReleaseFoldsStats(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateReviewer(ctx, &models.Reviewer{ID: "r1", IsActive: true, IsAvailable: true, MaxWorkload: 2, CurrentWorkload: 1}))

	require.NoError(t, s.ReleaseReviewer(ctx, models.ReviewerRelease{ReviewerID: "r1", Completed: true, Approved: true, ReviewHours: 4}))
	require.NoError(t, s.ReleaseReviewer(ctx, models.ReviewerRelease{ReviewerID: "r1"}))

	r, _ := s.GetReviewer(ctx, "r1")
	assert.Equal(t, 0, r.CurrentWorkload)
	assert.Equal(t, 1, r.CompletedReviews)
	assert.InDelta(t, 1.0, r.ApprovalRate, 0.001)
}

// ==========================
// Bulk counters
// ==========================

func TestMemoryStore_BulkCountersBounded(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	op := &models.BulkOperation{ID: "op1", Type: models.BulkApprove, Status: models.BulkRunning, TotalItems: 2}
	items := []*models.BulkOperationItem{
		{ID: "i1", OperationID: "op1", ApplicationID: "a1", Outcome: models.OutcomePending},
		{ID: "i2", OperationID: "op1", ApplicationID: "a2", Outcome: models.OutcomePending},
	}
	require.NoError(t, s.CreateBulkOperation(ctx, op, items))
	assert.ErrorIs(t, s.CreateBulkOperation(ctx, op, items), ErrDuplicate)

	require.NoError(t, s.IncrementBulkCounters(ctx, "op1", 1, 0, 0))
	require.NoError(t, s.IncrementBulkCounters(ctx, "op1", 0, 1, 0))
	assert.ErrorIs(t, s.IncrementBulkCounters(ctx, "op1", 0, 0, 1), ErrCounterOverflow)

	require.NoError(t, s.FinalizeBulkOperation(ctx, "op1", models.BulkCompleted, now, ""))
	assert.ErrorIs(t, s.FinalizeBulkOperation(ctx, "op1", models.BulkCompleted, now, ""), ErrVersionConflict)
}

// ==========================
// Notifications
// ==========================

func TestMemoryStore_ListDueNotifications(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	later := now.Add(time.Hour)

	for _, n := range []*models.Notification{
		{ID: "n1", Status: models.NotificationPending, CreatedAt: now.Add(2 * time.Second)},
		{ID: "n2", Status: models.NotificationFailed, RetryCount: 1, NextRetryAt: &later, CreatedAt: now},
		{ID: "n3", Status: models.NotificationFailed, RetryCount: 5, CreatedAt: now},
		{ID: "n4", Status: models.NotificationSent, CreatedAt: now},
		{ID: "n5", Status: models.NotificationFailed, RetryCount: 2, CreatedAt: now.Add(time.Second)},
	} {
		require.NoError(t, s.CreateNotification(ctx, n))
	}

	due, err := s.ListDueNotifications(ctx, now, 5, 10)
	require.NoError(t, err)
	ids := make([]string, len(due))
	for i, n := range due {
		ids[i] = n.ID
	}
	assert.Equal(t, []string{"n5", "n1"}, ids)
}

func TestMemoryStore_ListDueRetryItems_OnlyRunningOperations(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	past := now.Add(-time.Minute)

	for _, opID := range []string{"running", "finished"} {
		op := &models.BulkOperation{ID: opID, Type: models.BulkApprove, Status: models.BulkRunning, TotalItems: 1}
		require.NoError(t, s.CreateBulkOperation(ctx, op, []*models.BulkOperationItem{
			{ID: opID + "-i1", OperationID: opID, ApplicationID: "a1", Outcome: models.OutcomeRetryPending, RetryAt: &past},
		}))
	}
	require.NoError(t, s.FinalizeBulkOperation(ctx, "finished", models.BulkCompleted, now, ""))

	due, err := s.ListDueRetryItems(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "running-i1", due[0].ID)
}

// ==========================
// References
// ==========================

func newRef(id, appID string, status models.ReferenceStatus, created time.Time) *models.Reference {
	return &models.Reference{
		ID: id, ApplicationID: appID, Ordinal: 1, Status: status,
		Name: []byte("n"), Email: []byte("e"), CreatedAt: created, UpdatedAt: created,
	}
}

func TestMemoryStore_ListContactableReferences(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("sub-%d", i)
		require.NoError(t, s.CreateApplication(ctx, newApp(id, "user-"+id),
			[]*models.Reference{newRef("ref-"+id, id, models.ReferencePending, now.Add(time.Duration(i)*time.Second))}))
	}
	reviewed := newApp("rev", "user-rev")
	reviewed.Status = models.StatusUnderReview
	reviewed.AssignedReviewerID = "rev-1"
	require.NoError(t, s.CreateApplication(ctx, reviewed,
		[]*models.Reference{newRef("ref-rev", "rev", models.ReferencePending, now.Add(time.Hour))}))

	refs, err := s.ListContactableReferences(ctx, 3)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "ref-rev", refs[0].ID)
}

func TestMemoryStore_ListDueReferences(t *testing.T) {
	day := 24 * time.Hour
	schedule := models.ReminderSchedule{
		ReminderAfter:  [3]time.Duration{3 * day, 7 * day, 12 * day},
		ResponseWindow: 14 * day,
	}
	at := func(d time.Duration) *time.Time { v := now.Add(d); return &v }

	tests := []struct {
		name string
		ref  *models.Reference
		due  bool
	}{
		{"first reminder not yet due", &models.Reference{ContactedAt: at(-2 * day)}, false},
		{"first reminder due", &models.Reference{ContactedAt: at(-3 * day)}, true},
		{"second reminder not yet due", &models.Reference{ContactedAt: at(-6 * day), FirstReminderAt: at(-3 * day)}, false},
		{"final reminder due", &models.Reference{ContactedAt: at(-12 * day), FirstReminderAt: at(-9 * day), SecondReminderAt: at(-5 * day)}, true},
		{"expiry due", &models.Reference{
			ContactedAt: at(-15 * day), FirstReminderAt: at(-12 * day), SecondReminderAt: at(-8 * day),
			FinalReminderAt: at(-3 * day), FormExpiresAt: at(-day),
		}, true},
		{"waiting for expiry", &models.Reference{
			ContactedAt: at(-13 * day), FirstReminderAt: at(-10 * day), SecondReminderAt: at(-6 * day),
			FinalReminderAt: at(-day), FormExpiresAt: at(day),
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryStore()
			ctx := context.Background()
			ref := tt.ref
			ref.ID, ref.ApplicationID, ref.Ordinal, ref.Status = "ref-1", "a1", 1, models.ReferenceContacted
			ref.Name, ref.Email, ref.CreatedAt, ref.UpdatedAt = []byte("n"), []byte("e"), now.Add(-20*day), now
			require.NoError(t, s.CreateApplication(ctx, newApp("a1", "user-1"), []*models.Reference{ref}))

			due, err := s.ListDueReferences(ctx, now, schedule, 10)
			require.NoError(t, err)
			assert.Equal(t, tt.due, len(due) == 1)
		})
	}
}

func TestMemoryStore_ListDueReferences_EarliestFirst(t *testing.T) {
	day := 24 * time.Hour
	schedule := models.ReminderSchedule{ReminderAfter: [3]time.Duration{3 * day, 7 * day, 12 * day}, ResponseWindow: 14 * day}
	s := NewMemoryStore()
	ctx := context.Background()

	contacted := func(id string, ago time.Duration) *models.Reference {
		r := newRef(id, "a1", models.ReferenceContacted, now.Add(-30*day))
		at := now.Add(-ago)
		r.ContactedAt = &at
		return r
	}
	// created order differs from due order
	refs := []*models.Reference{contacted("late", 3*day), contacted("early", 5*day), contacted("idle", day)}
	for i, r := range refs {
		r.Ordinal = i + 1
	}
	require.NoError(t, s.CreateApplication(ctx, newApp("a1", "user-1"), refs))

	due, err := s.ListDueReferences(ctx, now, schedule, 1)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "early", due[0].ID)
}
