// internal/vetting/application/service_test.go
package application

import (
	"context"
	"sync"
	"testing"
	"time"

	apperrors "vetting-engine/internal/common/errors"
	"vetting-engine/internal/common/logger"
	"vetting-engine/internal/models"
	"vetting-engine/internal/vetting/clock"
	"vetting-engine/internal/vetting/notification"
	"vetting-engine/internal/vetting/reviewer"
	"vetting-engine/internal/vetting/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

type recordingAuditor struct {
	mu      sync.Mutex
	entries []models.AuditEntry
}

func (r *recordingAuditor) Record(_ context.Context, e models.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recordingAuditor) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

type fixture struct {
	svc     *Service
	mem     *store.MemoryStore
	clk     *clock.ManualClock
	auditor *recordingAuditor
}

func newFixture(t *testing.T, reviewers ...*models.Reviewer) *fixture {
	t.Helper()
	mem := store.NewMemoryStore()
	for _, r := range reviewers {
		require.NoError(t, mem.CreateReviewer(context.Background(), r))
	}
	clk := clock.NewManualClock(start)
	log := logger.NewTestLogger(t)
	auditor := &recordingAuditor{}
	pool := reviewer.NewPool(mem, auditor, clk, log)
	dispatcher := notification.NewDispatcher(mem, nil, nil, auditor, clk, notification.DefaultConfig(), log)
	svc := NewService(mem, pool, dispatcher, clk, DefaultConfig(), log, WithAuditor(auditor))
	return &fixture{svc: svc, mem: mem, clk: clk, auditor: auditor}
}

func reviewerWith(id string, load, max int) *models.Reviewer {
	return &models.Reviewer{
		ID: id, UserID: "u-" + id, DisplayName: id,
		IsActive: true, IsAvailable: true,
		CurrentWorkload: load, MaxWorkload: max,
	}
}

func validInput(applicant string) SubmitInput {
	return SubmitInput{
		ApplicantID:        applicant,
		PII:                models.ApplicantPII{FullName: []byte("enc-name"), Email: []byte("enc-email")},
		AgreesToTerms:      true,
		AgreesToGuidelines: true,
		ConsentToContact:   true,
		References: []ReferenceInput{
			{Name: []byte("enc-ref-1"), Email: []byte("enc-ref-1-email")},
			{Name: []byte("enc-ref-2"), Email: []byte("enc-ref-2-email")},
		},
	}
}

func (f *fixture) submit(t *testing.T, applicant string) *models.Application {
	t.Helper()
	app, err := f.svc.Submit(context.Background(), validInput(applicant))
	require.NoError(t, err)
	return app
}

func (f *fixture) workload(t *testing.T, id string) int {
	t.Helper()
	r, err := f.mem.GetReviewer(context.Background(), id)
	require.NoError(t, err)
	return r.CurrentWorkload
}

// ==========================
// Submit
// ==========================

func TestSubmit_CreatesSubmittedApplication(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	app := f.submit(t, "applicant-1")

	assert.Equal(t, models.StatusSubmitted, app.Status)
	assert.Equal(t, models.PriorityStandard, app.Priority)
	assert.Equal(t, "VET-20260302-0001", app.ApplicationNumber)
	assert.Equal(t, start.Add(90*24*time.Hour), app.ExpiresAt)

	refs, err := f.mem.ListReferences(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	for i, ref := range refs {
		assert.Equal(t, i+1, ref.Ordinal)
		assert.Equal(t, models.ReferencePending, ref.Status)
	}

	notes := f.mem.ListNotifications(app.ID)
	require.Len(t, notes, 1)
	assert.Equal(t, models.TemplateApplicationReceived, notes[0].TemplateType)
	assert.Equal(t, "VET-20260302-0001", notes[0].Context["application_number"])
	assert.Equal(t, []string{models.ActionApplicationSubmitted}, f.auditor.actions())
}

func TestSubmit_NumbersIncrementWithinDay(t *testing.T) {
	f := newFixture(t)
	first := f.submit(t, "applicant-1")
	second := f.submit(t, "applicant-2")

	assert.Equal(t, "VET-20260302-0001", first.ApplicationNumber)
	assert.Equal(t, "VET-20260302-0002", second.ApplicationNumber)
}

func TestSubmit_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SubmitInput)
		want   string
	}{
		{"terms", func(in *SubmitInput) { in.AgreesToTerms = false }, "terms"},
		{"guidelines", func(in *SubmitInput) { in.AgreesToGuidelines = false }, "guidelines"},
		{"consent", func(in *SubmitInput) { in.ConsentToContact = false }, "consent"},
		{"too few references", func(in *SubmitInput) { in.References = in.References[:1] }, "references"},
		{"email required", func(in *SubmitInput) { in.PII.Email = nil }, "email"},
		{"bad priority", func(in *SubmitInput) { in.Priority = "whenever" }, "priority"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := validInput("applicant-1")
			tt.mutate(&in)

			_, err := f.svc.Submit(context.Background(), in)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSubmit_AnonymousNeedsNoName(t *testing.T) {
	f := newFixture(t)
	in := validInput("applicant-1")
	in.IsAnonymous = true
	in.PII = models.ApplicantPII{}

	app, err := f.svc.Submit(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, app.IsAnonymous)
	assert.Empty(t, f.mem.ListNotifications(app.ID))
}

func TestSubmit_DuplicateApplicant(t *testing.T) {
	f := newFixture(t)
	f.submit(t, "applicant-1")

	_, err := f.svc.Submit(context.Background(), validInput("applicant-1"))
	assert.ErrorIs(t, err, apperrors.ErrDuplicateApplication)
}

func TestFormatApplicationNumber(t *testing.T) {
	assert.Equal(t, "VET-20261231-0042", FormatApplicationNumber(time.Date(2026, 12, 31, 23, 0, 0, 0, time.UTC), 42))
}

// ==========================
// Review assignment
// ==========================

func TestBeginReview_FullReviewerIsUnavailable(t *testing.T) {
	f := newFixture(t, reviewerWith("rev-x", 3, 3))
	ctx := context.Background()
	app := f.submit(t, "applicant-1")

	_, err := f.svc.BeginReview(ctx, app.ID, "rev-x", "admin-1")
	assert.ErrorIs(t, err, apperrors.ErrReviewerUnavailable)

	stored, err := f.svc.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, stored.Status)
	assert.Empty(t, stored.AssignedReviewerID)
	assert.Equal(t, 3, f.workload(t, "rev-x"))
}

func TestBeginReview_ConcurrentCallsAssignOnce(t *testing.T) {
	f := newFixture(t, reviewerWith("rev-1", 2, 3))
	app := f.submit(t, "applicant-1")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.BeginReview(context.Background(), app.ID, "rev-1", "admin-1")
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, apperrors.ErrAlreadyAssigned)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 3, f.workload(t, "rev-1"))

	stored, err := f.svc.GetApplication(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, stored.Status)
	assert.Equal(t, "rev-1", stored.AssignedReviewerID)
	require.NotNil(t, stored.ReviewStartedAt)
}

func TestBeginReview_WorkloadNeverExceedsCapacity(t *testing.T) {
	f := newFixture(t, reviewerWith("rev-1", 0, 2))
	apps := make([]*models.Application, 5)
	for i := range apps {
		apps[i] = f.submit(t, "applicant-"+string(rune('a'+i)))
	}

	var wg sync.WaitGroup
	for _, app := range apps {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = f.svc.BeginReview(context.Background(), id, "rev-1", "admin-1")
		}(app.ID)
	}
	wg.Wait()

	assert.Equal(t, 2, f.workload(t, "rev-1"))
}

func TestBeginReview_RejectsNonSubmitted(t *testing.T) {
	f := newFixture(t, reviewerWith("rev-1", 0, 3))
	ctx := context.Background()
	app := f.submit(t, "applicant-1")
	_, err := f.svc.Withdraw(ctx, app.ID, "applicant-1")
	require.NoError(t, err)

	_, err = f.svc.BeginReview(ctx, app.ID, "rev-1", "admin-1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	assert.Equal(t, 0, f.workload(t, "rev-1"))
}

func TestAssignReviewer_PicksLeastLoaded(t *testing.T) {
	f := newFixture(t, reviewerWith("busy", 2, 5), reviewerWith("idle", 0, 5))
	app := f.submit(t, "applicant-1")

	out, err := f.svc.AssignReviewer(context.Background(), app.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "idle", out.AssignedReviewerID)
	assert.Equal(t, 1, f.workload(t, "idle"))
	assert.Contains(t, f.auditor.actions(), models.ActionReviewStarted)
}

func TestAssignReviewer_NoneAvailable(t *testing.T) {
	f := newFixture(t, reviewerWith("full", 1, 1))
	app := f.submit(t, "applicant-1")

	_, err := f.svc.AssignReviewer(context.Background(), app.ID, "admin-1")
	assert.ErrorIs(t, err, apperrors.ErrNoReviewerAvailable)
}

// ==========================
// Lifecycle
// ==========================

func TestWithdraw_ReleasesReviewer(t *testing.T) {
	f := newFixture(t, reviewerWith("rev-1", 0, 3))
	ctx := context.Background()
	app := f.submit(t, "applicant-1")
	_, err := f.svc.BeginReview(ctx, app.ID, "rev-1", "admin-1")
	require.NoError(t, err)
	require.Equal(t, 1, f.workload(t, "rev-1"))

	out, err := f.svc.Withdraw(ctx, app.ID, "applicant-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusWithdrawn, out.Status)
	assert.Equal(t, 0, f.workload(t, "rev-1"))

	_, err = f.svc.Withdraw(ctx, app.ID, "applicant-1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestExpireDue(t *testing.T) {
	f := newFixture(t, reviewerWith("rev-1", 0, 3))
	ctx := context.Background()
	stale := f.submit(t, "applicant-1")
	_, err := f.svc.BeginReview(ctx, stale.ID, "rev-1", "admin-1")
	require.NoError(t, err)

	f.clk.Advance(60 * 24 * time.Hour)
	fresh := f.submit(t, "applicant-2")

	now := f.clk.Advance(31 * 24 * time.Hour)
	require.NoError(t, f.svc.ExpireDue(ctx, now))

	got, err := f.svc.GetApplication(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, got.Status)
	assert.Equal(t, 0, f.workload(t, "rev-1"))

	got, err = f.svc.GetApplication(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, got.Status)

	// already terminal: no-op
	again, err := f.svc.Expire(ctx, stale.ID, models.SystemActor)
	require.NoError(t, err)
	assert.Equal(t, got.Version, again.Version)
	assert.Equal(t, models.StatusExpired, again.Status)
}

func TestTerminalStatusesNeverTransition(t *testing.T) {
	f := newFixture(t, reviewerWith("rev-1", 0, 3))
	ctx := context.Background()
	app := f.submit(t, "applicant-1")
	_, err := f.svc.Withdraw(ctx, app.ID, "applicant-1")
	require.NoError(t, err)

	_, err = f.svc.ResumeReview(ctx, app.ID, "admin-1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	_, err = f.svc.AssignReviewer(ctx, app.ID, "admin-1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestArchive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.submit(t, "applicant-1")

	_, err := f.svc.Archive(ctx, app.ID, "admin-1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	_, err = f.svc.Withdraw(ctx, app.ID, "applicant-1")
	require.NoError(t, err)
	out, err := f.svc.Archive(ctx, app.ID, "admin-1")
	require.NoError(t, err)
	require.NotNil(t, out.DeletedAt)

	// archived applicants may apply again
	again := f.submit(t, "applicant-1")
	assert.NotEqual(t, app.ID, again.ID)
}

func TestGetApplication_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetApplication(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
