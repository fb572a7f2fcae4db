// internal/models/models_test.go
package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Application status machine
// ==========================

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to ApplicationStatus
		want     bool
	}{
		{StatusSubmitted, StatusUnderReview, true},
		{StatusSubmitted, StatusApproved, false},
		{StatusUnderReview, StatusApproved, true},
		{StatusUnderReview, StatusInfoRequested, true},
		{StatusInfoRequested, StatusUnderReview, true},
		{StatusInterviewScheduled, StatusUnderReview, true},
		{StatusInfoRequested, StatusApproved, false},
		{StatusSubmitted, StatusWithdrawn, true},
		{StatusInterviewScheduled, StatusExpired, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTerminalStatusesNeverTransition(t *testing.T) {
	all := []ApplicationStatus{
		StatusSubmitted, StatusUnderReview, StatusInfoRequested, StatusInterviewScheduled,
		StatusApproved, StatusRejected, StatusWithdrawn, StatusExpired,
	}
	for _, from := range all {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range all {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestApplication_ArchiveRequiresTerminal(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	app := &Application{ID: "a1", Status: StatusUnderReview}
	require.Error(t, app.Archive(now))
	assert.Nil(t, app.DeletedAt)

	app.Status = StatusRejected
	require.NoError(t, app.Archive(now))
	require.NotNil(t, app.DeletedAt)
	assert.NoError(t, app.Validate())
}

func TestApplication_ValidateRejectsDeletedActive(t *testing.T) {
	now := time.Now()
	app := &Application{ID: "a1", Status: StatusSubmitted, DeletedAt: &now}
	assert.Error(t, app.Validate())
}

// ==========================
// Reviewer
// ==========================

func TestReviewer_IsEligible(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)
	earlier := now.Add(-time.Hour)

	tests := []struct {
		name string
		r    Reviewer
		want bool
	}{
		{"eligible", Reviewer{IsActive: true, IsAvailable: true, MaxWorkload: 2, CurrentWorkload: 1}, true},
		{"inactive", Reviewer{IsActive: false, IsAvailable: true, MaxWorkload: 2}, false},
		{"unavailable", Reviewer{IsActive: true, IsAvailable: false, MaxWorkload: 2}, false},
		{"at capacity", Reviewer{IsActive: true, IsAvailable: true, MaxWorkload: 2, CurrentWorkload: 2}, false},
		{"away until later", Reviewer{IsActive: true, IsAvailable: true, MaxWorkload: 2, UnavailableUntil: &later}, false},
		{"back already", Reviewer{IsActive: true, IsAvailable: true, MaxWorkload: 2, UnavailableUntil: &earlier}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.r.IsEligible(now))
		})
	}
}

func TestReviewer_RecordCompletion(t *testing.T) {
	r := &Reviewer{}
	r.RecordCompletion(true, 10)
	r.RecordCompletion(false, 20)

	assert.Equal(t, 2, r.CompletedReviews)
	assert.InDelta(t, 15.0, r.AverageReviewHours, 0.0001)
	assert.InDelta(t, 0.5, r.ApprovalRate, 0.0001)
}

// ==========================
// Reference
// ==========================

func TestReference_RemindersSent(t *testing.T) {
	now := time.Now()
	ref := &Reference{}
	assert.Equal(t, 0, ref.RemindersSent())
	ref.FirstReminderAt = &now
	assert.Equal(t, 1, ref.RemindersSent())
	ref.SecondReminderAt = &now
	ref.FinalReminderAt = &now
	assert.Equal(t, 3, ref.RemindersSent())
}

func TestDecisionType_TargetStatus(t *testing.T) {
	assert.Equal(t, StatusApproved, DecisionApprove.TargetStatus())
	assert.True(t, DecisionReject.IsFinal())
	assert.False(t, DecisionRequestInfo.IsFinal())
	assert.Equal(t, StatusInterviewScheduled, DecisionScheduleInterview.TargetStatus())
}
