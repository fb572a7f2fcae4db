// internal/vetting/reviewer/pool_test.go
package reviewer

import (
	"context"
	"testing"
	"time"

	apperrors "vetting-engine/internal/common/errors"
	"vetting-engine/internal/common/logger"
	"vetting-engine/internal/models"
	"vetting-engine/internal/vetting/clock"
	"vetting-engine/internal/vetting/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)

func rev(id string, load, max int, rate float64, specs ...string) *models.Reviewer {
	return &models.Reviewer{
		ID: id, UserID: "u-" + id, IsActive: true, IsAvailable: true,
		CurrentWorkload: load, MaxWorkload: max, ApprovalRate: rate, Specializations: specs,
	}
}

func newPool(t *testing.T, reviewers ...*models.Reviewer) (*Pool, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	for _, r := range reviewers {
		require.NoError(t, mem.CreateReviewer(context.Background(), r))
	}
	return NewPool(mem, nil, clock.NewManualClock(now), logger.NewTestLogger(t)), mem
}

// ==========================
// Selection
// ==========================

func TestSelectReviewer(t *testing.T) {
	later := now.Add(time.Hour)
	earlier := now.Add(-time.Hour)

	tests := []struct {
		name      string
		reviewers []*models.Reviewer
		specs     []string
		wantID    string
		fallback  bool
		wantErr   error
	}{
		{
			name:      "lowest workload wins",
			reviewers: []*models.Reviewer{rev("a", 2, 5, 0.9), rev("b", 1, 5, 0.1)},
			wantID:    "b",
		},
		{
			name:      "approval rate breaks workload ties",
			reviewers: []*models.Reviewer{rev("a", 1, 5, 0.5), rev("b", 1, 5, 0.8)},
			wantID:    "b",
		},
		{
			name:      "id breaks full ties",
			reviewers: []*models.Reviewer{rev("z", 1, 5, 0.5), rev("m", 1, 5, 0.5)},
			wantID:    "m",
		},
		{
			name:      "full reviewers are skipped",
			reviewers: []*models.Reviewer{rev("a", 3, 3, 1), rev("b", 4, 5, 0)},
			wantID:    "b",
		},
		{
			name: "unavailable until future is skipped, past is fine",
			reviewers: []*models.Reviewer{
				func() *models.Reviewer { r := rev("a", 0, 5, 1); r.UnavailableUntil = &later; return r }(),
				func() *models.Reviewer { r := rev("b", 2, 5, 0); r.UnavailableUntil = &earlier; return r }(),
			},
			wantID: "b",
		},
		{
			name:      "specialization narrows the set",
			reviewers: []*models.Reviewer{rev("a", 0, 5, 1, "general"), rev("b", 3, 5, 0, "rope")},
			specs:     []string{"rope"},
			wantID:    "b",
		},
		{
			name:      "specialization falls back to everyone eligible",
			reviewers: []*models.Reviewer{rev("a", 1, 5, 1, "general"), rev("b", 0, 5, 0)},
			specs:     []string{"medical"},
			wantID:    "b",
			fallback:  true,
		},
		{
			name: "inactive and unavailable never selected",
			reviewers: []*models.Reviewer{
				func() *models.Reviewer { r := rev("a", 0, 5, 1); r.IsActive = false; return r }(),
				func() *models.Reviewer { r := rev("b", 0, 5, 1); r.IsAvailable = false; return r }(),
			},
			wantErr: apperrors.ErrNoReviewerAvailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newPool(t, tt.reviewers...)
			sel, err := p.SelectReviewer(context.Background(), tt.specs)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, sel.Reviewer.ID)
			assert.Equal(t, tt.fallback, sel.Fallback)
		})
	}
}

func TestSelectReviewerExcluding(t *testing.T) {
	p, _ := newPool(t, rev("a", 0, 5, 0), rev("b", 1, 5, 0))
	sel, err := p.SelectReviewerExcluding(context.Background(), nil, map[string]bool{"a": true})
	require.NoError(t, err)
	assert.Equal(t, "b", sel.Reviewer.ID)
}

// ==========================
// Management
// ==========================

func TestRegisterAndSetAvailability(t *testing.T) {
	p, _ := newPool(t)
	ctx := context.Background()

	r, err := p.RegisterReviewer(ctx, RegisterInput{ID: "r1", UserID: "u1", MaxWorkload: 3, Specializations: []string{"rope"}})
	require.NoError(t, err)
	assert.True(t, r.IsActive)

	_, err = p.RegisterReviewer(ctx, RegisterInput{UserID: "u2"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	off := false
	until := now.Add(72 * time.Hour)
	r, err = p.SetAvailability(ctx, "r1", AvailabilityUpdate{IsAvailable: &off, UnavailableUntil: &until})
	require.NoError(t, err)
	assert.False(t, r.IsAvailable)
	assert.ErrorIs(t, p.CheckAvailable(r), apperrors.ErrReviewerUnavailable)

	on := true
	r, err = p.SetAvailability(ctx, "r1", AvailabilityUpdate{IsAvailable: &on, ClearUntil: true})
	require.NoError(t, err)
	assert.NoError(t, p.CheckAvailable(r))

	_, err = p.GetReviewer(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
