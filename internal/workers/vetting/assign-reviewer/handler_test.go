// internal/workers/vetting/assign-reviewer/handler_test.go
package assignreviewer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"vetting-engine/internal/common/camunda"
	apperrors "vetting-engine/internal/common/errors"
	"vetting-engine/internal/common/logger"
	"vetting-engine/internal/models"
	"vetting-engine/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mocks
// ==========================

type MockAssigner struct {
	mock.Mock
}

func (m *MockAssigner) BeginReview(ctx context.Context, applicationID, reviewerID, actor string) (*models.Application, error) {
	args := m.Called(ctx, applicationID, reviewerID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Application), args.Error(1)
}

func (m *MockAssigner) AssignReviewer(ctx context.Context, applicationID, actor string) (*models.Application, error) {
	args := m.Called(ctx, applicationID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Application), args.Error(1)
}

func newHandler(t *testing.T, svc Assigner) *Handler {
	t.Helper()
	reg, err := registry.Load()
	require.NoError(t, err)
	h, err := NewHandler(&Config{Timeout: 5 * time.Second}, svc, reg, logger.NewTestLogger(t))
	require.NoError(t, err)
	return h
}

func underReview(reviewerID string) *models.Application {
	started := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	return &models.Application{
		ID:                 "app-1",
		Status:             models.StatusUnderReview,
		AssignedReviewerID: reviewerID,
		ReviewStartedAt:    &started,
	}
}

// ==========================
// Execute
// ==========================

func TestExecute_NamedReviewer(t *testing.T) {
	svc := new(MockAssigner)
	h := newHandler(t, svc)
	svc.On("BeginReview", mock.Anything, "app-1", "rev-9", "admin-1").Return(underReview("rev-9"), nil)

	out, err := h.Execute(context.Background(), &Input{ApplicationID: "app-1", ReviewerID: "rev-9", Actor: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, "rev-9", out.ReviewerID)
	assert.Equal(t, "under_review", out.Status)
	assert.Equal(t, "2026-10-19T08:00:00Z", out.ReviewStartedAt)
	svc.AssertNotCalled(t, "AssignReviewer", mock.Anything, mock.Anything, mock.Anything)
}

func TestExecute_AutomaticSelectionDefaultsActor(t *testing.T) {
	svc := new(MockAssigner)
	h := newHandler(t, svc)
	svc.On("AssignReviewer", mock.Anything, "app-1", "system").Return(underReview("rev-2"), nil)

	out, err := h.Execute(context.Background(), &Input{ApplicationID: "app-1"})
	require.NoError(t, err)
	assert.Equal(t, "rev-2", out.ReviewerID)
	svc.AssertExpectations(t)
}

func TestExecute_ErrorsKeepTheirCode(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		retryable bool
	}{
		{"reviewer full", apperrors.NewReviewerUnavailableError("rev-9", "at capacity"), apperrors.ErrReviewerUnavailable, true},
		{"already assigned", apperrors.NewAlreadyAssignedError("app-1", "rev-1"), apperrors.ErrAlreadyAssigned, false},
		{"wrong status", apperrors.NewInvalidTransitionError("application", "app-1", "approved", "under_review"), apperrors.ErrInvalidTransition, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockAssigner)
			h := newHandler(t, svc)
			svc.On("BeginReview", mock.Anything, "app-1", "rev-9", "system").Return(nil, tt.err)

			_, err := h.Execute(context.Background(), &Input{ApplicationID: "app-1", ReviewerID: "rev-9"})
			assert.ErrorIs(t, err, tt.target)
			assert.Equal(t, tt.retryable, apperrors.IsRetryable(err))
		})
	}
}

// ==========================
// Input contract
// ==========================

func TestInputSchema(t *testing.T) {
	h := newHandler(t, new(MockAssigner))

	job := func(vars map[string]interface{}) entities.Job {
		raw, _ := json.Marshal(vars)
		return entities.Job{ActivatedJob: &pb.ActivatedJob{Key: 1, Type: TaskType, Variables: string(raw)}}
	}

	result, err := h.schema.Validate(map[string]interface{}{"applicationId": "app-1"})
	require.NoError(t, err)
	assert.True(t, result.Valid)

	result, err = h.schema.Validate(map[string]interface{}{"reviewerId": "rev-1"})
	require.NoError(t, err)
	assert.False(t, result.Valid)

	var in Input
	require.NoError(t, camunda.DecodeVariables(job(map[string]interface{}{"applicationId": "app-1", "reviewerId": "rev-1"}), h.schema, &in))
	assert.Equal(t, "rev-1", in.ReviewerID)
}
