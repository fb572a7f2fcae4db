// internal/workers/vetting/get-bulk-operation/handler_test.go
package getbulkoperation

import (
	"context"
	"testing"
	"time"

	apperrors "vetting-engine/internal/common/errors"
	"vetting-engine/internal/common/logger"
	"vetting-engine/internal/models"
	"vetting-engine/internal/vetting/bulk"
	"vetting-engine/pkg/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockReader struct {
	mock.Mock
}

func (m *MockReader) GetBulkOperation(ctx context.Context, operationID string) (*bulk.View, error) {
	args := m.Called(ctx, operationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*bulk.View), args.Error(1)
}

func newHandler(t *testing.T, svc Reader) *Handler {
	t.Helper()
	reg, err := registry.Load()
	require.NoError(t, err)
	h, err := NewHandler(&Config{Timeout: 5 * time.Second}, svc, reg, logger.NewTestLogger(t))
	require.NoError(t, err)
	return h
}

func TestExecute_ReportsCountersAndItems(t *testing.T) {
	svc := new(MockReader)
	h := newHandler(t, svc)
	started := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	done := started.Add(4 * time.Minute)
	svc.On("GetBulkOperation", mock.Anything, "op-1").Return(&bulk.View{
		Operation: &models.BulkOperation{
			ID:           "op-1",
			Type:         models.BulkApprove,
			Status:       models.BulkCompleted,
			StartedAt:    started,
			CompletedAt:  &done,
			TotalItems:   2,
			SuccessCount: 1,
			FailureCount: 1,
		},
		Items: []*models.BulkOperationItem{
			{ApplicationID: "app-1", Outcome: models.OutcomeSucceeded, AttemptCount: 1},
			{ApplicationID: "app-2", Outcome: models.OutcomeFailed, ErrorCode: "INVALID_TRANSITION", AttemptCount: 1},
		},
		Logs: []*models.BulkOperationLog{{Message: "started"}, {Message: "finished"}},
	}, nil)

	out, err := h.Execute(context.Background(), &Input{OperationID: "op-1"})
	require.NoError(t, err)
	assert.Equal(t, "approve", out.Type)
	assert.Equal(t, "completed", out.Status)
	assert.Equal(t, 2, out.TotalItems)
	assert.Equal(t, 1, out.SuccessCount)
	assert.Equal(t, 1, out.FailureCount)
	assert.Equal(t, "2026-10-19T09:04:00Z", out.CompletedAt)
	require.Len(t, out.Items, 2)
	assert.Equal(t, "INVALID_TRANSITION", out.Items[1].ErrorCode)
	assert.Equal(t, 2, out.LogCount)
}

func TestExecute_UnknownOperation(t *testing.T) {
	svc := new(MockReader)
	h := newHandler(t, svc)
	svc.On("GetBulkOperation", mock.Anything, "op-x").Return(nil, apperrors.NewNotFoundError("bulk_operation", "op-x"))

	_, err := h.Execute(context.Background(), &Input{OperationID: "op-x"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestInputSchema(t *testing.T) {
	h := newHandler(t, new(MockReader))

	result, err := h.schema.Validate(map[string]interface{}{"operationId": "op-1"})
	require.NoError(t, err)
	assert.True(t, result.Valid)

	result, err = h.schema.Validate(map[string]interface{}{})
	require.NoError(t, err)
	assert.False(t, result.Valid)
}
