// internal/workers/vetting/mark-manual-contact/handler_test.go
package markmanualcontact

import (
	"context"
	"testing"
	"time"

	apperrors "vetting-engine/internal/common/errors"
	"vetting-engine/internal/common/logger"
	"vetting-engine/internal/models"
	"vetting-engine/pkg/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockContactRecorder struct {
	mock.Mock
}

func (m *MockContactRecorder) MarkManualContactAttempted(ctx context.Context, referenceID, notes, actor string) (*models.Reference, error) {
	args := m.Called(ctx, referenceID, notes, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reference), args.Error(1)
}

func newHandler(t *testing.T, svc ContactRecorder) *Handler {
	t.Helper()
	reg, err := registry.Load()
	require.NoError(t, err)
	h, err := NewHandler(&Config{Timeout: 5 * time.Second}, svc, reg, logger.NewTestLogger(t))
	require.NoError(t, err)
	return h
}

func TestExecute_RecordsAttempt(t *testing.T) {
	svc := new(MockContactRecorder)
	h := newHandler(t, svc)
	at := time.Date(2026, 10, 19, 15, 30, 0, 0, time.UTC)
	svc.On("MarkManualContactAttempted", mock.Anything, "ref-1", "left voicemail", "staff-2").Return(&models.Reference{
		ID:                       "ref-1",
		Status:                   models.ReferenceExpired,
		RequiresManualContact:    true,
		ManualContactNotes:       "left voicemail",
		ManualContactAttemptedAt: &at,
	}, nil)

	out, err := h.Execute(context.Background(), &Input{ReferenceID: "ref-1", Notes: "left voicemail", Actor: "staff-2"})
	require.NoError(t, err)
	assert.Equal(t, "ref-1", out.ReferenceID)
	assert.True(t, out.RequiresManualContact)
	assert.Equal(t, "2026-10-19T15:30:00Z", out.AttemptedAt)
}

func TestExecute_UnknownReference(t *testing.T) {
	svc := new(MockContactRecorder)
	h := newHandler(t, svc)
	svc.On("MarkManualContactAttempted", mock.Anything, "ref-x", "", "system").Return(nil, apperrors.NewNotFoundError("reference", "ref-x"))

	_, err := h.Execute(context.Background(), &Input{ReferenceID: "ref-x"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.False(t, apperrors.IsRetryable(err))
}

func TestInputSchema(t *testing.T) {
	h := newHandler(t, new(MockContactRecorder))

	result, err := h.schema.Validate(map[string]interface{}{"referenceId": "ref-1", "notes": "called twice"})
	require.NoError(t, err)
	assert.True(t, result.Valid)

	result, err = h.schema.Validate(map[string]interface{}{"notes": "called twice"})
	require.NoError(t, err)
	assert.False(t, result.Valid)
}
