// internal/workers/vetting/record-reference-response/handler_test.go
package recordreferenceresponse

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	apperrors "vetting-engine/internal/common/errors"
	"vetting-engine/internal/common/logger"
	"vetting-engine/internal/models"
	"vetting-engine/internal/vetting/reference"
	"vetting-engine/pkg/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mocks
// ==========================

type MockResponder struct {
	mock.Mock
}

func (m *MockResponder) RecordResponse(ctx context.Context, referenceID string, in reference.ResponseInput) (*models.ReferenceResponse, error) {
	args := m.Called(ctx, referenceID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ReferenceResponse), args.Error(1)
}

func (m *MockResponder) RecordResponseByToken(ctx context.Context, token string, in reference.ResponseInput) (*models.ReferenceResponse, error) {
	args := m.Called(ctx, token, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ReferenceResponse), args.Error(1)
}

type prefixCipher struct {
	err error
}

func (c prefixCipher) Encrypt(b []byte) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	return append([]byte("enc:"), b...), nil
}

func newHandler(t *testing.T, svc Responder, cipher Encryptor) *Handler {
	t.Helper()
	reg, err := registry.Load()
	require.NoError(t, err)
	h, err := NewHandler(&Config{Timeout: 5 * time.Second}, svc, cipher, reg, logger.NewTestLogger(t))
	require.NoError(t, err)
	return h
}

func stored(in reference.ResponseInput) *models.ReferenceResponse {
	return &models.ReferenceResponse{
		ID:             "resp-1",
		ReferenceID:    "ref-1",
		Answers:        in.Answers,
		Recommendation: in.Recommendation,
		CreatedAt:      time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
	}
}

// ==========================
// Execute
// ==========================

func TestExecute_ByTokenSealsAnswers(t *testing.T) {
	svc := new(MockResponder)
	h := newHandler(t, svc, prefixCipher{})

	raw, _ := json.Marshal(map[string]interface{}{"known": "six years"})
	want := reference.ResponseInput{
		Answers:        append([]byte("enc:"), raw...),
		Recommendation: models.Recommendation("recommend"),
	}
	svc.On("RecordResponseByToken", mock.Anything, "tok-1", want).Return(stored(want), nil)

	out, err := h.Execute(context.Background(), &Input{
		ReferenceID:    "ref-1",
		Token:          "tok-1",
		Recommendation: "recommend",
		Answers:        map[string]interface{}{"known": "six years"},
	})
	require.NoError(t, err)
	assert.Equal(t, "resp-1", out.ResponseID)
	assert.Equal(t, "ref-1", out.ReferenceID)
	assert.Equal(t, "recommend", out.Recommendation)
	assert.Equal(t, "2026-10-19T12:00:00Z", out.RespondedAt)
	svc.AssertNotCalled(t, "RecordResponse", mock.Anything, mock.Anything, mock.Anything)
}

func TestExecute_ByReferenceWithoutAnswers(t *testing.T) {
	svc := new(MockResponder)
	h := newHandler(t, svc, prefixCipher{err: errors.New("must not be called")})

	want := reference.ResponseInput{Recommendation: models.Recommendation("neutral"), Actor: "staff-1"}
	svc.On("RecordResponse", mock.Anything, "ref-1", want).Return(stored(want), nil)

	out, err := h.Execute(context.Background(), &Input{ReferenceID: "ref-1", Recommendation: "neutral", Actor: "staff-1"})
	require.NoError(t, err)
	assert.Equal(t, "neutral", out.Recommendation)
	svc.AssertExpectations(t)
}

func TestExecute_Failures(t *testing.T) {
	tests := []struct {
		name   string
		input  Input
		cipher Encryptor
		svcErr error
		target error
	}{
		{
			name:   "no identifier",
			input:  Input{Recommendation: "recommend"},
			cipher: prefixCipher{},
			target: apperrors.ErrValidation,
		},
		{
			name:   "cipher failure",
			input:  Input{ReferenceID: "ref-1", Recommendation: "recommend", Answers: map[string]interface{}{"a": "b"}},
			cipher: prefixCipher{err: errors.New("key unavailable")},
			target: &apperrors.StandardError{Code: apperrors.ErrCodeInternal},
		},
		{
			name:   "already responded",
			input:  Input{ReferenceID: "ref-1", Recommendation: "recommend"},
			cipher: prefixCipher{},
			svcErr: apperrors.NewAlreadyRespondedError("ref-1"),
			target: apperrors.ErrAlreadyResponded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockResponder)
			h := newHandler(t, svc, tt.cipher)
			if tt.svcErr != nil {
				svc.On("RecordResponse", mock.Anything, "ref-1", mock.Anything).Return(nil, tt.svcErr)
			}

			_, err := h.Execute(context.Background(), &Input{
				ReferenceID:    tt.input.ReferenceID,
				Recommendation: tt.input.Recommendation,
				Answers:        tt.input.Answers,
			})
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

// ==========================
// Input contract
// ==========================

func TestInputSchema(t *testing.T) {
	h := newHandler(t, new(MockResponder), prefixCipher{})

	tests := []struct {
		name  string
		vars  map[string]interface{}
		valid bool
	}{
		{"by token", map[string]interface{}{"token": "tok-1", "recommendation": "recommend"}, true},
		{"by reference", map[string]interface{}{"referenceId": "ref-1", "recommendation": "do_not_recommend"}, true},
		{"unknown recommendation", map[string]interface{}{"referenceId": "ref-1", "recommendation": "maybe"}, false},
		{"no identifier", map[string]interface{}{"recommendation": "recommend"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.schema.Validate(tt.vars)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, result.Valid)
		})
	}
}
