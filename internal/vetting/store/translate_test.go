// internal/vetting/store/translate_test.go
package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	apperrors "vetting-engine/internal/common/errors"

	"github.com/stretchr/testify/assert"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code apperrors.ErrorCode
	}{
		{"not found", fmt.Errorf("%w: application a1", ErrNotFound), apperrors.ErrCodeNotFound},
		{"version conflict", fmt.Errorf("%w: a1", ErrVersionConflict), apperrors.ErrCodeConcurrentModification},
		{"deadline", context.DeadlineExceeded, apperrors.ErrCodeTimeout},
		{"passthrough", apperrors.NewAlreadyRespondedError("r1"), apperrors.ErrCodeAlreadyResponded},
		{"other", errors.New("conn reset"), apperrors.ErrCodeDatabaseFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, apperrors.CodeOf(Translate(tt.err, "application", "a1")))
		})
	}
	assert.NoError(t, Translate(nil, "x", "y"))
}
