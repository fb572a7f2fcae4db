// internal/vetting/store/translate.go
package store

import (
	"context"
	"errors"

	apperrors "vetting-engine/internal/common/errors"
)

// Translate converts store sentinels into the engine's error taxonomy.
// StandardErrors pass through unchanged.
func Translate(err error, entity, id string) error {
	if err == nil {
		return nil
	}
	var std *apperrors.StandardError
	switch {
	case errors.As(err, &std):
		return std
	case errors.Is(err, ErrNotFound):
		return apperrors.NewNotFoundError(entity, id)
	case errors.Is(err, ErrVersionConflict):
		return apperrors.NewConcurrentModificationError(entity, id)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewTimeoutError("store "+entity, err)
	}
	return apperrors.NewDatabaseError(entity+" "+id, err)
}
