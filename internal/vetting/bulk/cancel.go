// internal/vetting/bulk/cancel.go
package bulk

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CancelSignal shares cancellation across engine instances so that items
// running elsewhere observe it without a store round trip.
type CancelSignal interface {
	Signal(ctx context.Context, operationID string) error
	Cancelled(ctx context.Context, operationID string) (bool, error)
}

type RedisCancelSignal struct {
	client redis.Cmdable
	ttl    time.Duration
}

var _ CancelSignal = (*RedisCancelSignal)(nil)

func NewRedisCancelSignal(client redis.Cmdable, ttl time.Duration) *RedisCancelSignal {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCancelSignal{client: client, ttl: ttl}
}

func CancelKey(operationID string) string {
	return fmt.Sprintf("vetting:bulk:%s:cancel", operationID)
}

func (s *RedisCancelSignal) Signal(ctx context.Context, operationID string) error {
	if err := s.client.Set(ctx, CancelKey(operationID), "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("set cancel flag: %w", err)
	}
	return nil
}

func (s *RedisCancelSignal) Cancelled(ctx context.Context, operationID string) (bool, error) {
	n, err := s.client.Exists(ctx, CancelKey(operationID)).Result()
	if err != nil {
		return false, fmt.Errorf("check cancel flag: %w", err)
	}
	return n > 0, nil
}
