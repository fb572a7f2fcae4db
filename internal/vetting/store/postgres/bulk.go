// internal/vetting/store/postgres/bulk.go
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"vetting-engine/internal/models"
	"vetting-engine/internal/vetting/store"
)

const bulkColumns = `id, operation_type, status, performed_by, started_at, completed_at, parameters,
	total_items, success_count, failure_count, skipped_count, cancel_requested, error_summary`

const bulkItemColumns = `id, operation_id, application_id, outcome, error_code, error_message,
	attempt_count, retry_at, processed_at, created_at, updated_at`

func (s *Store) CreateBulkOperation(ctx context.Context, op *models.BulkOperation, items []*models.BulkOperationItem) error {
	params, err := marshalJSON(op.Parameters)
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}
	return s.pg.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO vetting_bulk_operations (`+bulkColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			op.ID, op.Type, op.Status, op.PerformedBy, op.StartedAt, nullTime(op.CompletedAt), params,
			op.TotalItems, op.SuccessCount, op.FailureCount, op.SkippedCount, op.CancelRequested, op.ErrorSummary)
		if err != nil {
			return mapError(err, "insert bulk operation "+op.ID)
		}
		for i, item := range items {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO vetting_bulk_operation_items (id, operation_id, application_id, position, outcome,
					error_code, error_message, attempt_count, retry_at, processed_at, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
				item.ID, item.OperationID, item.ApplicationID, i, item.Outcome,
				item.ErrorCode, item.ErrorMessage, item.AttemptCount, nullTime(item.RetryAt), nullTime(item.ProcessedAt),
				item.CreatedAt, item.UpdatedAt)
			if err != nil {
				return mapError(err, "insert bulk item "+item.ID)
			}
		}
		return nil
	})
}

func (s *Store) GetBulkOperation(ctx context.Context, id string) (*models.BulkOperation, error) {
	var (
		op        models.BulkOperation
		completed sql.NullTime
		params    []byte
	)
	err := s.pg.DB.QueryRowContext(ctx, `SELECT `+bulkColumns+` FROM vetting_bulk_operations WHERE id = $1`, id).Scan(
		&op.ID, &op.Type, &op.Status, &op.PerformedBy, &op.StartedAt, &completed, &params,
		&op.TotalItems, &op.SuccessCount, &op.FailureCount, &op.SkippedCount, &op.CancelRequested, &op.ErrorSummary)
	if err != nil {
		return nil, mapError(err, "bulk operation "+id)
	}
	op.CompletedAt = fromNullTime(completed)
	if err := unmarshalJSON(params, &op.Parameters); err != nil {
		return nil, fmt.Errorf("decode parameters: %w", err)
	}
	return &op, nil
}

func scanBulkItem(row scanner) (*models.BulkOperationItem, error) {
	var (
		item             models.BulkOperationItem
		retry, processed sql.NullTime
	)
	err := row.Scan(&item.ID, &item.OperationID, &item.ApplicationID, &item.Outcome, &item.ErrorCode, &item.ErrorMessage,
		&item.AttemptCount, &retry, &processed, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	item.RetryAt = fromNullTime(retry)
	item.ProcessedAt = fromNullTime(processed)
	return &item, nil
}

func (s *Store) queryBulkItems(ctx context.Context, query string, args ...interface{}) ([]*models.BulkOperationItem, error) {
	rows, err := s.pg.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "list bulk items")
	}
	defer rows.Close()

	var out []*models.BulkOperationItem
	for rows.Next() {
		item, err := scanBulkItem(rows)
		if err != nil {
			return nil, mapError(err, "scan bulk item")
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Store) ListBulkItems(ctx context.Context, operationID string) ([]*models.BulkOperationItem, error) {
	return s.queryBulkItems(ctx, `
		SELECT `+bulkItemColumns+` FROM vetting_bulk_operation_items
		WHERE operation_id = $1 ORDER BY position`, operationID)
}

func (s *Store) ListDueRetryItems(ctx context.Context, now time.Time, limit int) ([]*models.BulkOperationItem, error) {
	return s.queryBulkItems(ctx, `
		SELECT i.id, i.operation_id, i.application_id, i.outcome, i.error_code, i.error_message,
			i.attempt_count, i.retry_at, i.processed_at, i.created_at, i.updated_at
		FROM vetting_bulk_operation_items i
		JOIN vetting_bulk_operations o ON o.id = i.operation_id
		WHERE i.outcome = 'retry_pending' AND i.retry_at <= $1 AND o.status = 'running'
		ORDER BY i.retry_at, i.id
		LIMIT $2`, now, limitArg(limit))
}

func (s *Store) UpdateBulkItem(ctx context.Context, item *models.BulkOperationItem) error {
	res, err := s.pg.DB.ExecContext(ctx, `
		UPDATE vetting_bulk_operation_items SET
			outcome = $2, error_code = $3, error_message = $4, attempt_count = $5,
			retry_at = $6, processed_at = $7, updated_at = $8
		WHERE id = $1`,
		item.ID, item.Outcome, item.ErrorCode, item.ErrorMessage, item.AttemptCount,
		nullTime(item.RetryAt), nullTime(item.ProcessedAt), item.UpdatedAt)
	if err != nil {
		return mapError(err, "update bulk item "+item.ID)
	}
	return expectOneRow(res, fmt.Errorf("%w: bulk item %s", store.ErrNotFound, item.ID))
}

func (s *Store) IncrementBulkCounters(ctx context.Context, operationID string, success, failure, skipped int) error {
	var id string
	err := s.pg.DB.QueryRowContext(ctx, `
		UPDATE vetting_bulk_operations SET
			success_count = success_count + $2,
			failure_count = failure_count + $3,
			skipped_count = skipped_count + $4
		WHERE id = $1
			AND success_count + failure_count + skipped_count + $2 + $3 + $4 <= total_items
		RETURNING id`,
		operationID, success, failure, skipped,
	).Scan(&id)
	if err == sql.ErrNoRows {
		if _, getErr := s.GetBulkOperation(ctx, operationID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: operation %s", store.ErrCounterOverflow, operationID)
	}
	return mapError(err, "increment bulk counters "+operationID)
}

func (s *Store) FinalizeBulkOperation(ctx context.Context, operationID string, status models.BulkOperationStatus, completedAt time.Time, summary string) error {
	res, err := s.pg.DB.ExecContext(ctx, `
		UPDATE vetting_bulk_operations SET status = $2, completed_at = $3, error_summary = $4
		WHERE id = $1 AND status = 'running'`,
		operationID, status, completedAt, summary)
	if err != nil {
		return mapError(err, "finalize bulk operation "+operationID)
	}
	return expectOneRow(res, fmt.Errorf("%w: operation %s is not running", store.ErrVersionConflict, operationID))
}

func (s *Store) SetCancelRequested(ctx context.Context, operationID string) error {
	res, err := s.pg.DB.ExecContext(ctx,
		`UPDATE vetting_bulk_operations SET cancel_requested = TRUE WHERE id = $1`, operationID)
	if err != nil {
		return mapError(err, "cancel bulk operation "+operationID)
	}
	return expectOneRow(res, fmt.Errorf("%w: operation %s", store.ErrNotFound, operationID))
}

func (s *Store) AppendBulkLog(ctx context.Context, entry *models.BulkOperationLog) error {
	logCtx, err := marshalJSON(entry.Context)
	if err != nil {
		return fmt.Errorf("encode log context: %w", err)
	}
	_, err = s.pg.DB.ExecContext(ctx, `
		INSERT INTO vetting_bulk_operation_logs (id, operation_id, item_id, application_id, level, step, message, context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.OperationID, entry.ItemID, entry.ApplicationID, entry.Level, entry.Step, entry.Message, logCtx, entry.CreatedAt)
	return mapError(err, "append bulk log")
}

func (s *Store) ListBulkLogs(ctx context.Context, operationID string) ([]*models.BulkOperationLog, error) {
	rows, err := s.pg.DB.QueryContext(ctx, `
		SELECT id, operation_id, item_id, application_id, level, step, message, context, created_at
		FROM vetting_bulk_operation_logs WHERE operation_id = $1 ORDER BY created_at, id`, operationID)
	if err != nil {
		return nil, mapError(err, "list bulk logs")
	}
	defer rows.Close()

	var out []*models.BulkOperationLog
	for rows.Next() {
		var (
			entry models.BulkOperationLog
			raw   []byte
		)
		if err := rows.Scan(&entry.ID, &entry.OperationID, &entry.ItemID, &entry.ApplicationID,
			&entry.Level, &entry.Step, &entry.Message, &raw, &entry.CreatedAt); err != nil {
			return nil, mapError(err, "scan bulk log")
		}
		if err := unmarshalJSON(raw, &entry.Context); err != nil {
			return nil, fmt.Errorf("decode log context: %w", err)
		}
		out = append(out, &entry)
	}
	return out, rows.Err()
}
