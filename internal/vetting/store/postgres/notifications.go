// internal/vetting/store/postgres/notifications.go
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"vetting-engine/internal/models"
	"vetting-engine/internal/vetting/store"
)

const notificationColumns = `id, template_type, recipient, recipient_name, target_type, target_id, context,
	status, retry_count, next_retry_at, last_error, sent_at, created_at, updated_at`

func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	nctx, err := marshalJSON(n.Context)
	if err != nil {
		return fmt.Errorf("encode notification context: %w", err)
	}
	_, err = s.pg.DB.ExecContext(ctx, `
		INSERT INTO vetting_notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		n.ID, n.TemplateType, n.Recipient, n.RecipientName, n.TargetType, n.TargetID, nctx,
		n.Status, n.RetryCount, nullTime(n.NextRetryAt), n.LastError, nullTime(n.SentAt), n.CreatedAt, n.UpdatedAt)
	return mapError(err, "insert notification "+n.ID)
}

func (s *Store) UpdateNotification(ctx context.Context, n *models.Notification) error {
	res, err := s.pg.DB.ExecContext(ctx, `
		UPDATE vetting_notifications SET
			status = $2, retry_count = $3, next_retry_at = $4, last_error = $5, sent_at = $6, updated_at = $7
		WHERE id = $1`,
		n.ID, n.Status, n.RetryCount, nullTime(n.NextRetryAt), n.LastError, nullTime(n.SentAt), n.UpdatedAt)
	if err != nil {
		return mapError(err, "update notification "+n.ID)
	}
	return expectOneRow(res, fmt.Errorf("%w: notification %s", store.ErrNotFound, n.ID))
}

func (s *Store) ListDueNotifications(ctx context.Context, now time.Time, maxRetries, limit int) ([]*models.Notification, error) {
	rows, err := s.pg.DB.QueryContext(ctx, `
		SELECT `+notificationColumns+` FROM vetting_notifications
		WHERE status IN ('pending', 'failed')
			AND retry_count < $2
			AND (next_retry_at IS NULL OR next_retry_at <= $1)
		ORDER BY created_at, id
		LIMIT $3`, now, maxRetries, limitArg(limit))
	if err != nil {
		return nil, mapError(err, "list due notifications")
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		var (
			n          models.Notification
			raw        []byte
			next, sent sql.NullTime
		)
		if err := rows.Scan(&n.ID, &n.TemplateType, &n.Recipient, &n.RecipientName, &n.TargetType, &n.TargetID, &raw,
			&n.Status, &n.RetryCount, &next, &n.LastError, &sent, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, mapError(err, "scan notification")
		}
		if err := unmarshalJSON(raw, &n.Context); err != nil {
			return nil, fmt.Errorf("decode notification context: %w", err)
		}
		n.NextRetryAt = fromNullTime(next)
		n.SentAt = fromNullTime(sent)
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (s *Store) GetActiveTemplate(ctx context.Context, templateType models.TemplateType) (*models.EmailTemplate, error) {
	var t models.EmailTemplate
	err := s.pg.DB.QueryRowContext(ctx, `
		SELECT id, template_type, subject, body, version, is_active, created_at, updated_at
		FROM vetting_email_templates WHERE template_type = $1 AND is_active`, templateType,
	).Scan(&t.ID, &t.TemplateType, &t.Subject, &t.Body, &t.Version, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, mapError(err, "template "+string(templateType))
	}
	return &t, nil
}

// SaveTemplate deactivates the current active template of the same type
// before inserting tmpl.
func (s *Store) SaveTemplate(ctx context.Context, tmpl *models.EmailTemplate) error {
	return s.pg.WithTx(ctx, func(tx *sql.Tx) error {
		if tmpl.IsActive {
			if _, err := tx.ExecContext(ctx, `
				UPDATE vetting_email_templates SET is_active = FALSE, updated_at = $2
				WHERE template_type = $1 AND is_active AND id <> $3`,
				tmpl.TemplateType, tmpl.UpdatedAt, tmpl.ID); err != nil {
				return mapError(err, "deactivate templates")
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO vetting_email_templates (id, template_type, subject, body, version, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				subject = EXCLUDED.subject, body = EXCLUDED.body, version = EXCLUDED.version,
				is_active = EXCLUDED.is_active, updated_at = EXCLUDED.updated_at`,
			tmpl.ID, tmpl.TemplateType, tmpl.Subject, tmpl.Body, tmpl.Version, tmpl.IsActive, tmpl.CreatedAt, tmpl.UpdatedAt)
		return mapError(err, "save template "+tmpl.ID)
	})
}
