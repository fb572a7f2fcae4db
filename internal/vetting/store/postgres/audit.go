// internal/vetting/store/postgres/audit.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"vetting-engine/internal/models"
)

func (s *Store) AppendAudit(ctx context.Context, entry *models.AuditEntry) error {
	var oldVals, newVals interface{}
	if entry.OldValues != nil {
		raw, err := json.Marshal(entry.OldValues)
		if err != nil {
			return fmt.Errorf("encode old values: %w", err)
		}
		oldVals = raw
	}
	if entry.NewValues != nil {
		raw, err := json.Marshal(entry.NewValues)
		if err != nil {
			return fmt.Errorf("encode new values: %w", err)
		}
		newVals = raw
	}
	_, err := s.pg.DB.ExecContext(ctx, `
		INSERT INTO vetting_audit_log (id, entity_type, entity_id, action, old_values, new_values, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.EntityType, entry.EntityID, entry.Action, oldVals, newVals, entry.ActorID, entry.Timestamp)
	return mapError(err, "append audit entry")
}

func (s *Store) ListAudit(ctx context.Context, entityType, entityID string) ([]*models.AuditEntry, error) {
	rows, err := s.pg.DB.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, action, old_values, new_values, actor_id, created_at
		FROM vetting_audit_log WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at, id`, entityType, entityID)
	if err != nil {
		return nil, mapError(err, "list audit entries")
	}
	defer rows.Close()

	var out []*models.AuditEntry
	for rows.Next() {
		var (
			e              models.AuditEntry
			oldRaw, newRaw []byte
		)
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Action, &oldRaw, &newRaw, &e.ActorID, &e.Timestamp); err != nil {
			return nil, mapError(err, "scan audit entry")
		}
		if err := unmarshalJSON(oldRaw, &e.OldValues); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(newRaw, &e.NewValues); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
