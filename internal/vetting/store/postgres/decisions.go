// internal/vetting/store/postgres/decisions.go
package postgres

import (
	"context"
	"database/sql"

	"vetting-engine/internal/models"
)

func (s *Store) RecordDecision(ctx context.Context, app *models.Application, d *models.Decision, release *models.ReviewerRelease) error {
	if err := app.Validate(); err != nil {
		return err
	}
	err := s.pg.WithTx(ctx, func(tx *sql.Tx) error {
		var score interface{}
		if d.Score != nil {
			score = *d.Score
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO vetting_decisions (id, application_id, reviewer_id, decision_type, reasoning, score,
				is_final, requested_info, interview_at, request_references, created_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			d.ID, d.ApplicationID, d.ReviewerID, d.Type, d.Reasoning, score,
			d.IsFinalDecision, d.RequestedInfo, nullTime(d.InterviewAt), d.RequestReferences, d.CreatedBy, d.CreatedAt)
		if err != nil {
			return mapError(err, "insert decision "+d.ID)
		}
		if err := casApplication(ctx, tx, app); err != nil {
			return err
		}
		if release != nil {
			return releaseReviewer(ctx, tx, *release, d.CreatedAt)
		}
		return nil
	})
	if err != nil {
		return err
	}
	app.Version++
	return nil
}

func (s *Store) ListDecisions(ctx context.Context, applicationID string) ([]*models.Decision, error) {
	rows, err := s.pg.DB.QueryContext(ctx, `
		SELECT id, application_id, reviewer_id, decision_type, reasoning, score,
			is_final, requested_info, interview_at, request_references, created_by, created_at
		FROM vetting_decisions WHERE application_id = $1 ORDER BY created_at, id`, applicationID)
	if err != nil {
		return nil, mapError(err, "list decisions")
	}
	defer rows.Close()

	var out []*models.Decision
	for rows.Next() {
		var (
			d         models.Decision
			score     sql.NullInt64
			interview sql.NullTime
		)
		if err := rows.Scan(&d.ID, &d.ApplicationID, &d.ReviewerID, &d.Type, &d.Reasoning, &score,
			&d.IsFinalDecision, &d.RequestedInfo, &interview, &d.RequestReferences, &d.CreatedBy, &d.CreatedAt); err != nil {
			return nil, mapError(err, "scan decision")
		}
		if score.Valid {
			v := int(score.Int64)
			d.Score = &v
		}
		d.InterviewAt = fromNullTime(interview)
		out = append(out, &d)
	}
	return out, rows.Err()
}
