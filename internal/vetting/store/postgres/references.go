// internal/vetting/store/postgres/references.go
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"vetting-engine/internal/models"
	"vetting-engine/internal/vetting/store"
)

const referenceColumns = `id, application_id, ordinal, token_hash, token_used_at, status,
	contacted_at, first_reminder_at, second_reminder_at, final_reminder_at, form_expires_at, responded_at,
	requires_manual_contact, manual_contact_notes, manual_contact_attempted_at,
	name, email, relationship, version, created_at, updated_at`

func scanReference(row scanner) (*models.Reference, error) {
	var (
		ref                                            models.Reference
		tokenHash                                      sql.NullString
		used, contacted, first, second, final, formExp sql.NullTime
		responded, attempted                           sql.NullTime
	)
	err := row.Scan(&ref.ID, &ref.ApplicationID, &ref.Ordinal, &tokenHash, &used, &ref.Status,
		&contacted, &first, &second, &final, &formExp, &responded,
		&ref.RequiresManualContact, &ref.ManualContactNotes, &attempted,
		&ref.Name, &ref.Email, &ref.Relationship, &ref.Version, &ref.CreatedAt, &ref.UpdatedAt)
	if err != nil {
		return nil, err
	}
	ref.TokenHash = tokenHash.String
	ref.TokenUsedAt = fromNullTime(used)
	ref.ContactedAt = fromNullTime(contacted)
	ref.FirstReminderAt = fromNullTime(first)
	ref.SecondReminderAt = fromNullTime(second)
	ref.FinalReminderAt = fromNullTime(final)
	ref.FormExpiresAt = fromNullTime(formExp)
	ref.RespondedAt = fromNullTime(responded)
	ref.ManualContactAttemptedAt = fromNullTime(attempted)
	return &ref, nil
}

func insertReference(ctx context.Context, tx execer, ref *models.Reference) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO vetting_references (`+referenceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, 1, $19, $20)`,
		ref.ID, ref.ApplicationID, ref.Ordinal, nullString(ref.TokenHash), nullTime(ref.TokenUsedAt), ref.Status,
		nullTime(ref.ContactedAt), nullTime(ref.FirstReminderAt), nullTime(ref.SecondReminderAt),
		nullTime(ref.FinalReminderAt), nullTime(ref.FormExpiresAt), nullTime(ref.RespondedAt),
		ref.RequiresManualContact, ref.ManualContactNotes, nullTime(ref.ManualContactAttemptedAt),
		ref.Name, ref.Email, ref.Relationship, ref.CreatedAt, ref.UpdatedAt)
	return mapError(err, "insert reference "+ref.ID)
}

func (s *Store) GetReference(ctx context.Context, id string) (*models.Reference, error) {
	ref, err := scanReference(s.pg.DB.QueryRowContext(ctx,
		`SELECT `+referenceColumns+` FROM vetting_references WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, "reference "+id)
	}
	return ref, nil
}

func (s *Store) GetReferenceByTokenHash(ctx context.Context, tokenHash string) (*models.Reference, error) {
	ref, err := scanReference(s.pg.DB.QueryRowContext(ctx,
		`SELECT `+referenceColumns+` FROM vetting_references WHERE token_hash = $1`, tokenHash))
	if err != nil {
		return nil, mapError(err, "reference token")
	}
	return ref, nil
}

func (s *Store) ListReferences(ctx context.Context, applicationID string) ([]*models.Reference, error) {
	return s.queryReferences(ctx, `
		SELECT `+referenceColumns+` FROM vetting_references
		WHERE application_id = $1 ORDER BY ordinal`, applicationID)
}

func (s *Store) ListContactableReferences(ctx context.Context, limit int) ([]*models.Reference, error) {
	return s.queryReferences(ctx, `
		SELECT `+referenceColumns+` FROM vetting_references
		WHERE status = 'pending'
			AND application_id IN (
				SELECT id FROM vetting_applications
				WHERE status IN ('under_review', 'info_requested', 'interview_scheduled'))
		ORDER BY created_at, id LIMIT $1`, limitArg(limit))
}

// ListDueReferences computes each contacted reference's next due time the
// same way models.Reference.NextDueAt does.
func (s *Store) ListDueReferences(ctx context.Context, now time.Time, schedule models.ReminderSchedule, limit int) ([]*models.Reference, error) {
	return s.queryReferences(ctx, `
		SELECT `+referenceColumns+` FROM (
			SELECT r.*, CASE
				WHEN r.first_reminder_at IS NULL THEN r.contacted_at + $2::double precision * INTERVAL '1 second'
				WHEN r.second_reminder_at IS NULL THEN r.contacted_at + $3::double precision * INTERVAL '1 second'
				WHEN r.final_reminder_at IS NULL THEN r.contacted_at + $4::double precision * INTERVAL '1 second'
				ELSE COALESCE(r.form_expires_at, r.contacted_at + $5::double precision * INTERVAL '1 second')
			END AS due_at
			FROM vetting_references r
			WHERE r.status = 'contacted' AND r.contacted_at IS NOT NULL
		) due
		WHERE due_at <= $1
		ORDER BY due_at, id
		LIMIT $6`,
		now,
		schedule.ReminderAfter[0].Seconds(), schedule.ReminderAfter[1].Seconds(), schedule.ReminderAfter[2].Seconds(),
		schedule.ResponseWindow.Seconds(), limitArg(limit))
}

func (s *Store) queryReferences(ctx context.Context, query string, args ...interface{}) ([]*models.Reference, error) {
	rows, err := s.pg.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "list references")
	}
	defer rows.Close()

	var out []*models.Reference
	for rows.Next() {
		ref, err := scanReference(rows)
		if err != nil {
			return nil, mapError(err, "scan reference")
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func (s *Store) UpdateReference(ctx context.Context, ref *models.Reference) error {
	if err := casReference(ctx, s.pg.DB, ref); err != nil {
		return err
	}
	ref.Version++
	return nil
}

func casReference(ctx context.Context, tx execer, ref *models.Reference) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE vetting_references SET
			token_hash = $2, token_used_at = $3, status = $4,
			contacted_at = $5, first_reminder_at = $6, second_reminder_at = $7, final_reminder_at = $8,
			form_expires_at = $9, responded_at = $10,
			requires_manual_contact = $11, manual_contact_notes = $12, manual_contact_attempted_at = $13,
			version = version + 1, updated_at = $14
		WHERE id = $1 AND version = $15`,
		ref.ID, nullString(ref.TokenHash), nullTime(ref.TokenUsedAt), ref.Status,
		nullTime(ref.ContactedAt), nullTime(ref.FirstReminderAt), nullTime(ref.SecondReminderAt), nullTime(ref.FinalReminderAt),
		nullTime(ref.FormExpiresAt), nullTime(ref.RespondedAt),
		ref.RequiresManualContact, ref.ManualContactNotes, nullTime(ref.ManualContactAttemptedAt),
		ref.UpdatedAt, ref.Version)
	if err != nil {
		return mapError(err, "update reference "+ref.ID)
	}
	return expectOneRow(res, fmt.Errorf("%w: reference %s at version %d", store.ErrVersionConflict, ref.ID, ref.Version))
}

func (s *Store) RecordResponse(ctx context.Context, ref *models.Reference, resp *models.ReferenceResponse) error {
	err := s.pg.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO vetting_reference_responses (id, reference_id, answers, recommendation, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			resp.ID, resp.ReferenceID, resp.Answers, resp.Recommendation, resp.CreatedAt)
		if err != nil {
			return mapError(err, "insert response for "+resp.ReferenceID)
		}
		return casReference(ctx, tx, ref)
	})
	if err != nil {
		return err
	}
	ref.Version++
	return nil
}

func (s *Store) GetResponse(ctx context.Context, referenceID string) (*models.ReferenceResponse, error) {
	var resp models.ReferenceResponse
	err := s.pg.DB.QueryRowContext(ctx, `
		SELECT id, reference_id, answers, recommendation, created_at
		FROM vetting_reference_responses WHERE reference_id = $1`, referenceID,
	).Scan(&resp.ID, &resp.ReferenceID, &resp.Answers, &resp.Recommendation, &resp.CreatedAt)
	if err != nil {
		return nil, mapError(err, "response for "+referenceID)
	}
	return &resp, nil
}
