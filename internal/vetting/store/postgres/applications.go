// internal/vetting/store/postgres/applications.go
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"vetting-engine/internal/models"
	"vetting-engine/internal/vetting/store"

	"github.com/lib/pq"
)

const applicationColumns = `id, application_number, applicant_id, status, priority, assigned_reviewer_id,
	submitted_at, review_started_at, decision_at, interview_scheduled_at, expires_at, deleted_at,
	full_name, scene_name, email, phone, answers_encrypted, answers,
	agrees_to_terms, agrees_to_guidelines, consent_to_contact, is_anonymous,
	requested_specializations, version, created_at, updated_at`

func scanApplication(row scanner) (*models.Application, error) {
	var (
		app                                  models.Application
		reviewer                             sql.NullString
		reviewStarted, decided, interview, d sql.NullTime
		answers                              []byte
		specs                                []string
	)
	err := row.Scan(
		&app.ID, &app.ApplicationNumber, &app.ApplicantID, &app.Status, &app.Priority, &reviewer,
		&app.SubmittedAt, &reviewStarted, &decided, &interview, &app.ExpiresAt, &d,
		&app.PII.FullName, &app.PII.SceneName, &app.PII.Email, &app.PII.Phone, &app.PII.Answers, &answers,
		&app.AgreesToTerms, &app.AgreesToGuidelines, &app.ConsentToContact, &app.IsAnonymous,
		pq.Array(&specs), &app.Version, &app.CreatedAt, &app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	app.AssignedReviewerID = reviewer.String
	app.ReviewStartedAt = fromNullTime(reviewStarted)
	app.DecisionAt = fromNullTime(decided)
	app.InterviewScheduledAt = fromNullTime(interview)
	app.DeletedAt = fromNullTime(d)
	app.RequestedSpecializations = specs
	if err := unmarshalJSON(answers, &app.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	if err := app.Validate(); err != nil {
		return nil, err
	}
	return &app, nil
}

func (s *Store) CreateApplication(ctx context.Context, app *models.Application, refs []*models.Reference) error {
	if err := app.Validate(); err != nil {
		return err
	}
	answers, err := marshalJSON(app.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}

	err = s.pg.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO vetting_applications (`+applicationColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
				$19, $20, $21, $22, $23, 1, $24, $25)`,
			app.ID, app.ApplicationNumber, app.ApplicantID, app.Status, app.Priority, nullString(app.AssignedReviewerID),
			app.SubmittedAt, nullTime(app.ReviewStartedAt), nullTime(app.DecisionAt), nullTime(app.InterviewScheduledAt), app.ExpiresAt, nullTime(app.DeletedAt),
			app.PII.FullName, app.PII.SceneName, app.PII.Email, app.PII.Phone, app.PII.Answers, answers,
			app.AgreesToTerms, app.AgreesToGuidelines, app.ConsentToContact, app.IsAnonymous,
			pq.Array(app.RequestedSpecializations), app.CreatedAt, app.UpdatedAt,
		)
		if err != nil {
			return mapError(err, "insert application "+app.ID)
		}
		for _, ref := range refs {
			if err := insertReference(ctx, tx, ref); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	app.Version = 1
	for _, ref := range refs {
		ref.Version = 1
	}
	return nil
}

func (s *Store) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	row := s.pg.DB.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM vetting_applications WHERE id = $1`, id)
	app, err := scanApplication(row)
	if err != nil {
		return nil, mapError(err, "application "+id)
	}
	return app, nil
}

func (s *Store) UpdateApplication(ctx context.Context, app *models.Application, release *models.ReviewerRelease) error {
	if err := app.Validate(); err != nil {
		return err
	}
	err := s.pg.WithTx(ctx, func(tx *sql.Tx) error {
		if err := casApplication(ctx, tx, app); err != nil {
			return err
		}
		if release != nil {
			return releaseReviewer(ctx, tx, *release, app.UpdatedAt)
		}
		return nil
	})
	if err != nil {
		return err
	}
	app.Version++
	return nil
}

// casApplication writes the mutable columns when the stored version matches.
// The caller bumps app.Version after commit.
func casApplication(ctx context.Context, tx execer, app *models.Application) error {
	answers, err := marshalJSON(app.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE vetting_applications SET
			status = $2, priority = $3, assigned_reviewer_id = $4,
			review_started_at = $5, decision_at = $6, interview_scheduled_at = $7,
			expires_at = $8, deleted_at = $9, answers = $10, requested_specializations = $11,
			version = version + 1, updated_at = $12
		WHERE id = $1 AND version = $13`,
		app.ID, app.Status, app.Priority, nullString(app.AssignedReviewerID),
		nullTime(app.ReviewStartedAt), nullTime(app.DecisionAt), nullTime(app.InterviewScheduledAt),
		app.ExpiresAt, nullTime(app.DeletedAt), answers, pq.Array(app.RequestedSpecializations),
		app.UpdatedAt, app.Version,
	)
	if err != nil {
		return mapError(err, "update application "+app.ID)
	}
	return expectOneRow(res, fmt.Errorf("%w: application %s at version %d", store.ErrVersionConflict, app.ID, app.Version))
}

func (s *Store) AssignReviewer(ctx context.Context, app *models.Application, reviewerID string, now time.Time) error {
	if err := app.Validate(); err != nil {
		return err
	}
	err := s.pg.WithTx(ctx, func(tx *sql.Tx) error {
		var workload int
		err := tx.QueryRowContext(ctx, `
			UPDATE vetting_reviewers
			SET current_workload = current_workload + 1, updated_at = $2
			WHERE id = $1
				AND is_active AND is_available
				AND (unavailable_until IS NULL OR unavailable_until < $2)
				AND current_workload < max_workload
			RETURNING current_workload`,
			reviewerID, now,
		).Scan(&workload)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", store.ErrNotEligible, reviewerID)
		}
		if err != nil {
			return mapError(err, "reserve reviewer "+reviewerID)
		}
		return casApplication(ctx, tx, app)
	})
	if err != nil {
		return err
	}
	app.Version++
	return nil
}

func (s *Store) ApplicationNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := s.pg.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM vetting_applications WHERE application_number = $1)`, number,
	).Scan(&exists)
	if err != nil {
		return false, mapError(err, "check application number")
	}
	return exists, nil
}

func (s *Store) CountApplicationsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.pg.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vetting_applications WHERE submitted_at >= $1`, since,
	).Scan(&n)
	if err != nil {
		return 0, mapError(err, "count applications")
	}
	return n, nil
}

func (s *Store) HasActiveApplication(ctx context.Context, applicantID string) (bool, error) {
	var exists bool
	err := s.pg.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM vetting_applications WHERE applicant_id = $1 AND deleted_at IS NULL)`, applicantID,
	).Scan(&exists)
	if err != nil {
		return false, mapError(err, "check active application")
	}
	return exists, nil
}

func (s *Store) ListExpirable(ctx context.Context, now time.Time, limit int) ([]*models.Application, error) {
	rows, err := s.pg.DB.QueryContext(ctx, `
		SELECT `+applicationColumns+` FROM vetting_applications
		WHERE status NOT IN ('approved', 'rejected', 'withdrawn', 'expired') AND expires_at < $1
		ORDER BY expires_at, id
		LIMIT $2`, now, limitArg(limit))
	if err != nil {
		return nil, mapError(err, "list expirable applications")
	}
	defer rows.Close()

	var out []*models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, mapError(err, "scan application")
		}
		out = append(out, app)
	}
	return out, rows.Err()
}
