// internal/vetting/store/postgres/reviewers.go
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

const reviewerColumns = `id, user_id, display_name, is_active, is_available, specializations,
	max_workload, current_workload, average_review_hours, approval_rate, completed_reviews,
	unavailable_until, created_at, updated_at`

func scanReviewer(row scanner) (*models.Reviewer, error) {
	var (
		r     models.Reviewer
		specs []string
		until sql.NullTime
	)
	err := row.Scan(&r.ID, &r.UserID, &r.DisplayName, &r.IsActive, &r.IsAvailable, pq.Array(&specs),
		&r.MaxWorkload, &r.CurrentWorkload, &r.AverageReviewHours, &r.ApprovalRate, &r.CompletedReviews,
		&until, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Specializations = specs
	r.UnavailableUntil = fromNullTime(until)
	return &r, nil
}

func (s *Store) CreateReviewer(ctx context.Context, r *models.Reviewer) error {
	_, err := s.pg.DB.ExecContext(ctx, `
		INSERT INTO vetting_reviewers (`+reviewerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		r.ID, r.UserID, r.DisplayName, r.IsActive, r.IsAvailable, pq.Array(r.Specializations),
		r.MaxWorkload, r.CurrentWorkload, r.AverageReviewHours, r.ApprovalRate, r.CompletedReviews,
		nullTime(r.UnavailableUntil), r.CreatedAt, r.UpdatedAt)
	return mapError(err, "insert reviewer "+r.ID)
}

func (s *Store) GetReviewer(ctx context.Context, id string) (*models.Reviewer, error) {
	r, err := scanReviewer(s.pg.DB.QueryRowContext(ctx,
		`SELECT `+reviewerColumns+` FROM vetting_reviewers WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, "reviewer "+id)
	}
	return r, nil
}

func (s *Store) UpdateReviewerSettings(ctx context.Context, r *models.Reviewer) error {
	res, err := s.pg.DB.ExecContext(ctx, `
		UPDATE vetting_reviewers SET
			display_name = $2, is_active = $3, is_available = $4, specializations = $5,
			max_workload = $6, unavailable_until = $7, updated_at = $8
		WHERE id = $1`,
		r.ID, r.DisplayName, r.IsActive, r.IsAvailable, pq.Array(r.Specializations),
		r.MaxWorkload, nullTime(r.UnavailableUntil), r.UpdatedAt)
	if err != nil {
		return mapError(err, "update reviewer "+r.ID)
	}
	return expectOneRow(res, fmt.Errorf("%w: reviewer %s", store.ErrNotFound, r.ID))
}

func (s *Store) ListReviewers(ctx context.Context) ([]*models.Reviewer, error) {
	rows, err := s.pg.DB.QueryContext(ctx, `SELECT `+reviewerColumns+` FROM vetting_reviewers ORDER BY id`)
	if err != nil {
		return nil, mapError(err, "list reviewers")
	}
	defer rows.Close()

	var out []*models.Reviewer
	for rows.Next() {
		r, err := scanReviewer(rows)
		if err != nil {
			return nil, mapError(err, "scan reviewer")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ReleaseReviewer(ctx context.Context, release models.ReviewerRelease) error {
	return releaseReviewer(ctx, s.pg.DB, release, time.Now().UTC())
}

// releaseReviewer decrements workload and, for completed reviews, folds the
// outcome into the rolling averages. Right-hand sides see the old row.
func releaseReviewer(ctx context.Context, tx execer, release models.ReviewerRelease, now time.Time) error {
	completed, approved := 0, 0.0
	if release.Completed {
		completed = 1
		if release.Approved {
			approved = 1
		}
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE vetting_reviewers SET
			current_workload = GREATEST(current_workload - 1, 0),
			average_review_hours = CASE WHEN $2 = 1
				THEN (average_review_hours * completed_reviews + $3) / (completed_reviews + 1)
				ELSE average_review_hours END,
			approval_rate = CASE WHEN $2 = 1
				THEN (approval_rate * completed_reviews + $4) / (completed_reviews + 1)
				ELSE approval_rate END,
			completed_reviews = completed_reviews + $2,
			updated_at = $5
		WHERE id = $1`,
		release.ReviewerID, completed, release.ReviewHours, approved, now)
	if err != nil {
		return mapError(err, "release reviewer "+release.ReviewerID)
	}
	return expectOneRow(res, fmt.Errorf("%w: reviewer %s", store.ErrNotFound, release.ReviewerID))
}
