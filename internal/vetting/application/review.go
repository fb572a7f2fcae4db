// internal/vetting/application/review.go
package application

import (
	"context"
	"errors"

	apperrors "vetting-engine/internal/common/errors"
	"vetting-engine/internal/common/metrics"
	"vetting-engine/internal/models"
	"vetting-engine/internal/vetting/store"
)

// BeginReview assigns reviewerID and moves the application from submitted
// to under_review. The reviewer's slot is reserved in the same write.
func (s *Service) BeginReview(ctx context.Context, applicationID, reviewerID, actor string) (*models.Application, error) {
	var out *models.Application
	err := s.WithApplicationLock(ctx, applicationID, func(ctx context.Context) error {
		app, err := s.GetApplication(ctx, applicationID)
		if err != nil {
			return err
		}
		if app.Status.HoldsReviewer() && app.AssignedReviewerID != "" {
			return apperrors.NewAlreadyAssignedError(app.ID, app.AssignedReviewerID)
		}
		if app.Status != models.StatusSubmitted {
			return invalidTransition(app, models.StatusUnderReview)
		}

		r, err := s.pool.GetReviewer(ctx, reviewerID)
		if err != nil {
			return err
		}
		if err := s.pool.CheckAvailable(r); err != nil {
			return err
		}

		now := s.clock.Now()
		from := app.Status
		if err := app.Transition(models.StatusUnderReview, now); err != nil {
			return invalidTransition(app, models.StatusUnderReview)
		}
		app.AssignedReviewerID = reviewerID
		app.ReviewStartedAt = &now

		switch err := s.store.AssignReviewer(ctx, app, reviewerID, now); {
		case errors.Is(err, store.ErrNotEligible):
			return apperrors.NewReviewerUnavailableError(reviewerID, "no free capacity")
		case errors.Is(err, store.ErrVersionConflict):
			return apperrors.NewAlreadyAssignedError(applicationID, "")
		case err != nil:
			return store.Translate(err, "application", applicationID)
		}

		metrics.ApplicationTransitions.WithLabelValues(string(from), string(app.Status)).Inc()
		s.record(ctx, app, models.ActionReviewStarted, actorOr(actor, reviewerID), from, map[string]interface{}{
			"reviewerId": reviewerID,
		})
		s.logger.Info("review started", map[string]interface{}{
			"applicationId": app.ID,
			"reviewerId":    reviewerID,
		})
		out = app
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AssignReviewer selects a reviewer and begins review, re-selecting when the
// chosen reviewer fills up between selection and reservation.
func (s *Service) AssignReviewer(ctx context.Context, applicationID, actor string) (*models.Application, error) {
	app, err := s.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.Status.HoldsReviewer() && app.AssignedReviewerID != "" {
		return nil, apperrors.NewAlreadyAssignedError(app.ID, app.AssignedReviewerID)
	}
	if app.Status != models.StatusSubmitted {
		return nil, invalidTransition(app, models.StatusUnderReview)
	}

	attempts := s.cfg.AssignmentAttempts
	if attempts <= 0 {
		attempts = 1
	}
	exclude := map[string]bool{}
	for attempt := 1; attempt <= attempts; attempt++ {
		sel, err := s.pool.SelectReviewerExcluding(ctx, app.RequestedSpecializations, exclude)
		if err != nil {
			return nil, err
		}
		out, err := s.BeginReview(ctx, applicationID, sel.Reviewer.ID, actor)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, apperrors.ErrReviewerUnavailable) {
			return nil, err
		}
		s.logger.Debug("selected reviewer filled up, reselecting", map[string]interface{}{
			"applicationId": applicationID,
			"reviewerId":    sel.Reviewer.ID,
			"attempt":       attempt,
		})
		exclude[sel.Reviewer.ID] = true
	}
	return nil, apperrors.NewNoReviewerAvailableError("all selected reviewers filled up during assignment")
}

// ResumeReview returns an application from info_requested or
// interview_scheduled to under_review. The reviewer keeps the slot.
func (s *Service) ResumeReview(ctx context.Context, applicationID, actor string) (*models.Application, error) {
	var out *models.Application
	err := s.WithApplicationLock(ctx, applicationID, func(ctx context.Context) error {
		app, err := s.GetApplication(ctx, applicationID)
		if err != nil {
			return err
		}
		if app.Status != models.StatusInfoRequested && app.Status != models.StatusInterviewScheduled {
			return invalidTransition(app, models.StatusUnderReview)
		}
		from := app.Status
		if err := app.Transition(models.StatusUnderReview, s.clock.Now()); err != nil {
			return invalidTransition(app, models.StatusUnderReview)
		}
		if err := s.save(ctx, app, from, nil); err != nil {
			return err
		}
		s.record(ctx, app, models.ActionReviewResumed, actorOr(actor, models.SystemActor), from, nil)
		out = app
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
