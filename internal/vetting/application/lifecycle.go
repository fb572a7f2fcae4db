// internal/vetting/application/lifecycle.go
package application

import (
	"context"
	"errors"
	"time"

	apperrors "vetting-engine/internal/common/errors"
	"vetting-engine/internal/models"
	"vetting-engine/internal/vetting/clock"
)

// ExpireJobName is the scheduler job expiring overdue applications.
const ExpireJobName = "expire-applications"

// Expire moves a non-terminal application to expired and frees its
// reviewer. It is a no-op on terminal applications.
func (s *Service) Expire(ctx context.Context, applicationID, actor string) (*models.Application, error) {
	return s.closeApplication(ctx, applicationID, models.StatusExpired, actor, true)
}

// Withdraw closes a non-terminal application at the applicant's or an
// administrator's request.
func (s *Service) Withdraw(ctx context.Context, applicationID, actor string) (*models.Application, error) {
	return s.closeApplication(ctx, applicationID, models.StatusWithdrawn, actor, false)
}

func (s *Service) closeApplication(ctx context.Context, applicationID string, to models.ApplicationStatus, actor string, noopIfTerminal bool) (*models.Application, error) {
	var (
		out     *models.Application
		changed bool
	)
	err := s.WithApplicationLock(ctx, applicationID, func(ctx context.Context) error {
		app, err := s.GetApplication(ctx, applicationID)
		if err != nil {
			return err
		}
		if app.Status.IsTerminal() {
			if noopIfTerminal {
				out = app
				return nil
			}
			return invalidTransition(app, to)
		}

		from := app.Status
		now := s.clock.Now()
		var release *models.ReviewerRelease
		if from.HoldsReviewer() && app.AssignedReviewerID != "" {
			release = &models.ReviewerRelease{ReviewerID: app.AssignedReviewerID}
		}
		if err := app.Transition(to, now); err != nil {
			return invalidTransition(app, to)
		}
		if err := s.save(ctx, app, from, release); err != nil {
			return err
		}

		action := models.ActionApplicationExpired
		if to == models.StatusWithdrawn {
			action = models.ActionApplicationWithdrawn
		}
		s.record(ctx, app, action, actorOr(actor, models.SystemActor), from, nil)
		out, changed = app, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		tmpl := models.TemplateApplicationExpired
		if to == models.StatusWithdrawn {
			tmpl = models.TemplateApplicationWithdrawn
		}
		s.notifyApplicant(ctx, out, tmpl, nil)
		s.logger.Info("application closed", map[string]interface{}{
			"applicationId": out.ID,
			"status":        string(out.Status),
		})
	}
	return out, nil
}

// Archive sets the soft-delete marker on a terminal application, freeing
// the applicant to apply again.
func (s *Service) Archive(ctx context.Context, applicationID, actor string) (*models.Application, error) {
	var out *models.Application
	err := s.WithApplicationLock(ctx, applicationID, func(ctx context.Context) error {
		app, err := s.GetApplication(ctx, applicationID)
		if err != nil {
			return err
		}
		if app.DeletedAt != nil {
			out = app
			return nil
		}
		if err := app.Archive(s.clock.Now()); err != nil {
			return apperrors.NewInvalidTransitionError("application", app.ID, string(app.Status), "archived")
		}
		if err := s.save(ctx, app, app.Status, nil); err != nil {
			return err
		}
		s.record(ctx, app, models.ActionApplicationArchived, actor, app.Status, map[string]interface{}{"deletedAt": app.DeletedAt})
		out = app
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExpireDue expires every non-terminal application past its ExpiresAt.
// Failures are collected; the remaining applications are still processed.
func (s *Service) ExpireDue(ctx context.Context, now time.Time) error {
	due, err := s.store.ListExpirable(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return apperrors.NewDatabaseError("list expirable applications", err)
	}
	var errs []error
	for _, app := range due {
		if _, err := s.Expire(ctx, app.ID, models.SystemActor); err != nil {
			s.logger.Warn("failed to expire application", map[string]interface{}{
				"applicationId": app.ID,
				"error":         err.Error(),
			})
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) ExpireJob() clock.Job {
	return clock.Job{Name: ExpireJobName, Run: s.ExpireDue}
}
