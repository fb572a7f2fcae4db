// internal/vetting/decision/recorder.go
package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "vetting-engine/internal/common/errors"
	"vetting-engine/internal/common/logger"
	"vetting-engine/internal/common/metrics"
	"vetting-engine/internal/models"
	"vetting-engine/internal/vetting/audit"
	"vetting-engine/internal/vetting/clock"
	"vetting-engine/internal/vetting/store"

	"github.com/google/uuid"
)

// Applications is the slice of the application state machine decisions use.
type Applications interface {
	WithApplicationLock(ctx context.Context, applicationID string, fn func(ctx context.Context) error) error
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	NotifyApplicant(ctx context.Context, app *models.Application, tmpl models.TemplateType, extra map[string]string)
}

// ReferenceContacter starts contact for a pending reference.
type ReferenceContacter interface {
	ContactPendingFor(ctx context.Context, applicationID, actor string) (int, error)
}

type Input struct {
	ApplicationID     string
	ReviewerID        string
	Type              models.DecisionType
	Reasoning         string
	Score             *int
	RequestedInfo     string
	InterviewAt       *time.Time
	RequestReferences bool
	Actor             string
}

type Recorder struct {
	store      store.DecisionStore
	apps       Applications
	references ReferenceContacter
	auditor    audit.Recorder
	clock      clock.Clock
	logger     logger.Logger
}

func NewRecorder(s store.DecisionStore, apps Applications, references ReferenceContacter, auditor audit.Recorder, clk clock.Clock, log logger.Logger) *Recorder {
	if auditor == nil {
		auditor = audit.Discard{}
	}
	return &Recorder{
		store:      s,
		apps:       apps,
		references: references,
		auditor:    auditor,
		clock:      clk,
		logger:     log.WithFields(map[string]interface{}{"component": "decision"}),
	}
}

// RecordDecision appends an immutable decision and applies its transition.
// Final decisions release the reviewer's slot and fold the review into the
// reviewer's rolling stats.
func (r *Recorder) RecordDecision(ctx context.Context, in Input) (*models.Decision, *models.Application, error) {
	if err := validate(in, r.clock.Now()); err != nil {
		return nil, nil, err
	}

	var (
		d    *models.Decision
		app  *models.Application
		from models.ApplicationStatus
	)
	err := r.apps.WithApplicationLock(ctx, in.ApplicationID, func(ctx context.Context) error {
		var err error
		app, err = r.apps.GetApplication(ctx, in.ApplicationID)
		if err != nil {
			return err
		}
		to := in.Type.TargetStatus()
		if app.Status != models.StatusUnderReview {
			return apperrors.NewInvalidTransitionError("application", app.ID, string(app.Status), string(to))
		}
		reviewerID := in.ReviewerID
		if reviewerID == "" {
			reviewerID = app.AssignedReviewerID
		}
		if reviewerID != app.AssignedReviewerID {
			return apperrors.NewValidationError(fmt.Sprintf("reviewer %s is not assigned to application %s", reviewerID, app.ID))
		}

		now := r.clock.Now()
		from = app.Status
		if err := app.Transition(to, now); err != nil {
			return apperrors.NewInvalidTransitionError("application", app.ID, string(from), string(to))
		}
		d = &models.Decision{
			ID:                uuid.New().String(),
			ApplicationID:     app.ID,
			ReviewerID:        reviewerID,
			Type:              in.Type,
			Reasoning:         in.Reasoning,
			Score:             in.Score,
			IsFinalDecision:   in.Type.IsFinal(),
			RequestedInfo:     in.RequestedInfo,
			InterviewAt:       in.InterviewAt,
			RequestReferences: in.RequestReferences,
			CreatedBy:         actorOr(in.Actor, reviewerID),
			CreatedAt:         now,
		}

		var release *models.ReviewerRelease
		if d.IsFinalDecision {
			app.DecisionAt = &now
			release = &models.ReviewerRelease{
				ReviewerID:  reviewerID,
				Completed:   true,
				Approved:    in.Type == models.DecisionApprove,
				ReviewHours: reviewHours(app, now),
			}
		}
		if in.Type == models.DecisionScheduleInterview {
			app.InterviewScheduledAt = in.InterviewAt
		}

		if err := r.store.RecordDecision(ctx, app, d, release); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				return apperrors.NewConcurrentModificationError("application", app.ID)
			}
			return store.Translate(err, "application", app.ID)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	metrics.ApplicationTransitions.WithLabelValues(string(from), string(app.Status)).Inc()
	r.auditor.Record(ctx, audit.Entry(models.EntityApplication, app.ID, models.ActionDecisionRecorded, d.CreatedBy,
		map[string]interface{}{"status": string(from)},
		map[string]interface{}{
			"status":       string(app.Status),
			"decisionId":   d.ID,
			"decisionType": string(d.Type),
			"isFinal":      d.IsFinalDecision,
		}, d.CreatedAt))
	r.notify(ctx, app, d)

	if in.Type == models.DecisionRequestInfo && in.RequestReferences && r.references != nil {
		if _, err := r.references.ContactPendingFor(ctx, app.ID, d.CreatedBy); err != nil {
			r.logger.Warn("failed to contact references after info request", map[string]interface{}{
				"applicationId": app.ID,
				"error":         err.Error(),
			})
		}
	}

	r.logger.Info("decision recorded", map[string]interface{}{
		"applicationId": app.ID,
		"decisionId":    d.ID,
		"decisionType":  string(d.Type),
		"status":        string(app.Status),
	})
	return d, app, nil
}

func (r *Recorder) ListDecisions(ctx context.Context, applicationID string) ([]*models.Decision, error) {
	ds, err := r.store.ListDecisions(ctx, applicationID)
	if err != nil {
		return nil, store.Translate(err, "application", applicationID)
	}
	return ds, nil
}

func (r *Recorder) notify(ctx context.Context, app *models.Application, d *models.Decision) {
	switch d.Type {
	case models.DecisionApprove:
		r.apps.NotifyApplicant(ctx, app, models.TemplateApplicationApproved, nil)
	case models.DecisionReject:
		r.apps.NotifyApplicant(ctx, app, models.TemplateApplicationRejected, nil)
	case models.DecisionRequestInfo:
		r.apps.NotifyApplicant(ctx, app, models.TemplateInfoRequested, map[string]string{
			"requested_info": d.RequestedInfo,
		})
	case models.DecisionScheduleInterview:
		r.apps.NotifyApplicant(ctx, app, models.TemplateInterviewScheduled, map[string]string{
			"interview_at": d.InterviewAt.Format("January 02, 2006 15:04 MST"),
		})
	}
}

func validate(in Input, now time.Time) error {
	var problems []string
	if in.ApplicationID == "" {
		problems = append(problems, "applicationId is required")
	}
	if !in.Type.IsValid() {
		problems = append(problems, fmt.Sprintf("unknown decision type %q", in.Type))
	}
	if in.Score != nil && (*in.Score < 1 || *in.Score > 10) {
		problems = append(problems, "score must be between 1 and 10")
	}
	switch in.Type {
	case models.DecisionReject:
		if strings.TrimSpace(in.Reasoning) == "" {
			problems = append(problems, "reasoning is required for a rejection")
		}
	case models.DecisionRequestInfo:
		if strings.TrimSpace(in.RequestedInfo) == "" && !in.RequestReferences {
			problems = append(problems, "requestedInfo is required")
		}
	case models.DecisionScheduleInterview:
		if in.InterviewAt == nil {
			problems = append(problems, "interviewAt is required")
		} else if !in.InterviewAt.After(now) {
			problems = append(problems, "interviewAt must be in the future")
		}
	}
	if len(problems) > 0 {
		return apperrors.NewValidationError(strings.Join(problems, "; "))
	}
	return nil
}

func reviewHours(app *models.Application, now time.Time) float64 {
	if app.ReviewStartedAt == nil {
		return 0
	}
	h := now.Sub(*app.ReviewStartedAt).Hours()
	if h < 0 {
		return 0
	}
	return h
}

func actorOr(actor, fallback string) string {
	if actor != "" {
		return actor
	}
	return fallback
}
