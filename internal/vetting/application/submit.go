// internal/vetting/application/submit.go
package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "vetting-engine/internal/common/errors"
	"vetting-engine/internal/common/metrics"
	"vetting-engine/internal/models"
	"vetting-engine/internal/vetting/store"

	"github.com/google/uuid"
)

// ReferenceInput carries one reference's encrypted contact blobs.
type ReferenceInput struct {
	Name         []byte
	Email        []byte
	Relationship []byte
}

type SubmitInput struct {
	ApplicantID              string
	Priority                 models.Priority
	PII                      models.ApplicantPII
	Answers                  map[string]interface{}
	AgreesToTerms            bool
	AgreesToGuidelines       bool
	ConsentToContact         bool
	IsAnonymous              bool
	RequestedSpecializations []string
	References               []ReferenceInput
	Actor                    string
}

const numberAttempts = 5

// Submit validates input and creates the application in submitted together
// with its pending references.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*models.Application, error) {
	if err := s.validateSubmission(in); err != nil {
		return nil, err
	}

	active, err := s.store.HasActiveApplication(ctx, in.ApplicantID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("check active application", err)
	}
	if active {
		return nil, apperrors.NewDuplicateApplicationError(in.ApplicantID)
	}

	now := s.clock.Now()
	priority := in.Priority
	if priority == "" {
		priority = models.PriorityStandard
	}
	app := &models.Application{
		ID:                       uuid.New().String(),
		ApplicantID:              in.ApplicantID,
		Status:                   models.StatusSubmitted,
		Priority:                 priority,
		SubmittedAt:              now,
		ExpiresAt:                now.Add(s.cfg.ExpiryWindow),
		PII:                      in.PII,
		Answers:                  in.Answers,
		AgreesToTerms:            in.AgreesToTerms,
		AgreesToGuidelines:       in.AgreesToGuidelines,
		ConsentToContact:         in.ConsentToContact,
		IsAnonymous:              in.IsAnonymous,
		RequestedSpecializations: in.RequestedSpecializations,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	refs := make([]*models.Reference, 0, len(in.References))
	for i, r := range in.References {
		refs = append(refs, &models.Reference{
			ID:            uuid.New().String(),
			ApplicationID: app.ID,
			Ordinal:       i + 1,
			Status:        models.ReferencePending,
			Name:          r.Name,
			Email:         r.Email,
			Relationship:  r.Relationship,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	if err := s.create(ctx, app, refs, now); err != nil {
		return nil, err
	}

	metrics.ApplicationTransitions.WithLabelValues("", string(models.StatusSubmitted)).Inc()
	s.record(ctx, app, models.ActionApplicationSubmitted, actorOr(in.Actor, in.ApplicantID), "", map[string]interface{}{
		"applicationNumber": app.ApplicationNumber,
		"priority":          string(app.Priority),
		"references":        len(refs),
	})
	s.notifyApplicant(ctx, app, models.TemplateApplicationReceived, nil)
	s.logger.Info("application submitted", map[string]interface{}{
		"applicationId":     app.ID,
		"applicationNumber": app.ApplicationNumber,
		"references":        len(refs),
	})
	return app, nil
}

// create assigns an application number and inserts, retrying when the
// number was taken concurrently.
func (s *Service) create(ctx context.Context, app *models.Application, refs []*models.Reference, now time.Time) error {
	for attempt := 0; attempt < numberAttempts; attempt++ {
		number, err := s.nextApplicationNumber(ctx, now, attempt)
		if err != nil {
			return err
		}
		app.ApplicationNumber = number

		err = s.store.CreateApplication(ctx, app, refs)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrDuplicate) {
			return apperrors.NewDatabaseError("create application", err)
		}
		active, checkErr := s.store.HasActiveApplication(ctx, app.ApplicantID)
		if checkErr != nil {
			return apperrors.NewDatabaseError("check active application", checkErr)
		}
		if active {
			return apperrors.NewDuplicateApplicationError(app.ApplicantID)
		}
	}
	return apperrors.NewConcurrentModificationError("application number", app.ID)
}

// nextApplicationNumber returns VET-YYYYMMDD-NNNN from the day's count,
// skipping numbers already taken.
func (s *Service) nextApplicationNumber(ctx context.Context, now time.Time, offset int) (string, error) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	count, err := s.store.CountApplicationsSince(ctx, day)
	if err != nil {
		return "", apperrors.NewDatabaseError("count applications", err)
	}
	seq := count + 1 + offset
	for i := 0; i < 100; i++ {
		number := FormatApplicationNumber(now, seq+i)
		exists, err := s.store.ApplicationNumberExists(ctx, number)
		if err != nil {
			return "", apperrors.NewDatabaseError("check application number", err)
		}
		if !exists {
			return number, nil
		}
	}
	return "", apperrors.NewInternalError(fmt.Errorf("no free application number for %s", day.Format("2006-01-02")))
}

func FormatApplicationNumber(day time.Time, seq int) string {
	return fmt.Sprintf("VET-%s-%04d", day.Format("20060102"), seq)
}

func (s *Service) validateSubmission(in SubmitInput) error {
	var problems []string
	if in.ApplicantID == "" {
		problems = append(problems, "applicantId is required")
	}
	if !in.AgreesToTerms {
		problems = append(problems, "terms must be accepted")
	}
	if !in.AgreesToGuidelines {
		problems = append(problems, "community guidelines must be accepted")
	}
	if !in.ConsentToContact {
		problems = append(problems, "consent to contact references is required")
	}
	if in.Priority != "" && !in.Priority.IsValid() {
		problems = append(problems, fmt.Sprintf("unknown priority %q", in.Priority))
	}
	if !in.IsAnonymous {
		if len(in.PII.FullName) == 0 {
			problems = append(problems, "full name is required")
		}
		if len(in.PII.Email) == 0 {
			problems = append(problems, "email is required")
		}
	}
	if n := len(in.References); n < s.cfg.MinReferences || n > s.cfg.MaxReferences {
		problems = append(problems, fmt.Sprintf("between %d and %d references are required, got %d", s.cfg.MinReferences, s.cfg.MaxReferences, n))
	}
	for i, r := range in.References {
		if len(r.Name) == 0 {
			problems = append(problems, fmt.Sprintf("reference %d: name is required", i+1))
		}
	}

	if s.schema != nil {
		answers := in.Answers
		if answers == nil {
			answers = map[string]interface{}{}
		}
		result, err := s.schema.Validate(answers)
		if err != nil {
			return apperrors.NewValidationError(err.Error())
		}
		if !result.Valid {
			problems = append(problems, result.GetErrorMessages()...)
		}
	}

	if len(problems) > 0 {
		return apperrors.NewValidationError(strings.Join(problems, "; "))
	}
	return nil
}

func actorOr(actor, fallback string) string {
	if actor != "" {
		return actor
	}
	return fallback
}
