// internal/vetting/application/service.go
package application

import (
	"context"
	"errors"
	"time"

	apperrors "vetting-engine/internal/common/errors"
	"vetting-engine/internal/common/lock"
	"vetting-engine/internal/common/logger"
	"vetting-engine/internal/common/metrics"
	"vetting-engine/internal/common/validation"
	"vetting-engine/internal/models"
	"vetting-engine/internal/vetting/audit"
	"vetting-engine/internal/vetting/clock"
	"vetting-engine/internal/vetting/notification"
	"vetting-engine/internal/vetting/reviewer"
	"vetting-engine/internal/vetting/store"
)

// Store is the persistence the state machine needs.
type Store interface {
	store.ApplicationStore
	GetReviewer(ctx context.Context, id string) (*models.Reviewer, error)
}

type Config struct {
	ExpiryWindow       time.Duration
	MinReferences      int
	MaxReferences      int
	AssignmentAttempts int
	LockTTL            time.Duration
	BatchSize          int
}

func DefaultConfig() Config {
	return Config{
		ExpiryWindow:       90 * 24 * time.Hour,
		MinReferences:      2,
		MaxReferences:      3,
		AssignmentAttempts: 3,
		LockTTL:            5 * time.Second,
		BatchSize:          100,
	}
}

// Service owns application status and applies every transition.
type Service struct {
	store    Store
	pool     *reviewer.Pool
	notifier notification.Enqueuer
	auditor  audit.Recorder
	locker   lock.Locker
	schema   *validation.Schema
	clock    clock.Clock
	cfg      Config
	logger   logger.Logger
}

type Option func(*Service)

// WithAnswersSchema validates structured answers on Submit.
func WithAnswersSchema(s *validation.Schema) Option {
	return func(svc *Service) { svc.schema = s }
}

// WithLocker replaces the in-process application lock.
func WithLocker(l lock.Locker) Option {
	return func(svc *Service) { svc.locker = l }
}

func WithAuditor(a audit.Recorder) Option {
	return func(svc *Service) { svc.auditor = a }
}

func NewService(s Store, pool *reviewer.Pool, notifier notification.Enqueuer, clk clock.Clock, cfg Config, log logger.Logger, opts ...Option) *Service {
	svc := &Service{
		store:    s,
		pool:     pool,
		notifier: notifier,
		auditor:  audit.Discard{},
		locker:   lock.NewLocalLocker(),
		clock:    clk,
		cfg:      cfg,
		logger:   log.WithFields(map[string]interface{}{"component": "application"}),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// LockKey is the lock serializing writers of one application.
func LockKey(applicationID string) string {
	return "vetting:application:" + applicationID
}

// WithApplicationLock runs fn while holding the application's lock.
func (s *Service) WithApplicationLock(ctx context.Context, applicationID string, fn func(ctx context.Context) error) error {
	err := lock.WithLock(ctx, s.locker, LockKey(applicationID), s.cfg.LockTTL, fn)
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		var std *apperrors.StandardError
		if !errors.As(err, &std) {
			return apperrors.NewTimeoutError("lock application "+applicationID, err)
		}
	}
	return err
}

func (s *Service) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	app, err := s.store.GetApplication(ctx, id)
	if err != nil {
		return nil, store.Translate(err, "application", id)
	}
	return app, nil
}

// save writes app with compare-and-swap and records the transition metric.
func (s *Service) save(ctx context.Context, app *models.Application, from models.ApplicationStatus, release *models.ReviewerRelease) error {
	if err := s.store.UpdateApplication(ctx, app, release); err != nil {
		return store.Translate(err, "application", app.ID)
	}
	if from != app.Status {
		metrics.ApplicationTransitions.WithLabelValues(string(from), string(app.Status)).Inc()
	}
	return nil
}

func (s *Service) notifyApplicant(ctx context.Context, app *models.Application, tmpl models.TemplateType, extra map[string]string) {
	if len(app.PII.Email) == 0 {
		return
	}
	vars := map[string]string{
		"application_number": app.ApplicationNumber,
		"submission_date":    app.SubmittedAt.Format("January 02, 2006"),
		"current_status":     string(app.Status),
		"status_description": models.StatusDescription(app.Status),
	}
	for k, v := range extra {
		vars[k] = v
	}
	name := app.PII.SceneName
	if len(name) == 0 {
		name = app.PII.FullName
	}
	_, err := s.notifier.Enqueue(ctx, notification.EnqueueRequest{
		Template:      tmpl,
		Recipient:     app.PII.Email,
		RecipientName: name,
		TargetType:    models.TargetApplication,
		TargetID:      app.ID,
		Context:       vars,
	})
	if err != nil {
		s.logger.Warn("failed to enqueue applicant notification", map[string]interface{}{
			"applicationId": app.ID,
			"template":      string(tmpl),
			"error":         err.Error(),
		})
	}
}

// NotifyApplicant enqueues an applicant-facing email for app.
func (s *Service) NotifyApplicant(ctx context.Context, app *models.Application, tmpl models.TemplateType, extra map[string]string) {
	s.notifyApplicant(ctx, app, tmpl, extra)
}

func (s *Service) record(ctx context.Context, app *models.Application, action, actor string, from models.ApplicationStatus, extra map[string]interface{}) {
	newValues := map[string]interface{}{"status": string(app.Status)}
	for k, v := range extra {
		newValues[k] = v
	}
	var oldValues map[string]interface{}
	if from != "" {
		oldValues = map[string]interface{}{"status": string(from)}
	}
	s.auditor.Record(ctx, audit.Entry(models.EntityApplication, app.ID, action, actor, oldValues, newValues, s.clock.Now()))
}

func invalidTransition(app *models.Application, to models.ApplicationStatus) error {
	return apperrors.NewInvalidTransitionError("application", app.ID, string(app.Status), string(to))
}
