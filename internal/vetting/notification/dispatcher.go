// internal/vetting/notification/dispatcher.go
package notification

import (
	"context"
	"errors"
	"fmt"
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

// JobName is the scheduler job that drains the queue.
const JobName = "dispatch-notifications"

type Store interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	UpdateNotification(ctx context.Context, n *models.Notification) error
	ListDueNotifications(ctx context.Context, now time.Time, maxRetries, limit int) ([]*models.Notification, error)
	GetActiveTemplate(ctx context.Context, templateType models.TemplateType) (*models.EmailTemplate, error)
}

type Config struct {
	MaxRetries   int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	BatchSize    int
	ContactEmail string
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:  5,
		BaseBackoff: 5 * time.Minute,
		MaxBackoff:  24 * time.Hour,
		BatchSize:   50,
	}
}

// EnqueueRequest describes one outbound message.
type EnqueueRequest struct {
	Template      models.TemplateType
	Recipient     []byte
	RecipientName []byte
	TargetType    models.TargetType
	TargetID      string
	Context       map[string]string
}

// Enqueuer is the part of the dispatcher the workflow components use.
type Enqueuer interface {
	Enqueue(ctx context.Context, req EnqueueRequest) (*models.Notification, error)
}

type Dispatcher struct {
	store     Store
	transport MailTransport
	alerter   Alerter
	auditor   audit.Recorder
	clock     clock.Clock
	cfg       Config
	logger    logger.Logger
}

var _ Enqueuer = (*Dispatcher)(nil)

func NewDispatcher(s Store, transport MailTransport, alerter Alerter, auditor audit.Recorder, clk clock.Clock, cfg Config, log logger.Logger) *Dispatcher {
	if auditor == nil {
		auditor = audit.Discard{}
	}
	return &Dispatcher{
		store:     s,
		transport: transport,
		alerter:   alerter,
		auditor:   auditor,
		clock:     clk,
		cfg:       cfg,
		logger:    log.WithFields(map[string]interface{}{"component": "notification"}),
	}
}

// Enqueue stores a pending notification. Nothing is sent until DispatchDue.
func (d *Dispatcher) Enqueue(ctx context.Context, req EnqueueRequest) (*models.Notification, error) {
	if req.TargetID == "" {
		return nil, apperrors.NewValidationError("notification target is required")
	}
	if _, ok := defaultTemplates[req.Template]; !ok {
		return nil, apperrors.NewTemplateNotFoundError(string(req.Template))
	}

	vars := make(map[string]string, len(req.Context)+1)
	for k, v := range req.Context {
		vars[k] = v
	}
	if _, ok := vars["contact_email"]; !ok && d.cfg.ContactEmail != "" {
		vars["contact_email"] = d.cfg.ContactEmail
	}

	now := d.clock.Now()
	n := &models.Notification{
		ID:            uuid.New().String(),
		TemplateType:  req.Template,
		Recipient:     req.Recipient,
		RecipientName: req.RecipientName,
		TargetType:    req.TargetType,
		TargetID:      req.TargetID,
		Context:       vars,
		Status:        models.NotificationPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := d.store.CreateNotification(ctx, n); err != nil {
		return nil, apperrors.NewDatabaseError("create notification", err)
	}

	d.logger.Debug("notification enqueued", map[string]interface{}{
		"notificationId": n.ID,
		"template":       string(n.TemplateType),
		"targetId":       n.TargetID,
	})
	return n, nil
}

// DispatchDue sends every due notification once. Delivery failures are
// recorded on the notification; only store failures are returned.
func (d *Dispatcher) DispatchDue(ctx context.Context, now time.Time) (int, error) {
	due, err := d.store.ListDueNotifications(ctx, now, d.cfg.MaxRetries, d.cfg.BatchSize)
	if err != nil {
		return 0, apperrors.NewDatabaseError("list due notifications", err)
	}

	var (
		sent int
		errs []error
	)
	for _, n := range due {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		ok, err := d.dispatch(ctx, n, now)
		if err != nil {
			errs = append(errs, err)
		}
		if ok {
			sent++
		}
	}
	return sent, errors.Join(errs...)
}

// Job adapts DispatchDue to the scheduler.
func (d *Dispatcher) Job() clock.Job {
	return clock.Job{
		Name: JobName,
		Run: func(ctx context.Context, now time.Time) error {
			_, err := d.DispatchDue(ctx, now)
			return err
		},
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, n *models.Notification, now time.Time) (bool, error) {
	subject, body, err := d.resolve(ctx, n)
	if err == nil {
		err = d.transport.Send(ctx, Message{
			Recipient:     n.Recipient,
			RecipientName: n.RecipientName,
			Subject:       subject,
			Body:          body,
		})
	}

	n.UpdatedAt = now
	if err == nil {
		n.Status = models.NotificationSent
		n.SentAt = &now
		n.NextRetryAt = nil
		n.LastError = ""
		metrics.NotificationsSent.WithLabelValues(string(n.TemplateType), "sent").Inc()
		return true, d.save(ctx, n)
	}

	n.RetryCount++
	n.Status = models.NotificationFailed
	n.LastError = err.Error()
	if n.RetryCount >= d.cfg.MaxRetries {
		n.NextRetryAt = nil
		metrics.NotificationsSent.WithLabelValues(string(n.TemplateType), "exhausted").Inc()
		d.surface(ctx, n, now)
	} else {
		next := now.Add(Backoff(n.RetryCount, d.cfg.BaseBackoff, d.cfg.MaxBackoff))
		n.NextRetryAt = &next
		metrics.NotificationsSent.WithLabelValues(string(n.TemplateType), "retry").Inc()
		d.logger.Warn("notification delivery failed, will retry", map[string]interface{}{
			"notificationId": n.ID,
			"template":       string(n.TemplateType),
			"retryCount":     n.RetryCount,
			"nextRetryAt":    next,
			"error":          n.LastError,
		})
	}
	return false, d.save(ctx, n)
}

func (d *Dispatcher) save(ctx context.Context, n *models.Notification) error {
	if err := d.store.UpdateNotification(ctx, n); err != nil {
		return apperrors.NewDatabaseError("update notification "+n.ID, err)
	}
	return nil
}

// surface reports a notification that will not be retried again.
func (d *Dispatcher) surface(ctx context.Context, n *models.Notification, now time.Time) {
	fields := map[string]interface{}{
		"notificationId": n.ID,
		"template":       string(n.TemplateType),
		"targetType":     string(n.TargetType),
		"targetId":       n.TargetID,
		"retryCount":     n.RetryCount,
		"error":          n.LastError,
	}
	d.logger.Error("notification permanently failed", fields)

	d.auditor.Record(ctx, audit.Entry(models.EntityNotification, n.ID, models.ActionNotificationFailed, models.SystemActor,
		nil, map[string]interface{}{"retryCount": n.RetryCount, "lastError": n.LastError}, now))

	if d.alerter == nil {
		return
	}
	msg := fmt.Sprintf("Notification %s (%s) for %s %s failed %d times: %s",
		n.ID, n.TemplateType, n.TargetType, n.TargetID, n.RetryCount, n.LastError)
	if err := d.alerter.Alert(ctx, "Vetting notification permanently failed", msg); err != nil {
		d.logger.Warn("administrator alert failed", map[string]interface{}{"notificationId": n.ID, "error": err.Error()})
	}
}

// resolve renders the active stored template, falling back to the built-in one.
func (d *Dispatcher) resolve(ctx context.Context, n *models.Notification) (string, string, error) {
	tmpl, ok := defaultTemplates[n.TemplateType]
	stored, err := d.store.GetActiveTemplate(ctx, n.TemplateType)
	switch {
	case err == nil:
		tmpl = template{Subject: stored.Subject, Body: stored.Body}
		ok = true
	case !errors.Is(err, store.ErrNotFound):
		return "", "", apperrors.NewDatabaseError("load template", err)
	}
	if !ok {
		return "", "", apperrors.NewTemplateNotFoundError(string(n.TemplateType))
	}
	return render(tmpl.Subject, n.Context), render(tmpl.Body, n.Context), nil
}

// Backoff returns base*2^(attempt-1) capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
