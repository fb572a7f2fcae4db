// internal/vetting/reference/workflow.go
package reference

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
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
	"vetting-engine/internal/vetting/notification"
	"vetting-engine/internal/vetting/store"

	"github.com/google/uuid"
)

const (
	ContactJobName  = "contact-references"
	ReminderJobName = "reference-reminders"

	// ResponseMessageName is published, correlated by application id, after
	// a reference response is recorded.
	ResponseMessageName = "vetting-reference-responded"

	tokenBytes = 32
)

type Store interface {
	store.ReferenceStore
	GetApplication(ctx context.Context, id string) (*models.Application, error)
}

// Resumer moves an application back to under_review once it has what it
// was waiting for.
type Resumer interface {
	ResumeReview(ctx context.Context, applicationID, actor string) (*models.Application, error)
}

// Publisher forwards workflow events to an external process engine.
type Publisher interface {
	PublishMessage(ctx context.Context, name, correlationKey string, variables map[string]interface{}) error
}

type Option func(*Workflow)

func WithPublisher(p Publisher) Option {
	return func(w *Workflow) { w.publisher = p }
}

type Config struct {
	Policy      Policy
	AutoContact bool
	BatchSize   int
	// ResponseBaseURL is joined with the plaintext token to form the
	// reference's response link.
	ResponseBaseURL string
}

func DefaultConfig() Config {
	return Config{
		Policy:      DefaultPolicy(),
		AutoContact: true,
		BatchSize:   100,
	}
}

// Workflow drives references from pending through contact, reminders and
// response or expiry.
type Workflow struct {
	store     Store
	notifier  notification.Enqueuer
	resumer   Resumer
	publisher Publisher
	auditor   audit.Recorder
	clock     clock.Clock
	cfg       Config
	logger    logger.Logger
}

func NewWorkflow(s Store, notifier notification.Enqueuer, resumer Resumer, auditor audit.Recorder, clk clock.Clock, cfg Config, log logger.Logger, opts ...Option) *Workflow {
	if auditor == nil {
		auditor = audit.Discard{}
	}
	w := &Workflow{
		store:    s,
		notifier: notifier,
		resumer:  resumer,
		auditor:  auditor,
		clock:    clk,
		cfg:      cfg,
		logger:   log.WithFields(map[string]interface{}{"component": "reference"}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ContactResult carries the plaintext token, which is never stored.
type ContactResult struct {
	Reference *models.Reference
	Token     string
}

// ==========================
// Contact
// ==========================

// InitiateContact issues a single-use response token and enqueues the
// reference request. A reference without contact details is flagged for
// manual contact instead.
func (w *Workflow) InitiateContact(ctx context.Context, referenceID, actor string) (*ContactResult, error) {
	ref, err := w.getReference(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	if ref.Status != models.ReferencePending {
		return nil, apperrors.NewInvalidTransitionError("reference", ref.ID, string(ref.Status), string(models.ReferenceContacted))
	}
	app, err := w.store.GetApplication(ctx, ref.ApplicationID)
	if err != nil {
		return nil, store.Translate(err, "application", ref.ApplicationID)
	}
	if app.Status.IsTerminal() {
		return nil, apperrors.NewInvalidTransitionError("application", app.ID, string(app.Status), "reference contact")
	}

	now := w.clock.Now()
	if len(ref.Email) == 0 {
		ref.Status = models.ReferenceManualContactRequired
		ref.RequiresManualContact = true
		ref.UpdatedAt = now
		if err := w.save(ctx, ref); err != nil {
			return nil, err
		}
		w.record(ctx, ref, models.ActionManualContactRequired, actorOr(actor, models.SystemActor), models.ReferencePending, map[string]interface{}{
			"reason": "no contact email",
		})
		metrics.ReferenceActions.WithLabelValues("manual_contact_required").Inc()
		return &ContactResult{Reference: ref}, nil
	}

	token, hash, err := newToken()
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	expires := now.Add(w.cfg.Policy.ResponseWindow)
	ref.Status = models.ReferenceContacted
	ref.TokenHash = hash
	ref.ContactedAt = &now
	ref.FormExpiresAt = &expires
	ref.UpdatedAt = now
	if err := w.save(ctx, ref); err != nil {
		return nil, err
	}

	w.notify(ctx, ref, app, models.TemplateReferenceRequest, map[string]string{
		"response_url": w.responseURL(token),
	})
	w.record(ctx, ref, models.ActionReferenceContacted, actorOr(actor, models.SystemActor), models.ReferencePending, map[string]interface{}{
		"formExpiresAt": expires,
	})
	metrics.ReferenceActions.WithLabelValues("contacted").Inc()
	w.logger.Info("reference contacted", map[string]interface{}{
		"referenceId":   ref.ID,
		"applicationId": ref.ApplicationID,
	})
	return &ContactResult{Reference: ref, Token: token}, nil
}

// ContactPendingReferences contacts pending references of applications that
// hold a reviewer.
func (w *Workflow) ContactPendingReferences(ctx context.Context, now time.Time) error {
	if !w.cfg.AutoContact {
		return nil
	}
	pending, err := w.store.ListContactableReferences(ctx, w.cfg.BatchSize)
	if err != nil {
		return apperrors.NewDatabaseError("list pending references", err)
	}

	var errs []error
	for _, ref := range pending {
		if _, err := w.InitiateContact(ctx, ref.ID, models.SystemActor); err != nil {
			w.logger.Warn("failed to contact reference", map[string]interface{}{
				"referenceId": ref.ID,
				"error":       err.Error(),
			})
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ContactPendingFor contacts every pending reference of one application and
// returns how many were handled.
func (w *Workflow) ContactPendingFor(ctx context.Context, applicationID, actor string) (int, error) {
	refs, err := w.store.ListReferences(ctx, applicationID)
	if err != nil {
		return 0, apperrors.NewDatabaseError("list references", err)
	}
	var (
		n    int
		errs []error
	)
	for _, ref := range refs {
		if ref.Status != models.ReferencePending {
			continue
		}
		if _, err := w.InitiateContact(ctx, ref.ID, actor); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// ==========================
// Reminders
// ==========================

// ProcessDueReminders applies NextAction to contacted references whose next
// step is due, earliest first. One failing reference never stops the others.
func (w *Workflow) ProcessDueReminders(ctx context.Context, now time.Time) error {
	due, err := w.store.ListDueReferences(ctx, now, w.cfg.Policy, w.cfg.BatchSize)
	if err != nil {
		return apperrors.NewDatabaseError("list due references", err)
	}

	var errs []error
	for _, ref := range due {
		action := NextAction(ref, now, w.cfg.Policy)
		if action == ActionNone {
			continue
		}
		if err := w.apply(ctx, ref, action, now); err != nil {
			w.logger.Warn("failed to process reference reminder", map[string]interface{}{
				"referenceId": ref.ID,
				"action":      string(action),
				"error":       err.Error(),
			})
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *Workflow) apply(ctx context.Context, ref *models.Reference, action Action, now time.Time) error {
	if action == ActionExpire {
		ref.Status = models.ReferenceExpired
		ref.RequiresManualContact = true
		ref.UpdatedAt = now
		if err := w.save(ctx, ref); err != nil {
			return err
		}
		w.record(ctx, ref, models.ActionReferenceExpired, models.SystemActor, models.ReferenceContacted, map[string]interface{}{
			"requiresManualContact": true,
		})
		metrics.ReferenceActions.WithLabelValues(string(action)).Inc()
		w.logger.Info("reference expired without response", map[string]interface{}{
			"referenceId":   ref.ID,
			"applicationId": ref.ApplicationID,
		})
		return nil
	}

	applyReminder(ref, action, now)
	if err := w.save(ctx, ref); err != nil {
		return err
	}
	if app, err := w.store.GetApplication(ctx, ref.ApplicationID); err == nil {
		w.notify(ctx, ref, app, models.TemplateReferenceReminder, map[string]string{
			"reminder_stage": fmt.Sprintf("%d", action.Stage()),
		})
	}
	w.record(ctx, ref, models.ActionReferenceReminded, models.SystemActor, ref.Status, map[string]interface{}{
		"stage": action.Stage(),
	})
	metrics.ReferenceActions.WithLabelValues(string(action)).Inc()
	return nil
}

// ResendReminders re-enqueues the reminder email for every reference of the
// application still awaiting a response. Reminder stages are not advanced.
func (w *Workflow) ResendReminders(ctx context.Context, applicationID, actor string) (int, error) {
	app, err := w.store.GetApplication(ctx, applicationID)
	if err != nil {
		return 0, store.Translate(err, "application", applicationID)
	}
	if app.Status.IsTerminal() {
		return 0, apperrors.NewInvalidTransitionError("application", app.ID, string(app.Status), "send reminder")
	}
	refs, err := w.store.ListReferences(ctx, applicationID)
	if err != nil {
		return 0, apperrors.NewDatabaseError("list references", err)
	}

	sent := 0
	for _, ref := range refs {
		if ref.Status != models.ReferenceContacted {
			continue
		}
		w.notify(ctx, ref, app, models.TemplateReferenceReminder, map[string]string{
			"reminder_stage": fmt.Sprintf("%d", ref.RemindersSent()),
		})
		w.record(ctx, ref, models.ActionReferenceReminded, actor, ref.Status, map[string]interface{}{"manual": true})
		sent++
	}
	if sent == 0 {
		return 0, apperrors.NewValidationError(fmt.Sprintf("application %s has no references awaiting a response", applicationID))
	}
	metrics.ReferenceActions.WithLabelValues("manual_reminder").Add(float64(sent))
	return sent, nil
}

// ==========================
// Responses
// ==========================

type ResponseInput struct {
	Answers        []byte
	Recommendation models.Recommendation
	Actor          string
}

// RecordResponse stores the single response for a reference.
func (w *Workflow) RecordResponse(ctx context.Context, referenceID string, in ResponseInput) (*models.ReferenceResponse, error) {
	ref, err := w.getReference(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	return w.recordResponse(ctx, ref, in)
}

// RecordResponseByToken resolves the reference from its plaintext token.
func (w *Workflow) RecordResponseByToken(ctx context.Context, token string, in ResponseInput) (*models.ReferenceResponse, error) {
	if token == "" {
		return nil, apperrors.NewValidationError("response token is required")
	}
	ref, err := w.store.GetReferenceByTokenHash(ctx, HashToken(token))
	if err != nil {
		return nil, store.Translate(err, "reference", "token")
	}
	if ref.TokenUsedAt != nil {
		return nil, apperrors.NewAlreadyRespondedError(ref.ID)
	}
	return w.recordResponse(ctx, ref, in)
}

func (w *Workflow) recordResponse(ctx context.Context, ref *models.Reference, in ResponseInput) (*models.ReferenceResponse, error) {
	if in.Recommendation != "" && !in.Recommendation.IsValid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown recommendation %q", in.Recommendation))
	}
	if ref.Status == models.ReferenceResponded {
		return nil, apperrors.NewAlreadyRespondedError(ref.ID)
	}
	if !ref.AcceptsResponse() {
		return nil, apperrors.NewInvalidTransitionError("reference", ref.ID, string(ref.Status), string(models.ReferenceResponded))
	}

	now := w.clock.Now()
	from := ref.Status
	resp := &models.ReferenceResponse{
		ID:             uuid.New().String(),
		ReferenceID:    ref.ID,
		Answers:        in.Answers,
		Recommendation: in.Recommendation,
		CreatedAt:      now,
	}
	ref.Status = models.ReferenceResponded
	ref.RespondedAt = &now
	ref.TokenUsedAt = &now
	ref.RequiresManualContact = false
	ref.UpdatedAt = now

	switch err := w.store.RecordResponse(ctx, ref, resp); {
	case errors.Is(err, store.ErrDuplicate):
		return nil, apperrors.NewAlreadyRespondedError(ref.ID)
	case err != nil:
		return nil, store.Translate(err, "reference", ref.ID)
	}

	w.record(ctx, ref, models.ActionReferenceResponded, actorOr(in.Actor, "reference:"+ref.ID), from, map[string]interface{}{
		"recommendation": string(in.Recommendation),
	})
	metrics.ReferenceActions.WithLabelValues("responded").Inc()
	w.logger.Info("reference response recorded", map[string]interface{}{
		"referenceId":   ref.ID,
		"applicationId": ref.ApplicationID,
	})

	w.publish(ctx, ref, resp)
	w.resumeIfComplete(ctx, ref.ApplicationID)
	return resp, nil
}

// publish failures are logged only; the response is already committed.
func (w *Workflow) publish(ctx context.Context, ref *models.Reference, resp *models.ReferenceResponse) {
	if w.publisher == nil {
		return
	}
	err := w.publisher.PublishMessage(ctx, ResponseMessageName, ref.ApplicationID, map[string]interface{}{
		"referenceId":    ref.ID,
		"applicationId":  ref.ApplicationID,
		"recommendation": string(resp.Recommendation),
	})
	if err != nil {
		w.logger.Warn("failed to publish reference response", map[string]interface{}{
			"referenceId":   ref.ID,
			"applicationId": ref.ApplicationID,
			"error":         err.Error(),
		})
	}
}

// resumeIfComplete resumes an info_requested application once no reference
// is still awaiting a response.
func (w *Workflow) resumeIfComplete(ctx context.Context, applicationID string) {
	if w.resumer == nil {
		return
	}
	app, err := w.store.GetApplication(ctx, applicationID)
	if err != nil || app.Status != models.StatusInfoRequested {
		return
	}
	refs, err := w.store.ListReferences(ctx, applicationID)
	if err != nil {
		return
	}
	for _, r := range refs {
		if r.AwaitingResponse() {
			return
		}
	}
	if _, err := w.resumer.ResumeReview(ctx, applicationID, models.SystemActor); err != nil {
		w.logger.Warn("failed to resume review after references completed", map[string]interface{}{
			"applicationId": applicationID,
			"error":         err.Error(),
		})
	}
}

// MarkManualContactAttempted records a human follow-up on a reference that
// needs manual contact. The status is unchanged.
func (w *Workflow) MarkManualContactAttempted(ctx context.Context, referenceID, notes, actor string) (*models.Reference, error) {
	ref, err := w.getReference(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	if !ref.RequiresManualContact {
		return nil, apperrors.NewInvalidTransitionError("reference", ref.ID, string(ref.Status), "manual contact attempt")
	}
	if strings.TrimSpace(notes) == "" {
		return nil, apperrors.NewValidationError("manual contact notes are required")
	}
	now := w.clock.Now()
	ref.ManualContactNotes = notes
	ref.ManualContactAttemptedAt = &now
	ref.UpdatedAt = now
	if err := w.save(ctx, ref); err != nil {
		return nil, err
	}
	w.record(ctx, ref, models.ActionManualContactLogged, actor, ref.Status, map[string]interface{}{"notes": notes})
	return ref, nil
}

// ==========================
// Scheduler jobs
// ==========================

func (w *Workflow) ContactJob() clock.Job {
	return clock.Job{Name: ContactJobName, Run: w.ContactPendingReferences}
}

func (w *Workflow) ReminderJob() clock.Job {
	return clock.Job{Name: ReminderJobName, Run: w.ProcessDueReminders}
}

// ==========================
// Helpers
// ==========================

func (w *Workflow) getReference(ctx context.Context, id string) (*models.Reference, error) {
	ref, err := w.store.GetReference(ctx, id)
	if err != nil {
		return nil, store.Translate(err, "reference", id)
	}
	return ref, nil
}

func (w *Workflow) save(ctx context.Context, ref *models.Reference) error {
	if err := w.store.UpdateReference(ctx, ref); err != nil {
		return store.Translate(err, "reference", ref.ID)
	}
	return nil
}

// notify enqueues a reference-facing email. Enqueue failures are logged and
// never change reference status.
func (w *Workflow) notify(ctx context.Context, ref *models.Reference, app *models.Application, tmpl models.TemplateType, extra map[string]string) {
	vars := map[string]string{
		"application_number": app.ApplicationNumber,
	}
	if ref.FormExpiresAt != nil {
		vars["form_expires_at"] = ref.FormExpiresAt.Format("January 02, 2006")
	}
	for k, v := range extra {
		vars[k] = v
	}
	_, err := w.notifier.Enqueue(ctx, notification.EnqueueRequest{
		Template:      tmpl,
		Recipient:     ref.Email,
		RecipientName: ref.Name,
		TargetType:    models.TargetReference,
		TargetID:      ref.ID,
		Context:       vars,
	})
	if err != nil {
		w.logger.Warn("failed to enqueue reference notification", map[string]interface{}{
			"referenceId": ref.ID,
			"template":    string(tmpl),
			"error":       err.Error(),
		})
	}
}

func (w *Workflow) record(ctx context.Context, ref *models.Reference, action, actor string, from models.ReferenceStatus, extra map[string]interface{}) {
	newValues := map[string]interface{}{"status": string(ref.Status)}
	for k, v := range extra {
		newValues[k] = v
	}
	oldValues := map[string]interface{}{"status": string(from)}
	w.auditor.Record(ctx, audit.Entry(models.EntityReference, ref.ID, action, actorOr(actor, models.SystemActor), oldValues, newValues, w.clock.Now()))
}

func (w *Workflow) responseURL(token string) string {
	base := strings.TrimRight(w.cfg.ResponseBaseURL, "/")
	if base == "" {
		return token
	}
	return base + "/" + token
}

func newToken() (token, hash string, err error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generate reference token: %w", err)
	}
	token = hex.EncodeToString(b)
	return token, HashToken(token), nil
}

// HashToken is the stored form of a response token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func actorOr(actor, fallback string) string {
	if actor != "" {
		return actor
	}
	return fallback
}
