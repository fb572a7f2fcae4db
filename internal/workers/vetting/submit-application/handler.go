// internal/workers/vetting/submit-application/handler.go
package submitapplication

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"vetting-engine/internal/common/camunda"
	apperrors "vetting-engine/internal/common/errors"
	"vetting-engine/internal/common/logger"
	"vetting-engine/internal/common/metrics"
	"vetting-engine/internal/common/validation"
	"vetting-engine/internal/models"
	"vetting-engine/internal/vetting/application"
	"vetting-engine/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "vetting-submit-application"

type Submitter interface {
	Submit(ctx context.Context, in application.SubmitInput) (*models.Application, error)
}

// Encryptor seals applicant PII before it reaches the engine.
type Encryptor interface {
	EncryptString(s string) ([]byte, error)
}

type Handler struct {
	config  *Config
	service Submitter
	cipher  Encryptor
	schema  *validation.Schema
	errors  *apperrors.ErrorHandler
	logger  logger.Logger
}

func NewHandler(cfg *Config, svc Submitter, cipher Encryptor, reg *registry.ActivityRegistry, log logger.Logger) (*Handler, error) {
	schema, err := reg.InputSchema(TaskType)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:  cfg,
		service: svc,
		cipher:  cipher,
		schema:  schema,
		errors:  apperrors.NewErrorHandler(log),
		logger:  log,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	input, err := h.parseInput(job)
	if err != nil {
		return h.fail(client, job, err)
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		return h.fail(client, job, err)
	}

	if err := camunda.CompleteJob(context.Background(), client, job, output); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{"jobKey": job.GetKey(), "error": err.Error()})
		return err
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	return nil
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	var input Input
	if err := camunda.DecodeVariables(job, h.schema, &input); err != nil {
		return nil, err
	}
	return &input, nil
}

// Execute encrypts the applicant's PII and submits the application.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	pii, err := h.sealPII(input)
	if err != nil {
		return nil, err
	}

	refs := make([]application.ReferenceInput, 0, len(input.References))
	for i, r := range input.References {
		var ref application.ReferenceInput
		if ref.Name, err = h.seal(r.Name); err != nil {
			return nil, sealError(fmt.Sprintf("references[%d].name", i), err)
		}
		if ref.Email, err = h.seal(r.Email); err != nil {
			return nil, sealError(fmt.Sprintf("references[%d].email", i), err)
		}
		if ref.Relationship, err = h.seal(r.Relationship); err != nil {
			return nil, sealError(fmt.Sprintf("references[%d].relationship", i), err)
		}
		refs = append(refs, ref)
	}

	app, err := h.service.Submit(ctx, application.SubmitInput{
		ApplicantID:              input.ApplicantID,
		Priority:                 models.Priority(input.Priority),
		PII:                      pii,
		Answers:                  input.Answers,
		AgreesToTerms:            input.AgreesToTerms,
		AgreesToGuidelines:       input.AgreesToGuidelines,
		ConsentToContact:         input.ConsentToContact,
		IsAnonymous:              input.IsAnonymous,
		RequestedSpecializations: input.Specializations,
		References:               refs,
		Actor:                    input.Actor,
	})
	if err != nil {
		return nil, err
	}

	return &Output{
		ApplicationID:     app.ID,
		ApplicationNumber: app.ApplicationNumber,
		Status:            string(app.Status),
		ExpiresAt:         app.ExpiresAt.Format(time.RFC3339),
	}, nil
}

func (h *Handler) sealPII(input *Input) (models.ApplicantPII, error) {
	var pii models.ApplicantPII
	var err error
	if pii.FullName, err = h.seal(input.FullName); err != nil {
		return pii, sealError("fullName", err)
	}
	if pii.SceneName, err = h.seal(input.SceneName); err != nil {
		return pii, sealError("sceneName", err)
	}
	if pii.Email, err = h.seal(input.Email); err != nil {
		return pii, sealError("email", err)
	}
	if pii.Phone, err = h.seal(input.Phone); err != nil {
		return pii, sealError("phone", err)
	}
	if len(input.SensitiveAnswers) > 0 {
		raw, err := json.Marshal(input.SensitiveAnswers)
		if err != nil {
			return pii, apperrors.NewValidationError(fmt.Sprintf("sensitiveAnswers: %v", err))
		}
		if pii.Answers, err = h.seal(string(raw)); err != nil {
			return pii, sealError("sensitiveAnswers", err)
		}
	}
	return pii, nil
}

// seal leaves empty values empty so optional fields stay absent.
func (h *Handler) seal(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return h.cipher.EncryptString(s)
}

func sealError(field string, err error) error {
	return apperrors.NewInternalError(fmt.Errorf("encrypt %s: %w", field, err))
}

func (h *Handler) fail(client worker.JobClient, job entities.Job, err error) error {
	std := apperrors.AsStandardError(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(std.Code)).Inc()
	h.errors.HandleJobError(context.Background(), client, job, std)
	return err
}
