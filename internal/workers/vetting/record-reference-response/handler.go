// internal/workers/vetting/record-reference-response/handler.go
package recordreferenceresponse

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
	"vetting-engine/internal/vetting/reference"
	"vetting-engine/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "vetting-record-reference-response"

type Responder interface {
	RecordResponse(ctx context.Context, referenceID string, in reference.ResponseInput) (*models.ReferenceResponse, error)
	RecordResponseByToken(ctx context.Context, token string, in reference.ResponseInput) (*models.ReferenceResponse, error)
}

// Encryptor seals the reference's answers before they reach the engine.
type Encryptor interface {
	Encrypt(plaintext []byte) ([]byte, error)
}

type Handler struct {
	config  *Config
	service Responder
	cipher  Encryptor
	schema  *validation.Schema
	errors  *apperrors.ErrorHandler
	logger  logger.Logger
}

func NewHandler(cfg *Config, svc Responder, cipher Encryptor, reg *registry.ActivityRegistry, log logger.Logger) (*Handler, error) {
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

	var input Input
	if err := camunda.DecodeVariables(job, h.schema, &input); err != nil {
		return h.fail(client, job, err)
	}

	output, err := h.Execute(ctx, &input)
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

// Execute prefers the token when both identifiers are present, since it
// also proves the link was single-use.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input.ReferenceID == "" && input.Token == "" {
		return nil, apperrors.NewValidationError("referenceId or token is required")
	}

	in := reference.ResponseInput{
		Recommendation: models.Recommendation(input.Recommendation),
		Actor:          input.Actor,
	}
	if len(input.Answers) > 0 {
		raw, err := json.Marshal(input.Answers)
		if err != nil {
			return nil, apperrors.NewValidationError(fmt.Sprintf("answers: %v", err))
		}
		if in.Answers, err = h.cipher.Encrypt(raw); err != nil {
			return nil, apperrors.NewInternalError(fmt.Errorf("encrypt answers: %w", err))
		}
	}

	var (
		resp *models.ReferenceResponse
		err  error
	)
	if input.Token != "" {
		resp, err = h.service.RecordResponseByToken(ctx, input.Token, in)
	} else {
		resp, err = h.service.RecordResponse(ctx, input.ReferenceID, in)
	}
	if err != nil {
		return nil, err
	}

	return &Output{
		ResponseID:     resp.ID,
		ReferenceID:    resp.ReferenceID,
		Recommendation: string(resp.Recommendation),
		RespondedAt:    resp.CreatedAt.Format(time.RFC3339),
	}, nil
}

func (h *Handler) fail(client worker.JobClient, job entities.Job, err error) error {
	std := apperrors.AsStandardError(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(std.Code)).Inc()
	h.errors.HandleJobError(context.Background(), client, job, std)
	return err
}
