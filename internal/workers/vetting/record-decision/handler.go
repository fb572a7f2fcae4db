// internal/workers/vetting/record-decision/handler.go
package recorddecision

import (
	"context"
	"fmt"
	"time"

	"vetting-engine/internal/common/camunda"
	apperrors "vetting-engine/internal/common/errors"
	"vetting-engine/internal/common/logger"
	"vetting-engine/internal/common/metrics"
	"vetting-engine/internal/common/validation"
	"vetting-engine/internal/models"
	"vetting-engine/internal/vetting/decision"
	"vetting-engine/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "vetting-record-decision"

type Recorder interface {
	RecordDecision(ctx context.Context, in decision.Input) (*models.Decision, *models.Application, error)
}

type Handler struct {
	config  *Config
	service Recorder
	schema  *validation.Schema
	errors  *apperrors.ErrorHandler
	logger  logger.Logger
}

func NewHandler(cfg *Config, svc Recorder, reg *registry.ActivityRegistry, log logger.Logger) (*Handler, error) {
	schema, err := reg.InputSchema(TaskType)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:  cfg,
		service: svc,
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

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	in := decision.Input{
		ApplicationID:     input.ApplicationID,
		ReviewerID:        input.ReviewerID,
		Type:              models.DecisionType(input.DecisionType),
		Reasoning:         input.Reasoning,
		Score:             input.Score,
		RequestedInfo:     input.RequestedInfo,
		RequestReferences: input.RequestReferences,
		Actor:             input.Actor,
	}
	if input.InterviewAt != "" {
		at, err := time.Parse(time.RFC3339, input.InterviewAt)
		if err != nil {
			return nil, apperrors.NewValidationError(fmt.Sprintf("interviewAt: %v", err))
		}
		in.InterviewAt = &at
	}

	d, app, err := h.service.RecordDecision(ctx, in)
	if err != nil {
		return nil, err
	}

	h.logger.Info("decision recorded", map[string]interface{}{
		"applicationId": app.ID,
		"decisionId":    d.ID,
		"decisionType":  string(d.Type),
		"status":        string(app.Status),
	})
	return &Output{
		DecisionID:      d.ID,
		ApplicationID:   app.ID,
		Status:          string(app.Status),
		IsFinalDecision: d.IsFinalDecision,
		ReviewerID:      d.ReviewerID,
	}, nil
}

func (h *Handler) fail(client worker.JobClient, job entities.Job, err error) error {
	std := apperrors.AsStandardError(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(std.Code)).Inc()
	h.errors.HandleJobError(context.Background(), client, job, std)
	return err
}
