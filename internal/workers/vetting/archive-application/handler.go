// internal/workers/vetting/archive-application/handler.go
package archiveapplication

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
	"vetting-engine/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "vetting-archive-application"

const systemActor = "system"

// Archiver soft-deletes a finished application.
type Archiver interface {
	Archive(ctx context.Context, applicationID, actor string) (*models.Application, error)
}

type Handler struct {
	config  *Config
	service Archiver
	schema  *validation.Schema
	errors  *apperrors.ErrorHandler
	logger  logger.Logger
}

func NewHandler(cfg *Config, svc Archiver, reg *registry.ActivityRegistry, log logger.Logger) (*Handler, error) {
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
	actor := input.Actor
	if actor == "" {
		actor = systemActor
	}

	app, err := h.service.Archive(ctx, input.ApplicationID, actor)
	if err != nil {
		return nil, err
	}

	out := &Output{ApplicationID: app.ID, Status: string(app.Status)}
	if app.DeletedAt != nil {
		out.ArchivedAt = app.DeletedAt.Format(time.RFC3339)
	}
	return out, nil
}

func (h *Handler) fail(client worker.JobClient, job entities.Job, err error) error {
	std := apperrors.AsStandardError(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(std.Code)).Inc()
	h.errors.HandleJobError(context.Background(), client, job, std)
	return err
}
