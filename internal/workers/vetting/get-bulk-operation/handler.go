// internal/workers/vetting/get-bulk-operation/handler.go
package getbulkoperation

import (
	"context"
	"fmt"
	"time"

	"vetting-engine/internal/common/camunda"
	apperrors "vetting-engine/internal/common/errors"
	"vetting-engine/internal/common/logger"
	"vetting-engine/internal/common/metrics"
	"vetting-engine/internal/common/validation"
	"vetting-engine/internal/vetting/bulk"
	"vetting-engine/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "vetting-get-bulk-operation"

type Reader interface {
	GetBulkOperation(ctx context.Context, operationID string) (*bulk.View, error)
}

type Handler struct {
	config  *Config
	service Reader
	schema  *validation.Schema
	errors  *apperrors.ErrorHandler
	logger  logger.Logger
}

func NewHandler(cfg *Config, svc Reader, reg *registry.ActivityRegistry, log logger.Logger) (*Handler, error) {
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
	view, err := h.service.GetBulkOperation(ctx, input.OperationID)
	if err != nil {
		return nil, err
	}

	op := view.Operation
	out := &Output{
		OperationID:     op.ID,
		Type:            string(op.Type),
		Status:          string(op.Status),
		TotalItems:      op.TotalItems,
		SuccessCount:    op.SuccessCount,
		FailureCount:    op.FailureCount,
		SkippedCount:    op.SkippedCount,
		CancelRequested: op.CancelRequested,
		ErrorSummary:    op.ErrorSummary,
		StartedAt:       op.StartedAt.Format(time.RFC3339),
		Items:           make([]ItemOutput, 0, len(view.Items)),
		LogCount:        len(view.Logs),
	}
	if op.CompletedAt != nil {
		out.CompletedAt = op.CompletedAt.Format(time.RFC3339)
	}
	for _, item := range view.Items {
		out.Items = append(out.Items, ItemOutput{
			ApplicationID: item.ApplicationID,
			Outcome:       string(item.Outcome),
			ErrorCode:     item.ErrorCode,
			AttemptCount:  item.AttemptCount,
		})
	}
	return out, nil
}

func (h *Handler) fail(client worker.JobClient, job entities.Job, err error) error {
	std := apperrors.AsStandardError(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(std.Code)).Inc()
	h.errors.HandleJobError(context.Background(), client, job, std)
	return err
}
