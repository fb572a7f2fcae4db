// internal/workers/vetting/run-bulk-operation/handler.go
package runbulkoperation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vetting-engine/internal/common/camunda"
	apperrors "vetting-engine/internal/common/errors"
	"vetting-engine/internal/common/logger"
	"vetting-engine/internal/common/metrics"
	"vetting-engine/internal/common/validation"
	"vetting-engine/internal/models"
	"vetting-engine/internal/vetting/bulk"
	"vetting-engine/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const TaskType = "vetting-run-bulk-operation"

type Runner interface {
	Run(ctx context.Context, req bulk.Request) (*models.BulkOperation, error)
	GetBulkOperation(ctx context.Context, operationID string) (*bulk.View, error)
}

type Handler struct {
	config  *Config
	service Runner
	schema  *validation.Schema
	errors  *apperrors.ErrorHandler
	logger  logger.Logger
}

func NewHandler(cfg *Config, svc Runner, reg *registry.ActivityRegistry, log logger.Logger) (*Handler, error) {
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
	if input.OperationID == "" {
		input.OperationID = OperationIDForJob(job)
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

// OperationIDForJob derives a stable operation id from the job's element
// instance, so a redelivered job finds the operation it already started.
func OperationIDForJob(job entities.Job) string {
	name := fmt.Sprintf("%s/%d", TaskType, job.GetElementInstanceKey())
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// Execute runs the operation. An operation that already exists is reported
// as it stands instead of being started twice.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	op, err := h.service.Run(ctx, bulk.Request{
		OperationID:    input.OperationID,
		Type:           models.BulkOperationType(input.OperationType),
		ApplicationIDs: input.ApplicationIDs,
		Parameters:     input.Parameters,
		PerformedBy:    input.PerformedBy,
	})
	if errors.Is(err, apperrors.ErrOperationExists) && input.OperationID != "" {
		view, getErr := h.service.GetBulkOperation(ctx, input.OperationID)
		if getErr != nil {
			return nil, getErr
		}
		h.logger.Info("bulk operation already started", map[string]interface{}{
			"operationId": input.OperationID,
			"status":      string(view.Operation.Status),
		})
		op, err = view.Operation, nil
	}
	if err != nil {
		return nil, err
	}

	return &Output{
		OperationID:  op.ID,
		Status:       string(op.Status),
		TotalItems:   op.TotalItems,
		SuccessCount: op.SuccessCount,
		FailureCount: op.FailureCount,
		SkippedCount: op.SkippedCount,
		ErrorSummary: op.ErrorSummary,
	}, nil
}

func (h *Handler) fail(client worker.JobClient, job entities.Job, err error) error {
	std := apperrors.AsStandardError(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(std.Code)).Inc()
	h.errors.HandleJobError(context.Background(), client, job, std)
	return err
}
