// internal/workers/vetting/set-reviewer-availability/handler.go
package setrevieweravailability

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
	"vetting-engine/internal/vetting/reviewer"
	"vetting-engine/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "vetting-set-reviewer-availability"

const systemActor = "system"

// Scheduler updates a reviewer's availability window and capacity.
type Scheduler interface {
	SetAvailability(ctx context.Context, reviewerID string, upd reviewer.AvailabilityUpdate) (*models.Reviewer, error)
}

type Handler struct {
	config  *Config
	service Scheduler
	schema  *validation.Schema
	errors  *apperrors.ErrorHandler
	logger  logger.Logger
}

func NewHandler(cfg *Config, svc Scheduler, reg *registry.ActivityRegistry, log logger.Logger) (*Handler, error) {
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

// Execute leaves any field the job omits untouched. An empty unavailableUntil
// string clears the window.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	actor := input.Actor
	if actor == "" {
		actor = systemActor
	}

	upd := reviewer.AvailabilityUpdate{
		IsActive:        input.IsActive,
		IsAvailable:     input.IsAvailable,
		MaxWorkload:     input.MaxWorkload,
		Specializations: input.Specializations,
		Actor:           actor,
	}
	if input.UnavailableUntil != nil {
		if *input.UnavailableUntil == "" {
			upd.ClearUntil = true
		} else {
			until, err := time.Parse(time.RFC3339, *input.UnavailableUntil)
			if err != nil {
				return nil, apperrors.NewValidationError(fmt.Sprintf("unavailableUntil: %v", err))
			}
			upd.UnavailableUntil = &until
		}
	}

	r, err := h.service.SetAvailability(ctx, input.ReviewerID, upd)
	if err != nil {
		return nil, err
	}

	out := &Output{
		ReviewerID:      r.ID,
		IsActive:        r.IsActive,
		IsAvailable:     r.IsAvailable,
		MaxWorkload:     r.MaxWorkload,
		CurrentWorkload: r.CurrentWorkload,
	}
	if r.UnavailableUntil != nil {
		out.UnavailableUntil = r.UnavailableUntil.Format(time.RFC3339)
	}
	return out, nil
}

func (h *Handler) fail(client worker.JobClient, job entities.Job, err error) error {
	std := apperrors.AsStandardError(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(std.Code)).Inc()
	h.errors.HandleJobError(context.Background(), client, job, std)
	return err
}
