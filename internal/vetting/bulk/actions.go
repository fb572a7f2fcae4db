// internal/vetting/bulk/actions.go
package bulk

import (
	"context"
	"fmt"

	apperrors "vetting-engine/internal/common/errors"
	"vetting-engine/internal/models"
	"vetting-engine/internal/vetting/decision"
)

// Executor applies one bulk action to one application.
type Executor interface {
	Execute(ctx context.Context, op *models.BulkOperation, applicationID string) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, op *models.BulkOperation, applicationID string) error

func (f ExecutorFunc) Execute(ctx context.Context, op *models.BulkOperation, applicationID string) error {
	return f(ctx, op, applicationID)
}

type ApplicationActions interface {
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	Expire(ctx context.Context, applicationID, actor string) (*models.Application, error)
	Withdraw(ctx context.Context, applicationID, actor string) (*models.Application, error)
}

type DecisionMaker interface {
	RecordDecision(ctx context.Context, in decision.Input) (*models.Decision, *models.Application, error)
}

type Reminder interface {
	ResendReminders(ctx context.Context, applicationID, actor string) (int, error)
}

// Parameter keys read from BulkOperation.Parameters.
const (
	ParamReasoning     = "reasoning"
	ParamRequestedInfo = "requested_info"
	ParamReferences    = "request_references"
)

// Actions routes each operation type to the engine component that owns it.
type Actions struct {
	apps      ApplicationActions
	decisions DecisionMaker
	reminders Reminder
}

var _ Executor = (*Actions)(nil)

func NewActions(apps ApplicationActions, decisions DecisionMaker, reminders Reminder) *Actions {
	return &Actions{apps: apps, decisions: decisions, reminders: reminders}
}

func (a *Actions) Execute(ctx context.Context, op *models.BulkOperation, applicationID string) error {
	switch op.Type {
	case models.BulkApprove, models.BulkReject, models.BulkRequestInfo:
		return a.decide(ctx, op, applicationID)
	case models.BulkExpire:
		app, err := a.apps.GetApplication(ctx, applicationID)
		if err != nil {
			return err
		}
		if app.Status.IsTerminal() {
			return terminal(app, models.StatusExpired)
		}
		_, err = a.apps.Expire(ctx, applicationID, op.PerformedBy)
		return err
	case models.BulkWithdraw:
		_, err := a.apps.Withdraw(ctx, applicationID, op.PerformedBy)
		return err
	case models.BulkSendReminder:
		_, err := a.reminders.ResendReminders(ctx, applicationID, op.PerformedBy)
		return err
	}
	return apperrors.NewValidationError(fmt.Sprintf("unsupported bulk operation type %q", op.Type))
}

func (a *Actions) decide(ctx context.Context, op *models.BulkOperation, applicationID string) error {
	app, err := a.apps.GetApplication(ctx, applicationID)
	if err != nil {
		return err
	}
	in := decision.Input{
		ApplicationID: applicationID,
		ReviewerID:    app.AssignedReviewerID,
		Reasoning:     op.StringParam(ParamReasoning),
		Actor:         op.PerformedBy,
	}
	switch op.Type {
	case models.BulkApprove:
		in.Type = models.DecisionApprove
	case models.BulkReject:
		in.Type = models.DecisionReject
	case models.BulkRequestInfo:
		in.Type = models.DecisionRequestInfo
		in.RequestedInfo = op.StringParam(ParamRequestedInfo)
		in.RequestReferences, _ = op.Parameters[ParamReferences].(bool)
	}
	if app.Status.IsTerminal() {
		return terminal(app, in.Type.TargetStatus())
	}
	_, _, err = a.decisions.RecordDecision(ctx, in)
	return err
}

func terminal(app *models.Application, to models.ApplicationStatus) error {
	return apperrors.NewInvalidTransitionError("application", app.ID, string(app.Status), string(to))
}
