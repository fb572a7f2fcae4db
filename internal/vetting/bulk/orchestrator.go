// internal/vetting/bulk/orchestrator.go
package bulk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "vetting-engine/internal/common/errors"
	"vetting-engine/internal/common/logger"
	"vetting-engine/internal/common/metrics"
	"vetting-engine/internal/models"
	"vetting-engine/internal/vetting/audit"
	"vetting-engine/internal/vetting/clock"
	"vetting-engine/internal/vetting/store"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	RetryJobName = "bulk-retries"

	summaryLimit = 5
)

type Config struct {
	MaxWorkers  int
	ItemTimeout time.Duration
	RetryDelay  time.Duration
	MaxAttempts int
	BatchSize   int
}

func DefaultConfig() Config {
	return Config{
		MaxWorkers:  4,
		ItemTimeout: 30 * time.Second,
		RetryDelay:  5 * time.Minute,
		MaxAttempts: 3,
		BatchSize:   100,
	}
}

type Request struct {
	// OperationID is optional; a new id is generated when empty.
	OperationID    string
	Type           models.BulkOperationType
	ApplicationIDs []string
	Parameters     map[string]interface{}
	PerformedBy    string
}

// View is an operation with its items and per-item logs.
type View struct {
	Operation *models.BulkOperation
	Items     []*models.BulkOperationItem
	Logs      []*models.BulkOperationLog
}

type Option func(*Orchestrator)

func WithCancelSignal(s CancelSignal) Option {
	return func(o *Orchestrator) { o.signal = s }
}

func WithInstrumenter(i clock.Instrumenter) Option {
	return func(o *Orchestrator) { o.instr = i }
}

func WithAuditor(a audit.Recorder) Option {
	return func(o *Orchestrator) { o.auditor = a }
}

// Orchestrator runs one action over many applications. Items are
// independent: each has its own unit of work, timeout and outcome, and
// aggregates flow through atomic counter updates on the operation.
type Orchestrator struct {
	store   store.BulkStore
	exec    Executor
	signal  CancelSignal
	instr   clock.Instrumenter
	auditor audit.Recorder
	clock   clock.Clock
	cfg     Config
	logger  logger.Logger
}

func NewOrchestrator(s store.BulkStore, exec Executor, clk clock.Clock, cfg Config, log logger.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:   s,
		exec:    exec,
		auditor: audit.Discard{},
		clock:   clk,
		cfg:     cfg,
		logger:  log.WithFields(map[string]interface{}{"component": "bulk"}),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.cfg.MaxWorkers <= 0 {
		o.cfg.MaxWorkers = 1
	}
	if o.cfg.MaxAttempts <= 0 {
		o.cfg.MaxAttempts = 1
	}
	return o
}

// ==========================
// Run
// ==========================

// Run creates the operation and makes a first pass over every item. Items
// that fail transiently are left retry_pending for ProcessRetries; the
// operation is finalized once no item is open.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*models.BulkOperation, error) {
	ids := dedupe(req.ApplicationIDs)
	if len(ids) == 0 {
		return nil, apperrors.NewValidationError("bulk operation needs at least one application")
	}
	if !req.Type.IsValid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown bulk operation type %q", req.Type))
	}
	if req.PerformedBy == "" {
		return nil, apperrors.NewValidationError("performedBy is required")
	}

	now := o.clock.Now()
	op := &models.BulkOperation{
		ID:          req.OperationID,
		Type:        req.Type,
		Status:      models.BulkRunning,
		PerformedBy: req.PerformedBy,
		StartedAt:   now,
		Parameters:  req.Parameters,
		TotalItems:  len(ids),
	}
	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	items := make([]*models.BulkOperationItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, &models.BulkOperationItem{
			ID:            uuid.New().String(),
			OperationID:   op.ID,
			ApplicationID: id,
			Outcome:       models.OutcomePending,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	switch err := o.store.CreateBulkOperation(ctx, op, items); {
	case errors.Is(err, store.ErrDuplicate):
		return nil, apperrors.NewOperationExistsError(op.ID)
	case err != nil:
		return nil, apperrors.NewDatabaseError("create bulk operation", err)
	}

	o.auditor.Record(ctx, audit.Entry(models.EntityBulkOperation, op.ID, models.ActionBulkStarted, op.PerformedBy, nil,
		map[string]interface{}{"type": string(op.Type), "totalItems": op.TotalItems}, now))
	o.logger.Info("bulk operation started", map[string]interface{}{
		"operationId": op.ID,
		"type":        string(op.Type),
		"totalItems":  op.TotalItems,
	})

	if err := o.process(ctx, op, items); err != nil {
		o.fail(ctx, op.ID, err)
		return o.reload(ctx, op.ID)
	}
	if err := o.finalizeIfDone(ctx, op.ID); err != nil {
		return nil, err
	}
	return o.reload(ctx, op.ID)
}

// process runs items on a bounded pool. Only failures to record an outcome
// are returned; item failures are outcomes.
func (o *Orchestrator) process(ctx context.Context, op *models.BulkOperation, items []*models.BulkOperationItem) error {
	var g errgroup.Group
	g.SetLimit(o.cfg.MaxWorkers)

	var (
		mu    sync.Mutex
		cause error
	)
	for _, item := range items {
		item := item
		g.Go(func() error {
			if err := o.processItem(ctx, op, item); err != nil {
				mu.Lock()
				cause = errors.Join(cause, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return cause
}

func (o *Orchestrator) processItem(ctx context.Context, op *models.BulkOperation, item *models.BulkOperationItem) (err error) {
	if o.instr != nil {
		var end func(error)
		ctx, end = o.instr.StartSpan(ctx, "bulk."+string(op.Type))
		defer func() { end(err) }()
	}

	if o.cancelled(ctx, op.ID) {
		return o.settle(ctx, op, item, models.OutcomeSkipped, nil)
	}

	item.AttemptCount++
	itemCtx, cancel := context.WithTimeout(ctx, o.cfg.ItemTimeout)
	execErr := o.exec.Execute(itemCtx, op, item.ApplicationID)
	// An action that returned nil is done even if it overran the deadline.
	if execErr != nil && errors.Is(execErr, context.DeadlineExceeded) {
		execErr = apperrors.NewTimeoutError("bulk item "+item.ID, execErr)
	}
	cancel()

	switch {
	case execErr == nil:
		return o.settle(ctx, op, item, models.OutcomeSucceeded, nil)
	case apperrors.IsRetryable(execErr) && item.AttemptCount < o.cfg.MaxAttempts:
		return o.settle(ctx, op, item, models.OutcomeRetryPending, execErr)
	default:
		return o.settle(ctx, op, item, models.OutcomeFailed, execErr)
	}
}

// settle stores the item's outcome, bumps the matching counter and writes
// the item log.
func (o *Orchestrator) settle(ctx context.Context, op *models.BulkOperation, item *models.BulkOperationItem, outcome models.ItemOutcome, cause error) error {
	now := o.clock.Now()
	item.Outcome = outcome
	item.UpdatedAt = now
	item.RetryAt = nil
	item.ErrorCode, item.ErrorMessage = "", ""

	var (
		level   models.LogLevel
		message string
		ctxVals = map[string]interface{}{"attempt": item.AttemptCount}
	)
	switch outcome {
	case models.OutcomeSucceeded:
		item.ProcessedAt = &now
		level, message = models.LogInfo, fmt.Sprintf("%s succeeded", op.Type)
	case models.OutcomeSkipped:
		item.ProcessedAt = &now
		level, message = models.LogInfo, "skipped: operation cancelled"
	case models.OutcomeRetryPending:
		retryAt := now.Add(o.cfg.RetryDelay)
		item.RetryAt = &retryAt
		std := apperrors.AsStandardError(cause)
		item.ErrorCode, item.ErrorMessage = string(std.Code), cause.Error()
		level = models.LogWarning
		message = fmt.Sprintf("transient failure, retry scheduled for %s: %s", retryAt.Format(time.RFC3339), cause.Error())
		ctxVals["errorCode"] = string(std.Code)
	case models.OutcomeFailed:
		item.ProcessedAt = &now
		std := apperrors.AsStandardError(cause)
		item.ErrorCode, item.ErrorMessage = string(std.Code), cause.Error()
		level = models.LogError
		message = "permanent failure: " + cause.Error()
		ctxVals["errorCode"] = string(std.Code)
		ctxVals["retryable"] = std.Retryable
	}

	if err := o.store.UpdateBulkItem(ctx, item); err != nil {
		return o.critical(ctx, op, item, "update item", err)
	}
	var success, failure, skipped int
	switch outcome {
	case models.OutcomeSucceeded:
		success = 1
	case models.OutcomeFailed:
		failure = 1
	case models.OutcomeSkipped:
		skipped = 1
	}
	if success+failure+skipped > 0 {
		if err := o.store.IncrementBulkCounters(ctx, op.ID, success, failure, skipped); err != nil {
			return o.critical(ctx, op, item, "increment counters", err)
		}
	}

	metrics.BulkItems.WithLabelValues(string(op.Type), string(outcome)).Inc()
	o.appendLog(ctx, op, item, level, string(outcome), message, ctxVals)
	return nil
}

func (o *Orchestrator) critical(ctx context.Context, op *models.BulkOperation, item *models.BulkOperationItem, step string, err error) error {
	o.appendLog(ctx, op, item, models.LogCritical, step, "failed to record item outcome: "+err.Error(), nil)
	o.logger.Error("failed to record bulk item outcome", map[string]interface{}{
		"operationId":   op.ID,
		"itemId":        item.ID,
		"applicationId": item.ApplicationID,
		"step":          step,
		"error":         err.Error(),
	})
	return apperrors.NewDatabaseError("bulk "+step, err)
}

func (o *Orchestrator) appendLog(ctx context.Context, op *models.BulkOperation, item *models.BulkOperationItem, level models.LogLevel, step, message string, vals map[string]interface{}) {
	entry := &models.BulkOperationLog{
		ID:            uuid.New().String(),
		OperationID:   op.ID,
		ItemID:        item.ID,
		ApplicationID: item.ApplicationID,
		Level:         level,
		Step:          step,
		Message:       message,
		Context:       vals,
		CreatedAt:     o.clock.Now(),
	}
	if err := o.store.AppendBulkLog(ctx, entry); err != nil {
		o.logger.Error("failed to append bulk log", map[string]interface{}{
			"operationId": op.ID,
			"itemId":      item.ID,
			"error":       err.Error(),
		})
	}
}

// ==========================
// Retries & finalization
// ==========================

// ProcessRetries re-runs items whose RetryAt has passed and finalizes the
// operations they belong to.
func (o *Orchestrator) ProcessRetries(ctx context.Context, now time.Time) error {
	due, err := o.store.ListDueRetryItems(ctx, now, o.cfg.BatchSize)
	if err != nil {
		return apperrors.NewDatabaseError("list due bulk items", err)
	}
	if len(due) == 0 {
		return nil
	}

	byOp := map[string][]*models.BulkOperationItem{}
	var order []string
	for _, item := range due {
		if _, ok := byOp[item.OperationID]; !ok {
			order = append(order, item.OperationID)
		}
		byOp[item.OperationID] = append(byOp[item.OperationID], item)
	}

	var errs []error
	for _, opID := range order {
		op, err := o.store.GetBulkOperation(ctx, opID)
		if err != nil {
			errs = append(errs, store.Translate(err, "bulk_operation", opID))
			continue
		}
		if err := o.process(ctx, op, byOp[opID]); err != nil {
			o.fail(ctx, opID, err)
			errs = append(errs, err)
			continue
		}
		if err := o.finalizeIfDone(ctx, opID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) RetryJob() clock.Job {
	return clock.Job{Name: RetryJobName, Run: o.ProcessRetries}
}

func (o *Orchestrator) finalizeIfDone(ctx context.Context, operationID string) error {
	items, err := o.store.ListBulkItems(ctx, operationID)
	if err != nil {
		return apperrors.NewDatabaseError("list bulk items", err)
	}
	var failed []string
	for _, item := range items {
		if item.Outcome.IsOpen() {
			return nil
		}
		if item.Outcome == models.OutcomeFailed {
			failed = append(failed, fmt.Sprintf("%s: %s", item.ApplicationID, item.ErrorMessage))
		}
	}

	summary := ""
	if len(failed) > 0 {
		shown := failed
		if len(shown) > summaryLimit {
			shown = shown[:summaryLimit]
		}
		summary = fmt.Sprintf("%d of %d items failed; %s", len(failed), len(items), strings.Join(shown, "; "))
	}

	now := o.clock.Now()
	switch err := o.store.FinalizeBulkOperation(ctx, operationID, models.BulkCompleted, now, summary); {
	case errors.Is(err, store.ErrVersionConflict):
		return nil
	case err != nil:
		return apperrors.NewDatabaseError("finalize bulk operation", err)
	}

	op, err := o.store.GetBulkOperation(ctx, operationID)
	if err != nil {
		return store.Translate(err, "bulk_operation", operationID)
	}
	o.auditor.Record(ctx, audit.Entry(models.EntityBulkOperation, op.ID, models.ActionBulkCompleted, op.PerformedBy,
		map[string]interface{}{"status": string(models.BulkRunning)},
		map[string]interface{}{
			"status":       string(op.Status),
			"successCount": op.SuccessCount,
			"failureCount": op.FailureCount,
			"skippedCount": op.SkippedCount,
		}, now))
	o.logger.Info("bulk operation completed", map[string]interface{}{
		"operationId":  op.ID,
		"successCount": op.SuccessCount,
		"failureCount": op.FailureCount,
		"skippedCount": op.SkippedCount,
	})
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, operationID string, cause error) {
	o.logger.Error("bulk operation failed", map[string]interface{}{
		"operationId": operationID,
		"error":       cause.Error(),
	})
	err := o.store.FinalizeBulkOperation(ctx, operationID, models.BulkFailed, o.clock.Now(), "infrastructure failure: "+cause.Error())
	if err != nil && !errors.Is(err, store.ErrVersionConflict) {
		o.logger.Error("failed to mark bulk operation failed", map[string]interface{}{
			"operationId": operationID,
			"error":       err.Error(),
		})
	}
}

// ==========================
// Cancellation & queries
// ==========================

// Cancel stops new items from starting. Items already running finish; items
// not yet started are recorded as skipped.
func (o *Orchestrator) Cancel(ctx context.Context, operationID, actor string) (*models.BulkOperation, error) {
	op, err := o.store.GetBulkOperation(ctx, operationID)
	if err != nil {
		return nil, store.Translate(err, "bulk_operation", operationID)
	}
	if op.Status != models.BulkRunning {
		return nil, apperrors.NewInvalidTransitionError("bulk_operation", op.ID, string(op.Status), "cancelled")
	}
	if err := o.store.SetCancelRequested(ctx, operationID); err != nil {
		return nil, store.Translate(err, "bulk_operation", operationID)
	}
	if o.signal != nil {
		if err := o.signal.Signal(ctx, operationID); err != nil {
			o.logger.Warn("failed to publish cancel signal", map[string]interface{}{
				"operationId": operationID,
				"error":       err.Error(),
			})
		}
	}

	o.auditor.Record(ctx, audit.Entry(models.EntityBulkOperation, op.ID, models.ActionBulkCancelled, actor,
		nil, map[string]interface{}{"cancelRequested": true}, o.clock.Now()))
	o.logger.Info("bulk operation cancellation requested", map[string]interface{}{
		"operationId": operationID,
		"actor":       actor,
	})
	return o.reload(ctx, operationID)
}

func (o *Orchestrator) cancelled(ctx context.Context, operationID string) bool {
	if o.signal != nil {
		if ok, err := o.signal.Cancelled(ctx, operationID); err == nil && ok {
			return true
		}
	}
	op, err := o.store.GetBulkOperation(ctx, operationID)
	if err != nil {
		return false
	}
	return op.CancelRequested
}

func (o *Orchestrator) GetBulkOperation(ctx context.Context, operationID string) (*View, error) {
	op, err := o.reload(ctx, operationID)
	if err != nil {
		return nil, err
	}
	items, err := o.store.ListBulkItems(ctx, operationID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list bulk items", err)
	}
	logs, err := o.store.ListBulkLogs(ctx, operationID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list bulk logs", err)
	}
	return &View{Operation: op, Items: items, Logs: logs}, nil
}

func (o *Orchestrator) reload(ctx context.Context, operationID string) (*models.BulkOperation, error) {
	op, err := o.store.GetBulkOperation(ctx, operationID)
	if err != nil {
		return nil, store.Translate(err, "bulk_operation", operationID)
	}
	return op, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
