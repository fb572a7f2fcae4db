// internal/vetting/reviewer/pool.go
package reviewer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	apperrors "vetting-engine/internal/common/errors"
	"vetting-engine/internal/common/logger"
	"vetting-engine/internal/common/metrics"
	"vetting-engine/internal/models"
	"vetting-engine/internal/vetting/audit"
	"vetting-engine/internal/vetting/clock"
	"vetting-engine/internal/vetting/store"

	"github.com/google/uuid"
)

type Pool struct {
	store   store.ReviewerStore
	auditor audit.Recorder
	clock   clock.Clock
	logger  logger.Logger
}

func NewPool(s store.ReviewerStore, auditor audit.Recorder, clk clock.Clock, log logger.Logger) *Pool {
	if auditor == nil {
		auditor = audit.Discard{}
	}
	return &Pool{
		store:   s,
		auditor: auditor,
		clock:   clk,
		logger:  log.WithFields(map[string]interface{}{"component": "reviewer-pool"}),
	}
}

// Selection is the outcome of SelectReviewer.
type Selection struct {
	Reviewer *models.Reviewer
	// Fallback is set when no eligible reviewer matched the requested
	// specializations and the whole eligible set was ranked instead.
	Fallback bool
}

// SelectReviewer picks the least loaded eligible reviewer. It does not
// reserve a slot; the caller does that atomically with the assignment.
func (p *Pool) SelectReviewer(ctx context.Context, specializations []string) (*Selection, error) {
	all, err := p.store.ListReviewers(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list reviewers", err)
	}
	return p.selectFrom(all, specializations, nil)
}

// SelectReviewerExcluding is SelectReviewer skipping reviewers that already
// lost a reservation race in the current assignment attempt.
func (p *Pool) SelectReviewerExcluding(ctx context.Context, specializations []string, exclude map[string]bool) (*Selection, error) {
	all, err := p.store.ListReviewers(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list reviewers", err)
	}
	return p.selectFrom(all, specializations, exclude)
}

func (p *Pool) selectFrom(all []*models.Reviewer, specializations []string, exclude map[string]bool) (*Selection, error) {
	now := p.clock.Now()

	var eligible []*models.Reviewer
	for _, r := range Eligible(all, now) {
		if !exclude[r.ID] {
			eligible = append(eligible, r)
		}
	}
	if len(eligible) == 0 {
		metrics.ReviewerAssignments.WithLabelValues("none").Inc()
		return nil, apperrors.NewNoReviewerAvailableError(fmt.Sprintf("no eligible reviewer among %d", len(all)))
	}

	candidates, fallback := matchSpecializations(eligible, specializations)
	if fallback {
		metrics.ReviewerAssignments.WithLabelValues("fallback").Inc()
		p.logger.Warn("no reviewer matches requested specializations, using full eligible pool", map[string]interface{}{
			"specializations": specializations,
			"eligible":        len(eligible),
		})
	} else {
		metrics.ReviewerAssignments.WithLabelValues("selected").Inc()
	}

	Rank(candidates)
	return &Selection{Reviewer: candidates[0], Fallback: fallback}, nil
}

// Eligible filters reviewers that can take one more application at now.
func Eligible(reviewers []*models.Reviewer, now time.Time) []*models.Reviewer {
	out := make([]*models.Reviewer, 0, len(reviewers))
	for _, r := range reviewers {
		if r.IsEligible(now) {
			out = append(out, r)
		}
	}
	return out
}

func matchSpecializations(eligible []*models.Reviewer, specializations []string) ([]*models.Reviewer, bool) {
	if len(specializations) == 0 {
		return eligible, false
	}
	var matched []*models.Reviewer
	for _, r := range eligible {
		if r.HasAnySpecialization(specializations) {
			matched = append(matched, r)
		}
	}
	if len(matched) == 0 {
		return eligible, true
	}
	return matched, false
}

// Rank orders by workload ascending, approval rate descending, then id.
func Rank(reviewers []*models.Reviewer) {
	sort.SliceStable(reviewers, func(i, j int) bool {
		a, b := reviewers[i], reviewers[j]
		if a.CurrentWorkload != b.CurrentWorkload {
			return a.CurrentWorkload < b.CurrentWorkload
		}
		if a.ApprovalRate != b.ApprovalRate {
			return a.ApprovalRate > b.ApprovalRate
		}
		return a.ID < b.ID
	})
}

// ==========================
// Management
// ==========================

type RegisterInput struct {
	ID              string   `json:"id,omitempty"`
	UserID          string   `json:"userId"`
	DisplayName     string   `json:"displayName"`
	Specializations []string `json:"specializations,omitempty"`
	MaxWorkload     int      `json:"maxWorkload"`
	Actor           string   `json:"actor,omitempty"`
}

func (p *Pool) RegisterReviewer(ctx context.Context, in RegisterInput) (*models.Reviewer, error) {
	if in.UserID == "" {
		return nil, apperrors.NewValidationError("userId is required")
	}
	if in.MaxWorkload <= 0 {
		return nil, apperrors.NewValidationError("maxWorkload must be positive")
	}
	id := in.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := p.clock.Now()
	r := &models.Reviewer{
		ID:              id,
		UserID:          in.UserID,
		DisplayName:     in.DisplayName,
		IsActive:        true,
		IsAvailable:     true,
		Specializations: in.Specializations,
		MaxWorkload:     in.MaxWorkload,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := p.store.CreateReviewer(ctx, r); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperrors.NewValidationError("reviewer " + id + " already exists")
		}
		return nil, apperrors.NewDatabaseError("create reviewer", err)
	}

	p.auditor.Record(ctx, audit.Entry(models.EntityReviewer, r.ID, models.ActionReviewerRegistered, in.Actor, nil,
		map[string]interface{}{"userId": r.UserID, "maxWorkload": r.MaxWorkload, "specializations": r.Specializations}, now))
	p.logger.Info("reviewer registered", map[string]interface{}{"reviewerId": r.ID, "maxWorkload": r.MaxWorkload})
	return r, nil
}

// AvailabilityUpdate changes the management flags of a reviewer. Nil fields
// are left as they are.
type AvailabilityUpdate struct {
	IsActive         *bool
	IsAvailable      *bool
	UnavailableUntil *time.Time
	ClearUntil       bool
	MaxWorkload      *int
	Specializations  []string
	Actor            string
}

// SetAvailability never touches workload; lowering MaxWorkload below the
// current workload only blocks new assignments.
func (p *Pool) SetAvailability(ctx context.Context, reviewerID string, upd AvailabilityUpdate) (*models.Reviewer, error) {
	r, err := p.GetReviewer(ctx, reviewerID)
	if err != nil {
		return nil, err
	}
	old := map[string]interface{}{"isActive": r.IsActive, "isAvailable": r.IsAvailable, "maxWorkload": r.MaxWorkload}

	if upd.IsActive != nil {
		r.IsActive = *upd.IsActive
	}
	if upd.IsAvailable != nil {
		r.IsAvailable = *upd.IsAvailable
	}
	if upd.ClearUntil {
		r.UnavailableUntil = nil
	} else if upd.UnavailableUntil != nil {
		until := *upd.UnavailableUntil
		r.UnavailableUntil = &until
	}
	if upd.MaxWorkload != nil {
		if *upd.MaxWorkload < 0 {
			return nil, apperrors.NewValidationError("maxWorkload must not be negative")
		}
		r.MaxWorkload = *upd.MaxWorkload
	}
	if upd.Specializations != nil {
		r.Specializations = upd.Specializations
	}
	r.UpdatedAt = p.clock.Now()

	if err := p.store.UpdateReviewerSettings(ctx, r); err != nil {
		return nil, apperrors.NewDatabaseError("update reviewer", err)
	}

	p.auditor.Record(ctx, audit.Entry(models.EntityReviewer, r.ID, models.ActionReviewerUpdated, upd.Actor, old,
		map[string]interface{}{"isActive": r.IsActive, "isAvailable": r.IsAvailable, "maxWorkload": r.MaxWorkload}, r.UpdatedAt))
	return r, nil
}

func (p *Pool) GetReviewer(ctx context.Context, reviewerID string) (*models.Reviewer, error) {
	r, err := p.store.GetReviewer(ctx, reviewerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NewNotFoundError("reviewer", reviewerID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get reviewer", err)
	}
	return r, nil
}

func (p *Pool) ListReviewers(ctx context.Context) ([]*models.Reviewer, error) {
	all, err := p.store.ListReviewers(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list reviewers", err)
	}
	return all, nil
}

// CheckAvailable explains why a reviewer cannot take a new application.
func (p *Pool) CheckAvailable(r *models.Reviewer) error {
	now := p.clock.Now()
	switch {
	case !r.IsActive:
		return apperrors.NewReviewerUnavailableError(r.ID, "inactive")
	case !r.IsAvailable:
		return apperrors.NewReviewerUnavailableError(r.ID, "unavailable")
	case r.UnavailableUntil != nil && !r.UnavailableUntil.Before(now):
		return apperrors.NewReviewerUnavailableError(r.ID, "unavailable until "+r.UnavailableUntil.Format(time.RFC3339))
	case r.CurrentWorkload >= r.MaxWorkload:
		return apperrors.NewReviewerUnavailableError(r.ID, fmt.Sprintf("at capacity (%d/%d)", r.CurrentWorkload, r.MaxWorkload))
	}
	return nil
}
