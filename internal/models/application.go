// internal/models/application.go
package models

import (
	"fmt"
	"time"
)

type ApplicationStatus string

const (
	StatusSubmitted          ApplicationStatus = "submitted"
	StatusUnderReview        ApplicationStatus = "under_review"
	StatusInfoRequested      ApplicationStatus = "info_requested"
	StatusInterviewScheduled ApplicationStatus = "interview_scheduled"
	StatusApproved           ApplicationStatus = "approved"
	StatusRejected           ApplicationStatus = "rejected"
	StatusWithdrawn          ApplicationStatus = "withdrawn"
	StatusExpired            ApplicationStatus = "expired"
)

// transitions lists the allowed targets per status. Terminal statuses have
// no entry.
var transitions = map[ApplicationStatus][]ApplicationStatus{
	StatusSubmitted:          {StatusUnderReview, StatusWithdrawn, StatusExpired},
	StatusUnderReview:        {StatusInfoRequested, StatusInterviewScheduled, StatusApproved, StatusRejected, StatusWithdrawn, StatusExpired},
	StatusInfoRequested:      {StatusUnderReview, StatusWithdrawn, StatusExpired},
	StatusInterviewScheduled: {StatusUnderReview, StatusWithdrawn, StatusExpired},
}

func (s ApplicationStatus) IsValid() bool {
	switch s {
	case StatusSubmitted, StatusUnderReview, StatusInfoRequested, StatusInterviewScheduled,
		StatusApproved, StatusRejected, StatusWithdrawn, StatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is permitted.
func (s ApplicationStatus) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusWithdrawn, StatusExpired:
		return true
	}
	return false
}

// HoldsReviewer reports whether an application in this status occupies a
// reviewer workload slot.
func (s ApplicationStatus) HoldsReviewer() bool {
	switch s {
	case StatusUnderReview, StatusInfoRequested, StatusInterviewScheduled:
		return true
	}
	return false
}

func CanTransition(from, to ApplicationStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityStandard Priority = "standard"
	PriorityHigh     Priority = "high"
	PriorityUrgent   Priority = "urgent"
)

func (p Priority) IsValid() bool {
	return p == PriorityStandard || p == PriorityHigh || p == PriorityUrgent
}

// ApplicantPII holds encrypted blobs. The engine never inspects them.
type ApplicantPII struct {
	FullName  []byte `json:"fullName,omitempty"`
	SceneName []byte `json:"sceneName,omitempty"`
	Email     []byte `json:"email,omitempty"`
	Phone     []byte `json:"phone,omitempty"`
	Answers   []byte `json:"answers,omitempty"`
}

type Application struct {
	ID                       string                 `json:"id"`
	ApplicationNumber        string                 `json:"applicationNumber"`
	ApplicantID              string                 `json:"applicantId"`
	Status                   ApplicationStatus      `json:"status"`
	Priority                 Priority               `json:"priority"`
	AssignedReviewerID       string                 `json:"assignedReviewerId,omitempty"`
	SubmittedAt              time.Time              `json:"submittedAt"`
	ReviewStartedAt          *time.Time             `json:"reviewStartedAt,omitempty"`
	DecisionAt               *time.Time             `json:"decisionAt,omitempty"`
	InterviewScheduledAt     *time.Time             `json:"interviewScheduledAt,omitempty"`
	ExpiresAt                time.Time              `json:"expiresAt"`
	DeletedAt                *time.Time             `json:"deletedAt,omitempty"`
	PII                      ApplicantPII           `json:"-"`
	Answers                  map[string]interface{} `json:"answers,omitempty"`
	AgreesToTerms            bool                   `json:"agreesToTerms"`
	AgreesToGuidelines       bool                   `json:"agreesToGuidelines"`
	ConsentToContact         bool                   `json:"consentToContact"`
	IsAnonymous              bool                   `json:"isAnonymous"`
	RequestedSpecializations []string               `json:"requestedSpecializations,omitempty"`
	Version                  int                    `json:"version"`
	CreatedAt                time.Time              `json:"createdAt"`
	UpdatedAt                time.Time              `json:"updatedAt"`
}

// Transition moves the application to status `to` or returns an error
// naming both ends.
func (a *Application) Transition(to ApplicationStatus, now time.Time) error {
	if !CanTransition(a.Status, to) {
		return fmt.Errorf("application %s: %s -> %s not allowed", a.ID, a.Status, to)
	}
	a.Status = to
	a.UpdatedAt = now
	return nil
}

// Archive sets the soft-delete marker. Only terminal applications can be
// archived.
func (a *Application) Archive(now time.Time) error {
	if !a.Status.IsTerminal() {
		return fmt.Errorf("application %s: cannot archive in status %s", a.ID, a.Status)
	}
	if a.DeletedAt == nil {
		a.DeletedAt = &now
		a.UpdatedAt = now
	}
	return nil
}

// Validate rejects records whose status and soft-delete marker disagree.
func (a *Application) Validate() error {
	if !a.Status.IsValid() {
		return fmt.Errorf("application %s: unknown status %q", a.ID, a.Status)
	}
	if a.DeletedAt != nil && !a.Status.IsTerminal() {
		return fmt.Errorf("application %s: soft-deleted in non-terminal status %s", a.ID, a.Status)
	}
	return nil
}

// Clone returns a deep copy.
func (a *Application) Clone() *Application {
	c := *a
	c.ReviewStartedAt = cloneTime(a.ReviewStartedAt)
	c.DecisionAt = cloneTime(a.DecisionAt)
	c.InterviewScheduledAt = cloneTime(a.InterviewScheduledAt)
	c.DeletedAt = cloneTime(a.DeletedAt)
	c.RequestedSpecializations = append([]string(nil), a.RequestedSpecializations...)
	if a.Answers != nil {
		c.Answers = make(map[string]interface{}, len(a.Answers))
		for k, v := range a.Answers {
			c.Answers[k] = v
		}
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// StatusDescription is the applicant-facing text for a status.
func StatusDescription(s ApplicationStatus) string {
	switch s {
	case StatusSubmitted:
		return "Your application has been received and is waiting for a reviewer."
	case StatusUnderReview:
		return "Your application is being reviewed."
	case StatusInfoRequested:
		return "We need some more information before we can continue your review."
	case StatusInterviewScheduled:
		return "An interview has been scheduled as part of your review."
	case StatusApproved:
		return "Your application has been approved."
	case StatusRejected:
		return "Your application was not approved."
	case StatusWithdrawn:
		return "Your application has been withdrawn."
	case StatusExpired:
		return "Your application expired before a decision was made."
	default:
		return "Unknown status."
	}
}
