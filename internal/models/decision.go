// internal/models/decision.go
package models

import "time"

type DecisionType string

const (
	DecisionApprove           DecisionType = "approve"
	DecisionReject            DecisionType = "reject"
	DecisionRequestInfo       DecisionType = "request_info"
	DecisionScheduleInterview DecisionType = "schedule_interview"
)

func (t DecisionType) IsValid() bool {
	switch t {
	case DecisionApprove, DecisionReject, DecisionRequestInfo, DecisionScheduleInterview:
		return true
	}
	return false
}

// IsFinal reports whether the decision closes the application.
func (t DecisionType) IsFinal() bool {
	return t == DecisionApprove || t == DecisionReject
}

// TargetStatus is the application status a decision of this type leads to.
func (t DecisionType) TargetStatus() ApplicationStatus {
	switch t {
	case DecisionApprove:
		return StatusApproved
	case DecisionReject:
		return StatusRejected
	case DecisionRequestInfo:
		return StatusInfoRequested
	case DecisionScheduleInterview:
		return StatusInterviewScheduled
	}
	return ""
}

// Decision is immutable once stored.
type Decision struct {
	ID                string       `json:"id"`
	ApplicationID     string       `json:"applicationId"`
	ReviewerID        string       `json:"reviewerId"`
	Type              DecisionType `json:"type"`
	Reasoning         string       `json:"reasoning"`
	Score             *int         `json:"score,omitempty"`
	IsFinalDecision   bool         `json:"isFinalDecision"`
	RequestedInfo     string       `json:"requestedInfo,omitempty"`
	InterviewAt       *time.Time   `json:"interviewAt,omitempty"`
	RequestReferences bool         `json:"requestReferences"`
	CreatedBy         string       `json:"createdBy"`
	CreatedAt         time.Time    `json:"createdAt"`
}
