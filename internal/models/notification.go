// internal/models/notification.go
package models

import "time"

type TemplateType string

const (
	TemplateApplicationReceived  TemplateType = "application_received"
	TemplateReferenceRequest     TemplateType = "reference_request"
	TemplateReferenceReminder    TemplateType = "reference_reminder"
	TemplateInfoRequested        TemplateType = "info_requested"
	TemplateInterviewScheduled   TemplateType = "interview_scheduled"
	TemplateApplicationApproved  TemplateType = "application_approved"
	TemplateApplicationRejected  TemplateType = "application_rejected"
	TemplateApplicationWithdrawn TemplateType = "application_withdrawn"
	TemplateApplicationExpired   TemplateType = "application_expired"
)

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

type TargetType string

const (
	TargetApplication TargetType = "application"
	TargetReference   TargetType = "reference"
)

type Notification struct {
	ID            string             `json:"id"`
	TemplateType  TemplateType       `json:"templateType"`
	Recipient     []byte             `json:"-"`
	RecipientName []byte             `json:"-"`
	TargetType    TargetType         `json:"targetType"`
	TargetID      string             `json:"targetId"`
	Context       map[string]string  `json:"context,omitempty"`
	Status        NotificationStatus `json:"status"`
	RetryCount    int                `json:"retryCount"`
	NextRetryAt   *time.Time         `json:"nextRetryAt,omitempty"`
	LastError     string             `json:"lastError,omitempty"`
	SentAt        *time.Time         `json:"sentAt,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

func (n *Notification) Clone() *Notification {
	c := *n
	c.NextRetryAt = cloneTime(n.NextRetryAt)
	c.SentAt = cloneTime(n.SentAt)
	if n.Context != nil {
		c.Context = make(map[string]string, len(n.Context))
		for k, v := range n.Context {
			c.Context[k] = v
		}
	}
	return &c
}

type EmailTemplate struct {
	ID           string       `json:"id"`
	TemplateType TemplateType `json:"templateType"`
	Subject      string       `json:"subject"`
	Body         string       `json:"body"`
	Version      int          `json:"version"`
	IsActive     bool         `json:"isActive"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}
