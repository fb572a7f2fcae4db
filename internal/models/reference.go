// internal/models/reference.go
package models

import "time"

type ReferenceStatus string

const (
	ReferencePending               ReferenceStatus = "pending"
	ReferenceContacted             ReferenceStatus = "contacted"
	ReferenceResponded             ReferenceStatus = "responded"
	ReferenceExpired               ReferenceStatus = "expired"
	ReferenceManualContactRequired ReferenceStatus = "manual_contact_required"
)

type Recommendation string

const (
	RecommendStrongly   Recommendation = "strongly_recommend"
	Recommend           Recommendation = "recommend"
	RecommendNeutral    Recommendation = "neutral"
	RecommendDoNotAdmit Recommendation = "do_not_recommend"
)

func (r Recommendation) IsValid() bool {
	switch r {
	case RecommendStrongly, Recommend, RecommendNeutral, RecommendDoNotAdmit:
		return true
	}
	return false
}

type Reference struct {
	ID                       string          `json:"id"`
	ApplicationID            string          `json:"applicationId"`
	Ordinal                  int             `json:"ordinal"`
	TokenHash                string          `json:"-"`
	TokenUsedAt              *time.Time      `json:"tokenUsedAt,omitempty"`
	Status                   ReferenceStatus `json:"status"`
	ContactedAt              *time.Time      `json:"contactedAt,omitempty"`
	FirstReminderAt          *time.Time      `json:"firstReminderAt,omitempty"`
	SecondReminderAt         *time.Time      `json:"secondReminderAt,omitempty"`
	FinalReminderAt          *time.Time      `json:"finalReminderAt,omitempty"`
	FormExpiresAt            *time.Time      `json:"formExpiresAt,omitempty"`
	RespondedAt              *time.Time      `json:"respondedAt,omitempty"`
	RequiresManualContact    bool            `json:"requiresManualContact"`
	ManualContactNotes       string          `json:"manualContactNotes,omitempty"`
	ManualContactAttemptedAt *time.Time      `json:"manualContactAttemptedAt,omitempty"`
	Name                     []byte          `json:"-"`
	Email                    []byte          `json:"-"`
	Relationship             []byte          `json:"-"`
	Version                  int             `json:"version"`
	CreatedAt                time.Time       `json:"createdAt"`
	UpdatedAt                time.Time       `json:"updatedAt"`
}

// RemindersSent counts reminder stages already recorded.
func (r *Reference) RemindersSent() int {
	switch {
	case r.FinalReminderAt != nil:
		return 3
	case r.SecondReminderAt != nil:
		return 2
	case r.FirstReminderAt != nil:
		return 1
	}
	return 0
}

// ReminderSchedule is the reminder timing, measured from ContactedAt.
type ReminderSchedule struct {
	ReminderAfter  [3]time.Duration
	ResponseWindow time.Duration
}

// NextDueAt returns when the next step for a contacted reference falls due:
// the next unsent reminder stage, or expiry once all reminders are sent.
func (r *Reference) NextDueAt(s ReminderSchedule) (time.Time, bool) {
	if r.Status != ReferenceContacted || r.ContactedAt == nil {
		return time.Time{}, false
	}
	if sent := r.RemindersSent(); sent < len(s.ReminderAfter) {
		return r.ContactedAt.Add(s.ReminderAfter[sent]), true
	}
	if r.FormExpiresAt != nil {
		return *r.FormExpiresAt, true
	}
	return r.ContactedAt.Add(s.ResponseWindow), true
}

// AwaitingResponse reports whether the reference may still respond on its own.
func (r *Reference) AwaitingResponse() bool {
	return r.Status == ReferencePending || r.Status == ReferenceContacted
}

// AcceptsResponse reports whether RecordResponse may run for this reference.
func (r *Reference) AcceptsResponse() bool {
	switch r.Status {
	case ReferenceContacted, ReferenceExpired, ReferenceManualContactRequired:
		return true
	}
	return false
}

func (r *Reference) Clone() *Reference {
	c := *r
	c.TokenUsedAt = cloneTime(r.TokenUsedAt)
	c.ContactedAt = cloneTime(r.ContactedAt)
	c.FirstReminderAt = cloneTime(r.FirstReminderAt)
	c.SecondReminderAt = cloneTime(r.SecondReminderAt)
	c.FinalReminderAt = cloneTime(r.FinalReminderAt)
	c.FormExpiresAt = cloneTime(r.FormExpiresAt)
	c.RespondedAt = cloneTime(r.RespondedAt)
	c.ManualContactAttemptedAt = cloneTime(r.ManualContactAttemptedAt)
	return &c
}

// ReferenceResponse is created once per reference and never changed.
type ReferenceResponse struct {
	ID             string         `json:"id"`
	ReferenceID    string         `json:"referenceId"`
	Answers        []byte         `json:"-"`
	Recommendation Recommendation `json:"recommendation"`
	CreatedAt      time.Time      `json:"createdAt"`
}
