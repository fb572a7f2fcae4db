// internal/vetting/reference/policy.go
package reference

import (
	"time"

	"vetting-engine/internal/models"
)

// Policy holds the reminder schedule, measured from ContactedAt.
type Policy = models.ReminderSchedule

func DefaultPolicy() Policy {
	day := 24 * time.Hour
	return Policy{
		ReminderAfter:  [3]time.Duration{3 * day, 7 * day, 12 * day},
		ResponseWindow: 14 * day,
	}
}

// PolicyFromDays builds a Policy from the day counts used in configuration.
func PolicyFromDays(reminderDays []int, responseDays int) Policy {
	p := DefaultPolicy()
	for i := 0; i < len(reminderDays) && i < len(p.ReminderAfter); i++ {
		p.ReminderAfter[i] = time.Duration(reminderDays[i]) * 24 * time.Hour
	}
	if responseDays > 0 {
		p.ResponseWindow = time.Duration(responseDays) * 24 * time.Hour
	}
	return p
}

type Action string

const (
	ActionNone           Action = "none"
	ActionFirstReminder  Action = "first_reminder"
	ActionSecondReminder Action = "second_reminder"
	ActionFinalReminder  Action = "final_reminder"
	ActionExpire         Action = "expire"
)

var reminderStages = [3]Action{ActionFirstReminder, ActionSecondReminder, ActionFinalReminder}

// Stage returns the 1-based reminder stage for a reminder action, or 0.
func (a Action) Stage() int {
	for i, s := range reminderStages {
		if s == a {
			return i + 1
		}
	}
	return 0
}

// NextAction decides what a scheduler tick at now should do for ref. Only the
// next unsent reminder stage is ever returned, so stages are never skipped
// and at most one is due per tick. Expiry needs all three reminders sent and
// FormExpiresAt in the past.
func NextAction(ref *models.Reference, now time.Time, p Policy) Action {
	due, ok := ref.NextDueAt(p)
	if !ok {
		return ActionNone
	}
	if sent := ref.RemindersSent(); sent < len(reminderStages) {
		if !now.Before(due) {
			return reminderStages[sent]
		}
		return ActionNone
	}
	if now.After(due) {
		return ActionExpire
	}
	return ActionNone
}

// applyReminder stamps the reminder stage on ref.
func applyReminder(ref *models.Reference, a Action, now time.Time) {
	t := now
	switch a {
	case ActionFirstReminder:
		ref.FirstReminderAt = &t
	case ActionSecondReminder:
		ref.SecondReminderAt = &t
	case ActionFinalReminder:
		ref.FinalReminderAt = &t
	}
	ref.UpdatedAt = now
}
