// internal/vetting/notification/templates.go
package notification

import (
	"regexp"
	"strings"

	"vetting-engine/internal/models"
)

// RecipientNameKey is filled in by the transport after it decrypts the name.
const RecipientNameKey = "recipient_name"

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-z_]+)\s*\}\}`)

type template struct {
	Subject string
	Body    string
}

var defaultTemplates = map[models.TemplateType]template{
	models.TemplateApplicationReceived: {
		Subject: "Application {{application_number}} received",
		Body: "Hello {{recipient_name}},\n\n" +
			"We received your vetting application {{application_number}} on {{submission_date}}. " +
			"A reviewer will be assigned shortly.\n\nQuestions? Contact {{contact_email}}.",
	},
	models.TemplateReferenceRequest: {
		Subject: "Reference request for a community vetting application",
		Body: "Hello {{recipient_name}},\n\n" +
			"You were listed as a reference on application {{application_number}}. " +
			"Please complete the short form at {{response_url}} before {{form_expires_at}}.",
	},
	models.TemplateReferenceReminder: {
		Subject: "Reminder {{reminder_stage}}: reference request",
		Body: "Hello {{recipient_name}},\n\n" +
			"This is reminder {{reminder_stage}} of 3 for application {{application_number}}. " +
			"The form at {{response_url}} closes on {{form_expires_at}}.",
	},
	models.TemplateInfoRequested: {
		Subject: "More information needed for application {{application_number}}",
		Body: "Hello {{recipient_name}},\n\n" +
			"Your reviewer asked for more information:\n\n{{requested_info}}\n\nReply to {{contact_email}}.",
	},
	models.TemplateInterviewScheduled: {
		Subject: "Interview scheduled for application {{application_number}}",
		Body: "Hello {{recipient_name}},\n\n" +
			"Your vetting interview is scheduled for {{interview_at}}.",
	},
	models.TemplateApplicationApproved: {
		Subject: "Application {{application_number}} approved",
		Body: "Hello {{recipient_name}},\n\n" +
			"Welcome! Your vetting application has been approved.",
	},
	models.TemplateApplicationRejected: {
		Subject: "Application {{application_number}} update",
		Body: "Hello {{recipient_name}},\n\n" +
			"After review we are unable to approve your application at this time. " +
			"Contact {{contact_email}} with any questions.",
	},
	models.TemplateApplicationWithdrawn: {
		Subject: "Application {{application_number}} withdrawn",
		Body: "Hello {{recipient_name}},\n\n" +
			"Your vetting application has been withdrawn.",
	},
	models.TemplateApplicationExpired: {
		Subject: "Application {{application_number}} expired",
		Body: "Hello {{recipient_name}},\n\n" +
			"Your vetting application expired before a decision was reached. You are welcome to apply again.",
	},
}

// render substitutes {{key}} placeholders from vars. Unknown placeholders are
// removed, except the recipient name which the transport fills in.
func render(text string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(m string) string {
		key := strings.TrimSpace(m[2 : len(m)-2])
		if v, ok := vars[key]; ok {
			return v
		}
		if key == RecipientNameKey {
			return m
		}
		return ""
	})
}

// FillRecipientName replaces the recipient name placeholder.
func FillRecipientName(text, name string) string {
	if name == "" {
		name = "there"
	}
	return placeholderPattern.ReplaceAllStringFunc(text, func(m string) string {
		if strings.TrimSpace(m[2:len(m)-2]) == RecipientNameKey {
			return name
		}
		return m
	})
}
