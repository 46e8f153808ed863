package domain

import "context"

// Mailer defines the contract for sending emails (infrastructure port).
type Mailer interface {
	Send(ctx context.Context, to, subject, html, text string) error
}

// EmailTemplate names one notification. Each has a subject, an HTML and a text body.
type EmailTemplate string

const (
	TemplateSubmissionReceived EmailTemplate = "submission_received"
	TemplateStatusApproved     EmailTemplate = "status_approved"
	TemplateStatusRejected     EmailTemplate = "status_rejected"
)

// EmailTemplates lists every notification the service sends.
var EmailTemplates = []EmailTemplate{TemplateSubmissionReceived, TemplateStatusApproved, TemplateStatusRejected}

// TemplateForStatus returns the decision mail for a status. Only APPROVED and
// REJECTED are announced.
func TemplateForStatus(status SessionStatus) (EmailTemplate, bool) {
	switch status {
	case StatusApproved:
		return TemplateStatusApproved, true
	case StatusRejected:
		return TemplateStatusRejected, true
	}
	return "", false
}

// EmailTemplateRenderer renders email content from a named template with the given data.
type EmailTemplateRenderer interface {
	Render(name EmailTemplate, data any) (subject, htmlBody, textBody string, err error)
}

// SubmissionReceivedEmailData holds data for the mail sent when a talk is submitted.
type SubmissionReceivedEmailData struct {
	Email        string
	SessionID    string
	ConferenceID string
	Title        string
}

// StatusChangedEmailData holds data for the mail sent when the committee decides on a talk.
type StatusChangedEmailData struct {
	Email        string
	SessionID    string
	ConferenceID string
	Title        string
	Status       SessionStatus
}

// EmailService defines the contract for sending domain-level emails.
type EmailService interface {
	SendSubmissionReceived(ctx context.Context, data *SubmissionReceivedEmailData) error
	SendStatusChanged(ctx context.Context, data *StatusChangedEmailData) error
}
