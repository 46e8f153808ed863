package services

import (
	"context"
	"fmt"
	"log/slog"

	"sleepingpill/internal/domain"
)

type emailService struct {
	logger   *slog.Logger
	mailer   domain.Mailer
	renderer domain.EmailTemplateRenderer
}

// NewEmailService returns an EmailService that uses the given Mailer and template renderer.
func NewEmailService(logger *slog.Logger, mailer domain.Mailer, renderer domain.EmailTemplateRenderer) domain.EmailService {
	return &emailService{logger: logger, mailer: mailer, renderer: renderer}
}

// SendSubmissionReceived confirms a submission using the "submission_received" template.
func (s *emailService) SendSubmissionReceived(ctx context.Context, data *domain.SubmissionReceivedEmailData) error {
	if data == nil {
		return fmt.Errorf("submission received data is nil")
	}
	return s.send(ctx, domain.TemplateSubmissionReceived, data.Email, data)
}

// SendStatusChanged tells a submitter or speaker that the committee decided, using
// the "status_approved" or "status_rejected" template.
func (s *emailService) SendStatusChanged(ctx context.Context, data *domain.StatusChangedEmailData) error {
	if data == nil {
		return fmt.Errorf("status changed data is nil")
	}
	name, ok := domain.TemplateForStatus(data.Status)
	if !ok {
		return fmt.Errorf("no email for status %s", data.Status)
	}
	return s.send(ctx, name, data.Email, data)
}

func (s *emailService) send(ctx context.Context, template domain.EmailTemplate, to string, data any) error {
	subject, htmlBody, textBody, err := s.renderer.Render(template, data)
	if err != nil {
		return fmt.Errorf("failed to render %s template: %w", template, err)
	}
	if err := s.mailer.Send(ctx, to, subject, htmlBody, textBody); err != nil {
		return fmt.Errorf("failed to send %s email: %w", template, err)
	}
	s.logger.InfoContext(ctx, "email sent", "template", string(template), "to", to)
	return nil
}
