package email

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"

	"sleepingpill/internal/domain"
)

//go:embed templates/*
var templateFS embed.FS

// ErrUnknownTemplate is returned for a template name with no files in templates/.
var ErrUnknownTemplate = errors.New("unknown email template")

// Parsed once; the files are compiled into the binary.
var (
	htmlTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt"))
)

// templateRenderer implements domain.EmailTemplateRenderer. A notification
// named n is made of n_subject.txt, n.html and n.txt.
type templateRenderer struct {
	html *template.Template
	text *texttemplate.Template
}

// NewTemplateRenderer returns an EmailTemplateRenderer backed by the embedded templates.
func NewTemplateRenderer() domain.EmailTemplateRenderer {
	return &templateRenderer{html: htmlTemplates, text: textTemplates}
}

func (r *templateRenderer) Render(name domain.EmailTemplate, data any) (subject, htmlBody, textBody string, err error) {
	subjectT := r.text.Lookup(string(name) + "_subject.txt")
	htmlT := r.html.Lookup(string(name) + ".html")
	textT := r.text.Lookup(string(name) + ".txt")
	if subjectT == nil || htmlT == nil || textT == nil {
		return "", "", "", fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}

	var buf bytes.Buffer
	if err := subjectT.Execute(&buf, data); err != nil {
		return "", "", "", fmt.Errorf("render subject: %w", err)
	}
	// mail headers are single-line
	subject = strings.Join(strings.Fields(buf.String()), " ")

	buf.Reset()
	if err := htmlT.Execute(&buf, data); err != nil {
		return "", "", "", fmt.Errorf("render html: %w", err)
	}
	htmlBody = buf.String()

	buf.Reset()
	if err := textT.Execute(&buf, data); err != nil {
		return "", "", "", fmt.Errorf("render text: %w", err)
	}
	return subject, htmlBody, buf.String(), nil
}
