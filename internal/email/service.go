// Package email provides email sending capabilities via SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
}

// NewService creates a new email service
func NewService(config Config) *Service {
	auth := smtp.PlainAuth("", config.Username, config.Password, config.Host)

	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendEmail sends a plain text email
func (s *Service) SendEmail(to []string, subject, body string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	msg := []byte(fmt.Sprintf(
		"To: %s\r\n"+
			"From: %s\r\n"+
			"Subject: %s\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		strings.Join(to, ", "),
		from,
		subject,
		body,
	))

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg)
}

// SendHTMLEmail sends an HTML email
func (s *Service) SendHTMLEmail(to []string, subject, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	boundary := "boundary-agenda"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "Please view this email in an HTML-capable email client.\r\n")
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg.Bytes())
}

// ReviewRequestedData feeds the notification sent to reviewers when an
// author hands an event in.
type ReviewRequestedData struct {
	AppName     string
	EventTitle  string
	AuthorEmail string
	EventURL    string
}

// DecisionData feeds the notifications sent back to the author once a
// reviewer has published or refused the event.
type DecisionData struct {
	AppName    string
	EventTitle string
	Reason     string
	EventURL   string
}

// SendReviewRequested notifies reviewers that an event awaits review.
func (s *Service) SendReviewRequested(to []string, eventTitle, authorEmail, eventURL string) error {
	data := ReviewRequestedData{
		AppName:     "Agenda",
		EventTitle:  eventTitle,
		AuthorEmail: authorEmail,
		EventURL:    eventURL,
	}

	subject := fmt.Sprintf("Review requested: %s", eventTitle)
	html, err := renderTemplate(reviewRequestedTemplate, data)
	if err != nil {
		return fmt.Errorf("render review requested template: %w", err)
	}

	return s.SendHTMLEmail(to, subject, html)
}

// SendPublished notifies the author that the event went live.
func (s *Service) SendPublished(to, eventTitle, eventURL string) error {
	data := DecisionData{
		AppName:    "Agenda",
		EventTitle: eventTitle,
		EventURL:   eventURL,
	}

	subject := fmt.Sprintf("Published: %s", eventTitle)
	html, err := renderTemplate(publishedTemplate, data)
	if err != nil {
		return fmt.Errorf("render published template: %w", err)
	}

	return s.SendHTMLEmail([]string{to}, subject, html)
}

// SendRefused notifies the author that the event was sent back.
func (s *Service) SendRefused(to, eventTitle, reason, eventURL string) error {
	data := DecisionData{
		AppName:    "Agenda",
		EventTitle: eventTitle,
		Reason:     reason,
		EventURL:   eventURL,
	}

	subject := fmt.Sprintf("Changes requested: %s", eventTitle)
	html, err := renderTemplate(refusedTemplate, data)
	if err != nil {
		return fmt.Errorf("render refused template: %w", err)
	}

	return s.SendHTMLEmail([]string{to}, subject, html)
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const reviewRequestedTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Review requested</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #0066cc; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Review requested</h2>

    <p>{{.AuthorEmail}} handed in <strong>{{.EventTitle}}</strong> for review.</p>

    <p>
        <a href="{{.EventURL}}" class="button">Open the event</a>
    </p>

    <div class="footer">
        <p>You receive this because you are an administrator of {{.AppName}}.</p>
    </div>
</body>
</html>`

const publishedTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Event published</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #2e8540; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #2e8540; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Your event is live</h2>

    <p><strong>{{.EventTitle}}</strong> passed review and is now published.</p>

    <p>
        <a href="{{.EventURL}}" class="button">View the event</a>
    </p>

    <div class="footer">
        <p>You receive this because you are the author of the event.</p>
    </div>
</body>
</html>`

const refusedTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Changes requested</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #cc3300; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #cc3300; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .reason { background: #fff3cd; padding: 12px; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Changes requested</h2>

    <p><strong>{{.EventTitle}}</strong> was sent back by a reviewer.</p>

    {{if .Reason}}
    <div class="reason">
        <strong>Reason:</strong> {{.Reason}}
    </div>
    {{end}}

    <p>
        <a href="{{.EventURL}}" class="button">Open the event</a>
    </p>

    <div class="footer">
        <p>You receive this because you are the author of the event.</p>
    </div>
</body>
</html>`
