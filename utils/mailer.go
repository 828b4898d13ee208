package utils

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"gopkg.in/gomail.v2"

	"funnelcrm/config"
)

type EmailData struct {
	Subject  string
	To       []string
	CC       []string
	Template string
	Data     interface{}
}

// Embedded email templates
var emailTemplates = map[string]*template.Template{
	"task_reminder": template.Must(template.New("task_reminder").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { color: #2c3e50; border-bottom: 1px solid #eee; padding-bottom: 10px; }
        .due { font-weight: bold; color: #e67e22; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="header"><h2>{{.Title}}</h2></div>
    <p>Hello {{.Name}},</p>
    <p>This task is due <span class="due">{{.DueIn}}</span> ({{.DueAt}}).</p>
    {{if .Description}}<p>{{.Description}}</p>{{end}}
    {{if .LeadName}}<p>Lead: {{.LeadName}}</p>{{end}}
    <p><a href="{{.Link}}">Open the task</a></p>
    <div class="footer"><p>© {{.Year}} FunnelCRM</p></div>
</body>
</html>`)),
}

// MailSender is what the workers need from a mailer.
type MailSender interface {
	Send(data EmailData) error
}

type Mailer struct {
	dialer    *gomail.Dialer
	fromEmail string
	fromName  string
}

func NewMailer(cfg config.SMTPConfig) *Mailer {
	return &Mailer{
		dialer:    gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
	}
}

// RenderEmail executes a named template.
func RenderEmail(name string, data interface{}) (string, error) {
	tmpl, ok := emailTemplates[name]
	if !ok {
		return "", fmt.Errorf("template '%s' not found", name)
	}
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("error executing template: %w", err)
	}
	return body.String(), nil
}

func (m *Mailer) Send(data EmailData) error {
	body, err := RenderEmail(data.Template, data.Data)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.fromEmail, m.fromName)
	msg.SetHeader("To", data.To...)
	if len(data.CC) > 0 {
		msg.SetHeader("Cc", data.CC...)
	}
	msg.SetHeader("Subject", data.Subject)
	msg.SetBody("text/html", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("error sending email: %w", err)
	}
	return nil
}

// TaskReminderData fills the task_reminder template.
type TaskReminderData struct {
	Name        string
	Title       string
	Description string
	LeadName    string
	DueAt       string
	DueIn       string
	Link        string
	Year        int
}

func NewTaskReminderData(name, title, description, leadName, link string, dueAt, now time.Time) TaskReminderData {
	dueIn := "now"
	if d := dueAt.Sub(now); d > 0 {
		dueIn = "in " + FormatDuration(d)
	}
	return TaskReminderData{
		Name:        name,
		Title:       title,
		Description: description,
		LeadName:    leadName,
		DueAt:       dueAt.Format("02/01/2006 15:04"),
		DueIn:       dueIn,
		Link:        link,
		Year:        now.Year(),
	}
}
