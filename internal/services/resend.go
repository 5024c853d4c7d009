package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"time"
)

// ---------------------------------------------------------------------------
// Resend Transactional Email Service
// Sends confirmation and daily-lesson emails via the Resend REST API.
// ---------------------------------------------------------------------------

const resendBaseURL = "https://api.resend.com"

// Email template names accepted by Send.
const (
	TemplateConfirmEmail     = "ConfirmEmail"
	TemplateDailyLessonEmail = "DailyLessonEmail"
)

// Mailer is the notification collaborator. Fire-and-forget from the
// pipeline's perspective: callers dispatch and move on.
type Mailer interface {
	Send(ctx context.Context, to, templateName string, props map[string]interface{}) error
}

type ResendService struct {
	apiKey string
	from   string
	dryRun bool // log instead of sending (dev mode)
	client *http.Client
}

// Ensure ResendService implements Mailer at compile time.
var _ Mailer = (*ResendService)(nil)

func NewResendService(apiKey, from string, dryRun bool) *ResendService {
	return &ResendService{
		apiKey: apiKey,
		from:   from,
		dryRun: dryRun,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

var confirmEmailTmpl = template.Must(template.New("confirm").Parse(`
<h2>Confirm your Auri subscription</h2>
<p>Tap the link below to confirm your email and receive your first lesson.</p>
<p><a href="{{.ConfirmURL}}">Confirm my email</a></p>
<p>This link expires in 15 minutes.</p>
`))

var dailyLessonEmailTmpl = template.Must(template.New("daily").Parse(`
{{if .IsWelcome}}<h2>Welcome to Auri — your first lesson is ready</h2>
{{else}}<h2>Your daily lesson is ready</h2>
{{end}}<p><strong>{{.Title}}</strong></p>
<p><a href="{{.LessonURL}}">Start today's lesson</a></p>
<p>Listen to the story, then answer the questions to keep your streak going.</p>
`))

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Send renders the named template with props and posts it to Resend.
func (s *ResendService) Send(ctx context.Context, to, templateName string, props map[string]interface{}) error {
	subject, html, err := renderTemplate(templateName, props)
	if err != nil {
		return err
	}

	if s.dryRun {
		log.Printf("[Resend] Dry run — would send %q to %s", subject, to)
		return nil
	}

	reqBody := resendRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal resend request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", resendBaseURL+"/emails", bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create resend request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("resend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("resend returned status %d: %s", resp.StatusCode, string(body))
	}

	log.Printf("[Resend] Sent %q to %s", subject, to)
	return nil
}

func renderTemplate(templateName string, props map[string]interface{}) (subject, html string, err error) {
	var buf bytes.Buffer

	switch templateName {
	case TemplateConfirmEmail:
		subject = "Confirm your Auri subscription"
		err = confirmEmailTmpl.Execute(&buf, props)
	case TemplateDailyLessonEmail:
		title, _ := props["Title"].(string)
		subject = fmt.Sprintf("Your daily lesson: %s", title)
		if isWelcome, _ := props["IsWelcome"].(bool); isWelcome {
			subject = fmt.Sprintf("Welcome to Auri — %s", title)
		}
		err = dailyLessonEmailTmpl.Execute(&buf, props)
	default:
		return "", "", fmt.Errorf("unknown email template: %s", templateName)
	}

	if err != nil {
		return "", "", fmt.Errorf("failed to render %s: %w", templateName, err)
	}
	return subject, buf.String(), nil
}
