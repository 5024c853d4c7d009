package services

import (
	"strings"
	"testing"
)

func TestRenderConfirmEmail(t *testing.T) {
	subject, html, err := renderTemplate(TemplateConfirmEmail, map[string]interface{}{
		"ConfirmURL": "https://auri.app/confirm/abc123",
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	if !strings.Contains(subject, "Confirm") {
		t.Errorf("unexpected subject: %q", subject)
	}
	if !strings.Contains(html, "https://auri.app/confirm/abc123") {
		t.Error("confirmation link missing from body")
	}
}

func TestRenderDailyLessonEmail(t *testing.T) {
	props := map[string]interface{}{
		"Title":     "El mercado",
		"LessonURL": "https://auri.app/lessons/xyz",
		"IsWelcome": false,
	}

	subject, html, err := renderTemplate(TemplateDailyLessonEmail, props)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(subject, "El mercado") {
		t.Errorf("title missing from subject: %q", subject)
	}
	if strings.Contains(html, "Welcome") {
		t.Error("welcome copy rendered for a regular daily email")
	}

	props["IsWelcome"] = true
	subject, html, err = renderTemplate(TemplateDailyLessonEmail, props)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(subject, "Welcome") {
		t.Errorf("welcome subject missing: %q", subject)
	}
	if !strings.Contains(html, "Welcome") {
		t.Error("welcome copy missing from body")
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	if _, _, err := renderTemplate("Nope", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}
