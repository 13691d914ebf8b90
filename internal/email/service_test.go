package email

import (
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "agenda@example.com",
			},
			expected: false,
		},
		{
			name: "missing port",
			config: Config{
				Host: "smtp.example.com",
				From: "agenda@example.com",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "agenda@example.com",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestRenderReviewRequestedTemplate(t *testing.T) {
	data := ReviewRequestedData{
		AppName:     "Agenda",
		EventTitle:  "Open day",
		AuthorEmail: "author@example.com",
		EventURL:    "https://example.com/events/evt_1",
	}

	html, err := renderTemplate(reviewRequestedTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "Open day") {
		t.Error("template should contain event title")
	}
	if !strings.Contains(html, "author@example.com") {
		t.Error("template should contain author email")
	}
	if !strings.Contains(html, "https://example.com/events/evt_1") {
		t.Error("template should contain event URL")
	}
}

func TestRenderRefusedTemplate(t *testing.T) {
	data := DecisionData{
		AppName:    "Agenda",
		EventTitle: "Open day",
		Reason:     "Room already booked",
		EventURL:   "https://example.com/events/evt_1",
	}

	html, err := renderTemplate(refusedTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "Open day") {
		t.Error("template should contain event title")
	}
	if !strings.Contains(html, "Room already booked") {
		t.Error("template should contain refusal reason")
	}
}

func TestRenderRefusedTemplateWithoutReason(t *testing.T) {
	html, err := renderTemplate(refusedTemplate, DecisionData{
		AppName:    "Agenda",
		EventTitle: "Open day",
	})
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if strings.Contains(html, "Reason:") {
		t.Error("template should omit the reason block when no reason is given")
	}
}
