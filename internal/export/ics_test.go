package export

import (
	"strings"
	"testing"
	"time"

	"agenda/api/internal/store"
)

func TestEncodeICS(t *testing.T) {
	events := []store.Event{
		{
			ID:              "evt_1",
			Description:     "Open day",
			DescriptionLong: "Doors open at nine.",
			Location:        "Main hall",
			Start:           time.Date(2026, time.March, 12, 9, 0, 0, 0, time.UTC),
			End:             time.Date(2026, time.March, 12, 12, 0, 0, 0, time.UTC),
		},
		{
			ID:          "evt_2",
			Description: "Sports day",
			Start:       time.Date(2026, time.June, 1, 8, 0, 0, 0, time.UTC),
			End:         time.Date(2026, time.June, 1, 16, 0, 0, 0, time.UTC),
		},
	}

	data, err := EncodeICS(events, "School agenda")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	out := string(data)
	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"UID:evt_1@agenda",
		"UID:evt_2@agenda",
		"SUMMARY:Open day",
		"LOCATION:Main hall",
		"DTSTART:20260312T090000Z",
		"END:VCALENDAR",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}

	if strings.Count(out, "BEGIN:VEVENT") != 2 {
		t.Errorf("expected 2 VEVENT blocks:\n%s", out)
	}
}

func TestExportICSFilename(t *testing.T) {
	result, err := ExportICS(nil, "School agenda 2026")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if result.Filename != "School-agenda-2026.ics" {
		t.Errorf("filename = %q", result.Filename)
	}
	if result.MimeType != "text/calendar" {
		t.Errorf("mime type = %q", result.MimeType)
	}
}

func TestRenderEventHTML(t *testing.T) {
	html, err := renderEventHTML(store.Event{
		Description:      "Open day",
		Location:         "Main hall",
		Start:            time.Date(2026, time.March, 12, 9, 0, 0, 0, time.UTC),
		End:              time.Date(2026, time.March, 12, 12, 0, 0, 0, time.UTC),
		Audience:         store.AudienceAll,
		TeachingAffected: store.TeachingAffectedPartial,
		Classes:          []string{"26Ga", "26Gb"},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{"Open day", "Main hall", "12.03.2026 09:00", "26Ga, 26Gb", "PARTIAL"} {
		if !strings.Contains(html, want) {
			t.Errorf("html missing %q", want)
		}
	}
}
