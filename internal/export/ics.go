package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/emersion/go-ical"

	"agenda/api/internal/store"
)

// EncodeICS renders the given events as an iCalendar feed. The VEVENT UID
// is the stable event id, so a feed subscriber sees a swapped-in version
// as an update of the same entry rather than a new one.
func EncodeICS(events []store.Event, calendarName string) ([]byte, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//Agenda//Event Feed//EN")
	if calendarName != "" {
		cal.Props.SetText("X-WR-CALNAME", calendarName)
	}

	now := time.Now().UTC()
	for _, event := range events {
		vevent := ical.NewEvent()
		vevent.Props.SetText(ical.PropUID, event.ID+"@agenda")
		vevent.Props.SetDateTime(ical.PropDateTimeStamp, now)
		vevent.Props.SetDateTime(ical.PropDateTimeStart, event.Start.UTC())
		vevent.Props.SetDateTime(ical.PropDateTimeEnd, event.End.UTC())
		vevent.Props.SetText(ical.PropSummary, event.Description)
		if event.DescriptionLong != "" {
			vevent.Props.SetText(ical.PropDescription, event.DescriptionLong)
		}
		if event.Location != "" {
			vevent.Props.SetText(ical.PropLocation, event.Location)
		}
		vevent.Props.SetText(ical.PropStatus, "CONFIRMED")
		cal.Children = append(cal.Children, vevent.Component)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("encode ics: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportICS wraps EncodeICS into a downloadable result.
func ExportICS(events []store.Event, calendarName string) (*Result, error) {
	data, err := EncodeICS(events, calendarName)
	if err != nil {
		return nil, err
	}
	name := sanitizeFilename(calendarName)
	if name == "document" {
		name = "agenda"
	}
	return &Result{
		Data:     data,
		Filename: name + ".ics",
		MimeType: "text/calendar",
	}, nil
}
