// Package importer turns uploaded CSV files into draft events tracked by
// an import job. The raw upload is archived to object storage so a failed
// run can be inspected and replayed.
package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"agenda/api/internal/store"
)

// Row is one successfully parsed CSV line, ready to become a draft event.
type Row struct {
	Line             int
	Description      string
	DescriptionLong  string
	Location         string
	Start            time.Time
	End              time.Time
	Audience         store.Audience
	TeachingAffected store.TeachingAffected
	Classes          []string
	ClassGroups      []string
}

// RowError records why a CSV line was rejected.
type RowError struct {
	Line    int
	Message string
}

func (e RowError) String() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"02.01.2006 15:04",
	"2006-01-02",
}

var requiredColumns = []string{"description", "start", "end"}

// ParseCSV reads a header-based CSV upload. Recognized columns:
// description, description_long, location, start, end, audience,
// teaching_affected, classes, class_groups. Lines that cannot be parsed
// are reported, not fatal.
func ParseCSV(r io.Reader) ([]Row, []RowError, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := index[name]; !ok {
			return nil, nil, fmt.Errorf("csv header missing column %q", name)
		}
	}

	field := func(record []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []Row
	var rowErrors []RowError
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			rowErrors = append(rowErrors, RowError{Line: line, Message: err.Error()})
			continue
		}

		row := Row{
			Line:            line,
			Description:     field(record, "description"),
			DescriptionLong: field(record, "description_long"),
			Location:        field(record, "location"),
			Classes:         splitList(field(record, "classes")),
			ClassGroups:     splitList(field(record, "class_groups")),
		}
		if row.Description == "" {
			rowErrors = append(rowErrors, RowError{Line: line, Message: "description is empty"})
			continue
		}

		row.Start, err = parseDate(field(record, "start"))
		if err != nil {
			rowErrors = append(rowErrors, RowError{Line: line, Message: fmt.Sprintf("start: %v", err)})
			continue
		}
		row.End, err = parseDate(field(record, "end"))
		if err != nil {
			rowErrors = append(rowErrors, RowError{Line: line, Message: fmt.Sprintf("end: %v", err)})
			continue
		}
		if !row.End.After(row.Start) {
			rowErrors = append(rowErrors, RowError{Line: line, Message: "end must be after start"})
			continue
		}

		row.Audience, err = parseAudience(field(record, "audience"))
		if err != nil {
			rowErrors = append(rowErrors, RowError{Line: line, Message: err.Error()})
			continue
		}
		row.TeachingAffected, err = parseTeachingAffected(field(record, "teaching_affected"))
		if err != nil {
			rowErrors = append(rowErrors, RowError{Line: line, Message: err.Error()})
			continue
		}

		rows = append(rows, row)
	}

	return rows, rowErrors, nil
}

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

func parseAudience(value string) (store.Audience, error) {
	switch strings.ToUpper(value) {
	case "", string(store.AudienceAll):
		return store.AudienceAll, nil
	case string(store.AudienceStudents):
		return store.AudienceStudents, nil
	case string(store.AudienceTeachers):
		return store.AudienceTeachers, nil
	case string(store.AudienceClassTeachers):
		return store.AudienceClassTeachers, nil
	}
	return "", fmt.Errorf("unknown audience %q", value)
}

func parseTeachingAffected(value string) (store.TeachingAffected, error) {
	switch strings.ToUpper(value) {
	case "", string(store.TeachingAffectedNo):
		return store.TeachingAffectedNo, nil
	case string(store.TeachingAffectedYes):
		return store.TeachingAffectedYes, nil
	case string(store.TeachingAffectedPartial):
		return store.TeachingAffectedPartial, nil
	}
	return "", fmt.Errorf("unknown teaching_affected %q", value)
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ";")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
