package export

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"agenda/api/internal/store"
)

var eventTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
		"join": strings.Join,
	}
	eventTemplate = template.Must(template.New("event").Funcs(funcMap).Parse(eventPrintTemplate))
}

// eventTemplateData holds data for event template rendering
type eventTemplateData struct {
	Description      string
	DescriptionLong  string
	Location         string
	Start            time.Time
	End              time.Time
	Audience         string
	TeachingAffected string
	Classes          []string
	ClassGroups      []string
}

func renderEventHTML(event store.Event) (string, error) {
	data := eventTemplateData{
		Description:      event.Description,
		DescriptionLong:  event.DescriptionLong,
		Location:         event.Location,
		Start:            event.Start,
		End:              event.End,
		Audience:         string(event.Audience),
		TeachingAffected: string(event.TeachingAffected),
		Classes:          event.Classes,
		ClassGroups:      event.ClassGroups,
	}

	var buf bytes.Buffer
	if err := eventTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render event template: %w", err)
	}
	return buf.String(), nil
}

const eventPrintTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Description}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 700px; margin: 0 auto; padding: 20px; }
        h1 { border-bottom: 2px solid #0066cc; padding-bottom: 8px; }
        .meta { color: #666; margin-bottom: 20px; }
        .meta dt { font-weight: 600; float: left; clear: left; width: 140px; }
        .meta dd { margin-left: 160px; }
        .body { margin-top: 20px; white-space: pre-wrap; }
    </style>
</head>
<body>
    <h1>{{.Description}}</h1>

    <dl class="meta">
        <dt>From</dt><dd>{{formatDate .Start "02.01.2006 15:04"}}</dd>
        <dt>Until</dt><dd>{{formatDate .End "02.01.2006 15:04"}}</dd>
        {{if .Location}}<dt>Location</dt><dd>{{.Location}}</dd>{{end}}
        <dt>Audience</dt><dd>{{.Audience}}</dd>
        <dt>Teaching</dt><dd>{{.TeachingAffected}}</dd>
        {{if .Classes}}<dt>Classes</dt><dd>{{join .Classes ", "}}</dd>{{end}}
        {{if .ClassGroups}}<dt>Class groups</dt><dd>{{join .ClassGroups ", "}}</dd>{{end}}
    </dl>

    {{if .DescriptionLong}}<div class="body">{{.DescriptionLong}}</div>{{end}}
</body>
</html>`
