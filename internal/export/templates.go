package export

import (
	"bytes"
	"html/template"
	"time"
)

// TemplateData holds data for report template rendering
type TemplateData struct {
	Name        string
	Description string
	Institution string
	Category    string
	Status      string
	Owner       string
	GeneratedAt time.Time
	Phases      []TemplatePhase
	References  []TemplateReference
}

// TemplatePhase holds one phase with its tasks
type TemplatePhase struct {
	Name  string
	Tasks []TemplateTask
}

// TemplateTask holds task data for the report
type TemplateTask struct {
	Title     string
	Status    string
	Completed bool
	StartDate string
	EndDate   string
}

// TemplateReference holds one bibliography entry, already formatted
type TemplateReference struct {
	Citation string
}

var reportTemplate = template.Must(template.New("report").Parse(reportTemplateHTML))

// RenderReportHTML renders the project report template with provided data
func RenderReportHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const reportTemplateHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Name}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    h2 { margin-top: 2rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    table { width: 100%; border-collapse: collapse; margin: 1rem 0; }
    th, td { text-align: left; padding: 0.4rem 0.6rem; border-bottom: 1px solid #ddd; }
    .done { color: #2a7b3f; }
    .reference { margin: 0.5rem 0; padding-left: 2rem; text-indent: -2rem; }
  </style>
</head>
<body>
  <h1>{{.Name}}</h1>
  {{if .Description}}<p>{{.Description}}</p>{{end}}
  <div class="meta">
    {{if .Institution}}{{.Institution}} | {{end}}{{if .Category}}{{.Category}} | {{end}}{{.Status}} | {{.Owner}} | {{.GeneratedAt.Format "Jan 2, 2006"}}
  </div>
  {{range .Phases}}
  <h2>{{.Name}}</h2>
  {{if .Tasks}}
  <table>
    <tr><th>Task</th><th>Status</th><th>Start</th><th>End</th></tr>
    {{range .Tasks}}
    <tr{{if .Completed}} class="done"{{end}}><td>{{.Title}}</td><td>{{.Status}}</td><td>{{.StartDate}}</td><td>{{.EndDate}}</td></tr>
    {{end}}
  </table>
  {{else}}<p>No tasks.</p>{{end}}
  {{end}}
  {{if .References}}
  <h2>References</h2>
  {{range .References}}<p class="reference">{{.Citation}}</p>{{end}}
  {{end}}
</body>
</html>`
