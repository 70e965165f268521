package export

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetProjectReport(ctx context.Context, projectID string) (ProjectInfo, error)
	ListReferences(ctx context.Context, projectID string) ([]ReferenceInfo, error)
}

// ProjectInfo holds everything the report template needs about a project
type ProjectInfo struct {
	Name        string
	Description string
	Institution string
	Category    string
	Status      string
	Owner       string
	Phases      []PhaseInfo
}

// PhaseInfo holds one phase and its tasks in position order
type PhaseInfo struct {
	Name  string
	Tasks []TaskInfo
}

// TaskInfo holds task fields shown in the report
type TaskInfo struct {
	Title     string
	Status    string
	Completed bool
	StartDate *time.Time
	EndDate   *time.Time
}

// ReferenceInfo holds the bibliography fields used for citations
type ReferenceInfo struct {
	Author string
	Year   *int
	Title  string
	Source string
	Volume string
	Issue  string
	Pages  string
	DOI    string
	URL    string
}

// Service provides project report export functionality
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates a report in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	project, err := s.store.GetProjectReport(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}

	data := TemplateData{
		Name:        project.Name,
		Description: project.Description,
		Institution: project.Institution,
		Category:    project.Category,
		Status:      project.Status,
		Owner:       project.Owner,
		GeneratedAt: time.Now(),
	}
	for _, phase := range project.Phases {
		tp := TemplatePhase{Name: phase.Name}
		for _, task := range phase.Tasks {
			tp.Tasks = append(tp.Tasks, TemplateTask{
				Title:     task.Title,
				Status:    task.Status,
				Completed: task.Completed,
				StartDate: formatDate(task.StartDate),
				EndDate:   formatDate(task.EndDate),
			})
		}
		data.Phases = append(data.Phases, tp)
	}

	if req.IncludeBibliography {
		references, err := s.store.ListReferences(ctx, req.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("list references: %w", err)
		}
		for _, ref := range references {
			data.References = append(data.References, TemplateReference{Citation: FormatAPA(ref)})
		}
	}

	html, err := RenderReportHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return exportPDF(html, project.Name)
	case FormatDOCX:
		return exportDOCX(html, project.Name)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

// FormatAPA builds an APA style reference line from the fields present.
func FormatAPA(ref ReferenceInfo) string {
	var b strings.Builder
	author := strings.TrimSpace(ref.Author)
	if !strings.HasSuffix(author, ".") {
		author += "."
	}
	b.WriteString(author)
	if ref.Year != nil {
		fmt.Fprintf(&b, " (%d).", *ref.Year)
	} else {
		b.WriteString(" (n.d.).")
	}
	fmt.Fprintf(&b, " %s.", strings.TrimRight(ref.Title, ". "))
	if ref.Source != "" {
		fmt.Fprintf(&b, " %s", ref.Source)
		if ref.Volume != "" {
			fmt.Fprintf(&b, ", %s", ref.Volume)
			if ref.Issue != "" {
				fmt.Fprintf(&b, "(%s)", ref.Issue)
			}
		}
		if ref.Pages != "" {
			fmt.Fprintf(&b, ", %s", ref.Pages)
		}
		b.WriteString(".")
	}
	if ref.DOI != "" {
		fmt.Fprintf(&b, " https://doi.org/%s", strings.TrimPrefix(ref.DOI, "https://doi.org/"))
	} else if ref.URL != "" {
		fmt.Fprintf(&b, " %s", ref.URL)
	}
	return b.String()
}
