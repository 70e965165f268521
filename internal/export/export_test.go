package export

import (
	"strings"
	"testing"
	"time"
)

func TestRenderReportHTML(t *testing.T) {
	year := 2021
	data := TemplateData{
		Name:        "Soil Microbiome Survey",
		Description: "Metagenomic survey of agricultural soils",
		Institution: "State University",
		Status:      "in_progress",
		Owner:       "Avery Cole",
		GeneratedAt: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Phases: []TemplatePhase{
			{
				Name: "Sampling",
				Tasks: []TemplateTask{
					{Title: "Collect field samples", Status: "completed", Completed: true},
					{Title: "Label and store", Status: "pending"},
				},
			},
			{Name: "Sequencing"},
		},
		References: []TemplateReference{
			{Citation: FormatAPA(ReferenceInfo{Author: "Doe, J.", Year: &year, Title: "Soil biology", Source: "Journal of Soil Science"})},
		},
	}

	html, err := RenderReportHTML(data)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{
		"Soil Microbiome Survey",
		"Collect field samples",
		"Sequencing",
		"No tasks.",
		"Doe, J. (2021). Soil biology. Journal of Soil Science.",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered report missing %q", want)
		}
	}
}

func TestFormatAPA(t *testing.T) {
	year := 2019
	tests := []struct {
		name string
		ref  ReferenceInfo
		want string
	}{
		{
			name: "journal article with volume issue pages and doi",
			ref: ReferenceInfo{
				Author: "Smith, A., & Jones, B.",
				Year:   &year,
				Title:  "Nitrogen cycling in wetlands",
				Source: "Ecology Letters",
				Volume: "22",
				Issue:  "4",
				Pages:  "512-528",
				DOI:    "10.1000/example",
			},
			want: "Smith, A., & Jones, B. (2019). Nitrogen cycling in wetlands. Ecology Letters, 22(4), 512-528. https://doi.org/10.1000/example",
		},
		{
			name: "no year falls back to n.d.",
			ref:  ReferenceInfo{Author: "Lee, C.", Title: "Field notes", URL: "https://example.org/notes"},
			want: "Lee, C. (n.d.). Field notes. https://example.org/notes",
		},
		{
			name: "doi already a url is not doubled",
			ref:  ReferenceInfo{Author: "Kim, D.", Year: &year, Title: "Survey methods", DOI: "https://doi.org/10.2000/xyz"},
			want: "Kim, D. (2019). Survey methods. https://doi.org/10.2000/xyz",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatAPA(tt.ref); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Soil Microbiome Survey", "Soil-Microbiome-Survey"},
		{"a/b\\c:d", "abcd"},
		{"", "project-report"},
		{strings.Repeat("x", 80), strings.Repeat("x", 50)},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := percentEncodeForDataURL("a b&c")
	if got != "a%20b%26c" {
		t.Errorf("got %q", got)
	}
}
