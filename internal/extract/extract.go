// Package extract pulls plain text out of uploaded documents so they can be
// read page by page and fed to the AI assistant.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// PageSize is the number of characters served per page of extracted text.
const PageSize = 3000

var (
	ErrUnsupportedType   = errors.New("unsupported file type")
	ErrDependencyMissing = errors.New("extraction tool not installed")
)

// Service shells out to pdftotext and pandoc, the same way exports shell out
// for document conversion.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// Text extracts the full plain text of a document. fileType is "pdf" or
// "docx".
func (s *Service) Text(ctx context.Context, fileType string, r io.Reader) (string, error) {
	switch fileType {
	case "pdf":
		return s.pdfText(ctx, r)
	case "docx":
		return s.docxText(ctx, r)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, fileType)
	}
}

func (s *Service) pdfText(ctx context.Context, r io.Reader) (string, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return "", fmt.Errorf("%w: pdftotext", ErrDependencyMissing)
	}

	cmd := exec.CommandContext(ctx, "pdftotext", "-layout", "-", "-")
	cmd.Stdin = r
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("pdftotext failed: %s", string(exitErr.Stderr))
		}
		return "", fmt.Errorf("pdftotext execution failed: %w", err)
	}
	return string(output), nil
}

func (s *Service) docxText(ctx context.Context, r io.Reader) (string, error) {
	if _, err := exec.LookPath("pandoc"); err != nil {
		return "", fmt.Errorf("%w: pandoc", ErrDependencyMissing)
	}

	// pandoc needs a seekable docx, so spool to a temp file.
	tmp, err := os.CreateTemp("", "extract-*.docx")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()
	if _, err := io.Copy(tmp, r); err != nil {
		return "", fmt.Errorf("spool docx: %w", err)
	}

	cmd := exec.CommandContext(ctx, "pandoc",
		"-f", "docx",
		"-t", "plain",
		tmp.Name(),
		"-o", "-",
	)
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("pandoc failed: %s", string(exitErr.Stderr))
		}
		return "", fmt.Errorf("pandoc execution failed: %w", err)
	}
	return string(output), nil
}

// Paginated holds one page of extracted text.
type Paginated struct {
	Page       int    `json:"page"`
	TotalPages int    `json:"total_pages"`
	Content    string `json:"content"`
}

// Paginate slices text into fixed-size pages. Page numbers are 1-based; an
// out-of-range page returns an error so callers can map it to not found.
func Paginate(text string, page int) (Paginated, error) {
	pages := SplitPages(text)
	if page < 1 || page > len(pages) {
		return Paginated{}, fmt.Errorf("page %d out of range [1,%d]", page, len(pages))
	}
	return Paginated{
		Page:       page,
		TotalPages: len(pages),
		Content:    pages[page-1],
	}, nil
}

// SplitPages breaks text into PageSize-character chunks. Empty text still
// yields one empty page so every document has a first page.
func SplitPages(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return []string{""}
	}
	pages := make([]string, 0, len(runes)/PageSize+1)
	for start := 0; start < len(runes); start += PageSize {
		end := start + PageSize
		if end > len(runes) {
			end = len(runes)
		}
		pages = append(pages, string(runes[start:end]))
	}
	return pages
}
