// Package docextract implements the Document Processor's text
// extraction capability (internal/documents.Extractor) for PDF
// payloads, using pdfcpu for Go-native parsing since the payloads
// arrive as raw bytes rather than files on disk.
package docextract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"
)

// PDFExtractor implements internal/documents.Extractor for
// application/pdf payloads; other content types return empty text
// rather than an error, since a non-PDF attachment is still a valid
// Document (spec.md section 4.8).
type PDFExtractor struct {
	logger  arbor.ILogger
	tempDir string
}

// New builds a PDFExtractor, creating its scratch directory for
// pdfcpu's file-based API.
func New(logger arbor.ILogger) *PDFExtractor {
	tempDir := filepath.Join(os.TempDir(), "hoistscout-pdf")
	os.MkdirAll(tempDir, 0755)
	return &PDFExtractor{logger: logger, tempDir: tempDir}
}

// Extract returns the concatenated per-page text of a PDF payload. A
// pdfcpu content-extraction failure degrades to per-page empty text
// rather than an error, matching the teacher's fallback.
func (e *PDFExtractor) Extract(ctx context.Context, payload []byte, contentType string) (text string, pages int, hasTables bool, hasImages bool, err error) {
	if !strings.Contains(contentType, "pdf") {
		return "", 0, false, false, nil
	}

	tempFile := filepath.Join(e.tempDir, fmt.Sprintf("extract_%s.pdf", uuid.NewString()))
	if err := os.WriteFile(tempFile, payload, 0644); err != nil {
		return "", 0, false, false, fmt.Errorf("docextract: writing temp pdf: %w", err)
	}
	defer os.Remove(tempFile)

	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return "", 0, false, false, fmt.Errorf("docextract: reading pdf context: %w", err)
	}
	pageCount := pdfCtx.PageCount

	outDir := filepath.Join(e.tempDir, fmt.Sprintf("pages_%s", uuid.NewString()))
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", 0, false, false, fmt.Errorf("docextract: creating scratch dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(tempFile, outDir, nil, conf); err != nil {
		e.logger.Warn().Err(err).Msg("pdf content extraction failed, returning empty text per page")
		return "", pageCount, false, false, nil
	}

	pageTexts := make(map[int]string)
	files, _ := os.ReadDir(outDir)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, file.Name()))
		if err != nil {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(file.Name(), "page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(content)
		} else if _, err := fmt.Sscanf(file.Name(), "Content_page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(content)
		}
	}

	var builder strings.Builder
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		if pageNum > 1 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(pageTexts[pageNum])
	}

	return builder.String(), pageCount, false, false, nil
}
