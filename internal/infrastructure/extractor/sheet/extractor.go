package sheet

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ymatsuda/marketing-rag/internal/core/domain"
	"github.com/ymatsuda/marketing-rag/internal/core/ports"
)

// Extractor flattens spreadsheet workbooks into line-oriented text. Each
// row becomes one tab-joined line so tabular survey data stays readable
// inside prompt context.
type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return "", fmt.Errorf("open spreadsheet file: %w", err)
	}
	defer reader.Close()

	book, err := excelize.OpenReader(reader)
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "parse spreadsheet", err)
	}
	defer book.Close()

	var builder strings.Builder

	for _, sheetName := range book.GetSheetList() {
		rows, err := book.GetRows(sheetName)
		if err != nil {
			return "", domain.WrapError(domain.ErrInvalidInput, fmt.Sprintf("read sheet %q", sheetName), err)
		}

		if builder.Len() > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString("## " + sheetName + "\n")

		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line == "" {
				continue
			}
			builder.WriteString(line)
			builder.WriteString("\n")
		}
	}

	return strings.TrimSpace(builder.String()), nil
}
