package pdffile

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/ymatsuda/marketing-rag/internal/core/domain"
	"github.com/ymatsuda/marketing-rag/internal/core/ports"
)

// Extractor pulls text pages out of PDF documents and records the rune
// offset of every page so retrieval hits can cite "page=N".
type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return "", fmt.Errorf("open pdf file: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read pdf file: %w", err)
	}

	pdfReader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "parse pdf", err)
	}

	var builder strings.Builder
	offsets := make([]int, 0, pdfReader.NumPage())

	for pageNum := 1; pageNum <= pdfReader.NumPage(); pageNum++ {
		page := pdfReader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", domain.WrapError(domain.ErrInvalidInput, fmt.Sprintf("extract pdf page %d", pageNum), err)
		}

		offsets = append(offsets, len([]rune(builder.String())))
		builder.WriteString(strings.TrimSpace(text))
		builder.WriteString("\n\n")
	}

	doc.PageOffsets = offsets
	return strings.TrimSpace(builder.String()), nil
}
