package extractor

import (
	"context"
	"errors"
	"fmt"

	"github.com/ymatsuda/marketing-rag/internal/core/domain"
	"github.com/ymatsuda/marketing-rag/internal/core/ports"
	"github.com/ymatsuda/marketing-rag/internal/infrastructure/extractor/pdffile"
	"github.com/ymatsuda/marketing-rag/internal/infrastructure/extractor/sheet"
	"github.com/ymatsuda/marketing-rag/internal/infrastructure/extractor/transcript"
)

// Dispatcher routes fetch-stage extraction to the format handler matching
// the document's source type.
type Dispatcher struct {
	transcript *transcript.Extractor
	pdf        *pdffile.Extractor
	sheet      *sheet.Extractor
}

func NewDispatcher(storage ports.ObjectStorage) *Dispatcher {
	return &Dispatcher{
		transcript: transcript.NewExtractor(storage),
		pdf:        pdffile.NewExtractor(storage),
		sheet:      sheet.NewExtractor(storage),
	}
}

func (d *Dispatcher) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	if doc.StoragePath == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("document has no stored source file"))
	}
	switch doc.SourceType {
	case domain.SourceVideo:
		return d.transcript.Extract(ctx, doc)
	case domain.SourcePDF:
		return d.pdf.Extract(ctx, doc)
	case domain.SourceSpreadsheet:
		return d.sheet.Extract(ctx, doc)
	default:
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text", fmt.Errorf("unsupported source type %q", doc.SourceType))
	}
}
