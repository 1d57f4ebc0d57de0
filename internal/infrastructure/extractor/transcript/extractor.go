package transcript

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ymatsuda/marketing-rag/internal/core/domain"
	"github.com/ymatsuda/marketing-rag/internal/core/ports"
)

// Extractor reads plain-text transcript files produced by the subtitle
// download step.
type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return "", fmt.Errorf("open transcript file: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read transcript file: %w", err)
	}

	if !utf8.Valid(raw) {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract transcript", errors.New("transcript is not valid utf-8"))
	}

	return normalizeWhitespace(string(raw)), nil
}

// normalizeWhitespace collapses runs of whitespace into single spaces, the
// way subtitle lines are joined into one transcript stream.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
