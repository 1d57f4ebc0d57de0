package chunking

import (
	"errors"
	"unicode/utf8"

	"github.com/ymatsuda/marketing-rag/internal/core/domain"
)

// Splitter cuts text into overlapping spans. Offsets are rune offsets into
// the input, preserved so citations can reference exact source locations.
type Splitter struct {
	ChunkSize int
	Overlap   int
	Lookback  int
}

const defaultLookback = 120

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	lookback := defaultLookback
	if lookback > chunkSize/2 {
		lookback = chunkSize / 2
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
		Lookback:  lookback,
	}
}

// Split returns ordered overlapping spans. A cut prefers a sentence boundary
// within the lookback window, then a space, then hard-splits at the size
// limit. Input no longer than one chunk yields a single span covering the
// whole text.
func (s *Splitter) Split(text string) ([]domain.ChunkSpan, error) {
	if !utf8.ValidString(text) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "split text", errors.New("input is not valid utf-8"))
	}

	runes := []rune(text)
	if len(runes) <= s.ChunkSize {
		return []domain.ChunkSpan{{Text: text, Start: 0, End: len(runes)}}, nil
	}

	spans := make([]domain.ChunkSpan, 0, len(runes)/(s.ChunkSize-s.Overlap)+1)
	start := 0
	for start < len(runes) {
		end := start + s.ChunkSize
		if end >= len(runes) {
			spans = append(spans, span(runes, start, len(runes)))
			break
		}

		if cut, ok := s.sentenceCut(runes, start, end); ok {
			end = cut
		} else if cut, ok := s.spaceCut(runes, start, end); ok {
			end = cut
		}

		spans = append(spans, span(runes, start, end))

		next := end - s.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return spans, nil
}

func span(runes []rune, start, end int) domain.ChunkSpan {
	return domain.ChunkSpan{
		Text:  string(runes[start:end]),
		Start: start,
		End:   end,
	}
}

// sentenceCut finds the last sentence boundary within the lookback window and
// returns the offset just past it.
func (s *Splitter) sentenceCut(runes []rune, start, end int) (int, bool) {
	low := end - s.Lookback
	if low < start+1 {
		low = start + 1
	}
	for i := end - 1; i >= low; i-- {
		switch runes[i] {
		case '。', '！', '？':
			return i + 1, true
		case '.', '!', '?':
			if i+1 < len(runes) && (runes[i+1] == ' ' || runes[i+1] == '\n') {
				return i + 1, true
			}
		case '\n':
			return i + 1, true
		}
	}
	return 0, false
}

func (s *Splitter) spaceCut(runes []rune, start, end int) (int, bool) {
	low := end - s.Lookback
	if low < start+1 {
		low = start + 1
	}
	for i := end - 1; i >= low; i-- {
		if runes[i] == ' ' {
			return i, true
		}
	}
	return 0, false
}
