package usecase

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ymatsuda/marketing-rag/internal/core/domain"
)

const answerSystemPrompt = `You are a marketing knowledge assistant. Answer the question using only the numbered context passages below. Reference passages inline as [1], [2] and so on. If the passages do not contain the answer, say so plainly instead of guessing.`

const ungroundedSystemPrompt = `You are a marketing knowledge assistant. No relevant passages were found in the knowledge base for this question. Say that the knowledge base has no material on the topic, then give a brief general answer clearly marked as not sourced from it.`

const defaultContextBudget = 6000

// PromptAssembler builds the generation prompt from retrieved chunks. The
// assembly is deterministic: the same retrieval set always yields the same
// prompt text.
type PromptAssembler struct {
	// ContextBudget caps the total characters of passage text placed into
	// the prompt. Chunks past the budget are dropped lowest-similarity
	// first, which is tail-first since retrieval order is score descending.
	ContextBudget int
}

func NewPromptAssembler(contextBudget int) *PromptAssembler {
	if contextBudget <= 0 {
		contextBudget = defaultContextBudget
	}
	return &PromptAssembler{ContextBudget: contextBudget}
}

// Build returns the system and user prompts plus the chunks that actually
// made it into the context window, in their [n] marker order.
func (a *PromptAssembler) Build(question string, chunks []domain.RetrievedChunk) (system, user string, included []domain.RetrievedChunk) {
	included = a.fit(chunks)
	if len(included) == 0 {
		return ungroundedSystemPrompt, "Question: " + question, nil
	}

	var builder strings.Builder
	builder.WriteString("Context passages:\n\n")
	for i, chunk := range included {
		builder.WriteString(fmt.Sprintf("[%d] %s", i+1, chunk.Title))
		if chunk.Location != "" {
			builder.WriteString(" (" + chunk.Location + ")")
		}
		builder.WriteString("\n")
		builder.WriteString(chunk.Text)
		builder.WriteString("\n\n")
	}
	builder.WriteString("Question: ")
	builder.WriteString(question)

	return answerSystemPrompt, builder.String(), included
}

func (a *PromptAssembler) fit(chunks []domain.RetrievedChunk) []domain.RetrievedChunk {
	var used int
	for i, chunk := range chunks {
		used += len(chunk.Text)
		if used > a.ContextBudget && i > 0 {
			return chunks[:i]
		}
	}
	return chunks
}

var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

// parseCitations extracts the [n] markers the model actually used and maps
// them back to the prompted chunks. Markers outside the prompted range are
// ignored; an answer with no parseable markers cites every prompted chunk.
func parseCitations(answer string, prompted []domain.RetrievedChunk) []domain.RetrievedChunk {
	matches := citationMarker.FindAllStringSubmatch(answer, -1)

	seen := make(map[int]bool)
	var cited []domain.RetrievedChunk
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(prompted) || seen[n] {
			continue
		}
		seen[n] = true
		cited = append(cited, prompted[n-1])
	}

	if len(cited) == 0 {
		return prompted
	}
	return cited
}

// citationURL appends the chunk's in-source location to its document URL,
// producing deep links like watch?v=ID&t=95s for video timestamps.
func citationURL(chunk domain.RetrievedChunk) string {
	if chunk.SourceType != domain.SourceVideo || chunk.Location == "" {
		return chunk.URL
	}
	sep := "?"
	if strings.Contains(chunk.URL, "?") {
		sep = "&"
	}
	return chunk.URL + sep + chunk.Location
}
