package deepseek

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ymatsuda/marketing-rag/internal/core/domain"
	"github.com/ymatsuda/marketing-rag/internal/infrastructure/resilience"
)

func testExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})
}

func embeddingResponse(count, dim int) string {
	type item struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	}
	items := make([]item, count)
	for i := range items {
		vec := make([]float32, dim)
		vec[0] = float32(i + 1)
		items[i] = item{Index: i, Embedding: vec}
	}
	body, _ := json.Marshal(map[string]any{"data": items})
	return string(body)
}

func TestEmbedSplitsBatchesInOrder(t *testing.T) {
	var batches [][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		var payload struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		batches = append(batches, payload.Input)
		_, _ = w.Write([]byte(embeddingResponse(len(payload.Input), 4)))
	}))
	defer server.Close()

	client := New(server.URL, "key", "chat", "embed")
	embedder := NewEmbedder(client, testExecutor(), 2, 0)

	texts := []string{"a", "b", "c", "d", "e"}
	vectors, err := embedder.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vectors))
	}
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches for batch size 2, got %d", len(batches))
	}
	if batches[0][0] != "a" || batches[2][0] != "e" {
		t.Fatalf("batches not in input order: %v", batches)
	}
}

func TestEmbedRetriesRateLimitThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(embeddingResponse(1, 4)))
	}))
	defer server.Close()

	client := New(server.URL, "key", "chat", "embed")
	embedder := NewEmbedder(client, testExecutor(), 20, 0)

	vectors, err := embedder.Embed(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 1 || vectors[0][0] != 1 {
		t.Fatalf("unexpected vectors after retries: %v", vectors)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected exactly two retries (3 calls), got %d calls", got)
	}
}

func TestEmbedWrapsProviderErrorAfterExhaustion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, "key", "chat", "embed")
	embedder := NewEmbedder(client, testExecutor(), 20, 0)

	_, err := embedder.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrEmbeddingProvider) {
		t.Fatalf("expected ErrEmbeddingProvider, got %v", err)
	}
	if !strings.Contains(err.Error(), "upstream overloaded") {
		t.Fatalf("expected last underlying cause in chain, got %v", err)
	}
}

func TestEmbedDoesNotRetryBadRequest(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "invalid input", http.StatusBadRequest)
	}))
	defer server.Close()

	client := New(server.URL, "key", "chat", "embed")
	embedder := NewEmbedder(client, testExecutor(), 20, 0)

	_, err := embedder.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if domain.IsKind(err, domain.ErrEmbeddingProvider) {
		t.Fatalf("non-retryable error should not be wrapped as degraded service: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected single call, got %d", got)
	}
}

func TestGeneratorSendsPromptAndAuth(t *testing.T) {
	var capturedAuth string
	var capturedSystem, capturedUser string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		capturedAuth = r.Header.Get("Authorization")
		var payload struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		capturedSystem = payload.Messages[0].Content
		capturedUser = payload.Messages[1].Content
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"the answer [1]"}}]}`))
	}))
	defer server.Close()

	client := New(server.URL, "secret", "chat", "embed")
	gen := NewGenerator(client, testExecutor(), 0)

	text, err := gen.Complete(context.Background(), "system instruction", "user question")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "the answer [1]" {
		t.Fatalf("unexpected answer: %q", text)
	}
	if capturedAuth != "Bearer secret" {
		t.Fatalf("expected bearer auth, got %q", capturedAuth)
	}
	if capturedSystem != "system instruction" || capturedUser != "user question" {
		t.Fatalf("prompt not forwarded: %q / %q", capturedSystem, capturedUser)
	}
}

func TestGeneratorWrapsProviderErrorAfterExhaustion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(server.URL, "key", "chat", "embed")
	gen := NewGenerator(client, testExecutor(), 0)

	_, err := gen.Complete(context.Background(), "s", "u")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrGenerationProvider) {
		t.Fatalf("expected ErrGenerationProvider, got %v", err)
	}
}
