package chroma

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ymatsuda/marketing-rag/internal/core/domain"
)

func chromaTestServer(t *testing.T, handler func(path string, payload map[string]any) (int, string)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&payload)
		}
		status, body := handler(r.URL.Path, payload)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestUpsertCreatesCollectionAndSendsChunks(t *testing.T) {
	var upsertPayload map[string]any
	server := chromaTestServer(t, func(path string, payload map[string]any) (int, string) {
		switch path {
		case "/api/v1/collections":
			return http.StatusOK, `{"id":"col-1"}`
		case "/api/v1/collections/col-1/upsert":
			upsertPayload = payload
			return http.StatusOK, `{}`
		}
		return http.StatusNotFound, `{}`
	})
	defer server.Close()

	client := New(server.URL, "marketing_knowledge")
	err := client.Upsert(context.Background(), []domain.Chunk{
		{
			ID:         "vid-1:0000",
			DocumentID: "vid-1",
			Text:       "chunk text",
			Title:      "How funnels work",
			URL:        "https://www.youtube.com/watch?v=vid-1",
			SourceType: domain.SourceVideo,
			Embedding:  []float32{0.1, 0.2},
		},
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	ids, _ := upsertPayload["ids"].([]any)
	if len(ids) != 1 || ids[0] != "vid-1:0000" {
		t.Fatalf("unexpected ids payload: %v", upsertPayload["ids"])
	}
	metas, _ := upsertPayload["metadatas"].([]any)
	meta, _ := metas[0].(map[string]any)
	if meta["document_id"] != "vid-1" || meta["source_type"] != "video" {
		t.Fatalf("unexpected metadata: %v", meta)
	}
}

func TestUpsertRejectsMixedDimensions(t *testing.T) {
	client := New("http://127.0.0.1:1", "c")
	err := client.Upsert(context.Background(), []domain.Chunk{
		{ID: "a", Embedding: []float32{0.1, 0.2}},
		{ID: "b", Embedding: []float32{0.1}},
	})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestQueryConvertsDistanceToSimilarity(t *testing.T) {
	server := chromaTestServer(t, func(path string, payload map[string]any) (int, string) {
		switch path {
		case "/api/v1/collections":
			return http.StatusOK, `{"id":"col-1"}`
		case "/api/v1/collections/col-1/query":
			return http.StatusOK, `{
				"ids":[["vid-1:0000","doc-2:0001"]],
				"documents":[["first text","second text"]],
				"metadatas":[[{"document_id":"vid-1","title":"A","url":"u1","source_type":"video","location":"t=95s"},{"document_id":"doc-2","title":"B","url":"u2","source_type":"pdf","location":"page=3"}]],
				"distances":[[0.1,0.4]]
			}`
		}
		return http.StatusNotFound, `{}`
	})
	defer server.Close()

	client := New(server.URL, "marketing_knowledge")
	results, err := client.Query(context.Background(), []float32{0.1, 0.2}, 5, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Score < 0.89 || results[0].Score > 0.91 {
		t.Fatalf("expected similarity 0.9, got %f", results[0].Score)
	}
	if results[1].Location != "page=3" || results[1].SourceType != domain.SourcePDF {
		t.Fatalf("metadata not mapped: %+v", results[1])
	}
}

func TestQuerySendsSourceTypeFilter(t *testing.T) {
	var queryPayload map[string]any
	server := chromaTestServer(t, func(path string, payload map[string]any) (int, string) {
		switch path {
		case "/api/v1/collections":
			return http.StatusOK, `{"id":"col-1"}`
		case "/api/v1/collections/col-1/query":
			queryPayload = payload
			return http.StatusOK, `{"ids":[[]],"documents":[[]],"metadatas":[[]],"distances":[[]]}`
		}
		return http.StatusNotFound, `{}`
	})
	defer server.Close()

	client := New(server.URL, "c")
	_, err := client.Query(context.Background(), []float32{0.1}, 3, domain.SearchFilter{SourceType: domain.SourceVideo})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	where, _ := queryPayload["where"].(map[string]any)
	cond, _ := where["source_type"].(map[string]any)
	if cond["$eq"] != "video" {
		t.Fatalf("expected source_type filter, got %v", queryPayload["where"])
	}
}

func TestUnreachableStoreSurfacesIndexUnavailable(t *testing.T) {
	client := New("http://127.0.0.1:1", "c")
	_, err := client.Query(context.Background(), []float32{0.1}, 3, domain.SearchFilter{})
	if !domain.IsKind(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
}

func TestServerErrorSurfacesIndexUnavailable(t *testing.T) {
	server := chromaTestServer(t, func(string, map[string]any) (int, string) {
		return http.StatusInternalServerError, `boom`
	})
	defer server.Close()

	client := New(server.URL, "c")
	err := client.DeleteByDocument(context.Background(), "doc-1")
	if !domain.IsKind(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
}
