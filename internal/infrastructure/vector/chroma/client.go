package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ymatsuda/marketing-rag/internal/core/domain"
)

// Client wraps the Chroma REST API. The collection is created lazily with
// cosine distance; its id is cached after the first call.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client

	ensureMu     sync.Mutex
	collectionID string
	vectorSize   int
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	dim := len(chunks[0].Embedding)
	for _, chunk := range chunks {
		if len(chunk.Embedding) != dim {
			return domain.WrapError(domain.ErrInvalidInput, "upsert chunks",
				fmt.Errorf("chunk %s embedding dimension %d != %d", chunk.ID, len(chunk.Embedding), dim))
		}
	}

	collectionID, err := c.ensureCollection(ctx, dim)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(chunks))
	embeddings := make([][]float32, 0, len(chunks))
	documents := make([]string, 0, len(chunks))
	metadatas := make([]map[string]any, 0, len(chunks))
	for _, chunk := range chunks {
		ids = append(ids, chunk.ID)
		embeddings = append(embeddings, chunk.Embedding)
		documents = append(documents, chunk.Text)
		metadatas = append(metadatas, map[string]any{
			"document_id":  chunk.DocumentID,
			"title":        chunk.Title,
			"url":          chunk.URL,
			"source_type":  string(chunk.SourceType),
			"location":     chunk.Location,
			"chunk_index":  chunk.Index,
			"start_offset": chunk.StartOffset,
			"end_offset":   chunk.EndOffset,
		})
	}

	reqBody := map[string]any{
		"ids":        ids,
		"embeddings": embeddings,
		"documents":  documents,
		"metadatas":  metadatas,
	}
	path := fmt.Sprintf("/api/v1/collections/%s/upsert", collectionID)
	if err := c.postJSON(ctx, path, reqBody, nil, "upsert"); err != nil {
		return err
	}
	return nil
}

func (c *Client) DeleteByDocument(ctx context.Context, documentID string) error {
	collectionID, err := c.ensureCollection(ctx, 0)
	if err != nil {
		return err
	}

	reqBody := map[string]any{
		"where": map[string]any{
			"document_id": map[string]any{"$eq": documentID},
		},
	}
	path := fmt.Sprintf("/api/v1/collections/%s/delete", collectionID)
	return c.postJSON(ctx, path, reqBody, nil, "delete")
}

func (c *Client) Query(
	ctx context.Context,
	vector []float32,
	limit int,
	filter domain.SearchFilter,
) ([]domain.RetrievedChunk, error) {
	collectionID, err := c.ensureCollection(ctx, len(vector))
	if err != nil {
		return nil, err
	}

	reqBody := map[string]any{
		"query_embeddings": [][]float32{vector},
		"n_results":        limit,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	if filter.SourceType != "" {
		reqBody["where"] = map[string]any{
			"source_type": map[string]any{"$eq": string(filter.SourceType)},
		}
	}

	var queryResp struct {
		IDs       [][]string         `json:"ids"`
		Documents [][]string         `json:"documents"`
		Metadatas [][]map[string]any `json:"metadatas"`
		Distances [][]float64        `json:"distances"`
	}
	path := fmt.Sprintf("/api/v1/collections/%s/query", collectionID)
	if err := c.postJSON(ctx, path, reqBody, &queryResp, "query"); err != nil {
		return nil, err
	}

	if len(queryResp.IDs) == 0 {
		return nil, nil
	}

	ids := queryResp.IDs[0]
	out := make([]domain.RetrievedChunk, 0, len(ids))
	for i, id := range ids {
		chunk := domain.RetrievedChunk{ChunkID: id}
		if len(queryResp.Documents) > 0 && i < len(queryResp.Documents[0]) {
			chunk.Text = queryResp.Documents[0][i]
		}
		if len(queryResp.Distances) > 0 && i < len(queryResp.Distances[0]) {
			// Cosine distance to similarity.
			chunk.Score = 1.0 - queryResp.Distances[0][i]
		}
		if len(queryResp.Metadatas) > 0 && i < len(queryResp.Metadatas[0]) {
			meta := queryResp.Metadatas[0][i]
			chunk.DocumentID = metaString(meta, "document_id")
			chunk.Title = metaString(meta, "title")
			chunk.URL = metaString(meta, "url")
			chunk.SourceType = domain.SourceType(metaString(meta, "source_type"))
			chunk.Location = metaString(meta, "location")
		}
		out = append(out, chunk)
	}
	return out, nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) (string, error) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()

	if c.collectionID != "" {
		if vectorSize > 0 && c.vectorSize > 0 && vectorSize != c.vectorSize {
			return "", domain.WrapError(domain.ErrInvalidInput, "ensure collection",
				fmt.Errorf("embedding dimension %d != collection dimension %d", vectorSize, c.vectorSize))
		}
		return c.collectionID, nil
	}

	reqBody := map[string]any{
		"name":          c.collection,
		"get_or_create": true,
		"metadata": map[string]any{
			"hnsw:space": "cosine",
		},
	}

	var createResp struct {
		ID string `json:"id"`
	}
	if err := c.postJSON(ctx, "/api/v1/collections", reqBody, &createResp, "ensure collection"); err != nil {
		return "", err
	}
	if createResp.ID == "" {
		return "", fmt.Errorf("chroma ensure collection: empty collection id")
	}

	c.collectionID = createResp.ID
	if vectorSize > 0 {
		c.vectorSize = vectorSize
	}
	return c.collectionID, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrIndexUnavailable, "chroma "+operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return domain.WrapError(domain.ErrIndexUnavailable, "chroma "+operation, statusError(resp))
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("chroma %s: %w", operation, statusError(resp))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return fmt.Errorf("status %s: %s", resp.Status, msg)
	}
	return fmt.Errorf("status %s", resp.Status)
}

func metaString(meta map[string]any, key string) string {
	v, ok := meta[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
