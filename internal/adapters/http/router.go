package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ymatsuda/marketing-rag/internal/core/domain"
	"github.com/ymatsuda/marketing-rag/internal/core/ports"
	"github.com/ymatsuda/marketing-rag/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	ingestor ports.DocumentIngestor
	query    ports.QueryService
	reader   ports.DocumentReader
	logger   *slog.Logger
	metrics  *metrics.HTTPServerMetrics
}

func NewRouter(
	ingestor ports.DocumentIngestor,
	query ports.QueryService,
	reader ports.DocumentReader,
	logger *slog.Logger,
	serverMetrics *metrics.HTTPServerMetrics,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		ingestor: ingestor,
		query:    query,
		reader:   reader,
		logger:   logger,
		metrics:  serverMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.ingestDocument)
	mux.HandleFunc("/v1/documents/", rt.getDocumentByID)
	mux.HandleFunc("/v1/rag/query", rt.answerQuestion)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ingestRequest struct {
	ID          string           `json:"id"`
	SourceType  string           `json:"source_type"`
	Title       string           `json:"title"`
	URL         string           `json:"url"`
	RawText     string           `json:"raw_text"`
	StoragePath string           `json:"storage_path"`
	PublishedAt time.Time        `json:"published_at"`
	Segments    []domain.Segment `json:"segments"`
	PageOffsets []int            `json:"page_offsets"`
}

func (req ingestRequest) toDocument() domain.Document {
	return domain.Document{
		ID:          req.ID,
		SourceType:  domain.SourceType(req.SourceType),
		Title:       req.Title,
		URL:         req.URL,
		RawText:     req.RawText,
		StoragePath: req.StoragePath,
		PublishedAt: req.PublishedAt,
		Segments:    req.Segments,
		PageOffsets: req.PageOffsets,
	}
}

func (rt *Router) ingestDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		rt.uploadDocument(w, r)
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	if r.URL.Query().Get("async") == "true" {
		id, err := rt.ingestor.Enqueue(r.Context(), req.toDocument())
		if err != nil {
			rt.writeError(w, r, "enqueue document", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"document_id": id,
			"status":      "queued",
		})
		return
	}

	start := time.Now()
	result, err := rt.ingestor.Ingest(r.Context(), req.toDocument())
	if rt.metrics != nil {
		rt.metrics.RecordIngest(serviceName, result.ChunksCreated, time.Since(start), err)
	}
	if err != nil {
		rt.writeError(w, r, "ingest document", err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// uploadDocument registers a document whose text lives in an uploaded source
// file. The file is stored as-is; extraction runs on a worker.
func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc := domain.Document{
		ID:         r.FormValue("id"),
		SourceType: domain.SourceType(r.FormValue("source_type")),
		Title:      r.FormValue("title"),
		URL:        r.FormValue("url"),
	}
	if ts := r.FormValue("published_at"); ts != "" {
		publishedAt, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "published_at must be RFC3339"})
			return
		}
		doc.PublishedAt = publishedAt
	}

	id, err := rt.ingestor.Upload(r.Context(), doc, header.Filename, file)
	if err != nil {
		rt.writeError(w, r, "upload document", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"document_id": id,
		"status":      "queued",
	})
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	doc, err := rt.reader.GetByID(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, "get document", err)
		return
	}
	// Raw text can be large; the catalog view returns metadata only.
	doc.RawText = ""
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) answerQuestion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Question   string `json:"question"`
		Limit      int    `json:"limit"`
		SourceType string `json:"source_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}
	if req.SourceType != "" && !domain.SourceType(req.SourceType).Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown source_type"})
		return
	}

	start := time.Now()
	answer, err := rt.query.Answer(r.Context(), req.Question, req.Limit, domain.SearchFilter{
		SourceType: domain.SourceType(req.SourceType),
	})
	if err != nil {
		rt.writeError(w, r, "answer question", err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordAnswer(serviceName, answer.Grounded, len(answer.Sources), time.Since(start))
	}

	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= 500 {
		rt.logger.Error(operation,
			"request_id", requestIDFromContext(r.Context()),
			"status", status,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
