package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ymatsuda/marketing-rag/internal/core/domain"
)

// DocumentRepository is the catalog of ingested sources and their pipeline
// stage. The vector index holds the embeddings; this table holds the truth
// about what has been processed and how far.
type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker/batch startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	source_type TEXT NOT NULL,
	title TEXT NOT NULL,
	url TEXT NOT NULL,
	raw_text TEXT NOT NULL DEFAULT '',
	published_at TIMESTAMPTZ NOT NULL,
	stage TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	storage_path TEXT NOT NULL DEFAULT '',
	segments JSONB NOT NULL DEFAULT '[]'::jsonb,
	page_offsets JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_stage ON documents(stage);
CREATE INDEX IF NOT EXISTS idx_documents_published_at ON documents(published_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Upsert inserts the document or replaces it wholesale under the same id.
// Re-ingestion supersedes the previous content and resets the stage.
func (r *DocumentRepository) Upsert(ctx context.Context, doc *domain.Document) error {
	segmentsJSON, err := json.Marshal(doc.Segments)
	if err != nil {
		return fmt.Errorf("marshal segments: %w", err)
	}
	pagesJSON, err := json.Marshal(doc.PageOffsets)
	if err != nil {
		return fmt.Errorf("marshal page offsets: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, source_type, title, url, raw_text, published_at, stage, error_message, storage_path, segments, page_offsets, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO UPDATE SET
	source_type = EXCLUDED.source_type,
	title = EXCLUDED.title,
	url = EXCLUDED.url,
	raw_text = EXCLUDED.raw_text,
	published_at = EXCLUDED.published_at,
	stage = EXCLUDED.stage,
	error_message = EXCLUDED.error_message,
	storage_path = EXCLUDED.storage_path,
	segments = EXCLUDED.segments,
	page_offsets = EXCLUDED.page_offsets,
	updated_at = EXCLUDED.updated_at
`,
		doc.ID, string(doc.SourceType), doc.Title, doc.URL, doc.RawText, doc.PublishedAt,
		string(doc.Stage), doc.Error, doc.StoragePath, segmentsJSON, pagesJSON, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

const documentColumns = `id, source_type, title, url, raw_text, published_at, stage, error_message, storage_path, segments, page_offsets, created_at, updated_at`

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id = $1
`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id %s", id))
		}
		return nil, err
	}
	return doc, nil
}

func (r *DocumentRepository) UpdateStage(ctx context.Context, id string, stage domain.IngestStage, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET stage = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(stage), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document stage: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, "update document stage", fmt.Errorf("id %s", id))
	}
	return nil
}

// ListPending returns documents that have not reached the indexed stage,
// oldest first so batch runs drain the backlog in ingestion order.
func (r *DocumentRepository) ListPending(ctx context.Context, limit int) ([]domain.Document, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE stage <> $1
ORDER BY created_at ASC
LIMIT $2
`, string(domain.StageIndexed), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending documents: %w", err)
	}
	defer rows.Close()

	var out []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending documents: %w", err)
	}
	return out, nil
}

// ListAll returns every cataloged document, oldest first. Used by forced
// batch refreshes that re-run documents already indexed.
func (r *DocumentRepository) ListAll(ctx context.Context, limit int) ([]domain.Document, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
ORDER BY created_at ASC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var sourceType, stage string
	var segmentsRaw, pagesRaw []byte

	err := row.Scan(
		&doc.ID, &sourceType, &doc.Title, &doc.URL, &doc.RawText, &doc.PublishedAt,
		&stage, &doc.Error, &doc.StoragePath, &segmentsRaw, &pagesRaw, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	if err := json.Unmarshal(segmentsRaw, &doc.Segments); err != nil {
		return nil, fmt.Errorf("unmarshal segments: %w", err)
	}
	if err := json.Unmarshal(pagesRaw, &doc.PageOffsets); err != nil {
		return nil, fmt.Errorf("unmarshal page offsets: %w", err)
	}
	doc.SourceType = domain.SourceType(sourceType)
	doc.Stage = domain.IngestStage(stage)
	return &doc, nil
}
