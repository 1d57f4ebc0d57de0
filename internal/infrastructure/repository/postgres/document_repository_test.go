package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ymatsuda/marketing-rag/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &DocumentRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, source_type, title, url").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDScansStageAndMetadata(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "source_type", "title", "url", "raw_text", "published_at",
		"stage", "error_message", "storage_path", "segments", "page_offsets", "created_at", "updated_at",
	}).AddRow(
		"vid-1", "video", "How funnels work", "https://www.youtube.com/watch?v=vid-1", "transcript", now,
		"embedded", "", "", []byte(`[{"offset":0,"seconds":0}]`), []byte(`[]`), now, now,
	)

	mock.ExpectQuery("SELECT id, source_type, title, url").
		WithArgs("vid-1").
		WillReturnRows(rows)

	doc, err := repo.GetByID(context.Background(), "vid-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if doc.Stage != domain.StageEmbedded {
		t.Fatalf("expected stage embedded, got %s", doc.Stage)
	}
	if doc.SourceType != domain.SourceVideo {
		t.Fatalf("expected video source, got %s", doc.SourceType)
	}
	if len(doc.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(doc.Segments))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateStageReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("missing", string(domain.StageChunked), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStage(context.Background(), "missing", domain.StageChunked, "")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertSendsAllColumns(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectExec("INSERT INTO documents").
		WithArgs(
			"vid-1", "video", "How funnels work", "https://www.youtube.com/watch?v=vid-1", "transcript", now,
			"fetched", "", "", sqlmock.AnyArg(), sqlmock.AnyArg(), now, now,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), &domain.Document{
		ID:          "vid-1",
		SourceType:  domain.SourceVideo,
		Title:       "How funnels work",
		URL:         "https://www.youtube.com/watch?v=vid-1",
		RawText:     "transcript",
		PublishedAt: now,
		Stage:       domain.StageFetched,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListAllIncludesIndexedDocuments(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "source_type", "title", "url", "raw_text", "published_at",
		"stage", "error_message", "storage_path", "segments", "page_offsets", "created_at", "updated_at",
	}).AddRow(
		"vid-1", "video", "Old video", "https://www.youtube.com/watch?v=vid-1", "transcript", now,
		"indexed", "", "", []byte(`[]`), []byte(`[]`), now, now,
	).AddRow(
		"doc-1", "pdf", "New report", "https://example.com/r.pdf", "", now,
		"discovered", "", "sources/doc-1.pdf", []byte(`[]`), []byte(`[]`), now, now,
	)

	mock.ExpectQuery("SELECT id, source_type, title, url").
		WithArgs(50).
		WillReturnRows(rows)

	docs, err := repo.ListAll(context.Background(), 50)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(docs) != 2 || docs[0].Stage != domain.StageIndexed {
		t.Fatalf("unexpected docs: %+v", docs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListPendingScansDocuments(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "source_type", "title", "url", "raw_text", "published_at",
		"stage", "error_message", "storage_path", "segments", "page_offsets", "created_at", "updated_at",
	}).AddRow(
		"doc-1", "pdf", "Pricing guide", "https://example.com/p.pdf", "", now,
		"discovered", "", "sources/doc-1.pdf", []byte(`[]`), []byte(`[]`), now, now,
	)

	mock.ExpectQuery("SELECT id, source_type, title, url").
		WithArgs(string(domain.StageIndexed), 10).
		WillReturnRows(rows)

	docs, err := repo.ListPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(docs) != 1 || docs[0].Stage != domain.StageDiscovered {
		t.Fatalf("unexpected pending docs: %+v", docs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
