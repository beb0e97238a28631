package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/regs-mcp/internal/metrics"
	"github.com/dshills/regs-mcp/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is returned for rows that fail validation before writing
	ErrInvalidArgument = errors.New("invalid argument")
)

// SQLiteStorage implements Storage on SQLite
type SQLiteStorage struct {
	db      *sql.DB
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures a SQLiteStorage
type Option func(*SQLiteStorage)

// WithLogger sets the logger used for data warnings
func WithLogger(l zerolog.Logger) Option {
	return func(s *SQLiteStorage) {
		s.log = l.With().Str("component", "storage").Logger()
	}
}

// WithMetrics records query durations
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *SQLiteStorage) {
		s.metrics = m
	}
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// WAL is unavailable for in-memory databases; SQLite silently keeps "memory"
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Single connection: SQLite has one writer, and :memory: databases are per-connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage opens dbPath (":memory:" for tests) and applies migrations
func NewSQLiteStorage(dbPath string, opts ...Option) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	s := &SQLiteStorage{db: db, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqliteTx) querier() querier {
	return t.tx
}

func (s *SQLiteStorage) querier() querier {
	return s.db
}

func (s *SQLiteStorage) observe(op string, start time.Time, err error) {
	s.metrics.RecordDbOperation(op, time.Since(start), err)
}

// Document operations

func (s *SQLiteStorage) upsertDocumentWithQuerier(ctx context.Context, q querier, doc *types.Document) error {
	if strings.TrimSpace(doc.Title) == "" {
		return fmt.Errorf("%w: document title is empty", ErrInvalidArgument)
	}
	now := time.Now()

	if doc.ID == 0 {
		result, err := q.ExecContext(ctx, `
			INSERT INTO documents (title, document_type, pdf_page_offset, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, doc.Title, doc.DocumentType, doc.PDFPageOffset, now, now)
		if err != nil {
			return fmt.Errorf("failed to create document: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return err
		}
		doc.ID = id
		return nil
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO documents (id, title, document_type, pdf_page_offset, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			document_type = excluded.document_type,
			pdf_page_offset = excluded.pdf_page_offset,
			updated_at = excluded.updated_at
	`, doc.ID, doc.Title, doc.DocumentType, doc.PDFPageOffset, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

// UpsertDocument creates a document (ID 0 assigns one) or updates it by ID
func (s *SQLiteStorage) UpsertDocument(ctx context.Context, doc *types.Document) error {
	return s.upsertDocumentWithQuerier(ctx, s.querier(), doc)
}

func (s *SQLiteStorage) getDocumentWithQuerier(ctx context.Context, q querier, documentID int64) (*types.Document, error) {
	var doc types.Document
	err := q.QueryRowContext(ctx, `
		SELECT id, title, document_type, pdf_page_offset
		FROM documents
		WHERE id = ?
	`, documentID).Scan(&doc.ID, &doc.Title, &doc.DocumentType, &doc.PDFPageOffset)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

func (s *SQLiteStorage) GetDocument(ctx context.Context, documentID int64) (*types.Document, error) {
	return s.getDocumentWithQuerier(ctx, s.querier(), documentID)
}

func (s *SQLiteStorage) listDocumentsWithQuerier(ctx context.Context, q querier) ([]*types.Document, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, title, document_type, pdf_page_offset
		FROM documents
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []*types.Document
	for rows.Next() {
		var doc types.Document
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.DocumentType, &doc.PDFPageOffset); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteStorage) ListDocuments(ctx context.Context) ([]*types.Document, error) {
	return s.listDocumentsWithQuerier(ctx, s.querier())
}

// TOC entry operations

// upsertTocEntryWithQuerier inserts or updates an entry keyed by (document, section).
// A stored embedding computed from different text is dropped.
func (s *SQLiteStorage) upsertTocEntryWithQuerier(ctx context.Context, q querier, entry *types.TocEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("%w: section %q: %w", ErrInvalidArgument, entry.SectionNumber, err)
	}
	now := time.Now()

	_, err := q.ExecContext(ctx, `
		INSERT INTO toc_entries (document_id, entry_key, section_number, title, full_path, document_page, level, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id, section_number) DO UPDATE SET
			entry_key = excluded.entry_key,
			title = excluded.title,
			full_path = excluded.full_path,
			document_page = excluded.document_page,
			level = excluded.level,
			updated_at = excluded.updated_at
	`, entry.DocumentID, entry.Key, entry.SectionNumber, entry.Title, entry.FullPath,
		entry.DocumentPage, entry.Level, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert toc entry %s: %w", entry.SectionNumber, err)
	}

	// LastInsertId is unreliable on the update path, so look the row up
	err = q.QueryRowContext(ctx,
		"SELECT id FROM toc_entries WHERE document_id = ? AND section_number = ?",
		entry.DocumentID, entry.SectionNumber).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to get toc entry id: %w", err)
	}

	_, err = q.ExecContext(ctx,
		"DELETE FROM toc_embeddings WHERE toc_id = ? AND text_hash != ?",
		entry.ID, EmbeddingTextHash(entry))
	if err != nil {
		return fmt.Errorf("failed to invalidate embedding: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertTocEntry(ctx context.Context, entry *types.TocEntry) error {
	return s.upsertTocEntryWithQuerier(ctx, s.querier(), entry)
}

const tocEntryColumns = `
	t.id, t.document_id, t.entry_key, t.section_number, t.title, t.full_path,
	t.document_page, t.level`

func scanTocEntry(rows *sql.Rows, extra ...interface{}) (types.TocEntry, error) {
	var e types.TocEntry
	dest := append([]interface{}{
		&e.ID, &e.DocumentID, &e.Key, &e.SectionNumber, &e.Title, &e.FullPath,
		&e.DocumentPage, &e.Level,
	}, extra...)
	err := rows.Scan(dest...)
	return e, err
}

// listTocEntriesWithQuerier returns all entries of a document ordered by page,
// with embeddings attached. Undecodable vectors are logged and left nil so the
// entry still ranks by keyword.
func (s *SQLiteStorage) listTocEntriesWithQuerier(ctx context.Context, q querier, documentID int64) (entries []types.TocEntry, err error) {
	start := time.Now()
	defer func() { s.observe("list_toc_entries", start, err) }()

	rows, err := q.QueryContext(ctx, `
		SELECT`+tocEntryColumns+`, e.vector, e.dimension
		FROM toc_entries t
		LEFT JOIN toc_embeddings e ON e.toc_id = t.id
		WHERE t.document_id = ?
		ORDER BY t.document_page, t.id
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list toc entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries = []types.TocEntry{}
	for rows.Next() {
		var blob []byte
		var dimension sql.NullInt64
		e, err := scanTocEntry(rows, &blob, &dimension)
		if err != nil {
			return nil, err
		}
		if blob != nil {
			vec, derr := deserializeVector(blob, int(dimension.Int64))
			if derr != nil {
				s.log.Warn().Err(derr).
					Int64("toc_id", e.ID).
					Str("section", e.SectionNumber).
					Msg("ignoring malformed embedding")
			} else {
				e.Embedding = vec
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStorage) ListTocEntries(ctx context.Context, documentID int64) ([]types.TocEntry, error) {
	return s.listTocEntriesWithQuerier(ctx, s.querier(), documentID)
}

// listEntriesMissingEmbeddingWithQuerier returns entries with no embedding from
// provider/model. Empty provider and model match any stored embedding.
func (s *SQLiteStorage) listEntriesMissingEmbeddingWithQuerier(ctx context.Context, q querier, documentID int64, provider, model string) ([]types.TocEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT`+tocEntryColumns+`
		FROM toc_entries t
		WHERE t.document_id = ?
		  AND NOT EXISTS (
			SELECT 1 FROM toc_embeddings e
			WHERE e.toc_id = t.id
			  AND (? = '' OR e.provider = ?)
			  AND (? = '' OR e.model = ?)
		  )
		ORDER BY t.document_page, t.id
	`, documentID, provider, provider, model, model)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries missing embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []types.TocEntry
	for rows.Next() {
		e, err := scanTocEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStorage) ListEntriesMissingEmbedding(ctx context.Context, documentID int64, provider, model string) ([]types.TocEntry, error) {
	return s.listEntriesMissingEmbeddingWithQuerier(ctx, s.querier(), documentID, provider, model)
}

func (s *SQLiteStorage) deleteTocEntriesWithQuerier(ctx context.Context, q querier, documentID int64) (int64, error) {
	result, err := q.ExecContext(ctx, "DELETE FROM toc_entries WHERE document_id = ?", documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete toc entries: %w", err)
	}
	return result.RowsAffected()
}

// DeleteTocEntries removes a document's TOC; embeddings cascade
func (s *SQLiteStorage) DeleteTocEntries(ctx context.Context, documentID int64) (int64, error) {
	return s.deleteTocEntriesWithQuerier(ctx, s.querier(), documentID)
}

// Embedding operations

func (s *SQLiteStorage) upsertTocEmbeddingWithQuerier(ctx context.Context, q querier, emb *TocEmbedding) error {
	if len(emb.Vector) == 0 {
		return fmt.Errorf("%w: empty vector for toc %d", ErrInvalidArgument, emb.TocID)
	}
	if emb.Dimension == 0 {
		emb.Dimension = len(emb.Vector)
	}
	if emb.Dimension != len(emb.Vector) {
		return fmt.Errorf("%w: dimension %d for %d values", ErrInvalidArgument, emb.Dimension, len(emb.Vector))
	}
	emb.CreatedAt = time.Now()

	_, err := q.ExecContext(ctx, `
		INSERT INTO toc_embeddings (toc_id, vector, dimension, provider, model, text_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(toc_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			provider = excluded.provider,
			model = excluded.model,
			text_hash = excluded.text_hash,
			created_at = excluded.created_at
	`, emb.TocID, serializeVector(emb.Vector), emb.Dimension, emb.Provider, emb.Model, emb.TextHash, emb.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding for toc %d: %w", emb.TocID, err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertTocEmbedding(ctx context.Context, emb *TocEmbedding) error {
	return s.upsertTocEmbeddingWithQuerier(ctx, s.querier(), emb)
}

func (s *SQLiteStorage) deleteTocEmbeddingsWithQuerier(ctx context.Context, q querier, documentID int64) (int64, error) {
	result, err := q.ExecContext(ctx, `
		DELETE FROM toc_embeddings
		WHERE toc_id IN (SELECT id FROM toc_entries WHERE document_id = ?)
	`, documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete embeddings: %w", err)
	}
	return result.RowsAffected()
}

// DeleteTocEmbeddings drops every embedding of a document, returning the count removed
func (s *SQLiteStorage) DeleteTocEmbeddings(ctx context.Context, documentID int64) (int64, error) {
	return s.deleteTocEmbeddingsWithQuerier(ctx, s.querier(), documentID)
}

// Page content operations

func (s *SQLiteStorage) upsertPageContentWithQuerier(ctx context.Context, q querier, page *PageContent) error {
	if page.PageNumber <= 0 {
		return fmt.Errorf("%w: page number %d", ErrInvalidArgument, page.PageNumber)
	}

	var documentPage, tocID interface{}
	if page.DocumentPage > 0 {
		documentPage = page.DocumentPage
	}
	if page.TocID > 0 {
		tocID = page.TocID
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO reference_content (document_id, toc_id, page_number, document_page, page_content)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(document_id, page_number) DO UPDATE SET
			toc_id = excluded.toc_id,
			document_page = excluded.document_page,
			page_content = excluded.page_content
	`, page.DocumentID, tocID, page.PageNumber, documentPage, page.Content)
	if err != nil {
		return fmt.Errorf("failed to upsert page %d: %w", page.PageNumber, err)
	}

	return q.QueryRowContext(ctx,
		"SELECT id FROM reference_content WHERE document_id = ? AND page_number = ?",
		page.DocumentID, page.PageNumber).Scan(&page.ID)
}

func (s *SQLiteStorage) UpsertPageContent(ctx context.Context, page *PageContent) error {
	return s.upsertPageContentWithQuerier(ctx, s.querier(), page)
}

// getPageRangeWithQuerier returns pages within page±pad by physical page number,
// falling back to the logical document page when nothing matches
func (s *SQLiteStorage) getPageRangeWithQuerier(ctx context.Context, q querier, documentID int64, page, pad int) (pages []PageContent, err error) {
	start := time.Now()
	defer func() { s.observe("get_page_range", start, err) }()

	if pad < 0 {
		pad = 0
	}
	minPage, maxPage := page-pad, page+pad

	for _, column := range []string{"page_number", "document_page"} {
		pages, err = s.queryPages(ctx, q, `
			SELECT id, document_id, page_number, COALESCE(document_page, 0), COALESCE(toc_id, 0), page_content
			FROM reference_content
			WHERE document_id = ? AND `+column+` BETWEEN ? AND ?
			ORDER BY `+column, documentID, minPage, maxPage)
		if err != nil || len(pages) > 0 {
			return pages, err
		}
	}
	return []PageContent{}, nil
}

func (s *SQLiteStorage) queryPages(ctx context.Context, q querier, query string, args ...interface{}) ([]PageContent, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var pages []PageContent
	for rows.Next() {
		var p PageContent
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.PageNumber, &p.DocumentPage, &p.TocID, &p.Content); err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

func (s *SQLiteStorage) GetPageRange(ctx context.Context, documentID int64, page, pad int) ([]PageContent, error) {
	return s.getPageRangeWithQuerier(ctx, s.querier(), documentID, page, pad)
}

// Query log operations

func (s *SQLiteStorage) insertQueryLogWithQuerier(ctx context.Context, q querier, log *QueryLog) error {
	if strings.TrimSpace(log.QueryText) == "" {
		return fmt.Errorf("%w: query text is empty", ErrInvalidArgument)
	}
	// UTC drops the monotonic reading so stored timestamps sort as text
	log.CompletedAt = time.Now().UTC()
	if log.Timestamp.IsZero() {
		log.Timestamp = log.CompletedAt
	}
	log.Timestamp = log.Timestamp.UTC()

	result, err := q.ExecContext(ctx, `
		INSERT INTO query_logs (query_id, document_id, query_text, query_type, result_section,
			result_title, result_page, result_found, alternatives_count, timestamp, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, log.QueryID, log.DocumentID, log.QueryText, log.QueryType, log.ResultSection,
		log.ResultTitle, log.ResultPage, log.ResultFound, log.AlternativesCount,
		log.Timestamp, log.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to insert query log: %w", err)
	}
	log.ID, err = result.LastInsertId()
	return err
}

func (s *SQLiteStorage) InsertQueryLog(ctx context.Context, log *QueryLog) error {
	return s.insertQueryLogWithQuerier(ctx, s.querier(), log)
}

func (s *SQLiteStorage) listQueryLogsWithQuerier(ctx context.Context, q querier, documentID int64, limit int) ([]QueryLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.QueryContext(ctx, `
		SELECT id, query_id, document_id, query_text, query_type, result_section,
			result_title, result_page, result_found, alternatives_count, timestamp, completed_at
		FROM query_logs
		WHERE document_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list query logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var logs []QueryLog
	for rows.Next() {
		var l QueryLog
		if err := rows.Scan(&l.ID, &l.QueryID, &l.DocumentID, &l.QueryText, &l.QueryType,
			&l.ResultSection, &l.ResultTitle, &l.ResultPage, &l.ResultFound,
			&l.AlternativesCount, &l.Timestamp, &l.CompletedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// ListQueryLogs returns the most recent logs for a document, newest first
func (s *SQLiteStorage) ListQueryLogs(ctx context.Context, documentID int64, limit int) ([]QueryLog, error) {
	return s.listQueryLogsWithQuerier(ctx, s.querier(), documentID, limit)
}

// Status operations

func (s *SQLiteStorage) getDocumentStatusWithQuerier(ctx context.Context, q querier, documentID int64) (*DocumentStatus, error) {
	doc, err := s.getDocumentWithQuerier(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	status := &DocumentStatus{Document: *doc, BuildMode: BuildMode}

	err = q.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(e.toc_id)
		FROM toc_entries t
		LEFT JOIN toc_embeddings e ON e.toc_id = t.id
		WHERE t.document_id = ?
	`, documentID).Scan(&status.TotalEntries, &status.EmbeddedEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to count entries: %w", err)
	}

	err = q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM reference_content WHERE document_id = ?", documentID).Scan(&status.Pages)
	if err != nil {
		return nil, fmt.Errorf("failed to count pages: %w", err)
	}

	var last sql.NullString
	err = q.QueryRowContext(ctx,
		"SELECT COUNT(*), MAX(timestamp) FROM query_logs WHERE document_id = ?", documentID).Scan(&status.QueryCount, &last)
	if err != nil {
		return nil, fmt.Errorf("failed to count queries: %w", err)
	}
	if last.Valid {
		status.LastQueryAt = parseTimestamp(last.String)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT DISTINCT e.provider || '/' || e.model
		FROM toc_embeddings e
		JOIN toc_entries t ON t.id = e.toc_id
		WHERE t.document_id = ?
		ORDER BY 1
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list embedding models: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		status.Models = append(status.Models, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var pageCount, pageSize int
	if err := q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	return status, nil
}

// GetDocumentStatus summarizes a document's TOC, embeddings, pages and query logs
func (s *SQLiteStorage) GetDocumentStatus(ctx context.Context, documentID int64) (*DocumentStatus, error) {
	return s.getDocumentStatusWithQuerier(ctx, s.querier(), documentID)
}

// parseTimestamp reads MAX(timestamp), which drivers return as text
func parseTimestamp(v string) time.Time {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999 -0700 MST",
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Transaction implementations

func (t *sqliteTx) UpsertDocument(ctx context.Context, doc *types.Document) error {
	return t.storage.upsertDocumentWithQuerier(ctx, t.querier(), doc)
}

func (t *sqliteTx) GetDocument(ctx context.Context, documentID int64) (*types.Document, error) {
	return t.storage.getDocumentWithQuerier(ctx, t.querier(), documentID)
}

func (t *sqliteTx) ListDocuments(ctx context.Context) ([]*types.Document, error) {
	return t.storage.listDocumentsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) UpsertTocEntry(ctx context.Context, entry *types.TocEntry) error {
	return t.storage.upsertTocEntryWithQuerier(ctx, t.querier(), entry)
}

func (t *sqliteTx) ListTocEntries(ctx context.Context, documentID int64) ([]types.TocEntry, error) {
	return t.storage.listTocEntriesWithQuerier(ctx, t.querier(), documentID)
}

func (t *sqliteTx) ListEntriesMissingEmbedding(ctx context.Context, documentID int64, provider, model string) ([]types.TocEntry, error) {
	return t.storage.listEntriesMissingEmbeddingWithQuerier(ctx, t.querier(), documentID, provider, model)
}

func (t *sqliteTx) DeleteTocEntries(ctx context.Context, documentID int64) (int64, error) {
	return t.storage.deleteTocEntriesWithQuerier(ctx, t.querier(), documentID)
}

func (t *sqliteTx) UpsertTocEmbedding(ctx context.Context, emb *TocEmbedding) error {
	return t.storage.upsertTocEmbeddingWithQuerier(ctx, t.querier(), emb)
}

func (t *sqliteTx) DeleteTocEmbeddings(ctx context.Context, documentID int64) (int64, error) {
	return t.storage.deleteTocEmbeddingsWithQuerier(ctx, t.querier(), documentID)
}

func (t *sqliteTx) UpsertPageContent(ctx context.Context, page *PageContent) error {
	return t.storage.upsertPageContentWithQuerier(ctx, t.querier(), page)
}

func (t *sqliteTx) GetPageRange(ctx context.Context, documentID int64, page, pad int) ([]PageContent, error) {
	return t.storage.getPageRangeWithQuerier(ctx, t.querier(), documentID, page, pad)
}

func (t *sqliteTx) InsertQueryLog(ctx context.Context, log *QueryLog) error {
	return t.storage.insertQueryLogWithQuerier(ctx, t.querier(), log)
}

func (t *sqliteTx) ListQueryLogs(ctx context.Context, documentID int64, limit int) ([]QueryLog, error) {
	return t.storage.listQueryLogsWithQuerier(ctx, t.querier(), documentID, limit)
}

func (t *sqliteTx) GetDocumentStatus(ctx context.Context, documentID int64) (*DocumentStatus, error) {
	return t.storage.getDocumentStatusWithQuerier(ctx, t.querier(), documentID)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, errors.New("nested transactions not supported")
}
