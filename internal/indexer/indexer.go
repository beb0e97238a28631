package indexer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/regs-mcp/internal/embedder"
	"github.com/dshills/regs-mcp/internal/logger"
	"github.com/dshills/regs-mcp/internal/metrics"
	"github.com/dshills/regs-mcp/internal/storage"
	"github.com/dshills/regs-mcp/pkg/types"
)

var (
	// ErrIndexInProgress is returned when another import or embedding job holds the lock
	ErrIndexInProgress = errors.New("indexing already in progress")
	// ErrNoEmbedder is returned by EmbedDocument when no embedder is configured
	ErrNoEmbedder = errors.New("no embedder configured")
)

// Indexer coordinates TOC import and the embedding job
type Indexer struct {
	storage  storage.Storage
	embedder embedder.Embedder
	log      zerolog.Logger
	metrics  *metrics.Metrics
	lock     IndexLock

	batchSize int
	workers   int
}

// Config contains configuration for the indexer
type Config struct {
	BatchSize int // Entries per embedding request (default: 50)
	Workers   int // Concurrent embedding batches (default: min(4, NumCPU))
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
}

// ImportOptions controls ImportTOC
type ImportOptions struct {
	// Replace deletes the document's existing entries (and their embeddings) first
	Replace bool
}

// ImportStatistics describes a completed import
type ImportStatistics struct {
	DocumentID      int64
	EntriesImported int
	EntriesRemoved  int64
	PagesImported   int
	Duration        time.Duration
}

// Statistics contains statistics about an embedding job
type Statistics struct {
	DocumentID    int64
	TotalEntries  int
	Embedded      int
	Skipped       int // Already embedded by the same provider and model
	Failed        int
	Batches       int
	Provider      string
	Model         string
	Duration      time.Duration
	ErrorMessages []string
}

// New creates an Indexer. emb may be nil when only imports are needed.
func New(store storage.Storage, emb embedder.Embedder, cfg Config) *Indexer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = embedder.DefaultBatchSize
	}
	if cfg.BatchSize > embedder.MaxBatchSize {
		cfg.BatchSize = embedder.MaxBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = min(4, runtime.NumCPU())
	}
	return &Indexer{
		storage:   store,
		embedder:  emb,
		log:       logger.Component(cfg.Logger, "indexer"),
		metrics:   cfg.Metrics,
		batchSize: cfg.BatchSize,
		workers:   cfg.Workers,
	}
}

// ImportTOCFile loads a TOC file from disk and imports it
func (idx *Indexer) ImportTOCFile(ctx context.Context, path string, opts ImportOptions) (*ImportStatistics, error) {
	f, err := LoadTOCFile(path)
	if err != nil {
		return nil, err
	}
	return idx.ImportTOC(ctx, f, opts)
}

// ImportTOC writes the document, its entries and any page text in one transaction
func (idx *Indexer) ImportTOC(ctx context.Context, f *TocFile, opts ImportOptions) (*ImportStatistics, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexInProgress
	}
	defer idx.lock.Release()

	start := time.Now()
	stats := &ImportStatistics{}

	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	doc := &types.Document{
		ID:            f.Document.ID,
		Title:         f.Document.Title,
		DocumentType:  f.Document.Type,
		PDFPageOffset: f.Document.PDFPageOffset,
	}
	if err := tx.UpsertDocument(ctx, doc); err != nil {
		return nil, err
	}
	stats.DocumentID = doc.ID

	if opts.Replace {
		removed, err := tx.DeleteTocEntries(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		stats.EntriesRemoved = removed
	}

	entries := f.TocEntries(doc.ID)
	for i := range entries {
		if err := tx.UpsertTocEntry(ctx, &entries[i]); err != nil {
			return nil, err
		}
	}
	stats.EntriesImported = len(entries)

	if len(f.Pages) > 0 {
		// Assign pages using every entry of the document, not only this file's
		all, err := tx.ListTocEntries(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		for _, p := range f.Pages {
			page := &storage.PageContent{
				DocumentID:   doc.ID,
				PageNumber:   p.Page,
				DocumentPage: p.DocumentPage,
				Content:      p.Content,
			}
			if page.DocumentPage == 0 && p.Page-doc.PDFPageOffset > 0 {
				page.DocumentPage = p.Page - doc.PDFPageOffset
			}
			page.TocID = coveringEntry(all, page.DocumentPage)
			if err := tx.UpsertPageContent(ctx, page); err != nil {
				return nil, err
			}
		}
		stats.PagesImported = len(f.Pages)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit import: %w", err)
	}

	stats.Duration = time.Since(start)
	idx.log.Info().
		Int64("document_id", doc.ID).
		Int("entries", stats.EntriesImported).
		Int("pages", stats.PagesImported).
		Int64("removed", stats.EntriesRemoved).
		Dur("duration", stats.Duration).
		Msg("toc imported")

	idx.updateDocumentMetrics(ctx, doc.ID)
	return stats, nil
}

// coveringEntry returns the entry whose page range contains documentPage:
// the last entry starting at or before it. entries must be ordered by page.
func coveringEntry(entries []types.TocEntry, documentPage int) int64 {
	if documentPage <= 0 || len(entries) == 0 {
		return 0
	}
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].DocumentPage > documentPage
	})
	if i == 0 {
		return 0
	}
	return entries[i-1].ID
}

// EmbedDocument embeds every entry of a document that has no vector from the
// configured provider and model. force discards all stored vectors first.
func (idx *Indexer) EmbedDocument(ctx context.Context, documentID int64, force bool) (*Statistics, error) {
	if idx.embedder == nil {
		return nil, ErrNoEmbedder
	}
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexInProgress
	}
	defer idx.lock.Release()

	start := time.Now()
	stats := &Statistics{
		DocumentID:    documentID,
		Provider:      idx.embedder.Provider(),
		Model:         idx.embedder.Model(),
		ErrorMessages: make([]string, 0),
	}

	if _, err := idx.storage.GetDocument(ctx, documentID); err != nil {
		return nil, fmt.Errorf("document %d: %w", documentID, err)
	}

	if force {
		removed, err := idx.storage.DeleteTocEmbeddings(ctx, documentID)
		if err != nil {
			return nil, err
		}
		idx.log.Info().Int64("document_id", documentID).Int64("removed", removed).Msg("discarded embeddings")
	}

	all, err := idx.storage.ListTocEntries(ctx, documentID)
	if err != nil {
		return nil, err
	}
	missing, err := idx.storage.ListEntriesMissingEmbedding(ctx, documentID, stats.Provider, stats.Model)
	if err != nil {
		return nil, err
	}
	stats.TotalEntries = len(all)
	stats.Skipped = len(all) - len(missing)

	var (
		embedded atomic.Int32
		failed   atomic.Int32
		mu       sync.Mutex // Protects stats.ErrorMessages
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)

	for i := 0; i < len(missing); i += idx.batchSize {
		batch := missing[i:min(i+idx.batchSize, len(missing))]
		stats.Batches++

		g.Go(func() error {
			n, err := idx.embedBatch(gctx, batch)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(int32(len(batch)))
				mu.Lock()
				stats.ErrorMessages = append(stats.ErrorMessages,
					fmt.Sprintf("sections %s..%s: %v", batch[0].SectionNumber, batch[len(batch)-1].SectionNumber, err))
				mu.Unlock()
				idx.log.Warn().Err(err).Int("entries", len(batch)).Msg("embedding batch failed")
				return nil
			}
			embedded.Add(int32(n))
			return nil
		})
	}

	waitErr := g.Wait()

	stats.Embedded = int(embedded.Load())
	stats.Failed = int(failed.Load())
	stats.Duration = time.Since(start)

	idx.log.Info().
		Int64("document_id", documentID).
		Int("embedded", stats.Embedded).
		Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).
		Str("provider", stats.Provider).
		Str("model", stats.Model).
		Dur("duration", stats.Duration).
		Msg("embedding job finished")

	idx.updateDocumentMetrics(ctx, documentID)

	if waitErr != nil {
		return stats, waitErr
	}
	return stats, nil
}

// embedBatch embeds one batch and stores the vectors in a transaction
func (idx *Indexer) embedBatch(ctx context.Context, batch []types.TocEntry) (int, error) {
	texts := make([]string, len(batch))
	for i := range batch {
		texts[i] = batch[i].EmbeddingText()
	}

	resp, err := idx.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
	if err != nil {
		return 0, err
	}
	if len(resp.Embeddings) != len(batch) {
		return 0, fmt.Errorf("got %d embeddings for %d entries", len(resp.Embeddings), len(batch))
	}

	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, emb := range resp.Embeddings {
		err := tx.UpsertTocEmbedding(ctx, &storage.TocEmbedding{
			TocID:     batch[i].ID,
			Vector:    emb.Vector,
			Dimension: emb.Dimension,
			Provider:  resp.Provider,
			Model:     resp.Model,
			TextHash:  storage.EmbeddingTextHash(&batch[i]),
		})
		if err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit embeddings: %w", err)
	}
	return len(batch), nil
}

func (idx *Indexer) updateDocumentMetrics(ctx context.Context, documentID int64) {
	if idx.metrics == nil {
		return
	}
	status, err := idx.storage.GetDocumentStatus(ctx, documentID)
	if err != nil {
		idx.log.Debug().Err(err).Int64("document_id", documentID).Msg("document status unavailable")
		return
	}
	idx.metrics.UpdateDocumentStats(fmt.Sprint(documentID), status.TotalEntries, status.EmbeddedEntries)
}

// Busy reports whether an import or embedding job is running
func (idx *Indexer) Busy() bool {
	if !idx.lock.TryAcquire() {
		return true
	}
	idx.lock.Release()
	return false
}
