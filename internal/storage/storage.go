package storage

import (
	"context"
	"time"

	"github.com/dshills/regs-mcp/pkg/types"
)

// Storage persists regulation documents, their TOC, embeddings, page text and query logs
type Storage interface {
	// Document operations
	UpsertDocument(ctx context.Context, doc *types.Document) error
	GetDocument(ctx context.Context, documentID int64) (*types.Document, error)
	ListDocuments(ctx context.Context) ([]*types.Document, error)

	// TOC entry operations
	UpsertTocEntry(ctx context.Context, entry *types.TocEntry) error
	ListTocEntries(ctx context.Context, documentID int64) ([]types.TocEntry, error)
	ListEntriesMissingEmbedding(ctx context.Context, documentID int64, provider, model string) ([]types.TocEntry, error)
	DeleteTocEntries(ctx context.Context, documentID int64) (int64, error)

	// Embedding operations
	UpsertTocEmbedding(ctx context.Context, emb *TocEmbedding) error
	DeleteTocEmbeddings(ctx context.Context, documentID int64) (int64, error)

	// Page content operations
	UpsertPageContent(ctx context.Context, page *PageContent) error
	GetPageRange(ctx context.Context, documentID int64, page, pad int) ([]PageContent, error)

	// Query log operations
	InsertQueryLog(ctx context.Context, log *QueryLog) error
	ListQueryLogs(ctx context.Context, documentID int64, limit int) ([]QueryLog, error)

	// Status operations
	GetDocumentStatus(ctx context.Context, documentID int64) (*DocumentStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// TocEmbedding is the stored vector for one TOC entry
type TocEmbedding struct {
	TocID     int64
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	TextHash  string // EmbeddingTextHash of the entry when it was embedded
	CreatedAt time.Time
}

// PageContent is the extracted text of one physical page
type PageContent struct {
	ID           int64
	DocumentID   int64
	PageNumber   int   // Physical PDF page
	DocumentPage int   // Logical page, 0 when unknown
	TocID        int64 // Entry whose page range covers this page, 0 when unknown
	Content      string
}

// QueryLog records one user query and what was selected for it
type QueryLog struct {
	ID                int64
	QueryID           string
	DocumentID        int64
	QueryText         string
	QueryType         string // e.g. "search", "expanded", "voice"
	ResultSection     string
	ResultTitle       string
	ResultPage        int
	ResultFound       bool
	AlternativesCount int
	Timestamp         time.Time // When the query was issued
	CompletedAt       time.Time // When the log row was written
}

// DocumentStatus summarizes what is indexed for a document
type DocumentStatus struct {
	Document        types.Document
	TotalEntries    int
	EmbeddedEntries int
	Pages           int
	QueryCount      int
	LastQueryAt     time.Time
	Models          []string // Distinct provider/model pairs among stored embeddings
	IndexSizeMB     float64
	BuildMode       string
}

// Embedded reports whether every entry has an embedding
func (s *DocumentStatus) Embedded() bool {
	return s.TotalEntries > 0 && s.EmbeddedEntries == s.TotalEntries
}
