package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/regs-mcp/internal/indexer"
	"github.com/dshills/regs-mcp/internal/refs"
	"github.com/dshills/regs-mcp/internal/searcher"
	"github.com/dshills/regs-mcp/internal/storage"
	"github.com/dshills/regs-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams        = -32602 // Invalid method parameters
	ErrorCodeInternalError        = -32603 // Internal JSON-RPC error
	ErrorCodeEmbeddingUnavailable = -32001 // No embedding provider configured
	ErrorCodeIndexingInProgress   = -32002 // Another import or embedding job is running
	ErrorCodeDocumentNotFound     = -32003 // Document does not exist
	ErrorCodeEmptyQuery           = -32004 // Query parameter is empty
)

const (
	maxPad          = 10
	recentQueryLogs = 5
	noMatchMessage  = "No matches found"
)

// handleListDocuments handles the list_documents tool invocation
func (s *Server) handleListDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := s.storage.ListDocuments(ctx)
	if err != nil {
		return nil, toolError("failed to list documents", err)
	}

	out := make([]map[string]interface{}, len(docs))
	for i, d := range docs {
		out[i] = formatDocument(d)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"documents": out})), nil
}

// handleGetToc handles the get_toc tool invocation
func (s *Server) handleGetToc(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	docID, err := requireDocumentID(args)
	if err != nil {
		return nil, err
	}

	doc, err := s.storage.GetDocument(ctx, docID)
	if err != nil {
		return nil, toolError("failed to get document", err)
	}
	entries, err := s.storage.ListTocEntries(ctx, docID)
	if err != nil {
		return nil, toolError("failed to load toc", err)
	}

	toc := make([]map[string]interface{}, len(entries))
	for i := range entries {
		e := &entries[i]
		toc[i] = formatEntry(e, doc)
		toc[i]["embedded"] = e.HasEmbedding()
	}

	response := map[string]interface{}{
		"document": formatDocument(doc),
		"toc":      toc,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchToc handles the search_toc tool invocation
func (s *Server) handleSearchToc(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	docID, err := requireDocumentID(args)
	if err != nil {
		return nil, err
	}
	query, err := requireQuery(args)
	if err != nil {
		return nil, err
	}
	mode, err := parseMode(args)
	if err != nil {
		return nil, err
	}

	resp, err := s.searcher.Search(ctx, searcher.SearchRequest{
		DocumentID: docID,
		Query:      query,
		Mode:       mode,
		Limit:      getIntDefault(args, "limit", 0),
		UseCache:   getBoolDefault(args, "use_cache", true),
	})
	if err != nil {
		return nil, toolError("search failed", err)
	}

	doc, err := s.storage.GetDocument(ctx, docID)
	if err != nil {
		return nil, toolError("failed to get document", err)
	}

	response := map[string]interface{}{
		"document_id":  docID,
		"query":        resp.Query,
		"selection":    nil,
		"alternatives": formatResults(resp.Alternatives, doc),
		"results":      formatResults(resp.Results, doc),
		"auto_open":    resp.Selection != nil,
		"meta":         searchMeta(resp),
	}
	if resp.Selection != nil {
		response["selection"] = formatResult(resp.Selection, doc)
	} else {
		response["message"] = noMatchMessage
	}

	if getBoolDefault(args, "include_passages", false) && len(resp.Results) > 0 {
		passages, err := s.searcher.RerankPassages(ctx, docID, query, resp.Results)
		if err != nil {
			return nil, toolError("failed to load passages", err)
		}
		response["passages"] = formatPassages(passages, doc)
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchExpanded handles the search_expanded tool invocation
func (s *Server) handleSearchExpanded(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	docID, err := requireDocumentID(args)
	if err != nil {
		return nil, err
	}
	queries := getStringSlice(args, "queries")
	if len(queries) == 0 {
		return nil, newMCPError(ErrorCodeEmptyQuery, "queries parameter is required and cannot be empty", map[string]interface{}{
			"param":  "queries",
			"reason": "missing or empty",
		})
	}
	mode, err := parseMode(args)
	if err != nil {
		return nil, err
	}

	resp, err := s.searcher.SearchExpanded(ctx, docID, queries, mode)
	if err != nil {
		return nil, toolError("expanded search failed", err)
	}
	doc, err := s.storage.GetDocument(ctx, docID)
	if err != nil {
		return nil, toolError("failed to get document", err)
	}

	sections := make([]map[string]interface{}, len(resp.Results))
	for i := range resp.Results {
		r := &resp.Results[i]
		sections[i] = formatResult(&r.ScoredResult, doc)
		sections[i]["found_by"] = r.FoundBy
	}

	response := map[string]interface{}{
		"document_id": docID,
		"queries":     resp.Queries,
		"sections":    sections,
		"fallback":    resp.Fallback,
		"duration_ms": resp.Duration.Milliseconds(),
	}
	if len(sections) == 0 {
		response["message"] = noMatchMessage
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchDocuments handles the search_documents tool invocation
func (s *Server) handleSearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	ids, err := getInt64Slice(args, "document_ids")
	if err != nil || len(ids) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "document_ids must be a non-empty list of document IDs", map[string]interface{}{
			"param": "document_ids",
		})
	}
	query, err := requireQuery(args)
	if err != nil {
		return nil, err
	}
	mode, err := parseMode(args)
	if err != nil {
		return nil, err
	}

	results, err := s.searcher.SearchDocuments(ctx, ids, query, mode, getIntDefault(args, "limit", 0))
	if err != nil {
		return nil, toolError("search failed", err)
	}

	docs := make(map[int64]*types.Document)
	out := make([]map[string]interface{}, len(results))
	for i := range results {
		r := &results[i]
		doc, ok := docs[r.DocumentID]
		if !ok {
			if doc, err = s.storage.GetDocument(ctx, r.DocumentID); err != nil {
				return nil, toolError("failed to get document", err)
			}
			docs[r.DocumentID] = doc
		}
		out[i] = formatResult(&r.ScoredResult, doc)
		out[i]["document_id"] = r.DocumentID
		out[i]["document_title"] = doc.Title
	}

	response := map[string]interface{}{
		"query":   query,
		"results": out,
	}
	if len(out) == 0 {
		response["message"] = noMatchMessage
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetReferenceContent handles the get_reference_content tool invocation
func (s *Server) handleGetReferenceContent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	docID, err := requireDocumentID(args)
	if err != nil {
		return nil, err
	}

	page := getIntDefault(args, "page", 0)
	if page < 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "page parameter is required", map[string]interface{}{
			"param":  "page",
			"reason": "missing or not positive",
		})
	}
	pad := getIntDefault(args, "pad", s.searcher.Pad())
	if pad < 0 || pad > maxPad {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("pad must be between 0 and %d", maxPad), map[string]interface{}{
			"param": "pad",
			"value": pad,
		})
	}

	if _, err := s.storage.GetDocument(ctx, docID); err != nil {
		return nil, toolError("failed to get document", err)
	}
	pages, err := s.storage.GetPageRange(ctx, docID, page, pad)
	if err != nil {
		return nil, toolError("failed to load pages", err)
	}

	items := make([]map[string]interface{}, len(pages))
	for i, p := range pages {
		items[i] = map[string]interface{}{
			"id":            p.ID,
			"toc_id":        p.TocID,
			"page_number":   p.PageNumber,
			"document_page": p.DocumentPage,
			"page_content":  p.Content,
		}
	}

	response := map[string]interface{}{
		"items": items,
		"meta": map[string]interface{}{
			"document_id": docID,
			"page":        page,
			"pad":         pad,
			"count":       len(items),
		},
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleExtractReferences handles the extract_references tool invocation
func (s *Server) handleExtractReferences(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	text := getStringDefault(args, "text", "")
	if strings.TrimSpace(text) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "text parameter is required", map[string]interface{}{
			"param":  "text",
			"reason": "missing or empty",
		})
	}

	var doc *types.Document
	if _, ok := args["document_id"]; ok {
		docID, err := requireDocumentID(args)
		if err != nil {
			return nil, err
		}
		if doc, err = s.storage.GetDocument(ctx, docID); err != nil {
			return nil, toolError("failed to get document", err)
		}
	}

	found := refs.Extract(text)
	out := make([]map[string]interface{}, len(found))
	for i, ref := range found {
		out[i] = map[string]interface{}{
			"page": ref.Page,
			"type": ref.Type,
		}
		if doc != nil {
			out[i]["pdf_page"] = doc.PDFPage(ref.Page)
		}
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"references": out})), nil
}

// handleImportToc handles the import_toc tool invocation
func (s *Server) handleImportToc(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	path := getStringDefault(args, "path", "")
	content := getStringDefault(args, "content", "")
	if (path == "") == (content == "") {
		return nil, newMCPError(ErrorCodeInvalidParams, "exactly one of path or content is required", map[string]interface{}{
			"param": "path",
		})
	}

	var file *indexer.TocFile
	if path != "" {
		file, err = indexer.LoadTOCFile(path)
	} else {
		file, err = indexer.ParseTOC(strings.NewReader(content))
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid toc file", map[string]interface{}{
			"reason": err.Error(),
		})
	}

	opts := indexer.ImportOptions{Replace: getBoolDefault(args, "replace", false)}
	stats, err := s.indexer.ImportTOC(ctx, file, opts)
	if err != nil {
		return nil, toolError("import failed", err)
	}
	s.searcher.InvalidateCache()

	response := map[string]interface{}{
		"imported":         true,
		"document_id":      stats.DocumentID,
		"entries_imported": stats.EntriesImported,
		"entries_removed":  stats.EntriesRemoved,
		"pages_imported":   stats.PagesImported,
		"duration_ms":      stats.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleEmbedToc handles the embed_toc tool invocation
func (s *Server) handleEmbedToc(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	docID, err := requireDocumentID(args)
	if err != nil {
		return nil, err
	}

	stats, err := s.indexer.EmbedDocument(ctx, docID, getBoolDefault(args, "force", false))
	if stats != nil && stats.Embedded > 0 {
		s.searcher.InvalidateCache()
	}
	if err != nil {
		return nil, toolError("embedding failed", err)
	}

	response := map[string]interface{}{
		"document_id":   stats.DocumentID,
		"total_entries": stats.TotalEntries,
		"embedded":      stats.Embedded,
		"skipped":       stats.Skipped,
		"failed":        stats.Failed,
		"batches":       stats.Batches,
		"provider":      stats.Provider,
		"model":         stats.Model,
		"duration_ms":   stats.Duration.Milliseconds(),
	}
	if n := len(stats.ErrorMessages); n > 0 {
		// Include first few errors
		if n > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = n
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleLogQuery handles the log_query tool invocation
func (s *Server) handleLogQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	docID, err := requireDocumentID(args)
	if err != nil {
		return nil, err
	}
	text := getStringDefault(args, "query_text", "")
	if strings.TrimSpace(text) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query_text parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query_text",
			"reason": "missing or empty",
		})
	}

	entry := &storage.QueryLog{
		QueryID:           getStringDefault(args, "query_id", ""),
		DocumentID:        docID,
		QueryText:         text,
		QueryType:         getStringDefault(args, "query_type", "text"),
		ResultSection:     getStringDefault(args, "result_section", ""),
		ResultTitle:       getStringDefault(args, "result_title", ""),
		ResultPage:        getIntDefault(args, "result_page", 0),
		ResultFound:       getBoolDefault(args, "result_found", false),
		AlternativesCount: getIntDefault(args, "alternatives_count", 0),
	}
	if entry.QueryID == "" {
		entry.QueryID = uuid.NewString()
	}
	if ts := getStringDefault(args, "timestamp", ""); ts != "" {
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "timestamp must be RFC 3339", map[string]interface{}{
				"param": "timestamp",
				"value": ts,
			})
		}
		entry.Timestamp = parsed
	}

	if _, err := s.storage.GetDocument(ctx, docID); err != nil {
		return nil, toolError("failed to get document", err)
	}
	if err := s.storage.InsertQueryLog(ctx, entry); err != nil {
		return nil, toolError("failed to log query", err)
	}

	response := map[string]interface{}{
		"success":  true,
		"id":       entry.ID,
		"query_id": entry.QueryID,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	var ids []int64
	_, single := args["document_id"]
	if single {
		docID, err := requireDocumentID(args)
		if err != nil {
			return nil, err
		}
		ids = []int64{docID}
	} else {
		docs, err := s.storage.ListDocuments(ctx)
		if err != nil {
			return nil, toolError("failed to list documents", err)
		}
		for _, d := range docs {
			ids = append(ids, d.ID)
		}
	}

	documents := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		status, err := s.storage.GetDocumentStatus(ctx, id)
		if err != nil {
			return nil, toolError("failed to get status", err)
		}
		documents = append(documents, s.formatStatus(ctx, status, single))
	}

	response := map[string]interface{}{
		"server": map[string]interface{}{
			"name":     ServerName,
			"version":  ServerVersion,
			"indexing": s.indexer.Busy(),
		},
		"embedder":  s.embedderStatus(),
		"documents": documents,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

func (s *Server) formatStatus(ctx context.Context, status *storage.DocumentStatus, withQueries bool) map[string]interface{} {
	out := map[string]interface{}{
		"document":         formatDocument(&status.Document),
		"total_entries":    status.TotalEntries,
		"embedded_entries": status.EmbeddedEntries,
		"fully_embedded":   status.Embedded(),
		"pages":            status.Pages,
		"query_count":      status.QueryCount,
		"models":           status.Models,
		"index_size_mb":    fmt.Sprintf("%.2f", status.IndexSizeMB),
		"build_mode":       status.BuildMode,
	}
	if !status.LastQueryAt.IsZero() {
		out["last_query_at"] = status.LastQueryAt.Format(time.RFC3339)
	}

	if withQueries {
		logs, err := s.storage.ListQueryLogs(ctx, status.Document.ID, recentQueryLogs)
		if err != nil {
			s.log.Warn().Err(err).Int64("document_id", status.Document.ID).Msg("query logs unavailable")
			return out
		}
		recent := make([]map[string]interface{}, len(logs))
		for i, l := range logs {
			recent[i] = map[string]interface{}{
				"query_id":       l.QueryID,
				"query_text":     l.QueryText,
				"query_type":     l.QueryType,
				"result_section": l.ResultSection,
				"result_found":   l.ResultFound,
				"timestamp":      l.Timestamp.Format(time.RFC3339),
			}
		}
		out["recent_queries"] = recent
	}
	return out
}

func (s *Server) embedderStatus() map[string]interface{} {
	if s.embedder == nil {
		return map[string]interface{}{"available": false}
	}
	return map[string]interface{}{
		"available": true,
		"provider":  s.embedder.Provider(),
		"model":     s.embedder.Model(),
		"dimension": s.embedder.Dimension(),
	}
}

// Formatting

func formatDocument(d *types.Document) map[string]interface{} {
	return map[string]interface{}{
		"id":              d.ID,
		"title":           d.Title,
		"document_type":   d.DocumentType,
		"pdf_page_offset": d.PDFPageOffset,
	}
}

func formatEntry(e *types.TocEntry, doc *types.Document) map[string]interface{} {
	return map[string]interface{}{
		"id":             e.ID,
		"section_number": e.SectionNumber,
		"title":          e.Title,
		"full_path":      e.FullPath,
		"level":          e.Level,
		"page":           e.DocumentPage,
		"pdf_page":       doc.PDFPage(e.DocumentPage),
	}
}

func formatResult(r *types.ScoredResult, doc *types.Document) map[string]interface{} {
	out := formatEntry(&r.Entry, doc)
	out["rank"] = r.Rank
	out["score"] = roundScore(r.Score)
	out["keyword_score"] = roundScore(r.KeywordScore)
	out["semantic_score"] = roundScore(r.SemanticScore)
	out["match_count"] = r.MatchCount
	return out
}

func formatResults(results []types.ScoredResult, doc *types.Document) []map[string]interface{} {
	out := make([]map[string]interface{}, len(results))
	for i := range results {
		out[i] = formatResult(&results[i], doc)
	}
	return out
}

func formatPassages(passages []types.Passage, doc *types.Document) []map[string]interface{} {
	out := make([]map[string]interface{}, len(passages))
	for i, p := range passages {
		out[i] = map[string]interface{}{
			"id":              p.ID,
			"section_number":  p.SectionNumber,
			"section_title":   p.SectionTitle,
			"page":            p.Page,
			"pdf_page":        doc.PDFPage(p.Page),
			"content":         p.Content,
			"similarity":      roundScore(p.Similarity),
			"relevance_score": roundScore(p.RelevanceScore),
		}
	}
	return out
}

func searchMeta(resp *searcher.SearchResponse) map[string]interface{} {
	meta := map[string]interface{}{
		"mode":             resp.Mode,
		"total_entries":    resp.Stats.TotalEntries,
		"embedded_entries": resp.Stats.EmbeddedEntries,
		"used_embeddings":  resp.Stats.UsedEmbeddings,
		"keyword_count":    resp.Stats.KeywordCount,
		"above_threshold":  resp.Stats.AboveThreshold,
		"fallback":         resp.Fallback,
		"cache_hit":        resp.CacheHit,
		"duration_ms":      resp.Duration.Milliseconds(),
		"top":              0.0,
	}
	if resp.Selection != nil {
		meta["top"] = roundScore(resp.Selection.Score)
	}
	return meta
}

// roundScore keeps four decimals so responses stay readable
func roundScore(v float64) float64 {
	return float64(int64(v*10000+0.5)) / 10000
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// toolError maps a domain error onto an MCP error code
func toolError(message string, err error) error {
	data := map[string]interface{}{"error": err.Error()}

	switch {
	case errors.Is(err, storage.ErrNotFound):
		return newMCPError(ErrorCodeDocumentNotFound, "document not found", data)
	case errors.Is(err, searcher.ErrEmptyQuery):
		return newMCPError(ErrorCodeEmptyQuery, "query cannot be empty", data)
	case errors.Is(err, indexer.ErrIndexInProgress):
		return newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", data)
	case errors.Is(err, indexer.ErrNoEmbedder):
		return newMCPError(ErrorCodeEmbeddingUnavailable, "no embedding provider configured", data)
	case errors.Is(err, searcher.ErrInvalidDocument),
		errors.Is(err, searcher.ErrInvalidMode),
		errors.Is(err, searcher.ErrInvalidLimit),
		errors.Is(err, indexer.ErrInvalidTOC),
		errors.Is(err, storage.ErrInvalidArgument):
		return newMCPError(ErrorCodeInvalidParams, message, data)
	default:
		return newMCPError(ErrorCodeInternalError, message, data)
	}
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}
