package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"

	"github.com/dshills/regs-mcp/internal/embedder"
	"github.com/dshills/regs-mcp/internal/indexer"
	"github.com/dshills/regs-mcp/internal/metrics"
	"github.com/dshills/regs-mcp/internal/searcher"
	"github.com/dshills/regs-mcp/internal/storage"
)

const wiringTOC = `
document:
  title: Wiring Rules
  type: AS/NZS 3000:2018
  pdf_page_offset: 4
entries:
  - section: "2.6"
    title: RCD protection
    page: 50
  - section: "2.6.3"
    title: Additional protection by RCDs in bathrooms
    page: 52
  - section: "3"
    title: Selection and installation of wiring systems
    page: 100
  - section: "3.9"
    title: Cable installation methods
    page: 120
pages:
  - page: 54
    content: RCD protection shall be provided for final subcircuits.
  - page: 56
    content: Bathrooms need additional protection, see Table 2.6 on page 52.
  - page: 124
    content: Cables shall be installed in conduit.
`

// MCPTestSuite exercises the tool handlers against an in-memory store
type MCPTestSuite struct {
	suite.Suite
	ctx     context.Context
	store   *storage.SQLiteStorage
	metrics *metrics.Metrics
	server  *Server
}

func (s *MCPTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.server, s.store, s.metrics = s.newServer(true)
}

func (s *MCPTestSuite) TearDownTest() {
	_ = s.store.Close()
}

func (s *MCPTestSuite) newServer(withEmbedder bool) (*Server, *storage.SQLiteStorage, *metrics.Metrics) {
	store, err := storage.NewSQLiteStorage(":memory:")
	s.Require().NoError(err)

	m := metrics.New(nil)
	var emb embedder.Embedder
	if withEmbedder {
		client, err := embedder.New(embedder.Config{Provider: embedder.ProviderLocal, Logger: zerolog.Nop()})
		s.Require().NoError(err)
		emb = client
	}

	srv, err := NewServer(Deps{
		Storage:  store,
		Embedder: emb,
		Indexer:  indexer.New(store, emb, indexer.Config{Logger: zerolog.Nop()}),
		Searcher: searcher.New(store, emb, searcher.Config{Logger: zerolog.Nop(), Metrics: m}),
		Metrics:  m,
		Logger:   zerolog.Nop(),
	})
	s.Require().NoError(err)
	return srv, store, m
}

// call invokes a handler and decodes its JSON text result
func (s *MCPTestSuite) call(h server.ToolHandlerFunc, args map[string]interface{}) (map[string]interface{}, error) {
	request := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
	result, err := h(s.ctx, request)
	if err != nil {
		return nil, err
	}
	s.Require().Len(result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	s.Require().True(ok, "result should be text content")

	var out map[string]interface{}
	s.Require().NoError(json.Unmarshal([]byte(text.Text), &out))
	return out, nil
}

func (s *MCPTestSuite) requireCode(err error, code int) {
	var mcpErr *MCPError
	s.Require().ErrorAs(err, &mcpErr)
	s.Equal(code, mcpErr.Code, mcpErr.Message)
}

// importWiring imports the fixture TOC and returns its document id
func (s *MCPTestSuite) importWiring() float64 {
	out, err := s.call(s.server.handleImportToc, map[string]interface{}{"content": wiringTOC})
	s.Require().NoError(err)
	s.Equal(true, out["imported"])
	s.Equal(float64(4), out["entries_imported"])
	s.Equal(float64(3), out["pages_imported"])
	return out["document_id"].(float64)
}

func sectionOf(v interface{}) string {
	return v.(map[string]interface{})["section_number"].(string)
}

func (s *MCPTestSuite) TestToolsRegistered() {
	msg := s.server.MCPServer().HandleMessage(s.ctx, []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, err := json.Marshal(msg)
	s.Require().NoError(err)

	var resp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	s.Require().NoError(json.Unmarshal(raw, &resp))

	names := make([]string, len(resp.Result.Tools))
	for i, t := range resp.Result.Tools {
		names[i] = t.Name
	}
	s.ElementsMatch([]string{
		"list_documents", "get_toc", "search_toc", "search_expanded", "search_documents",
		"get_reference_content", "extract_references", "import_toc", "embed_toc",
		"log_query", "get_status",
	}, names)
}

func (s *MCPTestSuite) TestImportAndGetToc() {
	docID := s.importWiring()

	out, err := s.call(s.server.handleGetToc, map[string]interface{}{"document_id": docID})
	s.Require().NoError(err)

	doc := out["document"].(map[string]interface{})
	s.Equal("Wiring Rules", doc["title"])
	s.Equal(float64(4), doc["pdf_page_offset"])

	toc := out["toc"].([]interface{})
	s.Require().Len(toc, 4)
	first := toc[0].(map[string]interface{})
	s.Equal("2.6", first["section_number"])
	s.Equal(float64(50), first["page"])
	s.Equal(float64(54), first["pdf_page"])
	s.Equal(false, first["embedded"])
	s.Equal("RCD protection", toc[1].(map[string]interface{})["full_path"])

	docs, err := s.call(s.server.handleListDocuments, nil)
	s.Require().NoError(err)
	s.Len(docs["documents"], 1)
}

func (s *MCPTestSuite) TestImportFromPath() {
	path := filepath.Join(s.T().TempDir(), "toc.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(wiringTOC), 0o600))

	out, err := s.call(s.server.handleImportToc, map[string]interface{}{"path": path})
	s.Require().NoError(err)
	s.Equal(float64(4), out["entries_imported"])

	// Re-importing into the same document with replace drops the old entries first
	reimport := strings.Replace(wiringTOC, "document:\n", "document:\n  id: 1\n", 1)
	s.Require().NoError(os.WriteFile(path, []byte(reimport), 0o600))
	out, err = s.call(s.server.handleImportToc, map[string]interface{}{"path": path, "replace": true})
	s.Require().NoError(err)
	s.Equal(float64(1), out["document_id"])
	s.Equal(float64(4), out["entries_removed"])
	s.Equal(float64(4), out["entries_imported"])
}

func (s *MCPTestSuite) TestImportErrors() {
	_, err := s.call(s.server.handleImportToc, map[string]interface{}{})
	s.requireCode(err, ErrorCodeInvalidParams)

	_, err = s.call(s.server.handleImportToc, map[string]interface{}{"path": "a.yaml", "content": wiringTOC})
	s.requireCode(err, ErrorCodeInvalidParams)

	_, err = s.call(s.server.handleImportToc, map[string]interface{}{"content": "document: [unclosed"})
	s.requireCode(err, ErrorCodeInvalidParams)

	_, err = s.call(s.server.handleImportToc, map[string]interface{}{"path": filepath.Join(s.T().TempDir(), "missing.yaml")})
	s.requireCode(err, ErrorCodeInvalidParams)
}

func (s *MCPTestSuite) TestSearchToc() {
	docID := s.importWiring()

	out, err := s.call(s.server.handleSearchToc, map[string]interface{}{
		"document_id": docID,
		"query":       "rcd",
	})
	s.Require().NoError(err)

	// 2.6.3 also matches "rcd" through its full path
	s.Equal("2.6.3", sectionOf(out["selection"]))
	selection := out["selection"].(map[string]interface{})
	s.Equal(float64(56), selection["pdf_page"])
	s.Equal(float64(1), selection["rank"])
	s.InDelta(570.0/1500*1000, selection["score"].(float64), 1e-3)

	alts := out["alternatives"].([]interface{})
	s.Require().Len(alts, 1)
	s.Equal("2.6", sectionOf(alts[0]))
	s.Equal(true, out["auto_open"])
	s.Nil(out["message"])

	meta := out["meta"].(map[string]interface{})
	s.Equal(float64(4), meta["total_entries"])
	s.Equal(false, meta["used_embeddings"])
	s.Equal(false, meta["fallback"])
	s.Equal(float64(1), meta["keyword_count"])
}

func (s *MCPTestSuite) TestSearchTocNoMatch() {
	docID := s.importWiring()

	out, err := s.call(s.server.handleSearchToc, map[string]interface{}{
		"document_id": docID,
		"query":       "earthing electrode",
	})
	s.Require().NoError(err)
	s.Nil(out["selection"])
	s.Empty(out["alternatives"])
	s.Equal(false, out["auto_open"])
	s.Equal(noMatchMessage, out["message"])
}

func (s *MCPTestSuite) TestSearchTocErrors() {
	docID := s.importWiring()

	tests := []struct {
		name string
		args map[string]interface{}
		code int
	}{
		{"missing query", map[string]interface{}{"document_id": docID}, ErrorCodeEmptyQuery},
		{"blank query", map[string]interface{}{"document_id": docID, "query": "   "}, ErrorCodeEmptyQuery},
		{"missing document", map[string]interface{}{"query": "rcd"}, ErrorCodeInvalidParams},
		{"bad document id", map[string]interface{}{"document_id": "abc", "query": "rcd"}, ErrorCodeInvalidParams},
		{"negative document id", map[string]interface{}{"document_id": -3, "query": "rcd"}, ErrorCodeInvalidParams},
		{"unknown document", map[string]interface{}{"document_id": 999, "query": "rcd"}, ErrorCodeDocumentNotFound},
		{"bad mode", map[string]interface{}{"document_id": docID, "query": "rcd", "mode": "vector"}, ErrorCodeInvalidParams},
		{"limit too large", map[string]interface{}{"document_id": docID, "query": "rcd", "limit": 50}, ErrorCodeInvalidParams},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.call(s.server.handleSearchToc, tt.args)
			s.requireCode(err, tt.code)
		})
	}

	_, err := s.call(s.server.handleSearchToc, nil)
	s.requireCode(err, ErrorCodeInvalidParams)

	request := mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: "not a map"}}
	_, err = s.server.handleSearchToc(s.ctx, request)
	s.requireCode(err, ErrorCodeInvalidParams)
}

func (s *MCPTestSuite) TestSearchTocPassages() {
	docID := s.importWiring()

	out, err := s.call(s.server.handleSearchToc, map[string]interface{}{
		"document_id":      docID,
		"query":            "rcd protection",
		"include_passages": true,
	})
	s.Require().NoError(err)

	passages := out["passages"].([]interface{})
	s.Require().NotEmpty(passages)
	top := passages[0].(map[string]interface{})
	s.Contains(top["content"], "RCD protection")
	s.Equal(float64(54), top["pdf_page"])
	s.LessOrEqual(top["relevance_score"].(float64), 1.0)
}

func (s *MCPTestSuite) TestSearchExpanded() {
	docID := s.importWiring()

	out, err := s.call(s.server.handleSearchExpanded, map[string]interface{}{
		"document_id": docID,
		"queries":     []interface{}{"bathrooms", "cable installation"},
	})
	s.Require().NoError(err)

	sections := out["sections"].([]interface{})
	s.Require().Len(sections, 3)
	found := make(map[string]string)
	for _, sec := range sections {
		m := sec.(map[string]interface{})
		found[m["section_number"].(string)] = m["found_by"].(string)
	}
	s.Equal("bathrooms", found["2.6.3"])
	s.Equal("cable installation", found["3.9"])
	s.Equal("cable installation", found["3"])

	_, err = s.call(s.server.handleSearchExpanded, map[string]interface{}{"document_id": docID, "queries": []interface{}{}})
	s.requireCode(err, ErrorCodeEmptyQuery)

	_, err = s.call(s.server.handleSearchExpanded, map[string]interface{}{"document_id": docID, "queries": []interface{}{" "}})
	s.requireCode(err, ErrorCodeEmptyQuery)
}

func (s *MCPTestSuite) TestSearchDocuments() {
	first := s.importWiring()
	out, err := s.call(s.server.handleImportToc, map[string]interface{}{"content": `
document:
  title: Building Code
  type: NZBC
entries:
  - section: G1
    title: Personal hygiene
    page: 10
`})
	s.Require().NoError(err)
	second := out["document_id"].(float64)

	out, err = s.call(s.server.handleSearchDocuments, map[string]interface{}{
		"document_ids": []interface{}{first, second},
		"query":        "hygiene",
	})
	s.Require().NoError(err)
	results := out["results"].([]interface{})
	s.Require().Len(results, 1)
	s.Equal(second, results[0].(map[string]interface{})["document_id"])
	s.Equal("Building Code", results[0].(map[string]interface{})["document_title"])

	_, err = s.call(s.server.handleSearchDocuments, map[string]interface{}{"document_ids": []interface{}{}, "query": "x"})
	s.requireCode(err, ErrorCodeInvalidParams)

	_, err = s.call(s.server.handleSearchDocuments, map[string]interface{}{"document_ids": []interface{}{first, 999}, "query": "rcd"})
	s.requireCode(err, ErrorCodeDocumentNotFound)
}

func (s *MCPTestSuite) TestGetReferenceContent() {
	docID := s.importWiring()

	out, err := s.call(s.server.handleGetReferenceContent, map[string]interface{}{"document_id": docID, "page": 54})
	s.Require().NoError(err)
	items := out["items"].([]interface{})
	s.Require().Len(items, 2)
	s.Equal(float64(54), items[0].(map[string]interface{})["page_number"])
	s.Equal(float64(50), items[0].(map[string]interface{})["document_page"])
	s.Equal(float64(56), items[1].(map[string]interface{})["page_number"])
	meta := out["meta"].(map[string]interface{})
	s.Equal(float64(2), meta["pad"])
	s.Equal(float64(2), meta["count"])

	// Printed page numbers are found through the document page fallback
	out, err = s.call(s.server.handleGetReferenceContent, map[string]interface{}{"document_id": docID, "page": 120, "pad": 0})
	s.Require().NoError(err)
	items = out["items"].([]interface{})
	s.Require().Len(items, 1)
	s.Equal(float64(124), items[0].(map[string]interface{})["page_number"])

	out, err = s.call(s.server.handleGetReferenceContent, map[string]interface{}{"document_id": docID, "page": 400})
	s.Require().NoError(err)
	s.Empty(out["items"])

	_, err = s.call(s.server.handleGetReferenceContent, map[string]interface{}{"document_id": docID})
	s.requireCode(err, ErrorCodeInvalidParams)
	_, err = s.call(s.server.handleGetReferenceContent, map[string]interface{}{"document_id": docID, "page": 5, "pad": 11})
	s.requireCode(err, ErrorCodeInvalidParams)
	_, err = s.call(s.server.handleGetReferenceContent, map[string]interface{}{"document_id": 999, "page": 5})
	s.requireCode(err, ErrorCodeDocumentNotFound)
}

func (s *MCPTestSuite) TestExtractReferences() {
	docID := s.importWiring()

	out, err := s.call(s.server.handleExtractReferences, map[string]interface{}{
		"text":        "See Table 2.6 on page 52, and page 50 for the general rule.",
		"document_id": docID,
	})
	s.Require().NoError(err)

	found := out["references"].([]interface{})
	s.Require().Len(found, 2)
	first := found[0].(map[string]interface{})
	s.Equal(float64(52), first["page"])
	s.Equal("table", first["type"])
	s.Equal(float64(56), first["pdf_page"])
	s.Equal("page", found[1].(map[string]interface{})["type"])

	out, err = s.call(s.server.handleExtractReferences, map[string]interface{}{"text": "pg. 7"})
	s.Require().NoError(err)
	ref := out["references"].([]interface{})[0].(map[string]interface{})
	s.Equal(float64(7), ref["page"])
	s.Nil(ref["pdf_page"])

	_, err = s.call(s.server.handleExtractReferences, map[string]interface{}{"text": ""})
	s.requireCode(err, ErrorCodeInvalidParams)
}

func (s *MCPTestSuite) TestEmbedTocEnablesHybrid() {
	docID := s.importWiring()
	args := map[string]interface{}{"document_id": docID, "query": "rcd"}

	before, err := s.call(s.server.handleSearchToc, args)
	s.Require().NoError(err)
	s.Equal(false, before["meta"].(map[string]interface{})["used_embeddings"])

	out, err := s.call(s.server.handleEmbedToc, map[string]interface{}{"document_id": docID})
	s.Require().NoError(err)
	s.Equal(float64(4), out["embedded"])
	s.Equal(float64(0), out["failed"])
	s.Equal(embedder.ProviderLocal, out["provider"])

	// Embedding purges the response cache
	after, err := s.call(s.server.handleSearchToc, args)
	s.Require().NoError(err)
	meta := after["meta"].(map[string]interface{})
	s.Equal(false, meta["cache_hit"])
	s.Equal(true, meta["used_embeddings"])
	s.Equal(float64(4), meta["embedded_entries"])
	s.NotNil(after["selection"])

	again, err := s.call(s.server.handleEmbedToc, map[string]interface{}{"document_id": docID})
	s.Require().NoError(err)
	s.Equal(float64(4), again["skipped"])

	toc, err := s.call(s.server.handleGetToc, map[string]interface{}{"document_id": docID})
	s.Require().NoError(err)
	s.Equal(true, toc["toc"].([]interface{})[0].(map[string]interface{})["embedded"])
}

func (s *MCPTestSuite) TestEmbedTocWithoutEmbedder() {
	srv, store, _ := s.newServer(false)
	defer func() { _ = store.Close() }()

	out, err := s.call(srv.handleImportToc, map[string]interface{}{"content": wiringTOC})
	s.Require().NoError(err)

	_, err = s.call(srv.handleEmbedToc, map[string]interface{}{"document_id": out["document_id"]})
	s.requireCode(err, ErrorCodeEmbeddingUnavailable)

	status, err := s.call(srv.handleGetStatus, nil)
	s.Require().NoError(err)
	s.Equal(false, status["embedder"].(map[string]interface{})["available"])
}

func (s *MCPTestSuite) TestLogQueryAndStatus() {
	docID := s.importWiring()

	out, err := s.call(s.server.handleLogQuery, map[string]interface{}{
		"document_id":        docID,
		"query_text":         "rcd in bathrooms",
		"query_type":         "voice",
		"result_section":     "2.6.3",
		"result_title":       "Additional protection by RCDs in bathrooms",
		"result_page":        52,
		"result_found":       true,
		"alternatives_count": 1,
		"timestamp":          "2025-03-01T09:30:00Z",
	})
	s.Require().NoError(err)
	s.Equal(true, out["success"])
	s.Len(out["query_id"], 36, "generated query ids are UUIDs")

	out, err = s.call(s.server.handleLogQuery, map[string]interface{}{
		"document_id": docID,
		"query_text":  "switchboard",
		"query_id":    "client-1",
	})
	s.Require().NoError(err)
	s.Equal("client-1", out["query_id"])

	status, err := s.call(s.server.handleGetStatus, map[string]interface{}{"document_id": docID})
	s.Require().NoError(err)

	docs := status["documents"].([]interface{})
	s.Require().Len(docs, 1)
	doc := docs[0].(map[string]interface{})
	s.Equal(float64(4), doc["total_entries"])
	s.Equal(float64(0), doc["embedded_entries"])
	s.Equal(false, doc["fully_embedded"])
	s.Equal(float64(3), doc["pages"])
	s.Equal(float64(2), doc["query_count"])
	s.Len(doc["recent_queries"], 2)

	embedderStatus := status["embedder"].(map[string]interface{})
	s.Equal(true, embedderStatus["available"])
	s.Equal(embedder.ProviderLocal, embedderStatus["provider"])
	s.Equal(false, status["server"].(map[string]interface{})["indexing"])

	all, err := s.call(s.server.handleGetStatus, map[string]interface{}{})
	s.Require().NoError(err)
	s.Len(all["documents"], 1)
	s.Nil(all["documents"].([]interface{})[0].(map[string]interface{})["recent_queries"])
}

func (s *MCPTestSuite) TestLogQueryErrors() {
	docID := s.importWiring()

	_, err := s.call(s.server.handleLogQuery, map[string]interface{}{"document_id": docID, "query_text": " "})
	s.requireCode(err, ErrorCodeEmptyQuery)

	_, err = s.call(s.server.handleLogQuery, map[string]interface{}{
		"document_id": docID,
		"query_text":  "rcd",
		"timestamp":   "yesterday",
	})
	s.requireCode(err, ErrorCodeInvalidParams)

	_, err = s.call(s.server.handleLogQuery, map[string]interface{}{"document_id": 999, "query_text": "rcd"})
	s.requireCode(err, ErrorCodeDocumentNotFound)
}

func (s *MCPTestSuite) TestToolMetrics() {
	docID := s.importWiring()
	h := s.server.instrument("search_toc", s.server.handleSearchToc)

	_, err := s.call(h, map[string]interface{}{"document_id": docID, "query": "rcd"})
	s.Require().NoError(err)
	_, err = s.call(h, map[string]interface{}{"document_id": docID, "query": ""})
	s.Require().Error(err)

	s.Equal(1.0, testutil.ToFloat64(s.metrics.ToolCallsTotal.WithLabelValues("search_toc", metrics.StatusSuccess)))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ToolCallsTotal.WithLabelValues("search_toc", metrics.StatusError)))
	s.Equal(0.0, testutil.ToFloat64(s.metrics.ToolCallsInFlight))
}

func (s *MCPTestSuite) TestNewServerRequiresDeps() {
	_, err := NewServer(Deps{})
	s.Error(err)
}

func TestMCPTestSuite(t *testing.T) {
	suite.Run(t, new(MCPTestSuite))
}
