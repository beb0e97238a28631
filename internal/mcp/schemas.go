package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/regs-mcp/internal/searcher"
)

func documentIDProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": "Document ID (see list_documents)",
		"minimum":     1,
	}
}

func modeProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Ranking mode: hybrid (keyword + semantic when embeddings exist) or keyword",
		"enum":        []string{"hybrid", "keyword"},
		"default":     "hybrid",
	}
}

// listDocumentsTool returns the tool definition for list_documents
func listDocumentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_documents",
		Description: "List imported regulation documents",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// getTocTool returns the tool definition for get_toc
func getTocTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_toc",
		Description: "Return a document's table of contents ordered by page",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"document_id": documentIDProperty(),
			},
			Required: []string{"document_id"},
		},
	}
}

// searchTocTool returns the tool definition for search_toc
func searchTocTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_toc",
		Description: "Find the table-of-contents sections of a regulation that best match a query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"document_id": documentIDProperty(),
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Section number, clause title or plain-language question",
				},
				"mode": modeProperty(),
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results (1-20)",
					"default":     20,
					"minimum":     1,
					"maximum":     20,
				},
				"use_cache": map[string]interface{}{
					"type":        "boolean",
					"description": "Serve repeated queries from the response cache",
					"default":     true,
				},
				"include_passages": map[string]interface{}{
					"type":        "boolean",
					"description": "Also return re-ranked page passages around the top sections",
					"default":     false,
				},
			},
			Required: []string{"document_id", "query"},
		},
	}
}

// searchExpandedTool returns the tool definition for search_expanded
func searchExpandedTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_expanded",
		Description: "Search several phrasings of one question and merge the top hits of each",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"document_id": documentIDProperty(),
				"queries": map[string]interface{}{
					"type":        "array",
					"description": "Alternative phrasings of the question",
					"items":       map[string]interface{}{"type": "string"},
					"minItems":    1,
					"maxItems":    searcher.MaxPhrasings,
				},
				"mode": modeProperty(),
			},
			Required: []string{"document_id", "queries"},
		},
	}
}

// searchDocumentsTool returns the tool definition for search_documents
func searchDocumentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_documents",
		Description: "Search several documents at once and merge the results by score",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"document_ids": map[string]interface{}{
					"type":        "array",
					"description": "Documents to search",
					"items":       map[string]interface{}{"type": "integer"},
					"minItems":    1,
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Section number, clause title or plain-language question",
				},
				"mode": modeProperty(),
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of merged results (1-20)",
					"default":     20,
					"minimum":     1,
					"maximum":     20,
				},
			},
			Required: []string{"document_ids", "query"},
		},
	}
}

// getReferenceContentTool returns the tool definition for get_reference_content
func getReferenceContentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_reference_content",
		Description: "Return stored page text in a window around a page",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"document_id": documentIDProperty(),
				"page": map[string]interface{}{
					"type":        "integer",
					"description": "PDF page number; falls back to the printed document page when no PDF page matches",
					"minimum":     1,
				},
				"pad": map[string]interface{}{
					"type":        "integer",
					"description": "Pages to include on each side",
					"default":     searcher.DefaultReferencePad,
					"minimum":     0,
					"maximum":     maxPad,
				},
			},
			Required: []string{"document_id", "page"},
		},
	}
}

// extractReferencesTool returns the tool definition for extract_references
func extractReferencesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "extract_references",
		Description: "Find page and table citations in answer text",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Answer text citing pages, e.g. \"see Table 3.2 on page 87\"",
				},
				"document_id": map[string]interface{}{
					"type":        "integer",
					"description": "Optional document whose PDF page offset is applied",
					"minimum":     1,
				},
			},
			Required: []string{"text"},
		},
	}
}

// importTocTool returns the tool definition for import_toc
func importTocTool() mcp.Tool {
	return mcp.Tool{
		Name:        "import_toc",
		Description: "Import a table of contents from a YAML or JSON file, or from inline content",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Path to a TOC file",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "TOC file content, used instead of path",
				},
				"replace": map[string]interface{}{
					"type":        "boolean",
					"description": "Delete the document's existing entries first",
					"default":     false,
				},
			},
		},
	}
}

// embedTocTool returns the tool definition for embed_toc
func embedTocTool() mcp.Tool {
	return mcp.Tool{
		Name:        "embed_toc",
		Description: "Generate embeddings for a document's TOC entries",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"document_id": documentIDProperty(),
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "Discard stored embeddings and embed every entry again",
					"default":     false,
				},
			},
			Required: []string{"document_id"},
		},
	}
}

// logQueryTool returns the tool definition for log_query
func logQueryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "log_query",
		Description: "Record a query and the section it resolved to",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"document_id": documentIDProperty(),
				"query_text": map[string]interface{}{
					"type":        "string",
					"description": "The query as the user typed or spoke it",
				},
				"query_type": map[string]interface{}{
					"type":        "string",
					"description": "How the query was made, e.g. text or voice",
					"default":     "text",
				},
				"query_id": map[string]interface{}{
					"type":        "string",
					"description": "Client query ID; generated when omitted",
				},
				"timestamp": map[string]interface{}{
					"type":        "string",
					"description": "RFC 3339 time the query was made; defaults to now",
				},
				"result_section": map[string]interface{}{"type": "string"},
				"result_title":   map[string]interface{}{"type": "string"},
				"result_page":    map[string]interface{}{"type": "integer"},
				"result_found":   map[string]interface{}{"type": "boolean"},
				"alternatives_count": map[string]interface{}{
					"type":    "integer",
					"minimum": 0,
				},
			},
			Required: []string{"document_id", "query_text"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report index and embedding status for one document or all of them",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"document_id": map[string]interface{}{
					"type":        "integer",
					"description": "Optional document ID; omit for every document",
					"minimum":     1,
				},
			},
		},
	}
}
