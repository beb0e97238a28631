// Package mcp implements the Model Context Protocol (MCP) server for regs.
//
// The server exposes regulation lookup to MCP clients over stdio:
//   - list_documents: List the imported documents
//   - get_toc: Return a document's table of contents in page order
//   - search_toc: Rank TOC sections for a query (hybrid or keyword)
//   - search_expanded: Run several phrasings of one question and merge the hits
//   - search_documents: Search several documents at once
//   - get_reference_content: Return stored page text around a page
//   - extract_references: Find page and table citations in answer text
//   - import_toc: Import a TOC file
//   - embed_toc: Embed a document's TOC entries
//   - log_query: Record a query and what the user selected
//   - get_status: Report index and embedding status
//
// # Tool: search_toc
//
//	Request:
//	{
//	  "name": "search_toc",
//	  "arguments": {
//	    "document_id": 1,
//	    "query": "rcd bathroom",
//	    "mode": "hybrid"
//	  }
//	}
//
//	Response:
//	{
//	  "selection": {
//	    "section_number": "6.2.4.2",
//	    "title": "Selection and installation",
//	    "page": 320,
//	    "pdf_page": 324,
//	    "score": 812.4
//	  },
//	  "alternatives": [...],
//	  "auto_open": true,
//	  "meta": {
//	    "total_entries": 1412,
//	    "used_embeddings": true,
//	    "keyword_count": 2
//	  }
//	}
//
// An empty result list is not an error: selection is null and the response
// carries "No matches found".
//
// # Error Codes
//
//	-32602  Invalid parameters
//	-32603  Internal error
//	-32001  Embeddings unavailable (no embedding provider)
//	-32002  Import or embedding already running
//	-32003  Document not found
//	-32004  Empty query
package mcp
