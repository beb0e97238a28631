// Package types provides shared type definitions for the regs MCP server.
//
// TocEntry is one section, clause or table heading of a regulation document
// such as AS/NZS 3000. Entries carry an optional embedding that is filled in
// by the batch embedding job:
//
//	entry := types.TocEntry{
//	    SectionNumber: "6.2.2",
//	    Title:         "Classification of zones",
//	    DocumentPage:  317,
//	    Level:         3,
//	}
//
// ScoredResult is produced per query by the ranker and never persisted.
// Score is on a 0-1000 display scale; KeywordScore and SemanticScore are the
// [0, 1] components it was built from.
//
// Passage and PageReference support the answer path: passages are page-level
// hits re-ranked by the clause post-processor, page references are citations
// scanned out of generated answers.
package types
