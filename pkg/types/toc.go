package types

import (
	"strings"
)

// TocEntry is one indexed section, clause or table of a regulation document
type TocEntry struct {
	// Identification
	ID         int64  // Opaque, unique within a document
	DocumentID int64  // Owning document
	Key        string // Stable external key from the bootstrap file (optional)

	// Heading
	SectionNumber string // Dotted hierarchical number, e.g. "6.2.4.2"
	Title         string
	FullPath      string // Ancestor numbers/titles joined, may be empty

	// Location
	DocumentPage int // Logical page; physical page = DocumentPage + document offset
	Level        int // Nesting depth, 1 = top section

	// Embedding is nil until the batch embedding job has run for this entry
	Embedding []float32
}

// HasEmbedding reports whether the entry carries a usable vector
func (e *TocEntry) HasEmbedding() bool {
	return len(e.Embedding) > 0
}

// EmbeddingText is the text embedded for semantic matching of this entry
func (e *TocEntry) EmbeddingText() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{e.SectionNumber, e.Title, e.FullPath} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Validate checks the fields required to persist an entry
func (e *TocEntry) Validate() error {
	if strings.TrimSpace(e.SectionNumber) == "" {
		return ErrEmptySectionNumber
	}
	if strings.TrimSpace(e.Title) == "" {
		return ErrEmptyTitle
	}
	if e.DocumentPage < 0 {
		return ErrInvalidPage
	}
	if e.Level < 0 {
		return ErrInvalidLevel
	}
	return nil
}

// ParentSection returns the section number one level up, or "" for a top section.
// "6.2.4" -> "6.2", "6" -> "".
func ParentSection(section string) string {
	i := strings.LastIndex(section, ".")
	if i <= 0 {
		return ""
	}
	return section[:i]
}

// SectionDepth returns the nesting depth implied by a dotted section number
func SectionDepth(section string) int {
	section = strings.Trim(strings.TrimSpace(section), ".")
	if section == "" {
		return 0
	}
	return strings.Count(section, ".") + 1
}

// Document is a regulation document whose TOC can be searched
type Document struct {
	ID            int64
	Title         string
	DocumentType  string // Standard code, e.g. "AS/NZS 3000:2018"
	PDFPageOffset int    // Added to a logical page to get the physical PDF page
}

// PDFPage converts a logical document page to the physical PDF page
func (d *Document) PDFPage(documentPage int) int {
	return documentPage + d.PDFPageOffset
}
