package indexer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dshills/regs-mcp/pkg/types"
)

// ErrInvalidTOC is returned for TOC files that cannot be imported
var ErrInvalidTOC = errors.New("invalid toc file")

// FullPathSeparator joins ancestor titles in derived full paths
const FullPathSeparator = " > "

// TocFile is the bootstrap format for one document
type TocFile struct {
	Document DocumentSpec `yaml:"document"`
	Entries  []EntrySpec  `yaml:"entries"`
	Pages    []PageSpec   `yaml:"pages"`
}

// DocumentSpec describes the document being imported. ID 0 creates a new document.
type DocumentSpec struct {
	ID            int64  `yaml:"id"`
	Title         string `yaml:"title"`
	Type          string `yaml:"type"`
	PDFPageOffset int    `yaml:"pdf_page_offset"`
}

// EntrySpec is one TOC line
type EntrySpec struct {
	Key      string `yaml:"key"`
	Section  string `yaml:"section"`
	Title    string `yaml:"title"`
	Page     int    `yaml:"page"`
	Level    int    `yaml:"level"`
	FullPath string `yaml:"full_path"`
}

// PageSpec is the extracted text of one physical page
type PageSpec struct {
	Page         int    `yaml:"page"`          // Physical PDF page
	DocumentPage int    `yaml:"document_page"` // Logical page; derived from the offset when 0
	Content      string `yaml:"content"`
}

// LoadTOCFile reads and parses a TOC file from disk
func LoadTOCFile(path string) (*TocFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read toc file: %w", err)
	}
	return ParseTOC(bytes.NewReader(data))
}

// ParseTOC decodes a YAML or JSON TOC and validates it. Unknown fields are rejected.
func ParseTOC(r io.Reader) (*TocFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f TocFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrInvalidTOC)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidTOC, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks required fields and duplicate sections
func (f *TocFile) Validate() error {
	if strings.TrimSpace(f.Document.Title) == "" {
		return fmt.Errorf("%w: document title is required", ErrInvalidTOC)
	}
	if len(f.Entries) == 0 {
		return fmt.Errorf("%w: no entries", ErrInvalidTOC)
	}

	seen := make(map[string]int, len(f.Entries))
	for i, e := range f.Entries {
		section := strings.TrimSpace(e.Section)
		if section == "" {
			return fmt.Errorf("%w: entry %d has no section", ErrInvalidTOC, i)
		}
		if strings.TrimSpace(e.Title) == "" {
			return fmt.Errorf("%w: section %s has no title", ErrInvalidTOC, section)
		}
		if e.Page < 0 {
			return fmt.Errorf("%w: section %s has negative page %d", ErrInvalidTOC, section, e.Page)
		}
		if prev, ok := seen[section]; ok {
			return fmt.Errorf("%w: section %s repeated at entries %d and %d", ErrInvalidTOC, section, prev, i)
		}
		seen[section] = i
	}

	for _, p := range f.Pages {
		if p.Page <= 0 {
			return fmt.Errorf("%w: page number %d", ErrInvalidTOC, p.Page)
		}
	}
	return nil
}

// TocEntries converts the file's entries for documentID, deriving missing
// levels and full paths
func (f *TocFile) TocEntries(documentID int64) []types.TocEntry {
	titles := make(map[string]string, len(f.Entries))
	for _, e := range f.Entries {
		titles[strings.TrimSpace(e.Section)] = strings.TrimSpace(e.Title)
	}

	entries := make([]types.TocEntry, len(f.Entries))
	for i, e := range f.Entries {
		section := strings.TrimSpace(e.Section)
		entry := types.TocEntry{
			DocumentID:    documentID,
			Key:           e.Key,
			SectionNumber: section,
			Title:         strings.TrimSpace(e.Title),
			FullPath:      strings.TrimSpace(e.FullPath),
			DocumentPage:  e.Page,
			Level:         e.Level,
		}
		if entry.Level == 0 {
			entry.Level = types.SectionDepth(section)
		}
		if entry.FullPath == "" {
			entry.FullPath = ancestorPath(section, titles)
		}
		entries[i] = entry
	}
	return entries
}

// ancestorPath joins the titles of section's ancestors, outermost first.
// Ancestors missing from titles are skipped.
func ancestorPath(section string, titles map[string]string) string {
	var chain []string
	for p := types.ParentSection(section); p != ""; p = types.ParentSection(p) {
		if title, ok := titles[p]; ok {
			chain = append(chain, title)
		}
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return strings.Join(chain, FullPathSeparator)
}
