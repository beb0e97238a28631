package indexer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTOCFile_YAML(t *testing.T) {
	f, err := LoadTOCFile("testdata/wiring.yaml")
	require.NoError(t, err)

	assert.Equal(t, int64(7), f.Document.ID)
	assert.Equal(t, 4, f.Document.PDFPageOffset)
	require.Len(t, f.Entries, 5)
	// Unquoted numbers keep their text, so 6.10 is not 6.1
	assert.Equal(t, "6.2", f.Entries[2].Section)
	assert.Equal(t, "6.10", f.Entries[4].Section)
	assert.Len(t, f.Pages, 2)
}

func TestLoadTOCFile_JSON(t *testing.T) {
	f, err := LoadTOCFile("testdata/small.json")
	require.NoError(t, err)
	assert.Equal(t, "NZBC", f.Document.Type)
	assert.Len(t, f.Entries, 2)
}

func TestTocEntries_Derivation(t *testing.T) {
	f, err := LoadTOCFile("testdata/wiring.yaml")
	require.NoError(t, err)

	entries := f.TocEntries(7)
	require.Len(t, entries, 5)

	tests := []struct {
		section  string
		level    int
		fullPath string
	}{
		{"6", 1, ""},
		{"6.1", 2, "DAMP SITUATIONS"},
		{"6.2", 2, "DAMP SITUATIONS"},
		{"6.2.4", 3, "DAMP SITUATIONS > BATHS, SHOWERS AND OTHER FIXED WATER CONTAINERS"},
		{"6.10", 2, "Custom path"},
	}
	for i, tt := range tests {
		t.Run(tt.section, func(t *testing.T) {
			assert.Equal(t, tt.section, entries[i].SectionNumber)
			assert.Equal(t, tt.level, entries[i].Level)
			assert.Equal(t, tt.fullPath, entries[i].FullPath)
			assert.Equal(t, int64(7), entries[i].DocumentID)
		})
	}
}

func TestAncestorPath_SkipsMissing(t *testing.T) {
	titles := map[string]string{"1": "Scope"}
	assert.Equal(t, "Scope", ancestorPath("1.2.3", titles))
	assert.Equal(t, "", ancestorPath("1", titles))
	assert.Equal(t, "", ancestorPath("9.1", titles))
}

func TestParseTOC_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"empty", "", "empty file"},
		{"no title", "entries:\n  - {section: '1', title: A, page: 1}\n", "document title"},
		{"no entries", "document: {title: X}\n", "no entries"},
		{"missing section", "document: {title: X}\nentries:\n  - {title: A, page: 1}\n", "no section"},
		{"missing entry title", "document: {title: X}\nentries:\n  - {section: '1', page: 1}\n", "no title"},
		{"negative page", "document: {title: X}\nentries:\n  - {section: '1', title: A, page: -1}\n", "negative page"},
		{"duplicate", "document: {title: X}\nentries:\n  - {section: '1', title: A, page: 1}\n  - {section: '1', title: B, page: 2}\n", "repeated"},
		{"unknown field", "document: {title: X, colour: red}\nentries:\n  - {section: '1', title: A, page: 1}\n", "colour"},
		{"bad page", "document: {title: X}\nentries:\n  - {section: '1', title: A, page: 1}\npages:\n  - {page: 0, content: x}\n", "page number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTOC(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidTOC)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
