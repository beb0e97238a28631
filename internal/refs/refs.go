// Package refs scans generated answers for page and table citations so they
// can be turned into links into the PDF viewer.
package refs

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/dshills/regs-mcp/pkg/types"
)

var (
	pagePattern  = regexp.MustCompile(`(?i)(?:page|pg\.?)\s*(\d+)`)
	tablePattern = regexp.MustCompile(`(?i)table\s+[\d.]+.*?(?:page|pg\.?)\s*(\d+)`)
)

type hit struct {
	pos  int
	page int
	typ  types.ReferenceType
}

// Extract returns the distinct pages cited in text, in order of first
// appearance. A page cited as "Table X on page N" is typed as a table
// reference; every other citation is a page reference.
func Extract(text string) []types.PageReference {
	tableAt := make(map[int]bool)
	for _, m := range tablePattern.FindAllStringSubmatchIndex(text, -1) {
		tableAt[m[2]] = true
	}

	hits := make([]hit, 0)
	for _, m := range pagePattern.FindAllStringSubmatchIndex(text, -1) {
		page, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil {
			continue
		}
		typ := types.ReferencePage
		if tableAt[m[2]] {
			typ = types.ReferenceTable
		}
		hits = append(hits, hit{pos: m[2], page: page, typ: typ})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	seen := make(map[int]bool, len(hits))
	refs := make([]types.PageReference, 0, len(hits))
	for _, h := range hits {
		if seen[h.page] {
			continue
		}
		seen[h.page] = true
		refs = append(refs, types.PageReference{Page: h.page, Type: h.typ})
	}
	return refs
}
