// Package indexer loads regulation TOCs into storage and runs the batch
// embedding job over them.
//
// A TOC file is YAML or JSON (JSON is read as YAML):
//
//	document:
//	  id: 1
//	  title: Wiring Rules
//	  type: AS/NZS 3000:2018
//	  pdf_page_offset: 4
//	entries:
//	  - section: "6"
//	    title: DAMP SITUATIONS
//	    page: 316
//	  - section: "6.2"
//	    title: BATHS, SHOWERS AND OTHER FIXED WATER CONTAINERS
//	    page: 317
//	pages:
//	  - page: 321
//	    content: "..."
//
// Missing levels are derived from the section number ("6.2.4" is level 3)
// and missing full paths from the titles of ancestor sections present in the
// same file. An import runs in one transaction.
//
// EmbedDocument embeds every entry that lacks a vector from the configured
// provider and model. Batches run concurrently with a bounded worker count;
// a failed batch is counted and reported without stopping the others.
package indexer
