// Package searcher answers section lookups against one or more indexed
// documents.
//
// A search loads the document's TOC entries from storage, embeds the query
// when the document has embeddings and the mode asks for them, and hands both
// to the ranker. Embedding failures never fail a search: the searcher logs the
// error, counts a fallback and ranks on keywords alone.
//
//	s := searcher.New(store, emb, searcher.Config{Logger: log})
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    DocumentID: 1,
//	    Query:      "rcd protection bathrooms",
//	    Mode:       ranker.ModeHybrid,
//	    UseCache:   true,
//	})
//
//	if resp.Selection != nil {
//	    fmt.Printf("%s %s (page %d)\n",
//	        resp.Selection.Entry.SectionNumber,
//	        resp.Selection.Entry.Title,
//	        resp.Selection.Entry.DocumentPage)
//	}
//
// # Caching
//
// Responses are cached in an LRU keyed by document, mode, limit and query,
// with a TTL (default one hour). Importing or embedding a document must call
// InvalidateCache so stale rankings are not served.
//
// # Expanded search
//
// SearchExpanded runs several phrasings of one question and keeps the top
// three hits of each, deduplicated by entry and ordered by score. Each hit
// records the phrasing that found it.
//
// # Passages
//
// RerankPassages loads the stored page text around the best sections and
// re-ranks those pages with the clause-aware rerank package. A passage starts
// from its section's score on the 0-1 scale.
package searcher
