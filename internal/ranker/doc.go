// Package ranker implements hybrid ranking of regulation table-of-contents entries.
//
// Each entry gets a keyword score built from additive signals over its section
// number, title and full path, normalized into [0, 1]. When the corpus carries
// embeddings and a query embedding is supplied, the keyword score is blended
// with the rescaled cosine similarity (0.3 keyword, 0.7 semantic). Otherwise
// the ranker falls back to keyword only.
//
// # Basic Usage
//
//	r := ranker.New()
//	results, stats := r.RankWithStats(entries, "bath zone clearance", queryVector)
//	if len(results) == 0 {
//	    // no match
//	}
//	best := results[0]
//	alts := ranker.Alternatives(results)
//
// # Scores
//
// ScoredResult.Score is on a 0-1000 display scale. Results at or below
// MinScore (10) are dropped, the rest are sorted by score descending with
// ties broken by ascending page, and the list is capped at 20.
//
// # Degradation
//
//   - nil query embedding: keyword only for every entry
//   - entry without embedding: semantic component 0
//   - dimensionality mismatch or zero vector: semantic component 0
//
// None of these are errors. Ranking performs no I/O and never mutates its
// inputs; a Ranker is safe for concurrent use.
package ranker
