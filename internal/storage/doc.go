// Package storage persists regulation documents in SQLite.
//
// Schema (see migrations.go):
//
//	documents          one row per regulation document, with its PDF page offset
//	toc_entries        table of contents, unique section number per document
//	toc_embeddings     one vector per entry, little-endian float32 BLOB
//	reference_content  extracted page text keyed by physical page
//	query_logs         user queries and the section selected for each
//
// An embedding records the hash of the text it was computed from. Updating an
// entry so that its section, title or path changes deletes the stale vector,
// and the next embedding job picks the entry up again.
//
// Vectors are compared in Go by the ranker; every search loads the whole TOC
// of one document (a few thousand entries at most), so no vector index is used.
//
// Two drivers are supported through build tags. The default is the pure Go
// modernc.org/sqlite; the sqlite_vec tag switches to CGO github.com/mattn/go-sqlite3.
//
// All write paths have a transactional form: BeginTx returns a Tx that
// implements Storage on the same connection.
package storage
