// Package embedder generates vector embeddings for TOC entry text and search queries.
//
// Four providers are supported:
//
//   - openai: OpenAI embeddings API (text-embedding-3-small by default)
//   - jina: Jina AI embeddings API
//   - compat: any OpenAI-compatible host such as Ollama or LM Studio
//   - local: deterministic feature-hashing vectors, no network
//
// All providers share one Client that validates input, batches, caches by
// content hash and retries transient failures with exponential backoff.
//
//	emb, err := embedder.NewFromEnv()
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	e, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "E2/AS1 3.1.2 Cladding clearances",
//	})
//
// Provider selection (NewFromEnv):
//
//  1. REGS_EMBEDDING_PROVIDER if set
//  2. compat when REGS_EMBEDDING_HOST is set
//  3. openai when OPENAI_API_KEY is set
//  4. jina when JINA_API_KEY is set
//  5. local otherwise
//
// A failed query embedding never fails a search. The searcher ranks with
// keyword signals alone when GenerateEmbedding returns an error.
package embedder
