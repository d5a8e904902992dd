// Package embedder turns batches of text passages into fixed-dimension
// vectors via a hosted embedding API (OpenAI or Jina AI).
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: "openai"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	vectors, err := emb.EmbedBatch(ctx, texts)
//
// # Batch contract
//
// EmbedBatch preserves input order and is all-or-nothing: either every input
// gets a vector or the call fails with ErrProviderFailed. Inputs beyond the
// provider's per-call ceiling are split into ordered sub-batches and the
// results concatenated, so callers can hand over an entire corpus in one
// call.
//
// # Caching
//
// A content-hash LRU cache sits in front of the network. Because an index
// rebuild re-embeds every chunk, the cache turns rebuilds over an unchanged
// corpus into pure cache hits. Resubmitting an identical batch therefore
// yields equivalent vectors without a second provider round trip.
//
// # Retry
//
// This package performs exactly one HTTP round trip per sub-batch. Retry and
// backoff on transient failures are layered by the caller, which also owns
// timeouts via the request context.
package embedder
