// Package storage holds the in-memory corpus of document chunks and the flat
// vector index over their embeddings.
//
// The two structures move in lockstep: after a build, index row i always
// resolves back to the chunk whose Position is i, and every indexed chunk
// owns exactly one row. Neither structure locks internally — the service that
// owns them guards both with a single lock so the alignment invariant can
// never be observed mid-flight.
//
// Similarity is the inner product of L2-normalized vectors (cosine), ranked
// descending. Nothing here persists across process restarts.
package storage
