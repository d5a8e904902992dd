// Package chunker splits extracted document text into overlapping fixed-size
// passages for embedding and retrieval.
//
// Windows are measured in characters (runes), not tokens. Consecutive windows
// share an overlap region so that sentences cut at a boundary still appear
// whole in at least one passage:
//
//	chunks, err := chunker.Split(text, 1600, 240)
//
// Every chunk is whitespace-trimmed and whitespace-only chunks are discarded,
// so the number of chunks for non-degenerate input is
// ceil((len - overlap) / (size - overlap)), within one for a trimmed tail.
package chunker
