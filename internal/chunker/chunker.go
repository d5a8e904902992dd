package chunker

import (
	"errors"
	"strings"
)

// Defaults mirror the hosted embedding models' sweet spot of roughly
// 300-500 tokens per passage, expressed in characters (~4 chars/token).
const (
	DefaultChunkSize = 1600
	DefaultOverlap   = 240
)

var ErrInvalidChunkConfig = errors.New("invalid chunk configuration")

// Split divides text into windows of size characters with overlap characters
// repeated between consecutive windows. The unit is characters (runes), the
// same unit used for preview truncation elsewhere. The final window may be
// shorter than size; it is dropped if it is empty after trimming whitespace.
//
// Split is pure: identical inputs always produce identical output.
func Split(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, ErrInvalidChunkConfig
	}
	if overlap < 0 || overlap >= size {
		return nil, ErrInvalidChunkConfig
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return []string{}, nil
	}

	step := size - overlap
	chunks := make([]string, 0, len(runes)/step+1)

	for pos := 0; ; pos += step {
		end := min(pos+size, len(runes))
		if c := strings.TrimSpace(string(runes[pos:end])); c != "" {
			chunks = append(chunks, c)
		}
		if end >= len(runes) {
			break
		}
	}

	return chunks, nil
}
