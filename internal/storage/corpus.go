package storage

import (
	"errors"
	"fmt"
)

var ErrChunkNotFound = errors.New("chunk not found")

// PositionPending marks a chunk that has been appended but not yet committed
// to the vector index.
const PositionPending = -1

// Chunk is the atomic unit of embedding and retrieval: a bounded passage of
// text from one source file. Text is immutable once appended. Position is
// PositionPending until the chunk's vector lands in the index, then equals
// the index row holding that vector.
type Chunk struct {
	ID       int64
	File     string
	Text     string
	Position int
}

// Indexed reports whether the chunk's vector has been committed to the index.
func (c Chunk) Indexed() bool {
	return c.Position != PositionPending
}

// Corpus is the ordered chunk store backing the vector index. Chunk ids are
// monotonically increasing and never reused within one id sequence; Clear
// starts a fresh sequence.
//
// Corpus is not safe for concurrent use. The owning service serializes all
// access together with the vector index so the two can never be observed out
// of step.
type Corpus struct {
	chunks []Chunk
	byID   map[int64]int
	nextID int64
}

func NewCorpus() *Corpus {
	return &Corpus{byID: make(map[int64]int)}
}

// Append creates a pending chunk for the given source file and returns it.
func (c *Corpus) Append(file, text string) Chunk {
	chunk := Chunk{
		ID:       c.nextID,
		File:     file,
		Text:     text,
		Position: PositionPending,
	}
	c.byID[chunk.ID] = len(c.chunks)
	c.chunks = append(c.chunks, chunk)
	c.nextID++
	return chunk
}

// MarkIndexed records the vector index row assigned to a chunk. A position is
// set exactly once per chunk per build; a rebuild first clears positions via
// ResetPositions.
func (c *Corpus) MarkIndexed(id int64, position int) error {
	i, ok := c.byID[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrChunkNotFound, id)
	}
	c.chunks[i].Position = position
	return nil
}

// Get returns the chunk with the given id.
func (c *Corpus) Get(id int64) (Chunk, error) {
	i, ok := c.byID[id]
	if !ok {
		return Chunk{}, fmt.Errorf("%w: id %d", ErrChunkNotFound, id)
	}
	return c.chunks[i], nil
}

// ByPosition resolves a vector index row back to its chunk.
func (c *Corpus) ByPosition(position int) (Chunk, error) {
	for _, chunk := range c.chunks {
		if chunk.Position == position {
			return chunk, nil
		}
	}
	return Chunk{}, fmt.Errorf("%w: position %d", ErrChunkNotFound, position)
}

// All returns every chunk in id order.
func (c *Corpus) All() []Chunk {
	out := make([]Chunk, len(c.chunks))
	copy(out, c.chunks)
	return out
}

// Pending returns the chunks not yet committed to the index, in id order.
func (c *Corpus) Pending() []Chunk {
	var out []Chunk
	for _, chunk := range c.chunks {
		if !chunk.Indexed() {
			out = append(out, chunk)
		}
	}
	return out
}

// ResetPositions returns every chunk to the pending state. Used at the start
// of a full rebuild so stale rows can never alias new ones.
func (c *Corpus) ResetPositions() {
	for i := range c.chunks {
		c.chunks[i].Position = PositionPending
	}
}

// Len returns the number of chunks, pending and indexed.
func (c *Corpus) Len() int {
	return len(c.chunks)
}

// Clear discards all chunks and restarts the id sequence from zero.
func (c *Corpus) Clear() {
	c.chunks = nil
	c.byID = make(map[int64]int)
	c.nextID = 0
}
