// Package extract pulls plain text out of uploaded document bytes.
//
// Extraction is best-effort by contract: an unsupported extension or a
// document with no extractable text (a scanned image, say) yields an empty
// string, not an error. The upload pipeline turns empty text into zero
// chunks.
package extract

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv/v2"
)

// Extractor converts one document format's raw bytes into plain text.
type Extractor interface {
	// Extensions lists the lowercased file extensions this extractor
	// handles, dot included.
	Extensions() []string

	// Extract returns the document's plain text, or "" when nothing is
	// extractable.
	Extract(name string, data []byte) (string, error)
}

// Registry routes a file to the extractor registered for its extension.
type Registry struct {
	byExt map[string]Extractor
}

// NewRegistry returns a registry preloaded with the default extractors:
// plain text for .txt/.md and docconv for .pdf/.docx/.doc.
func NewRegistry() *Registry {
	r := &Registry{byExt: make(map[string]Extractor)}
	// Registration can only collide if the defaults overlap, which they
	// don't.
	_ = r.Register(&PlainText{})
	_ = r.Register(&Docconv{})
	return r
}

// Register adds extractors, failing if an extension is already claimed.
func (r *Registry) Register(extractors ...Extractor) error {
	for _, e := range extractors {
		for _, ext := range e.Extensions() {
			if _, ok := r.byExt[ext]; ok {
				return fmt.Errorf("extractor already registered for %s", ext)
			}
			r.byExt[ext] = e
		}
	}
	return nil
}

// Extract dispatches on the file's extension. Unknown extensions yield empty
// text.
func (r *Registry) Extract(name string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	e, ok := r.byExt[ext]
	if !ok {
		return "", nil
	}
	return e.Extract(name, data)
}

// PlainText handles formats that already are text.
type PlainText struct{}

func (*PlainText) Extensions() []string {
	return []string{".txt", ".md"}
}

func (*PlainText) Extract(_ string, data []byte) (string, error) {
	return string(data), nil
}

// Docconv handles binary document formats via the docconv converters.
type Docconv struct{}

func (*Docconv) Extensions() []string {
	return []string{".pdf", ".docx", ".doc"}
}

func (*Docconv) Extract(name string, data []byte) (string, error) {
	res, err := docconv.Convert(bytes.NewReader(data), docconv.MimeTypeByExtension(name), true)
	if err != nil {
		return "", fmt.Errorf("failed to convert %s: %w", name, err)
	}
	return res.Body, nil
}
