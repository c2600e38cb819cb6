// Package book defines the capability object every document codec produces
// and a rendering surface consumes.
package book

import (
	"context"
	"encoding/hex"
	"io"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/JuniperReader/core/loader"
)

// Metadata is the descriptive metadata of a book.
type Metadata struct {
	Title       string   `json:"title"`
	Authors     []string `json:"authors,omitempty"`
	Language    string   `json:"language,omitempty"`
	Identifier  string   `json:"identifier,omitempty"`
	Publisher   string   `json:"publisher,omitempty"`
	Description string   `json:"description,omitempty"`
}

// TOCItem is one entry of a table of contents.
type TOCItem struct {
	Label    string    `json:"label"`
	Href     string    `json:"href"`
	Subitems []TOCItem `json:"subitems,omitempty"`
}

// Section is one reading-order unit: a spine document, an image page or a
// fixed page.
type Section struct {
	ID        string `json:"id"`
	Href      string `json:"href"`
	MediaType string `json:"mediaType"`
	Size      int64  `json:"size"`
	Linear    bool   `json:"linear"`
}

// Book is the uniform capability a codec hands to a rendering surface.
type Book interface {
	// Metadata returns the book's descriptive metadata.
	Metadata() Metadata
	// TOC returns the table of contents.
	TOC() []TOCItem
	// Sections returns the reading order.
	Sections() []Section
	// FixedLayout reports pre-paginated content such as comics and PDFs.
	FixedLayout() bool
	// Load returns the resource at href. A "#fragment" suffix is ignored.
	// A missing resource yields a NotFoundError.
	Load(ctx context.Context, href string) (*loader.Blob, error)
}

// StripFragment removes a "#fragment" suffix from href.
func StripFragment(href string) string {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		return href[:i]
	}
	return href
}

// FlattenTOC returns the TOC items in depth-first order.
func FlattenTOC(items []TOCItem) []TOCItem {
	var out []TOCItem
	var walk func([]TOCItem)
	walk = func(items []TOCItem) {
		for _, it := range items {
			out = append(out, it)
			walk(it.Subitems)
		}
	}
	walk(items)
	return out
}

// Fingerprint returns the hex BLAKE3-256 digest of data. It identifies a
// document across reloads for caches and annotation storage.
func Fingerprint(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FingerprintReader is like Fingerprint but streams r.
func FingerprintReader(r io.Reader) (string, error) {
	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
