// Package loader provides uniform read-only access to the resources of a book,
// whether they live in a zip archive, a compressed tarball, or a directory tree.
//
// Every implementation enumerates its container exactly once, at construction.
// Lookups after that are served from the cached name map. A name that is not
// present is never an error: LoadText and LoadBlob report ok=false and Size
// reports 0, so codecs can treat optional resources as optional.
package loader

import (
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/FocuswithJustin/JuniperReader/core/errors"
)

// Loader is the capability handed to codecs.
type Loader interface {
	// LoadText returns the named entry decoded as text.
	LoadText(name string) (text string, ok bool, err error)
	// LoadBlob returns the named entry's bytes tagged with mediaType.
	LoadBlob(name, mediaType string) (blob *Blob, ok bool, err error)
	// Size returns the uncompressed size of the named entry, or 0.
	Size(name string) int64
}

// Lister is implemented by loaders that can report their entries in
// enumeration order.
type Lister interface {
	Entries() []Entry
}

// Entry describes one file inside a container.
type Entry struct {
	Name string
	Size int64
}

// Blob is binary entry content with a media type.
type Blob struct {
	Name      string
	MediaType string
	Data      []byte
}

// Size returns the length of the blob's data.
func (b *Blob) Size() int64 {
	if b == nil {
		return 0
	}
	return int64(len(b.Data))
}

// DecodeText decodes entry bytes as text. A UTF-8 or UTF-16 byte order mark
// selects the encoding, UTF-8 is assumed otherwise, and invalid sequences are
// replaced with U+FFFD.
func DecodeText(name string, data []byte) (string, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(dec, data)
	if err != nil {
		return "", errors.NewDecode(name, err)
	}
	return string(out), nil
}

// index records entries in enumeration order and resolves duplicate names.
// A later entry with the same name replaces the earlier one in place, so the
// map and the ordered list never disagree.
type index[T any] struct {
	order []Entry
	pos   map[string]int
	items map[string]T
}

func newIndex[T any]() *index[T] {
	return &index[T]{
		pos:   make(map[string]int),
		items: make(map[string]T),
	}
}

func (x *index[T]) put(e Entry, item T) {
	if i, ok := x.pos[e.Name]; ok {
		x.order[i] = e
	} else {
		x.pos[e.Name] = len(x.order)
		x.order = append(x.order, e)
	}
	x.items[e.Name] = item
}

func (x *index[T]) get(name string) (T, bool) {
	item, ok := x.items[name]
	return item, ok
}

func (x *index[T]) size(name string) int64 {
	i, ok := x.pos[name]
	if !ok {
		return 0
	}
	return x.order[i].Size
}

func (x *index[T]) entries() []Entry {
	out := make([]Entry, len(x.order))
	copy(out, x.order)
	return out
}
