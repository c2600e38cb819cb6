package loader

import (
	"archive/tar"
	"context"
	"io"
	"strings"

	"github.com/FocuswithJustin/JuniperReader/core/errors"
	"github.com/FocuswithJustin/JuniperReader/internal/archive"
)

// Tar serves entries from a tar, tar.gz or tar.xz stream. A tar stream cannot
// be read out of order, so entry contents are held in memory after the single
// enumeration pass.
type Tar struct {
	idx *index[[]byte]
}

// NewTar reads the whole archive from r and returns a loader over its files.
// A single top-level directory shared by every file is stripped from the keys,
// so a packed book tree is addressed the same way as the unpacked directory.
func NewTar(ctx context.Context, r io.Reader, source string) (*Tar, error) {
	ar, err := archive.NewReader(r)
	if err != nil {
		return nil, errors.NewEnumeration(source, err)
	}
	defer ar.Close()

	type file struct {
		name string
		data []byte
	}
	var files []file
	err = ar.Iterate(func(h *tar.Header, content io.Reader) (bool, error) {
		if err := ctx.Err(); err != nil {
			return true, err
		}
		if h.Typeflag != tar.TypeReg {
			return false, nil
		}
		data, err := io.ReadAll(content)
		if err != nil {
			return true, err
		}
		files = append(files, file{name: strings.TrimPrefix(h.Name, "./"), data: data})
		return false, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewEnumeration(source, err)
	}

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.name
	}
	prefix := commonRoot(names)

	idx := newIndex[[]byte]()
	for _, f := range files {
		name := strings.TrimPrefix(f.name, prefix)
		idx.put(Entry{Name: name, Size: int64(len(f.data))}, f.data)
	}
	return &Tar{idx: idx}, nil
}

// commonRoot returns "dir/" when every name lives under the same top-level dir.
func commonRoot(names []string) string {
	if len(names) == 0 {
		return ""
	}
	first, _, ok := strings.Cut(names[0], "/")
	if !ok {
		return ""
	}
	prefix := first + "/"
	for _, n := range names[1:] {
		if !strings.HasPrefix(n, prefix) {
			return ""
		}
	}
	return prefix
}

// Entries returns the archive's files in stream order.
func (t *Tar) Entries() []Entry {
	return t.idx.entries()
}

// LoadText implements Loader.
func (t *Tar) LoadText(name string) (string, bool, error) {
	data, ok := t.idx.get(name)
	if !ok {
		return "", false, nil
	}
	text, err := DecodeText(name, data)
	return text, true, err
}

// LoadBlob implements Loader.
func (t *Tar) LoadBlob(name, mediaType string) (*Blob, bool, error) {
	data, ok := t.idx.get(name)
	if !ok {
		return nil, false, nil
	}
	return &Blob{Name: name, MediaType: mediaType, Data: data}, true, nil
}

// Size implements Loader.
func (t *Tar) Size(name string) int64 {
	return t.idx.size(name)
}
