package loader

import (
	"context"
	"io/fs"
	"os"

	"github.com/FocuswithJustin/JuniperReader/core/errors"
)

// Dir serves entries from a directory tree. Keys are slash-separated paths
// relative to the root; the root's own path never appears in a key.
type Dir struct {
	fsys fs.FS
	idx  *index[string]
}

// NewDir walks the whole of fsys once and returns a loader over its files.
// source is used only in error messages.
func NewDir(ctx context.Context, fsys fs.FS, source string) (*Dir, error) {
	idx := newIndex[string]()
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		idx.put(Entry{Name: path, Size: info.Size()}, path)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewEnumeration(source, err)
	}
	return &Dir{fsys: fsys, idx: idx}, nil
}

// OpenDir returns a loader over the directory at root on the local file system.
func OpenDir(ctx context.Context, root string) (*Dir, error) {
	return NewDir(ctx, os.DirFS(root), root)
}

// Entries returns the tree's files in walk order.
func (d *Dir) Entries() []Entry {
	return d.idx.entries()
}

func (d *Dir) read(name string) ([]byte, bool, error) {
	path, ok := d.idx.get(name)
	if !ok {
		return nil, false, nil
	}
	data, err := fs.ReadFile(d.fsys, path)
	if err != nil {
		return nil, true, errors.NewDecode(name, err)
	}
	return data, true, nil
}

// LoadText implements Loader.
func (d *Dir) LoadText(name string) (string, bool, error) {
	data, ok, err := d.read(name)
	if !ok || err != nil {
		return "", ok, err
	}
	text, err := DecodeText(name, data)
	return text, true, err
}

// LoadBlob implements Loader.
func (d *Dir) LoadBlob(name, mediaType string) (*Blob, bool, error) {
	data, ok, err := d.read(name)
	if !ok || err != nil {
		return nil, ok, err
	}
	return &Blob{Name: name, MediaType: mediaType, Data: data}, true, nil
}

// Size implements Loader.
func (d *Dir) Size(name string) int64 {
	return d.idx.size(name)
}
