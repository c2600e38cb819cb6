package loader

import (
	"archive/zip"
	"context"
	stderrors "errors"
	"io"

	"github.com/FocuswithJustin/JuniperReader/core/errors"
)

// Zip serves entries from a zip archive.
type Zip struct {
	source string
	idx    *index[*zip.File]
}

// NewZip enumerates the archive in r once and returns a loader over it.
// source is used only in error messages.
func NewZip(ctx context.Context, r io.ReaderAt, size int64, source string) (*Zip, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	zr, err := zip.NewReader(r, size)
	if err != nil && !(stderrors.Is(err, zip.ErrInsecurePath) && zr != nil) {
		return nil, errors.NewEnumeration(source, err)
	}

	idx := newIndex[*zip.File]()
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		idx.put(Entry{Name: f.Name, Size: int64(f.UncompressedSize64)}, f)
	}
	return &Zip{source: source, idx: idx}, nil
}

// Entries returns the archive's files in enumeration order.
func (z *Zip) Entries() []Entry {
	return z.idx.entries()
}

func (z *Zip) read(name string) ([]byte, bool, error) {
	f, ok := z.idx.get(name)
	if !ok {
		return nil, false, nil
	}
	rc, err := f.Open()
	if err != nil {
		return nil, true, errors.NewDecode(name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, true, errors.NewDecode(name, err)
	}
	return data, true, nil
}

// LoadText implements Loader.
func (z *Zip) LoadText(name string) (string, bool, error) {
	data, ok, err := z.read(name)
	if !ok || err != nil {
		return "", ok, err
	}
	text, err := DecodeText(name, data)
	return text, true, err
}

// LoadBlob implements Loader.
func (z *Zip) LoadBlob(name, mediaType string) (*Blob, bool, error) {
	data, ok, err := z.read(name)
	if !ok || err != nil {
		return nil, ok, err
	}
	return &Blob{Name: name, MediaType: mediaType, Data: data}, true, nil
}

// Size implements Loader.
func (z *Zip) Size(name string) int64 {
	return z.idx.size(name)
}
