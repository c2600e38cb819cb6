package reader

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/FocuswithJustin/JuniperReader/core/book"
	"github.com/FocuswithJustin/JuniperReader/core/comic"
	"github.com/FocuswithJustin/JuniperReader/core/epub"
	"github.com/FocuswithJustin/JuniperReader/core/errors"
	"github.com/FocuswithJustin/JuniperReader/core/fb2"
	"github.com/FocuswithJustin/JuniperReader/core/loader"
	"github.com/FocuswithJustin/JuniperReader/core/mobi"
	"github.com/FocuswithJustin/JuniperReader/core/pdfbook"
	"github.com/FocuswithJustin/JuniperReader/core/sniff"
	"github.com/FocuswithJustin/JuniperReader/internal/archive"
	"github.com/FocuswithJustin/JuniperReader/internal/logging"
)

// SurfaceFactory builds a fresh rendering surface for each opened book.
type SurfaceFactory func() Surface

// DispatchOptions configures a Dispatcher.
type DispatchOptions struct {
	// Unzlib inflates zlib streams inside legacy packed books.
	Unzlib func([]byte) ([]byte, error)
	// NewSurface builds the surface a book is opened on. When nil the view
	// carries the book only.
	NewSurface SurfaceFactory
}

// Dispatcher turns an input file into an opened View. Every failure is
// terminal and carries exactly one of errors.ErrFileNotFound or
// errors.ErrUnsupportedFormat.
type Dispatcher struct {
	classifier sniff.Classifier
	legacy     *mobi.Codec
	newSurface SurfaceFactory
}

// NewDispatcher returns a dispatcher wired to every codec.
func NewDispatcher(opts DispatchOptions) *Dispatcher {
	return &Dispatcher{
		classifier: sniff.Classifier{LegacyProbe: mobi.Probe},
		legacy:     mobi.New(mobi.Options{Unzlib: opts.Unzlib}),
		newSurface: opts.NewSurface,
	}
}

// View is an opened book and the surface showing it.
type View struct {
	Book    book.Book
	Surface Surface
	Format  sniff.Format
	Name    string
}

// Open classifies f, builds its loader and codec, and opens the result on a
// fresh surface.
func (d *Dispatcher) Open(ctx context.Context, f sniff.File) (*View, error) {
	if f.Size() <= 0 {
		err := errors.NewNotFound("file", f.Name())
		logging.OpenFailed(f.Name(), err)
		return nil, err
	}

	prefix, err := sniff.ReadPrefix(f, 6)
	if err != nil {
		return nil, d.fail(f.Name(), errors.NewNotFound("file", f.Name()), err)
	}
	if _, ok := archive.DetectCompression(prefix); ok {
		return d.openTar(ctx, io.NewSectionReader(f, 0, f.Size()), f.Name())
	}

	format, err := d.classifier.Classify(f)
	if err != nil {
		return nil, d.fail(f.Name(), err, nil)
	}

	b, err := d.openFormat(ctx, f, format)
	if err != nil {
		return nil, d.fail(f.Name(), err, nil)
	}
	return d.attach(ctx, b, format, f.Name())
}

func (d *Dispatcher) openFormat(ctx context.Context, f sniff.File, format sniff.Format) (book.Book, error) {
	switch format {
	case sniff.PackageArchive, sniff.ComicArchive, sniff.CompressedStructuredMarkup:
		zl, err := loader.NewZip(ctx, f, f.Size(), f.Name())
		if err != nil {
			return nil, err
		}
		logging.LoaderBuilt("zip", len(zl.Entries()))
		switch format {
		case sniff.ComicArchive:
			return comic.Open(ctx, zl, f.Name())
		case sniff.CompressedStructuredMarkup:
			return openFBZ(ctx, zl, f.Name())
		default:
			return epub.Open(ctx, zl)
		}
	case sniff.FixedPage:
		return pdfbook.Open(ctx, io.NewSectionReader(f, 0, f.Size()))
	case sniff.LegacyPacked:
		data, err := readAll(f)
		if err != nil {
			return nil, err
		}
		return d.legacy.Open(ctx, data)
	case sniff.StructuredMarkupSingleFile:
		data, err := readAll(f)
		if err != nil {
			return nil, err
		}
		return fb2.Open(ctx, data)
	}
	return nil, errors.NewUnsupported(f.Name(), "no codec claimed the file")
}

// openFBZ hands the first .fb2 entry, else the first entry, to the FB2 codec.
func openFBZ(ctx context.Context, zl *loader.Zip, name string) (book.Book, error) {
	entries := zl.Entries()
	if len(entries) == 0 {
		return nil, errors.NewNotFound("entry", name)
	}
	pick := entries[0]
	for _, e := range entries {
		if strings.HasSuffix(e.Name, ".fb2") {
			pick = e
			break
		}
	}
	blob, ok, err := zl.LoadBlob(pick.Name, sniff.MediaTypeFB2)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NewNotFound("entry", pick.Name)
	}
	return fb2.Open(ctx, blob.Data)
}

// OpenDir opens an unpacked package tree on the local file system.
func (d *Dispatcher) OpenDir(ctx context.Context, root string) (*View, error) {
	return d.OpenFS(ctx, os.DirFS(root), root)
}

// OpenFS opens an unpacked package tree. Sniffing is skipped.
func (d *Dispatcher) OpenFS(ctx context.Context, fsys fs.FS, name string) (*View, error) {
	dl, err := loader.NewDir(ctx, fsys, name)
	if err != nil {
		return nil, d.fail(name, err, nil)
	}
	logging.LoaderBuilt("dir", len(dl.Entries()))
	b, err := epub.Open(ctx, dl)
	if err != nil {
		return nil, d.fail(name, err, nil)
	}
	return d.attach(ctx, b, sniff.PackageArchive, name)
}

func (d *Dispatcher) openTar(ctx context.Context, r io.Reader, name string) (*View, error) {
	tl, err := loader.NewTar(ctx, r, name)
	if err != nil {
		return nil, d.fail(name, err, nil)
	}
	logging.LoaderBuilt("tar", len(tl.Entries()))
	b, err := epub.Open(ctx, tl)
	if err != nil {
		return nil, d.fail(name, err, nil)
	}
	return d.attach(ctx, b, sniff.PackageArchive, name)
}

// OpenPath opens a file, tarball or directory by path.
func (d *Dispatcher) OpenPath(ctx context.Context, path string) (*View, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, d.fail(path, &errors.NotFoundError{Resource: "file", ID: path, Err: err}, nil)
	}
	if info.IsDir() {
		return d.OpenDir(ctx, path)
	}
	f, err := sniff.OpenFile(path)
	if err != nil {
		return nil, d.fail(path, err, nil)
	}
	defer f.Close()
	return d.Open(ctx, f)
}

// attach opens the book on a fresh surface.
func (d *Dispatcher) attach(ctx context.Context, b book.Book, format sniff.Format, name string) (*View, error) {
	v := &View{Book: b, Format: format, Name: name}
	if d.newSurface != nil {
		s := d.newSurface()
		if err := s.Open(ctx, b); err != nil {
			return nil, d.fail(name, errors.NewUnsupported(name, "surface rejected the book"), err)
		}
		v.Surface = s
	}
	logging.BookOpened(format.String(), name, len(b.Sections()), "title", b.Metadata().Title)
	return v, nil
}

// fail logs the failure and reduces it to one of the two open error kinds.
func (d *Dispatcher) fail(name string, err, cause error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, errors.ErrFileNotFound), errors.Is(err, errors.ErrUnsupportedFormat):
	default:
		err = &errors.UnsupportedError{Name: name, Reason: "unreadable", Err: err}
	}
	if cause != nil {
		err = errors.Join(err, cause)
	}
	logging.OpenFailed(name, err)
	return err
}

func readAll(f sniff.File) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.NewSectionReader(f, 0, f.Size())); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
