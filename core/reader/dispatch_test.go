package reader

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/FocuswithJustin/JuniperReader/core/epub"
	"github.com/FocuswithJustin/JuniperReader/core/errors"
	"github.com/FocuswithJustin/JuniperReader/core/sniff"
	"github.com/FocuswithJustin/JuniperReader/internal/archive"
)

func sampleEPUB(t *testing.T, chapters int) *epub.Builder {
	t.Helper()
	b := epub.New().SetTitle("Sample").AddAuthor("A. Writer")
	for i := 0; i < chapters; i++ {
		b.AddChapter(fmt.Sprintf("Chapter %d", i+1), fmt.Sprintf("<p>Text of chapter %d.</p>", i+1))
	}
	return b
}

func buildZip(t *testing.T, files ...[2]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f[0])
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(f[1]))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

const minimalFB2 = `<?xml version="1.0" encoding="utf-8"?>
<FictionBook xmlns="http://www.gribuser.ru/xml/fictionbook/2.0">
<description><title-info><book-title>Zipped</book-title></title-info></description>
<body><section><title><p>One</p></title><p>Text</p></section></body>
</FictionBook>`

func palmDOC(text string) []byte {
	rec0 := make([]byte, 16)
	binary.BigEndian.PutUint16(rec0[0:], 1)
	binary.BigEndian.PutUint32(rec0[4:], uint32(len(text)))
	binary.BigEndian.PutUint16(rec0[8:], 1)

	hdr := make([]byte, 78)
	copy(hdr, "Palm_Book")
	copy(hdr[60:], "TEXtREAd")
	binary.BigEndian.PutUint16(hdr[76:], 2)
	var buf bytes.Buffer
	buf.Write(hdr)
	off := 78 + 2*8
	for _, n := range []int{len(rec0), len(text)} {
		var e [8]byte
		binary.BigEndian.PutUint32(e[:], uint32(off))
		buf.Write(e[:])
		off += n
	}
	buf.Write(rec0)
	buf.WriteString(text)
	return buf.Bytes()
}

func TestDispatchFormats(t *testing.T) {
	epubData, err := sampleEPUB(t, 3).Build()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		file      string
		data      []byte
		want      sniff.Format
		wantTitle string
		sections  int
	}{
		{"package archive", "book.epub", epubData, sniff.PackageArchive, "Sample", 3},
		{"comic archive", "issue.cbz", buildZip(t, [2]string{"p2.png", "x"}, [2]string{"p1.png", "y"}), sniff.ComicArchive, "issue", 2},
		{"zipped fictionbook", "book.fb2.zip", buildZip(t, [2]string{"readme.txt", "hi"}, [2]string{"book.fb2", minimalFB2}), sniff.CompressedStructuredMarkup, "Zipped", 1},
		{"fictionbook", "book.fb2", []byte(minimalFB2), sniff.StructuredMarkupSingleFile, "Zipped", 1},
		{"legacy packed", "book.pdb", palmDOC("Hello<mbp:pagebreak/>World"), sniff.LegacyPacked, "Palm Book", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			surface := newFakeSurface()
			d := NewDispatcher(DispatchOptions{NewSurface: func() Surface { return surface }})
			v, err := d.Open(context.Background(), sniff.NewBytesFile(tt.file, "", tt.data))
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if v.Format != tt.want {
				t.Errorf("Format = %v, want %v", v.Format, tt.want)
			}
			if got := v.Book.Metadata().Title; got != tt.wantTitle {
				t.Errorf("Title = %q, want %q", got, tt.wantTitle)
			}
			if got := len(v.Book.Sections()); got != tt.sections {
				t.Errorf("Sections() = %d, want %d", got, tt.sections)
			}
			if surface.opened != v.Book || v.Surface != Surface(surface) {
				t.Error("surface was not opened with the book before returning")
			}
		})
	}
}

func TestDispatchFBZFallsBackToFirstEntry(t *testing.T) {
	data := buildZip(t, [2]string{"content.xml", minimalFB2}, [2]string{"other.txt", "x"})
	v, err := NewDispatcher(DispatchOptions{}).Open(context.Background(), sniff.NewBytesFile("book.fbz", "", data))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if v.Book.Metadata().Title != "Zipped" {
		t.Errorf("Title = %q", v.Book.Metadata().Title)
	}
}

func TestDispatchErrors(t *testing.T) {
	ctx := context.Background()
	d := NewDispatcher(DispatchOptions{})

	tests := []struct {
		name string
		file sniff.File
		want error
	}{
		{"empty file", sniff.NewBytesFile("empty.epub", "", nil), errors.ErrFileNotFound},
		{"unknown text", sniff.NewBytesFile("notes.txt", "", []byte("just some notes")), errors.ErrUnsupportedFormat},
		{"zip without package", sniff.NewBytesFile("x.epub", "", buildZip(t, [2]string{"a.txt", "a"})), errors.ErrUnsupportedFormat},
		{"not a fictionbook", sniff.NewBytesFile("x.fb2", "", []byte("<html><body/></html>")), errors.ErrUnsupportedFormat},
		{"fake pdf", sniff.NewBytesFile("x.pdf", "", []byte("%PDF-garbage")), errors.ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := d.Open(ctx, tt.file)
			if v != nil {
				t.Error("Open() returned a view on failure")
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Open() error = %v, want %v", err, tt.want)
			}
			other := errors.ErrUnsupportedFormat
			if tt.want == errors.ErrUnsupportedFormat {
				other = errors.ErrFileNotFound
			}
			if errors.Is(err, other) {
				t.Errorf("Open() error %v carries both kinds", err)
			}
		})
	}
}

func TestDispatchSurfaceRejects(t *testing.T) {
	data, err := sampleEPUB(t, 1).Build()
	if err != nil {
		t.Fatal(err)
	}
	surface := newFakeSurface()
	surface.openErr = fmt.Errorf("renderer crashed")
	d := NewDispatcher(DispatchOptions{NewSurface: func() Surface { return surface }})
	if _, err := d.Open(context.Background(), sniff.NewBytesFile("b.epub", "", data)); !errors.Is(err, errors.ErrUnsupportedFormat) {
		t.Errorf("Open() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestDispatchDirectoryAndTarball(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "book")
	if err := sampleEPUB(t, 2).WriteDir(dir); err != nil {
		t.Fatal(err)
	}
	d := NewDispatcher(DispatchOptions{})

	v, err := d.OpenPath(ctx, dir)
	if err != nil {
		t.Fatalf("OpenPath(dir) error = %v", err)
	}
	if len(v.Book.Sections()) != 2 {
		t.Errorf("directory Sections() = %d, want 2", len(v.Book.Sections()))
	}

	for _, kind := range []archive.Compression{archive.CompressionGzip, archive.CompressionXZ} {
		var buf bytes.Buffer
		if err := archive.WriteTar(&buf, os.DirFS(dir), "book", kind); err != nil {
			t.Fatal(err)
		}
		v, err := d.Open(ctx, sniff.NewBytesFile("book.tar", "", buf.Bytes()))
		if err != nil {
			t.Fatalf("Open(tarball %d) error = %v", kind, err)
		}
		if v.Format != sniff.PackageArchive || len(v.Book.Sections()) != 2 {
			t.Errorf("tarball %d = %v with %d sections", kind, v.Format, len(v.Book.Sections()))
		}
	}

	if _, err := d.OpenPath(ctx, filepath.Join(dir, "missing.epub")); !errors.Is(err, errors.ErrFileNotFound) {
		t.Errorf("OpenPath(missing) error = %v, want ErrFileNotFound", err)
	}
}
