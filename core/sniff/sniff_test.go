package sniff

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/FocuswithJustin/JuniperReader/core/errors"
)

// countingFile records how far into the file the classifier reads.
type countingFile struct {
	*BytesFile
	maxOffset int64
}

func (f *countingFile) ReadAt(p []byte, off int64) (int, error) {
	if end := off + int64(len(p)); end > f.maxOffset {
		f.maxOffset = end
	}
	return f.BytesFile.ReadAt(p, off)
}

func mobiProbe(r io.ReaderAt, size int64) bool {
	if size < 68 {
		return false
	}
	buf := make([]byte, 8)
	if _, err := r.ReadAt(buf, 60); err != nil {
		return false
	}
	return string(buf) == "BOOKMOBI"
}

func mobiBytes() []byte {
	data := make([]byte, 100)
	copy(data[60:], "BOOKMOBI")
	return data
}

func TestClassify(t *testing.T) {
	zip := []byte("PK\x03\x04rest-of-archive")
	pdf := []byte("%PDF-1.7\n...")

	tests := []struct {
		name      string
		file      string
		mediaType string
		data      []byte
		want      Format
	}{
		{"epub", "book.epub", "", zip, PackageArchive},
		{"unknown zip defaults to package", "book.zip", "application/zip", zip, PackageArchive},
		{"cbz by suffix", "issue1.cbz", "application/zip", zip, ComicArchive},
		{"cbz by media type", "issue1.bin", MediaTypeComic, zip, ComicArchive},
		{"fbz suffix", "novel.fbz", "application/zip", zip, CompressedStructuredMarkup},
		{"fb2.zip suffix", "novel.fb2.zip", "application/zip", zip, CompressedStructuredMarkup},
		{"fbz media type", "novel.bin", MediaTypeFBZ, zip, CompressedStructuredMarkup},
		{"pdf", "paper.bin", "", pdf, FixedPage},
		{"pdf magic needs dash", "paper.pdf", "", []byte("%PDF1"), Unknown},
		{"mobi", "book.mobi", "", mobiBytes(), LegacyPacked},
		{"fb2 by suffix", "novel.fb2", "", []byte("<?xml version='1.0'?><FictionBook/>"), StructuredMarkupSingleFile},
		{"fb2 by media type", "novel", MediaTypeFB2, []byte("<FictionBook/>"), StructuredMarkupSingleFile},
		{"short file", "x", "", []byte("P"), Unknown},
		{"plain text", "notes.txt", "", []byte("hello world"), Unknown},
	}

	c := Classifier{LegacyProbe: mobiProbe}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Classify(NewBytesFile(tt.file, tt.mediaType, tt.data))
			if err != nil {
				t.Fatalf("Classify failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyZeroLength(t *testing.T) {
	_, err := Classifier{}.Classify(NewBytesFile("empty.epub", "", nil))
	if !errors.Is(err, errors.ErrFileNotFound) {
		t.Errorf("Classify(empty) error = %v, want ErrFileNotFound", err)
	}
}

func TestClassifyReadsBoundedPrefix(t *testing.T) {
	data := make([]byte, 1<<20)
	copy(data, "PK\x03\x04")
	f := &countingFile{BytesFile: NewBytesFile("big.epub", "", data)}

	got, err := Classifier{}.Classify(f)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if got != PackageArchive {
		t.Errorf("Classify() = %v, want %v", got, PackageArchive)
	}
	if f.maxOffset > 5 {
		t.Errorf("classifier read up to byte %d, want at most 5", f.maxOffset)
	}
}

func TestClassifyWithoutLegacyProbe(t *testing.T) {
	got, err := Classifier{}.Classify(NewBytesFile("book.mobi", "", mobiBytes()))
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if got != Unknown {
		t.Errorf("Classify() = %v, want %v", got, Unknown)
	}
}

func TestFormatArchive(t *testing.T) {
	for f, want := range map[Format]bool{
		PackageArchive:             true,
		ComicArchive:               true,
		CompressedStructuredMarkup: true,
		FixedPage:                  false,
		StructuredMarkupSingleFile: false,
		Unknown:                    false,
	} {
		if got := f.Archive(); got != want {
			t.Errorf("%v.Archive() = %v, want %v", f, got, want)
		}
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "novel.FB2")
	if err := os.WriteFile(path, []byte("<FictionBook/>"), 0644); err != nil {
		t.Fatal(err)
	}
	f, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()

	if f.Size() != 14 {
		t.Errorf("Size() = %d, want 14", f.Size())
	}
	if f.MediaType() != MediaTypeFB2 {
		t.Errorf("MediaType() = %q, want %q", f.MediaType(), MediaTypeFB2)
	}

	if _, err := OpenFile(filepath.Join(t.TempDir(), "missing.epub")); !errors.Is(err, errors.ErrFileNotFound) {
		t.Errorf("OpenFile(missing) error = %v, want ErrFileNotFound", err)
	}
}
