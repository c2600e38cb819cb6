// Package sniff classifies book files by magic bytes, media type and name.
//
// Classification follows a fixed priority: the zip local-file-header
// signature first (then the zip subtype by media type or suffix), the PDF
// signature second, the legacy packed-binary probe third, and the
// FictionBook name rules last. Only the first five bytes are read for the two
// signatures, so the cost does not depend on the file size.
package sniff

import (
	"bytes"
	"io"
	"path"
	"strings"

	"github.com/FocuswithJustin/JuniperReader/core/errors"
)

// Format is the closed set of classifications.
type Format int

const (
	Unknown Format = iota
	PackageArchive
	ComicArchive
	CompressedSingleFile
	StructuredMarkupSingleFile
	CompressedStructuredMarkup
	FixedPage
	LegacyPacked
)

var formatNames = map[Format]string{
	Unknown:                    "unknown",
	PackageArchive:             "package-archive",
	ComicArchive:               "comic-archive",
	CompressedSingleFile:       "compressed-single-file",
	StructuredMarkupSingleFile: "structured-markup",
	CompressedStructuredMarkup: "compressed-structured-markup",
	FixedPage:                  "fixed-page",
	LegacyPacked:               "legacy-packed",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return "unknown"
}

// Archive reports whether the format lives inside a zip container.
func (f Format) Archive() bool {
	switch f {
	case PackageArchive, ComicArchive, CompressedStructuredMarkup:
		return true
	}
	return false
}

// Media types recognised by the subtype rules.
const (
	MediaTypeComic = "application/vnd.comicbook+zip"
	MediaTypeFB2   = "application/x-fictionbook+xml"
	MediaTypeFBZ   = "application/x-zip-compressed-fb2"
)

var (
	zipMagic = []byte{0x50, 0x4b, 0x03, 0x04}
	pdfMagic = []byte{0x25, 0x50, 0x44, 0x46, 0x2d}
)

// File is the view of an input file the classifier needs.
type File interface {
	io.ReaderAt
	Name() string
	MediaType() string
	Size() int64
}

// Probe reports whether the content of r is claimed by a codec.
type Probe func(r io.ReaderAt, size int64) bool

// Classifier classifies files. LegacyProbe is supplied by the legacy codec;
// when nil, nothing is classified as LegacyPacked.
type Classifier struct {
	LegacyProbe Probe
}

// Classify returns the format of f. A zero-length file fails with
// ErrFileNotFound before any classification happens.
func (c Classifier) Classify(f File) (Format, error) {
	if f.Size() <= 0 {
		return Unknown, errors.NewNotFound("file", f.Name())
	}

	prefix, err := ReadPrefix(f, len(pdfMagic))
	if err != nil {
		return Unknown, errors.Wrapf(err, "read %s", f.Name())
	}

	switch {
	case bytes.HasPrefix(prefix, zipMagic):
		switch {
		case IsComic(f.Name(), f.MediaType()):
			return ComicArchive, nil
		case IsFBZ(f.Name(), f.MediaType()):
			return CompressedStructuredMarkup, nil
		default:
			return PackageArchive, nil
		}
	case bytes.HasPrefix(prefix, pdfMagic):
		return FixedPage, nil
	case c.LegacyProbe != nil && c.LegacyProbe(f, f.Size()):
		return LegacyPacked, nil
	case IsFB2(f.Name(), f.MediaType()):
		return StructuredMarkupSingleFile, nil
	}
	return Unknown, nil
}

// ReadPrefix reads up to n bytes from the start of f.
func ReadPrefix(f File, n int) ([]byte, error) {
	if size := f.Size(); size < int64(n) {
		n = int(size)
	}
	buf := make([]byte, n)
	read, err := f.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:read], nil
}

// IsComic reports the comic-archive subtype.
func IsComic(name, mediaType string) bool {
	return mediaType == MediaTypeComic || hasSuffix(name, ".cbz")
}

// IsFBZ reports the zipped FictionBook subtype.
func IsFBZ(name, mediaType string) bool {
	return mediaType == MediaTypeFBZ || hasSuffix(name, ".fb2.zip") || hasSuffix(name, ".fbz")
}

// IsFB2 reports a single-file FictionBook document.
func IsFB2(name, mediaType string) bool {
	return mediaType == MediaTypeFB2 || hasSuffix(name, ".fb2")
}

func hasSuffix(name, suffix string) bool {
	return strings.HasSuffix(strings.ToLower(path.Base(name)), suffix)
}
