package sniff

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/FocuswithJustin/JuniperReader/core/errors"
)

var extensionMediaTypes = map[string]string{
	".epub": "application/epub+zip",
	".cbz":  MediaTypeComic,
	".fb2":  MediaTypeFB2,
	".fbz":  MediaTypeFBZ,
	".pdf":  "application/pdf",
	".mobi": "application/x-mobipocket-ebook",
	".azw3": "application/vnd.amazon.mobi8-ebook",
}

// MediaTypeFor guesses a media type from a file name.
func MediaTypeFor(name string) string {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".fb2.zip") {
		return MediaTypeFBZ
	}
	return extensionMediaTypes[filepath.Ext(lower)]
}

// BytesFile is an in-memory File.
type BytesFile struct {
	*bytes.Reader
	name      string
	mediaType string
}

// NewBytesFile wraps data as a File. An empty mediaType is guessed from name.
func NewBytesFile(name, mediaType string, data []byte) *BytesFile {
	if mediaType == "" {
		mediaType = MediaTypeFor(name)
	}
	return &BytesFile{Reader: bytes.NewReader(data), name: name, mediaType: mediaType}
}

func (f *BytesFile) Name() string      { return f.name }
func (f *BytesFile) MediaType() string { return f.mediaType }

// OSFile is a File backed by the local file system. Close it after use.
type OSFile struct {
	*os.File
	size      int64
	mediaType string
}

// OpenFile opens the regular file at path.
func OpenFile(path string) (*OSFile, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.NotFoundError{Resource: "file", ID: path, Err: err}
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &OSFile{File: f, size: info.Size(), mediaType: MediaTypeFor(path)}, nil
}

func (f *OSFile) Size() int64       { return f.size }
func (f *OSFile) MediaType() string { return f.mediaType }
