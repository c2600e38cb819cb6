// Package archive provides utilities for reading and writing compressed tar archives.
// It supports the tar.gz and tar.xz containers used to ship unpacked book trees.
package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"

	"github.com/ulikunitz/xz"
)

// Compression identifies the stream wrapped around a tar archive.
type Compression int

const (
	// CompressionNone is a plain tar stream.
	CompressionNone Compression = iota
	// CompressionGzip is a gzip-wrapped tar stream.
	CompressionGzip
	// CompressionXZ is an xz-wrapped tar stream.
	CompressionXZ
)

// String names the container, e.g. "tar.xz".
func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "tar.gz"
	case CompressionXZ:
		return "tar.xz"
	default:
		return "tar"
	}
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	xzMagic   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

// DetectCompression reports the compression of a stream from its first bytes.
// The second result is false when the prefix matches neither gzip nor xz.
func DetectCompression(prefix []byte) (Compression, bool) {
	switch {
	case bytes.HasPrefix(prefix, xzMagic):
		return CompressionXZ, true
	case bytes.HasPrefix(prefix, gzipMagic):
		return CompressionGzip, true
	default:
		return CompressionNone, false
	}
}

// Reader wraps a tar.Reader with automatic decompression handling.
type Reader struct {
	*tar.Reader
	closer       io.Closer
	decompressor io.Closer
}

// NewReader creates a new archive reader over r.
// The compression is detected from the stream's magic bytes.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	prefix, err := br.Peek(len(xzMagic))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read magic: %w", err)
	}

	var reader io.Reader = br
	var decompressor io.Closer

	kind, _ := DetectCompression(prefix)
	switch kind {
	case CompressionXZ:
		xzr, err := xz.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		reader = xzr
	case CompressionGzip:
		gzr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		reader = gzr
		decompressor = gzr
	}

	return &Reader{
		Reader:       tar.NewReader(reader),
		decompressor: decompressor,
	}, nil
}

// Open opens the archive at path for reading.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// Close closes the archive reader and any underlying decompressors.
func (r *Reader) Close() error {
	var errs []error
	if r.decompressor != nil {
		if err := r.decompressor.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.closer != nil {
		if err := r.closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Visitor is a callback function for iterating archive entries.
// Return true to stop iteration, false to continue.
type Visitor func(header *tar.Header, content io.Reader) (stop bool, err error)

// Iterate walks through all entries in the archive, calling the visitor for each.
func (r *Reader) Iterate(visitor Visitor) error {
	for {
		header, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}

		stop, err := visitor(header, r)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}
