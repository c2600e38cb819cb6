package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ulikunitz/xz"
)

// CompressionForPath picks the compression from an output file name.
// Anything not ending in .tar.xz or .txz is written as gzip.
func CompressionForPath(path string) Compression {
	if strings.HasSuffix(path, ".tar.xz") || strings.HasSuffix(path, ".txz") {
		return CompressionXZ
	}
	return CompressionGzip
}

// CreateTar packs the tree under srcDir into a compressed tar archive at dstPath.
// Entries are stored under baseDir when it is non-empty.
func CreateTar(srcDir, dstPath, baseDir string) error {
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	outFile, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer outFile.Close()

	if err := WriteTar(outFile, os.DirFS(srcDir), baseDir, CompressionForPath(dstPath)); err != nil {
		return err
	}
	return outFile.Close()
}

// WriteTar writes every file in fsys to w as a tar stream with the given compression.
func WriteTar(w io.Writer, fsys fs.FS, baseDir string, kind Compression) error {
	var zw io.WriteCloser
	switch kind {
	case CompressionXZ:
		xzw, err := xz.NewWriter(w)
		if err != nil {
			return fmt.Errorf("xz writer: %w", err)
		}
		zw = xzw
	case CompressionGzip:
		zw = gzip.NewWriter(w)
	}

	out := w
	if zw != nil {
		out = zw
	}
	tw := tar.NewWriter(out)

	// Normalize timestamps for reproducibility
	now := time.Now()

	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == "." {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}

		header.Name = path
		if baseDir != "" {
			header.Name = baseDir + "/" + path
		}
		if d.IsDir() {
			header.Name += "/"
		}
		header.ModTime = now

		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		file, err := fsys.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(tw, file)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	if err := tw.Close(); err != nil {
		return err
	}
	if zw != nil {
		return zw.Close()
	}
	return nil
}
