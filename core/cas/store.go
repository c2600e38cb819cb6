// Package cas keeps uploaded books in a content-addressed store. Every blob
// is stored under its BLAKE3 fingerprint, so the same book uploaded twice is
// kept once and its annotations stay attached to it.
package cas

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/FocuswithJustin/JuniperReader/core/book"
)

// osRename is a variable to allow testing of rename errors.
var osRename = os.Rename

// tempFileWrite is a function variable for writing to temp files (for testing).
var tempFileWrite = func(f *os.File, data []byte) (int, error) {
	return f.Write(data)
}

// tempFileClose is a function variable for closing temp files (for testing).
var tempFileClose = func(f io.Closer) error {
	return f.Close()
}

// ErrBlobNotFound is returned when no blob has the given fingerprint.
var ErrBlobNotFound = errors.New("blob not found")

// ErrInvalidHash is returned when a fingerprint is not a 64-digit lowercase hex string.
var ErrInvalidHash = errors.New("invalid hash format")

var hashPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Entry describes a stored upload.
type Entry struct {
	Fingerprint string    `json:"fingerprint"`
	Name        string    `json:"name"`
	MediaType   string    `json:"mediaType,omitempty"`
	Size        int64     `json:"size"`
	StoredAt    time.Time `json:"storedAt"`
}

// Store provides content-addressed storage for uploaded books.
type Store struct {
	root string
}

// NewStore creates a store at root. The directory structure is created if
// it doesn't exist.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, "blobs", "blake3"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &Store{root: root}, nil
}

// Put stores data with its upload name and media type. Storing content
// that is already present only refreshes its entry.
func (s *Store) Put(name, mediaType string, data []byte) (Entry, error) {
	e := Entry{
		Fingerprint: book.Fingerprint(data),
		Name:        filepath.Base(name),
		MediaType:   mediaType,
		Size:        int64(len(data)),
		StoredAt:    time.Now().UTC(),
	}
	blobPath := s.pathFor(e.Fingerprint)
	if _, err := os.Stat(blobPath); err != nil {
		if err := writeAtomic(blobPath, data); err != nil {
			return Entry{}, fmt.Errorf("failed to write blob: %w", err)
		}
	}
	meta, err := json.Marshal(e)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to marshal entry: %w", err)
	}
	if err := writeAtomic(blobPath+".json", meta); err != nil {
		return Entry{}, fmt.Errorf("failed to write entry: %w", err)
	}
	return e, nil
}

// Get returns the blob and entry stored under fingerprint.
func (s *Store) Get(fingerprint string) ([]byte, Entry, error) {
	e, err := s.Stat(fingerprint)
	if err != nil {
		return nil, Entry{}, err
	}
	data, err := os.ReadFile(s.pathFor(fingerprint))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Entry{}, ErrBlobNotFound
		}
		return nil, Entry{}, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, e, nil
}

// Stat returns the entry stored under fingerprint.
func (s *Store) Stat(fingerprint string) (Entry, error) {
	if !hashPattern.MatchString(fingerprint) {
		return Entry{}, ErrInvalidHash
	}
	raw, err := os.ReadFile(s.pathFor(fingerprint) + ".json")
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, ErrBlobNotFound
		}
		return Entry{}, fmt.Errorf("failed to read entry: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, fmt.Errorf("failed to parse entry: %w", err)
	}
	return e, nil
}

// Exists reports whether a blob is stored under fingerprint.
func (s *Store) Exists(fingerprint string) bool {
	if !hashPattern.MatchString(fingerprint) {
		return false
	}
	_, err := os.Stat(s.pathFor(fingerprint))
	return err == nil
}

// List returns every stored entry, newest first.
func (s *Store) List() ([]Entry, error) {
	matches, err := filepath.Glob(filepath.Join(s.root, "blobs", "blake3", "*", "*.json"))
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(matches))
	for _, m := range matches {
		fp := filepath.Base(m)
		fp = fp[:len(fp)-len(".json")]
		e, err := s.Stat(fp)
		if err != nil {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].StoredAt.After(entries[j].StoredAt)
	})
	return entries, nil
}

// Delete removes a blob and its entry.
func (s *Store) Delete(fingerprint string) error {
	if !hashPattern.MatchString(fingerprint) {
		return ErrInvalidHash
	}
	p := s.pathFor(fingerprint)
	if err := os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return ErrBlobNotFound
		}
		return err
	}
	if err := os.Remove(p + ".json"); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// pathFor returns the file path for a blob.
// Blobs are stored at: <root>/blobs/blake3/<first2>/<fingerprint>
func (s *Store) pathFor(fingerprint string) string {
	return filepath.Join(s.root, "blobs", "blake3", fingerprint[:2], fingerprint)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create prefix directory: %w", err)
	}
	tempFile, err := os.CreateTemp(dir, ".blob-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	if _, err := tempFileWrite(tempFile, data); err != nil {
		tempFileClose(tempFile)
		os.Remove(tempPath)
		return err
	}
	if err := tempFileClose(tempFile); err != nil {
		os.Remove(tempPath)
		return err
	}
	// Rename to final path (atomic on POSIX)
	if err := osRename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return err
	}
	return nil
}
