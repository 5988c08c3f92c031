package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/zensync/internal/checksum"
	"github.com/starford/zensync/internal/models"
)

var pdfMagic = []byte("%PDF-")

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to workspace directory
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute workspace root.
func (f *FS) Root() string {
	return f.root
}

// safePath resolves a relative path against the workspace root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs := filepath.Join(f.root, cleaned)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes workspace root: %s", rel)
	}
	return abs, nil
}

// Abs resolves path against the workspace root.
func (f *FS) Abs(path string) (string, error) {
	return f.safePath(path)
}

// Glob expands pattern relative to the root and returns one Candidate per
// regular file, sorted lexicographically by normalised relative path.
// Wildcards do not match names starting with a dot.
func (f *FS) Glob(pattern string) ([]models.Candidate, error) {
	if _, err := f.safePath(filepath.Dir(pattern)); err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(filepath.Join(f.root, filepath.Clean(pattern)))
	if err != nil {
		return nil, fmt.Errorf("storage: glob %s: %w", pattern, err)
	}

	out := make([]models.Candidate, 0, len(matches))
	for _, abs := range matches {
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("storage: stat %s: %w", abs, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}
		rel, err := filepath.Rel(f.root, abs)
		if err != nil {
			return nil, fmt.Errorf("storage: rel %s: %w", abs, err)
		}
		if Hidden(pattern, rel) {
			continue
		}
		sum, err := fileChecksum(abs)
		if err != nil {
			return nil, err
		}
		out = append(out, models.Candidate{
			Path:     filepath.Clean(rel),
			Name:     filepath.Base(abs),
			Checksum: sum,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Hidden reports whether rel, a match of pattern, has a dot-file element
// that the pattern only reached through a wildcard.
func Hidden(pattern, rel string) bool {
	pp := strings.Split(filepath.Clean(pattern), string(filepath.Separator))
	rp := strings.Split(filepath.Clean(rel), string(filepath.Separator))
	for i, name := range rp {
		if !strings.HasPrefix(name, ".") || name == "." || name == ".." {
			continue
		}
		if i >= len(pp) || !strings.HasPrefix(pp[i], ".") {
			return true
		}
	}
	return false
}

func fileChecksum(abs string) (string, error) {
	fh, err := os.Open(abs)
	if err != nil {
		return "", fmt.Errorf("storage: open %s: %w", abs, err)
	}
	defer fh.Close()
	sum, _, err := checksum.SumReader(fh)
	if err != nil {
		return "", fmt.Errorf("storage: checksum %s: %w", abs, err)
	}
	return sum, nil
}

// Open opens the file at path for reading. The caller closes it.
func (f *FS) Open(path string) (io.ReadCloser, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	fh, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	return fh, nil
}

// Read returns the raw bytes of a workspace file.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(path string, content []byte) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".zensync-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// SniffPDF reports whether the file at path starts with the PDF header.
func SniffPDF(p Provider, path string) (bool, error) {
	fh, err := p.Open(path)
	if err != nil {
		return false, err
	}
	defer fh.Close()
	head := make([]byte, 1024)
	n, err := io.ReadFull(fh, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false, fmt.Errorf("storage: sniff %s: %w", path, err)
	}
	return bytes.Contains(head[:n], pdfMagic), nil
}
