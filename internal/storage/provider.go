// Package storage defines the workspace file-system abstraction: candidate
// discovery for publication and the local JSON documents.
package storage

import (
	"io"

	"github.com/starford/zensync/internal/models"
)

// Provider is the interface for workspace file operations. All paths are
// relative to the workspace root.
type Provider interface {
	// Glob returns the files matching pattern, sorted by path.
	Glob(pattern string) ([]models.Candidate, error)
	// Open opens the file at path for streaming reads.
	Open(path string) (io.ReadCloser, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces the file at path with content.
	Write(path string, content []byte) error
	// Abs resolves path against the workspace root.
	Abs(path string) (string, error)
}
