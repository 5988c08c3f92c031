// Package jsonstore loads and saves the small JSON documents zensync keeps
// in the workspace: base metadata, per-file overrides and publication state.
//
// Loading is tolerant: a missing, empty or unparseable document yields the
// caller's default instead of an error.
package jsonstore

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/starford/zensync/internal/storage"
)

// Load decodes the document at path into a fresh T. It returns def when the
// file cannot be read, is blank, holds JSON null, or fails to decode as T.
func Load[T any](store storage.Provider, path string, def T) T {
	data, err := store.Read(path)
	if err != nil {
		return def
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return def
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return def
	}
	return out
}

// Save replaces the document at path with v encoded as two-space indented
// JSON. Non-ASCII text and HTML-significant characters are written verbatim.
func Save(store storage.Provider, path string, v any) error {
	data, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("jsonstore: encode %s: %w", path, err)
	}
	if err := store.Write(path, data); err != nil {
		return fmt.Errorf("jsonstore: save %s: %w", path, err)
	}
	return nil
}

// Marshal renders v the way Save writes it.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
