package syncer

import (
	"path/filepath"

	"github.com/starford/zensync/internal/jsonstore"
	"github.com/starford/zensync/internal/metadata"
	"github.com/starford/zensync/internal/models"
)

// Builder loads the metadata documents and returns a builder over them.
func (s *Service) Builder() *metadata.Builder {
	base := jsonstore.Load(s.store, s.paths.BaseMetadata, models.Metadata{})
	files := jsonstore.Load(s.store, s.paths.FileMetadata, models.FileMetadata{})
	return &metadata.Builder{Base: base, Overrides: files, Now: s.now}
}

// State loads the publication state document.
func (s *Service) State() models.PublicationState {
	return jsonstore.Load(s.store, s.paths.State, models.PublicationState{})
}

// Candidates lists the files the next run would process.
func (s *Service) Candidates() ([]models.Candidate, error) {
	return s.store.Glob(s.paths.Pattern)
}

// Preview returns the metadata a run would send for path today.
func (s *Service) Preview(path string) models.Metadata {
	return s.Builder().For(filepath.Clean(path))
}

// Running reports whether a run is in progress.
func (s *Service) Running() bool {
	if s.running.TryLock() {
		s.running.Unlock()
		return false
	}
	return true
}
