// Package models defines the domain types for zensync.
package models

import "time"

// Metadata is a Zenodo deposition metadata document. Keys follow the
// deposit API field names (title, upload_type, publication_date, ...).
type Metadata map[string]any

// Clone returns a shallow copy of m. A nil receiver yields an empty map.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m)+4)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// String returns the value of key when it is a string.
func (m Metadata) String(key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// FileMetadata maps a candidate's relative path to its metadata overrides.
type FileMetadata map[string]Metadata

// FileState is the durable record kept for one published file.
type FileState struct {
	ConceptDOI string `json:"conceptdoi,omitempty"`
}

// PublicationState maps a candidate's relative path to its last known
// concept DOI.
type PublicationState map[string]FileState

// Candidate is a local file eligible for publication.
type Candidate struct {
	Path     string    `json:"path"`
	Name     string    `json:"name"`
	Checksum string    `json:"checksum"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
}

// Links are the hypermedia links attached to depositions and records.
type Links struct {
	Self        string `json:"self,omitempty"`
	HTML        string `json:"html,omitempty"`
	Files       string `json:"files,omitempty"`
	Bucket      string `json:"bucket,omitempty"`
	Publish     string `json:"publish,omitempty"`
	NewVersion  string `json:"newversion,omitempty"`
	LatestDraft string `json:"latest_draft,omitempty"`
	Latest      string `json:"latest,omitempty"`
	Record      string `json:"record,omitempty"`
	DOI         string `json:"doi,omitempty"`
}

// DepositionFile is a file attached to a deposition.
type DepositionFile struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize,omitempty"`
	Checksum string `json:"checksum,omitempty"`
}

// Deposition is a draft (or published) container for one version.
type Deposition struct {
	ID           int64            `json:"id"`
	ConceptRecID string           `json:"conceptrecid,omitempty"`
	ConceptDOI   string           `json:"conceptdoi,omitempty"`
	DOI          string           `json:"doi,omitempty"`
	State        string           `json:"state,omitempty"`
	Submitted    bool             `json:"submitted,omitempty"`
	Files        []DepositionFile `json:"files,omitempty"`
	Links        Links            `json:"links"`
	Metadata     Metadata         `json:"metadata,omitempty"`
}

// Record is a published, immutable version.
type Record struct {
	ID           int64    `json:"id"`
	ConceptRecID string   `json:"conceptrecid,omitempty"`
	DOI          string   `json:"doi,omitempty"`
	ConceptDOI   string   `json:"conceptdoi,omitempty"`
	Links        Links    `json:"links"`
	Metadata     Metadata `json:"metadata,omitempty"`
}

// Publication is one row of the local publication history.
type Publication struct {
	RunID        string    `json:"run_id"`
	Path         string    `json:"path"`
	Checksum     string    `json:"checksum"`
	DepositionID int64     `json:"deposition_id"`
	RecordID     int64     `json:"record_id"`
	DOI          string    `json:"doi"`
	ConceptDOI   string    `json:"concept_doi"`
	PublishedAt  time.Time `json:"published_at"`
}
