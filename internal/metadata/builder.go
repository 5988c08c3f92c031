// Package metadata builds the deposition metadata sent to Zenodo for one
// candidate file from the shared template and its per-file overrides.
package metadata

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/starford/zensync/internal/models"
)

// Field names used by the deposit API.
const (
	FieldTitle           = "title"
	FieldDescription     = "description"
	FieldKeywords        = "keywords"
	FieldUploadType      = "upload_type"
	FieldPublicationType = "publication_type"
	FieldLicense         = "license"
	FieldPublicationDate = "publication_date"
)

// Defaults applied when neither the template nor the overrides set them.
const (
	DefaultUploadType      = "publication"
	DefaultPublicationType = "report"
	DefaultLicense         = "CC-BY-4.0"
)

const dateLayout = "2006-01-02"

// Builder merges a base template with per-file overrides.
type Builder struct {
	Base      models.Metadata
	Overrides models.FileMetadata
	// Now returns the current time; publication_date is its calendar day.
	Now func() time.Time
}

// For builds the metadata for the candidate at path (the normalised relative
// path, also the overrides key).
func (b *Builder) For(path string) models.Metadata {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	return Build(b.Base, b.Overrides[path], path, now())
}

// Build returns a new metadata document for path. Neither base nor
// override is modified.
func Build(base, override models.Metadata, path string, now time.Time) models.Metadata {
	meta := base.Clone()

	if title, ok := override[FieldTitle]; ok {
		meta[FieldTitle] = title
	} else {
		baseTitle, _ := base.String(FieldTitle)
		meta[FieldTitle] = fmt.Sprintf("%s: %s", baseTitle, filepath.Base(path))
	}

	if desc, ok := override[FieldDescription]; ok {
		meta[FieldDescription] = desc
	}

	if kw, ok := override[FieldKeywords]; ok {
		meta[FieldKeywords] = kw
	}

	setDefault(meta, FieldUploadType, DefaultUploadType)
	setDefault(meta, FieldPublicationType, DefaultPublicationType)
	setDefault(meta, FieldLicense, DefaultLicense)

	meta[FieldPublicationDate] = now.Format(dateLayout)
	return meta
}

func setDefault(m models.Metadata, key string, value any) {
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}
