package api

import (
	"github.com/starford/zensync/internal/models"
	"github.com/starford/zensync/internal/syncer"
)

// SyncRequest is the optional request body for POST /api/sync.
type SyncRequest struct {
	DryRun        bool `json:"dry_run" example:"false"`
	SkipUnchanged bool `json:"skip_unchanged" example:"true"`
}

// StateEntry is one file of the publication state.
type StateEntry struct {
	Path       string `json:"path" example:"out/report.pdf" validate:"required"`
	ConceptDOI string `json:"concept_doi" example:"10.5281/zenodo.111" validate:"required"`
}

// StateResponse lists the recorded concept DOIs, sorted by path.
type StateResponse struct {
	Files   []StateEntry `json:"files" validate:"required"`
	Running bool         `json:"running"`
}

// CandidateItem is a local file the next run would publish.
type CandidateItem struct {
	models.Candidate
	ConceptDOI string `json:"concept_doi,omitempty" example:"10.5281/zenodo.111"`
}

// CandidatesResponse wraps the candidate listing.
type CandidatesResponse struct {
	Candidates []CandidateItem `json:"candidates" validate:"required"`
}

// PreviewResponse is the metadata a run would send for one file.
type PreviewResponse struct {
	Path     string          `json:"path" example:"out/report.pdf" validate:"required"`
	Metadata models.Metadata `json:"metadata" validate:"required"`
}

// HistoryResponse wraps ledger rows, newest first.
type HistoryResponse struct {
	Publications []models.Publication `json:"publications" validate:"required"`
}

// SyncResponse is the report of a completed run.
type SyncResponse = syncer.Report
