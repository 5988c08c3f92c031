package syncer

import "time"

// Action is what a run did with one candidate.
type Action string

const (
	ActionCreated   Action = "created"
	ActionVersioned Action = "versioned"
	// ActionForked: a concept DOI was recorded but could not be found, so a
	// new deposition (and concept) was created instead.
	ActionForked    Action = "forked"
	ActionUnchanged Action = "unchanged"
	ActionPlanned   Action = "planned"
)

// FileResult is the outcome for one candidate.
type FileResult struct {
	Path               string `json:"path"`
	Action             Action `json:"action"`
	PreviousConceptDOI string `json:"previous_concept_doi,omitempty"`
	ConceptDOI         string `json:"concept_doi,omitempty"`
	DOI                string `json:"doi,omitempty"`
	DepositionID       int64  `json:"deposition_id,omitempty"`
	RecordID           int64  `json:"record_id,omitempty"`
}

// Report summarises one run.
type Report struct {
	RunID      string       `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	DryRun     bool         `json:"dry_run,omitempty"`
	Files      []FileResult `json:"files"`
	StateSaved bool         `json:"state_saved"`
	Error      string       `json:"error,omitempty"`
}
