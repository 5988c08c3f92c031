// Package syncer reconciles the local PDF candidates with their Zenodo
// concepts: each candidate becomes a new deposition or a new version of the
// concept recorded for it, and the state document is rewritten when a
// concept DOI is established or changes.
package syncer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/zensync/internal/apperr"
	"github.com/starford/zensync/internal/jsonstore"
	"github.com/starford/zensync/internal/ledger"
	"github.com/starford/zensync/internal/metadata"
	"github.com/starford/zensync/internal/models"
	"github.com/starford/zensync/internal/storage"
	"github.com/starford/zensync/internal/zenodo"
)

// Depositor is the subset of the Zenodo client the orchestrator drives.
type Depositor interface {
	CreateDeposition(ctx context.Context, meta models.Metadata) (*models.Deposition, error)
	NewVersion(ctx context.Context, conceptDOI string, meta models.Metadata) (*models.Deposition, error)
	UploadFile(ctx context.Context, dep *models.Deposition, localPath, destName string) (*models.DepositionFile, error)
	Publish(ctx context.Context, dep *models.Deposition) (*models.Record, error)
}

var _ Depositor = (*zenodo.Client)(nil)

// Paths locates the workspace documents, relative to the workspace root.
type Paths struct {
	BaseMetadata string
	FileMetadata string
	State        string
	Pattern      string
}

// Options tune a single run.
type Options struct {
	// SkipUnchanged skips candidates whose checksum matches the last
	// published version in the ledger. Requires a ledger.
	SkipUnchanged bool
	// DryRun prints the plan without contacting the service or writing state.
	DryRun bool
}

// Event kinds passed to the EventCallback.
const (
	EventSyncStarted   = "sync.started"
	EventFilePublished = "file.published"
	EventSyncFinished  = "sync.finished"
	EventSyncFailed    = "sync.failed"
)

// EventCallback is called as a run progresses.
type EventCallback func(kind string, data any)

// Service runs sync passes over one workspace. Runs never overlap.
type Service struct {
	client  Depositor
	store   storage.Provider
	ledger  ledger.Recorder
	paths   Paths
	logger  *slog.Logger
	out     io.Writer
	now     func() time.Time
	onEvent EventCallback

	running sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithLedger records every publish in l.
func WithLedger(l ledger.Recorder) Option {
	return func(s *Service) { s.ledger = l }
}

// WithOutput sets where the human-readable progress report is written.
func WithOutput(w io.Writer) Option {
	return func(s *Service) { s.out = w }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the clock used for publication dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithEventCallback registers cb for run events.
func WithEventCallback(cb EventCallback) Option {
	return func(s *Service) { s.onEvent = cb }
}

// New creates a sync service.
func New(client Depositor, store storage.Provider, paths Paths, opts ...Option) *Service {
	s := &Service{
		client: client,
		store:  store,
		paths:  paths,
		logger: slog.Default(),
		out:    io.Discard,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs one sync pass. It returns apperr.ErrConflict if another pass
// is in progress. On a remote failure the run stops at the failing file and
// the state document is left untouched; the partial report is returned
// alongside the error. Cancelling ctx stops the run before the next file:
// the file in progress completes and concepts established so far are saved.
func (s *Service) Run(ctx context.Context, opts Options) (*Report, error) {
	if !s.running.TryLock() {
		return nil, fmt.Errorf("sync already running: %w", apperr.ErrConflict)
	}
	defer s.running.Unlock()

	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: s.now(),
		DryRun:    opts.DryRun,
	}
	logger := s.logger.With(slog.String("run_id", report.RunID))

	if opts.SkipUnchanged && s.ledger == nil {
		logger.Warn("sync: skip-unchanged requested without a ledger, publishing every candidate")
	}

	builder := s.Builder()
	state := s.State()

	candidates, err := s.store.Glob(s.paths.Pattern)
	if err != nil {
		return report, s.fail(report, fmt.Errorf("list candidates: %w", err))
	}
	logger.Info("sync: started",
		slog.String("pattern", s.paths.Pattern),
		slog.Int("candidates", len(candidates)),
		slog.Bool("dry_run", opts.DryRun))
	s.emit(EventSyncStarted, map[string]any{"run_id": report.RunID, "candidates": len(candidates)})

	// Remote calls for a file are never cut short; a half-published
	// deposition would leave a concept that is not recorded in state.
	callCtx := context.WithoutCancel(ctx)

	dirty := false
	var cancelErr error
	for _, c := range candidates {
		if cancelErr = ctx.Err(); cancelErr != nil {
			break
		}

		res, changed, err := s.syncOne(callCtx, logger, report.RunID, c, builder, state, opts)
		if err != nil {
			return report, s.fail(report, fmt.Errorf("sync %s: %w", c.Path, err))
		}
		report.Files = append(report.Files, res)
		if changed {
			dirty = true
		}
	}

	if dirty {
		if err := jsonstore.Save(s.store, s.paths.State, state); err != nil {
			return report, s.fail(report, err)
		}
		report.StateSaved = true
		fmt.Fprintf(s.out, "State updated in %s\n", s.paths.State)
	} else {
		fmt.Fprintln(s.out, "No state change.")
	}

	if cancelErr != nil {
		return report, s.fail(report, fmt.Errorf("sync interrupted: %w", cancelErr))
	}

	report.FinishedAt = s.now()
	logger.Info("sync: finished",
		slog.Int("files", len(report.Files)),
		slog.Bool("state_saved", report.StateSaved))
	s.emit(EventSyncFinished, report)
	return report, nil
}

// syncOne walks one candidate through create-or-version, upload and
// publish. changed reports whether state[c.Path] was updated.
func (s *Service) syncOne(ctx context.Context, logger *slog.Logger, runID string, c models.Candidate, builder *metadata.Builder, state models.PublicationState, opts Options) (FileResult, bool, error) {
	conceptDOI := state[c.Path].ConceptDOI
	res := FileResult{Path: c.Path, PreviousConceptDOI: conceptDOI, ConceptDOI: conceptDOI}
	meta := builder.For(c.Path)

	fmt.Fprintf(s.out, "==> Sync %s\n", c.Path)

	if ok, err := storage.SniffPDF(s.store, c.Path); err == nil && !ok {
		logger.Warn("sync: candidate does not look like a PDF", slog.String("path", c.Path))
	}

	if opts.SkipUnchanged && s.ledger != nil && conceptDOI != "" {
		last, err := s.ledger.LatestChecksum(c.Path)
		if err != nil {
			logger.Warn("sync: ledger lookup failed", slog.String("path", c.Path), slog.String("error", err.Error()))
		} else if last == c.Checksum {
			fmt.Fprintln(s.out, "   Unchanged since last publish, skipped")
			res.Action = ActionUnchanged
			return res, false, nil
		}
	}

	if opts.DryRun {
		if conceptDOI != "" {
			fmt.Fprintf(s.out, "   Would publish a new version of %s (title %q)\n", conceptDOI, meta[metadata.FieldTitle])
		} else {
			fmt.Fprintf(s.out, "   Would create a new deposition (title %q)\n", meta[metadata.FieldTitle])
		}
		res.Action = ActionPlanned
		return res, false, nil
	}

	var (
		dep *models.Deposition
		err error
	)
	if conceptDOI != "" {
		fmt.Fprintf(s.out, "   Existing concept DOI: %s → new version\n", conceptDOI)
		res.Action = ActionVersioned
		dep, err = s.client.NewVersion(ctx, conceptDOI, meta)
	} else {
		fmt.Fprintln(s.out, "   No concept DOI yet → new deposition")
		res.Action = ActionCreated
		dep, err = s.client.CreateDeposition(ctx, meta)
	}
	if err != nil {
		return res, false, err
	}
	res.DepositionID = dep.ID

	localPath, err := s.store.Abs(c.Path)
	if err != nil {
		return res, false, err
	}
	if _, err := s.client.UploadFile(ctx, dep, localPath, c.Name); err != nil {
		return res, false, err
	}

	rec, err := s.client.Publish(ctx, dep)
	if err != nil {
		return res, false, err
	}
	res.RecordID = rec.ID
	res.DOI = rec.DOI
	fmt.Fprintf(s.out, "   Published DOI: %s\n", rec.DOI)
	fmt.Fprintf(s.out, "   Concept DOI: %s\n", rec.ConceptDOI)

	changed := false
	if rec.ConceptDOI != "" && rec.ConceptDOI != conceptDOI {
		if conceptDOI != "" {
			// The recorded concept could not be found; a new lineage was started.
			logger.Warn("sync: concept DOI replaced",
				slog.String("path", c.Path),
				slog.String("old_concept_doi", conceptDOI),
				slog.String("new_concept_doi", rec.ConceptDOI))
			res.Action = ActionForked
		}
		state[c.Path] = models.FileState{ConceptDOI: rec.ConceptDOI}
		changed = true
	}
	if rec.ConceptDOI != "" {
		res.ConceptDOI = rec.ConceptDOI
	}

	if s.ledger != nil {
		err := s.ledger.Record(models.Publication{
			RunID:        runID,
			Path:         c.Path,
			Checksum:     c.Checksum,
			DepositionID: dep.ID,
			RecordID:     rec.ID,
			DOI:          rec.DOI,
			ConceptDOI:   rec.ConceptDOI,
			PublishedAt:  s.now(),
		})
		if err != nil {
			logger.Warn("sync: ledger record failed", slog.String("path", c.Path), slog.String("error", err.Error()))
		}
	}

	logger.Info("sync: published",
		slog.String("path", c.Path),
		slog.String("action", string(res.Action)),
		slog.String("doi", rec.DOI),
		slog.String("concept_doi", rec.ConceptDOI))
	s.emit(EventFilePublished, res)
	return res, changed, nil
}

func (s *Service) fail(report *Report, err error) error {
	report.FinishedAt = s.now()
	report.Error = err.Error()
	s.logger.Error("sync: failed", slog.String("run_id", report.RunID), slog.String("error", err.Error()))
	s.emit(EventSyncFailed, report)
	return err
}

func (s *Service) emit(kind string, data any) {
	if s.onEvent != nil {
		s.onEvent(kind, data)
	}
}
