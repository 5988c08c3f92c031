package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/starford/zensync/internal/apperr"
	"github.com/starford/zensync/internal/ledger"
	"github.com/starford/zensync/internal/models"
	"github.com/starford/zensync/internal/syncer"
)

// SyncService is the part of *syncer.Service the API exposes.
type SyncService interface {
	State() models.PublicationState
	Candidates() ([]models.Candidate, error)
	Preview(path string) models.Metadata
	Running() bool
	Run(ctx context.Context, opts syncer.Options) (*syncer.Report, error)
}

var _ SyncService = (*syncer.Service)(nil)

// Handler holds API route handlers.
type Handler struct {
	svc     SyncService
	history ledger.Reader
}

// NewHandler creates a new Handler. history may be nil.
func NewHandler(svc SyncService, history ledger.Reader) *Handler {
	return &Handler{svc: svc, history: history}
}

// State handles GET /api/state.
//
//	@Summary		Recorded concept DOI per file
//	@Tags			state
//	@Produce		json
//	@Success		200	{object}	StateResponse
//	@Security		BearerAuth
//	@Router			/state [get]
func (h *Handler) State(w http.ResponseWriter, _ *http.Request) {
	state := h.svc.State()
	files := make([]StateEntry, 0, len(state))
	for path, fs := range state {
		files = append(files, StateEntry{Path: path, ConceptDOI: fs.ConceptDOI})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	writeJSON(w, http.StatusOK, StateResponse{Files: files, Running: h.svc.Running()})
}

// Candidates handles GET /api/candidates.
//
//	@Summary		Local files matched by the sync pattern
//	@Tags			state
//	@Produce		json
//	@Success		200	{object}	CandidatesResponse
//	@Security		BearerAuth
//	@Router			/candidates [get]
func (h *Handler) Candidates(w http.ResponseWriter, _ *http.Request) {
	cands, err := h.svc.Candidates()
	if err != nil {
		slog.Error("list candidates failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	state := h.svc.State()
	items := make([]CandidateItem, 0, len(cands))
	for _, c := range cands {
		items = append(items, CandidateItem{Candidate: c, ConceptDOI: state[c.Path].ConceptDOI})
	}
	writeJSON(w, http.StatusOK, CandidatesResponse{Candidates: items})
}

// Preview handles GET /api/preview.
//
//	@Summary		Metadata a run would send for one file
//	@Tags			state
//	@Produce		json
//	@Param			path	query		string	true	"Candidate path relative to the workspace"
//	@Success		200		{object}	PreviewResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/preview [get]
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "query parameter 'path' is required")
		return
	}
	writeJSON(w, http.StatusOK, PreviewResponse{Path: path, Metadata: h.svc.Preview(path)})
}

// History handles GET /api/history.
//
//	@Summary		Published versions, newest first
//	@Tags			history
//	@Produce		json
//	@Param			path	query		string	false	"Filter by file path"
//	@Param			limit	query		int		false	"Max rows"
//	@Success		200		{object}	HistoryResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/history [get]
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history ledger is disabled")
		return
	}
	q := r.URL.Query()
	path := q.Get("path")
	if path != "" {
		path = filepath.Clean(path)
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	rows, err := h.history.History(path, limit)
	if err != nil {
		slog.Error("history failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if rows == nil {
		rows = []models.Publication{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Publications: rows})
}

// Sync handles POST /api/sync. The run completes before the response is
// written; progress is streamed on /api/events.
//
//	@Summary		Run one sync pass
//	@Tags			sync
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SyncRequest	false	"Run options"
//	@Success		200		{object}	SyncResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		502		{object}	SyncResponse
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// A client disconnect must not abort a run halfway through a publish.
	ctx := context.WithoutCancel(r.Context())
	report, err := h.svc.Run(ctx, syncer.Options{DryRun: req.DryRun, SkipUnchanged: req.SkipUnchanged})
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrConflict):
			writeError(w, http.StatusConflict, "sync already running")
		case errors.Is(err, apperr.ErrRemote) && report != nil:
			writeJSON(w, http.StatusBadGateway, report)
		default:
			slog.Error("sync failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, report)
}
