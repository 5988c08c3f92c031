package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/starford/zensync/internal/models"
)

// FakeToken is the access token FakeZenodo accepts.
const FakeToken = "test-token"

type fakeDeposition struct {
	dep       models.Deposition
	contents  map[string][]byte // file id → uploaded bytes
	published bool
}

type failure struct {
	method string
	prefix string
	status int
}

// FakeZenodo is an in-memory stand-in for the Zenodo deposit API, served
// over httptest. Published record ids equal their deposition ids.
type FakeZenodo struct {
	Server *httptest.Server

	mu          sync.Mutex
	calls       []string
	nextID      int64
	nextFile    int
	depositions map[int64]*fakeDeposition
	concepts    map[string]int64 // concept DOI → latest published id
	failures    []failure
}

// NewFakeZenodo starts a fake service that is closed with the test.
func NewFakeZenodo(t *testing.T) *FakeZenodo {
	t.Helper()
	f := &FakeZenodo{
		nextID:      1000,
		depositions: make(map[int64]*fakeDeposition),
		concepts:    make(map[string]int64),
	}

	r := chi.NewRouter()
	r.Use(f.record)
	r.Use(f.auth)
	r.Use(f.inject)
	r.Get("/api/records", f.search)
	r.Get("/api/records/{id}", f.getRecord)
	r.Post("/api/deposit/depositions", f.create)
	r.Get("/api/deposit/depositions/{id}", f.getDeposition)
	r.Put("/api/deposit/depositions/{id}", f.update)
	r.Post("/api/deposit/depositions/{id}/actions/newversion", f.newVersion)
	r.Post("/api/deposit/depositions/{id}/actions/publish", f.publish)
	r.Get("/api/deposit/depositions/{id}/files", f.listFiles)
	r.Post("/api/deposit/depositions/{id}/files", f.upload)
	r.Delete("/api/deposit/depositions/{id}/files/{fileID}", f.deleteFile)

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the instance base URL (without /api).
func (f *FakeZenodo) URL() string {
	return f.Server.URL
}

// Seed registers an already published record with the given id under
// conceptDOI, as if a previous run had published it. The record carries one
// file named fileName (skipped when empty).
func (f *FakeZenodo) Seed(conceptDOI string, id int64, fileName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fd := &fakeDeposition{
		dep: models.Deposition{
			ID:           id,
			ConceptRecID: strconv.FormatInt(id-1, 10),
			ConceptDOI:   conceptDOI,
			DOI:          fmt.Sprintf("10.5281/zenodo.%d", id),
			State:        "done",
			Submitted:    true,
		},
		contents:  make(map[string][]byte),
		published: true,
	}
	if fileName != "" {
		fid := f.newFileID()
		fd.dep.Files = append(fd.dep.Files, models.DepositionFile{ID: fid, Filename: fileName})
		fd.contents[fid] = []byte("%PDF-seed")
	}
	f.depositions[id] = fd
	f.concepts[conceptDOI] = id
	if id >= f.nextID {
		f.nextID = id + 1
	}
}

// FailOn makes every request whose method matches and whose path starts
// with prefix answer with status.
func (f *FakeZenodo) FailOn(method, prefix string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, failure{method: method, prefix: prefix, status: status})
}

// Calls returns "METHOD /path" for every request received, in order.
func (f *FakeZenodo) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CountCalls returns how many requests matched method and path suffix.
func (f *FakeZenodo) CountCalls(method, suffix string) int {
	n := 0
	for _, c := range f.Calls() {
		m, p, _ := strings.Cut(c, " ")
		if m == method && strings.HasSuffix(p, suffix) {
			n++
		}
	}
	return n
}

// Files returns the files attached to deposition id.
func (f *FakeZenodo) Files(id int64) []models.DepositionFile {
	f.mu.Lock()
	defer f.mu.Unlock()
	fd, ok := f.depositions[id]
	if !ok {
		return nil
	}
	return append([]models.DepositionFile(nil), fd.dep.Files...)
}

// FileContent returns the bytes uploaded for fileName on deposition id.
func (f *FakeZenodo) FileContent(id int64, fileName string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	fd, ok := f.depositions[id]
	if !ok {
		return nil
	}
	for _, file := range fd.dep.Files {
		if file.Filename == fileName {
			return fd.contents[file.ID]
		}
	}
	return nil
}

// Deposition returns a copy of deposition id.
func (f *FakeZenodo) Deposition(id int64) (models.Deposition, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fd, ok := f.depositions[id]
	if !ok {
		return models.Deposition{}, false
	}
	return fd.dep, true
}

// LatestForConcept returns the latest published id in a concept.
func (f *FakeZenodo) LatestForConcept(conceptDOI string) (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.concepts[conceptDOI]
	return id, ok
}

func (f *FakeZenodo) newFileID() string {
	f.nextFile++
	return fmt.Sprintf("file-%d", f.nextFile)
}

func (f *FakeZenodo) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls = append(f.calls, r.Method+" "+r.URL.Path)
		f.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (f *FakeZenodo) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+FakeToken {
			writeFakeJSON(w, http.StatusUnauthorized, map[string]any{"status": 401, "message": "The server could not verify that you are authorized."})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeZenodo) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		status := 0
		for _, fl := range f.failures {
			if fl.method == r.Method && strings.HasPrefix(r.URL.Path, fl.prefix) {
				status = fl.status
				break
			}
		}
		f.mu.Unlock()
		if status != 0 {
			writeFakeJSON(w, status, map[string]any{"status": status, "message": "injected failure"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeZenodo) links(fd *fakeDeposition) models.Links {
	base := fmt.Sprintf("%s/api/deposit/depositions/%d", f.Server.URL, fd.dep.ID)
	l := models.Links{
		Self:       base,
		Files:      base + "/files",
		Publish:    base + "/actions/publish",
		NewVersion: base + "/actions/newversion",
	}
	if fd.published {
		l.Record = fmt.Sprintf("%s/api/records/%d", f.Server.URL, fd.dep.ID)
	}
	return l
}

func (f *FakeZenodo) view(fd *fakeDeposition) models.Deposition {
	d := fd.dep
	d.Links = f.links(fd)
	d.Files = append([]models.DepositionFile(nil), fd.dep.Files...)
	return d
}

func (f *FakeZenodo) lookup(w http.ResponseWriter, r *http.Request) (*fakeDeposition, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeFakeJSON(w, http.StatusBadRequest, map[string]any{"message": "bad id"})
		return nil, false
	}
	fd, ok := f.depositions[id]
	if !ok {
		writeFakeJSON(w, http.StatusNotFound, map[string]any{"status": 404, "message": "PID does not exist."})
		return nil, false
	}
	return fd, true
}

func (f *FakeZenodo) toRecord(fd *fakeDeposition) models.Record {
	return models.Record{
		ID:           fd.dep.ID,
		ConceptRecID: fd.dep.ConceptRecID,
		DOI:          fd.dep.DOI,
		ConceptDOI:   fd.dep.ConceptDOI,
		Links:        models.Links{Self: fmt.Sprintf("%s/api/records/%d", f.Server.URL, fd.dep.ID)},
		Metadata:     fd.dep.Metadata,
	}
}

func (f *FakeZenodo) search(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	q := r.URL.Query().Get("q")
	concept := strings.Trim(strings.TrimPrefix(q, "conceptdoi:"), `"`)
	hits := []models.Record{}
	if id, ok := f.concepts[concept]; ok {
		hits = append(hits, f.toRecord(f.depositions[id]))
	}
	writeFakeJSON(w, http.StatusOK, map[string]any{
		"hits": map[string]any{"hits": hits, "total": len(hits)},
	})
}

func (f *FakeZenodo) getRecord(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fd, ok := f.lookup(w, r)
	if !ok {
		return
	}
	if !fd.published {
		writeFakeJSON(w, http.StatusNotFound, map[string]any{"status": 404, "message": "not published"})
		return
	}
	writeFakeJSON(w, http.StatusOK, f.toRecord(fd))
}

func decodeMetadata(r *http.Request) (models.Metadata, error) {
	var body struct {
		Metadata models.Metadata `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Metadata, nil
}

func (f *FakeZenodo) create(w http.ResponseWriter, r *http.Request) {
	meta, err := decodeMetadata(r)
	if err != nil {
		writeFakeJSON(w, http.StatusBadRequest, map[string]any{"status": 400, "message": "Validation error."})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	conceptID := f.nextID
	id := f.nextID + 1
	f.nextID += 2
	fd := &fakeDeposition{
		dep: models.Deposition{
			ID:           id,
			ConceptRecID: strconv.FormatInt(conceptID, 10),
			ConceptDOI:   fmt.Sprintf("10.5281/zenodo.%d", conceptID),
			DOI:          fmt.Sprintf("10.5281/zenodo.%d", id),
			State:        "unsubmitted",
			Metadata:     meta,
		},
		contents: make(map[string][]byte),
	}
	f.depositions[id] = fd
	writeFakeJSON(w, http.StatusCreated, f.view(fd))
}

func (f *FakeZenodo) getDeposition(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fd, ok := f.lookup(w, r)
	if !ok {
		return
	}
	writeFakeJSON(w, http.StatusOK, f.view(fd))
}

func (f *FakeZenodo) update(w http.ResponseWriter, r *http.Request) {
	meta, err := decodeMetadata(r)
	if err != nil {
		writeFakeJSON(w, http.StatusBadRequest, map[string]any{"status": 400, "message": "Validation error."})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fd, ok := f.lookup(w, r)
	if !ok {
		return
	}
	if fd.published {
		writeFakeJSON(w, http.StatusBadRequest, map[string]any{"status": 400, "message": "Deposition is published."})
		return
	}
	fd.dep.Metadata = meta
	writeFakeJSON(w, http.StatusOK, f.view(fd))
}

func (f *FakeZenodo) newVersion(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	src, ok := f.lookup(w, r)
	if !ok {
		return
	}
	if !src.published {
		writeFakeJSON(w, http.StatusBadRequest, map[string]any{"status": 400, "message": "Deposition is not published."})
		return
	}

	id := f.nextID
	f.nextID++
	draft := &fakeDeposition{
		dep: models.Deposition{
			ID:           id,
			ConceptRecID: src.dep.ConceptRecID,
			ConceptDOI:   src.dep.ConceptDOI,
			DOI:          fmt.Sprintf("10.5281/zenodo.%d", id),
			State:        "unsubmitted",
			Metadata:     src.dep.Metadata,
		},
		contents: make(map[string][]byte),
	}
	for _, file := range src.dep.Files {
		fid := f.newFileID()
		draft.dep.Files = append(draft.dep.Files, models.DepositionFile{ID: fid, Filename: file.Filename})
		draft.contents[fid] = src.contents[file.ID]
	}
	f.depositions[id] = draft

	resp := f.view(src)
	resp.Links.LatestDraft = fmt.Sprintf("%s/api/deposit/depositions/%d", f.Server.URL, id)
	writeFakeJSON(w, http.StatusCreated, resp)
}

func (f *FakeZenodo) listFiles(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fd, ok := f.lookup(w, r)
	if !ok {
		return
	}
	files := append([]models.DepositionFile{}, fd.dep.Files...)
	writeFakeJSON(w, http.StatusOK, files)
}

func (f *FakeZenodo) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeFakeJSON(w, http.StatusBadRequest, map[string]any{"status": 400, "message": err.Error()})
		return
	}
	name := r.FormValue("name")
	part, _, err := r.FormFile("file")
	if err != nil || name == "" {
		writeFakeJSON(w, http.StatusBadRequest, map[string]any{"status": 400, "message": "missing name or file"})
		return
	}
	defer part.Close()
	data, _ := io.ReadAll(part)

	f.mu.Lock()
	defer f.mu.Unlock()
	fd, ok := f.lookup(w, r)
	if !ok {
		return
	}
	if fd.published {
		writeFakeJSON(w, http.StatusBadRequest, map[string]any{"status": 400, "message": "Deposition is published."})
		return
	}
	for _, file := range fd.dep.Files {
		if file.Filename == name {
			writeFakeJSON(w, http.StatusBadRequest, map[string]any{"status": 400, "message": "Filename already exists."})
			return
		}
	}
	file := models.DepositionFile{ID: f.newFileID(), Filename: name, Filesize: int64(len(data))}
	fd.dep.Files = append(fd.dep.Files, file)
	fd.contents[file.ID] = data
	writeFakeJSON(w, http.StatusCreated, file)
}

func (f *FakeZenodo) deleteFile(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fd, ok := f.lookup(w, r)
	if !ok {
		return
	}
	fileID := chi.URLParam(r, "fileID")
	for i, file := range fd.dep.Files {
		if file.ID == fileID {
			fd.dep.Files = append(fd.dep.Files[:i], fd.dep.Files[i+1:]...)
			delete(fd.contents, fileID)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeFakeJSON(w, http.StatusNotFound, map[string]any{"status": 404, "message": "file not found"})
}

func (f *FakeZenodo) publish(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fd, ok := f.lookup(w, r)
	if !ok {
		return
	}
	if len(fd.dep.Files) == 0 {
		writeFakeJSON(w, http.StatusBadRequest, map[string]any{"status": 400, "message": "Minimum one file must be provided."})
		return
	}
	fd.published = true
	fd.dep.State = "done"
	fd.dep.Submitted = true
	f.concepts[fd.dep.ConceptDOI] = fd.dep.ID
	writeFakeJSON(w, http.StatusAccepted, f.view(fd))
}

func writeFakeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
