package zenodo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/zensync/internal/apperr"
	"github.com/starford/zensync/internal/models"
	"github.com/starford/zensync/internal/testutil"
)

func testClient(t *testing.T) (*Client, *testutil.FakeZenodo) {
	t.Helper()
	fake := testutil.NewFakeZenodo(t)
	c, err := NewClient(Config{BaseURL: fake.URL(), Token: testutil.FakeToken})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, fake
}

func tempPDF(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "a.pdf")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestBaseURLFor(t *testing.T) {
	if got := BaseURLFor("sandbox"); got != SandboxURL {
		t.Errorf("sandbox = %q", got)
	}
	for _, env := range []string{"", "production", "anything"} {
		if got := BaseURLFor(env); got != ProductionURL {
			t.Errorf("%q = %q", env, got)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"valid", Config{BaseURL: "https://zenodo.org", Token: "t"}, true},
		{"missing token", Config{BaseURL: "https://zenodo.org"}, false},
		{"missing url", Config{Token: "t"}, false},
		{"bad scheme", Config{BaseURL: "ftp://zenodo.org", Token: "t"}, false},
		{"negative timeout", Config{BaseURL: "https://zenodo.org", Token: "t", Timeout: -1}, false},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if (err == nil) != tc.ok {
			t.Errorf("%s: err = %v", tc.name, err)
		}
	}
}

func TestAPIURL(t *testing.T) {
	cfg := Config{BaseURL: "https://sandbox.zenodo.org/"}
	if got := cfg.APIURL(); got != "https://sandbox.zenodo.org/api" {
		t.Errorf("APIURL = %q", got)
	}
}

func TestFindLatestRecordForConcept(t *testing.T) {
	c, fake := testClient(t)
	fake.Seed("10.5281/zenodo.111", 555, "a.pdf")

	rec, err := c.FindLatestRecordForConcept(context.Background(), "10.5281/zenodo.111")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if rec == nil || rec.ID != 555 || rec.ConceptDOI != "10.5281/zenodo.111" {
		t.Errorf("record = %+v", rec)
	}

	missing, err := c.FindLatestRecordForConcept(context.Background(), "10.5281/zenodo.999")
	if err != nil {
		t.Fatalf("Find missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown concept, got %+v", missing)
	}
}

func TestFindLatestRecord_QueryParameters(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		if r.URL.Path != "/api/records" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"hits": {"hits": [], "total": 0}}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, Token: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.FindLatestRecordForConcept(context.Background(), "10.5281/zenodo.111"); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"q=conceptdoi%3A%2210.5281%2Fzenodo.111%22",
		"sort=version",
		"order=desc",
		"size=1",
	} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
}

func TestCreateDeposition(t *testing.T) {
	c, fake := testClient(t)
	meta := models.Metadata{"title": "Report: a.pdf"}

	dep, err := c.CreateDeposition(context.Background(), meta)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if dep.ID == 0 {
		t.Fatal("expected deposition id")
	}
	stored, _ := fake.Deposition(dep.ID)
	if stored.Metadata["title"] != "Report: a.pdf" {
		t.Errorf("metadata not sent: %+v", stored.Metadata)
	}
}

func TestNewVersion_ExistingConcept(t *testing.T) {
	c, fake := testClient(t)
	fake.Seed("10.5281/zenodo.111", 555, "a.pdf")

	dep, err := c.NewVersion(context.Background(), "10.5281/zenodo.111", models.Metadata{"title": "v2"})
	if err != nil {
		t.Fatalf("NewVersion: %v", err)
	}
	if fake.CountCalls(http.MethodPost, "/deposit/depositions/555/actions/newversion") != 1 {
		t.Errorf("newversion not called on 555: %v", fake.Calls())
	}
	if fake.CountCalls(http.MethodPost, "/deposit/depositions") != 0 {
		t.Error("create must not be called when the concept exists")
	}
	if dep.ID == 555 {
		t.Error("expected a fresh draft id")
	}
	if dep.ConceptDOI != "10.5281/zenodo.111" {
		t.Errorf("draft concept = %q", dep.ConceptDOI)
	}
	if dep.Metadata["title"] != "v2" {
		t.Errorf("metadata not updated: %+v", dep.Metadata)
	}
}

func TestNewVersion_FallsBackToCreate(t *testing.T) {
	c, fake := testClient(t)

	dep, err := c.NewVersion(context.Background(), "10.5281/zenodo.404", models.Metadata{"title": "x"})
	if err != nil {
		t.Fatalf("NewVersion: %v", err)
	}
	if fake.CountCalls(http.MethodPost, "/deposit/depositions") != 1 {
		t.Errorf("expected fallback create: %v", fake.Calls())
	}
	if dep.ConceptDOI == "10.5281/zenodo.404" {
		t.Error("fallback must start a new concept")
	}
}

func TestUploadFile_ReplacesSameName(t *testing.T) {
	c, fake := testClient(t)
	fake.Seed("10.5281/zenodo.111", 555, "a.pdf")
	ctx := context.Background()

	dep, err := c.NewVersion(ctx, "10.5281/zenodo.111", models.Metadata{"title": "v2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(fake.Files(dep.ID)) != 1 {
		t.Fatalf("draft should inherit the previous file")
	}

	src := tempPDF(t, "%PDF-1.7 new")
	if _, err := c.UploadFile(ctx, dep, src, "a.pdf"); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	// Upload again under the same name: still one file.
	if _, err := c.UploadFile(ctx, dep, src, "a.pdf"); err != nil {
		t.Fatalf("UploadFile again: %v", err)
	}

	files := fake.Files(dep.ID)
	if len(files) != 1 || files[0].Filename != "a.pdf" {
		t.Fatalf("files = %+v", files)
	}
	if got := string(fake.FileContent(dep.ID, "a.pdf")); got != "%PDF-1.7 new" {
		t.Errorf("content = %q", got)
	}
	if fake.CountCalls(http.MethodDelete, "") != 2 {
		t.Errorf("expected two deletes: %v", fake.Calls())
	}
}

func TestUploadFile_KeepsOtherNames(t *testing.T) {
	c, fake := testClient(t)
	fake.Seed("10.5281/zenodo.111", 555, "appendix.pdf")
	ctx := context.Background()

	dep, _ := c.NewVersion(ctx, "10.5281/zenodo.111", models.Metadata{"title": "v2"})
	if _, err := c.UploadFile(ctx, dep, tempPDF(t, "%PDF"), "a.pdf"); err != nil {
		t.Fatal(err)
	}
	if n := len(fake.Files(dep.ID)); n != 2 {
		t.Errorf("files = %d, want 2", n)
	}
}

func TestUploadFile_MissingLocalFile(t *testing.T) {
	c, _ := testClient(t)
	dep, _ := c.CreateDeposition(context.Background(), models.Metadata{"title": "x"})
	_, err := c.UploadFile(context.Background(), dep, filepath.Join(t.TempDir(), "nope.pdf"), "nope.pdf")
	if err == nil {
		t.Fatal("expected error for missing local file")
	}
}

func TestPublish(t *testing.T) {
	c, _ := testClient(t)
	ctx := context.Background()
	dep, _ := c.CreateDeposition(ctx, models.Metadata{"title": "x"})
	if _, err := c.UploadFile(ctx, dep, tempPDF(t, "%PDF"), "a.pdf"); err != nil {
		t.Fatal(err)
	}

	rec, err := c.Publish(ctx, dep)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if rec.ID != dep.ID || rec.DOI == "" || rec.ConceptDOI != dep.ConceptDOI {
		t.Errorf("record = %+v, deposition = %+v", rec, dep)
	}
}

func TestRemoteErrorIsAPIError(t *testing.T) {
	c, fake := testClient(t)
	fake.FailOn(http.MethodPost, "/api/deposit/depositions", http.StatusBadRequest)

	_, err := c.CreateDeposition(context.Background(), models.Metadata{})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", apiErr.StatusCode)
	}
	if !errors.Is(err, apperr.ErrRemote) {
		t.Error("APIError should match apperr.ErrRemote")
	}
	if !strings.Contains(err.Error(), "injected failure") {
		t.Errorf("message not extracted: %v", err)
	}
}

func TestBearerTokenSent(t *testing.T) {
	fake := testutil.NewFakeZenodo(t)
	c, err := NewClient(Config{BaseURL: fake.URL(), Token: "wrong"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.FindLatestRecordForConcept(context.Background(), "x")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 APIError, got %v", err)
	}
}

func TestNewAPIError_FieldErrors(t *testing.T) {
	body := []byte(`{"status": 400, "message": "Validation error.", "errors": [{"field": "metadata.creators", "message": "Missing data for required field."}]}`)
	e := newAPIError(http.MethodPut, "https://zenodo.org/api/deposit/depositions/1", 400, body)
	want := "Validation error. metadata.creators: Missing data for required field."
	if e.Message != want {
		t.Errorf("message = %q, want %q", e.Message, want)
	}
}
