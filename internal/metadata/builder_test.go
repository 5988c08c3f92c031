package metadata

import (
	"reflect"
	"testing"
	"time"

	"github.com/starford/zensync/internal/models"
)

var fixedNow = time.Date(2026, 10, 19, 15, 4, 5, 0, time.UTC)

func TestBuild_DefaultsAndTitle(t *testing.T) {
	base := models.Metadata{"title": "Report", "license": "CC-BY-4.0"}
	meta := Build(base, nil, "out/a.pdf", fixedNow)

	want := models.Metadata{
		"title":            "Report: a.pdf",
		"license":          "CC-BY-4.0",
		"upload_type":      "publication",
		"publication_type": "report",
		"publication_date": "2026-10-19",
	}
	if !reflect.DeepEqual(meta, want) {
		t.Errorf("meta = %#v\nwant %#v", meta, want)
	}
	if _, ok := meta["description"]; ok {
		t.Error("description should stay unset when neither base nor override supplies one")
	}
}

func TestBuild_OverridesWin(t *testing.T) {
	base := models.Metadata{
		"title":       "Report",
		"description": "base description",
		"keywords":    []any{"base"},
		"upload_type": "dataset",
	}
	override := models.Metadata{
		"title":       "Annual report",
		"description": "<p>Per-file</p>",
		"keywords":    []any{"annual", "2026"},
	}
	meta := Build(base, override, "out/annual.pdf", fixedNow)

	if meta["title"] != "Annual report" {
		t.Errorf("title = %v", meta["title"])
	}
	if meta["description"] != "<p>Per-file</p>" {
		t.Errorf("description = %v", meta["description"])
	}
	if !reflect.DeepEqual(meta["keywords"], []any{"annual", "2026"}) {
		t.Errorf("keywords = %v", meta["keywords"])
	}
	if meta["upload_type"] != "dataset" {
		t.Errorf("upload_type from base should be kept, got %v", meta["upload_type"])
	}
}

func TestBuild_BaseDescriptionKept(t *testing.T) {
	base := models.Metadata{"title": "R", "description": "shared"}
	meta := Build(base, models.Metadata{}, "out/x.pdf", fixedNow)
	if meta["description"] != "shared" {
		t.Errorf("description = %v", meta["description"])
	}
}

func TestBuild_PublicationDateAlwaysOverwritten(t *testing.T) {
	base := models.Metadata{"title": "R", "publication_date": "1999-01-01"}
	meta := Build(base, models.Metadata{"publication_date": "2000-01-01"}, "a.pdf", fixedNow)
	if meta["publication_date"] != "2026-10-19" {
		t.Errorf("publication_date = %v", meta["publication_date"])
	}
}

func TestBuild_MissingBaseTitle(t *testing.T) {
	meta := Build(models.Metadata{}, nil, "out/a.pdf", fixedNow)
	if meta["title"] != ": a.pdf" {
		t.Errorf("title = %q", meta["title"])
	}
}

func TestBuild_DoesNotMutateInputs(t *testing.T) {
	base := models.Metadata{"title": "Report"}
	override := models.Metadata{"keywords": []any{"k"}}
	_ = Build(base, override, "out/a.pdf", fixedNow)

	if len(base) != 1 || base["title"] != "Report" {
		t.Errorf("base mutated: %#v", base)
	}
	if len(override) != 1 {
		t.Errorf("override mutated: %#v", override)
	}
}

func TestBuilder_SameDayIsIdempotent(t *testing.T) {
	calls := 0
	b := &Builder{
		Base:      models.Metadata{"title": "Report"},
		Overrides: models.FileMetadata{"out/a.pdf": {"description": "A"}},
		Now: func() time.Time {
			calls++
			return fixedNow.Add(time.Duration(calls) * time.Hour)
		},
	}
	first := b.For("out/a.pdf")
	second := b.For("out/a.pdf")
	if !reflect.DeepEqual(first, second) {
		t.Errorf("builds differ on the same day:\n%#v\n%#v", first, second)
	}
	if first["description"] != "A" {
		t.Errorf("override lookup by path failed: %#v", first)
	}
}
