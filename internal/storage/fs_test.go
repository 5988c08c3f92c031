package storage

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func tempWorkspace(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempWorkspace(t)
	content := []byte(`{"title": "Report"}`)
	if err := s.Write("zenodo.json", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("zenodo.json")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempWorkspace(t)
	if err := s.Write("a/b/state.json", []byte("{}")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("a/b/state.json")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "{}" {
		t.Errorf("content = %q", got)
	}
}

func TestGlobSortedWithChecksums(t *testing.T) {
	s := tempWorkspace(t)
	_ = s.Write("out/b.pdf", []byte("%PDF-1.4 b"))
	_ = s.Write("out/a.pdf", []byte("%PDF-1.4 a"))
	_ = s.Write("out/notes.txt", []byte("not a pdf"))
	if err := os.MkdirAll(filepath.Join(s.Root(), "out", "dir.pdf"), 0o755); err != nil {
		t.Fatal(err)
	}

	items, err := s.Glob("out/*.pdf")
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(items), items)
	}
	if items[0].Path != filepath.Join("out", "a.pdf") || items[1].Path != filepath.Join("out", "b.pdf") {
		t.Errorf("order = %s, %s", items[0].Path, items[1].Path)
	}
	if items[0].Name != "a.pdf" {
		t.Errorf("name = %q", items[0].Name)
	}
	if items[0].Checksum == "" || items[0].Checksum == items[1].Checksum {
		t.Errorf("unexpected checksums %q / %q", items[0].Checksum, items[1].Checksum)
	}
	if items[0].Size != int64(len("%PDF-1.4 a")) {
		t.Errorf("size = %d", items[0].Size)
	}
}

func TestGlobSkipsDotFiles(t *testing.T) {
	s := tempWorkspace(t)
	_ = s.Write("out/a.pdf", []byte("%PDF-1.4 a"))
	_ = s.Write("out/.draft.pdf", []byte("%PDF-1.4 draft"))
	_ = s.Write("out/.hidden/x.pdf", []byte("%PDF-1.4 x"))
	_ = s.Write("out/v1/x.pdf", []byte("%PDF-1.4 x"))

	items, err := s.Glob("out/*.pdf")
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(items) != 1 || items[0].Name != "a.pdf" {
		t.Errorf("items = %+v", items)
	}

	items, err = s.Glob("out/*/x.pdf")
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(items) != 1 || items[0].Path != filepath.Join("out", "v1", "x.pdf") {
		t.Errorf("nested items = %+v", items)
	}

	items, err = s.Glob("out/.*.pdf")
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(items) != 1 || items[0].Name != ".draft.pdf" {
		t.Errorf("explicit dot pattern items = %+v", items)
	}
}

func TestGlobNoMatches(t *testing.T) {
	s := tempWorkspace(t)
	items, err := s.Glob("out/*.pdf")
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected no candidates, got %v", items)
	}
}

func TestOpen(t *testing.T) {
	s := tempWorkspace(t)
	_ = s.Write("out/a.pdf", []byte("%PDF-1.7"))
	fh, err := s.Open("out/a.pdf")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer fh.Close()
	data, _ := io.ReadAll(fh)
	if string(data) != "%PDF-1.7" {
		t.Errorf("data = %q", data)
	}
}

func TestSniffPDF(t *testing.T) {
	s := tempWorkspace(t)
	_ = s.Write("ok.pdf", []byte("%PDF-1.7\n%âãÏÓ\n"))
	_ = s.Write("bad.pdf", []byte("<html></html>"))

	if ok, err := SniffPDF(s, "ok.pdf"); err != nil || !ok {
		t.Errorf("SniffPDF(ok.pdf) = %v, %v", ok, err)
	}
	if ok, err := SniffPDF(s, "bad.pdf"); err != nil || ok {
		t.Errorf("SniffPDF(bad.pdf) = %v, %v", ok, err)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempWorkspace(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.json",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
	if _, err := s.Glob("../*.pdf"); err == nil {
		t.Error("expected error for glob outside root")
	}
}

func TestAtomicWriteNoLeftovers(t *testing.T) {
	s := tempWorkspace(t)
	_ = s.Write("state.json", []byte("original"))
	if err := s.Write("state.json", []byte("updated")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("state.json")
	if string(got) != "updated" {
		t.Errorf("expected updated content, got %q", got)
	}

	matches, _ := filepath.Glob(filepath.Join(s.root, ".zensync-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "zensync-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
