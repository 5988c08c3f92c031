package internal

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/zensync/internal/apperr"
	"github.com/starford/zensync/internal/testutil"
)

func workspaceConfig(t *testing.T) *Config {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Files.Root = t.TempDir()
	if err := os.MkdirAll(filepath.Join(cfg.Files.Root, "out"), 0o755); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func writeWorkspaceFile(t *testing.T, cfg *Config, rel, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(cfg.Files.Root, rel), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunSync_RequiresConfig(t *testing.T) {
	if err := RunSync(context.Background()); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestRunSync_MissingTokenFailsBeforeWork(t *testing.T) {
	cfg := workspaceConfig(t)
	writeWorkspaceFile(t, cfg, "out/a.pdf", "%PDF-1.7")

	err := RunSync(context.Background(), WithConfig(cfg), WithOutput(io.Discard), WithLogOutput(io.Discard))
	if !errors.Is(err, apperr.ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
	if _, statErr := os.Stat(filepath.Join(cfg.Files.Root, ".zenodo_history.db")); !os.IsNotExist(statErr) {
		t.Error("ledger should not be created when the token is missing")
	}
}

func TestRunSync_PublishesAndReports(t *testing.T) {
	fake := testutil.NewFakeZenodo(t)
	cfg := workspaceConfig(t)
	cfg.Zenodo.BaseURL = fake.URL()
	cfg.Zenodo.Token = testutil.FakeToken
	writeWorkspaceFile(t, cfg, "zenodo.json", `{"title": "Report"}`)
	writeWorkspaceFile(t, cfg, "out/a.pdf", "%PDF-1.7 a")

	var out bytes.Buffer
	opts := []Option{WithConfig(cfg), WithOutput(&out), WithLogOutput(io.Discard)}
	if err := RunSync(context.Background(), opts...); err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	report := out.String()
	for _, want := range []string{"==> Sync out/a.pdf", "No concept DOI yet", "Published DOI:", "State updated in .zenodo_state.json"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}

	out.Reset()
	if err := ShowState(context.Background(), opts...); err != nil {
		t.Fatalf("ShowState: %v", err)
	}
	if !strings.Contains(out.String(), `"out/a.pdf"`) || !strings.Contains(out.String(), `"conceptdoi"`) {
		t.Errorf("state output = %s", out.String())
	}

	out.Reset()
	if err := ShowHistory(context.Background(), "out/a.pdf", 10, opts...); err != nil {
		t.Fatalf("ShowHistory: %v", err)
	}
	if !strings.Contains(out.String(), "out/a.pdf") || !strings.Contains(out.String(), "CONCEPT DOI") {
		t.Errorf("history output = %s", out.String())
	}
}

func TestRunSync_DryRunLeavesNoState(t *testing.T) {
	fake := testutil.NewFakeZenodo(t)
	cfg := workspaceConfig(t)
	cfg.Zenodo.BaseURL = fake.URL()
	cfg.Zenodo.Token = testutil.FakeToken
	cfg.Sync.DryRun = true
	writeWorkspaceFile(t, cfg, "out/a.pdf", "%PDF-1.7 a")

	var out bytes.Buffer
	if err := RunSync(context.Background(), WithConfig(cfg), WithOutput(&out), WithLogOutput(io.Discard)); err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if !strings.Contains(out.String(), "Would create a new deposition") {
		t.Errorf("output = %s", out.String())
	}
	if n := len(fake.Calls()); n != 0 {
		t.Errorf("dry run made %d remote calls", n)
	}
	if _, err := os.Stat(filepath.Join(cfg.Files.Root, ".zenodo_state.json")); !os.IsNotExist(err) {
		t.Error("dry run must not write state")
	}
}

func TestShowHistory_LedgerDisabled(t *testing.T) {
	cfg := workspaceConfig(t)
	cfg.Ledger.Enabled = false
	err := ShowHistory(context.Background(), "", 0, WithConfig(cfg), WithOutput(io.Discard), WithLogOutput(io.Discard))
	if err == nil {
		t.Fatal("expected error with ledger disabled")
	}
}

func TestShowState_NoTokenNeeded(t *testing.T) {
	cfg := workspaceConfig(t)
	var out bytes.Buffer
	if err := ShowState(context.Background(), WithConfig(cfg), WithOutput(&out), WithLogOutput(io.Discard)); err != nil {
		t.Fatalf("ShowState: %v", err)
	}
	if strings.TrimSpace(out.String()) != "{}" {
		t.Errorf("empty state output = %q", out.String())
	}
}
