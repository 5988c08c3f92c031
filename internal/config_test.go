package internal

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/starford/zensync/internal/apperr"
	"github.com/starford/zensync/internal/zenodo"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Files.Pattern != "out/*.pdf" || cfg.Files.State != ".zenodo_state.json" {
		t.Errorf("files = %+v", cfg.Files)
	}
}

func TestZenodoConfig_MissingToken(t *testing.T) {
	cfg := ZenodoConfig{Env: "production"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate without token should pass: %v", err)
	}
	err := cfg.RequireToken()
	if !errors.Is(err, apperr.ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
	if !strings.Contains(err.Error(), "ZENODO_TOKEN") {
		t.Errorf("diagnostic should name the variable: %v", err)
	}
}

func TestZenodoConfig_EnvSelection(t *testing.T) {
	cases := map[string]string{
		"":           zenodo.ProductionURL,
		"staging":    zenodo.ProductionURL,
		"production": zenodo.ProductionURL,
		"sandbox":    zenodo.SandboxURL,
	}
	for env, want := range cases {
		cfg := ZenodoConfig{Env: env, Token: "t"}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("%q: %v", env, err)
		}
		if got := cfg.ResolvedBaseURL(); got != want {
			t.Errorf("%q: base url = %q, want %q", env, got, want)
		}
	}
}

func TestZenodoConfig_BaseURLOverride(t *testing.T) {
	cfg := ZenodoConfig{Env: "sandbox", BaseURL: "http://localhost:5000", Token: "t", Timeout: 30 * time.Second}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	client := cfg.Client()
	if client.BaseURL != "http://localhost:5000" || client.Token != "t" || client.Timeout != 30*time.Second {
		t.Errorf("client config = %+v", client)
	}
}

func TestZenodoConfig_BadBaseURL(t *testing.T) {
	cfg := ZenodoConfig{BaseURL: "not a url", Token: "t"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid base url should fail")
	}
}

func TestFilesConfig_Required(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Files.Pattern = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty pattern should fail")
	}
}

func TestLedgerConfig_PathRequiredWhenEnabled(t *testing.T) {
	if err := (&LedgerConfig{Enabled: true}).Validate(); err == nil {
		t.Error("enabled ledger without path should fail")
	}
	if err := (&LedgerConfig{Enabled: false}).Validate(); err != nil {
		t.Errorf("disabled ledger should pass: %v", err)
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled || cfg.AuthEnabled() {
		t.Errorf("mode = %q", cfg.Mode)
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_WatchDebounce(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Watch.Debounce = time.Millisecond
	if err := cfg.Validate(); err == nil {
		t.Fatal("tiny debounce should fail")
	}
}
