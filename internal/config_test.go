package internal

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/creolewiki/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
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
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestStorageConfig_Backend(t *testing.T) {
	cfg := NewDefaultConfig().Storage
	cfg.Backend = "redis"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown backend should fail")
	}

	cfg = NewDefaultConfig().Storage
	cfg.Backend = BackendFlat
	cfg.SQLite.Path = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("flat backend must not require sqlite path: %v", err)
	}
	cfg.Flat.Root = ""
	if err := cfg.Validate(); err == nil {
		t.Error("flat backend without root should fail")
	}
}

func TestAutosaveConfig_QuietNotShorterThanTick(t *testing.T) {
	cfg := NewDefaultConfig().Autosave
	cfg.Quiet = cfg.Interval / 2
	if err := cfg.Validate(); err == nil {
		t.Error("quiet window shorter than the tick should fail")
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	t.Setenv("WIKI_DB", "/tmp/wiki.db")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `app:
  log_level: debug
  http:
    port: 9090
storage:
  backend: sqlite
  sqlite:
    path: ${WIKI_DB}
autosave:
  quiet: 2s
  pending_ttl: 5s
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.App.LogLevel != slog.LevelDebug || cfg.App.HTTP.Port != 9090 {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.Storage.SQLite.Path != "/tmp/wiki.db" {
		t.Errorf("sqlite path = %q", cfg.Storage.SQLite.Path)
	}
	if cfg.Autosave.Quiet != 2*time.Second || cfg.Autosave.Interval != 500*time.Millisecond ||
		cfg.Autosave.PendingTTL != 5*time.Second || cfg.Autosave.IdleTTL != 10*time.Minute {
		t.Errorf("autosave = %+v", cfg.Autosave)
	}
}

func TestLoad_UnknownFieldFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("vault:\n  path: ./x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := pkgconfig.Load(path, NewDefaultConfig()); err == nil {
		t.Error("unknown section should fail")
	}
}

func TestLoadWithDefaults_MissingFile(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := pkgconfig.LoadWithDefaults(filepath.Join(t.TempDir(), "none.yaml"), "", cfg); err != nil {
		t.Fatalf("missing file should keep defaults: %v", err)
	}
	if cfg.Storage.Backend != BackendSQLite {
		t.Errorf("backend = %q", cfg.Storage.Backend)
	}
}
