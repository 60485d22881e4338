package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/park285/lichess-bot-go/internal/errs"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTemp(t, `
token: "secret"
service:
  base-url: "https://lichess.org"
engine:
  path: "/usr/bin/stockfish"
archive-path: "/tmp/archive.pgn"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.SafetyFraction != 0.05 {
		t.Errorf("expected default safety fraction, got %v", cfg.Engine.SafetyFraction)
	}
	if cfg.Engine.SearchCapMs != 15000 {
		t.Errorf("expected default search cap, got %v", cfg.Engine.SearchCapMs)
	}
	if cfg.MaxGames != 4 {
		t.Errorf("expected default max-games 4, got %d", cfg.MaxGames)
	}
}

func TestLoadMissingTokenFailsValidation(t *testing.T) {
	path := writeTemp(t, `
service:
  base-url: "https://lichess.org"
engine:
  path: "/usr/bin/stockfish"
archive-path: "/tmp/archive.pgn"
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error for missing token")
	}
	if errs.Kind(err) != "config" {
		t.Fatalf("expected config-kind error, got kind=%q", errs.Kind(err))
	}
}

func TestLoadReportsAllValidationErrorsTogether(t *testing.T) {
	path := writeTemp(t, `
engine:
  time-mode: "bogus"
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	for _, want := range []string{"token", "service.base-url", "engine.path", "time-mode", "archive-path"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected error message to mention %q, got: %s", want, msg)
		}
	}
}

func TestEnvOverrideWinsOverFile(t *testing.T) {
	path := writeTemp(t, `
token: "from-file"
service:
  base-url: "https://lichess.org"
engine:
  path: "/usr/bin/stockfish"
archive-path: "/tmp/archive.pgn"
`)
	t.Setenv("LICHESSBOT_TOKEN", "from-env")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Token != "from-env" {
		t.Errorf("expected env override to win, got %q", cfg.Token)
	}
}

func TestLoadWithMissingFilePathStillAppliesEnvAndDefaults(t *testing.T) {
	t.Setenv("LICHESSBOT_TOKEN", "from-env")
	t.Setenv("LICHESSBOT_SERVICE_BASE_URL", "https://lichess.org")
	t.Setenv("LICHESSBOT_ENGINE_PATH", "/usr/bin/stockfish")
	t.Setenv("LICHESSBOT_ARCHIVE_PATH", "/tmp/archive.pgn")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Token != "from-env" {
		t.Errorf("got %q", cfg.Token)
	}
}

