package obslog

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitWritesToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "test.log")

	if err := Init(Options{Level: "info", Format: "json", ToFile: true, FilePath: path}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	L().Info("hello")
	L().Sync()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected log file to exist: %v", err)
	}
}

func TestKindFieldCarriesTaxonomyTag(t *testing.T) {
	f := KindField("engine-dead")
	if f.Key != "kind" || f.String != "engine-dead" {
		t.Fatalf("unexpected field: %+v", f)
	}
}

func TestLBeforeInitReturnsNonNilLogger(t *testing.T) {
	globalLogger = zap.NewNop()
	if L() == nil {
		t.Fatal("expected non-nil logger even before Init")
	}
}
