package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTypedGetters(t *testing.T) {
	t.Setenv("CFG_INT", "42")
	t.Setenv("CFG_BAD_INT", "forty")
	t.Setenv("CFG_DURATION", "90s")
	t.Setenv("CFG_BOOL", "true")
	t.Setenv("CFG_LIST", " a, ,b ")
	t.Setenv("CFG_FLOAT", "0.25")

	if v, err := Int("CFG_INT", 1); err != nil || v != 42 {
		t.Fatalf("Int: got %d %v", v, err)
	}
	if _, err := Int("CFG_BAD_INT", 1); err == nil {
		t.Fatalf("expected error for non-integer")
	}
	if v, err := Int("CFG_MISSING", 7); err != nil || v != 7 {
		t.Fatalf("Int fallback: got %d %v", v, err)
	}
	if v, err := Duration("CFG_DURATION", time.Second); err != nil || v != 90*time.Second {
		t.Fatalf("Duration: got %s %v", v, err)
	}
	if v, err := Float("CFG_FLOAT", 1); err != nil || v != 0.25 {
		t.Fatalf("Float: got %v %v", v, err)
	}
	if !Bool("CFG_BOOL", false) {
		t.Fatalf("Bool: expected true")
	}
	if got := List("CFG_LIST", ""); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("List: got %v", got)
	}
}

func TestRequiredStringAndPort(t *testing.T) {
	t.Setenv("CFG_PORT", "70000")
	if _, err := Port("CFG_PORT", "8080"); err == nil {
		t.Fatalf("expected port range error")
	}
	if _, err := RequiredString("CFG_NOT_SET"); err == nil {
		t.Fatalf("expected required error")
	}
}

func TestLocation(t *testing.T) {
	if _, err := Location("CFG_TZ", "Not/AZone"); err == nil {
		t.Fatalf("expected invalid timezone error")
	}
	loc, err := Location("CFG_TZ", "UTC")
	if err != nil || loc != time.UTC {
		t.Fatalf("Location: got %v %v", loc, err)
	}
}

type sampleFile struct {
	Name  string `yaml:"name" validate:"required"`
	Limit int    `yaml:"limit" validate:"gte=1,lte=10"`
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	if err := os.WriteFile(good, []byte("name: demo\nlimit: 3\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	var out sampleFile
	if err := LoadYAML(good, &out); err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	if out.Name != "demo" || out.Limit != 3 {
		t.Fatalf("unexpected decode %+v", out)
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("name: demo\nlimit: 30\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := LoadYAML(invalid, &sampleFile{}); err == nil {
		t.Fatalf("expected validation error")
	}

	unknown := filepath.Join(dir, "unknown.yaml")
	if err := os.WriteFile(unknown, []byte("name: demo\nlimit: 3\nlimt: 4\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := LoadYAML(unknown, &sampleFile{}); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("CFG_FROM_DOTENV=loaded\nCFG_PRESET=file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CFG_PRESET", "env")
	t.Setenv("CFG_FROM_DOTENV", "")
	os.Unsetenv("CFG_FROM_DOTENV")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("CFG_FROM_DOTENV"); got != "loaded" {
		t.Fatalf("expected dotenv value, got %q", got)
	}
	if got := os.Getenv("CFG_PRESET"); got != "env" {
		t.Fatalf("dotenv must not override existing env, got %q", got)
	}
}
