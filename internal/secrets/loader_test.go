package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadPrefersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, []byte("  from-file \n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	t.Setenv("LEADS_TEST_KEY", "from-env")

	got, err := Load(Source{Name: "api key", Value: "inline", File: path, Env: "LEADS_TEST_KEY"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != "from-file" {
		t.Fatalf("expected file secret, got %q", got)
	}
}

func TestLoadFallsBackToEnv(t *testing.T) {
	t.Setenv("LEADS_TEST_KEY", " from-env ")

	got, err := Load(Source{Name: "api key", Env: "LEADS_TEST_KEY"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != "from-env" {
		t.Fatalf("expected env secret, got %q", got)
	}

	got, err = Load(Source{Name: "api key", Value: "inline", Env: "LEADS_TEST_KEY"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != "inline" {
		t.Fatalf("expected inline value to win over env, got %q", got)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Setenv("LEADS_TEST_KEY", "")

	tests := []struct {
		name   string
		src    Source
		expect string
	}{
		{name: "nothing configured", src: Source{Name: "token"}, expect: "token is not configured"},
		{name: "empty env", src: Source{Name: "token", Env: "LEADS_TEST_KEY"}, expect: "set LEADS_TEST_KEY"},
		{name: "missing file", src: Source{File: filepath.Join(t.TempDir(), "absent")}, expect: "reading secret from file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.src)
			if err == nil || !strings.Contains(err.Error(), tt.expect) {
				t.Fatalf("expected error containing %q, got %v", tt.expect, err)
			}
		})
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(path, []byte("\n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	if _, err := Load(Source{Name: "token", File: path}); err == nil || !strings.Contains(err.Error(), "is empty") {
		t.Fatalf("expected empty file error, got %v", err)
	}
}
