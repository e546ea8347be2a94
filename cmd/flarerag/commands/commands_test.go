package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/54b3r/flarerag-go/internal/version"
)

func TestNewRootCmd_Subcommands(t *testing.T) {
	t.Parallel()

	root := NewRootCmd()
	for _, name := range []string{"ask", "serve", "ingest", "version"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered (err=%v)", name, err)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("--config flag missing")
	}
}

func TestVersionCmd(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cmd := NewVersionCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != version.String() {
		t.Errorf("output = %q, want %q", got, version.String())
	}
}

func TestIngestSource(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		src      ingestSource
		wantErr  bool
		wantPath string
	}{
		{"csv", ingestSource{CSV: "docs.csv"}, false, "docs.csv"},
		{"dir", ingestSource{Dir: "docs"}, false, "docs"},
		{"neither", ingestSource{}, true, ""},
		{"both", ingestSource{CSV: "docs.csv", Dir: "docs"}, true, "docs.csv"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.src.validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tc.wantErr)
			}
			if got := tc.src.Path(); got != tc.wantPath {
				t.Errorf("Path() = %q, want %q", got, tc.wantPath)
			}
		})
	}
}

func TestIngestCmd_RequiresSource(t *testing.T) {
	t.Parallel()

	cmd := NewIngestCmd()
	cmd.SetArgs([]string{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "--csv or --dir") {
		t.Errorf("Execute() error = %v, want missing source error", err)
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("FLARERAG_TEST_INT", "42")
	t.Setenv("FLARERAG_TEST_BAD_INT", "forty-two")
	t.Setenv("FLARERAG_TEST_DURATION", "90s")
	t.Setenv("FLARERAG_TEST_BAD_DURATION", "soon")
	t.Setenv("FLARERAG_TEST_FLOAT", "2.5")

	if got := getEnvInt("FLARERAG_TEST_INT", 1); got != 42 {
		t.Errorf("getEnvInt = %d, want 42", got)
	}
	if got := getEnvInt("FLARERAG_TEST_BAD_INT", 1); got != 1 {
		t.Errorf("getEnvInt(bad) = %d, want fallback 1", got)
	}
	if got := getEnvOrDefault("FLARERAG_TEST_UNSET", "x"); got != "x" {
		t.Errorf("getEnvOrDefault = %q, want x", got)
	}
	if d, err := getEnvDuration("FLARERAG_TEST_DURATION", 0); err != nil || d != 90*time.Second {
		t.Errorf("getEnvDuration = %v, %v", d, err)
	}
	if _, err := getEnvDuration("FLARERAG_TEST_BAD_DURATION", 0); err == nil {
		t.Error("getEnvDuration(bad) expected error")
	}
	if f, err := getEnvFloat("FLARERAG_TEST_FLOAT", 0); err != nil || f != 2.5 {
		t.Errorf("getEnvFloat = %v, %v", f, err)
	}
	if f, err := getEnvFloat("FLARERAG_TEST_UNSET", 7); err != nil || f != 7 {
		t.Errorf("getEnvFloat(unset) = %v, %v", f, err)
	}
}
