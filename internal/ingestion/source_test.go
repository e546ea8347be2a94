package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const exportCSV = `file_name,meta_data,content
ftso/overview.mdx,"{""title"": ""FTSO Overview"", ""order"": 1}","The Flare Time Series Oracle provides decentralized price feeds."
fdc/overview.mdx,plain note,"The Flare Data Connector verifies external data."
empty.mdx,,
,,"Orphan row without a file name."
`

func TestReadCSV(t *testing.T) {
	t.Parallel()

	res, err := ReadCSV(context.Background(), strings.NewReader(exportCSV), "docs.csv")
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if res.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", res.Skipped)
	}
	if len(res.Documents) != 3 {
		t.Fatalf("got %d documents, want 3", len(res.Documents))
	}

	ftso := res.Documents[0]
	if ftso.Origin != "ftso/overview.mdx" {
		t.Errorf("Origin = %q", ftso.Origin)
	}
	if ftso.Metadata["title"] != "FTSO Overview" || ftso.Metadata["order"] != "1" {
		t.Errorf("json metadata not expanded: %v", ftso.Metadata)
	}
	if got := res.Documents[1].Metadata["meta"]; got != "plain note" {
		t.Errorf("plain metadata = %q, want %q", got, "plain note")
	}
	if got := res.Documents[2].Origin; got != "docs.csv#4" {
		t.Errorf("fallback origin = %q, want docs.csv#4", got)
	}
}

func TestReadCSV_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"empty input", ""},
		{"missing content column", "file_name,meta_data\na.md,x\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ReadCSV(context.Background(), strings.NewReader(tc.input), "bad.csv"); err == nil {
				t.Fatal("ReadCSV() expected error")
			}
		})
	}
}

func TestLoadCSV_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := LoadCSV(context.Background(), filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Fatal("LoadCSV() expected error for missing file")
	}
}

func TestLoadDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	files := map[string]string{
		"ftso/overview.mdx":     "# FTSO\nPrice feeds.",
		"fdc/guide.md":          "FDC guide",
		"notes.txt":             "plain text",
		"image.png":             "not a doc",
		"empty.md":              "   \n",
		".hidden/secret.md":     "skip me",
		"fassets/minting/a.mdx": "nested",
	}
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	res, err := LoadDir(context.Background(), root)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if res.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", res.Skipped)
	}
	got := map[string]bool{}
	for _, d := range res.Documents {
		got[d.Origin] = true
	}
	for _, want := range []string{"ftso/overview.mdx", "fdc/guide.md", "notes.txt", "fassets/minting/a.mdx"} {
		if !got[want] {
			t.Errorf("missing document %q (got %v)", want, got)
		}
	}
	if len(res.Documents) != 4 {
		t.Errorf("got %d documents, want 4", len(res.Documents))
	}
}

func TestIsDocFile(t *testing.T) {
	t.Parallel()

	for path, want := range map[string]bool{
		"a.md":       true,
		"a.MDX":      true,
		"dir/b.txt":  true,
		"c.csv":      false,
		"no-ext":     false,
		"d.markdown": false,
	} {
		if got := IsDocFile(path); got != want {
			t.Errorf("IsDocFile(%q) = %v, want %v", path, got, want)
		}
	}
}
