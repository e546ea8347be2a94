package ingestion

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/54b3r/flarerag-go/internal/logging"
)

// CSV column names of a generated documentation export.
const (
	columnFileName = "file_name"
	columnMetadata = "meta_data"
	columnContent  = "content"
)

// DocExtensions lists the file extensions LoadDir picks up.
var DocExtensions = []string{".md", ".mdx", ".txt"}

// Document is one source document before chunking.
type Document struct {
	// Origin names the document; it becomes rag.Chunk.Origin.
	Origin string
	// Content is the raw document text.
	Content string
	// Metadata holds attributes carried with the document.
	Metadata map[string]string
}

// LoadResult is the outcome of loading a source.
type LoadResult struct {
	Documents []Document
	// Skipped counts rows or files that had no usable content.
	Skipped int
}

// LoadCSV reads a documentation export with the columns file_name,
// meta_data and content. Rows with empty content are skipped with a
// warning. A meta_data cell holding a JSON object is expanded into
// individual metadata keys; any other value is kept under "meta".
func LoadCSV(ctx context.Context, path string) (LoadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return LoadResult{}, fmt.Errorf("ingestion: open csv: %w", err)
	}
	defer f.Close()
	return ReadCSV(ctx, f, path)
}

// ReadCSV is LoadCSV over an arbitrary reader. name is used in log lines.
func ReadCSV(ctx context.Context, r io.Reader, name string) (LoadResult, error) {
	log := logging.FromContext(ctx)

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return LoadResult{}, fmt.Errorf("ingestion: %s: empty csv", name)
		}
		return LoadResult{}, fmt.Errorf("ingestion: %s: read header: %w", name, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	contentCol, ok := cols[columnContent]
	if !ok {
		return LoadResult{}, fmt.Errorf("ingestion: %s: missing %q column", name, columnContent)
	}
	nameCol, hasName := cols[columnFileName]
	metaCol, hasMeta := cols[columnMetadata]

	var res LoadResult
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("ingestion: %s: row %d: %w", name, row, err)
		}

		content := strings.TrimSpace(cell(rec, contentCol))
		if content == "" {
			log.Warn("ingestion: skipping row with empty content", "source", name, "row", row)
			res.Skipped++
			continue
		}

		origin := ""
		if hasName {
			origin = strings.TrimSpace(cell(rec, nameCol))
		}
		if origin == "" {
			origin = fmt.Sprintf("%s#%d", filepath.Base(name), row)
		}

		md := map[string]string{}
		if hasMeta {
			parseMetadata(cell(rec, metaCol), md)
		}
		res.Documents = append(res.Documents, Document{
			Origin:   origin,
			Content:  content,
			Metadata: md,
		})
	}
	return res, nil
}

// LoadDir walks root and loads every file whose extension is in
// DocExtensions. Origins are slash-separated paths relative to root.
func LoadDir(ctx context.Context, root string) (LoadResult, error) {
	log := logging.FromContext(ctx)

	var res LoadResult
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsDocFile(p) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		content := strings.TrimSpace(string(b))
		if content == "" {
			log.Warn("ingestion: skipping empty file", "path", p)
			res.Skipped++
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			rel = p
		}
		res.Documents = append(res.Documents, Document{
			Origin:   filepath.ToSlash(rel),
			Content:  content,
			Metadata: map[string]string{},
		})
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("ingestion: walk %s: %w", root, err)
	}
	return res, nil
}

// IsDocFile reports whether path has one of DocExtensions.
func IsDocFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range DocExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}

// parseMetadata fills md from a meta_data cell.
func parseMetadata(raw string, md map[string]string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		md["meta"] = raw
		return
	}
	for k, v := range obj {
		switch t := v.(type) {
		case string:
			md[k] = t
		case nil:
		default:
			b, err := json.Marshal(t)
			if err == nil {
				md[k] = string(b)
			}
		}
	}
}
