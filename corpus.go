package scholarindex

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CORPUS LAYOUT & DOCUMENT MODEL
// ═══════════════════════════════════════════════════════════════════════════════
// Input layout: a root directory containing two optional
// subdirectories, one of structured-markup JSON and one of PDF-extracted
// JSON. Parsing the JSON itself is out of this module's scope in spirit:
// encoding/json unmarshaling into the minimal shape below is the extent of
// it; anything richer belongs to the external document-processing stage.
// ═══════════════════════════════════════════════════════════════════════════════

const (
	structuredSubdir = "pmc_json"
	pdfSubdir        = "pdf_json"
)

// textBlock is one abstract/body_text entry.
type textBlock struct {
	Text string `json:"text"`
}

// rawDocument mirrors the minimal JSON shape a source document can have.
type rawDocument struct {
	PaperID  string `json:"paper_id"`
	Metadata struct {
		Title string `json:"title"`
	} `json:"metadata"`
	Abstract []textBlock `json:"abstract"`
	BodyText []textBlock `json:"body_text"`
}

// sourceFile pairs a JSON file's path with its filename stem, which serves
// as the paper_id when the document itself does not declare one.
type sourceFile struct {
	path    string
	paperID string
}

// enumerateSourceFiles walks the two optional source subdirectories in
// deterministic order (structured source first, then PDF-extracted) and
// yields each paper_id (the filename stem) at most once, preferring the
// structured source when both exist for the same paper_id.
func enumerateSourceFiles(inputDir string) ([]sourceFile, error) {
	var result []sourceFile
	seen := make(map[string]struct{})

	for _, subdir := range []string{structuredSubdir, pdfSubdir} {
		dir := filepath.Join(inputDir, subdir)
		entries, err := sortedJSONFiles(dir)
		if err != nil {
			continue // an absent optional subdirectory is not fatal
		}
		for _, name := range entries {
			stem := strings.TrimSuffix(name, filepath.Ext(name))
			if _, dup := seen[stem]; dup {
				continue
			}
			seen[stem] = struct{}{}
			result = append(result, sourceFile{path: filepath.Join(dir, name), paperID: stem})
		}
	}

	return result, nil
}

// sortedJSONFiles lists the *.json files of dir in sorted filename order.
func sortedJSONFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// loadDocument reads and parses one JSON document, returning its paper_id
// (defaulting to the filename stem) and the concatenation of its abstract
// and body text sections, with empty sections skipped.
func loadDocument(sf sourceFile) (paperID, text string, err error) {
	raw, err := os.ReadFile(sf.path)
	if err != nil {
		return "", "", fmt.Errorf("reading %s: %w", sf.path, err)
	}

	var doc rawDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", "", fmt.Errorf("parsing %s: %w", sf.path, err)
	}

	paperID = doc.PaperID
	if paperID == "" {
		paperID = sf.paperID
	}

	var b strings.Builder
	appendBlocks(&b, doc.Abstract)
	appendBlocks(&b, doc.BodyText)

	return paperID, b.String(), nil
}

func appendBlocks(b *strings.Builder, blocks []textBlock) {
	for _, block := range blocks {
		if block.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(block.Text)
	}
}
