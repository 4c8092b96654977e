package scholarindex

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// ═══════════════════════════════════════════════════════════════════════════════
// FORWARD-INDEX WRITER
// ═══════════════════════════════════════════════════════════════════════════════

// ForwardIndexStats mirrors the stats dict the original build_forward_index
// entry point returned, used by the CLI's summary line and by tests.
type ForwardIndexStats struct {
	DocumentsIndexed int
	DocsSkipped      int
	UniqueTerms      int
	TotalTokens      int
	AvgDocLength     float64
}

// BuildForwardIndex streams the corpus in enumeration order, tokenizes each
// accepted document, assigns dense doc ids and token ids, and writes
// lexicon.bin, forward_index.bin, and doc_ids.tsv to cfg.OutputDir.
//
// Forward records are written as they are produced; only the lexicon and
// the doc_id → paper_id table stay in memory for the duration of the pass.
// The doc_count header is written as a zero placeholder and patched once
// the enumeration is exhausted, the same discipline the inverter uses for
// its vocab_size header.
func BuildForwardIndex(cfg BuildConfig) (ForwardIndexStats, error) {
	info, err := os.Stat(cfg.InputDir)
	if err != nil || !info.IsDir() {
		return ForwardIndexStats{}, fmt.Errorf("%w: %s", ErrInputMissing, cfg.InputDir)
	}

	files, err := enumerateSourceFiles(cfg.InputDir)
	if err != nil {
		return ForwardIndexStats{}, fmt.Errorf("enumerating corpus: %w", err)
	}

	stopwords := cfg.Stopwords
	if stopwords == nil {
		stopwords = defaultStopwords
	}
	logEvery := cfg.normalizeLogEvery()

	forwardPath := filepath.Join(cfg.OutputDir, "forward_index.bin")
	w, err := newAtomicWriter(forwardPath)
	if err != nil {
		return ForwardIndexStats{}, err
	}
	if err := w.writeUint32(0); err != nil { // doc_count placeholder
		w.Abort()
		return ForwardIndexStats{}, fmt.Errorf("writing doc_count placeholder: %w", err)
	}

	lex := NewLexicon()
	var docIDs []string // index is doc_id, value is paper_id

	docsSkipped := 0
	totalTokens := 0

	for _, sf := range files {
		if cfg.Limit > 0 && len(docIDs) >= cfg.Limit {
			break
		}

		paperID, text, err := loadDocument(sf)
		if err != nil {
			slog.Warn("skipping unparseable document", slog.String("path", sf.path), slog.Any("error", err))
			docsSkipped++
			continue
		}

		tokens := tokenize(text, stopwords)
		if len(tokens) == 0 {
			docsSkipped++
			continue
		}

		tokenIDs := make([]uint32, len(tokens))
		for i, tok := range tokens {
			id, _ := lex.GetID(tok, true)
			tokenIDs[i] = id
		}

		docID := uint32(len(docIDs))
		if err := writeForwardRecord(w, docID, tokenIDs); err != nil {
			w.Abort()
			return ForwardIndexStats{}, err
		}
		docIDs = append(docIDs, paperID)
		totalTokens += len(tokenIDs)

		if len(docIDs)%logEvery == 0 {
			slog.Info("forward index progress",
				slog.Int("docs_indexed", len(docIDs)),
				slog.Int("vocab_size", lex.Len()),
			)
		}
	}

	if len(docIDs) == 0 {
		w.Abort()
		return ForwardIndexStats{}, fmt.Errorf("%w: %s", ErrInputEmpty, cfg.InputDir)
	}

	if err := w.Close(); err != nil {
		return ForwardIndexStats{}, err
	}
	if err := patchLeadingUint32(forwardPath, uint32(len(docIDs))); err != nil {
		return ForwardIndexStats{}, err
	}
	if err := lex.WriteBinary(filepath.Join(cfg.OutputDir, "lexicon.bin")); err != nil {
		return ForwardIndexStats{}, err
	}
	if err := writeDocIDs(docIDs, filepath.Join(cfg.OutputDir, "doc_ids.tsv")); err != nil {
		return ForwardIndexStats{}, err
	}

	stats := ForwardIndexStats{
		DocumentsIndexed: len(docIDs),
		DocsSkipped:      docsSkipped,
		UniqueTerms:      lex.Len(),
		TotalTokens:      totalTokens,
		AvgDocLength:     float64(totalTokens) / float64(len(docIDs)),
	}

	slog.Info("forward index build complete",
		slog.Int("documents_indexed", stats.DocumentsIndexed),
		slog.Int("docs_skipped", stats.DocsSkipped),
		slog.Int("unique_terms", stats.UniqueTerms),
		slog.Int("total_tokens", stats.TotalTokens),
	)

	return stats, nil
}

// writeForwardRecord appends one (doc_id, token_count, token_ids…) record.
func writeForwardRecord(w *atomicWriter, docID uint32, tokenIDs []uint32) error {
	if err := w.writeUint32(docID); err != nil {
		return fmt.Errorf("writing doc_id %d: %w", docID, err)
	}
	if err := w.writeUint32(uint32(len(tokenIDs))); err != nil {
		return fmt.Errorf("writing token_count for doc %d: %w", docID, err)
	}
	if err := writeUint32Slice(w, tokenIDs); err != nil {
		return fmt.Errorf("writing token_ids for doc %d: %w", docID, err)
	}
	return nil
}

// writeForwardIndex persists a fully materialized record set (doc_id is
// each record's index) in this format:
//
//	u32 doc_count
//	repeated doc_count times:
//	  u32 doc_id
//	  u32 token_count
//	  u32[token_count] token_ids
func writeForwardIndex(records [][]uint32, path string) error {
	w, err := newAtomicWriter(path)
	if err != nil {
		return err
	}
	if err := w.writeUint32(uint32(len(records))); err != nil {
		w.Abort()
		return fmt.Errorf("writing doc_count: %w", err)
	}
	for docID, tokenIDs := range records {
		if err := writeForwardRecord(w, uint32(docID), tokenIDs); err != nil {
			w.Abort()
			return err
		}
	}
	return w.Close()
}

// writeDocIDs writes doc_ids.tsv: one "doc_id\tpaper_id\n" line per document.
func writeDocIDs(paperIDs []string, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmpPath, err)
	}
	for docID, paperID := range paperIDs {
		if _, err := fmt.Fprintf(f, "%d\t%s\n", docID, paperID); err != nil {
			f.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("writing doc_ids line %d: %w", docID, err)
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}
	return os.Rename(tmpPath, path)
}

// ForwardRecord is a decoded (doc_id, token_ids) pair from forward_index.bin.
type ForwardRecord struct {
	DocID    uint32
	TokenIDs []uint32
}

// streamForwardIndex opens forward_index.bin and invokes fn for each record
// in file order without holding the whole index in memory. A truncated
// record or a doc_count that overstates the file's true content is
// surfaced as ErrFormatViolation.
func streamForwardIndex(path string, fn func(ForwardRecord) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInputMissing, err)
	}
	defer f.Close()
	r := bufio.NewReaderSize(f, 64*1024)

	docCount, err := readUint32(r)
	if err != nil {
		return fmt.Errorf("reading doc_count: %w", err)
	}

	for i := uint32(0); i < docCount; i++ {
		docID, err := readUint32(r)
		if err != nil {
			return fmt.Errorf("reading doc_id at record %d (declared doc_count=%d): %w", i, docCount, err)
		}
		tokenCount, err := readUint32(r)
		if err != nil {
			return fmt.Errorf("reading token_count at record %d: %w", i, err)
		}
		tokenIDs, err := readUint32Slice(r, int(tokenCount))
		if err != nil {
			return fmt.Errorf("reading token_ids at record %d: %w", i, err)
		}
		if err := fn(ForwardRecord{DocID: docID, TokenIDs: tokenIDs}); err != nil {
			return err
		}
	}

	// The declared doc_count must account for the whole file; trailing bytes
	// mean the header understates the true content.
	if _, err := r.Peek(1); err == nil {
		return fmt.Errorf("%w: data beyond the %d records declared by doc_count", ErrFormatViolation, docCount)
	}

	return nil
}
