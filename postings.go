package scholarindex

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POSTINGS CONSOLIDATOR
// ═══════════════════════════════════════════════════════════════════════════════
// Scan phase: stream every barrel file in sorted filename order, accumulate
// records per token_id, and spill a token's accumulator to token_<id>.bin
// in a .postings-tmp-* scratch directory under the output directory once it
// reaches cfg.PerTokenThreshold records. Record
// order within a token's eventual block is exactly the scan order; it is
// not sorted by doc_id, unlike the doc-only inverted index produced by the
// bucketed merge inverter.
//
// Write phase: for each token_id in ascending order, stream its spill file
// (if any) followed by its in-memory tail into postings_index.bin, and
// record its (offset, length) in postings_offsets.bin. Both files are
// written to .tmp names and atomically renamed. On success the spill files
// are deleted only after both renames; on any return, success or failure,
// the whole scratch directory is removed.
// ═══════════════════════════════════════════════════════════════════════════════

type postingRecord struct {
	docID     uint32
	freq      uint32
	positions []uint32
}

// PostingsStats mirrors the consolidator's build outcome for logging/tests.
type PostingsStats struct {
	UniqueTokens  int
	TotalPostings int
	SpilledTokens int
}

// BuildPostings consolidates cfg.OutputDir/barrels into postings_index.bin
// and postings_offsets.bin, both written to cfg.OutputDir.
func BuildPostings(cfg BuildConfig) (PostingsStats, error) {
	barrelsDir := filepath.Join(cfg.OutputDir, "barrels")
	barrelFiles, err := sortedBarrelFiles(barrelsDir)
	if err != nil {
		return PostingsStats{}, fmt.Errorf("%w: %s", ErrInputMissing, barrelsDir)
	}
	if len(barrelFiles) == 0 {
		return PostingsStats{}, fmt.Errorf("%w: no barrel files found in %s", ErrInputMissing, barrelsDir)
	}

	threshold := cfg.normalizePerTokenThreshold()
	logEvery := cfg.normalizeLogEvery()
	tmpDir, err := os.MkdirTemp(cfg.OutputDir, ".postings-tmp-*")
	if err != nil {
		return PostingsStats{}, fmt.Errorf("creating scratch directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	inMemory := make(map[uint32][]postingRecord)
	diskCount := make(map[uint32]int)
	seen := make(map[uint32]struct{})
	spillWriters := make(map[uint32]*bufioUint32Writer)
	spillFiles := make(map[uint32]*os.File)

	closeSpill := func(tokenID uint32) error {
		w, ok := spillWriters[tokenID]
		if !ok {
			return nil
		}
		if err := w.Flush(); err != nil {
			spillFiles[tokenID].Close()
			return err
		}
		return spillFiles[tokenID].Close()
	}
	defer func() {
		for id := range spillWriters {
			_ = closeSpill(id)
		}
	}()

	spill := func(tokenID uint32) error {
		w, ok := spillWriters[tokenID]
		if !ok {
			f, err := os.OpenFile(spillPath(tmpDir, tokenID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("opening spill file for token %d: %w", tokenID, err)
			}
			spillFiles[tokenID] = f
			w = &bufioUint32Writer{Writer: bufio.NewWriterSize(f, 32*1024)}
			spillWriters[tokenID] = w
		}
		for _, rec := range inMemory[tokenID] {
			if err := writePostingRecord(w, rec); err != nil {
				return fmt.Errorf("spilling token %d: %w", tokenID, err)
			}
		}
		diskCount[tokenID] += len(inMemory[tokenID])
		inMemory[tokenID] = inMemory[tokenID][:0]
		return nil
	}

	recordsScanned := 0
	for _, barrelPath := range barrelFiles {
		slog.Info("postings scan", slog.String("barrel", filepath.Base(barrelPath)))
		if err := streamBarrelFile(barrelPath, func(tokenID, docID, freq uint32, positions []uint32) error {
			seen[tokenID] = struct{}{}
			inMemory[tokenID] = append(inMemory[tokenID], postingRecord{docID: docID, freq: freq, positions: positions})
			if len(inMemory[tokenID]) >= threshold {
				if err := spill(tokenID); err != nil {
					return err
				}
			}
			recordsScanned++
			if recordsScanned%logEvery == 0 {
				slog.Info("postings scan progress",
					slog.Int("records_scanned", recordsScanned),
					slog.Int("tokens_observed", len(seen)),
				)
			}
			return nil
		}); err != nil {
			return PostingsStats{}, err
		}
	}

	for id := range spillWriters {
		if err := closeSpill(id); err != nil {
			return PostingsStats{}, fmt.Errorf("closing spill file for token %d: %w", id, err)
		}
	}

	sortedTokens := make([]uint32, 0, len(seen))
	for id := range seen {
		sortedTokens = append(sortedTokens, id)
	}
	sort.Slice(sortedTokens, func(i, j int) bool { return sortedTokens[i] < sortedTokens[j] })

	offsets, totalPostings, err := writePostingsIndex(cfg.OutputDir, tmpDir, sortedTokens, inMemory, diskCount)
	if err != nil {
		return PostingsStats{}, err
	}
	if err := writePostingsOffsets(filepath.Join(cfg.OutputDir, "postings_offsets.bin"), offsets); err != nil {
		return PostingsStats{}, err
	}

	for id := range spillWriters {
		_ = os.Remove(spillPath(tmpDir, id))
	}

	stats := PostingsStats{
		UniqueTokens:  len(offsets),
		TotalPostings: totalPostings,
		SpilledTokens: len(diskCount),
	}
	slog.Info("postings build complete",
		slog.Int("unique_tokens", stats.UniqueTokens),
		slog.Int("total_postings", stats.TotalPostings),
		slog.Int("spilled_tokens", stats.SpilledTokens),
	)
	return stats, nil
}

type offsetEntry struct {
	tokenID uint32
	offset  uint64
	length  uint64
}

// writePostingsIndex is the write phase: for each token_id in ascending
// order, stream its spill file (if any) then its in-memory tail
// into postings_index.bin.tmp, tracking each token's (offset, length).
func writePostingsIndex(outputDir, tmpDir string, sortedTokens []uint32, inMemory map[uint32][]postingRecord, diskCount map[uint32]int) ([]offsetEntry, int, error) {
	path := filepath.Join(outputDir, "postings_index.bin")
	w, err := newAtomicWriter(path)
	if err != nil {
		return nil, 0, err
	}

	var offsets []offsetEntry
	written := int64(0)
	totalPostings := 0

	for _, tokenID := range sortedTokens {
		tail := inMemory[tokenID]
		totalCount := diskCount[tokenID] + len(tail)
		if totalCount == 0 {
			continue
		}

		startOffset := written
		if err := w.writeUint32(uint32(totalCount)); err != nil {
			w.Abort()
			return nil, 0, fmt.Errorf("writing doc_count_for_token %d: %w", tokenID, err)
		}
		written += 4

		if diskCount[tokenID] > 0 {
			n, err := copySpillFile(w, spillPath(tmpDir, tokenID))
			if err != nil {
				w.Abort()
				return nil, 0, fmt.Errorf("streaming spill file for token %d: %w", tokenID, err)
			}
			written += n
		}

		for _, rec := range tail {
			n, err := writePostingRecordCounting(w, rec)
			if err != nil {
				w.Abort()
				return nil, 0, fmt.Errorf("writing in-memory tail for token %d: %w", tokenID, err)
			}
			written += n
		}

		offsets = append(offsets, offsetEntry{tokenID: tokenID, offset: uint64(startOffset), length: uint64(written - startOffset)})
		totalPostings += totalCount
	}

	if err := w.Close(); err != nil {
		return nil, 0, err
	}
	return offsets, totalPostings, nil
}

func writePostingsOffsets(path string, offsets []offsetEntry) error {
	w, err := newAtomicWriter(path)
	if err != nil {
		return err
	}
	if err := w.writeUint32(uint32(len(offsets))); err != nil {
		w.Abort()
		return fmt.Errorf("writing entry_count: %w", err)
	}
	for _, e := range offsets {
		if err := w.writeUint32(e.tokenID); err != nil {
			w.Abort()
			return fmt.Errorf("writing offsets token_id: %w", err)
		}
		if err := w.writeUint64(e.offset); err != nil {
			w.Abort()
			return fmt.Errorf("writing offsets offset: %w", err)
		}
		if err := w.writeUint64(e.length); err != nil {
			w.Abort()
			return fmt.Errorf("writing offsets length: %w", err)
		}
	}
	return w.Close()
}

// ─── barrel record streaming ───────────────────────────────────────────────

func sortedBarrelFiles(barrelsDir string) ([]string, error) {
	entries, err := os.ReadDir(barrelsDir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || len(name) < len("barrel") || name[:len("barrel")] != "barrel" || filepath.Ext(name) != ".bin" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(barrelsDir, n)
	}
	return paths, nil
}

// streamBarrelFile decodes a barrel file's record format without loading
// the whole file into memory.
func streamBarrelFile(path string, fn func(tokenID, docID, freq uint32, positions []uint32) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening barrel %s: %w", path, err)
	}
	defer f.Close()
	r := bufio.NewReaderSize(f, 64*1024)

	for {
		if _, err := r.Peek(1); err != nil {
			break // clean EOF between records
		}
		tokenID, err := readUint32(r)
		if err != nil {
			return fmt.Errorf("reading token_id in %s: %w", path, err)
		}
		docID, err := readUint32(r)
		if err != nil {
			return fmt.Errorf("reading doc_id in %s: %w", path, err)
		}
		freq, err := readUint32(r)
		if err != nil {
			return fmt.Errorf("reading freq in %s: %w", path, err)
		}
		posCount, err := readUint32(r)
		if err != nil {
			return fmt.Errorf("reading positions_count in %s: %w", path, err)
		}
		positions, err := readUint32Slice(r, int(posCount))
		if err != nil {
			return fmt.Errorf("reading positions in %s: %w", path, err)
		}
		if err := fn(tokenID, docID, freq, positions); err != nil {
			return err
		}
	}
	return nil
}

func writePostingRecord(w *bufioUint32Writer, rec postingRecord) error {
	_, err := writePostingRecordCounting(w, rec)
	return err
}

// bufioUint32Writer adapts a *bufio.Writer to the writerUint32 interface so
// spill files (kept open across the whole scan phase) can share
// writePostingRecordCounting with the atomicWriter-backed final output.
type bufioUint32Writer struct {
	*bufio.Writer
}

func (w *bufioUint32Writer) writeUint32(v uint32) error {
	var b [4]byte
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	_, err := w.Write(b[:])
	return err
}

// writePostingRecordCounting writes one (doc_id, freq, positions_count,
// positions…) record and returns the number of bytes written.
func writePostingRecordCounting(w writerUint32, rec postingRecord) (int64, error) {
	if err := w.writeUint32(rec.docID); err != nil {
		return 0, err
	}
	if err := w.writeUint32(rec.freq); err != nil {
		return 0, err
	}
	if err := w.writeUint32(uint32(len(rec.positions))); err != nil {
		return 0, err
	}
	if err := writeUint32SliceTo(w, rec.positions); err != nil {
		return 0, err
	}
	return int64(12 + 4*len(rec.positions)), nil
}

// copySpillFile streams a spilled token's records straight into w without
// buffering more than one record at a time, and returns the byte count
// copied.
func copySpillFile(w writerUint32, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening spill file %s: %w", path, err)
	}
	defer f.Close()
	r := bufio.NewReaderSize(f, 32*1024)

	var total int64
	for {
		if _, err := r.Peek(1); err != nil {
			break
		}
		docID, err := readUint32(r)
		if err != nil {
			return total, fmt.Errorf("reading spilled doc_id: %w", err)
		}
		freq, err := readUint32(r)
		if err != nil {
			return total, fmt.Errorf("reading spilled freq: %w", err)
		}
		posCount, err := readUint32(r)
		if err != nil {
			return total, fmt.Errorf("reading spilled positions_count: %w", err)
		}
		positions, err := readUint32Slice(r, int(posCount))
		if err != nil {
			return total, fmt.Errorf("reading spilled positions: %w", err)
		}
		n, err := writePostingRecordCounting(w, postingRecord{docID: docID, freq: freq, positions: positions})
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func spillPath(tmpDir string, tokenID uint32) string {
	return filepath.Join(tmpDir, fmt.Sprintf("token_%d.bin", tokenID))
}

// writerUint32 is the minimal interface writePostingRecordCounting needs,
// satisfied by both *bufio.Writer (via the bufioUint32Writer adapter above) and
// *atomicWriter.
type writerUint32 interface {
	writeUint32(uint32) error
	Write([]byte) (int, error)
}

func writeUint32SliceTo(w writerUint32, vals []uint32) error {
	return writeUint32Slice(w, vals)
}
