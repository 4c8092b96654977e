package scholarindex

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/RoaringBitmap/roaring"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BARREL ASSIGNER
// ═══════════════════════════════════════════════════════════════════════════════
// Tokens at or above threshold_docs document frequency go to the special
// "frequent" barrel (id == N). The rest are sorted ascending by doc_freq
// (ties broken by token_id ascending) and distributed across [0, N) with a
// concave percentile transform: rank i of R remaining gets
// barrel = min(N-1, floor((i/R)^0.6 * N)).
// ═══════════════════════════════════════════════════════════════════════════════

// barrelAssigner holds the token_id → barrel_id mapping and the frequency
// data it was built from.
type barrelAssigner struct {
	numRegularBarrels int
	specialBarrelID   int
	tokenToBarrel     map[uint32]int
	tokenDocCounts    map[uint32]int
	mostFrequent      []uint32 // top tokens by doc_freq, for diagnostics only
}

const frequentDiagnosticsLimit = 100

// newBarrelAssigner computes the barrel mapping for tokenDocCounts (token_id
// → number of documents it appears in) given the total document count.
func newBarrelAssigner(numRegularBarrels, totalDocs int, frequentThreshold float64, tokenDocCounts map[uint32]int) *barrelAssigner {
	a := &barrelAssigner{
		numRegularBarrels: numRegularBarrels,
		specialBarrelID:   numRegularBarrels,
		tokenToBarrel:     make(map[uint32]int, len(tokenDocCounts)),
		tokenDocCounts:    tokenDocCounts,
	}

	type tokenCount struct {
		id  uint32
		cnt int
	}
	sorted := make([]tokenCount, 0, len(tokenDocCounts))
	for id, cnt := range tokenDocCounts {
		sorted = append(sorted, tokenCount{id, cnt})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].cnt != sorted[j].cnt {
			return sorted[i].cnt < sorted[j].cnt
		}
		return sorted[i].id < sorted[j].id
	})

	thresholdDocs := int(math.Floor(float64(totalDocs) * frequentThreshold))
	if thresholdDocs < 1 {
		thresholdDocs = 1
	}

	desc := make([]tokenCount, len(sorted))
	copy(desc, sorted)
	sort.Slice(desc, func(i, j int) bool {
		if desc[i].cnt != desc[j].cnt {
			return desc[i].cnt > desc[j].cnt
		}
		return desc[i].id < desc[j].id
	})
	for i := 0; i < len(desc) && i < frequentDiagnosticsLimit; i++ {
		a.mostFrequent = append(a.mostFrequent, desc[i].id)
	}

	remaining := make([]tokenCount, 0, len(sorted))
	for _, tc := range sorted {
		if tc.cnt >= thresholdDocs {
			a.tokenToBarrel[tc.id] = a.specialBarrelID
			continue
		}
		remaining = append(remaining, tc)
	}

	total := len(remaining)
	for i, tc := range remaining {
		percentile := float64(i) / float64(total)
		barrel := int(math.Floor(math.Pow(percentile, 0.6) * float64(numRegularBarrels)))
		if barrel > numRegularBarrels-1 {
			barrel = numRegularBarrels - 1
		}
		a.tokenToBarrel[tc.id] = barrel
	}

	return a
}

// barrelFor returns the barrel id assigned to tokenID, or -1 if unknown.
func (a *barrelAssigner) barrelFor(tokenID uint32) int {
	if b, ok := a.tokenToBarrel[tokenID]; ok {
		return b
	}
	return -1
}

// save persists barrel_mapping.bin, sorted by token_id.
func (a *barrelAssigner) save(path string) error {
	w, err := newAtomicWriter(path)
	if err != nil {
		return err
	}
	if err := w.writeUint32(uint32(a.numRegularBarrels)); err != nil {
		w.Abort()
		return fmt.Errorf("writing num_regular_barrels: %w", err)
	}
	if err := w.writeUint32(uint32(a.specialBarrelID)); err != nil {
		w.Abort()
		return fmt.Errorf("writing special_frequent_id: %w", err)
	}

	tokenIDs := make([]uint32, 0, len(a.tokenToBarrel))
	for id := range a.tokenToBarrel {
		tokenIDs = append(tokenIDs, id)
	}
	sort.Slice(tokenIDs, func(i, j int) bool { return tokenIDs[i] < tokenIDs[j] })

	if err := w.writeUint32(uint32(len(tokenIDs))); err != nil {
		w.Abort()
		return fmt.Errorf("writing mapping_count: %w", err)
	}
	for _, id := range tokenIDs {
		if err := w.writeUint32(id); err != nil {
			w.Abort()
			return fmt.Errorf("writing mapping token_id: %w", err)
		}
		if err := w.writeUint32(uint32(a.tokenToBarrel[id])); err != nil {
			w.Abort()
			return fmt.Errorf("writing mapping barrel_id: %w", err)
		}
	}
	return w.Close()
}

// logDiagnostics prints the per-barrel token/posting-count summary and the
// top frequent-token list.
func (a *barrelAssigner) logDiagnostics() {
	barrelTokenCounts := make(map[int]int)
	barrelPostingEstimate := make(map[int]int)
	for id, barrel := range a.tokenToBarrel {
		barrelTokenCounts[barrel]++
		barrelPostingEstimate[barrel] += a.tokenDocCounts[id]
	}

	ids := make([]int, 0, len(barrelTokenCounts))
	for b := range barrelTokenCounts {
		ids = append(ids, b)
	}
	sort.Ints(ids)
	for _, b := range ids {
		name := fmt.Sprintf("barrel_%02d", b)
		if b == a.specialBarrelID {
			name = "barrel_freq"
		}
		slog.Info("barrel assignment",
			slog.String("barrel", name),
			slog.Int("tokens", barrelTokenCounts[b]),
			slog.Int("postings_estimate", barrelPostingEstimate[b]),
		)
	}

	for rank, id := range a.mostFrequent {
		if rank >= 10 {
			break
		}
		barrel := a.barrelFor(id)
		name := fmt.Sprintf("barrel_%02d", barrel)
		if barrel == a.specialBarrelID {
			name = "barrel_freq"
		}
		slog.Info("frequent token",
			slog.Int("rank", rank+1),
			slog.Uint64("token_id", uint64(id)),
			slog.Int("doc_freq", a.tokenDocCounts[id]),
			slog.String("barrel", name),
		)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// BARREL WRITER
// ═══════════════════════════════════════════════════════════════════════════════

// barrelWriter owns one append-only handle per barrel file, plus the
// special frequent barrel, matching barrel_00.bin … barrel_{N-1}.bin and
// barrel_freq.bin under output_dir/barrels/.
type barrelWriter struct {
	files []*bufio32Writer
}

func newBarrelWriter(barrelsDir string, numRegularBarrels int) (*barrelWriter, error) {
	if err := os.MkdirAll(barrelsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating barrels directory: %w", err)
	}
	bw := &barrelWriter{files: make([]*bufio32Writer, numRegularBarrels+1)}
	for i := 0; i < numRegularBarrels; i++ {
		f, err := newBufio32Writer(filepath.Join(barrelsDir, fmt.Sprintf("barrel_%02d.bin", i)))
		if err != nil {
			bw.closeAll()
			return nil, fmt.Errorf("opening barrel %d: %w", i, err)
		}
		bw.files[i] = f
	}
	f, err := newBufio32Writer(filepath.Join(barrelsDir, "barrel_freq.bin"))
	if err != nil {
		bw.closeAll()
		return nil, fmt.Errorf("opening barrel_freq: %w", err)
	}
	bw.files[numRegularBarrels] = f
	return bw, nil
}

// writePosting appends a positional record to the barrel
// assigned to tokenID.
func (bw *barrelWriter) writePosting(barrelID int, tokenID, docID uint32, positions []uint32) error {
	f := bw.files[barrelID]
	if err := f.writeUint32(tokenID); err != nil {
		return err
	}
	if err := f.writeUint32(docID); err != nil {
		return err
	}
	if err := f.writeUint32(uint32(len(positions))); err != nil {
		return err
	}
	if err := f.writeUint32(uint32(len(positions))); err != nil { // positions_count, redundant with freq
		return err
	}
	return f.writeUint32Slice(positions)
}

func (bw *barrelWriter) closeAll() error {
	var firstErr error
	for _, f := range bw.files {
		if f == nil {
			continue
		}
		if err := f.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// BarrelStats mirrors the assign+write phase's build_barrels return value.
type BarrelStats struct {
	DocumentsIndexed int
	TokensAssigned   int
	UniqueTokensSeen int
}

// BuildBarrels assigns every token to a barrel and writes its postings: Pass
// 1 (document-frequency scan) over forward_index.bin builds and persists
// barrel_mapping.bin, then Pass 2 (positional write) writes into
// output_dir/barrels/.
func BuildBarrels(cfg BuildConfig) (BarrelStats, error) {
	forwardPath := filepath.Join(cfg.OutputDir, "forward_index.bin")
	if _, err := os.Stat(forwardPath); err != nil {
		return BarrelStats{}, fmt.Errorf("%w: %s", ErrInputMissing, forwardPath)
	}

	numRegularBarrels := cfg.normalizeNumRegularBarrels()
	frequentThreshold := cfg.normalizeFrequentThreshold()
	logEvery := cfg.normalizeLogEvery()

	tokenDocCounts := make(map[uint32]int)
	totalDocs := 0

	slog.Info("barrels pass 1: scanning document frequencies")
	err := streamForwardIndex(forwardPath, func(rec ForwardRecord) error {
		totalDocs++
		seen := roaring.New()
		for _, tokenID := range rec.TokenIDs {
			if !seen.Contains(tokenID) {
				seen.Add(tokenID)
				tokenDocCounts[tokenID]++
			}
		}
		if totalDocs%logEvery == 0 {
			slog.Info("barrels pass 1 progress", slog.Int("documents_scanned", totalDocs), slog.Int("tokens_observed", len(tokenDocCounts)))
		}
		return nil
	})
	if err != nil {
		return BarrelStats{}, err
	}
	if totalDocs == 0 {
		return BarrelStats{}, fmt.Errorf("%w: forward index is empty", ErrInputEmpty)
	}

	assigner := newBarrelAssigner(numRegularBarrels, totalDocs, frequentThreshold, tokenDocCounts)
	if err := assigner.save(filepath.Join(cfg.OutputDir, "barrel_mapping.bin")); err != nil {
		return BarrelStats{}, err
	}
	assigner.logDiagnostics()

	barrelsDir := filepath.Join(cfg.OutputDir, "barrels")
	writer, err := newBarrelWriter(barrelsDir, numRegularBarrels)
	if err != nil {
		return BarrelStats{}, err
	}

	slog.Info("barrels pass 2: writing positional postings")
	docsWritten := 0
	err = streamForwardIndex(forwardPath, func(rec ForwardRecord) error {
		positions := make(map[uint32][]uint32)
		for pos, tokenID := range rec.TokenIDs {
			positions[tokenID] = append(positions[tokenID], uint32(pos))
		}

		tokenIDs := make([]uint32, 0, len(positions))
		for id := range positions {
			tokenIDs = append(tokenIDs, id)
		}
		sort.Slice(tokenIDs, func(i, j int) bool { return tokenIDs[i] < tokenIDs[j] })

		for _, tokenID := range tokenIDs {
			barrelID := assigner.barrelFor(tokenID)
			if barrelID < 0 {
				barrelID = int(tokenID) % numRegularBarrels
			}
			if err := writer.writePosting(barrelID, tokenID, rec.DocID, positions[tokenID]); err != nil {
				return fmt.Errorf("writing posting for token %d doc %d: %w", tokenID, rec.DocID, err)
			}
		}

		docsWritten++
		if docsWritten%logEvery == 0 {
			slog.Info("barrels pass 2 progress", slog.Int("documents_written", docsWritten), slog.Int("total_documents", totalDocs))
		}
		return nil
	})
	if closeErr := writer.closeAll(); err == nil {
		err = closeErr
	}
	if err != nil {
		return BarrelStats{}, err
	}

	stats := BarrelStats{
		DocumentsIndexed: totalDocs,
		TokensAssigned:   len(assigner.tokenToBarrel),
		UniqueTokensSeen: len(tokenDocCounts),
	}
	slog.Info("barrels build complete",
		slog.Int("documents_indexed", stats.DocumentsIndexed),
		slog.Int("tokens_assigned", stats.TokensAssigned),
	)
	return stats, nil
}
