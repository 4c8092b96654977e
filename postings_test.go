package scholarindex

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// writeBarrelFixture writes one barrel file directly in the positional
// record format, bypassing BuildBarrels so postings tests can target the
// consolidator in isolation.
func writeBarrelFixture(t *testing.T, path string, records []barrelTestRecord) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	w, err := newBufio32Writer(path)
	if err != nil {
		t.Fatalf("newBufio32Writer: %v", err)
	}
	for _, r := range records {
		if err := w.writeUint32(r.tokenID); err != nil {
			t.Fatal(err)
		}
		if err := w.writeUint32(r.docID); err != nil {
			t.Fatal(err)
		}
		if err := w.writeUint32(r.freq); err != nil {
			t.Fatal(err)
		}
		if err := w.writeUint32(uint32(len(r.positions))); err != nil {
			t.Fatal(err)
		}
		if err := w.writeUint32Slice(r.positions); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.close(); err != nil {
		t.Fatalf("closing barrel fixture: %v", err)
	}
}

func readPostingsBlock(t *testing.T, outputDir string, tokenID uint32) []barrelTestRecord {
	t.Helper()
	offPath := filepath.Join(outputDir, "postings_offsets.bin")
	f, err := os.Open(offPath)
	if err != nil {
		t.Fatalf("opening postings_offsets.bin: %v", err)
	}
	defer f.Close()

	entryCount, err := readUint32(f)
	if err != nil {
		t.Fatalf("reading entry_count: %v", err)
	}
	var offset, length uint64
	found := false
	for i := uint32(0); i < entryCount; i++ {
		id, err := readUint32(f)
		if err != nil {
			t.Fatalf("reading offsets token_id: %v", err)
		}
		off, err := readUint64(f)
		if err != nil {
			t.Fatalf("reading offsets offset: %v", err)
		}
		ln, err := readUint64(f)
		if err != nil {
			t.Fatalf("reading offsets length: %v", err)
		}
		if id == tokenID {
			offset, length, found = off, ln, true
		}
	}
	if !found {
		t.Fatalf("token %d not present in postings_offsets.bin", tokenID)
	}

	idxF, err := os.Open(filepath.Join(outputDir, "postings_index.bin"))
	if err != nil {
		t.Fatalf("opening postings_index.bin: %v", err)
	}
	defer idxF.Close()
	if _, err := idxF.Seek(int64(offset), 0); err != nil {
		t.Fatal(err)
	}

	limited := &limitedReader{r: idxF, n: int64(length)}
	docCount, err := readUint32(limited)
	if err != nil {
		t.Fatalf("reading doc_count_for_token: %v", err)
	}
	var records []barrelTestRecord
	for i := uint32(0); i < docCount; i++ {
		docID, err := readUint32(limited)
		if err != nil {
			t.Fatalf("reading doc_id: %v", err)
		}
		freq, err := readUint32(limited)
		if err != nil {
			t.Fatalf("reading freq: %v", err)
		}
		posCount, err := readUint32(limited)
		if err != nil {
			t.Fatalf("reading positions_count: %v", err)
		}
		positions, err := readUint32Slice(limited, int(posCount))
		if err != nil {
			t.Fatalf("reading positions: %v", err)
		}
		records = append(records, barrelTestRecord{tokenID: tokenID, docID: docID, freq: freq, positions: positions})
	}
	return records
}

type limitedReader struct {
	r *os.File
	n int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.n <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > l.n {
		p = p[:l.n]
	}
	n, err := l.r.Read(p)
	l.n -= int64(n)
	return n, err
}

func TestBuildPostings_GroupsByTokenInScanOrder(t *testing.T) {
	out := t.TempDir()
	writeBarrelFixture(t, filepath.Join(out, "barrels", "barrel_00.bin"), []barrelTestRecord{
		{tokenID: 0, docID: 0, freq: 2, positions: []uint32{0, 1}},
		{tokenID: 0, docID: 2, freq: 1, positions: []uint32{0}},
	})

	cfg := DefaultBuildConfig("", out)
	stats, err := BuildPostings(cfg)
	if err != nil {
		t.Fatalf("BuildPostings: %v", err)
	}
	if stats.UniqueTokens != 1 || stats.TotalPostings != 2 {
		t.Fatalf("stats = %+v, want UniqueTokens=1 TotalPostings=2", stats)
	}

	block := readPostingsBlock(t, out, 0)
	if len(block) != 2 {
		t.Fatalf("got %d records for token 0, want 2", len(block))
	}
	// scan order, not doc_id order: doc 0 was encountered first.
	if block[0].docID != 0 || block[1].docID != 2 {
		t.Errorf("block order = %v, want doc 0 then doc 2 (scan order preserved)", block)
	}
}

// A token with exactly the per-token threshold + 1 positional records
// produces one spill file and one in-memory tail record; the consolidated
// block contains all THRESHOLD+1 records in scan order.
func TestBuildPostings_SpillThenTail(t *testing.T) {
	out := t.TempDir()
	threshold := 4
	var recs []barrelTestRecord
	for i := 0; i < threshold+1; i++ {
		recs = append(recs, barrelTestRecord{tokenID: 7, docID: uint32(i), freq: 1, positions: []uint32{uint32(i)}})
	}
	writeBarrelFixture(t, filepath.Join(out, "barrels", "barrel_00.bin"), recs)

	cfg := DefaultBuildConfig("", out)
	cfg.PerTokenThreshold = threshold
	stats, err := BuildPostings(cfg)
	if err != nil {
		t.Fatalf("BuildPostings: %v", err)
	}
	if stats.SpilledTokens != 1 {
		t.Fatalf("SpilledTokens = %d, want 1", stats.SpilledTokens)
	}

	block := readPostingsBlock(t, out, 7)
	if len(block) != threshold+1 {
		t.Fatalf("got %d records for token 7, want %d", len(block), threshold+1)
	}
	for i, r := range block {
		if r.docID != uint32(i) {
			t.Errorf("block[%d].docID = %d, want %d (scan order preserved across spill boundary)", i, r.docID, i)
		}
	}
}

func TestBuildPostings_NoBarrelFilesIsInputMissing(t *testing.T) {
	out := t.TempDir()
	if err := os.MkdirAll(filepath.Join(out, "barrels"), 0o755); err != nil {
		t.Fatal(err)
	}
	_, err := BuildPostings(DefaultBuildConfig("", out))
	if !errors.Is(err, ErrInputMissing) {
		t.Fatalf("BuildPostings() error = %v, want wrapping ErrInputMissing when the barrels directory has no barrel files", err)
	}
}
