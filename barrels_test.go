package scholarindex

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// With total_docs=100 and frequent_threshold=0.05 (threshold_docs=5), a token
// in 10 docs lands in the frequent barrel, a token in 3 docs lands in a
// regular barrel.
func TestNewBarrelAssigner_FrequentVsRegular(t *testing.T) {
	counts := map[uint32]int{
		100: 10, // frequent: doc_freq 10 >= threshold_docs 5
		200: 3,  // regular: doc_freq 3 < threshold_docs 5
	}
	a := newBarrelAssigner(8, 100, 0.05, counts)

	if got := a.barrelFor(100); got != a.specialBarrelID {
		t.Errorf("token 100 (doc_freq 10) barrel = %d, want special barrel %d", got, a.specialBarrelID)
	}
	if got := a.barrelFor(200); got == a.specialBarrelID || got < 0 || got >= a.numRegularBarrels {
		t.Errorf("token 200 (doc_freq 3) barrel = %d, want a regular barrel in [0,%d)", got, a.numRegularBarrels)
	}
}

func TestNewBarrelAssigner_ThresholdDocsAtLeastOne(t *testing.T) {
	// total_docs=1 would floor to threshold_docs=0 without the max(1,...)
	// clamp; a token appearing in the single
	// document must not be force-classified as frequent by that clamp
	// alone unless its own doc_freq meets it.
	counts := map[uint32]int{1: 1}
	a := newBarrelAssigner(4, 1, 0.05, counts)
	if got := a.barrelFor(1); got != a.specialBarrelID {
		t.Errorf("a token present in every one of 1 total docs should be frequent (doc_freq 1 >= threshold_docs 1), got barrel %d", got)
	}
}

func TestNewBarrelAssigner_TiesBrokenByTokenIDAscending(t *testing.T) {
	// Three tokens tied at doc_freq=1, none reaching the frequent
	// threshold at total_docs=1000. Rank order among ties must be
	// token_id ascending, so token 1 can never land in a later regular
	// barrel than token 2 or token 3 given identical doc_freq.
	counts := map[uint32]int{3: 1, 1: 1, 2: 1}
	a := newBarrelAssigner(4, 1000, 0.05, counts)
	b1, b2, b3 := a.barrelFor(1), a.barrelFor(2), a.barrelFor(3)
	if b1 > b2 || b2 > b3 {
		t.Errorf("tie-broken barrel assignment not ascending by token_id: b1=%d b2=%d b3=%d", b1, b2, b3)
	}
}

func TestBarrelAssigner_SaveAndLoad_MappingSortedByTokenID(t *testing.T) {
	counts := map[uint32]int{5: 2, 1: 9, 3: 1}
	a := newBarrelAssigner(4, 100, 0.05, counts)
	path := filepath.Join(t.TempDir(), "barrel_mapping.bin")
	if err := a.save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	numRegular, specialID, mapping := readBarrelMapping(t, path)
	if numRegular != 4 {
		t.Errorf("num_regular_barrels = %d, want 4", numRegular)
	}
	if specialID != 4 {
		t.Errorf("special_frequent_id = %d, want 4", specialID)
	}
	if len(mapping) != 3 {
		t.Fatalf("mapping_count = %d, want 3", len(mapping))
	}
	for i := 1; i < len(mapping); i++ {
		if mapping[i-1].tokenID >= mapping[i].tokenID {
			t.Errorf("mapping entries not sorted by token_id: %v", mapping)
		}
	}
}

func TestBuildBarrels_PositionalRecordsGroupedPerToken(t *testing.T) {
	out := t.TempDir()
	// doc0: token 0 at positions [0,1], token 1 at position [2]
	records := [][]uint32{{0, 0, 1}}
	if err := writeForwardIndex(records, filepath.Join(out, "forward_index.bin")); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultBuildConfig("", out)
	cfg.NumRegularBarrels = 2
	stats, err := BuildBarrels(cfg)
	if err != nil {
		t.Fatalf("BuildBarrels: %v", err)
	}
	if stats.UniqueTokensSeen != 2 {
		t.Fatalf("UniqueTokensSeen = %d, want 2", stats.UniqueTokensSeen)
	}

	foundToken0 := false
	for barrelID := 0; barrelID <= cfg.NumRegularBarrels; barrelID++ {
		path := filepath.Join(out, "barrels", barrelFileName(cfg.NumRegularBarrels, barrelID))
		recs := readBarrelRecords(t, path)
		for _, r := range recs {
			if r.tokenID == 0 {
				foundToken0 = true
				if len(r.positions) != 2 || r.positions[0] != 0 || r.positions[1] != 1 {
					t.Errorf("token 0 positions = %v, want [0 1]", r.positions)
				}
				if r.freq != 2 {
					t.Errorf("token 0 freq = %d, want 2", r.freq)
				}
			}
		}
	}
	if !foundToken0 {
		t.Fatal("token 0's positional record was not found in any barrel file")
	}
}

func barrelFileName(numRegular, barrelID int) string {
	if barrelID == numRegular {
		return "barrel_freq.bin"
	}
	return fmt.Sprintf("barrel_%02d.bin", barrelID)
}

type barrelTestRecord struct {
	tokenID   uint32
	docID     uint32
	freq      uint32
	positions []uint32
}

func readBarrelRecords(t *testing.T, path string) []barrelTestRecord {
	t.Helper()
	var out []barrelTestRecord
	err := streamBarrelFile(path, func(tokenID, docID, freq uint32, positions []uint32) error {
		out = append(out, barrelTestRecord{tokenID: tokenID, docID: docID, freq: freq, positions: positions})
		return nil
	})
	if err != nil {
		t.Fatalf("streamBarrelFile(%s): %v", path, err)
	}
	return out
}

type barrelMappingEntry struct {
	tokenID uint32
	barrel  uint32
}

func readBarrelMapping(t *testing.T, path string) (numRegular, specialID uint32, mapping []barrelMappingEntry) {
	t.Helper()
	f, ferr := os.Open(path)
	if ferr != nil {
		t.Fatalf("opening %s: %v", path, ferr)
	}
	defer f.Close()

	var err error
	numRegular, err = readUint32(f)
	if err != nil {
		t.Fatalf("reading num_regular_barrels: %v", err)
	}
	specialID, err = readUint32(f)
	if err != nil {
		t.Fatalf("reading special_frequent_id: %v", err)
	}
	count, err := readUint32(f)
	if err != nil {
		t.Fatalf("reading mapping_count: %v", err)
	}
	for i := uint32(0); i < count; i++ {
		tokenID, err := readUint32(f)
		if err != nil {
			t.Fatalf("reading mapping token_id: %v", err)
		}
		barrel, err := readUint32(f)
		if err != nil {
			t.Fatalf("reading mapping barrel_id: %v", err)
		}
		mapping = append(mapping, barrelMappingEntry{tokenID: tokenID, barrel: barrel})
	}
	return numRegular, specialID, mapping
}
