package scholarindex

import (
	"container/heap"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/RoaringBitmap/roaring"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BUCKETED EXTERNAL-MERGE INVERTER
// ═══════════════════════════════════════════════════════════════════════════════
// Three passes, each with its own file handles released before the next
// pass opens anything:
//
//  Pass 1 (shard):   forward_index.bin  → B bucket files, keyed token_id % B
//  Pass 2 (compact):  each bucket file  → one compact-bucket stream, sorted
//                      + deduplicated doc ids per token (a roaring.Bitmap
//                      does both in one step)
//  Pass 3 (merge):    B compact streams → inverted_index.bin, via a
//                      token_id-keyed min-heap. Because sharding is modulo
//                      partition, every token_id lives in exactly one
//                      stream, so the heap only interleaves disjoint keys;
//                      no same-key merging is ever needed.
// ═══════════════════════════════════════════════════════════════════════════════

// InvertedIndexStats mirrors the stats a caller wants logged/tested.
type InvertedIndexStats struct {
	UniqueTokens     int
	TotalPostings    int
	DocumentsIndexed int
}

// BuildInvertedIndex reads forward_index.bin from cfg.OutputDir and writes
// inverted_index.bin alongside it.
func BuildInvertedIndex(cfg BuildConfig) (InvertedIndexStats, error) {
	forwardPath := filepath.Join(cfg.OutputDir, "forward_index.bin")
	if _, err := os.Stat(forwardPath); err != nil {
		return InvertedIndexStats{}, fmt.Errorf("%w: %s", ErrInputMissing, forwardPath)
	}

	bucketCount := cfg.normalizeBucketCount()
	tmpDir, err := os.MkdirTemp(cfg.OutputDir, ".invert-tmp-*")
	if err != nil {
		return InvertedIndexStats{}, fmt.Errorf("creating scratch directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	docCount, err := shardForwardIndex(forwardPath, tmpDir, bucketCount)
	if err != nil {
		return InvertedIndexStats{}, err
	}

	compactPaths, err := compactBuckets(tmpDir, bucketCount)
	if err != nil {
		return InvertedIndexStats{}, err
	}

	uniqueTokens, totalPostings, err := mergeCompactBuckets(compactPaths, filepath.Join(cfg.OutputDir, "inverted_index.bin"))
	if err != nil {
		return InvertedIndexStats{}, err
	}

	stats := InvertedIndexStats{
		UniqueTokens:     uniqueTokens,
		TotalPostings:    totalPostings,
		DocumentsIndexed: docCount,
	}
	slog.Info("inverted index build complete",
		slog.Int("unique_tokens", stats.UniqueTokens),
		slog.Int("total_postings", stats.TotalPostings),
		slog.Int("documents_indexed", stats.DocumentsIndexed),
	)
	return stats, nil
}

// shardForwardIndex is Pass 1: stream forward_index.bin and append each
// (token_id, doc_id) pair as an 8-byte record to bucket token_id % B.
func shardForwardIndex(forwardPath, tmpDir string, bucketCount int) (docCount int, err error) {
	buckets := make([]*bufferedFile, bucketCount)
	for i := range buckets {
		bf, err := newBufferedFile(bucketPath(tmpDir, i))
		if err != nil {
			closeBuffered(buckets)
			return 0, fmt.Errorf("opening shard bucket %d: %w", i, err)
		}
		buckets[i] = bf
	}
	defer closeBuffered(buckets)

	err = streamForwardIndex(forwardPath, func(rec ForwardRecord) error {
		docCount++
		for _, tokenID := range rec.TokenIDs {
			b := buckets[int(tokenID)%bucketCount]
			if err := b.writePair(tokenID, rec.DocID); err != nil {
				return fmt.Errorf("writing shard record: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if docCount == 0 {
		return 0, fmt.Errorf("%w: forward index declares zero documents", ErrFormatViolation)
	}

	for i, b := range buckets {
		if err := b.flushAndClose(); err != nil {
			return 0, fmt.Errorf("closing shard bucket %d: %w", i, err)
		}
	}
	return docCount, nil
}

// compactBuckets is Pass 2: for each non-empty shard bucket, accumulate
// token_id → doc_id set in a roaring.Bitmap (which sorts and deduplicates
// for free), then write one compact-bucket stream of
// (token_id, doc_freq, sorted doc_ids) records in ascending token_id order.
func compactBuckets(tmpDir string, bucketCount int) ([]string, error) {
	var compactPaths []string

	for i := 0; i < bucketCount; i++ {
		path := bucketPath(tmpDir, i)
		info, err := os.Stat(path)
		if err != nil || info.Size() == 0 {
			continue
		}
		if info.Size()%8 != 0 {
			return nil, fmt.Errorf("%w: shard bucket %d size %d is not a multiple of 8", ErrFormatViolation, i, info.Size())
		}

		bitmaps, err := loadBucketBitmaps(path)
		if err != nil {
			return nil, err
		}

		compactPath := filepath.Join(tmpDir, fmt.Sprintf("compact_%05d.bin", i))
		if err := writeCompactBucket(bitmaps, compactPath); err != nil {
			return nil, err
		}
		compactPaths = append(compactPaths, compactPath)
	}

	return compactPaths, nil
}

func loadBucketBitmaps(path string) (map[uint32]*roaring.Bitmap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening shard bucket %s: %w", path, err)
	}
	defer f.Close()

	bitmaps := make(map[uint32]*roaring.Bitmap)
	for {
		tokenID, docID, err := readPair(f)
		if err == errEOFPair {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: truncated shard bucket %s: %v", ErrFormatViolation, path, err)
		}
		bm, ok := bitmaps[tokenID]
		if !ok {
			bm = roaring.New()
			bitmaps[tokenID] = bm
		}
		bm.Add(docID)
	}
	return bitmaps, nil
}

func writeCompactBucket(bitmaps map[uint32]*roaring.Bitmap, path string) error {
	tokenIDs := make([]uint32, 0, len(bitmaps))
	for id := range bitmaps {
		tokenIDs = append(tokenIDs, id)
	}
	sort.Slice(tokenIDs, func(i, j int) bool { return tokenIDs[i] < tokenIDs[j] })

	w, err := newAtomicWriter(path)
	if err != nil {
		return err
	}
	for _, tokenID := range tokenIDs {
		docIDs := bitmaps[tokenID].ToArray()
		if err := w.writeUint32(tokenID); err != nil {
			w.Abort()
			return fmt.Errorf("writing compact token_id: %w", err)
		}
		if err := w.writeUint32(uint32(len(docIDs))); err != nil {
			w.Abort()
			return fmt.Errorf("writing compact doc_freq: %w", err)
		}
		if err := writeUint32Slice(w, docIDs); err != nil {
			w.Abort()
			return fmt.Errorf("writing compact doc_ids: %w", err)
		}
	}
	return w.Close()
}

// mergeCompactBuckets is Pass 3: open every compact-bucket stream, merge
// them by ascending token_id via a min-heap, and write inverted_index.bin.
// The heap only ever interleaves disjoint keys (see the comment at the top
// of this file).
func mergeCompactBuckets(compactPaths []string, outputPath string) (uniqueTokens, totalPostings int, err error) {
	streams := make([]*compactStreamReader, len(compactPaths))
	for i, p := range compactPaths {
		r, err := newCompactStreamReader(p)
		if err != nil {
			closeCompactStreams(streams)
			return 0, 0, err
		}
		streams[i] = r
	}
	defer closeCompactStreams(streams)

	w, err := newAtomicWriter(outputPath)
	if err != nil {
		return 0, 0, err
	}
	// Placeholder vocab_size, patched once the true count is known.
	if err := w.writeUint32(0); err != nil {
		w.Abort()
		return 0, 0, fmt.Errorf("writing vocab_size placeholder: %w", err)
	}

	h := &mergeHeap{}
	heap.Init(h)
	for idx, r := range streams {
		rec, ok, err := r.next()
		if err != nil {
			w.Abort()
			return 0, 0, err
		}
		if ok {
			heap.Push(h, mergeItem{tokenID: rec.tokenID, docIDs: rec.docIDs, stream: idx})
		}
	}

	for h.Len() > 0 {
		item := heap.Pop(h).(mergeItem)
		if err := w.writeUint32(item.tokenID); err != nil {
			w.Abort()
			return 0, 0, fmt.Errorf("writing token_id: %w", err)
		}
		if err := w.writeUint32(uint32(len(item.docIDs))); err != nil {
			w.Abort()
			return 0, 0, fmt.Errorf("writing doc_freq: %w", err)
		}
		if err := writeUint32Slice(w, item.docIDs); err != nil {
			w.Abort()
			return 0, 0, fmt.Errorf("writing doc_ids: %w", err)
		}
		uniqueTokens++
		totalPostings += len(item.docIDs)

		rec, ok, err := streams[item.stream].next()
		if err != nil {
			w.Abort()
			return 0, 0, err
		}
		if ok {
			heap.Push(h, mergeItem{tokenID: rec.tokenID, docIDs: rec.docIDs, stream: item.stream})
		}
	}

	if err := w.Close(); err != nil {
		return 0, 0, err
	}

	if err := patchLeadingUint32(outputPath, uint32(uniqueTokens)); err != nil {
		return 0, 0, err
	}

	return uniqueTokens, totalPostings, nil
}

func bucketPath(tmpDir string, i int) string {
	return filepath.Join(tmpDir, fmt.Sprintf("bucket_%05d.bin", i))
}

// ─── merge heap ──────────────────────────────────────────────────────────

type mergeItem struct {
	tokenID uint32
	docIDs  []uint32
	stream  int
}

type mergeHeap []mergeItem

func (h mergeHeap) Len() int            { return len(h) }
func (h mergeHeap) Less(i, j int) bool  { return h[i].tokenID < h[j].tokenID }
func (h mergeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x interface{}) { *h = append(*h, x.(mergeItem)) }
func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
