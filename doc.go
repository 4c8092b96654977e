// ═══════════════════════════════════════════════════════════════════════════════
// PACKAGE OVERVIEW
// ═══════════════════════════════════════════════════════════════════════════════
// Package scholarindex builds the on-disk inverted index for a batch search
// engine over a large scientific-paper corpus. It does not serve queries; it
// only transforms a directory tree of per-document JSON files into the set of
// binary artifacts a query-time ranker later consumes.
//
// PIPELINE:
// ---------
//
//	JSON corpus
//	   │  (tokenize, assign token ids)
//	   ▼
//	lexicon.bin + forward_index.bin + doc_ids.tsv      BuildForwardIndex
//	   │  (external bucketed merge sort)
//	   ▼
//	inverted_index.bin                                  BuildInvertedIndex
//	   │  (doc-frequency percentile partition)
//	   ▼
//	barrel_mapping.bin + barrels/*.bin                  BuildBarrels
//	   │  (per-token spill-to-disk accumulation)
//	   ▼
//	postings_index.bin + postings_offsets.bin           BuildPostings
//
// Each stage reads only files that earlier stages wrote (BuildBarrels reads
// forward_index.bin, not inverted_index.bin) and is safe to rerun from
// scratch; there is no incremental update path.
// ═══════════════════════════════════════════════════════════════════════════════
package scholarindex
