package scholarindex

import "github.com/pbnjay/memory"

// ═══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ═══════════════════════════════════════════════════════════════════════════════
// Every build function takes an explicit BuildConfig rather than reading off
// package-level mutable state, so tests can run concurrently and a caller
// can run multiple builds with different tunables in the same process.
// ═══════════════════════════════════════════════════════════════════════════════

// BuildConfig collects every tunable a build phase needs, passed explicitly
// rather than read off shared mutable state.
type BuildConfig struct {
	InputDir  string // root directory containing the structured/PDF-extracted JSON trees
	OutputDir string // directory all build phases read from and write to

	Stopwords map[string]struct{} // lowercase stopwords to drop during tokenization; nil means the built-in default set, an empty map means none

	NumRegularBarrels int     // N; tokens fill barrels [0, N), frequent tokens go to barrel N
	FrequentThreshold float64 // fraction of total_docs above which a token is "frequent" (default 0.05)

	BucketCount int // B; number of shard files for the external merge

	PerTokenThreshold int // postings consolidator in-memory cap per token before spilling

	Limit int // optional cap on documents processed (0 = no limit)

	LogEvery int // how many documents/records between progress log lines
}

// Default tunables chosen for a mid-size corpus on a single machine.
const (
	DefaultNumRegularBarrels = 16
	DefaultFrequentThreshold = 0.05
	DefaultBucketCount       = 128
	DefaultPerTokenThreshold = 1024
	DefaultLogEvery          = 50
)

// DefaultBuildConfig returns a BuildConfig with every tunable at its
// documented default and Stopwords left nil, so the forward build falls back
// to the built-in default stopword set; loading a stopword list is left to
// the caller.
func DefaultBuildConfig(inputDir, outputDir string) BuildConfig {
	return BuildConfig{
		InputDir:          inputDir,
		OutputDir:         outputDir,
		NumRegularBarrels: DefaultNumRegularBarrels,
		FrequentThreshold: DefaultFrequentThreshold,
		BucketCount:       autoBucketCount(),
		PerTokenThreshold: DefaultPerTokenThreshold,
		LogEvery:          DefaultLogEvery,
	}
}

// autoBucketCount picks a bucket count scaled to available system memory
// when the caller leaves --bucket-count unset. More RAM means each
// per-bucket working set compacted during inversion can grow before Go's
// GC pressure becomes a problem, so a larger machine can afford fewer,
// larger buckets while keeping each one a few megabytes.
func autoBucketCount() int {
	total := memory.TotalMemory()
	switch {
	case total == 0:
		return DefaultBucketCount
	case total < 2<<30: // < 2GiB
		return 256
	case total < 8<<30: // < 8GiB
		return 128
	default:
		return 64
	}
}

func (c BuildConfig) normalizeFrequentThreshold() float64 {
	if c.FrequentThreshold <= 0 {
		return DefaultFrequentThreshold
	}
	return c.FrequentThreshold
}

func (c BuildConfig) normalizePerTokenThreshold() int {
	if c.PerTokenThreshold < 1 {
		return DefaultPerTokenThreshold
	}
	return c.PerTokenThreshold
}

func (c BuildConfig) normalizeLogEvery() int {
	if c.LogEvery < 1 {
		return DefaultLogEvery
	}
	return c.LogEvery
}

func (c BuildConfig) normalizeBucketCount() int {
	if c.BucketCount < 1 {
		return autoBucketCount()
	}
	return c.BucketCount
}

func (c BuildConfig) normalizeNumRegularBarrels() int {
	if c.NumRegularBarrels < 1 {
		return DefaultNumRegularBarrels
	}
	return c.NumRegularBarrels
}
