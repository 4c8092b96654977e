// Command scholarindex builds the on-disk artifacts of a search index in
// four independent phases: forward indexing, inversion, barreling, and
// postings consolidation. Each phase reads only what earlier phases wrote
// and can be re-run on its own once its inputs exist.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/scholarindex/scholarindex"
)

func main() {
	app := &cli.App{
		Name:  "scholarindex",
		Usage: "build a batch search index from a corpus of JSON documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "input-dir",
				Aliases: []string{"i"},
				Usage:   "root directory of pmc_json/pdf_json document trees",
			},
			&cli.StringFlag{
				Name:    "output-dir",
				Aliases: []string{"o"},
				Usage:   "directory build artifacts are written to and read from",
			},
			&cli.IntFlag{
				Name:  "num-barrels",
				Usage: "number of regular barrels (frequent tokens get an extra barrel)",
				Value: scholarindex.DefaultNumRegularBarrels,
			},
			&cli.Float64Flag{
				Name:  "freq-threshold",
				Usage: "document-frequency fraction above which a token is 'frequent'",
				Value: scholarindex.DefaultFrequentThreshold,
			},
			&cli.IntFlag{
				Name:  "bucket-count",
				Usage: "number of shard buckets for the external-merge inverter (0 = auto)",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "stop after this many documents (0 = no limit)",
			},
			&cli.IntFlag{
				Name:  "log-every",
				Usage: "documents (or barrel records, in the postings phase) between progress log lines",
				Value: scholarindex.DefaultLogEvery,
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "forward",
				Usage:  "tokenize the corpus and write the lexicon + forward index",
				Action: runForward,
			},
			{
				Name:   "invert",
				Usage:  "invert the forward index into a sorted doc-only posting list",
				Action: runInvert,
			},
			{
				Name:   "barrels",
				Usage:  "assign tokens to barrels and write positional postings",
				Action: runBarrels,
			},
			{
				Name:   "postings",
				Usage:  "consolidate barrel files into the final postings index",
				Action: runPostings,
			},
			{
				Name:   "all",
				Usage:  "run forward, invert, barrels, and postings in sequence",
				Action: runAll,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "scholarindex: %v\n", err)
		os.Exit(1)
	}
}

func configFromContext(c *cli.Context) (scholarindex.BuildConfig, error) {
	inputDir := c.String("input-dir")
	outputDir := c.String("output-dir")
	if outputDir == "" {
		return scholarindex.BuildConfig{}, fmt.Errorf("--output-dir is required")
	}

	cfg := scholarindex.DefaultBuildConfig(inputDir, outputDir)
	if c.IsSet("num-barrels") {
		cfg.NumRegularBarrels = c.Int("num-barrels")
	}
	if c.IsSet("freq-threshold") {
		cfg.FrequentThreshold = c.Float64("freq-threshold")
	}
	if c.IsSet("bucket-count") {
		cfg.BucketCount = c.Int("bucket-count")
	}
	if c.IsSet("limit") {
		cfg.Limit = c.Int("limit")
	}
	if c.IsSet("log-every") {
		cfg.LogEvery = c.Int("log-every")
	}
	return cfg, nil
}

func runForward(c *cli.Context) error {
	cfg, err := configFromContext(c)
	if err != nil {
		return err
	}
	if cfg.InputDir == "" {
		return fmt.Errorf("--input-dir is required for the forward command")
	}
	stats, err := scholarindex.BuildForwardIndex(cfg)
	if err != nil {
		return err
	}
	slog.Info("forward index summary",
		slog.Int("documents_indexed", stats.DocumentsIndexed),
		slog.Int("docs_skipped", stats.DocsSkipped),
		slog.Int("unique_terms", stats.UniqueTerms),
		slog.Float64("avg_doc_length", stats.AvgDocLength),
	)
	return nil
}

func runInvert(c *cli.Context) error {
	cfg, err := configFromContext(c)
	if err != nil {
		return err
	}
	stats, err := scholarindex.BuildInvertedIndex(cfg)
	if err != nil {
		return err
	}
	slog.Info("inverted index summary",
		slog.Int("unique_tokens", stats.UniqueTokens),
		slog.Int("total_postings", stats.TotalPostings),
	)
	return nil
}

func runBarrels(c *cli.Context) error {
	cfg, err := configFromContext(c)
	if err != nil {
		return err
	}
	stats, err := scholarindex.BuildBarrels(cfg)
	if err != nil {
		return err
	}
	slog.Info("barrels summary",
		slog.Int("documents_indexed", stats.DocumentsIndexed),
		slog.Int("tokens_assigned", stats.TokensAssigned),
	)
	return nil
}

func runPostings(c *cli.Context) error {
	cfg, err := configFromContext(c)
	if err != nil {
		return err
	}
	stats, err := scholarindex.BuildPostings(cfg)
	if err != nil {
		return err
	}
	slog.Info("postings summary",
		slog.Int("unique_tokens", stats.UniqueTokens),
		slog.Int("total_postings", stats.TotalPostings),
		slog.Int("spilled_tokens", stats.SpilledTokens),
	)
	return nil
}

func runAll(c *cli.Context) error {
	if err := runForward(c); err != nil {
		return fmt.Errorf("forward phase: %w", err)
	}
	if err := runInvert(c); err != nil {
		return fmt.Errorf("invert phase: %w", err)
	}
	if err := runBarrels(c); err != nil {
		return fmt.Errorf("barrels phase: %w", err)
	}
	if err := runPostings(c); err != nil {
		return fmt.Errorf("postings phase: %w", err)
	}
	return nil
}
