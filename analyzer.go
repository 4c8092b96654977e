package scholarindex

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TEXT ANALYSIS
// ═══════════════════════════════════════════════════════════════════════════════
// tokenize works in three steps:
//
//  1. Unicode compatibility composition normalization (NFKC) + lowercase fold.
//  2. Walk the normalized stream, accumulating maximal runs of characters for
//     which unicode.IsLetter || unicode.IsDigit || unicode.IsNumber holds; any other rune flushes
//     the current run.
//  3. Each non-empty flushed run not present in stopwords is emitted in
//     order. Positions are implicit: the caller assigns them as the index
//     in the returned slice.
//
// NFKC folds compatibility variants to their canonical form before the run
// is ever inspected, so "①" becomes "1" and is picked up by the digit test
// rather than being dropped as punctuation.
// ═══════════════════════════════════════════════════════════════════════════════

// tokenize returns the token stream for text under the given stopword set.
// A nil or empty stopwords map means no stopword filtering is applied.
func tokenize(text string, stopwords map[string]struct{}) []string {
	folded := strings.ToLower(norm.NFKC.String(text))

	tokens := make([]string, 0, len(folded)/6)
	var run strings.Builder

	flush := func() {
		if run.Len() == 0 {
			return
		}
		token := run.String()
		run.Reset()
		if _, skip := stopwords[token]; skip {
			return
		}
		tokens = append(tokens, token)
	}

	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsNumber(r) {
			run.WriteRune(r)
			continue
		}
		flush()
	}
	flush()

	return tokens
}

// defaultStopwords is the minimal built-in stopword set used when a build is
// not given an external list. Loading a project-specific stopword file is
// left to the caller; this is only the fallback for doing nothing.
var defaultStopwords = stopwordSet(
	"a", "an", "the", "and", "or", "but", "if", "while", "to", "of", "in",
	"for", "on", "with", "as", "by", "is", "it", "this", "that", "be",
	"are", "from",
)

func stopwordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
