// Package fingerprint derives a stable cache key (FP) from a query's
// normalized text, and provides the token-count estimator the cache
// store uses to gate cacheability.
package fingerprint

import (
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/crypto/blake2b"
)

// FP is a stable bytestring derived from normalized query text. Collisions
// are cryptographically unlikely (blake2b-256).
type FP string

// Normalize collapses whitespace and case-folds query text, per §3.
func Normalize(query string) string {
	fields := strings.Fields(query)
	return strings.ToLower(strings.Join(fields, " "))
}

// Compute derives the fingerprint for a raw query string.
func Compute(query string) FP {
	normalized := Normalize(query)
	sum := blake2b.Sum256([]byte(normalized))
	return FP(hex.EncodeToString(sum[:]))
}

// ComputeWithNamespace scopes a fingerprint to an additional namespace
// (e.g. a tool name or backend identifier) so two identical query strings
// issued against different contexts don't collide.
func ComputeWithNamespace(namespace, query string) FP {
	normalized := namespace + "\x00" + Normalize(query)
	sum := blake2b.Sum256([]byte(normalized))
	return FP(hex.EncodeToString(sum[:]))
}

// charsPerToken approximates the average characters-per-token ratio for
// mixed natural-language/code content. This is a parametric estimator, not
// a model-specific tokenizer — §1 explicitly models token accounting
// parametrically rather than replicating a particular LLM's BPE tables.
const charsPerToken = 4.0

// EstimateTokens returns an approximate token count for content, counting
// runes (not bytes) so multi-byte UTF-8 text isn't over-counted.
func EstimateTokens(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	runes := 0
	for range string(content) {
		runes++
	}
	// Content made of many short space-separated words would be undercounted
	// by the character ratio alone, so the word count acts as a floor: the
	// estimate is the larger of the two.
	words := 0
	inWord := false
	for _, r := range string(content) {
		if unicode.IsSpace(r) {
			inWord = false
			continue
		}
		if !inWord {
			words++
			inWord = true
		}
	}
	byChars := int(float64(runes)/charsPerToken + 0.5)
	if words > byChars {
		return words
	}
	return byChars
}
