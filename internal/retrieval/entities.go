package retrieval

import (
	"regexp"
	"strings"
)

// maxExtractedEntities caps the number of heuristic entity mentions pulled
// from a single piece of text, per spec.md §4.5.
const maxExtractedEntities = 10

// capitalizedSpan matches runs of two-or-more capitalized words ("New York
// City") as well as single capitalized words that are at least 3 letters
// long, to catch single-word proper nouns ("Rust", "Neuroscience").
var capitalizedSpan = regexp.MustCompile(`\b[A-Z][a-zA-Z]{2,}(?:\s+[A-Z][a-zA-Z]{2,})*\b`)

// techTerm matches hyphen/underscore-joined technical terms ("graph-rag",
// "content_hash", "any-llm-go").
var techTerm = regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9]*(?:[-_][a-zA-Z0-9]+)+\b`)

// quotedString matches single- or double-quoted spans.
var quotedString = regexp.MustCompile(`"([^"]{2,60})"|'([^']{2,60})'`)

// ExtractEntities is the heuristic entity extraction shared by C4's
// retraction cascade, C5's graph_enhanced_search/search_enhanced, and C6's
// episode mention linking: capitalized multi-word spans, hyphen/underscore
// technical terms, and quoted strings, capped at maxExtractedEntities and
// deduplicated case-insensitively.
func ExtractEntities(text string) []string {
	seen := make(map[string]bool)
	var out []string

	add := func(s string) bool {
		s = strings.TrimSpace(s)
		if s == "" {
			return false
		}
		key := strings.ToLower(s)
		if seen[key] {
			return true
		}
		seen[key] = true
		out = append(out, s)
		return len(out) >= maxExtractedEntities
	}

	for _, m := range quotedString.FindAllStringSubmatch(text, -1) {
		val := m[1]
		if val == "" {
			val = m[2]
		}
		if add(val) {
			return out
		}
	}
	for _, m := range techTerm.FindAllString(text, -1) {
		if add(m) {
			return out
		}
	}
	for _, m := range capitalizedSpan.FindAllString(text, -1) {
		if add(m) {
			return out
		}
	}

	return out
}
