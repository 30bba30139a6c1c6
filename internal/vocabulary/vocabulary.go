// Package vocabulary implements C1: the controlled relationship-type
// vocabulary and entity-name normalization/resolution used by ingestion,
// temporal fact creation, and background relationship normalization.
//
// The resolver is pure and deterministic — no I/O, no global mutable state
// beyond the package-level Aho-Corasick automaton built once at init from the
// fixed keyword table.
package vocabulary

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
	"github.com/coregx/ahocorasick"
	"github.com/orsinium-labs/stopwords"
)

// RelationType mirrors memory.RelationType without importing pkg/memory, so
// this package stays dependency-free from the storage layer.
type RelationType string

// RelatesTo is the fallback relationship type for anything that matches
// neither the vocabulary, the alias table, nor any keyword.
const RelatesTo RelationType = "RELATES_TO"

// Vocabulary is the fixed controlled set V of ~29 relationship types.
var Vocabulary = []RelationType{
	"WORKS_AT", "WORKS_ON", "STUDIED_AT", "LIVES_IN", "LOCATED_IN", "BORN_IN",
	"MEMBER_OF", "OWNS", "USES", "PREFERS", "DISLIKES", "KNOWS", "FRIEND_OF",
	"MARRIED_TO", "PARENT_OF", "CHILD_OF", "SIBLING_OF", "MANAGES",
	"REPORTS_TO", "COLLABORATES_WITH", "CREATED", "AUTHORED", "PART_OF",
	"ATTENDED", "VISITED", "SPONSORS", "FUNDED_BY", "DEPENDS_ON", RelatesTo,
}

var vocabSet = func() map[RelationType]bool {
	m := make(map[RelationType]bool, len(Vocabulary))
	for _, v := range Vocabulary {
		m[v] = true
	}
	return m
}()

// InVocabulary reports whether t is one of the fixed controlled types.
func InVocabulary(t RelationType) bool { return vocabSet[t] }

// aliases is the direct alias map A: exact normalized-form lookups that skip
// keyword scanning entirely.
var aliases = map[string]RelationType{
	"employed_by":    "WORKS_AT",
	"works_for":      "WORKS_AT",
	"employee_of":    "WORKS_AT",
	"resides_in":     "LIVES_IN",
	"lives_at":       "LIVES_IN",
	"based_in":       "LOCATED_IN",
	"situated_in":    "LOCATED_IN",
	"belongs_to":     "MEMBER_OF",
	"part_of_team":   "MEMBER_OF",
	"spouse_of":      "MARRIED_TO",
	"husband_of":     "MARRIED_TO",
	"wife_of":        "MARRIED_TO",
	"supervises":     "MANAGES",
	"managed_by":     "REPORTS_TO",
	"works_with":     "COLLABORATES_WITH",
	"authored_by":    "AUTHORED",
	"wrote":          "AUTHORED",
	"depends_on":     "DEPENDS_ON",
	"funded_by":      "FUNDED_BY",
	"sponsored_by":   "SPONSORS",
	"studies_at":     "STUDIED_AT",
	"enrolled_at":    "STUDIED_AT",
	"was_born_in":    "BORN_IN",
	"relates_to":     RelatesTo,
	"related_to":     RelatesTo,
	"associated_with": RelatesTo,
}

// keywordOrder is the declared order of the keyword-substring map K — the
// first keyword that matches (of all substring matches the automaton finds,
// the one earliest in this list) wins,
// consistent with spec.md's "first kw in declared order" rule.
var keywordOrder = []struct {
	kw string
	to RelationType
}{
	{"employ", "WORKS_AT"},
	{"work", "WORKS_AT"},
	{"stud", "STUDIED_AT"},
	{"born", "BORN_IN"},
	{"live", "LIVES_IN"},
	{"locat", "LOCATED_IN"},
	{"member", "MEMBER_OF"},
	{"own", "OWNS"},
	{"use", "USES"},
	{"prefer", "PREFERS"},
	{"dislike", "DISLIKES"},
	{"know", "KNOWS"},
	{"friend", "FRIEND_OF"},
	{"marri", "MARRIED_TO"},
	{"parent", "PARENT_OF"},
	{"child", "CHILD_OF"},
	{"sibling", "SIBLING_OF"},
	{"manage", "MANAGES"},
	{"report", "REPORTS_TO"},
	{"collab", "COLLABORATES_WITH"},
	{"creat", "CREATED"},
	{"author", "AUTHORED"},
	{"attend", "ATTENDED"},
	{"visit", "VISITED"},
	{"sponsor", "SPONSORS"},
	{"fund", "FUNDED_BY"},
	{"depend", "DEPENDS_ON"},
	{"part", "PART_OF"},
}

// keywordAutomaton is a single Aho-Corasick matcher over every keyword in
// keywordOrder, built once at package init, replacing the naive per-call
// substring scan spec.md describes informally.
var keywordAutomaton *ahocorasick.Automaton

// keywordByPattern maps the automaton's pattern index back to the
// RelationType and declared priority (lower index = earlier in declared
// order = higher priority) of that keyword.
var keywordByPattern []RelationType

func init() {
	patterns := make([]string, len(keywordOrder))
	keywordByPattern = make([]RelationType, len(keywordOrder))
	for i, k := range keywordOrder {
		patterns[i] = k.kw
		keywordByPattern[i] = k.to
	}
	ac, err := ahocorasick.NewBuilder().
		AddStrings(patterns).
		SetMatchKind(ahocorasick.LeftmostFirst).
		SetPrefilter(true).
		Build()
	if err != nil {
		panic("vocabulary: failed to build keyword automaton: " + err.Error())
	}
	keywordAutomaton = ac
}

// NormalizeType implements spec.md §4.1's normalize_type(t):
//
//  1. If t is already in V, return it unchanged.
//  2. Lowercase, trim, collapse whitespace/hyphens to underscores; if the
//     result is a direct alias, return the alias target.
//  3. Scan for the first declared keyword substring match.
//  4. Fall back to RELATES_TO.
func NormalizeType(t string) RelationType {
	if InVocabulary(RelationType(t)) {
		return RelationType(t)
	}

	norm := normalizeTypeToken(t)
	if target, ok := aliases[norm]; ok {
		return target
	}

	if keywordAutomaton != nil {
		matches := keywordAutomaton.FindAllOverlapping([]byte(norm))
		best := -1
		for _, m := range matches {
			if best == -1 || m.PatternID < best {
				best = m.PatternID
			}
		}
		if best >= 0 {
			return keywordByPattern[best]
		}
	}

	return RelatesTo
}

// normalizeTypeToken lowercases, trims, and replaces whitespace/hyphen runs
// with a single underscore, per step 2 of normalize_type.
func normalizeTypeToken(t string) string {
	t = strings.TrimSpace(strings.ToLower(t))
	var b strings.Builder
	b.Grow(len(t))
	lastWasSep := false
	for _, r := range t {
		if r == ' ' || r == '-' || r == '\t' || r == '\n' {
			if !lastWasSep && b.Len() > 0 {
				b.WriteByte('_')
				lastWasSep = true
			}
			continue
		}
		b.WriteRune(r)
		lastWasSep = false
	}
	return strings.TrimSuffix(b.String(), "_")
}

// leadingArticles are stripped from the front of an entity name during
// normalization ("the Eiffel Tower" -> "eiffel tower").
var leadingArticles = []string{"the ", "a ", "an "}

// stopwordList is the explicit ~130-term rejection list named in spec.md
// §4.1, supplementing the orsinium-labs/stopwords English set.
var stopwordList = map[string]bool{
	"i": true, "me": true, "my": true, "myself": true, "we": true, "us": true,
	"our": true, "ours": true, "you": true, "your": true, "yours": true,
	"he": true, "him": true, "his": true, "she": true, "her": true,
	"hers": true, "it": true, "its": true, "they": true, "them": true,
	"their": true, "theirs": true, "this": true, "that": true, "these": true,
	"those": true, "am": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "being": true, "have": true,
	"has": true, "had": true, "do": true, "does": true, "did": true,
	"a": true, "an": true, "the": true, "and": true, "but": true, "if": true,
	"or": true, "because": true, "as": true, "until": true, "while": true,
	"of": true, "at": true, "by": true, "for": true, "with": true,
	"about": true, "against": true, "between": true, "into": true,
	"through": true, "during": true, "before": true, "after": true,
	"above": true, "below": true, "to": true, "from": true, "up": true,
	"down": true, "in": true, "out": true, "on": true, "off": true,
	"over": true, "under": true, "again": true, "further": true, "then": true,
	"once": true, "here": true, "there": true, "when": true, "where": true,
	"why": true, "how": true, "all": true, "any": true, "both": true,
	"each": true, "few": true, "more": true, "most": true, "other": true,
	"some": true, "such": true, "no": true, "nor": true, "not": true,
	"only": true, "own": true, "same": true, "so": true, "than": true,
	"too": true, "very": true, "s": true, "t": true, "can": true,
	"will": true, "just": true, "don": true, "should": true, "now": true,
}

var enStopwords = stopwords.MustGet("en")

// NormalizeEntityName implements normalize_entity_name: lowercase, strip a
// leading article, collapse internal whitespace, strip trailing punctuation.
func NormalizeEntityName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, art := range leadingArticles {
		if strings.HasPrefix(n, art) {
			n = n[len(art):]
			break
		}
	}
	n = strings.Join(strings.Fields(n), " ")
	n = strings.TrimRightFunc(n, func(r rune) bool {
		return unicode.IsPunct(r) && r != '\''
	})
	return n
}

// IsValidEntity rejects names that are too short/long, a stopword, or purely
// numeric.
func IsValidEntity(name string) bool {
	n := NormalizeEntityName(name)
	if len(n) < 2 || len(n) > 100 {
		return false
	}
	if stopwordList[n] || enStopwords.Contains(n) {
		return false
	}
	if isPureDigit(n) {
		return false
	}
	return true
}

func isPureDigit(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) && r != ' ' {
			return false
		}
	}
	return true
}

// entityAliases is a direct alias table applied before fuzzy matching
// (e.g. common abbreviations resolved to a canonical surface form).
var entityAliases = map[string]string{}

// RegisterEntityAlias adds an entry to the direct entity alias table. Not
// safe for concurrent use with ResolveEntity — intended for startup-time
// configuration only.
func RegisterEntityAlias(alias, canonical string) {
	entityAliases[NormalizeEntityName(alias)] = NormalizeEntityName(canonical)
}

// fuzzyAcceptThreshold is the minimum Ratcliff/Obershelp similarity for two
// distinct normalized names to be treated as the same canonical entity.
const fuzzyAcceptThreshold = 0.85

// ResolveEntity implements resolve_entity(name, existing): the alias table is
// applied first; failing that, name is matched against existing canonicals
// in order using the Ratcliff/Obershelp ratio (the longest-common-substring
// based gestalt match behind Python's difflib.SequenceMatcher.ratio()),
// returning the first candidate whose score clears fuzzyAcceptThreshold;
// otherwise the normalized form of name is returned unchanged.
//
// ResolveEntity is idempotent: ResolveEntity(ResolveEntity(x, e), e) ==
// ResolveEntity(x, e), since a name already present verbatim in existing (or
// already itself a registered canonical) always wins via the exact-match
// shortcut before any candidate after it is considered.
func ResolveEntity(name string, existing []string) string {
	norm := NormalizeEntityName(name)

	if canonical, ok := entityAliases[norm]; ok {
		return canonical
	}

	for _, e := range existing {
		candidate := NormalizeEntityName(e)
		if candidate == norm {
			return candidate
		}
		if matchr.RatcliffObershelp(norm, candidate) >= fuzzyAcceptThreshold {
			return candidate
		}
	}

	return norm
}
