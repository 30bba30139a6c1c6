package vocabulary_test

import (
	"testing"

	"github.com/aletheia-mem/aletheia/internal/vocabulary"
)

func TestNormalizeType_AlreadyInVocabulary(t *testing.T) {
	t.Parallel()
	if got := vocabulary.NormalizeType("WORKS_AT"); got != "WORKS_AT" {
		t.Errorf("NormalizeType(WORKS_AT) = %q, want WORKS_AT", got)
	}
}

func TestNormalizeType_Alias(t *testing.T) {
	t.Parallel()
	if got := vocabulary.NormalizeType("employed by"); got != "WORKS_AT" {
		t.Errorf("NormalizeType(employed by) = %q, want WORKS_AT", got)
	}
}

func TestNormalizeType_Keyword(t *testing.T) {
	t.Parallel()
	// S3 scenario: a free-form "works_on" type should be rewritten via the
	// "work" keyword to WORKS_AT.
	if got := vocabulary.NormalizeType("works_on"); got != "WORKS_AT" {
		t.Errorf("NormalizeType(works_on) = %q, want WORKS_AT", got)
	}
}

func TestNormalizeType_FallbackRelatesTo(t *testing.T) {
	t.Parallel()
	if got := vocabulary.NormalizeType("completely_unrelated_xyz"); got != vocabulary.RelatesTo {
		t.Errorf("NormalizeType(completely_unrelated_xyz) = %q, want RELATES_TO", got)
	}
}

func TestNormalizeType_ClosureProperty(t *testing.T) {
	t.Parallel()
	// Testable property 2: after normalization every type is in V.
	inputs := []string{"works_on", "employed by", "lives-in", "xyzzy", "RELATES_TO"}
	for _, in := range inputs {
		got := vocabulary.NormalizeType(in)
		if !vocabulary.InVocabulary(got) {
			t.Errorf("NormalizeType(%q) = %q, not in vocabulary", in, got)
		}
	}
}

func TestNormalizeEntityName(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"  The Eiffel Tower.  ": "eiffel tower",
		"A Rust Crate":          "rust crate",
		"  multiple   spaces  ": "multiple spaces",
	}
	for in, want := range cases {
		if got := vocabulary.NormalizeEntityName(in); got != want {
			t.Errorf("NormalizeEntityName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsValidEntity(t *testing.T) {
	t.Parallel()
	if vocabulary.IsValidEntity("a") {
		t.Error("single-char name should be invalid")
	}
	if vocabulary.IsValidEntity("the") {
		t.Error("stopword should be invalid")
	}
	if vocabulary.IsValidEntity("12345") {
		t.Error("pure-digit name should be invalid")
	}
	if !vocabulary.IsValidEntity("Rust") {
		t.Error("Rust should be valid")
	}
}

func TestResolveEntity_Fixpoint(t *testing.T) {
	t.Parallel()
	// Testable property 5: resolve_entity is idempotent.
	existing := []string{"Rust Programming Language", "Neuroscience"}
	for _, name := range []string{"Rust Programing Lang", "rust", "Neuroscience"} {
		once := vocabulary.ResolveEntity(name, existing)
		twice := vocabulary.ResolveEntity(once, existing)
		if once != twice {
			t.Errorf("ResolveEntity not idempotent for %q: once=%q twice=%q", name, once, twice)
		}
	}
}

func TestResolveEntity_FuzzyMatch(t *testing.T) {
	t.Parallel()
	existing := []string{"Rust Programming Language"}
	got := vocabulary.ResolveEntity("Rust Programming Languag", existing)
	if got != "rust programming language" {
		t.Errorf("ResolveEntity fuzzy match = %q, want %q", got, "rust programming language")
	}
}

func TestResolveEntity_NoMatchReturnsNormalized(t *testing.T) {
	t.Parallel()
	existing := []string{"Completely Different Topic"}
	got := vocabulary.ResolveEntity("Rust", existing)
	if got != "rust" {
		t.Errorf("ResolveEntity with no close match = %q, want %q", got, "rust")
	}
}
