package importer

import (
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const (
	minGroupSize      = 3
	minSingleTokenLen = 4
	minCandidateFiles = 2
	maxPatternSpan    = 3
)

// Articles, prepositions and conjunctions carry no grouping signal.
// Tokens of length <= 2 are dropped earlier, so only longer words appear.
var stopWords = map[string]bool{
	"the": true, "and": true, "but": true, "nor": true, "for": true,
	"yet": true, "with": true, "from": true, "into": true, "onto": true,
	"over": true, "under": true, "upon": true, "about": true, "after": true,
	"before": true, "between": true, "during": true, "through": true,
	"within": true, "without": true, "via": true, "per": true, "than": true,
	"off": true, "out": true,
}

// Group is a synthetic collection inferred from shared filename patterns.
// Its key is freshly generated, so synthetic groups are never re-discovered
// by key lookup across separate imports.
type Group struct {
	Name  string
	Key   string
	Files []string
}

// ProposeGroups infers synthetic collections from the filenames of
// individually selected audio files. Greedy, non-overlapping, and
// specificity-preferring: given the same input order it always produces
// the same membership. Each file joins at most one group.
func ProposeGroups(paths []string) []Group {
	if len(paths) < minCandidateFiles {
		return nil
	}

	patternFiles := make(map[string][]string)
	patternSeen := make(map[string]map[string]bool)
	var order []string

	for _, p := range paths {
		for _, pat := range candidatePatterns(patternTokens(p)) {
			if patternSeen[pat] == nil {
				patternSeen[pat] = make(map[string]bool)
				order = append(order, pat)
			}
			if !patternSeen[pat][p] {
				patternSeen[pat][p] = true
				patternFiles[pat] = append(patternFiles[pat], p)
			}
		}
	}

	var ranked []string
	for _, pat := range order {
		if len(patternFiles[pat]) >= minGroupSize {
			ranked = append(ranked, pat)
		}
	}

	// More files first, then longer (more specific) patterns; the final
	// lexicographic tie-break keeps the ranking independent of map order.
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if len(patternFiles[a]) != len(patternFiles[b]) {
			return len(patternFiles[a]) > len(patternFiles[b])
		}
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a < b
	})

	claimed := make(map[string]bool)
	var groups []Group

	for _, pat := range ranked {
		var members []string
		for _, f := range patternFiles[pat] {
			if !claimed[f] {
				members = append(members, f)
			}
		}
		if len(members) < minGroupSize {
			continue
		}
		for _, f := range members {
			claimed[f] = true
		}
		groups = append(groups, Group{
			Name:  titleCase(pat),
			Key:   uuid.NewString(),
			Files: members,
		})
	}

	return groups
}

var separatorReplacer = strings.NewReplacer("_", " ", "-", " ", ".", " ")

// patternTokens normalizes a filename into its grouping-relevant tokens:
// extension stripped, separators flattened, lowercased, with short tokens,
// pure numbers, and stop-words discarded.
func patternTokens(path string) []string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = strings.ToLower(separatorReplacer.Replace(name))

	var out []string
	for _, tok := range strings.Fields(name) {
		if len(tok) <= 2 || isNumeric(tok) || stopWords[tok] {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// candidatePatterns generates every surviving single token of length >= 4
// plus every contiguous 2- and 3-token span.
func candidatePatterns(tokens []string) []string {
	var pats []string
	for _, t := range tokens {
		if len(t) >= minSingleTokenLen {
			pats = append(pats, t)
		}
	}
	for span := 2; span <= maxPatternSpan; span++ {
		for i := 0; i+span <= len(tokens); i++ {
			pats = append(pats, strings.Join(tokens[i:i+span], " "))
		}
	}
	return pats
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(s) > 0
}

func titleCase(pattern string) string {
	words := strings.Fields(pattern)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
