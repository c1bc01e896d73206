// Package dedupe spots factor names in a proposed diff that probably refer to a factor
// the network already has under a slightly different spelling.
package dedupe

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/agenthands/cbning/internal/core/model"
)

// DuplicatePair links a name introduced by a diff to the existing node it resembles.
type DuplicatePair struct {
	Existing string `json:"existing"`
	Proposed string `json:"proposed"`
}

// ResolveDuplicates returns, in diff order, every name the diff introduces that is not
// a node of current but normalizes to the same key as one that is. Names are compared
// case-insensitively with punctuation and repeated whitespace ignored.
func ResolveDuplicates(current model.CBN, diff model.ProposedDiff) []DuplicatePair {
	existing := make(map[string]string, len(current.Nodes))
	for _, n := range current.Nodes {
		existing[normalize(n.Name)] = n.Name
	}

	var pairs []DuplicatePair
	seen := make(map[string]bool)
	check := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		if _, ok := current.Node(name); ok {
			return
		}
		if orig, ok := existing[normalize(name)]; ok {
			pairs = append(pairs, DuplicatePair{Existing: orig, Proposed: name})
		}
	}

	for _, p := range diff.Nodes {
		check(p.Name)
	}
	for _, e := range diff.AddEdges {
		check(e.From)
		check(e.To)
	}
	return pairs
}

// Suggestions renders pairs as reply lines.
func Suggestions(pairs []DuplicatePair) []string {
	out := make([]string, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, fmt.Sprintf("%q looks like the existing factor %q; use the existing name if they are the same thing.", p.Proposed, p.Existing))
	}
	return out
}

func normalize(name string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(unicode.ToLower(r))
		default:
			space = true
		}
	}
	return b.String()
}
