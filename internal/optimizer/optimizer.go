// Package optimizer fuses groups of simple-pattern filters that share every
// option bit into a single filter matched by a regex set. A request
// stream that would otherwise walk a few buckets with dozens of nearly
// identical filters instead tests one regex alternation.
package optimizer

import (
	"regexp"
	"strings"

	"github.com/blockwall/netfilter/internal/rules"
)

// Optimize groups filters by exact option mask, fuses every group with more
// than one member into a single filter, and returns the fused filters
// followed by every filter left unfused (either because it was ineligible,
// or because its group had only one member).
func Optimize(filters []*rules.NetworkFilter) []*rules.NetworkFilter {
	eligible := make([]*rules.NetworkFilter, 0, len(filters))
	rest := make([]*rules.NetworkFilter, 0, len(filters))
	for _, f := range filters {
		if selectable(f) {
			eligible = append(eligible, f)
		} else {
			rest = append(rest, f)
		}
	}

	groups := make(map[rules.Mask][]*rules.NetworkFilter, len(eligible))
	order := make([]rules.Mask, 0, len(eligible))
	for _, f := range eligible {
		if _, ok := groups[f.Mask]; !ok {
			order = append(order, f.Mask)
		}

		groups[f.Mask] = append(groups[f.Mask], f)
	}

	fused := make([]*rules.NetworkFilter, 0, len(order))
	for _, mask := range order {
		group := groups[mask]
		if len(group) > 1 {
			fused = append(fused, fuse(group))
		} else {
			rest = append(rest, group...)
		}
	}

	return append(fused, rest...)
}

// selectable applies the fusion eligibility test: domain-restricted,
// hostname-anchored, redirect, and CSP filters keep their own identity
// because fusing would lose information a single regex can't carry.
func selectable(f *rules.NetworkFilter) bool {
	return len(f.IncludedDomains) == 0 &&
		len(f.ExcludedDomains) == 0 &&
		!f.IsHostnameAnchor() &&
		!f.IsRedirect() &&
		!f.IsCSP()
}

// fusedBranch is one group member's contribution to the fused regex set,
// with the degenerate match-everything/match-nothing cases called out so a
// single such member can short-circuit the whole fusion.
type fusedBranch struct {
	matchAll     bool
	matchNothing bool
	pattern      string
}

func fuse(group []*rules.NetworkFilter) *rules.NetworkFilter {
	branches := make([]fusedBranch, len(group))
	rawLines := make([]string, 0, len(group))
	for i, f := range group {
		branches[i] = branchFor(f)
		if f.RawLine != "" {
			rawLines = append(rawLines, f.RawLine)
		}
	}

	base := *group[0]

	for _, b := range branches {
		if b.matchAll {
			base.Filter = rules.FilterPart{Kind: rules.PartSimple, Simple: ""}
			base.Mask = base.Mask.Set(rules.IsRegex, true)
			base.RecomputeID()

			return &base
		}
	}

	patterns := make([]string, 0, len(branches))
	for _, b := range branches {
		if b.matchNothing {
			continue
		}

		patterns = append(patterns, b.pattern)
	}

	base.Filter = rules.FilterPart{Kind: rules.PartAnyOf, AnyOf: patterns}
	base.Mask = base.Mask.Set(rules.IsRegex, true).Set(rules.IsCompleteRegex, true)
	if len(rawLines) == len(group) {
		base.RawLine = strings.Join(rawLines, " <+> ")
	}

	base.RecomputeID()

	return &base
}

// branchFor renders one filter's contribution to a fused pattern set,
// reusing its already-compiled wildcard regex text when it has one so the
// fused filter's matching behavior is unchanged from the unfused group.
func branchFor(f *rules.NetworkFilter) fusedBranch {
	if f.IsRegex() || f.IsCompleteRegex() {
		src := wildcardRegexSource(f)
		if src == "" {
			return fusedBranch{matchAll: true}
		}

		if _, err := regexp.Compile(src); err != nil {
			return fusedBranch{matchNothing: true}
		}

		return fusedBranch{pattern: src}
	}

	if f.Filter.IsEmpty() {
		return fusedBranch{matchAll: true}
	}

	pattern := "(?:" + escapeRegexMeta(f.Filter.StringView()) + ")"
	if f.IsRightAnchor() {
		pattern += "$"
	}

	if f.IsLeftAnchor() {
		pattern = "^" + pattern
	}

	return fusedBranch{pattern: pattern}
}

// regexMeta is the escape set used during fusion of a plain (non-wildcard)
// pattern: every regex metacharacter a plain pattern can contain. '*' and
// '^' are absent because a pattern holding either is parsed as a wildcard
// pattern, not a plain one.
const regexMeta = "|.$+?{}()[]\\"

func escapeRegexMeta(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	for _, r := range s {
		if strings.ContainsRune(regexMeta, r) {
			b.WriteByte('\\')
		}

		b.WriteRune(r)
	}

	return b.String()
}

// wildcardRegexSource reproduces the non-complete-regex translation also
// performed by package regexmgr, so a filter that was already a wildcard
// regex contributes the identical pattern text to the fused set that it
// would have compiled to on its own.
func wildcardRegexSource(f *rules.NetworkFilter) string {
	if f.Filter.IsEmpty() {
		return ""
	}

	if f.IsCompleteRegex() {
		return f.Filter.StringView()
	}

	body := translateWildcard(f.Filter.StringView())
	if f.IsLeftAnchor() {
		body = "^" + body
	}

	if f.IsRightAnchor() {
		body += "$"
	}

	return body
}

const wildcardMeta = `|.$+?{}()[]`

func translateWildcard(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern) * 2)

	runes := []rune(pattern)
	for i, r := range runes {
		switch r {
		case '*':
			b.WriteString(".*")
		case '^':
			if i == len(runes)-1 {
				b.WriteString(`(?:[^A-Za-z0-9._%-]|$)`)
			} else {
				b.WriteString(`[^A-Za-z0-9._%-]`)
			}
		default:
			if strings.ContainsRune(wildcardMeta, r) {
				b.WriteByte('\\')
			}

			b.WriteRune(r)
		}
	}

	return b.String()
}
