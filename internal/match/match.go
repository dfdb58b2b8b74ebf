// Package match implements the two-phase decision of whether a single
// [rules.NetworkFilter] matches a single [request.Request]: an
// option check over the mask bits, followed by a dispatch over the eight
// anchor/regex pattern shapes.
package match

import (
	"strings"

	"github.com/blockwall/netfilter/internal/request"
	"github.com/blockwall/netfilter/internal/rules"
)

// RegexProvider resolves a filter's pattern against a URL through whatever
// regex cache backs it. match depends only on this interface so the
// lazy-compile/eviction concern stays in the regexmgr package.
type RegexProvider interface {
	Match(filter *rules.NetworkFilter, url string) bool
}

// Matches runs both match phases. regexes may be nil only for filters
// that are statically known not to need regex evaluation; callers that
// might encounter a regex filter must supply a real [RegexProvider].
func Matches(f *rules.NetworkFilter, r *request.Request, regexes RegexProvider) bool {
	if !optionsMatch(f, r) {
		return false
	}

	return patternMatches(f, r, regexes)
}

// optionsMatch is the option-bit compatibility phase.
func optionsMatch(f *rules.NetworkFilter, r *request.Request) bool {
	if f.IsBadFilter() {
		return false
	}

	cpt := f.CptMask()
	if cpt != 0 && cpt&r.Mask&rules.FromAllTypes == 0 {
		// Exception filters are conceded to also match on FROM_DOCUMENT even
		// without the explicit bit.
		if !(f.IsException() && r.Mask.Has(rules.FromDocument)) {
			return false
		}
	}

	if r.Mask.Has(rules.FromHTTP) && !f.ForHTTP() {
		return false
	}

	if r.Mask.Has(rules.FromHTTPS) && !f.ForHTTPS() {
		return false
	}

	if r.Mask.Has(rules.ThirdParty) && !f.Mask.Has(rules.ThirdParty) {
		return false
	}

	if r.Mask.Has(rules.FirstParty) && !f.Mask.Has(rules.FirstParty) {
		return false
	}

	if len(f.IncludedDomains) > 0 {
		if r.SourceHostnameIntersection&f.IncludedDomainsUnion() != r.SourceHostnameIntersection ||
			!containsAny(f.IncludedDomains, r.SourceHostnameHashes) {
			return false
		}
	}

	if len(f.ExcludedDomains) > 0 && containsAny(f.ExcludedDomains, r.SourceHostnameHashes) {
		return false
	}

	return true
}

func containsAny[T comparable](set []T, candidates []T) bool {
	if len(set) == 0 || len(candidates) == 0 {
		return false
	}

	m := make(map[T]struct{}, len(set))
	for _, s := range set {
		m[s] = struct{}{}
	}

	for _, c := range candidates {
		if _, ok := m[c]; ok {
			return true
		}
	}

	return false
}

// patternMatches is the pattern-shape phase: dispatch over the filter's
// anchor/regex shape.
func patternMatches(f *rules.NetworkFilter, r *request.Request, regexes RegexProvider) bool {
	switch {
	case f.IsHostnameAnchor() && (f.IsRegex() || f.IsCompleteRegex()):
		if !IsAnchoredByHostname(f.Hostname, r.Hostname(), f.IsHostnameRegex()) {
			return false
		}

		return regexMatch(f, r.URLAfterHostname(), regexes)

	case f.IsHostnameAnchor() && f.IsLeftAnchor() && f.IsRightAnchor():
		return IsAnchoredByHostname(f.Hostname, r.Hostname(), false) &&
			matchesAny(f, r.URLAfterHostname(), stringsEqual)

	case f.IsHostnameAnchor() && f.IsRightAnchor():
		if !IsAnchoredByHostname(f.Hostname, r.Hostname(), false) {
			return false
		}

		return matchesAny(f, r.URLAfterHostname(), strings.HasSuffix)

	case f.IsHostnameAnchor() && f.IsLeftAnchor():
		return IsAnchoredByHostname(f.Hostname, r.Hostname(), false) &&
			matchesAny(f, r.URLAfterHostname(), strings.HasPrefix)

	case f.IsHostnameAnchor():
		return IsAnchoredByHostname(f.Hostname, r.Hostname(), false) &&
			matchesAny(f, r.URLAfterHostname(), strings.Contains)

	case f.IsRegex() || f.IsCompleteRegex():
		return regexMatch(f, r.URL, regexes)

	case f.IsLeftAnchor() && f.IsRightAnchor():
		return matchesAny(f, r.URL, stringsEqual)

	case f.IsLeftAnchor():
		return matchesAny(f, r.URL, strings.HasPrefix)

	case f.IsRightAnchor():
		return matchesAny(f, r.URL, strings.HasSuffix)

	default:
		return matchesAny(f, r.URL, strings.Contains)
	}
}

func stringsEqual(url, pattern string) bool { return url == pattern }

func regexMatch(f *rules.NetworkFilter, s string, regexes RegexProvider) bool {
	if regexes == nil {
		return false
	}

	return regexes.Match(f, s)
}

// matchesAny applies op to every pattern branch of f.Filter (one for a
// [rules.PartSimple], several for a fused [rules.PartAnyOf]), returning true
// if any branch matches.
func matchesAny(f *rules.NetworkFilter, url string, op func(url, pattern string) bool) bool {
	switch f.Filter.Kind {
	case rules.PartEmpty:
		return true
	case rules.PartSimple:
		return op(url, f.Filter.Simple)
	case rules.PartAnyOf:
		for _, p := range f.Filter.AnyOf {
			if op(url, p) {
				return true
			}
		}

		return false
	default:
		return false
	}
}

// IsAnchoredByHostname reports whether filterHost occupies a label-aligned
// position within requestHost. An empty filterHost always
// matches; equal-length hostnames must be exactly equal; otherwise
// filterHost must occur as a proper label prefix, suffix, or infix of
// requestHost, unless wildcard relaxes the boundary requirement.
func IsAnchoredByHostname(filterHost, requestHost string, wildcard bool) bool {
	if filterHost == "" {
		return true
	}

	if len(filterHost) > len(requestHost) {
		return false
	}

	if len(filterHost) == len(requestHost) {
		return filterHost == requestHost
	}

	idx := strings.Index(requestHost, filterHost)
	if idx < 0 {
		return false
	}

	if wildcard {
		return true
	}

	startsAtBoundary := idx == 0 || requestHost[idx-1] == '.' || filterHost[0] == '.'
	end := idx + len(filterHost)
	endsAtBoundary := end == len(requestHost) || requestHost[end] == '.' ||
		filterHost[len(filterHost)-1] == '.'

	return startsAtBoundary && endsAtBoundary
}
