package rules

import (
	"slices"

	"github.com/blockwall/netfilter/internal/hashutil"
)

// ModifierKind names the one rule option whose value changes what happens
// on match rather than what matches.
type ModifierKind uint8

const (
	// ModifierNone means the filter has no modifier.
	ModifierNone ModifierKind = iota
	ModifierRedirect
	ModifierRedirectRule
	ModifierRemoveParam
)

// Modifier is a rule option that names a resource or rewrite rather than a
// matching constraint.
type Modifier struct {
	Kind ModifierKind
	// Value is the redirect resource name, or the removeparam parameter
	// name (empty means "strip every tracking-looking parameter").
	Value string
	// Priority is the `$redirect-rule=name:N` priority suffix used to pick
	// a winner among several matching redirect-rule filters.
	Priority int
}

// NetworkFilter is the compact, immutable runtime record a textual rule
// lowers to. It never mutates after [Parse] returns.
type NetworkFilter struct {
	Mask     Mask
	Filter   FilterPart
	Hostname string

	IncludedDomains      []hashutil.Hash
	ExcludedDomains      []hashutil.Hash
	includedDomainsUnion hashutil.Hash
	excludedDomainsUnion hashutil.Hash

	Modifier *Modifier
	Tag      string
	CSP      string
	RawLine  string

	id              hashutil.Hash
	idWithoutBadFlt hashutil.Hash
}

// IsException reports the `@@` flag.
func (f *NetworkFilter) IsException() bool { return f.Mask.Has(IsException) }

// IsHostnameAnchor reports the `||` flag.
func (f *NetworkFilter) IsHostnameAnchor() bool { return f.Mask.Has(IsHostnameAnchor) }

// IsLeftAnchor reports the `|` prefix flag.
func (f *NetworkFilter) IsLeftAnchor() bool { return f.Mask.Has(IsLeftAnchor) }

// IsRightAnchor reports the trailing `|` flag.
func (f *NetworkFilter) IsRightAnchor() bool { return f.Mask.Has(IsRightAnchor) }

// IsRegex reports whether the pattern must be matched as a regex, whether
// because it contains wildcard/anchor metacharacters or is a complete
// `/…/` regex.
func (f *NetworkFilter) IsRegex() bool { return f.Mask.Has(IsRegex) }

// IsCompleteRegex reports the `/…/` literal-regex form.
func (f *NetworkFilter) IsCompleteRegex() bool { return f.Mask.Has(IsCompleteRegex) }

// IsHostnameRegex reports that the hostname itself contains a wildcard and
// must not contribute to tokenization.
func (f *NetworkFilter) IsHostnameRegex() bool { return f.Mask.Has(IsHostnameRegex) }

// IsImportant reports the `$important` flag.
func (f *NetworkFilter) IsImportant() bool { return f.Mask.Has(IsImportant) }

// IsBadFilter reports the `$badfilter` flag.
func (f *NetworkFilter) IsBadFilter() bool { return f.Mask.Has(BadFilter) }

// IsCSP reports the `$csp` flag.
func (f *NetworkFilter) IsCSP() bool { return f.Mask.Has(IsCSP) }

// IsGenericHide reports the `$generichide` flag.
func (f *NetworkFilter) IsGenericHide() bool { return f.Mask.Has(GenericHide) }

// IsPlain reports that the filter has neither anchor-driven nor explicit
// regex matching: a bare substring pattern.
func (f *NetworkFilter) IsPlain() bool {
	return !f.IsRegex() && !f.IsHostnameAnchor() && !f.IsLeftAnchor() && !f.IsRightAnchor()
}

// IsRedirect reports a `$redirect` or `$redirect-rule` modifier.
func (f *NetworkFilter) IsRedirect() bool {
	return f.Modifier != nil && (f.Modifier.Kind == ModifierRedirect || f.Modifier.Kind == ModifierRedirectRule)
}

// IsRemoveParam reports a `$removeparam` modifier.
func (f *NetworkFilter) IsRemoveParam() bool {
	return f.Modifier != nil && f.Modifier.Kind == ModifierRemoveParam
}

// HasTag reports whether the filter is gated behind a `$tag`.
func (f *NetworkFilter) HasTag() bool { return f.Tag != "" }

// ForHTTP reports whether the filter applies to http:// requests.
func (f *NetworkFilter) ForHTTP() bool { return f.Mask.Has(FromHTTP) }

// ForHTTPS reports whether the filter applies to https:// requests.
func (f *NetworkFilter) ForHTTPS() bool { return f.Mask.Has(FromHTTPS) }

// CptMask returns the content-type bits of the filter's mask.
func (f *NetworkFilter) CptMask() Mask { return f.Mask & FromAllTypes }

// IncludedDomainsUnion is the OR-fold of IncludedDomains, used to
// short-circuit the domain-option check without scanning the full set.
func (f *NetworkFilter) IncludedDomainsUnion() hashutil.Hash { return f.includedDomainsUnion }

// ExcludedDomainsUnion is the OR-fold of ExcludedDomains.
func (f *NetworkFilter) ExcludedDomainsUnion() hashutil.Hash { return f.excludedDomainsUnion }

// ID is a deterministic fingerprint over the filter's matching-relevant
// fields (mask, pattern, hostname, domain sets, CSP value). Two filters
// with equal ID are functionally equivalent for matching purposes.
func (f *NetworkFilter) ID() hashutil.Hash { return f.id }

// IDWithoutBadFilter is [NetworkFilter.ID] computed with the BadFilter bit
// cleared, so a `$badfilter` rule's ID-without-badfilter can be compared
// against a normal rule's ID to cancel it.
func (f *NetworkFilter) IDWithoutBadFilter() hashutil.Hash { return f.idWithoutBadFlt }

func computeFilterID(csp string, mask Mask, patternView, hostname string, included, excluded []hashutil.Hash) hashutil.Hash {
	acc := hashutil.FilterIDSeed(uint32(mask))
	if csp != "" {
		acc = hashutil.MixString(acc, csp)
	}

	acc = hashutil.MixString(acc, patternView)
	if hostname != "" {
		acc = hashutil.MixString(acc, hostname)
	}

	for _, d := range included {
		acc = hashutil.MixHash(acc, d)
	}

	for _, d := range excluded {
		acc = hashutil.MixHash(acc, d)
	}

	return acc
}

// RecomputeID re-derives ID and IDWithoutBadFilter after a caller outside
// this package (the optimizer's fusion step) has replaced Filter or Mask on
// an already-parsed filter.
func (f *NetworkFilter) RecomputeID() { f.computeIDs() }

// Rehydrate reconstructs a [NetworkFilter] from already-lowered fields,
// deriving the domain-set unions and IDs the same way [Parse] does. It is
// the deserialization entry point: the wire format stores exactly
// these fields and nothing else, so decoding a filter is a call to
// Rehydrate rather than a re-parse of its RawLine.
func Rehydrate(
	mask Mask,
	filterPart FilterPart,
	hostname string,
	includedDomains, excludedDomains []hashutil.Hash,
	modifier *Modifier,
	tag, csp, rawLine string,
) *NetworkFilter {
	f := &NetworkFilter{
		Mask:            mask,
		Filter:          filterPart,
		Hostname:        hostname,
		IncludedDomains: includedDomains,
		ExcludedDomains: excludedDomains,
		Modifier:        modifier,
		Tag:             tag,
		CSP:             csp,
		RawLine:         rawLine,
	}

	f.includedDomainsUnion = orFold(includedDomains)
	f.excludedDomainsUnion = orFold(excludedDomains)
	f.computeIDs()

	return f
}

func (f *NetworkFilter) computeIDs() {
	f.id = computeFilterID(f.CSP, f.Mask, f.Filter.StringView(), f.Hostname, f.IncludedDomains, f.ExcludedDomains)
	f.idWithoutBadFlt = computeFilterID(
		f.CSP, f.Mask.Set(BadFilter, false), f.Filter.StringView(), f.Hostname, f.IncludedDomains, f.ExcludedDomains,
	)
}

// sortDedupHashes sorts hs in place and removes duplicates, matching the
// "Domain set: sorted, deduplicated list of Hash" invariant.
func sortDedupHashes(hs []hashutil.Hash) []hashutil.Hash {
	if len(hs) < 2 {
		return hs
	}

	slices.Sort(hs)

	return slices.Compact(hs)
}

func orFold(hs []hashutil.Hash) hashutil.Hash {
	var u hashutil.Hash
	for _, h := range hs {
		u |= h
	}

	return u
}

// GetTokens returns the token groups used to index this filter:
// one group combining pattern and hostname tokens when the pattern or
// hostname yields any, one group per included domain when neither does but
// a single-or-more included domain set exists, or otherwise a single group
// that may be empty, which [filterlist] indexes under the fallback token 0.
// An http-only or https-only filter's single group also carries the scheme
// token.
func (f *NetworkFilter) GetTokens() [][]hashutil.Hash {
	tokens := make([]hashutil.Hash, 0, 32)

	if len(f.IncludedDomains) == 1 && len(f.ExcludedDomains) == 0 {
		tokens = append(tokens, f.IncludedDomains[0])
	}

	if f.Filter.Kind == PartSimple && !f.IsCompleteRegex() {
		skipLast := (f.IsPlain() || f.IsRegex()) && !f.IsRightAnchor()
		skipFirst := f.IsRightAnchor()
		tokens = append(tokens, hashutil.TokenizeFilter(f.Filter.Simple, skipFirst, skipLast)...)
	}

	if !f.IsHostnameRegex() && f.Hostname != "" {
		tokens = append(tokens, hashutil.Tokenize(f.Hostname)...)
	}

	if len(tokens) == 0 && len(f.IncludedDomains) > 0 && len(f.ExcludedDomains) == 0 {
		groups := make([][]hashutil.Hash, len(f.IncludedDomains))
		for i, d := range f.IncludedDomains {
			groups[i] = []hashutil.Hash{d}
		}

		return groups
	}

	if f.ForHTTP() && !f.ForHTTPS() {
		tokens = append(tokens, hashutil.FastHash("http"))
	} else if f.ForHTTPS() && !f.ForHTTP() {
		tokens = append(tokens, hashutil.FastHash("https"))
	}

	return [][]hashutil.Hash{tokens}
}

// String reproduces the filter's raw source line when known, falling back
// to a synthesized description for debugging otherwise.
func (f *NetworkFilter) String() string {
	if f.RawLine != "" {
		return f.RawLine
	}

	return f.Filter.StringView()
}
