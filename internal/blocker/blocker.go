// Package blocker implements the multi-category match dispatcher: it holds
// the filter population split by category and enforces the policy ordering
// among important, redirect, normal, and exception filters for a single
// request, plus CSP directive merging and query-parameter removal.
package blocker

import (
	"net/url"
	"sort"
	"strings"

	"github.com/blockwall/netfilter/internal/filterlist"
	"github.com/blockwall/netfilter/internal/metrics"
	"github.com/blockwall/netfilter/internal/regexmgr"
	"github.com/blockwall/netfilter/internal/request"
	"github.com/blockwall/netfilter/internal/rules"
)

// Options configures a [New] Blocker.
type Options struct {
	// EnableOptimizations runs the fusion pass over every category list
	// after installation.
	EnableOptimizations bool
	// LoadNetworkFilters gates whether [Blocker.Check] ever considers a
	// match; false makes every request pass through unmatched, for an
	// engine whose cosmetic and network filter loads are toggled
	// independently.
	LoadNetworkFilters bool
}

// Result is the outcome of checking one request.
type Result struct {
	// Matched reports a net block: a filter matched and no exception
	// overrode it.
	Matched bool
	// Filter is the blocking (or would-be-blocking) filter's source line,
	// present whenever any category other than exceptions matched.
	Filter string
	// Exception is the excepting filter's source line, present when an
	// exception suppressed the match.
	Exception string
	// Redirect is the resource name a matched `$redirect`/`$redirect-rule`
	// filter names, empty unless a redirect applies and was not excepted.
	Redirect string
	// RewrittenURL is the request URL with query parameters named by an
	// active `$removeparam` rule stripped, equal to the input URL if no
	// rule applied.
	RewrittenURL string
}

// tagSet is the mutable enabled-tag membership consulted on every match.
type tagSet map[string]struct{}

func (s tagSet) Contains(tag string) bool {
	_, ok := s[tag]

	return ok
}

// Blocker holds the six per-category filter populations. A filter's
// `$tag` is enforced wherever it is installed: every
// [filterlist.List] skips a tagged filter unless its tag is in tagsEnabled,
// so tag activation works the same regardless of category.
type Blocker struct {
	csp          *filterlist.List
	exceptions   *filterlist.List
	importants   *filterlist.List
	redirects    *filterlist.List
	removeparams *filterlist.List
	filters      *filterlist.List

	tagsEnabled tagSet

	regexes *regexmgr.Manager

	loadNetworkFilters bool
}

// New partitions filters into their categories in installation order and
// builds one token-indexed [filterlist.List] per category.
// `$badfilter` rules cancel a matching installed rule by ID-without-badfilter
// rather than being installed themselves.
func New(filters []*rules.NetworkFilter, opts Options) *Blocker {
	byIDWithoutBadFilter := make(map[uint64]struct{})
	for _, f := range filters {
		if f.IsBadFilter() {
			byIDWithoutBadFilter[uint64(f.IDWithoutBadFilter())] = struct{}{}
		}
	}

	var csp, exceptions, importants, redirects, removeparams, normal []*rules.NetworkFilter
	for _, f := range filters {
		if f.IsBadFilter() {
			continue
		}

		if _, cancel := byIDWithoutBadFilter[uint64(f.ID())]; cancel {
			continue
		}

		switch {
		case f.IsCSP():
			csp = append(csp, f)
		case f.IsException():
			exceptions = append(exceptions, f)
		case f.IsImportant():
			importants = append(importants, f)
		case f.Modifier != nil && (f.Modifier.Kind == rules.ModifierRedirect || f.Modifier.Kind == rules.ModifierRedirectRule):
			redirects = append(redirects, f)
		case f.Modifier != nil && f.Modifier.Kind == rules.ModifierRemoveParam:
			removeparams = append(removeparams, f)
		default:
			normal = append(normal, f)
		}
	}

	return &Blocker{
		csp:                buildList(csp, opts.EnableOptimizations),
		exceptions:         buildList(exceptions, opts.EnableOptimizations),
		importants:         buildList(importants, opts.EnableOptimizations),
		redirects:          buildList(redirects, opts.EnableOptimizations),
		removeparams:       buildList(removeparams, opts.EnableOptimizations),
		filters:            buildList(normal, opts.EnableOptimizations),
		tagsEnabled:        make(tagSet),
		regexes:            regexmgr.New(regexmgr.DefaultTTL, regexmgr.DefaultCleanupInterval),
		loadNetworkFilters: opts.LoadNetworkFilters,
	}
}

func buildList(filters []*rules.NetworkFilter, optimize bool) *filterlist.List {
	l := filterlist.New(filters)
	if optimize {
		l.Optimize()
	}

	return l
}

// EnableTags adds tags to the set of active tags.
func (b *Blocker) EnableTags(tags ...string) {
	for _, t := range tags {
		b.tagsEnabled[t] = struct{}{}
	}
}

// DisableTags removes tags from the set of active tags.
func (b *Blocker) DisableTags(tags ...string) {
	for _, t := range tags {
		delete(b.tagsEnabled, t)
	}
}

// AddFilter installs one additional filter without rebuilding any
// category's histogram. A `$badfilter` rule added dynamically is rejected
// since the categories it would need to retroactively cancel have already
// been built.
func (b *Blocker) AddFilter(f *rules.NetworkFilter) bool {
	if f.IsBadFilter() {
		return false
	}

	switch {
	case f.IsCSP():
		b.csp.Add(f)
	case f.IsException():
		b.exceptions.Add(f)
	case f.IsImportant():
		b.importants.Add(f)
	case f.Modifier != nil && (f.Modifier.Kind == rules.ModifierRedirect || f.Modifier.Kind == rules.ModifierRedirectRule):
		b.redirects.Add(f)
	case f.Modifier != nil && f.Modifier.Kind == rules.ModifierRemoveParam:
		b.removeparams.Add(f)
	default:
		b.filters.Add(f)
	}

	return true
}

// Check decides the outcome for r, following the important/redirect/normal/
// exception policy ordering.
func (b *Blocker) Check(r *request.Request) Result {
	if !b.loadNetworkFilters || !r.IsSupported() {
		return Result{RewrittenURL: r.URL}
	}

	if f := b.importants.Check(r, b.tagsEnabled, b.regexes); f != nil {
		metrics.IncrementMatchResult(metrics.ResultBlocked)

		return Result{Matched: true, Filter: f.String(), RewrittenURL: r.URL}
	}

	matched := b.redirects.Check(r, b.tagsEnabled, b.regexes)
	if matched == nil {
		matched = b.filters.Check(r, b.tagsEnabled, b.regexes)
	}

	var exceptionLine string
	if matched != nil {
		if exc := b.exceptions.Check(r, b.tagsEnabled, b.regexes); exc != nil {
			exceptionLine = exc.String()
		}
	}

	result := Result{
		Matched:      matched != nil && exceptionLine == "",
		RewrittenURL: r.URL,
	}
	if matched != nil {
		result.Filter = matched.String()
	}

	result.Exception = exceptionLine

	if matched != nil && matched.IsRedirect() && exceptionLine == "" {
		result.Redirect = selectRedirectResource(matched, b.redirects, r, b)
	}

	if rewritten, changed := b.applyRemoveParams(r); changed {
		result.RewrittenURL = rewritten
		metrics.IncrementMatchResult(metrics.ResultRemoveParam)
	}

	switch {
	case result.Redirect != "":
		metrics.IncrementMatchResult(metrics.ResultRedirected)
	case result.Matched:
		metrics.IncrementMatchResult(metrics.ResultBlocked)
	case exceptionLine != "":
		metrics.IncrementMatchResult(metrics.ResultExcepted)
	case matched == nil:
		metrics.IncrementMatchResult(metrics.ResultUnmatched)
	}

	return result
}

// selectRedirectResource resolves the matched filter's redirect target,
// applying `$redirect-rule` priority selection: among every matching
// redirect-rule filter, the highest `:N` priority wins, defaulting
// to 0 when unspecified.
func selectRedirectResource(matched *rules.NetworkFilter, redirects *filterlist.List, r *request.Request, b *Blocker) string {
	if matched.Modifier.Kind == rules.ModifierRedirect {
		return matched.Modifier.Value
	}

	candidates := redirects.CheckAll(r, b.tagsEnabled, b.regexes)
	best := matched
	for _, c := range candidates {
		if c.Modifier == nil || c.Modifier.Kind != rules.ModifierRedirectRule {
			continue
		}

		if c.Modifier.Priority > best.Modifier.Priority {
			best = c
		}
	}

	return best.Modifier.Value
}

// applyRemoveParams strips every query parameter whose name matches an
// active `$removeparam` rule from r's URL, preserving surviving-pair order
// and the fragment.
func (b *Blocker) applyRemoveParams(r *request.Request) (rewritten string, changed bool) {
	matches := b.removeparams.CheckAll(r, b.tagsEnabled, b.regexes)
	if len(matches) == 0 {
		return r.URL, false
	}

	names := make(map[string]struct{}, len(matches))
	stripAll := false
	for _, f := range matches {
		if f.Modifier.Value == "" {
			stripAll = true

			continue
		}

		names[f.Modifier.Value] = struct{}{}
	}

	u, err := url.Parse(r.URL)
	if err != nil {
		return r.URL, false
	}

	query := u.RawQuery
	if query == "" {
		return r.URL, false
	}

	pairs := strings.Split(query, "&")
	kept := pairs[:0:0]
	for _, p := range pairs {
		name := p
		if i := strings.IndexByte(p, '='); i >= 0 {
			name = p[:i]
		}

		if decoded, err := url.QueryUnescape(name); err == nil {
			name = decoded
		}

		if stripAll && looksLikeTracker(name) {
			continue
		}

		if _, drop := names[name]; drop {
			continue
		}

		kept = append(kept, p)
	}

	if len(kept) == len(pairs) {
		return r.URL, false
	}

	u.RawQuery = strings.Join(kept, "&")

	return u.String(), u.String() != r.URL
}

// looksLikeTracker is the fallback heuristic for a bare `$removeparam` with
// no name: strip parameters that are conventionally click-tracking
// identifiers rather than every parameter, which would make the rule
// useless against multi-parameter URLs.
var trackerParamNames = map[string]struct{}{
	"fbclid":       {},
	"gclid":        {},
	"msclkid":      {},
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
}

func looksLikeTracker(name string) bool {
	_, ok := trackerParamNames[strings.ToLower(name)]

	return ok
}

// Categories returns every installed filter grouped by category. The wire
// format writes csp, exceptions, importants, redirects, filters in that
// fixed order, and RemoveParams separately after them. TaggedFilters is the
// subset of all six carrying a non-empty tag. This is a derived view kept separately for serialization
// and introspection; tag gating itself is already enforced per-filter
// within each category list.
type Categories struct {
	CSP           []*rules.NetworkFilter
	Exceptions    []*rules.NetworkFilter
	Importants    []*rules.NetworkFilter
	Redirects     []*rules.NetworkFilter
	RemoveParams  []*rules.NetworkFilter
	Filters       []*rules.NetworkFilter
	TaggedFilters []*rules.NetworkFilter
}

// Categories exports the installed filter population for serialization or
// introspection. The returned slices must not be mutated.
func (b *Blocker) Categories() Categories {
	c := Categories{
		CSP:          b.csp.Filters(),
		Exceptions:   b.exceptions.Filters(),
		Importants:   b.importants.Filters(),
		Redirects:    b.redirects.Filters(),
		RemoveParams: b.removeparams.Filters(),
		Filters:      b.filters.Filters(),
	}

	for _, group := range [][]*rules.NetworkFilter{c.CSP, c.Exceptions, c.Importants, c.Redirects, c.RemoveParams, c.Filters} {
		for _, f := range group {
			if f.HasTag() {
				c.TaggedFilters = append(c.TaggedFilters, f)
			}
		}
	}

	return c
}

// EnabledTags returns the currently active tag set, for serialization's
// "preserve currently enabled tags across a round trip" requirement.
func (b *Blocker) EnabledTags() []string {
	tags := make([]string, 0, len(b.tagsEnabled))
	for t := range b.tagsEnabled {
		tags = append(tags, t)
	}

	sort.Strings(tags)

	return tags
}

// CSPDirectives collects every distinct `$csp` directive matching r,
// joined by ",", restricted to document/subdocument requests. An exception
// filter with an empty CSP value present among the matches
// disables injection entirely for the request.
func (b *Blocker) CSPDirectives(r *request.Request) string {
	if !r.Mask.Has(rules.FromDocument) && !r.Mask.Has(rules.FromSubdocument) {
		return ""
	}

	matches := b.csp.CheckAll(r, b.tagsEnabled, b.regexes)
	if len(matches) == 0 {
		return ""
	}

	for _, f := range matches {
		if f.IsException() && f.CSP == "" {
			return ""
		}
	}

	seen := make(map[string]struct{}, len(matches))
	directives := make([]string, 0, len(matches))
	for _, f := range matches {
		if f.CSP == "" {
			continue
		}

		if _, ok := seen[f.CSP]; ok {
			continue
		}

		seen[f.CSP] = struct{}{}
		directives = append(directives, f.CSP)
	}

	sort.Strings(directives)

	return strings.Join(directives, ",")
}
