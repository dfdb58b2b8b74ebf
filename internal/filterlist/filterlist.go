// Package filterlist implements the token-indexed bucket store a request is
// checked against: every filter is indexed under the rarest token it
// contains, so a lookup only has to walk the handful of buckets named by a
// request's own tokens instead of scanning every installed filter.
package filterlist

import (
	"github.com/blockwall/netfilter/internal/aghalg"
	"github.com/blockwall/netfilter/internal/hashutil"
	"github.com/blockwall/netfilter/internal/match"
	"github.com/blockwall/netfilter/internal/optimizer"
	"github.com/blockwall/netfilter/internal/request"
	"github.com/blockwall/netfilter/internal/rules"
)

// List is a token-indexed set of filters. The zero value is not usable;
// construct with [New].
type List struct {
	buckets map[hashutil.Hash][]*rules.NetworkFilter
}

// New builds a List from filters, choosing for each filter's token group the
// token with the lowest global occurrence count among the group's
// candidates. The four tokens in [hashutil.BadTokens] are treated
// as maximally common and so are never chosen unless every candidate token
// is one of them.
func New(filters []*rules.NetworkFilter) *List {
	type tokenized struct {
		filter *rules.NetworkFilter
		groups [][]hashutil.Hash
	}

	tfs := make([]tokenized, len(filters))
	hist := aghalg.NewHistogram[hashutil.Hash]()
	total := int64(0)
	for i, f := range filters {
		groups := f.GetTokens()
		tfs[i] = tokenized{filter: f, groups: groups}
		for _, g := range groups {
			hist.Add(g...)
			total += int64(len(g))
		}
	}

	for _, bad := range hashutil.BadTokens() {
		hist.Set(bad, total)
	}

	l := &List{buckets: make(map[hashutil.Hash][]*rules.NetworkFilter, len(filters))}
	for _, tf := range tfs {
		for _, group := range tf.groups {
			l.insert(bestToken(hist, total, group), tf.filter)
		}
	}

	return l
}

// bestToken picks the group member with the lowest histogram count, or the
// zero token (matching every request) when the group is empty.
func bestToken(hist aghalg.Histogram[hashutil.Hash], total int64, group []hashutil.Hash) hashutil.Hash {
	if len(group) == 0 {
		return 0
	}

	var best hashutil.Hash
	minCount := total + 1
	seenZero := false
	for _, tok := range group {
		if count := hist.Count(tok); count < minCount {
			minCount = count
			best = tok
			seenZero = count == 0
			if seenZero {
				break
			}
		}
	}

	return best
}

func (l *List) insert(token hashutil.Hash, f *rules.NetworkFilter) {
	l.buckets[token] = append(l.buckets[token], f)
}

// Optimize fuses each bucket's filters independently via package optimizer,
// It is a one-way transition: call it once after every static
// filter has been indexed, before serving requests, not interleaved with
// [List.Add].
func (l *List) Optimize() {
	for token, bucket := range l.buckets {
		if len(bucket) < 2 {
			continue
		}

		l.buckets[token] = optimizer.Optimize(bucket)
	}
}

// Add indexes one additional filter into an already-built List, using the
// dynamic-update path. Unlike [New] it scores candidate tokens against the
// current bucket sizes rather than a precomputed histogram, so repeated
// calls stay cheap without rebuilding global statistics.
func (l *List) Add(f *rules.NetworkFilter) {
	total := int64(0)
	for _, b := range l.buckets {
		total += int64(len(b))
	}

	for _, group := range f.GetTokens() {
		if len(group) == 0 {
			l.insert(0, f)
			continue
		}

		var best hashutil.Hash
		minCount := total + 1
		for _, tok := range group {
			count := int64(len(l.buckets[tok]))
			if _, ok := l.buckets[tok]; !ok {
				count = 0
			}

			if count < minCount {
				minCount = count
				best = tok
			}
		}

		l.insert(best, f)
	}
}

// Exists reports whether a filter with the same ID as f is already indexed.
// It may miss filters that were folded into a fused [rules.PartAnyOf] entry
// by the optimizer; see package optimizer.
func (l *List) Exists(f *rules.NetworkFilter) bool {
	tokens := l.candidateTokens(f)
	for _, tok := range tokens {
		for _, cand := range l.buckets[tok] {
			if cand.ID() == f.ID() {
				return true
			}
		}
	}

	return false
}

func (l *List) candidateTokens(f *rules.NetworkFilter) []hashutil.Hash {
	groups := f.GetTokens()
	flat := make([]hashutil.Hash, 0, len(groups))
	for _, g := range groups {
		flat = append(flat, g...)
	}

	if len(flat) == 0 {
		flat = append(flat, 0)
	}

	return flat
}

// activeTags is the open set of enabled `$tag` values. A filter with a
// non-empty tag only matches when its tag is a member; an untagged filter
// always matches.
type activeTags interface {
	Contains(tag string) bool
}

// Check returns the first filter, in the bucket walk order defined by
// r's own tokens, that matches r and whose tag (if any) is active. Per
// Since buckets are unordered, callers must only use Check for
// filter categories where any one match is interchangeable with any other
// (e.g. a single exception suffices regardless of which exception matched).
func (l *List) Check(r *request.Request, tags activeTags, regexes match.RegexProvider) *rules.NetworkFilter {
	if len(l.buckets) == 0 {
		return nil
	}

	if f := l.checkTokens(r.SourceHostnameHashes, r, tags, regexes); f != nil {
		return f
	}

	var buf [33]hashutil.Hash
	reqTokens := r.Tokens(buf[:0])

	return l.checkTokens(reqTokens, r, tags, regexes)
}

func (l *List) checkTokens(tokens []hashutil.Hash, r *request.Request, tags activeTags, regexes match.RegexProvider) *rules.NetworkFilter {
	for _, tok := range tokens {
		for _, f := range l.buckets[tok] {
			if tagAllows(f, tags) && match.Matches(f, r, regexes) {
				return f
			}
		}
	}

	return nil
}

// CheckAll returns every filter that matches r, for categories (e.g. `$csp`)
// where more than one match may carry distinct information that must all be
// combined.
func (l *List) CheckAll(r *request.Request, tags activeTags, regexes match.RegexProvider) []*rules.NetworkFilter {
	var out []*rules.NetworkFilter
	if len(l.buckets) == 0 {
		return out
	}

	out = l.checkAllTokens(out, r.SourceHostnameHashes, r, tags, regexes)

	var buf [33]hashutil.Hash
	reqTokens := r.Tokens(buf[:0])

	return l.checkAllTokens(out, reqTokens, r, tags, regexes)
}

func (l *List) checkAllTokens(
	out []*rules.NetworkFilter,
	tokens []hashutil.Hash,
	r *request.Request,
	tags activeTags,
	regexes match.RegexProvider,
) []*rules.NetworkFilter {
	for _, tok := range tokens {
		for _, f := range l.buckets[tok] {
			if tagAllows(f, tags) && match.Matches(f, r, regexes) {
				out = append(out, f)
			}
		}
	}

	return out
}

func tagAllows(f *rules.NetworkFilter, tags activeTags) bool {
	if !f.HasTag() {
		return true
	}

	if tags == nil {
		return false
	}

	return tags.Contains(f.Tag)
}

// Len returns the number of buckets (distinct indexing tokens), mainly for
// tests and metrics.
func (l *List) Len() int { return len(l.buckets) }

// Filters returns every filter reachable by any bucket, deduplicated by ID.
// Intended for serialization and the optimizer, not the hot match path.
func (l *List) Filters() []*rules.NetworkFilter {
	seen := make(map[hashutil.Hash]struct{}, len(l.buckets))
	var out []*rules.NetworkFilter
	for _, bucket := range l.buckets {
		for _, f := range bucket {
			if _, ok := seen[f.ID()]; ok {
				continue
			}

			seen[f.ID()] = struct{}{}
			out = append(out, f)
		}
	}

	return out
}
