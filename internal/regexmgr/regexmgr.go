// Package regexmgr lazily compiles filter patterns into regular
// expressions and evicts them on an LRU/TTL schedule. Compilation is
// deferred until a filter's first match attempt because most installed
// filters are never hit by a given request stream, and regex compilation is
// one of the few genuinely expensive operations on the match path.
package regexmgr

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/blockwall/netfilter/internal/metrics"
	"github.com/blockwall/netfilter/internal/rules"
	"github.com/bluele/gcache"
)

// DefaultTTL is how long an unused compiled regex survives a cleanup pass.
const DefaultTTL = 180 * time.Second

// DefaultCleanupInterval is the minimum spacing between cleanup passes.
const DefaultCleanupInterval = 30 * time.Second

// DefaultMaxEntries bounds the backing LRU cache's size independently of
// the TTL, so a burst of distinct regex filters cannot grow the cache
// without limit between cleanup ticks.
const DefaultMaxEntries = 1 << 16

// Stats is a snapshot of manager activity, exposed for ambient metrics.
type Stats struct {
	Compiled uint64
	Evicted  uint64
}

// Manager lazily compiles and caches [compiledPattern]s keyed by filter
// identity. It satisfies [match.RegexProvider].
type Manager struct {
	cache gcache.Cache

	mu          sync.Mutex
	now         time.Time
	lastCleanup time.Time

	compiled uint64
	evicted  uint64

	onEvict func(filter *rules.NetworkFilter)
}

// Option configures a [New] Manager.
type Option func(*Manager)

// WithEvictHandler installs a callback invoked whenever the cache evicts an
// entry, mirroring gcache's EvictedFunc hook. Useful for logging and
// metrics.
func WithEvictHandler(f func(filter *rules.NetworkFilter)) Option {
	return func(m *Manager) { m.onEvict = f }
}

// New builds a Manager whose backing store is a gcache LRU cache with a TTL
// of ttl, cleaned up at most once per cleanupInterval.
func New(ttl, cleanupInterval time.Duration, opts ...Option) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}

	m := &Manager{now: time.Now(), lastCleanup: time.Now()}
	for _, o := range opts {
		o(m)
	}

	m.cache = gcache.New(DefaultMaxEntries).
		LRU().
		Expiration(ttl).
		EvictedFunc(func(key, _ interface{}) {
			m.evicted++
			metrics.IncrementRegexEviction()
			if m.onEvict != nil {
				if f, ok := key.(*rules.NetworkFilter); ok {
					m.onEvict(f)
				}
			}
		}).
		Build()

	return m
}

// Match reports whether filter's compiled pattern matches s, compiling and
// caching it on first use.
func (m *Manager) Match(filter *rules.NetworkFilter, s string) bool {
	if !filter.IsRegex() && !filter.IsCompleteRegex() {
		return true
	}

	m.mu.Lock()
	cached, err := m.cache.Get(filter)
	if err == nil {
		cp := cached.(*compiledPattern)
		m.mu.Unlock()

		return cp.match(s)
	}

	cp := compile(filter)
	m.compiled++
	metrics.IncrementRegexCompile()
	_ = m.cache.Set(filter, cp)
	m.mu.Unlock()

	return cp.match(s)
}

// Tick advances the manager's clock and, if at least the cleanup interval
// has elapsed since the last pass, triggers an eviction sweep. It is cheap
// when no sweep is due. Nothing in this module calls it; the request path
// does not tick the manager.
func (m *Manager) Tick(cleanupInterval time.Duration) {
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.now = time.Now()
	if m.now.Sub(m.lastCleanup) < cleanupInterval {
		return
	}

	m.lastCleanup = m.now
	// gcache's own Expiration sweeps lazily on access; GetALL(false) forces
	// a pass over the keyspace so entries idle since the last request are
	// purged promptly rather than only on next lookup.
	m.cache.GetALL(false)
}

// Stats reports current compile/eviction counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{Compiled: m.compiled, Evicted: m.evicted}
}

// compiledPattern is a compiled regex, a compiled regex set (for fused
// [rules.PartAnyOf] filters), or the degenerate always/never-match cases.
type compiledPattern struct {
	re       *regexp.Regexp
	matchAll bool
}

func (c *compiledPattern) match(s string) bool {
	if c.matchAll {
		return true
	}

	if c.re == nil {
		return false
	}

	return c.re.MatchString(s)
}

// compile builds a [compiledPattern] for filter, applying the pattern
// rules. A pattern that fails to compile becomes a "never matches" entry
// rather than propagating an error.
func compile(filter *rules.NetworkFilter) *compiledPattern {
	patterns := filterPatterns(filter)
	if len(patterns) == 0 {
		return &compiledPattern{matchAll: true}
	}

	branches := make([]string, 0, len(patterns))
	for _, p := range patterns {
		branches = append(branches, toRegexBranch(p, filter))
	}

	src := strings.Join(branches, "|")

	re, err := regexp.Compile(src)
	if err != nil {
		return &compiledPattern{}
	}

	return &compiledPattern{re: re}
}

func filterPatterns(filter *rules.NetworkFilter) []string {
	switch filter.Filter.Kind {
	case rules.PartSimple:
		return []string{filter.Filter.Simple}
	case rules.PartAnyOf:
		return filter.Filter.AnyOf
	default:
		return nil
	}
}

// regexMeta is the set of characters escaped before translation.
const regexMeta = `|.$+?{}()[]`

func toRegexBranch(pattern string, filter *rules.NetworkFilter) string {
	var body string
	if filter.IsCompleteRegex() {
		body = pattern
	} else {
		body = translateWildcardPattern(pattern)
	}

	if filter.IsLeftAnchor() && !filter.IsCompleteRegex() {
		body = "^" + body
	}

	if filter.IsRightAnchor() && !filter.IsCompleteRegex() {
		body += "$"
	}

	return body
}

// translateWildcardPattern escapes regex metacharacters in an
// Adblock-syntax pattern and maps its own wildcard metacharacters ('*',
// '^') to their regex equivalents.
func translateWildcardPattern(pattern string) string {
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
			if strings.ContainsRune(regexMeta, r) {
				b.WriteByte('\\')
			}

			b.WriteRune(r)
		}
	}

	return b.String()
}
