package optimizer_test

import (
	"testing"

	"github.com/blockwall/netfilter/internal/optimizer"
	"github.com/blockwall/netfilter/internal/regexmgr"
	"github.com/blockwall/netfilter/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseAll(t *testing.T, lines ...string) []*rules.NetworkFilter {
	t.Helper()

	out := make([]*rules.NetworkFilter, 0, len(lines))
	for _, l := range lines {
		f, err := rules.Parse(l, true)
		require.NoError(t, err)
		out = append(out, f)
	}

	return out
}

func TestOptimize_combinesSimpleRegexPatterns(t *testing.T) {
	t.Parallel()

	group := parseAll(t,
		"/static/ad-",
		"/static/ad/*",
		"/static/ads/*",
		"/static/adv/*",
	)

	fused := optimizer.Optimize(group)
	require.Len(t, fused, 1)

	f := fused[0]
	assert.True(t, f.IsRegex())
	assert.True(t, f.IsCompleteRegex())
	assert.Equal(t, "/static/ad- <+> /static/ad/* <+> /static/ads/* <+> /static/adv/*", f.String())

	mgr := regexmgr.New(regexmgr.DefaultTTL, regexmgr.DefaultCleanupInterval)
	assert.True(t, mgr.Match(f, "/static/ad-"))
	assert.False(t, mgr.Match(f, "/static/ads-"))
	assert.True(t, mgr.Match(f, "/static/ad/"))
	assert.False(t, mgr.Match(f, "/static/ad"))
	assert.True(t, mgr.Match(f, "/static/ad/foobar"))
	assert.True(t, mgr.Match(f, "/static/ads/"))
	assert.False(t, mgr.Match(f, "/static/ads"))
	assert.True(t, mgr.Match(f, "/static/adv/foobar"))
}

func TestOptimize_singletonGroupUnfused(t *testing.T) {
	t.Parallel()

	group := parseAll(t, "/only-one-here")
	fused := optimizer.Optimize(group)

	require.Len(t, fused, 1)
	assert.Same(t, group[0], fused[0])
}

func TestOptimize_skipsDomainRestrictedFilters(t *testing.T) {
	t.Parallel()

	group := parseAll(t,
		"/v1/ads/*",
		"/v1/pixel?$domain=~my.leadpages.net",
	)

	fused := optimizer.Optimize(group)

	// The domain-restricted filter is never a fusion candidate, so both
	// filters come back unfused.
	require.Len(t, fused, 2)
	for _, f := range fused {
		assert.False(t, f.IsCompleteRegex())
	}
}
