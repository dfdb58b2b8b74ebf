package blocker_test

import (
	"testing"

	"github.com/blockwall/netfilter/internal/blocker"
	"github.com/blockwall/netfilter/internal/hostutil"
	"github.com/blockwall/netfilter/internal/request"
	"github.com/blockwall/netfilter/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseAll(t *testing.T, lines ...string) []*rules.NetworkFilter {
	t.Helper()

	out := make([]*rules.NetworkFilter, 0, len(lines))
	for _, l := range lines {
		f, err := rules.Parse(l, false)
		require.NoError(t, err)
		out = append(out, f)
	}

	return out
}

func mustReq(t *testing.T, url string) *request.Request {
	t.Helper()

	r, err := request.FromURL(hostutil.Default, url)
	require.NoError(t, err)

	return r
}

func TestBlocker_basicBlock(t *testing.T) {
	t.Parallel()

	b := blocker.New(parseAll(t, "||ads.example.com^"), blocker.Options{LoadNetworkFilters: true})

	res := b.Check(mustReq(t, "https://ads.example.com/x"))
	assert.True(t, res.Matched)
	assert.NotEmpty(t, res.Filter)

	res = b.Check(mustReq(t, "https://unrelated.com/x"))
	assert.False(t, res.Matched)
}

func TestBlocker_exceptionOverridesBlock(t *testing.T) {
	t.Parallel()

	b := blocker.New(parseAll(t, "||ads.example.com^", "@@||ads.example.com^"), blocker.Options{LoadNetworkFilters: true})

	res := b.Check(mustReq(t, "https://ads.example.com/x"))
	assert.False(t, res.Matched)
	assert.NotEmpty(t, res.Exception)
	assert.NotEmpty(t, res.Filter)
}

func TestBlocker_importantBeatsException(t *testing.T) {
	t.Parallel()

	b := blocker.New(parseAll(t,
		"||ads.example.com^$important",
		"@@||ads.example.com^",
	), blocker.Options{LoadNetworkFilters: true})

	res := b.Check(mustReq(t, "https://ads.example.com/x"))
	assert.True(t, res.Matched)
}

func TestBlocker_redirectResource(t *testing.T) {
	t.Parallel()

	b := blocker.New(parseAll(t, "||ads.example.com/track$redirect=noop.js"), blocker.Options{LoadNetworkFilters: true})

	res := b.Check(mustReq(t, "https://ads.example.com/track"))
	assert.True(t, res.Matched)
	assert.Equal(t, "noop.js", res.Redirect)
}

func TestBlocker_redirectRulePriority(t *testing.T) {
	t.Parallel()

	b := blocker.New(parseAll(t,
		"||ads.example.com/track$redirect-rule=low.js:1",
		"||ads.example.com/track$redirect-rule=high.js:5",
	), blocker.Options{LoadNetworkFilters: true})

	res := b.Check(mustReq(t, "https://ads.example.com/track"))
	assert.True(t, res.Matched)
	assert.Equal(t, "high.js", res.Redirect)
}

func TestBlocker_removeparamStripsTrackingQuery(t *testing.T) {
	t.Parallel()

	b := blocker.New(parseAll(t, "*$removeparam=fbclid"), blocker.Options{LoadNetworkFilters: true})

	res := b.Check(mustReq(t, "https://example.com/?q1=1&q2=2&fbclid=39&q3=3"))
	assert.False(t, res.Matched)
	assert.Equal(t, "https://example.com/?q1=1&q2=2&q3=3", res.RewrittenURL)
}

func TestBlocker_cspMergesDirectives(t *testing.T) {
	t.Parallel()

	b := blocker.New(parseAll(t,
		"||example.com^$csp=script-src 'none'",
		"||example.com^$csp=frame-src 'none'",
	), blocker.Options{LoadNetworkFilters: true})

	req, err := request.FromURLs(hostutil.Default, "https://example.com/", "", "document")
	require.NoError(t, err)

	directives := b.CSPDirectives(req)
	assert.Contains(t, directives, "script-src 'none'")
	assert.Contains(t, directives, "frame-src 'none'")
}

func TestBlocker_cspSuppressedByEmptyExceptionDirective(t *testing.T) {
	t.Parallel()

	b := blocker.New(parseAll(t,
		"||example.com^$csp=script-src 'none'",
		"@@||example.com^$csp",
	), blocker.Options{LoadNetworkFilters: true})

	req, err := request.FromURLs(hostutil.Default, "https://example.com/", "", "document")
	require.NoError(t, err)

	assert.Empty(t, b.CSPDirectives(req))
}

func TestBlocker_badfilterCancelsRule(t *testing.T) {
	t.Parallel()

	b := blocker.New(parseAll(t, "||ads.example.com^", "||ads.example.com^$badfilter"), blocker.Options{LoadNetworkFilters: true})

	res := b.Check(mustReq(t, "https://ads.example.com/x"))
	assert.False(t, res.Matched)
}

func TestBlocker_tagGating(t *testing.T) {
	t.Parallel()

	b := blocker.New(parseAll(t, "adv$tag=stuff"), blocker.Options{LoadNetworkFilters: true})

	assert.False(t, b.Check(mustReq(t, "https://x.com/adv")).Matched)

	b.EnableTags("stuff")
	assert.True(t, b.Check(mustReq(t, "https://x.com/adv")).Matched)

	b.DisableTags("stuff")
	assert.False(t, b.Check(mustReq(t, "https://x.com/adv")).Matched)
}

func TestBlocker_loadNetworkFiltersDisabled(t *testing.T) {
	t.Parallel()

	b := blocker.New(parseAll(t, "||ads.example.com^"), blocker.Options{LoadNetworkFilters: false})

	assert.False(t, b.Check(mustReq(t, "https://ads.example.com/x")).Matched)
}
