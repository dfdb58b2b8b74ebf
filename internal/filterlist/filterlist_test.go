package filterlist_test

import (
	"testing"

	"github.com/blockwall/netfilter/internal/filterlist"
	"github.com/blockwall/netfilter/internal/hostutil"
	"github.com/blockwall/netfilter/internal/request"
	"github.com/blockwall/netfilter/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noTags struct{}

func (noTags) Contains(string) bool { return false }

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

func TestList_Check_picksMatchingFilter(t *testing.T) {
	t.Parallel()

	filters := parseAll(t, "||ads.example.com^", "||tracker.example.com^", "foo")
	l := filterlist.New(filters)

	f := l.Check(mustReq(t, "https://ads.example.com/banner.js"), noTags{}, nil)
	require.NotNil(t, f)
	assert.Equal(t, "ads.example.com", f.Hostname)

	assert.Nil(t, l.Check(mustReq(t, "https://unrelated.com/page"), noTags{}, nil))
}

func TestList_CheckAll_returnsEveryMatch(t *testing.T) {
	t.Parallel()

	filters := parseAll(t, "||example.com^$csp=script-src 'none'", "||example.com^$csp=frame-src 'none'")
	l := filterlist.New(filters)

	matches := l.CheckAll(mustReq(t, "https://example.com/"), noTags{}, nil)
	assert.Len(t, matches, 2)
}

func TestList_Check_respectsActiveTags(t *testing.T) {
	t.Parallel()

	filters := parseAll(t, "adv$tag=stuff")
	l := filterlist.New(filters)

	assert.Nil(t, l.Check(mustReq(t, "https://x.com/adv"), noTags{}, nil))
}

func TestList_Exists(t *testing.T) {
	t.Parallel()

	filters := parseAll(t, "||foo.com^")
	l := filterlist.New(filters)

	assert.True(t, l.Exists(filters[0]))

	other, err := rules.Parse("||bar.com^", false)
	require.NoError(t, err)
	assert.False(t, l.Exists(other))
}

func TestList_Add(t *testing.T) {
	t.Parallel()

	l := filterlist.New(nil)

	f, err := rules.Parse("||baz.com^", false)
	require.NoError(t, err)
	l.Add(f)

	assert.True(t, l.Exists(f))
	assert.NotNil(t, l.Check(mustReq(t, "https://baz.com/x"), noTags{}, nil))
}
