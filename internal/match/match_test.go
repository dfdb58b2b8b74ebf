package match_test

import (
	"testing"

	"github.com/blockwall/netfilter/internal/hostutil"
	"github.com/blockwall/netfilter/internal/match"
	"github.com/blockwall/netfilter/internal/request"
	"github.com/blockwall/netfilter/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRequest(t *testing.T, url string) *request.Request {
	t.Helper()

	r, err := request.FromURL(hostutil.Default, url)
	require.NoError(t, err)

	return r
}

func TestMatches_plainPattern(t *testing.T) {
	t.Parallel()

	f, err := rules.Parse("foo", false)
	require.NoError(t, err)

	assert.True(t, match.Matches(f, mustRequest(t, "https://bar.com/foo"), nil))
	assert.True(t, match.Matches(f, mustRequest(t, "https://foo.com"), nil))
	assert.False(t, match.Matches(f, mustRequest(t, "https://bar.com/baz"), nil))
}

func TestMatches_hostnameAnchor(t *testing.T) {
	t.Parallel()

	f, err := rules.Parse("||foo.baz.com^", false)
	require.NoError(t, err)

	assert.True(t, match.Matches(f, mustRequest(t, "https://foo.baz.com/bar"), nil))
	assert.False(t, match.Matches(f, mustRequest(t, "https://foo.baz/bar"), nil))
}

func TestIsAnchoredByHostname(t *testing.T) {
	t.Parallel()

	assert.True(t, match.IsAnchoredByHostname("", "bar.com", false))
	assert.True(t, match.IsAnchoredByHostname("bar.com", "bar.com", false))
	assert.False(t, match.IsAnchoredByHostname("a.bar.com", "bar.com", false))
	assert.True(t, match.IsAnchoredByHostname("baz", "coo.baz.com", false))
	assert.False(t, match.IsAnchoredByHostname("foo.baz", "foo-bar.baz.com", false))
}
