package hashutil_test

import (
	"testing"

	"github.com/blockwall/netfilter/internal/hashutil"
	"github.com/stretchr/testify/assert"
)

func TestFastHash_deterministic(t *testing.T) {
	t.Parallel()

	assert.Equal(t, hashutil.FastHash("example.com"), hashutil.FastHash("example.com"))
	assert.NotEqual(t, hashutil.FastHash("example.com"), hashutil.FastHash("example.org"))
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		in   string
		want []string
	}{{
		name: "plain_words",
		in:   "https://subdomain.example.com/ad",
		want: []string{"https", "subdomain", "example", "com", "ad"},
	}, {
		name: "short_runs_dropped",
		in:   "a/bb/c",
		want: []string{"bb"},
	}, {
		name: "percent_is_token_char",
		in:   "%20foo",
		want: []string{"%20foo"},
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			want := make([]hashutil.Hash, len(tc.want))
			for i, w := range tc.want {
				want[i] = hashutil.FastHash(w)
			}

			assert.Equal(t, want, hashutil.Tokenize(tc.in))
		})
	}
}

func TestTokenizeFilter_skipBoundaries(t *testing.T) {
	t.Parallel()

	full := hashutil.TokenizeFilter("foo/bar", false, false)
	assert.Len(t, full, 2)

	skipFirst := hashutil.TokenizeFilter("foo/bar", true, false)
	assert.Equal(t, []hashutil.Hash{hashutil.FastHash("bar")}, skipFirst)

	skipLast := hashutil.TokenizeFilter("foo/bar", false, true)
	assert.Equal(t, []hashutil.Hash{hashutil.FastHash("foo")}, skipLast)
}

func TestBadTokens(t *testing.T) {
	t.Parallel()

	bad := hashutil.BadTokens()
	assert.ElementsMatch(t, bad, []hashutil.Hash{
		hashutil.FastHash("http"),
		hashutil.FastHash("https"),
		hashutil.FastHash("www"),
		hashutil.FastHash("com"),
	})
}

func BenchmarkTokenize(b *testing.B) {
	const url = "https://subdomain.example.com/path/to/resource?query=1&fbclid=2"

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = hashutil.Tokenize(url)
	}
}
