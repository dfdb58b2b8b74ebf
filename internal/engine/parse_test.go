package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectFilterKind(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		line string
		want filterKind
	}{{
		name: "empty",
		line: "",
		want: filterEmpty,
	}, {
		name: "comment_bang",
		line: "! this is a comment",
		want: filterUnsupported,
	}, {
		name: "adblock_header",
		line: "[Adblock Plus 2.0]",
		want: filterUnsupported,
	}, {
		name: "hash_comment",
		line: "# a hosts-file comment",
		want: filterUnsupported,
	}, {
		name: "network_anchor",
		line: "||ads.example.com^",
		want: filterNetwork,
	}, {
		name: "network_exception_anchor",
		line: "@@||ads.example.com^",
		want: filterNetwork,
	}, {
		name: "adguard_dollar_dollar",
		line: "example.com$$div[id=ad]",
		want: filterUnsupported,
	}, {
		name: "cosmetic_hide",
		line: "example.com##.ad-banner",
		want: filterCosmetic,
	}, {
		name: "cosmetic_exception",
		line: "example.com#@#.ad-banner",
		want: filterCosmetic,
	}, {
		name: "adguard_css",
		line: "example.com#$#.ad-banner { display: none }",
		want: filterUnsupported,
	}, {
		name: "adguard_css_exception",
		line: "example.com#@$#.ad-banner { display: none }",
		want: filterUnsupported,
	}, {
		name: "scriptlet",
		line: "example.com#%#//scriptlet('foo')",
		want: filterUnsupported,
	}, {
		name: "scriptlet_exception",
		line: "example.com#@%#//scriptlet('foo')",
		want: filterUnsupported,
	}, {
		name: "html_filtering",
		line: "example.com$$script[data-src=\"banner\"]",
		want: filterUnsupported,
	}, {
		name: "plain_domain",
		line: "ads.example.com",
		want: filterNetwork,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, detectFilterKind(tc.line))
		})
	}
}

func TestParseRules(t *testing.T) {
	t.Parallel()

	text := `! a comment
||ads.example.com^
example.com##.ad-banner

@@||safe.example.com^
not a valid$$$ rule`

	res := ParseRules(text, false)
	assert.Len(t, res.Filters, 2)
	assert.Equal(t, 2, res.NetworkCount)
	assert.Equal(t, 1, res.CosmeticCount)
}

func TestParseHostsStyleRules(t *testing.T) {
	t.Parallel()

	hosts := []string{
		"# a comment",
		"",
		"ads.example.com",
		"tracker.example.net",
		"-bad-host-",
	}

	res := ParseHostsStyleRules(hosts, false)
	assert.Len(t, res.Filters, 2)
	assert.Equal(t, 2, res.NetworkCount)
	assert.NotEmpty(t, res.Errors)
}
