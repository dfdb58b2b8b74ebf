package rules

import (
	"strings"

	"github.com/blockwall/netfilter/internal/hostutil"
)

// hostsForbidden is the character set a hosts-style entry may never
// contain.
const hostsForbidden = "/^*!?$&(){}[]+=~`|@,'\"><:; \t"

// ParseHostsStyle converts a single hosts-file-style entry (a bare
// hostname, as from a `0.0.0.0 ads.example.com` line with the address
// column already stripped) into the equivalent `||host^` rule text, or
// reports it as unparseable.
func ParseHostsStyle(host string) (string, bool) {
	return ParseHostsStyleWithResolver(hostutil.Default, host)
}

// ParseHostsStyleWithResolver is [ParseHostsStyle] with an explicit
// host-parsing collaborator.
func ParseHostsStyleWithResolver(resolver hostutil.Resolver, host string) (string, bool) {
	host = strings.TrimSpace(host)
	if host == "" || strings.ContainsAny(host, hostsForbidden) {
		return "", false
	}

	if !strings.Contains(host, ".") || strings.HasSuffix(host, ".") {
		return "", false
	}

	host = strings.TrimPrefix(host, "www.")

	ascii, err := resolver.ToASCII(host)
	if err != nil {
		return "", false
	}

	return "||" + ascii + "^", true
}
