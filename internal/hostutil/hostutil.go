// Package hostutil provides the host-parsing collaborator used by the
// request model and the filter parser: punycode normalization and
// registrable-domain extraction.  It is deliberately small and
// interface-first so callers (request, rules) depend on behavior, not on
// golang.org/x/net directly.
package hostutil

import (
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// Resolver converts raw hostnames into the ASCII, lowercase form the engine
// hashes and compares, and extracts a registrable domain from a hostname.
type Resolver interface {
	// ToASCII lowercases and punycode-encodes host.  It returns an error if
	// host contains characters that cannot be represented as a valid
	// hostname label.
	ToASCII(host string) (string, error)
	// Domain returns the registrable domain (eTLD+1) of host.  If host has
	// no recognized public suffix, it returns host unchanged.
	Domain(host string) string
}

// Default is the production [Resolver], backed by golang.org/x/net/idna and
// golang.org/x/net/publicsuffix.
var Default Resolver = idnaResolver{}

type idnaResolver struct{}

func (idnaResolver) ToASCII(host string) (string, error) {
	host = strings.ToLower(host)
	if isASCII(host) {
		return host, nil
	}

	return idna.Lookup.ToASCII(host)
}

func (idnaResolver) Domain(host string) string {
	dom, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}

	return dom
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}

	return true
}
