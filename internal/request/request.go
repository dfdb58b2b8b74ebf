// Package request models a single network request as the matcher sees it:
// a lowercased URL, its hostname and resource type folded into the same
// [rules.Mask] bit space as filters, and the hash chain of the source
// document's hostname labels used for $domain filtering.
package request

import (
	"net/url"
	"strings"

	"github.com/blockwall/netfilter/internal/hashutil"
	"github.com/blockwall/netfilter/internal/hostutil"
	"github.com/blockwall/netfilter/internal/rules"
)

// Type names the kind of resource a request is fetching.
type Type string

// Recognized resource-type tokens. Anything else maps to [TypeOther].
const (
	TypeBeacon         Type = "beacon"
	TypeCSPReport      Type = "csp_report"
	TypeDocument       Type = "document"
	TypeFont           Type = "font"
	TypeImage          Type = "image"
	TypeMedia          Type = "media"
	TypeObject         Type = "object"
	TypeOther          Type = "other"
	TypePing           Type = "ping"
	TypeScript         Type = "script"
	TypeStylesheet     Type = "stylesheet"
	TypeSubdocument    Type = "subdocument"
	TypeWebsocket      Type = "websocket"
	TypeXMLHTTPRequest Type = "xmlhttprequest"
)

// typeAliases maps every raw string the host passes to a canonical [Type].
var typeAliases = map[string]Type{
	"beacon":            TypeBeacon,
	"csp_report":        TypeCSPReport,
	"document":          TypeDocument,
	"main_frame":        TypeDocument,
	"font":              TypeFont,
	"image":             TypeImage,
	"imageset":          TypeImage,
	"media":             TypeMedia,
	"object":            TypeObject,
	"object_subrequest": TypeObject,
	"ping":              TypePing,
	"script":            TypeScript,
	"stylesheet":        TypeStylesheet,
	"sub_frame":         TypeSubdocument,
	"subdocument":       TypeSubdocument,
	"websocket":         TypeWebsocket,
	"xhr":               TypeXMLHTTPRequest,
	"xmlhttprequest":    TypeXMLHTTPRequest,
}

// ParseType resolves a raw resource-type token to its canonical [Type],
// defaulting to [TypeOther] for anything unrecognized.
func ParseType(raw string) Type {
	if t, ok := typeAliases[raw]; ok {
		return t
	}

	return TypeOther
}

// typeMasks maps a canonical [Type] to the [rules.Mask] bit a filter must
// carry to match it. [TypeCSPReport] maps to [rules.Unmatched]: CSP reports
// are never matchable network requests in this engine.
var typeMasks = map[Type]rules.Mask{
	TypeBeacon:         rules.FromPing,
	TypeCSPReport:      rules.Unmatched,
	TypeDocument:       rules.FromDocument,
	TypeFont:           rules.FromFont,
	TypeImage:          rules.FromImage,
	TypeMedia:          rules.FromMedia,
	TypeObject:         rules.FromObject,
	TypeOther:          rules.FromOther,
	TypePing:           rules.FromPing,
	TypeScript:         rules.FromScript,
	TypeStylesheet:     rules.FromStylesheet,
	TypeSubdocument:    rules.FromSubdocument,
	TypeWebsocket:      rules.FromWebsocket,
	TypeXMLHTTPRequest: rules.FromXMLHTTPRequest,
}

// TypeMask returns the filter-matchable mask bit for t.
func TypeMask(t Type) rules.Mask {
	if m, ok := typeMasks[t]; ok {
		return m
	}

	return rules.FromOther
}

// Request is one network request to be checked against a built engine.
type Request struct {
	// URL is the full, ASCII-lowercased request URL.
	URL string
	// Mask carries the resource-type bit, scheme bits, and party bits in
	// the same space a [rules.NetworkFilter]'s option mask occupies.
	Mask rules.Mask

	hostnameStart int
	hostnameEnd   int

	// SourceHostnameHashes is the hash of the full source hostname
	// followed by the hash of each proper dotted suffix down to (and
	// including) the registrable domain. Nil when the source hostname is
	// empty.
	SourceHostnameHashes []hashutil.Hash
	// SourceHostnameIntersection is the AND-fold of SourceHostnameHashes,
	// used to short-circuit a filter's included-domain union check.
	SourceHostnameIntersection hashutil.Hash
}

// Hostname returns the request's hostname slice of URL.
func (r *Request) Hostname() string {
	return r.URL[r.hostnameStart:r.hostnameEnd]
}

// URLAfterHostname returns the portion of URL following the hostname,
// starting at the first '/', '?', or ':' after it.
func (r *Request) URLAfterHostname() string {
	return r.URL[r.hostnameEnd:]
}

// IsSupported reports whether the request's scheme was recognized. Filters
// never match an unsupported request.
func (r *Request) IsSupported() bool {
	return !r.Mask.Has(rules.Unmatched)
}

// Tokens returns the request's URL tokens followed by the fallback zero
// token, reusing dst's backing array when possible.
func (r *Request) Tokens(dst []hashutil.Hash) []hashutil.Hash {
	dst = hashutil.AppendTokenize(dst[:0], r.URL)
	return append(dst, 0)
}

// New builds a Request from already-parsed components, mirroring the
// collaborator contract: URL parsing (scheme, hostname,
// domain) is assumed to have already happened.
//
// rawType is a resource-type token, schema is the URL's scheme with no
// trailing colon or slashes (empty string is treated as "https"),
// hostname/domain describe the request URL, and sourceHostname/sourceDomain
// describe the source document, or are empty if unknown.
func New(rawType, rawURL, schema, hostname, domain, sourceHostname, sourceDomain string) *Request {
	var thirdParty *bool
	if sourceDomain != "" {
		tp := sourceDomain != domain
		thirdParty = &tp
	}

	hostnameEnd := strings.Index(rawURL, hostname)
	if hostnameEnd < 0 {
		hostnameEnd = len(rawURL)
	} else {
		hostnameEnd += len(hostname)
	}

	return fromDetailed(rawType, rawURL, schema, hostname, sourceHostname, sourceDomain, thirdParty, hostnameEnd)
}

func fromDetailed(
	rawType, rawURL, schema, hostname, sourceHostname, sourceDomain string,
	thirdParty *bool,
	hostnameEnd int,
) *Request {
	mask := rules.None
	if thirdParty != nil {
		if *thirdParty {
			mask |= rules.ThirdParty
		} else {
			mask |= rules.FirstParty
		}
	}

	typeMask := TypeMask(ParseType(rawType))
	switch schema {
	case "":
		// No ':' was found in the URL; treat it as HTTPS.
		mask |= rules.FromHTTPS | typeMask
	case "http":
		mask |= rules.FromHTTP | typeMask
	case "https":
		mask |= rules.FromHTTPS | typeMask
	case "ws", "wss":
		mask |= rules.FromWebsocket
	default:
		mask |= rules.Unmatched
	}

	var hashes []hashutil.Hash
	var intersection hashutil.Hash
	if sourceHostname != "" {
		hashes = make([]hashutil.Hash, 0, 4)
		hashes = append(hashes, hashutil.FastHash(sourceHostname))

		cut := len(sourceHostname) - len(sourceDomain)
		for i, c := range sourceHostname[:max(cut, 0)] {
			if c == '.' {
				hashes = append(hashes, hashutil.FastHash(sourceHostname[i+1:]))
			}
		}

		intersection = hashutil.Max
		for _, h := range hashes {
			intersection &= h
		}
	}

	hostnameStart := hostnameEnd - len(hostname)

	return &Request{
		URL:                        rawURL,
		Mask:                       mask,
		hostnameStart:              hostnameStart,
		hostnameEnd:                hostnameEnd,
		SourceHostnameHashes:       hashes,
		SourceHostnameIntersection: intersection,
	}
}

// FromURLs builds a Request by parsing rawURL and sourceURL with the
// given [hostutil.Resolver]. It is the convenience path used by tests and
// simple callers that have not already extracted hostname/domain.
func FromURLs(resolver hostutil.Resolver, rawURL, sourceURL, rawType string) (*Request, error) {
	u, hostname, schema, err := parseURL(resolver, rawURL)
	if err != nil {
		return nil, err
	}

	var sourceHostname, sourceDomain string
	if sourceURL != "" {
		_, srcHostname, _, srcErr := parseURL(resolver, sourceURL)
		if srcErr == nil {
			sourceHostname = srcHostname
			sourceDomain = resolver.Domain(srcHostname)
		}
	}

	domain := resolver.Domain(hostname)

	return New(rawType, u, schema, hostname, domain, sourceHostname, sourceDomain), nil
}

// FromURL parses rawURL with an empty source URL and default resource type,
// for use in tests exercising pattern matching alone.
func FromURL(resolver hostutil.Resolver, rawURL string) (*Request, error) {
	return FromURLs(resolver, rawURL, "", "")
}

func parseURL(resolver hostutil.Resolver, raw string) (normalized, hostname, schema string, err error) {
	lower := strings.ToLower(raw)

	u, err := url.Parse(lower)
	if err != nil || u.Host == "" {
		return "", "", "", errBadHostname
	}

	ascii, err := resolver.ToASCII(u.Hostname())
	if err != nil {
		return "", "", "", err
	}

	return lower, ascii, u.Scheme, nil
}

// errBadHostname is returned when the request URL's hostname could not be
// extracted: "Reject URLs for which the hostname cannot be
// parsed."
var errBadHostname = hostnameParseError("request: hostname could not be parsed")

type hostnameParseError string

func (e hostnameParseError) Error() string { return string(e) }
