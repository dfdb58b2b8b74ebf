// Package rules implements the two-stage filter syntax parser and the
// immutable [NetworkFilter] record it produces.
package rules

import (
	"strconv"
	"strings"

	"github.com/blockwall/netfilter/internal/hashutil"
	"github.com/blockwall/netfilter/internal/hostutil"
)

// abstractFilter is the stage-1 decomposition of a rule line: exception
// flag, anchors, options, and the pattern remaining in between.
type abstractFilter struct {
	isException    bool
	leftAnchor     bool
	hostnameAnchor bool
	rightAnchor    bool
	pattern        string
	options        []string
}

// parseAbstract performs stage 1: splitting the raw line into pattern and
// option text.
func parseAbstract(line string) *abstractFilter {
	af := &abstractFilter{}

	if strings.HasPrefix(line, "@@") {
		af.isException = true
		line = line[2:]
	}

	body, optsStr, hasOpts := splitOptionsSegment(line)
	if hasOpts && optsStr != "" {
		af.options = strings.Split(optsStr, ",")
	}

	switch {
	case strings.HasPrefix(body, "||"):
		af.hostnameAnchor = true
		body = body[2:]
	case strings.HasPrefix(body, "|"):
		af.leftAnchor = true
		body = body[1:]
	}

	if len(body) > 0 && strings.HasSuffix(body, "|") {
		af.rightAnchor = true
		body = body[:len(body)-1]
	}

	af.pattern = body

	return af
}

// splitOptionsSegment finds the last unescaped '$' in line and splits it
// into the pattern-bearing head and the raw options tail.
func splitOptionsSegment(line string) (head, opts string, found bool) {
	for i := len(line) - 1; i >= 0; i-- {
		if line[i] != '$' {
			continue
		}

		if i > 0 && line[i-1] == '\\' {
			continue
		}

		return line[:i], line[i+1:], true
	}

	return line, "", false
}

// option is one parsed `[~]name[=value]` token.
type option struct {
	name     string
	value    string
	negated  bool
	hasValue bool
}

func parseOption(raw string) option {
	o := option{}

	if strings.HasPrefix(raw, "~") {
		o.negated = true
		raw = raw[1:]
	}

	if i := strings.IndexByte(raw, '='); i >= 0 {
		o.name = raw[:i]
		o.value = raw[i+1:]
		o.hasValue = true
	} else {
		o.name = raw
	}

	return o
}

// contentTypeMasks maps every recognized content-type option name,
// including aliases, to its mask bit.
var contentTypeMasks = map[string]Mask{
	"font":              FromFont,
	"image":             FromImage,
	"imageset":          FromImage,
	"media":             FromMedia,
	"object":            FromObject,
	"object-subrequest": FromObject,
	"other":             FromOther,
	"ping":              FromPing,
	"beacon":            FromPing,
	"script":            FromScript,
	"stylesheet":        FromStylesheet,
	"css":               FromStylesheet,
	"subdocument":       FromSubdocument,
	"frame":             FromSubdocument,
	"xmlhttprequest":    FromXMLHTTPRequest,
	"xhr":               FromXMLHTTPRequest,
	"websocket":         FromWebsocket,
}

// Parse lowers one rule line through both parse stages into an immutable
// [NetworkFilter]. debug, when true, retains the original line in RawLine
// for diagnostics and optimizer fusion traceability.
func Parse(line string, debug bool) (*NetworkFilter, error) {
	return ParseWithResolver(hostutil.Default, line, debug)
}

// ParseWithResolver is [Parse] with an explicit host-parsing collaborator,
// for callers that need a non-default punycode/domain resolver (tests,
// sandboxes).
func ParseWithResolver(resolver hostutil.Resolver, line string, debug bool) (*NetworkFilter, error) {
	raw := strings.TrimSpace(line)
	af := parseAbstract(raw)

	f := &NetworkFilter{Mask: DefaultOptions}
	if af.isException {
		f.Mask |= IsException
	}

	var posTypes, negTypes Mask

	var includedDomains, excludedDomains []hashutil.Hash

	for _, rawOpt := range af.options {
		rawOpt = strings.TrimSpace(rawOpt)
		if rawOpt == "" {
			continue
		}

		opt := parseOption(rawOpt)

		if bit, ok := contentTypeMasks[opt.name]; ok {
			if opt.negated {
				negTypes |= bit
			} else {
				posTypes |= bit
			}

			continue
		}

		switch opt.name {
		case "document":
			f.Mask |= FromDocument
		case "domain", "from":
			inc, exc, err := parseDomainOption(opt.value)
			if err != nil {
				return nil, err
			}

			includedDomains = append(includedDomains, inc...)
			excludedDomains = append(excludedDomains, exc...)
		case "badfilter":
			if opt.negated {
				return nil, ErrNegatedBadFilter
			}

			f.Mask |= BadFilter
		case "important":
			if opt.negated {
				return nil, ErrNegatedImportant
			}

			f.Mask |= IsImportant
		case "match-case":
			if opt.negated {
				return nil, ErrNegatedOptionMatchCase
			}

			f.Mask |= MatchCase
		case "third-party", "3p":
			if opt.negated {
				f.Mask &^= ThirdParty
			} else {
				f.Mask &^= FirstParty
			}
		case "first-party", "1p":
			if opt.negated {
				f.Mask &^= FirstParty
			} else {
				f.Mask &^= ThirdParty
			}
		case "csp":
			if posTypes != 0 || negTypes != 0 {
				return nil, ErrCspWithContentType
			}

			f.Mask |= IsCSP | FromDocument
			f.CSP = opt.value
		case "redirect":
			if opt.negated {
				return nil, ErrNegatedRedirection
			}

			if opt.value == "" {
				return nil, ErrEmptyRedirection
			}

			f.Modifier = &Modifier{Kind: ModifierRedirect, Value: opt.value}
		case "redirect-rule":
			if opt.negated {
				return nil, ErrNegatedRedirection
			}

			if opt.value == "" {
				return nil, ErrEmptyRedirection
			}

			name, priority, err := parseRedirectRulePriority(opt.value)
			if err != nil {
				return nil, err
			}

			f.Modifier = &Modifier{Kind: ModifierRedirectRule, Value: name, Priority: priority}
		case "removeparam":
			f.Modifier = &Modifier{Kind: ModifierRemoveParam, Value: opt.value}
		case "generichide", "ghide":
			if opt.negated {
				return nil, ErrNegatedGenericHide
			}

			if !af.isException {
				return nil, ErrGenericHideWithoutExc
			}

			f.Mask |= GenericHide
		case "tag":
			if opt.negated {
				return nil, ErrNegatedTag
			}

			f.Tag = opt.value
		default:
			return nil, ErrUnrecognisedOption
		}
	}

	if f.Mask.Has(MatchCase) {
		if !strings.ContainsAny(af.pattern, "*^") && !isCompleteRegexPattern(af.pattern) {
			return nil, ErrNoRegex
		}
	}

	switch {
	case negTypes != 0:
		f.Mask |= FromNetworkTypes
		f.Mask &^= negTypes
	case posTypes != 0:
		f.Mask &^= FromNetworkTypes
		f.Mask |= posTypes
	}

	includedDomains = sortDedupHashes(includedDomains)
	excludedDomains = sortDedupHashes(excludedDomains)
	f.IncludedDomains = includedDomains
	f.ExcludedDomains = excludedDomains
	f.includedDomainsUnion = orFold(includedDomains)
	f.excludedDomainsUnion = orFold(excludedDomains)

	if af.leftAnchor {
		f.Mask |= IsLeftAnchor
	}

	if af.rightAnchor {
		f.Mask |= IsRightAnchor
	}

	pattern := af.pattern

	if af.hostnameAnchor {
		f.Mask |= IsHostnameAnchor

		if idx := strings.IndexAny(pattern, "/^*"); idx >= 0 {
			f.Hostname = pattern[:idx]
			rest := pattern[idx:]

			if rest == "^" {
				pattern = ""
				f.Mask |= IsRightAnchor
			} else {
				pattern = rest
				if strings.Contains(pattern, "/") {
					f.Mask |= IsLeftAnchor
				}

				if strings.HasPrefix(pattern, "*") {
					f.Mask |= IsHostnameRegex
				}
			}
		} else {
			f.Hostname = pattern
			pattern = ""
		}
	} else if af.leftAnchor {
		switch pattern {
		case "ws://":
			f.Mask &^= IsLeftAnchor
			pattern = ""
		case "http://":
			f.Mask &^= IsLeftAnchor | FromHTTPS
			pattern = ""
		case "https://":
			f.Mask &^= IsLeftAnchor | FromHTTP
			pattern = ""
		case "http*://":
			f.Mask &^= IsLeftAnchor
			pattern = ""
		}
	}

	pattern = strings.TrimSuffix(pattern, "*")
	if !af.hostnameAnchor && strings.HasPrefix(pattern, "*") {
		pattern = pattern[1:]
		f.Mask &^= IsLeftAnchor
	}

	if !f.Mask.Has(MatchCase) {
		pattern = strings.ToLower(pattern)
	}

	if f.Hostname != "" {
		ascii, err := resolver.ToASCII(f.Hostname)
		if err != nil {
			return nil, ErrPunycode
		}

		f.Hostname = ascii
	}

	if isCompleteRegexPattern(pattern) {
		f.Mask |= IsCompleteRegex
		body := pattern[1 : len(pattern)-1]
		body = strings.ReplaceAll(body, `\/`, `/`)
		body = strings.ReplaceAll(body, `\:`, `:`)
		pattern = body
	} else if strings.ContainsAny(pattern, "*^") {
		f.Mask |= IsRegex
	}

	if pattern == "" {
		f.Filter = FilterPart{Kind: PartEmpty}
	} else {
		f.Filter = FilterPart{Kind: PartSimple, Simple: pattern}
	}

	if af.hostnameAnchor && pattern == "" && f.Mask.Has(IsRightAnchor) && posTypes == 0 && negTypes == 0 {
		f.Mask |= FromAllTypes
	}

	if debug {
		f.RawLine = raw
	}

	f.computeIDs()

	return f, nil
}

func isCompleteRegexPattern(pattern string) bool {
	return len(pattern) >= 2 && strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/")
}

// parseDomainOption splits a `$domain=a|~b|…` value into included and
// excluded hash lists.
func parseDomainOption(value string) (included, excluded []hashutil.Hash, err error) {
	for _, d := range strings.Split(value, "|") {
		if d == "" {
			continue
		}

		if strings.HasPrefix(d, "~") {
			excluded = append(excluded, hashutil.FastHash(strings.ToLower(d[1:])))
		} else {
			included = append(included, hashutil.FastHash(strings.ToLower(d)))
		}
	}

	return included, excluded, nil
}

// parseRedirectRulePriority splits a `$redirect-rule=name[:N]` value into
// its resource name and priority: the suffix after the last ':' must be an
// integer, or the value is rejected outright.
func parseRedirectRulePriority(value string) (name string, priority int, err error) {
	idx := strings.LastIndexByte(value, ':')
	if idx < 0 {
		return value, 0, nil
	}

	n, convErr := strconv.Atoi(value[idx+1:])
	if convErr != nil {
		return "", 0, ErrFilterParse
	}

	return value[:idx], n, nil
}
