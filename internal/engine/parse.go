package engine

import (
	"strings"

	"github.com/blockwall/netfilter/internal/rules"
)

// filterKind classifies one line of rule text before it is lowered to a
// [rules.NetworkFilter], per the cosmetic/network partition at the facade
// layer.
type filterKind uint8

const (
	filterNetwork filterKind = iota
	filterCosmetic
	filterUnsupported
	filterEmpty
)

// detectFilterKind classifies line the same way the facade's upstream rule
// sources do: comments and Adblock header lines are unsupported, hostname-
// or exception-anchored lines are always network filters, and anything
// containing a cosmetic `#`-family separator not otherwise excluded is a
// cosmetic filter. Everything else is a network filter.
func detectFilterKind(line string) filterKind {
	if line == "" {
		return filterEmpty
	}

	if len(line) == 1 ||
		strings.HasPrefix(line, "!") ||
		(strings.HasPrefix(line, "#") && len(line) > 1 && isSpace(line[1])) ||
		strings.HasPrefix(line, "[Adblock") {
		return filterUnsupported
	}

	if strings.HasPrefix(line, "|") || strings.HasPrefix(line, "@@|") {
		return filterNetwork
	}

	if strings.Contains(line, "$$") {
		return filterUnsupported
	}

	if i := strings.IndexByte(line, '#'); i >= 0 {
		rest := line[i+1:]
		switch {
		case strings.HasPrefix(rest, "@$#"), strings.HasPrefix(rest, "@%#"),
			strings.HasPrefix(rest, "%#"), strings.HasPrefix(rest, "$#"),
			strings.HasPrefix(rest, "?#"):
			return filterUnsupported
		case strings.HasPrefix(rest, "#"), strings.HasPrefix(rest, "@#"):
			return filterCosmetic
		}
	}

	return filterNetwork
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' }

// ParseResult is the outcome of lowering a batch of rule-text lines into
// network filters, per the facade's "network count and discarded cosmetic
// count" contract.
type ParseResult struct {
	Filters       []*rules.NetworkFilter
	NetworkCount  int
	CosmeticCount int
	Errors        []LineError
}

// LineError pairs a parse failure with the 1-based line number and source
// text it came from, so a caller can report which rule in which source
// failed without re-scanning the input.
type LineError struct {
	Line int
	Text string
	Err  error
}

// ParseRules lowers every line of text into network filters, skipping
// comments and discarding (but counting) cosmetic-filter lines, since
// cosmetic filter handling is out of scope here. A per-line parse failure
// is collected into Errors rather than aborting the batch, matching the
// source corpus's per-line error accumulation.
func ParseRules(text string, debug bool) ParseResult {
	var res ParseResult

	lineNo := 0
	for _, raw := range strings.Split(text, "\n") {
		lineNo++

		line := strings.TrimSpace(raw)
		switch detectFilterKind(line) {
		case filterEmpty, filterUnsupported:
			continue
		case filterCosmetic:
			res.CosmeticCount++

			continue
		}

		f, err := rules.Parse(line, debug)
		if err != nil {
			res.Errors = append(res.Errors, LineError{Line: lineNo, Text: line, Err: err})

			continue
		}

		res.Filters = append(res.Filters, f)
		res.NetworkCount++
	}

	return res
}

// ParseHostsStyleRules lowers every line of a hosts-file-style source
// (address column already stripped by the caller, one hostname per line)
// into network filters via [rules.ParseHostsStyle].
func ParseHostsStyleRules(hosts []string, debug bool) ParseResult {
	var res ParseResult

	for i, h := range hosts {
		h = strings.TrimSpace(h)
		if h == "" || strings.HasPrefix(h, "#") {
			continue
		}

		line, ok := rules.ParseHostsStyle(h)
		if !ok {
			res.Errors = append(res.Errors, LineError{Line: i + 1, Text: h, Err: errUnparseableHost})

			continue
		}

		f, err := rules.Parse(line, debug)
		if err != nil {
			res.Errors = append(res.Errors, LineError{Line: i + 1, Text: h, Err: err})

			continue
		}

		res.Filters = append(res.Filters, f)
		res.NetworkCount++
	}

	return res
}
