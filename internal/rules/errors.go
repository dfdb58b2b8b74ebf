package rules

import "github.com/AdguardTeam/golibs/errors"

// Parse-time error kinds. Each bad rule produces one of these; the
// list-building API (see the engine package) collects them without
// aborting the whole parse.
const (
	ErrFilterParse             errors.Error = "invalid filter syntax"
	ErrNegatedImportant        errors.Error = "negated important"
	ErrNegatedRedirection      errors.Error = "negated redirection"
	ErrEmptyRedirection        errors.Error = "empty redirection resource name"
	ErrNegatedOptionMatchCase  errors.Error = "negated match-case"
	ErrNegatedBadFilter        errors.Error = "negated badfilter"
	ErrNegatedTag              errors.Error = "negated tag"
	ErrNegatedGenericHide      errors.Error = "negated generichide"
	ErrGenericHideWithoutExc   errors.Error = "generichide without exception"
	ErrUnrecognisedOption      errors.Error = "unrecognised option"
	ErrCspWithContentType      errors.Error = "csp option combined with a content-type option"
	ErrNoRegex                 errors.Error = "match-case requires a regex pattern"
	ErrFullRegexUnsupported    errors.Error = "full regex patterns are not enabled"
	ErrRegexParsing            errors.Error = "regex pattern failed to parse"
	ErrPunycode                errors.Error = "hostname could not be punycode-encoded"
	ErrNoSupportedDomains      errors.Error = "domain option listed no supported domains"
	ErrRemoveparamRegexUnsupp  errors.Error = "removeparam does not support a regex value"
	ErrBadFilterAddUnsupported errors.Error = "badfilter cannot be added dynamically"
	ErrFilterExists            errors.Error = "filter already installed"
)
