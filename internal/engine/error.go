package engine

import "github.com/AdguardTeam/golibs/errors"

// errUnparseableHost is returned, wrapped with the offending line, when a
// hosts-style source contains an entry [rules.ParseHostsStyle] rejects.
const errUnparseableHost errors.Error = "unparseable hosts-style entry"
