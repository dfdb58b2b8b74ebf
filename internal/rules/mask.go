package rules

// Mask is the bitset of resource-type, party, anchor, and behavior flags
// carried by every [NetworkFilter] and every request type lookup. Bit
// positions are part of the serialized format and must never be
// renumbered.
type Mask uint32

const (
	FromImage Mask = 1 << iota
	FromMedia
	FromObject
	FromOther
	FromPing
	FromScript
	FromStylesheet
	FromSubdocument
	FromWebsocket
	FromXMLHTTPRequest
	FromFont
	FromHTTP
	FromHTTPS
	IsImportant
	MatchCase
	fuzzyMatchUnused
	ThirdParty
	FirstParty
	IsRegex
	IsLeftAnchor
	IsRightAnchor
	IsHostnameAnchor
	IsException
	IsCSP
	IsCompleteRegex
	Unmatched
	explicitCancelUnused
	BadFilter
	IsHostnameRegex
	FromDocument
	GenericHide
)

// FromNetworkTypes is the OR of every FROM_* bit except HTTP/HTTPS/DOCUMENT:
// the resource-type bits implied when a rule negates one type but leaves
// the rest unspecified.
const FromNetworkTypes = FromFont | FromImage | FromMedia | FromObject | FromOther |
	FromPing | FromScript | FromStylesheet | FromSubdocument | FromWebsocket |
	FromXMLHTTPRequest

// FromAllTypes additionally includes FromDocument, for rules (such as the
// implicit hosts-style `||host^`) that should match every resource type
// including top-level navigations.
const FromAllTypes = FromNetworkTypes | FromDocument

// DefaultOptions is the mask a filter starts from before any option is
// applied: every network resource type, both schemes, both party bits.
const DefaultOptions = FromNetworkTypes | FromHTTP | FromHTTPS | ThirdParty | FirstParty

// None is the empty mask. Checking a filter against None always matches;
// callers must never compare a live mask against None expecting rejection.
const None Mask = 0

// Has reports whether m has every bit of other set.
func (m Mask) Has(other Mask) bool { return m&other == other }

// Any reports whether m has at least one bit of other set.
func (m Mask) Any(other Mask) bool { return m&other != 0 }

// Set returns m with other's bits forced to v.
func (m Mask) Set(other Mask, v bool) Mask {
	if v {
		return m | other
	}

	return m &^ other
}
