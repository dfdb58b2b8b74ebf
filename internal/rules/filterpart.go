package rules

// PartKind distinguishes the three shapes a filter's pattern can take.
type PartKind uint8

const (
	// PartEmpty means the filter has no pattern at all (matches
	// everything the rest of the mask allows).
	PartEmpty PartKind = iota
	// PartSimple wraps a single pattern string.
	PartSimple
	// PartAnyOf wraps a set of alternative pattern strings, produced only
	// by optimizer fusion.
	PartAnyOf
)

// FilterPart is a filter's pattern: empty, a single string, or (after
// fusion) a set of alternatives matched as a disjunction.
type FilterPart struct {
	Kind   PartKind
	Simple string
	AnyOf  []string
}

// IsEmpty reports whether the part carries no pattern text.
func (p FilterPart) IsEmpty() bool { return p.Kind == PartEmpty }

// StringView returns the single pattern string for [PartSimple], or "" for
// the other kinds: only a simple pattern contributes text when deriving
// tokens and filter IDs.
func (p FilterPart) StringView() string {
	if p.Kind == PartSimple {
		return p.Simple
	}

	return ""
}
