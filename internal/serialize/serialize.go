// Package serialize implements the deterministic binary round-trip of a
// built engine: a versioned two-part container, written as a
// length-prefixed encoding of a fixed field order and then lz4-compressed.
package serialize

import (
	"bytes"
	"errors"
	"io"
	"sort"

	"github.com/blockwall/netfilter/internal/rules"
	"github.com/blockwall/netfilter/resources"
	"github.com/pierrec/lz4/v4"
)

// ErrDeserialization is returned, wrapped with context, for any malformed
// or truncated payload. It is the single failure kind for the whole
// decode path; the payload is unrecoverable once this is returned.
var ErrDeserialization = errors.New("serialize: deserialization failed")

// formatVersion is bumped whenever Part 1's field order changes in a way
// that is not purely additive. Part 2 does not need a version bump to grow:
// see [Part2].
const formatVersion uint8 = 1

// magic identifies the container so a non-engine file is rejected quickly
// rather than partially decoded into garbage.
var magic = [4]byte{'n', 'f', 'e', 'n'}

// Part1 is the fixed, version-stable field order: every
// one of the blocker's category populations, the optimization flag, and the
// two legacy placeholder booleans carried for wire compatibility with the
// format this was ported from (the second must always be written true).
type Part1 struct {
	CSP           []*rules.NetworkFilter
	Exceptions    []*rules.NetworkFilter
	Importants    []*rules.NetworkFilter
	Redirects     []*rules.NetworkFilter
	FiltersTagged []*rules.NetworkFilter
	Filters       []*rules.NetworkFilter
	TaggedAll     []*rules.NetworkFilter

	// Placeholder occupies the wire position of a flag this format's
	// predecessor carried; nothing in this engine reads or writes it
	// meaningfully, but the position must stay for byte-layout stability.
	Placeholder         bool
	EnableOptimizations bool

	// legacyUnused and legacyUnused2 exist purely for wire compatibility;
	// legacyUnused2 must always be true.
	legacyUnused  bool
	legacyUnused2 bool

	// Resources is the redirect-resource catalog, round-tripped alongside
	// the filter population. This package never interprets a resource's
	// content type or body beyond copying the bytes; resolving a name to a
	// body at match time is the [resources.Store] interface's job.
	Resources resources.Catalog
}

// Part2 is forward-compatible: fields here may grow in future
// versions, and a reader built before a field existed must default it to
// its zero value rather than fail. RemoveParams is the one field this
// engine currently stores there, since it was not present in the format
// this container's shape was ported from.
type Part2 struct {
	RemoveParams []*rules.NetworkFilter
	EnabledTags  []string
}

// Container is the full decoded payload.
type Container struct {
	Part1
	Part2
}

// Write serializes c to w as the versioned, lz4-compressed container.
func Write(w io.Writer, c Container) error {
	var buf bytes.Buffer
	buf.Write(magic[:])
	buf.WriteByte(formatVersion)

	lzw := lz4.NewWriter(&buf)
	ww := &writer{w: lzw}

	writePart1(ww, c.Part1)
	writePart2(ww, c.Part2)

	if ww.err != nil {
		return ww.err
	}

	if err := lzw.Close(); err != nil {
		return err
	}

	_, err := w.Write(buf.Bytes())

	return err
}

// Read decodes a [Container] previously produced by [Write]. Part 2 fields
// absent because the payload predates them are left at their zero value.
func Read(r io.Reader) (Container, error) {
	var hdr [5]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Container{}, errors.Join(ErrDeserialization, err)
	}

	if !bytes.Equal(hdr[:4], magic[:]) {
		return Container{}, errors.Join(ErrDeserialization, errors.New("bad magic"))
	}

	if hdr[4] != formatVersion {
		return Container{}, errors.Join(ErrDeserialization, errors.New("unsupported format version"))
	}

	lzr := lz4.NewReader(r)
	rr := &reader{r: lzr}

	part1, err := readPart1(rr)
	if err != nil {
		return Container{}, errors.Join(ErrDeserialization, err)
	}

	var part2 Part2
	if !rr.atEOF() {
		part2, err = readPart2(rr)
		if err != nil {
			return Container{}, errors.Join(ErrDeserialization, err)
		}
	}

	if rr.err != nil {
		return Container{}, errors.Join(ErrDeserialization, rr.err)
	}

	return Container{Part1: part1, Part2: part2}, nil
}

func writePart1(w *writer, p Part1) {
	writeFilterList(w, p.CSP)
	writeFilterList(w, p.Exceptions)
	writeFilterList(w, p.Importants)
	writeFilterList(w, p.Redirects)
	writeFilterList(w, p.FiltersTagged)
	writeFilterList(w, p.Filters)
	writeFilterList(w, p.TaggedAll)

	w.bool(p.Placeholder)
	w.bool(p.EnableOptimizations)
	w.bool(false) // legacyUnused
	w.bool(true)  // legacyUnused2, always true on write
	writeResources(w, p.Resources)
}

func readPart1(r *reader) (Part1, error) {
	p := Part1{
		CSP:           readFilterList(r),
		Exceptions:    readFilterList(r),
		Importants:    readFilterList(r),
		Redirects:     readFilterList(r),
		FiltersTagged: readFilterList(r),
		Filters:       readFilterList(r),
		TaggedAll:     readFilterList(r),
	}

	p.Placeholder = r.bool()
	p.EnableOptimizations = r.bool()
	p.legacyUnused = r.bool()
	p.legacyUnused2 = r.bool()
	p.Resources = readResources(r)

	if r.err != nil {
		return Part1{}, r.err
	}

	if !p.legacyUnused2 {
		return Part1{}, errors.New("legacy compatibility field must be true")
	}

	return p, nil
}

func writePart2(w *writer, p Part2) {
	writeFilterList(w, p.RemoveParams)
	w.strs(p.EnabledTags)
}

func readPart2(r *reader) (Part2, error) {
	p := Part2{
		RemoveParams: readFilterList(r),
		EnabledTags:  r.strs(),
	}

	if r.err != nil {
		return Part2{}, r.err
	}

	return p, nil
}

func writeFilterList(w *writer, filters []*rules.NetworkFilter) {
	w.uint32(uint32(len(filters)))
	for _, f := range filters {
		writeFilter(w, f)
	}
}

func readFilterList(r *reader) []*rules.NetworkFilter {
	n := r.uint32()
	if r.err != nil || n == 0 {
		return nil
	}

	out := make([]*rules.NetworkFilter, n)
	for i := range out {
		out[i] = readFilter(r)
	}

	return out
}

const (
	partKindEmpty uint8 = iota
	partKindSimple
	partKindAnyOf
)

func writeFilter(w *writer, f *rules.NetworkFilter) {
	w.uint32(uint32(f.Mask))

	switch f.Filter.Kind {
	case rules.PartSimple:
		w.uint8(partKindSimple)
		w.str(f.Filter.Simple)
	case rules.PartAnyOf:
		w.uint8(partKindAnyOf)
		w.strs(f.Filter.AnyOf)
	default:
		w.uint8(partKindEmpty)
	}

	w.str(f.Hostname)
	w.hashes(f.IncludedDomains)
	w.hashes(f.ExcludedDomains)
	writeModifier(w, f.Modifier)
	w.str(f.Tag)
	w.str(f.CSP)
	w.str(f.RawLine)
}

func readFilter(r *reader) *rules.NetworkFilter {
	mask := rules.Mask(r.uint32())

	var part rules.FilterPart
	switch r.uint8() {
	case partKindSimple:
		part = rules.FilterPart{Kind: rules.PartSimple, Simple: r.str()}
	case partKindAnyOf:
		part = rules.FilterPart{Kind: rules.PartAnyOf, AnyOf: r.strs()}
	default:
		part = rules.FilterPart{Kind: rules.PartEmpty}
	}

	hostname := r.str()
	included := r.hashes()
	excluded := r.hashes()
	modifier := readModifier(r)
	tag := r.str()
	csp := r.str()
	rawLine := r.str()

	if r.err != nil {
		return nil
	}

	return rules.Rehydrate(mask, part, hostname, included, excluded, modifier, tag, csp, rawLine)
}

const (
	modifierKindNone uint8 = iota
	modifierKindRedirect
	modifierKindRedirectRule
	modifierKindRemoveParam
)

func writeModifier(w *writer, m *rules.Modifier) {
	if m == nil {
		w.uint8(modifierKindNone)

		return
	}

	switch m.Kind {
	case rules.ModifierRedirect:
		w.uint8(modifierKindRedirect)
	case rules.ModifierRedirectRule:
		w.uint8(modifierKindRedirectRule)
	case rules.ModifierRemoveParam:
		w.uint8(modifierKindRemoveParam)
	default:
		w.uint8(modifierKindNone)

		return
	}

	w.str(m.Value)
	w.int32(int32(m.Priority))
}

func readModifier(r *reader) *rules.Modifier {
	switch r.uint8() {
	case modifierKindRedirect:
		return &rules.Modifier{Kind: rules.ModifierRedirect, Value: r.str(), Priority: int(r.int32())}
	case modifierKindRedirectRule:
		return &rules.Modifier{Kind: rules.ModifierRedirectRule, Value: r.str(), Priority: int(r.int32())}
	case modifierKindRemoveParam:
		return &rules.Modifier{Kind: rules.ModifierRemoveParam, Value: r.str(), Priority: int(r.int32())}
	default:
		return nil
	}
}

func writeResources(w *writer, c resources.Catalog) {
	w.uint32(uint32(len(c)))

	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		r := c[name]
		w.str(name)
		w.str(r.ContentType)
		w.bytes(r.Data)
	}
}

func readResources(r *reader) resources.Catalog {
	n := r.uint32()
	if r.err != nil || n == 0 {
		return nil
	}

	c := make(resources.Catalog, n)
	for i := uint32(0); i < n; i++ {
		name := r.str()
		contentType := r.str()
		data := r.bytes()

		if r.err != nil {
			return nil
		}

		c[name] = resources.Resource{ContentType: contentType, Data: data}
	}

	return c
}
