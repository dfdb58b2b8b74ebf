package serialize

import (
	"io"

	"github.com/blockwall/netfilter/internal/blocker"
	"github.com/blockwall/netfilter/internal/rules"
	"github.com/blockwall/netfilter/resources"
)

// FromBlocker builds the [Container] this package round-trips a built
// [blocker.Blocker] through. filters_tagged and tagged_filters_all are
// written from the same derived slice since this engine enforces `$tag`
// gating once, per-filter, inside every category list rather than keeping a
// second tagged-filter population in sync with it (see DESIGN.md).
func FromBlocker(b *blocker.Blocker, enableOptimizations bool, res resources.Catalog) Container {
	cats := b.Categories()

	return Container{
		Part1: Part1{
			CSP:                 cats.CSP,
			Exceptions:          cats.Exceptions,
			Importants:          cats.Importants,
			Redirects:           cats.Redirects,
			FiltersTagged:       cats.TaggedFilters,
			Filters:             cats.Filters,
			TaggedAll:           cats.TaggedFilters,
			EnableOptimizations: enableOptimizations,
			Resources:           res,
		},
		Part2: Part2{
			RemoveParams: cats.RemoveParams,
			EnabledTags:  b.EnabledTags(),
		},
	}
}

// ToBlocker rebuilds a [blocker.Blocker] from a decoded [Container]. The
// category split is re-derived from each filter's own mask and modifier
// exactly as [blocker.New] does on first load, so which Part 1 slice a
// filter originally came from does not matter: a filter round-trips into
// the same category it started in because that category is a pure function
// of its fields.
func ToBlocker(c Container) *blocker.Blocker {
	all := make([]*rules.NetworkFilter, 0,
		len(c.CSP)+len(c.Exceptions)+len(c.Importants)+len(c.Redirects)+len(c.Filters)+len(c.RemoveParams))

	all = append(all, c.CSP...)
	all = append(all, c.Exceptions...)
	all = append(all, c.Importants...)
	all = append(all, c.Redirects...)
	all = append(all, c.Filters...)
	all = append(all, c.RemoveParams...)

	b := blocker.New(all, blocker.Options{
		EnableOptimizations: c.EnableOptimizations,
		LoadNetworkFilters:  true,
	})

	b.EnableTags(c.EnabledTags...)

	return b
}

// Serialize writes b's full state to w.
func Serialize(w io.Writer, b *blocker.Blocker, enableOptimizations bool, res resources.Catalog) error {
	return Write(w, FromBlocker(b, enableOptimizations, res))
}

// Deserialize reads a [blocker.Blocker] back from r, along with the
// resource catalog that was serialized alongside it.
func Deserialize(r io.Reader) (*blocker.Blocker, resources.Catalog, error) {
	c, err := Read(r)
	if err != nil {
		return nil, nil, err
	}

	return ToBlocker(c), c.Resources, nil
}
