package engine

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/blockwall/netfilter/internal/blocker"
	"github.com/blockwall/netfilter/internal/rules"
	"github.com/c2h5oh/datasize"
)

// Storage owns every network-filter input the facade knows about: the
// refreshable rule-list [Source]s plus a fixed set of inline custom rules.
// A blocking exception is not a separate list here; it is just a filter
// with the `@@` flag, so every source and the custom rules all feed the
// same downstream [blocker.Blocker], which does its own category partition
// by filter flag.
type Storage struct {
	refreshMu *sync.Mutex

	sources []*Source
	custom  []*rules.NetworkFilter

	httpCli             *http.Client
	cacheDir            string
	maxSize             datasize.ByteSize
	enableOptimizations bool

	buildMu *sync.RWMutex
	blocker *blocker.Blocker
}

// StorageConfig configures a [NewStorage] Storage.
type StorageConfig struct {
	HTTPClient          *http.Client
	CacheDir            string
	MaxRuleListSize     datasize.ByteSize
	EnableOptimizations bool
	CustomRules         []string
	Sources             []*Source
}

// NewStorage builds a Storage whose blocker is not yet populated; call
// [Storage.Refresh] before serving requests.
func NewStorage(c *StorageConfig) (*Storage, error) {
	custom := ParseRules(strings.Join(c.CustomRules, "\n"), false)

	s := &Storage{
		refreshMu:           &sync.Mutex{},
		sources:             c.Sources,
		custom:              custom.Filters,
		httpCli:             c.HTTPClient,
		cacheDir:            c.CacheDir,
		maxSize:             c.MaxRuleListSize,
		enableOptimizations: c.EnableOptimizations,
		buildMu:             &sync.RWMutex{},
	}

	if s.httpCli == nil {
		s.httpCli = http.DefaultClient
	}

	s.rebuild()

	return s, nil
}

// Refresh re-fetches every enabled source, reports per-source errors
// without aborting the others, and rebuilds the blocker if anything
// changed.
func (s *Storage) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	var errs []error
	anyChanged := false
	for _, src := range s.sources {
		if !src.Enabled() {
			continue
		}

		changed, srcErrs := src.Refresh(ctx, s.httpCli, s.cacheDir, s.maxSize)
		anyChanged = anyChanged || changed
		errs = append(errs, srcErrs...)
	}

	if anyChanged {
		s.rebuild()
	}

	// Don't wrap the errors since they are informative enough as is.
	return errors.Join(errs...)
}

// rebuild collects every enabled source's filters plus the custom rules and
// installs a fresh [blocker.Blocker], preserving previously enabled tags.
func (s *Storage) rebuild() {
	var prevTags []string
	s.buildMu.RLock()
	if s.blocker != nil {
		prevTags = s.blocker.EnabledTags()
	}
	s.buildMu.RUnlock()

	all := make([]*rules.NetworkFilter, 0, len(s.custom))
	for _, src := range s.sources {
		if src.Enabled() {
			all = append(all, src.Filters()...)
		}
	}

	all = append(all, s.custom...)

	b := blocker.New(all, blocker.Options{
		EnableOptimizations: s.enableOptimizations,
		LoadNetworkFilters:  true,
	})
	b.EnableTags(prevTags...)

	s.buildMu.Lock()
	s.blocker = b
	s.buildMu.Unlock()
}

// Blocker returns the currently installed blocker. The returned value must
// not be retained across a call to [Storage.Refresh]: take a fresh
// reference per request batch instead.
func (s *Storage) Blocker() *blocker.Blocker {
	s.buildMu.RLock()
	defer s.buildMu.RUnlock()

	return s.blocker
}

// SourceByUID finds an installed source by UID, for targeted refreshes
// (e.g. in response to a hot-reload event naming one file).
func (s *Storage) SourceByUID(id UID) (*Source, bool) {
	for _, src := range s.sources {
		if src.UID() == id {
			return src, true
		}
	}

	return nil, false
}

// RefreshOne refreshes a single source by UID and rebuilds the blocker if
// it changed, used by the hot-reload watcher to avoid a full re-fetch of
// every source on one file's change.
func (s *Storage) RefreshOne(ctx context.Context, id UID) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	src, ok := s.SourceByUID(id)
	if !ok {
		return fmt.Errorf("no source with uid %s", id)
	}

	changed, errs := src.Refresh(ctx, s.httpCli, s.cacheDir, s.maxSize)
	if changed {
		s.rebuild()
	}

	return errors.Join(errs...)
}
