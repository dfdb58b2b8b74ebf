// Package engine is the facade: it parses many rule sources,
// partitions cosmetic filters out of the network-filter stream, owns the
// allow/block/custom-rule storage, and hands the assembled network filters
// to a [blocker.Blocker]. It also owns the engine's configuration,
// optional hot-reload of file-based sources, and metrics registration.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/blockwall/netfilter/internal/aghos"
	"github.com/blockwall/netfilter/internal/blocker"
	"github.com/blockwall/netfilter/internal/metrics"
	"github.com/blockwall/netfilter/internal/request"
	"github.com/blockwall/netfilter/internal/serialize"
	"github.com/blockwall/netfilter/internal/version"
	"github.com/blockwall/netfilter/resources"
	"github.com/prometheus/client_golang/prometheus"
)

// Engine is the top-level façade a caller embeds: build it once from a
// [Config], call [Engine.Refresh] to populate it, then call [Engine.Check]
// per request.
type Engine struct {
	logger  *slog.Logger
	storage *Storage
	watcher aghos.FSWatcher
	config  *Config
}

// New builds an Engine from c. The engine is not yet refreshed: sources
// have no filters installed until the first [Engine.Refresh].
func New(c *EngineConfig) (*Engine, error) {
	c.Logger.Info("starting engine", "version", version.Full(), "channel", version.Channel())

	sources, err := buildSources(c.Config.Sources)
	if err != nil {
		return nil, fmt.Errorf("building sources: %w", err)
	}

	storage, err := NewStorage(&StorageConfig{
		HTTPClient:          c.HTTPClient,
		CacheDir:            c.Config.CacheDir,
		MaxRuleListSize:     c.Config.MaxRuleListSize,
		EnableOptimizations: c.Config.EnableOptimizations,
		CustomRules:         c.Config.CustomRules,
		Sources:             sources,
	})
	if err != nil {
		return nil, fmt.Errorf("building storage: %w", err)
	}

	storage.Blocker().EnableTags(c.Config.EnabledTags...)

	return &Engine{
		logger:  c.Logger,
		storage: storage,
		config:  c.Config,
	}, nil
}

func buildSources(specs []SourceSpec) ([]*Source, error) {
	sources := make([]*Source, 0, len(specs))
	for _, spec := range specs {
		u, err := parseSourceURL(spec.URL)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", spec.Name, err)
		}

		kind := KindAdblock
		if spec.Kind == "hosts" {
			kind = KindHosts
		}

		uid, err := NewUID()
		if err != nil {
			return nil, fmt.Errorf("source %q: generating uid: %w", spec.Name, err)
		}

		src, err := NewSource(&SourceConfig{
			URL:     u,
			Name:    spec.Name,
			UID:     uid,
			Kind:    kind,
			Enabled: spec.Enabled,
		})
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", spec.Name, err)
		}

		sources = append(sources, src)
	}

	return sources, nil
}

// RegisterMetrics registers the engine's Prometheus counters with
// registry.
func (e *Engine) RegisterMetrics(registry *prometheus.Registry) {
	metrics.Register(registry)
}

// Refresh re-fetches every enabled source and rebuilds the blocker if
// anything changed.
func (e *Engine) Refresh(ctx context.Context) error {
	return e.storage.Refresh(ctx)
}

// Check decides the outcome for r using the currently installed blocker.
func (e *Engine) Check(r *request.Request) blocker.Result {
	return e.storage.Blocker().Check(r)
}

// CSPDirectives returns the merged CSP directive string for r.
func (e *Engine) CSPDirectives(r *request.Request) string {
	return e.storage.Blocker().CSPDirectives(r)
}

// EnableTags activates tags on the current and every future rebuilt
// blocker (tags are carried across rebuilds by [Storage.rebuild]).
func (e *Engine) EnableTags(tags ...string) {
	e.storage.Blocker().EnableTags(tags...)
}

// DisableTags deactivates tags on the current blocker.
func (e *Engine) DisableTags(tags ...string) {
	e.storage.Blocker().DisableTags(tags...)
}

// Serialize writes the engine's current state to w.
func (e *Engine) Serialize(w io.Writer, res resources.Catalog) error {
	return serialize.Serialize(w, e.storage.Blocker(), e.config.EnableOptimizations, res)
}

// LoadSerialized replaces e's blocker with one deserialized from r. The
// configured sources and custom rules are kept: the next refresh that finds
// a changed source rebuilds the blocker from them, replacing the snapshot.
func (e *Engine) LoadSerialized(r io.Reader) (resources.Catalog, error) {
	b, res, err := serialize.Deserialize(r)
	if err != nil {
		return nil, err
	}

	e.storage.buildMu.Lock()
	e.storage.blocker = b
	e.storage.buildMu.Unlock()

	return res, nil
}

// Watch starts the optional hot-reload watcher over every file-scheme
// source and blocks until ctx is cancelled. Any watcher event triggers
// [Storage.RefreshOne] for every watched source, not only the changed one.
func (e *Engine) Watch(ctx context.Context) error {
	if !e.config.HotReload {
		return nil
	}

	w, err := aghos.NewOSWritesWatcher(e.logger)
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	e.watcher = w

	bySourcePath := make(map[string]UID)
	for _, src := range e.storage.sources {
		if src.Path() == "" {
			continue
		}

		if err = w.Add(src.Path()); err != nil {
			e.logger.WarnContext(ctx, "watching source", "path", src.Path(), slogutil.KeyError, err)

			continue
		}

		bySourcePath[src.Path()] = src.UID()
	}

	if err = w.Start(ctx); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer func() {
		if shutdownErr := w.Shutdown(ctx); shutdownErr != nil {
			e.logger.WarnContext(ctx, "shutting down watcher", slogutil.KeyError, shutdownErr)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-w.Events():
			if !ok {
				return nil
			}

			e.refreshAllWatched(ctx, bySourcePath)
		}
	}
}

func (e *Engine) refreshAllWatched(ctx context.Context, bySourcePath map[string]UID) {
	for _, uid := range bySourcePath {
		if err := e.storage.RefreshOne(ctx, uid); err != nil {
			e.logger.WarnContext(ctx, "hot-reload refresh", "uid", uid, slogutil.KeyError, err)
		}
	}
}
