package engine

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/blockwall/netfilter/internal/regexmgr"
	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"
)

// DefaultMaxRuleListSize is the default maximum size of a single rule-list
// source.
const DefaultMaxRuleListSize = 64 * datasize.MB

// SourceSpec is one entry of a [Config]'s Sources list.
type SourceSpec struct {
	URL     string `yaml:"url"`
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"` // "adblock" (default) or "hosts"
	Enabled bool   `yaml:"enabled"`
}

// Config is the facade's on-disk configuration, loaded with
// [gopkg.in/yaml.v3].
type Config struct {
	// Sources are the refreshable rule-list inputs.
	Sources []SourceSpec `yaml:"sources"`

	// CustomRules are inline Adblock-syntax rules with no backing source,
	// always enabled, highest priority to load.
	CustomRules []string `yaml:"custom_rules"`

	// CacheDir is where fetched source text is cached between refreshes.
	CacheDir string `yaml:"cache_dir"`

	// MaxRuleListSize bounds how much text [Source.Refresh] will read from
	// any one http(s) source. File sources are read whole.
	MaxRuleListSize datasize.ByteSize `yaml:"max_rule_list_size"`

	// EnableOptimizations runs filter fusion over every installed
	// category after each build.
	EnableOptimizations bool `yaml:"enable_optimizations"`

	// RegexCacheTTL and RegexCleanupInterval are loaded from the config, and
	// zero values are replaced by [regexmgr.DefaultTTL] and
	// [regexmgr.DefaultCleanupInterval]. They are not passed to the regex
	// manager, which the blocker always builds with those defaults.
	RegexCacheTTL        time.Duration `yaml:"regex_cache_ttl"`
	RegexCleanupInterval time.Duration `yaml:"regex_cleanup_interval"`

	// HotReload watches file-scheme sources for changes and refreshes
	// automatically when [Engine.Watch] is running.
	HotReload bool `yaml:"hot_reload"`

	// EnabledTags are activated immediately after the first build.
	EnabledTags []string `yaml:"enabled_tags"`
}

// LoadConfig parses YAML config text into a [Config], filling in defaults
// for zero-valued tunables.
func LoadConfig(data []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}

	if c.MaxRuleListSize == 0 {
		c.MaxRuleListSize = DefaultMaxRuleListSize
	}

	if c.RegexCacheTTL == 0 {
		c.RegexCacheTTL = regexmgr.DefaultTTL
	}

	if c.RegexCleanupInterval == 0 {
		c.RegexCleanupInterval = regexmgr.DefaultCleanupInterval
	}

	return c, nil
}

// EngineConfig is the constructor input for [New].
type EngineConfig struct {
	Logger *slog.Logger

	// HTTPClient performs http(s) source refreshes. Defaults to
	// [http.DefaultClient] if nil.
	HTTPClient *http.Client

	Config *Config
}
