package engine

import (
	"bytes"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/blockwall/netfilter/internal/hostutil"
	"github.com/blockwall/netfilter/internal/request"
	"github.com/blockwall/netfilter/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 1 * time.Second

func mustReq(t *testing.T, rawURL string) *request.Request {
	t.Helper()

	r, err := request.FromURL(hostutil.Default, rawURL)
	require.NoError(t, err)

	return r
}

func writeRuleFile(t *testing.T, dir, name, text string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))

	return path
}

func newTestEngine(t *testing.T, cfg *Config) *Engine {
	t.Helper()

	e, err := New(&EngineConfig{
		Logger: slogutil.NewDiscardLogger(),
		Config: cfg,
	})
	require.NoError(t, err)

	return e
}

func TestEngine_RefreshAndCheck(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeRuleFile(t, dir, "block.txt", "||ads.example.com^\n@@||safe.ads.example.com^\n")

	e := newTestEngine(t, &Config{
		Sources: []SourceSpec{{
			URL:     (&url.URL{Scheme: "file", Path: path}).String(),
			Name:    "block-list",
			Enabled: true,
		}},
		CacheDir: t.TempDir(),
	})

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	require.NoError(t, e.Refresh(ctx))

	res := e.Check(mustReq(t, "https://ads.example.com/x"))
	assert.True(t, res.Matched)

	res = e.Check(mustReq(t, "https://safe.ads.example.com/x"))
	assert.False(t, res.Matched)

	res = e.Check(mustReq(t, "https://unrelated.example.org/x"))
	assert.False(t, res.Matched)
}

func TestEngine_CustomRules(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &Config{
		CustomRules: []string{"||custom-blocked.example.com^"},
		CacheDir:    t.TempDir(),
	})

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	require.NoError(t, e.Refresh(ctx))

	res := e.Check(mustReq(t, "https://custom-blocked.example.com/x"))
	assert.True(t, res.Matched)
}

func TestEngine_EnableDisableTags(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &Config{
		CustomRules: []string{"||tagged.example.com^$tag=social"},
		CacheDir:    t.TempDir(),
	})

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	require.NoError(t, e.Refresh(ctx))

	e.DisableTags("social")
	res := e.Check(mustReq(t, "https://tagged.example.com/x"))
	assert.False(t, res.Matched)

	e.EnableTags("social")
	res = e.Check(mustReq(t, "https://tagged.example.com/x"))
	assert.True(t, res.Matched)
}

func TestEngine_SerializeRoundTrip(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &Config{
		CustomRules: []string{
			"||ads.example.com^",
			"@@||safe.ads.example.com^",
		},
		CacheDir:            t.TempDir(),
		EnableOptimizations: true,
	})

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	require.NoError(t, e.Refresh(ctx))

	res := resources.Catalog{
		"noop.js": {ContentType: "application/javascript", Data: []byte("(function(){})()")},
	}

	buf := &bytes.Buffer{}
	require.NoError(t, e.Serialize(buf, res))

	loaded, err := e.LoadSerialized(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, res, loaded)

	out := e.Check(mustReq(t, "https://ads.example.com/x"))
	assert.True(t, out.Matched)

	out = e.Check(mustReq(t, "https://safe.ads.example.com/x"))
	assert.False(t, out.Matched)
}

func TestEngine_CSPDirectives(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &Config{
		CustomRules: []string{"||csp.example.com^$csp=script-src 'none'"},
		CacheDir:    t.TempDir(),
	})

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	require.NoError(t, e.Refresh(ctx))

	req, err := request.FromURLs(hostutil.Default, "https://csp.example.com/x", "", "document")
	require.NoError(t, err)

	directives := e.CSPDirectives(req)
	assert.Contains(t, directives, "script-src 'none'")
}
