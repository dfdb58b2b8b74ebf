package engine

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/AdguardTeam/golibs/testutil"
	"github.com/blockwall/netfilter/internal/hostutil"
	"github.com/blockwall/netfilter/internal/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorage_rebuildMergesSourcesAndCustom(t *testing.T) {
	t.Parallel()

	src := newFileSource(t, "||ads.example.com^\n")

	strg, err := NewStorage(&StorageConfig{
		HTTPClient:  http.DefaultClient,
		CacheDir:    t.TempDir(),
		CustomRules: []string{"||custom.example.com^"},
		Sources:     []*Source{src},
	})
	require.NoError(t, err)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	require.NoError(t, strg.Refresh(ctx))

	req, err := request.FromURL(hostutil.Default, "https://ads.example.com/x")
	require.NoError(t, err)
	assert.True(t, strg.Blocker().Check(req).Matched)

	req, err = request.FromURL(hostutil.Default, "https://custom.example.com/x")
	require.NoError(t, err)
	assert.True(t, strg.Blocker().Check(req).Matched)
}

func TestStorage_rebuildPreservesEnabledTags(t *testing.T) {
	t.Parallel()

	src := newFileSource(t, "||ads.example.com^\n")

	strg, err := NewStorage(&StorageConfig{
		HTTPClient:  http.DefaultClient,
		CacheDir:    t.TempDir(),
		CustomRules: []string{"||tagged.example.com^$tag=social"},
		Sources:     []*Source{src},
	})
	require.NoError(t, err)

	strg.Blocker().EnableTags("social")

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	require.NoError(t, strg.Refresh(ctx))

	req, err := request.FromURL(hostutil.Default, "https://tagged.example.com/x")
	require.NoError(t, err)
	assert.True(t, strg.Blocker().Check(req).Matched)
}

func TestStorage_RefreshAggregatesErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "missing.txt")

	uid, err := NewUID()
	require.NoError(t, err)

	bad, err := NewSource(&SourceConfig{
		URL:     mustParseFileURL(t, path),
		UID:     uid,
		Kind:    KindAdblock,
		Enabled: true,
	})
	require.NoError(t, err)

	strg, err := NewStorage(&StorageConfig{
		HTTPClient: http.DefaultClient,
		CacheDir:   t.TempDir(),
		Sources:    []*Source{bad},
	})
	require.NoError(t, err)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	assert.Error(t, strg.Refresh(ctx))
}

func TestStorage_RefreshOne(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "list.txt")
	require.NoError(t, os.WriteFile(path, []byte("||ads.example.com^\n"), 0o644))

	uid, err := NewUID()
	require.NoError(t, err)

	src, err := NewSource(&SourceConfig{
		URL:     mustParseFileURL(t, path),
		UID:     uid,
		Kind:    KindAdblock,
		Enabled: true,
	})
	require.NoError(t, err)

	strg, err := NewStorage(&StorageConfig{
		HTTPClient: http.DefaultClient,
		CacheDir:   t.TempDir(),
		Sources:    []*Source{src},
	})
	require.NoError(t, err)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	require.NoError(t, strg.RefreshOne(ctx, uid))

	req, err := request.FromURL(hostutil.Default, "https://ads.example.com/x")
	require.NoError(t, err)
	assert.True(t, strg.Blocker().Check(req).Matched)

	_, ok := strg.SourceByUID(uid)
	assert.True(t, ok)
}

func mustParseFileURL(t *testing.T, path string) *url.URL {
	t.Helper()

	u, err := parseSourceURL(path)
	require.NoError(t, err)

	return u
}
