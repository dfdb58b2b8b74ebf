package engine

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/AdguardTeam/golibs/testutil"
	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileSource(t *testing.T, text string) *Source {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "list.txt")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))

	uid, err := NewUID()
	require.NoError(t, err)

	src, err := NewSource(&SourceConfig{
		URL:     &url.URL{Scheme: "file", Path: path},
		Name:    "test",
		UID:     uid,
		Kind:    KindAdblock,
		Enabled: true,
	})
	require.NoError(t, err)

	return src
}

func TestNewSource_rejectsBadScheme(t *testing.T) {
	t.Parallel()

	_, err := NewSource(&SourceConfig{
		URL: &url.URL{Scheme: "ftp", Host: "example.com"},
	})
	assert.Error(t, err)
}

func TestParseSourceURL(t *testing.T) {
	t.Parallel()

	u, err := parseSourceURL("/etc/hosts")
	require.NoError(t, err)
	assert.Equal(t, "file", u.Scheme)
	assert.Equal(t, "/etc/hosts", u.Path)

	u, err = parseSourceURL("https://example.com/list.txt")
	require.NoError(t, err)
	assert.Equal(t, "https", u.Scheme)
	assert.Equal(t, "example.com", u.Host)
}

func TestSource_Refresh_file(t *testing.T) {
	t.Parallel()

	src := newFileSource(t, "||ads.example.com^\n||tracker.example.net^\n")
	cacheDir := t.TempDir()

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	changed, errs := src.Refresh(ctx, http.DefaultClient, cacheDir, 1*datasize.MB)
	require.Empty(t, errs)
	assert.True(t, changed)
	assert.Len(t, src.Filters(), 2)

	// A second refresh of unchanged content reports no change and keeps
	// the previously parsed filters.
	changed, errs = src.Refresh(ctx, http.DefaultClient, cacheDir, 1*datasize.MB)
	require.Empty(t, errs)
	assert.False(t, changed)
	assert.Len(t, src.Filters(), 2)
}

func TestSource_Refresh_detectsContentChange(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "list.txt")
	require.NoError(t, os.WriteFile(path, []byte("||ads.example.com^\n"), 0o644))

	uid, err := NewUID()
	require.NoError(t, err)

	src, err := NewSource(&SourceConfig{
		URL:     &url.URL{Scheme: "file", Path: path},
		UID:     uid,
		Kind:    KindAdblock,
		Enabled: true,
	})
	require.NoError(t, err)

	cacheDir := t.TempDir()
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	changed, errs := src.Refresh(ctx, http.DefaultClient, cacheDir, 1*datasize.MB)
	require.Empty(t, errs)
	assert.True(t, changed)
	assert.Len(t, src.Filters(), 1)
	assert.Equal(t, "source "+uid.String(), src.Name())

	require.NoError(t, os.WriteFile(path, []byte("||ads.example.com^\n||new.example.com^\n"), 0o644))

	changed, errs = src.Refresh(ctx, http.DefaultClient, cacheDir, 1*datasize.MB)
	require.Empty(t, errs)
	assert.True(t, changed)
	assert.Len(t, src.Filters(), 2)
}

func TestSource_Refresh_hostsKind(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "hosts.txt")
	require.NoError(t, os.WriteFile(path, []byte("ads.example.com\ntracker.example.net\n"), 0o644))

	uid, err := NewUID()
	require.NoError(t, err)

	src, err := NewSource(&SourceConfig{
		URL:     &url.URL{Scheme: "file", Path: path},
		UID:     uid,
		Kind:    KindHosts,
		Enabled: true,
	})
	require.NoError(t, err)

	cacheDir := t.TempDir()
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	changed, errs := src.Refresh(ctx, http.DefaultClient, cacheDir, 1*datasize.MB)
	require.Empty(t, errs)
	assert.True(t, changed)
	assert.Len(t, src.Filters(), 2)
}
