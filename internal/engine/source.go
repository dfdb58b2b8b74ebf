package engine

import (
	"bytes"
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/ioutil"
	"github.com/blockwall/netfilter/internal/aghos"
	"github.com/blockwall/netfilter/internal/aghrenameio"
	"github.com/blockwall/netfilter/internal/rules"
	"github.com/c2h5oh/datasize"
)

// Kind distinguishes the two textual rule syntaxes a [Source] can carry.
type Kind uint8

const (
	// KindAdblock is Adblock Plus / uBlock Origin syntax, one rule per
	// line, parsed with [ParseRules].
	KindAdblock Kind = iota
	// KindHosts is a hosts-file-style source: one bare hostname per line
	// (the address column, if any, already stripped by the caller),
	// parsed with [ParseHostsStyleRules].
	KindHosts
)

// Source is one named, independently refreshable input of rule text: a URL
// with http/https/file scheme, cached to disk on refresh. Every Source has a
// URL; [NewSource] rejects a config without one.
type Source struct {
	url  *url.URL
	path string // local path tracked for the hot-reload watcher, empty for http(s)

	name    string
	uid     UID
	kind    Kind
	enabled bool

	filters  []*rules.NetworkFilter
	checksum uint32
}

// SourceConfig configures a [NewSource] Source.
type SourceConfig struct {
	// URL is the rule source's location. Supported schemes are http,
	// https, and file.
	URL *url.URL

	// Name is a human-readable label; if empty, one is derived from UID on
	// first successful refresh.
	Name string

	UID UID

	Kind Kind

	Enabled bool
}

// NewSource builds a Source that has not yet been refreshed.
func NewSource(c *SourceConfig) (*Source, error) {
	if c.URL == nil {
		return nil, errors.Error("no url")
	}

	switch s := c.URL.Scheme; s {
	case "http", "https", "file":
	default:
		return nil, fmt.Errorf("bad url scheme: %q", s)
	}

	s := &Source{
		url:     c.URL,
		name:    c.Name,
		uid:     c.UID,
		kind:    c.Kind,
		enabled: c.Enabled,
	}

	if c.URL.Scheme == "file" {
		s.path = c.URL.Path
	}

	return s, nil
}

// parseSourceURL parses raw as a [*url.URL], defaulting a bare filesystem
// path (no scheme) to the file scheme so config authors can write either
// form.
func parseSourceURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing url %q: %w", raw, err)
	}

	if u.Scheme == "" {
		u.Scheme = "file"
		u.Path = raw
	}

	return u, nil
}

// Name reports the source's human-readable label.
func (s *Source) Name() string { return s.name }

// UID reports the source's stable ID.
func (s *Source) UID() UID { return s.uid }

// Enabled reports whether the source participates in [Storage] builds.
func (s *Source) Enabled() bool { return s.enabled }

// Path is the local file path this source watches for hot-reload, or "" if
// it is not a file source.
func (s *Source) Path() string { return s.path }

// Filters returns the network filters parsed from the source's last
// successful [Refresh].
func (s *Source) Filters() []*rules.NetworkFilter { return s.filters }

// Refresh re-fetches and re-parses the source's text, writing a copy to
// cacheDir. The cached copy is not read back: when the origin is
// unreachable, Refresh returns the error and keeps the previous filters. It
// reports whether the content changed since the previous successful
// refresh.
func (s *Source) Refresh(
	ctx context.Context,
	cli *http.Client,
	cacheDir string,
	maxSize datasize.ByteSize,
) (changed bool, errs []error) {
	cachePath := filepath.Join(cacheDir, s.uid.String()+".txt")

	var text string
	var err error
	switch sc := s.url.Scheme; sc {
	case "http", "https":
		text, err = s.readFromHTTP(ctx, cli, cachePath, maxSize.Bytes())
	case "file":
		text, err = s.readFromFile(s.url.Path, cachePath)
	default:
		panic(fmt.Errorf("bad url scheme: %q", sc))
	}
	if err != nil {
		return false, []error{fmt.Errorf("refreshing %s: %w", s.uid, err)}
	}

	sum := crc32.ChecksumIEEE([]byte(text))
	if sum == s.checksum {
		return false, nil
	}

	res := s.parse(text)
	s.filters = res.Filters
	s.checksum = sum

	if s.name == "" {
		s.name = fmt.Sprintf("source %s", s.uid)
	}

	for _, le := range res.Errors {
		errs = append(errs, fmt.Errorf("line %d: %q: %w", le.Line, le.Text, le.Err))
	}

	return true, errs
}

func (s *Source) parse(text string) ParseResult {
	if s.kind == KindHosts {
		return ParseHostsStyleRules(strings.Split(text, "\n"), false)
	}

	return ParseRules(text, false)
}

func (s *Source) readFromHTTP(
	ctx context.Context,
	cli *http.Client,
	cachePath string,
	maxSize uint64,
) (text string, err error) {
	defer func() { err = errors.Annotate(err, "reading from http: %w") }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url.String(), nil)
	if err != nil {
		return "", fmt.Errorf("making request: %w", err)
	}

	resp, err := cli.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, resp.Body.Close()) }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("got status code %d, want %d", resp.StatusCode, http.StatusOK)
	}

	cacheFile, err := aghrenameio.NewPendingFile(cachePath, aghos.DefaultPermFile)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer func() { err = aghrenameio.WithDeferredCleanup(err, cacheFile) }()

	buf := &bytes.Buffer{}
	mw := io.MultiWriter(buf, cacheFile)

	body := ioutil.LimitReader(resp.Body, maxSize)
	if _, err = io.Copy(mw, body); err != nil {
		return "", fmt.Errorf("copying body: %w", err)
	}

	return buf.String(), nil
}

func (s *Source) readFromFile(srcPath, cachePath string) (text string, err error) {
	defer func() { err = errors.Annotate(err, "reading from file: %w") }()

	// #nosec G304 -- srcPath comes from this source's own validated URL.
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return "", fmt.Errorf("opening src file: %w", err)
	}

	cacheFile, err := aghrenameio.NewPendingFile(cachePath, aghos.DefaultPermFile)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer func() { err = aghrenameio.WithDeferredCleanup(err, cacheFile) }()

	if _, err = cacheFile.Write(data); err != nil {
		return "", fmt.Errorf("writing cache: %w", err)
	}

	return string(data), nil
}

