// Package static retrieves the plain-text fallback resources (routes.txt,
// stops.txt, services.txt) from a directory or an http(s) base URL.
package static

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bluele/gcache"
	"github.com/pkg/errors"

	"bus-tracker/internal/logging"
)

const (
	RoutesFile   = "routes.txt"
	StopsFile    = "stops.txt"
	ServicesFile = "services.txt"
)

// ErrNotFound is returned when a resource does not exist at the base.
var ErrNotFound = errors.New("static resource not found")

// Fetcher reads resources by name. Bodies are cached for the configured TTL
// so repeated loads within a session do not hit the origin again.
type Fetcher struct {
	base       string
	remote     bool
	httpClient *http.Client
	cache      gcache.Cache
	logger     *slog.Logger
}

func NewFetcher(base string, ttl time.Duration, timeout time.Duration, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = logging.Discard()
	}
	b := gcache.New(16).LRU()
	if ttl > 0 {
		b = b.Expiration(ttl)
	}
	return &Fetcher{
		base:       strings.TrimRight(base, "/"),
		remote:     strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://"),
		httpClient: &http.Client{Timeout: timeout},
		cache:      b.Build(),
		logger:     logger,
	}
}

// Fetch returns the text of the named resource.
func (f *Fetcher) Fetch(ctx context.Context, name string) (string, error) {
	if v, err := f.cache.Get(name); err == nil {
		return v.(string), nil
	}
	var body string
	var err error
	if f.remote {
		body, err = f.fetchRemote(ctx, name)
	} else {
		body, err = f.fetchFile(name)
	}
	if err != nil {
		return "", err
	}
	if err := f.cache.Set(name, body); err != nil {
		logging.LogError(f.logger, "static cache set failed", err, slog.String("resource", name))
	}
	return body, nil
}

func (f *Fetcher) fetchFile(name string) (string, error) {
	b, err := os.ReadFile(filepath.Join(f.base, filepath.Clean("/"+name)))
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Wrap(ErrNotFound, name)
		}
		return "", errors.Wrapf(err, "read %s", name)
	}
	return string(b), nil
}

func (f *Fetcher) fetchRemote(ctx context.Context, name string) (string, error) {
	u := f.base + "/" + strings.TrimLeft(name, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", errors.Wrap(err, "build request")
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "fetch %s", u)
	}
	defer logging.SafeCloseWithLogging(resp.Body, f.logger, "static_response_body")

	if resp.StatusCode == http.StatusNotFound {
		return "", errors.Wrap(ErrNotFound, name)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errors.Errorf("HTTP %d from %s", resp.StatusCode, u)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrapf(err, "read %s", u)
	}
	return string(b), nil
}
