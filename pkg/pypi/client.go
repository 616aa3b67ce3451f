// Package pypi implements the package index client.
//
// It talks to the PyPI JSON API and converts its responses into the
// [Package]/[Release]/[FileEntry] model the resolver consumes. Responses are
// cached through a [cache.Cache] backend and transient failures are retried
// with backoff.
package pypi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wheelhouse-dev/wheelhouse/pkg/cache"
	"github.com/wheelhouse-dev/wheelhouse/pkg/errors"
	"github.com/wheelhouse-dev/wheelhouse/pkg/httputil"
)

const (
	defaultBaseURL = "https://pypi.org/pypi"
	httpTimeout    = 10 * time.Second
	cachePrefix    = "pypi:"
)

// Client provides access to the PyPI package index.
// It handles HTTP requests with caching and automatic retries.
//
// All methods are safe for concurrent use by multiple goroutines provided the
// cache backend is.
type Client struct {
	http    *http.Client
	cache   cache.Cache
	ttl     time.Duration
	baseURL string
}

// NewClient creates a PyPI client with the given cache backend.
//
// Parameters:
//   - backend: cache backend for index response caching (use cache.NewNullCache() for none)
//   - ttl: how long responses are cached (typical: 1-24 hours)
func NewClient(backend cache.Cache, ttl time.Duration) *Client {
	return &Client{
		http:    &http.Client{Timeout: httpTimeout},
		cache:   backend,
		ttl:     ttl,
		baseURL: defaultBaseURL,
	}
}

// NewClientWithBaseURL is like [NewClient] against a different index, e.g. a
// private mirror exposing the same JSON API.
func NewClientWithBaseURL(backend cache.Cache, ttl time.Duration, baseURL string) *Client {
	c := NewClient(backend, ttl)
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

// FetchPackage retrieves the full release listing for a package.
//
// The name is normalized automatically (case-insensitive, underscores to
// hyphens). If refresh is true the cache is bypassed and a fresh index call
// is made.
//
// Returns:
//   - a Package with every known release and its file list on success
//   - a PACKAGE_NOT_FOUND error if the package doesn't exist
//   - a NETWORK_ERROR for HTTP failures (timeout, 5xx, etc.)
func (c *Client) FetchPackage(ctx context.Context, name string, refresh bool) (*Package, error) {
	name = NormalizeName(name)
	key := cachePrefix + name

	if !refresh {
		if data, ok, _ := c.cache.Get(ctx, key); ok {
			var pkg Package
			if err := json.Unmarshal(data, &pkg); err == nil {
				return &pkg, nil
			}
			// Corrupt entry: fall through to a live fetch.
		}
	}

	var pkg *Package
	err := httputil.RetryWithBackoff(ctx, func() error {
		var err error
		pkg, err = c.fetch(ctx, name)
		return err
	})
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(pkg); err == nil {
		_ = c.cache.Set(ctx, key, data, c.ttl)
	}
	return pkg, nil
}

func (c *Client) fetch(ctx context.Context, name string) (*Package, error) {
	url := fmt.Sprintf("%s/%s/json", c.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, httputil.Retryable(errors.Wrap(errors.ErrCodeNetwork, err, "fetch %s", url))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.New(errors.ErrCodePackageNotFound, "package %s not found on index", name)
	case resp.StatusCode >= 500:
		return nil, httputil.Retryable(errors.New(errors.ErrCodeNetwork, "status %d for %s", resp.StatusCode, url))
	default:
		return nil, errors.New(errors.ErrCodeNetwork, "status %d for %s", resp.StatusCode, url)
	}

	var data apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "decode index response for %s", name)
	}

	pkg := &Package{
		Name:     NormalizeName(data.Info.Name),
		Releases: make(map[string]*Release, len(data.Releases)),
	}
	for version, files := range data.Releases {
		rel := &Release{Version: version, Files: make([]FileEntry, 0, len(files))}
		for _, f := range files {
			rel.Files = append(rel.Files, FileEntry{
				Filename:       f.Filename,
				URL:            f.URL,
				Size:           f.Size,
				FileType:       fileTypeFromPackageType(f.PackageType),
				RequiresPython: f.RequiresPython,
			})
		}
		pkg.Releases[version] = rel
	}
	return pkg, nil
}

type apiResponse struct {
	Info     apiInfo              `json:"info"`
	Releases map[string][]apiFile `json:"releases"`
}

type apiInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type apiFile struct {
	Filename       string `json:"filename"`
	URL            string `json:"url"`
	Size           int64  `json:"size"`
	PackageType    string `json:"packagetype"`
	RequiresPython string `json:"requires_python"`
}
