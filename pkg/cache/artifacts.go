package cache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/wheelhouse-dev/wheelhouse/pkg/httputil"
)

// Artifacts is a content-addressable on-disk store for distribution files
// (wheels and sdists), keyed by source URL. The same URL is never downloaded
// twice within the store's lifetime: a file that already exists on disk is
// returned as-is.
//
// Files keep the basename of their URL so downstream archive handling can
// dispatch on the extension. Writes go through a temp file and a rename, so
// concurrent fetches of the same URL are last-writer-wins and never observe a
// partial file.
type Artifacts struct {
	dir    string
	client *http.Client
}

// NewArtifacts creates an artifact store rooted at dir.
// The directory is created if it doesn't exist.
func NewArtifacts(dir string) (*Artifacts, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Artifacts{
		dir:    dir,
		client: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Dir returns the root directory of the store.
func (a *Artifacts) Dir() string { return a.dir }

// Fetch downloads rawURL into the store (if not already present) and returns
// the local path. The pkg name only shards the directory layout; identity is
// the URL.
func (a *Artifacts) Fetch(ctx context.Context, pkg, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	base := path.Base(u.Path)
	if base == "" || base == "/" || base == "." {
		base = Hash([]byte(rawURL))
	}

	dir := filepath.Join(a.dir, shard(pkg), Hash([]byte(rawURL))[:12])
	dest := filepath.Join(dir, base)

	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	err = httputil.RetryWithBackoff(ctx, func() error {
		return a.download(ctx, rawURL, dest)
	})
	if err != nil {
		return "", err
	}
	return dest, nil
}

func (a *Artifacts) download(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return &httputil.RetryableError{Err: fmt.Errorf("%w: %v", ErrNetwork, err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	case resp.StatusCode >= 500:
		return &httputil.RetryableError{Err: fmt.Errorf("%w: status %d", ErrNetwork, resp.StatusCode)}
	default:
		return fmt.Errorf("%w: status %d", ErrNetwork, resp.StatusCode)
	}

	tmp := dest + "." + uuid.NewString()
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return &httputil.RetryableError{Err: fmt.Errorf("%w: %v", ErrNetwork, err)}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	// Last-writer-wins
	return os.Rename(tmp, dest)
}

// shard spreads package directories the way the upstream index mirror does:
// first two characters, next two characters, full name.
func shard(pkg string) string {
	a := pkg
	if len(a) > 2 {
		a = a[:2]
	}
	b := "--"
	if len(pkg) > 2 {
		b = pkg[2:]
		if len(b) > 2 {
			b = b[:2]
		}
	}
	return filepath.Join(a, b, pkg)
}
