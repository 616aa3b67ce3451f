package pypi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wheelhouse-dev/wheelhouse/pkg/cache"
	"github.com/wheelhouse-dev/wheelhouse/pkg/errors"
)

func testClient(baseURL string, backend cache.Cache) *Client {
	c := NewClient(backend, time.Hour)
	c.baseURL = baseURL
	return c
}

func flaskResponse() apiResponse {
	return apiResponse{
		Info: apiInfo{Name: "Flask", Version: "2.0.0"},
		Releases: map[string][]apiFile{
			"1.0": {
				{
					Filename:       "Flask-1.0.tar.gz",
					URL:            "https://files.example/Flask-1.0.tar.gz",
					Size:           5000,
					PackageType:    "sdist",
					RequiresPython: ">=2.7",
				},
			},
			"2.0.0": {
				{
					Filename:       "Flask-2.0.0-py3-none-any.whl",
					URL:            "https://files.example/Flask-2.0.0-py3-none-any.whl",
					Size:           90000,
					PackageType:    "bdist_wheel",
					RequiresPython: ">=3.6",
				},
				{
					Filename:    "Flask-2.0.0.tar.gz",
					URL:         "https://files.example/Flask-2.0.0.tar.gz",
					Size:        100000,
					PackageType: "sdist",
				},
			},
		},
	}
}

func TestClient_FetchPackage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/flask/json" {
			json.NewEncoder(w).Encode(flaskResponse())
		} else {
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c := testClient(server.URL, cache.NewNullCache())

	pkg, err := c.FetchPackage(context.Background(), "Flask", false)
	if err != nil {
		t.Fatalf("FetchPackage failed: %v", err)
	}

	if pkg.Name != "flask" {
		t.Errorf("expected normalized name flask, got %s", pkg.Name)
	}
	if len(pkg.Releases) != 2 {
		t.Fatalf("expected 2 releases, got %d", len(pkg.Releases))
	}

	rel := pkg.Releases["2.0.0"]
	if rel == nil {
		t.Fatal("missing release 2.0.0")
	}
	if len(rel.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(rel.Files))
	}

	var wheel, sdist *FileEntry
	for i := range rel.Files {
		switch rel.Files[i].FileType {
		case Wheel:
			wheel = &rel.Files[i]
		case SDist:
			sdist = &rel.Files[i]
		}
	}
	if wheel == nil || sdist == nil {
		t.Fatal("expected one wheel and one sdist")
	}
	if wheel.RequiresPython != ">=3.6" {
		t.Errorf("expected requires_python >=3.6, got %q", wheel.RequiresPython)
	}
	if wheel.Size != 90000 {
		t.Errorf("expected size 90000, got %d", wheel.Size)
	}
}

func TestClient_FetchPackage_NotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	c := testClient(server.URL, cache.NewNullCache())

	_, err := c.FetchPackage(context.Background(), "does-not-exist", false)
	if err == nil {
		t.Fatal("expected error for missing package")
	}
	if !errors.Is(err, errors.ErrCodePackageNotFound) {
		t.Errorf("expected PACKAGE_NOT_FOUND, got %v", err)
	}
}

func TestClient_FetchPackage_Cached(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		json.NewEncoder(w).Encode(flaskResponse())
	}))
	defer server.Close()

	backend, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache failed: %v", err)
	}
	c := testClient(server.URL, backend)
	ctx := context.Background()

	if _, err := c.FetchPackage(ctx, "flask", false); err != nil {
		t.Fatalf("first FetchPackage failed: %v", err)
	}
	if _, err := c.FetchPackage(ctx, "flask", false); err != nil {
		t.Fatalf("second FetchPackage failed: %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("expected 1 index request, got %d", hits)
	}

	// refresh bypasses the cache.
	if _, err := c.FetchPackage(ctx, "flask", true); err != nil {
		t.Fatalf("refresh FetchPackage failed: %v", err)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Errorf("expected 2 index requests after refresh, got %d", hits)
	}
}

func TestRelease_EmptyRequiresSurvivesCache(t *testing.T) {
	// An empty non-nil Requires means "known to have no dependencies" and
	// must not come back from the response cache as nil ("extract from an
	// artifact").
	in := &Package{Name: "a", Releases: map[string]*Release{
		"1.0": {Version: "1.0", Requires: []string{}},
	}}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var out Package
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	rel := out.Releases["1.0"]
	if rel == nil {
		t.Fatal("missing release")
	}
	if rel.Requires == nil {
		t.Error("empty Requires became nil")
	}
	if len(rel.Requires) != 0 {
		t.Errorf("Requires = %v, want empty", rel.Requires)
	}
}

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"Flask":           "flask",
		"typing_extensions": "typing-extensions",
		"  requests ":     "requests",
	}
	for in, want := range cases {
		if got := NormalizeName(in); got != want {
			t.Errorf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
