package cli

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wheelhouse-dev/wheelhouse/pkg/deps"
)

func metadataWheel(t *testing.T, name string, requires []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name + "-1.0.dist-info/METADATA")
	if err != nil {
		t.Fatalf("create METADATA: %v", err)
	}
	fmt.Fprintf(w, "Metadata-Version: 2.1\nName: %s\nVersion: 1.0\n", name)
	for _, r := range requires {
		fmt.Fprintf(w, "Requires-Dist: %s\n", r)
	}
	fmt.Fprintf(w, "\n")
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

// fakePyPI serves a two-package index (a depends on b) with wheels read over
// range requests, mimicking the JSON API shape.
func fakePyPI(t *testing.T) *httptest.Server {
	t.Helper()
	var baseURL string

	wheels := map[string][]byte{
		"a": metadataWheel(t, "a", []string{"b"}),
		"b": metadataWheel(t, "b", nil),
	}

	mux := http.NewServeMux()
	for name := range wheels {
		name := name
		mux.HandleFunc("/files/"+name+".whl", func(w http.ResponseWriter, r *http.Request) {
			http.ServeContent(w, r, name+".whl", time.Time{}, bytes.NewReader(wheels[name]))
		})
		mux.HandleFunc("/"+name+"/json", func(w http.ResponseWriter, r *http.Request) {
			resp := map[string]any{
				"info": map[string]any{"name": name, "version": "1.0"},
				"releases": map[string]any{
					"1.0": []map[string]any{{
						"filename":    name + "-1.0-py3-none-any.whl",
						"url":         baseURL + "/files/" + name + ".whl",
						"size":        0,
						"packagetype": "bdist_wheel",
					}},
				},
			}
			json.NewEncoder(w).Encode(resp)
		})
	}

	server := httptest.NewServer(mux)
	baseURL = server.URL
	t.Cleanup(server.Close)
	return server
}

func serveTestConfig(t *testing.T, indexURL string) *Config {
	t.Helper()
	cfg := defaultConfig()
	cfg.Cache.Backend = "none"
	cfg.Cache.Dir = t.TempDir()
	cfg.IndexURL = indexURL
	return cfg
}

func TestHandleDeps(t *testing.T) {
	index := fakePyPI(t)
	cfg := serveTestConfig(t, index.URL)

	r := chi.NewRouter()
	r.Get("/api/deps/{package}", handleDeps(cfg))
	api := httptest.NewServer(r)
	defer api.Close()

	resp, err := http.Get(api.URL + "/api/deps/a?python_version=3.9.1")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var g deps.GraphJSON
	if err := json.NewDecoder(resp.Body).Decode(&g); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if g.Root != "a==1.0" {
		t.Errorf("root = %q", g.Root)
	}
	if len(g.Nodes) != 2 || len(g.Edges) != 1 {
		t.Errorf("graph shape: %d nodes, %d edges", len(g.Nodes), len(g.Edges))
	}
}

func TestHandleDeps_NotFound(t *testing.T) {
	index := fakePyPI(t)
	cfg := serveTestConfig(t, index.URL)

	r := chi.NewRouter()
	r.Get("/api/deps/{package}", handleDeps(cfg))
	api := httptest.NewServer(r)
	defer api.Close()

	resp, err := http.Get(api.URL + "/api/deps/ghost")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["code"] != "PACKAGE_NOT_FOUND" {
		t.Errorf("code = %q", body["code"])
	}
}
