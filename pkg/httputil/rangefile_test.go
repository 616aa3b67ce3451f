package httputil

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wheelhouse-dev/wheelhouse/pkg/errors"
)

// rangeServer serves content with full byte-range support via http.ServeContent.
func rangeServer(t *testing.T, content []byte) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "blob", time.Time{}, bytes.NewReader(content))
	}))
	t.Cleanup(server.Close)
	return server
}

// sequenceContent mirrors the classic fixture: "1\n2\n...100\n", 292 bytes.
func sequenceContent() []byte {
	var b strings.Builder
	for i := 1; i <= 100; i++ {
		fmt.Fprintf(&b, "%d\n", i)
	}
	return []byte(b.String())
}

func TestRangeFile_Basic(t *testing.T) {
	content := sequenceContent()
	server := rangeServer(t, content)

	f, err := NewRangeFile(server.URL + "/blob")
	if err != nil {
		t.Fatalf("NewRangeFile failed: %v", err)
	}

	if f.Tell() != 0 {
		t.Errorf("expected initial position 0, got %d", f.Tell())
	}
	if f.Length() != int64(len(content)) {
		t.Errorf("expected length %d, got %d", len(content), f.Length())
	}
	if !f.Seekable() {
		t.Error("expected Seekable to be true")
	}

	data, err := f.ReadN(2)
	if err != nil {
		t.Fatalf("ReadN failed: %v", err)
	}
	if string(data) != "1\n" {
		t.Errorf("expected %q, got %q", "1\n", data)
	}

	if _, err := f.Seek(-4, io.SeekEnd); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	data, err = f.ReadN(4)
	if err != nil {
		t.Fatalf("ReadN failed: %v", err)
	}
	if string(data) != "100\n" {
		t.Errorf("expected %q, got %q", "100\n", data)
	}

	// n = -1 reads to end.
	if _, err := f.Seek(-4, io.SeekEnd); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	data, err = f.ReadN(-1)
	if err != nil {
		t.Fatalf("ReadN(-1) failed: %v", err)
	}
	if string(data) != "100\n" {
		t.Errorf("expected %q, got %q", "100\n", data)
	}
	if f.Tell() != f.Length() {
		t.Errorf("expected position at end, got %d", f.Tell())
	}
}

func TestRangeFile_ZeroRead(t *testing.T) {
	server := rangeServer(t, sequenceContent())

	f, err := NewRangeFile(server.URL + "/blob")
	if err != nil {
		t.Fatalf("NewRangeFile failed: %v", err)
	}
	data, err := f.ReadN(0)
	if err != nil {
		t.Fatalf("ReadN(0) failed: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("expected empty read, got %d bytes", len(data))
	}
}

func TestRangeFile_ReadPastEndTruncates(t *testing.T) {
	server := rangeServer(t, sequenceContent())

	f, err := NewRangeFile(server.URL + "/blob")
	if err != nil {
		t.Fatalf("NewRangeFile failed: %v", err)
	}
	if _, err := f.Seek(-4, io.SeekEnd); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	// Asking for more than remains is a legitimate end-of-stream, not an error.
	data, err := f.ReadN(100)
	if err != nil {
		t.Fatalf("ReadN failed: %v", err)
	}
	if string(data) != "100\n" {
		t.Errorf("expected %q, got %q", "100\n", data)
	}
}

func TestRangeFile_TailCacheServesWithoutIO(t *testing.T) {
	content := sequenceContent()
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		http.ServeContent(w, r, "blob", time.Time{}, bytes.NewReader(content))
	}))
	defer server.Close()

	f, err := NewRangeFile(server.URL + "/blob")
	if err != nil {
		t.Fatalf("NewRangeFile failed: %v", err)
	}
	after := requests

	// Content is smaller than the optimistic tail, so every read is cached.
	if _, err := f.ReadN(10); err != nil {
		t.Fatalf("ReadN failed: %v", err)
	}
	if _, err := f.Seek(-22, io.SeekEnd); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	if _, err := f.ReadN(22); err != nil {
		t.Fatalf("ReadN failed: %v", err)
	}

	if requests != after {
		t.Errorf("expected no additional requests, got %d", requests-after)
	}
}

func TestRangeFile_TruncatedRead(t *testing.T) {
	content := sequenceContent()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") == fmt.Sprintf("bytes=-%d", optimisticTail) {
			// Claim a much larger object than we will ever serve.
			w.Header().Set("Content-Range", "bytes 1000000-1000291/1000292")
			w.WriteHeader(http.StatusPartialContent)
			w.Write(content)
			return
		}
		// Mid-stream reads return fewer bytes than the requested span.
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("x"))
	}))
	defer server.Close()

	f, err := NewRangeFile(server.URL + "/blob")
	if err != nil {
		t.Fatalf("NewRangeFile failed: %v", err)
	}

	_, err = f.ReadN(50)
	if err == nil {
		t.Fatal("expected truncated read error")
	}
	if !errors.Is(err, errors.ErrCodeTruncatedRead) {
		t.Errorf("expected TRUNCATED_READ, got %v", err)
	}
}

func TestRangeFile_NotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	_, err := NewRangeFile(server.URL + "/missing")
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}
