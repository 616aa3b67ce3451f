package httputil

import (
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/wheelhouse-dev/wheelhouse/pkg/errors"
)

// optimisticTail is how many trailing bytes are fetched at construction time.
// Zip central directories live near the end of the file, so a generous tail
// satisfies most structural reads without further round trips. The value was
// tuned against large scientific wheels.
const optimisticTail = 256000

var contentRangeRE = regexp.MustCompile(`bytes (\d+)-(\d+)/(\d+)`)

// RangeFile makes a remote HTTP resource behave like a seekable byte stream
// by issuing range requests on demand.
//
// On construction it requests the last [optimisticTail] bytes and learns the
// total length from the Content-Range response header; that tail is kept in
// memory and reads falling inside it cost no I/O. Every other read issues one
// request for exactly the requested span.
//
// RangeFile implements io.Reader, io.Seeker, and io.ReaderAt, which is all
// archive/zip needs to walk a wheel without downloading it. It is a
// read-only, single-use stream: no retry, no write-back, no cache eviction.
// It is not safe for concurrent use.
type RangeFile struct {
	url    string
	client *http.Client
	pos    int64
	length int64

	tail      []byte
	tailStart int64
}

// NewRangeFile opens url as a seekable stream. The initial range request is
// issued immediately; a server that does not honor range requests is handled
// by caching the full body.
func NewRangeFile(url string) (*RangeFile, error) {
	return NewRangeFileWithClient(url, &http.Client{Timeout: 30 * time.Second})
}

// NewRangeFileWithClient is like [NewRangeFile] with a caller-supplied client.
func NewRangeFileWithClient(url string, client *http.Client) (*RangeFile, error) {
	f := &RangeFile{url: url, client: client}

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=-%d", optimisticTail))

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "open %s", url)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		m := contentRangeRE.FindStringSubmatch(resp.Header.Get("Content-Range"))
		if m == nil {
			return nil, errors.New(errors.ErrCodeNetwork, "missing Content-Range in response for %s", url)
		}
		start, _ := strconv.ParseInt(m[1], 10, 64)
		length, _ := strconv.ParseInt(m[3], 10, 64)
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeNetwork, err, "read tail of %s", url)
		}
		f.length = length
		f.tail = body
		f.tailStart = start
	case http.StatusOK:
		// Server ignored the range header; the whole object is the tail.
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeNetwork, err, "read %s", url)
		}
		f.length = int64(len(body))
		f.tail = body
		f.tailStart = 0
	case http.StatusNotFound:
		return nil, errors.New(errors.ErrCodeNotFound, "%s", url)
	default:
		return nil, errors.New(errors.ErrCodeNetwork, "status %d for %s", resp.StatusCode, url)
	}

	return f, nil
}

// Length returns the total size of the remote resource in bytes.
func (f *RangeFile) Length() int64 { return f.length }

// Tell returns the current stream position.
func (f *RangeFile) Tell() int64 { return f.pos }

// Seekable reports that the stream supports seeking. Always true.
func (f *RangeFile) Seekable() bool { return true }

// Seek implements io.Seeker.
func (f *RangeFile) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = f.pos + offset
	case io.SeekEnd:
		pos = f.length + offset
	default:
		return 0, fmt.Errorf("invalid whence: %d", whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("negative position: %d", pos)
	}
	f.pos = pos
	return pos, nil
}

// Read implements io.Reader, advancing the stream position.
func (f *RangeFile) Read(p []byte) (int, error) {
	n, err := f.ReadAt(p, f.pos)
	f.pos += int64(n)
	return n, err
}

// ReadN reads n bytes from the current position. n = -1 means "read to end".
// Reading zero bytes is a no-op returning an empty slice. A read extending
// past the end of the resource is truncated to the available bytes.
func (f *RangeFile) ReadN(n int64) ([]byte, error) {
	if n == -1 {
		n = f.length - f.pos
	}
	if n <= 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	read, err := f.ReadAt(buf, f.pos)
	f.pos += int64(read)
	if err == io.EOF {
		err = nil
	}
	if err != nil {
		return nil, err
	}
	return buf[:read], nil
}

// ReadAt implements io.ReaderAt. Requests falling entirely inside the cached
// tail are served from memory. A response carrying fewer bytes than the
// requested span fails with a TRUNCATED_READ error, never a silent retry.
func (f *RangeFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset: %d", off)
	}
	if off >= f.length {
		return 0, io.EOF
	}

	want := len(p)
	atEnd := false
	if off+int64(want) > f.length {
		want = int(f.length - off)
		atEnd = true
	}

	if off >= f.tailStart {
		copy(p, f.tail[off-f.tailStart:int(off-f.tailStart)+want])
	} else {
		data, err := f.fetchRange(off, int64(want))
		if err != nil {
			return 0, err
		}
		if len(data) < want {
			return copy(p, data), errors.New(errors.ErrCodeTruncatedRead,
				"read %d bytes at offset %d of %s, wanted %d", len(data), off, f.url, want)
		}
		copy(p, data[:want])
	}

	if atEnd {
		return want, io.EOF
	}
	return want, nil
}

func (f *RangeFile) fetchRange(off, n int64) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, f.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, off+n-1))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "range read of %s", f.url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.ErrCodeNetwork, "status %d for range read of %s", resp.StatusCode, f.url)
	}
	return io.ReadAll(resp.Body)
}
