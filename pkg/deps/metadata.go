package deps

import (
	"archive/zip"
	"bufio"
	"context"
	"io"
	"io/fs"
	"net/textproto"
	"strings"

	"github.com/mholt/archives"

	"github.com/wheelhouse-dev/wheelhouse/pkg/errors"
	"github.com/wheelhouse-dev/wheelhouse/pkg/httputil"
	"github.com/wheelhouse-dev/wheelhouse/pkg/pypi"
)

// remoteWheelThreshold is the wheel size above which METADATA is read over
// HTTP range requests instead of downloading the whole file. Wheels with an
// unreported size are also read remotely.
const remoteWheelThreshold = 20_000_000

// ArtifactStore fetches distribution files to local disk and returns the
// local path. Implementations are expected to cache by URL.
type ArtifactStore interface {
	Fetch(ctx context.Context, pkg, url string) (string, error)
}

// Extractor pulls the declared dependencies out of a release's artifacts.
type Extractor struct {
	artifacts ArtifactStore
}

// NewExtractor returns an Extractor downloading through the given store.
func NewExtractor(store ArtifactStore) *Extractor {
	return &Extractor{artifacts: store}
}

// Requires returns the raw requirement strings declared by one release.
//
// Sources are tried in order: a pre-populated requirement list on the
// release itself, wheel METADATA (remotely for large or unsized wheels,
// from a downloaded copy otherwise), then the sdist's requires.txt. A
// release with no usable artifact is an error; an artifact that simply
// declares nothing yields an empty list.
func (e *Extractor) Requires(ctx context.Context, pkgName string, rel *pypi.Release) ([]string, error) {
	if rel.Requires != nil {
		return rel.Requires, nil
	}

	for i := range rel.Files {
		f := &rel.Files[i]
		if f.FileType != pypi.Wheel {
			continue
		}
		if f.Size == 0 || f.Size > remoteWheelThreshold {
			return e.remoteWheelRequires(ctx, f.URL)
		}
		return e.localWheelRequires(ctx, pkgName, f.URL)
	}

	for i := range rel.Files {
		f := &rel.Files[i]
		if f.FileType != pypi.SDist {
			continue
		}
		return e.sdistRequires(ctx, pkgName, f.URL)
	}

	return nil, errors.New(errors.ErrCodeNoArtifact,
		"release %s %s has no wheel or sdist to read dependencies from", pkgName, rel.Version)
}

// remoteWheelRequires reads METADATA out of a wheel without downloading it,
// using range requests against the file URL.
func (e *Extractor) remoteWheelRequires(_ context.Context, url string) ([]string, error) {
	f, err := httputil.NewRangeFile(url)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(f, f.Length())
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidArchive, err, "open remote wheel %s", url)
	}
	return wheelRequires(zr, url)
}

func (e *Extractor) localWheelRequires(ctx context.Context, pkgName, url string) ([]string, error) {
	local, err := e.artifacts.Fetch(ctx, pkgName, url)
	if err != nil {
		return nil, err
	}
	zr, err := zip.OpenReader(local)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidArchive, err, "open wheel %s", local)
	}
	defer zr.Close()
	return wheelRequires(&zr.Reader, local)
}

// wheelRequires locates the dist-info METADATA member and returns its
// Requires-Dist values. When several members end in /METADATA the shortest
// path wins, which skips vendored copies nested deeper in the archive.
func wheelRequires(zr *zip.Reader, source string) ([]string, error) {
	var meta *zip.File
	for _, f := range zr.File {
		if !strings.HasSuffix(f.Name, "/METADATA") {
			continue
		}
		if meta == nil || len(f.Name) < len(meta.Name) {
			meta = f
		}
	}
	if meta == nil {
		return nil, errors.New(errors.ErrCodeInvalidArchive, "no METADATA in wheel %s", source)
	}

	rc, err := meta.Open()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidArchive, err, "read METADATA in %s", source)
	}
	defer rc.Close()
	return parseMetadataRequires(rc)
}

// parseMetadataRequires reads the RFC 822 style header block of a METADATA
// file and returns the Requires-Dist values. The long description body after
// the blank line is not read.
func parseMetadataRequires(r io.Reader) ([]string, error) {
	tr := textproto.NewReader(bufio.NewReader(r))
	hdr, err := tr.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(errors.ErrCodeInvalidArchive, err, "parse METADATA headers")
	}
	values := hdr.Values("Requires-Dist")
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out, nil
}

// sdistRequires downloads a source distribution and reads the egg-info
// requires.txt. An sdist without one declares no dependencies.
func (e *Extractor) sdistRequires(ctx context.Context, pkgName, url string) ([]string, error) {
	local, err := e.artifacts.Fetch(ctx, pkgName, url)
	if err != nil {
		return nil, err
	}

	fsys, err := archives.FileSystem(ctx, local, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidArchive, err, "open sdist %s", local)
	}

	// Shortest shallow requires.txt wins; anything nested deeper than
	// pkg-1.0/pkg.egg-info/requires.txt belongs to vendored code. A
	// root-level requires.txt is not egg-info metadata and does not count.
	best := ""
	err = fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, "/requires.txt") {
			return nil
		}
		if strings.Count(p, "/") > 2 {
			return nil
		}
		if best == "" || len(p) < len(best) {
			best = p
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidArchive, err, "scan sdist %s", local)
	}
	if best == "" {
		return []string{}, nil
	}

	data, err := fs.ReadFile(fsys, best)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidArchive, err, "read %s in %s", best, local)
	}
	return ConvertSdistRequires(string(data)), nil
}

// ConvertSdistRequires rewrites an egg-info requires.txt into requirement
// lines with inline markers. Section headers scope the lines below them:
//
//	[extra]          ->  line; extra == 'extra'
//	[:marker]        ->  line; marker
//	[extra:marker]   ->  line; (marker) and extra == 'extra'
func ConvertSdistRequires(data string) []string {
	markers := ""
	out := []string{}
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]"):
			section := line[1 : len(line)-1]
			if extra, cond, found := strings.Cut(section, ":"); found {
				if extra != "" {
					markers = "(" + cond + ") and extra == '" + extra + "'"
				} else {
					markers = cond
				}
			} else {
				markers = "extra == '" + section + "'"
			}
		default:
			if markers != "" {
				out = append(out, line+"; "+markers)
			} else {
				out = append(out, line)
			}
		}
	}
	return out
}
