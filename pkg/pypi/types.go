package pypi

import "strings"

// FileType classifies a distribution file within a release.
//
// The index exposes more types (eggs, installers, dumb binaries); the
// resolver only acts on sdists and wheels, everything else is Unknown.
type FileType int

const (
	Unknown FileType = iota
	SDist            // source distribution (.tar.gz, .zip, .tar.bz2)
	Wheel            // prebuilt binary distribution (.whl)
)

// String returns the index's name for the file type.
func (t FileType) String() string {
	switch t {
	case SDist:
		return "sdist"
	case Wheel:
		return "bdist_wheel"
	default:
		return "unknown"
	}
}

// fileTypeFromPackageType maps the JSON API's packagetype field.
func fileTypeFromPackageType(s string) FileType {
	switch s {
	case "sdist":
		return SDist
	case "bdist_wheel":
		return Wheel
	default:
		return Unknown
	}
}

// FileEntry describes one downloadable file of a release.
type FileEntry struct {
	Filename       string   `json:"filename"`
	URL            string   `json:"url"`
	Size           int64    `json:"size"` // 0 when the index does not report a size
	FileType       FileType `json:"file_type"`
	RequiresPython string   `json:"requires_python,omitempty"` // e.g. ">=3.6"
}

// Release is one published version of a package.
type Release struct {
	Version string      `json:"version"`
	Files   []FileEntry `json:"files"`

	// Requires, when non-nil, is a pre-populated list of raw requirement
	// strings for this release. The live index never fills it (that would
	// cost one request per version); it exists for offline use and tests.
	// A nil value means "extract from an artifact", an empty non-nil slice
	// means "known to have no dependencies". The distinction must survive
	// the response cache, so the field is never omitted.
	Requires []string `json:"requires"`
}

// Package is the index's view of a package: its name and all known releases.
type Package struct {
	Name     string              `json:"name"`
	Releases map[string]*Release `json:"releases"`
}

// NormalizeName converts a package name to its canonical form.
// Applies lowercase and replaces underscores with hyphens, following PEP 503
// normalization rules used by PyPI.
func NormalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
}
