package deps

import (
	"sort"
	"strconv"
	"strings"

	goversion "github.com/hashicorp/go-version"

	"github.com/wheelhouse-dev/wheelhouse/pkg/errors"
	"github.com/wheelhouse-dev/wheelhouse/pkg/pypi"
)

// candidate pairs a release's published version string with its parsed form.
// The string is kept because it is the key into Package.Releases and the
// value users see; the parsed form drives ordering.
type candidate struct {
	raw    string
	parsed *goversion.Version
}

// SelectVersion picks the newest release of pkg that satisfies the given
// specifiers and whose requires-python declaration (if any) admits the
// target runtime.
//
// Release versions that do not parse (local versions, .post/.dev suffixes)
// are skipped rather than failing the whole selection. Pre-releases are only
// eligible when a clause explicitly names a pre-release, or when nothing
// else exists.
func SelectVersion(pkg *pypi.Package, specs SpecifierSet, pythonVersion string) (string, error) {
	runtime, err := goversion.NewVersion(pythonVersion)
	if err != nil {
		return "", errors.New(errors.ErrCodeInvalidConfig, "invalid python version %q", pythonVersion)
	}

	var candidates []candidate
	excludedByPython := false
	for raw, rel := range pkg.Releases {
		parsed, err := goversion.NewVersion(raw)
		if err != nil {
			continue
		}
		if rp := releaseRequiresPython(rel); rp != "" {
			ok, err := pythonSatisfies(runtime, rp)
			if err != nil {
				// Unintelligible requires-python: treat as unrestricted.
				ok = true
			}
			if !ok {
				excludedByPython = true
				continue
			}
		}
		candidates = append(candidates, candidate{raw: raw, parsed: parsed})
	}

	// IncompatiblePython only when the requires-python filter alone emptied
	// the set. Once any candidate survives it, an empty result is the
	// specifiers' doing and reports NoMatchingVersion.
	if len(candidates) == 0 && excludedByPython {
		return "", errors.New(errors.ErrCodeIncompatiblePython,
			"no release of %s supports python %s", pkg.Name, pythonVersion)
	}

	for _, spec := range specs {
		candidates, err = applySpecifier(candidates, spec)
		if err != nil {
			return "", err
		}
	}
	if len(specs) == 0 {
		candidates = preferFinal(candidates)
	}

	if len(candidates) == 0 {
		return "", errors.New(errors.ErrCodeNoMatchingVersion,
			"no version of %s matches %q", pkg.Name, specs.String())
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].parsed.LessThan(candidates[j].parsed)
	})
	return candidates[len(candidates)-1].raw, nil
}

// releaseRequiresPython returns the release's requires-python declaration.
// The index reports it per file; the first file that declares one speaks for
// the release.
func releaseRequiresPython(rel *pypi.Release) string {
	for _, f := range rel.Files {
		if f.RequiresPython != "" {
			return f.RequiresPython
		}
	}
	return ""
}

// pythonSatisfies checks the runtime against a requires-python specifier
// string such as ">=3.6,!=3.0.*".
func pythonSatisfies(runtime *goversion.Version, requires string) (bool, error) {
	specs := SpecifierSet{}
	for _, clause := range strings.Split(requires, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		spec, err := parseSpecifier(clause)
		if err != nil {
			return false, err
		}
		specs = append(specs, spec)
	}
	cands := []candidate{{raw: runtime.Original(), parsed: runtime}}
	for _, spec := range specs {
		var err error
		cands, err = applySpecifier(cands, spec)
		if err != nil {
			return false, err
		}
		if len(cands) == 0 {
			return false, nil
		}
	}
	return true, nil
}

// applySpecifier narrows candidates to those matching one clause.
func applySpecifier(candidates []candidate, spec Specifier) ([]candidate, error) {
	wildcard := strings.HasSuffix(spec.Version, ".*")
	var operand *goversion.Version
	if !wildcard {
		var err error
		operand, err = goversion.NewVersion(spec.Version)
		if err != nil {
			return nil, errors.New(errors.ErrCodeInvalidRequirement,
				"invalid version %q in clause %q", spec.Version, spec.String())
		}
	}

	// A clause naming a final version is not an opt-in to pre-releases.
	if operand == nil || operand.Prerelease() == "" {
		candidates = preferFinal(candidates)
	}

	var keep func(candidate) (bool, error)
	switch spec.Op {
	case "==":
		if wildcard {
			prefix := strings.TrimSuffix(spec.Version, "*")
			keep = func(c candidate) (bool, error) { return matchesPrefix(c.raw, prefix), nil }
		} else {
			keep = func(c candidate) (bool, error) { return c.parsed.Equal(operand), nil }
		}
	case "!=":
		if wildcard {
			prefix := strings.TrimSuffix(spec.Version, "*")
			keep = func(c candidate) (bool, error) { return !matchesPrefix(c.raw, prefix), nil }
		} else {
			keep = func(c candidate) (bool, error) { return !c.parsed.Equal(operand), nil }
		}
	case "<":
		keep = func(c candidate) (bool, error) { return c.parsed.LessThan(operand), nil }
	case "<=":
		keep = func(c candidate) (bool, error) { return c.parsed.Compare(operand) <= 0, nil }
	case ">":
		keep = func(c candidate) (bool, error) { return c.parsed.GreaterThan(operand), nil }
	case ">=":
		keep = func(c candidate) (bool, error) { return c.parsed.Compare(operand) >= 0, nil }
	case "~=":
		upper, err := compatibleUpperBound(spec.Version)
		if err != nil {
			return nil, err
		}
		keep = func(c candidate) (bool, error) {
			return c.parsed.Compare(operand) >= 0 && c.parsed.LessThan(upper), nil
		}
	case "===":
		keep = func(c candidate) (bool, error) { return c.raw == spec.Version, nil }
	default:
		return nil, errors.New(errors.ErrCodeUnsupportedOperator,
			"unsupported version operator %q in clause %q", spec.Op, spec.String())
	}

	out := candidates[:0]
	for _, c := range candidates {
		ok, err := keep(c)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// preferFinal drops pre-release candidates unless that would leave nothing.
func preferFinal(candidates []candidate) []candidate {
	finals := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.parsed.Prerelease() == "" {
			finals = append(finals, c)
		}
	}
	if len(finals) == 0 {
		return candidates
	}
	return finals
}

// matchesPrefix implements the "==1.4.*" wildcard: the candidate's release
// components must start with the given dotted prefix on component
// boundaries ("1.4." matches "1.4" and "1.4.2" but not "1.40").
func matchesPrefix(raw, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, ".")
	want := strings.Split(prefix, ".")
	have := strings.Split(raw, ".")
	if len(have) < len(want) {
		// "1.4" has an implicit zero tail, so "==1.4.0.*" still matches it.
		for len(have) < len(want) {
			have = append(have, "0")
		}
	}
	for i := range want {
		a, b := want[i], have[i]
		if a != b && !(isZero(a) && isZero(b)) {
			return false
		}
	}
	return true
}

func isZero(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] != '0' {
			return false
		}
	}
	return true
}

// compatibleUpperBound computes the exclusive upper bound of a "~=" clause
// from the operand's written components: ~=1.4.2 admits <1.5.0 and ~=2.2
// admits <3.0. The written form matters, so the parsed version (which pads
// to three components) cannot be used here.
func compatibleUpperBound(operand string) (*goversion.Version, error) {
	parts := strings.Split(strings.SplitN(operand, "-", 2)[0], ".")
	if len(parts) < 2 {
		return nil, errors.New(errors.ErrCodeInvalidRequirement,
			"compatible-release clause needs at least two version components, got %q", operand)
	}
	bump := parts[:len(parts)-1]
	n, err := strconv.Atoi(bump[len(bump)-1])
	if err != nil {
		return nil, errors.New(errors.ErrCodeInvalidRequirement,
			"non-numeric component %q in compatible-release clause %q", bump[len(bump)-1], operand)
	}
	bumped := make([]string, len(bump))
	copy(bumped, bump)
	bumped[len(bumped)-1] = strconv.Itoa(n + 1)
	upper := strings.Join(bumped, ".") + ".0"
	return goversion.NewVersion(upper)
}
