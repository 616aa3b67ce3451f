package deps

import (
	"regexp"
	"strings"

	"github.com/wheelhouse-dev/wheelhouse/pkg/errors"
	"github.com/wheelhouse-dev/wheelhouse/pkg/pypi"
)

// requirementRE splits a requirement line into name, extras, version
// constraints, and the trailing marker expression. Parentheses around the
// constraint list (old metadata style, "Flask (>=1.0)") are tolerated.
var requirementRE = regexp.MustCompile(`^([\w.-]+)(?:\[([\w,-]+)\])?\s*(?:\(?(.*?)\)?)?\s*(;.*)?$`)

// Specifier is a single version clause, e.g. ">=1.0".
//
// The operator is captured permissively at parse time; whether it is actually
// supported is decided during version selection, so a requirement with an
// exotic clause can still be displayed even if it cannot be resolved.
type Specifier struct {
	Op      string
	Version string
}

func (s Specifier) String() string { return s.Op + s.Version }

// SpecifierSet is the conjunction of all clauses of one requirement.
type SpecifierSet []Specifier

// String renders the set in the conventional comma-joined form.
func (ss SpecifierSet) String() string {
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = s.String()
	}
	return strings.Join(parts, ",")
}

// Requirement is a parsed dependency declaration.
type Requirement struct {
	Name       string // canonical (normalized) package name
	Extras     []string
	Specifiers SpecifierSet
	Markers    string // raw marker text including the leading ";" ("" if absent)
}

// specifierClauseRE splits one comma-separated clause into operator and
// version operand. The operand may carry a trailing ".*" wildcard. Any run
// of operator punctuation is accepted; validation happens at selection time.
var specifierClauseRE = regexp.MustCompile(`^\s*([<>=!~^$@*]*)\s*(.*?)\s*$`)

// ParseRequirement parses one requirement line such as
//
//	requests[socks] (>=2.0,<3) ; python_version >= "3.5"
//
// Comment lines and blank lines are the caller's problem; this function
// expects a single declaration. Operators are not validated here.
func ParseRequirement(line string) (*Requirement, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, errors.New(errors.ErrCodeInvalidRequirement, "empty requirement")
	}

	m := requirementRE.FindStringSubmatch(line)
	if m == nil || m[1] == "" {
		return nil, errors.New(errors.ErrCodeInvalidRequirement, "could not parse requirement %q", line)
	}

	req := &Requirement{
		Name:    pypi.NormalizeName(m[1]),
		Markers: strings.TrimSpace(m[4]),
	}

	if m[2] != "" {
		for _, e := range strings.Split(m[2], ",") {
			e = strings.TrimSpace(e)
			if e != "" {
				req.Extras = append(req.Extras, e)
			}
		}
	}

	constraints := strings.TrimSpace(m[3])
	if constraints != "" {
		for _, clause := range strings.Split(constraints, ",") {
			clause = strings.TrimSpace(clause)
			if clause == "" {
				continue
			}
			spec, err := parseSpecifier(clause)
			if err != nil {
				return nil, err
			}
			req.Specifiers = append(req.Specifiers, spec)
		}
	}
	return req, nil
}

func parseSpecifier(clause string) (Specifier, error) {
	cm := specifierClauseRE.FindStringSubmatch(clause)
	if cm == nil {
		return Specifier{}, errors.New(errors.ErrCodeInvalidRequirement, "could not parse version clause %q", clause)
	}
	op, version := cm[1], cm[2]
	if version == "" {
		return Specifier{}, errors.New(errors.ErrCodeInvalidRequirement, "version clause %q has no operand", clause)
	}
	if op == "" {
		// Bare version means exact match in legacy metadata.
		op = "=="
	}
	return Specifier{Op: op, Version: version}, nil
}
