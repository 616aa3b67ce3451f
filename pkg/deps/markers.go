package deps

import (
	"strings"

	goversion "github.com/hashicorp/go-version"

	"github.com/wheelhouse-dev/wheelhouse/pkg/errors"
)

// Environment holds the marker variables describing the target interpreter
// and platform. Zero fields evaluate as empty strings, matching how an
// interpreter reports unknown values.
type Environment struct {
	OSName                string
	SysPlatform           string
	PlatformMachine       string
	PlatformPythonImpl    string
	PlatformRelease       string
	PlatformSystem        string
	PlatformVersion       string
	PythonVersion         string // major.minor
	PythonFullVersion     string
	ImplementationName    string
	ImplementationVersion string
}

// DefaultEnvironment models a CPython interpreter of the given full version
// on a generic Linux/x86_64 host.
func DefaultEnvironment(pythonVersion string) *Environment {
	short := pythonVersion
	if parts := strings.Split(pythonVersion, "."); len(parts) >= 2 {
		short = parts[0] + "." + parts[1]
	}
	return &Environment{
		OSName:                "posix",
		SysPlatform:           "linux",
		PlatformMachine:       "x86_64",
		PlatformPythonImpl:    "CPython",
		PlatformSystem:        "Linux",
		PythonVersion:         short,
		PythonFullVersion:     pythonVersion,
		ImplementationName:    "cpython",
		ImplementationVersion: pythonVersion,
	}
}

// lookup resolves a marker variable name. The second return is false for
// names the grammar does not define.
func (e *Environment) lookup(name string) (string, bool) {
	switch name {
	case "os_name":
		return e.OSName, true
	case "sys_platform":
		return e.SysPlatform, true
	case "platform_machine":
		return e.PlatformMachine, true
	case "platform_python_implementation":
		return e.PlatformPythonImpl, true
	case "platform_release":
		return e.PlatformRelease, true
	case "platform_system":
		return e.PlatformSystem, true
	case "platform_version":
		return e.PlatformVersion, true
	case "python_version":
		return e.PythonVersion, true
	case "python_full_version":
		return e.PythonFullVersion, true
	case "implementation_name":
		return e.ImplementationName, true
	case "implementation_version":
		return e.ImplementationVersion, true
	default:
		return "", false
	}
}

// ExtrasScope is the set of extras active while evaluating a marker. The
// "extra" pseudo-variable compares equal to any member of the set; with Any
// set it compares equal to everything, which is how extra-gated edges are
// force-included.
type ExtrasScope struct {
	Extras []string
	Any    bool
}

func (s ExtrasScope) matches(value string) bool {
	if s.Any {
		return true
	}
	for _, e := range s.Extras {
		if e == value {
			return true
		}
	}
	return false
}

// EvaluateMarkers evaluates a marker expression (with or without the leading
// ";") against the environment. An empty expression is true.
func EvaluateMarkers(expr string, env *Environment, scope ExtrasScope) (bool, error) {
	expr = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(expr), ";"))
	if expr == "" {
		return true, nil
	}
	toks, err := lexMarkers(expr)
	if err != nil {
		return false, err
	}
	p := &markerParser{tokens: toks, env: env, scope: scope}
	result, err := p.parseOr()
	if err != nil {
		return false, err
	}
	if p.pos != len(p.tokens) {
		return false, errors.New(errors.ErrCodeUnsupportedMarker, "trailing input in marker %q", expr)
	}
	return result, nil
}

type markerToken struct {
	kind  string // "ident", "string", "op", "lparen", "rparen"
	value string
}

func lexMarkers(expr string) ([]markerToken, error) {
	var toks []markerToken
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(':
			toks = append(toks, markerToken{"lparen", "("})
			i++
		case c == ')':
			toks = append(toks, markerToken{"rparen", ")"})
			i++
		case c == '"' || c == '\'':
			quote := c
			j := i + 1
			for j < len(expr) && expr[j] != quote {
				j++
			}
			if j >= len(expr) {
				return nil, errors.New(errors.ErrCodeUnsupportedMarker, "unterminated string in marker %q", expr)
			}
			toks = append(toks, markerToken{"string", expr[i+1 : j]})
			i = j + 1
		case strings.ContainsRune("<>=!~", rune(c)):
			j := i
			for j < len(expr) && strings.ContainsRune("<>=!~", rune(expr[j])) {
				j++
			}
			toks = append(toks, markerToken{"op", expr[i:j]})
			i = j
		case isIdentByte(c):
			j := i
			for j < len(expr) && isIdentByte(expr[j]) {
				j++
			}
			toks = append(toks, markerToken{"ident", expr[i:j]})
			i = j
		default:
			return nil, errors.New(errors.ErrCodeUnsupportedMarker, "unexpected character %q in marker %q", string(c), expr)
		}
	}
	return toks, nil
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '.' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// markerParser is a recursive-descent evaluator over the token stream.
// Grammar: or := and ("or" and)* ; and := not ("and" not)* ;
// not := "not" not | atom ; atom := "(" or ")" | comparison.
type markerParser struct {
	tokens []markerToken
	pos    int
	env    *Environment
	scope  ExtrasScope
}

func (p *markerParser) peek() (markerToken, bool) {
	if p.pos >= len(p.tokens) {
		return markerToken{}, false
	}
	return p.tokens[p.pos], true
}

func (p *markerParser) parseOr() (bool, error) {
	result, err := p.parseAnd()
	if err != nil {
		return false, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != "ident" || t.value != "or" {
			return result, nil
		}
		p.pos++
		rhs, err := p.parseAnd()
		if err != nil {
			return false, err
		}
		result = result || rhs
	}
}

func (p *markerParser) parseAnd() (bool, error) {
	result, err := p.parseNot()
	if err != nil {
		return false, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != "ident" || t.value != "and" {
			return result, nil
		}
		p.pos++
		rhs, err := p.parseNot()
		if err != nil {
			return false, err
		}
		result = result && rhs
	}
}

func (p *markerParser) parseNot() (bool, error) {
	if t, ok := p.peek(); ok && t.kind == "ident" && t.value == "not" {
		p.pos++
		inner, err := p.parseNot()
		if err != nil {
			return false, err
		}
		return !inner, nil
	}
	return p.parseAtom()
}

func (p *markerParser) parseAtom() (bool, error) {
	t, ok := p.peek()
	if !ok {
		return false, errors.New(errors.ErrCodeUnsupportedMarker, "unexpected end of marker expression")
	}
	if t.kind == "lparen" {
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return false, err
		}
		closing, ok := p.peek()
		if !ok || closing.kind != "rparen" {
			return false, errors.New(errors.ErrCodeUnsupportedMarker, "missing closing parenthesis in marker")
		}
		p.pos++
		return inner, nil
	}
	return p.parseComparison()
}

// operand is one side of a comparison: either a literal string or a marker
// variable. The extra pseudo-variable is flagged so equality can be answered
// from the scope instead of a single value.
type operand struct {
	value   string
	isExtra bool
}

func (p *markerParser) parseOperand() (operand, error) {
	t, ok := p.peek()
	if !ok {
		return operand{}, errors.New(errors.ErrCodeUnsupportedMarker, "unexpected end of marker expression")
	}
	p.pos++
	switch t.kind {
	case "string":
		return operand{value: t.value}, nil
	case "ident":
		if t.value == "extra" {
			return operand{isExtra: true}, nil
		}
		v, known := p.env.lookup(t.value)
		if !known {
			return operand{}, errors.New(errors.ErrCodeUnsupportedMarker, "unknown marker variable %q", t.value)
		}
		return operand{value: v}, nil
	default:
		return operand{}, errors.New(errors.ErrCodeUnsupportedMarker, "unexpected token %q in marker", t.value)
	}
}

func (p *markerParser) parseComparison() (bool, error) {
	lhs, err := p.parseOperand()
	if err != nil {
		return false, err
	}

	t, ok := p.peek()
	if !ok {
		return false, errors.New(errors.ErrCodeUnsupportedMarker, "marker comparison missing operator")
	}

	var op string
	switch {
	case t.kind == "op":
		op = t.value
		p.pos++
	case t.kind == "ident" && t.value == "in":
		op = "in"
		p.pos++
	case t.kind == "ident" && t.value == "not":
		p.pos++
		next, ok := p.peek()
		if !ok || next.kind != "ident" || next.value != "in" {
			return false, errors.New(errors.ErrCodeUnsupportedMarker, "expected 'in' after 'not' in marker")
		}
		p.pos++
		op = "not in"
	default:
		return false, errors.New(errors.ErrCodeUnsupportedMarker, "expected comparison operator, got %q", t.value)
	}

	rhs, err := p.parseOperand()
	if err != nil {
		return false, err
	}

	if lhs.isExtra || rhs.isExtra {
		return p.compareExtra(lhs, op, rhs)
	}
	return compareValues(lhs.value, op, rhs.value)
}

func (p *markerParser) compareExtra(lhs operand, op string, rhs operand) (bool, error) {
	other := rhs
	if rhs.isExtra {
		other = lhs
	}
	if lhs.isExtra && rhs.isExtra {
		return true, nil
	}
	switch op {
	case "==":
		return p.scope.matches(other.value), nil
	case "!=":
		return !p.scope.matches(other.value), nil
	default:
		return false, errors.New(errors.ErrCodeUnsupportedMarker, "operator %q not valid for extra", op)
	}
}

// compareValues compares two marker values. When both sides parse as
// versions the comparison is numeric, otherwise lexicographic; this is what
// makes python_version >= "3.5" behave sensibly against "3.10".
func compareValues(lhs, op, rhs string) (bool, error) {
	switch op {
	case "in":
		return strings.Contains(rhs, lhs), nil
	case "not in":
		return !strings.Contains(rhs, lhs), nil
	}

	lv, lerr := goversion.NewVersion(lhs)
	rv, rerr := goversion.NewVersion(rhs)
	var cmp int
	if lerr == nil && rerr == nil {
		cmp = lv.Compare(rv)
	} else {
		cmp = strings.Compare(lhs, rhs)
	}

	switch op {
	case "==":
		return cmp == 0, nil
	case "!=":
		return cmp != 0, nil
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	case "===":
		return lhs == rhs, nil
	default:
		return false, errors.New(errors.ErrCodeUnsupportedMarker, "unsupported marker operator %q", op)
	}
}
