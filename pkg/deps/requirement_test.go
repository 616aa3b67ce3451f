package deps

import (
	"reflect"
	"testing"

	"github.com/wheelhouse-dev/wheelhouse/pkg/errors"
)

func TestParseRequirement(t *testing.T) {
	cases := []struct {
		in   string
		want Requirement
	}{
		{
			in:   "requests",
			want: Requirement{Name: "requests"},
		},
		{
			in:   "Flask (>=1.0)",
			want: Requirement{Name: "flask", Specifiers: SpecifierSet{{Op: ">=", Version: "1.0"}}},
		},
		{
			in: "requests[socks,security]>=2.0,<3",
			want: Requirement{
				Name:   "requests",
				Extras: []string{"socks", "security"},
				Specifiers: SpecifierSet{
					{Op: ">=", Version: "2.0"},
					{Op: "<", Version: "3"},
				},
			},
		},
		{
			in: `colorama; sys_platform == "win32"`,
			want: Requirement{
				Name:    "colorama",
				Markers: `; sys_platform == "win32"`,
			},
		},
		{
			in: `typing_extensions (>=3.6.4) ; python_version < "3.8"`,
			want: Requirement{
				Name:       "typing-extensions",
				Specifiers: SpecifierSet{{Op: ">=", Version: "3.6.4"}},
				Markers:    `; python_version < "3.8"`,
			},
		},
		{
			// Bare version means exact match.
			in:   "six (1.12.0)",
			want: Requirement{Name: "six", Specifiers: SpecifierSet{{Op: "==", Version: "1.12.0"}}},
		},
		{
			in:   "  idna !=2.1, ==2.*  ",
			want: Requirement{Name: "idna", Specifiers: SpecifierSet{{Op: "!=", Version: "2.1"}, {Op: "==", Version: "2.*"}}},
		},
	}
	for _, tc := range cases {
		got, err := ParseRequirement(tc.in)
		if err != nil {
			t.Errorf("ParseRequirement(%q) failed: %v", tc.in, err)
			continue
		}
		if !reflect.DeepEqual(*got, tc.want) {
			t.Errorf("ParseRequirement(%q) = %+v, want %+v", tc.in, *got, tc.want)
		}
	}
}

func TestParseRequirement_Invalid(t *testing.T) {
	for _, in := range []string{"", "   "} {
		_, err := ParseRequirement(in)
		if err == nil {
			t.Errorf("ParseRequirement(%q) succeeded, want error", in)
			continue
		}
		if !errors.Is(err, errors.ErrCodeInvalidRequirement) {
			t.Errorf("ParseRequirement(%q): expected INVALID_REQUIREMENT, got %v", in, err)
		}
	}
}

func TestSpecifierSet_String(t *testing.T) {
	ss := SpecifierSet{{Op: ">=", Version: "2.0"}, {Op: "<", Version: "3"}}
	if got := ss.String(); got != ">=2.0,<3" {
		t.Errorf("String() = %q, want %q", got, ">=2.0,<3")
	}
	if got := (SpecifierSet{}).String(); got != "" {
		t.Errorf("empty String() = %q, want empty", got)
	}
}
