package render

import (
	"strings"
	"testing"

	"github.com/wheelhouse-dev/wheelhouse/pkg/deps"
)

func sampleGraph() *deps.DepNode {
	d := &deps.DepNode{Name: "d", Version: "1.0", HasBdist: true, Done: true}
	b := &deps.DepNode{Name: "b", Version: "1.0", HasBdist: true, Done: true,
		Deps: []*deps.DepEdge{{Target: d, Constraints: ">=1.0"}}}
	c := &deps.DepNode{Name: "c", Version: "2.0", HasSdist: true, Done: true,
		Deps: []*deps.DepEdge{{Target: d}}}
	return &deps.DepNode{Name: "a", Version: "1.0", HasBdist: true, Done: true,
		Deps: []*deps.DepEdge{{Target: b}, {Target: c}}}
}

func TestTree(t *testing.T) {
	got := Tree(sampleGraph())
	want := strings.Join([]string{
		"a==1.0",
		". b==1.0",
		". . d==1.0 via >=1.0",
		". c==2.0 (no whl)",
		". . d==1.0 (already listed)",
		"",
	}, "\n")
	if got != want {
		t.Errorf("Tree() =\n%s\nwant:\n%s", got, want)
	}
}

func TestTree_Cycle(t *testing.T) {
	a := &deps.DepNode{Name: "a", Version: "1.0", HasBdist: true}
	b := &deps.DepNode{Name: "b", Version: "1.0", HasBdist: true}
	a.Deps = []*deps.DepEdge{{Target: b}}
	b.Deps = []*deps.DepEdge{{Target: a}}

	got := Tree(a)
	if !strings.Contains(got, "a==1.0 (already listed)") {
		t.Errorf("cycle not cut:\n%s", got)
	}
}

func TestToDOT(t *testing.T) {
	dot := ToDOT(sampleGraph())

	for _, want := range []string{
		"digraph deps {",
		`"a==1.0" -> "b==1.0";`,
		`"b==1.0" -> "d==1.0" [label=">=1.0"];`,
		`"c==2.0" -> "d==1.0";`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %q:\n%s", want, dot)
		}
	}

	// d is shared but must be declared once. Node declarations start the
	// line; edge lines mentioning d carry a "->" before it.
	if strings.Count(dot, "\n  \"d==1.0\" [") != 1 {
		t.Errorf("d declared more than once:\n%s", dot)
	}

	// A wheel-less release renders dashed.
	if !strings.Contains(dot, `"c==2.0" [label="c==2.0", style="rounded,filled,dashed"];`) {
		t.Errorf("missing dashed style for c:\n%s", dot)
	}
}
