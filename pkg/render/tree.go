package render

import (
	"bytes"
	"fmt"

	"github.com/wheelhouse-dev/wheelhouse/pkg/deps"
)

// Tree renders the graph as an indented listing, one node per line. A node
// reached from several parents is expanded once and annotated
// "(already listed)" everywhere else; releases without a wheel get a
// "(no whl)" tag since they are slower to install and inspect.
//
//	requests==2.28.1
//	. certifi==2022.9.24
//	. urllib3==1.26.12 via <1.27,>=1.21.1
func Tree(root *deps.DepNode) string {
	var buf bytes.Buffer
	buf.WriteString(nodeLine(root, "", false))
	buf.WriteByte('\n')
	seen := map[*deps.DepNode]bool{root: true}
	writeChildren(&buf, root, 1, seen)
	return buf.String()
}

func writeChildren(buf *bytes.Buffer, n *deps.DepNode, depth int, seen map[*deps.DepNode]bool) {
	prefix := ""
	for i := 0; i < depth; i++ {
		prefix += ". "
	}
	for _, e := range n.Deps {
		line := nodeLine(e.Target, e.Constraints, seen[e.Target])
		buf.WriteString(prefix + line + "\n")
		if seen[e.Target] {
			continue
		}
		seen[e.Target] = true
		writeChildren(buf, e.Target, depth+1, seen)
	}
}

func nodeLine(n *deps.DepNode, constraints string, alreadyListed bool) string {
	line := n.Label()
	if constraints != "" {
		line += fmt.Sprintf(" via %s", constraints)
	}
	if !n.HasBdist {
		line += " (no whl)"
	}
	if alreadyListed {
		line += " (already listed)"
	}
	return line
}
