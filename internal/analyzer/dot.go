package analyzer

import (
	"github.com/emicklei/dot"
)

// DOT renders the file's repaired revision graph (parent/child chains,
// branch sprouts labeled with the branch name, dead revisions dashed)
// as a Graphviz graph; tags are not drawn. It is a debugging aid
// for the timestamp-resync and default-branch-inference logic that has
// no other visible output before the (out of scope) emission phase.
func (fa *FileAnalyzer) DOT() *dot.Graph {
	g := dot.NewGraph(dot.Directed)
	g.Attr("label", fa.path)

	nodes := make(map[string]dot.Node)
	node := func(num string) dot.Node {
		if n, ok := nodes[num]; ok {
			return n
		}
		n := g.Node(num).Label(num)
		nodes[num] = n
		return n
	}

	for _, num := range fa.revOrder {
		rd := fa.revisions[num]
		n := node(num)
		if rd.State == "dead" {
			n.Attr("style", "dashed")
		}
		if rd.Parent != "" {
			g.Edge(node(rd.Parent), n)
		}
	}
	for _, v := range fa.branchOrder.Values() {
		bnum := v.(string)
		bd := fa.branches[bnum]
		if bd.Child == "" {
			continue
		}
		if parent, ok := fa.revisions[bd.ParentRevnum]; ok {
			g.Edge(node(parent.Number), node(bd.Child)).Label(bd.Name)
		}
	}
	return g
}
