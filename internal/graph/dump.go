// dump.go - 以表格形式打印图

package graph

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/tangzhangming/novaopt/internal/stamp"
)

// Dump 把存活节点逐行写成表格：id、种类、运算符、输入、使用者、stamp
func Dump(w io.Writer, g *Graph) {
	fmt.Fprintf(w, "graph %s  %d nodes  stages %s\n", g.name, g.live, g.state)
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Kind", "Op", "Inputs", "Usages", "Stamp"})
	table.SetAutoWrapText(false)
	for _, id := range g.Nodes() {
		n := g.nodes[id]
		table.Append([]string{
			id.String(),
			n.kind.String(),
			detail(n),
			joinIDs(n.inputs),
			joinIDs(n.Usages()),
			stamp.Format(n.stamp),
		})
	}
	table.Render()
}

func detail(n *Node) string {
	switch n.kind {
	case KindUnary, KindBinary, KindShift:
		return n.op.String()
	case KindConvert:
		return fmt.Sprintf("%s %d->%d", n.op, n.from, n.to)
	case KindPi:
		return stamp.Format(n.piStamp)
	case KindParam:
		return "#" + strconv.Itoa(n.index) + " " + n.name
	case KindProj:
		if n.index == 0 {
			return "true"
		}
		return "false"
	case KindStore, KindCall:
		return n.name
	case KindPhi:
		if n.IsLoopPhi() {
			return "loop"
		}
	}
	return ""
}

func joinIDs(ids []NodeID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, " ")
}
