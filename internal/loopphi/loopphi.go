// Package loopphi 删除只在循环内部自我维持的 phi 环
//
// 只看使用次数无法发现 a = phi(0, a+1) 这样的环：a 与 a+1 互相使用，
// 但没有任何可观察的效果用到它们。这里从根出发沿输入边做可达性标记，
// 未被标记的节点一并删除。根是控制节点（start、return、store、call、
// 合并点、循环头、回边、分支）以及其他锚点（参数、可能陷入的除法）。
//
// 需要在规范化到达不动点之后运行；删除后再规范化一次，可能会暴露
// 新的化简机会。
package loopphi

import (
	"github.com/bits-and-blooms/bitset"
	"go.uber.org/zap"

	"github.com/tangzhangming/novaopt/internal/graph"
)

// Options 参数
type Options struct {
	Logger *zap.Logger
}

// Stats 删除统计
type Stats struct {
	PhisRemoved  int
	NodesRemoved int // 包括 phi
}

// Reduce 删除从根不可达的节点
func Reduce(g *graph.Graph, opts Options) Stats {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	live := Live(g)

	var dead []graph.NodeID
	var stats Stats
	for _, id := range g.Nodes() {
		if live.Test(uint(id)) {
			continue
		}
		dead = append(dead, id)
		if g.MustNode(id).Kind() == graph.KindPhi {
			stats.PhisRemoved++
		}
	}
	stats.NodesRemoved = len(dead)
	if len(dead) == 0 {
		return stats
	}
	for _, id := range dead {
		log.Debug("dead node", zap.String("graph", g.Name()), zap.Stringer("node", g.MustNode(id)))
	}
	g.RemoveAll(dead)
	log.Debug("loop phis reduced",
		zap.String("graph", g.Name()),
		zap.Int("phis", stats.PhisRemoved),
		zap.Int("nodes", stats.NodesRemoved),
	)
	return stats
}

// IsRoot 节点是否有外部可观察的效果
func IsRoot(g *graph.Graph, id graph.NodeID) bool {
	return g.IsAnchor(id)
}

// Live 返回从根沿输入边可达的节点集合
func Live(g *graph.Graph) *bitset.BitSet {
	live := bitset.New(uint(g.Cap()))
	var stack []graph.NodeID
	for _, id := range g.Nodes() {
		if IsRoot(g, id) {
			live.Set(uint(id))
			stack = append(stack, id)
		}
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, in := range g.MustNode(id).Inputs() {
			if !live.Test(uint(in)) {
				live.Set(uint(in))
				stack = append(stack, in)
			}
		}
	}
	return live
}

// LivePhis 循环头上存活的 phi
func LivePhis(g *graph.Graph, begin graph.NodeID) []graph.NodeID {
	live := Live(g)
	var out []graph.NodeID
	for _, p := range g.Phis(begin) {
		if live.Test(uint(p)) {
			out = append(out, p)
		}
	}
	return out
}
