// Package order 校验图存在合法的线性调度
//
// 切断循环回边（循环头除入口外的输入、循环 phi 对应回边的值）之后，
// 数据与控制依赖必须构成无环图，每个节点的定义都能排在所有使用之前。
// 此外每个浮动节点都必须经由使用链到达某个根，否则调度器无处安放它。
//
// 校验是只读的，规范化和 loopphi 之后都可以调用。
package order

import (
	"fmt"

	"github.com/google/btree"
	"go.uber.org/multierr"

	"github.com/tangzhangming/novaopt/internal/errors"
	"github.com/tangzhangming/novaopt/internal/graph"
	"github.com/tangzhangming/novaopt/internal/loopphi"
)

// Options 校验参数
type Options struct {
	// AllowUnrooted 不检查浮动节点能否到达根。没有运行 loopphi 的层级
	// 会残留自我维持的死环，它们不影响调度。
	AllowUnrooted bool
}

// Problem 图中的一处问题
type Problem struct {
	Node graph.NodeID
	Msg  string
}

// Error 实现 error 接口
func (p *Problem) Error() string {
	return fmt.Sprintf("%s: %s", p.Node, p.Msg)
}

func problemf(id graph.NodeID, format string, args ...interface{}) error {
	return &Problem{Node: id, Msg: fmt.Sprintf(format, args...)}
}

// Problems 展开 Verify 返回的错误
func Problems(err error) []*Problem {
	var out []*Problem
	for _, e := range multierr.Errors(err) {
		var p *Problem
		if errors.As(e, &p) {
			out = append(out, p)
		}
	}
	return out
}

// ============================================================================
// 入口
// ============================================================================

// Verify 检查图的结构不变量，返回全部问题合并后的错误，没有问题时返回 nil
func Verify(g *graph.Graph, opts Options) error {
	// 边不一致时后面的检查会访问已删除的节点
	if err := checkEdges(g); err != nil {
		return err
	}
	var err error
	err = multierr.Append(err, checkMerges(g))
	if _, serr := Schedule(g); serr != nil {
		err = multierr.Append(err, serr)
	}
	if !opts.AllowUnrooted {
		err = multierr.Append(err, checkRooted(g))
	}
	return err
}

// AssertSchedulable 同 Verify，失败时返回 B0001 bailout，节点为第一处问题
func AssertSchedulable(g *graph.Graph, opts Options) error {
	err := Verify(g, opts)
	if err == nil {
		return nil
	}
	problems := Problems(err)
	node := errors.NoNode
	if len(problems) > 0 {
		node = int(problems[0].Node)
	}
	return errors.WithDetailf(
		errors.WrapBailout(err, errors.B0001, g.Name(), node),
		"%d problems in %d nodes", len(problems), g.Len())
}

// ============================================================================
// 拓扑序
// ============================================================================

// Schedule 返回切断回边后的一个拓扑序，同层按节点下标排列
//
// 存在不经过循环 phi 的环时，返回已排好的前缀和环上每个节点的问题。
func Schedule(g *graph.Graph) ([]graph.NodeID, error) {
	ids := g.Nodes()
	pending := make([]int, g.Cap())
	ready := btree.NewG[graph.NodeID](8, func(a, b graph.NodeID) bool { return a < b })
	for _, id := range ids {
		n := g.MustNode(id)
		for i := 0; i < n.NumInputs(); i++ {
			if !g.IsBackEdge(id, i) {
				pending[id]++
			}
		}
		if pending[id] == 0 {
			ready.ReplaceOrInsert(id)
		}
	}

	order := make([]graph.NodeID, 0, len(ids))
	for ready.Len() > 0 {
		id, _ := ready.DeleteMin()
		order = append(order, id)
		for _, u := range g.MustNode(id).Usages() {
			un := g.MustNode(u)
			for i := 0; i < un.NumInputs(); i++ {
				if un.Input(i) != id || g.IsBackEdge(u, i) {
					continue
				}
				pending[u]--
				if pending[u] == 0 {
					ready.ReplaceOrInsert(u)
				}
			}
		}
	}
	if len(order) == len(ids) {
		return order, nil
	}
	return order, cycleProblems(g, pending)
}

// cycleProblems 从未排序的节点中剔除只是依赖环的节点，剩下环上的节点
func cycleProblems(g *graph.Graph, pending []int) error {
	blocked := func(id graph.NodeID) bool { return pending[id] > 0 }

	users := make([]int, g.Cap())
	var trim []graph.NodeID
	for _, id := range g.Nodes() {
		if !blocked(id) {
			continue
		}
		seen := map[graph.NodeID]bool{}
		for _, u := range g.MustNode(id).Usages() {
			if !seen[u] && blocked(u) && usesForward(g, u, id) {
				seen[u] = true
				users[id]++
			}
		}
		if users[id] == 0 {
			trim = append(trim, id)
		}
	}
	for len(trim) > 0 {
		id := trim[len(trim)-1]
		trim = trim[:len(trim)-1]
		pending[id] = 0
		seen := map[graph.NodeID]bool{}
		for _, in := range g.MustNode(id).Inputs() {
			if seen[in] || !blocked(in) || !usesForward(g, id, in) {
				continue
			}
			seen[in] = true
			users[in]--
			if users[in] == 0 {
				trim = append(trim, in)
			}
		}
	}

	var err error
	for _, id := range g.Nodes() {
		if blocked(id) {
			err = multierr.Append(err, problemf(id, "on a dependency cycle not broken by a loop phi"))
		}
	}
	return err
}

// usesForward user 是否经由非回边使用 def
func usesForward(g *graph.Graph, user, def graph.NodeID) bool {
	n := g.MustNode(user)
	for i := 0; i < n.NumInputs(); i++ {
		if n.Input(i) == def && !g.IsBackEdge(user, i) {
			return true
		}
	}
	return false
}

// ============================================================================
// 结构检查
// ============================================================================

// checkEdges 输入指向存活节点，使用者多重集与输入边一致
func checkEdges(g *graph.Graph) error {
	var err error
	for _, id := range g.Nodes() {
		n := g.MustNode(id)
		counts := map[graph.NodeID]int{}
		for i, in := range n.Inputs() {
			if !g.IsAlive(in) {
				err = multierr.Append(err, problemf(id, "input %d is the dead node %s", i, in))
				continue
			}
			counts[in]++
		}
		for in, c := range counts {
			if got := g.MustNode(in).UsageCountOf(id); got != c {
				err = multierr.Append(err, problemf(id, "uses %s %d times but is recorded %d times", in, c, got))
			}
		}
		for _, u := range n.Usages() {
			un := g.Node(u)
			if un == nil {
				err = multierr.Append(err, problemf(id, "used by the dead node %s", u))
				continue
			}
			if !containsInput(un, id) {
				err = multierr.Append(err, problemf(id, "recorded as used by %s, which does not use it", u))
			}
		}
	}
	return err
}

func containsInput(n *graph.Node, id graph.NodeID) bool {
	for i := 0; i < n.NumInputs(); i++ {
		if n.Input(i) == id {
			return true
		}
	}
	return false
}

// checkMerges phi 与合并点一致，循环头与回边互相登记
func checkMerges(g *graph.Graph) error {
	var err error
	for _, id := range g.Nodes() {
		n := g.MustNode(id)
		switch n.Kind() {
		case graph.KindPhi:
			m := g.MustNode(n.Merge())
			if !m.Kind().IsMerge() {
				err = multierr.Append(err, problemf(id, "phi attached to %s, which is not a merge", m))
				continue
			}
			if got, want := len(n.PhiValues()), g.PredecessorCount(m.ID()); got != want {
				err = multierr.Append(err, problemf(id, "phi has %d values for %d predecessors", got, want))
			}
			if n.IsLoopPhi() != (m.Kind() == graph.KindLoopBegin) {
				err = multierr.Append(err, problemf(id, "loop phi flag does not match %s", m))
			}
		case graph.KindLoopBegin:
			for _, end := range g.LoopEnds(id) {
				en := g.MustNode(end)
				if en.Kind() != graph.KindLoopEnd || en.Input(1) != id {
					err = multierr.Append(err, problemf(id, "back edge %s does not end this loop", en))
				}
			}
		case graph.KindLoopEnd, graph.KindLoopExit:
			b := g.MustNode(n.Input(1))
			if b.Kind() != graph.KindLoopBegin {
				err = multierr.Append(err, problemf(id, "%s is not a loop begin", b))
				continue
			}
			if n.Kind() == graph.KindLoopEnd && !containsInput(b, id) {
				err = multierr.Append(err, problemf(id, "not registered as a back edge of %s", b))
			}
		}
	}
	return err
}

// checkRooted 每个节点都能沿使用链到达根
func checkRooted(g *graph.Graph) error {
	live := loopphi.Live(g)
	var err error
	for _, id := range g.Nodes() {
		if !live.Test(uint(id)) {
			err = multierr.Append(err, problemf(id, "floating node has no path to a root"))
		}
	}
	return err
}
