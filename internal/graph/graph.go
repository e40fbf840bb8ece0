// graph.go - 节点 arena 与结构修改
//
// 所有修改都经过这里，保证一条边 a -> b（b 是 a 的输入）同时出现在
// a.inputs 和 b.usages 中。结构修改不会自动重新推断 stamp，调用方
// （规范化器）负责把受影响的节点重新放回工作表。

package graph

import (
	"fmt"
	"math"
	"slices"

	"github.com/tangzhangming/novaopt/internal/stamp"
)

// constKey 常量去重键
type constKey struct {
	kind stamp.Kind
	bits int
	raw  uint64
}

// Graph 程序图
type Graph struct {
	name   string
	nodes  []*Node
	free   []NodeID
	live   int
	start  NodeID
	types  *stamp.Hierarchy
	state  State
	folder Folder // 为 nil 时直接查运算表

	constants   map[constKey]NodeID
	unreachable map[constKey]NodeID
}

// New 创建只含 start 节点的图，types 为 nil 时使用只有根类的层次
func New(name string, types *stamp.Hierarchy) *Graph {
	if types == nil {
		types = stamp.NewHierarchy()
	}
	g := &Graph{
		name:        name,
		types:       types,
		constants:   make(map[constKey]NodeID),
		unreachable: make(map[constKey]NodeID),
	}
	g.start = g.add(&Node{kind: KindStart, stamp: stamp.Void()})
	return g
}

// Name 图名
func (g *Graph) Name() string { return g.name }

// SetFolder 设置二元运算 stamp 的计算方式
func (g *Graph) SetFolder(f Folder) { g.folder = f }

// Start start 节点
func (g *Graph) Start() NodeID { return g.start }

// Types 类型层次
func (g *Graph) Types() *stamp.Hierarchy { return g.types }

// State 已应用的优化阶段
func (g *Graph) State() State { return g.state }

// SetState 记录新的阶段快照
func (g *Graph) SetState(s State) { g.state = s }

// Len 存活节点数
func (g *Graph) Len() int { return g.live }

// Cap arena 槽位数，所有 NodeID 都小于它
func (g *Graph) Cap() int { return len(g.nodes) }

// Node 返回节点，已删除或越界时返回 nil
func (g *Graph) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

// IsAlive 节点是否存在
func (g *Graph) IsAlive(id NodeID) bool { return g.Node(id) != nil }

// MustNode 返回节点，不存在时 panic
func (g *Graph) MustNode(id NodeID) *Node {
	n := g.Node(id)
	if n == nil {
		panic(fmt.Sprintf("graph %s: dead or unknown node %s", g.name, id))
	}
	return n
}

// Nodes 按下标顺序返回全部存活节点
func (g *Graph) Nodes() []NodeID {
	out := make([]NodeID, 0, g.live)
	for i, n := range g.nodes {
		if n != nil {
			out = append(out, NodeID(i))
		}
	}
	return out
}

// Count 统计某种节点的个数
func (g *Graph) Count(kind Kind) int {
	c := 0
	for _, n := range g.nodes {
		if n != nil && n.kind == kind {
			c++
		}
	}
	return c
}

// ============================================================================
// arena
// ============================================================================

// add 分配槽位并登记输入边
func (g *Graph) add(n *Node) NodeID {
	var id NodeID
	if k := len(g.free); k > 0 {
		id = g.free[k-1]
		g.free = g.free[:k-1]
		g.nodes[id] = n
	} else {
		id = NodeID(len(g.nodes))
		g.nodes = append(g.nodes, n)
	}
	n.id = id
	for _, in := range n.inputs {
		g.MustNode(in).usages = append(g.nodes[in].usages, id)
	}
	g.live++
	return id
}

// Remove 删除没有使用者的节点，返回它原来的输入（去重）
func (g *Graph) Remove(id NodeID) []NodeID {
	n := g.MustNode(id)
	if len(n.usages) > 0 {
		panic(fmt.Sprintf("graph %s: removing %s with %d usages", g.name, n, len(n.usages)))
	}
	if id == g.start {
		panic(fmt.Sprintf("graph %s: removing start node", g.name))
	}
	var freed []NodeID
	for _, in := range n.inputs {
		g.removeUsage(in, id)
		if !containsID(freed, in) {
			freed = append(freed, in)
		}
	}
	if n.kind == KindConstant {
		key := constantKey(n)
		if g.constants[key] == id {
			delete(g.constants, key)
		}
	}
	if n.kind == KindUnreachable {
		delete(g.unreachable, stampKey(n.stamp))
	}
	g.nodes[id] = nil
	g.free = append(g.free, id)
	g.live--
	return freed
}

// RemoveAll 删除一组只在组内互相使用的节点，例如没有外部使用者的 phi 环
func (g *Graph) RemoveAll(ids []NodeID) {
	for _, id := range ids {
		n := g.MustNode(id)
		for _, in := range n.inputs {
			g.removeUsage(in, id)
		}
		n.inputs = nil
	}
	for _, id := range ids {
		if n := g.nodes[id]; len(n.usages) > 0 {
			panic(fmt.Sprintf("graph %s: %s is still used by %v", g.name, n, n.Usages()))
		}
		g.Remove(id)
	}
}

// removeUsage 从 target 的使用者多重集中删除一次 user
func (g *Graph) removeUsage(target, user NodeID) {
	t := g.nodes[target]
	if t == nil {
		return
	}
	for i, u := range t.usages {
		if u == user {
			last := len(t.usages) - 1
			t.usages[i] = t.usages[last]
			t.usages = t.usages[:last]
			return
		}
	}
	panic(fmt.Sprintf("graph %s: %s is not a usage of %s", g.name, user, target))
}

// ============================================================================
// 边修改
// ============================================================================

// SetInput 把 id 的第 i 个输入改为 input
func (g *Graph) SetInput(id NodeID, i int, input NodeID) {
	n := g.MustNode(id)
	old := n.inputs[i]
	if old == input {
		return
	}
	g.MustNode(input)
	g.removeUsage(old, id)
	n.inputs[i] = input
	g.nodes[input].usages = append(g.nodes[input].usages, id)
}

// AppendInput 在 id 的输入末尾追加一条边
func (g *Graph) AppendInput(id NodeID, input NodeID) {
	n := g.MustNode(id)
	in := g.MustNode(input)
	n.inputs = append(n.inputs, input)
	in.usages = append(in.usages, id)
}

// RemoveInput 删除 id 的第 i 个输入，后面的输入前移
func (g *Graph) RemoveInput(id NodeID, i int) {
	n := g.MustNode(id)
	g.removeUsage(n.inputs[i], id)
	n.inputs = append(n.inputs[:i], n.inputs[i+1:]...)
}

// ReplaceAtUsages 把 old 的所有使用改为 replacement，返回受影响的使用者
//
// replacement 引用 old 时（只应经由 phi）这条边也会改写，phi 因此引用自身。
func (g *Graph) ReplaceAtUsages(old, replacement NodeID) []NodeID {
	if old == replacement {
		return nil
	}
	o := g.MustNode(old)
	r := g.MustNode(replacement)
	affected := o.Usages()
	for _, u := range affected {
		un := g.nodes[u]
		for i, in := range un.inputs {
			if in == old {
				un.inputs[i] = replacement
				g.removeUsage(old, u)
				r.usages = append(r.usages, u)
			}
		}
	}
	return affected
}

// ReplaceWith 把 old 的全部使用改为 replacement，old 不是锚点时删除；
// 返回受影响的使用者和 old 的原输入
func (g *Graph) ReplaceWith(old, replacement NodeID) (usages, inputs []NodeID) {
	usages = g.ReplaceAtUsages(old, replacement)
	if o := g.Node(old); o != nil && len(o.usages) == 0 && !g.IsAnchor(old) {
		inputs = g.Remove(old)
	}
	return usages, inputs
}

// SetStamp 更新节点的 stamp
func (g *Graph) SetStamp(id NodeID, s stamp.Stamp) {
	g.MustNode(id).stamp = s
}

// ============================================================================
// 结构查询
// ============================================================================

// IsAnchor 即使没有使用者也不能删除的节点：控制节点、参数，以及
// 除数可能为 0 的除法（删除会丢掉陷入）
func (g *Graph) IsAnchor(id NodeID) bool {
	n := g.MustNode(id)
	if n.kind.IsControl() || n.kind == KindParam {
		return true
	}
	return g.MayTrap(id)
}

// MayTrap 节点执行时是否可能陷入
func (g *Graph) MayTrap(id NodeID) bool {
	n := g.MustNode(id)
	if n.kind != KindBinary || !n.op.IsTrapping() {
		return false
	}
	d, ok := g.nodes[n.inputs[1]].stamp.(stamp.IntegerStamp)
	return ok && d.Contains(0)
}

// Phis 合并点的 phi，按下标排序
func (g *Graph) Phis(merge NodeID) []NodeID {
	m := g.MustNode(merge)
	var out []NodeID
	for _, u := range m.Usages() {
		un := g.nodes[u]
		if un.kind == KindPhi && un.inputs[0] == merge {
			out = append(out, u)
		}
	}
	slices.Sort(out)
	return out
}

// PredecessorCount 合并点的前驱个数
func (g *Graph) PredecessorCount(merge NodeID) int {
	m := g.MustNode(merge)
	if !m.kind.IsMerge() {
		return 0
	}
	return len(m.inputs)
}

// LoopEnds 循环头的回边
func (g *Graph) LoopEnds(begin NodeID) []NodeID {
	b := g.MustNode(begin)
	if b.kind != KindLoopBegin || len(b.inputs) < 2 {
		return nil
	}
	return append([]NodeID(nil), b.inputs[1:]...)
}

// IsBackEdge 输入边 user.inputs[i] 是否为循环回边
//
// 回边在排序时被切断：循环头除入口外的输入，以及循环 phi 对应
// 回边的值输入。
func (g *Graph) IsBackEdge(user NodeID, i int) bool {
	n := g.MustNode(user)
	switch n.kind {
	case KindLoopBegin:
		return i >= 1
	case KindPhi:
		return n.IsLoopPhi() && i >= 2
	}
	return false
}

func constantKey(n *Node) constKey {
	switch s := n.stamp.(type) {
	case stamp.IntegerStamp:
		return constKey{kind: stamp.KindInteger, bits: s.Bits(), raw: uint64(n.value.Int)}
	case stamp.FloatStamp:
		return constKey{kind: stamp.KindFloat, bits: s.Bits(), raw: math.Float64bits(n.value.Float)}
	}
	return constKey{kind: stamp.KindObject}
}

func stampKey(s stamp.Stamp) constKey {
	switch x := s.(type) {
	case stamp.IntegerStamp:
		return constKey{kind: stamp.KindInteger, bits: x.Bits()}
	case stamp.FloatStamp:
		return constKey{kind: stamp.KindFloat, bits: x.Bits()}
	}
	return constKey{kind: s.Kind()}
}
