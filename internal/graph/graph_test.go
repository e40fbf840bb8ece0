package graph

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangzhangming/novaopt/internal/arith"
	"github.com/tangzhangming/novaopt/internal/stamp"
)

// TestFreeListReuse 删除的槽位会被下一个新节点复用
func TestFreeListReuse(t *testing.T) {
	g := New("t", nil)
	p := g.AddParam(0, "x", stamp.Unrestricted(32))
	c := g.AddConstant(32, 5)
	a := g.AddBinary(arith.OpAdd, p, c)
	assert.Equal(t, 4, g.Len())

	freed := g.Remove(a)
	assert.Equal(t, []NodeID{p, c}, freed)
	assert.False(t, g.IsAlive(a))
	assert.Nil(t, g.Node(a))
	assert.Equal(t, 3, g.Len())
	assert.Equal(t, 0, g.MustNode(p).UsageCount())

	n := g.AddUnary(arith.OpNeg, p)
	assert.Equal(t, a, n, "freed slot is reused")
	assert.Equal(t, 4, g.Cap())

	g.Remove(n)
	g.Remove(c)
	again := g.AddConstant(32, 5)
	require.True(t, g.IsAlive(again))
	v, ok := g.MustNode(again).IntConstant()
	assert.True(t, ok)
	assert.Equal(t, int64(5), v)
	assert.Equal(t, again, g.AddConstant(32, 5), "constants are unique")
}

// TestRemovePanics 仍有使用者的节点和 start 节点不能删除
func TestRemovePanics(t *testing.T) {
	g := New("t", nil)
	p := g.AddParam(0, "x", stamp.Unrestricted(32))
	g.AddUnary(arith.OpNot, p)
	assert.Panics(t, func() { g.Remove(p) })
	assert.Panics(t, func() { g.Remove(g.Start()) })
	assert.Panics(t, func() { g.MustNode(NodeID(99)) })
}

// TestReplaceAtUsagesMultiset 同一使用者的多条边全部迁移
func TestReplaceAtUsagesMultiset(t *testing.T) {
	g := New("t", nil)
	x := g.AddParam(0, "x", stamp.Unrestricted(32))
	z := g.AddParam(1, "z", stamp.Unrestricted(32))
	y := g.AddBinary(arith.OpAdd, x, x)
	assert.Equal(t, 2, g.MustNode(x).UsageCount())
	assert.Equal(t, []NodeID{y}, g.MustNode(x).Usages())

	affected := g.ReplaceAtUsages(x, z)
	assert.Equal(t, []NodeID{y}, affected)
	assert.Equal(t, 0, g.MustNode(x).UsageCount())
	assert.Equal(t, 2, g.MustNode(z).UsageCount())
	assert.Equal(t, []NodeID{z, z}, g.MustNode(y).Inputs())
}

// TestReplaceAtUsagesThroughPhi 替代者是引用旧节点的 phi 时，phi 改为引用自身
func TestReplaceAtUsagesThroughPhi(t *testing.T) {
	g := New("t", nil)
	begin := g.AddLoopBegin(g.Start())
	c0 := g.AddConstant(32, 0)
	phi := g.AddPhi(begin, c0)
	a := g.AddBinary(arith.OpAdd, phi, c0)
	g.AppendInput(phi, a)
	g.AddLoopEnd(begin, begin)

	affected := g.ReplaceAtUsages(a, phi)
	assert.Equal(t, []NodeID{phi}, affected)
	assert.Equal(t, []NodeID{begin, c0, phi}, g.MustNode(phi).Inputs())
	assert.Equal(t, 0, g.MustNode(a).UsageCount())
	assert.ElementsMatch(t, []NodeID{phi, a}, g.MustNode(phi).Usages())
	assert.True(t, g.InferStamp(phi).Equals(stamp.Constant(32, 0)))
}

// TestReplaceWithRemovesOld 没有使用者且不是锚点的旧节点被删除
func TestReplaceWithRemovesOld(t *testing.T) {
	g := New("t", nil)
	x := g.AddParam(0, "x", stamp.Unrestricted(32))
	c := g.AddConstant(32, 0)
	a := g.AddBinary(arith.OpAdd, x, c)
	ret := g.AddReturn(g.Start(), a)

	usages, inputs := g.ReplaceWith(a, x)
	assert.Equal(t, []NodeID{ret}, usages)
	assert.Equal(t, []NodeID{x, c}, inputs)
	assert.False(t, g.IsAlive(a))
	assert.Equal(t, x, g.MustNode(ret).Input(1))

	// 参数是锚点，不会被删除
	y := g.AddParam(1, "y", stamp.Unrestricted(32))
	g.ReplaceWith(x, y)
	assert.True(t, g.IsAlive(x))
}

// TestAnchors 控制节点、参数和可能陷入的除法是锚点
func TestAnchors(t *testing.T) {
	g := New("t", nil)
	x := g.AddParam(0, "x", stamp.Unrestricted(32))
	safe := g.AddParam(1, "d", stamp.Create(32, 1, 10))
	q1 := g.AddBinary(arith.OpDiv, x, safe)
	q2 := g.AddBinary(arith.OpRem, x, x)
	neg := g.AddUnary(arith.OpNeg, x)

	assert.True(t, g.IsAnchor(g.Start()))
	assert.True(t, g.IsAnchor(x))
	assert.False(t, g.IsAnchor(q1))
	assert.True(t, g.MayTrap(q2))
	assert.True(t, g.IsAnchor(q2))
	assert.False(t, g.IsAnchor(neg))
}

// TestMergePhi 两个前驱的 phi 取值的 meet
func TestMergePhi(t *testing.T) {
	g := New("t", nil)
	x := g.AddParam(0, "x", stamp.Unrestricted(32))
	_, yes, no := g.AddIf(g.Start(), x)
	m := g.AddMerge(yes, no)
	c1 := g.AddConstant(32, 1)
	c5 := g.AddConstant(32, 5)
	phi := g.AddPhi(m, c1, c5)

	assert.Equal(t, 2, g.PredecessorCount(m))
	assert.Equal(t, []NodeID{phi}, g.Phis(m))
	assert.False(t, g.MustNode(phi).IsLoopPhi())
	assert.Equal(t, []NodeID{c1, c5}, g.MustNode(phi).PhiValues())
	assert.Equal(t, m, g.MustNode(phi).Merge())
	s := g.InferStamp(phi)
	assert.True(t, s.Equals(stamp.CreateWithMasks(32, 1, 5, 1, 5)), "%s", s)
	is := s.(stamp.IntegerStamp)
	for v := int64(0); v <= 6; v++ {
		assert.Equal(t, v == 1 || v == 5, is.Contains(v), "%d", v)
	}
	assert.Equal(t, 0, g.PredecessorCount(x))
	assert.Panics(t, func() { g.AddPhi(x, c1) })
}

// TestLoopPhi 循环 phi 的回边和自引用
func TestLoopPhi(t *testing.T) {
	g := New("t", nil)
	begin := g.AddLoopBegin(g.Start())
	c0 := g.AddConstant(32, 0)
	c1 := g.AddConstant(32, 1)
	phi := g.AddPhi(begin, c0)
	next := g.AddBinary(arith.OpAdd, phi, c1)
	end := g.AddLoopEnd(begin, begin)
	g.AppendInput(phi, next)

	assert.True(t, g.MustNode(phi).IsLoopPhi())
	assert.Equal(t, []NodeID{end}, g.LoopEnds(begin))
	assert.Equal(t, 2, g.PredecessorCount(begin))
	assert.True(t, g.InferStamp(phi).IsUnrestricted())

	assert.False(t, g.IsBackEdge(begin, 0))
	assert.True(t, g.IsBackEdge(begin, 1))
	assert.False(t, g.IsBackEdge(phi, 1))
	assert.True(t, g.IsBackEdge(phi, 2))
	assert.False(t, g.IsBackEdge(next, 0))

	// 只引用自身的 phi 取入口值
	self := g.AddPhi(begin, c0)
	g.AppendInput(self, self)
	assert.True(t, g.InferStamp(self).Equals(stamp.Constant(32, 0)))

	g.RemoveInput(self, 2)
	assert.Equal(t, 0, g.MustNode(self).UsageCount())
}

// TestPi Pi 的 stamp 是输入与事实的 join
func TestPi(t *testing.T) {
	g := New("t", nil)
	x := g.AddParam(0, "x", stamp.Create(32, 0, 100))
	pi := g.AddPi(x, stamp.Create(32, 10, 1000))
	assert.True(t, g.MustNode(pi).Stamp().Equals(stamp.Create(32, 10, 100)))
	assert.True(t, g.InferStamp(pi).Equals(stamp.Create(32, 10, 100)))
	assert.Panics(t, func() { g.AddPi(x, stamp.Unrestricted(64)) })
}

// TestUniqueNodes 常量与不可达占位按种类和位宽去重
func TestUniqueNodes(t *testing.T) {
	g := New("t", nil)
	u32 := g.Unreachable(stamp.Constant(32, 1))
	assert.Equal(t, u32, g.Unreachable(stamp.Unrestricted(32)))
	assert.NotEqual(t, u32, g.Unreachable(stamp.Unrestricted(64)))
	assert.True(t, g.MustNode(u32).Stamp().IsEmpty())
	assert.True(t, g.InferStamp(u32).IsEmpty())

	pos := g.AddFloatConstant(64, 0)
	neg := g.AddFloatConstant(64, math.Copysign(0, -1))
	assert.NotEqual(t, pos, neg)
	nan := g.AddFloatConstant(64, math.NaN())
	assert.Equal(t, nan, g.AddFloatConstant(64, math.NaN()))
	assert.True(t, g.MustNode(nan).Stamp().(stamp.FloatStamp).IsNaN())

	assert.Equal(t, g.AddConstant(8, 255), g.AddConstant(8, -1), "narrowed to i8")
	assert.Equal(t, g.AddNull(), g.AddNull())

	id, ok := g.ConstantFor(stamp.Constant(16, 7))
	require.True(t, ok)
	assert.Equal(t, g.AddConstant(16, 7), id)
	_, ok = g.ConstantFor(stamp.Create(16, 0, 7))
	assert.False(t, ok)
}

// TestConvertWidths 固定位宽的转换忽略调用方给出的位宽
func TestConvertWidths(t *testing.T) {
	g := New("t", nil)
	x := g.AddParam(0, "x", stamp.Create(32, -5, 5))
	d := g.AddConvert(arith.OpI2D, 0, 0, x)
	in, out, ok := arith.ConvertWidths(arith.OpI2D)
	require.True(t, ok)
	from, to := g.MustNode(d).ConvertBits()
	assert.Equal(t, in, from)
	assert.Equal(t, out, to)

	w := g.AddConvert(arith.OpSignExtend, 32, 64, x)
	assert.True(t, g.MustNode(w).Stamp().Equals(stamp.Create(64, -5, 5)))
	assert.Panics(t, func() { g.AddConvert(arith.OpAdd, 32, 64, x) })
}

// TestDump 表格包含每个存活节点
func TestDump(t *testing.T) {
	g := New("dump", nil)
	x := g.AddParam(0, "x", stamp.Create(32, 0, 9))
	g.AddReturn(g.Start(), g.AddUnary(arith.OpNeg, x))
	g.AddPhi(g.AddLoopBegin(g.Start()), x)

	var buf bytes.Buffer
	Dump(&buf, g)
	out := buf.String()
	assert.Contains(t, out, "graph dump")
	assert.Contains(t, out, "param")
	assert.Contains(t, out, "#0 x")
	assert.Contains(t, out, "i32 [0, 9]")
	assert.Contains(t, out, "neg")
	assert.Contains(t, out, "loop")
}
