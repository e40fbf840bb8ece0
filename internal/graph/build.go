// build.go - 节点构造与 stamp 推断
//
// 构造函数在创建时按输入计算初始 stamp；参数错误（位宽不兼容、
// 输入不存在）属于调用方的编程错误，直接 panic。需要从外部描述
// 建图时先用 loader 校验。

package graph

import (
	"fmt"
	"math"

	"github.com/tangzhangming/novaopt/internal/arith"
	"github.com/tangzhangming/novaopt/internal/stamp"
)

// ============================================================================
// 数据节点
// ============================================================================

// AddParam 添加参数节点
func (g *Graph) AddParam(index int, name string, s stamp.Stamp) NodeID {
	return g.add(&Node{kind: KindParam, index: index, name: name, stamp: s})
}

// AddConstant 返回整数常量节点，相同的常量只创建一次
func (g *Graph) AddConstant(bits int, v int64) NodeID {
	v = stamp.Narrow(v, bits)
	n := &Node{kind: KindConstant, stamp: stamp.Constant(bits, v), value: Value{Int: v}}
	return g.uniqueConstant(n)
}

// AddFloatConstant 返回浮点常量节点；-0.0 与 +0.0 是不同的常量
func (g *Graph) AddFloatConstant(bits int, v float64) NodeID {
	v = stamp.RoundFloat(v, bits)
	var s stamp.FloatStamp
	if math.IsNaN(v) {
		s = stamp.NaNFloat(bits)
	} else {
		s = stamp.CreateFloat(bits, v, v, true)
	}
	n := &Node{kind: KindConstant, stamp: s, value: Value{Float: v}}
	return g.uniqueConstant(n)
}

// AddNull 返回 null 常量节点
func (g *Graph) AddNull() NodeID {
	return g.uniqueConstant(&Node{kind: KindConstant, stamp: stamp.NullObject()})
}

func (g *Graph) uniqueConstant(n *Node) NodeID {
	key := constantKey(n)
	if id, ok := g.constants[key]; ok {
		return id
	}
	id := g.add(n)
	g.constants[key] = id
	return id
}

// ConstantFor 为单值 stamp 返回常量节点；s 不是单值时 ok 为 false
func (g *Graph) ConstantFor(s stamp.Stamp) (NodeID, bool) {
	switch x := s.(type) {
	case stamp.IntegerStamp:
		if v, ok := x.AsConstant(); ok {
			return g.AddConstant(x.Bits(), v), true
		}
	case stamp.FloatStamp:
		if x.IsNaN() {
			return g.AddFloatConstant(x.Bits(), math.NaN()), true
		}
		if v, ok := x.AsConstant(); ok {
			return g.AddFloatConstant(x.Bits(), v), true
		}
	case stamp.ObjectStamp:
		if x.AlwaysNull() {
			return g.AddNull(), true
		}
	}
	return NoNode, false
}

// Unreachable 返回与 s 同种类、同位宽的不可达占位节点，stamp 为空
func (g *Graph) Unreachable(s stamp.Stamp) NodeID {
	key := stampKey(s)
	if id, ok := g.unreachable[key]; ok {
		return id
	}
	id := g.add(&Node{kind: KindUnreachable, stamp: s.Empty()})
	g.unreachable[key] = id
	return id
}

// AddUnary 添加一元运算
func (g *Graph) AddUnary(op arith.Op, x NodeID) NodeID {
	checkClass(op, arith.ClassUnary)
	s := arith.FoldUnary(op, g.MustNode(x).stamp)
	return g.add(&Node{kind: KindUnary, op: op, inputs: []NodeID{x}, stamp: s})
}

// AddBinary 添加二元运算
func (g *Graph) AddBinary(op arith.Op, x, y NodeID) NodeID {
	checkClass(op, arith.ClassBinary)
	s := arith.FoldBinary(op, g.MustNode(x).stamp, g.MustNode(y).stamp)
	return g.add(&Node{kind: KindBinary, op: op, inputs: []NodeID{x, y}, stamp: s})
}

// AddShift 添加移位
func (g *Graph) AddShift(op arith.Op, x, amount NodeID) NodeID {
	checkClass(op, arith.ClassShift)
	s := arith.FoldShift(op, g.MustNode(x).stamp, g.MustNode(amount).stamp)
	return g.add(&Node{kind: KindShift, op: op, inputs: []NodeID{x, amount}, stamp: s})
}

// AddConvert 添加转换；整数/浮点转换的位宽由运算符决定
func (g *Graph) AddConvert(op arith.Op, from, to int, x NodeID) NodeID {
	checkClass(op, arith.ClassConvert)
	if in, out, ok := arith.ConvertWidths(op); ok {
		from, to = in, out
	}
	s := arith.FoldConvert(op, from, to, g.MustNode(x).stamp)
	return g.add(&Node{kind: KindConvert, op: op, from: from, to: to, inputs: []NodeID{x}, stamp: s})
}

// AddPi 添加携带事实 fact 的 Pi 节点：x 的值一定在 fact 中
func (g *Graph) AddPi(x NodeID, fact stamp.Stamp) NodeID {
	in := g.MustNode(x).stamp
	if !in.IsCompatible(fact) {
		panic(&stamp.IncompatibleError{Op: "pi", Left: in, Right: fact})
	}
	return g.add(&Node{kind: KindPi, inputs: []NodeID{x}, piStamp: fact, stamp: in.Join(fact)})
}

func checkClass(op arith.Op, c arith.Class) {
	if op.Class() != c {
		panic(fmt.Sprintf("graph: operator %s cannot build this node", op))
	}
}

// ============================================================================
// phi
// ============================================================================

// AddPhi 在合并点上添加 phi
//
// 循环头的 phi 创建时通常只有入口值，回边的值在循环体建好后用
// AppendInput 补上；因此初始 stamp 取顶元素，由规范化器再推断。
func (g *Graph) AddPhi(merge NodeID, values ...NodeID) NodeID {
	m := g.MustNode(merge)
	if !m.kind.IsMerge() {
		panic(fmt.Sprintf("graph %s: phi on non-merge %s", g.name, m))
	}
	if len(values) == 0 {
		panic(fmt.Sprintf("graph %s: phi on %s without values", g.name, merge))
	}
	n := &Node{kind: KindPhi, inputs: append([]NodeID{merge}, values...)}
	if m.kind == KindLoopBegin {
		n.flags |= FlagLoopPhi
	}
	n.stamp = g.MustNode(values[0]).stamp.Unrestricted()
	return g.add(n)
}

// ============================================================================
// 控制节点
// ============================================================================

// AddMerge 添加合并点
func (g *Graph) AddMerge(preds ...NodeID) NodeID {
	return g.addControl(KindMerge, preds...)
}

// AddLoopBegin 添加循环头，entry 为循环入口的前驱
func (g *Graph) AddLoopBegin(entry NodeID) NodeID {
	return g.addControl(KindLoopBegin, entry)
}

// AddLoopEnd 添加回边并登记到循环头
func (g *Graph) AddLoopEnd(ctrl, begin NodeID) NodeID {
	g.checkLoopBegin(begin)
	end := g.addControl(KindLoopEnd, ctrl, begin)
	g.AppendInput(begin, end)
	return end
}

// AddLoopExit 添加循环出口
func (g *Graph) AddLoopExit(ctrl, begin NodeID) NodeID {
	g.checkLoopBegin(begin)
	return g.addControl(KindLoopExit, ctrl, begin)
}

// AddIf 添加条件分支，cond 为非零时走真分支
func (g *Graph) AddIf(ctrl, cond NodeID) (ifNode, ifTrue, ifFalse NodeID) {
	ifNode = g.addControl(KindIf, ctrl, cond)
	ifTrue = g.add(&Node{kind: KindProj, index: 0, inputs: []NodeID{ifNode}, stamp: stamp.Void()})
	ifFalse = g.add(&Node{kind: KindProj, index: 1, inputs: []NodeID{ifNode}, stamp: stamp.Void()})
	return ifNode, ifTrue, ifFalse
}

// AddReturn 添加返回，value 为 NoNode 时不返回值
func (g *Graph) AddReturn(ctrl, value NodeID) NodeID {
	if value == NoNode {
		return g.addControl(KindReturn, ctrl)
	}
	return g.addControl(KindReturn, ctrl, value)
}

// AddStore 添加写入外部位置 name 的副作用节点
func (g *Graph) AddStore(ctrl NodeID, name string, value NodeID) NodeID {
	id := g.addControl(KindStore, ctrl, value)
	g.nodes[id].name = name
	return id
}

// AddCall 添加调用，s 为返回值的 stamp
func (g *Graph) AddCall(ctrl NodeID, name string, s stamp.Stamp, args ...NodeID) NodeID {
	return g.add(&Node{
		kind:   KindCall,
		name:   name,
		inputs: append([]NodeID{ctrl}, args...),
		stamp:  s,
	})
}

func (g *Graph) addControl(kind Kind, inputs ...NodeID) NodeID {
	return g.add(&Node{kind: kind, inputs: inputs, stamp: stamp.Void()})
}

func (g *Graph) checkLoopBegin(begin NodeID) {
	if b := g.MustNode(begin); b.kind != KindLoopBegin {
		panic(fmt.Sprintf("graph %s: %s is not a loop begin", g.name, b))
	}
}

// ============================================================================
// stamp 推断
// ============================================================================

// Folder 计算二元运算的 stamp，结果必须与 arith.FoldBinary 相同
type Folder interface {
	FoldBinary(op arith.Op, x, y stamp.Stamp) stamp.Stamp
}

// InferStamp 按当前输入重新计算节点的 stamp
//
// 结果总是可靠的上近似；调用方把它与旧 stamp 取 join 得到更精确的值。
func (g *Graph) InferStamp(id NodeID) stamp.Stamp {
	n := g.MustNode(id)
	in := func(i int) stamp.Stamp { return g.nodes[n.inputs[i]].stamp }
	switch n.kind {
	case KindUnary:
		return arith.FoldUnary(n.op, in(0))
	case KindBinary:
		if g.folder != nil {
			return g.folder.FoldBinary(n.op, in(0), in(1))
		}
		return arith.FoldBinary(n.op, in(0), in(1))
	case KindShift:
		return arith.FoldShift(n.op, in(0), in(1))
	case KindConvert:
		return arith.FoldConvert(n.op, n.from, n.to, in(0))
	case KindPi:
		return in(0).Join(n.piStamp)
	case KindPhi:
		var s stamp.Stamp
		for _, v := range n.inputs[1:] {
			if v == id {
				continue
			}
			if s == nil {
				s = g.nodes[v].stamp
			} else {
				s = s.Meet(g.nodes[v].stamp)
			}
		}
		if s == nil {
			return n.stamp
		}
		return s
	case KindUnreachable:
		return n.stamp.Empty()
	}
	return n.stamp
}
