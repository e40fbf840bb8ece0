// Package graph 实现程序图（sea of nodes）
//
// 控制依赖和数据依赖都是图中的边。节点保存在 arena 中，用稳定的
// 整数下标 NodeID 引用；每个节点有有序的输入列表和使用者多重集，
// 环（phi、循环头）直接用下标表示。删除节点的槽位进入空闲链表复用。
//
// 边的约定：
//
//	Merge      [pred...]
//	LoopBegin  [entry, loopEnd...]
//	LoopEnd    [ctrl, loopBegin]
//	LoopExit   [ctrl, loopBegin]
//	If         [ctrl, cond]
//	Proj       [if]                 Index 0 为真分支
//	Return     [ctrl, value?]
//	Store      [ctrl, value]
//	Call       [ctrl, arg...]
//	Phi        [merge, value...]    value[i] 对应 merge 的第 i 个前驱
//	Pi         [value]
//	Unary      [x]
//	Binary     [x, y]
//	Shift      [x, amount]
//	Convert    [x]
package graph

import (
	"fmt"

	"github.com/tangzhangming/novaopt/internal/arith"
	"github.com/tangzhangming/novaopt/internal/stamp"
)

// NodeID 节点在 arena 中的下标
type NodeID int32

// NoNode 空引用
const NoNode NodeID = -1

func (id NodeID) String() string {
	if id == NoNode {
		return "-"
	}
	return fmt.Sprintf("n%d", int32(id))
}

// ============================================================================
// 节点种类
// ============================================================================

// Kind 节点种类
type Kind uint8

const (
	KindStart Kind = iota
	KindMerge
	KindLoopBegin
	KindLoopEnd
	KindLoopExit
	KindIf
	KindProj
	KindReturn
	KindStore
	KindCall
	KindParam
	KindConstant
	KindPhi
	KindPi
	KindUnary
	KindBinary
	KindShift
	KindConvert
	KindUnreachable

	kindCount
)

type kindInfo struct {
	name string
	// control 节点位于控制流上，是调度的固定点
	control bool
	// sideEffect 节点的执行可被外部观察
	sideEffect bool
}

var kinds = [kindCount]kindInfo{
	KindStart:       {name: "start", control: true},
	KindMerge:       {name: "merge", control: true},
	KindLoopBegin:   {name: "loopbegin", control: true},
	KindLoopEnd:     {name: "loopend", control: true},
	KindLoopExit:    {name: "loopexit", control: true},
	KindIf:          {name: "if", control: true},
	KindProj:        {name: "proj", control: true},
	KindReturn:      {name: "return", control: true, sideEffect: true},
	KindStore:       {name: "store", control: true, sideEffect: true},
	KindCall:        {name: "call", control: true, sideEffect: true},
	KindParam:       {name: "param"},
	KindConstant:    {name: "const"},
	KindPhi:         {name: "phi"},
	KindPi:          {name: "pi"},
	KindUnary:       {name: "unary"},
	KindBinary:      {name: "binary"},
	KindShift:       {name: "shift"},
	KindConvert:     {name: "convert"},
	KindUnreachable: {name: "unreachable"},
}

func (k Kind) String() string {
	if k >= kindCount {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return kinds[k].name
}

// IsControl 是否为控制节点
func (k Kind) IsControl() bool { return k < kindCount && kinds[k].control }

// HasSideEffect 执行是否可被外部观察
func (k Kind) HasSideEffect() bool { return k < kindCount && kinds[k].sideEffect }

// IsMerge 是否为合并点（Merge 或 LoopBegin）
func (k Kind) IsMerge() bool { return k == KindMerge || k == KindLoopBegin }

// IsArithmetic 是否为带运算符的数据节点
func (k Kind) IsArithmetic() bool {
	return k == KindUnary || k == KindBinary || k == KindShift || k == KindConvert
}

// ParseKind 按名字查找节点种类
func ParseKind(name string) (Kind, bool) {
	for k := Kind(0); k < kindCount; k++ {
		if kinds[k].name == name {
			return k, true
		}
	}
	return 0, false
}

// ============================================================================
// 节点
// ============================================================================

// Flags 节点标志
type Flags uint8

const (
	// FlagLoopPhi phi 属于循环头
	FlagLoopPhi Flags = 1 << iota
)

// Value 常量节点的值
type Value struct {
	Int   int64
	Float float64
}

// Node 图中的节点
//
// 字段只能通过 Graph 的方法修改，以保持输入与使用者的一致。
type Node struct {
	id     NodeID
	kind   Kind
	op     arith.Op
	flags  Flags
	inputs []NodeID
	usages []NodeID // 多重集：节点 u 每引用一次本节点就出现一次
	stamp  stamp.Stamp

	value   Value       // Constant
	from    int         // Convert 输入位宽
	to      int         // Convert 输出位宽
	piStamp stamp.Stamp // Pi 携带的事实
	index   int         // Param 序号 / Proj 分支
	name    string      // Param / Store / Call 的名字
}

func (n *Node) ID() NodeID                  { return n.id }
func (n *Node) Kind() Kind                  { return n.kind }
func (n *Node) Op() arith.Op                { return n.op }
func (n *Node) Stamp() stamp.Stamp          { return n.stamp }
func (n *Node) Value() Value                { return n.value }
func (n *Node) PiStamp() stamp.Stamp        { return n.piStamp }
func (n *Node) Index() int                  { return n.index }
func (n *Node) Name() string                { return n.name }
func (n *Node) ConvertBits() (from, to int) { return n.from, n.to }
func (n *Node) IsLoopPhi() bool             { return n.flags&FlagLoopPhi != 0 }

// NumInputs 输入个数
func (n *Node) NumInputs() int { return len(n.inputs) }

// Input 第 i 个输入
func (n *Node) Input(i int) NodeID { return n.inputs[i] }

// Inputs 输入列表的副本
func (n *Node) Inputs() []NodeID {
	return append([]NodeID(nil), n.inputs...)
}

// UsageCount 使用次数（按边计数）
func (n *Node) UsageCount() int { return len(n.usages) }

// Usages 使用者列表的副本，重复的使用者只出现一次
func (n *Node) Usages() []NodeID {
	out := make([]NodeID, 0, len(n.usages))
	for _, u := range n.usages {
		if !containsID(out, u) {
			out = append(out, u)
		}
	}
	return out
}

// UsageCountOf user 在使用者多重集中出现的次数
func (n *Node) UsageCountOf(user NodeID) int {
	c := 0
	for _, u := range n.usages {
		if u == user {
			c++
		}
	}
	return c
}

// PhiValues phi 的值输入，对应合并点的各个前驱
func (n *Node) PhiValues() []NodeID {
	if n.kind != KindPhi {
		return nil
	}
	return append([]NodeID(nil), n.inputs[1:]...)
}

// Merge phi 所属的合并点
func (n *Node) Merge() NodeID {
	if n.kind != KindPhi {
		return NoNode
	}
	return n.inputs[0]
}

// IsConstant 节点是否为常量
func (n *Node) IsConstant() bool { return n.kind == KindConstant }

// IntConstant 整数常量的值
func (n *Node) IntConstant() (int64, bool) {
	if n.kind != KindConstant {
		return 0, false
	}
	if _, ok := n.stamp.(stamp.IntegerStamp); !ok {
		return 0, false
	}
	return n.value.Int, true
}

func (n *Node) String() string {
	switch n.kind {
	case KindConstant:
		switch s := n.stamp.(type) {
		case stamp.IntegerStamp:
			return fmt.Sprintf("%s const i%d %d", n.id, s.Bits(), n.value.Int)
		case stamp.FloatStamp:
			return fmt.Sprintf("%s const f%d %v", n.id, s.Bits(), n.value.Float)
		}
		return fmt.Sprintf("%s const null", n.id)
	case KindUnary, KindBinary, KindShift:
		return fmt.Sprintf("%s %s%v", n.id, n.op, n.inputs)
	case KindConvert:
		return fmt.Sprintf("%s %s.%d.%d%v", n.id, n.op, n.from, n.to, n.inputs)
	case KindParam:
		return fmt.Sprintf("%s param %d", n.id, n.index)
	}
	return fmt.Sprintf("%s %s%v", n.id, n.kind, n.inputs)
}

func containsID(ids []NodeID, id NodeID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
