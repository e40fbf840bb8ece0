// Package stamp 实现抽象值格（stamp lattice）
//
// stamp 描述一个程序值在运行时所有可能的具体取值集合：
//   - IntegerStamp: 有符号区间 + 必定置位/可能置位掩码
//   - FloatStamp:   IEEE-754 区间 + NaN 标记
//   - ObjectStamp:  封闭类型层次上的类型、精确性与可空性
//   - VoidStamp:    控制节点使用的无值 stamp
//
// meet 为最小上界（合并控制流），join 为最大下界（叠加约束），
// empty 为格的底元素，表示不可达代码。所有 stamp 都是不可变值，
// 可以在多个编译单元之间自由共享。
package stamp

import "fmt"

// Kind stamp 种类
type Kind uint8

const (
	KindVoid    Kind = iota // 无值
	KindInteger             // 整数
	KindFloat               // 浮点数
	KindObject              // 对象引用
)

func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Stamp 抽象值接口
type Stamp interface {
	Kind() Kind

	// IsEmpty 没有任何具体值满足该 stamp
	IsEmpty() bool
	// IsUnrestricted 该 stamp 为同种类同位宽的顶元素
	IsUnrestricted() bool

	Empty() Stamp
	Unrestricted() Stamp

	// Meet 最小上界
	Meet(other Stamp) Stamp
	// Join 最大下界
	Join(other Stamp) Stamp

	Equals(other Stamp) bool
	// IsCompatible 两个 stamp 可以参与 meet/join
	IsCompatible(other Stamp) bool

	String() string
}

// IncompatibleError 对不兼容的 stamp 做格运算时触发的 panic 值
type IncompatibleError struct {
	Op    string
	Left  Stamp
	Right Stamp
}

func (e *IncompatibleError) Error() string {
	return fmt.Sprintf("stamp: %s of incompatible stamps %s and %s", e.Op, e.Left, e.Right)
}

func incompatible(op string, a, b Stamp) {
	panic(&IncompatibleError{Op: op, Left: a, Right: b})
}

// IsConstant 判断 stamp 是否只表示一个具体值
func IsConstant(s Stamp) bool {
	switch v := s.(type) {
	case IntegerStamp:
		return v.IsConstant()
	case FloatStamp:
		return v.IsConstant()
	case ObjectStamp:
		return v.AlwaysNull()
	}
	return false
}

// ============================================================================
// VoidStamp
// ============================================================================

// VoidStamp 控制节点的 stamp，格中只有一个元素
type VoidStamp struct{}

// Void 返回 void stamp
func Void() VoidStamp { return VoidStamp{} }

func (VoidStamp) Kind() Kind           { return KindVoid }
func (VoidStamp) IsEmpty() bool        { return false }
func (VoidStamp) IsUnrestricted() bool { return true }
func (VoidStamp) Empty() Stamp         { return VoidStamp{} }
func (VoidStamp) Unrestricted() Stamp  { return VoidStamp{} }
func (VoidStamp) String() string       { return "void" }

func (VoidStamp) Equals(other Stamp) bool {
	_, ok := other.(VoidStamp)
	return ok
}

func (VoidStamp) IsCompatible(other Stamp) bool {
	_, ok := other.(VoidStamp)
	return ok
}

func (v VoidStamp) Meet(other Stamp) Stamp {
	if !v.IsCompatible(other) {
		incompatible("meet", v, other)
	}
	return v
}

func (v VoidStamp) Join(other Stamp) Stamp {
	if !v.IsCompatible(other) {
		incompatible("join", v, other)
	}
	return v
}
