// Package arith 实现算术运算的抽象传递函数表
//
// 每个运算符是一个封闭枚举值 Op，按 stamp 种类分别登记：
//   - 折叠函数：给定输入 stamp，计算结果 stamp 的上近似
//   - 求逆函数：给定期望的结果 stamp，计算保证结果落入其中的输入 stamp
//   - 具体求值：定义运算语义，用于常量折叠与可靠性测试
//
// 所有表在包初始化时建立，之后只读，可在多个编译单元之间并发使用。
package arith

import "fmt"

// Op 运算符
type Op uint8

const (
	OpInvalid Op = iota

	// 一元运算
	OpNeg
	OpNot
	OpAbs
	OpSqrt

	// 二元运算
	OpAdd
	OpSub
	OpMul
	OpMulHigh
	OpUMulHigh
	OpDiv
	OpRem
	OpAnd
	OpOr
	OpXor
	OpMax
	OpMin
	OpUMax
	OpUMin
	OpCompress
	OpExpand

	// 移位
	OpShl
	OpShr
	OpUShr

	// 整数宽度转换
	OpZeroExtend
	OpSignExtend
	OpNarrow

	// 整数/浮点转换
	OpI2F
	OpL2F
	OpI2D
	OpL2D
	OpF2D
	OpD2F
	OpF2I
	OpD2I
	OpF2L
	OpD2L

	opCount
)

// Class 运算符类别，决定输入个数与折叠函数表
type Class uint8

const (
	ClassNone Class = iota
	ClassUnary
	ClassBinary
	ClassShift
	ClassConvert
)

// Info 运算符的静态属性
type Info struct {
	Name        string
	Class       Class
	Commutative bool
	Associative bool
	// Trapping 除数为 0 时会陷入，不能随意删除或提前
	Trapping bool
}

var infos = [opCount]Info{
	OpInvalid:    {Name: "invalid"},
	OpNeg:        {Name: "neg", Class: ClassUnary},
	OpNot:        {Name: "not", Class: ClassUnary},
	OpAbs:        {Name: "abs", Class: ClassUnary},
	OpSqrt:       {Name: "sqrt", Class: ClassUnary},
	OpAdd:        {Name: "add", Class: ClassBinary, Commutative: true, Associative: true},
	OpSub:        {Name: "sub", Class: ClassBinary},
	OpMul:        {Name: "mul", Class: ClassBinary, Commutative: true, Associative: true},
	OpMulHigh:    {Name: "mulhigh", Class: ClassBinary, Commutative: true},
	OpUMulHigh:   {Name: "umulhigh", Class: ClassBinary, Commutative: true},
	OpDiv:        {Name: "div", Class: ClassBinary, Trapping: true},
	OpRem:        {Name: "rem", Class: ClassBinary, Trapping: true},
	OpAnd:        {Name: "and", Class: ClassBinary, Commutative: true, Associative: true},
	OpOr:         {Name: "or", Class: ClassBinary, Commutative: true, Associative: true},
	OpXor:        {Name: "xor", Class: ClassBinary, Commutative: true, Associative: true},
	OpMax:        {Name: "max", Class: ClassBinary, Commutative: true, Associative: true},
	OpMin:        {Name: "min", Class: ClassBinary, Commutative: true, Associative: true},
	OpUMax:       {Name: "umax", Class: ClassBinary, Commutative: true, Associative: true},
	OpUMin:       {Name: "umin", Class: ClassBinary, Commutative: true, Associative: true},
	OpCompress:   {Name: "compress", Class: ClassBinary},
	OpExpand:     {Name: "expand", Class: ClassBinary},
	OpShl:        {Name: "shl", Class: ClassShift},
	OpShr:        {Name: "shr", Class: ClassShift},
	OpUShr:       {Name: "ushr", Class: ClassShift},
	OpZeroExtend: {Name: "zext", Class: ClassConvert},
	OpSignExtend: {Name: "sext", Class: ClassConvert},
	OpNarrow:     {Name: "narrow", Class: ClassConvert},
	OpI2F:        {Name: "i2f", Class: ClassConvert},
	OpL2F:        {Name: "l2f", Class: ClassConvert},
	OpI2D:        {Name: "i2d", Class: ClassConvert},
	OpL2D:        {Name: "l2d", Class: ClassConvert},
	OpF2D:        {Name: "f2d", Class: ClassConvert},
	OpD2F:        {Name: "d2f", Class: ClassConvert},
	OpF2I:        {Name: "f2i", Class: ClassConvert},
	OpD2I:        {Name: "d2i", Class: ClassConvert},
	OpF2L:        {Name: "f2l", Class: ClassConvert},
	OpD2L:        {Name: "d2l", Class: ClassConvert},
}

var byName = func() map[string]Op {
	m := make(map[string]Op, opCount)
	for op := Op(1); op < opCount; op++ {
		m[infos[op].Name] = op
	}
	return m
}()

// Info 返回运算符属性
func (op Op) Info() Info {
	if op >= opCount {
		return infos[OpInvalid]
	}
	return infos[op]
}

func (op Op) String() string {
	if op >= opCount {
		return fmt.Sprintf("op(%d)", uint8(op))
	}
	return infos[op].Name
}

func (op Op) Class() Class        { return op.Info().Class }
func (op Op) IsCommutative() bool { return op.Info().Commutative }
func (op Op) IsAssociative() bool { return op.Info().Associative }
func (op Op) IsTrapping() bool    { return op.Info().Trapping }

// ParseOp 按名字查找运算符
func ParseOp(name string) (Op, bool) {
	op, ok := byName[name]
	return op, ok
}

// Ops 返回全部有效运算符
func Ops() []Op {
	out := make([]Op, 0, opCount-1)
	for op := Op(1); op < opCount; op++ {
		out = append(out, op)
	}
	return out
}

// convertWidths 浮点相关转换的固定输入/输出位宽
var convertWidths = map[Op][2]int{
	OpI2F: {32, 32},
	OpL2F: {64, 32},
	OpI2D: {32, 64},
	OpL2D: {64, 64},
	OpF2D: {32, 64},
	OpD2F: {64, 32},
	OpF2I: {32, 32},
	OpD2I: {64, 32},
	OpF2L: {32, 64},
	OpD2L: {64, 64},
}

// ConvertWidths 返回转换的输入和输出位宽；整数宽度转换的位宽由调用方决定，ok 为 false
func ConvertWidths(op Op) (in, out int, ok bool) {
	w, ok := convertWidths[op]
	return w[0], w[1], ok
}

// IsIntegerConvert 是否为整数宽度转换
func (op Op) IsIntegerConvert() bool {
	return op == OpZeroExtend || op == OpSignExtend || op == OpNarrow
}
