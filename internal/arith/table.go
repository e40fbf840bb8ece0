// table.go - 折叠函数表的分派入口
//
// 调用方只接触 stamp.Stamp 接口；这里按 stamp 种类选表，
// 统一处理空输入（结果为空）和缺少规则（结果为顶元素）。

package arith

import (
	"fmt"

	"github.com/tangzhangming/novaopt/internal/stamp"
)

// FoldUnary 一元运算的结果 stamp
func FoldUnary(op Op, s stamp.Stamp) stamp.Stamp {
	if op.Class() != ClassUnary {
		panic(fmt.Sprintf("arith: %s is not a unary operator", op))
	}
	if s.IsEmpty() {
		return s.Empty()
	}
	switch x := s.(type) {
	case stamp.IntegerStamp:
		if fn := intUnary[op]; fn != nil {
			return fn(x)
		}
	case stamp.FloatStamp:
		if fn := floatUnary[op]; fn != nil {
			return fn(x)
		}
	}
	return s.Unrestricted()
}

// FoldBinary 二元运算的结果 stamp，两个输入必须兼容
func FoldBinary(op Op, a, b stamp.Stamp) stamp.Stamp {
	if op.Class() != ClassBinary {
		panic(fmt.Sprintf("arith: %s is not a binary operator", op))
	}
	if !a.IsCompatible(b) {
		panic(&stamp.IncompatibleError{Op: op.String(), Left: a, Right: b})
	}
	if a.IsEmpty() || b.IsEmpty() {
		return a.Empty()
	}
	switch x := a.(type) {
	case stamp.IntegerStamp:
		if fn := intBinary[op]; fn != nil {
			return fn(x, b.(stamp.IntegerStamp))
		}
	case stamp.FloatStamp:
		if fn := floatBinary[op]; fn != nil {
			return fn(x, b.(stamp.FloatStamp))
		}
	}
	return a.Unrestricted()
}

// FoldShift 移位的结果 stamp；移位量可以与被移位值位宽不同
func FoldShift(op Op, value, amount stamp.Stamp) stamp.Stamp {
	if op.Class() != ClassShift {
		panic(fmt.Sprintf("arith: %s is not a shift", op))
	}
	v, ok := value.(stamp.IntegerStamp)
	if !ok {
		panic(fmt.Sprintf("arith: cannot shift %s", value))
	}
	n, ok := amount.(stamp.IntegerStamp)
	if !ok {
		panic(fmt.Sprintf("arith: shift amount %s is not an integer", amount))
	}
	if v.IsEmpty() || n.IsEmpty() {
		return v.Empty()
	}
	return foldShift(op, v, n)
}

// FoldConvert 转换的结果 stamp
//
// 整数宽度转换的位宽由 from/to 给出；整数/浮点转换的位宽由运算符固定，
// from/to 被忽略。
func FoldConvert(op Op, from, to int, s stamp.Stamp) stamp.Stamp {
	if op.Class() != ClassConvert {
		panic(fmt.Sprintf("arith: %s is not a conversion", op))
	}
	if op.IsIntegerConvert() {
		x := checkConvertInput(op, from, s)
		if x.IsEmpty() {
			return stamp.EmptyInt(to)
		}
		switch op {
		case OpZeroExtend:
			checkWidening(op, from, to)
			return foldZeroExtend(from, to, x)
		case OpSignExtend:
			checkWidening(op, from, to)
			return foldSignExtend(from, to, x)
		default:
			checkWidening(op, to, from)
			return foldNarrow(from, to, x)
		}
	}

	in, out, _ := ConvertWidths(op)
	switch x := s.(type) {
	case stamp.IntegerStamp:
		if x.Bits() != in {
			panic(fmt.Sprintf("arith: %s expects i%d input, got %s", op, in, s))
		}
		if x.IsEmpty() {
			return stamp.EmptyFloat(out)
		}
		if op == OpI2F || op == OpL2F || op == OpI2D || op == OpL2D {
			return foldIntToFloat(op, x)
		}
	case stamp.FloatStamp:
		if x.Bits() != in {
			panic(fmt.Sprintf("arith: %s expects f%d input, got %s", op, in, s))
		}
		switch op {
		case OpF2D, OpD2F:
			if x.IsEmpty() {
				return stamp.EmptyFloat(out)
			}
			return foldFloatToFloat(op, x)
		case OpF2I, OpD2I, OpF2L, OpD2L:
			if x.IsEmpty() {
				return stamp.EmptyInt(out)
			}
			return foldFloatToInt(op, x)
		}
	}
	panic(fmt.Sprintf("arith: %s cannot convert %s", op, s))
}

// InvertConvert 返回 from 位输入 stamp，其中每个值经过 op 转换后都在 result 内
//
// 只有整数宽度转换可以求逆，其余运算符 ok 为 false。result 中的约束
// 无法由该转换产生时返回空 stamp。
func InvertConvert(op Op, from, to int, result stamp.Stamp) (stamp.Stamp, bool) {
	if !op.IsIntegerConvert() {
		return nil, false
	}
	s := checkConvertInput(op, to, result)
	if s.IsEmpty() {
		return stamp.EmptyInt(from), true
	}
	switch op {
	case OpZeroExtend:
		checkWidening(op, from, to)
		return invertZeroExtend(from, to, s), true
	case OpSignExtend:
		checkWidening(op, from, to)
		return invertSignExtend(from, to, s), true
	}
	checkWidening(op, to, from)
	return invertNarrow(from, to, s), true
}

func checkConvertInput(op Op, bits int, s stamp.Stamp) stamp.IntegerStamp {
	x, ok := s.(stamp.IntegerStamp)
	if !ok || x.Bits() != bits {
		panic(fmt.Sprintf("arith: %s expects i%d, got %s", op, bits, s))
	}
	return x
}

func checkWidening(op Op, narrow, wide int) {
	if narrow > wide {
		panic(fmt.Sprintf("arith: %s from i%d to i%d", op, narrow, wide))
	}
}

// ============================================================================
// 代数性质
// ============================================================================

// IsNeutral c 作为右操作数时 x op c == x
func IsNeutral(op Op, width int, c int64) bool {
	switch op {
	case OpAdd, OpSub, OpOr, OpXor, OpShl, OpShr, OpUShr:
		if op.Class() == ClassShift {
			return c&ShiftMask(width) == 0
		}
		return c == 0
	case OpMul, OpDiv:
		return c == 1
	case OpAnd:
		return stamp.Narrow(c, width) == -1
	case OpMax:
		return c == stamp.MinValue(width)
	case OpMin:
		return c == stamp.MaxValue(width)
	case OpUMax:
		return c == 0
	case OpUMin:
		return stamp.Narrow(c, width) == -1
	}
	return false
}

// Absorbing 返回 op 的吸收元 z（x op z == z 对任意 x 成立）
func Absorbing(op Op, width int) (int64, bool) {
	switch op {
	case OpMul, OpAnd, OpUMin:
		return 0, true
	case OpOr, OpUMax:
		return -1, true
	case OpMax:
		return stamp.MaxValue(width), true
	case OpMin:
		return stamp.MinValue(width), true
	}
	return 0, false
}
