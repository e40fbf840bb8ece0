// eval.go - 运算符的具体语义
//
// 整数值按位宽做符号扩展后保存在 int64 中，运算结果同样规范化到该位宽。
// 浮点值保存在 float64 中，32 位运算先在 float64 中计算再舍入到 float32；
// 对加减乘除、取余和开方，这样的两次舍入与直接按 float32 计算结果一致。

package arith

import (
	"math"
	"math/bits"

	"github.com/tangzhangming/novaopt/internal/stamp"
)

// ShiftMask 移位量掩码：32 位及以下按 int 取低 5 位，64 位取低 6 位
func ShiftMask(width int) int64 {
	if width > 32 {
		return 63
	}
	return 31
}

// EvalIntUnary 整数一元运算
func EvalIntUnary(op Op, width int, x int64) int64 {
	switch op {
	case OpNeg:
		return stamp.Narrow(-x, width)
	case OpNot:
		return stamp.Narrow(^x, width)
	case OpAbs:
		if x < 0 {
			return stamp.Narrow(-x, width)
		}
		return x
	}
	panic("arith: no integer semantics for " + op.String())
}

// EvalIntBinary 整数二元运算；除数为 0 时 ok 为 false（运算会陷入）
func EvalIntBinary(op Op, width int, x, y int64) (r int64, ok bool) {
	full := stamp.Mask(width)
	ux, uy := uint64(x)&full, uint64(y)&full
	switch op {
	case OpAdd:
		return stamp.Narrow(x+y, width), true
	case OpSub:
		return stamp.Narrow(x-y, width), true
	case OpMul:
		return stamp.Narrow(x*y, width), true
	case OpMulHigh:
		return mulHigh(width, x, y), true
	case OpUMulHigh:
		return umulHigh(width, ux, uy), true
	case OpDiv:
		if y == 0 {
			return 0, false
		}
		if y == -1 {
			return stamp.Narrow(-x, width), true
		}
		return stamp.Narrow(x/y, width), true
	case OpRem:
		if y == 0 {
			return 0, false
		}
		if y == -1 {
			return 0, true
		}
		return x % y, true
	case OpAnd:
		return x & y, true
	case OpOr:
		return x | y, true
	case OpXor:
		return x ^ y, true
	case OpMax:
		return max(x, y), true
	case OpMin:
		return min(x, y), true
	case OpUMax:
		return stamp.SignExtend(max(ux, uy), width), true
	case OpUMin:
		return stamp.SignExtend(min(ux, uy), width), true
	case OpCompress:
		return stamp.SignExtend(stamp.Compress(ux, uy), width), true
	case OpExpand:
		return stamp.SignExtend(stamp.Expand(ux, uy), width), true
	}
	panic("arith: no integer semantics for " + op.String())
}

// mulHigh 有符号乘法的高半部分
func mulHigh(width int, x, y int64) int64 {
	if width < 64 {
		return (x * y) >> uint(width)
	}
	hi, _ := bits.Mul64(uint64(x), uint64(y))
	if x < 0 {
		hi -= uint64(y)
	}
	if y < 0 {
		hi -= uint64(x)
	}
	return int64(hi)
}

// umulHigh 无符号乘法的高半部分
func umulHigh(width int, ux, uy uint64) int64 {
	if width < 64 {
		return stamp.SignExtend((ux*uy)>>uint(width), width)
	}
	hi, _ := bits.Mul64(ux, uy)
	return int64(hi)
}

// EvalShift 移位，移位量先按 ShiftMask 截断
func EvalShift(op Op, width int, x, amount int64) int64 {
	s := uint(amount & ShiftMask(width))
	switch op {
	case OpShl:
		return stamp.Narrow(x<<s, width)
	case OpShr:
		return stamp.Narrow(x>>s, width)
	case OpUShr:
		return stamp.Narrow(int64(stamp.ZeroExtend(x, width)>>s), width)
	}
	panic("arith: not a shift: " + op.String())
}

// EvalIntConvert 整数宽度转换
func EvalIntConvert(op Op, from, to int, x int64) int64 {
	switch op {
	case OpZeroExtend:
		return stamp.Narrow(int64(stamp.ZeroExtend(x, from)), to)
	case OpSignExtend:
		return stamp.Narrow(stamp.SignExtend(x, from), to)
	case OpNarrow:
		return stamp.Narrow(x, to)
	}
	panic("arith: not an integer conversion: " + op.String())
}

// EvalToFloat 整数转浮点
func EvalToFloat(op Op, x int64) float64 {
	switch op {
	case OpI2F, OpL2F:
		return float64(float32(x))
	case OpI2D, OpL2D:
		return float64(x)
	}
	panic("arith: not an int-to-float conversion: " + op.String())
}

// EvalToInt 浮点转整数：向零截断，超出范围时饱和，NaN 转为 0
func EvalToInt(op Op, f float64) int64 {
	width := 32
	if op == OpF2L || op == OpD2L {
		width = 64
	}
	switch op {
	case OpF2I, OpD2I, OpF2L, OpD2L:
	default:
		panic("arith: not a float-to-int conversion: " + op.String())
	}
	return saturate(f, width)
}

func saturate(f float64, width int) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= -float64(stamp.MinValue(width)):
		// 2^(width-1) 已超出范围
		return stamp.MaxValue(width)
	case f <= float64(stamp.MinValue(width)):
		return stamp.MinValue(width)
	}
	return int64(f)
}

// EvalFloatConvert 浮点宽度转换
func EvalFloatConvert(op Op, f float64) float64 {
	switch op {
	case OpF2D:
		return f
	case OpD2F:
		return float64(float32(f))
	}
	panic("arith: not a float conversion: " + op.String())
}

// EvalFloatUnary 浮点一元运算；Not 作用于 IEEE 位模式
func EvalFloatUnary(op Op, width int, x float64) float64 {
	switch op {
	case OpNeg:
		return -x
	case OpAbs:
		return math.Abs(x)
	case OpSqrt:
		return stamp.RoundFloat(math.Sqrt(x), width)
	case OpNot:
		return fromBits(^toBits(x, width), width)
	}
	panic("arith: no float semantics for " + op.String())
}

// EvalFloatBinary 浮点二元运算；位运算作用于 IEEE 位模式
func EvalFloatBinary(op Op, width int, x, y float64) float64 {
	switch op {
	case OpAdd:
		return stamp.RoundFloat(x+y, width)
	case OpSub:
		return stamp.RoundFloat(x-y, width)
	case OpMul:
		return stamp.RoundFloat(x*y, width)
	case OpDiv:
		return stamp.RoundFloat(x/y, width)
	case OpRem:
		return stamp.RoundFloat(math.Mod(x, y), width)
	case OpMax, OpMin:
		// 任一侧为 NaN 结果就是 NaN，math.Max/Min 遇到无穷时不是这样
		if math.IsNaN(x) || math.IsNaN(y) {
			return math.NaN()
		}
		if op == OpMax {
			return math.Max(x, y)
		}
		return math.Min(x, y)
	case OpAnd:
		return fromBits(toBits(x, width)&toBits(y, width), width)
	case OpOr:
		return fromBits(toBits(x, width)|toBits(y, width), width)
	case OpXor:
		return fromBits(toBits(x, width)^toBits(y, width), width)
	}
	panic("arith: no float semantics for " + op.String())
}

// HasFloatSemantics 运算符是否定义了浮点语义
func HasFloatSemantics(op Op) bool {
	switch op {
	case OpNeg, OpAbs, OpSqrt, OpNot,
		OpAdd, OpSub, OpMul, OpDiv, OpRem, OpMax, OpMin, OpAnd, OpOr, OpXor:
		return true
	}
	return false
}

// HasIntSemantics 运算符是否定义了整数语义
func HasIntSemantics(op Op) bool {
	switch op {
	case OpSqrt:
		return false
	}
	c := op.Class()
	return c == ClassUnary || c == ClassBinary || c == ClassShift
}

func toBits(f float64, width int) uint64 {
	if width == 32 {
		return uint64(math.Float32bits(float32(f)))
	}
	return math.Float64bits(f)
}

func fromBits(b uint64, width int) float64 {
	if width == 32 {
		return float64(math.Float32frombits(uint32(b)))
	}
	return math.Float64frombits(b)
}
