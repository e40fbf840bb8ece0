// float.go - 浮点运算的 stamp 折叠
//
// 区间端点按 IEEE-754 语义计算（包括无穷），32 位结果舍入到 float32。
// 端点计算出 NaN（例如 Inf-Inf、0*Inf）时区间退化为 [-Inf, +Inf]，
// 是否可能产生 NaN 单独判断。

package arith

import (
	"math"

	"github.com/tangzhangming/novaopt/internal/stamp"
)

type floatUnaryFn func(s stamp.FloatStamp) stamp.FloatStamp
type floatBinaryFn func(a, b stamp.FloatStamp) stamp.FloatStamp

var floatUnary = [opCount]floatUnaryFn{
	OpNeg:  foldFloatNeg,
	OpAbs:  foldFloatAbs,
	OpSqrt: foldFloatSqrt,
	OpNot:  foldFloatNot,
}

var floatBinary = [opCount]floatBinaryFn{
	OpAdd: foldFloatAdd,
	OpSub: foldFloatSub,
	OpMul: foldFloatMul,
	OpDiv: foldFloatDiv,
	OpRem: foldFloatRem,
	OpMax: foldFloatMax,
	OpMin: foldFloatMin,
	OpAnd: bitwiseFloat(OpAnd),
	OpOr:  bitwiseFloat(OpOr),
	OpXor: bitwiseFloat(OpXor),
}

func fullFloat(bits int, nonNaN bool) stamp.FloatStamp {
	return stamp.CreateFloat(bits, math.Inf(-1), math.Inf(1), nonNaN)
}

// ============================================================================
// 一元
// ============================================================================

func foldFloatNeg(s stamp.FloatStamp) stamp.FloatStamp {
	if s.IsNaN() {
		return s
	}
	return stamp.CreateFloat(s.Bits(), -s.Upper(), -s.Lower(), s.IsNonNaN())
}

func foldFloatAbs(s stamp.FloatStamp) stamp.FloatStamp {
	if s.IsNaN() {
		return s
	}
	lo, hi := s.Lower(), s.Upper()
	switch {
	case lo >= 0:
		return stamp.CreateFloat(s.Bits(), math.Abs(lo), hi, s.IsNonNaN())
	case hi <= 0:
		return stamp.CreateFloat(s.Bits(), math.Abs(hi), -lo, s.IsNonNaN())
	}
	return stamp.CreateFloat(s.Bits(), 0, math.Max(-lo, hi), s.IsNonNaN())
}

func foldFloatSqrt(s stamp.FloatStamp) stamp.FloatStamp {
	w := s.Bits()
	if s.IsNaN() || s.Upper() < 0 {
		return stamp.NaNFloat(w)
	}
	hi := stamp.RoundFloat(math.Sqrt(s.Upper()), w)
	if s.Lower() >= 0 {
		return stamp.CreateFloat(w, stamp.RoundFloat(math.Sqrt(s.Lower()), w), hi, s.IsNonNaN())
	}
	// 负数部分产生 NaN，sqrt(-0.0) == -0.0
	return stamp.CreateFloat(w, math.Copysign(0, -1), hi, false)
}

func foldFloatNot(s stamp.FloatStamp) stamp.FloatStamp {
	if v, ok := s.AsConstant(); ok {
		return stamp.FloatConstant(s.Bits(), EvalFloatUnary(OpNot, s.Bits(), v))
	}
	return stamp.UnrestrictedFloat(s.Bits())
}

// ============================================================================
// 加减乘除
// ============================================================================

func foldFloatAdd(a, b stamp.FloatStamp) stamp.FloatStamp {
	w := a.Bits()
	if a.IsNaN() || b.IsNaN() {
		return stamp.NaNFloat(w)
	}
	lo := stamp.RoundFloat(a.Lower()+b.Lower(), w)
	hi := stamp.RoundFloat(a.Upper()+b.Upper(), w)
	if math.IsNaN(lo) {
		lo = math.Inf(-1)
	}
	if math.IsNaN(hi) {
		hi = math.Inf(1)
	}
	// Inf + (-Inf) 产生 NaN
	nan := a.CanBeNaN() || b.CanBeNaN() ||
		(a.CanBePosInf() && b.CanBeNegInf()) || (a.CanBeNegInf() && b.CanBePosInf())
	return stamp.CreateFloat(w, lo, hi, !nan)
}

func foldFloatSub(a, b stamp.FloatStamp) stamp.FloatStamp {
	w := a.Bits()
	if a.IsNaN() || b.IsNaN() {
		return stamp.NaNFloat(w)
	}
	lo := stamp.RoundFloat(a.Lower()-b.Upper(), w)
	hi := stamp.RoundFloat(a.Upper()-b.Lower(), w)
	if math.IsNaN(lo) {
		lo = math.Inf(-1)
	}
	if math.IsNaN(hi) {
		hi = math.Inf(1)
	}
	nan := a.CanBeNaN() || b.CanBeNaN() ||
		(a.CanBePosInf() && b.CanBePosInf()) || (a.CanBeNegInf() && b.CanBeNegInf())
	return stamp.CreateFloat(w, lo, hi, !nan)
}

// floatCorners 在四个端点组合上求值；出现 NaN 时 ok 为 false
func floatCorners(a, b stamp.FloatStamp, f func(x, y float64) float64) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, x := range [2]float64{a.Lower(), a.Upper()} {
		for _, y := range [2]float64{b.Lower(), b.Upper()} {
			v := f(x, y)
			if math.IsNaN(v) {
				return 0, 0, false
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	return lo, hi, true
}

func foldFloatMul(a, b stamp.FloatStamp) stamp.FloatStamp {
	w := a.Bits()
	if a.IsNaN() || b.IsNaN() {
		return stamp.NaNFloat(w)
	}
	// 0 * Inf 产生 NaN
	nan := a.CanBeNaN() || b.CanBeNaN() ||
		(a.ContainsZero() && b.CanBeInf()) || (a.CanBeInf() && b.ContainsZero())
	lo, hi, ok := floatCorners(a, b, func(x, y float64) float64 { return stamp.RoundFloat(x*y, w) })
	if !ok {
		return fullFloat(w, !nan)
	}
	return stamp.CreateFloat(w, lo, hi, !nan)
}

func foldFloatDiv(a, b stamp.FloatStamp) stamp.FloatStamp {
	w := a.Bits()
	if a.IsNaN() || b.IsNaN() {
		return stamp.NaNFloat(w)
	}
	if b.ContainsZero() {
		// x/0 为 ±Inf，0/0 为 NaN
		return fullFloat(w, false)
	}
	nan := a.CanBeNaN() || b.CanBeNaN() || (a.CanBeInf() && b.CanBeInf())
	lo, hi, ok := floatCorners(a, b, func(x, y float64) float64 { return stamp.RoundFloat(x/y, w) })
	if !ok {
		return fullFloat(w, !nan)
	}
	return stamp.CreateFloat(w, lo, hi, !nan)
}

// foldFloatRem math.Mod 的结果与被除数同号，且绝对值小于除数、不超过被除数
func foldFloatRem(a, b stamp.FloatStamp) stamp.FloatStamp {
	w := a.Bits()
	if a.IsNaN() || b.IsNaN() {
		return stamp.NaNFloat(w)
	}
	nan := a.CanBeNaN() || b.CanBeNaN() || b.ContainsZero() || a.CanBeInf()
	m := math.Max(math.Abs(b.Lower()), math.Abs(b.Upper()))
	lo := math.Max(a.Lower(), -m)
	hi := math.Min(a.Upper(), m)
	if a.Lower() >= 0 {
		lo = 0
	}
	if a.Upper() <= 0 {
		hi = 0
	}
	return stamp.CreateFloat(w, lo, hi, !nan)
}

// ============================================================================
// 最大/最小值
// ============================================================================

func foldFloatMax(a, b stamp.FloatStamp) stamp.FloatStamp {
	w := a.Bits()
	if a.IsNaN() || b.IsNaN() {
		return stamp.NaNFloat(w)
	}
	return stamp.CreateFloat(w, math.Max(a.Lower(), b.Lower()), math.Max(a.Upper(), b.Upper()),
		a.IsNonNaN() && b.IsNonNaN())
}

func foldFloatMin(a, b stamp.FloatStamp) stamp.FloatStamp {
	w := a.Bits()
	if a.IsNaN() || b.IsNaN() {
		return stamp.NaNFloat(w)
	}
	return stamp.CreateFloat(w, math.Min(a.Lower(), b.Lower()), math.Min(a.Upper(), b.Upper()),
		a.IsNonNaN() && b.IsNonNaN())
}

// ============================================================================
// 位运算
// ============================================================================

// bitwiseFloat 作用于 IEEE 位模式的运算，只折叠非零常量；NaN 的位模式不确定
func bitwiseFloat(op Op) floatBinaryFn {
	return func(a, b stamp.FloatStamp) stamp.FloatStamp {
		x, okA := a.AsConstant()
		y, okB := b.AsConstant()
		if okA && okB {
			return stamp.FloatConstant(a.Bits(), EvalFloatBinary(op, a.Bits(), x, y))
		}
		return stamp.UnrestrictedFloat(a.Bits())
	}
}
