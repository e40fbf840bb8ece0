// integer.go - 整数运算的 stamp 折叠
//
// 区间部分按单调性取端点组合，溢出时退化为全区间；
// 掩码部分按已知位传播（加减法逐位考虑进位）。
// 两部分最后交给 CreateWithMasks 互相收紧。

package arith

import (
	"math/bits"

	"github.com/tangzhangming/novaopt/internal/stamp"
)

type intUnaryFn func(s stamp.IntegerStamp) stamp.IntegerStamp
type intBinaryFn func(a, b stamp.IntegerStamp) stamp.IntegerStamp

var intUnary = [opCount]intUnaryFn{
	OpNeg: foldIntNeg,
	OpNot: foldIntNot,
	OpAbs: foldIntAbs,
}

var intBinary = [opCount]intBinaryFn{
	OpAdd:      foldIntAdd,
	OpSub:      foldIntSub,
	OpMul:      foldIntMul,
	OpMulHigh:  foldIntMulHigh,
	OpUMulHigh: foldIntUMulHigh,
	OpDiv:      foldIntDiv,
	OpRem:      foldIntRem,
	OpAnd:      foldIntAnd,
	OpOr:       foldIntOr,
	OpXor:      foldIntXor,
	OpMax:      foldIntMax,
	OpMin:      foldIntMin,
	OpUMax:     foldIntUMax,
	OpUMin:     foldIntUMin,
	OpCompress: foldIntCompress,
	OpExpand:   foldIntExpand,
}

// constantFold 两个操作数都是常量时直接求值
func constantFold(op Op, a, b stamp.IntegerStamp) (stamp.IntegerStamp, bool) {
	x, okA := a.AsConstant()
	y, okB := b.AsConstant()
	if !okA || !okB {
		return stamp.IntegerStamp{}, false
	}
	r, ok := EvalIntBinary(op, a.Bits(), x, y)
	if !ok {
		// 运算必然陷入，没有结果值
		return stamp.EmptyInt(a.Bits()), true
	}
	return stamp.Constant(a.Bits(), r), true
}

// ============================================================================
// 一元
// ============================================================================

func foldIntNeg(s stamp.IntegerStamp) stamp.IntegerStamp {
	w := s.Bits()
	if s.Lower() == stamp.MinValue(w) {
		if s.Upper() == stamp.MinValue(w) {
			return s
		}
		// -MIN == MIN，其余值取反后落在 [-upper, MAX]
		return stamp.Unrestricted(w)
	}
	return stamp.Create(w, -s.Upper(), -s.Lower())
}

func foldIntNot(s stamp.IntegerStamp) stamp.IntegerStamp {
	w := s.Bits()
	full := stamp.Mask(w)
	return stamp.CreateWithMasks(w, ^s.Upper(), ^s.Lower(), ^s.MayBeSet()&full, ^s.MustBeSet()&full)
}

func foldIntAbs(s stamp.IntegerStamp) stamp.IntegerStamp {
	w := s.Bits()
	switch {
	case s.Lower() >= 0:
		return s
	case s.Lower() == stamp.MinValue(w):
		// abs(MIN) == MIN
		return stamp.Unrestricted(w)
	case s.Upper() <= 0:
		return stamp.Create(w, -s.Upper(), -s.Lower())
	}
	return stamp.Create(w, 0, max(-s.Lower(), s.Upper()))
}

// ============================================================================
// 加减乘
// ============================================================================

// addOverflow 计算 w 位宽下的 a+b，返回回绕后的结果与溢出方向（-1/0/+1）
func addOverflow(w int, a, b int64) (int64, int) {
	if w == 64 {
		s := a + b
		switch {
		case a > 0 && b > 0 && s < 0:
			return s, 1
		case a < 0 && b < 0 && s >= 0:
			return s, -1
		}
		return s, 0
	}
	s := a + b
	switch {
	case s > stamp.MaxValue(w):
		return stamp.Narrow(s, w), 1
	case s < stamp.MinValue(w):
		return stamp.Narrow(s, w), -1
	}
	return s, 0
}

// subOverflow 计算 w 位宽下的 a-b
func subOverflow(w int, a, b int64) (int64, int) {
	if w == 64 {
		s := a - b
		switch {
		case a >= 0 && b < 0 && s < 0:
			return s, 1
		case a < 0 && b > 0 && s >= 0:
			return s, -1
		}
		return s, 0
	}
	s := a - b
	switch {
	case s > stamp.MaxValue(w):
		return stamp.Narrow(s, w), 1
	case s < stamp.MinValue(w):
		return stamp.Narrow(s, w), -1
	}
	return s, 0
}

// addKnownBits 逐位传播进位的已知位加法，carry 为进位输入（0 或 1）
func addKnownBits(w int, aMust, aMay, bMust, bMay, carry uint64) (must, may uint64) {
	full := stamp.Mask(w)
	sumMay := aMay + bMay + carry
	sumMust := aMust + bMust + carry
	carryKnownZero := ^(sumMay ^ aMay ^ bMay)
	carryKnownOne := sumMust ^ aMust ^ bMust
	aKnown := ^aMay | aMust
	bKnown := ^bMay | bMust
	known := aKnown & bKnown & (carryKnownZero | carryKnownOne)
	knownZero := ^sumMay & known
	knownOne := sumMust & known
	return knownOne & full, ^knownZero & full
}

// wrapRange 两个端点溢出方向相同时区间整体平移，否则为全区间
func wrapRange(w int, lo int64, loOv int, hi int64, hiOv int) (int64, int64) {
	if loOv == hiOv {
		return lo, hi
	}
	return stamp.MinValue(w), stamp.MaxValue(w)
}

func foldIntAdd(a, b stamp.IntegerStamp) stamp.IntegerStamp {
	if r, ok := constantFold(OpAdd, a, b); ok {
		return r
	}
	w := a.Bits()
	lo, loOv := addOverflow(w, a.Lower(), b.Lower())
	hi, hiOv := addOverflow(w, a.Upper(), b.Upper())
	lo, hi = wrapRange(w, lo, loOv, hi, hiOv)
	must, may := addKnownBits(w, a.MustBeSet(), a.MayBeSet(), b.MustBeSet(), b.MayBeSet(), 0)
	return stamp.CreateWithMasks(w, lo, hi, must, may)
}

func foldIntSub(a, b stamp.IntegerStamp) stamp.IntegerStamp {
	if r, ok := constantFold(OpSub, a, b); ok {
		return r
	}
	w := a.Bits()
	full := stamp.Mask(w)
	lo, loOv := subOverflow(w, a.Lower(), b.Upper())
	hi, hiOv := subOverflow(w, a.Upper(), b.Lower())
	lo, hi = wrapRange(w, lo, loOv, hi, hiOv)
	// a - b == a + ~b + 1
	must, may := addKnownBits(w, a.MustBeSet(), a.MayBeSet(), ^b.MayBeSet()&full, ^b.MustBeSet()&full, 1)
	return stamp.CreateWithMasks(w, lo, hi, must, may)
}

// mulExact 计算 w 位宽下的 a*b，ok 为 false 表示溢出
func mulExact(w int, a, b int64) (int64, bool) {
	if w <= 32 {
		p := a * b
		return p, p >= stamp.MinValue(w) && p <= stamp.MaxValue(w)
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if a < 0 {
		hi -= uint64(b)
	}
	if b < 0 {
		hi -= uint64(a)
	}
	// 无溢出当且仅当高 64 位是低 64 位的符号扩展
	return int64(lo), int64(hi) == int64(lo)>>63
}

// corners 在四个端点组合上求值并返回最小/最大值，任一组合失败时 ok 为 false
func corners(a, b stamp.IntegerStamp, f func(x, y int64) (int64, bool)) (lo, hi int64, ok bool) {
	xs := [2]int64{a.Lower(), a.Upper()}
	ys := [2]int64{b.Lower(), b.Upper()}
	first := true
	for _, x := range xs {
		for _, y := range ys {
			v, ok := f(x, y)
			if !ok {
				return 0, 0, false
			}
			if first || v < lo {
				lo = v
			}
			if first || v > hi {
				hi = v
			}
			first = false
		}
	}
	return lo, hi, true
}

// trailingZeroBits 掩码保证为 0 的最低连续位数
func trailingZeroBits(s stamp.IntegerStamp) int {
	return bits.TrailingZeros64(s.MayBeSet() | ^stamp.Mask(s.Bits()))
}

func foldIntMul(a, b stamp.IntegerStamp) stamp.IntegerStamp {
	if r, ok := constantFold(OpMul, a, b); ok {
		return r
	}
	w := a.Bits()
	lo, hi, ok := corners(a, b, func(x, y int64) (int64, bool) { return mulExact(w, x, y) })
	if !ok {
		lo, hi = stamp.MinValue(w), stamp.MaxValue(w)
	}
	// 低位零的个数相加
	tz := min(trailingZeroBits(a)+trailingZeroBits(b), w)
	may := stamp.Mask(w) &^ stamp.Mask(tz)
	return stamp.CreateWithMasks(w, lo, hi, 0, may)
}

func foldIntMulHigh(a, b stamp.IntegerStamp) stamp.IntegerStamp {
	if r, ok := constantFold(OpMulHigh, a, b); ok {
		return r
	}
	w := a.Bits()
	// 高半部分是乘积的向下取整，乘积在端点处取极值
	lo, hi, _ := corners(a, b, func(x, y int64) (int64, bool) { return mulHigh(w, x, y), true })
	return stamp.Create(w, lo, hi)
}

func foldIntUMulHigh(a, b stamp.IntegerStamp) stamp.IntegerStamp {
	if r, ok := constantFold(OpUMulHigh, a, b); ok {
		return r
	}
	w := a.Bits()
	lo := stamp.ZeroExtend(umulHigh(w, a.UnsignedLowerBound(), b.UnsignedLowerBound()), w)
	hi := stamp.ZeroExtend(umulHigh(w, a.UnsignedUpperBound(), b.UnsignedUpperBound()), w)
	return stamp.CreateUnsigned(w, lo, hi, 0, stamp.Mask(w))
}

// ============================================================================
// 除法与取余
// ============================================================================

func foldIntDiv(a, b stamp.IntegerStamp) stamp.IntegerStamp {
	if r, ok := constantFold(OpDiv, a, b); ok {
		return r
	}
	w := a.Bits()
	if b.Contains(0) {
		// 可能陷入，只描述不陷入时的结果会诱使删除除法
		return stamp.Unrestricted(w)
	}
	if a.Lower() == stamp.MinValue(w) && b.Lower() <= -1 && b.Upper() >= -1 {
		// MIN / -1 回绕为 MIN，结果不再单调
		return stamp.Unrestricted(w)
	}
	// 除数区间跨过 0（0 被掩码排除）时按正负两段分别取端点
	ys := []int64{b.Lower(), b.Upper()}
	if b.Lower() < 0 && b.Upper() > 0 {
		ys = append(ys, -1, 1)
	}
	lo, hi := a.Lower()/ys[0], a.Lower()/ys[0]
	for _, x := range [2]int64{a.Lower(), a.Upper()} {
		for _, y := range ys {
			lo = min(lo, x/y)
			hi = max(hi, x/y)
		}
	}
	return stamp.Create(w, lo, hi)
}

func foldIntRem(a, b stamp.IntegerStamp) stamp.IntegerStamp {
	if r, ok := constantFold(OpRem, a, b); ok {
		return r
	}
	w := a.Bits()
	if b.Contains(0) {
		return stamp.Unrestricted(w)
	}
	// |a % b| < |b|
	var m int64
	if b.Lower() == stamp.MinValue(w) {
		m = stamp.MaxValue(w)
	} else {
		m = max(abs64(b.Lower()), abs64(b.Upper())) - 1
	}
	lo := max(a.Lower(), -m)
	hi := min(a.Upper(), m)
	// 结果符号与被除数一致
	if a.Lower() >= 0 {
		lo = 0
	}
	if a.Upper() <= 0 {
		hi = 0
	}
	return stamp.Create(w, lo, hi)
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

// ============================================================================
// 位运算
// ============================================================================

func foldIntAnd(a, b stamp.IntegerStamp) stamp.IntegerStamp {
	w := a.Bits()
	return stamp.CreateWithMasks(w, stamp.MinValue(w), stamp.MaxValue(w),
		a.MustBeSet()&b.MustBeSet(), a.MayBeSet()&b.MayBeSet())
}

func foldIntOr(a, b stamp.IntegerStamp) stamp.IntegerStamp {
	w := a.Bits()
	return stamp.CreateWithMasks(w, stamp.MinValue(w), stamp.MaxValue(w),
		a.MustBeSet()|b.MustBeSet(), a.MayBeSet()|b.MayBeSet())
}

func foldIntXor(a, b stamp.IntegerStamp) stamp.IntegerStamp {
	w := a.Bits()
	full := stamp.Mask(w)
	knownOne := (a.MustBeSet() &^ b.MayBeSet()) | (^a.MayBeSet() & b.MustBeSet())
	knownZero := (^a.MayBeSet() &^ b.MayBeSet()) | (a.MustBeSet() & b.MustBeSet())
	return stamp.CreateWithMasks(w, stamp.MinValue(w), stamp.MaxValue(w), knownOne&full, ^knownZero&full)
}

// ============================================================================
// 最大/最小值
// ============================================================================

func foldIntMax(a, b stamp.IntegerStamp) stamp.IntegerStamp {
	return stamp.CreateWithMasks(a.Bits(), max(a.Lower(), b.Lower()), max(a.Upper(), b.Upper()),
		a.MustBeSet()&b.MustBeSet(), a.MayBeSet()|b.MayBeSet())
}

func foldIntMin(a, b stamp.IntegerStamp) stamp.IntegerStamp {
	return stamp.CreateWithMasks(a.Bits(), min(a.Lower(), b.Lower()), min(a.Upper(), b.Upper()),
		a.MustBeSet()&b.MustBeSet(), a.MayBeSet()|b.MayBeSet())
}

func foldIntUMax(a, b stamp.IntegerStamp) stamp.IntegerStamp {
	return stamp.CreateUnsigned(a.Bits(),
		max(a.UnsignedLowerBound(), b.UnsignedLowerBound()),
		max(a.UnsignedUpperBound(), b.UnsignedUpperBound()),
		a.MustBeSet()&b.MustBeSet(), a.MayBeSet()|b.MayBeSet())
}

func foldIntUMin(a, b stamp.IntegerStamp) stamp.IntegerStamp {
	return stamp.CreateUnsigned(a.Bits(),
		min(a.UnsignedLowerBound(), b.UnsignedLowerBound()),
		min(a.UnsignedUpperBound(), b.UnsignedUpperBound()),
		a.MustBeSet()&b.MustBeSet(), a.MayBeSet()|b.MayBeSet())
}

// ============================================================================
// 位收集/散布
// ============================================================================

// foldIntCompress 结果的每一位来自 value 中被 mask 选中的位
//
// mask 不可能为全 1 时，结果至多有 bits-1 位有效位，因而非负；
// compress 对 value 按位单调，对 mask 按数值单调（mask 多选一位只会
// 把已有的位推向高位或增加新位），于是极值在掩码端点处取到。
func foldIntCompress(value, mask stamp.IntegerStamp) stamp.IntegerStamp {
	if r, ok := constantFold(OpCompress, value, mask); ok {
		return r
	}
	w := value.Bits()
	full := stamp.Mask(w)
	if mask.MayBeSet() == full && value.CanBeNegative() {
		// compress(v, -1) == v，其余掩码结果非负
		return stamp.Create(w, value.Lower(), stamp.MaxValue(w))
	}
	lo := stamp.Compress(value.MustBeSet(), mask.MustBeSet())
	hi := stamp.Compress(value.MayBeSet(), mask.MayBeSet())
	may := stamp.Mask(bits.OnesCount64(mask.MayBeSet()))
	return stamp.CreateUnsigned(w, lo, hi, 0, may&full)
}

// foldIntExpand 结果只可能在 mask 可能置位的位置上为 1
func foldIntExpand(value, mask stamp.IntegerStamp) stamp.IntegerStamp {
	if r, ok := constantFold(OpExpand, value, mask); ok {
		return r
	}
	return stamp.StampForMask(value.Bits(), 0, mask.MayBeSet())
}
