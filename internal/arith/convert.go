// convert.go - 宽度转换与整数/浮点转换
//
// 正向折叠给出结果的上近似；求逆给出输入的下近似：
// 返回的输入 stamp 中每个值经过转换后都落在期望的结果 stamp 内，
// 因此可以用来证明某个约束是多余的。

package arith

import (
	"github.com/tangzhangming/novaopt/internal/stamp"
)

// ============================================================================
// 整数宽度转换
// ============================================================================

func foldZeroExtend(from, to int, s stamp.IntegerStamp) stamp.IntegerStamp {
	if from == to {
		return s
	}
	// 输入掩码已经限制在 from 位内，高位自然为 0
	return stamp.CreateWithMasks(to,
		int64(s.UnsignedLowerBound()), int64(s.UnsignedUpperBound()),
		s.MustBeSet(), s.MayBeSet())
}

func foldSignExtend(from, to int, s stamp.IntegerStamp) stamp.IntegerStamp {
	if from == to {
		return s
	}
	full := stamp.Mask(to)
	must := uint64(stamp.SignExtend(s.MustBeSet(), from)) & full
	may := uint64(stamp.SignExtend(s.MayBeSet(), from)) & full
	return stamp.CreateWithMasks(to, s.Lower(), s.Upper(), must, may)
}

func foldNarrow(from, to int, s stamp.IntegerStamp) stamp.IntegerStamp {
	if from == to {
		return s
	}
	lo, hi := stamp.MinValue(to), stamp.MaxValue(to)
	// 区间宽度小于 2^to 且截断后仍有序时，截断保持区间
	if uint64(s.Upper()-s.Lower()) < uint64(1)<<uint(to) {
		nlo, nhi := stamp.Narrow(s.Lower(), to), stamp.Narrow(s.Upper(), to)
		if nlo <= nhi {
			lo, hi = nlo, nhi
		}
	}
	full := stamp.Mask(to)
	return stamp.CreateWithMasks(to, lo, hi, s.MustBeSet()&full, s.MayBeSet()&full)
}

// ============================================================================
// 整数/浮点转换
// ============================================================================

func foldIntToFloat(op Op, s stamp.IntegerStamp) stamp.FloatStamp {
	_, out, _ := ConvertWidths(op)
	return stamp.CreateFloat(out, EvalToFloat(op, s.Lower()), EvalToFloat(op, s.Upper()), true)
}

func foldFloatToFloat(op Op, s stamp.FloatStamp) stamp.FloatStamp {
	_, out, _ := ConvertWidths(op)
	if s.IsNaN() {
		return stamp.NaNFloat(out)
	}
	return stamp.CreateFloat(out, EvalFloatConvert(op, s.Lower()), EvalFloatConvert(op, s.Upper()), s.IsNonNaN())
}

func foldFloatToInt(op Op, s stamp.FloatStamp) stamp.IntegerStamp {
	_, out, _ := ConvertWidths(op)
	if s.IsNaN() {
		return stamp.Constant(out, 0)
	}
	r := stamp.Create(out, EvalToInt(op, s.Lower()), EvalToInt(op, s.Upper()))
	if s.CanBeNaN() {
		// NaN 转为 0
		r = r.MeetInt(stamp.Constant(out, 0))
	}
	return r
}

// ============================================================================
// 求逆
// ============================================================================

// invertSignExtend 返回 from 位输入中符号扩展到 to 位后落在 s 内的全部值
//
// 扩展出的高位全部等于输入的符号位：s 要求某个高位为 1 时符号位必须为 1，
// s 不允许某个高位为 1 时符号位必须为 0，两者同时出现则无解。
func invertSignExtend(from, to int, s stamp.IntegerStamp) stamp.IntegerStamp {
	if from == to {
		return s
	}
	lo := max(s.Lower(), stamp.MinValue(from))
	hi := min(s.Upper(), stamp.MaxValue(from))
	if lo > hi {
		return stamp.EmptyInt(from)
	}
	low := stamp.Mask(from)
	high := stamp.Mask(to) &^ low
	sign := uint64(1) << uint(from-1)
	must := s.MustBeSet() & low
	may := s.MayBeSet() & low
	if s.MustBeSet()&high != 0 {
		must |= sign
	}
	if ^s.MayBeSet()&high != 0 {
		may &^= sign
	}
	return stamp.CreateWithMasks(from, lo, hi, must, may)
}

// invertZeroExtend 返回 from 位输入中零扩展后落在 s 内的值
//
// 零扩展的结果在 [0, 2^from-1] 内。满足条件的无符号区间跨越 from 位的
// 符号边界时，对应的输入不是一个连续的有符号区间，只保留非负的一段。
func invertZeroExtend(from, to int, s stamp.IntegerStamp) stamp.IntegerStamp {
	if from == to {
		return s
	}
	low := stamp.Mask(from)
	if s.MustBeSet()&^low != 0 {
		return stamp.EmptyInt(from)
	}
	// to > from，因此 [0, MaxUnsigned(from)] 在 to 位下都是非负数
	a := max(s.Lower(), 0)
	b := min(s.Upper(), int64(stamp.MaxUnsigned(from)))
	if a > b {
		return stamp.EmptyInt(from)
	}
	half := stamp.MaxValue(from)
	var lo, hi int64
	switch {
	case b <= half:
		lo, hi = a, b
	case a > half:
		lo, hi = stamp.SignExtend(a, from), stamp.SignExtend(b, from)
	default:
		lo, hi = a, half
	}
	return stamp.CreateWithMasks(from, lo, hi, s.MustBeSet()&low, s.MayBeSet()&low)
}

// invertNarrow 返回 from 位输入中截断到 to 位后落在 s 内的值
//
// s 完全由掩码描述时，高位可以任取；否则只保留本身就能用 to 位表示的输入。
func invertNarrow(from, to int, s stamp.IntegerStamp) stamp.IntegerStamp {
	if from == to {
		return s
	}
	byMask := stamp.StampForMask(to, s.MustBeSet(), s.MayBeSet())
	if byMask.Equals(s) {
		high := stamp.Mask(from) &^ stamp.Mask(to)
		return stamp.StampForMask(from, s.MustBeSet(), s.MayBeSet()|high)
	}
	full := stamp.Mask(from)
	must := uint64(stamp.SignExtend(s.MustBeSet(), to)) & full
	may := uint64(stamp.SignExtend(s.MayBeSet(), to)) & full
	return stamp.CreateWithMasks(from, s.Lower(), s.Upper(), must, may)
}

