// shift.go - 移位运算的 stamp 折叠
//
// 移位量先按 ShiftMask 截断，因此可能的实际移位量是一个很小的集合；
// 对集合中每个常量移位量分别折叠，再对结果取 meet。

package arith

import (
	"github.com/tangzhangming/novaopt/internal/stamp"
)

type shiftFn func(v stamp.IntegerStamp, s uint) stamp.IntegerStamp

var shiftFolds = [opCount]shiftFn{
	OpShl:  shlConst,
	OpShr:  shrConst,
	OpUShr: ushrConst,
}

// shiftAmounts 返回 amount 截断后可能取到的移位量
func shiftAmounts(width int, amount stamp.IntegerStamp) []uint {
	mask := ShiftMask(width)
	if c, ok := amount.AsConstant(); ok {
		return []uint{uint(c & mask)}
	}
	var out []uint
	if amount.Upper()-amount.Lower() <= mask && amount.Upper()-amount.Lower() >= 0 {
		// 区间足够窄，逐个列举
		seen := uint64(0)
		for v := amount.Lower(); ; v++ {
			if amount.Contains(v) {
				s := uint(v & mask)
				if seen&(1<<s) == 0 {
					seen |= 1 << s
					out = append(out, s)
				}
			}
			if v == amount.Upper() {
				break
			}
		}
		return out
	}
	// 只按低位掩码过滤
	must := int64(amount.MustBeSet()) & mask
	may := int64(amount.MayBeSet()) & mask
	for s := int64(0); s <= mask; s++ {
		if s&must == must && s&^may == 0 {
			out = append(out, uint(s))
		}
	}
	return out
}

func foldShift(op Op, v, amount stamp.IntegerStamp) stamp.IntegerStamp {
	w := v.Bits()
	fn := shiftFolds[op]
	r := stamp.EmptyInt(w)
	for _, s := range shiftAmounts(w, amount) {
		r = r.MeetInt(fn(v, s))
		if r.IsUnrestricted() {
			break
		}
	}
	return r
}

func shlConst(v stamp.IntegerStamp, s uint) stamp.IntegerStamp {
	w := v.Bits()
	if s == 0 {
		return v
	}
	if int(s) >= w {
		return stamp.Constant(w, 0)
	}
	full := stamp.Mask(w)
	must := (v.MustBeSet() << s) & full
	may := (v.MayBeSet() << s) & full
	lo, hi := stamp.MinValue(w), stamp.MaxValue(w)
	// 两端左移都不丢位时区间保持有序
	if v.Lower()>>(uint(w)-1-s) >= -1 && v.Lower()>>(uint(w)-1-s) <= 0 &&
		v.Upper()>>(uint(w)-1-s) >= -1 && v.Upper()>>(uint(w)-1-s) <= 0 {
		lo, hi = v.Lower()<<s, v.Upper()<<s
	}
	return stamp.CreateWithMasks(w, lo, hi, must, may)
}

func shrConst(v stamp.IntegerStamp, s uint) stamp.IntegerStamp {
	w := v.Bits()
	if s == 0 {
		return v
	}
	full := stamp.Mask(w)
	// 掩码按符号扩展后算术右移，移入的位与符号位的已知状态一致
	must := uint64(stamp.SignExtend(v.MustBeSet(), w)>>s) & full
	may := uint64(stamp.SignExtend(v.MayBeSet(), w)>>s) & full
	return stamp.CreateWithMasks(w, v.Lower()>>s, v.Upper()>>s, must, may)
}

func ushrConst(v stamp.IntegerStamp, s uint) stamp.IntegerStamp {
	w := v.Bits()
	if s == 0 {
		return v
	}
	if int(s) >= w {
		return stamp.Constant(w, 0)
	}
	return stamp.CreateUnsigned(w, v.UnsignedLowerBound()>>s, v.UnsignedUpperBound()>>s,
		v.MustBeSet()>>s, v.MayBeSet()>>s)
}
