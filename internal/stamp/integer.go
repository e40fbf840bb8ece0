// integer.go - 整数 stamp
//
// IntegerStamp 同时记录两类事实：
//   - 有符号区间 [lower, upper]
//   - 位掩码：mustBeSet 中的位一定为 1，mayBeSet 之外的位一定为 0
//
// 两类约束单独看都可能可满足，合在一起却无解，因此每次构造都会
// 用边界搜索把区间收紧到真正满足掩码的值上，并把区间的公共高位
// 回写到掩码里，直到两者稳定。

package stamp

import (
	"fmt"
	"strings"
)

// refineLimit 区间/掩码相互收紧的最大轮数
const refineLimit = 3

// IntegerStamp 整数 stamp
type IntegerStamp struct {
	bits  int
	lower int64
	upper int64
	must  uint64
	may   uint64
}

// ============================================================================
// 构造
// ============================================================================

// Unrestricted 返回 bits 位的顶元素
func Unrestricted(bits int) IntegerStamp {
	checkBits(bits)
	return IntegerStamp{bits: bits, lower: MinValue(bits), upper: MaxValue(bits), must: 0, may: Mask(bits)}
}

// EmptyInt 返回 bits 位的空 stamp
func EmptyInt(bits int) IntegerStamp {
	checkBits(bits)
	return IntegerStamp{bits: bits, lower: MaxValue(bits), upper: MinValue(bits), must: Mask(bits), may: 0}
}

// Constant 返回只包含 v 的 stamp
func Constant(bits int, v int64) IntegerStamp {
	checkBits(bits)
	v = Narrow(v, bits)
	u := uint64(v) & Mask(bits)
	return IntegerStamp{bits: bits, lower: v, upper: v, must: u, may: u}
}

// Create 返回覆盖区间 [lo, hi] 的 stamp，掩码由区间的公共高位推出
func Create(bits int, lo, hi int64) IntegerStamp {
	checkBits(bits)
	checkRange(bits, lo, hi)
	if lo > hi {
		return EmptyInt(bits)
	}
	if lo == hi {
		return Constant(bits, lo)
	}
	same := sameBitMask(lo, hi)
	full := Mask(bits)
	return IntegerStamp{
		bits:  bits,
		lower: lo,
		upper: hi,
		must:  full & (uint64(lo) &^ same),
		may:   full & (uint64(lo) | same),
	}
}

// CreateWithMasks 返回同时满足区间和掩码的最精确 stamp
func CreateWithMasks(bits int, lo, hi int64, must, may uint64) IntegerStamp {
	checkBits(bits)
	checkRange(bits, lo, hi)
	full := Mask(bits)
	must &= full
	may &= full

	if lo > hi || must&^may != 0 {
		return EmptyInt(bits)
	}
	if must == 0 && may == full {
		return Create(bits, lo, hi)
	}

	for i := 0; i < refineLimit; i++ {
		var boundedMust, boundedMay uint64
		if lo == hi {
			boundedMust = uint64(lo)
			boundedMay = uint64(lo)
		} else {
			same := sameBitMask(lo, hi)
			boundedMust = uint64(lo) &^ same
			boundedMay = uint64(lo) | same
		}
		newMust := full & (must | boundedMust)
		newMay := full & may & boundedMay
		if newMust&^newMay != 0 {
			return EmptyInt(bits)
		}

		newLo, okLo := LowerBoundForMasks(bits, lo, newMust, newMay)
		newHi, okHi := UpperBoundForMasks(bits, hi, newMust, newMay)
		if !okLo || !okHi || newLo > newHi {
			return EmptyInt(bits)
		}

		stable := newLo == lo && newHi == hi && newMust == must && newMay == may
		lo, hi, must, may = newLo, newHi, newMust, newMay
		if stable {
			break
		}
	}
	return IntegerStamp{bits: bits, lower: lo, upper: hi, must: must, may: may}
}

// StampForMask 返回只由掩码约束的 stamp
func StampForMask(bits int, must, may uint64) IntegerStamp {
	checkBits(bits)
	full := Mask(bits)
	must &= full
	may &= full
	if must&^may != 0 {
		return EmptyInt(bits)
	}
	return IntegerStamp{
		bits:  bits,
		lower: minValueForMasks(bits, must, may),
		upper: maxValueForMasks(bits, must, may),
		must:  must,
		may:   may,
	}
}

// CreateUnsigned 返回覆盖无符号区间 [lo, hi] 的 stamp
//
// 无符号区间跨越有符号边界时无法用有符号区间精确表示，此时退化为全区间，
// 只保留掩码信息。
func CreateUnsigned(bits int, lo, hi uint64, must, may uint64) IntegerStamp {
	checkBits(bits)
	full := Mask(bits)
	lo &= full
	hi &= full
	if lo > hi {
		return EmptyInt(bits)
	}
	slo := SignExtend(lo, bits)
	shi := SignExtend(hi, bits)
	if !sameSign(slo, shi) {
		slo = MinValue(bits)
		shi = MaxValue(bits)
	}
	return CreateWithMasks(bits, slo, shi, must, may)
}

// NonNegative 返回 [0, MaxValue] 的 stamp
func NonNegative(bits int) IntegerStamp {
	return Create(bits, 0, MaxValue(bits))
}

// Positive 返回 [1, MaxValue] 的 stamp，位宽至少为 2
func Positive(bits int) IntegerStamp {
	return Create(bits, 1, MaxValue(bits))
}

func checkBits(bits int) {
	if !validBits(bits) {
		panic(fmt.Sprintf("stamp: unsupported integer width %d", bits))
	}
}

func checkRange(bits int, lo, hi int64) {
	if lo < MinValue(bits) || lo > MaxValue(bits) || hi < MinValue(bits) || hi > MaxValue(bits) {
		panic(fmt.Sprintf("stamp: bounds [%d, %d] out of range for i%d", lo, hi, bits))
	}
}

// ============================================================================
// 查询
// ============================================================================

func (s IntegerStamp) Kind() Kind        { return KindInteger }
func (s IntegerStamp) Bits() int         { return s.bits }
func (s IntegerStamp) Lower() int64      { return s.lower }
func (s IntegerStamp) Upper() int64      { return s.upper }
func (s IntegerStamp) MustBeSet() uint64 { return s.must }
func (s IntegerStamp) MayBeSet() uint64  { return s.may }

// IsEmpty 区间为空即为空 stamp（构造函数保证掩码矛盾时区间也为空）
func (s IntegerStamp) IsEmpty() bool {
	return s.lower > s.upper
}

func (s IntegerStamp) IsUnrestricted() bool {
	return s.lower == MinValue(s.bits) && s.upper == MaxValue(s.bits) && s.must == 0 && s.may == Mask(s.bits)
}

func (s IntegerStamp) Empty() Stamp        { return EmptyInt(s.bits) }
func (s IntegerStamp) Unrestricted() Stamp { return Unrestricted(s.bits) }

// IsConstant 是否只包含一个值
func (s IntegerStamp) IsConstant() bool {
	return s.lower == s.upper
}

// AsConstant 返回唯一值
func (s IntegerStamp) AsConstant() (int64, bool) {
	if s.lower != s.upper {
		return 0, false
	}
	return s.lower, true
}

// Contains 判断 v（按本位宽符号扩展后的值）是否可能出现
func (s IntegerStamp) Contains(v int64) bool {
	u := uint64(v) & Mask(s.bits)
	return v >= s.lower && v <= s.upper && u&s.must == s.must && u&^s.may == 0
}

func (s IntegerStamp) IsNonNegative() bool      { return s.lower >= 0 }
func (s IntegerStamp) IsStrictlyPositive() bool { return s.lower > 0 }
func (s IntegerStamp) IsStrictlyNegative() bool { return s.upper < 0 }
func (s IntegerStamp) CanBePositive() bool      { return s.upper > 0 }
func (s IntegerStamp) CanBeNegative() bool      { return s.lower < 0 }

// sameSignBounds 上下界符号相同
func (s IntegerStamp) sameSignBounds() bool {
	return sameSign(s.lower, s.upper)
}

// UnsignedUpperBound 无符号上界
func (s IntegerStamp) UnsignedUpperBound() uint64 {
	if s.sameSignBounds() {
		return ZeroExtend(s.upper, s.bits)
	}
	return MaxUnsigned(s.bits)
}

// UnsignedLowerBound 无符号下界
func (s IntegerStamp) UnsignedLowerBound() uint64 {
	if s.sameSignBounds() {
		return ZeroExtend(s.lower, s.bits)
	}
	return 0
}

// ============================================================================
// 格运算
// ============================================================================

func (s IntegerStamp) IsCompatible(other Stamp) bool {
	o, ok := other.(IntegerStamp)
	return ok && o.bits == s.bits
}

func (s IntegerStamp) Equals(other Stamp) bool {
	o, ok := other.(IntegerStamp)
	return ok && o == s
}

func (s IntegerStamp) Meet(other Stamp) Stamp {
	o, ok := other.(IntegerStamp)
	if !ok || o.bits != s.bits {
		incompatible("meet", s, other)
	}
	return s.MeetInt(o)
}

func (s IntegerStamp) Join(other Stamp) Stamp {
	o, ok := other.(IntegerStamp)
	if !ok || o.bits != s.bits {
		incompatible("join", s, other)
	}
	return s.JoinInt(o)
}

// MeetInt 区间取凸包，掩码取并，再按掩码收紧边界
func (s IntegerStamp) MeetInt(o IntegerStamp) IntegerStamp {
	if s == o {
		return s
	}
	if s.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return s
	}
	return s.refine(o, min(s.lower, o.lower), max(s.upper, o.upper), s.must&o.must, s.may|o.may)
}

// JoinInt 区间与掩码同时取交，矛盾时返回空 stamp
func (s IntegerStamp) JoinInt(o IntegerStamp) IntegerStamp {
	if s == o {
		return s
	}
	return s.refine(o, max(s.lower, o.lower), min(s.upper, o.upper), s.must|o.must, s.may&o.may)
}

// refine 结果与某个操作数相同时直接复用
func (s IntegerStamp) refine(o IntegerStamp, lo, hi int64, must, may uint64) IntegerStamp {
	if lo > hi || must&^may != 0 {
		return EmptyInt(s.bits)
	}
	candidate := IntegerStamp{bits: s.bits, lower: lo, upper: hi, must: must, may: may}
	if candidate == s {
		return s
	}
	if candidate == o {
		return o
	}
	return CreateWithMasks(s.bits, lo, hi, must, may)
}

// ============================================================================
// 格式化
// ============================================================================

// String 形如 "i32 [0 - 15] bits:0...0xxxx"
func (s IntegerStamp) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "i%d", s.bits)
	if s.IsEmpty() {
		sb.WriteString("<empty>")
		return sb.String()
	}
	if s.lower == s.upper {
		fmt.Fprintf(&sb, " [%d]", s.lower)
		return sb.String()
	}
	if s.lower != MinValue(s.bits) || s.upper != MaxValue(s.bits) {
		fmt.Fprintf(&sb, " [%d - %d]", s.lower, s.upper)
	}
	if s.must != 0 || s.may != Mask(s.bits) {
		sb.WriteString(" bits:")
		sb.WriteString(s.bitPattern())
	}
	return sb.String()
}

// bitPattern 每一位用 0/1/x 表示，前导重复超过 8 位时折叠
func (s IntegerStamp) bitPattern() string {
	chars := make([]byte, s.bits)
	for i := s.bits - 1; i >= 0; i-- {
		bit := uint64(1) << uint(i)
		c := byte('x')
		if s.may&bit == 0 {
			c = '0'
		} else if s.must&bit != 0 {
			c = '1'
		}
		chars[s.bits-1-i] = c
	}

	leading := 1
	for leading < len(chars) && chars[leading] == chars[0] {
		leading++
	}
	if leading == len(chars) || leading <= 8 {
		return string(chars)
	}
	return string(chars[0]) + "..." + string(chars[leading-1:])
}
