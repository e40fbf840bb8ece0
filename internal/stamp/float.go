// float.go - 浮点 stamp
//
// FloatStamp 记录 [lower, upper] 数值区间和一个 NaN 标记。
// NaN 不参与区间比较，单独由 nonNaN 跟踪：
//   - 顶元素：[-Inf, +Inf]，可能为 NaN
//   - 空 stamp：lower > upper 且不可能为 NaN（唯一编码 [+Inf, -Inf]）
//   - 纯 NaN：上下界均为 NaN，可能为 NaN
//
// -0.0 和 +0.0 作为边界是不同的值（min/max 把 -0.0 排在 +0.0 之前），
// 但 Contains 用数值比较，因此区间 [0, 0] 同时包含两种零。

package stamp

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FloatStamp 浮点 stamp
type FloatStamp struct {
	bits   int
	lower  float64
	upper  float64
	nonNaN bool
}

// ============================================================================
// 构造
// ============================================================================

// UnrestrictedFloat 返回 bits 位浮点的顶元素
func UnrestrictedFloat(bits int) FloatStamp {
	checkFloatBits(bits)
	return FloatStamp{bits: bits, lower: math.Inf(-1), upper: math.Inf(1), nonNaN: false}
}

// EmptyFloat 返回 bits 位浮点的空 stamp
func EmptyFloat(bits int) FloatStamp {
	checkFloatBits(bits)
	return FloatStamp{bits: bits, lower: math.Inf(1), upper: math.Inf(-1), nonNaN: true}
}

// NaNFloat 返回只包含 NaN 的 stamp
func NaNFloat(bits int) FloatStamp {
	checkFloatBits(bits)
	return FloatStamp{bits: bits, lower: math.NaN(), upper: math.NaN(), nonNaN: false}
}

// FloatConstant 返回只包含 v 的 stamp，v 为 NaN 时返回纯 NaN stamp
func FloatConstant(bits int, v float64) FloatStamp {
	checkFloatBits(bits)
	if math.IsNaN(v) {
		return NaNFloat(bits)
	}
	v = RoundFloat(v, bits)
	return FloatStamp{bits: bits, lower: v, upper: v, nonNaN: true}
}

// CreateFloat 返回区间 [lo, hi] 的 stamp；任一边界为 NaN 时只保留 NaN
func CreateFloat(bits int, lo, hi float64, nonNaN bool) FloatStamp {
	checkFloatBits(bits)
	if math.IsNaN(lo) || math.IsNaN(hi) {
		if nonNaN {
			return EmptyFloat(bits)
		}
		return NaNFloat(bits)
	}
	lo = RoundFloat(lo, bits)
	hi = RoundFloat(hi, bits)
	if lo > hi && nonNaN {
		return EmptyFloat(bits)
	}
	if lo > hi {
		return NaNFloat(bits)
	}
	return FloatStamp{bits: bits, lower: lo, upper: hi, nonNaN: nonNaN}
}

// RoundFloat 把 v 舍入到 bits 位浮点可表示的值
func RoundFloat(v float64, bits int) float64 {
	if bits == 32 {
		return float64(float32(v))
	}
	return v
}

func checkFloatBits(bits int) {
	if bits != 32 && bits != 64 {
		panic(fmt.Sprintf("stamp: unsupported float width %d", bits))
	}
}

// ============================================================================
// 查询
// ============================================================================

func (s FloatStamp) Kind() Kind        { return KindFloat }
func (s FloatStamp) Bits() int         { return s.bits }
func (s FloatStamp) Lower() float64    { return s.lower }
func (s FloatStamp) Upper() float64    { return s.upper }
func (s FloatStamp) IsNonNaN() bool    { return s.nonNaN }
func (s FloatStamp) CanBeNaN() bool    { return !s.nonNaN }
func (s FloatStamp) IsNaN() bool       { return math.IsNaN(s.lower) }
func (s FloatStamp) CanBeNegInf() bool { return math.IsInf(s.lower, -1) }
func (s FloatStamp) CanBePosInf() bool { return math.IsInf(s.upper, 1) }

// CanBeInf 区间包含某个无穷
func (s FloatStamp) CanBeInf() bool {
	return s.CanBeNegInf() || s.CanBePosInf()
}

// HasValues 至少包含一个值；NaN 边界上 NaN > NaN 为假，因此纯 NaN stamp 有值
func (s FloatStamp) HasValues() bool {
	return !(s.lower > s.upper)
}

func (s FloatStamp) IsEmpty() bool { return !s.HasValues() }

func (s FloatStamp) IsUnrestricted() bool {
	return math.IsInf(s.lower, -1) && math.IsInf(s.upper, 1) && !s.nonNaN
}

func (s FloatStamp) Empty() Stamp        { return EmptyFloat(s.bits) }
func (s FloatStamp) Unrestricted() Stamp { return UnrestrictedFloat(s.bits) }

// IsConstant 只包含一个非 NaN 值；零被排除，因为 [0, 0] 可能同时包含 -0.0
func (s FloatStamp) IsConstant() bool {
	return s.lower == s.upper && s.nonNaN && s.lower != 0
}

// AsConstant 返回唯一值
func (s FloatStamp) AsConstant() (float64, bool) {
	if !s.IsConstant() {
		return 0, false
	}
	return s.lower, true
}

// Contains 判断 v 是否可能出现
func (s FloatStamp) Contains(v float64) bool {
	if math.IsNaN(v) {
		return !s.nonNaN
	}
	return v >= s.lower && v <= s.upper
}

// ContainsZero 区间包含 ±0
func (s FloatStamp) ContainsZero() bool {
	return s.Contains(0)
}

// ============================================================================
// 格运算
// ============================================================================

func (s FloatStamp) IsCompatible(other Stamp) bool {
	o, ok := other.(FloatStamp)
	return ok && o.bits == s.bits
}

// Equals 按位比较边界，区分 -0.0/+0.0，NaN 与 NaN 相等
func (s FloatStamp) Equals(other Stamp) bool {
	o, ok := other.(FloatStamp)
	return ok && s.same(o)
}

func (s FloatStamp) same(o FloatStamp) bool {
	return s.bits == o.bits && s.nonNaN == o.nonNaN &&
		sameFloat(s.lower, o.lower) && sameFloat(s.upper, o.upper)
}

func sameFloat(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Float64bits(a) == math.Float64bits(b)
}

func (s FloatStamp) Meet(other Stamp) Stamp {
	o, ok := other.(FloatStamp)
	if !ok || o.bits != s.bits {
		incompatible("meet", s, other)
	}
	return s.MeetFloat(o)
}

func (s FloatStamp) Join(other Stamp) Stamp {
	o, ok := other.(FloatStamp)
	if !ok || o.bits != s.bits {
		incompatible("join", s, other)
	}
	return s.JoinFloat(o)
}

// MeetFloat 区间取凸包（忽略 NaN 边界），NaN 标记取或
func (s FloatStamp) MeetFloat(o FloatStamp) FloatStamp {
	if s.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return s
	}
	r := FloatStamp{
		bits:   s.bits,
		lower:  meetBound(s.lower, o.lower, math.Min),
		upper:  meetBound(s.upper, o.upper, math.Max),
		nonNaN: s.nonNaN && o.nonNaN,
	}
	return r.pick(s, o)
}

// JoinFloat 区间取交，NaN 标记取与；数值部分和 NaN 部分都为空时返回空 stamp
func (s FloatStamp) JoinFloat(o FloatStamp) FloatStamp {
	if s.IsEmpty() {
		return s
	}
	if o.IsEmpty() {
		return o
	}
	nonNaN := s.nonNaN || o.nonNaN
	// math.Max/Min 先比较无穷再看 NaN，只有 NaN 的一侧要单独处理
	if s.IsNaN() || o.IsNaN() || s.lower > o.upper || o.lower > s.upper {
		if nonNaN {
			return EmptyFloat(s.bits)
		}
		return NaNFloat(s.bits).pick(s, o)
	}
	lo := math.Max(s.lower, o.lower)
	hi := math.Min(s.upper, o.upper)
	r := FloatStamp{bits: s.bits, lower: lo, upper: hi, nonNaN: nonNaN}
	return r.pick(s, o)
}

// meetBound 一侧为 NaN 时取另一侧
func meetBound(a, b float64, op func(float64, float64) float64) float64 {
	if math.IsNaN(a) {
		return b
	}
	if math.IsNaN(b) {
		return a
	}
	return op(a, b)
}

// pick 结果与某个操作数相同时复用该操作数
func (r FloatStamp) pick(s, o FloatStamp) FloatStamp {
	if r.same(s) {
		return s
	}
	if r.same(o) {
		return o
	}
	return r
}

// ============================================================================
// 格式化
// ============================================================================

// String 形如 "f64! [0.0 - 1.0]"，"!" 表示不可能为 NaN
func (s FloatStamp) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "f%d", s.bits)
	if !s.HasValues() {
		sb.WriteString("<empty>")
		return sb.String()
	}
	if s.nonNaN {
		sb.WriteByte('!')
	}
	switch {
	case s.IsNaN():
		sb.WriteString(" [NaN]")
	case s.lower == s.upper && math.Signbit(s.lower) == math.Signbit(s.upper):
		fmt.Fprintf(&sb, " [%s]", formatFloat(s.lower, s.bits))
	case !math.IsInf(s.lower, -1) || !math.IsInf(s.upper, 1):
		fmt.Fprintf(&sb, " [%s - %s]", formatFloat(s.lower, s.bits), formatFloat(s.upper, s.bits))
	}
	return sb.String()
}

func formatFloat(v float64, bits int) string {
	return strconv.FormatFloat(v, 'g', -1, bits)
}
