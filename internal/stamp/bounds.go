// bounds.go - 区间与掩码之间的边界搜索
//
// 给定掩码 (mustBeSet, mayBeSet) 和一个边界，搜索掩码允许的、
// 离边界最近的具体值：
//   - UpperBoundForMasks: 满足掩码且 <= upper 的最大值
//   - LowerBoundForMasks: 满足掩码且 >= lower 的最小值
//
// 搜索失败时返回哨兵值并把 exact 置为 false：上界搜索返回
// MinValue(bits)，下界搜索返回 MaxValue(bits)。调用方据此把
// stamp 判为 empty，而不是把哨兵当成真实边界使用。
//
// 算法：把符号位取反后，有符号序就变成了无符号序。在无符号空间里，
// 结果要么就是边界本身，要么与边界共享某个位置 p 以上的前缀、
// 在 p 处与边界不同、p 以下取掩码允许的极值。取满足条件的最低 p
// 即得到离边界最近的解。

package stamp

// minValueForMasks 掩码允许的最小有符号值（不考虑区间）
func minValueForMasks(bits int, must, may uint64) int64 {
	if signBit(may, bits) == 0 {
		// 符号位不可能为 1，最小值就是必定置位的那些位
		return int64(must)
	}
	return int64(must) | MinValue(bits)
}

// maxValueForMasks 掩码允许的最大有符号值（不考虑区间）
func maxValueForMasks(bits int, must, may uint64) int64 {
	if signBit(must, bits) == 1 {
		return SignExtend(may, bits)
	}
	return int64(may & (Mask(bits) >> 1))
}

// biasMasks 把掩码换算到符号位取反后的无符号空间
func biasMasks(bits int, must, may uint64) (uint64, uint64) {
	sign := uint64(1) << uint(bits-1)
	bMust := must &^ sign
	bMay := may &^ sign
	if may&sign == 0 {
		bMust |= sign
	}
	if must&sign == 0 {
		bMay |= sign
	}
	return bMust, bMay
}

// prefixMatches 检查 u 在 keep 覆盖的位上是否满足掩码
func prefixMatches(u, must, may, keep uint64) bool {
	return u&must&keep == must&keep && u&^may&keep == 0
}

// UpperBoundForMasks 搜索满足掩码且不大于 upper 的最大值
func UpperBoundForMasks(bits int, upper int64, must, may uint64) (int64, bool) {
	if upper < MinValue(bits) {
		return MinValue(bits), false
	}
	if upper > MaxValue(bits) {
		upper = MaxValue(bits)
	}
	full := Mask(bits)
	sign := uint64(1) << uint(bits-1)
	bMust, bMay := biasMasks(bits, must&full, may&full)

	u := (uint64(upper) & full) ^ sign
	if prefixMatches(u, bMust, bMay, full) {
		return upper, true
	}
	for pos := 0; pos < bits; pos++ {
		bit := uint64(1) << uint(pos)
		above := full &^ Mask(pos+1)
		if u&bit != 0 && bMust&bit == 0 && prefixMatches(u, bMust, bMay, above) {
			r := (u & above) | (bMay & Mask(pos))
			return SignExtend(r^sign, bits), true
		}
	}
	return MinValue(bits), false
}

// LowerBoundForMasks 搜索满足掩码且不小于 lower 的最小值
func LowerBoundForMasks(bits int, lower int64, must, may uint64) (int64, bool) {
	if lower > MaxValue(bits) {
		return MaxValue(bits), false
	}
	if lower < MinValue(bits) {
		lower = MinValue(bits)
	}
	full := Mask(bits)
	sign := uint64(1) << uint(bits-1)
	bMust, bMay := biasMasks(bits, must&full, may&full)

	l := (uint64(lower) & full) ^ sign
	if prefixMatches(l, bMust, bMay, full) {
		return lower, true
	}
	for pos := 0; pos < bits; pos++ {
		bit := uint64(1) << uint(pos)
		above := full &^ Mask(pos+1)
		if l&bit == 0 && bMay&bit != 0 && prefixMatches(l, bMust, bMay, above) {
			r := (l & above) | bit | (bMust & Mask(pos))
			return SignExtend(r^sign, bits), true
		}
	}
	return MaxValue(bits), false
}
