// bits.go - 位宽相关的基础运算
//
// 所有整数值在内部都以 int64 保存（按位宽做符号扩展），
// 位掩码以 uint64 保存（只保留 mask(bits) 范围内的位）。

package stamp

import (
	"math/bits"

	"golang.org/x/exp/constraints"
)

// Mask 返回低 bits 位全为 1 的掩码
func Mask(bits int) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}
	if bits <= 0 {
		return 0
	}
	return (uint64(1) << uint(bits)) - 1
}

// MinValue 返回 bits 位有符号整数的最小值
func MinValue(bits int) int64 {
	return -1 << uint(bits-1)
}

// MaxValue 返回 bits 位有符号整数的最大值
func MaxValue(bits int) int64 {
	return int64(Mask(bits-1))
}

// MaxUnsigned 返回 bits 位无符号整数的最大值
func MaxUnsigned(bits int) uint64 {
	return Mask(bits)
}

// SignExtend 将低 bits 位按符号扩展到 64 位
func SignExtend[T constraints.Integer](v T, bits int) int64 {
	if bits >= 64 {
		return int64(v)
	}
	shift := uint(64 - bits)
	return int64(uint64(v)<<shift) >> shift
}

// ZeroExtend 截取低 bits 位并零扩展
func ZeroExtend[T constraints.Integer](v T, bits int) uint64 {
	return uint64(v) & Mask(bits)
}

// Narrow 将值截断到 bits 位后再符号扩展，得到该位宽下的规范表示
func Narrow(v int64, bits int) int64 {
	return SignExtend(uint64(v)&Mask(bits), bits)
}

// signBit 返回 bits 位宽下的符号位
func signBit(v uint64, bits int) uint64 {
	return (v >> uint(bits-1)) & 1
}

// sameBitMask 返回 lo 与 hi 第一个不同位及其以下所有位组成的掩码
func sameBitMask(lo, hi int64) uint64 {
	return ^uint64(0) >> uint(bits.LeadingZeros64(uint64(lo^hi)))
}

// sameSign 判断两个值符号是否相同
func sameSign(a, b int64) bool {
	return (a >= 0) == (b >= 0)
}

// validBits 检查位宽是否受支持
func validBits(b int) bool {
	switch b {
	case 1, 8, 16, 32, 64:
		return true
	}
	return false
}

// Compress 按 mask 收集 v 中对应的位并压缩到低位（PEXT 语义）
func Compress(v, mask uint64) uint64 {
	var result uint64
	out := uint(0)
	for mask != 0 {
		low := mask & -mask
		if v&low != 0 {
			result |= 1 << out
		}
		out++
		mask &^= low
	}
	return result
}

// Expand 将 v 的低位依次散布到 mask 中置位的位置（PDEP 语义）
func Expand(v, mask uint64) uint64 {
	var result uint64
	in := uint(0)
	for mask != 0 {
		low := mask & -mask
		if v&(1<<in) != 0 {
			result |= low
		}
		in++
		mask &^= low
	}
	return result
}
