// bounds_test.go - 边界搜索测试
//
// 对 1..6 位的所有掩码组合和所有边界做穷举，与暴力搜索结果逐一比较，
// 同时检查搜索失败时返回的哨兵值。

package stamp

import "testing"

// satisfies 判断 v 在 bits 位宽下是否满足掩码
func satisfies(v int64, bits int, must, may uint64) bool {
	u := uint64(v) & Mask(bits)
	return u&must == must && u&^may == 0
}

func bruteUpper(bits int, upper int64, must, may uint64) (int64, bool) {
	for v := upper; v >= MinValue(bits); v-- {
		if satisfies(v, bits, must, may) {
			return v, true
		}
	}
	return MinValue(bits), false
}

func bruteLower(bits int, lower int64, must, may uint64) (int64, bool) {
	for v := lower; v <= MaxValue(bits); v++ {
		if satisfies(v, bits, must, may) {
			return v, true
		}
	}
	return MaxValue(bits), false
}

// forEachMaskPair 枚举所有 must ⊆ may 的掩码对
func forEachMaskPair(bits int, fn func(must, may uint64)) {
	full := Mask(bits)
	for may := uint64(0); may <= full; may++ {
		// 枚举 may 的所有子集
		must := may
		for {
			fn(must, may)
			if must == 0 {
				break
			}
			must = (must - 1) & may
		}
	}
}

// TestBoundarySearchExhaustive 穷举比较边界搜索与暴力搜索
func TestBoundarySearchExhaustive(t *testing.T) {
	for bits := 1; bits <= 6; bits++ {
		failures := 0
		forEachMaskPair(bits, func(must, may uint64) {
			for bound := MinValue(bits); bound <= MaxValue(bits); bound++ {
				gotU, okU := UpperBoundForMasks(bits, bound, must, may)
				wantU, wantOkU := bruteUpper(bits, bound, must, may)
				if gotU != wantU || okU != wantOkU {
					failures++
					if failures < 10 {
						t.Errorf("i%d upper(%d, must=%#x, may=%#x) = (%d, %v), want (%d, %v)",
							bits, bound, must, may, gotU, okU, wantU, wantOkU)
					}
				}

				gotL, okL := LowerBoundForMasks(bits, bound, must, may)
				wantL, wantOkL := bruteLower(bits, bound, must, may)
				if gotL != wantL || okL != wantOkL {
					failures++
					if failures < 10 {
						t.Errorf("i%d lower(%d, must=%#x, may=%#x) = (%d, %v), want (%d, %v)",
							bits, bound, must, may, gotL, okL, wantL, wantOkL)
					}
				}
			}
		})
		if failures > 0 {
			t.Fatalf("i%d: %d mismatches", bits, failures)
		}
	}
}

// TestBoundarySearchSentinels 搜索失败时返回不精确的哨兵值
func TestBoundarySearchSentinels(t *testing.T) {
	// 必须为负（符号位置位），但上界为 0 以下不存在满足低位掩码的值
	v, ok := UpperBoundForMasks(8, -128, 0x81, 0xFF)
	if ok || v != MinValue(8) {
		t.Errorf("upper search: got (%d, %v), want (%d, false)", v, ok, MinValue(8))
	}

	// 必须为非负且 bit0 为 1，下界为 127 时唯一候选就是 127
	v, ok = LowerBoundForMasks(8, 127, 0x01, 0x7F)
	if !ok || v != 127 {
		t.Errorf("lower search: got (%d, %v), want (127, true)", v, ok)
	}

	v, ok = LowerBoundForMasks(8, 127, 0x02, 0x7E)
	if ok || v != MaxValue(8) {
		t.Errorf("lower search: got (%d, %v), want (%d, false)", v, ok, MaxValue(8))
	}
}

// TestBoundarySearchOutOfRange 超出位宽的边界会被截断或直接失败
func TestBoundarySearchOutOfRange(t *testing.T) {
	if v, ok := UpperBoundForMasks(8, 1000, 0, 0xFF); !ok || v != 127 {
		t.Errorf("clamped upper: got (%d, %v)", v, ok)
	}
	if _, ok := UpperBoundForMasks(8, -1000, 0, 0xFF); ok {
		t.Error("upper bound below the range should fail")
	}
	if v, ok := LowerBoundForMasks(8, -1000, 0, 0xFF); !ok || v != -128 {
		t.Errorf("clamped lower: got (%d, %v)", v, ok)
	}
	if _, ok := LowerBoundForMasks(8, 1000, 0, 0xFF); ok {
		t.Error("lower bound above the range should fail")
	}
}

// TestBoundarySearch64 64 位宽下的若干典型组合
func TestBoundarySearch64(t *testing.T) {
	tests := []struct {
		name      string
		bound     int64
		must, may uint64
		upper     bool
		want      int64
		exact     bool
	}{
		{"even below max", MaxValue(64), 0, ^uint64(1), true, MaxValue(64) - 1, true},
		{"negative only", 5, 1 << 63, ^uint64(0), true, -1, true},
		{"positive only", -5, 0, ^uint64(0) >> 1, false, 0, true},
		{"odd above min", MinValue(64), 1, ^uint64(0), false, MinValue(64) + 1, true},
		{"no negative value", -1, 0, ^uint64(0) >> 1, true, MinValue(64), false},
		{"no positive value", 0, 1 << 63, ^uint64(0), false, MaxValue(64), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got int64
			var exact bool
			if tt.upper {
				got, exact = UpperBoundForMasks(64, tt.bound, tt.must, tt.may)
			} else {
				got, exact = LowerBoundForMasks(64, tt.bound, tt.must, tt.may)
			}
			if got != tt.want || exact != tt.exact {
				t.Errorf("got (%d, %v), want (%d, %v)", got, exact, tt.want, tt.exact)
			}
		})
	}
}
