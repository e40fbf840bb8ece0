// float_test.go - 浮点 stamp 测试

package stamp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// floatSamples 覆盖 NaN、无穷、有符号零和普通区间的 stamp 集合
func floatSamples(bits int) []FloatStamp {
	inf := math.Inf(1)
	return []FloatStamp{
		UnrestrictedFloat(bits),
		EmptyFloat(bits),
		NaNFloat(bits),
		FloatConstant(bits, 1.5),
		FloatConstant(bits, -2),
		CreateFloat(bits, 0, 0, true),
		CreateFloat(bits, math.Copysign(0, -1), 0, true),
		CreateFloat(bits, -1, 1, true),
		CreateFloat(bits, -1, 1, false),
		CreateFloat(bits, 2, 10, true),
		CreateFloat(bits, -inf, 0, true),
		CreateFloat(bits, 0, inf, false),
		CreateFloat(bits, inf, inf, true),
		CreateFloat(bits, -inf, -inf, false),
	}
}

var floatProbes = []float64{
	math.NaN(), math.Inf(-1), math.Inf(1), 0, math.Copysign(0, -1),
	-100, -2, -1, -0.5, 0.5, 1, 1.5, 2, 3, 10, 11, math.MaxFloat32,
}

// TestFloatLatticeLaws 浮点 stamp 的格律
func TestFloatLatticeLaws(t *testing.T) {
	for _, bits := range []int{32, 64} {
		samples := floatSamples(bits)
		for _, a := range samples {
			assert.True(t, a.Meet(a).Equals(a), "meet(%s, %s)", a, a)
			assert.True(t, a.Join(a).Equals(a), "join(%s, %s)", a, a)
			assert.True(t, a.Join(a.Unrestricted()).Equals(a), "join(%s, top)", a)
			assert.True(t, a.Meet(a.Unrestricted()).Equals(a.Unrestricted()), "meet(%s, top)", a)
			for _, b := range samples {
				assert.True(t, a.Meet(b).Equals(b.Meet(a)), "meet(%s, %s)", a, b)
				assert.True(t, a.Join(b).Equals(b.Join(a)), "join(%s, %s)", a, b)
				for _, c := range samples {
					assert.True(t, a.Meet(b.Meet(c)).Equals(a.Meet(b).Meet(c)), "meet assoc %s %s %s", a, b, c)
				}
			}
		}
	}
}

// TestFloatContainment meet 包含双方的值，join 只包含双方共有的值
func TestFloatContainment(t *testing.T) {
	samples := floatSamples(64)
	for _, a := range samples {
		for _, b := range samples {
			m := a.MeetFloat(b)
			j := a.JoinFloat(b)
			for _, v := range floatProbes {
				if (a.Contains(v) || b.Contains(v)) && !m.Contains(v) {
					t.Errorf("meet(%s, %s) = %s misses %v", a, b, m, v)
				}
				if j.Contains(v) && !(a.Contains(v) && b.Contains(v)) {
					t.Errorf("join(%s, %s) = %s contains %v", a, b, j, v)
				}
			}
		}
	}
}

// TestFloatDisjointJoin 不相交且都排除 NaN 的区间相交为空
func TestFloatDisjointJoin(t *testing.T) {
	a := CreateFloat(64, 0, 1, true)
	b := CreateFloat(64, 2, 3, true)
	j := a.JoinFloat(b)
	assert.False(t, j.HasValues())
	assert.True(t, j.IsEmpty())

	// 一方允许 NaN 时，结果仍然排除 NaN
	c := CreateFloat(64, 2, 3, false)
	assert.False(t, a.JoinFloat(c).HasValues())

	// 双方都允许 NaN：只剩 NaN
	d := CreateFloat(64, 0, 1, false)
	n := d.JoinFloat(c)
	assert.True(t, n.HasValues())
	assert.True(t, n.IsNaN())
	assert.True(t, n.Contains(math.NaN()))
	assert.False(t, n.Contains(0.5))
}

// TestFloatJoinNaNWithInfinity 只有 NaN 的 stamp 与排除 NaN 的无穷相交为空
func TestFloatJoinNaNWithInfinity(t *testing.T) {
	inf := math.Inf(1)
	tests := []struct {
		name  string
		other FloatStamp
		empty bool
	}{
		{"+Inf", CreateFloat(64, inf, inf, true), true},
		{"-Inf", CreateFloat(64, -inf, -inf, true), true},
		{"up to +Inf", CreateFloat(64, 0, inf, true), true},
		{"+Inf or NaN", CreateFloat(64, inf, inf, false), false},
		{"-Inf or NaN", CreateFloat(64, -inf, 0, false), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, j := range []FloatStamp{NaNFloat(64).JoinFloat(tt.other), tt.other.JoinFloat(NaNFloat(64))} {
				if tt.empty {
					assert.True(t, j.IsEmpty(), "%s", j)
					assert.False(t, j.Contains(math.NaN()))
				} else {
					assert.True(t, j.IsNaN(), "%s", j)
				}
				assert.False(t, j.Contains(inf))
				assert.False(t, j.Contains(-inf))
			}
		})
	}
}

// TestFloatSignedZero -0.0 与 +0.0 是不同的边界
func TestFloatSignedZero(t *testing.T) {
	negZero := math.Copysign(0, -1)
	a := CreateFloat(64, negZero, negZero, true)
	b := CreateFloat(64, 0, 0, true)
	assert.False(t, a.Equals(b))

	m := a.MeetFloat(b)
	assert.True(t, math.Signbit(m.Lower()), "lower bound should be -0.0")
	assert.False(t, math.Signbit(m.Upper()), "upper bound should be +0.0")
	assert.False(t, m.IsConstant())
	assert.False(t, b.IsConstant())
}

// TestFloatConstant 常量与 NaN
func TestFloatConstant(t *testing.T) {
	c := FloatConstant(32, 0.1)
	v, ok := c.AsConstant()
	assert.True(t, ok)
	assert.Equal(t, float64(float32(0.1)), v)

	n := FloatConstant(64, math.NaN())
	assert.True(t, n.IsNaN())
	assert.False(t, n.IsConstant())
	assert.True(t, n.CanBeNaN())
}

// TestFloatString 格式化输出
func TestFloatString(t *testing.T) {
	assert.Equal(t, "f64", UnrestrictedFloat(64).String())
	assert.Equal(t, "f32<empty>", EmptyFloat(32).String())
	assert.Equal(t, "f64 [NaN]", NaNFloat(64).String())
	assert.Equal(t, "f64! [1.5]", FloatConstant(64, 1.5).String())
	assert.Equal(t, "f64! [-1 - 1]", CreateFloat(64, -1, 1, true).String())
}
