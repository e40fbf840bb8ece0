package stamp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFormatParseRoundTrip Format 的输出总能读回相同的 stamp
func TestFormatParseRoundTrip(t *testing.T) {
	h, ty := testHierarchy(t)
	samples := []Stamp{
		Unrestricted(32),
		EmptyInt(8),
		Constant(64, -7),
		Create(16, -3, 200),
		CreateWithMasks(32, 0, 100, 1, 0x7D),
		StampForMask(64, 0xC0, 0xFF),
		NonNegative(1),
		Positive(8),
		UnrestrictedFloat(64),
		EmptyFloat(32),
		NaNFloat(64),
		FloatConstant(32, 1.5),
		CreateFloat(64, math.Copysign(0, -1), 0, true),
		CreateFloat(64, math.Inf(-1), -1, false),
		CreateFloat(32, 2, math.Inf(1), true),
		UnrestrictedObject(),
		EmptyObject(),
		NullObject(),
		ObjectFor(ty["Animal"], true),
		ExactObject(ty["Cat"], false),
		ExactObject(h.Root(), true),
		ObjectFor(ty["Cat[]"], false),
		NewObject(nil, false, true, true),
		Void(),
	}
	for _, s := range samples {
		text := Format(s)
		got, err := Parse(text, h)
		require.NoError(t, err, text)
		assert.True(t, s.Equals(got), "%s -> %q -> %s", s, text, got)
	}
}

// TestParseForms 手写形式
func TestParseForms(t *testing.T) {
	h, ty := testHierarchy(t)

	s := MustParse("i32 [0, 15]", h).(IntegerStamp)
	assert.Equal(t, int64(0), s.Lower())
	assert.Equal(t, int64(15), s.Upper())
	assert.Equal(t, uint64(0xF), s.MayBeSet())

	s = MustParse("i8 [0x10, 0x1f]", nil).(IntegerStamp)
	assert.Equal(t, int64(16), s.Lower())

	f := MustParse("f64 [1, 2] nonnan", nil).(FloatStamp)
	assert.True(t, f.IsNonNaN())
	assert.Equal(t, 2.0, f.Upper())
	assert.True(t, MustParse("f32", nil).IsUnrestricted())

	o := MustParse("object Dog", h).(ObjectStamp)
	assert.Equal(t, ty["Dog"], o.Type())
	assert.True(t, o.IsExact(), "final class is always exact")
	assert.True(t, MustParse("null", h).(ObjectStamp).AlwaysNull())

	for _, bad := range []string{"", "i33", "i32 [1]", "i32 [0, 300", "i8 [0, 300]",
		"f16", "f64 [a, 1]", "object Unicorn", "i32 color=red", "f64 [0, 1] signed", "word"} {
		_, err := Parse(bad, h)
		assert.Error(t, err, "%q", bad)
	}
}
