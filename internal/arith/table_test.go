// table_test.go - 分派入口与代数性质测试

package arith

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tangzhangming/novaopt/internal/stamp"
)

// TestEmptyPropagation 任一输入为空时结果为空且不 panic
func TestEmptyPropagation(t *testing.T) {
	for _, bits := range []int{32, 64} {
		empty := stamp.EmptyInt(bits)
		full := stamp.Unrestricted(bits)
		for _, op := range Ops() {
			switch op.Class() {
			case ClassUnary:
				assert.True(t, FoldUnary(op, empty).IsEmpty(), "%s(empty)", op)
				assert.True(t, FoldUnary(op, stamp.EmptyFloat(bits)).IsEmpty(), "%s(empty float)", op)
			case ClassBinary:
				assert.True(t, FoldBinary(op, empty, full).IsEmpty(), "%s(empty, top)", op)
				assert.True(t, FoldBinary(op, full, empty).IsEmpty(), "%s(top, empty)", op)
				fe := stamp.EmptyFloat(bits)
				assert.True(t, FoldBinary(op, fe, stamp.UnrestrictedFloat(bits)).IsEmpty(), "%s(empty float)", op)
			case ClassShift:
				assert.True(t, FoldShift(op, empty, stamp.Unrestricted(32)).IsEmpty(), "%s(empty, n)", op)
				assert.True(t, FoldShift(op, full, stamp.EmptyInt(32)).IsEmpty(), "%s(x, empty)", op)
			}
		}
	}
	assert.True(t, FoldConvert(OpSignExtend, 8, 32, stamp.EmptyInt(8)).IsEmpty())
	assert.True(t, FoldConvert(OpI2D, 32, 64, stamp.EmptyInt(32)).IsEmpty())
	assert.True(t, FoldConvert(OpD2L, 64, 64, stamp.EmptyFloat(64)).IsEmpty())
}

// TestMissingRuleIsUnrestricted 没有折叠规则的组合返回顶元素
func TestMissingRuleIsUnrestricted(t *testing.T) {
	f := stamp.CreateFloat(64, 1, 2, true)
	assert.True(t, FoldBinary(OpCompress, f, f).IsUnrestricted())
	assert.True(t, FoldUnary(OpSqrt, stamp.Create(32, 1, 4)).IsUnrestricted())
}

// TestIncompatibleInputsPanic 位宽不同的输入
func TestIncompatibleInputsPanic(t *testing.T) {
	assert.Panics(t, func() { FoldBinary(OpAdd, stamp.Unrestricted(32), stamp.Unrestricted(64)) })
	assert.Panics(t, func() { FoldUnary(OpAdd, stamp.Unrestricted(32)) })
	assert.Panics(t, func() { FoldConvert(OpSignExtend, 32, 8, stamp.Unrestricted(32)) })
}

// TestNeutralAndAbsorbing 单位元与吸收元
func TestNeutralAndAbsorbing(t *testing.T) {
	tests := []struct {
		op      Op
		c       int64
		neutral bool
	}{
		{OpAdd, 0, true},
		{OpAdd, 1, false},
		{OpSub, 0, true},
		{OpMul, 1, true},
		{OpDiv, 1, true},
		{OpAnd, -1, true},
		{OpAnd, 0xFFFFFFFF, true},
		{OpOr, 0, true},
		{OpXor, 0, true},
		{OpShl, 32, true},
		{OpShl, 1, false},
		{OpMax, -1 << 31, true},
		{OpUMin, -1, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.neutral, IsNeutral(tt.op, 32, tt.c), "%s %d", tt.op, tt.c)
	}

	z, ok := Absorbing(OpMul, 32)
	assert.True(t, ok)
	assert.Equal(t, int64(0), z)
	z, ok = Absorbing(OpOr, 64)
	assert.True(t, ok)
	assert.Equal(t, int64(-1), z)
	_, ok = Absorbing(OpAdd, 32)
	assert.False(t, ok)
}

// TestParseOp 名字与运算符一一对应
func TestParseOp(t *testing.T) {
	for _, op := range Ops() {
		got, ok := ParseOp(op.String())
		assert.True(t, ok)
		assert.Equal(t, op, got)
	}
	_, ok := ParseOp("frobnicate")
	assert.False(t, ok)
	assert.True(t, OpDiv.IsTrapping())
	assert.True(t, OpAdd.IsCommutative())
	assert.False(t, OpSub.IsAssociative())
}
