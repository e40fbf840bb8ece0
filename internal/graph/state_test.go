package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangzhangming/novaopt/internal/errors"
)

// TestStateAdvance Advance 返回新快照，原状态不变
func TestStateAdvance(t *testing.T) {
	st0 := NewState()
	assert.True(t, st0.IsBeforeStage(StageStampInference))
	assert.Empty(t, st0.AppliedStages())

	st1, err := st0.Advance(StageCanonicalization)
	require.NoError(t, err)
	assert.True(t, st1.IsApplied(StageCanonicalization))
	assert.False(t, st0.IsApplied(StageCanonicalization))

	// 跳过的阶段不能再应用
	assert.True(t, st1.IsAfterStage(StageStampInference))
	_, err = st1.Advance(StageStampInference)
	require.Error(t, err)
	assert.Equal(t, errors.B0003, errors.CodeOf(err))

	_, err = st1.Advance(StageCanonicalization)
	assert.True(t, errors.IsCode(err, errors.B0003))

	_, err = st1.Advance(Stage(42))
	assert.True(t, errors.IsCode(err, errors.B0003))

	st2, err := st1.Advance(StageScheduleVerification)
	require.NoError(t, err)
	assert.True(t, st2.IsAfterStage(StageLoopPhiReduction))
	assert.False(t, st2.IsApplied(StageLoopPhiReduction))
	assert.Equal(t, "{canonicalization, schedule-verification}", st2.String())
	assert.Equal(t, "{canonicalization}", st1.String())
}

// TestTierRequirements 各档位要求的阶段
func TestTierRequirements(t *testing.T) {
	assert.Len(t, TierEconomy.MandatoryStages(), 2)
	assert.Len(t, TierCommunity.MandatoryStages(), 3)
	assert.Equal(t, Stages(), TierEnterprise.MandatoryStages())
	assert.False(t, TierEconomy.Requires(StageLoopPhiReduction))
	assert.True(t, TierCommunity.Requires(StageLoopPhiReduction))
	assert.Nil(t, Tier(9).MandatoryStages())

	st, err := NewState().Advance(StageCanonicalization)
	require.NoError(t, err)
	assert.Equal(t, []Stage{StageLoopPhiReduction, StageScheduleVerification}, st.MissingStages(TierCommunity))
	assert.Equal(t, 4, st.CountMissingStages(TierEnterprise))
	assert.True(t, st.RequiresStage(TierEconomy, StageScheduleVerification))
	assert.False(t, st.RequiresStage(TierEconomy, StageCanonicalization))

	st, err = st.Advance(StageScheduleVerification)
	require.NoError(t, err)
	assert.True(t, st.HasAllMandatoryStages(TierEconomy))
	assert.False(t, st.HasAllMandatoryStages(TierCommunity))
}

// TestParseTier 档位名不区分大小写
func TestParseTier(t *testing.T) {
	for _, tier := range Tiers() {
		got, err := ParseTier(tier.String())
		require.NoError(t, err)
		assert.Equal(t, tier, got)
	}
	got, err := ParseTier("Enterprise")
	require.NoError(t, err)
	assert.Equal(t, TierEnterprise, got)

	_, err = ParseTier("platinum")
	assert.Error(t, err)
	assert.Equal(t, "stage(7)", Stage(7).String())
}
