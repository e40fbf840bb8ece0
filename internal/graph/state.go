// state.go - 优化阶段记录（GraphState）
//
// State 是不可变快照：Advance 返回新的 State，原值不变。阶段有固定
// 的先后顺序，可以跳过，但不能在更晚的阶段之后再应用，也不能重复
// 应用。档位（tier）是一组必须完成的阶段。

package graph

import (
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/tangzhangming/novaopt/internal/errors"
)

// Stage 优化阶段
type Stage uint8

const (
	StageStampInference Stage = iota
	StageCanonicalization
	StageLoopPhiReduction
	StageFinalCanonicalization
	StageScheduleVerification

	stageCount
)

var stageNames = [stageCount]string{
	StageStampInference:        "stamp-inference",
	StageCanonicalization:      "canonicalization",
	StageLoopPhiReduction:      "loop-phi-reduction",
	StageFinalCanonicalization: "final-canonicalization",
	StageScheduleVerification:  "schedule-verification",
}

func (s Stage) String() string {
	if s >= stageCount {
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
	return stageNames[s]
}

// Stages 按规定顺序返回全部阶段
func Stages() []Stage {
	out := make([]Stage, stageCount)
	for i := range out {
		out[i] = Stage(i)
	}
	return out
}

// ============================================================================
// 档位
// ============================================================================

// Tier 档位
type Tier uint8

const (
	TierEconomy Tier = iota
	TierCommunity
	TierEnterprise

	tierCount
)

var tierNames = [tierCount]string{
	TierEconomy:    "economy",
	TierCommunity:  "community",
	TierEnterprise: "enterprise",
}

// tierStages 每个档位必须完成的阶段
var tierStages = [tierCount][]Stage{
	TierEconomy: {StageCanonicalization, StageScheduleVerification},
	TierCommunity: {
		StageCanonicalization,
		StageLoopPhiReduction,
		StageScheduleVerification,
	},
	TierEnterprise: {
		StageStampInference,
		StageCanonicalization,
		StageLoopPhiReduction,
		StageFinalCanonicalization,
		StageScheduleVerification,
	},
}

func (t Tier) String() string {
	if t >= tierCount {
		return fmt.Sprintf("tier(%d)", uint8(t))
	}
	return tierNames[t]
}

// MandatoryStages 档位要求的阶段，按顺序排列
func (t Tier) MandatoryStages() []Stage {
	if t >= tierCount {
		return nil
	}
	return append([]Stage(nil), tierStages[t]...)
}

// Requires 档位是否要求该阶段
func (t Tier) Requires(s Stage) bool {
	for _, x := range t.MandatoryStages() {
		if x == s {
			return true
		}
	}
	return false
}

// Tiers 返回全部档位
func Tiers() []Tier {
	return []Tier{TierEconomy, TierCommunity, TierEnterprise}
}

// ParseTier 按名字查找档位，不区分大小写
func ParseTier(name string) (Tier, error) {
	for t := Tier(0); t < tierCount; t++ {
		if strings.EqualFold(tierNames[t], name) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown tier %q (want economy, community or enterprise)", name)
}

// ============================================================================
// State
// ============================================================================

// State 已应用阶段的不可变快照，零值表示尚未应用任何阶段
type State struct {
	applied mapset.Set[Stage]
	last    Stage
}

// NewState 返回初始状态
func NewState() State { return State{} }

// Advance 记录阶段 s 已应用，返回新的状态
func (st State) Advance(s Stage) (State, error) {
	if s >= stageCount {
		return st, errors.NewBailout(errors.B0003, "", errors.NoNode, "unknown stage %d", uint8(s))
	}
	if st.IsApplied(s) {
		return st, errors.NewBailout(errors.B0003, "", errors.NoNode, "stage %s already applied", s)
	}
	if st.applied != nil && st.last > s {
		return st, errors.NewBailout(errors.B0003, "", errors.NoNode,
			"stage %s cannot run after %s", s, st.last)
	}
	next := mapset.NewThreadUnsafeSet[Stage]()
	if st.applied != nil {
		next = st.applied.Clone()
	}
	next.Add(s)
	return State{applied: next, last: s}, nil
}

// IsApplied 阶段是否已应用
func (st State) IsApplied(s Stage) bool {
	return st.applied != nil && st.applied.Contains(s)
}

// IsAfterStage 当前状态是否已经越过阶段 s（s 已应用或已被跳过）
func (st State) IsAfterStage(s Stage) bool {
	return st.applied != nil && st.last >= s
}

// IsBeforeStage 阶段 s 是否仍然可以应用
func (st State) IsBeforeStage(s Stage) bool {
	return !st.IsAfterStage(s)
}

// RequiresStage 在档位 t 下阶段 s 是否还必须应用
func (st State) RequiresStage(t Tier, s Stage) bool {
	return t.Requires(s) && !st.IsApplied(s)
}

// MissingStages 档位 t 要求但尚未应用的阶段
func (st State) MissingStages(t Tier) []Stage {
	var out []Stage
	for _, s := range t.MandatoryStages() {
		if !st.IsApplied(s) {
			out = append(out, s)
		}
	}
	return out
}

// CountMissingStages 档位 t 还缺少的阶段数
func (st State) CountMissingStages(t Tier) int {
	return len(st.MissingStages(t))
}

// HasAllMandatoryStages 档位 t 要求的阶段是否都已应用
func (st State) HasAllMandatoryStages(t Tier) bool {
	return st.CountMissingStages(t) == 0
}

// AppliedStages 已应用的阶段，按顺序排列
func (st State) AppliedStages() []Stage {
	var out []Stage
	for _, s := range Stages() {
		if st.IsApplied(s) {
			out = append(out, s)
		}
	}
	return out
}

func (st State) String() string {
	applied := st.AppliedStages()
	names := make([]string, len(applied))
	for i, s := range applied {
		names[i] = s.String()
	}
	return "{" + strings.Join(names, ", ") + "}"
}
