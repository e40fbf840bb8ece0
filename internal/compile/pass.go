package compile

import (
	"context"

	"go.uber.org/zap"

	"github.com/tangzhangming/novaopt/internal/canon"
	"github.com/tangzhangming/novaopt/internal/errors"
	"github.com/tangzhangming/novaopt/internal/graph"
	"github.com/tangzhangming/novaopt/internal/loopphi"
	"github.com/tangzhangming/novaopt/internal/order"
)

// ============================================================================
// 优化 Pass 接口
// ============================================================================

// Pass 优化 Pass，每个 Pass 对应一个阶段
type Pass interface {
	Name() string
	Stage() graph.Stage
	// Run 返回是否有修改，统计累加到 rep
	Run(ctx context.Context, g *graph.Graph, rep *Report) (bool, error)
}

// Report 一个编译单元各 Pass 累计的统计
type Report struct {
	Canon  canon.Stats
	Reduce loopphi.Stats
	// Rounds loopphi 与规范化交替执行的轮数
	Rounds int
}

// ============================================================================
// Pass 管理器
// ============================================================================

// PassManager Pass 管理器，只服务一个编译单元
type PassManager struct {
	passes []Pass
	stats  PassStats
	report Report
	log    *zap.Logger
}

// PassStats Pass 统计信息
type PassStats struct {
	PassesRun      int
	TotalChanges   int
	PerPassChanges map[string]int
}

// NewPassManager 创建 Pass 管理器
func NewPassManager(log *zap.Logger) *PassManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &PassManager{
		stats: PassStats{PerPassChanges: make(map[string]int)},
		log:   log,
	}
}

// AddPass 添加 Pass
func (pm *PassManager) AddPass(p Pass) {
	pm.passes = append(pm.passes, p)
}

// Passes 已添加的 Pass
func (pm *PassManager) Passes() []Pass {
	return append([]Pass(nil), pm.passes...)
}

// Run 依次运行所有 Pass，每个 Pass 成功后推进图的阶段记录
//
// 每个 Pass 之前检查 ctx；阶段顺序不对时返回 B0003，取消时返回 B0005。
func (pm *PassManager) Run(ctx context.Context, g *graph.Graph) error {
	for _, p := range pm.passes {
		if err := ctx.Err(); err != nil {
			return errors.WrapBailout(err, errors.B0005, g.Name(), errors.NoNode)
		}
		next, err := g.State().Advance(p.Stage())
		if err != nil {
			msg := err.Error()
			if b, ok := errors.AsBailout(err); ok {
				msg = b.Message
			}
			return errors.NewBailout(errors.B0003, g.Name(), errors.NoNode, "pass %s: %s", p.Name(), msg)
		}
		pm.stats.PassesRun++
		changed, err := p.Run(ctx, g, &pm.report)
		if err != nil {
			return err
		}
		g.SetState(next)
		if changed {
			pm.stats.TotalChanges++
			pm.stats.PerPassChanges[p.Name()]++
		}
		pm.log.Debug("pass finished",
			zap.String("graph", g.Name()),
			zap.String("pass", p.Name()),
			zap.Bool("changed", changed),
			zap.Int("nodes", g.Len()),
		)
	}
	return nil
}

// Stats 获取统计信息
func (pm *PassManager) Stats() PassStats {
	return pm.stats
}

// Report 获取各 Pass 的累计统计
func (pm *PassManager) Report() Report {
	return pm.report
}

// ============================================================================
// 预置 Pipeline
// ============================================================================

// PipelineOptions 构造 Pipeline 的参数
type PipelineOptions struct {
	MaxIterations int
	MaxRounds     int
	Logger        *zap.Logger
}

// CreatePipeline 按档位创建 Pipeline，只包含档位要求的阶段
func CreatePipeline(tier graph.Tier, opts PipelineOptions) *PassManager {
	pm := NewPassManager(opts.Logger)
	co := canon.Options{MaxIterations: opts.MaxIterations, Logger: opts.Logger}
	rounds := opts.MaxRounds
	if rounds < 1 {
		rounds = 1
	}
	for _, s := range tier.MandatoryStages() {
		switch s {
		case graph.StageStampInference:
			pm.AddPass(&stampInferencePass{opts: co})
		case graph.StageCanonicalization, graph.StageFinalCanonicalization:
			pm.AddPass(&canonicalizePass{stage: s, opts: co})
		case graph.StageLoopPhiReduction:
			pm.AddPass(&loopPhiPass{opts: co, rounds: rounds})
		case graph.StageScheduleVerification:
			// 没有 loopphi 的档位会残留死环
			allow := !tier.Requires(graph.StageLoopPhiReduction)
			pm.AddPass(&verifyPass{opts: order.Options{AllowUnrooted: allow}})
		}
	}
	return pm
}

// ============================================================================
// Pass 实现
// ============================================================================

// stampInferencePass 只收紧 stamp，不改写
type stampInferencePass struct {
	opts canon.Options
}

func (p *stampInferencePass) Name() string       { return "stamp-inference" }
func (p *stampInferencePass) Stage() graph.Stage { return graph.StageStampInference }

func (p *stampInferencePass) Run(_ context.Context, g *graph.Graph, rep *Report) (bool, error) {
	stats, err := canon.InferStamps(g, p.opts)
	rep.Canon.Add(stats)
	return stats.Changed(), err
}

// canonicalizePass 规范化到不动点
type canonicalizePass struct {
	stage graph.Stage
	opts  canon.Options
}

func (p *canonicalizePass) Name() string       { return p.stage.String() }
func (p *canonicalizePass) Stage() graph.Stage { return p.stage }

func (p *canonicalizePass) Run(_ context.Context, g *graph.Graph, rep *Report) (bool, error) {
	stats, err := canon.Run(g, p.opts)
	rep.Canon.Add(stats)
	return stats.Changed(), err
}

// loopPhiPass 交替执行 loopphi 与规范化，直到不再删除节点
type loopPhiPass struct {
	opts   canon.Options
	rounds int
}

func (p *loopPhiPass) Name() string       { return "loop-phi-reduction" }
func (p *loopPhiPass) Stage() graph.Stage { return graph.StageLoopPhiReduction }

func (p *loopPhiPass) Run(ctx context.Context, g *graph.Graph, rep *Report) (bool, error) {
	changed := false
	for i := 0; i < p.rounds; i++ {
		if err := ctx.Err(); err != nil {
			return changed, errors.WrapBailout(err, errors.B0005, g.Name(), errors.NoNode)
		}
		rep.Rounds++
		stats := loopphi.Reduce(g, loopphi.Options{Logger: p.opts.Logger})
		rep.Reduce.PhisRemoved += stats.PhisRemoved
		rep.Reduce.NodesRemoved += stats.NodesRemoved
		if stats.NodesRemoved == 0 {
			break
		}
		changed = true
		cs, err := canon.Run(g, p.opts)
		rep.Canon.Add(cs)
		if err != nil {
			return changed, err
		}
	}
	return changed, nil
}

// verifyPass 调度性校验，只读
type verifyPass struct {
	opts order.Options
}

func (p *verifyPass) Name() string       { return "schedule-verification" }
func (p *verifyPass) Stage() graph.Stage { return graph.StageScheduleVerification }

func (p *verifyPass) Run(_ context.Context, g *graph.Graph, _ *Report) (bool, error) {
	return false, order.AssertSchedulable(g, p.opts)
}
