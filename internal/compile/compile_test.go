package compile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tangzhangming/novaopt/internal/arith"
	"github.com/tangzhangming/novaopt/internal/config"
	"github.com/tangzhangming/novaopt/internal/errors"
	"github.com/tangzhangming/novaopt/internal/graph"
	"github.com/tangzhangming/novaopt/internal/order"
	"github.com/tangzhangming/novaopt/internal/stamp"
)

func load(t *testing.T, name string) *graph.Graph {
	t.Helper()
	g, err := graph.LoadFile("testdata/" + name)
	require.NoError(t, err)
	return g
}

func newDriver(t *testing.T, edit func(c *config.Config)) *Driver {
	t.Helper()
	c := config.DefaultConfig()
	if edit != nil {
		edit(c)
	}
	d, err := NewDriver(c, zaptest.NewLogger(t))
	require.NoError(t, err)
	return d
}

func tierConfig(tier graph.Tier) func(c *config.Config) {
	return func(c *config.Config) { c.Compile.Tier = tier.String() }
}

// returnValue 返回节点的值输入
func returnValue(t *testing.T, g *graph.Graph) *graph.Node {
	t.Helper()
	for _, id := range g.Nodes() {
		if n := g.MustNode(id); n.Kind() == graph.KindReturn {
			require.Equal(t, 2, n.NumInputs())
			return g.MustNode(n.Input(1))
		}
	}
	t.Fatal("no return node")
	return nil
}

// cycleGraph a = b + 3, b = a * 3，环上没有 phi
func cycleGraph() *graph.Graph {
	g := graph.New("cycle", nil)
	x := g.AddParam(0, "x", stamp.Unrestricted(32))
	c := g.AddConstant(32, 3)
	a := g.AddBinary(arith.OpAdd, x, c)
	b := g.AddBinary(arith.OpMul, a, c)
	g.AddReturn(g.Start(), b)
	g.SetInput(a, 0, b)
	return g
}

// TestFivePhiLoop 五个 phi 中三个只在环内使用，化简后剩下两个
func TestFivePhiLoop(t *testing.T) {
	tests := []struct {
		tier graph.Tier
		phis int
	}{
		{graph.TierEconomy, 5},
		{graph.TierCommunity, 2},
		{graph.TierEnterprise, 2},
	}
	for _, tt := range tests {
		t.Run(tt.tier.String(), func(t *testing.T) {
			g := load(t, "fivephi.yaml")
			d := newDriver(t, tierConfig(tt.tier))
			res, err := d.Compile(context.Background(), g)
			require.NoError(t, err)
			assert.True(t, res.Optimized())
			assert.Equal(t, tt.phis, g.Count(graph.KindPhi))
			assert.True(t, g.State().HasAllMandatoryStages(tt.tier))
			assert.Equal(t, len(tt.tier.MandatoryStages()), res.Passes.PassesRun)
			allow := !tt.tier.Requires(graph.StageLoopPhiReduction)
			require.NoError(t, order.AssertSchedulable(g, order.Options{AllowUnrooted: allow}))

			if tt.tier.Requires(graph.StageLoopPhiReduction) {
				assert.Equal(t, 3, res.Report.Reduce.PhisRemoved)
				assert.Equal(t, 7, res.NodesBefore-res.NodesAfter)
				assert.Equal(t, 2, res.Report.Rounds)
			}
		})
	}
}

// TestFoldToConstant 恒等式与常量折叠把返回值化简为 -1
func TestFoldToConstant(t *testing.T) {
	g := load(t, "fold.yaml")
	d := newDriver(t, nil)
	res, err := d.Compile(context.Background(), g)
	require.NoError(t, err)

	v, ok := returnValue(t, g).IntConstant()
	require.True(t, ok)
	assert.Equal(t, int64(-1), v)
	assert.Greater(t, res.Report.Canon.Rewrites, 0)
	assert.Equal(t, 0, g.Count(graph.KindBinary))
	assert.Equal(t, 0, g.Count(graph.KindUnary))
}

// TestBailouts 各类失败都转换成带码的 bailout，并计入驱动统计
func TestBailouts(t *testing.T) {
	t.Run("iteration limit", func(t *testing.T) {
		d := newDriver(t, func(c *config.Config) { c.Compile.MaxIterations = 1 })
		res, err := d.Compile(context.Background(), load(t, "fold.yaml"))
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.B0002))
		assert.False(t, res.Optimized())
		assert.Equal(t, int64(1), d.Stats().Bailouts)
	})

	t.Run("unschedulable", func(t *testing.T) {
		g := cycleGraph()
		d := newDriver(t, nil)
		_, err := d.Compile(context.Background(), g)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.B0001))
		assert.False(t, g.State().IsApplied(graph.StageScheduleVerification))
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		d := newDriver(t, nil)
		_, err := d.Compile(ctx, load(t, "fivephi.yaml"))
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.B0005))
		assert.Equal(t, int64(1), d.Stats().Cancelled)
		assert.Equal(t, int64(0), d.Stats().Bailouts)
	})

	t.Run("compiled twice", func(t *testing.T) {
		g := load(t, "fivephi.yaml")
		d := newDriver(t, nil)
		_, err := d.Compile(context.Background(), g)
		require.NoError(t, err)
		_, err = d.Compile(context.Background(), g)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.B0003))
	})
}

// TestPanicBecomesBailout Pass 中的 panic 转成 B0006
func TestPanicBecomesBailout(t *testing.T) {
	d := newDriver(t, nil)
	pm := NewPassManager(nil)
	pm.AddPass(panicPass{})
	g := graph.New("boom", nil)
	err := d.run(context.Background(), pm, g)
	require.Error(t, err)
	b, ok := errors.AsBailout(err)
	require.True(t, ok)
	assert.Equal(t, errors.B0006, b.Code)
	assert.Equal(t, "boom", b.Graph)
	assert.Contains(t, b.Message, "broken rule")
}

type panicPass struct{}

func (panicPass) Name() string       { return "panic" }
func (panicPass) Stage() graph.Stage { return graph.StageCanonicalization }

func (panicPass) Run(context.Context, *graph.Graph, *Report) (bool, error) {
	panic("broken rule")
}

// TestStageOrder Pass 顺序与阶段顺序不符时返回 B0003
func TestStageOrder(t *testing.T) {
	pm := NewPassManager(nil)
	pm.AddPass(&canonicalizePass{stage: graph.StageFinalCanonicalization})
	pm.AddPass(&canonicalizePass{stage: graph.StageCanonicalization})
	g := graph.New("order", nil)
	g.AddReturn(g.Start(), graph.NoNode)

	err := pm.Run(context.Background(), g)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.B0003))
	assert.Contains(t, err.Error(), "pass canonicalization")
	assert.Equal(t, []graph.Stage{graph.StageFinalCanonicalization}, g.State().AppliedStages())
	assert.Equal(t, 1, pm.Stats().PassesRun)
}

// TestCreatePipeline 每个档位的 Pipeline 只包含档位要求的阶段
func TestCreatePipeline(t *testing.T) {
	for _, tier := range graph.Tiers() {
		pm := CreatePipeline(tier, PipelineOptions{})
		var stages []graph.Stage
		for _, p := range pm.Passes() {
			stages = append(stages, p.Stage())
		}
		assert.Equal(t, tier.MandatoryStages(), stages, tier.String())
	}
}

// TestCompileAll 并行编译，结果与输入顺序一致，相同的图指纹相同
func TestCompileAll(t *testing.T) {
	d := newDriver(t, func(c *config.Config) { c.Compile.Workers = 3 })
	var graphs []*graph.Graph
	for i := 0; i < 8; i++ {
		graphs = append(graphs, load(t, "fivephi.yaml"))
	}
	graphs = append(graphs, cycleGraph())

	results := d.CompileAll(context.Background(), graphs)
	require.Len(t, results, len(graphs))
	for i, res := range results[:8] {
		require.NotNil(t, res)
		assert.Same(t, graphs[i], res.Graph)
		assert.NoError(t, res.Err)
		assert.Equal(t, results[0].Fingerprint, res.Fingerprint)
	}
	assert.True(t, errors.IsCode(results[8].Err, errors.B0001))

	stats := d.Stats()
	assert.Equal(t, int64(8), stats.Compiled)
	assert.Equal(t, int64(1), stats.Bailouts)
	assert.Greater(t, stats.CacheHits, int64(0))
	assert.Greater(t, stats.CacheLen, 0)

	assert.Empty(t, d.CompileAll(context.Background(), nil))
}

// TestFoldCache 缓存结果与运算表一致，非整数 stamp 不进入缓存
func TestFoldCache(t *testing.T) {
	c, err := NewFoldCache(2)
	require.NoError(t, err)
	x := stamp.Create(32, 0, 10)
	y := stamp.Create(32, -3, 3)

	first := c.FoldBinary(arith.OpMul, x, y)
	second := c.FoldBinary(arith.OpMul, x, y)
	assert.True(t, first.Equals(arith.FoldBinary(arith.OpMul, x, y)))
	assert.True(t, first.Equals(second))
	assert.Equal(t, int64(1), c.Hits())
	assert.Equal(t, int64(1), c.Misses())

	f := stamp.UnrestrictedFloat(64)
	c.FoldBinary(arith.OpAdd, f, f)
	assert.Equal(t, 1, c.Len())

	_, err = NewFoldCache(0)
	assert.Error(t, err)
}

// TestNewDriverRejectsBadConfig 配置错误在创建驱动时报告
func TestNewDriverRejectsBadConfig(t *testing.T) {
	c := config.DefaultConfig()
	c.Compile.Tier = "gold"
	_, err := NewDriver(c, nil)
	assert.Error(t, err)

	d, err := NewDriver(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, graph.TierEnterprise, d.Tier())
}
