// Package compile 把中端各阶段串成按档位执行的编译管线
//
// 一个编译单元就是一个图。单元之间互不影响：任何一个单元 bailout
// 只意味着它这次没有被优化，调用方继续使用未优化的版本。
package compile

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/tangzhangming/novaopt/internal/config"
	"github.com/tangzhangming/novaopt/internal/errors"
	"github.com/tangzhangming/novaopt/internal/graph"
	"github.com/tangzhangming/novaopt/internal/logx"
)

// ============================================================================
// 编译结果
// ============================================================================

// Result 一个编译单元的结果
type Result struct {
	Graph *graph.Graph
	Tier  graph.Tier

	Report Report
	Passes PassStats

	NodesBefore int
	NodesAfter  int
	// Fingerprint 优化后图描述的 blake2b-256 摘要，相同结构的图摘要相同
	Fingerprint [blake2b.Size256]byte
	Duration    time.Duration

	// Err 非 nil 时图没有被优化，内容可能只完成了一部分改写
	Err error
}

// Optimized 是否完成了全部阶段
func (r *Result) Optimized() bool { return r.Err == nil }

// ============================================================================
// Driver
// ============================================================================

// Driver 编译驱动，可以被多个协程同时使用
type Driver struct {
	config *config.Config
	tier   graph.Tier
	log    *zap.Logger
	cache  *FoldCache

	compiled  atomic.Int64
	bailouts  atomic.Int64
	cancelled atomic.Int64
}

// DriverStats 驱动统计
type DriverStats struct {
	Compiled    int64 // 完成全部阶段的单元数
	Bailouts    int64 // 因内部错误放弃的单元数
	Cancelled   int64 // 被取消的单元数
	CacheHits   int64
	CacheMisses int64
	CacheLen    int
}

// NewDriver 创建编译驱动，cfg 为 nil 时使用默认配置
func NewDriver(cfg *config.Config, log *zap.Logger) (*Driver, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tier, err := cfg.Tier()
	if err != nil {
		return nil, err
	}
	d := &Driver{config: cfg, tier: tier, log: log}
	if size := cfg.Compile.FoldCacheSize; size > 0 {
		if d.cache, err = NewFoldCache(size); err != nil {
			return nil, fmt.Errorf("failed to create fold cache: %w", err)
		}
	}
	return d, nil
}

// Tier 驱动使用的档位
func (d *Driver) Tier() graph.Tier { return d.tier }

// Pipeline 为一个编译单元创建 Pipeline
func (d *Driver) Pipeline() *PassManager {
	return CreatePipeline(d.tier, PipelineOptions{
		MaxIterations: d.config.Compile.MaxIterations,
		MaxRounds:     d.config.Compile.MaxRounds,
		Logger:        d.log,
	})
}

// Compile 在图上运行档位要求的全部阶段
//
// 失败时返回的错误总是 bailout，Result.Err 与之相同。
func (d *Driver) Compile(ctx context.Context, g *graph.Graph) (*Result, error) {
	start := time.Now()
	res := &Result{Graph: g, Tier: d.tier, NodesBefore: g.Len()}
	if d.cache != nil {
		g.SetFolder(d.cache)
		defer g.SetFolder(nil)
	}

	pm := d.Pipeline()
	err := d.run(ctx, pm, g)
	if err == nil && !g.State().HasAllMandatoryStages(d.tier) {
		err = errors.NewBailout(errors.B0003, g.Name(), errors.NoNode,
			"missing stages %v for tier %s", g.State().MissingStages(d.tier), d.tier)
	}
	res.Report = pm.Report()
	res.Passes = pm.Stats()
	res.NodesAfter = g.Len()
	if err == nil {
		res.Fingerprint, err = Fingerprint(g)
	}
	res.Duration = time.Since(start)

	if err != nil {
		res.Err = errors.WrapBailout(err, errors.B0006, g.Name(), errors.NoNode)
		if errors.IsCode(res.Err, errors.B0005) {
			d.cancelled.Inc()
		} else {
			d.bailouts.Inc()
		}
		logx.Bailout(d.log, res.Err)
		return res, res.Err
	}

	d.compiled.Inc()
	d.log.Info("graph optimized",
		zap.String("graph", g.Name()),
		zap.Stringer("tier", d.tier),
		zap.Int("nodes_before", res.NodesBefore),
		zap.Int("nodes_after", res.NodesAfter),
		zap.Int("rewrites", res.Report.Canon.Rewrites),
		zap.Int("phis_removed", res.Report.Reduce.PhisRemoved),
		zap.Duration("elapsed", res.Duration),
	)
	return res, nil
}

// run 运行 Pipeline，把 Pass 中的 panic 转成 B0006
func (d *Driver) run(ctx context.Context, pm *PassManager, g *graph.Graph) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewBailout(errors.B0006, g.Name(), errors.NoNode, "pipeline panic: %v", r)
		}
	}()
	return pm.Run(ctx, g)
}

// CompileAll 并行编译多个互不相关的图，结果与输入一一对应
func (d *Driver) CompileAll(ctx context.Context, graphs []*graph.Graph) []*Result {
	results := make([]*Result, len(graphs))
	if len(graphs) == 0 {
		return results
	}
	workers := d.config.Compile.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(graphs) {
		workers = len(graphs)
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		// 退化为顺序编译
		d.log.Warn("failed to create worker pool", zap.Error(err))
		for i, g := range graphs {
			results[i], _ = d.Compile(ctx, g)
		}
		return results
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, g := range graphs {
		i, g := i, g
		wg.Add(1)
		task := func() {
			defer wg.Done()
			results[i], _ = d.Compile(ctx, g)
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			res := &Result{Graph: g, Tier: d.tier, NodesBefore: g.Len(), NodesAfter: g.Len()}
			res.Err = errors.WrapBailout(err, errors.B0005, g.Name(), errors.NoNode)
			d.cancelled.Inc()
			results[i] = res
		}
	}
	wg.Wait()
	return results
}

// Stats 驱动统计快照
func (d *Driver) Stats() DriverStats {
	s := DriverStats{
		Compiled:  d.compiled.Load(),
		Bailouts:  d.bailouts.Load(),
		Cancelled: d.cancelled.Load(),
	}
	if d.cache != nil {
		s.CacheHits = d.cache.Hits()
		s.CacheMisses = d.cache.Misses()
		s.CacheLen = d.cache.Len()
	}
	return s
}

// Fingerprint 图描述的 blake2b-256 摘要
func Fingerprint(g *graph.Graph) ([blake2b.Size256]byte, error) {
	data, err := graph.Marshal(g)
	if err != nil {
		return [blake2b.Size256]byte{}, err
	}
	return blake2b.Sum256(data), nil
}
