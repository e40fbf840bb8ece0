// canon.go - 规范化器：显式工作表上的不动点改写
//
// 每个节点要么在工作表上（脏），要么不在（干净）。初始时所有节点都是脏的；
// 每次取出一个节点，依次尝试：
//
//  1. 删除：没有使用者且不是锚点的节点直接删除，并级联到输入
//  2. 推断：按输入重新计算 stamp，与旧 stamp 取 join，变窄时使用者变脏
//  3. 折叠：stamp 为空时用不可达占位替换，stamp 为单值时用常量替换
//  4. 改写：按运算符查规则表（代数恒等式、stamp 驱动的化简）
//
// 任何修改点都显式把受影响的节点放回工作表。工作表为空即到达不动点。
//
// 只被自身（或同一个环）引用的节点不会在这里删除，需要 loopphi 按可达性
// 清理后再运行一次。

package canon

import (
	"github.com/bits-and-blooms/bitset"
	"go.uber.org/zap"

	"github.com/tangzhangming/novaopt/internal/errors"
	"github.com/tangzhangming/novaopt/internal/graph"
)

// Options 规范化参数
type Options struct {
	// MaxIterations 取出节点次数的上限，0 表示按图大小估算
	MaxIterations int
	Logger        *zap.Logger
}

// Stats 一次运行的统计
type Stats struct {
	Iterations   int // 从工作表取出的节点数
	Rewrites     int // 替换与原地改写次数
	Removed      int // 删除的节点数
	StampUpdates int // stamp 变窄的次数
}

// Changed 本次运行是否修改了图
func (s Stats) Changed() bool {
	return s.Rewrites > 0 || s.Removed > 0 || s.StampUpdates > 0
}

// Add 累加另一次运行的统计
func (s *Stats) Add(o Stats) {
	s.Iterations += o.Iterations
	s.Rewrites += o.Rewrites
	s.Removed += o.Removed
	s.StampUpdates += o.StampUpdates
}

// Canonicalizer 规范化器，单个实例只服务一个图，不能并发使用
type Canonicalizer struct {
	g          *graph.Graph
	log        *zap.Logger
	limit      int
	stampsOnly bool

	queue []graph.NodeID
	dirty bitset.BitSet
	stats Stats
	// current 正在处理的节点，出错时报告
	current graph.NodeID
}

// New 创建规范化器
func New(g *graph.Graph, opts Options) *Canonicalizer {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	limit := opts.MaxIterations
	if limit <= 0 {
		limit = 1000 + 100*g.Cap()
	}
	return &Canonicalizer{g: g, log: log, limit: limit, current: graph.NoNode}
}

// Run 规范化 g 直到不动点
func Run(g *graph.Graph, opts Options) (Stats, error) {
	return New(g, opts).Run()
}

// InferStamps 只做 stamp 推断（不改写、不删除）直到不动点
func InferStamps(g *graph.Graph, opts Options) (Stats, error) {
	c := New(g, opts)
	c.stampsOnly = true
	return c.Run()
}

// Run 执行工作表循环
//
// 超过迭代上限时返回 B0002；规则内部的不变量被破坏（panic）时返回 B0006。
func (c *Canonicalizer) Run() (stats Stats, err error) {
	defer func() {
		if r := recover(); r != nil {
			stats = c.stats
			err = errors.NewBailout(errors.B0006, c.g.Name(), int(c.current), "rewrite failed: %v", r)
		}
	}()

	for _, id := range c.g.Nodes() {
		c.enqueue(id)
	}
	for len(c.queue) > 0 {
		id := c.queue[0]
		c.queue = c.queue[1:]
		c.dirty.Clear(uint(id))
		if !c.g.IsAlive(id) {
			continue
		}
		c.stats.Iterations++
		if c.stats.Iterations > c.limit {
			return c.stats, errors.NewBailout(errors.B0002, c.g.Name(), int(id),
				"no fixed point after %d iterations (%d nodes pending)", c.limit, len(c.queue))
		}
		c.current = id
		c.process(id)
	}
	c.current = graph.NoNode
	c.log.Debug("canonicalized",
		zap.String("graph", c.g.Name()),
		zap.Int("iterations", c.stats.Iterations),
		zap.Int("rewrites", c.stats.Rewrites),
		zap.Int("removed", c.stats.Removed),
		zap.Int("stamps", c.stats.StampUpdates),
	)
	return c.stats, nil
}

// Stats 到目前为止的统计
func (c *Canonicalizer) Stats() Stats { return c.stats }

func (c *Canonicalizer) process(id graph.NodeID) {
	if c.stampsOnly {
		c.updateStamp(id)
		return
	}
	if c.removeIfDead(id) {
		return
	}
	c.updateStamp(id)
	if repl, ok := c.foldStamp(id); ok {
		c.replace(id, repl, "fold")
		return
	}
	n := c.g.MustNode(id)
	fn := rulesFor(n)
	if fn == nil {
		return
	}
	switch repl := fn(c, n); repl {
	case graph.NoNode:
	case id:
		// 原地改写（如交换操作数）
		c.stats.Rewrites++
		c.log.Debug("rewrite", zap.Stringer("node", id), zap.String("rule", ruleName(n)))
		c.enqueue(id)
		c.enqueueUsages(id)
	default:
		c.replace(id, repl, ruleName(n))
	}
}

// ============================================================================
// 工作表
// ============================================================================

func (c *Canonicalizer) enqueue(id graph.NodeID) {
	if id == graph.NoNode || c.dirty.Test(uint(id)) {
		return
	}
	c.dirty.Set(uint(id))
	c.queue = append(c.queue, id)
}

func (c *Canonicalizer) enqueueUsages(id graph.NodeID) {
	for _, u := range c.g.MustNode(id).Usages() {
		c.enqueue(u)
	}
}

// ============================================================================
// 删除、推断、折叠
// ============================================================================

// removeIfDead 删除没有使用者的非锚点节点，并级联删除因此失去使用者的输入
func (c *Canonicalizer) removeIfDead(id graph.NodeID) bool {
	removed := false
	stack := []graph.NodeID{id}
	for len(stack) > 0 {
		x := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := c.g.Node(x)
		if n == nil || n.UsageCount() > 0 || c.g.IsAnchor(x) {
			continue
		}
		stack = append(stack, c.g.Remove(x)...)
		c.stats.Removed++
		if x == id {
			removed = true
		}
	}
	return removed
}

// inferable 需要从输入推断 stamp 的节点
func inferable(k graph.Kind) bool {
	switch k {
	case graph.KindUnary, graph.KindBinary, graph.KindShift, graph.KindConvert,
		graph.KindPi, graph.KindPhi:
		return true
	}
	return false
}

// updateStamp 重新推断 stamp；只接受比旧值更窄的结果
func (c *Canonicalizer) updateStamp(id graph.NodeID) {
	n := c.g.MustNode(id)
	if !inferable(n.Kind()) {
		return
	}
	old := n.Stamp()
	inferred := c.g.InferStamp(id)
	if inferred.Equals(old) {
		return
	}
	s := old.Join(inferred)
	if s.Equals(old) {
		return
	}
	c.g.SetStamp(id, s)
	c.stats.StampUpdates++
	c.enqueueUsages(id)
}

// foldStamp 空 stamp 的节点换成不可达占位，单值 stamp 的节点换成常量
func (c *Canonicalizer) foldStamp(id graph.NodeID) (graph.NodeID, bool) {
	n := c.g.MustNode(id)
	if !inferable(n.Kind()) && n.Kind() != graph.KindParam {
		return graph.NoNode, false
	}
	if n.UsageCount() == 0 {
		return graph.NoNode, false
	}
	s := n.Stamp()
	if s.IsEmpty() {
		return c.track(c.g.Unreachable(s)), true
	}
	if k, ok := c.g.ConstantFor(s); ok {
		return c.track(k), true
	}
	return graph.NoNode, false
}

// replace 把 old 的使用改为 repl，old 失去使用者后删除
func (c *Canonicalizer) replace(old, repl graph.NodeID, rule string) {
	if old == repl || c.g.MustNode(old).UsageCount() == 0 {
		return
	}
	c.log.Debug("rewrite",
		zap.Stringer("node", old),
		zap.String("rule", rule),
		zap.Stringer("into", repl),
	)
	for _, u := range c.g.ReplaceAtUsages(old, repl) {
		c.enqueue(u)
	}
	c.stats.Rewrites++
	c.enqueue(repl)
	c.removeIfDead(old)
}

// track 把规则新建（或复用）的节点放进工作表
func (c *Canonicalizer) track(id graph.NodeID) graph.NodeID {
	c.enqueue(id)
	return id
}
