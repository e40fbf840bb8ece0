// cache.go - 二元运算 stamp 折叠缓存
//
// 同一批编译单元里大量出现相同的 (运算符, 输入 stamp) 组合，掩码和
// 区间的联合推导需要边界搜索，结果在各个图之间共享。只缓存整数
// stamp；其他种类直接查运算表。

package compile

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/atomic"

	"github.com/tangzhangming/novaopt/internal/arith"
	"github.com/tangzhangming/novaopt/internal/stamp"
)

// foldKey 整数 stamp 是可比较的值类型，直接作为键
type foldKey struct {
	op   arith.Op
	x, y stamp.IntegerStamp
}

// FoldCache 并发安全的折叠缓存，实现 graph.Folder
type FoldCache struct {
	cache  *lru.Cache[foldKey, stamp.Stamp]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewFoldCache 创建容量为 size 的缓存
func NewFoldCache(size int) (*FoldCache, error) {
	c, err := lru.New[foldKey, stamp.Stamp](size)
	if err != nil {
		return nil, err
	}
	return &FoldCache{cache: c}, nil
}

// FoldBinary 同 arith.FoldBinary
func (c *FoldCache) FoldBinary(op arith.Op, x, y stamp.Stamp) stamp.Stamp {
	xi, ok1 := x.(stamp.IntegerStamp)
	yi, ok2 := y.(stamp.IntegerStamp)
	if !ok1 || !ok2 {
		return arith.FoldBinary(op, x, y)
	}
	key := foldKey{op: op, x: xi, y: yi}
	if s, ok := c.cache.Get(key); ok {
		c.hits.Inc()
		return s
	}
	c.misses.Inc()
	s := arith.FoldBinary(op, x, y)
	c.cache.Add(key, s)
	return s
}

// Hits 命中次数
func (c *FoldCache) Hits() int64 { return c.hits.Load() }

// Misses 未命中次数
func (c *FoldCache) Misses() int64 { return c.misses.Load() }

// Len 当前条目数
func (c *FoldCache) Len() int { return c.cache.Len() }
