// rules.go - 按运算符登记的化简规则
//
// 规则收到一个节点，返回：
//   - graph.NoNode：不适用
//   - 节点自身：已经原地修改（例如把常量换到右边）
//   - 其他节点：用它替换原节点
//
// 规则新建的节点必须经过 c.track 放回工作表。可能陷入的运算不做会
// 改变陷入行为的化简；浮点运算只做不受 NaN 和 -0.0 影响的化简。

package canon

import (
	"github.com/tangzhangming/novaopt/internal/arith"
	"github.com/tangzhangming/novaopt/internal/graph"
	"github.com/tangzhangming/novaopt/internal/stamp"
)

type rule func(c *Canonicalizer, n *graph.Node) graph.NodeID

var (
	unaryRules = map[arith.Op]rule{
		arith.OpNeg: simplifyNeg,
		arith.OpNot: simplifyNot,
		arith.OpAbs: simplifyAbs,
	}

	binaryRules = map[arith.Op]rule{
		arith.OpAdd:  simplifyAdd,
		arith.OpSub:  simplifySub,
		arith.OpMul:  simplifyMul,
		arith.OpRem:  simplifyRem,
		arith.OpAnd:  simplifyAnd,
		arith.OpOr:   simplifyOr,
		arith.OpXor:  simplifyXor,
		arith.OpMax:  simplifyMinMax,
		arith.OpMin:  simplifyMinMax,
		arith.OpUMax: simplifyMinMax,
		arith.OpUMin: simplifyMinMax,
	}

	convertRules = map[arith.Op]rule{
		arith.OpZeroExtend: simplifyExtend,
		arith.OpSignExtend: simplifyExtend,
		arith.OpNarrow:     simplifyNarrow,
	}
)

// rulesFor 查找节点的规则
func rulesFor(n *graph.Node) rule {
	switch n.Kind() {
	case graph.KindUnary:
		return unaryRules[n.Op()]
	case graph.KindBinary:
		return simplifyBinary
	case graph.KindShift:
		return simplifyShift
	case graph.KindConvert:
		return convertRules[n.Op()]
	case graph.KindPi:
		return simplifyPi
	case graph.KindPhi:
		return simplifyPhi
	}
	return nil
}

func ruleName(n *graph.Node) string {
	switch n.Kind() {
	case graph.KindUnary, graph.KindBinary, graph.KindShift, graph.KindConvert:
		return n.Op().String()
	}
	return n.Kind().String()
}

// ============================================================================
// 辅助函数
// ============================================================================

// intStamp 节点的整数 stamp
func (c *Canonicalizer) intStamp(id graph.NodeID) (stamp.IntegerStamp, bool) {
	s, ok := c.g.MustNode(id).Stamp().(stamp.IntegerStamp)
	return s, ok
}

// intConst 整数常量节点的值
func (c *Canonicalizer) intConst(id graph.NodeID) (int64, bool) {
	return c.g.MustNode(id).IntConstant()
}

// isConst 节点是否为值 v 的整数常量（按 bits 截断后比较）
func (c *Canonicalizer) isConst(id graph.NodeID, bits int, v int64) bool {
	k, ok := c.intConst(id)
	return ok && k == stamp.Narrow(v, bits)
}

// unaryOf 节点是运算符为 op 的一元运算时返回它
func (c *Canonicalizer) unaryOf(id graph.NodeID, op arith.Op) *graph.Node {
	n := c.g.MustNode(id)
	if n.Kind() == graph.KindUnary && n.Op() == op {
		return n
	}
	return nil
}

// binaryOf 节点是运算符为 op 的二元运算时返回它
func (c *Canonicalizer) binaryOf(id graph.NodeID, op arith.Op) *graph.Node {
	n := c.g.MustNode(id)
	if n.Kind() == graph.KindBinary && n.Op() == op {
		return n
	}
	return nil
}

func (c *Canonicalizer) constant(bits int, v int64) graph.NodeID {
	return c.track(c.g.AddConstant(bits, v))
}

func (c *Canonicalizer) unary(op arith.Op, x graph.NodeID) graph.NodeID {
	return c.track(c.g.AddUnary(op, x))
}

func (c *Canonicalizer) binary(op arith.Op, x, y graph.NodeID) graph.NodeID {
	return c.track(c.g.AddBinary(op, x, y))
}

// ============================================================================
// 一元运算
// ============================================================================

func simplifyNeg(c *Canonicalizer, n *graph.Node) graph.NodeID {
	// --x = x
	if in := c.unaryOf(n.Input(0), arith.OpNeg); in != nil {
		return in.Input(0)
	}
	return graph.NoNode
}

func simplifyNot(c *Canonicalizer, n *graph.Node) graph.NodeID {
	// ~~x = x
	if in := c.unaryOf(n.Input(0), arith.OpNot); in != nil {
		return in.Input(0)
	}
	return graph.NoNode
}

func simplifyAbs(c *Canonicalizer, n *graph.Node) graph.NodeID {
	x := n.Input(0)
	// abs(abs(x)) = abs(x)
	if c.unaryOf(x, arith.OpAbs) != nil {
		return x
	}
	// abs(-x) = abs(x)
	if in := c.unaryOf(x, arith.OpNeg); in != nil {
		return c.unary(arith.OpAbs, in.Input(0))
	}
	// 非负整数的绝对值是它自己
	if s, ok := c.intStamp(x); ok && s.IsNonNegative() {
		return x
	}
	return graph.NoNode
}

// ============================================================================
// 二元运算
// ============================================================================

// simplifyBinary 整数二元运算的公共规则，之后交给运算符自己的规则
func simplifyBinary(c *Canonicalizer, n *graph.Node) graph.NodeID {
	op := n.Op()
	x, y := n.Input(0), n.Input(1)
	xs, ok := c.intStamp(x)
	if !ok {
		// 浮点：只依靠 stamp 折叠
		return graph.NoNode
	}
	bits := xs.Bits()

	// 可交换运算把常量放到右边
	if op.IsCommutative() {
		_, xc := c.intConst(x)
		_, yc := c.intConst(y)
		if xc && !yc {
			c.g.SetInput(n.ID(), 0, y)
			c.g.SetInput(n.ID(), 1, x)
			return n.ID()
		}
	}

	if k, ok := c.intConst(y); ok {
		// x op e = x
		if arith.IsNeutral(op, bits, k) {
			return x
		}
		// x op z = z
		if z, ok := arith.Absorbing(op, bits); ok && stamp.Narrow(z, bits) == k {
			return c.constant(bits, z)
		}
	}
	if fn := binaryRules[op]; fn != nil {
		return fn(c, n)
	}
	return graph.NoNode
}

func simplifyAdd(c *Canonicalizer, n *graph.Node) graph.NodeID {
	x, y := n.Input(0), n.Input(1)
	bits := n.Stamp().(stamp.IntegerStamp).Bits()
	// ~x + x = -1
	if nx := c.unaryOf(x, arith.OpNot); nx != nil && nx.Input(0) == y {
		return c.constant(bits, -1)
	}
	// x + ~x = -1
	if ny := c.unaryOf(y, arith.OpNot); ny != nil && ny.Input(0) == x {
		return c.constant(bits, -1)
	}
	// x + (-y) = x - y
	if ny := c.unaryOf(y, arith.OpNeg); ny != nil {
		return c.binary(arith.OpSub, x, ny.Input(0))
	}
	// (-x) + y = y - x
	if nx := c.unaryOf(x, arith.OpNeg); nx != nil {
		return c.binary(arith.OpSub, y, nx.Input(0))
	}
	return graph.NoNode
}

func simplifySub(c *Canonicalizer, n *graph.Node) graph.NodeID {
	x, y := n.Input(0), n.Input(1)
	bits := n.Stamp().(stamp.IntegerStamp).Bits()
	// x - x = 0
	if x == y {
		return c.constant(bits, 0)
	}
	// x - (-y) = x + y
	if ny := c.unaryOf(y, arith.OpNeg); ny != nil {
		return c.binary(arith.OpAdd, x, ny.Input(0))
	}
	// 0 - y = -y
	if c.isConst(x, bits, 0) {
		return c.unary(arith.OpNeg, y)
	}
	// (a + b) - b = a, (a + b) - a = b
	if add := c.binaryOf(x, arith.OpAdd); add != nil {
		switch y {
		case add.Input(1):
			return add.Input(0)
		case add.Input(0):
			return add.Input(1)
		}
	}
	return graph.NoNode
}

func simplifyMul(c *Canonicalizer, n *graph.Node) graph.NodeID {
	bits := n.Stamp().(stamp.IntegerStamp).Bits()
	// x * -1 = -x
	if c.isConst(n.Input(1), bits, -1) {
		return c.unary(arith.OpNeg, n.Input(0))
	}
	return graph.NoNode
}

func simplifyRem(c *Canonicalizer, n *graph.Node) graph.NodeID {
	bits := n.Stamp().(stamp.IntegerStamp).Bits()
	// x % 1 = x % -1 = 0，除数不为 0，不会陷入
	if y := n.Input(1); c.isConst(y, bits, 1) || c.isConst(y, bits, -1) {
		return c.constant(bits, 0)
	}
	return graph.NoNode
}

func simplifyAnd(c *Canonicalizer, n *graph.Node) graph.NodeID {
	x, y := n.Input(0), n.Input(1)
	// x & x = x
	if x == y {
		return x
	}
	xs, _ := c.intStamp(x)
	ys, _ := c.intStamp(y)
	// y 必然为 1 的位覆盖了 x 所有可能为 1 的位
	if xs.MayBeSet()&^ys.MustBeSet() == 0 {
		return x
	}
	if ys.MayBeSet()&^xs.MustBeSet() == 0 {
		return y
	}
	return graph.NoNode
}

func simplifyOr(c *Canonicalizer, n *graph.Node) graph.NodeID {
	x, y := n.Input(0), n.Input(1)
	// x | x = x
	if x == y {
		return x
	}
	xs, _ := c.intStamp(x)
	ys, _ := c.intStamp(y)
	// y 可能为 1 的位在 x 中都必然为 1
	if ys.MayBeSet()&^xs.MustBeSet() == 0 {
		return x
	}
	if xs.MayBeSet()&^ys.MustBeSet() == 0 {
		return y
	}
	return graph.NoNode
}

func simplifyXor(c *Canonicalizer, n *graph.Node) graph.NodeID {
	x, y := n.Input(0), n.Input(1)
	bits := n.Stamp().(stamp.IntegerStamp).Bits()
	// x ^ x = 0
	if x == y {
		return c.constant(bits, 0)
	}
	nx := c.unaryOf(x, arith.OpNot)
	ny := c.unaryOf(y, arith.OpNot)
	// ~x ^ ~y = x ^ y
	if nx != nil && ny != nil {
		return c.binary(arith.OpXor, nx.Input(0), ny.Input(0))
	}
	// ~x ^ x = -1
	if nx != nil && nx.Input(0) == y {
		return c.constant(bits, -1)
	}
	// x ^ ~x = -1
	if ny != nil && ny.Input(0) == x {
		return c.constant(bits, -1)
	}
	return graph.NoNode
}

// simplifyMinMax 区间不重叠时结果就是其中一个操作数
func simplifyMinMax(c *Canonicalizer, n *graph.Node) graph.NodeID {
	x, y := n.Input(0), n.Input(1)
	if x == y {
		return x
	}
	xs, _ := c.intStamp(x)
	ys, _ := c.intStamp(y)
	var xLow, xHigh bool // x 总是不大于 / 不小于 y
	switch n.Op() {
	case arith.OpMax, arith.OpMin:
		xLow = xs.Upper() <= ys.Lower()
		xHigh = xs.Lower() >= ys.Upper()
	default:
		xLow = xs.UnsignedUpperBound() <= ys.UnsignedLowerBound()
		xHigh = xs.UnsignedLowerBound() >= ys.UnsignedUpperBound()
	}
	wantHigh := n.Op() == arith.OpMax || n.Op() == arith.OpUMax
	switch {
	case xHigh && wantHigh, xLow && !wantHigh:
		return x
	case xLow && wantHigh, xHigh && !wantHigh:
		return y
	}
	return graph.NoNode
}

// simplifyShift 移位量对位宽取模后为 0 时结果就是被移位值
func simplifyShift(c *Canonicalizer, n *graph.Node) graph.NodeID {
	xs, ok := c.intStamp(n.Input(0))
	if !ok {
		return graph.NoNode
	}
	if k, ok := c.intConst(n.Input(1)); ok && arith.IsNeutral(n.Op(), xs.Bits(), k) {
		return n.Input(0)
	}
	return graph.NoNode
}

// ============================================================================
// 转换
// ============================================================================

func (c *Canonicalizer) convertOf(id graph.NodeID) *graph.Node {
	n := c.g.MustNode(id)
	if n.Kind() == graph.KindConvert && n.Op().IsIntegerConvert() {
		return n
	}
	return nil
}

func simplifyExtend(c *Canonicalizer, n *graph.Node) graph.NodeID {
	from, to := n.ConvertBits()
	x := n.Input(0)
	if from == to {
		return x
	}
	// ext(ext(x)) 合并为一次扩展
	if in := c.convertOf(x); in != nil && in.Op() == n.Op() {
		inner, _ := in.ConvertBits()
		return c.track(c.g.AddConvert(n.Op(), inner, to, in.Input(0)))
	}
	return graph.NoNode
}

func simplifyNarrow(c *Canonicalizer, n *graph.Node) graph.NodeID {
	from, to := n.ConvertBits()
	x := n.Input(0)
	if from == to {
		return x
	}
	in := c.convertOf(x)
	if in == nil {
		return graph.NoNode
	}
	inFrom, _ := in.ConvertBits()
	switch in.Op() {
	case arith.OpNarrow:
		// narrow(narrow(x)) 合并为一次截断
		return c.track(c.g.AddConvert(arith.OpNarrow, inFrom, to, in.Input(0)))
	case arith.OpZeroExtend, arith.OpSignExtend:
		switch {
		case inFrom == to:
			// 截断回原来的位宽
			return in.Input(0)
		case inFrom > to:
			return c.track(c.g.AddConvert(arith.OpNarrow, inFrom, to, in.Input(0)))
		default:
			// 扩展得比需要的多，改为直接扩展到目标位宽
			return c.track(c.g.AddConvert(in.Op(), inFrom, to, in.Input(0)))
		}
	}
	return graph.NoNode
}

// ============================================================================
// Pi 与 phi
// ============================================================================

// simplifyPi 输入已经满足事实时 Pi 是多余的
//
// 输入是整数宽度转换 conv(x) 时，还可以用转换的逆来证明：x 的 stamp
// 落在 invert(fact) 内则 conv(x) 一定落在 fact 内。逆只用于证明多余，
// 不用于把事实推到 x 上。
func simplifyPi(c *Canonicalizer, n *graph.Node) graph.NodeID {
	x := n.Input(0)
	fact := n.PiStamp()
	in := c.g.MustNode(x).Stamp()
	if subsumes(fact, in) {
		return x
	}
	if conv := c.convertOf(x); conv != nil {
		from, to := conv.ConvertBits()
		if inv, ok := arith.InvertConvert(conv.Op(), from, to, fact); ok && !inv.IsEmpty() {
			if subsumes(inv, c.g.MustNode(conv.Input(0)).Stamp()) {
				return x
			}
		}
	}
	return graph.NoNode
}

// subsumes outer 是否包含 inner 的全部值
func subsumes(outer, inner stamp.Stamp) bool {
	return inner.Join(outer).Equals(inner)
}

// simplifyPhi 除自身外只有一个不同输入的 phi 就是那个输入
func simplifyPhi(c *Canonicalizer, n *graph.Node) graph.NodeID {
	only := graph.NoNode
	for _, v := range n.PhiValues() {
		if v == n.ID() || v == only {
			continue
		}
		if only != graph.NoNode {
			return graph.NoNode
		}
		only = v
	}
	return only
}
