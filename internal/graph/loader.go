// loader.go - 图描述文件（YAML）
//
// 描述文件按顺序列出节点，输入用节点 id 引用：
//
//	name: counter
//	types:
//	  - class: Box
//	nodes:
//	  - {id: n,    kind: param, stamp: "i32 [0, 100]"}
//	  - {id: zero, kind: const, stamp: i32, value: "0"}
//	  - {id: one,  kind: const, stamp: i32, value: "1"}
//	  - {id: loop, kind: loopbegin, inputs: [start, end]}
//	  - {id: i,    kind: phi, inputs: [loop, zero, next]}
//	  - {id: next, kind: binary, op: add, inputs: [i, one]}
//	  - {id: cond, kind: binary, op: sub, inputs: [n, i]}
//	  - {id: br,   kind: if, inputs: [loop, cond]}
//	  - {id: end,  kind: loopend, inputs: [br.true, loop]}
//	  - {id: exit, kind: loopexit, inputs: [br.false, loop]}
//	  - {id: ret,  kind: return, inputs: [exit, i]}
//
// 循环头除入口外的输入和 phi 除第一个值外的输入可以向后引用，其余
// 输入必须已经定义。"start" 是 start 节点；If 的两个分支写作
// "<id>.true" / "<id>.false"。

package graph

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tangzhangming/novaopt/internal/arith"
	"github.com/tangzhangming/novaopt/internal/errors"
	"github.com/tangzhangming/novaopt/internal/stamp"
)

// Description 图描述
type Description struct {
	Name  string     `yaml:"name"`
	Types []TypeDesc `yaml:"types,omitempty"`
	Nodes []NodeDesc `yaml:"nodes"`
}

// TypeDesc 类型层次中的一个类或接口
type TypeDesc struct {
	Class      string   `yaml:"class,omitempty"`
	Interface  string   `yaml:"interface,omitempty"`
	Super      string   `yaml:"super,omitempty"`
	Interfaces []string `yaml:"interfaces,omitempty"`
	Abstract   bool     `yaml:"abstract,omitempty"`
	Final      bool     `yaml:"final,omitempty"`
}

// NodeDesc 一个节点
type NodeDesc struct {
	ID     string   `yaml:"id"`
	Kind   string   `yaml:"kind"`
	Op     string   `yaml:"op,omitempty"`
	Inputs []string `yaml:"inputs,omitempty,flow"`
	Stamp  string   `yaml:"stamp,omitempty"`
	Value  string   `yaml:"value,omitempty"`
	From   int      `yaml:"from,omitempty"`
	To     int      `yaml:"to,omitempty"`
	Name   string   `yaml:"name,omitempty"`
	Index  int      `yaml:"index,omitempty"`
}

// LoadFile 读取并构建图描述文件
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph file: %w", err)
	}
	g, err := Load(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return g, nil
}

// Load 从 YAML 构建图
func Load(r io.Reader) (*Graph, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var d Description
	if err := dec.Decode(&d); err != nil {
		return nil, errors.WrapBailout(fmt.Errorf("failed to parse graph description: %w", err),
			errors.B0004, "", errors.NoNode)
	}
	return Build(&d)
}

// Build 按描述构建图
func Build(d *Description) (*Graph, error) {
	types, err := buildTypes(d.Types)
	if err != nil {
		return nil, errors.WrapBailout(err, errors.B0004, d.Name, errors.NoNode)
	}
	b := &builder{
		desc: d,
		g:    New(d.Name, types),
		ids:  make(map[string]NodeID),
	}
	b.ids["start"] = b.g.Start()
	if err := b.build(); err != nil {
		return nil, errors.WrapBailout(err, errors.B0004, d.Name, errors.NoNode)
	}
	return b.g, nil
}

func buildTypes(descs []TypeDesc) (*stamp.Hierarchy, error) {
	h := stamp.NewHierarchy()
	for _, td := range descs {
		var t *stamp.Type
		var err error
		switch {
		case td.Class != "" && td.Interface == "":
			t, err = h.DefineClass(td.Class, td.Super, td.Interfaces...)
		case td.Interface != "" && td.Class == "":
			t, err = h.DefineInterface(td.Interface, td.Interfaces...)
		default:
			err = fmt.Errorf("type entry needs exactly one of class or interface")
		}
		if err != nil {
			return nil, err
		}
		t.Abstract = td.Abstract
		t.Final = td.Final
	}
	return h, nil
}

type builder struct {
	desc *Description
	g    *Graph
	ids  map[string]NodeID
	// deferred 可以向后引用的输入：节点与输入名
	deferred []deferredInput
}

type deferredInput struct {
	node NodeID
	ref  string
	at   string
}

func (b *builder) build() error {
	for i := range b.desc.Nodes {
		nd := &b.desc.Nodes[i]
		if nd.ID == "" {
			return fmt.Errorf("node #%d has no id", i)
		}
		if _, dup := b.ids[nd.ID]; dup {
			return fmt.Errorf("duplicate node id %q", nd.ID)
		}
		id, err := b.node(nd)
		if err != nil {
			return fmt.Errorf("node %q: %w", nd.ID, err)
		}
		b.ids[nd.ID] = id
		if nd.Kind == "if" {
			n := b.g.nodes[id]
			for _, u := range n.Usages() {
				p := b.g.nodes[u]
				if p.kind != KindProj {
					continue
				}
				if p.index == 0 {
					b.ids[nd.ID+".true"] = u
				} else {
					b.ids[nd.ID+".false"] = u
				}
			}
		}
	}
	for _, d := range b.deferred {
		in, ok := b.ids[d.ref]
		if !ok {
			return fmt.Errorf("node %q: unknown input %q", d.at, d.ref)
		}
		if n := b.g.nodes[d.node]; n.kind == KindPhi {
			first := b.g.nodes[n.inputs[1]].stamp
			if s := b.g.nodes[in].stamp; !first.IsCompatible(s) {
				return fmt.Errorf("node %q: phi value %q has stamp %s, want %s", d.at, d.ref, s, first)
			}
		}
		b.g.AppendInput(d.node, in)
	}
	return nil
}

// refs 解析已经定义的输入
func (b *builder) refs(names []string) ([]NodeID, error) {
	out := make([]NodeID, len(names))
	for i, name := range names {
		id, ok := b.ids[name]
		if !ok {
			return nil, fmt.Errorf("input %q is not defined before use", name)
		}
		out[i] = id
	}
	return out, nil
}

func (b *builder) arity(nd *NodeDesc, min, max int) error {
	if n := len(nd.Inputs); n < min || n > max {
		if max == math.MaxInt {
			return fmt.Errorf("%s needs at least %d inputs, got %d", nd.Kind, min, n)
		}
		if min == max {
			return fmt.Errorf("%s needs %d inputs, got %d", nd.Kind, min, n)
		}
		return fmt.Errorf("%s needs %d to %d inputs, got %d", nd.Kind, min, max, n)
	}
	return nil
}

func (b *builder) stamp(nd *NodeDesc) (stamp.Stamp, error) {
	if nd.Stamp == "" {
		return nil, fmt.Errorf("%s needs a stamp", nd.Kind)
	}
	return stamp.Parse(nd.Stamp, b.g.types)
}

func (b *builder) op(nd *NodeDesc, class arith.Class) (arith.Op, error) {
	op, ok := arith.ParseOp(nd.Op)
	if !ok {
		return 0, fmt.Errorf("unknown operator %q", nd.Op)
	}
	if op.Class() != class {
		return 0, fmt.Errorf("operator %s cannot be used in a %s node", op, nd.Kind)
	}
	return op, nil
}

func (b *builder) node(nd *NodeDesc) (NodeID, error) {
	kind, ok := ParseKind(nd.Kind)
	if !ok {
		return NoNode, fmt.Errorf("unknown kind %q", nd.Kind)
	}
	g := b.g
	switch kind {
	case KindStart:
		return NoNode, fmt.Errorf("start node is implicit")
	case KindProj:
		return NoNode, fmt.Errorf("branches are created by their if node")

	case KindParam:
		s, err := b.stamp(nd)
		if err != nil {
			return NoNode, err
		}
		return g.AddParam(nd.Index, nd.Name, s), nil

	case KindConstant:
		return b.constant(nd)

	case KindUnreachable:
		s, err := b.stamp(nd)
		if err != nil {
			return NoNode, err
		}
		return g.Unreachable(s), nil

	case KindUnary, KindBinary, KindShift, KindConvert:
		return b.arithmetic(kind, nd)

	case KindPi:
		if err := b.arity(nd, 1, 1); err != nil {
			return NoNode, err
		}
		in, err := b.refs(nd.Inputs)
		if err != nil {
			return NoNode, err
		}
		s, err := b.stamp(nd)
		if err != nil {
			return NoNode, err
		}
		if !g.nodes[in[0]].stamp.IsCompatible(s) {
			return NoNode, fmt.Errorf("pi fact %s does not match input %s", s, g.nodes[in[0]].stamp)
		}
		return g.AddPi(in[0], s), nil

	case KindPhi:
		if err := b.arity(nd, 2, math.MaxInt); err != nil {
			return NoNode, err
		}
		in, err := b.refs(nd.Inputs[:2])
		if err != nil {
			return NoNode, err
		}
		if !g.nodes[in[0]].kind.IsMerge() {
			return NoNode, fmt.Errorf("phi input %q is not a merge", nd.Inputs[0])
		}
		id := g.AddPhi(in[0], in[1])
		b.defer_(id, nd, nd.Inputs[2:])
		return id, nil

	case KindMerge:
		in, err := b.refs(nd.Inputs)
		if err != nil {
			return NoNode, err
		}
		return g.AddMerge(in...), nil

	case KindLoopBegin:
		if err := b.arity(nd, 1, math.MaxInt); err != nil {
			return NoNode, err
		}
		in, err := b.refs(nd.Inputs[:1])
		if err != nil {
			return NoNode, err
		}
		id := g.AddLoopBegin(in[0])
		b.defer_(id, nd, nd.Inputs[1:])
		return id, nil

	case KindLoopEnd, KindLoopExit:
		if err := b.arity(nd, 2, 2); err != nil {
			return NoNode, err
		}
		in, err := b.refs(nd.Inputs)
		if err != nil {
			return NoNode, err
		}
		if g.nodes[in[1]].kind != KindLoopBegin {
			return NoNode, fmt.Errorf("%q is not a loop begin", nd.Inputs[1])
		}
		// 回边由循环头的描述登记
		return g.addControl(kind, in...), nil

	case KindIf:
		if err := b.arity(nd, 2, 2); err != nil {
			return NoNode, err
		}
		in, err := b.refs(nd.Inputs)
		if err != nil {
			return NoNode, err
		}
		id, _, _ := g.AddIf(in[0], in[1])
		return id, nil

	case KindReturn:
		if err := b.arity(nd, 1, 2); err != nil {
			return NoNode, err
		}
		in, err := b.refs(nd.Inputs)
		if err != nil {
			return NoNode, err
		}
		if len(in) == 1 {
			return g.AddReturn(in[0], NoNode), nil
		}
		return g.AddReturn(in[0], in[1]), nil

	case KindStore:
		if err := b.arity(nd, 2, 2); err != nil {
			return NoNode, err
		}
		in, err := b.refs(nd.Inputs)
		if err != nil {
			return NoNode, err
		}
		return g.AddStore(in[0], nd.Name, in[1]), nil

	case KindCall:
		if err := b.arity(nd, 1, math.MaxInt); err != nil {
			return NoNode, err
		}
		in, err := b.refs(nd.Inputs)
		if err != nil {
			return NoNode, err
		}
		s := stamp.Stamp(stamp.Void())
		if nd.Stamp != "" {
			if s, err = b.stamp(nd); err != nil {
				return NoNode, err
			}
		}
		return g.AddCall(in[0], nd.Name, s, in[1:]...), nil
	}
	return NoNode, fmt.Errorf("unsupported kind %s", kind)
}

func (b *builder) defer_(id NodeID, nd *NodeDesc, refs []string) {
	for _, r := range refs {
		b.deferred = append(b.deferred, deferredInput{node: id, ref: r, at: nd.ID})
	}
}

func (b *builder) constant(nd *NodeDesc) (NodeID, error) {
	s, err := b.stamp(nd)
	if err != nil {
		return NoNode, err
	}
	switch x := s.(type) {
	case stamp.IntegerStamp:
		v, err := strconv.ParseInt(nd.Value, 0, 64)
		if err != nil {
			return NoNode, fmt.Errorf("invalid integer constant %q: %w", nd.Value, err)
		}
		if v < stamp.MinValue(x.Bits()) || v > stamp.MaxValue(x.Bits()) {
			if uint64(v)&^stamp.Mask(x.Bits()) != 0 {
				return NoNode, fmt.Errorf("constant %d does not fit i%d", v, x.Bits())
			}
		}
		return b.g.AddConstant(x.Bits(), v), nil
	case stamp.FloatStamp:
		v, err := strconv.ParseFloat(nd.Value, 64)
		if err != nil {
			return NoNode, fmt.Errorf("invalid float constant %q: %w", nd.Value, err)
		}
		return b.g.AddFloatConstant(x.Bits(), v), nil
	case stamp.ObjectStamp:
		if x.AlwaysNull() {
			return b.g.AddNull(), nil
		}
	}
	return NoNode, fmt.Errorf("no constant of stamp %s", s)
}

func (b *builder) arithmetic(kind Kind, nd *NodeDesc) (NodeID, error) {
	want := map[Kind]arith.Class{
		KindUnary:   arith.ClassUnary,
		KindBinary:  arith.ClassBinary,
		KindShift:   arith.ClassShift,
		KindConvert: arith.ClassConvert,
	}[kind]
	op, err := b.op(nd, want)
	if err != nil {
		return NoNode, err
	}
	arityOf := 1
	if kind == KindBinary || kind == KindShift {
		arityOf = 2
	}
	if err := b.arity(nd, arityOf, arityOf); err != nil {
		return NoNode, err
	}
	in, err := b.refs(nd.Inputs)
	if err != nil {
		return NoNode, err
	}
	x := b.g.nodes[in[0]].stamp
	switch kind {
	case KindUnary:
		if x.Kind() != stamp.KindInteger && x.Kind() != stamp.KindFloat {
			return NoNode, fmt.Errorf("%s of %s", op, x)
		}
		return b.g.AddUnary(op, in[0]), nil
	case KindBinary:
		y := b.g.nodes[in[1]].stamp
		if !x.IsCompatible(y) || (x.Kind() != stamp.KindInteger && x.Kind() != stamp.KindFloat) {
			return NoNode, fmt.Errorf("%s of incompatible stamps %s and %s", op, x, y)
		}
		return b.g.AddBinary(op, in[0], in[1]), nil
	case KindShift:
		if x.Kind() != stamp.KindInteger || b.g.nodes[in[1]].stamp.Kind() != stamp.KindInteger {
			return NoNode, fmt.Errorf("%s needs integer operands", op)
		}
		return b.g.AddShift(op, in[0], in[1]), nil
	}

	from, to := nd.From, nd.To
	wantKind := stamp.KindInteger
	if fixedFrom, fixedTo, ok := arith.ConvertWidths(op); ok {
		from, to = fixedFrom, fixedTo
		if op == arith.OpF2D || op == arith.OpD2F || op == arith.OpF2I ||
			op == arith.OpD2I || op == arith.OpF2L || op == arith.OpD2L {
			wantKind = stamp.KindFloat
		}
	} else if op == arith.OpNarrow && from < to || op != arith.OpNarrow && from > to {
		return NoNode, fmt.Errorf("%s from %d to %d bits", op, from, to)
	}
	if x.Kind() != wantKind || bitsOf(x) != from {
		return NoNode, fmt.Errorf("%s expects a %d-bit %s input, got %s", op, from, wantKind, x)
	}
	if !validWidth(to) {
		return NoNode, fmt.Errorf("unsupported width %d", to)
	}
	return b.g.AddConvert(op, from, to, in[0]), nil
}

func bitsOf(s stamp.Stamp) int {
	switch x := s.(type) {
	case stamp.IntegerStamp:
		return x.Bits()
	case stamp.FloatStamp:
		return x.Bits()
	}
	return 0
}

func validWidth(bits int) bool {
	switch bits {
	case 1, 8, 16, 32, 64:
		return true
	}
	return false
}

// ============================================================================
// 导出
// ============================================================================

// Describe 把图导出为描述，Build(Describe(g)) 得到结构相同的图
//
// 节点按依赖顺序输出（向后引用只出现在允许的位置），id 为 "n<下标>"。
func Describe(g *Graph) *Description {
	d := &Description{Name: g.name, Types: describeTypes(g.types)}
	name := func(id NodeID) string {
		n := g.nodes[id]
		switch {
		case id == g.start:
			return "start"
		case n.kind == KindProj && n.index == 0:
			return n.inputs[0].String() + ".true"
		case n.kind == KindProj:
			return n.inputs[0].String() + ".false"
		}
		return id.String()
	}

	const (
		white = iota
		grey
		black
	)
	color := make([]uint8, len(g.nodes))
	var visit func(id NodeID)
	visit = func(id NodeID) {
		n := g.nodes[id]
		if n.kind == KindProj {
			visit(n.inputs[0])
			return
		}
		if color[id] != white {
			return
		}
		color[id] = grey
		for i, in := range n.inputs {
			if !deferrable(n, i) {
				visit(in)
			}
		}
		color[id] = black
		if id == g.start {
			return
		}
		d.Nodes = append(d.Nodes, describeNode(g, n, name))
	}
	for _, id := range g.Nodes() {
		visit(id)
	}
	return d
}

// deferrable 与 loader 的向后引用规则一致
func deferrable(n *Node, i int) bool {
	switch n.kind {
	case KindLoopBegin:
		return i >= 1
	case KindPhi:
		return i >= 2
	}
	return false
}

func describeNode(g *Graph, n *Node, name func(NodeID) string) NodeDesc {
	nd := NodeDesc{ID: name(n.id), Kind: n.kind.String()}
	for _, in := range n.inputs {
		nd.Inputs = append(nd.Inputs, name(in))
	}
	switch n.kind {
	case KindParam:
		nd.Stamp = stamp.Format(n.stamp)
		nd.Index = n.index
		nd.Name = n.name
	case KindConstant:
		nd.Stamp = stamp.Format(n.stamp.Unrestricted())
		switch n.stamp.(type) {
		case stamp.IntegerStamp:
			nd.Value = strconv.FormatInt(n.value.Int, 10)
		case stamp.FloatStamp:
			nd.Value = strconv.FormatFloat(n.value.Float, 'g', -1, 64)
		default:
			nd.Stamp = "null"
		}
	case KindUnreachable:
		nd.Stamp = stamp.Format(n.stamp.Unrestricted())
	case KindUnary, KindBinary, KindShift:
		nd.Op = n.op.String()
	case KindConvert:
		nd.Op = n.op.String()
		if _, _, fixed := arith.ConvertWidths(n.op); !fixed {
			nd.From, nd.To = n.from, n.to
		}
	case KindPi:
		nd.Stamp = stamp.Format(n.piStamp)
	case KindStore:
		nd.Name = n.name
	case KindCall:
		nd.Name = n.name
		if n.stamp.Kind() != stamp.KindVoid {
			nd.Stamp = stamp.Format(n.stamp)
		}
	}
	return nd
}

func describeTypes(h *stamp.Hierarchy) []TypeDesc {
	var out []TypeDesc
	done := make(map[*stamp.Type]bool)
	var visit func(t *stamp.Type)
	visit = func(t *stamp.Type) {
		if done[t] || t == h.Root() || t.IsArray() {
			return
		}
		done[t] = true
		if t.Super != nil {
			visit(t.Super)
		}
		td := TypeDesc{Abstract: t.Abstract, Final: t.Final}
		for _, i := range t.Interfaces {
			visit(i)
			td.Interfaces = append(td.Interfaces, i.Name)
		}
		if t.IsInterface() {
			td.Interface = t.Name
		} else {
			td.Class = t.Name
			if t.Super != nil && t.Super != h.Root() {
				td.Super = t.Super.Name
			}
		}
		out = append(out, td)
	}
	for _, t := range h.Types() {
		visit(t)
	}
	return out
}

// Marshal 把图导出为 YAML
func Marshal(g *Graph) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(Describe(g)); err != nil {
		return nil, fmt.Errorf("failed to encode graph: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode graph: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseNodeRef 解析 "n12" 形式的节点引用
func ParseNodeRef(s string) (NodeID, error) {
	v, err := strconv.ParseInt(strings.TrimPrefix(s, "n"), 10, 32)
	if err != nil || !strings.HasPrefix(s, "n") {
		return NoNode, fmt.Errorf("invalid node reference %q", s)
	}
	return NodeID(v), nil
}
