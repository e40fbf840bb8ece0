// hierarchy.go - 封闭类型层次
//
// ObjectStamp 的类型取自一个封闭层次：
//   - 类：单继承，可实现多个接口，可以是抽象类或 final 类
//   - 接口：可继承多个接口
//   - 数组：元素为任意引用类型，父类为根类
//
// 层次在构造完成后只读，可以被多个编译单元共享。

package stamp

import (
	"fmt"
	"sort"
	"sync"
)

// TypeKind 类型种类
type TypeKind uint8

const (
	TypeClass TypeKind = iota
	TypeInterface
	TypeArray
)

// Type 层次中的一个类型
type Type struct {
	Name       string
	Kind       TypeKind
	Super      *Type   // 类的父类；根类与接口为 nil，数组为根类
	Interfaces []*Type // 直接实现/继承的接口
	Elem       *Type   // 数组元素类型
	Abstract   bool
	Final      bool

	owner *Hierarchy
}

func (t *Type) String() string { return t.Name }

// IsInterface 是否为接口
func (t *Type) IsInterface() bool { return t.Kind == TypeInterface }

// IsArray 是否为数组
func (t *Type) IsArray() bool { return t.Kind == TypeArray }

// HasInstances 是否存在恰好为该类型的对象
func (t *Type) HasInstances() bool {
	return t.Kind != TypeInterface && !t.Abstract
}

// IsLeaf 没有任何子类型（final 类，或元素不可再细分的数组）
func (t *Type) IsLeaf() bool {
	switch t.Kind {
	case TypeClass:
		return t.Final
	case TypeArray:
		return t.Elem.IsLeaf()
	}
	return false
}

// Hierarchy 封闭类型层次
type Hierarchy struct {
	mu     sync.Mutex
	root   *Type
	types  map[string]*Type
	arrays map[*Type]*Type
}

// RootTypeName 根类名
const RootTypeName = "Object"

// NewHierarchy 创建只含根类的层次
func NewHierarchy() *Hierarchy {
	h := &Hierarchy{
		types:  make(map[string]*Type),
		arrays: make(map[*Type]*Type),
	}
	h.root = &Type{Name: RootTypeName, Kind: TypeClass, owner: h}
	h.types[RootTypeName] = h.root
	return h
}

// Root 返回根类
func (h *Hierarchy) Root() *Type { return h.root }

// Lookup 按名字查找类型，"T[]" 形式的名字会按需创建数组类型
func (h *Hierarchy) Lookup(name string) (*Type, bool) {
	h.mu.Lock()
	t, ok := h.types[name]
	h.mu.Unlock()
	if ok {
		return t, true
	}
	if n := len(name); n > 2 && name[n-2:] == "[]" {
		elem, ok := h.Lookup(name[:n-2])
		if !ok {
			return nil, false
		}
		return h.ArrayOf(elem), true
	}
	return nil, false
}

// DefineClass 定义一个类，super 为空时父类为根类
func (h *Hierarchy) DefineClass(name, super string, interfaces ...string) (*Type, error) {
	if super == "" {
		super = RootTypeName
	}
	parent, ok := h.Lookup(super)
	if !ok {
		return nil, fmt.Errorf("unknown super class %q of %q", super, name)
	}
	if parent.Kind != TypeClass {
		return nil, fmt.Errorf("super type %q of %q is not a class", super, name)
	}
	if parent.Final {
		return nil, fmt.Errorf("cannot extend final class %q", super)
	}
	ifaces, err := h.resolveInterfaces(name, interfaces)
	if err != nil {
		return nil, err
	}
	return h.define(&Type{Name: name, Kind: TypeClass, Super: parent, Interfaces: ifaces})
}

// DefineInterface 定义一个接口
func (h *Hierarchy) DefineInterface(name string, supers ...string) (*Type, error) {
	ifaces, err := h.resolveInterfaces(name, supers)
	if err != nil {
		return nil, err
	}
	return h.define(&Type{Name: name, Kind: TypeInterface, Interfaces: ifaces, Abstract: true})
}

func (h *Hierarchy) resolveInterfaces(owner string, names []string) ([]*Type, error) {
	out := make([]*Type, 0, len(names))
	for _, n := range names {
		t, ok := h.Lookup(n)
		if !ok {
			return nil, fmt.Errorf("unknown interface %q of %q", n, owner)
		}
		if !t.IsInterface() {
			return nil, fmt.Errorf("%q implemented by %q is not an interface", n, owner)
		}
		out = append(out, t)
	}
	return out, nil
}

func (h *Hierarchy) define(t *Type) (*Type, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t.owner = h
	if _, exists := h.types[t.Name]; exists {
		return nil, fmt.Errorf("type %q already defined", t.Name)
	}
	h.types[t.Name] = t
	return t, nil
}

// MustClass 同 DefineClass，出错时 panic，用于构造固定层次
func (h *Hierarchy) MustClass(name, super string, interfaces ...string) *Type {
	t, err := h.DefineClass(name, super, interfaces...)
	if err != nil {
		panic(err)
	}
	return t
}

// MustInterface 同 DefineInterface，出错时 panic
func (h *Hierarchy) MustInterface(name string, supers ...string) *Type {
	t, err := h.DefineInterface(name, supers...)
	if err != nil {
		panic(err)
	}
	return t
}

// ArrayOf 返回元素类型为 elem 的数组类型
func (h *Hierarchy) ArrayOf(elem *Type) *Type {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.arrays[elem]; ok {
		return t
	}
	t := &Type{Name: elem.Name + "[]", Kind: TypeArray, Super: h.root, Elem: elem, owner: h}
	h.arrays[elem] = t
	h.types[t.Name] = t
	return t
}

// Types 返回按名字排序的全部类型
func (h *Hierarchy) Types() []*Type {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Type, 0, len(h.types))
	for _, t := range h.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ============================================================================
// 子类型关系
// ============================================================================

// IsAssignableFrom sub 的每个实例都是 t 的实例
func (t *Type) IsAssignableFrom(sub *Type) bool {
	if t == sub {
		return true
	}
	switch t.Kind {
	case TypeClass:
		if t.Super == nil {
			// 根类
			return true
		}
		for c := sub.Super; c != nil; c = c.Super {
			if c == t {
				return true
			}
		}
		return false
	case TypeInterface:
		return sub.implements(t)
	case TypeArray:
		return sub.Kind == TypeArray && t.Elem.IsAssignableFrom(sub.Elem)
	}
	return false
}

// implements 沿父类链和接口继承关系查找 iface
func (t *Type) implements(iface *Type) bool {
	for c := t; c != nil; c = c.Super {
		for _, i := range c.Interfaces {
			if i == iface || i.implements(iface) {
				return true
			}
		}
	}
	return false
}

// superTypes 返回 t 的全部超类型（含自身）
func (t *Type) superTypes() map[*Type]struct{} {
	out := make(map[*Type]struct{})
	var walk func(x *Type)
	walk = func(x *Type) {
		if _, seen := out[x]; seen {
			return
		}
		out[x] = struct{}{}
		if x.Super != nil {
			walk(x.Super)
		}
		for _, i := range x.Interfaces {
			walk(i)
		}
	}
	walk(t)
	return out
}

// commonSuperType 返回 a、b 唯一的最小公共超类型
//
// 公共超类型中存在唯一的最小元素时返回它；数组之间先对元素求公共超类型。
// 不存在唯一最小元素时返回 nil，表示只能放宽到任意引用。
func commonSuperType(a, b *Type) *Type {
	if a.IsAssignableFrom(b) {
		return a
	}
	if b.IsAssignableFrom(a) {
		return b
	}
	if a.IsArray() && b.IsArray() {
		elem := commonSuperType(a.Elem, b.Elem)
		if elem == nil {
			elem = a.owner.root
		}
		return a.owner.ArrayOf(elem)
	}
	sa := a.superTypes()
	sb := b.superTypes()
	var common []*Type
	for t := range sa {
		if _, ok := sb[t]; ok {
			common = append(common, t)
		}
	}
	var minimal []*Type
	for _, c := range common {
		isMin := true
		for _, d := range common {
			if d != c && c.IsAssignableFrom(d) {
				isMin = false
				break
			}
		}
		if isMin {
			minimal = append(minimal, c)
		}
	}
	if len(minimal) == 1 && !minimal[0].isRoot() {
		return minimal[0]
	}
	return nil
}

func (t *Type) isRoot() bool {
	return t.Kind == TypeClass && t.Super == nil
}
