// object.go - 对象引用 stamp
//
// ObjectStamp 描述引用值的类型事实：
//   - typ:         上界类型，nil 表示任意引用
//   - exact:       运行时类型恰好是 typ
//   - nonNull:     一定不是 null
//   - alwaysNull:  一定是 null
//   - alwaysArray: 非 null 时一定是数组
//
// 空 stamp 编码为 exact && typ == nil（要求“恰好是任意类型”，无解）。
// 所有构造函数都返回规范形式：alwaysNull 只有唯一编码，数组类型蕴含
// alwaysArray，根类非精确时归一为 nil。

package stamp

import "strings"

// ObjectStamp 对象 stamp
type ObjectStamp struct {
	typ         *Type
	exact       bool
	nonNull     bool
	alwaysNull  bool
	alwaysArray bool
}

// ObjectValue 一个具体的引用值，Type 为 nil 表示 null
type ObjectValue struct {
	Type *Type
}

// Null 返回 null 引用
func Null() ObjectValue { return ObjectValue{} }

// InstanceOf 返回运行时类型为 t 的引用
func InstanceOf(t *Type) ObjectValue { return ObjectValue{Type: t} }

// ============================================================================
// 构造
// ============================================================================

// UnrestrictedObject 任意引用（含 null）
func UnrestrictedObject() ObjectStamp { return ObjectStamp{} }

// EmptyObject 空对象 stamp
func EmptyObject() ObjectStamp { return ObjectStamp{exact: true, nonNull: true} }

// NullObject 只包含 null 的 stamp
func NullObject() ObjectStamp { return ObjectStamp{alwaysNull: true} }

// NewObject 返回规范化后的对象 stamp
func NewObject(typ *Type, exact, nonNull, alwaysArray bool) ObjectStamp {
	return normalizeObject(typ, exact, nonNull, alwaysArray)
}

// ObjectFor 返回 t 及其子类型的非精确 stamp
func ObjectFor(t *Type, nonNull bool) ObjectStamp {
	return NewObject(t, false, nonNull, false)
}

// ExactObject 返回恰好为 t 的 stamp
func ExactObject(t *Type, nonNull bool) ObjectStamp {
	return NewObject(t, true, nonNull, false)
}

// normalizeObject 消除不可能的类型组合：只剩 null 时返回 NullObject，
// 连 null 也被排除时返回 EmptyObject
func normalizeObject(typ *Type, exact, nonNull, alwaysArray bool) ObjectStamp {
	impossible := func() ObjectStamp {
		if nonNull {
			return EmptyObject()
		}
		return NullObject()
	}
	if typ == nil {
		if exact {
			return EmptyObject()
		}
		return ObjectStamp{nonNull: nonNull, alwaysArray: alwaysArray}
	}
	if typ.IsLeaf() {
		exact = true
	}
	if exact && !typ.HasInstances() {
		return impossible()
	}
	if typ.IsArray() {
		alwaysArray = true
	} else if alwaysArray && !typ.isRoot() {
		// 数组不是任何非根类的实例，也不实现接口
		return impossible()
	}
	if typ.isRoot() && !exact {
		typ = nil
	}
	if exact && alwaysArray && typ != nil && !typ.IsArray() {
		return impossible()
	}
	return ObjectStamp{typ: typ, exact: exact, nonNull: nonNull, alwaysArray: alwaysArray}
}

// ============================================================================
// 查询
// ============================================================================

func (s ObjectStamp) Kind() Kind        { return KindObject }
func (s ObjectStamp) Type() *Type       { return s.typ }
func (s ObjectStamp) IsExact() bool     { return s.exact }
func (s ObjectStamp) NonNull() bool     { return s.nonNull }
func (s ObjectStamp) AlwaysNull() bool  { return s.alwaysNull }
func (s ObjectStamp) AlwaysArray() bool { return s.alwaysArray }

func (s ObjectStamp) IsEmpty() bool {
	return s.exact && s.typ == nil
}

func (s ObjectStamp) IsUnrestricted() bool {
	return s == ObjectStamp{}
}

func (s ObjectStamp) Empty() Stamp        { return EmptyObject() }
func (s ObjectStamp) Unrestricted() Stamp { return UnrestrictedObject() }

// Contains 判断引用 v 是否可能出现
func (s ObjectStamp) Contains(v ObjectValue) bool {
	if s.IsEmpty() {
		return false
	}
	if v.Type == nil {
		return !s.nonNull
	}
	if s.alwaysNull {
		return false
	}
	if s.alwaysArray && !v.Type.IsArray() {
		return false
	}
	if s.typ == nil {
		return true
	}
	if s.exact {
		return v.Type == s.typ
	}
	return s.typ.IsAssignableFrom(v.Type)
}

// ============================================================================
// 格运算
// ============================================================================

func (s ObjectStamp) IsCompatible(other Stamp) bool {
	_, ok := other.(ObjectStamp)
	return ok
}

func (s ObjectStamp) Equals(other Stamp) bool {
	o, ok := other.(ObjectStamp)
	return ok && o == s
}

func (s ObjectStamp) Meet(other Stamp) Stamp {
	o, ok := other.(ObjectStamp)
	if !ok {
		incompatible("meet", s, other)
	}
	return s.MeetObject(o)
}

func (s ObjectStamp) Join(other Stamp) Stamp {
	o, ok := other.(ObjectStamp)
	if !ok {
		incompatible("join", s, other)
	}
	return s.JoinObject(o)
}

// MeetObject 类型放宽到公共超类型，各标记只保留双方共有的
func (s ObjectStamp) MeetObject(o ObjectStamp) ObjectStamp {
	if s == o {
		return s
	}
	if s.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return s
	}
	if s.alwaysNull {
		return o.withNull()
	}
	if o.alwaysNull {
		return s.withNull()
	}

	var typ *Type
	if s.typ != nil && o.typ != nil {
		typ = commonSuperType(s.typ, o.typ)
	}
	exact := s.exact && o.exact && s.typ == o.typ
	return normalizeObject(typ, exact, s.nonNull && o.nonNull, s.alwaysArray && o.alwaysArray)
}

// withNull 允许 null
func (s ObjectStamp) withNull() ObjectStamp {
	if s.alwaysNull || !s.nonNull {
		return s
	}
	s.nonNull = false
	return s
}

// JoinObject 类型收窄到双方共同允许的子类型，不可能的组合退化为 null 或 empty
func (s ObjectStamp) JoinObject(o ObjectStamp) ObjectStamp {
	if s == o {
		return s
	}
	if s.IsEmpty() {
		return s
	}
	if o.IsEmpty() {
		return o
	}
	nonNull := s.nonNull || o.nonNull
	if s.alwaysNull || o.alwaysNull {
		if nonNull {
			return EmptyObject()
		}
		return NullObject()
	}
	typ, exact, ok := joinTypes(s, o)
	if !ok {
		if nonNull {
			return EmptyObject()
		}
		return NullObject()
	}
	return normalizeObject(typ, exact, nonNull, s.alwaysArray || o.alwaysArray)
}

// joinTypes 求两个类型约束的交；ok 为 false 表示只有 null 能同时满足
func joinTypes(s, o ObjectStamp) (*Type, bool, bool) {
	a, b := s.typ, o.typ
	switch {
	case a == nil:
		return b, o.exact, true
	case b == nil:
		return a, s.exact, true
	case a == b:
		return a, s.exact || o.exact, true
	case a.IsAssignableFrom(b):
		// b 更具体；a 精确时不允许任何真子类型
		if s.exact {
			return nil, false, false
		}
		return b, o.exact, true
	case b.IsAssignableFrom(a):
		if o.exact {
			return nil, false, false
		}
		return a, s.exact, true
	}

	// 互不相关的两个类型
	switch {
	case a.IsInterface() && b.IsInterface():
		if s.exact || o.exact {
			return nil, false, false
		}
		// 同时实现两个接口的类型可能存在，但无法用单个类型表示，取名字较小者
		if a.Name <= b.Name {
			return a, false, true
		}
		return b, false, true
	case a.IsInterface():
		return joinClassInterface(b, o.exact, a, s.exact)
	case b.IsInterface():
		return joinClassInterface(a, s.exact, b, o.exact)
	}
	// 两个不相关的类（或数组）没有公共子类型
	return nil, false, false
}

// joinClassInterface 类 c 的子类型可能实现接口 i
func joinClassInterface(c *Type, cExact bool, i *Type, iExact bool) (*Type, bool, bool) {
	if iExact || cExact || c.IsArray() || c.IsLeaf() {
		// 不相关说明 c 自身未实现 i，而 c 又没有可以实现 i 的子类型
		return nil, false, false
	}
	return c, false, true
}

// ============================================================================
// 格式化
// ============================================================================

// String 形如 "a!# Foo"："!" 非空，"#" 精确，"[]" 一定是数组
func (s ObjectStamp) String() string {
	if s.IsEmpty() {
		return "a<empty>"
	}
	if s.alwaysNull {
		return "a NULL"
	}
	var sb strings.Builder
	sb.WriteByte('a')
	if s.nonNull {
		sb.WriteByte('!')
	}
	if s.exact {
		sb.WriteByte('#')
	}
	if s.alwaysArray && (s.typ == nil || !s.typ.IsArray()) {
		sb.WriteString("[]")
	}
	sb.WriteByte(' ')
	if s.typ == nil {
		sb.WriteString(RootTypeName)
	} else {
		sb.WriteString(s.typ.Name)
	}
	return sb.String()
}
