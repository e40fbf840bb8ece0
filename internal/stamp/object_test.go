// object_test.go - 对象 stamp 测试

package stamp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHierarchy 构造测试用层次：
//
//	Object
//	├── Animal (abstract, Named)
//	│   ├── Dog (final)
//	│   └── Cat
//	│       └── Lion
//	└── Rock
//	interfaces: Named, Pet extends Named
func testHierarchy(t *testing.T) (*Hierarchy, map[string]*Type) {
	t.Helper()
	h := NewHierarchy()
	named := h.MustInterface("Named")
	pet := h.MustInterface("Pet", "Named")
	animal := h.MustClass("Animal", "", "Named")
	animal.Abstract = true
	dog := h.MustClass("Dog", "Animal", "Pet")
	dog.Final = true
	cat := h.MustClass("Cat", "Animal")
	lion := h.MustClass("Lion", "Cat")
	rock := h.MustClass("Rock", "")
	return h, map[string]*Type{
		"Object": h.Root(), "Named": named, "Pet": pet, "Animal": animal,
		"Dog": dog, "Cat": cat, "Lion": lion, "Rock": rock,
		"Cat[]": h.ArrayOf(cat), "Dog[]": h.ArrayOf(dog), "Animal[]": h.ArrayOf(animal),
	}
}

// objectSamples 覆盖各种标记组合的 stamp
func objectSamples(ty map[string]*Type) []ObjectStamp {
	return []ObjectStamp{
		UnrestrictedObject(),
		EmptyObject(),
		NullObject(),
		ObjectFor(ty["Animal"], false),
		ObjectFor(ty["Animal"], true),
		ObjectFor(ty["Cat"], true),
		ExactObject(ty["Cat"], false),
		ExactObject(ty["Cat"], true),
		ObjectFor(ty["Lion"], false),
		ObjectFor(ty["Dog"], true),
		ObjectFor(ty["Rock"], false),
		ObjectFor(ty["Cat[]"], false),
		ObjectFor(ty["Animal[]"], true),
		NewObject(nil, false, true, true),
	}
}

func objectProbes(ty map[string]*Type) []ObjectValue {
	return []ObjectValue{
		Null(),
		InstanceOf(ty["Object"]),
		InstanceOf(ty["Dog"]),
		InstanceOf(ty["Cat"]),
		InstanceOf(ty["Lion"]),
		InstanceOf(ty["Rock"]),
		InstanceOf(ty["Cat[]"]),
		InstanceOf(ty["Dog[]"]),
	}
}

// TestObjectLatticeLaws 类层次（无接口歧义）上的格律
func TestObjectLatticeLaws(t *testing.T) {
	_, ty := testHierarchy(t)
	samples := objectSamples(ty)
	for _, a := range samples {
		assert.True(t, a.Meet(a).Equals(a), "meet(%s, %s)", a, a)
		assert.True(t, a.Join(a).Equals(a), "join(%s, %s)", a, a)
		assert.True(t, a.Join(a.Unrestricted()).Equals(a), "join(%s, top)", a)
		assert.True(t, a.Meet(a.Unrestricted()).Equals(a.Unrestricted()), "meet(%s, top)", a)
		for _, b := range samples {
			assert.True(t, a.Meet(b).Equals(b.Meet(a)), "meet(%s, %s)", a, b)
			assert.True(t, a.Join(b).Equals(b.Join(a)), "join(%s, %s)", a, b)
			for _, c := range samples {
				assert.True(t, a.Meet(b.Meet(c)).Equals(a.Meet(b).Meet(c)), "meet assoc %s %s %s", a, b, c)
			}
		}
	}
}

// TestObjectContainment meet/join 对具体引用的包含关系
func TestObjectContainment(t *testing.T) {
	_, ty := testHierarchy(t)
	samples := objectSamples(ty)
	probes := objectProbes(ty)
	for _, a := range samples {
		for _, b := range samples {
			m := a.MeetObject(b)
			j := a.JoinObject(b)
			for _, v := range probes {
				if (a.Contains(v) || b.Contains(v)) && !m.Contains(v) {
					t.Errorf("meet(%s, %s) = %s misses %v", a, b, m, v.Type)
				}
				if j.Contains(v) && !(a.Contains(v) && b.Contains(v)) {
					t.Errorf("join(%s, %s) = %s contains %v", a, b, j, v.Type)
				}
			}
		}
	}
}

// TestObjectJoinUnrelatedInterfaces 两个无关接口相交时保留名字较小的一个，
// 结果是上近似，可能包含只实现其中一个接口的类
func TestObjectJoinUnrelatedInterfaces(t *testing.T) {
	h := NewHierarchy()
	closer := h.MustInterface("Closer")
	reader := h.MustInterface("Reader")
	file := h.MustClass("File", "", "Closer", "Reader")
	socket := h.MustClass("Socket", "", "Closer")

	a, b := ObjectFor(reader, true), ObjectFor(closer, true)
	for _, j := range []ObjectStamp{a.JoinObject(b), b.JoinObject(a)} {
		assert.Equal(t, closer, j.Type())
		assert.False(t, j.IsExact())
		assert.True(t, j.NonNull())
		assert.True(t, j.Contains(InstanceOf(file)))
		assert.False(t, j.Contains(Null()))
		assert.True(t, j.Contains(InstanceOf(socket)))
		assert.False(t, a.Contains(InstanceOf(socket)))
	}

	// 精确类型本身实现了接口时相交不变
	assert.True(t, ExactObject(file, true).JoinObject(ObjectFor(closer, true)).Equals(ExactObject(file, true)))
}

// TestObjectMeetWidens meet 放宽到公共超类型
func TestObjectMeetWidens(t *testing.T) {
	_, ty := testHierarchy(t)

	m := ExactObject(ty["Cat"], true).MeetObject(ExactObject(ty["Dog"], true))
	assert.Equal(t, ty["Animal"], m.Type())
	assert.False(t, m.IsExact())
	assert.True(t, m.NonNull())

	// 只有接口相同：Dog 实现 Pet，Animal 实现 Named
	m = ObjectFor(ty["Dog"], true).MeetObject(ObjectFor(ty["Rock"], true))
	assert.Nil(t, m.Type(), "unrelated classes widen to any reference")

	h := NewHierarchy()
	h.MustInterface("Shape")
	sq := h.MustClass("Square", "", "Shape")
	ci := h.MustClass("Circle", "", "Shape")
	shape, _ := h.Lookup("Shape")
	m = ObjectFor(sq, false).MeetObject(ObjectFor(ci, false))
	assert.Equal(t, shape, m.Type(), "common interface expected, got %s", m)

	// 数组：元素取公共超类型
	m = ObjectFor(ty["Cat[]"], true).MeetObject(ObjectFor(ty["Dog[]"], true))
	assert.Equal(t, ty["Animal[]"], m.Type())
	assert.True(t, m.AlwaysArray())

	// 数组与非数组相遇：不再保证是数组
	m = ObjectFor(ty["Cat[]"], true).MeetObject(ObjectFor(ty["Cat"], true))
	assert.False(t, m.AlwaysArray())

	// 与 null 相遇只放开可空性
	m = ExactObject(ty["Cat"], true).MeetObject(NullObject())
	assert.Equal(t, ExactObject(ty["Cat"], false), m)
}

// TestObjectJoinNarrows join 收窄，不可能的组合退化为 null 或 empty
func TestObjectJoinNarrows(t *testing.T) {
	_, ty := testHierarchy(t)

	j := ObjectFor(ty["Animal"], false).JoinObject(ObjectFor(ty["Cat"], true))
	assert.Equal(t, ObjectFor(ty["Cat"], true), j)

	// 精确的 Cat 不可能是 Lion
	j = ExactObject(ty["Cat"], false).JoinObject(ObjectFor(ty["Lion"], false))
	assert.True(t, j.AlwaysNull())

	j = ExactObject(ty["Cat"], true).JoinObject(ObjectFor(ty["Lion"], false))
	assert.True(t, j.IsEmpty())

	// 不相关的两个类
	j = ObjectFor(ty["Cat"], false).JoinObject(ObjectFor(ty["Rock"], false))
	assert.True(t, j.AlwaysNull())
	j = ObjectFor(ty["Cat"], true).JoinObject(ObjectFor(ty["Rock"], false))
	assert.True(t, j.IsEmpty())

	// 非精确的类可能有实现该接口的子类
	j = ObjectFor(ty["Cat"], true).JoinObject(ObjectFor(ty["Pet"], false))
	assert.Equal(t, ty["Cat"], j.Type())
	// final 类不会有
	j = ObjectFor(ty["Rock"], true).JoinObject(ObjectFor(ty["Pet"], true))
	assert.Equal(t, ty["Rock"], j.Type())
	j = ExactObject(ty["Rock"], true).JoinObject(ObjectFor(ty["Pet"], true))
	assert.True(t, j.IsEmpty())

	// alwaysArray 只要一方保证就保留
	arr := NewObject(nil, false, false, true)
	j = arr.JoinObject(ObjectFor(ty["Animal[]"], false))
	assert.True(t, j.AlwaysArray())
	j = arr.JoinObject(ObjectFor(ty["Cat"], true))
	assert.True(t, j.IsEmpty())
	j = arr.JoinObject(UnrestrictedObject())
	assert.True(t, j.AlwaysArray())
}

// TestObjectNormalization 规范化规则
func TestObjectNormalization(t *testing.T) {
	_, ty := testHierarchy(t)

	// 抽象类不可能有精确实例
	assert.Equal(t, NullObject(), ExactObject(ty["Animal"], false))
	assert.Equal(t, EmptyObject(), ExactObject(ty["Animal"], true))

	// final 类自动精确
	assert.True(t, ObjectFor(ty["Dog"], false).IsExact())

	// 非精确的根类就是任意引用
	assert.Equal(t, UnrestrictedObject(), ObjectFor(ty["Object"], false))
	assert.False(t, ExactObject(ty["Object"], false).IsEmpty())

	require.True(t, NullObject().Contains(Null()))
	require.False(t, NullObject().Contains(InstanceOf(ty["Cat"])))
}

// TestObjectString 格式化输出
func TestObjectString(t *testing.T) {
	_, ty := testHierarchy(t)
	assert.Equal(t, "a Object", UnrestrictedObject().String())
	assert.Equal(t, "a<empty>", EmptyObject().String())
	assert.Equal(t, "a NULL", NullObject().String())
	assert.Equal(t, "a!# Cat", ExactObject(ty["Cat"], true).String())
	assert.Equal(t, "a Cat[]", ObjectFor(ty["Cat[]"], false).String())
	assert.Equal(t, "a![] Object", NewObject(nil, false, true, true).String())
}

// TestHierarchyErrors 非法定义
func TestHierarchyErrors(t *testing.T) {
	h := NewHierarchy()
	_, err := h.DefineClass("A", "Missing")
	assert.Error(t, err)
	h.MustInterface("I")
	_, err = h.DefineClass("B", "I")
	assert.Error(t, err)
	_, err = h.DefineClass("C", "", "Object")
	assert.Error(t, err)
	h.MustClass("D", "")
	_, err = h.DefineClass("D", "")
	assert.Error(t, err)
}
