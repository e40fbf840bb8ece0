// text.go - stamp 的文本形式
//
// 用于图描述文件和命令行，Format 的输出总能被 Parse 读回：
//
//	i32                          顶元素
//	i32 [0, 15]                  区间
//	i32 [0, 15] must=0x1 may=0xd 区间加掩码
//	i32 empty
//	f64 [-1, +Inf] nonnan        浮点区间，nonnan 表示不含 NaN
//	f32 nan                      只有 NaN
//	object Shape exact nonnull   类型、精确、非空、一定是数组（array）
//	null
//	void

package stamp

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Format 返回 stamp 的文本形式
func Format(s Stamp) string {
	switch x := s.(type) {
	case IntegerStamp:
		return formatInt(x)
	case FloatStamp:
		return formatFloatStamp(x)
	case ObjectStamp:
		return formatObject(x)
	case VoidStamp:
		return "void"
	}
	return s.String()
}

func formatInt(s IntegerStamp) string {
	head := fmt.Sprintf("i%d", s.bits)
	switch {
	case s.IsEmpty():
		return head + " empty"
	case s.IsUnrestricted():
		return head
	}
	out := fmt.Sprintf("%s [%d, %d]", head, s.lower, s.upper)
	if plain := Create(s.bits, s.lower, s.upper); plain.must != s.must || plain.may != s.may {
		out += fmt.Sprintf(" must=%#x may=%#x", s.must, s.may)
	}
	return out
}

func formatFloatStamp(s FloatStamp) string {
	head := fmt.Sprintf("f%d", s.bits)
	switch {
	case s.IsEmpty():
		return head + " empty"
	case s.IsNaN():
		return head + " nan"
	case s.IsUnrestricted():
		return head
	}
	out := fmt.Sprintf("%s [%s, %s]", head, formatBound(s.lower), formatBound(s.upper))
	if s.nonNaN {
		out += " nonnan"
	}
	return out
}

func formatBound(v float64) string {
	if math.IsInf(v, 1) {
		return "+Inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatObject(s ObjectStamp) string {
	switch {
	case s.IsEmpty():
		return "object empty"
	case s.alwaysNull:
		return "null"
	}
	parts := []string{"object"}
	if s.typ != nil {
		parts = append(parts, s.typ.Name)
	}
	if s.exact {
		parts = append(parts, "exact")
	}
	if s.nonNull {
		parts = append(parts, "nonnull")
	}
	if s.alwaysArray && (s.typ == nil || !s.typ.IsArray()) {
		parts = append(parts, "array")
	}
	return strings.Join(parts, " ")
}

// ============================================================================
// 解析
// ============================================================================

// Parse 解析 Format 的输出；对象类型在 h 中查找
func Parse(text string, h *Hierarchy) (Stamp, error) {
	text = strings.TrimSpace(text)
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty stamp")
	}
	head := fields[0]
	switch {
	case head == "void":
		return Void(), nil
	case head == "null":
		return NullObject(), nil
	case head == "object":
		return parseObject(fields[1:], h)
	case strings.HasPrefix(head, "i"), strings.HasPrefix(head, "f"):
		bits, err := strconv.Atoi(head[1:])
		if err != nil {
			return nil, fmt.Errorf("invalid stamp width %q", head)
		}
		rest := strings.TrimSpace(text[len(head):])
		if head[0] == 'i' {
			return parseInt(bits, rest)
		}
		return parseFloat(bits, rest)
	}
	return nil, fmt.Errorf("unknown stamp %q", text)
}

// MustParse 解析失败时 panic，用于测试和常量表
func MustParse(text string, h *Hierarchy) Stamp {
	s, err := Parse(text, h)
	if err != nil {
		panic(err)
	}
	return s
}

// splitRange 拆出 "[lo, hi]" 和其后的修饰词
func splitRange(rest string) (lo, hi string, tail []string, ok bool, err error) {
	if !strings.HasPrefix(rest, "[") {
		return "", "", strings.Fields(rest), false, nil
	}
	end := strings.IndexByte(rest, ']')
	if end < 0 {
		return "", "", nil, false, fmt.Errorf("unterminated range in %q", rest)
	}
	parts := strings.Split(rest[1:end], ",")
	if len(parts) != 2 {
		return "", "", nil, false, fmt.Errorf("range %q needs two bounds", rest[:end+1])
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), strings.Fields(rest[end+1:]), true, nil
}

func parseInt(bits int, rest string) (Stamp, error) {
	if !validBits(bits) {
		return nil, fmt.Errorf("unsupported integer width %d", bits)
	}
	if rest == "empty" {
		return EmptyInt(bits), nil
	}
	loText, hiText, tail, hasRange, err := splitRange(rest)
	if err != nil {
		return nil, err
	}
	lo, hi := MinValue(bits), MaxValue(bits)
	if hasRange {
		if lo, err = strconv.ParseInt(loText, 0, 64); err != nil {
			return nil, fmt.Errorf("invalid lower bound: %w", err)
		}
		if hi, err = strconv.ParseInt(hiText, 0, 64); err != nil {
			return nil, fmt.Errorf("invalid upper bound: %w", err)
		}
		if lo < MinValue(bits) || hi > MaxValue(bits) {
			return nil, fmt.Errorf("range [%d, %d] does not fit i%d", lo, hi, bits)
		}
	}
	must, may := uint64(0), Mask(bits)
	for _, f := range tail {
		key, val, found := strings.Cut(f, "=")
		if !found {
			return nil, fmt.Errorf("unknown integer stamp modifier %q", f)
		}
		v, err := strconv.ParseUint(val, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid mask %q: %w", f, err)
		}
		switch key {
		case "must":
			must = v
		case "may":
			may = v
		default:
			return nil, fmt.Errorf("unknown integer stamp modifier %q", f)
		}
	}
	return CreateWithMasks(bits, lo, hi, must, may), nil
}

func parseFloat(bits int, rest string) (Stamp, error) {
	if bits != 32 && bits != 64 {
		return nil, fmt.Errorf("unsupported float width %d", bits)
	}
	switch rest {
	case "empty":
		return EmptyFloat(bits), nil
	case "nan":
		return NaNFloat(bits), nil
	case "":
		return UnrestrictedFloat(bits), nil
	}
	loText, hiText, tail, hasRange, err := splitRange(rest)
	if err != nil {
		return nil, err
	}
	lo, hi := math.Inf(-1), math.Inf(1)
	if hasRange {
		if lo, err = strconv.ParseFloat(loText, 64); err != nil {
			return nil, fmt.Errorf("invalid lower bound: %w", err)
		}
		if hi, err = strconv.ParseFloat(hiText, 64); err != nil {
			return nil, fmt.Errorf("invalid upper bound: %w", err)
		}
	}
	nonNaN := false
	for _, f := range tail {
		if f != "nonnan" {
			return nil, fmt.Errorf("unknown float stamp modifier %q", f)
		}
		nonNaN = true
	}
	return CreateFloat(bits, lo, hi, nonNaN), nil
}

func parseObject(fields []string, h *Hierarchy) (Stamp, error) {
	if len(fields) == 1 && fields[0] == "empty" {
		return EmptyObject(), nil
	}
	var typ *Type
	var exact, nonNull, array bool
	for i, f := range fields {
		switch f {
		case "exact":
			exact = true
		case "nonnull":
			nonNull = true
		case "array":
			array = true
		default:
			if i != 0 || h == nil {
				return nil, fmt.Errorf("unknown object stamp modifier %q", f)
			}
			t, ok := h.Lookup(f)
			if !ok {
				return nil, fmt.Errorf("unknown type %q", f)
			}
			typ = t
		}
	}
	if typ == nil && exact && h != nil {
		typ = h.Root()
	}
	return NewObject(typ, exact, nonNull, array), nil
}
