package rule

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind 标识 Value 的变体。
type Kind uint8

const (
	KindAbsent Kind = iota // 变量路径不存在
	KindNull
	KindBool
	KindNumber
	KindString
	KindList
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value 是解释器中流动的动态值。零值即 Absent。
type Value struct {
	kind Kind
	b    bool
	num  float64
	str  string
	list []Value
	obj  map[string]Value
}

var (
	Absent = Value{kind: KindAbsent}
	Null   = Value{kind: KindNull}
)

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }
func String(s string) Value { return Value{kind: KindString, str: s} }
func List(items ...Value) Value { return Value{kind: KindList, list: items} }

// Object 包装一个字段表。传入的 map 不会被复制，调用方不应再修改它。
func Object(fields map[string]Value) Value {
	return Value{kind: KindObject, obj: fields}
}

// Strings 把字符串切片转换为列表值。
func Strings(ss []string) Value {
	items := make([]Value, len(ss))
	for i, s := range ss {
		items[i] = String(s)
	}
	return List(items...)
}

// FromAny 把 JSON 解码得到的 Go 值（或元数据里的常见类型）转换为 Value。
// 不认识的类型按 fmt 的字符串形式处理。
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null
	case Value:
		return t
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case uint:
		return Number(float64(t))
	case uint32:
		return Number(float64(t))
	case uint64:
		return Number(float64(t))
	case string:
		return String(t)
	case []string:
		return Strings(t)
	case time.Time:
		return String(t.Format(time.RFC3339))
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromAny(item)
		}
		return List(items...)
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fields[k] = FromAny(item)
		}
		return Object(fields)
	case map[string]string:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fields[k] = String(item)
		}
		return Object(fields)
	default:
		return String(fmt.Sprint(t))
	}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) Items() []Value { return v.list }

// Field 返回对象字段；非对象或字段缺失时返回 Absent。
func (v Value) Field(name string) Value {
	if v.kind != KindObject {
		return Absent
	}
	f, ok := v.obj[name]
	if !ok {
		return Absent
	}
	return f
}

// Walk 沿点分路径的剩余段继续下钻。列表支持数字下标。
func (v Value) Walk(segments []string) Value {
	cur := v
	for _, seg := range segments {
		switch cur.kind {
		case KindObject:
			cur = cur.Field(seg)
		case KindList:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(cur.list) {
				return Absent
			}
			cur = cur.list[idx]
		default:
			return Absent
		}
		if cur.kind == KindAbsent {
			return Absent
		}
	}
	return cur
}

// Truthy 遵循 JSON-Logic 的真值规则。
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.num != 0 && !math.IsNaN(v.num)
	case KindString:
		return v.str != ""
	case KindList:
		return len(v.list) > 0
	case KindObject:
		return true
	default:
		return false
	}
}

// AsNumber 尝试取数值，数字字符串会被解析。
func (v Value) AsNumber() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Text 返回用于 cat/substr 的字符串形式。
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.Text()
		}
		return strings.Join(parts, ",")
	case KindObject:
		return "[object]"
	default:
		return ""
	}
}

// Interface 把值还原为普通 Go 值，主要给测试和日志使用。
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, item := range v.obj {
			out[k] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindAbsent:
		return "<absent>"
	case KindNull:
		return "null"
	case KindString:
		return strconv.Quote(v.str)
	case KindObject:
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ":" + v.obj[k].String()
		}
		return "{" + strings.Join(parts, ",") + "}"
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return v.Text()
	}
}
