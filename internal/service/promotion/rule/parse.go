package rule

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Parse 把 JSON-Logic 风格的规则定义编译成表达式树。
//
// 只有非法 JSON 会返回错误；不认识的操作符、参数个数不对的节点
// 都会被编译成 Unknown，由解释器按放行策略处理。
// 空输入或 null 返回 (nil, nil)，表示"没有规则"。
func Parse(data []byte) (Node, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var raw any
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("invalid rule definition: %w", err)
	}
	return FromJSON(raw), nil
}

// ParseString 是 Parse 的字符串版本，便于从数据库字段直接编译。
func ParseString(definition string) (Node, error) {
	return Parse([]byte(definition))
}

// MustParse 用于测试和静态规则，解析失败时 panic。
func MustParse(definition string) Node {
	n, err := ParseString(definition)
	if err != nil {
		panic(err)
	}
	return n
}

// FromJSON 把已经解码的 JSON 值（map/slice/标量）转换为表达式树。
func FromJSON(v any) Node {
	switch t := v.(type) {
	case nil:
		return Literal{Value: Null}
	case bool:
		return Literal{Value: Bool(t)}
	case float64:
		return Literal{Value: Number(t)}
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return Literal{Value: String(t.String())}
		}
		return Literal{Value: Number(n)}
	case string:
		if len(t) > 1 && strings.HasPrefix(t, "$") {
			return Var{Path: t[1:]}
		}
		return Literal{Value: String(t)}
	case []any:
		items := make([]Node, len(t))
		for i, item := range t {
			items[i] = FromJSON(item)
		}
		return ListLit{Items: items}
	case map[string]any:
		return fromOperation(t)
	default:
		return Unknown{Raw: fmt.Sprint(t)}
	}
}

func fromOperation(m map[string]any) Node {
	if len(m) != 1 {
		return Unknown{Raw: rawJSON(m)}
	}
	var (
		op   string
		args any
	)
	for k, v := range m {
		op, args = k, v
	}
	list := argList(args)
	unknown := Unknown{Operator: op, Raw: rawJSON(m)}

	switch op {
	case "and":
		return And{Rules: nodes(list)}
	case "or":
		return Or{Rules: nodes(list)}
	case "not":
		if len(list) != 1 {
			return unknown
		}
		return Not{Rule: FromJSON(list[0])}
	case "!", "bang":
		if len(list) != 1 {
			return unknown
		}
		return Bang{Value: FromJSON(list[0])}
	case "!!":
		if len(list) != 1 {
			return unknown
		}
		return Bang{Value: Bang{Value: FromJSON(list[0])}}
	case "if", "?:":
		if len(list) < 2 {
			return unknown
		}
		return ifChain(nodes(list))
	case "==", "===", "eq":
		return compare(OpEq, list, unknown)
	case "!=", "!==", "ne":
		return compare(OpNe, list, unknown)
	case ">", "gt":
		return compare(OpGt, list, unknown)
	case ">=", "ge":
		return compare(OpGe, list, unknown)
	case "<", "lt":
		return between(OpLt, list, unknown)
	case "<=", "le":
		return between(OpLe, list, unknown)
	case "in":
		if len(list) != 2 {
			return unknown
		}
		return In{Value: FromJSON(list[0]), Array: FromJSON(list[1])}
	case "var":
		return varNode(list, unknown)
	case "cat":
		return Cat{Args: nodes(list)}
	case "substr":
		if len(list) != 2 && len(list) != 3 {
			return unknown
		}
		s := Substr{Str: FromJSON(list[0]), Start: FromJSON(list[1])}
		if len(list) == 3 {
			s.Length = FromJSON(list[2])
		}
		return s
	case "merge":
		return Merge{Args: nodes(list)}
	case "min":
		return Extremum{Op: OpMin, Args: nodes(list)}
	case "max":
		return Extremum{Op: OpMax, Args: nodes(list)}
	case "+", "add":
		return arith(OpAdd, list, unknown)
	case "-", "sub":
		return arith(OpSub, list, unknown)
	case "*", "mul":
		return arith(OpMul, list, unknown)
	case "/", "div":
		return arith(OpDiv, list, unknown)
	case "%", "mod":
		return arith(OpMod, list, unknown)
	default:
		return unknown
	}
}

// argList 把操作符的参数统一为列表：{"!": x} 等价于 {"!": [x]}。
func argList(args any) []any {
	if list, ok := args.([]any); ok {
		return list
	}
	return []any{args}
}

func nodes(list []any) []Node {
	out := make([]Node, len(list))
	for i, item := range list {
		out[i] = FromJSON(item)
	}
	return out
}

// ifChain 支持 if/elif/else 链：[c1, t1, c2, t2, else]。
func ifChain(args []Node) Node {
	switch len(args) {
	case 0:
		return nil
	case 1:
		return args[0]
	case 2:
		return If{Cond: args[0], Then: args[1]}
	default:
		return If{Cond: args[0], Then: args[1], Else: ifChain(args[2:])}
	}
}

func compare(op CompareOp, list []any, unknown Unknown) Node {
	if len(list) != 2 {
		return unknown
	}
	return Compare{Op: op, Left: FromJSON(list[0]), Right: FromJSON(list[1])}
}

// between 处理 {"<": [a, b, c]} 这种区间写法。
func between(op CompareOp, list []any, unknown Unknown) Node {
	switch len(list) {
	case 2:
		return compare(op, list, unknown)
	case 3:
		mid := FromJSON(list[1])
		return And{Rules: []Node{
			Compare{Op: op, Left: FromJSON(list[0]), Right: mid},
			Compare{Op: op, Left: mid, Right: FromJSON(list[2])},
		}}
	default:
		return unknown
	}
}

func varNode(list []any, unknown Unknown) Node {
	if len(list) == 0 || len(list) > 2 {
		return unknown
	}
	var path string
	switch p := list[0].(type) {
	case string:
		path = p
	case float64:
		path = strconv.FormatFloat(p, 'f', -1, 64)
	case nil:
		path = ""
	default:
		return unknown
	}
	v := Var{Path: path}
	if len(list) == 2 {
		v.Default = FromJSON(list[1])
	}
	return v
}

func arith(op ArithOp, list []any, unknown Unknown) Node {
	if len(list) == 0 {
		return unknown
	}
	return Arith{Op: op, Args: nodes(list)}
}

func rawJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
