package rule

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultMaxDepth 是表达式树的默认最大嵌套深度。
const DefaultMaxDepth = 64

var (
	ErrDepthExceeded  = errors.New("rule: maximum nesting depth exceeded")
	ErrTypeMismatch   = errors.New("rule: type mismatch")
	ErrDivisionByZero = errors.New("rule: division by zero")
)

// Context 是规则求值时的数据来源。Lookup 接收点分路径，
// 任何一段缺失都应返回 Absent 而不是报错。
type Context interface {
	Lookup(path string) Value
}

// MapContext 把一个普通的 map 当作求值上下文，主要用于测试和离线调试。
type MapContext map[string]any

func (m MapContext) Lookup(path string) Value {
	if path == "" {
		return Absent
	}
	segments := strings.Split(path, ".")
	root, ok := m[segments[0]]
	if !ok {
		return Absent
	}
	return FromAny(root).Walk(segments[1:])
}

// Interpreter 对表达式树求值。它没有可变状态，可以被多个 goroutine 共享。
//
// 错误策略是不对称的：
//   - 无法识别的节点（Unknown）求值为 true，并打印告警，永远不会因为规则缺口挡住订单；
//   - 求值过程中的运行时错误（类型不匹配、除零、超过深度）会让所在的子规则为 false。
type Interpreter struct {
	maxDepth int
	logger   *zerolog.Logger
}

type Option func(*Interpreter)

// WithMaxDepth 设置最大嵌套深度，非正数会被忽略。
func WithMaxDepth(depth int) Option {
	return func(in *Interpreter) {
		if depth > 0 {
			in.maxDepth = depth
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(in *Interpreter) {
		in.logger = &logger
	}
}

func NewInterpreter(opts ...Option) *Interpreter {
	in := &Interpreter{
		maxDepth: DefaultMaxDepth,
		logger:   &log.Logger,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// MaxDepth 返回当前生效的深度上限。
func (in *Interpreter) MaxDepth() int { return in.maxDepth }

// Evaluate 以布尔语义对规则求值。nil 规则视为通过。
func (in *Interpreter) Evaluate(n Node, ctx Context) bool {
	if n == nil {
		return true
	}
	return in.test(n, ctx, 0)
}

// EvaluateValue 对任意节点求值并返回结果值。
func (in *Interpreter) EvaluateValue(n Node, ctx Context) (Value, error) {
	return in.value(n, ctx, 0)
}

func (in *Interpreter) test(n Node, ctx Context, depth int) bool {
	if depth > in.maxDepth {
		in.logger.Warn().Int("max_depth", in.maxDepth).Msg("rule nesting too deep, sub-rule evaluates to false")
		return false
	}
	switch t := n.(type) {
	case And:
		for _, r := range t.Rules {
			if !in.test(r, ctx, depth+1) {
				return false
			}
		}
		return true
	case Or:
		for _, r := range t.Rules {
			if in.test(r, ctx, depth+1) {
				return true
			}
		}
		return false
	case Not:
		return !in.test(t.Rule, ctx, depth+1)
	case If:
		if in.test(t.Cond, ctx, depth+1) {
			return in.test(t.Then, ctx, depth+1)
		}
		if t.Else == nil {
			return false
		}
		return in.test(t.Else, ctx, depth+1)
	case Unknown:
		in.warnUnknown(t)
		return true
	case nil:
		return false
	default:
		v, err := in.value(n, ctx, depth)
		if err != nil {
			in.logger.Debug().Err(err).Msg("rule evaluation failed, sub-rule evaluates to false")
			return false
		}
		return v.Truthy()
	}
}

func (in *Interpreter) value(n Node, ctx Context, depth int) (Value, error) {
	if depth > in.maxDepth {
		return Absent, ErrDepthExceeded
	}
	next := depth + 1

	switch t := n.(type) {
	case nil:
		return Null, nil
	case Literal:
		return t.Value, nil
	case ListLit:
		items, err := in.values(t.Items, ctx, next)
		if err != nil {
			return Absent, err
		}
		return List(items...), nil
	case Var:
		var v Value
		if ctx != nil {
			v = ctx.Lookup(t.Path)
		}
		if v.IsAbsent() && t.Default != nil {
			return in.value(t.Default, ctx, next)
		}
		return v, nil
	case And, Or, Not:
		return Bool(in.test(n, ctx, depth)), nil
	case If:
		if in.test(t.Cond, ctx, next) {
			return in.value(t.Then, ctx, next)
		}
		return in.value(t.Else, ctx, next)
	case Compare:
		l, err := in.value(t.Left, ctx, next)
		if err != nil {
			return Absent, err
		}
		r, err := in.value(t.Right, ctx, next)
		if err != nil {
			return Absent, err
		}
		return Bool(compareValues(t.Op, l, r)), nil
	case In:
		v, err := in.value(t.Value, ctx, next)
		if err != nil {
			return Absent, err
		}
		arr, err := in.value(t.Array, ctx, next)
		if err != nil {
			return Absent, err
		}
		return Bool(contains(arr, v)), nil
	case Bang:
		v, err := in.value(t.Value, ctx, next)
		if err != nil {
			return Absent, err
		}
		return Bool(!v.Truthy()), nil
	case Cat:
		args, err := in.values(t.Args, ctx, next)
		if err != nil {
			return Absent, err
		}
		var sb strings.Builder
		for _, a := range args {
			sb.WriteString(a.Text())
		}
		return String(sb.String()), nil
	case Substr:
		return in.substr(t, ctx, next)
	case Merge:
		args, err := in.values(t.Args, ctx, next)
		if err != nil {
			return Absent, err
		}
		var out []Value
		for _, a := range args {
			if a.Kind() == KindList {
				out = append(out, a.Items()...)
				continue
			}
			out = append(out, a)
		}
		return List(out...), nil
	case Extremum:
		return in.extremum(t, ctx, next)
	case Arith:
		return in.arith(t, ctx, next)
	case Unknown:
		in.warnUnknown(t)
		return Bool(true), nil
	default:
		return Absent, fmt.Errorf("%w: unsupported node %T", ErrTypeMismatch, n)
	}
}

func (in *Interpreter) values(ns []Node, ctx Context, depth int) ([]Value, error) {
	out := make([]Value, len(ns))
	for i, n := range ns {
		v, err := in.value(n, ctx, depth)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (in *Interpreter) substr(t Substr, ctx Context, depth int) (Value, error) {
	s, err := in.value(t.Str, ctx, depth)
	if err != nil {
		return Absent, err
	}
	startV, err := in.value(t.Start, ctx, depth)
	if err != nil {
		return Absent, err
	}
	start, ok := startV.AsNumber()
	if !ok {
		return Absent, fmt.Errorf("%w: substr start is %s", ErrTypeMismatch, startV.Kind())
	}

	runes := []rune(s.Text())
	size := len(runes)
	from := int(start)
	if from < 0 {
		from = max(size+from, 0)
	}
	if from > size {
		return String(""), nil
	}
	to := size
	if t.Length != nil {
		lenV, err := in.value(t.Length, ctx, depth)
		if err != nil {
			return Absent, err
		}
		length, ok := lenV.AsNumber()
		if !ok {
			return Absent, fmt.Errorf("%w: substr length is %s", ErrTypeMismatch, lenV.Kind())
		}
		if length < 0 {
			to = size + int(length)
		} else {
			to = from + int(length)
		}
	}
	to = min(max(to, from), size)
	return String(string(runes[from:to])), nil
}

func (in *Interpreter) extremum(t Extremum, ctx Context, depth int) (Value, error) {
	args, err := in.values(t.Args, ctx, depth)
	if err != nil {
		return Absent, err
	}
	if len(args) == 0 {
		return Absent, nil
	}
	var best float64
	for i, a := range args {
		n, ok := a.AsNumber()
		if !ok {
			return Absent, fmt.Errorf("%w: %s argument is %s", ErrTypeMismatch, t.Op, a.Kind())
		}
		if i == 0 || (t.Op == OpMin && n < best) || (t.Op == OpMax && n > best) {
			best = n
		}
	}
	return Number(best), nil
}

// arith 以第一个元素为初值，从左到右折叠：sub[a,b,c] = a-b-c。
func (in *Interpreter) arith(t Arith, ctx Context, depth int) (Value, error) {
	args, err := in.values(t.Args, ctx, depth)
	if err != nil {
		return Absent, err
	}
	if len(args) == 0 {
		return Absent, fmt.Errorf("%w: %s needs at least one argument", ErrTypeMismatch, t.Op)
	}
	acc, ok := numeric(args[0])
	if !ok {
		return Absent, fmt.Errorf("%w: %s argument is %s", ErrTypeMismatch, t.Op, args[0].Kind())
	}
	for _, a := range args[1:] {
		n, ok := numeric(a)
		if !ok {
			return Absent, fmt.Errorf("%w: %s argument is %s", ErrTypeMismatch, t.Op, a.Kind())
		}
		switch t.Op {
		case OpAdd:
			acc += n
		case OpSub:
			acc -= n
		case OpMul:
			acc *= n
		case OpDiv:
			if n == 0 {
				return Absent, ErrDivisionByZero
			}
			acc /= n
		case OpMod:
			if n == 0 {
				return Absent, ErrDivisionByZero
			}
			acc = math.Mod(acc, n)
		default:
			return Absent, fmt.Errorf("%w: unknown arithmetic operator %q", ErrTypeMismatch, t.Op)
		}
	}
	if math.IsNaN(acc) || math.IsInf(acc, 0) {
		return Absent, fmt.Errorf("%w: %s produced a non-finite result", ErrTypeMismatch, t.Op)
	}
	return Number(acc), nil
}

func (in *Interpreter) warnUnknown(u Unknown) {
	in.logger.Warn().
		Str("operator", u.Operator).
		Str("node", u.Raw).
		Msg("unrecognized rule node, evaluating permissively")
}

// numeric 只接受数字和数字字符串；布尔、空值、缺失都视为类型不匹配。
func numeric(v Value) (float64, bool) {
	switch v.Kind() {
	case KindNumber, KindString:
		return v.AsNumber()
	default:
		return 0, false
	}
}

// compareValues 定义了比较语义：缺失值只在与缺失值或 null 判等时成立，
// 在所有大小比较中都失败。
func compareValues(op CompareOp, l, r Value) bool {
	switch op {
	case OpEq:
		return looseEqual(l, r)
	case OpNe:
		return !looseEqual(l, r)
	}

	if isNothing(l) || isNothing(r) {
		return false
	}
	var cmp int
	ln, lok := numeric(l)
	rn, rok := numeric(r)
	switch {
	case l.Kind() == KindString && r.Kind() == KindString:
		cmp = strings.Compare(l.Text(), r.Text())
	case lok && rok:
		switch {
		case ln < rn:
			cmp = -1
		case ln > rn:
			cmp = 1
		}
	default:
		return false
	}

	switch op {
	case OpGt:
		return cmp > 0
	case OpGe:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLe:
		return cmp <= 0
	default:
		return false
	}
}

func isNothing(v Value) bool {
	return v.IsAbsent() || v.IsNull()
}

func looseEqual(a, b Value) bool {
	if isNothing(a) || isNothing(b) {
		return isNothing(a) && isNothing(b)
	}
	if a.Kind() == b.Kind() {
		switch a.Kind() {
		case KindBool:
			return a.Truthy() == b.Truthy()
		case KindNumber, KindString:
			return a.Text() == b.Text() || sameNumber(a, b)
		case KindList:
			ai, bi := a.Items(), b.Items()
			if len(ai) != len(bi) {
				return false
			}
			for i := range ai {
				if !looseEqual(ai[i], bi[i]) {
					return false
				}
			}
			return true
		default:
			return a.String() == b.String()
		}
	}
	if a.Kind() == KindString && b.Kind() == KindBool || a.Kind() == KindBool && b.Kind() == KindString {
		return false
	}
	return sameNumber(a, b)
}

func sameNumber(a, b Value) bool {
	an, aok := a.AsNumber()
	bn, bok := b.AsNumber()
	if !aok || !bok {
		return false
	}
	if a.Kind() == KindString && b.Kind() == KindString {
		return false
	}
	return an == bn
}

func contains(haystack, needle Value) bool {
	switch haystack.Kind() {
	case KindList:
		for _, item := range haystack.Items() {
			if looseEqual(item, needle) {
				return true
			}
		}
		return false
	case KindString:
		if isNothing(needle) {
			return false
		}
		return strings.Contains(haystack.Text(), needle.Text())
	default:
		return false
	}
}
