package engine

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"nexus-promotion/internal/service/promotion/domain"
)

// resolutionRules 编译并缓存 RULE_BASED 冲突规则上的 CEL 表达式。
//
// 表达式可以引用 candidate 与 selected 两个变量，字段有
// id、code、type、score、discount、items，结果必须是 bool。
type resolutionRules struct {
	once    sync.Once
	env     *cel.Env
	envErr  error
	program sync.Map // expr -> cel.Program
}

func newResolutionRules() *resolutionRules {
	return &resolutionRules{}
}

func (r *resolutionRules) environment() (*cel.Env, error) {
	r.once.Do(func() {
		r.env, r.envErr = cel.NewEnv(
			cel.Variable("candidate", cel.MapType(cel.StringType, cel.DynType)),
			cel.Variable("selected", cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	return r.env, r.envErr
}

func (r *resolutionRules) compile(expr string) (cel.Program, error) {
	if cached, ok := r.program.Load(expr); ok {
		return cached.(cel.Program), nil
	}
	env, err := r.environment()
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile resolution rule: %w", iss.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build resolution rule program: %w", err)
	}
	actual, _ := r.program.LoadOrStore(expr, prg)
	return actual.(cel.Program), nil
}

// Allow 对一对促销求值表达式，true 表示候选可以与已选中的促销共存。
func (r *resolutionRules) Allow(expr string, cand, sel domain.PromotionResult) (bool, error) {
	prg, err := r.compile(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(map[string]any{
		"candidate": resultFacts(cand),
		"selected":  resultFacts(sel),
	})
	if err != nil {
		return false, fmt.Errorf("evaluate resolution rule: %w", err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("resolution rule returned %T, want bool", out.Value())
	}
	return allowed, nil
}

func resultFacts(r domain.PromotionResult) map[string]any {
	return map[string]any{
		"id":       r.PromotionID,
		"code":     r.Code,
		"type":     string(r.DiscountType),
		"score":    r.EligibilityScore,
		"discount": r.DiscountAmount,
		"items":    int64(len(r.AppliedItems)),
	}
}
