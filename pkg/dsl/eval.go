// Package dsl 是基于 CEL (Common Expression Language) 的物品表达式解释器。
//
// 表达式语法（CEL 标准语法）：
//   - 数值：item.score >= 4.0 / item.id != 50
//   - 标签：label.recall_source == "recall.cluster"
//   - 请求参数：item.score >= rctx.params.min_score
//   - 逻辑：label.cf_metric == "cosine" && item.score > 3.5
//   - 存在性：has(item.meta.cluster)
package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/movierec/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once

	// programs 缓存已编译的表达式：expr -> cel.Program
	programs sync.Map
)

func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("item", cel.DynType),
			cel.Variable("label", cel.DynType),
			cel.Variable("rctx", cel.DynType),
		)
	})
	return celEnv, celEnvErr
}

// Compile 编译表达式并缓存。返回的 Program 线程安全。
func Compile(expr string) (cel.Program, error) {
	if prg, ok := programs.Load(expr); ok {
		return prg.(cel.Program), nil
	}

	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %w", err)
	}
	programs.Store(expr, prg)
	return prg, nil
}

// Evaluate 对单个物品执行表达式，返回布尔结果。空表达式恒为 true。
func Evaluate(expr string, item *core.Item, rctx *core.RecommendContext) (bool, error) {
	if expr == "" {
		return true, nil
	}
	prg, err := Compile(expr)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(buildInput(item, rctx))
	if err != nil {
		// 访问不存在的 key 会报错，表达式里应先用 has() 判断
		return false, fmt.Errorf("eval error: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return boolean, got %T", out.Value())
	}
	return result, nil
}

// buildInput 构建 CEL 表达式的输入数据
func buildInput(item *core.Item, rctx *core.RecommendContext) map[string]any {
	labels := make(map[string]any, len(item.Labels))
	for k, v := range item.Labels {
		labels[k] = v.Value
	}
	meta := item.Meta
	if meta == nil {
		meta = map[string]any{}
	}

	in := map[string]any{
		"item": map[string]any{
			"id":    item.ID,
			"score": item.Score,
			"meta":  meta,
		},
		"label": labels,
		"rctx":  map[string]any{},
	}
	if rctx != nil {
		params := rctx.Params
		if params == nil {
			params = map[string]any{}
		}
		in["rctx"] = map[string]any{
			"user_id": rctx.UserID,
			"scene":   rctx.Scene,
			"params":  params,
		}
	}
	return in
}
