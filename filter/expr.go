package filter

import (
	"context"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/pkg/dsl"
)

// ExprFilter 用 CEL 表达式决定去留：表达式为 true 的物品保留，否则过滤。
//
// 示例：
//
//	&ExprFilter{Expr: `item.score >= 4.0`}
//	&ExprFilter{Expr: `item.score >= rctx.params.min_score`}
type ExprFilter struct {
	Expr string
}

// NewExprFilter 创建表达式过滤器，并提前编译以尽早暴露语法错误。
func NewExprFilter(expr string) (*ExprFilter, error) {
	if expr != "" {
		if _, err := dsl.Compile(expr); err != nil {
			return nil, err
		}
	}
	return &ExprFilter{Expr: expr}, nil
}

func (f *ExprFilter) Name() string {
	return "filter.expr"
}

func (f *ExprFilter) ShouldFilter(
	_ context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil {
		return true, nil
	}
	keep, err := dsl.Evaluate(f.Expr, item, rctx)
	if err != nil {
		return false, err
	}
	return !keep, nil
}
