package filter

import (
	"context"

	"github.com/rushteam/movierec/core"
)

// SeenFilter 过滤掉用户已经评过分的物品。
// 推荐源本身已保证不返回已评分物品；合并了外部候选的 Pipeline 需要这一层兜底。
type SeenFilter struct {
	Ratings core.RatingSource
}

func (f *SeenFilter) Name() string {
	return "filter.seen"
}

func (f *SeenFilter) ShouldFilter(
	_ context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil {
		return true, nil
	}
	if f.Ratings == nil || rctx == nil {
		return false, nil
	}
	return f.Ratings.HasRating(rctx.UserID, item.ID), nil
}
