package recall

import (
	"context"
	"fmt"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/pipeline"
)

// ClusterRecall 是基于聚类的推荐源：推荐同簇用户评过、目标用户没评过的物品。
//
// 算法流程：
//  1. peers = 同簇成员 \ {目标用户}
//  2. 对每个 peer 评过且目标用户未评的物品，累加该 peer 的评分
//  3. 按累加和降序、物品 ID 升序取 TopN
//
// 累加的是和而不是均值：簇内评过某物品的人越多越靠前，体现的是“口味簇内的热度”，
// 不是个性化的加权平均。
type ClusterRecall struct {
	Ratings core.RatingSource
	Model   ClusterLookup

	// TopN 返回的物品数上限，默认且最多 10；负数表示返回全部候选
	TopN int
}

func (r *ClusterRecall) Name() string        { return "recall.cluster" }
func (r *ClusterRecall) Kind() pipeline.Kind { return pipeline.KindRecall }

// Process 实现 Node 接口，直接调用 Recall
func (r *ClusterRecall) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	return r.Recall(ctx, rctx)
}

func (r *ClusterRecall) Recall(
	ctx context.Context,
	rctx *core.RecommendContext,
) ([]*core.Item, error) {
	if r.Ratings == nil || r.Model == nil || rctx == nil {
		return nil, nil
	}
	user := rctx.UserID

	target, err := r.Ratings.Profile(user)
	if err != nil {
		return nil, err
	}
	label, err := r.Model.ClusterOf(user)
	if err != nil {
		return nil, err
	}
	members, err := r.Model.MembersOf(label)
	if err != nil {
		return nil, err
	}

	sums := make(map[int]float64)
	for _, peer := range members {
		if peer == user {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("cluster recall for user %d: %w", user, err)
		}
		p, err := r.Ratings.Profile(peer)
		if err != nil {
			return nil, err
		}
		for i := 0; i < p.Len(); i++ {
			item, score := p.At(i)
			if target.Has(item) {
				continue
			}
			sums[item] += score
		}
	}

	// 只保留正的累加和
	for item, s := range sums {
		if s <= 0 {
			delete(sums, item)
		}
	}

	out := toItems(rankTopN(sums, topN(r.TopN)), r.Name(), "cluster_sum")
	for _, it := range out {
		it.Meta["cluster"] = label
	}
	return out, nil
}
