package recall

import (
	"context"
	"fmt"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/pipeline"
	"github.com/rushteam/movierec/similarity"
)

// NeighborRecall 是基于用户相似度的推荐源（User-based CF, u2i）。
//
// 核心思想："兴趣相似的用户，喜欢相似的物品"
//
// 算法流程：
//  1. 对每个其他用户 v，计算共同物品上的余弦相似度 s
//  2. s <= 0 的用户直接丢弃（不取反，也不参与分母）
//  3. 对 v 评过、目标用户没评过的物品：
//     weightedSum[item] += rating(v, item) * s
//     weightSum[item]   += s
//  4. predicted[item] = weightedSum[item] / weightSum[item]
//  5. 按预测分降序、物品 ID 升序取 TopN
//
// weightSum 在所有近邻上累加，分母是全部评过该物品的近邻的相似度之和。
// 没有任何物品获得正权重时返回空结果（"no recommendations possible"）。
type NeighborRecall struct {
	Ratings core.RatingSource

	// TopN 返回的物品数上限，默认且最多 10；负数表示返回全部候选
	TopN int
}

// Neighbor 是一个正相似度近邻。
type Neighbor struct {
	User       int
	Similarity float64
}

func (r *NeighborRecall) Name() string        { return "recall.neighbor" }
func (r *NeighborRecall) Kind() pipeline.Kind { return pipeline.KindRecall }

// Process 实现 Node 接口，直接调用 Recall
func (r *NeighborRecall) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	return r.Recall(ctx, rctx)
}

// Neighbors 返回目标用户的全部正相似度近邻（按用户 ID 升序）。
// 每处理一个候选用户检查一次 ctx，超出预算时整体失败，不返回部分结果。
func (r *NeighborRecall) Neighbors(ctx context.Context, user int) ([]Neighbor, error) {
	target, err := r.Ratings.Profile(user)
	if err != nil {
		return nil, err
	}

	var out []Neighbor
	for v := 0; v < r.Ratings.NumUsers(); v++ {
		if v == user {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("neighbor scan for user %d: %w", user, err)
		}
		p, err := r.Ratings.Profile(v)
		if err != nil {
			return nil, err
		}
		s, err := similarity.Cosine(target, p)
		if err != nil {
			return nil, fmt.Errorf("similarity(%d, %d): %w", user, v, err)
		}
		if s <= 0 {
			continue
		}
		out = append(out, Neighbor{User: v, Similarity: s})
	}
	return out, nil
}

func (r *NeighborRecall) Recall(
	ctx context.Context,
	rctx *core.RecommendContext,
) ([]*core.Item, error) {
	if r.Ratings == nil || rctx == nil {
		return nil, nil
	}
	user := rctx.UserID

	target, err := r.Ratings.Profile(user)
	if err != nil {
		return nil, err
	}
	neighbors, err := r.Neighbors(ctx, user)
	if err != nil {
		return nil, err
	}

	weightedSum := make(map[int]float64)
	weightSum := make(map[int]float64)
	for _, nb := range neighbors {
		p, err := r.Ratings.Profile(nb.User)
		if err != nil {
			return nil, err
		}
		for i := 0; i < p.Len(); i++ {
			item, rating := p.At(i)
			// 共同物品必然在目标用户画像里，一次判断即可同时排除
			if target.Has(item) {
				continue
			}
			weightedSum[item] += rating * nb.Similarity
			weightSum[item] += nb.Similarity
		}
	}

	predicted := make(map[int]float64, len(weightSum))
	for item, w := range weightSum {
		if w > 0 {
			predicted[item] = weightedSum[item] / w
		}
	}

	return toItems(rankTopN(predicted, topN(r.TopN)), r.Name(), "cosine"), nil
}
