package recall

import (
	"context"

	"github.com/rushteam/movierec/core"
)

// Source 表示一个可复用的推荐策略单元（聚类 / 近邻 / ...）。
// 返回的物品已按分数降序、ID 升序排好，不含用户已评分物品，且不超过 TopN 个。
// 空结果是正常结果，不是错误。
type Source interface {
	Name() string
	Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error)
}

// ClusterLookup 是聚类结果的只读视图，*cluster.KMeans 与 *cluster.Assignment 均实现。
type ClusterLookup interface {
	ClusterOf(user int) (int, error)
	MembersOf(label int) ([]int, error)
}

// 写入 Item.Labels 的 key
const (
	LabelRecallSource = "recall_source"
	LabelMetric       = "cf_metric"
)
