package rerank

import (
	"cmp"
	"context"
	"slices"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/pipeline"
)

// SortNode 按分数降序排序，分数相同按物品 ID 升序，保证结果确定。
type SortNode struct{}

func (n *SortNode) Name() string {
	return "rerank.sort"
}

func (n *SortNode) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *SortNode) Process(
	_ context.Context,
	_ *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b *core.Item) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}
