package recall

import (
	"cmp"
	"slices"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/pkg/utils"
)

type scoredItem struct {
	itemID int
	score  float64
}

// rankTopN 按分数降序、物品 ID 升序排序并截取前 n 个。
func rankTopN(scores map[int]float64, n int) []scoredItem {
	out := make([]scoredItem, 0, len(scores))
	for itemID, score := range scores {
		out = append(out, scoredItem{itemID: itemID, score: score})
	}
	slices.SortFunc(out, func(a, b scoredItem) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.itemID, b.itemID)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// topN 返回有效截断长度：0 取默认值，正数不超过 core.DefaultTopN，
// 负数表示不截断（后面还有过滤 Node 时由 rerank.topn 截断）。
func topN(n int) int {
	switch {
	case n < 0:
		return 0
	case n == 0 || n > core.DefaultTopN:
		return core.DefaultTopN
	}
	return n
}

func toItems(ranked []scoredItem, source, metric string) []*core.Item {
	out := make([]*core.Item, 0, len(ranked))
	for _, s := range ranked {
		it := core.NewItem(s.itemID)
		it.Score = s.score
		it.PutLabel(LabelRecallSource, utils.Label{Value: source, Source: "recall"})
		it.PutLabel(LabelMetric, utils.Label{Value: metric, Source: "recall"})
		out = append(out, it)
	}
	return out
}
